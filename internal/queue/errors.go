package queue

import "errors"

// Ошибки брокера.
var (
	// ErrUnavailable — брокер недоступен (синхронная ошибка Enqueue/Counts).
	ErrUnavailable = errors.New("broker unavailable")

	// ErrClosed — брокер остановлен.
	ErrClosed = errors.New("broker closed")

	// ErrInvalidOptions — некорректные параметры задачи.
	ErrInvalidOptions = errors.New("invalid job options")
)
