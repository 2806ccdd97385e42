package provider

import "errors"

// Ошибки провайдеров.
var (
	// ErrUnknownProvider — провайдер с таким именем не зарегистрирован.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrRequest — запрос к шлюзу не удался (инфраструктурная ошибка).
	ErrRequest = errors.New("provider request failed")

	// ErrInvalidRequest — запрос не прошёл локальную валидацию.
	ErrInvalidRequest = errors.New("invalid provider request")
)
