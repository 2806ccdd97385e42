package worker

import "errors"

// Ошибки воркера.
var (
	// ErrAttemptInFlight — для документа уже выполняется другая попытка.
	// Запись не изменяется, брокер повторит задачу по своему расписанию.
	ErrAttemptInFlight = errors.New("issuance attempt already in flight")

	// ErrProviderFailure — провайдер не выпустил документ.
	// Запись переведена в FAILED, брокер повторит задачу.
	ErrProviderFailure = errors.New("provider failure")
)
