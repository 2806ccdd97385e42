package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrDocumentNotFound — документ не найден или принадлежит другому tenant.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrInvalidRequest — обязательные поля запроса не заполнены.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidTransition — переход из текущего статуса запрещён.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotIssued — операция требует выпущенного документа.
	ErrNotIssued = errors.New("document is not issued")

	// ErrProviderRejected — провайдер отклонил операцию.
	ErrProviderRejected = errors.New("provider rejected operation")
)
