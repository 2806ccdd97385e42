package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IssuanceQueue — очередь задач выпуска документов.
const IssuanceQueue = "fiscal.issuance"

// Job — одна задача выпуска (или повторного выпуска) документа.
type Job struct {
	// ID — идентификатор задачи в брокере.
	ID string `json:"id"`

	// Queue — имя очереди.
	Queue string `json:"queue"`

	// DocumentID — запись IssuanceRecord, которую обрабатывает задача.
	DocumentID uuid.UUID `json:"document_id"`

	// TenantID — владелец документа.
	TenantID string `json:"tenant_id"`

	// Attempt — номер попытки доставки (начиная с 1).
	// Заполняется брокером при вызове handler'а.
	Attempt int `json:"attempt"`

	// EnqueuedAt — время постановки в очередь.
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewIssuanceJob создаёт задачу выпуска для документа.
func NewIssuanceJob(tenantID string, documentID uuid.UUID) Job {
	return Job{
		ID:         uuid.NewString(),
		Queue:      IssuanceQueue,
		DocumentID: documentID,
		TenantID:   tenantID,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Handle — квитанция постановки в очередь.
type Handle struct {
	JobID string `json:"job_id"`
	Queue string `json:"queue"`
}

// Options — параметры доставки задачи.
type Options struct {
	// MaxAttempts — максимальное количество попыток (включая первую).
	MaxAttempts int `json:"max_attempts"`

	// Backoff — политика задержки между попытками.
	Backoff Backoff `json:"backoff"`

	// RetainCompleted — сколько завершённых задач хранить для интроспекции.
	RetainCompleted int `json:"retain_completed"`

	// RetainFailed — сколько окончательно упавших задач хранить.
	RetainFailed int `json:"retain_failed"`
}

// DefaultOptions возвращает параметры по умолчанию.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 5,
		Backoff: Backoff{
			Kind:      BackoffExponential,
			BaseDelay: 5 * time.Second,
			MaxDelay:  10 * time.Minute,
		},
		RetainCompleted: 1000,
		RetainFailed:    5000,
	}
}

// Validate проверяет параметры.
func (o Options) Validate() error {
	if o.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be >= 1", ErrInvalidOptions)
	}
	if o.RetainCompleted < 0 || o.RetainFailed < 0 {
		return fmt.Errorf("%w: retention must be >= 0", ErrInvalidOptions)
	}
	return o.Backoff.Validate()
}

// Handler — обработчик одной попытки задачи.
// Ошибка означает неудачную попытку: брокер повторит доставку.
type Handler func(ctx context.Context, job Job) error

// Counts — счётчики состояния очереди.
type Counts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Broker — сторона постановки задач.
type Broker interface {
	// Enqueue ставит задачу в очередь. Ошибка — брокер недоступен.
	Enqueue(ctx context.Context, job Job, opts Options) (Handle, error)

	// Counts возвращает счётчики очереди.
	Counts(ctx context.Context) (Counts, error)
}

// Consumer — сторона потребления задач.
type Consumer interface {
	// Consume блокирует до отмены ctx, вызывая handler
	// не более чем в concurrency параллельных слотах.
	Consume(ctx context.Context, queue string, concurrency int, handler Handler) error
}
