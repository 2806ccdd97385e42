package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/fiscaldoc/internal/domain"
	"github.com/shaiso/fiscaldoc/internal/provider"
	"github.com/shaiso/fiscaldoc/internal/queue"
	"github.com/shaiso/fiscaldoc/internal/repo"
)

// Значения по умолчанию.
const (
	defaultConcurrency     = 2
	defaultProviderTimeout = 30 * time.Second
	defaultLeaseTTL        = 2 * time.Minute
)

// EventPublisher публикует события жизненного цикла документа.
type EventPublisher interface {
	PublishDocumentEvent(ctx context.Context, event domain.DocumentEvent) error
}

// Worker — пул выпуска документов.
//
// Handle выполняет ровно одну попытку выпуска и ничего не повторяет сам:
// расписание повторов целиком на стороне брокера. Тот же Handle
// вызывается Orchestrator'ом синхронно, когда брокер недоступен.
type Worker struct {
	store     repo.DocumentStore
	directory repo.Directory
	provider  provider.Provider
	consumer  queue.Consumer
	lease     Lease
	events    EventPublisher

	concurrency     int
	providerTimeout time.Duration
	leaseTTL        time.Duration
	artifactBaseURL string

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	Store     repo.DocumentStore
	Directory repo.Directory
	Provider  provider.Provider

	// Consumer нужен только для Start; Handle работает и без него.
	Consumer queue.Consumer

	// Lease (опционально; если nil — LocalLease).
	Lease Lease

	// Events (опционально; если nil — события не публикуются).
	Events EventPublisher

	Concurrency     int           // параллельные слоты (default: 2)
	ProviderTimeout time.Duration // таймаут вызова провайдера (default: 30s)
	LeaseTTL        time.Duration // срок аренды документа (default: 2m)

	// ArtifactBaseURL — база для ссылки на PDF, если провайдер её не вернул.
	ArtifactBaseURL string

	Logger *slog.Logger
}

// New создаёт Worker.
func New(cfg Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	providerTimeout := cfg.ProviderTimeout
	if providerTimeout <= 0 {
		providerTimeout = defaultProviderTimeout
	}

	leaseTTL := cfg.LeaseTTL
	if leaseTTL <= 0 {
		leaseTTL = defaultLeaseTTL
	}
	// аренда должна пережить вызов провайдера
	if leaseTTL < providerTimeout {
		leaseTTL = providerTimeout + providerTimeout/2
	}

	lease := cfg.Lease
	if lease == nil {
		lease = NewLocalLease()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		store:           cfg.Store,
		directory:       cfg.Directory,
		provider:        cfg.Provider,
		consumer:        cfg.Consumer,
		lease:           lease,
		events:          cfg.Events,
		concurrency:     concurrency,
		providerTimeout: providerTimeout,
		leaseTTL:        leaseTTL,
		artifactBaseURL: cfg.ArtifactBaseURL,
		logger:          logger,
	}
}

// Start регистрирует Handle в брокере и возвращается сразу.
func (w *Worker) Start(ctx context.Context) error {
	if w.consumer == nil {
		return errors.New("worker: consumer is not configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"queue", queue.IssuanceQueue,
		"concurrency", w.concurrency,
		"provider_timeout", w.providerTimeout,
	)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		err := w.consumer.Consume(ctx, queue.IssuanceQueue, w.concurrency, w.Handle)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("consumer stopped with error", "error", err)
		}
	}()

	return nil
}

// Stop останавливает потребление и ждёт завершения текущих попыток.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}
