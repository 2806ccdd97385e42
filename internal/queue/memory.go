package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// JobRecord — завершённая задача, хранимая для интроспекции.
type JobRecord struct {
	Job        Job       `json:"job"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// entry — задача в брокере вместе с её параметрами доставки.
type entry struct {
	job     Job
	opts    Options
	attempt int
}

// memQueue — очередь готовых к доставке задач.
type memQueue struct {
	mu       sync.Mutex
	ready    []*entry
	inflight int
	signal   chan struct{}
}

func newMemQueue() *memQueue {
	return &memQueue{signal: make(chan struct{}, 1)}
}

func (q *memQueue) push(e *entry) {
	q.mu.Lock()
	q.ready = append(q.ready, e)
	q.mu.Unlock()
	q.notify()
}

func (q *memQueue) pop() *entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ready) == 0 {
		return nil
	}
	e := q.ready[0]
	q.ready[0] = nil
	q.ready = q.ready[1:]
	q.inflight++
	if len(q.ready) > 0 {
		// остальные слоты тоже должны проснуться
		q.notify()
	}
	return e
}

// done отмечает окончание обработки задачи, взятой через pop.
func (q *memQueue) done() {
	q.mu.Lock()
	q.inflight--
	q.mu.Unlock()
}

// stats возвращает количество готовых и обрабатываемых задач.
func (q *memQueue) stats() (ready, inflight int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready), q.inflight
}

func (q *memQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// MemoryBroker — in-process реализация Broker и Consumer.
//
// Поведение совпадает с production-брокером:
//   - ошибка handler'а → повторная доставка через Backoff.Delay(attempt)
//   - после MaxAttempts задача помечается failed на уровне брокера
//   - завершённые и упавшие задачи хранятся в пределах RetainCompleted/RetainFailed
//
// Используется в тестах и в local-режиме API.
type MemoryBroker struct {
	logger *slog.Logger

	mu        sync.Mutex
	queues    map[string]*memQueue
	completed []JobRecord
	failed    []JobRecord
	timers    map[*time.Timer]struct{}
	closed    bool

	available atomic.Bool
	delayed   atomic.Int64
}

// NewMemoryBroker создаёт MemoryBroker.
func NewMemoryBroker(logger *slog.Logger) *MemoryBroker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &MemoryBroker{
		logger: logger,
		queues: make(map[string]*memQueue),
		timers: make(map[*time.Timer]struct{}),
	}
	b.available.Store(true)
	return b
}

// SetAvailable включает/выключает симуляцию недоступности брокера.
func (b *MemoryBroker) SetAvailable(available bool) {
	b.available.Store(available)
}

// queue возвращает (или создаёт) очередь по имени.
func (b *MemoryBroker) queue(name string) *memQueue {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		q = newMemQueue()
		b.queues[name] = q
	}
	return q
}

// Enqueue ставит задачу в очередь.
func (b *MemoryBroker) Enqueue(ctx context.Context, job Job, opts Options) (Handle, error) {
	if !b.available.Load() {
		return Handle{}, fmt.Errorf("%w: simulated outage", ErrUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	if err := opts.Validate(); err != nil {
		return Handle{}, err
	}

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return Handle{}, fmt.Errorf("%w: %w", ErrUnavailable, ErrClosed)
	}

	if job.Queue == "" {
		job.Queue = IssuanceQueue
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	b.queue(job.Queue).push(&entry{job: job, opts: opts})

	b.logger.Debug("job enqueued",
		"queue", job.Queue,
		"job_id", job.ID,
		"document_id", job.DocumentID,
	)

	return Handle{JobID: job.ID, Queue: job.Queue}, nil
}

// Counts возвращает счётчики по всем очередям.
func (b *MemoryBroker) Counts(_ context.Context) (Counts, error) {
	if !b.available.Load() {
		return Counts{}, fmt.Errorf("%w: simulated outage", ErrUnavailable)
	}

	b.mu.Lock()
	queues := make([]*memQueue, 0, len(b.queues))
	for _, q := range b.queues {
		queues = append(queues, q)
	}
	completed := len(b.completed)
	failed := len(b.failed)
	b.mu.Unlock()

	var waiting, active int64
	for _, q := range queues {
		ready, inflight := q.stats()
		waiting += int64(ready)
		active += int64(inflight)
	}

	return Counts{
		Waiting:   waiting + b.delayed.Load(),
		Active:    active,
		Completed: int64(completed),
		Failed:    int64(failed),
	}, nil
}

// Consume запускает concurrency слотов обработки и блокирует до отмены ctx.
// Каждый слот обрабатывает одну задачу до конца, прежде чем взять следующую.
func (b *MemoryBroker) Consume(ctx context.Context, queueName string, concurrency int, handler Handler) error {
	if concurrency < 1 {
		concurrency = 1
	}
	q := b.queue(queueName)

	var wg sync.WaitGroup
	for slot := 0; slot < concurrency; slot++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.slotLoop(ctx, q, handler)
		}()
	}

	b.logger.Info("consumer started", "queue", queueName, "concurrency", concurrency)

	wg.Wait()
	return ctx.Err()
}

// slotLoop — цикл одного слота обработки.
func (b *MemoryBroker) slotLoop(ctx context.Context, q *memQueue, handler Handler) {
	for {
		if ctx.Err() != nil {
			return
		}

		e := q.pop()
		if e == nil {
			select {
			case <-ctx.Done():
				return
			case <-q.signal:
				continue
			}
		}

		b.deliver(ctx, q, e, handler)
	}
}

// deliver выполняет одну попытку и решает судьбу задачи.
func (b *MemoryBroker) deliver(ctx context.Context, q *memQueue, e *entry, handler Handler) {
	e.attempt++
	job := e.job
	job.Attempt = e.attempt

	err := safeHandle(ctx, handler, job)
	defer q.done()

	if err == nil {
		b.retain(&b.completed, e.opts.RetainCompleted, JobRecord{
			Job: job, Attempts: e.attempt, FinishedAt: time.Now().UTC(),
		})
		return
	}

	if e.attempt >= e.opts.MaxAttempts {
		b.logger.Warn("job attempts exhausted",
			"queue", job.Queue,
			"job_id", job.ID,
			"attempts", e.attempt,
			"error", err,
		)
		b.retain(&b.failed, e.opts.RetainFailed, JobRecord{
			Job: job, Attempts: e.attempt, Error: err.Error(), FinishedAt: time.Now().UTC(),
		})
		return
	}

	delay := e.opts.Backoff.Delay(e.attempt)
	b.logger.Debug("job scheduled for retry",
		"queue", job.Queue,
		"job_id", job.ID,
		"attempt", e.attempt,
		"delay", delay,
		"error", err,
	)
	b.schedule(q, e, delay)
}

// schedule возвращает задачу в очередь после задержки.
func (b *MemoryBroker) schedule(q *memQueue, e *entry, delay time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.delayed.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		b.mu.Lock()
		delete(b.timers, timer)
		b.mu.Unlock()

		q.push(e)
		b.delayed.Add(-1)
	})
	b.timers[timer] = struct{}{}
}

// retain добавляет запись в список, обрезая его до limit последних.
func (b *MemoryBroker) retain(list *[]JobRecord, limit int, rec JobRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit == 0 {
		return
	}
	*list = append(*list, rec)
	if over := len(*list) - limit; over > 0 {
		*list = append((*list)[:0:0], (*list)[over:]...)
	}
}

// Completed возвращает копию списка завершённых задач.
func (b *MemoryBroker) Completed() []JobRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]JobRecord(nil), b.completed...)
}

// Failed возвращает копию списка окончательно упавших задач.
func (b *MemoryBroker) Failed() []JobRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]JobRecord(nil), b.failed...)
}

// WaitIdle ждёт, пока в брокере не останется ожидающих и активных задач.
func (b *MemoryBroker) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()

	for {
		b.mu.Lock()
		var busy int
		for _, q := range b.queues {
			ready, inflight := q.stats()
			busy += ready + inflight
		}
		b.mu.Unlock()

		if busy == 0 && b.delayed.Load() == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close останавливает отложенные повторы. Новые Enqueue отклоняются.
func (b *MemoryBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for timer := range b.timers {
		if timer.Stop() {
			b.delayed.Add(-1)
		}
	}
	b.timers = nil
}

// safeHandle вызывает handler, превращая панику в ошибку попытки.
func safeHandle(ctx context.Context, handler Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}
