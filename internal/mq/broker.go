package mq

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/fiscaldoc/internal/queue"
)

// Broker — production-реализация queue.Broker и queue.Consumer:
// задачи живут в RabbitMQ, счётчики active/completed/failed — в Redis ledger.
type Broker struct {
	conn      *Connection
	publisher *Publisher
	ledger    Ledger
	opts      queue.Options
	logger    *slog.Logger
}

// NewBroker создаёт Broker. opts определяют очереди ожидания,
// которые учитываются в Counts.
func NewBroker(conn *Connection, l Ledger, opts queue.Options, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		conn:      conn,
		publisher: NewPublisher(conn, logger),
		ledger:    l,
		opts:      opts,
		logger:    logger,
	}
}

// Publisher возвращает publisher брокера (для событий документов).
func (b *Broker) Publisher() *Publisher {
	return b.publisher
}

// Enqueue публикует задачу. Любая ошибка публикации — ErrUnavailable.
func (b *Broker) Enqueue(ctx context.Context, job queue.Job, opts queue.Options) (queue.Handle, error) {
	if err := opts.Validate(); err != nil {
		return queue.Handle{}, err
	}
	if !b.conn.IsConnected() {
		return queue.Handle{}, fmt.Errorf("%w: %w", queue.ErrUnavailable, ErrNotConnected)
	}
	if job.Queue == "" {
		job.Queue = queue.IssuanceQueue
	}

	if err := b.publisher.PublishIssuance(ctx, job, opts); err != nil {
		return queue.Handle{}, fmt.Errorf("%w: %v", queue.ErrUnavailable, err)
	}

	return queue.Handle{JobID: job.ID, Queue: job.Queue}, nil
}

// Counts собирает счётчики: waiting — сообщения в рабочей очереди
// и очередях ожидания повтора, остальное — из ledger.
func (b *Broker) Counts(ctx context.Context) (queue.Counts, error) {
	names := []Queue{QueueIssuance}
	for _, delay := range RetryTiers(b.opts) {
		names = append(names, RetryQueue(delay))
	}

	var waiting int64
	err := b.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, name := range names {
			q, err := ch.QueueDeclarePassive(string(name), true, false, false, false, nil)
			if err != nil {
				return fmt.Errorf("inspect queue %s: %w", name, err)
			}
			waiting += int64(q.Messages)
		}
		return nil
	})
	if err != nil {
		return queue.Counts{}, fmt.Errorf("%w: %v", queue.ErrUnavailable, err)
	}

	snap, err := b.ledger.Counts(ctx)
	if err != nil {
		return queue.Counts{}, fmt.Errorf("%w: %v", queue.ErrUnavailable, err)
	}

	return queue.Counts{
		Waiting:   waiting,
		Active:    snap.Active,
		Completed: snap.Completed,
		Failed:    snap.Failed,
	}, nil
}

// Consume потребляет очередь до отмены ctx.
func (b *Broker) Consume(ctx context.Context, queueName string, concurrency int, handler queue.Handler) error {
	c := NewConsumer(b.conn, b.publisher, b.ledger, b.logger, ConsumerConfig{
		Queue:       queueName,
		Concurrency: concurrency,
		Handler:     handler,
	})
	return c.Start(ctx)
}
