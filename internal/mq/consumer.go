package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/fiscaldoc/internal/ledger"
	"github.com/shaiso/fiscaldoc/internal/queue"
)

// Ledger — учёт состояния задач, которого нет в RabbitMQ.
type Ledger interface {
	Started(ctx context.Context, jobID string) error
	Released(ctx context.Context, jobID string) error
	Completed(ctx context.Context, jobID string, retain int) error
	Failed(ctx context.Context, jobID string, retain int) error
	Counts(ctx context.Context) (ledger.Snapshot, error)
}

// Consumer потребляет задачи выпуска из очереди.
//
// Каждая доставка — одна попытка. После попытки сообщение всегда
// подтверждается, а дальнейшая судьба задачи решается публикацией:
//   - успех → ledger completed
//   - ошибка, попытки остались → fiscal.retry, очередь ожидания задержки backoff
//   - ошибка, попытки исчерпаны → fiscal.dlq, ledger failed
type Consumer struct {
	conn        *Connection
	publisher   *Publisher
	ledger      Ledger
	logger      *slog.Logger
	queue       string
	concurrency int
	handler     queue.Handler
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	Queue       string
	Concurrency int
	Handler     queue.Handler
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, publisher *Publisher, l Ledger, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		conn:        conn,
		publisher:   publisher,
		ledger:      l,
		logger:      logger,
		queue:       cfg.Queue,
		concurrency: cfg.Concurrency,
		handler:     cfg.Handler,
	}
}

// Start блокирует до отмены ctx, переподключаясь при разрывах.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "queue", c.queue, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				c.logger.Info("reconnected, restarting consumer", "queue", c.queue)
				continue
			}
		}

		c.logger.Info("consumer started", "queue", c.queue, "concurrency", c.concurrency)

		c.runSlots(ctx, deliveries)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Warn("deliveries channel closed, waiting for reconnect", "queue", c.queue)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
		}
	}
}

func (c *Consumer) setupConsume() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNotConnected
	}

	// prefetch = concurrency: брокер не отдаст больше сообщений, чем слотов
	if err := ch.Qos(c.concurrency, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queue, // queue
		"",      // consumer tag
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

// runSlots запускает concurrency слотов и ждёт, пока все завершатся.
func (c *Consumer) runSlots(ctx context.Context, deliveries <-chan amqp.Delivery) {
	var wg sync.WaitGroup
	for i := 0; i < c.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case raw, ok := <-deliveries:
					if !ok {
						return
					}
					c.handleDelivery(ctx, raw)
				}
			}
		}()
	}
	wg.Wait()
}

func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	payload, err := decodeIssuance(raw.Body)
	if err != nil {
		c.logger.Error("failed to decode message",
			"queue", c.queue,
			"message_id", raw.MessageId,
			"error", err,
		)
		c.deadLetter(ctx, raw, DeadPayload{Error: err.Error()})
		return
	}

	job := payload.Job
	job.Attempt++
	opts := payload.Options
	if opts.MaxAttempts < 1 {
		opts = queue.DefaultOptions()
	}

	c.note(c.ledger.Started(ctx, job.ID), "started", job.ID)

	herr := safeHandle(ctx, c.handler, job)
	if herr == nil {
		c.note(c.ledger.Completed(ctx, job.ID, opts.RetainCompleted), "completed", job.ID)
		raw.Ack(false)
		return
	}

	if job.Attempt >= opts.MaxAttempts {
		c.logger.Warn("job attempts exhausted",
			"queue", c.queue,
			"job_id", job.ID,
			"document_id", job.DocumentID,
			"attempts", job.Attempt,
			"error", herr,
		)
		c.note(c.ledger.Failed(ctx, job.ID, opts.RetainFailed), "failed", job.ID)
		c.deadLetter(ctx, raw, DeadPayload{Job: job, Attempts: job.Attempt, Error: herr.Error()})
		return
	}

	delay := opts.Backoff.Delay(job.Attempt)
	if err := c.publisher.PublishRetry(ctx, IssuancePayload{Job: job, Options: opts}, delay); err != nil {
		// счётчик попыток этой доставки теряется, но задача не пропадает
		c.logger.Error("failed to schedule retry, requeueing",
			"job_id", job.ID,
			"error", err,
		)
		c.note(c.ledger.Released(ctx, job.ID), "released", job.ID)
		raw.Nack(false, true)
		return
	}

	c.logger.Debug("job scheduled for retry",
		"job_id", job.ID,
		"document_id", job.DocumentID,
		"attempt", job.Attempt,
		"delay", delay,
		"error", herr,
	)
	c.note(c.ledger.Released(ctx, job.ID), "released", job.ID)
	raw.Ack(false)
}

// deadLetter публикует задачу в DLQ и подтверждает исходное сообщение.
func (c *Consumer) deadLetter(ctx context.Context, raw amqp.Delivery, payload DeadPayload) {
	if err := c.publisher.PublishDead(ctx, payload); err != nil {
		c.logger.Error("failed to publish to dlq", "message_id", raw.MessageId, "error", err)
		raw.Nack(false, true)
		return
	}
	raw.Ack(false)
}

// note логирует ошибку ledger'а. Ledger вспомогательный, попытку он не прерывает.
func (c *Consumer) note(err error, op, jobID string) {
	if err != nil {
		c.logger.Warn("ledger update failed", "op", op, "job_id", jobID, "error", err)
	}
}

func decodeIssuance(body []byte) (IssuancePayload, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return IssuancePayload{}, fmt.Errorf("unmarshal message: %w", err)
	}
	if msg.Type != MessageTypeIssuance {
		return IssuancePayload{}, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	payload, err := ParsePayload[IssuancePayload](&msg)
	if err != nil {
		return IssuancePayload{}, err
	}
	if payload.Job.ID == "" {
		return IssuancePayload{}, fmt.Errorf("job id is empty")
	}
	return payload, nil
}

// ParsePayload разбирает payload сообщения в указанный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(payloadBytes, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}

func safeHandle(ctx context.Context, handler queue.Handler, job queue.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}
