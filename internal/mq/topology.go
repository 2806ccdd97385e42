package mq

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/fiscaldoc/internal/queue"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

// Exchanges.
const (
	ExchangeIssuance Exchange = "fiscal.issuance"
	ExchangeRetry    Exchange = "fiscal.retry"
	ExchangeDLQ      Exchange = "fiscal.dlq"
	ExchangeEvents   Exchange = "fiscal.events"
)

// Queues.
const (
	QueueIssuance Queue = Queue(queue.IssuanceQueue)
	QueueDLQ      Queue = "fiscal.issuance.dlq"
)

// Routing keys.
const (
	RoutingKeyIssue RoutingKey = "issue"
	RoutingKeyDead  RoutingKey = "dead"
)

// Очереди ожидания повтора: по одной на каждую задержку.
// TTL задаётся на уровне очереди, поэтому все сообщения в ней истекают
// в порядке поступления и короткая задержка не ждёт за длинной.
const (
	retryQueuePrefix = "fiscal.issuance.retry."
	retryKeyPrefix   = "retry."
)

// retryDelay приводит задержку к целым миллисекундам, минимум 1мс:
// нулевой TTL вернул бы сообщение мгновенно.
func retryDelay(d time.Duration) time.Duration {
	return max(d.Truncate(time.Millisecond), time.Millisecond)
}

// RetryQueue возвращает имя очереди ожидания для задержки.
func RetryQueue(delay time.Duration) Queue {
	return Queue(retryQueuePrefix + strconv.FormatInt(retryDelay(delay).Milliseconds(), 10))
}

// RetryRoutingKey возвращает ключ маршрутизации в очередь ожидания.
func RetryRoutingKey(delay time.Duration) RoutingKey {
	return RoutingKey(retryKeyPrefix + strconv.FormatInt(retryDelay(delay).Milliseconds(), 10))
}

// RetryTiers возвращает различные задержки повторов для opts,
// по возрастанию.
func RetryTiers(opts queue.Options) []time.Duration {
	var tiers []time.Duration
	for attempt := 1; attempt < opts.MaxAttempts; attempt++ {
		d := retryDelay(opts.Backoff.Delay(attempt))
		if !slices.Contains(tiers, d) {
			tiers = append(tiers, d)
		}
	}
	slices.Sort(tiers)
	return tiers
}

// retryQueueArgs — аргументы очереди ожидания: истёкшие сообщения
// возвращаются в рабочую очередь через dead-letter.
func retryQueueArgs(delay time.Duration) amqp.Table {
	return amqp.Table{
		"x-message-ttl":             retryDelay(delay).Milliseconds(),
		"x-dead-letter-exchange":    string(ExchangeIssuance),
		"x-dead-letter-routing-key": string(RoutingKeyIssue),
	}
}

// declareRetryTier объявляет очередь ожидания для delay и привязывает её
// к fiscal.retry.
func declareRetryTier(ch *amqp.Channel, delay time.Duration) error {
	name := RetryQueue(delay)
	_, err := ch.QueueDeclare(
		string(name),          // name
		true,                  // durable
		false,                 // delete when unused
		false,                 // exclusive
		false,                 // no-wait
		retryQueueArgs(delay), // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}

	key := RetryRoutingKey(delay)
	if err := ch.QueueBind(string(name), string(key), string(ExchangeRetry), false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", name, ExchangeRetry, err)
	}
	return nil
}

// SetupTopology объявляет exchanges, очереди и привязки, включая очереди
// ожидания для всех задержек opts. Идемпотентно.
func SetupTopology(ctx context.Context, conn *Connection, opts queue.Options) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		if err := bindQueues(ch); err != nil {
			return err
		}
		for _, delay := range RetryTiers(opts) {
			if err := declareRetryTier(ch, delay); err != nil {
				return err
			}
		}
		return nil
	})
}

func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeIssuance, amqp.ExchangeDirect},
		{ExchangeRetry, amqp.ExchangeDirect},
		{ExchangeDLQ, amqp.ExchangeDirect},
		{ExchangeEvents, amqp.ExchangeTopic},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}
	return nil
}

func declareQueues(ch *amqp.Channel) error {
	for _, name := range []Queue{QueueIssuance, QueueDLQ} {
		_, err := ch.QueueDeclare(
			string(name), // name
			true,         // durable
			false,        // delete when unused
			false,        // exclusive
			false,        // no-wait
			nil,          // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}
	}
	return nil
}

func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueIssuance, RoutingKeyIssue, ExchangeIssuance},
		{QueueDLQ, RoutingKeyDead, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Fiscal RabbitMQ Topology:

    fiscal.issuance (direct)
    └── fiscal.issuance [routing: issue]
            Consumer: fiscal-worker

    fiscal.retry (direct)
    └── fiscal.issuance.retry.<ms> [routing: retry.<ms>]
            one queue per backoff delay, x-message-ttl = <ms>,
            dead-letter → fiscal.issuance/issue

    fiscal.dlq (direct)
    └── fiscal.issuance.dlq [routing: dead]
            attempts exhausted, manual processing

    fiscal.events (topic)
    └── document.issued | document.failed | document.cancelled
`
}
