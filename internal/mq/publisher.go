package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/fiscaldoc/internal/domain"
	"github.com/shaiso/fiscaldoc/internal/queue"
)

// MessageType — тип сообщения.
type MessageType string

// Типы сообщений.
const (
	MessageTypeIssuance MessageType = "issuance.job"
	MessageTypeDead     MessageType = "issuance.dead"
	MessageTypeEvent    MessageType = "document.event"
)

// Message — конверт сообщения.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// IssuancePayload — задача выпуска вместе с параметрами доставки.
// Job.Attempt — количество уже выполненных попыток.
type IssuancePayload struct {
	Job     queue.Job     `json:"job"`
	Options queue.Options `json:"options"`
}

// DeadPayload — задача, исчерпавшая попытки.
type DeadPayload struct {
	Job      queue.Job `json:"job"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger

	tiersMu sync.Mutex
	tiers   map[time.Duration]bool
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger, tiers: make(map[time.Duration]bool)}
}

// publishing — параметры одной публикации.
type publishing struct {
	exchange   Exchange
	routingKey RoutingKey
	msg        *Message
	// prepare выполняется на том же канале перед публикацией.
	prepare func(ch *amqp.Channel) error
}

func (p *Publisher) publish(ctx context.Context, pub publishing) error {
	body, err := json.Marshal(pub.msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	out := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    pub.msg.ID,
		Type:         string(pub.msg.Type),
		Timestamp:    pub.msg.Timestamp,
		Body:         body,
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if pub.prepare != nil {
			if err := pub.prepare(ch); err != nil {
				return err
			}
		}
		if err := ch.PublishWithContext(ctx, string(pub.exchange), string(pub.routingKey), false, false, out); err != nil {
			return fmt.Errorf("publish to %s/%s: %w", pub.exchange, pub.routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", pub.exchange,
			"routing_key", pub.routingKey,
			"message_id", pub.msg.ID,
			"type", pub.msg.Type,
		)
		return nil
	})
}

func newMessage(t MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// PublishIssuance ставит задачу в рабочую очередь.
func (p *Publisher) PublishIssuance(ctx context.Context, job queue.Job, opts queue.Options) error {
	msg := newMessage(MessageTypeIssuance, IssuancePayload{Job: job, Options: opts})
	msg.ID = job.ID
	return p.publish(ctx, publishing{
		exchange:   ExchangeIssuance,
		routingKey: RoutingKeyIssue,
		msg:        msg,
	})
}

// PublishRetry откладывает задачу на delay в очереди ожидания этой задержки.
// Очередь объявляется при первом использовании: Options задачи могут
// отличаться от тех, с которыми вызывался SetupTopology.
func (p *Publisher) PublishRetry(ctx context.Context, payload IssuancePayload, delay time.Duration) error {
	delay = retryDelay(delay)
	msg := newMessage(MessageTypeIssuance, payload)
	msg.ID = payload.Job.ID
	return p.publish(ctx, publishing{
		exchange:   ExchangeRetry,
		routingKey: RetryRoutingKey(delay),
		msg:        msg,
		prepare: func(ch *amqp.Channel) error {
			return p.ensureRetryTier(ch, delay)
		},
	})
}

// ensureRetryTier объявляет очередь ожидания один раз на процесс.
// Неудачное объявление не кэшируется.
func (p *Publisher) ensureRetryTier(ch *amqp.Channel, delay time.Duration) error {
	p.tiersMu.Lock()
	defer p.tiersMu.Unlock()

	if p.tiers[delay] {
		return nil
	}
	if err := declareRetryTier(ch, delay); err != nil {
		return err
	}
	p.tiers[delay] = true
	return nil
}

// PublishDead отправляет задачу в DLQ.
func (p *Publisher) PublishDead(ctx context.Context, payload DeadPayload) error {
	msg := newMessage(MessageTypeDead, payload)
	return p.publish(ctx, publishing{
		exchange:   ExchangeDLQ,
		routingKey: RoutingKeyDead,
		msg:        msg,
	})
}

// PublishDocumentEvent публикует событие жизненного цикла документа.
// Routing key совпадает с типом события (document.issued, ...).
func (p *Publisher) PublishDocumentEvent(ctx context.Context, event domain.DocumentEvent) error {
	return p.publish(ctx, publishing{
		exchange:   ExchangeEvents,
		routingKey: RoutingKey(event.Type),
		msg:        newMessage(MessageTypeEvent, event),
	})
}
