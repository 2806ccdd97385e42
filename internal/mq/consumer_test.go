package mq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/fiscaldoc/internal/ledger"
	"github.com/shaiso/fiscaldoc/internal/queue"
)

type fakeAck struct {
	mu      sync.Mutex
	acked   int
	nacked  int
	requeue bool
}

func (a *fakeAck) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked++
	return nil
}

func (a *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked++
	a.requeue = requeue
	return nil
}

func (a *fakeAck) Reject(uint64, bool) error { return nil }

type fakeLedger struct {
	mu  sync.Mutex
	ops []string
}

func (l *fakeLedger) record(op string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
	return nil
}

func (l *fakeLedger) Started(_ context.Context, id string) error  { return l.record("started:" + id) }
func (l *fakeLedger) Released(_ context.Context, id string) error { return l.record("released:" + id) }
func (l *fakeLedger) Completed(_ context.Context, id string, _ int) error {
	return l.record("completed:" + id)
}
func (l *fakeLedger) Failed(_ context.Context, id string, _ int) error {
	return l.record("failed:" + id)
}
func (l *fakeLedger) Counts(context.Context) (ledger.Snapshot, error) { return ledger.Snapshot{}, nil }

func delivery(t *testing.T, ack amqp.Acknowledger, payload IssuancePayload) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(newMessage(MessageTypeIssuance, payload))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return amqp.Delivery{Acknowledger: ack, Body: body, MessageId: payload.Job.ID}
}

// newOfflineConsumer — consumer без соединения: любая публикация падает с ErrNotConnected.
func newOfflineConsumer(l Ledger, h queue.Handler) *Consumer {
	conn := &Connection{}
	return NewConsumer(conn, NewPublisher(conn, nil), l, nil, ConsumerConfig{
		Queue:   string(QueueIssuance),
		Handler: h,
	})
}

func TestConsumer_SuccessAcksAndCompletes(t *testing.T) {
	l := &fakeLedger{}
	var got queue.Job
	c := newOfflineConsumer(l, func(_ context.Context, job queue.Job) error {
		got = job
		return nil
	})

	ack := &fakeAck{}
	job := queue.NewIssuanceJob("t1", uuid.New())
	c.handleDelivery(context.Background(), delivery(t, ack, IssuancePayload{Job: job, Options: queue.DefaultOptions()}))

	if ack.acked != 1 || ack.nacked != 0 {
		t.Errorf("expected ack, got acked=%d nacked=%d", ack.acked, ack.nacked)
	}
	if got.Attempt != 1 || got.DocumentID != job.DocumentID {
		t.Errorf("unexpected job passed to handler %+v", got)
	}
	if len(l.ops) != 2 || l.ops[0] != "started:"+job.ID || l.ops[1] != "completed:"+job.ID {
		t.Errorf("unexpected ledger ops %v", l.ops)
	}
}

func TestConsumer_RetryPublishFailureRequeues(t *testing.T) {
	l := &fakeLedger{}
	c := newOfflineConsumer(l, func(context.Context, queue.Job) error {
		return errors.New("provider down")
	})

	ack := &fakeAck{}
	job := queue.NewIssuanceJob("t1", uuid.New())
	c.handleDelivery(context.Background(), delivery(t, ack, IssuancePayload{Job: job, Options: queue.DefaultOptions()}))

	if ack.nacked != 1 || !ack.requeue {
		t.Errorf("expected nack with requeue, got %+v", ack)
	}
	if l.ops[len(l.ops)-1] != "released:"+job.ID {
		t.Errorf("active mark should be released, ops %v", l.ops)
	}
}

func TestConsumer_ExhaustedMarksFailed(t *testing.T) {
	l := &fakeLedger{}
	c := newOfflineConsumer(l, func(context.Context, queue.Job) error {
		return errors.New("rejected")
	})

	opts := queue.DefaultOptions()
	opts.MaxAttempts = 3
	job := queue.NewIssuanceJob("t1", uuid.New())
	job.Attempt = 2

	ack := &fakeAck{}
	c.handleDelivery(context.Background(), delivery(t, ack, IssuancePayload{Job: job, Options: opts}))

	if len(l.ops) != 2 || l.ops[1] != "failed:"+job.ID {
		t.Errorf("expected failed in ledger, ops %v", l.ops)
	}
	// DLQ недоступен, сообщение возвращается в очередь
	if ack.nacked != 1 || !ack.requeue {
		t.Errorf("expected requeue when dlq publish fails, got %+v", ack)
	}
}

func TestConsumer_PanicIsFailedAttempt(t *testing.T) {
	l := &fakeLedger{}
	c := newOfflineConsumer(l, func(context.Context, queue.Job) error {
		panic("boom")
	})

	opts := queue.DefaultOptions()
	opts.MaxAttempts = 1
	ack := &fakeAck{}
	job := queue.NewIssuanceJob("t1", uuid.New())
	c.handleDelivery(context.Background(), delivery(t, ack, IssuancePayload{Job: job, Options: opts}))

	if len(l.ops) != 2 || l.ops[1] != "failed:"+job.ID {
		t.Errorf("panic should count as failed attempt, ops %v", l.ops)
	}
}

func TestDecodeIssuance(t *testing.T) {
	job := queue.NewIssuanceJob("t1", uuid.New())
	body, _ := json.Marshal(newMessage(MessageTypeIssuance, IssuancePayload{Job: job, Options: queue.DefaultOptions()}))

	payload, err := decodeIssuance(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Job.ID != job.ID || payload.Options.MaxAttempts != 5 {
		t.Errorf("unexpected payload %+v", payload)
	}
	if payload.Options.Backoff.BaseDelay != 5*time.Second {
		t.Errorf("backoff should survive encoding, got %v", payload.Options.Backoff.BaseDelay)
	}

	if _, err := decodeIssuance([]byte("not json")); err == nil {
		t.Error("expected error for invalid json")
	}

	wrongType, _ := json.Marshal(newMessage(MessageTypeEvent, job))
	if _, err := decodeIssuance(wrongType); err == nil {
		t.Error("expected error for wrong message type")
	}

	noID, _ := json.Marshal(newMessage(MessageTypeIssuance, IssuancePayload{}))
	if _, err := decodeIssuance(noID); err == nil {
		t.Error("expected error for empty job id")
	}
}

func TestBroker_EnqueueWhenDisconnected(t *testing.T) {
	b := NewBroker(&Connection{}, &fakeLedger{}, queue.DefaultOptions(), nil)

	_, err := b.Enqueue(context.Background(), queue.NewIssuanceJob("t1", uuid.New()), queue.DefaultOptions())
	if !errors.Is(err, queue.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}

	if _, err := b.Counts(context.Background()); !errors.Is(err, queue.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable from Counts, got %v", err)
	}
}
