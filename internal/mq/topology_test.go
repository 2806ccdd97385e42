package mq

import (
	"slices"
	"testing"
	"time"

	"github.com/shaiso/fiscaldoc/internal/queue"
)

func TestRetryTiers_DefaultOptions(t *testing.T) {
	got := RetryTiers(queue.DefaultOptions())
	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second}

	if !slices.Equal(got, want) {
		t.Errorf("expected tiers %v, got %v", want, got)
	}
}

func TestRetryTiers_CappedAndFixed(t *testing.T) {
	capped := queue.Options{
		MaxAttempts: 6,
		Backoff: queue.Backoff{
			Kind:      queue.BackoffExponential,
			BaseDelay: time.Second,
			MaxDelay:  3 * time.Second,
		},
	}
	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	if got := RetryTiers(capped); !slices.Equal(got, want) {
		t.Errorf("expected capped tiers %v, got %v", want, got)
	}

	fixed := queue.Options{
		MaxAttempts: 4,
		Backoff:     queue.Backoff{Kind: queue.BackoffFixed, BaseDelay: 2 * time.Second},
	}
	if got := RetryTiers(fixed); !slices.Equal(got, []time.Duration{2 * time.Second}) {
		t.Errorf("expected single fixed tier, got %v", got)
	}

	single := queue.Options{MaxAttempts: 1, Backoff: queue.Backoff{BaseDelay: time.Second}}
	if got := RetryTiers(single); len(got) != 0 {
		t.Errorf("expected no tiers for one attempt, got %v", got)
	}
}

func TestRetryQueueNames(t *testing.T) {
	tests := []struct {
		delay     time.Duration
		wantQueue Queue
		wantKey   RoutingKey
	}{
		{5 * time.Second, "fiscal.issuance.retry.5000", "retry.5000"},
		{10 * time.Minute, "fiscal.issuance.retry.600000", "retry.600000"},
		{1500 * time.Microsecond, "fiscal.issuance.retry.1", "retry.1"},
		{0, "fiscal.issuance.retry.1", "retry.1"},
	}

	for _, tt := range tests {
		if got := RetryQueue(tt.delay); got != tt.wantQueue {
			t.Errorf("RetryQueue(%v) = %q, want %q", tt.delay, got, tt.wantQueue)
		}
		if got := RetryRoutingKey(tt.delay); got != tt.wantKey {
			t.Errorf("RetryRoutingKey(%v) = %q, want %q", tt.delay, got, tt.wantKey)
		}
	}
}

func TestRetryQueueArgs(t *testing.T) {
	for _, delay := range RetryTiers(queue.DefaultOptions()) {
		args := retryQueueArgs(delay)

		ttl, ok := args["x-message-ttl"].(int64)
		if !ok || ttl != delay.Milliseconds() {
			t.Errorf("tier %v: expected x-message-ttl %d, got %v", delay, delay.Milliseconds(), args["x-message-ttl"])
		}
		if args["x-dead-letter-exchange"] != string(ExchangeIssuance) {
			t.Errorf("tier %v: expected dead-letter exchange %s, got %v", delay, ExchangeIssuance, args["x-dead-letter-exchange"])
		}
		if args["x-dead-letter-routing-key"] != string(RoutingKeyIssue) {
			t.Errorf("tier %v: expected dead-letter routing key %s, got %v", delay, RoutingKeyIssue, args["x-dead-letter-routing-key"])
		}
	}
}

func TestRetryTiers_DistinctQueuePerDelay(t *testing.T) {
	// короткая задержка не должна делить очередь с длинной
	seen := make(map[Queue]time.Duration)
	for _, delay := range RetryTiers(queue.DefaultOptions()) {
		name := RetryQueue(delay)
		if prev, ok := seen[name]; ok {
			t.Fatalf("delays %v and %v share queue %s", prev, delay, name)
		}
		seen[name] = delay
	}
}
