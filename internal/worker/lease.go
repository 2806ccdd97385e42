package worker

import (
	"context"
	"sync"
	"time"
)

// Lease — аренда документа на время одной попытки выпуска.
//
// ok=false означает, что аренду держит другая попытка. release
// освобождает аренду и должна вызываться при ok=true.
type Lease interface {
	Acquire(ctx context.Context, documentID string, ttl time.Duration) (release func(), ok bool, err error)
}

type localLeaseEntry struct {
	token uint64
	until time.Time
}

// LocalLease — аренды в пределах одного процесса (local-режим и тесты).
type LocalLease struct {
	mu   sync.Mutex
	held map[string]localLeaseEntry
	next uint64
	now  func() time.Time
}

// NewLocalLease создаёт LocalLease.
func NewLocalLease() *LocalLease {
	return &LocalLease{
		held: make(map[string]localLeaseEntry),
		now:  time.Now,
	}
}

// Acquire берёт аренду, если она свободна или истекла.
func (l *LocalLease) Acquire(_ context.Context, documentID string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.held[documentID]; ok && now.Before(cur.until) {
		return nil, false, nil
	}

	l.next++
	token := l.next
	l.held[documentID] = localLeaseEntry{token: token, until: now.Add(ttl)}

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		// истёкшая аренда могла перейти к другой попытке
		if cur, ok := l.held[documentID]; ok && cur.token == token {
			delete(l.held, documentID)
		}
	}
	return release, true, nil
}
