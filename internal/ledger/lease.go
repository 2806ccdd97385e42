package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript удаляет ключ, только если он всё ещё принадлежит владельцу.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease — аренды документов в Redis (SET NX PX).
//
// Аренда гарантирует, что в каждый момент времени для документа
// выполняется не более одной попытки выпуска, даже если в очереди
// оказалось несколько задач на один документ.
type Lease struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// NewLease создаёт Lease.
func NewLease(client redis.UniversalClient, prefix string, logger *slog.Logger) *Lease {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Lease{client: client, prefix: prefix, logger: logger}
}

// Acquire пытается взять аренду документа на ttl.
// ok=false — аренда занята другой попыткой.
// release освобождает аренду, только если она всё ещё наша.
func (l *Lease) Acquire(ctx context.Context, documentID string, ttl time.Duration) (func(), bool, error) {
	if ttl <= 0 || ttl > LeaseKeyTTL {
		ttl = LeaseKeyTTL
	}

	key := leaseKey(l.prefix, documentID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, wrap(err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// контекст попытки к этому моменту может быть уже отменён
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// неснятая аренда истечёт сама через ttl
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("failed to release lease",
				"document_id", documentID,
				"ttl", ttl,
				"error", err,
			)
		}
	}
	return release, true, nil
}
