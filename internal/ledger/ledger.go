package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Snapshot — счётчики задач из ledger.
type Snapshot struct {
	Active    int64
	Completed int64
	Failed    int64
}

// Config — конфигурация Ledger.
type Config struct {
	// Prefix — префикс ключей (по умолчанию "fiscal").
	Prefix string

	// ActiveTTL — возраст, после которого активная запись не учитывается.
	ActiveTTL time.Duration
}

// Ledger — учёт состояния задач в Redis.
//
// Активные задачи — ZSET со временем начала в score.
// Завершённые и упавшие — ZSET со временем окончания, обрезаемые
// до заданного количества последних записей.
type Ledger struct {
	client    redis.UniversalClient
	prefix    string
	activeTTL time.Duration
	now       func() time.Time
}

// New создаёт Ledger поверх существующего клиента.
func New(client redis.UniversalClient, cfg Config) *Ledger {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.ActiveTTL <= 0 {
		cfg.ActiveTTL = ActiveTTL
	}
	return &Ledger{
		client:    client,
		prefix:    cfg.Prefix,
		activeTTL: cfg.ActiveTTL,
		now:       time.Now,
	}
}

// Connect создаёт клиента по URL (redis://...) и проверяет соединение.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	return client, nil
}

// Started отмечает начало попытки.
func (l *Ledger) Started(ctx context.Context, jobID string) error {
	err := l.client.ZAdd(ctx, activeKey(l.prefix), redis.Z{
		Score:  float64(l.now().UnixMilli()),
		Member: jobID,
	}).Err()
	return wrap(err)
}

// Released снимает отметку активности (попытка неудачна, будет повтор).
func (l *Ledger) Released(ctx context.Context, jobID string) error {
	return wrap(l.client.ZRem(ctx, activeKey(l.prefix), jobID).Err())
}

// Completed переносит задачу в завершённые, сохраняя не более retain последних.
func (l *Ledger) Completed(ctx context.Context, jobID string, retain int) error {
	return l.finish(ctx, completedKey(l.prefix), jobID, retain)
}

// Failed переносит задачу в окончательно упавшие, сохраняя не более retain последних.
func (l *Ledger) Failed(ctx context.Context, jobID string, retain int) error {
	return l.finish(ctx, failedKey(l.prefix), jobID, retain)
}

func (l *Ledger) finish(ctx context.Context, key, jobID string, retain int) error {
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, activeKey(l.prefix), jobID)
		if retain <= 0 {
			pipe.ZRem(ctx, key, jobID)
			return nil
		}
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(l.now().UnixMilli()),
			Member: jobID,
		})
		pipe.ZRemRangeByRank(ctx, key, 0, int64(-retain-1))
		return nil
	})
	return wrap(err)
}

// Counts возвращает счётчики. Осиротевшие активные записи удаляются.
func (l *Ledger) Counts(ctx context.Context) (Snapshot, error) {
	cutoff := l.now().Add(-l.activeTTL).UnixMilli()

	var active, completed, failed *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, activeKey(l.prefix), "-inf", "("+strconv.FormatInt(cutoff, 10))
		active = pipe.ZCard(ctx, activeKey(l.prefix))
		completed = pipe.ZCard(ctx, completedKey(l.prefix))
		failed = pipe.ZCard(ctx, failedKey(l.prefix))
		return nil
	})
	if err != nil {
		return Snapshot{}, wrap(err)
	}

	return Snapshot{
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
