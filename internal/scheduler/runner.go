package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultSchedule = "*/5 * * * *"

// Runner запускает Reconciler по cron-расписанию, только на лидере.
type Runner struct {
	reconciler *Reconciler
	locker     Locker
	spec       string

	cron       *cron.Cron
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	stopped    bool
	stoppedMu  sync.RWMutex
}

// RunnerConfig — конфигурация Runner.
type RunnerConfig struct {
	Reconciler *Reconciler

	// Locker (опционально; если nil — экземпляр всегда лидер).
	Locker Locker

	// Schedule — cron-выражение (default: "*/5 * * * *").
	Schedule string

	Logger *slog.Logger
}

// NewRunner создаёт Runner. Ошибка — невалидное расписание.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	spec := cfg.Schedule
	if spec == "" {
		spec = defaultSchedule
	}
	if err := ValidateCronExpr(spec); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cl := cronLogger{logger: logger}
	return &Runner{
		reconciler: cfg.Reconciler,
		locker:     cfg.Locker,
		spec:       spec,
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
	}, nil
}

// Start регистрирует задачу и запускает расписание.
func (r *Runner) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancelFunc = cancel

	if _, err := r.cron.AddFunc(r.spec, func() { r.RunOnce(ctx) }); err != nil {
		cancel()
		return err
	}

	r.logger.Info("starting reconciler", "schedule", r.spec)
	r.cron.Start()
	return nil
}

// Stop останавливает расписание, дожидается текущего прохода
// и отдаёт лидерство.
func (r *Runner) Stop() {
	r.stoppedMu.Lock()
	r.stopped = true
	r.stoppedMu.Unlock()

	r.logger.Info("stopping reconciler...")

	if r.cancelFunc != nil {
		r.cancelFunc()
	}
	<-r.cron.Stop().Done()

	if r.locker != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.locker.Unlock(ctx); err != nil {
			r.logger.Warn("failed to release leadership", "error", err)
		}
	}

	r.logger.Info("reconciler stopped")
}

// IsStopped проверяет, остановлен ли Runner.
func (r *Runner) IsStopped() bool {
	r.stoppedMu.RLock()
	defer r.stoppedMu.RUnlock()
	return r.stopped
}

// RunOnce выполняет один проход, если экземпляр лидер.
// Возвращает false, если проход пропущен.
func (r *Runner) RunOnce(ctx context.Context) bool {
	if r.locker != nil {
		leader, err := r.locker.TryLock(ctx)
		if err != nil {
			r.logger.Error("leader election failed", "error", err)
			return false
		}
		if !leader {
			r.logger.Debug("not a leader, skipping reconcile tick")
			return false
		}
	}

	if _, err := r.reconciler.Tick(ctx); err != nil {
		r.logger.Error("reconcile tick failed", "error", err)
	}
	return true
}
