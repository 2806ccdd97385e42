// fiscal-reconciler — переотправка зависших документов.
//
// По cron-расписанию лидер (pg_advisory_lock) находит документы,
// слишком долго остающиеся в PROCESSING, и снова ставит их в очередь.
// Повторная задача безопасна: worker пропускает уже выпущенные
// документы и не запускает две попытки одновременно.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/fiscaldoc/internal/config"
	"github.com/shaiso/fiscaldoc/internal/ledger"
	"github.com/shaiso/fiscaldoc/internal/mq"
	"github.com/shaiso/fiscaldoc/internal/orchestrator"
	"github.com/shaiso/fiscaldoc/internal/repo"
	"github.com/shaiso/fiscaldoc/internal/scheduler"
	"github.com/shaiso/fiscaldoc/internal/telemetry"
)

func main() {
	cfg := config.Load()

	logger := telemetry.SetupLogger("fiscal-reconciler", cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting fiscal-reconciler",
		"schedule", cfg.ReconcileSchedule,
		"stale_after", cfg.ReconcileStaleAfter,
	)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	rdb, err := ledger.Connect(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	conn, err := mq.NewConnection(cfg.RabbitMQURL, "fiscal-reconciler", logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := mq.SetupTopology(ctx, conn, cfg.JobOptions()); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}

	store := repo.NewDocumentRepo(pool)

	// без Execute: неудачная постановка повторится на следующем тике
	orch := orchestrator.New(orchestrator.Config{
		Store:   store,
		Broker:  mq.NewBroker(conn, ledger.New(rdb, ledger.Config{}), cfg.JobOptions(), logger),
		Options: cfg.JobOptions(),
		Logger:  logger,
	})

	runner, err := scheduler.NewRunner(scheduler.RunnerConfig{
		Reconciler: scheduler.NewReconciler(scheduler.ReconcilerConfig{
			Store:      store,
			Dispatcher: orch,
			StaleAfter: cfg.ReconcileStaleAfter,
			Logger:     logger,
		}),
		Locker:   scheduler.NewAdvisoryLock(pool, scheduler.ReconcilerLockKey),
		Schedule: cfg.ReconcileSchedule,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to create runner", "error", err)
		os.Exit(1)
	}

	if err := runner.Start(ctx); err != nil {
		logger.Error("failed to start runner", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              ":" + cfg.ReconcilerPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	runner.Stop()
	logger.Info("fiscal-reconciler stopped")
}
