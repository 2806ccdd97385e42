// fiscal-worker — пул выпуска фискальных документов.
//
// Worker:
//   - получает задачи выпуска из RabbitMQ
//   - берёт аренду документа в Redis и вызывает провайдера
//   - сохраняет результат и публикует событие документа
//   - неудачные попытки повторяются через очередь ожидания с backoff
//
// Workers масштабируются горизонтально.
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
	"github.com/shaiso/fiscaldoc/internal/provider"
	"github.com/shaiso/fiscaldoc/internal/repo"
	"github.com/shaiso/fiscaldoc/internal/telemetry"
	"github.com/shaiso/fiscaldoc/internal/worker"
)

func main() {
	cfg := config.Load()

	logger := telemetry.SetupLogger("fiscal-worker", cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting fiscal-worker", "concurrency", cfg.WorkerConcurrency)

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
	logger.Info("redis connected")

	conn, err := mq.NewConnection(cfg.RabbitMQURL, "fiscal-worker", logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	logger.Info("rabbitmq connected")

	if err := mq.SetupTopology(ctx, conn, cfg.JobOptions()); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}
	logger.Debug("rabbitmq topology ready", "topology", mq.TopologyInfo())

	prov, err := provider.FromSettings(cfg.ProviderSettings())
	if err != nil {
		logger.Error("failed to create provider", "error", err)
		os.Exit(1)
	}

	broker := mq.NewBroker(conn, ledger.New(rdb, ledger.Config{}), cfg.JobOptions(), logger)

	w := worker.New(worker.Config{
		Store:           repo.NewDocumentRepo(pool),
		Directory:       repo.NewDirectoryRepo(pool),
		Provider:        prov,
		Consumer:        broker,
		Lease:           ledger.NewLease(rdb, "", logger),
		Events:          broker.Publisher(),
		Concurrency:     cfg.WorkerConcurrency,
		ProviderTimeout: cfg.ProviderTimeout,
		LeaseTTL:        cfg.LeaseTTL,
		ArtifactBaseURL: cfg.ArtifactBaseURL,
		Logger:          logger,
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !conn.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("rabbitmq disconnected"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              ":" + cfg.WorkerPort,
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

	w.Stop()
	logger.Info("fiscal-worker stopped")
}
