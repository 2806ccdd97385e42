// fiscal-api — HTTP API выпуска фискальных документов.
//
// API:
//   - принимает запросы на выпуск и ставит задачи в очередь
//   - при недоступности брокера выполняет попытку синхронно
//   - отдаёт документы, их PDF и состояние очереди
//
// В LOCAL_MODE всё (хранилище, брокер, worker) живёт в памяти процесса.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/fiscaldoc/internal/api"
	"github.com/shaiso/fiscaldoc/internal/config"
	"github.com/shaiso/fiscaldoc/internal/ledger"
	"github.com/shaiso/fiscaldoc/internal/mq"
	"github.com/shaiso/fiscaldoc/internal/orchestrator"
	"github.com/shaiso/fiscaldoc/internal/provider"
	"github.com/shaiso/fiscaldoc/internal/queue"
	"github.com/shaiso/fiscaldoc/internal/repo"
	"github.com/shaiso/fiscaldoc/internal/repo/memory"
	"github.com/shaiso/fiscaldoc/internal/telemetry"
	"github.com/shaiso/fiscaldoc/internal/worker"
)

var startTime = time.Now()

// deps — собранные зависимости процесса.
type deps struct {
	store     repo.DocumentStore
	directory api.Directory
	broker    queue.Broker
	lease     worker.Lease
	events    *mq.Publisher
	closers   []func()
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func main() {
	cfg := config.Load()

	logger := telemetry.SetupLogger("fiscal-api", cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting fiscal-api", "local_mode", cfg.LocalMode)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	prov, err := provider.FromSettings(cfg.ProviderSettings())
	if err != nil {
		logger.Error("failed to create provider", "error", err)
		os.Exit(1)
	}

	var d *deps
	var local *worker.Worker
	if cfg.LocalMode {
		d, local = setupLocal(cfg, prov, logger)
	} else {
		d, err = setupInfra(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to set up infrastructure", "error", err)
			os.Exit(1)
		}
	}
	defer d.close()

	// worker без Consumer: только синхронный fallback
	inline := worker.New(worker.Config{
		Store:           d.store,
		Directory:       d.directory,
		Provider:        prov,
		Lease:           d.lease,
		Events:          eventPublisher(d.events),
		ProviderTimeout: cfg.ProviderTimeout,
		LeaseTTL:        cfg.LeaseTTL,
		ArtifactBaseURL: cfg.ArtifactBaseURL,
		Logger:          logger,
	})

	orch := orchestrator.New(orchestrator.Config{
		Store:           d.store,
		Broker:          d.broker,
		Execute:         inline.Handle,
		Provider:        prov,
		Events:          orchestratorEvents(d.events),
		Options:         cfg.JobOptions(),
		ProviderTimeout: cfg.ProviderTimeout,
		Logger:          logger,
	})

	if local != nil {
		if err := local.Start(ctx); err != nil {
			logger.Error("failed to start local worker", "error", err)
			os.Exit(1)
		}
		defer local.Stop()
	}

	handler := api.NewHandler(api.Config{
		Orchestrator: orch,
		Directory:    d.directory,
		Logger:       logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}

// setupLocal собирает pipeline в памяти процесса.
func setupLocal(cfg config.Config, prov provider.Provider, logger *slog.Logger) (*deps, *worker.Worker) {
	store := memory.NewStore()
	directory := memory.NewDirectory()
	broker := queue.NewMemoryBroker(logger)
	lease := worker.NewLocalLease()

	w := worker.New(worker.Config{
		Store:           store,
		Directory:       directory,
		Provider:        prov,
		Consumer:        broker,
		Lease:           lease,
		Concurrency:     cfg.WorkerConcurrency,
		ProviderTimeout: cfg.ProviderTimeout,
		LeaseTTL:        cfg.LeaseTTL,
		ArtifactBaseURL: cfg.ArtifactBaseURL,
		Logger:          logger,
	})

	return &deps{
		store:     store,
		directory: directory,
		broker:    broker,
		lease:     lease,
		closers:   []func(){broker.Close},
	}, w
}

// setupInfra подключает PostgreSQL, Redis и RabbitMQ.
// Недоступный RabbitMQ не мешает старту: выпуск идёт через fallback.
func setupInfra(ctx context.Context, cfg config.Config, logger *slog.Logger) (*deps, error) {
	d := &deps{}

	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	d.closers = append(d.closers, pool.Close)
	logger.Info("connected to database")

	if err := repo.Migrate(ctx, pool); err != nil {
		d.close()
		return nil, err
	}

	d.store = repo.NewDocumentRepo(pool)
	d.directory = repo.NewDirectoryRepo(pool)

	rdb, err := ledger.Connect(ctx, cfg.RedisURL)
	if err != nil {
		d.close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	d.closers = append(d.closers, func() { rdb.Close() })
	d.lease = ledger.NewLease(rdb, "", logger)
	logger.Info("connected to redis")

	conn, err := mq.NewConnection(cfg.RabbitMQURL, "fiscal-api", logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, issuing inline", "error", err)
		return d, nil
	}
	d.closers = append(d.closers, func() { conn.Close() })

	if err := mq.SetupTopology(ctx, conn, cfg.JobOptions()); err != nil {
		logger.Warn("failed to setup topology", "error", err)
	}

	broker := mq.NewBroker(conn, ledger.New(rdb, ledger.Config{}), cfg.JobOptions(), logger)
	d.broker = broker
	d.events = broker.Publisher()
	logger.Info("connected to rabbitmq")

	return d, nil
}

// eventPublisher не даёт nil *mq.Publisher превратиться в непустой интерфейс.
func eventPublisher(p *mq.Publisher) worker.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}

func orchestratorEvents(p *mq.Publisher) orchestrator.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}
