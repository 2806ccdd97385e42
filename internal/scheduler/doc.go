// Package scheduler переотправляет зависшие документы по расписанию.
//
// Структура:
//   - reconciler.go — Reconciler: выборка PROCESSING документов старше StaleAfter
//     и повторная отправка через Orchestrator.Dispatch
//   - runner.go     — Runner: запуск Reconciler по cron-расписанию
//   - leader.go     — выбор лидера через pg_try_advisory_lock
//   - cron.go       — парсинг cron-выражений
//
// Использование:
//
//	rec := scheduler.NewReconciler(scheduler.ReconcilerConfig{
//	    Store:      documentRepo,
//	    Dispatcher: orch,
//	    StaleAfter: 15 * time.Minute,
//	    Logger:     logger,
//	})
//
//	runner, err := scheduler.NewRunner(scheduler.RunnerConfig{
//	    Reconciler: rec,
//	    Locker:     scheduler.NewAdvisoryLock(pool, scheduler.ReconcilerLockKey),
//	    Schedule:   "*/5 * * * *",
//	    Logger:     logger,
//	})
//	runner.Start(ctx)
//	defer runner.Stop()
//
// Tick выполняет только лидер: остальные экземпляры пропускают проход.
package scheduler
