// Package worker выполняет попытки выпуска фискальных документов.
//
// # Обзор
//
// Worker потребляет задачи очереди fiscal.issuance и для каждой
// выполняет ровно одну попытку выпуска через Provider. Повторы
// планирует брокер: ошибка Handle означает неудачную попытку.
//
//	w := worker.New(worker.Config{
//	    Store:     store,
//	    Directory: directory,
//	    Provider:  provider,
//	    Consumer:  broker,
//	    Lease:     ledger.NewLease(redisClient, "fiscal", logger),
//	    Events:    publisher,
//	    Logger:    logger,
//	})
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// # Попытка
//
//  1. Аренда документа. Если её держит другая попытка — ErrAttemptInFlight
//     без изменения записи.
//  2. Загрузка записи. ISSUED и CANCELLED пропускаются, FAILED
//     возвращается в PROCESSING.
//  3. Сборка запроса из Billable и Subject.
//  4. Вызов провайдера с таймаутом ProviderTimeout.
//  5. Успех → ISSUED и событие document.issued.
//     Отказ → FAILED (RetryCount+1), событие document.failed и ErrProviderFailure.
//
// Handle не зависит от брокера, поэтому Orchestrator вызывает его
// синхронно, когда очередь недоступна.
//
// # Аренда
//
// LocalLease работает в пределах процесса. Для нескольких экземпляров
// используется ledger.Lease поверх Redis. Ошибка инфраструктуры аренды
// не блокирует попытку.
package worker
