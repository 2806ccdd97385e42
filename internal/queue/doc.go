// Package queue описывает контракт брокера задач выпуска.
//
// Брокер — внешняя инфраструктура с at-least-once доставкой:
//
//   - Enqueue(ctx, job, opts) — принять задачу; ошибка означает, что брокер
//     недоступен (вызывающий переходит в fallback)
//   - Consume(ctx, queue, concurrency, handler) — вызывать handler с
//     фиксированным числом слотов; ошибка handler'а → повторная доставка
//     через backoff, пока не исчерпан MaxAttempts
//   - Counts(ctx) — счётчики waiting/active/completed/failed
//
// Вся логика расписания попыток живёт в брокере; handler выполняет
// ровно одну попытку.
//
// Реализации:
//   - MemoryBroker — in-process брокер (тесты, local-режим)
//   - mq.Broker — RabbitMQ + Redis ledger (production)
package queue
