// Package provider — граница с внешней системой выпуска фискальных документов.
//
// # Обзор
//
// Provider выполняет реальный внешний вызов: выпуск, отмена и запрос
// документа. Pipeline не знает протокол конкретного муниципалитета
// и работает только с интерфейсом:
//
//	type Provider interface {
//	    Issue(ctx context.Context, req Request) (*Result, error)
//	    Cancel(ctx context.Context, documentNumber, reason string) (*Result, error)
//	    Query(ctx context.Context, documentNumber string) (*Result, error)
//	}
//
// # Реализации
//
//   - MockProvider — симуляция: успех с заданной вероятностью,
//     правдоподобные номера и протоколы. Используется в тестах и local-режиме.
//   - HTTPProvider — JSON-шлюз интеграции (POST /documents, ...).
//
// # Ошибки
//
// Пакет различает два уровня ошибок, как и воркер:
//   - Инфраструктурные (error) — сеть, таймаут, DNS
//   - Бизнес-ошибки (Result.Success=false, Result.ErrorMessage) — неверный ИНН,
//     отказ государственного API
//
// Для pipeline оба уровня — одинаковая ошибка провайдера: попытка
// записывается как FAILED и брокер планирует следующую.
//
// Вызовы должны быть безопасны для повторения: pipeline гарантирует
// только at-least-once вызов провайдера.
package provider
