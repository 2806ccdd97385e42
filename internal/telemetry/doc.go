// Package telemetry обеспечивает наблюдаемость сервисов.
//
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики (экспортируются на /metrics)
package telemetry
