// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go           — Handler с DI (orchestrator, справочник, renderer, logger)
//   - routes.go            — регистрация маршрутов
//   - middleware.go        — middleware (logging, recovery)
//   - response.go          — унифицированные JSON-ответы и обработка ошибок
//   - dto.go               — Data Transfer Objects (request/response)
//   - document_handler.go  — обработчики для /tenants/{tenant}/documents и /queue
//   - directory_handler.go — обработчики для /tenants/{tenant}/billables и /subjects
//
// Ошибки возвращаются в виде {"error": {"code": "...", "message": "..."}}.
package api
