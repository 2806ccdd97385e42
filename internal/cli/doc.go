// Package cli реализует инструмент командной строки fiscal-cli.
//
// CLI работает с fiscal API по HTTP и не импортирует внутренние пакеты.
//
// # Client
//
// HTTP-клиент, разбирающий конверты DataResponse, ListResponse и ErrorResponse:
//
//	client := cli.NewClient("http://localhost:8080")
//	docs, err := client.ListDocuments("tenant-1", cli.ListDocumentsOpts{Status: "FAILED"})
//
// # Output
//
// Таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные пишутся в stdout, сообщения в stderr:
//
//	fiscal-cli doc list --tenant t1 --json | jq .
//
// # Commands
//
//   - doc: issue, list, show, retry, cancel, verify, pdf
//   - directory: billable, subject
//   - queue: health
//
// Фабрики команд (NewDocCmd и др.) принимают clientFn и outputFn,
// чтобы Client и Output создавались после разбора PersistentFlags.
package cli
