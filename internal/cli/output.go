package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
)

// Output печатает результаты команд.
//
// Данные (таблицы документов, карточки, JSON) идут в stdout,
// статусные сообщения — в stderr, чтобы вывод можно было передать в pipe.
type Output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
}

// NewOutput создаёт Output поверх stdout/stderr.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(os.Stdout, os.Stderr, jsonMode)
}

// NewOutputTo создаёт Output с заданными потоками вывода.
func NewOutputTo(w, errW io.Writer, jsonMode bool) *Output {
	return &Output{jsonMode: jsonMode, w: w, errW: errW}
}

const (
	// emptyCell подставляется вместо nil и пустых значений.
	emptyCell = "-"

	// maxCellWidth — ширина ячейки таблицы, дальше текст обрезается.
	// В карточке значения выводятся целиком.
	maxCellWidth = 60
)

// Field — строка карточки.
type Field struct {
	Name  string
	Value string
}

var docHeaders = []string{"ID", "BILLABLE", "STATUS", "NUMBER", "RETRIES", "ERROR", "UPDATED"}

func docRow(d DocumentResponse) []string {
	return []string{
		d.ID,
		d.BillableReferenceID,
		d.Status,
		deref(d.DocumentNumber),
		strconv.Itoa(d.RetryCount),
		deref(d.LastError),
		d.UpdatedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Documents выводит список документов таблицей.
func (o *Output) Documents(docs []DocumentResponse) {
	rows := make([][]string, len(docs))
	for i, d := range docs {
		rows[i] = docRow(d)
	}
	o.Print(docHeaders, rows, docs)
}

// Document выводит карточку документа.
func (o *Output) Document(doc *DocumentResponse) {
	fields := []Field{
		{"ID", doc.ID},
		{"Tenant", doc.TenantID},
		{"Billable", doc.BillableReferenceID},
		{"Subject", doc.SubjectID},
		{"Status", doc.Status},
		{"Number", deref(doc.DocumentNumber)},
		{"Protocol", deref(doc.Protocol)},
		{"Artifact", deref(doc.ArtifactURL)},
		{"Retries", strconv.Itoa(doc.RetryCount)},
		{"Last error", deref(doc.LastError)},
	}
	if doc.CancelReason != nil {
		fields = append(fields,
			Field{"Cancel reason", *doc.CancelReason},
			Field{"Cancelled at", doc.CancelledAt},
		)
	}
	fields = append(fields,
		Field{"Created", doc.CreatedAt},
		Field{"Updated", doc.UpdatedAt},
	)
	o.Card(fields, doc)
}

// Print выводит строки таблицей или jsonData в JSON-режиме.
// Пустой результат в табличном режиме сообщается в stderr.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.writeJSON(jsonData)
		return
	}
	if len(rows) == 0 {
		fmt.Fprintln(o.errW, "No results")
		return
	}

	tw := o.tabwriter()
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = truncateCell(orEmpty(c))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
}

// Card выводит одну запись парами "поле: значение".
func (o *Output) Card(fields []Field, jsonData any) {
	if o.jsonMode {
		o.writeJSON(jsonData)
		return
	}

	tw := o.tabwriter()
	for _, f := range fields {
		fmt.Fprintf(tw, "%s:\t%s\n", f.Name, orEmpty(f.Value))
	}
	tw.Flush()
}

// Success выводит статусное сообщение в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

func (o *Output) tabwriter() *tabwriter.Writer {
	return tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
}

func (o *Output) writeJSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func orEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return emptyCell
	}
	return s
}

// truncateCell обрезает значение по рунам и убирает переводы строк,
// которые ломают выравнивание tabwriter.
func truncateCell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= maxCellWidth {
		return s
	}
	return string(r[:maxCellWidth-1]) + "…"
}
