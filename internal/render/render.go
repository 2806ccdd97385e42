// Package render строит печатную форму выпущенного документа (PDF).
package render

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/shaiso/fiscaldoc/internal/domain"
)

// ErrNotRenderable — печатная форма есть только у ISSUED и CANCELLED документов.
var ErrNotRenderable = errors.New("document has no printable form")

// Document — данные печатной формы.
type Document struct {
	Record   *domain.IssuanceRecord
	Billable *domain.Billable
	Subject  *domain.Subject
}

// PDFRenderer строит PDF через maroto.
type PDFRenderer struct {
	// Title — заголовок формы (default: "Nota Fiscal de Serviço").
	Title string
}

// NewPDFRenderer создаёт PDFRenderer.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{Title: "Nota Fiscal de Serviço"}
}

// Render возвращает PDF документа.
func (r *PDFRenderer) Render(ctx context.Context, d Document) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec := d.Record
	if rec == nil || rec.DocumentNumber == nil {
		return nil, ErrNotRenderable
	}
	switch rec.Status {
	case domain.DocumentStatusIssued, domain.DocumentStatusCancelled:
	default:
		return nil, fmt.Errorf("%w: status %s", ErrNotRenderable, rec.Status)
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Página {current} de {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	title := r.Title
	if title == "" {
		title = "Nota Fiscal de Serviço"
	}
	m.AddRow(20,
		text.NewCol(8, title, props.Text{Size: 18, Style: fontstyle.Bold, Align: align.Left}),
		text.NewCol(4, "Nº "+domain.Deref(rec.DocumentNumber), props.Text{Size: 12, Style: fontstyle.Bold, Align: align.Right, Top: 3}),
	)

	m.AddRow(18,
		col.New(6).Add(
			text.New("Protocolo: "+domain.Deref(rec.Protocol), props.Text{Size: 9}),
			text.New("Emitente: "+rec.TenantID, props.Text{Size: 9, Top: 5}),
			text.New("Referência: "+rec.BillableReferenceID, props.Text{Size: 9, Top: 10}),
		),
		col.New(6).Add(
			text.New("Emitido em: "+rec.UpdatedAt.UTC().Format("2006-01-02 15:04 MST"), props.Text{Size: 9, Align: align.Right}),
			text.New("Documento: "+rec.ID.String(), props.Text{Size: 7, Align: align.Right, Top: 5}),
		),
	)

	m.AddRow(4, line.NewCol(12))

	if s := d.Subject; s != nil {
		m.AddRow(18,
			col.New(12).Add(
				text.New("Tomador", props.Text{Style: fontstyle.Bold}),
				text.New(s.Name, props.Text{Top: 5}),
				text.New("CPF/CNPJ: "+s.TaxID, props.Text{Size: 9, Top: 10}),
			),
		)
	}

	if b := d.Billable; b != nil {
		m.AddRow(10,
			text.NewCol(9, "Discriminação do serviço", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.NewCol(3, "Valor", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		)
		m.AddRow(12,
			text.NewCol(9, b.Description, props.Text{Size: 9}),
			text.NewCol(3, FormatAmount(b.AmountCents), props.Text{Size: 9, Align: align.Right}),
		)
	}

	if rec.Status == domain.DocumentStatusCancelled {
		m.AddRow(4, line.NewCol(12))
		m.AddRow(12,
			text.NewCol(12, "CANCELADA: "+domain.Deref(rec.CancelReason), props.Text{
				Size:  12,
				Style: fontstyle.Bold,
				Color: &props.Color{Red: 200},
			}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate pdf: %w", err)
	}
	return doc.GetBytes(), nil
}

// FormatAmount форматирует сумму в центах как "R$ 1.234,56".
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}

	units := strconv.FormatInt(cents/100, 10)
	var grouped []byte
	for i, c := range []byte(units) {
		if i > 0 && (len(units)-i)%3 == 0 {
			grouped = append(grouped, '.')
		}
		grouped = append(grouped, c)
	}

	return fmt.Sprintf("%sR$ %s,%02d", sign, grouped, cents%100)
}
