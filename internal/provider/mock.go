package provider

import (
	"context"
	"encoding/xml"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultMockSuccessRate = 0.8

// MockProvider — симуляция провайдера.
//
// Возвращает успех с вероятностью SuccessRate и синтезирует
// правдоподобные идентификаторы. Используется для проверки retry-пути.
type MockProvider struct {
	mu          sync.Mutex
	successRate float64
	rng         *rand.Rand
	latency     time.Duration
	artifactURL string
	failMessage string

	issued map[string]*Result
	calls  int
}

// MockConfig — конфигурация MockProvider.
type MockConfig struct {
	// SuccessRate — вероятность успеха в [0, 1]. Default: 0.8.
	// Отрицательное значение означает "всегда ошибка".
	SuccessRate float64

	// Seed — seed генератора (0 — текущее время).
	Seed int64

	// Latency — искусственная задержка ответа.
	Latency time.Duration

	// ArtifactBaseURL — префикс artifact URL ("" — не заполнять).
	ArtifactBaseURL string

	// FailMessage — сообщение для неуспешного результата.
	FailMessage string
}

// NewMock создаёт MockProvider.
func NewMock(cfg MockConfig) *MockProvider {
	rate := cfg.SuccessRate
	switch {
	case rate < 0:
		rate = 0
	case rate == 0:
		rate = defaultMockSuccessRate
	case rate > 1:
		rate = 1
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	failMsg := cfg.FailMessage
	if failMsg == "" {
		failMsg = "municipal service unavailable"
	}

	return &MockProvider{
		successRate: rate,
		rng:         rand.New(rand.NewSource(seed)),
		latency:     cfg.Latency,
		artifactURL: cfg.ArtifactBaseURL,
		failMessage: failMsg,
		issued:      make(map[string]*Result),
	}
}

// AlwaysSucceed создаёт MockProvider, который всегда выпускает документ.
func AlwaysSucceed() *MockProvider {
	return NewMock(MockConfig{SuccessRate: 1})
}

// AlwaysFail создаёт MockProvider, который всегда отклоняет запрос.
func AlwaysFail(message string) *MockProvider {
	return NewMock(MockConfig{SuccessRate: -1, FailMessage: message})
}

// SetSuccessRate меняет вероятность успеха во время работы.
func (p *MockProvider) SetSuccessRate(rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.successRate = min(max(rate, 0), 1)
}

// Calls возвращает количество вызовов Issue.
func (p *MockProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Issue симулирует выпуск документа.
func (p *MockProvider) Issue(ctx context.Context, req Request) (*Result, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return &Result{Success: false, ErrorMessage: err.Error()}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++

	if p.rng.Float64() >= p.successRate {
		return &Result{Success: false, ErrorMessage: p.failMessage}, nil
	}

	now := time.Now()
	number := fmt.Sprintf("NFS-%s-%06d", now.Format("20060102"), p.rng.Intn(1_000_000))
	res := &Result{
		Success:         true,
		DocumentNumber:  number,
		Protocol:        uuid.NewString(),
		RawDocumentBody: mockDocumentBody(number, req),
	}
	if p.artifactURL != "" {
		res.ArtifactURL = p.artifactURL + "/" + number + ".pdf"
	}
	p.issued[number] = res

	return res, nil
}

// Cancel симулирует отмену. Неизвестный номер — бизнес-ошибка.
func (p *MockProvider) Cancel(ctx context.Context, documentNumber, reason string) (*Result, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	res, ok := p.issued[documentNumber]
	if !ok {
		return &Result{Success: false, ErrorMessage: "document not found: " + documentNumber}, nil
	}
	delete(p.issued, documentNumber)

	return &Result{
		Success:        true,
		DocumentNumber: documentNumber,
		Protocol:       res.Protocol,
	}, nil
}

// Query возвращает ранее выпущенный документ.
func (p *MockProvider) Query(ctx context.Context, documentNumber string) (*Result, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	res, ok := p.issued[documentNumber]
	if !ok {
		return &Result{Success: false, ErrorMessage: "document not found: " + documentNumber}, nil
	}
	c := *res
	return &c, nil
}

// wait применяет искусственную задержку с учётом context.
func (p *MockProvider) wait(ctx context.Context) error {
	if p.latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(p.latency):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrRequest, ctx.Err())
	}
}

func mockDocumentBody(number string, req Request) string {
	return fmt.Sprintf(
		`<nfse><numero>%s</numero><tomador><nome>%s</nome><documento>%s</documento></tomador>`+
			`<servico><discriminacao>%s</discriminacao><valor>%d.%02d</valor></servico>`+
			`<emissao>%s</emissao></nfse>`,
		xmlText(number), xmlText(req.SubjectName), xmlText(req.SubjectTaxID), xmlText(req.ServiceDescription),
		req.AmountCents/100, req.AmountCents%100, req.IssueDate.Format("2006-01-02"),
	)
}

// xmlText экранирует s для текстового узла XML.
func xmlText(s string) string {
	var b strings.Builder
	// запись в strings.Builder не возвращает ошибок
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
