package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultHTTPTimeout = 30 * time.Second

// maxResponseBytes — предел размера ответа шлюза.
const maxResponseBytes = 1 << 20

// HTTPProvider — клиент JSON-шлюза интеграции с муниципальной системой.
//
// Эндпоинты шлюза:
//   - POST {base}/documents               — выпуск (тело: Request)
//   - POST {base}/documents/{n}/cancel    — отмена (тело: {"reason": "..."})
//   - GET  {base}/documents/{n}           — состояние документа
//
// Ответ шлюза — Result в JSON. HTTP >= 400 считается бизнес-ошибкой,
// тело ответа попадает в ErrorMessage. Сетевые ошибки и таймауты
// возвращаются как error с ErrRequest.
type HTTPProvider struct {
	baseURL string
	token   string
	timeout time.Duration
	client  *http.Client
}

// HTTPConfig — конфигурация HTTPProvider.
type HTTPConfig struct {
	BaseURL string
	Token   string

	// Timeout — таймаут одного вызова. Default: 30s.
	Timeout time.Duration

	// Client — опционально; если nil — http.Client без таймаута
	// (таймаут задаётся через context).
	Client *http.Client
}

// NewHTTP создаёт HTTPProvider.
func NewHTTP(cfg HTTPConfig) (*HTTPProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base url is required", ErrRequest)
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: parse base url: %v", ErrRequest, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}

	return &HTTPProvider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		timeout: timeout,
		client:  client,
	}, nil
}

// Issue выпускает документ через шлюз.
func (p *HTTPProvider) Issue(ctx context.Context, req Request) (*Result, error) {
	return p.do(ctx, http.MethodPost, "/documents", req)
}

// Cancel отменяет документ через шлюз.
func (p *HTTPProvider) Cancel(ctx context.Context, documentNumber, reason string) (*Result, error) {
	path := "/documents/" + url.PathEscape(documentNumber) + "/cancel"
	return p.do(ctx, http.MethodPost, path, map[string]string{"reason": reason})
}

// Query запрашивает документ у шлюза.
func (p *HTTPProvider) Query(ctx context.Context, documentNumber string) (*Result, error) {
	return p.do(ctx, http.MethodGet, "/documents/"+url.PathEscape(documentNumber), nil)
}

// do выполняет запрос и разбирает ответ.
func (p *HTTPProvider) do(ctx context.Context, method, path string, body any) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// Подготавливаем body
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal body: %v", ErrRequest, err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrRequest, err)
	}
	req.Header.Set("Accept", "application/json")
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrRequest, err)
	}
	if len(respBody) > maxResponseBytes {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrRequest, maxResponseBytes)
	}

	// HTTP >= 400 — бизнес-ошибка шлюза
	if resp.StatusCode >= 400 {
		return &Result{
			Success:      false,
			ErrorMessage: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(extractMessage(respBody), 200)),
		}, nil
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrRequest, err)
	}

	return &result, nil
}

// extractMessage достаёт error_message из JSON-тела, иначе возвращает тело как есть.
func extractMessage(body []byte) string {
	var payload struct {
		ErrorMessage string `json:"error_message"`
		Message      string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.ErrorMessage != "" {
			return payload.ErrorMessage
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(body))
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
