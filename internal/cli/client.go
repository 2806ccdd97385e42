package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// DocumentResponse — документ из API.
type DocumentResponse struct {
	ID                  string  `json:"id"`
	TenantID            string  `json:"tenant_id"`
	BillableReferenceID string  `json:"billable_reference_id"`
	SubjectID           string  `json:"subject_id"`
	Status              string  `json:"status"`
	DocumentNumber      *string `json:"document_number"`
	Protocol            *string `json:"protocol"`
	ArtifactURL         *string `json:"artifact_url"`
	RawDocumentBody     *string `json:"raw_document_body,omitempty"`
	RetryCount          int     `json:"retry_count"`
	LastError           *string `json:"last_error"`
	CancelReason        *string `json:"cancel_reason,omitempty"`
	CancelledAt         string  `json:"cancelled_at,omitempty"`
	CreatedAt           string  `json:"created_at"`
	UpdatedAt           string  `json:"updated_at"`
}

// VerifyResponse — результат сверки с провайдером.
type VerifyResponse struct {
	DocumentNumber string `json:"document_number"`
	Protocol       string `json:"protocol,omitempty"`
	ArtifactURL    string `json:"artifact_url,omitempty"`
	Matches        bool   `json:"matches"`
}

// QueueHealth — состояние очереди.
type QueueHealth struct {
	Available bool  `json:"available"`
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// --- Request types ---

// IssueDocumentRequest — запрос на выпуск.
type IssueDocumentRequest struct {
	BillableReferenceID string `json:"billable_reference_id"`
	SubjectID           string `json:"subject_id"`
}

// BillableRequest — сохранение счёта.
type BillableRequest struct {
	SubjectID   string `json:"subject_id,omitempty"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	ServiceDate string `json:"service_date,omitempty"`
}

// SubjectRequest — сохранение получателя.
type SubjectRequest struct {
	Name  string `json:"name"`
	TaxID string `json:"tax_id"`
	Email string `json:"email,omitempty"`
}

// ListDocumentsOpts — параметры фильтрации документов.
type ListDocumentsOpts struct {
	Status string
	Limit  int
	Offset int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для fiscal API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Documents ---

func documentsPath(tenantID string) string {
	return "/api/v1/tenants/" + url.PathEscape(tenantID) + "/documents"
}

// IssueDocument запрашивает выпуск документа.
func (c *Client) IssueDocument(tenantID string, req IssueDocumentRequest) (*DocumentResponse, error) {
	var doc DocumentResponse
	err := c.post(documentsPath(tenantID), req, &doc)
	return &doc, err
}

// ListDocuments возвращает документы tenant'а, новые первыми.
func (c *Client) ListDocuments(tenantID string, opts ListDocumentsOpts) ([]DocumentResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", fmt.Sprintf("%d", opts.Offset))
	}

	var docs []DocumentResponse
	err := c.list(documentsPath(tenantID), params, &docs)
	return docs, err
}

// GetDocument возвращает документ по ID.
func (c *Client) GetDocument(tenantID, id string) (*DocumentResponse, error) {
	var doc DocumentResponse
	err := c.get(documentsPath(tenantID)+"/"+url.PathEscape(id), &doc)
	return &doc, err
}

// RetryDocument отправляет FAILED документ на новую попытку.
func (c *Client) RetryDocument(tenantID, id string) (*DocumentResponse, error) {
	var doc DocumentResponse
	err := c.post(documentsPath(tenantID)+"/"+url.PathEscape(id)+"/retry", nil, &doc)
	return &doc, err
}

// CancelDocument отменяет выпущенный документ.
func (c *Client) CancelDocument(tenantID, id, reason string) (*DocumentResponse, error) {
	var doc DocumentResponse
	body := map[string]string{"reason": reason}
	err := c.post(documentsPath(tenantID)+"/"+url.PathEscape(id)+"/cancel", body, &doc)
	return &doc, err
}

// VerifyDocument сверяет документ с провайдером.
func (c *Client) VerifyDocument(tenantID, id string) (*VerifyResponse, error) {
	var res VerifyResponse
	err := c.get(documentsPath(tenantID)+"/"+url.PathEscape(id)+"/verify", &res)
	return &res, err
}

// DownloadPDF возвращает печатную форму документа.
func (c *Client) DownloadPDF(tenantID, id string) ([]byte, error) {
	resp, err := c.do(http.MethodGet, documentsPath(tenantID)+"/"+url.PathEscape(id)+"/pdf", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// --- Directory ---

// PutBillable сохраняет счёт.
func (c *Client) PutBillable(tenantID, id string, req BillableRequest) error {
	return c.put("/api/v1/tenants/"+url.PathEscape(tenantID)+"/billables/"+url.PathEscape(id), req, nil)
}

// PutSubject сохраняет получателя.
func (c *Client) PutSubject(tenantID, id string, req SubjectRequest) error {
	return c.put("/api/v1/tenants/"+url.PathEscape(tenantID)+"/subjects/"+url.PathEscape(id), req, nil)
}

// --- Queue ---

// QueueHealth возвращает состояние очереди.
// Недоступный брокер (503) возвращается как Available=false без ошибки.
func (c *Client) QueueHealth() (*QueueHealth, error) {
	resp, err := c.do(http.MethodGet, "/api/v1/queue/health", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return &QueueHealth{Available: false}, nil
	}
	if err := c.checkError(resp); err != nil {
		return nil, err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	var health QueueHealth
	if err := json.Unmarshal(dr.Data, &health); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &health, nil
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
