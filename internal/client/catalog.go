package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"catalog/taxonomy/internal/config"
	"catalog/taxonomy/internal/domain"
	"catalog/taxonomy/internal/metrics"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"resty.dev/v3"
)

// CatalogClient is a thin transport over the Catalog API. It returns raw
// server shapes; normalization happens elsewhere.
type CatalogClient interface {
	ListCategories(ctx context.Context) (json.RawMessage, error)
	ListSubSubcategories(ctx context.Context, subcategoryID string) (json.RawMessage, error)

	CreateCategory(ctx context.Context, in domain.CategoryInput) (domain.RawRecord, error)
	UpdateCategory(ctx context.Context, id string, in domain.CategoryInput) (domain.RawRecord, error)
	DeleteCategory(ctx context.Context, id string) error
	ToggleCategoryStatus(ctx context.Context, id string) (domain.RawRecord, error)

	CreateSubcategory(ctx context.Context, in domain.SubcategoryInput) (domain.RawRecord, error)
	UpdateSubcategory(ctx context.Context, id string, in domain.SubcategoryInput) (domain.RawRecord, error)
	DeleteSubcategory(ctx context.Context, id string) error
	ToggleSubcategoryStatus(ctx context.Context, id string) (domain.RawRecord, error)

	CreateSubSubcategory(ctx context.Context, in domain.SubSubcategoryInput) (domain.RawRecord, error)
	UpdateSubSubcategory(ctx context.Context, id string, in domain.SubSubcategoryInput) (domain.RawRecord, error)
	DeleteSubSubcategory(ctx context.Context, id string) error
	ToggleSubSubcategoryStatus(ctx context.Context, id string) (domain.RawRecord, error)
}

type catalogClient struct {
	rl      ratelimit.Limiter
	config  config.CatalogConfig
	reader  *resty.Client
	writer  *resty.Client
	metrics *metrics.Metrics
}

// request describes one Catalog API call.
type request struct {
	op     string
	method string
	path   string
	id     string
	query  map[string]string
	body   any
}

func NewCatalogClient(cfg config.CatalogConfig, m *metrics.Metrics) CatalogClient {
	timeout := time.Duration(cfg.Timeout) * time.Second

	// Reads may be retried; writes never are.
	reader := newRestyClient(cfg, timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)
	writer := newRestyClient(cfg, timeout).
		SetRetryCount(0)

	rl := ratelimit.NewUnlimited()
	if cfg.MaxRequestsPerSecond > 0 {
		rl = ratelimit.New(cfg.MaxRequestsPerSecond)
	}

	return &catalogClient{
		rl:      rl,
		config:  cfg,
		reader:  reader,
		writer:  writer,
		metrics: m,
	}
}

func newRestyClient(cfg config.CatalogConfig, timeout time.Duration) *resty.Client {
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	if cfg.Token != "" {
		c.SetAuthToken(cfg.Token)
	}
	return c
}

func (c *catalogClient) ListCategories(ctx context.Context) (json.RawMessage, error) {
	body, err := c.do(ctx, request{op: "list-categories", method: http.MethodGet, path: "/categories"})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func (c *catalogClient) ListSubSubcategories(ctx context.Context, subcategoryID string) (json.RawMessage, error) {
	body, err := c.do(ctx, request{
		op:     "list-sub-subcategories",
		method: http.MethodGet,
		path:   "/sub-subcategories",
		query:  map[string]string{"subcategoryId": subcategoryID},
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func (c *catalogClient) CreateCategory(ctx context.Context, in domain.CategoryInput) (domain.RawRecord, error) {
	return c.record(ctx, request{op: "create-category", method: http.MethodPost, path: "/categories", body: in})
}

func (c *catalogClient) UpdateCategory(ctx context.Context, id string, in domain.CategoryInput) (domain.RawRecord, error) {
	return c.record(ctx, request{op: "update-category", method: http.MethodPut, path: "/categories/{id}", id: id, body: in})
}

func (c *catalogClient) DeleteCategory(ctx context.Context, id string) error {
	_, err := c.do(ctx, request{op: "delete-category", method: http.MethodDelete, path: "/categories/{id}", id: id})
	return err
}

func (c *catalogClient) ToggleCategoryStatus(ctx context.Context, id string) (domain.RawRecord, error) {
	return c.record(ctx, request{op: "toggle-category", method: http.MethodPatch, path: "/categories/{id}/toggle-status", id: id})
}

func (c *catalogClient) CreateSubcategory(ctx context.Context, in domain.SubcategoryInput) (domain.RawRecord, error) {
	return c.record(ctx, request{op: "create-subcategory", method: http.MethodPost, path: "/subcategory", body: in})
}

func (c *catalogClient) UpdateSubcategory(ctx context.Context, id string, in domain.SubcategoryInput) (domain.RawRecord, error) {
	return c.record(ctx, request{op: "update-subcategory", method: http.MethodPatch, path: "/subcategories/{id}", id: id, body: in})
}

func (c *catalogClient) DeleteSubcategory(ctx context.Context, id string) error {
	_, err := c.do(ctx, request{op: "delete-subcategory", method: http.MethodDelete, path: "/subcategory/{id}", id: id})
	return err
}

func (c *catalogClient) ToggleSubcategoryStatus(ctx context.Context, id string) (domain.RawRecord, error) {
	return c.record(ctx, request{op: "toggle-subcategory", method: http.MethodPatch, path: "/subcategory/{id}/status", id: id})
}

func (c *catalogClient) CreateSubSubcategory(ctx context.Context, in domain.SubSubcategoryInput) (domain.RawRecord, error) {
	return c.record(ctx, request{op: "create-sub-subcategory", method: http.MethodPost, path: "/sub-subcategory", body: in})
}

func (c *catalogClient) UpdateSubSubcategory(ctx context.Context, id string, in domain.SubSubcategoryInput) (domain.RawRecord, error) {
	return c.record(ctx, request{op: "update-sub-subcategory", method: http.MethodPatch, path: "/sub-subcategory/{id}", id: id, body: in})
}

func (c *catalogClient) DeleteSubSubcategory(ctx context.Context, id string) error {
	_, err := c.do(ctx, request{op: "delete-sub-subcategory", method: http.MethodDelete, path: "/sub-subcategory/{id}", id: id})
	return err
}

func (c *catalogClient) ToggleSubSubcategoryStatus(ctx context.Context, id string) (domain.RawRecord, error) {
	return c.record(ctx, request{op: "toggle-sub-subcategory", method: http.MethodPatch, path: "/sub-subcategory/{id}/status", id: id})
}

func (c *catalogClient) record(ctx context.Context, req request) (domain.RawRecord, error) {
	body, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	return decodeRecord(req.op, body), nil
}

func (c *catalogClient) do(ctx context.Context, req request) ([]byte, error) {
	c.rl.Take()

	httpClient := c.reader
	if req.method != http.MethodGet {
		httpClient = c.writer
	}

	r := httpClient.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", uuid.NewString())
	if req.id != "" {
		r.SetPathParam("id", req.id)
	}
	if len(req.query) > 0 {
		r.SetQueryParams(req.query)
	}
	if req.body != nil {
		r.SetBody(req.body)
	}

	start := time.Now()
	resp, err := r.Execute(req.method, req.path)
	if err != nil {
		c.metrics.ObserveRequest(req.op, "transport-error", time.Since(start))
		if ctx.Err() != nil {
			return nil, &domain.TransportError{Op: req.op, Err: ctx.Err()}
		}
		return nil, &domain.TransportError{Op: req.op, Err: err}
	}

	body := []byte(resp.String())
	if resp.IsError() {
		c.metrics.ObserveRequest(req.op, "api-error", time.Since(start))
		apiErr := &domain.APIError{
			Status:  resp.StatusCode(),
			Message: errorMessage(body),
		}
		log.Debugf("Catalog API %s failed: %v", req, apiErr)
		return nil, apiErr
	}

	c.metrics.ObserveRequest(req.op, "ok", time.Since(start))
	log.Debugf("Catalog API %s -> %d (%d bytes)", req, resp.StatusCode(), len(body))
	return body, nil
}

// errorMessage extracts the server-provided message from an error body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}

// decodeRecord accepts either the record itself or a {"data": {...}} envelope.
func decodeRecord(op string, body []byte) domain.RawRecord {
	if len(body) == 0 {
		return domain.RawRecord{}
	}

	var rec domain.RawRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		log.Warnf("⚠️ Unexpected %s response shape: %v", op, err)
		return domain.RawRecord{}
	}
	if rec == nil {
		return domain.RawRecord{}
	}

	if data, ok := rec["data"].(map[string]any); ok {
		return domain.RawRecord(data)
	}
	return rec
}

func (r request) String() string {
	return fmt.Sprintf("%s %s", r.method, r.path)
}
