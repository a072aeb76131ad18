package fetcher

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

	"github.com/goliatone/go-listsync/record"
	"github.com/goliatone/go-listsync/syncerr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StatusSuccess is the only envelope status treated as success.
const StatusSuccess = "success"

// DefaultScopeParam is the body field that carries the scope of a list request.
const DefaultScopeParam = "branch_id"

const maxResponseBytes = 32 << 20

// Doer sends an HTTP request. *http.Client satisfies it; an authenticated
// wrapper can be injected in its place.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig configures the JSON API client.
type ClientConfig struct {
	// BaseURL is the API root every endpoint is resolved against.
	BaseURL string

	// Endpoints maps a collection name to its path under BaseURL.
	Endpoints map[string]string

	// ScopeParam names the body field carrying the scope. Defaults to branch_id.
	ScopeParam string

	// Timeout applies to the default *http.Client only.
	Timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithDoer replaces the HTTP transport.
func WithDoer(doer Doer) Option {
	return func(c *Client) {
		if doer != nil {
			c.doer = doer
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client talks to the backend JSON API. It implements Fetcher, Mutator and
// DetailsFetcher.
type Client struct {
	baseURL    *url.URL
	endpoints  map[string]string
	scopeParam string
	doer       Doer
	logger     *zap.SugaredLogger
}

var (
	_ Fetcher        = (*Client)(nil)
	_ Mutator        = (*Client)(nil)
	_ DetailsFetcher = (*Client)(nil)
)

// NewClient builds a Client from cfg.
func NewClient(cfg ClientConfig, opts ...Option) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("fetcher: invalid base url %q", cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	endpoints := make(map[string]string, len(cfg.Endpoints))
	for name, path := range cfg.Endpoints {
		endpoints[strings.ToLower(strings.TrimSpace(name))] = strings.TrimLeft(path, "/")
	}

	scopeParam := cfg.ScopeParam
	if scopeParam == "" {
		scopeParam = DefaultScopeParam
	}

	c := &Client{
		baseURL:    base,
		endpoints:  endpoints,
		scopeParam: scopeParam,
		doer:       &http.Client{Timeout: cfg.Timeout},
		logger:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchList requests the bulk page described by req.
func (c *Client) FetchList(ctx context.Context, req ListRequest) (ListResult, error) {
	body := map[string]any{}
	for k, v := range req.Filters {
		body[k] = v
	}
	body["action"] = req.Action
	body[c.scopeParam] = req.Scope
	body["limit"] = req.Limit
	body["page"] = req.Page

	env, err := c.post(ctx, req.Collection, body)
	if err != nil {
		return ListResult{}, err
	}

	var records []record.Record
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &records); err != nil {
			return ListResult{}, syncerr.Network(err, "decode list payload")
		}
	}
	if records == nil {
		records = []record.Record{}
	}

	pagination := record.Pagination{Total: len(records), Page: req.Page, Limit: req.Limit, TotalPages: 1}
	if env.Pagination != nil {
		pagination = *env.Pagination
	}

	return ListResult{Records: records, Pagination: pagination}, nil
}

// Mutate sends a mutation for a single record.
func (c *Client) Mutate(ctx context.Context, collection string, req MutationRequest) (Ack, error) {
	body := map[string]any{}
	for k, v := range req.Fields {
		body[k] = v
	}
	body["action"] = req.Action
	body["id"] = req.ID
	if len(req.Payments) > 0 {
		body["total"] = req.Total
		body["payments"] = req.Payments
	}

	env, err := c.post(ctx, collection, body)
	if err != nil {
		return Ack{}, err
	}
	return Ack{Status: env.Status, Message: env.Message}, nil
}

// Details loads the full payload of record id.
func (c *Client) Details(ctx context.Context, collection string, id int64) (record.Details, error) {
	env, err := c.post(ctx, collection, map[string]any{"action": "details", "id": id})
	if err != nil {
		return nil, err
	}

	details := record.Details{}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		dec := json.NewDecoder(bytes.NewReader(env.Data))
		dec.UseNumber()
		if err := dec.Decode(&details); err != nil {
			return nil, syncerr.Network(err, "decode details payload")
		}
	}
	return details, nil
}

type envelope struct {
	Status     string             `json:"status"`
	Message    string             `json:"message,omitempty"`
	Data       json.RawMessage    `json:"data,omitempty"`
	Pagination *record.Pagination `json:"pagination,omitempty"`
}

// post sends body to the collection endpoint and decodes the envelope. Any
// transport or decoding failure is a network error; a decoded envelope whose
// status is not "success" is a server error whatever the HTTP status code.
func (c *Client) post(ctx context.Context, collection string, body map[string]any) (envelope, error) {
	endpoint, err := c.endpointURL(collection)
	if err != nil {
		return envelope{}, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return envelope{}, syncerr.Validation("request body is not encodable", map[string]any{"error": err.Error()})
	}

	requestID := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return envelope{}, syncerr.Network(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.doer.Do(req)
	if err != nil {
		c.logger.Debugw("request failed", "collection", collection, "action", body["action"], "request_id", requestID, "error", err)
		return envelope{}, syncerr.Network(err, "request to "+collection+" failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return envelope{}, syncerr.Network(err, "read response")
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Status == "" {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return envelope{}, syncerr.Network(fmt.Errorf("unexpected HTTP status %d", resp.StatusCode), "request to "+collection+" failed")
		}
		if err == nil {
			err = fmt.Errorf("missing status field")
		}
		return envelope{}, syncerr.Network(err, "decode response")
	}

	c.logger.Debugw("request completed",
		"collection", collection,
		"action", body["action"],
		"request_id", requestID,
		"http_status", resp.StatusCode,
		"status", env.Status,
		"elapsed", time.Since(start),
	)

	if env.Status != StatusSuccess {
		return envelope{}, syncerr.Server(env.Status, env.Message)
	}
	return env, nil
}

func (c *Client) endpointURL(collection string) (string, error) {
	path, ok := c.endpoints[strings.ToLower(strings.TrimSpace(collection))]
	if !ok {
		return "", syncerr.Validation("unknown collection", map[string]any{"collection": collection})
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", syncerr.Validation("invalid endpoint path", map[string]any{"collection": collection, "path": path})
	}
	return c.baseURL.ResolveReference(ref).String(), nil
}
