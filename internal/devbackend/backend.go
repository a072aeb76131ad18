// Package devbackend is a small reference implementation of the front-desk
// JSON API backed by sqlite through bun. It is used by the example program
// and by integration tests; it is not a production server.
package devbackend

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/goliatone/go-listsync/internal/logging"
	"github.com/goliatone/go-listsync/record"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const (
	statusSuccess = "success"
	statusError   = "error"

	// MemoryDSN keeps the database in memory for the lifetime of the Backend.
	MemoryDSN = ":memory:"
)

type row struct {
	bun.BaseModel `bun:"table:records"`

	Collection string `bun:"collection,pk"`
	ID         int64  `bun:"id,pk"`
	Scope      string `bun:"scope,notnull"`
	Payload    string `bun:"payload,notnull"`
}

// Failure is an injected failure for the next matching request.
type Failure struct {
	// Action restricts the failure to one request action. Empty matches any.
	Action string

	// Status is the envelope status returned, "error" when empty.
	Status  string
	Message string

	// HTTPStatus, when not 2xx and Message is empty, makes the backend answer
	// with a plain text body the client can not decode.
	HTTPStatus int
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the backend logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(b *Backend) { b.logger = logging.OrNop(logger) }
}

// WithScopeParam sets the body field carrying the scope. Defaults to branch_id.
func WithScopeParam(name string) Option {
	return func(b *Backend) {
		if name != "" {
			b.scopeParam = name
		}
	}
}

// Backend serves the list, mutation and details actions for a set of
// collections over HTTP.
type Backend struct {
	db         *bun.DB
	endpoints  map[string]string
	scopeParam string
	logger     *zap.SugaredLogger
	requests   *xsync.MapOf[string, int64]

	mu       sync.Mutex
	failures []Failure
}

// Open opens (and migrates) the database at dsn. endpoints maps collection
// names to the path they are served under, as in fetcher.ClientConfig.
func Open(ctx context.Context, dsn string, endpoints map[string]string, opts ...Option) (*Backend, error) {
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("devbackend: open %s: %w", dsn, err)
	}
	// An in-memory database lives and dies with its connection.
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if _, err := db.NewCreateTable().Model((*row)(nil)).IfNotExists().Exec(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("devbackend: migrate: %w", err)
	}

	b := &Backend{
		db:         db,
		endpoints:  map[string]string{},
		scopeParam: "branch_id",
		logger:     logging.Nop(),
		requests:   xsync.NewMapOf[string, int64](),
	}
	for name, path := range endpoints {
		b.endpoints[strings.Trim(path, "/")] = strings.ToLower(strings.TrimSpace(name))
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// Seed inserts or replaces records of collection in scope.
func (b *Backend) Seed(ctx context.Context, collection, scope string, records ...record.Record) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]row, 0, len(records))
	for _, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("devbackend: encode record %d: %w", r.ID, err)
		}
		rows = append(rows, row{
			Collection: strings.ToLower(collection),
			ID:         r.ID,
			Scope:      scope,
			Payload:    string(payload),
		})
	}

	_, err := b.db.NewInsert().
		Model(&rows).
		On("CONFLICT (collection, id) DO UPDATE").
		Set("scope = EXCLUDED.scope").
		Set("payload = EXCLUDED.payload").
		Exec(ctx)
	return err
}

// Record returns the stored version of a record.
func (b *Backend) Record(ctx context.Context, collection string, id int64) (record.Record, error) {
	r, err := b.load(ctx, b.db, collection, id)
	if err != nil {
		return record.Record{}, err
	}
	return decode(r)
}

// FailNext queues f for the next matching request.
func (b *Backend) FailNext(f Failure) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = append(b.failures, f)
}

// Requests returns how many requests with action were served.
func (b *Backend) Requests(action string) int {
	n, _ := b.requests.Load(action)
	return int(n)
}

func (b *Backend) takeFailure(action string) (Failure, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, f := range b.failures {
		if f.Action == "" || f.Action == action {
			b.failures = append(b.failures[:i], b.failures[i+1:]...)
			return f, true
		}
	}
	return Failure{}, false
}

type response struct {
	Status     string             `json:"status"`
	Message    string             `json:"message,omitempty"`
	Data       any                `json:"data,omitempty"`
	Pagination *record.Pagination `json:"pagination,omitempty"`
}

// ServeHTTP implements http.Handler.
func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	collection, ok := b.endpoints[strings.Trim(r.URL.Path, "/")]
	if !ok {
		http.NotFound(w, r)
		return
	}

	body := map[string]any{}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Status: statusError, Message: "invalid JSON body"})
		return
	}

	action, _ := body["action"].(string)
	b.requests.Compute(action, func(old int64, _ bool) (int64, bool) { return old + 1, false })

	b.logger.Debugw("dev backend request",
		"collection", collection,
		"action", action,
		"request_id", r.Header.Get("X-Request-ID"),
	)

	if f, ok := b.takeFailure(action); ok {
		b.writeFailure(w, f)
		return
	}

	ctx := r.Context()
	var resp response
	var err error
	switch {
	case action == "details":
		resp, err = b.details(ctx, collection, body)
	case strings.HasPrefix(action, "fetch"):
		resp, err = b.list(ctx, collection, action, body)
	case strings.HasPrefix(action, "update_") || action == "record_payment":
		resp, err = b.update(ctx, collection, body)
	default:
		resp = response{Status: statusError, Message: fmt.Sprintf("unsupported action %q", action)}
	}
	if err != nil {
		b.logger.Errorw("dev backend failure", "collection", collection, "action", action, "error", err)
		writeJSON(w, http.StatusInternalServerError, response{Status: statusError, Message: err.Error()})
		return
	}

	code := http.StatusOK
	if resp.Status != statusSuccess {
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, resp)
}

func (b *Backend) writeFailure(w http.ResponseWriter, f Failure) {
	code := f.HTTPStatus
	if code == 0 {
		code = http.StatusOK
	}
	if f.Message == "" && (code < 200 || code > 299) {
		http.Error(w, http.StatusText(code), code)
		return
	}
	status := f.Status
	if status == "" {
		status = statusError
	}
	writeJSON(w, code, response{Status: status, Message: f.Message})
}

func (b *Backend) list(ctx context.Context, collection, action string, body map[string]any) (response, error) {
	limit := intParam(body, "limit", 1000)
	page := max(intParam(body, "page", 1), 1)
	scope := stringParam(body, b.scopeParam)

	var rows []row
	q := b.db.NewSelect().Model(&rows).Where("collection = ?", collection)
	if scope != "" {
		q = q.Where("scope = ?", scope)
	}
	// fetch_<status> lists only the records in that state, e.g. fetch_cancelled.
	if status, ok := strings.CutPrefix(action, "fetch_"); ok && status != "combined_overview" {
		q = q.Where("(json_extract(payload, '$.status') = ? OR json_extract(payload, '$.approval_status') = ?)", status, status)
	}
	if limit > 0 {
		q = q.Limit(limit).Offset((page - 1) * limit)
	}

	total, err := q.Order("id ASC").ScanAndCount(ctx)
	if err != nil {
		return response{}, err
	}

	data := make([]record.Record, 0, len(rows))
	for _, r := range rows {
		rec, err := decode(r)
		if err != nil {
			return response{}, err
		}
		data = append(data, rec)
	}

	pages := 1
	if limit > 0 && total > 0 {
		pages = (total + limit - 1) / limit
	}
	return response{
		Status:     statusSuccess,
		Data:       data,
		Pagination: &record.Pagination{Total: total, Page: page, Limit: limit, TotalPages: pages},
	}, nil
}

func (b *Backend) details(ctx context.Context, collection string, body map[string]any) (response, error) {
	id, ok := idParam(body)
	if !ok {
		return response{Status: statusError, Message: "id is required"}, nil
	}

	r, err := b.load(ctx, b.db, collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return response{Status: statusError, Message: "record not found"}, nil
	}
	if err != nil {
		return response{}, err
	}

	rec, err := decode(r)
	if err != nil {
		return response{}, err
	}
	return response{Status: statusSuccess, Data: rec}, nil
}

func (b *Backend) update(ctx context.Context, collection string, body map[string]any) (response, error) {
	id, ok := idParam(body)
	if !ok {
		return response{Status: statusError, Message: "id is required"}, nil
	}

	patch := record.Patch{}
	for k, v := range body {
		switch k {
		case "action", "id", "total", "payments":
			continue
		}
		patch[k] = v
	}

	var notFound bool
	err := b.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		r, err := b.load(ctx, tx, collection, id)
		if errors.Is(err, sql.ErrNoRows) {
			notFound = true
			return nil
		}
		if err != nil {
			return err
		}

		rec, err := decode(r)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(rec.With(patch))
		if err != nil {
			return err
		}
		r.Payload = string(payload)

		_, err = tx.NewUpdate().Model(&r).Column("payload").WherePK().Exec(ctx)
		return err
	})
	if err != nil {
		return response{}, err
	}
	if notFound {
		return response{Status: statusError, Message: "record not found"}, nil
	}
	return response{Status: statusSuccess, Message: "record updated"}, nil
}

func (b *Backend) load(ctx context.Context, db bun.IDB, collection string, id int64) (row, error) {
	var r row
	err := db.NewSelect().
		Model(&r).
		Where("collection = ?", strings.ToLower(collection)).
		Where("id = ?", id).
		Scan(ctx)
	return r, err
}

func decode(r row) (record.Record, error) {
	var rec record.Record
	if err := json.Unmarshal([]byte(r.Payload), &rec); err != nil {
		return record.Record{}, fmt.Errorf("devbackend: decode record %d: %w", r.ID, err)
	}
	return rec, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}

func idParam(body map[string]any) (int64, bool) {
	switch v := body["id"].(type) {
	case json.Number:
		id, err := v.Int64()
		return id, err == nil && id > 0
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		return id, err == nil && id > 0
	}
	return 0, false
}

func intParam(body map[string]any, key string, def int) int {
	switch v := body[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func stringParam(body map[string]any, key string) string {
	switch v := body[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return ""
}
