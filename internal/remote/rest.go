// Package remote implements the case store over a PostgREST-style HTTP API
// with storage and auth endpoints alongside it.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/Ashfaaq98/imaging-case-console/internal/store"
)

const (
	restPrefix    = "/rest/v1/"
	storagePrefix = "/storage/v1/object/"
	userPath      = "/auth/v1/user"
)

// Options configures a RESTStore.
type Options struct {
	BaseURL string
	// APIKey is sent as the apikey header on every request.
	APIKey string
	// AccessToken is the session bearer token. Without one there is no principal.
	AccessToken string
	Timeout     time.Duration
	RetryCount  int
	Logger      *zap.Logger
}

// RESTStore is a store.Store backed by HTTP.
type RESTStore struct {
	client   *resty.Client
	hasToken bool
	logger   *zap.Logger
}

// APIError is a non-2xx response from the remote API.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("http %d (%s): %s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, msg)
}

// New builds a RESTStore for opts.BaseURL.
func New(opts Options) (*RESTStore, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("remote base URL is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid remote base URL: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Accept", "application/json")
	if opts.APIKey != "" {
		client.SetHeader("apikey", opts.APIKey)
	}
	if opts.AccessToken != "" {
		client.SetAuthToken(opts.AccessToken)
	}

	return &RESTStore{
		client:   client,
		hasToken: opts.AccessToken != "",
		logger:   logger.With(zap.String("component", "remote_store")),
	}, nil
}

// Query lists rows via GET /rest/v1/{table}.
func (s *RESTStore) Query(ctx context.Context, q store.Query) ([]store.Row, error) {
	if q.Table != store.TableCases {
		return nil, &store.StoreError{Op: "query", Table: q.Table, Err: store.ErrUnsupportedTable}
	}

	params := url.Values{}
	params.Set("select", "*")
	switch {
	case q.OwnerID != "" && q.IncludeUnowned:
		params.Set("or", fmt.Sprintf("(%s.eq.%s,%s.is.null)", store.ColUserID, q.OwnerID, store.ColUserID))
	case q.OwnerID != "":
		params.Set(store.ColUserID, "eq."+q.OwnerID)
	case q.IncludeUnowned:
		params.Set(store.ColUserID, "is.null")
	}
	if !q.IncludeArchived {
		params.Set(store.ColArchived, "not.is.true")
	}

	orderBy := store.ColCreatedAt
	if q.OrderBy != "" {
		if !store.IsCaseColumn(q.OrderBy) {
			return nil, &store.StoreError{Op: "query", Table: q.Table, Err: fmt.Errorf("invalid order column %q", q.OrderBy)}
		}
		orderBy = q.OrderBy
	}
	if q.Descending {
		orderBy += ".desc"
	} else {
		orderBy += ".asc"
	}
	params.Set("order", orderBy)
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	var rows []store.Row
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		SetResult(&rows).
		Get(restPrefix + q.Table)
	if err := s.check("query", q.Table, resp, err); err != nil {
		return nil, err
	}

	s.logger.Debug("queried cases", zap.Int("count", len(rows)))
	if rows == nil {
		rows = []store.Row{}
	}
	return rows, nil
}

// Insert creates a row via POST and returns the representation the server stored.
func (s *RESTStore) Insert(ctx context.Context, table string, row store.Row) (store.Row, error) {
	if table != store.TableCases {
		return nil, &store.StoreError{Op: "insert", Table: table, Err: store.ErrUnsupportedTable}
	}

	body := store.Row{}
	for k, v := range row {
		if v != nil && store.IsCaseColumn(k) {
			body[k] = v
		}
	}

	var out []store.Row
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Prefer", "return=representation").
		SetBody(body).
		SetResult(&out).
		Post(restPrefix + table)
	if err := s.check("insert", table, resp, err); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, &store.StoreError{Op: "insert", Table: table, Err: errors.New("server returned no row")}
	}
	return out[0], nil
}

// Update patches the row with the given id. A patch that matches nothing
// yields store.ErrNotFound.
func (s *RESTStore) Update(ctx context.Context, table, id string, patch store.Row) error {
	if table != store.TableCases {
		return &store.StoreError{Op: "update", Table: table, Err: store.ErrUnsupportedTable}
	}

	body := store.Row{}
	for k, v := range patch {
		if k == store.ColID || k == store.ColCreatedAt || !store.IsCaseColumn(k) {
			continue
		}
		body[k] = v
	}
	if _, ok := body[store.ColUpdatedAt]; !ok {
		body[store.ColUpdatedAt] = time.Now().UTC()
	}

	return s.mutateOne(ctx, "update", table, id, func(r *resty.Request) (*resty.Response, error) {
		return r.SetHeader("Content-Type", "application/json").SetBody(body).Patch(restPrefix + table)
	})
}

// Delete removes the row with the given id.
func (s *RESTStore) Delete(ctx context.Context, table, id string) error {
	if table != store.TableCases {
		return &store.StoreError{Op: "delete", Table: table, Err: store.ErrUnsupportedTable}
	}
	return s.mutateOne(ctx, "delete", table, id, func(r *resty.Request) (*resty.Response, error) {
		return r.Delete(restPrefix + table)
	})
}

// mutateOne runs a row-addressed request and maps an empty representation to ErrNotFound.
func (s *RESTStore) mutateOne(ctx context.Context, op, table, id string, send func(*resty.Request) (*resty.Response, error)) error {
	var out []store.Row
	req := s.client.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=representation").
		SetQueryParam(store.ColID, "eq."+id).
		SetResult(&out)
	resp, err := send(req)
	if err := s.check(op, table, resp, err); err != nil {
		return err
	}
	if len(out) == 0 {
		return &store.StoreError{Op: op, Table: table, Err: fmt.Errorf("case %s: %w", id, store.ErrNotFound)}
	}
	return nil
}

// UploadBlob stores data via POST /storage/v1/object/{bucket}/{path}, replacing any existing object.
func (s *RESTStore) UploadBlob(ctx context.Context, bucket, path string, data []byte) (string, error) {
	bucket = strings.Trim(bucket, "/ ")
	path = strings.Trim(path, "/ ")
	if bucket == "" || path == "" {
		return "", &store.StoreError{Op: "upload", Table: bucket, Err: errors.New("bucket and path are required")}
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetHeader("x-upsert", "true").
		SetBody(data).
		Post(storagePrefix + bucket + "/" + path)
	if err := s.check("upload", bucket, resp, err); err != nil {
		return "", err
	}

	s.logger.Info("uploaded blob", zap.String("bucket", bucket), zap.String("path", path), zap.Int("size", len(data)))
	return bucket + "/" + path, nil
}

// CurrentPrincipal resolves the session user via GET /auth/v1/user. No
// access token, or a 401/403 answer, means there is no session.
func (s *RESTStore) CurrentPrincipal(ctx context.Context) (*store.Principal, error) {
	if !s.hasToken {
		return nil, nil
	}

	var p store.Principal
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&p).
		Get(userPath)
	if err == nil && (resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden) {
		s.logger.Warn("session rejected by auth endpoint", zap.Int("status_code", resp.StatusCode()))
		return nil, nil
	}
	if err := s.check("principal", "", resp, err); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, nil
	}
	return &p, nil
}

func (s *RESTStore) check(op, table string, resp *resty.Response, err error) error {
	if err != nil {
		s.logger.Error("remote call failed", zap.String("op", op), zap.Error(err))
		return &store.StoreError{Op: op, Table: table, Err: err}
	}
	if resp.IsError() {
		apiErr := &APIError{}
		if body := resp.Body(); len(body) > 0 {
			_ = json.Unmarshal(body, apiErr)
		}
		apiErr.StatusCode = resp.StatusCode()
		s.logger.Error("remote API returned error",
			zap.String("op", op),
			zap.Int("status_code", apiErr.StatusCode),
			zap.String("msg", apiErr.Message))
		return &store.StoreError{Op: op, Table: table, Err: apiErr}
	}
	return nil
}
