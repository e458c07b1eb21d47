// Package upstream defines the boundary the engine calls through to reach
// the remote workspace API. §1 and §6 explicitly scope the authenticated
// HTTP client (transport, retry, TLS) out of this specification as an
// external collaborator; this package therefore holds only the interface
// the orchestration layer (internal/engine) depends on, plus a minimal
// net/http-backed implementation sufficient to exercise that interface
// end to end. Nothing here performs retry/backoff or connection pooling
// tuning — that belongs to whatever production HTTP client the deployment
// wires in; swapping Client for a different implementation (e.g. one
// backed by a retrying transport) requires no change to internal/engine.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/smartsuite/cachebridge/internal/engineerr"
)

// Client is the request -> JSON function the engine consumes (§6
// "the engine treats the client as a request->JSON function and does not
// depend on transport details"). Every method returns the decoded JSON
// body as a generic map/slice, or an engineerr.Upstreamf-wrapped error on
// a non-success response.
type Client interface {
	// ListSolutions returns every workspace solution visible to the
	// authenticated account.
	ListSolutions(ctx context.Context) ([]map[string]any, error)
	// GetTable returns one table's descriptor, including its field
	// catalogue.
	GetTable(ctx context.Context, tableID string) (map[string]any, error)
	// ListTables returns every table in solutionID.
	ListTables(ctx context.Context, solutionID string) ([]map[string]any, error)
	// ListRecords returns one page of records for tableID. hydrated
	// requests upstream to resolve linked-record display values inline.
	ListRecords(ctx context.Context, tableID string, offset, limit int, hydrated bool) (records []map[string]any, total int, err error)
	// GetRecord returns a single record by id.
	GetRecord(ctx context.Context, tableID, recordID string) (map[string]any, error)
	// CreateRecord, UpdateRecord, DeleteRecord perform single-record
	// mutations; fields is the upstream-shaped field value map.
	CreateRecord(ctx context.Context, tableID string, fields map[string]any) (map[string]any, error)
	UpdateRecord(ctx context.Context, tableID, recordID string, fields map[string]any) (map[string]any, error)
	DeleteRecord(ctx context.Context, tableID, recordID string) error
	// BulkRecords performs a batched create/update/delete, op naming the
	// upstream bulk-operation verb.
	BulkRecords(ctx context.Context, tableID, op string, items []map[string]any) ([]map[string]any, error)
	// AddField, UpdateField, DeleteField mutate a table's field catalogue;
	// the orchestrator cascades invalidation after any of these succeed.
	AddField(ctx context.Context, tableID string, field map[string]any) (map[string]any, error)
	UpdateField(ctx context.Context, tableID, fieldSlug string, field map[string]any) (map[string]any, error)
	DeleteField(ctx context.Context, tableID, fieldSlug string) error
	// ListMembers, ListTeams resolve the members/teams
	// metadata caches.
	ListMembers(ctx context.Context) ([]map[string]any, error)
	ListTeams(ctx context.Context) ([]map[string]any, error)
	// ListComments, AddComment back the comments metadata cache.
	ListComments(ctx context.Context, tableID, recordID string) ([]map[string]any, error)
	AddComment(ctx context.Context, tableID, recordID, body string) (map[string]any, error)
	// ListViews, GetView back the views metadata cache.
	ListViews(ctx context.Context, tableID string) ([]map[string]any, error)
	GetView(ctx context.Context, tableID, viewID string) (map[string]any, error)
	// ListDeletedRecords, RestoreRecord back the deleted-records metadata
	// cache.
	ListDeletedRecords(ctx context.Context, tableID string) ([]map[string]any, error)
	RestoreRecord(ctx context.Context, tableID, recordID string) error
}

// HTTPClient is a thin net/http-backed Client: authenticated request
// execution against baseURL using a static API-key header and account
// header (§6). It does not retry; callers that need retry/backoff should
// wrap the http.Client passed to New with their own RoundTripper.
type HTTPClient struct {
	baseURL   string
	apiKey    string
	accountID string
	http      *http.Client
}

// New builds an HTTPClient. httpClient may be nil, in which case a
// client with a conservative default timeout is used.
func New(baseURL, apiKey, accountID string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{baseURL: baseURL, apiKey: apiKey, accountID: accountID, http: httpClient}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, engineerr.Validationf("upstream: encode request body: %v", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, engineerr.Upstreamf(err, "upstream: build request %s %s", method, path)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Account-Id", c.accountID)
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, engineerr.Upstreamf(err, "upstream: %s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, engineerr.Upstreamf(err, "upstream: read response body for %s %s", method, path)
	}
	if resp.StatusCode >= 300 {
		return nil, engineerr.Upstreamf(fmt.Errorf("status %d: %s", resp.StatusCode, string(raw)),
			"upstream: %s %s returned non-success", method, path)
	}
	return raw, nil
}

func decodeInto[T any](raw json.RawMessage, out *T) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return engineerr.Upstreamf(err, "upstream: decode response")
	}
	return nil
}

func (c *HTTPClient) ListSolutions(ctx context.Context) ([]map[string]any, error) {
	raw, err := c.do(ctx, http.MethodGet, "/solutions", nil, nil)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	return out, decodeInto(raw, &out)
}

func (c *HTTPClient) GetTable(ctx context.Context, tableID string) (map[string]any, error) {
	raw, err := c.do(ctx, http.MethodGet, "/applications/"+tableID, nil, nil)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	return out, decodeInto(raw, &out)
}

func (c *HTTPClient) ListTables(ctx context.Context, solutionID string) ([]map[string]any, error) {
	q := url.Values{}
	if solutionID != "" {
		q.Set("solution", solutionID)
	}
	raw, err := c.do(ctx, http.MethodGet, "/applications", q, nil)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	return out, decodeInto(raw, &out)
}

func (c *HTTPClient) ListRecords(ctx context.Context, tableID string, offset, limit int, hydrated bool) ([]map[string]any, int, error) {
	body := map[string]any{"offset": offset, "limit": limit, "hydrated": hydrated}
	raw, err := c.do(ctx, http.MethodPost, "/applications/"+tableID+"/records/list", nil, body)
	if err != nil {
		return nil, 0, err
	}
	var page struct {
		Items []map[string]any `json:"items"`
		Total int              `json:"total"`
	}
	if err := decodeInto(raw, &page); err != nil {
		return nil, 0, err
	}
	return page.Items, page.Total, nil
}

func (c *HTTPClient) GetRecord(ctx context.Context, tableID, recordID string) (map[string]any, error) {
	raw, err := c.do(ctx, http.MethodGet, "/applications/"+tableID+"/records/"+recordID, nil, nil)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	return out, decodeInto(raw, &out)
}

func (c *HTTPClient) CreateRecord(ctx context.Context, tableID string, fields map[string]any) (map[string]any, error) {
	raw, err := c.do(ctx, http.MethodPost, "/applications/"+tableID+"/records", nil, fields)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	return out, decodeInto(raw, &out)
}

func (c *HTTPClient) UpdateRecord(ctx context.Context, tableID, recordID string, fields map[string]any) (map[string]any, error) {
	raw, err := c.do(ctx, http.MethodPatch, "/applications/"+tableID+"/records/"+recordID, nil, fields)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	return out, decodeInto(raw, &out)
}

func (c *HTTPClient) DeleteRecord(ctx context.Context, tableID, recordID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/applications/"+tableID+"/records/"+recordID, nil, nil)
	return err
}

func (c *HTTPClient) BulkRecords(ctx context.Context, tableID, op string, items []map[string]any) ([]map[string]any, error) {
	body := map[string]any{"operation": op, "items": items}
	raw, err := c.do(ctx, http.MethodPost, "/applications/"+tableID+"/records/bulk", nil, body)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	return out, decodeInto(raw, &out)
}

func (c *HTTPClient) AddField(ctx context.Context, tableID string, field map[string]any) (map[string]any, error) {
	raw, err := c.do(ctx, http.MethodPost, "/applications/"+tableID+"/fields", nil, field)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	return out, decodeInto(raw, &out)
}

func (c *HTTPClient) UpdateField(ctx context.Context, tableID, fieldSlug string, field map[string]any) (map[string]any, error) {
	raw, err := c.do(ctx, http.MethodPatch, "/applications/"+tableID+"/fields/"+fieldSlug, nil, field)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	return out, decodeInto(raw, &out)
}

func (c *HTTPClient) DeleteField(ctx context.Context, tableID, fieldSlug string) error {
	_, err := c.do(ctx, http.MethodDelete, "/applications/"+tableID+"/fields/"+fieldSlug, nil, nil)
	return err
}

func (c *HTTPClient) ListMembers(ctx context.Context) ([]map[string]any, error) {
	raw, err := c.do(ctx, http.MethodGet, "/members", nil, nil)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	return out, decodeInto(raw, &out)
}

func (c *HTTPClient) ListTeams(ctx context.Context) ([]map[string]any, error) {
	raw, err := c.do(ctx, http.MethodGet, "/teams", nil, nil)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	return out, decodeInto(raw, &out)
}

func (c *HTTPClient) ListComments(ctx context.Context, tableID, recordID string) ([]map[string]any, error) {
	raw, err := c.do(ctx, http.MethodGet, "/applications/"+tableID+"/records/"+recordID+"/comments", nil, nil)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	return out, decodeInto(raw, &out)
}

func (c *HTTPClient) AddComment(ctx context.Context, tableID, recordID, body string) (map[string]any, error) {
	raw, err := c.do(ctx, http.MethodPost, "/applications/"+tableID+"/records/"+recordID+"/comments", nil,
		map[string]any{"text": body})
	if err != nil {
		return nil, err
	}
	var out map[string]any
	return out, decodeInto(raw, &out)
}

func (c *HTTPClient) ListViews(ctx context.Context, tableID string) ([]map[string]any, error) {
	raw, err := c.do(ctx, http.MethodGet, "/applications/"+tableID+"/views", nil, nil)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	return out, decodeInto(raw, &out)
}

func (c *HTTPClient) GetView(ctx context.Context, tableID, viewID string) (map[string]any, error) {
	raw, err := c.do(ctx, http.MethodGet, "/applications/"+tableID+"/views/"+viewID, nil, nil)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	return out, decodeInto(raw, &out)
}

func (c *HTTPClient) ListDeletedRecords(ctx context.Context, tableID string) ([]map[string]any, error) {
	raw, err := c.do(ctx, http.MethodGet, "/applications/"+tableID+"/records/deleted", nil, nil)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	return out, decodeInto(raw, &out)
}

func (c *HTTPClient) RestoreRecord(ctx context.Context, tableID, recordID string) error {
	_, err := c.do(ctx, http.MethodPost, "/applications/"+tableID+"/records/"+recordID+"/restore", nil, nil)
	return err
}

var _ Client = (*HTTPClient)(nil)
