// Package backend implements the index backend client (C1): a thin,
// cancellable, typed-error wrapper over the external full-text index
// (HTTP+JSON, Elasticsearch-shaped), grounded on the original engine's
// elasticsearch_engine.cpp/.h.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sonet-social/search-service/infrastructure/httputil"
	"github.com/sonet-social/search-service/infrastructure/resilience"
	"github.com/sonet-social/search-service/pkg/config"
	"github.com/sonet-social/search-service/pkg/version"
)

// Config controls how the client connects to the backend cluster.
type Config = config.BackendConfig

// BackendError is the typed error every client method surfaces, per §4.1.
type BackendError struct {
	HTTPStatus int
	Code       string
	Message    string
	Retriable  bool
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error %d (%s): %s", e.HTTPStatus, e.Code, e.Message)
}

// newBackendError classifies an HTTP status per §4.1/§7: 5xx and connection
// errors are retriable, 4xx are not except 429 which is retriable.
func newBackendError(status int, code, message string) *BackendError {
	retriable := status >= 500 || status == http.StatusTooManyRequests
	return &BackendError{HTTPStatus: status, Code: code, Message: message, Retriable: retriable}
}

// HealthStatus is the cluster health color.
type HealthStatus string

const (
	HealthGreen  HealthStatus = "green"
	HealthYellow HealthStatus = "yellow"
	HealthRed    HealthStatus = "red"
)

// Client is a blocking, cancellable client over the index backend.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	log        zerolog.Logger
	authHeader string
}

// New constructs a Client. authMode selects how credentials are attached:
// "basic", "api-key", or "none".
func New(cfg Config, authMode, apiKeyOrPassword string, log zerolog.Logger) *Client {
	transport := &http.Transport{
		MaxConnsPerHost:     cfg.MaxConnectionsPerHost,
		MaxIdleConnsPerHost: cfg.MaxConnectionsPerHost,
		MaxIdleConns:        cfg.MaxConnections,
	}

	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		breaker: resilience.New(resilience.DefaultConfig()),
		log:     log.With().Str("component", "backend_client").Logger(),
	}
	c.cfg.Hosts = normalizeHosts(c.cfg.Hosts, c.log)

	switch authMode {
	case "basic":
		c.authHeader = "Basic " + apiKeyOrPassword
	case "api-key":
		c.authHeader = "ApiKey " + apiKeyOrPassword
	}

	return c
}

// normalizeHosts validates each configured backend host with the same
// base-URL normalization the teacher's service-to-service HTTP clients
// apply, dropping any host that fails validation rather than later failing
// every request against it.
func normalizeHosts(hosts []string, log zerolog.Logger) []string {
	normalized := make([]string, 0, len(hosts))
	for _, h := range hosts {
		clean, _, err := httputil.NormalizeServiceBaseURL(h)
		if err != nil {
			log.Warn().Str("host", h).Err(err).Msg("dropping invalid backend host")
			continue
		}
		normalized = append(normalized, clean)
	}
	return normalized
}

func (c *Client) baseURL() string {
	if len(c.cfg.Hosts) == 0 {
		return "http://localhost:9200"
	}
	return c.cfg.Hosts[0]
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL()+path, body)
	if err != nil {
		return nil, newBackendError(0, "request_build_failed", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}

	var respBody []byte
	opErr := c.breaker.Execute(ctx, func() error {
		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.log.Warn().Err(err).Str("path", path).Msg("backend request failed")
			connErr := newBackendError(0, "connection_error", err.Error())
			connErr.Retriable = true
			return connErr
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return newBackendError(resp.StatusCode, "read_body_failed", err.Error())
		}

		c.log.Debug().
			Str("path", path).
			Int("status", resp.StatusCode).
			Dur("took", time.Since(start)).
			Msg("backend request completed")

		if resp.StatusCode >= 400 {
			return newBackendError(resp.StatusCode, httpStatusCode(resp.StatusCode), string(respBody))
		}
		return nil
	})

	if opErr != nil {
		if be, ok := opErr.(*BackendError); ok {
			return nil, be
		}
		return nil, newBackendError(0, "circuit_open", opErr.Error())
	}

	return respBody, nil
}

func httpStatusCode(status int) string {
	return fmt.Sprintf("http_%d", status)
}

// ClusterHealth is the decoded response of HealthCheck.
type ClusterHealth struct {
	Status             HealthStatus `json:"status"`
	NumberOfNodes      int          `json:"number_of_nodes"`
	ActiveShards       int          `json:"active_shards"`
	UnassignedShards   int          `json:"unassigned_shards"`
}

// HealthCheck queries the cluster health endpoint.
func (c *Client) HealthCheck(ctx context.Context) (*ClusterHealth, error) {
	body, err := c.do(ctx, http.MethodGet, "/_cluster/health", nil)
	if err != nil {
		return nil, err
	}
	var health ClusterHealth
	if err := json.Unmarshal(body, &health); err != nil {
		return nil, newBackendError(0, "decode_failed", err.Error())
	}
	return &health, nil
}

// IndexMapping describes the mapping+settings body for CreateIndex.
type IndexMapping struct {
	Settings map[string]interface{} `json:"settings"`
	Mappings map[string]interface{} `json:"mappings"`
}

// CreateIndex creates an index with the given mapping and settings.
func (c *Client) CreateIndex(ctx context.Context, name string, mapping IndexMapping) error {
	body, err := json.Marshal(mapping)
	if err != nil {
		return newBackendError(0, "encode_failed", err.Error())
	}
	_, err = c.do(ctx, http.MethodPut, "/"+name, bytes.NewReader(body))
	return err
}

// IndexResult is the outcome of IndexDoc/UpdateDoc.
type IndexResult struct {
	Result string `json:"result"` // "created" or "updated"
	ID     string `json:"_id"`
}

// IndexDoc creates or overwrites a document.
func (c *Client) IndexDoc(ctx context.Context, index, id string, doc interface{}) (*IndexResult, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, newBackendError(0, "encode_failed", err.Error())
	}
	resp, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/%s/_doc/%s", index, id), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var result IndexResult
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, newBackendError(0, "decode_failed", err.Error())
	}
	return &result, nil
}

// UpdateDoc applies a partial document update.
func (c *Client) UpdateDoc(ctx context.Context, index, id string, partial map[string]interface{}) error {
	body, err := json.Marshal(map[string]interface{}{"doc": partial})
	if err != nil {
		return newBackendError(0, "encode_failed", err.Error())
	}
	_, err = c.do(ctx, http.MethodPost, fmt.Sprintf("/%s/_update/%s", index, id), bytes.NewReader(body))
	return err
}

// DeleteDoc removes a document by id.
func (c *Client) DeleteDoc(ctx context.Context, index, id string) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/%s/_doc/%s", index, id), nil)
	if be, ok := err.(*BackendError); ok && be.HTTPStatus == http.StatusNotFound {
		return nil
	}
	return err
}

// BulkOp is one action within a bulk request.
type BulkOp struct {
	Action string // "index", "update", "delete"
	Index  string
	ID     string
	Doc    interface{}
}

// maxBulkBytes is the payload size at which Bulk flushes, independent of op
// count; a flushed request can exceed it by the operation that crossed it,
// supplementing §4.1's batch_size-only chunking per the original engine's
// byte-budget flush in elasticsearch_engine.cpp.
const maxBulkBytes = 8 * 1024 * 1024

// Bulk submits a batch of index/update/delete operations as one NDJSON
// request, sending the accumulated payload and starting a new request
// whenever it reaches maxBulkBytes.
func (c *Client) Bulk(ctx context.Context, ops []BulkOp) error {
	var buf bytes.Buffer
	flush := func() error {
		if buf.Len() == 0 {
			return nil
		}
		_, err := c.do(ctx, http.MethodPost, "/_bulk", bytes.NewReader(buf.Bytes()))
		buf.Reset()
		return err
	}

	for _, op := range ops {
		var action map[string]interface{}
		switch op.Action {
		case "index":
			action = map[string]interface{}{"index": map[string]string{"_index": op.Index, "_id": op.ID}}
		case "update":
			action = map[string]interface{}{"update": map[string]string{"_index": op.Index, "_id": op.ID}}
		case "delete":
			action = map[string]interface{}{"delete": map[string]string{"_index": op.Index, "_id": op.ID}}
		default:
			return newBackendError(0, "invalid_bulk_action", op.Action)
		}

		actionLine, err := json.Marshal(action)
		if err != nil {
			return newBackendError(0, "encode_failed", err.Error())
		}
		buf.Write(actionLine)
		buf.WriteByte('\n')

		if op.Action != "delete" {
			var docLine []byte
			if op.Action == "update" {
				docLine, err = json.Marshal(map[string]interface{}{"doc": op.Doc})
			} else {
				docLine, err = json.Marshal(op.Doc)
			}
			if err != nil {
				return newBackendError(0, "encode_failed", err.Error())
			}
			buf.Write(docLine)
			buf.WriteByte('\n')
		}

		if buf.Len() >= maxBulkBytes {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	return flush()
}

// Search executes a query document against one or more indices.
func (c *Client) Search(ctx context.Context, indices []string, queryDoc interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(queryDoc)
	if err != nil {
		return nil, newBackendError(0, "encode_failed", err.Error())
	}
	path := fmt.Sprintf("/%s/_search", strings.Join(indices, ","))
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body))
}

// Count returns the number of documents matching a query document.
func (c *Client) Count(ctx context.Context, indices []string, queryDoc interface{}) (int64, error) {
	body, err := json.Marshal(queryDoc)
	if err != nil {
		return 0, newBackendError(0, "encode_failed", err.Error())
	}
	path := fmt.Sprintf("/%s/_count", strings.Join(indices, ","))
	resp, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	var result struct {
		Count int64 `json:"count"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return 0, newBackendError(0, "decode_failed", err.Error())
	}
	return result.Count, nil
}

// Scroll fetches the next page of a scroll cursor.
func (c *Client) Scroll(ctx context.Context, scrollID string, keepAlive time.Duration) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]interface{}{
		"scroll":    keepAlive.String(),
		"scroll_id": scrollID,
	})
	if err != nil {
		return nil, newBackendError(0, "encode_failed", err.Error())
	}
	return c.do(ctx, http.MethodPost, "/_search/scroll", bytes.NewReader(body))
}

// Refresh forces an index refresh. Optional administrative operation, not
// required for correctness — see SPEC_FULL.md §9 open questions.
func (c *Client) Refresh(ctx context.Context, index string) error {
	_, err := c.do(ctx, http.MethodPost, "/"+index+"/_refresh", nil)
	return err
}

// ForceMerge triggers a segment merge. Optional administrative operation,
// not required for correctness — see SPEC_FULL.md §9 open questions.
func (c *Client) ForceMerge(ctx context.Context, index string) error {
	_, err := c.do(ctx, http.MethodPost, "/"+index+"/_forcemerge", nil)
	return err
}
