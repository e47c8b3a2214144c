package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxErrorBody = 4 << 10

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("record store: status %d", e.Code)
	}
	return fmt.Sprintf("record store: status %d: %s", e.Code, e.Body)
}

// NotFound reports whether the store answered 404.
func (e *StatusError) NotFound() bool {
	return e.Code == http.StatusNotFound
}

// HTTPClient talks JSON to the record store over HTTP.
type HTTPClient struct {
	baseURL   string
	projectID string
	publicKey string
	http      *http.Client
	log       zerolog.Logger
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.http = c }
}

// NewHTTPClient builds a client for the project at baseURL.
func NewHTTPClient(baseURL, projectID, publicKey string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		projectID: projectID,
		publicKey: publicKey,
		http:      &http.Client{Timeout: 30 * time.Second},
		log:       log.With().Str("component", "recordstore").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) FetchRecords(ctx context.Context, table string, params FetchParams) (*FetchResponse, error) {
	var out FetchResponse
	if err := c.do(ctx, http.MethodPost, c.recordsURL(table, "query"), params, &out); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", table, err)
	}
	return &out, nil
}

func (c *HTTPClient) GetRecordByID(ctx context.Context, table string, id int64, params FetchParams) (*RecordResponse, error) {
	endpoint := c.recordsURL(table, strconv.FormatInt(id, 10))
	if len(params.Fields) > 0 {
		endpoint += "?" + url.Values{"fields": {strings.Join(params.Fields, ",")}}.Encode()
	}
	var out RecordResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, fmt.Errorf("get %s/%d: %w", table, id, err)
	}
	return &out, nil
}

func (c *HTTPClient) CreateRecords(ctx context.Context, table string, records []Fields) (*MutationResponse, error) {
	var out MutationResponse
	body := map[string]any{"records": records}
	if err := c.do(ctx, http.MethodPost, c.recordsURL(table, ""), body, &out); err != nil {
		return nil, fmt.Errorf("create %s: %w", table, err)
	}
	return &out, nil
}

func (c *HTTPClient) UpdateRecords(ctx context.Context, table string, records []Fields) (*MutationResponse, error) {
	var out MutationResponse
	body := map[string]any{"records": records}
	if err := c.do(ctx, http.MethodPut, c.recordsURL(table, ""), body, &out); err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
	return &out, nil
}

func (c *HTTPClient) DeleteRecords(ctx context.Context, table string, ids []int64) (*MutationResponse, error) {
	var out MutationResponse
	body := map[string]any{"RecordIds": ids}
	if err := c.do(ctx, http.MethodDelete, c.recordsURL(table, ""), body, &out); err != nil {
		return nil, fmt.Errorf("delete %s: %w", table, err)
	}
	return &out, nil
}

func (c *HTTPClient) recordsURL(table, suffix string) string {
	u := c.baseURL + "/tables/" + url.PathEscape(table) + "/records"
	if suffix != "" {
		u += "/" + suffix
	}
	return u
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.projectID != "" {
		req.Header.Set("X-Project-Id", c.projectID)
	}
	if c.publicKey != "" {
		req.Header.Set("X-Public-Key", c.publicKey)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("url", endpoint).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("record store call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
