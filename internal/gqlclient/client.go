// Package gqlclient executes GraphQL operations against a pg_graphql endpoint
// and classifies every failure into a Kind.
package gqlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single HTTP round trip.
const DefaultTimeout = 30 * time.Second

// Request is one GraphQL operation.
type Request struct {
	Query         string
	Variables     map[string]any
	OperationName string
}

type wireRequest struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName,omitempty"`
}

// Encode returns the JSON request body. Variables are always sent as an
// object; an empty operation name is omitted.
func (r Request) Encode() ([]byte, error) {
	if strings.TrimSpace(r.Query) == "" {
		return nil, Validationf("query must be non-empty")
	}
	vars := r.Variables
	if vars == nil {
		vars = map[string]any{}
	}
	body, err := json.Marshal(wireRequest{Query: r.Query, Variables: vars, OperationName: r.OperationName})
	if err != nil {
		return nil, Validationf("failed to encode request: %v", err)
	}
	return body, nil
}

// Transport executes GraphQL requests. Implementations hold no per-call state
// and are safe for concurrent use.
type Transport interface {
	Execute(ctx context.Context, req Request) (*Response, error)
	Close()
}

// Response is a successful GraphQL response: the decoded top-level object
// with every key kept as raw JSON.
type Response struct {
	fields map[string]json.RawMessage
	// keys is the document order of fields; nil means unknown.
	keys []string
}

// NewResponse wraps already decoded top-level fields.
func NewResponse(fields map[string]json.RawMessage) *Response {
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	return &Response{fields: fields}
}

// Data returns the raw "data" payload, or nil when absent.
func (r *Response) Data() json.RawMessage {
	return r.fields["data"]
}

// DecodeData decodes the "data" payload into v. Numbers decode as
// json.Number when v holds interface values.
func (r *Response) DecodeData(v any) error {
	data := r.Data()
	if len(data) == 0 {
		return decodeError(errors.New("response has no data"))
	}
	if err := unmarshalJSON(data, v); err != nil {
		return decodeError(err)
	}
	return nil
}

// Fields returns a copy of the top-level fields.
func (r *Response) Fields() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

// Keys returns the top-level keys in the order the server sent them, or in
// sorted order when the response was built from a map.
func (r *Response) Keys() []string {
	if r.keys != nil {
		return append([]string(nil), r.keys...)
	}
	keys := make([]string, 0, len(r.fields))
	for k := range r.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON re-emits the top-level object in Keys order without HTML
// escaping.
func (r *Response) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	buf.WriteByte('{')
	for i, k := range r.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(k); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1)
		buf.WriteByte(':')
		if err := enc.Encode(r.fields[k]); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DecodeBody classifies a response body: anything but a JSON object is a
// decode error, and any "errors" key is a GraphQL error regardless of "data".
func DecodeBody(body []byte) (*Response, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, decodeError(err)
	}
	if fields == nil {
		return nil, decodeError(errors.New("response body is not a JSON object"))
	}
	if raw, ok := fields["errors"]; ok {
		return nil, graphQLError(raw)
	}
	resp := NewResponse(fields)
	resp.keys = objectKeys(body)
	return resp, nil
}

// objectKeys returns the keys of a JSON object in document order, each once.
func objectKeys(body []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(body))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, _ := tok.(string)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil
		}
		if !slices.Contains(keys, key) {
			keys = append(keys, key)
		}
	}
	return keys
}

func unmarshalJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// HTTPClient posts GraphQL requests to an HTTP endpoint. It never retries.
type HTTPClient struct {
	endpoint   string
	httpClient *http.Client
	logger     zerolog.Logger
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		h.httpClient = c
	}
}

// NewHTTPClient creates an HTTPClient for endpoint. A timeout <= 0 uses
// DefaultTimeout.
func NewHTTPClient(endpoint string, timeout time.Duration, logger zerolog.Logger, opts ...HTTPOption) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &HTTPClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the configured URL.
func (c *HTTPClient) Endpoint() string {
	return c.endpoint
}

// Execute sends one POST and classifies the outcome.
func (c *HTTPClient) Execute(ctx context.Context, req Request) (*Response, error) {
	body, err := req.Encode()
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, networkError(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", c.endpoint).
		Str("operation", req.OperationName).
		Int("request_bytes", len(body)).
		Msg("sending GraphQL request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, networkError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkError(fmt.Errorf("failed to read response: %w", err))
	}

	c.logger.Debug().
		Int("status", resp.StatusCode).
		Int("response_bytes", len(respBody)).
		Msg("received GraphQL response")

	if resp.StatusCode != http.StatusOK {
		return nil, httpError(resp.StatusCode, respBody)
	}
	return DecodeBody(respBody)
}

// Close releases idle keep-alive connections.
func (c *HTTPClient) Close() {
	c.httpClient.CloseIdleConnections()
}
