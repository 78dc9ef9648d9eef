package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/tidwall/gjson"

	"github.com/hemobank/bo-dashboard/internal/gate"
)

// JSONFetcher fetches a view's payload from a backend endpoint. View
// parameters are sent as query parameters and override those already
// present in the endpoint URL.
type JSONFetcher struct {
	endpoint *url.URL
	client   Client
	dataPath string
	schema   *jsonschema.Schema
}

// Option configures a JSONFetcher
type Option func(*JSONFetcher)

// WithClient sets the HTTP client
func WithClient(c Client) Option {
	return func(f *JSONFetcher) {
		f.client = c
	}
}

// WithDataPath extracts the payload at a gjson path from the response
func WithDataPath(path string) Option {
	return func(f *JSONFetcher) {
		f.dataPath = path
	}
}

// WithSchema validates every payload against schema
func WithSchema(schema *jsonschema.Schema) Option {
	return func(f *JSONFetcher) {
		f.schema = schema
	}
}

// NewJSONFetcher creates a fetcher for an http or https endpoint
func NewJSONFetcher(endpoint string, opts ...Option) (*JSONFetcher, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint %q: scheme must be http or https", endpoint)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q: missing host", endpoint)
	}

	f := &JSONFetcher{endpoint: u}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = NewDefaultClient(DefaultTimeout)
	}
	return f, nil
}

// Fetch implements gate.Fetcher
func (f *JSONFetcher) Fetch(ctx context.Context, params map[string]string) (json.RawMessage, error) {
	target := f.URL(params)

	body, err := f.client.Get(ctx, target)
	if err != nil {
		// Let the gate report timeouts and cancellation
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			return nil, gate.NewNetworkError(fmt.Sprintf("backend returned %d", httpErr.StatusCode), err)
		}
		return nil, gate.NewNetworkError("request failed", err)
	}

	if !gjson.ValidBytes(body) {
		return nil, gate.NewParseError("response is not valid JSON", nil)
	}

	payload := body
	if f.dataPath != "" {
		result := gjson.GetBytes(body, f.dataPath)
		if !result.Exists() {
			return nil, gate.NewParseError(fmt.Sprintf("data path %q not found in response", f.dataPath), nil)
		}
		payload = []byte(result.Raw)
	}

	if f.schema != nil {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
		if err != nil {
			return nil, gate.NewParseError("failed to decode payload", err)
		}
		if err := f.schema.Validate(doc); err != nil {
			return nil, gate.NewParseError("payload does not match schema", err)
		}
	}

	return json.RawMessage(payload), nil
}

// URL returns the request URL for params
func (f *JSONFetcher) URL(params map[string]string) string {
	u := *f.endpoint
	if len(params) == 0 {
		return u.String()
	}

	query := u.Query()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		query.Set(k, params[k])
	}
	u.RawQuery = query.Encode()
	return u.String()
}
