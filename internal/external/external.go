// Package external fetches and caches values from external HTTP
// services for external_ref formulas.
//
// The first formula to reference a URL fetches it, stores the result,
// and subscribes the service to push future updates back. Every later
// reference is served from storage; pushed updates are the only thing
// that refreshes a stored value.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cellflow/cellflow/internal/formula"
	"github.com/cellflow/cellflow/internal/store"
	"github.com/cellflow/cellflow/internal/value"
)

// DefaultMaxBody is the default response size limit in bytes.
const DefaultMaxBody = 2048

// DefaultTimeout is the default per-request timeout.
const DefaultTimeout = 10 * time.Second

// Fetcher resolves external_ref URLs against a storage-backed cache,
// fetching and subscribing on first reference.
type Fetcher struct {
	client  *http.Client
	baseURL string
	maxBody int64
	logger  *slog.Logger
}

// Option allows configuration of fetcher parameters.
type Option func(*Fetcher)

// WithHTTPClient sets the client used for fetch and subscribe requests.
//
// Default: a client with DefaultTimeout.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithMaxBody sets the response size limit in bytes.
//
// Default: DefaultMaxBody (2048).
func WithMaxBody(limit int64) Option {
	return func(f *Fetcher) {
		f.maxBody = limit
	}
}

// WithLogger sets the logger for fetch and subscribe diagnostics.
//
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a Fetcher. baseURL is this service's public base
// address, used to build the push callback given to external services.
func NewFetcher(baseURL string, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:  &http.Client{Timeout: DefaultTimeout},
		baseURL: baseURL,
		maxBody: DefaultMaxBody,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Resolver binds the fetcher to one write's query handle so cache
// reads and inserts share the write transaction.
func (f *Fetcher) Resolver(q *store.Queries) formula.ExternalResolver {
	return &resolver{f: f, q: q}
}

type resolver struct {
	f *Fetcher
	q *store.Queries
}

// Resolve returns the cached value for url, fetching and subscribing
// on the first reference. The subscribe call is best effort; a service
// that rejects it simply never pushes updates.
func (r *resolver) Resolve(ctx context.Context, url string) (value.Value, error) {
	ev, err := r.q.ExternalByURL(ctx, url)
	if err == nil {
		return value.Parse(ev.Result), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	result, err := r.f.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	id, err := r.q.InsertExternal(ctx, url, result)
	if err != nil {
		return nil, err
	}
	if err := r.f.subscribe(ctx, url, id); err != nil {
		r.f.logger.Warn("external subscribe failed",
			"url", url,
			"external_id", id,
			"error", err)
	}
	return value.Parse(result), nil
}

// externalResponse is the body shape external services must return.
type externalResponse struct {
	Result *string `json:"result"`
}

// fetch GETs url and extracts the result field. Responses larger than
// the body limit or without a string result field are rejected.
func (f *Fetcher) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &FetchError{Code: ErrCodeFetchFailed, URL: url, Message: err.Error()}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", &FetchError{Code: ErrCodeFetchFailed, URL: url, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &FetchError{
			Code:    ErrCodeFetchFailed,
			URL:     url,
			Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return "", &FetchError{Code: ErrCodeFetchFailed, URL: url, Message: err.Error()}
	}
	if int64(len(body)) > f.maxBody {
		return "", &FetchError{
			Code:    ErrCodeResponseTooLarge,
			URL:     url,
			Message: fmt.Sprintf("response exceeds %d bytes", f.maxBody),
		}
	}

	var parsed externalResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &FetchError{Code: ErrCodeInvalidResponse, URL: url, Message: "body is not valid JSON"}
	}
	if parsed.Result == nil {
		return "", &FetchError{Code: ErrCodeInvalidResponse, URL: url, Message: "missing result field"}
	}

	f.logger.Debug("external value fetched", "url", url, "bytes", len(body))
	return *parsed.Result, nil
}

// subscribePayload is the body sent to url + "/subscribe".
type subscribePayload struct {
	WebhookURL string `json:"webhook_url"`
}

// subscribe asks the external service to push future updates to this
// service's webhook endpoint for the stored value id.
func (f *Fetcher) subscribe(ctx context.Context, url string, id int64) error {
	payload, err := json.Marshal(subscribePayload{
		WebhookURL: fmt.Sprintf("%s/webhook/subscriptions/%d", f.baseURL, id),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/subscribe", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
