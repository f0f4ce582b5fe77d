// Package webhook delivers cell change notifications to subscribed
// consumer endpoints.
//
// Delivery is fire and forget: every subscription for a changed cell
// gets one POST, failures are logged and dropped, and nothing is
// retried. Consumers that need reliability should poll the read API.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/cellflow/cellflow/internal/store"
)

// DefaultTimeout is the default per-delivery timeout.
const DefaultTimeout = 10 * time.Second

// Notifier fans out change notifications to webhook subscriptions.
type Notifier struct {
	store  *store.Store
	client *http.Client
	logger *slog.Logger
}

// Option allows configuration of notifier parameters.
type Option func(*Notifier)

// WithHTTPClient sets the client used for deliveries.
//
// Default: a client with DefaultTimeout.
func WithHTTPClient(client *http.Client) Option {
	return func(n *Notifier) {
		n.client = client
	}
}

// WithLogger sets the logger for delivery diagnostics.
//
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

// NewNotifier creates a Notifier over the subscription store.
func NewNotifier(s *store.Store, opts ...Option) *Notifier {
	n := &Notifier{
		store:  s,
		client: &http.Client{Timeout: DefaultTimeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// payload is the body POSTed to each subscription.
type payload struct {
	Value  string `json:"value"`
	Result string `json:"result"`
}

// Notify delivers the current value and result of each changed cell to
// every subscription registered for it. Deliveries run concurrently
// and failures never propagate to the caller.
func (n *Notifier) Notify(ctx context.Context, cells []store.Cell) {
	if len(cells) == 0 {
		return
	}
	ids := make([]string, len(cells))
	byID := make(map[string]store.Cell, len(cells))
	for i, cell := range cells {
		ids[i] = cell.ID
		byID[cell.ID] = cell
	}

	subs, err := n.store.Queries().SubscriptionsForCells(ctx, ids)
	if err != nil {
		n.logger.Error("load webhook subscriptions", "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	var wg conc.WaitGroup
	for _, sub := range subs {
		cell, ok := byID[sub.CellID]
		if !ok {
			continue
		}
		wg.Go(func() {
			n.deliver(ctx, sub, cell)
		})
	}
	wg.Wait()
}

func (n *Notifier) deliver(ctx context.Context, sub store.WebhookSubscription, cell store.Cell) {
	body, err := json.Marshal(payload{Value: cell.Value, Result: cell.Result})
	if err != nil {
		n.logger.Error("encode webhook payload", "subscription", sub.ID, "error", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("build webhook request", "subscription", sub.ID, "url", sub.URL, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("webhook delivery failed",
			"subscription", sub.ID,
			"cell", cell.CellID,
			"error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		n.logger.Warn("webhook delivery rejected",
			"subscription", sub.ID,
			"cell", cell.CellID,
			"status", resp.StatusCode)
		return
	}
	n.logger.Debug("webhook delivered", "subscription", sub.ID, "cell", cell.CellID)
}
