package resource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/odoo-mcp/bridge/internal/constants"
	"github.com/odoo-mcp/bridge/internal/models"
	"github.com/odoo-mcp/bridge/internal/wire"
)

// NotifyFunc pushes a resources/updated notification for uri to one client.
// The MCP server host supplies this, bound to the client's transport.
type NotifyFunc func(clientID, uri string)

// subscriptionTable owns every live Subscription (spec §3's Subscription
// type), enforcing the per-client cap (spec §4.11: "at most
// constants.DefaultMaxSubscriptions per client") and running the poll loop
// that compares write_date to detect changes.
type subscriptionTable struct {
	mu    sync.Mutex
	byKey map[string]*models.Subscription // key: clientID + "\x00" + uri
}

func newSubscriptionTable() *subscriptionTable {
	return &subscriptionTable{byKey: make(map[string]*models.Subscription)}
}

func subKey(clientID, uri string) string { return clientID + "\x00" + uri }

// countFor returns how many live subscriptions a client currently holds.
func (t *subscriptionTable) countFor(clientID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	prefix := clientID + "\x00"
	for key := range t.byKey {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// Subscribe registers clientID's interest in uri, recording an initial
// signature so the first poll has something to compare against. Only
// record and system/info resources support subscription (spec §4.11);
// callers should have already confirmed that with Subscribable.
func (e *Engine) Subscribe(ctx context.Context, clientID, uri string) error {
	if !Subscribable(uri) {
		return fmt.Errorf("resource: %q does not support subscriptions", uri)
	}

	e.subs.mu.Lock()
	n := 0
	prefix := clientID + "\x00"
	for key := range e.subs.byKey {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			n++
		}
	}
	e.subs.mu.Unlock()
	if n >= constants.DefaultMaxSubscriptions {
		return fmt.Errorf("resource: client %s is already at the %d-subscription cap", clientID, constants.DefaultMaxSubscriptions)
	}

	sig, err := e.signature(ctx, uri)
	if err != nil {
		return err
	}

	e.subs.mu.Lock()
	e.subs.byKey[subKey(clientID, uri)] = &models.Subscription{
		ClientID:      clientID,
		URI:           uri,
		LastSignature: sig,
		PollInterval:  constants.DefaultSubscriptionPoll,
		CreatedAt:     e.now(),
	}
	e.subs.mu.Unlock()
	return nil
}

// Unsubscribe removes clientID's subscription to uri, if any.
func (e *Engine) Unsubscribe(clientID, uri string) {
	e.subs.mu.Lock()
	defer e.subs.mu.Unlock()
	delete(e.subs.byKey, subKey(clientID, uri))
}

// UnsubscribeAll drops every subscription belonging to clientID, for use
// when its transport disconnects.
func (e *Engine) UnsubscribeAll(clientID string) {
	e.subs.mu.Lock()
	defer e.subs.mu.Unlock()
	prefix := clientID + "\x00"
	for key := range e.subs.byKey {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(e.subs.byKey, key)
		}
	}
}

// Subscribable reports whether uri is one of the resource shapes the engine
// will track changes for: a single record, or system/info.
func Subscribable(raw string) bool {
	u, err := Parse(raw)
	if err != nil {
		return false
	}
	if u.Category == CategorySystem && len(u.Segments) == 1 && u.Segments[0] == "info" {
		return true
	}
	if u.Category == CategoryRecord && len(u.Segments) == 2 {
		return true
	}
	return false
}

// signature computes a comparable fingerprint for uri's current state: a
// record's write_date, or the registry's model and field counts for
// system/info. A changed signature is what triggers a
// resources/updated notification.
func (e *Engine) signature(ctx context.Context, raw string) (string, error) {
	u, err := Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Category {
	case CategorySystem:
		modelCount, fieldCount := e.deps.Registry.Summary()
		return fmt.Sprintf("models=%d fields=%d", modelCount, fieldCount), nil
	case CategoryRecord:
		model, idStr := u.Segments[0], u.Segments[1]
		raw, err := e.deps.Conn.Call(ctx, wire.Call{
			Model:  model,
			Method: "read",
			Args:   []interface{}{[]interface{}{mustAtoi(idStr)}},
			Kwargs: map[string]interface{}{"fields": []interface{}{"write_date"}},
		})
		if err != nil {
			return "", wire.AsFault(model, "read", err)
		}
		records, _ := raw.([]interface{})
		if len(records) == 0 {
			return "", fmt.Errorf("resource: record %s/%s not found", model, idStr)
		}
		rec, _ := records[0].(map[string]interface{})
		wd, _ := rec["write_date"].(string)
		return wd, nil
	default:
		return "", fmt.Errorf("resource: %q is not subscribable", raw)
	}
}

func mustAtoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// now is overridden in tests; production code always ticks real wall time.
func (e *Engine) now() time.Time { return timeNow() }

var timeNow = time.Now

// RunSubscriptionPoller blocks, polling every live subscription on its
// PollInterval until ctx is cancelled, invoking notify for any signature
// change (spec §4.11: "subscriptions are polling-based; default interval
// constants.DefaultSubscriptionPoll; a changed write_date (or, for
// system/info, a changed registry model/field count) triggers a
// resources/updated notification"). One goroutine serves every
// subscription; a single slow backend call delays that tick only, not the
// whole bridge, since Call already carries its own per-request timeout.
func (e *Engine) RunSubscriptionPoller(ctx context.Context, notify NotifyFunc) {
	ticker := time.NewTicker(constants.DefaultSubscriptionPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.pollOnce(ctx, notify)
		}
	}
}

func (e *Engine) pollOnce(ctx context.Context, notify NotifyFunc) {
	e.subs.mu.Lock()
	snapshot := make([]*models.Subscription, 0, len(e.subs.byKey))
	for _, s := range e.subs.byKey {
		snapshot = append(snapshot, s)
	}
	e.subs.mu.Unlock()

	for _, s := range snapshot {
		sig, err := e.signature(ctx, s.URI)
		if err != nil {
			continue // a failed poll (deleted record, lost access) keeps the subscription; it is retried next tick and only Unsubscribe/UnsubscribeAll remove it
		}
		e.subs.mu.Lock()
		current, ok := e.subs.byKey[subKey(s.ClientID, s.URI)]
		changed := ok && current.LastSignature != sig
		if ok {
			current.LastSignature = sig
		}
		e.subs.mu.Unlock()
		if changed {
			notify(s.ClientID, s.URI)
		}
	}
}
