package gate

import (
	"context"
	"time"

	"github.com/tokengatebot/gatekeeper/internal/store"
)

// Whitelist tracks which groups the owner has approved for gating, plus
// requests still awaiting a decision.
type Whitelist struct {
	store store.Store
	now   func() time.Time
}

// NewWhitelist creates a Whitelist over the shared store.
func NewWhitelist(s store.Store) *Whitelist {
	return &Whitelist{store: s, now: time.Now}
}

// IsWhitelisted reports whether a group has been approved.
func (w *Whitelist) IsWhitelisted(ctx context.Context, groupID string) bool {
	ok, _ := store.Get[bool](w.store.Load(ctx, store.ResWhitelist), groupID)
	return ok
}

// Approve whitelists a group and clears any pending request.
func (w *Whitelist) Approve(ctx context.Context, groupID string) bool {
	saved := w.store.Update(ctx, store.ResWhitelist, func(doc store.Document) store.Document {
		store.Set(doc, groupID, true)
		return doc
	})
	if !saved {
		return false
	}
	return w.RemovePending(ctx, groupID)
}

// AddPending records a whitelist request for the owner to review.
func (w *Whitelist) AddPending(ctx context.Context, groupID string, p PendingGroup) bool {
	p.Timestamp = w.now().Unix()
	return w.store.Update(ctx, store.ResPendingWhitelist, func(doc store.Document) store.Document {
		store.Set(doc, groupID, p)
		return doc
	})
}

// RemovePending drops a pending request. Removing an absent request
// succeeds.
func (w *Whitelist) RemovePending(ctx context.Context, groupID string) bool {
	return w.store.Update(ctx, store.ResPendingWhitelist, func(doc store.Document) store.Document {
		if _, ok := doc[groupID]; !ok {
			return nil
		}
		delete(doc, groupID)
		return doc
	})
}

// Pending returns all requests awaiting a decision.
func (w *Whitelist) Pending(ctx context.Context) map[string]PendingGroup {
	return store.Decode[PendingGroup](w.store.Load(ctx, store.ResPendingWhitelist))
}
