// Package rejections implements the 3-strike blocking policy: a group
// whose admins reject the bot's moderation requests three times is marked
// blocked, and the bot goes passive in that group until an explicit reset.
package rejections

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tokengatebot/gatekeeper/internal/store"
)

// BlockThreshold is the strike count at which a group becomes blocked.
const BlockThreshold = 3

// Record is one group's rejection history. Blocked is derived state:
// every mutation recomputes it from Count, so the two cannot diverge.
type Record struct {
	Count          int    `json:"rejection_count"`
	GroupName      string `json:"group_name"`
	LastAdminID    int64  `json:"last_admin_id,omitempty"`
	LastAdminName  string `json:"last_admin_name"`
	FirstRejection int64  `json:"first_rejection"`
	LastRejection  int64  `json:"last_rejection"`
	Blocked        bool   `json:"blocked"`
}

// Strike carries the optional metadata of one rejection event. Zero-value
// fields leave the stored record's prior values intact.
type Strike struct {
	GroupName string
	AdminID   int64
	AdminName string
}

// Tracker maintains rejection records in the shared rejected_groups
// document.
type Tracker struct {
	store store.Store
	log   *slog.Logger
	now   func() time.Time
}

// New creates a Tracker over the shared store.
func New(s store.Store, log *slog.Logger) *Tracker {
	return &Tracker{store: s, log: log, now: time.Now}
}

// Track records one rejection for a group and returns whether the group is
// now blocked. The increment and the blocked recomputation happen inside a
// single locked store update, so concurrent strikes cannot be lost.
func (t *Tracker) Track(ctx context.Context, groupID string, strike Strike) bool {
	blocked := false
	t.store.Update(ctx, store.ResRejectedGroups, func(doc store.Document) store.Document {
		now := t.now().Unix()

		rec, ok := store.Get[Record](doc, groupID)
		if !ok {
			rec = Record{
				GroupName:      fmt.Sprintf("Group %s", groupID),
				LastAdminName:  "Unknown",
				FirstRejection: now,
			}
		}

		rec.Count++
		rec.LastRejection = now
		if strike.GroupName != "" {
			rec.GroupName = strike.GroupName
		}
		if strike.AdminID != 0 {
			rec.LastAdminID = strike.AdminID
		}
		if strike.AdminName != "" {
			rec.LastAdminName = strike.AdminName
		}
		rec.Blocked = rec.Count >= BlockThreshold

		store.Set(doc, groupID, rec)
		blocked = rec.Blocked
		return doc
	})

	t.log.Info("rejection tracked",
		"group_id", groupID,
		"admin_id", strike.AdminID,
		"blocked", blocked,
	)
	return blocked
}

// IsBlocked reports whether a group has reached the strike threshold.
// A group with no record is not blocked.
func (t *Tracker) IsBlocked(ctx context.Context, groupID string) bool {
	rec, ok := store.Get[Record](t.store.Load(ctx, store.ResRejectedGroups), groupID)
	return ok && rec.Blocked
}

// Count returns a group's current strike count, zero if absent.
func (t *Tracker) Count(ctx context.Context, groupID string) int {
	rec, _ := store.Get[Record](t.store.Load(ctx, store.ResRejectedGroups), groupID)
	return rec.Count
}

// Reset clears a group's strikes and unblocks it. The record's history
// fields survive; only the count and the blocked flag are cleared.
// Resetting a group with no record is a successful no-op.
func (t *Tracker) Reset(ctx context.Context, groupID string) bool {
	return t.store.Update(ctx, store.ResRejectedGroups, func(doc store.Document) store.Document {
		rec, ok := store.Get[Record](doc, groupID)
		if !ok {
			return nil
		}
		rec.Count = 0
		rec.Blocked = false
		store.Set(doc, groupID, rec)
		return doc
	})
}

// Blocked returns only the groups currently blocked.
func (t *Tracker) Blocked(ctx context.Context) map[string]Record {
	all := t.All(ctx)
	blocked := make(map[string]Record)
	for groupID, rec := range all {
		if rec.Blocked {
			blocked[groupID] = rec
		}
	}
	return blocked
}

// All returns every group with rejection history, for admin viewing.
func (t *Tracker) All(ctx context.Context) map[string]Record {
	return store.Decode[Record](t.store.Load(ctx, store.ResRejectedGroups))
}
