package gate

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/tokengatebot/gatekeeper/internal/store"
)

// Registry reads and writes group configuration and membership records.
// Every call goes back to the store; nothing is cached, so both processes
// always observe the latest shared state.
type Registry struct {
	store store.Store
	log   *slog.Logger
	now   func() time.Time
}

// NewRegistry creates a Registry over the shared store.
func NewRegistry(s store.Store, log *slog.Logger) *Registry {
	return &Registry{store: s, log: log, now: time.Now}
}

// Configs returns all configured groups, freshly loaded.
func (r *Registry) Configs(ctx context.Context) map[string]GroupConfig {
	return store.Decode[GroupConfig](r.store.Load(ctx, store.ResConfig))
}

// GroupConfig returns one group's configuration, freshly loaded.
func (r *Registry) GroupConfig(ctx context.Context, groupID string) (GroupConfig, bool) {
	return store.Get[GroupConfig](r.store.Load(ctx, store.ResConfig), groupID)
}

// SetGroupConfig creates or replaces a group's token requirement.
func (r *Registry) SetGroupConfig(ctx context.Context, groupID string, cfg GroupConfig) bool {
	return r.store.Update(ctx, store.ResConfig, func(doc store.Document) store.Document {
		store.Set(doc, groupID, cfg)
		return doc
	})
}

// Users returns all membership records of a group, freshly loaded.
func (r *Registry) Users(ctx context.Context, groupID string) map[string]UserRecord {
	groups, ok := store.Get[map[string]UserRecord](r.store.Load(ctx, store.ResUserData), groupID)
	if !ok {
		return map[string]UserRecord{}
	}
	return groups
}

// MarkVerified records a successful balance proof for a member.
func (r *Registry) MarkVerified(ctx context.Context, groupID, memberID, address string) bool {
	return r.mutateUser(ctx, groupID, memberID, func(rec UserRecord) UserRecord {
		rec.Address = address
		rec.Verified = true
		rec.LastVerified = r.now().Unix()
		rec.VerificationTx = true
		return rec
	})
}

// ClearVerified flips a member to unverified after detected
// non-compliance. The record itself is never deleted.
func (r *Registry) ClearVerified(ctx context.Context, groupID, memberID string) bool {
	return r.mutateUser(ctx, groupID, memberID, func(rec UserRecord) UserRecord {
		rec.Verified = false
		return rec
	})
}

func (r *Registry) mutateUser(ctx context.Context, groupID, memberID string, fn func(UserRecord) UserRecord) bool {
	return r.store.Update(ctx, store.ResUserData, func(doc store.Document) store.Document {
		group, ok := store.Get[map[string]json.RawMessage](doc, groupID)
		if !ok {
			group = map[string]json.RawMessage{}
		}

		var rec UserRecord
		if raw, ok := group[memberID]; ok {
			if err := json.Unmarshal(raw, &rec); err != nil {
				r.log.Error("parse user record", "group_id", groupID, "member_id", memberID, "error", err)
				rec = UserRecord{}
			}
		}

		raw, err := json.Marshal(fn(rec))
		if err != nil {
			return nil
		}
		group[memberID] = raw
		store.Set(doc, groupID, group)
		return doc
	})
}
