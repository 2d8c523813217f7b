package store

import (
	"context"
	"log/slog"
)

// Resource names for the shared documents. Both processes address the
// store exclusively through these.
const (
	ResConfig           = "config"
	ResUserData         = "user_data"
	ResWhitelist        = "whitelist"
	ResPendingWhitelist = "pending_whitelist"
	ResRejectedGroups   = "rejected_groups"
)

// Store is the shared-state document store. Load never fails: a missing or
// unreadable document degrades to an empty one (the error is logged).
// Save and Update report success; they never propagate errors to callers.
type Store interface {
	Load(ctx context.Context, name string) Document
	Save(ctx context.Context, name string, doc Document) bool

	// Update applies fn to the current document and persists the result
	// while holding a document-level lock, so concurrent read-modify-write
	// sequences on the same resource cannot lose each other's changes.
	Update(ctx context.Context, name string, fn func(Document) Document) bool

	Close() error
}

// Config selects and parameterizes the backend. The decision is made once
// at process start and frozen for the process lifetime.
type Config struct {
	// DatabaseURL, when set, selects the transactional backend. Supports
	// postgres:// and sqlite:// URLs.
	DatabaseURL string

	// DataDir roots the file backend when DatabaseURL is empty.
	DataDir string
}

// Open creates the store selected by cfg.
func Open(cfg Config, log *slog.Logger) (Store, error) {
	if cfg.DatabaseURL != "" {
		return OpenDB(cfg.DatabaseURL, log)
	}
	return OpenFile(cfg.DataDir, log), nil
}
