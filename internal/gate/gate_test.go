package gate

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tokengatebot/gatekeeper/internal/store"
)

func newStore(t *testing.T) store.Store {
	t.Helper()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return store.OpenFile(t.TempDir(), log)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestGroupConfigRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newStore(t), testLogger())

	cfg := GroupConfig{ChainID: "0x1", Token: "0xToKeN", MinBalance: 1000, Verifier: "0xv"}
	require.True(t, r.SetGroupConfig(ctx, "-100", cfg))

	got, ok := r.GroupConfig(ctx, "-100")
	require.True(t, ok)
	require.Equal(t, cfg, got)

	_, ok = r.GroupConfig(ctx, "-999")
	require.False(t, ok)
	require.Len(t, r.Configs(ctx), 1)
}

func TestMarkAndClearVerified(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newStore(t), testLogger())

	require.True(t, r.MarkVerified(ctx, "-100", "7001", "0xabc"))

	rec := r.Users(ctx, "-100")["7001"]
	require.True(t, rec.Verified)
	require.True(t, rec.VerificationTx)
	require.Equal(t, "0xabc", rec.Address)
	require.NotZero(t, rec.LastVerified)

	require.True(t, r.ClearVerified(ctx, "-100", "7001"))

	rec = r.Users(ctx, "-100")["7001"]
	require.False(t, rec.Verified)
	// Address and proof history survive the flip.
	require.Equal(t, "0xabc", rec.Address)
	require.NotZero(t, rec.LastVerified)
}

func TestUsersOfUnknownGroupIsEmpty(t *testing.T) {
	r := NewRegistry(newStore(t), testLogger())
	require.Empty(t, r.Users(context.Background(), "-404"))
}

func TestWhitelistFlow(t *testing.T) {
	ctx := context.Background()
	w := NewWhitelist(newStore(t))

	require.False(t, w.IsWhitelisted(ctx, "-100"))

	require.True(t, w.AddPending(ctx, "-100", PendingGroup{
		GroupName: "Test Group",
		AdminID:   42,
		AdminName: "alice",
	}))

	pending := w.Pending(ctx)
	require.Contains(t, pending, "-100")
	require.NotZero(t, pending["-100"].Timestamp)

	require.True(t, w.Approve(ctx, "-100"))
	require.True(t, w.IsWhitelisted(ctx, "-100"))
	require.Empty(t, w.Pending(ctx))

	// Removing an absent pending entry succeeds.
	require.True(t, w.RemovePending(ctx, "-100"))
}
