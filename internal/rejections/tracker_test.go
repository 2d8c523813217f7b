package rejections

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tokengatebot/gatekeeper/internal/store"
)

func newTracker(t *testing.T) *Tracker {
	t.Helper()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(store.OpenFile(t.TempDir(), log), log)
}

func TestStrikesBelowThreshold(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)

	for n := 1; n < BlockThreshold; n++ {
		blocked := tr.Track(ctx, "-100", Strike{GroupName: "Test Group"})
		require.False(t, blocked, "strike %d must not block", n)
		require.Equal(t, n, tr.Count(ctx, "-100"))
		require.False(t, tr.IsBlocked(ctx, "-100"))
	}
}

func TestThirdStrikeBlocks(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)

	require.False(t, tr.Track(ctx, "-100", Strike{}))
	require.False(t, tr.Track(ctx, "-100", Strike{}))
	require.True(t, tr.Track(ctx, "-100", Strike{}))
	require.True(t, tr.IsBlocked(ctx, "-100"))

	// Blocking is sticky until reset.
	require.True(t, tr.Track(ctx, "-100", Strike{}))
	require.Equal(t, 4, tr.Count(ctx, "-100"))
}

func TestResetBlockedGroup(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)

	for i := 0; i < 3; i++ {
		tr.Track(ctx, "-100", Strike{GroupName: "Crypto Chat", AdminID: 42, AdminName: "alice"})
	}
	require.True(t, tr.IsBlocked(ctx, "-100"))

	require.True(t, tr.Reset(ctx, "-100"))
	require.Equal(t, 0, tr.Count(ctx, "-100"))
	require.False(t, tr.IsBlocked(ctx, "-100"))

	// History fields survive the reset.
	rec, ok := store.Get[Record](tr.store.Load(ctx, store.ResRejectedGroups), "-100")
	require.True(t, ok)
	require.Equal(t, "Crypto Chat", rec.GroupName)
	require.NotZero(t, rec.FirstRejection)

	// A fresh strike behaves like the first on a clean group.
	require.False(t, tr.Track(ctx, "-100", Strike{}))
	require.Equal(t, 1, tr.Count(ctx, "-100"))
}

func TestResetUnknownGroupIsNoOp(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)

	require.True(t, tr.Reset(ctx, "-999"))
	require.Empty(t, tr.All(ctx))
}

func TestMetadataNotOverwrittenWithZeroValues(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)

	tr.Track(ctx, "-100", Strike{GroupName: "Named Group", AdminID: 7, AdminName: "bob"})
	tr.Track(ctx, "-100", Strike{})

	rec, ok := store.Get[Record](tr.store.Load(ctx, store.ResRejectedGroups), "-100")
	require.True(t, ok)
	require.Equal(t, "Named Group", rec.GroupName)
	require.EqualValues(t, 7, rec.LastAdminID)
	require.Equal(t, "bob", rec.LastAdminName)
}

func TestBlockedIsSubsetOfAll(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)

	groups := []string{"-1", "-2", "-3", "-4", "-5", "-6"}
	for _, g := range groups {
		strikes := rand.Intn(6)
		for i := 0; i < strikes; i++ {
			tr.Track(ctx, g, Strike{})
		}
	}

	all := tr.All(ctx)
	blocked := tr.Blocked(ctx)
	for groupID, rec := range all {
		require.Equal(t, rec.Count >= BlockThreshold, rec.Blocked,
			"blocked flag must track count for group %s", groupID)
		_, inBlocked := blocked[groupID]
		require.Equal(t, rec.Blocked, inBlocked)
	}
	for groupID := range blocked {
		require.Contains(t, all, groupID)
	}
}
