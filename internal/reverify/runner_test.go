package reverify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tokengatebot/gatekeeper/internal/gate"
	"github.com/tokengatebot/gatekeeper/internal/store"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubVerifier struct {
	compliant map[string]bool // by address
	calls     int
}

func (s *stubVerifier) VerifyUserBalance(ctx context.Context, cfg gate.GroupConfig, address string) bool {
	s.calls++
	return s.compliant[address]
}

type fakePlatform struct {
	mu      sync.Mutex
	removed []string // "groupID/memberID"
	err     error
}

func (f *fakePlatform) RemoveMember(ctx context.Context, groupID, memberID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, groupID+"/"+memberID)
	return nil
}

type stubBlocklist struct{ blocked map[string]bool }

func (s *stubBlocklist) IsBlocked(ctx context.Context, groupID string) bool {
	return s.blocked[groupID]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	registry *gate.Registry
	verifier *stubVerifier
	platform *fakePlatform
	blocks   *stubBlocklist
	runner   *Runner
}

func setup(t *testing.T, isOwner func(string) bool, ratio float64) *fixture {
	t.Helper()

	log := testLogger()
	s := store.OpenFile(t.TempDir(), log)

	f := &fixture{
		registry: gate.NewRegistry(s, log),
		verifier: &stubVerifier{compliant: map[string]bool{}},
		platform: &fakePlatform{},
		blocks:   &stubBlocklist{blocked: map[string]bool{}},
	}
	f.runner = New(f.registry, f.verifier, f.platform, f.blocks, isOwner, ratio, log)
	return f
}

func (f *fixture) addVerifiedMember(t *testing.T, groupID, memberID, address string) {
	t.Helper()
	require.True(t, f.registry.MarkVerified(context.Background(), groupID, memberID, address))
}

var groupCfg = gate.GroupConfig{ChainID: "eth", Token: "0xtoken", MinBalance: 1000}

func TestNonCompliantMemberIsRemovedOnce(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil, 0)

	require.True(t, f.registry.SetGroupConfig(ctx, "-100", groupCfg))
	f.addVerifiedMember(t, "-100", "7001", "0xpoor")
	f.verifier.compliant["0xpoor"] = false

	report := f.runner.Run(ctx)

	require.Equal(t, 1, report.Removed)
	require.Zero(t, report.Errors)
	require.Equal(t, []string{"-100/7001"}, f.platform.removed)

	rec := f.registry.Users(ctx, "-100")["7001"]
	require.False(t, rec.Verified)
	require.Equal(t, "0xpoor", rec.Address)
}

func TestCompliantMemberUntouched(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil, 0)

	require.True(t, f.registry.SetGroupConfig(ctx, "-100", groupCfg))
	f.addVerifiedMember(t, "-100", "7001", "0xrich")
	f.verifier.compliant["0xrich"] = true

	before := f.registry.Users(ctx, "-100")["7001"]
	report := f.runner.Run(ctx)

	require.Equal(t, 1, report.Verified)
	require.Zero(t, report.Removed)
	require.Empty(t, f.platform.removed)
	require.Equal(t, before, f.registry.Users(ctx, "-100")["7001"])
}

func TestOwnerNeverRemoved(t *testing.T) {
	ctx := context.Background()
	f := setup(t, func(memberID string) bool { return memberID == "9000" }, 0)

	require.True(t, f.registry.SetGroupConfig(ctx, "-100", groupCfg))
	f.addVerifiedMember(t, "-100", "9000", "0xowner")
	f.verifier.compliant["0xowner"] = false

	report := f.runner.Run(ctx)

	require.Zero(t, report.Removed)
	require.Empty(t, f.platform.removed)
	require.True(t, f.registry.Users(ctx, "-100")["9000"].Verified)
}

func TestUnverifiedMemberSkipped(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil, 0)

	require.True(t, f.registry.SetGroupConfig(ctx, "-100", groupCfg))
	f.addVerifiedMember(t, "-100", "7001", "0xgone")
	require.True(t, f.registry.ClearVerified(ctx, "-100", "7001"))

	f.runner.Run(ctx)
	require.Zero(t, f.verifier.calls)
	require.Empty(t, f.platform.removed)
}

func TestRemovalFailureCountedNotFatal(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil, 0)
	f.platform.err = errors.New("not enough rights")

	require.True(t, f.registry.SetGroupConfig(ctx, "-100", groupCfg))
	f.addVerifiedMember(t, "-100", "7001", "0xpoor")
	f.addVerifiedMember(t, "-100", "7002", "0xrich")
	f.verifier.compliant["0xrich"] = true

	report := f.runner.Run(ctx)

	require.Equal(t, 1, report.Errors)
	require.Equal(t, 1, report.Verified)
	require.Zero(t, report.Removed)
	// Removal failed, so the member keeps their verified flag.
	require.True(t, f.registry.Users(ctx, "-100")["7001"].Verified)
}

func TestBlockedGroupSkippedEntirely(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil, 0)
	f.blocks.blocked["-100"] = true

	require.True(t, f.registry.SetGroupConfig(ctx, "-100", groupCfg))
	f.addVerifiedMember(t, "-100", "7001", "0xpoor")

	report := f.runner.Run(ctx)

	require.Equal(t, 1, report.Groups)
	require.Zero(t, f.verifier.calls)
	require.Empty(t, f.platform.removed)
	require.True(t, f.registry.Users(ctx, "-100")["7001"].Verified)
}

func TestRemovalBreakerSuspendsMassRemoval(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil, 0.5)

	require.True(t, f.registry.SetGroupConfig(ctx, "-100", groupCfg))
	for i := 1; i <= 6; i++ {
		f.addVerifiedMember(t, "-100", fmt.Sprintf("700%d", i), fmt.Sprintf("0xaddr%d", i))
	}
	// Every check fails, as during a provider outage.

	report := f.runner.Run(ctx)

	// The breaker needs a minimum sample before tripping, so the first
	// few removals go through; the rest are suspended.
	require.Equal(t, minBreakerSample-1, report.Removed)
	require.Equal(t, 2, report.Errors)
	require.Len(t, f.platform.removed, minBreakerSample-1)
}

func TestMultipleGroupsIndependent(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil, 0)

	require.True(t, f.registry.SetGroupConfig(ctx, "-100", groupCfg))
	require.True(t, f.registry.SetGroupConfig(ctx, "-200", gate.GroupConfig{ChainID: "polygon", Token: "0xother", MinBalance: 5}))
	f.addVerifiedMember(t, "-100", "7001", "0xpoor")
	f.addVerifiedMember(t, "-200", "7001", "0xrich")
	f.verifier.compliant["0xrich"] = true

	report := f.runner.Run(ctx)

	require.Equal(t, 2, report.Groups)
	require.Equal(t, 1, report.Removed)
	require.Equal(t, 1, report.Verified)
	require.Equal(t, []string{"-100/7001"}, f.platform.removed)
}

func TestStartLoopStopsOnCancel(t *testing.T) {
	f := setup(t, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.runner.Start(ctx, 10*time.Millisecond)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop on cancel")
	}
}
