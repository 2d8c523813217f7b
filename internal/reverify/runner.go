// Package reverify runs the periodic enforcement pass: every verified
// member of every configured group is re-checked against the group's token
// requirement, and members who no longer hold enough are kicked.
package reverify

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/tokengatebot/gatekeeper/internal/gate"
)

// minBreakerSample is how many members must be checked in a group before
// the removal breaker may trip.
const minBreakerSample = 5

// BalanceVerifier answers compliance for one member. Implementations are
// fail-closed and bound their own provider calls with timeouts, which is
// what keeps one stuck member from stalling the whole group.
type BalanceVerifier interface {
	VerifyUserBalance(ctx context.Context, cfg gate.GroupConfig, address string) bool
}

// Platform is the chat-platform capability the pass enforces through.
// RemoveMember revokes membership but allows rejoining (a kick, not a
// ban), so a member can come back after re-verifying.
type Platform interface {
	RemoveMember(ctx context.Context, groupID, memberID string) error
}

// Blocklist reports groups where enforcement is switched off by the
// 3-strike policy.
type Blocklist interface {
	IsBlocked(ctx context.Context, groupID string) bool
}

// GroupReport counts one group's outcomes.
type GroupReport struct {
	Verified  int
	Removed   int
	Errors    int
	Suspended bool
}

// Report aggregates one full pass.
type Report struct {
	Groups   int
	Verified int
	Removed  int
	Errors   int
}

// Runner executes verification passes over the shared state.
type Runner struct {
	registry *gate.Registry
	verifier BalanceVerifier
	platform Platform
	blocks   Blocklist
	isOwner  func(memberID string) bool
	log      *slog.Logger

	// removalFailureRatio suspends further removals in a group once the
	// share of non-compliant results exceeds it, so a provider outage
	// (which fails closed per member) cannot empty a whole group in one
	// pass. Zero disables the breaker.
	removalFailureRatio float64
}

// New creates a Runner. isOwner marks the permanently exempt identity.
func New(registry *gate.Registry, verifier BalanceVerifier, platform Platform, blocks Blocklist, isOwner func(string) bool, removalFailureRatio float64, log *slog.Logger) *Runner {
	if isOwner == nil {
		isOwner = func(string) bool { return false }
	}
	return &Runner{
		registry:            registry,
		verifier:            verifier,
		platform:            platform,
		blocks:              blocks,
		isOwner:             isOwner,
		removalFailureRatio: removalFailureRatio,
		log:                 log,
	}
}

// Run executes one verification pass. Groups and members are processed
// sequentially; a failure anywhere is logged and counted, never fatal to
// the rest of the pass.
func (r *Runner) Run(ctx context.Context) Report {
	configs := r.registry.Configs(ctx)
	if len(configs) == 0 {
		r.log.Info("no groups configured for verification")
		return Report{}
	}

	r.log.Info("starting verification cycle", "groups", len(configs))

	var report Report
	for _, groupID := range sortedKeys(configs) {
		// Re-read per group: configuration may be edited mid-cycle by the
		// interactive process.
		cfg, ok := r.registry.GroupConfig(ctx, groupID)
		if !ok {
			cfg = configs[groupID]
		}

		gr := r.verifyGroup(ctx, groupID, cfg)
		report.Groups++
		report.Verified += gr.Verified
		report.Removed += gr.Removed
		report.Errors += gr.Errors

		r.log.Info("group verification completed",
			"group_id", groupID,
			"verified", gr.Verified,
			"removed", gr.Removed,
			"errors", gr.Errors,
			"suspended", gr.Suspended,
		)
	}

	r.log.Info("verification cycle completed",
		"groups", report.Groups,
		"verified", report.Verified,
		"removed", report.Removed,
		"errors", report.Errors,
	)
	return report
}

func (r *Runner) verifyGroup(ctx context.Context, groupID string, cfg gate.GroupConfig) GroupReport {
	var rep GroupReport

	if r.blocks != nil && r.blocks.IsBlocked(ctx, groupID) {
		r.log.Info("skipping blocked group", "group_id", groupID)
		return rep
	}

	users := r.registry.Users(ctx, groupID)
	r.log.Info("verifying group members", "group_id", groupID, "members", len(users))

	checked := 0
	flagged := 0
	for _, memberID := range sortedKeys(users) {
		rec := users[memberID]

		// Owner accounts are permanently exempt.
		if r.isOwner(memberID) {
			r.log.Info("skipping owner", "member_id", memberID)
			continue
		}
		if !rec.Verified {
			continue
		}

		checked++
		if r.verifier.VerifyUserBalance(ctx, cfg, rec.Address) {
			rep.Verified++
			continue
		}
		flagged++

		if !rep.Suspended && r.removalFailureRatio > 0 &&
			checked >= minBreakerSample &&
			float64(flagged)/float64(checked) > r.removalFailureRatio {
			rep.Suspended = true
			r.log.Error("removal breaker tripped, suspending removals for group",
				"group_id", groupID,
				"checked", checked,
				"flagged", flagged,
			)
		}
		if rep.Suspended {
			rep.Errors++
			continue
		}

		r.log.Info("member below requirement, removing",
			"group_id", groupID,
			"member_id", memberID,
			"address", rec.Address,
		)
		if err := r.platform.RemoveMember(ctx, groupID, memberID); err != nil {
			rep.Errors++
			r.log.Error("remove member", "group_id", groupID, "member_id", memberID, "error", err)
			continue
		}

		// Persist immediately so a crash mid-cycle loses at most this one
		// member's bookkeeping.
		if !r.registry.ClearVerified(ctx, groupID, memberID) {
			rep.Errors++
			continue
		}
		rep.Removed++
	}

	return rep
}

// Start runs passes on a fixed interval until ctx is cancelled. The cron
// binary calls Run directly instead.
func (r *Runner) Start(ctx context.Context, interval time.Duration) {
	r.log.Info("reverification loop started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Run(ctx)
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
