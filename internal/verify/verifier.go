// Package verify answers whether a member's on-chain balance meets a
// group's token requirement, falling back across balance providers and
// resolving to "not compliant" when every provider fails.
package verify

import (
	"context"
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/tokengatebot/gatekeeper/internal/gate"
)

// DefaultDecimals is assumed when a token's precision cannot be
// discovered.
const DefaultDecimals = 18

// BalanceProvider returns a member's token balance already resolved to a
// decimal amount (the primary provider).
type BalanceProvider interface {
	TokenBalance(ctx context.Context, wallet, token, chain string) (float64, error)
}

// RawBalanceProvider returns a balance in raw token units, still scaled by
// the token's decimals (the fallback provider).
type RawBalanceProvider interface {
	TokenBalanceRaw(ctx context.Context, wallet, token string) (*big.Int, error)
}

// DecimalsProvider resolves a token's decimal precision.
type DecimalsProvider interface {
	TokenDecimals(ctx context.Context, token, chain string) (int, error)
}

// Verifier runs the fallback chain. Primary may be nil when no usable
// credential is configured; the fallback path then carries every check.
type Verifier struct {
	primary  BalanceProvider
	fallback RawBalanceProvider
	decimals DecimalsProvider
	timeout  time.Duration
	log      *slog.Logger
}

// New creates a Verifier. Every provider call is bounded by timeout.
func New(primary BalanceProvider, fallback RawBalanceProvider, decimals DecimalsProvider, timeout time.Duration, log *slog.Logger) *Verifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Verifier{
		primary:  primary,
		fallback: fallback,
		decimals: decimals,
		timeout:  timeout,
		log:      log,
	}
}

// VerifyUserBalance reports whether address holds at least cfg.MinBalance
// of the configured token. It never returns an error: any failure after
// exhausting the fallback chain resolves to false. A zero result from the
// primary provider is treated as inconclusive and triggers the fallback,
// since providers have been observed returning zero on transient errors.
func (v *Verifier) VerifyUserBalance(ctx context.Context, cfg gate.GroupConfig, address string) bool {
	chain := CanonicalChain(cfg.ChainID)
	if chain == "" {
		chain = "eth"
	}

	v.log.Info("checking balance",
		"address", address,
		"chain", chain,
		"token", cfg.Token,
		"min_balance", cfg.MinBalance,
	)

	balance := 0.0
	if v.primary != nil {
		callCtx, cancel := context.WithTimeout(ctx, v.timeout)
		got, err := v.primary.TokenBalance(callCtx, address, cfg.Token, chain)
		cancel()
		switch {
		case err != nil:
			v.log.Warn("primary provider failed, falling back",
				"address", address, "chain", chain, "provider", "moralis", "error", err)
		case got > 0:
			balance = got
		}
	}

	if balance <= 0 && v.fallback != nil {
		callCtx, cancel := context.WithTimeout(ctx, v.timeout)
		raw, err := v.fallback.TokenBalanceRaw(callCtx, address, cfg.Token)
		cancel()
		if err != nil {
			v.log.Error("fallback provider failed",
				"address", address, "chain", chain, "provider", "etherscan", "error", err)
		} else {
			balance = scaleRaw(raw, v.resolveDecimals(ctx, cfg.Token, chain))
		}
	}

	compliant := balance >= cfg.MinBalance
	v.log.Info("balance resolved",
		"address", address,
		"balance", balance,
		"min_balance", cfg.MinBalance,
		"compliant", compliant,
	)
	return compliant
}

func (v *Verifier) resolveDecimals(ctx context.Context, token, chain string) int {
	if v.decimals == nil {
		return DefaultDecimals
	}
	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	decimals, err := v.decimals.TokenDecimals(callCtx, token, chain)
	if err != nil || decimals < 0 {
		v.log.Warn("token decimals unresolved, assuming default",
			"token", token, "chain", chain, "error", err)
		return DefaultDecimals
	}
	return decimals
}

func scaleRaw(raw *big.Int, decimals int) float64 {
	if raw == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(raw).Float64()
	return f / math.Pow10(decimals)
}
