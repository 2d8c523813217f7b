package verify

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tokengatebot/gatekeeper/internal/gate"
)

type stubPrimary struct {
	balance float64
	err     error
	calls   int
	block   bool
}

func (s *stubPrimary) TokenBalance(ctx context.Context, wallet, token, chain string) (float64, error) {
	s.calls++
	if s.block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return s.balance, s.err
}

type stubFallback struct {
	raw   *big.Int
	err   error
	calls int
}

func (s *stubFallback) TokenBalanceRaw(ctx context.Context, wallet, token string) (*big.Int, error) {
	s.calls++
	return s.raw, s.err
}

type stubDecimals struct {
	decimals int
	err      error
}

func (s *stubDecimals) TokenDecimals(ctx context.Context, token, chain string) (int, error) {
	return s.decimals, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var testCfg = gate.GroupConfig{ChainID: "eth", Token: "0xtoken", MinBalance: 1.0}

func TestPrimarySufficientSkipsFallback(t *testing.T) {
	primary := &stubPrimary{balance: 5.0}
	fallback := &stubFallback{}
	v := New(primary, fallback, &stubDecimals{decimals: 18}, time.Second, testLogger())

	require.True(t, v.VerifyUserBalance(context.Background(), testCfg, "0xabc"))
	require.Equal(t, 1, primary.calls)
	require.Zero(t, fallback.calls)
}

func TestPrimaryFailureFallsBackWithDecimals(t *testing.T) {
	primary := &stubPrimary{err: errors.New("rate limited")}
	fallback := &stubFallback{raw: big.NewInt(150)}
	v := New(primary, fallback, &stubDecimals{decimals: 2}, time.Second, testLogger())

	// 150 / 10^2 = 1.5 >= 1.0
	require.True(t, v.VerifyUserBalance(context.Background(), testCfg, "0xabc"))
	require.Equal(t, 1, fallback.calls)
}

func TestPrimaryZeroIsInconclusive(t *testing.T) {
	primary := &stubPrimary{balance: 0}
	fallback := &stubFallback{raw: new(big.Int).Mul(big.NewInt(2), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))}
	v := New(primary, fallback, &stubDecimals{decimals: 18}, time.Second, testLogger())

	require.True(t, v.VerifyUserBalance(context.Background(), testCfg, "0xabc"))
	require.Equal(t, 1, fallback.calls)
}

func TestPrimaryTimeoutFallsBack(t *testing.T) {
	primary := &stubPrimary{block: true}
	fallback := &stubFallback{raw: big.NewInt(200)}
	v := New(primary, fallback, &stubDecimals{decimals: 2}, 20*time.Millisecond, testLogger())

	require.True(t, v.VerifyUserBalance(context.Background(), testCfg, "0xabc"))
}

func TestBothProvidersFailingIsFailClosed(t *testing.T) {
	primary := &stubPrimary{err: errors.New("down")}
	fallback := &stubFallback{err: errors.New("also down")}
	v := New(primary, fallback, &stubDecimals{decimals: 18}, time.Second, testLogger())

	require.False(t, v.VerifyUserBalance(context.Background(), testCfg, "0xabc"))
}

func TestNoPrimaryConfigured(t *testing.T) {
	fallback := &stubFallback{raw: big.NewInt(100)}
	v := New(nil, fallback, &stubDecimals{decimals: 2}, time.Second, testLogger())

	require.True(t, v.VerifyUserBalance(context.Background(), testCfg, "0xabc"))
}

func TestUndiscoverableDecimalsDefaultTo18(t *testing.T) {
	raw, _ := new(big.Int).SetString("3000000000000000000", 10) // 3 tokens at 18 decimals
	fallback := &stubFallback{raw: raw}
	v := New(nil, fallback, &stubDecimals{err: errors.New("no metadata")}, time.Second, testLogger())

	require.True(t, v.VerifyUserBalance(context.Background(), testCfg, "0xabc"))
}

func TestInclusiveThreshold(t *testing.T) {
	primary := &stubPrimary{balance: 1.0}
	v := New(primary, nil, nil, time.Second, testLogger())

	require.True(t, v.VerifyUserBalance(context.Background(), testCfg, "0xabc"))
}

func TestCanonicalChain(t *testing.T) {
	cases := map[string]string{
		"eth":      "eth",
		"mainnet":  "eth",
		"0x1":      "eth",
		"binance":  "bsc",
		"0x38":     "bsc",
		"matic":    "polygon",
		"0x89":     "polygon",
		"arbitrum": "arbitrum", // unknown passes through
	}
	for in, want := range cases {
		require.Equal(t, want, CanonicalChain(in), "chain %q", in)
	}
}
