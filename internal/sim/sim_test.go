package sim

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/0xBased-lang/zmart-engine/internal/bank"
	"github.com/0xBased-lang/zmart-engine/internal/crypto"
	"github.com/0xBased-lang/zmart-engine/internal/domain"
	"github.com/0xBased-lang/zmart-engine/internal/engine"
	"github.com/0xBased-lang/zmart-engine/internal/fixedpoint"
	"github.com/0xBased-lang/zmart-engine/internal/store/memory"
)

type captureBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *captureBus) Publish(_ context.Context, evt domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
	return nil
}

func (b *captureBus) countByKind() map[domain.EventKind]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	counts := make(map[domain.EventKind]int)
	for _, evt := range b.events {
		counts[evt.Kind]++
	}
	return counts
}

func testGenesis() domain.GlobalConfig {
	return domain.GlobalConfig{
		ProtocolFeeBps:        200,
		CreatorFeeBps:         100,
		LiquidityFeeBps:       700,
		ProposalThresholdBps:  6000,
		DisputeThresholdBps:   6000,
		MinResolutionDelay:    time.Hour,
		DisputeWindow:         24 * time.Hour,
		MaxMarketAge:          90 * 24 * time.Hour,
		MinResolverReputation: 100,
		MinTradeSize:          fixedpoint.One / 1000,
		MinPoolReserve:        fixedpoint.One,
	}
}

func testSimConfig(seed int64) Config {
	return Config{
		Markets:      3,
		Traders:      5,
		Rounds:       4,
		Seed:         seed,
		TraderFunds:  500 * fixedpoint.One,
		CreatorFunds: 200 * fixedpoint.One,
		MaxSpend:     5 * fixedpoint.One,
		LiquidityB:   20 * fixedpoint.One,
		Interval:     time.Minute,
	}
}

// newTestSim builds a simulator over fresh in-memory collaborators. The
// returned ledger and store are shared so tests can reuse them across runs.
func newTestSim(seed int64, bus domain.EventBus, st *memory.Store, ledger *bank.Ledger) *Simulator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := NewClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	eng := engine.New(st, ledger, clk, logger)
	run := NewRunner(eng, RunnerOptions{Bus: bus}, logger)
	auth := crypto.NewAuthenticator(clk, 0)
	return New(run, ledger, clk, auth, testGenesis(), testSimConfig(seed), logger)
}

func TestRunFullLifecycle(t *testing.T) {
	bus := &captureBus{}
	ledger := bank.NewLedger()
	s := newTestSim(7, bus, memory.New(), ledger)

	sum, err := s.Run(context.Background())
	require.NoError(t, err)

	cfg := testSimConfig(7)
	require.Equal(t, cfg.Markets, sum.Finalized+sum.Rejected,
		"every market ends either finalized or rejected")

	// Minting happens only while funding the cast; every later movement is
	// a transfer, so total supply is exact.
	wantSupply := int64(cfg.Traders)*cfg.TraderFunds + int64(cfg.Markets)*cfg.CreatorFunds
	supply, err := ledger.TotalSupply(context.Background())
	require.NoError(t, err)
	require.Equal(t, wantSupply, supply)

	counts := bus.countByKind()
	require.Equal(t, cfg.Markets, counts[domain.EventMarketCreated])
	require.Equal(t, sum.Finalized, counts[domain.EventMarketFinalized])
	require.Equal(t, int(sum.Claims), counts[domain.EventWinningsClaimed])

	// Each market runs one proposal ballot; disputed markets add one
	// dispute ballot.
	require.Equal(t, cfg.Markets+sum.Disputed, counts[domain.EventVotesAggregated])
	require.Equal(t, cfg.Markets*cfg.Traders+sum.Disputed*cfg.Traders, counts[domain.EventVoteSubmitted])
	require.Equal(t, cfg.Markets-sum.Rejected, counts[domain.EventProposalApproved])
	require.Equal(t, cfg.Markets-sum.Rejected, counts[domain.EventMarketActivated])
	require.Equal(t, cfg.Markets-sum.Rejected, counts[domain.EventResolutionProposed])
	require.Equal(t, sum.Disputed, counts[domain.EventResolutionDisputed])

	// Trades counted equal trade events emitted.
	require.EqualValues(t, sum.Trades, int64(counts[domain.EventSharesBought]+counts[domain.EventSharesSold]))

	if sum.Trades > 0 {
		require.Positive(t, sum.Volume)
		require.Positive(t, sum.Treasury, "protocol fees accrue to the treasury once anything trades")
	}
	if sum.Finalized > 0 && sum.Trades > 0 {
		require.Positive(t, sum.Claims, "finalized markets settle their positions")
	}
}

func TestRunDeterministicPerSeed(t *testing.T) {
	runOnce := func() Summary {
		s := newTestSim(42, nil, memory.New(), bank.NewLedger())
		sum, err := s.Run(context.Background())
		require.NoError(t, err)
		sum.RunID = ""
		return sum
	}

	first := runOnce()
	second := runOnce()
	require.Equal(t, first, second, "identical seeds replay identically")
}

func TestRunAdoptsExistingConfig(t *testing.T) {
	st := memory.New()
	ledger := bank.NewLedger()

	s1 := newTestSim(7, nil, st, ledger)
	_, err := s1.Run(context.Background())
	require.NoError(t, err)

	// Same backend again: bootstrap reports already-done, the run adopts
	// the installed config and still completes.
	s2 := newTestSim(7, nil, st, ledger)
	sum, err := s2.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, testSimConfig(7).Markets, sum.Finalized+sum.Rejected)
}

func TestRunnerEmitSkipsZeroEvents(t *testing.T) {
	bus := &captureBus{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRunner(nil, RunnerOptions{Bus: bus}, logger)

	r.emit(context.Background(), domain.Event{})
	require.Empty(t, bus.events)

	r.emit(context.Background(), domain.Event{ID: "e1", Kind: domain.EventEngineResumed})
	require.Len(t, bus.events, 1)
}
