package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/0xBased-lang/zmart-engine/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWireMemoryBackend(t *testing.T) {
	cfg := config.Defaults()
	require.NoError(t, cfg.Validate())

	deps, cleanup, err := Wire(context.Background(), &cfg, discardLogger())
	require.NoError(t, err)
	defer cleanup()

	require.NotNil(t, deps.Store)
	require.NotNil(t, deps.Bank)
	require.NotNil(t, deps.Clock)
	require.NotNil(t, deps.Audit, "memory store exposes an audit log")
	require.Nil(t, deps.Migrate, "memory backend has no migrations")
	require.Nil(t, deps.Bus, "redis disabled by default")
	require.Nil(t, deps.Locks)
	require.Nil(t, deps.Prices)

	// Simulate mode wires the advanceable clock behind domain.Clock.
	require.NotNil(t, deps.SimClock)
	before := deps.Clock.Now()
	deps.SimClock.Advance(time.Hour)
	require.Equal(t, before.Add(time.Hour), deps.Clock.Now())
}

func TestWireSQLiteBackend(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "migrate"
	cfg.Store.Backend = "sqlite"
	cfg.SQLite.Path = t.TempDir() + "/zmart.db"
	require.NoError(t, cfg.Validate())

	deps, cleanup, err := Wire(context.Background(), &cfg, discardLogger())
	require.NoError(t, err)
	defer cleanup()

	require.NotNil(t, deps.Store)
	require.NotNil(t, deps.Audit)
	require.NotNil(t, deps.Migrate)
	require.Nil(t, deps.SimClock, "daemon modes run on the system clock")

	// Wire already migrated; running again must be idempotent.
	require.NoError(t, deps.Migrate(context.Background()))
}

func TestWireRejectsUnknownBackend(t *testing.T) {
	cfg := config.Defaults()
	cfg.Store.Backend = "papyrus"

	_, _, err := Wire(context.Background(), &cfg, discardLogger())
	require.ErrorContains(t, err, "unknown store backend")
}

func TestRunRejectsUnknownMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "serve"

	a := New(&cfg, discardLogger())
	defer a.Close()
	err := a.Run(context.Background())
	require.ErrorContains(t, err, "unsupported mode")
}

func TestRunSimulateMemory(t *testing.T) {
	cfg := config.Defaults()
	cfg.Sim.Markets = 2
	cfg.Sim.Traders = 3
	cfg.Sim.RoundsPerMkt = 2

	a := New(&cfg, discardLogger())
	defer a.Close()
	require.NoError(t, a.Run(context.Background()))
}

func TestGenesisConfigMapping(t *testing.T) {
	src := config.Defaults().Genesis
	src.Admin = "0xAAAA"
	src.Treasury = "0xBBBB"

	g := genesisConfig(src)
	require.Equal(t, "0xAAAA", g.Admin)
	require.Equal(t, "0xBBBB", g.Treasury)
	require.Equal(t, src.ProtocolFeeBps, g.ProtocolFeeBps)
	require.Equal(t, src.MinResolutionDelay.Std(), g.MinResolutionDelay)
	require.Equal(t, src.DisputeWindow.Std(), g.DisputeWindow)
	require.NoError(t, g.Validate())
}

func TestSimConfigMapping(t *testing.T) {
	src := config.Defaults().Sim
	sc := simConfig(src)
	require.Equal(t, src.Markets, sc.Markets)
	require.Equal(t, src.Traders, sc.Traders)
	require.Equal(t, src.RoundsPerMkt, sc.Rounds)
	require.Equal(t, src.Seed, sc.Seed)
	require.Equal(t, src.Interval.Std(), sc.Interval)
}
