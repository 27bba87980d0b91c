// Package sim exercises the engine end to end. It derives a deterministic
// cast of signing actors from a seed, bootstraps a genesis configuration,
// and runs every market through its full life: proposal ballot, approval,
// activation, trading rounds, resolution, an occasional dispute, finalize,
// and claims. Markets run concurrently; each market's decisions come from
// its own seeded stream. The Runner in this package is the hosting shell
// the simulator drives, and it works the same over any store backend.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/0xBased-lang/zmart-engine/internal/crypto"
	"github.com/0xBased-lang/zmart-engine/internal/domain"
	"github.com/0xBased-lang/zmart-engine/internal/engine"
	"github.com/0xBased-lang/zmart-engine/internal/fixedpoint"
	"github.com/0xBased-lang/zmart-engine/internal/lmsr"
)

// Config sizes a simulation run. Currency amounts are fixed-point 1e9.
type Config struct {
	Markets      int
	Traders      int
	Rounds       int
	Seed         int64
	TraderFunds  int64
	CreatorFunds int64
	MaxSpend     int64
	LiquidityB   int64
	// Interval is the virtual time the clock advances between trade rounds.
	Interval time.Duration
}

// Summary reports what a run did.
type Summary struct {
	RunID      string
	Markets    int
	Rejected   int
	Finalized  int
	Disputed   int
	Overturned int
	Trades     int64
	Volume     int64
	Claims     int64
	Paid       int64
	Treasury   int64
}

// Simulator drives a full multi-market lifecycle through a Runner.
type Simulator struct {
	run     *Runner
	bank    domain.Bank
	clock   *Clock
	auth    *crypto.Authenticator
	genesis domain.GlobalConfig
	cfg     Config
	logger  *slog.Logger

	nextNonce int64
}

// New creates a Simulator. Empty identity fields in genesis are filled
// with addresses derived from the seed, so a bare config still runs.
func New(run *Runner, bank domain.Bank, clock *Clock, auth *crypto.Authenticator, genesis domain.GlobalConfig, cfg Config, logger *slog.Logger) *Simulator {
	return &Simulator{
		run:     run,
		bank:    bank,
		clock:   clock,
		auth:    auth,
		genesis: genesis,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "sim")),
	}
}

// actor is one signing participant with its minted capability.
type actor struct {
	signer *crypto.Signer
	cap    domain.Capability
}

// cast is the full set of participants for one run.
type cast struct {
	admin      actor
	governance actor
	aggregator actor
	creators   []actor
	traders    []actor
}

// marketResult accumulates per-market stats before they fold into Summary.
type marketResult struct {
	rejected   bool
	disputed   bool
	finalized  bool
	overturned bool
	trades     int64
	volume     int64
	claims     int64
	paid       int64
}

// Run executes the whole simulation and returns its summary.
func (s *Simulator) Run(ctx context.Context) (Summary, error) {
	runID := uuid.NewString()
	s.logger.InfoContext(ctx, "simulation starting",
		slog.String("run_id", runID),
		slog.Int("markets", s.cfg.Markets),
		slog.Int("traders", s.cfg.Traders),
		slog.Int("rounds", s.cfg.Rounds),
		slog.Int64("seed", s.cfg.Seed),
	)

	genesis, c, err := s.prepare(ctx)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{RunID: runID, Markets: s.cfg.Markets}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.Markets; i++ {
		idx := i
		g.Go(func() error {
			res, err := s.runMarket(gctx, genesis, c, idx)
			if err != nil {
				return fmt.Errorf("sim: market %d: %w", idx, err)
			}
			mu.Lock()
			sum.absorb(res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	sum.Treasury, err = s.bank.Balance(ctx, genesis.Treasury)
	if err != nil {
		return Summary{}, fmt.Errorf("sim: treasury balance: %w", err)
	}

	s.logger.InfoContext(ctx, "simulation finished",
		slog.String("run_id", runID),
		slog.Int("finalized", sum.Finalized),
		slog.Int("rejected", sum.Rejected),
		slog.Int("disputed", sum.Disputed),
		slog.Int("overturned", sum.Overturned),
		slog.Int64("trades", sum.Trades),
		slog.Int64("volume", sum.Volume),
		slog.Int64("claims", sum.Claims),
		slog.Int64("paid", sum.Paid),
		slog.Int64("treasury", sum.Treasury),
	)
	return sum, nil
}

func (sum *Summary) absorb(r marketResult) {
	if r.rejected {
		sum.Rejected++
	}
	if r.disputed {
		sum.Disputed++
	}
	if r.finalized {
		sum.Finalized++
	}
	if r.overturned {
		sum.Overturned++
	}
	sum.Trades += r.trades
	sum.Volume += r.volume
	sum.Claims += r.claims
	sum.Paid += r.paid
}

// prepare derives the cast, funds it, installs the genesis configuration,
// and authenticates everyone through the signed-challenge flow.
func (s *Simulator) prepare(ctx context.Context) (domain.GlobalConfig, *cast, error) {
	genesis := s.genesis

	admin, err := s.deriveActor("admin")
	if err != nil {
		return domain.GlobalConfig{}, nil, err
	}
	governance, err := s.deriveActor("governance")
	if err != nil {
		return domain.GlobalConfig{}, nil, err
	}
	aggregator, err := s.deriveActor("aggregator")
	if err != nil {
		return domain.GlobalConfig{}, nil, err
	}
	treasury, err := s.deriveActor("treasury")
	if err != nil {
		return domain.GlobalConfig{}, nil, err
	}

	if genesis.Admin == "" {
		genesis.Admin = admin.Address()
	}
	if genesis.GovernanceAuthority == "" {
		genesis.GovernanceAuthority = governance.Address()
	}
	if genesis.AggregationAuthority == "" {
		genesis.AggregationAuthority = aggregator.Address()
	}
	if genesis.Treasury == "" {
		genesis.Treasury = treasury.Address()
	}

	_, err = s.run.Bootstrap(ctx, genesis)
	switch {
	case errors.Is(err, domain.ErrAlreadyExists):
		// A persistent backend keeps its config across runs; adopt it.
		genesis, err = s.run.Engine().GetConfig(ctx)
		if err != nil {
			return domain.GlobalConfig{}, nil, fmt.Errorf("sim: adopt existing config: %w", err)
		}
		s.logger.InfoContext(ctx, "adopting existing configuration",
			slog.String("admin", genesis.Admin),
		)
	case err != nil:
		return domain.GlobalConfig{}, nil, fmt.Errorf("sim: bootstrap: %w", err)
	}

	c := &cast{}
	// Traders carry the resolver reputation floor so any of them can
	// propose a resolution.
	rep := genesis.MinResolverReputation
	if c.admin, err = s.authenticate(genesis, admin, rep); err != nil {
		return domain.GlobalConfig{}, nil, err
	}
	if c.governance, err = s.authenticate(genesis, governance, rep); err != nil {
		return domain.GlobalConfig{}, nil, err
	}
	if c.aggregator, err = s.authenticate(genesis, aggregator, rep); err != nil {
		return domain.GlobalConfig{}, nil, err
	}

	// An operator may have left a persistent deployment paused; the run
	// needs a live engine, and resuming is the admin's call.
	if genesis.Paused {
		if _, err := s.run.Resume(ctx, c.admin.cap); err != nil {
			return domain.GlobalConfig{}, nil, fmt.Errorf("sim: resume paused engine: %w", err)
		}
		genesis.Paused = false
	}

	c.creators = make([]actor, s.cfg.Markets)
	for i := range c.creators {
		signer, err := s.deriveActor(fmt.Sprintf("creator-%02d", i))
		if err != nil {
			return domain.GlobalConfig{}, nil, err
		}
		if err := s.bank.Mint(ctx, signer.Address(), s.cfg.CreatorFunds); err != nil {
			return domain.GlobalConfig{}, nil, fmt.Errorf("sim: fund creator %d: %w", i, err)
		}
		if c.creators[i], err = s.authenticate(genesis, signer, rep); err != nil {
			return domain.GlobalConfig{}, nil, err
		}
	}

	c.traders = make([]actor, s.cfg.Traders)
	for i := range c.traders {
		signer, err := s.deriveActor(fmt.Sprintf("trader-%02d", i))
		if err != nil {
			return domain.GlobalConfig{}, nil, err
		}
		if err := s.bank.Mint(ctx, signer.Address(), s.cfg.TraderFunds); err != nil {
			return domain.GlobalConfig{}, nil, fmt.Errorf("sim: fund trader %d: %w", i, err)
		}
		if c.traders[i], err = s.authenticate(genesis, signer, rep); err != nil {
			return domain.GlobalConfig{}, nil, err
		}
	}

	s.logger.InfoContext(ctx, "cast ready",
		slog.String("admin", c.admin.cap.Actor),
		slog.String("governance", c.governance.cap.Actor),
		slog.String("aggregator", c.aggregator.cap.Actor),
		slog.Int("creators", len(c.creators)),
		slog.Int("traders", len(c.traders)),
	)
	return genesis, c, nil
}

func (s *Simulator) deriveActor(name string) (*crypto.Signer, error) {
	signer, err := crypto.DeriveSigner(fmt.Sprintf("zmart-sim:%d:%s", s.cfg.Seed, name))
	if err != nil {
		return nil, fmt.Errorf("sim: derive %s: %w", name, err)
	}
	return signer, nil
}

// authenticate runs the full signed-challenge flow for one signer.
func (s *Simulator) authenticate(genesis domain.GlobalConfig, signer *crypto.Signer, reputation int64) (actor, error) {
	s.nextNonce++
	ts := s.clock.Now().Unix()
	sig, err := signer.SignAuth(ts, s.nextNonce)
	if err != nil {
		return actor{}, fmt.Errorf("sim: sign challenge for %s: %w", signer.Address(), err)
	}
	minted, err := s.auth.MintCapability(genesis, crypto.Challenge{
		Actor:     signer.Address(),
		Timestamp: ts,
		Nonce:     s.nextNonce,
	}, sig, reputation)
	if err != nil {
		return actor{}, fmt.Errorf("sim: authenticate %s: %w", signer.Address(), err)
	}
	return actor{signer: signer, cap: minted}, nil
}

// runMarket walks one market through its whole life.
func (s *Simulator) runMarket(ctx context.Context, genesis domain.GlobalConfig, c *cast, idx int) (marketResult, error) {
	var res marketResult
	rng := rand.New(rand.NewSource(s.cfg.Seed + int64(idx)*1_000_003))
	creator := c.creators[idx%len(c.creators)]

	maxLoss, err := lmsr.MaxLoss(s.cfg.LiquidityB)
	if err != nil {
		return res, fmt.Errorf("bad liquidity parameter: %w", err)
	}
	initial := maxLoss + genesis.MinPoolReserve + fixedpoint.One

	// An explicit ID keeps repeat runs against a persistent backend from
	// colliding with markets an earlier run derived at the same instant.
	cr, err := s.run.CreateMarket(ctx, creator.cap, engine.CreateMarketParams{
		ID:               uuid.NewString(),
		LiquidityB:       s.cfg.LiquidityB,
		InitialLiquidity: initial,
	})
	if err != nil {
		return res, fmt.Errorf("create: %w", err)
	}
	marketID := cr.Market.ID

	// Proposal ballot: the vote records go through the engine, the counted
	// batch goes through the aggregation authority.
	var likes, dislikes int64
	for _, t := range c.traders {
		choice := domain.VoteChoiceApprove
		if rng.Float64() >= 0.85 {
			choice = domain.VoteChoiceReject
		}
		if _, err := s.run.SubmitVote(ctx, t.cap, marketID, domain.VoteKindProposal, choice); err != nil {
			return res, fmt.Errorf("proposal vote: %w", err)
		}
		if choice == domain.VoteChoiceApprove {
			likes++
		} else {
			dislikes++
		}
	}
	if _, err := s.run.AggregateVotes(ctx, c.aggregator.cap, marketID, domain.VoteKindProposal, likes, dislikes); err != nil {
		return res, fmt.Errorf("aggregate proposal: %w", err)
	}

	if _, err := s.run.ApproveProposal(ctx, c.governance.cap, marketID); err != nil {
		if errors.Is(err, domain.ErrThresholdNotMet) {
			s.logger.InfoContext(ctx, "market rejected by ballot",
				slog.String("market_id", marketID),
				slog.Int64("likes", likes),
				slog.Int64("dislikes", dislikes),
			)
			res.rejected = true
			return res, nil
		}
		return res, fmt.Errorf("approve: %w", err)
	}
	if _, err := s.run.ActivateMarket(ctx, creator.cap, marketID); err != nil {
		return res, fmt.Errorf("activate: %w", err)
	}

	for round := 0; round < s.cfg.Rounds; round++ {
		for _, t := range c.traders {
			s.tradeOnce(ctx, rng, t, marketID, &res)
		}
		s.clock.Advance(s.cfg.Interval)
	}

	// Resolution: lean toward the side the book already favors, with an
	// occasional contrarian proposal to give disputes something to do.
	snap, err := s.run.Engine().GetSnapshot(ctx, marketID)
	if err != nil {
		return res, fmt.Errorf("snapshot: %w", err)
	}
	outcome := domain.OutcomeYes
	if snap.PriceYes < fixedpoint.One/2 {
		outcome = domain.OutcomeNo
	}
	if rng.Float64() < 0.2 {
		outcome = outcome.Opposite()
	}

	s.clock.Advance(genesis.MinResolutionDelay + time.Minute)
	proposer := c.traders[idx%len(c.traders)]
	if _, err := s.run.ProposeResolution(ctx, proposer.cap, marketID, outcome); err != nil {
		return res, fmt.Errorf("propose resolution: %w", err)
	}

	if rng.Float64() < 0.35 {
		res.disputed = true
		if err := s.runDispute(ctx, rng, c, marketID, idx); err != nil {
			return res, err
		}
	} else {
		// Let the window lapse so a non-governance actor can finalize.
		s.clock.Advance(genesis.DisputeWindow + time.Minute)
	}

	finalizer := creator.cap
	if res.disputed {
		finalizer = c.governance.cap
	}
	fr, err := s.run.FinalizeMarket(ctx, finalizer, marketID)
	if err != nil {
		return res, fmt.Errorf("finalize: %w", err)
	}
	res.finalized = true
	res.overturned = fr.Overturned

	// Every position settles exactly once, losing sides included.
	for _, t := range c.traders {
		rcpt, err := s.run.ClaimWinnings(ctx, t.cap, marketID)
		if errors.Is(err, domain.ErrNotFound) {
			continue // never traded here
		}
		if err != nil {
			s.logger.WarnContext(ctx, "claim failed",
				slog.String("market_id", marketID),
				slog.String("owner", t.cap.Actor),
				slog.String("error", err.Error()),
			)
			continue
		}
		res.claims++
		res.paid += rcpt.Received
	}
	return res, nil
}

// tradeOnce has one trader act once: mostly buys, some sells, some sitting
// out. Rejections the engine is entitled to make (dust trades, drained
// budgets, slippage) are part of normal traffic and only logged.
func (s *Simulator) tradeOnce(ctx context.Context, rng *rand.Rand, t actor, marketID string, res *marketResult) {
	roll := rng.Float64()
	switch {
	case roll < 0.55:
		outcome := domain.OutcomeYes
		if rng.Intn(2) == 1 {
			outcome = domain.OutcomeNo
		}
		spend := s.cfg.MaxSpend/4 + rng.Int63n(s.cfg.MaxSpend/4*3+1)
		rcpt, err := s.run.BuyShares(ctx, t.cap, engine.BuyParams{
			MarketID: marketID,
			Outcome:  outcome,
			MaxSpend: spend,
		})
		if err != nil {
			s.logTradeSkip(ctx, "buy", marketID, t.cap.Actor, err)
			return
		}
		res.trades++
		res.volume += rcpt.Charged

	case roll < 0.80:
		pos, err := s.run.Engine().GetPosition(ctx, marketID, t.cap.Actor)
		if err != nil {
			return // nothing to sell
		}
		outcome := domain.OutcomeYes
		if pos.SharesNo > pos.SharesYes {
			outcome = domain.OutcomeNo
		}
		shares := pos.Shares(outcome) / 2
		if shares <= 0 {
			return
		}
		rcpt, err := s.run.SellShares(ctx, t.cap, engine.SellParams{
			MarketID:    marketID,
			Outcome:     outcome,
			Shares:      shares,
			MinProceeds: 0,
		})
		if err != nil {
			s.logTradeSkip(ctx, "sell", marketID, t.cap.Actor, err)
			return
		}
		res.trades++
		res.volume += rcpt.Received
	}
}

func (s *Simulator) logTradeSkip(ctx context.Context, side, marketID, actor string, err error) {
	s.logger.DebugContext(ctx, "trade skipped",
		slog.String("side", side),
		slog.String("market_id", marketID),
		slog.String("actor", actor),
		slog.String("reason", err.Error()),
	)
}

// runDispute escalates a resolving market, runs the dispute ballot, and
// aggregates it. The later finalize call reads the tally.
func (s *Simulator) runDispute(ctx context.Context, rng *rand.Rand, c *cast, marketID string, idx int) error {
	challenger := c.traders[(idx+1)%len(c.traders)]
	if _, err := s.run.DisputeResolution(ctx, challenger.cap, marketID); err != nil {
		return fmt.Errorf("dispute: %w", err)
	}

	var likes, dislikes int64
	for _, t := range c.traders {
		choice := domain.VoteChoiceApprove
		if rng.Float64() >= 0.5 {
			choice = domain.VoteChoiceReject
		}
		if _, err := s.run.SubmitVote(ctx, t.cap, marketID, domain.VoteKindDispute, choice); err != nil {
			return fmt.Errorf("dispute vote: %w", err)
		}
		if choice == domain.VoteChoiceApprove {
			likes++
		} else {
			dislikes++
		}
	}
	if _, err := s.run.AggregateVotes(ctx, c.aggregator.cap, marketID, domain.VoteKindDispute, likes, dislikes); err != nil {
		return fmt.Errorf("aggregate dispute: %w", err)
	}
	return nil
}
