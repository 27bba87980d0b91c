package sqlite

// Mirror of the postgres schema in SQLite dialect. Share and currency
// quantities are fixed-point int64 scaled by 1e9, durations nanoseconds.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS markets (
    id                     TEXT PRIMARY KEY,
    creator                TEXT NOT NULL,
    shares_yes             INTEGER NOT NULL DEFAULT 0,
    shares_no              INTEGER NOT NULL DEFAULT 0,
    liquidity_b            INTEGER NOT NULL,
    state                  TEXT NOT NULL,
    proposal_likes         INTEGER NOT NULL DEFAULT 0,
    proposal_dislikes      INTEGER NOT NULL DEFAULT 0,
    proposal_total_votes   INTEGER NOT NULL DEFAULT 0,
    dispute_likes          INTEGER NOT NULL DEFAULT 0,
    dispute_dislikes       INTEGER NOT NULL DEFAULT 0,
    dispute_total_votes    INTEGER NOT NULL DEFAULT 0,
    proposed_outcome       TEXT,
    winning_outcome        TEXT,
    locked                 INTEGER NOT NULL DEFAULT 0,
    reserved               BLOB NOT NULL,
    created_at             DATETIME NOT NULL,
    approved_at            DATETIME,
    resolution_proposed_at DATETIME,
    finalized_at           DATETIME,
    updated_at             DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_markets_state_created ON markets(state, created_at DESC);

CREATE TABLE IF NOT EXISTS positions (
    market_id  TEXT NOT NULL REFERENCES markets(id),
    owner      TEXT NOT NULL,
    shares_yes INTEGER NOT NULL DEFAULT 0,
    shares_no  INTEGER NOT NULL DEFAULT 0,
    claimed    INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    PRIMARY KEY (market_id, owner)
);
CREATE INDEX IF NOT EXISTS idx_positions_owner ON positions(owner);

CREATE TABLE IF NOT EXISTS votes (
    market_id  TEXT NOT NULL REFERENCES markets(id),
    voter      TEXT NOT NULL,
    kind       TEXT NOT NULL,
    choice     TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    PRIMARY KEY (market_id, voter, kind)
);
CREATE INDEX IF NOT EXISTS idx_votes_market_kind ON votes(market_id, kind);

CREATE TABLE IF NOT EXISTS global_config (
    id                      INTEGER PRIMARY KEY CHECK (id = 1),
    admin                   TEXT NOT NULL,
    governance_authority    TEXT NOT NULL,
    aggregation_authority   TEXT NOT NULL,
    treasury                TEXT NOT NULL,
    protocol_fee_bps        INTEGER NOT NULL,
    creator_fee_bps         INTEGER NOT NULL,
    liquidity_fee_bps       INTEGER NOT NULL,
    proposal_threshold_bps  INTEGER NOT NULL,
    dispute_threshold_bps   INTEGER NOT NULL,
    min_resolution_delay_ns INTEGER NOT NULL,
    dispute_window_ns       INTEGER NOT NULL,
    max_market_age_ns       INTEGER NOT NULL,
    min_resolver_reputation INTEGER NOT NULL,
    min_trade_size          INTEGER NOT NULL,
    min_pool_reserve        INTEGER NOT NULL,
    paused                  INTEGER NOT NULL DEFAULT 0,
    updated_at              DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    event      TEXT NOT NULL,
    detail     TEXT,
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at DESC);
`
