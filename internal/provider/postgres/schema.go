// Package postgres implements the Provider interface on PostgreSQL.
package postgres

const schemaDDL = `
CREATE TABLE IF NOT EXISTS strategies (
    id          TEXT PRIMARY KEY,
    owner_id    TEXT NOT NULL,
    name        TEXT NOT NULL,
    active      BOOLEAN NOT NULL,
    data        JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_strategies_active_created ON strategies (active, created_at, id);

CREATE TABLE IF NOT EXISTS events (
    seq            BIGSERIAL PRIMARY KEY,
    id             TEXT NOT NULL,
    kind           TEXT NOT NULL,
    source_account TEXT,
    content        TEXT NOT NULL,
    occurred_at    TIMESTAMPTZ NOT NULL,
    archived_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_events_occurred_at ON events (occurred_at);

CREATE TABLE IF NOT EXISTS executions (
    id            TEXT PRIMARY KEY,
    strategy_id   TEXT NOT NULL,
    owner_id      TEXT NOT NULL,
    event_id      TEXT,
    status        TEXT NOT NULL,
    error_kind    TEXT,
    burn_tx_hash  TEXT,
    mint_tx_hash  TEXT,
    data          JSONB NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL,
    completed_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_executions_strategy_created ON executions (strategy_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_executions_status ON executions (status);
`
