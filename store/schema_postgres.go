package store

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS state_snapshots (
    id            BIGSERIAL PRIMARY KEY,
    robot         TEXT NOT NULL,
    source        TEXT NOT NULL DEFAULT 'poll',
    online        INTEGER NOT NULL DEFAULT 0,
    battery_level DOUBLE PRECISION NOT NULL DEFAULT 0,
    latitude      DOUBLE PRECISION NOT NULL DEFAULT 0,
    longitude     DOUBLE PRECISION NOT NULL DEFAULT 0,
    messages      JSONB NOT NULL DEFAULT '[]',
    recorded_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_snapshots_robot ON state_snapshots(robot, id);

CREATE TABLE IF NOT EXISTS connectivity_events (
    id          BIGSERIAL PRIMARY KEY,
    robot       TEXT NOT NULL,
    kind        TEXT NOT NULL,
    session_id  TEXT NOT NULL DEFAULT '',
    attempt     INTEGER NOT NULL DEFAULT 0,
    delay_ms    BIGINT NOT NULL DEFAULT 0,
    error_kind  TEXT NOT NULL DEFAULT '',
    detail      TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_connectivity_robot ON connectivity_events(robot, id);

CREATE TABLE IF NOT EXISTS admin_users (
    id            BIGSERIAL PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
