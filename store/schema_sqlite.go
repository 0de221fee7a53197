package store

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS state_snapshots (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    robot         TEXT NOT NULL,
    source        TEXT NOT NULL DEFAULT 'poll',
    online        INTEGER NOT NULL DEFAULT 0,
    battery_level REAL NOT NULL DEFAULT 0,
    latitude      REAL NOT NULL DEFAULT 0,
    longitude     REAL NOT NULL DEFAULT 0,
    messages      TEXT NOT NULL DEFAULT '[]',
    recorded_at   TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_snapshots_robot ON state_snapshots(robot, id);

CREATE TABLE IF NOT EXISTS connectivity_events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    robot       TEXT NOT NULL,
    kind        TEXT NOT NULL,
    session_id  TEXT NOT NULL DEFAULT '',
    attempt     INTEGER NOT NULL DEFAULT 0,
    delay_ms    INTEGER NOT NULL DEFAULT 0,
    error_kind  TEXT NOT NULL DEFAULT '',
    detail      TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_connectivity_robot ON connectivity_events(robot, id);

CREATE TABLE IF NOT EXISTS admin_users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
`
