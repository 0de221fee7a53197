package store

import (
	"fmt"
	"time"
)

// Connectivity event kinds.
const (
	ConnLost      = "lost"
	ConnRetry     = "retry"
	ConnTerminal  = "terminal"
	ConnRestored  = "restored"
	ConnRestarted = "restarted"
)

type ConnectivityEvent struct {
	ID        int64     `json:"id"`
	Robot     string    `json:"robot"`
	Kind      string    `json:"kind"`
	SessionID string    `json:"session_id"`
	Attempt   int       `json:"attempt"`
	DelayMS   int64     `json:"delay_ms"`
	ErrorKind string    `json:"error_kind"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

func (db *DB) AppendConnectivity(e *ConnectivityEvent) error {
	id, err := db.insertID(`INSERT INTO connectivity_events (robot, kind, session_id, attempt, delay_ms, error_kind, detail) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Robot, e.Kind, e.SessionID, e.Attempt, e.DelayMS, e.ErrorKind, e.Detail)
	if err != nil {
		return fmt.Errorf("append connectivity: %w", err)
	}
	e.ID = id
	return nil
}

func (db *DB) ListConnectivity(robot string, limit int) ([]*ConnectivityEvent, error) {
	rows, err := db.Query(db.Q(`SELECT id, robot, kind, session_id, attempt, delay_ms, error_kind, detail, created_at FROM connectivity_events WHERE robot=? ORDER BY id DESC LIMIT ?`), robot, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ConnectivityEvent
	for rows.Next() {
		var e ConnectivityEvent
		var createdAt any
		if err := rows.Scan(&e.ID, &e.Robot, &e.Kind, &e.SessionID, &e.Attempt, &e.DelayMS, &e.ErrorKind, &e.Detail, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(createdAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}
