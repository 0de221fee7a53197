package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/SoberingRealityCheck/hexapod-server/robotstate"
)

// Snapshot is one accepted robot state.
type Snapshot struct {
	ID         int64                 `json:"id"`
	Robot      string                `json:"robot"`
	Source     string                `json:"source"`
	State      robotstate.RobotState `json:"state"`
	RecordedAt time.Time             `json:"recorded_at"`
}

func (db *DB) InsertSnapshot(robot, source string, state robotstate.RobotState, at time.Time) (int64, error) {
	msgs := state.Messages
	if msgs == nil {
		msgs = []robotstate.Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return 0, fmt.Errorf("encode messages: %w", err)
	}
	id, err := db.insertID(`INSERT INTO state_snapshots (robot, source, online, battery_level, latitude, longitude, messages, recorded_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		robot, source, boolToInt(state.Online), state.BatteryLevel, state.GPSLocation.Latitude, state.GPSLocation.Longitude, string(data), db.timeArg(at))
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	return id, nil
}

const snapshotColumns = `id, robot, source, online, battery_level, latitude, longitude, messages, recorded_at`

// ListSnapshots returns the newest snapshots for robot first.
func (db *DB) ListSnapshots(robot string, limit int) ([]*Snapshot, error) {
	rows, err := db.Query(db.Q(`SELECT `+snapshotColumns+` FROM state_snapshots WHERE robot=? ORDER BY id DESC LIMIT ?`), robot, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LatestSnapshot returns nil, nil when robot has no history.
func (db *DB) LatestSnapshot(robot string) (*Snapshot, error) {
	list, err := db.ListSnapshots(robot, 1)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (db *DB) CountSnapshots(robot string) (int, error) {
	var n int
	err := db.QueryRow(db.Q(`SELECT COUNT(*) FROM state_snapshots WHERE robot=?`), robot).Scan(&n)
	return n, err
}

// PruneSnapshots keeps only the newest keep rows for robot. keep <= 0 keeps
// everything.
func (db *DB) PruneSnapshots(robot string, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	result, err := db.Exec(db.Q(`DELETE FROM state_snapshots WHERE robot=? AND id NOT IN (SELECT id FROM state_snapshots WHERE robot=? ORDER BY id DESC LIMIT ?)`),
		robot, robot, keep)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (*Snapshot, error) {
	var s Snapshot
	var online int
	var msgs string
	var recordedAt any
	if err := row.Scan(&s.ID, &s.Robot, &s.Source, &online, &s.State.BatteryLevel,
		&s.State.GPSLocation.Latitude, &s.State.GPSLocation.Longitude, &msgs, &recordedAt); err != nil {
		return nil, err
	}
	s.State.Online = online != 0
	s.State.Messages = []robotstate.Message{}
	if msgs != "" {
		if err := json.Unmarshal([]byte(msgs), &s.State.Messages); err != nil {
			return nil, fmt.Errorf("decode snapshot %d messages: %w", s.ID, err)
		}
	}
	s.State = s.State.Clone()
	s.RecordedAt = parseTime(recordedAt)
	return &s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
