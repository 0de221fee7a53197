// Package relay holds a robot state that the robot (or a bridge in front of
// it) pushes partial updates into, so this server can serve as the
// robot-state endpoint itself.
package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/SoberingRealityCheck/hexapod-server/robotstate"
)

// ErrNotObject is returned for payloads that are not a JSON object.
var ErrNotObject = errors.New("relay: payload must be a JSON object")

// Relay is safe for concurrent use.
type Relay struct {
	mu        sync.RWMutex
	state     robotstate.RobotState
	updatedAt time.Time
	updates   int64
	subs      map[int]func(robotstate.RobotState)
	nextSub   int

	// notifyMu orders deliveries; notified is the newest update delivered.
	// An update that loses the race to a newer one is not delivered.
	notifyMu sync.Mutex
	notified int64
}

// New starts from the all-defaults state.
func New() *Relay {
	return &Relay{
		state: robotstate.Defaults(false),
		subs:  make(map[int]func(robotstate.RobotState)),
	}
}

// Update shallow-merges a partial state into the stored one: each top-level
// field present replaces the stored field, and a provided gpsLocation
// replaces the whole location. Subscribers are notified with the result.
func (r *Relay) Update(payload []byte) (robotstate.RobotState, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return robotstate.RobotState{}, ErrNotObject
	}

	r.mu.Lock()
	next, err := merge(r.state, fields, payload)
	if err != nil {
		r.mu.Unlock()
		return robotstate.RobotState{}, err
	}
	r.state = next
	r.updatedAt = time.Now()
	r.updates++
	seq := r.updates
	subs := make([]func(robotstate.RobotState), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	r.notifyMu.Lock()
	if seq > r.notified {
		r.notified = seq
		for _, fn := range subs {
			fn(next.Clone())
		}
	}
	r.notifyMu.Unlock()
	return next.Clone(), nil
}

func merge(current robotstate.RobotState, fields map[string]json.RawMessage, payload []byte) (robotstate.RobotState, error) {
	known := false
	for _, f := range []string{"online", "batteryLevel", "gpsLocation", "messages"} {
		if _, ok := fields[f]; ok {
			known = true
		}
	}
	if !known {
		return current.Clone(), nil
	}
	base := current.Clone()
	if raw, ok := fields["gpsLocation"]; ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		base.GPSLocation = robotstate.GPSLocation{}
	}
	return robotstate.Decode(payload, base)
}

// State returns a copy of the stored state.
func (r *Relay) State() robotstate.RobotState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Clone()
}

// UpdatedAt returns the time of the last accepted update, zero if none.
func (r *Relay) UpdatedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.updatedAt
}

// Updates counts accepted updates.
func (r *Relay) Updates() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.updates
}

// Subscribe registers fn for every accepted update and returns a function
// that removes it.
func (r *Relay) Subscribe(fn func(robotstate.RobotState)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}
