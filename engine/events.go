package engine

import "github.com/SoberingRealityCheck/hexapod-server/robotstate"

const (
	EventStateUpdated EventType = iota + 1
	EventSyncStatusChanged
	EventConnectivityLost
	EventConnectivityRestored
	EventSyncTerminal
	EventSyncRestarted
	EventLiveConnected
	EventLiveDisconnected
	EventRelayUpdated
)

func (t EventType) String() string {
	switch t {
	case EventStateUpdated:
		return "state-updated"
	case EventSyncStatusChanged:
		return "sync-status-changed"
	case EventConnectivityLost:
		return "connectivity-lost"
	case EventConnectivityRestored:
		return "connectivity-restored"
	case EventSyncTerminal:
		return "sync-terminal"
	case EventSyncRestarted:
		return "sync-restarted"
	case EventLiveConnected:
		return "live-connected"
	case EventLiveDisconnected:
		return "live-disconnected"
	case EventRelayUpdated:
		return "relay-updated"
	default:
		return "unknown"
	}
}

// --- Event payloads ---

type StateUpdatedEvent struct {
	Robot  string
	State  robotstate.RobotState
	Source robotstate.Source
}

type SyncStatusChangedEvent struct {
	Robot  string
	Status robotstate.Status
}

// ConnectivityEvent carries the scheduler status at a connectivity
// transition (lost, restored, terminal, restarted).
type ConnectivityEvent struct {
	Robot  string
	Status robotstate.Status
	Detail string
}

type LiveConnectionEvent struct {
	Backend string
	Detail  string
}

type RelayUpdatedEvent struct {
	Robot string
	State robotstate.RobotState
}
