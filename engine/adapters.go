package engine

import (
	"github.com/SoberingRealityCheck/hexapod-server/robotstate"
)

// schedulerEmitter bridges a Scheduler's emitter interface to the EventBus and
// derives connectivity transitions from consecutive statuses. The scheduler
// calls it one emission at a time, so prev needs no lock.
type schedulerEmitter struct {
	bus   *EventBus
	robot string
	prev  robotstate.Status
}

func (e *schedulerEmitter) EmitStateUpdated(state robotstate.RobotState, source robotstate.Source) {
	e.bus.Emit(Event{Type: EventStateUpdated, Payload: StateUpdatedEvent{
		Robot:  e.robot,
		State:  state,
		Source: source,
	}})
}

func (e *schedulerEmitter) EmitStatusChanged(status robotstate.Status) {
	prev := e.prev
	e.prev = status

	e.bus.Emit(Event{Type: EventSyncStatusChanged, Payload: SyncStatusChangedEvent{
		Robot:  e.robot,
		Status: status,
	}})

	switch {
	case status.Phase == robotstate.PhaseBackoff &&
		(prev.Phase != robotstate.PhaseBackoff || status.Attempt != prev.Attempt):
		e.bus.Emit(Event{Type: EventConnectivityLost, Payload: ConnectivityEvent{
			Robot: e.robot, Status: status, Detail: status.LastError,
		}})
	case status.Phase == robotstate.PhaseTerminal && prev.Phase != robotstate.PhaseTerminal:
		e.bus.Emit(Event{Type: EventSyncTerminal, Payload: ConnectivityEvent{
			Robot: e.robot, Status: status, Detail: status.TerminalMessage,
		}})
	case status.Phase == robotstate.PhasePolling && prev.Phase == robotstate.PhaseBackoff:
		e.bus.Emit(Event{Type: EventConnectivityRestored, Payload: ConnectivityEvent{
			Robot: e.robot, Status: status, Detail: "connection restored",
		}})
	}
}

// liveEmitter bridges the live subscriber's connection changes to the engine.
type liveEmitter struct {
	engine *Engine
}

func (e *liveEmitter) EmitLiveConnected(backend string) {
	e.engine.setLiveConnected(backend, true, "")
}

func (e *liveEmitter) EmitLiveDisconnected(backend string, err error) {
	detail := "disconnected"
	if err != nil {
		detail = err.Error()
	}
	e.engine.setLiveConnected(backend, false, detail)
}
