package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/SoberingRealityCheck/hexapod-server/robotstate"
	"github.com/SoberingRealityCheck/hexapod-server/statecache"
	"github.com/SoberingRealityCheck/hexapod-server/store"
)

// pruneEvery is how many snapshot inserts pass between retention sweeps.
const pruneEvery = 50

func (e *Engine) wireEventHandlers() {
	// Accepted states: cache and history. The seed is already stored.
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(StateUpdatedEvent)
		if ev.Source == robotstate.SourceSeed {
			return
		}
		e.recordState(ev.State, string(ev.Source), evt.Timestamp)
	}, EventStateUpdated)

	// Status: cache so a second process (or the TUI) can read it.
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(SyncStatusChangedEvent)
		if e.cache == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := e.cache.SetStatus(ctx, ev.Robot, ev.Status); err != nil {
			e.logFn("engine: cache status: %v", err)
		}
	}, EventSyncStatusChanged)

	// Connectivity transitions: log and audit.
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ConnectivityEvent)
		kind := connectivityKind(evt.Type, ev.Status)
		switch kind {
		case store.ConnLost, store.ConnRetry:
			e.logFn("engine: %s unreachable (%s), retry %d/%d in %dms",
				ev.Robot, ev.Detail, ev.Status.Attempt+1, ev.Status.MaxAttempts, ev.Status.NextDelayMS)
		default:
			e.logFn("engine: %s %s: %s", ev.Robot, kind, ev.Detail)
		}
		e.appendConnectivity(kind, ev)
	}, EventConnectivityLost, EventConnectivityRestored, EventSyncTerminal, EventSyncRestarted)

	// Live channel changes: log.
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(LiveConnectionEvent)
		e.logFn("engine: live %s: %s", evt.Type, ev.Detail)
	}, EventLiveConnected, EventLiveDisconnected)

	// Relay updates: history and broker fan-out.
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(RelayUpdatedEvent)
		e.recordSnapshot(ev.State, "relay", evt.Timestamp)
		e.publishRelay(ev.State)
	}, EventRelayUpdated)
}

func connectivityKind(t EventType, status robotstate.Status) string {
	switch t {
	case EventConnectivityLost:
		if status.Attempt > 0 {
			return store.ConnRetry
		}
		return store.ConnLost
	case EventConnectivityRestored:
		return store.ConnRestored
	case EventSyncTerminal:
		return store.ConnTerminal
	case EventSyncRestarted:
		return store.ConnRestarted
	}
	return "unknown"
}

func (e *Engine) appendConnectivity(kind string, ev ConnectivityEvent) {
	if e.db == nil {
		return
	}
	err := e.db.AppendConnectivity(&store.ConnectivityEvent{
		Robot:     ev.Robot,
		Kind:      kind,
		SessionID: ev.Status.RetrySessionID,
		Attempt:   ev.Status.Attempt,
		DelayMS:   ev.Status.NextDelayMS,
		ErrorKind: ev.Status.ErrorKind,
		Detail:    ev.Detail,
	})
	if err != nil {
		e.logFn("engine: %v", err)
	}
}

func (e *Engine) recordState(state robotstate.RobotState, source string, at time.Time) {
	if e.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := e.cache.SetState(ctx, e.cfg.Robot.Name, statecache.Entry{
			State:     state,
			Source:    robotstate.Source(source),
			UpdatedAt: at,
		})
		cancel()
		if err != nil {
			e.logFn("engine: cache state: %v", err)
		}
	}
	e.recordSnapshot(state, source, at)
}

func (e *Engine) recordSnapshot(state robotstate.RobotState, source string, at time.Time) {
	if e.db == nil {
		return
	}
	if _, err := e.db.InsertSnapshot(e.cfg.Robot.Name, source, state, at); err != nil {
		e.logFn("engine: %v", err)
		return
	}
	e.mu.Lock()
	e.inserts++
	due := e.inserts%pruneEvery == 0
	e.mu.Unlock()
	if !due {
		return
	}
	removed, err := e.db.PruneSnapshots(e.cfg.Robot.Name, e.cfg.Database.HistoryKeep)
	if err != nil {
		e.logFn("engine: %v", err)
	} else if removed > 0 {
		e.logFn("engine: pruned %d old snapshots", removed)
	}
}

func (e *Engine) handleRelayUpdate(state robotstate.RobotState) {
	e.Events.Emit(Event{Type: EventRelayUpdated, Payload: RelayUpdatedEvent{
		Robot: e.cfg.Robot.Name,
		State: state,
	}})
}

// publishRelay forwards a relayed state to the broker topic the live
// subscriber listens on, so every server instance sees it.
func (e *Engine) publishRelay(state robotstate.RobotState) {
	if e.msgClient == nil || !e.msgClient.IsConnected() {
		return
	}
	data, err := json.Marshal(state)
	if err != nil {
		e.logFn("engine: encode relay state: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.msgClient.Publish(ctx, e.cfg.Live.Topic, data); err != nil {
		e.logFn("engine: publish relay state: %v", err)
	}
}
