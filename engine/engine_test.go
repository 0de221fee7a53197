package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SoberingRealityCheck/hexapod-server/config"
	"github.com/SoberingRealityCheck/hexapod-server/robotstate"
	"github.com/SoberingRealityCheck/hexapod-server/store"
)

// switchFetcher fails until ok is set, then returns state.
type switchFetcher struct {
	ok    atomic.Bool
	calls atomic.Int32
	state robotstate.RobotState
}

func (f *switchFetcher) Fetch(ctx context.Context) (robotstate.RobotState, error) {
	f.calls.Add(1)
	if f.ok.Load() {
		return f.state, nil
	}
	return robotstate.RobotState{}, &robotstate.FetchError{Kind: robotstate.KindNetwork, Msg: "connection refused", Err: errors.New("connection refused")}
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Robot.PollInterval = time.Hour
	cfg.Robot.BackoffBase = time.Hour
	cfg.Robot.MaxAttempts = 0
	return cfg
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "engine.db")},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// waitFor subscribes before the engine starts and returns a channel of
// matching events.
func waitFor(bus *EventBus, types ...EventType) <-chan Event {
	ch := make(chan Event, 32)
	bus.SubscribeTypes(func(evt Event) {
		select {
		case ch <- evt:
		default:
		}
	}, types...)
	return ch
}

func next(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestEngine_PollSuccessPersists(t *testing.T) {
	db := testDB(t)
	f := &switchFetcher{state: robotstate.RobotState{Online: true, BatteryLevel: 82, Messages: []robotstate.Message{}}}
	f.ok.Store(true)

	e := New(Config{AppConfig: testConfig(), DB: db, Fetcher: f, LogFunc: t.Logf})
	states := waitFor(e.Events, EventStateUpdated)
	e.Start()
	defer e.Stop()

	first := next(t, states).Payload.(StateUpdatedEvent)
	if first.Source != robotstate.SourceSeed {
		t.Errorf("first source = %q, want seed", first.Source)
	}
	polled := next(t, states).Payload.(StateUpdatedEvent)
	if polled.Source != robotstate.SourcePoll || polled.State.BatteryLevel != 82 {
		t.Errorf("polled event = %+v", polled)
	}

	// The history write runs in a subscriber registered after ours.
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, _ := db.LatestSnapshot(e.RobotName())
		if snap != nil {
			if snap.Source != "poll" || snap.State.BatteryLevel != 82 {
				t.Errorf("snapshot = %+v", snap)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("snapshot never written")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := e.Snapshot(); !got.Online {
		t.Errorf("Snapshot = %+v", got)
	}
	if st := e.Status(); st.Phase != robotstate.PhasePolling {
		t.Errorf("phase = %v", st.Phase)
	}
}

func TestEngine_TerminalThenRestart(t *testing.T) {
	db := testDB(t)
	f := &switchFetcher{state: robotstate.RobotState{Online: true, Messages: []robotstate.Message{}}}

	e := New(Config{AppConfig: testConfig(), DB: db, Fetcher: f, LogFunc: t.Logf})
	terminal := waitFor(e.Events, EventSyncTerminal)
	restarted := waitFor(e.Events, EventSyncRestarted)
	statuses := waitFor(e.Events, EventSyncStatusChanged)
	e.Start()
	defer e.Stop()

	ev := next(t, terminal).Payload.(ConnectivityEvent)
	if ev.Status.TerminalMessage != "Connection failed: connection refused. Using offline mode." {
		t.Errorf("terminal message = %q", ev.Status.TerminalMessage)
	}
	if !e.Status().Terminal() {
		t.Fatal("engine should report terminal")
	}

	f.ok.Store(true)
	e.RestartSync()
	next(t, restarted)

	deadline := time.Now().Add(3 * time.Second)
	for {
		evt := next(t, statuses)
		if evt.Payload.(SyncStatusChangedEvent).Status.Phase == robotstate.PhasePolling {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("never reached polling after restart")
		}
	}

	events, err := db.ListConnectivity(e.RobotName(), 10)
	if err != nil {
		t.Fatalf("list connectivity: %v", err)
	}
	kinds := map[string]bool{}
	for _, ce := range events {
		kinds[ce.Kind] = true
	}
	if !kinds[store.ConnTerminal] || !kinds[store.ConnRestarted] {
		t.Errorf("connectivity kinds = %v, want terminal and restarted", kinds)
	}
}

func TestEngine_SeedFromHistory(t *testing.T) {
	db := testDB(t)
	cfg := testConfig()
	saved := robotstate.RobotState{Online: true, BatteryLevel: 33, Messages: []robotstate.Message{{Message: "last seen"}}}
	if _, err := db.InsertSnapshot(cfg.Robot.Name, "poll", saved, time.Now()); err != nil {
		t.Fatal(err)
	}

	f := &switchFetcher{}
	e := New(Config{AppConfig: cfg, DB: db, Fetcher: f, LogFunc: t.Logf})
	states := waitFor(e.Events, EventStateUpdated)
	e.Start()
	defer e.Stop()

	seed := next(t, states).Payload.(StateUpdatedEvent)
	if !seed.State.Equal(saved) {
		t.Errorf("seed = %+v, want %+v", seed.State, saved)
	}
}

func TestEngine_LiveApplySupersedes(t *testing.T) {
	f := &switchFetcher{state: robotstate.RobotState{BatteryLevel: 10, Messages: []robotstate.Message{}}}
	f.ok.Store(true)
	e := New(Config{AppConfig: testConfig(), Fetcher: f, LogFunc: t.Logf})
	states := waitFor(e.Events, EventStateUpdated)
	e.Start()
	defer e.Stop()

	next(t, states) // seed
	next(t, states) // poll

	e.applyLive(robotstate.RobotState{Online: true, BatteryLevel: 99, Messages: []robotstate.Message{}})
	ev := next(t, states).Payload.(StateUpdatedEvent)
	if ev.Source != robotstate.SourceLive || ev.State.BatteryLevel != 99 {
		t.Errorf("live event = %+v", ev)
	}
	if e.Snapshot().BatteryLevel != 99 {
		t.Errorf("snapshot battery = %v", e.Snapshot().BatteryLevel)
	}
}

func TestEngine_RelayUpdateRecorded(t *testing.T) {
	db := testDB(t)
	e := New(Config{AppConfig: testConfig(), DB: db, Fetcher: &switchFetcher{}, LogFunc: t.Logf})
	relayed := waitFor(e.Events, EventRelayUpdated)
	e.Start()
	defer e.Stop()

	if _, err := e.Relay().Update([]byte(`{"online":true,"batteryLevel":64}`)); err != nil {
		t.Fatalf("relay update: %v", err)
	}
	ev := next(t, relayed).Payload.(RelayUpdatedEvent)
	if ev.State.BatteryLevel != 64 {
		t.Errorf("relay event = %+v", ev)
	}
	snap, err := db.LatestSnapshot(e.RobotName())
	if err != nil || snap == nil {
		t.Fatalf("latest snapshot: %v %v", snap, err)
	}
	if snap.Source != "relay" {
		t.Errorf("source = %q, want relay", snap.Source)
	}
}

func TestEngine_StopIsIdempotentAndQuiet(t *testing.T) {
	f := &switchFetcher{}
	e := New(Config{AppConfig: testConfig(), Fetcher: f, LogFunc: t.Logf})
	e.Start()
	e.Stop()
	e.Stop()

	var mu sync.Mutex
	count := 0
	e.Events.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	e.RestartSync()
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("%d events after stop", count)
	}
}

func TestEngine_StatusBeforeStart(t *testing.T) {
	e := New(Config{AppConfig: testConfig(), Fetcher: &switchFetcher{}})
	st := e.Status()
	if st.Phase != robotstate.PhaseIdle || !st.Loading {
		t.Errorf("status = %+v", st)
	}
	if len(e.Snapshot().Messages) != 0 {
		t.Errorf("snapshot = %+v", e.Snapshot())
	}
}

func TestConnectivityKind(t *testing.T) {
	if k := connectivityKind(EventConnectivityLost, robotstate.Status{Attempt: 0}); k != store.ConnLost {
		t.Errorf("attempt 0 = %q", k)
	}
	if k := connectivityKind(EventConnectivityLost, robotstate.Status{Attempt: 1}); k != store.ConnRetry {
		t.Errorf("attempt 1 = %q", k)
	}
	if k := connectivityKind(EventSyncTerminal, robotstate.Status{}); k != store.ConnTerminal {
		t.Errorf("terminal = %q", k)
	}
}

func TestSchedulerEmitter_Transitions(t *testing.T) {
	bus := NewEventBus()
	var got []EventType
	bus.Subscribe(func(evt Event) {
		if evt.Type != EventSyncStatusChanged {
			got = append(got, evt.Type)
		}
	})
	em := &schedulerEmitter{bus: bus, robot: "r"}

	em.EmitStatusChanged(robotstate.Status{Phase: robotstate.PhaseBackoff, Attempt: 0})
	em.EmitStatusChanged(robotstate.Status{Phase: robotstate.PhaseBackoff, Attempt: 0}) // live update, no transition
	em.EmitStatusChanged(robotstate.Status{Phase: robotstate.PhaseBackoff, Attempt: 1})
	em.EmitStatusChanged(robotstate.Status{Phase: robotstate.PhaseTerminal, Attempt: 1})

	want := []EventType{EventConnectivityLost, EventConnectivityLost, EventSyncTerminal}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, got[i], want[i])
		}
	}

	got = nil
	em2 := &schedulerEmitter{bus: bus, robot: "r"}
	em2.EmitStatusChanged(robotstate.Status{Phase: robotstate.PhaseBackoff})
	em2.EmitStatusChanged(robotstate.Status{Phase: robotstate.PhasePolling})
	if len(got) != 2 || got[1] != EventConnectivityRestored {
		t.Errorf("recovery events = %v", got)
	}
}

func TestEventBus_FilterAndUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	var all, filtered int
	bus.Subscribe(func(Event) { all++ })
	id := bus.SubscribeTypes(func(Event) { filtered++ }, EventRelayUpdated)

	bus.Emit(Event{Type: EventStateUpdated})
	bus.Emit(Event{Type: EventRelayUpdated})
	bus.Unsubscribe(id)
	bus.Emit(Event{Type: EventRelayUpdated})

	if all != 3 || filtered != 1 {
		t.Errorf("all=%d filtered=%d, want 3 and 1", all, filtered)
	}
}

func TestEventBus_PanickingSubscriberIsolated(t *testing.T) {
	bus := NewEventBus()
	reached := false
	bus.Subscribe(func(Event) { panic("boom") })
	bus.Subscribe(func(Event) { reached = true })
	bus.Emit(Event{Type: EventStateUpdated})
	if !reached {
		t.Error("second subscriber not reached after panic")
	}
}

func TestEngine_ReconfigureProxySaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hexapod.yaml")
	cfg := testConfig()
	e := New(Config{AppConfig: cfg, ConfigPath: path, LogFunc: t.Logf})

	if err := e.ReconfigureProxy("http://10.0.0.7:8787", 0); err != nil {
		t.Fatalf("reconfigure: %v", err)
	}
	if got := e.Proxy().BaseURL(); got != "http://10.0.0.7:8787" {
		t.Errorf("proxy base = %q", got)
	}

	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Proxy.BaseURL != "http://10.0.0.7:8787" || loaded.Proxy.Timeout != cfg.Proxy.Timeout {
		t.Errorf("saved proxy = %+v", loaded.Proxy)
	}
}

func TestEngine_ConcurrentRestartsLeaveNoPollers(t *testing.T) {
	f := &switchFetcher{state: robotstate.RobotState{Online: true, Messages: []robotstate.Message{}}}
	f.ok.Store(true)
	cfg := testConfig()
	cfg.Robot.PollInterval = 20 * time.Millisecond

	e := New(Config{AppConfig: cfg, Fetcher: f, LogFunc: t.Logf})
	// A slow subscriber widens the window between reading the old
	// scheduler and installing the new one.
	e.Events.SubscribeTypes(func(Event) { time.Sleep(5 * time.Millisecond) }, EventSyncStatusChanged)
	e.Start()

	for range 10 {
		var wg sync.WaitGroup
		for range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				e.RestartSync()
			}()
		}
		wg.Wait()
	}

	e.Stop()
	time.Sleep(50 * time.Millisecond)
	before := f.calls.Load()
	time.Sleep(200 * time.Millisecond)
	if after := f.calls.Load(); after != before {
		t.Errorf("fetches continued after Stop: %d -> %d", before, after)
	}
}
