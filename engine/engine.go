package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/SoberingRealityCheck/hexapod-server/config"
	"github.com/SoberingRealityCheck/hexapod-server/live"
	"github.com/SoberingRealityCheck/hexapod-server/proxy"
	"github.com/SoberingRealityCheck/hexapod-server/relay"
	"github.com/SoberingRealityCheck/hexapod-server/robotstate"
	"github.com/SoberingRealityCheck/hexapod-server/statecache"
	"github.com/SoberingRealityCheck/hexapod-server/store"
)

type LogFunc func(format string, args ...any)

// Config wires the engine. Only AppConfig is required; a nil DB, Cache or
// MsgClient disables that layer.
type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB
	Cache      *statecache.RedisStore
	MsgClient  *live.Client
	Relay      *relay.Relay
	Proxy      *proxy.Client
	// Fetcher and Clock override the HTTP fetcher and wall clock.
	Fetcher robotstate.StateFetcher
	Clock   robotstate.Clock
	LogFunc LogFunc
}

type Engine struct {
	cfg        *config.Config
	configPath string
	db         *store.DB
	cache      *statecache.RedisStore
	msgClient  *live.Client
	relay      *relay.Relay
	proxy      *proxy.Client
	fetcher    robotstate.StateFetcher
	defaults   robotstate.RobotState
	clock      robotstate.Clock
	Events     *EventBus
	logFn      LogFunc
	stopChan   chan struct{}

	// restartMu serializes RestartSync so only one replacement scheduler
	// is ever built from a given old one.
	restartMu sync.Mutex

	mu            sync.Mutex
	scheduler     *robotstate.Scheduler
	subscriber    live.Subscriber
	liveConnected bool
	started       bool
	stopped       bool
	unsubRelay    func()
	inserts       int
}

func New(c Config) *Engine {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	rc := c.AppConfig.Robot
	fetcher := c.Fetcher
	if fetcher == nil {
		fetcher = robotstate.NewFetcher(robotstate.FetcherConfig{
			Endpoint:           rc.Endpoint,
			AuthToken:          rc.AuthToken,
			AuthHeader:         rc.AuthHeader,
			Timeout:            rc.Timeout,
			PlaceholderMessage: rc.PlaceholderMessage,
		})
	}
	r := c.Relay
	if r == nil {
		r = relay.New()
	}
	px := c.Proxy
	if px == nil {
		px = proxy.NewClient(c.AppConfig.Proxy.BaseURL, c.AppConfig.Proxy.Timeout)
	}
	return &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		db:         c.DB,
		cache:      c.Cache,
		msgClient:  c.MsgClient,
		relay:      r,
		proxy:      px,
		fetcher:    fetcher,
		defaults:   robotstate.Defaults(rc.PlaceholderMessage),
		clock:      c.Clock,
		Events:     NewEventBus(),
		logFn:      logFn,
		stopChan:   make(chan struct{}),
	}
}

// Start wires persistence, starts the sync scheduler and the live channel.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	e.wireEventHandlers()

	sched := e.newScheduler(e.seedState())
	e.mu.Lock()
	e.scheduler = sched
	e.mu.Unlock()
	sched.Start()

	e.startLive()
	e.unsubRelay = e.relay.Subscribe(e.handleRelayUpdate)

	go e.connectionHealthLoop()

	e.logFn("engine: started (robot %s, endpoint %s, config %s)", e.cfg.Robot.Name, e.cfg.Robot.Endpoint, e.configPath)
}

// Stop disposes the scheduler and live channel. The engine cannot be
// restarted afterwards.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped || !e.started {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.stopChan)
	sched := e.scheduler
	sub := e.subscriber
	unsub := e.unsubRelay
	e.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if sub != nil {
		sub.Stop()
	}
	if sched != nil {
		sched.Dispose()
	}
	e.logFn("engine: stopped")
}

// Accessors
func (e *Engine) AppConfig() *config.Config     { return e.cfg }
func (e *Engine) DB() *store.DB                 { return e.db }
func (e *Engine) Cache() *statecache.RedisStore { return e.cache }
func (e *Engine) Relay() *relay.Relay           { return e.relay }
func (e *Engine) Proxy() *proxy.Client          { return e.proxy }
func (e *Engine) RobotName() string             { return e.cfg.Robot.Name }

func (e *Engine) currentScheduler() *robotstate.Scheduler {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scheduler
}

// Snapshot returns the state the dashboards should show.
func (e *Engine) Snapshot() robotstate.RobotState {
	if s := e.currentScheduler(); s != nil {
		return s.Current()
	}
	return e.defaults.Clone()
}

// Status returns the scheduler's bookkeeping, or an idle status before Start.
func (e *Engine) Status() robotstate.Status {
	if s := e.currentScheduler(); s != nil {
		return s.Status()
	}
	return robotstate.Status{Phase: robotstate.PhaseIdle, Loading: true, MaxAttempts: e.cfg.Robot.MaxAttempts}
}

// RestartSync disposes the current scheduler and starts a fresh one seeded
// with the last shown state. It is the only way out of the terminal state.
func (e *Engine) RestartSync() robotstate.Status {
	e.restartMu.Lock()
	defer e.restartMu.Unlock()

	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return e.Status()
	}
	old := e.scheduler
	e.mu.Unlock()

	seed := e.defaults.Clone()
	if old != nil {
		seed = old.Current()
		old.Dispose()
	}
	next := e.newScheduler(seed)

	e.mu.Lock()
	if e.stopped || e.scheduler != old {
		e.mu.Unlock()
		next.Dispose()
		return e.Status()
	}
	e.scheduler = next
	e.mu.Unlock()
	next.Start()

	status := next.Status()
	e.Events.Emit(Event{Type: EventSyncRestarted, Payload: ConnectivityEvent{
		Robot: e.cfg.Robot.Name, Status: status, Detail: "sync restarted",
	}})
	e.logFn("engine: sync restarted (scheduler %s)", next.ID())
	return status
}

// ReconfigureProxy points the proxy at a new backend and saves the config
// file when the engine was loaded from one.
func (e *Engine) ReconfigureProxy(baseURL string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = e.cfg.Proxy.Timeout
	}
	e.cfg.Proxy.BaseURL = baseURL
	e.cfg.Proxy.Timeout = timeout
	e.proxy.Reconfigure(baseURL, timeout)
	e.logFn("engine: proxy now targets %s (timeout %v)", baseURL, timeout)
	if e.configPath == "" {
		return nil
	}
	if err := e.cfg.Save(e.configPath); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// LiveBackend returns the configured live channel and whether it is up.
func (e *Engine) LiveBackend() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	backend := e.cfg.Live.Backend
	if backend == "" {
		backend = live.BackendNone
	}
	return backend, e.liveConnected
}

// Health summarizes each layer for the health endpoint.
func (e *Engine) Health(ctx context.Context) map[string]any {
	backend, liveUp := e.LiveBackend()
	status := e.Status()
	h := map[string]any{
		"robot":          e.cfg.Robot.Name,
		"phase":          status.Phase.String(),
		"live_backend":   backend,
		"live_connected": liveUp,
	}
	if e.db != nil {
		h["database"] = e.db.Driver()
		h["database_ok"] = e.db.PingContext(ctx) == nil
	}
	if e.cache != nil {
		h["cache_ok"] = e.cache.Ping(ctx) == nil
	}
	return h
}

func (e *Engine) newScheduler(seed robotstate.RobotState) *robotstate.Scheduler {
	rc := e.cfg.Robot
	s := robotstate.NewScheduler(e.fetcher, &schedulerEmitter{bus: e.Events, robot: rc.Name}, e.defaults, robotstate.SchedulerConfig{
		PollInterval: rc.PollInterval,
		BackoffBase:  rc.BackoffBase,
		MaxAttempts:  rc.MaxAttempts,
		Clock:        e.clock,
	})
	s.Seed(seed)
	return s
}

// seedState picks the last known state: Redis first, then SQL history, then
// defaults.
func (e *Engine) seedState() robotstate.RobotState {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	name := e.cfg.Robot.Name
	if e.cache != nil {
		entry, err := e.cache.GetState(ctx, name)
		if err != nil {
			e.logFn("engine: read cached state: %v", err)
		} else if entry != nil {
			e.logFn("engine: seeded %s from cache (%s, %s)", name, entry.Source, entry.UpdatedAt.Format(time.RFC3339))
			return entry.State
		}
	}
	if e.db != nil {
		snap, err := e.db.LatestSnapshot(name)
		if err != nil {
			e.logFn("engine: read latest snapshot: %v", err)
		} else if snap != nil {
			e.logFn("engine: seeded %s from history (%s)", name, snap.RecordedAt.Format(time.RFC3339))
			return snap.State
		}
	}
	return e.defaults.Clone()
}

func (e *Engine) startLive() {
	sub, err := live.New(e.cfg.Live, e.msgClient, e.defaults, e.applyLive, &liveEmitter{engine: e})
	if err != nil {
		e.logFn("engine: live channel disabled: %v", err)
		return
	}
	if sub == nil {
		return
	}
	if err := sub.Start(); err != nil {
		e.logFn("engine: live channel: %v", err)
		return
	}
	e.mu.Lock()
	e.subscriber = sub
	e.mu.Unlock()
}

func (e *Engine) applyLive(state robotstate.RobotState) {
	if s := e.currentScheduler(); s != nil {
		s.ApplyLive(state)
	}
}

func (e *Engine) setLiveConnected(backend string, up bool, detail string) {
	e.mu.Lock()
	changed := e.liveConnected != up
	e.liveConnected = up
	e.mu.Unlock()
	if !changed {
		return
	}
	if up {
		e.Events.Emit(Event{Type: EventLiveConnected, Payload: LiveConnectionEvent{Backend: backend, Detail: backend + " connected"}})
		return
	}
	e.Events.Emit(Event{Type: EventLiveDisconnected, Payload: LiveConnectionEvent{Backend: backend, Detail: detail}})
}

func (e *Engine) checkConnectionStatus() {
	e.mu.Lock()
	sub := e.subscriber
	e.mu.Unlock()
	if sub == nil {
		return
	}
	if sub.Connected() {
		e.setLiveConnected(sub.Backend(), true, "")
	} else {
		e.setLiveConnected(sub.Backend(), false, sub.Backend()+" disconnected")
	}
}

func (e *Engine) connectionHealthLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.checkConnectionStatus()
		}
	}
}
