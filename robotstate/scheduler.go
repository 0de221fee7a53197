package robotstate

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultBackoffBase  = 3 * time.Second
	maxBackoffShift     = 30
)

// Phase is the scheduler's position in its poll/backoff state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePolling
	PhaseBackoff
	PhaseTerminal
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePolling:
		return "polling"
	case PhaseBackoff:
		return "backoff"
	case PhaseTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Source records where an accepted state came from.
type Source string

const (
	SourcePoll Source = "poll"
	SourceLive Source = "live"
	SourceSeed Source = "seed"
)

// Emitter receives every accepted state and every status change. Calls arrive
// from timer goroutines, one at a time. Implementations must not call Dispose.
type Emitter interface {
	EmitStateUpdated(state RobotState, source Source)
	EmitStatusChanged(status Status)
}

// Status is a read-only view of the scheduler's bookkeeping for the display
// layer.
type Status struct {
	SessionID       string    `json:"session_id"`
	Phase           Phase     `json:"phase"`
	Attempt         int       `json:"attempt"`
	MaxAttempts     int       `json:"max_attempts"`
	RetrySessionID  string    `json:"retry_session_id,omitempty"`
	NextDelayMS     int64     `json:"next_delay_ms"`
	Loading         bool      `json:"loading"`
	LastError       string    `json:"last_error,omitempty"`
	ErrorKind       string    `json:"error_kind,omitempty"`
	TerminalMessage string    `json:"terminal_message,omitempty"`
	LastSuccess     time.Time `json:"last_success"`
	Disposed        bool      `json:"disposed"`
}

// Terminal reports whether automatic retries have been given up.
func (s Status) Terminal() bool { return s.Phase == PhaseTerminal }

type SchedulerConfig struct {
	PollInterval time.Duration
	BackoffBase  time.Duration
	// MaxAttempts is the number of backoff retries after the first failure.
	// Zero or less gives up on the first failure.
	MaxAttempts int
	Clock       Clock
}

// Scheduler keeps a RobotState fresh by driving a StateFetcher: steady polling
// while healthy, exponential backoff after a failure, and a terminal state once
// the retry budget is spent. It owns the current state; callers get copies.
type Scheduler struct {
	fetcher      StateFetcher
	emitter      Emitter
	clock        Clock
	pollInterval time.Duration
	baseDelay    time.Duration
	maxAttempts  int
	id           string

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	disposed    bool
	inFlight    bool
	phase       Phase
	attempt     int
	retryID     string
	nextDelay   time.Duration
	current     RobotState
	hasState    bool
	version     uint64
	lastErr     error
	lastSuccess time.Time
	timer       Timer
	gen         uint64

	// emitMu serializes emitter calls and lets Dispose wait out one in progress.
	emitMu         sync.Mutex
	emittedVersion uint64
}

func NewScheduler(fetcher StateFetcher, emitter Emitter, defaults RobotState, cfg SchedulerConfig) *Scheduler {
	if emitter == nil {
		emitter = noopEmitter{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock()
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	base := cfg.BackoffBase
	if base <= 0 {
		base = defaultBackoffBase
	}
	return &Scheduler{
		fetcher:      fetcher,
		emitter:      emitter,
		clock:        clock,
		pollInterval: poll,
		baseDelay:    base,
		maxAttempts:  cfg.MaxAttempts,
		id:           uuid.NewString(),
		current:      defaults.Clone(),
	}
}

// ID identifies this scheduler instance in logs and status.
func (s *Scheduler) ID() string { return s.id }

// Seed sets the state shown before the first fetch completes, typically the
// last known state from a cache. It has no effect once started.
func (s *Scheduler) Seed(state RobotState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.disposed {
		return
	}
	s.current = state.Clone()
}

// Start issues the first fetch immediately. Calling it again is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started || s.disposed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	seed := s.current.Clone()
	s.version++
	version := s.version
	status := s.statusLocked()
	s.mu.Unlock()

	log.Printf("scheduler: %s started (poll %v, backoff base %v, max attempts %d)",
		s.id, s.pollInterval, s.baseDelay, s.maxAttempts)
	// The seed goes out before the first fetch is armed so it is always the
	// first state observers see.
	s.emit(&seed, SourceSeed, version, status)

	s.mu.Lock()
	if !s.disposed {
		s.arm(0)
	}
	s.mu.Unlock()
}

// Dispose cancels every timer and any in-flight fetch. When it returns no
// further emitter call will be made and no state will change.
func (s *Scheduler) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.gen++
	s.stopTimer()
	if s.cancel != nil {
		s.cancel()
	}
	s.phase = PhaseIdle
	s.mu.Unlock()

	// Wait for an emission already past its disposed check.
	s.emitMu.Lock()
	s.emitMu.Unlock()
	log.Printf("scheduler: %s disposed", s.id)
}

// Current returns a copy of the current state.
func (s *Scheduler) Current() RobotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// ApplyLive replaces the current state with a pushed snapshot. Backoff
// bookkeeping and timers are left alone.
func (s *Scheduler) ApplyLive(state RobotState) {
	s.mu.Lock()
	if s.disposed || !s.started {
		s.mu.Unlock()
		return
	}
	s.current = state.Clone()
	s.hasState = true
	s.version++
	version := s.version
	snap := s.current.Clone()
	status := s.statusLocked()
	s.mu.Unlock()

	s.emit(&snap, SourceLive, version, status)
}

// BackoffDelay returns baseDelay × 2^attempt.
func (s *Scheduler) BackoffDelay(attempt int) time.Duration {
	return backoffDelay(s.baseDelay, attempt)
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}
	return base << uint(attempt)
}

func (s *Scheduler) tick(gen uint64) {
	s.mu.Lock()
	if s.disposed || gen != s.gen || s.phase == PhaseTerminal {
		s.mu.Unlock()
		return
	}
	if s.inFlight {
		s.mu.Unlock()
		log.Printf("scheduler: %s skipped tick, fetch already in flight", s.id)
		return
	}
	s.inFlight = true
	s.timer = nil
	ctx := s.ctx
	s.mu.Unlock()

	state, err := s.fetcher.Fetch(ctx)
	if err != nil {
		s.onFailure(err)
		return
	}
	s.onSuccess(state)
}

func (s *Scheduler) onSuccess(state RobotState) {
	s.mu.Lock()
	s.inFlight = false
	if s.disposed {
		s.mu.Unlock()
		return
	}
	recovered := s.phase == PhaseBackoff
	s.phase = PhasePolling
	s.attempt = 0
	s.retryID = ""
	s.lastErr = nil
	s.hasState = true
	s.lastSuccess = s.clock.Now()
	s.current = state.Clone()
	s.version++
	version := s.version
	s.arm(s.pollInterval)
	snap := s.current.Clone()
	status := s.statusLocked()
	s.mu.Unlock()

	if recovered {
		log.Printf("scheduler: %s connection restored", s.id)
	}
	s.emit(&snap, SourcePoll, version, status)
}

func (s *Scheduler) onFailure(err error) {
	s.mu.Lock()
	s.inFlight = false
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.lastErr = err

	switch {
	case s.phase == PhaseBackoff && s.attempt+1 < s.maxAttempts:
		s.attempt++
		s.arm(s.BackoffDelay(s.attempt))
		log.Printf("scheduler: %s fetch failed (%v), retry %d/%d in %v",
			s.id, err, s.attempt+1, s.maxAttempts, s.nextDelay)
	case s.phase == PhaseBackoff || s.maxAttempts <= 0:
		s.giveUpLocked()
		log.Printf("scheduler: %s max retries reached, giving up: %v", s.id, err)
	default:
		s.phase = PhaseBackoff
		s.attempt = 0
		s.retryID = uuid.NewString()
		s.arm(s.BackoffDelay(0))
		log.Printf("scheduler: %s fetch failed (%v), retry 1/%d in %v",
			s.id, err, s.maxAttempts, s.nextDelay)
	}
	status := s.statusLocked()
	s.mu.Unlock()

	s.emit(nil, "", 0, status)
}

func (s *Scheduler) giveUpLocked() {
	s.phase = PhaseTerminal
	s.gen++
	s.stopTimer()
	s.nextDelay = 0
}

// arm replaces any pending timer with a one-shot callback after d.
func (s *Scheduler) arm(d time.Duration) {
	s.stopTimer()
	s.gen++
	gen := s.gen
	s.nextDelay = d
	s.timer = s.clock.AfterFunc(d, func() { s.tick(gen) })
}

func (s *Scheduler) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) statusLocked() Status {
	st := Status{
		SessionID:      s.id,
		Phase:          s.phase,
		Attempt:        s.attempt,
		MaxAttempts:    s.maxAttempts,
		RetrySessionID: s.retryID,
		NextDelayMS:    s.nextDelay.Milliseconds(),
		Loading:        !s.hasState && s.phase != PhaseTerminal && !s.disposed,
		LastSuccess:    s.lastSuccess,
		Disposed:       s.disposed,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
		if k := KindOf(s.lastErr); k != 0 {
			st.ErrorKind = k.String()
		}
	}
	if s.phase == PhaseTerminal && s.lastErr != nil {
		st.TerminalMessage = fmt.Sprintf("Connection failed: %s. Using offline mode.", s.lastErr)
	}
	return st
}

// emit delivers a state (when non-nil) and a status. States older than one
// already delivered are dropped so a slow poll cannot overwrite a live update.
func (s *Scheduler) emit(state *RobotState, source Source, version uint64, status Status) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	disposed := s.disposed
	s.mu.Unlock()
	if disposed {
		return
	}

	if state != nil && version > s.emittedVersion {
		s.emittedVersion = version
		s.emitter.EmitStateUpdated(*state, source)
	}
	s.emitter.EmitStatusChanged(status)
}

type noopEmitter struct{}

func (noopEmitter) EmitStateUpdated(RobotState, Source) {}
func (noopEmitter) EmitStatusChanged(Status)            {}
