package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/SoberingRealityCheck/hexapod-server/config"
	"github.com/SoberingRealityCheck/hexapod-server/robotstate"
)

// SSESubscriber follows a text/event-stream of robot-state snapshots and
// reconnects with capped exponential backoff when the stream drops.
type SSESubscriber struct {
	url     string
	event   string
	decoder decoder
	handler Handler
	emitter Emitter
	client  *http.Client

	baseDelay time.Duration
	maxDelay  time.Duration

	mu        sync.Mutex
	connected bool
	lastErr   error
	started   bool
	cancel    context.CancelFunc
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewSSESubscriber creates a subscriber for cfg.URL. Events named cfg.Event
// are decoded; an empty cfg.Event accepts unnamed events.
func NewSSESubscriber(cfg config.SSEConfig, defaults robotstate.RobotState, handler Handler, emitter Emitter) *SSESubscriber {
	if emitter == nil {
		emitter = noopEmitter{}
	}
	return &SSESubscriber{
		url:       cfg.URL,
		event:     cfg.Event,
		decoder:   decoder{defaults: defaults.Clone()},
		handler:   handler,
		emitter:   emitter,
		client:    &http.Client{},
		baseDelay: time.Second,
		maxDelay:  30 * time.Second,
		stopChan:  make(chan struct{}),
	}
}

func (s *SSESubscriber) Backend() string { return BackendSSE }

func (s *SSESubscriber) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// LastError returns the error that ended the most recent connection.
func (s *SSESubscriber) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Start launches the connect loop in the background.
func (s *SSESubscriber) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop ends the current stream and waits for the loop to exit.
func (s *SSESubscriber) Stop() {
	s.mu.Lock()
	select {
	case <-s.stopChan:
		s.mu.Unlock()
		return
	default:
	}
	close(s.stopChan)
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *SSESubscriber) loop() {
	defer s.wg.Done()

	attempt := 0
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		received, err := s.connect()
		if err == nil {
			return
		}
		if received {
			attempt = 0
		}

		s.mu.Lock()
		wasConnected := s.connected
		s.connected = false
		s.lastErr = err
		s.mu.Unlock()
		if wasConnected {
			log.Printf("live: sse disconnected: %v", err)
			s.emitter.EmitLiveDisconnected(BackendSSE, err)
		}

		attempt++
		if !s.backoff(attempt) {
			return
		}
	}
}

// connect runs one stream until it ends. A nil error means a clean stop.
// received reports whether any event arrived on this connection.
func (s *SSESubscriber) connect() (received bool, err error) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	select {
	case <-s.stopChan:
		s.mu.Unlock()
		cancel()
		return false, nil
	default:
	}
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("sse request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return false, fmt.Errorf("sse connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("sse status %d", resp.StatusCode)
	}

	s.mu.Lock()
	s.connected = true
	s.lastErr = nil
	s.mu.Unlock()
	log.Printf("live: sse connected: %s", s.url)
	s.emitter.EmitLiveConnected(BackendSSE)

	reader := NewSSEReader(resp.Body)
	for {
		ev, err := reader.Next()
		if err != nil {
			if ctx.Err() != nil {
				return received, nil
			}
			if errors.Is(err, io.EOF) {
				return received, fmt.Errorf("sse stream EOF")
			}
			return received, fmt.Errorf("sse read: %w", err)
		}
		received = true
		if !s.wants(ev) {
			continue
		}
		if state, ok := s.decoder.decode(BackendSSE, []byte(ev.Data)); ok && s.handler != nil {
			s.handler(state)
		}
	}
}

func (s *SSESubscriber) wants(ev RawEvent) bool {
	if s.event == "" {
		return ev.Event == "" || ev.Event == "message"
	}
	return ev.Event == s.event
}

func (s *SSESubscriber) backoff(attempt int) bool {
	delay := s.baseDelay << uint(min(attempt-1, 16))
	if delay > s.maxDelay {
		delay = s.maxDelay
	}
	jittered := time.Duration(float64(delay) * (0.8 + 0.4*rand.Float64()))

	log.Printf("live: sse reconnecting in %v (attempt %d)", jittered.Round(time.Millisecond), attempt)

	timer := time.NewTimer(jittered)
	defer timer.Stop()
	select {
	case <-s.stopChan:
		return false
	case <-timer.C:
		return true
	}
}
