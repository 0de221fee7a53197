// Package live receives pushed robot-state snapshots from a broker or an
// event stream and hands them to the sync layer.
package live

import (
	"fmt"
	"log"
	"sync"

	"github.com/SoberingRealityCheck/hexapod-server/config"
	"github.com/SoberingRealityCheck/hexapod-server/robotstate"
)

const (
	BackendNone  = "none"
	BackendMQTT  = "mqtt"
	BackendKafka = "kafka"
	BackendSSE   = "sse"
)

// Handler receives every live snapshot that decodes cleanly.
type Handler func(state robotstate.RobotState)

// Emitter is told when the live channel comes up or goes down.
type Emitter interface {
	EmitLiveConnected(backend string)
	EmitLiveDisconnected(backend string, err error)
}

// Subscriber is a running live-update source.
type Subscriber interface {
	Start() error
	Stop()
	Backend() string
	Connected() bool
}

// New builds the subscriber for cfg.Backend. It returns nil, nil for "none"
// or an empty backend. client may be nil for the sse backend; for mqtt and
// kafka it must be the caller's broker client, which the subscriber does not
// close.
func New(cfg config.LiveConfig, client *Client, defaults robotstate.RobotState, handler Handler, emitter Emitter) (Subscriber, error) {
	if emitter == nil {
		emitter = noopEmitter{}
	}
	switch cfg.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendMQTT, BackendKafka:
		if client == nil {
			return nil, fmt.Errorf("live: %s backend needs a broker client", cfg.Backend)
		}
		return &brokerSubscriber{
			client:  client,
			topic:   cfg.Topic,
			decoder: decoder{defaults: defaults.Clone()},
			handler: handler,
			emitter: emitter,
		}, nil
	case BackendSSE:
		if cfg.SSE.URL == "" {
			return nil, fmt.Errorf("live: sse backend needs live.sse.url")
		}
		return NewSSESubscriber(cfg.SSE, defaults, handler, emitter), nil
	default:
		return nil, fmt.Errorf("live: unknown backend %q", cfg.Backend)
	}
}

type decoder struct {
	defaults robotstate.RobotState
}

// decode normalizes a pushed payload exactly like a polled one. Payloads that
// fail are logged and dropped.
func (d decoder) decode(source string, payload []byte) (robotstate.RobotState, bool) {
	state, err := robotstate.Decode(payload, d.defaults)
	if err != nil {
		log.Printf("live: %s: dropping message: %v", source, err)
		return robotstate.RobotState{}, false
	}
	return state, true
}

// brokerSubscriber listens on an MQTT or Kafka topic.
type brokerSubscriber struct {
	client  *Client
	topic   string
	decoder decoder
	handler Handler
	emitter Emitter

	mu      sync.Mutex
	started bool
	stopped bool
}

func (b *brokerSubscriber) Backend() string { return b.client.Backend() }

func (b *brokerSubscriber) Connected() bool { return b.client.IsConnected() }

func (b *brokerSubscriber) Start() error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return nil
	}
	b.started = true
	b.mu.Unlock()

	backend := b.client.Backend()
	b.client.OnConnectionChange(
		func() {
			if !b.isStopped() {
				b.emitter.EmitLiveConnected(backend)
			}
		},
		func(err error) {
			if !b.isStopped() {
				b.emitter.EmitLiveDisconnected(backend, err)
			}
		},
	)
	if err := b.client.Subscribe(b.topic, b.onMessage); err != nil {
		return fmt.Errorf("live: subscribe %s: %w", b.topic, err)
	}
	log.Printf("live: subscribed to %s topic %s", backend, b.topic)
	if backend == BackendKafka {
		b.emitter.EmitLiveConnected(backend)
	}
	return nil
}

func (b *brokerSubscriber) onMessage(payload []byte) {
	if b.isStopped() {
		return
	}
	if state, ok := b.decoder.decode(b.client.Backend(), payload); ok && b.handler != nil {
		b.handler(state)
	}
}

func (b *brokerSubscriber) isStopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}

// Stop silences the handler. The broker client stays open for its owner.
func (b *brokerSubscriber) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
}

type noopEmitter struct{}

func (noopEmitter) EmitLiveConnected(string)           {}
func (noopEmitter) EmitLiveDisconnected(string, error) {}
