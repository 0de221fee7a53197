package live

import (
	"testing"

	"github.com/SoberingRealityCheck/hexapod-server/config"
	"github.com/SoberingRealityCheck/hexapod-server/robotstate"
)

func newBrokerSubscriber(t *testing.T, backend string, handler Handler, emitter Emitter) *brokerSubscriber {
	t.Helper()
	cfg := config.LiveConfig{Backend: backend, Topic: "hexapod.robot-state"}
	sub, err := New(cfg, NewClient(cfg), robotstate.Defaults(false), handler, emitter)
	if err != nil {
		t.Fatalf("new %s subscriber: %v", backend, err)
	}
	b, ok := sub.(*brokerSubscriber)
	if !ok {
		t.Fatalf("subscriber type = %T", sub)
	}
	return b
}

func TestBrokerSubscriber_OnMessage(t *testing.T) {
	var got []robotstate.RobotState
	b := newBrokerSubscriber(t, BackendMQTT, func(s robotstate.RobotState) { got = append(got, s) }, nil)

	b.onMessage([]byte(`{"online":true,"batteryLevel":61.5,"gpsLocation":{"latitude":20.72},"messages":["Gait: ripple"]}`))
	b.onMessage([]byte(`not json`))
	b.onMessage([]byte(`{"batteryLevel":"full"}`))
	b.onMessage([]byte(`{"unrelated":1}`))

	if len(got) != 1 {
		t.Fatalf("handler calls = %d, want 1", len(got))
	}
	want := robotstate.RobotState{
		Online:       true,
		BatteryLevel: 61.5,
		GPSLocation:  robotstate.GPSLocation{Latitude: 20.72},
		Messages:     []robotstate.Message{{Message: "Gait: ripple"}},
	}
	if !got[0].Equal(want) {
		t.Errorf("state = %+v, want %+v", got[0], want)
	}
}

func TestBrokerSubscriber_DropsAfterStop(t *testing.T) {
	calls := 0
	b := newBrokerSubscriber(t, BackendKafka, func(robotstate.RobotState) { calls++ }, nil)

	b.onMessage([]byte(`{"online":true}`))
	b.Stop()
	b.Stop()
	b.onMessage([]byte(`{"online":false}`))

	if calls != 1 {
		t.Errorf("handler calls = %d, want 1", calls)
	}
}

func TestBrokerSubscriber_NilHandler(t *testing.T) {
	b := newBrokerSubscriber(t, BackendMQTT, nil, nil)
	b.onMessage([]byte(`{"online":true}`))
}

func TestBrokerSubscriber_StartWithoutConnection(t *testing.T) {
	em := &mockEmitter{}
	b := newBrokerSubscriber(t, BackendMQTT, nil, em)

	if err := b.Start(); err == nil {
		t.Fatal("start on an unconnected mqtt client should fail")
	}
	if b.Connected() {
		t.Error("unconnected subscriber reports connected")
	}
	if b.Backend() != BackendMQTT {
		t.Errorf("backend = %q", b.Backend())
	}
	if em.has("connected:" + BackendMQTT) {
		t.Error("connected emitted without a connection")
	}
}
