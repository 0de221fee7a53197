package www

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SoberingRealityCheck/hexapod-server/live"
	"github.com/SoberingRealityCheck/hexapod-server/robotstate"
)

func TestEventHub_HelloThenBroadcast(t *testing.T) {
	hub := NewEventHub()
	hub.hello = func() []SSEEvent {
		return []SSEEvent{{Event: "robot-state", Data: `{"online":false}`}}
	}
	hub.Start()
	defer hub.Stop()

	srv := httptest.NewServer(http.HandlerFunc(hub.SSEHandler))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	reader := live.NewSSEReader(resp.Body)
	ev, err := reader.Next()
	if err != nil {
		t.Fatalf("hello: %v", err)
	}
	if ev.Event != "robot-state" || ev.Data != `{"online":false}` {
		t.Errorf("hello = %+v", ev)
	}

	// The client is registered before hello is written.
	hub.BroadcastJSON("sync-status", map[string]string{"phase": "polling"})
	ev, err = reader.Next()
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if ev.Event != "sync-status" || ev.Data != `{"phase":"polling"}` {
		t.Errorf("broadcast = %+v", ev)
	}
	if hub.ClientCount() != 1 {
		t.Errorf("clients = %d", hub.ClientCount())
	}
}

func TestEventHub_StopIsIdempotent(t *testing.T) {
	hub := NewEventHub()
	hub.Start()
	hub.Stop()
	hub.Stop()
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func readFrame(t *testing.T, conn *websocket.Conn) (string, robotstate.RobotState) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var frame struct {
		Event string                `json:"event"`
		Data  robotstate.RobotState `json:"data"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame.Event, frame.Data
}

func TestWebSocket_StateFrames(t *testing.T) {
	eng, router := testServer(t, stubFetcher{state: sampleState}, nil)
	waitPhase(t, eng, robotstate.PhasePolling)

	srv := httptest.NewServer(router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	event, state := readFrame(t, conn)
	if event != "stateUpdate" {
		t.Errorf("event = %q", event)
	}
	if !state.Equal(sampleState) {
		t.Errorf("state = %+v", state)
	}
}

func TestWebSocket_RelaySubscribe(t *testing.T) {
	eng, router := testServer(t, stubFetcher{state: sampleState}, nil)

	srv := httptest.NewServer(router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/relay/subscribe"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, state := readFrame(t, conn); state.BatteryLevel != 0 {
		t.Errorf("initial relay state = %+v", state)
	}

	if _, err := eng.Relay().Update([]byte(`{"batteryLevel":42,"gpsLocation":{"latitude":1.5}}`)); err != nil {
		t.Fatalf("update: %v", err)
	}
	event, state := readFrame(t, conn)
	if event != "stateUpdate" || state.BatteryLevel != 42 || state.GPSLocation.Latitude != 1.5 {
		t.Errorf("frame = %q %+v", event, state)
	}
}

func TestWSHub_BroadcastDuringConnectIsDelivered(t *testing.T) {
	var hub *WSHub
	var once sync.Once
	hub = NewWSHub("test", func() Frame {
		// A state change racing the new connection.
		once.Do(func() {
			go hub.Broadcast(Frame{Event: stateUpdateEvent, Data: robotstate.RobotState{BatteryLevel: 2, Messages: []robotstate.Message{}}})
		})
		return Frame{Event: stateUpdateEvent, Data: robotstate.RobotState{BatteryLevel: 1, Messages: []robotstate.Message{}}}
	})
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, state := readFrame(t, conn); state.BatteryLevel != 1 {
		t.Errorf("first frame battery = %v, want the current state", state.BatteryLevel)
	}
	if _, state := readFrame(t, conn); state.BatteryLevel != 2 {
		t.Errorf("second frame battery = %v, want the racing broadcast", state.BatteryLevel)
	}
}

func TestTemplateHelpers(t *testing.T) {
	for level, want := range map[float64]string{
		100: "battery-high", 75: "battery-high", 74.9: "battery-ok",
		50: "battery-ok", 25: "battery-low", 24: "battery-critical", 0: "battery-critical",
	} {
		if got := batteryClass(level); got != want {
			t.Errorf("batteryClass(%v) = %q, want %q", level, got, want)
		}
	}

	funcs := templateFuncs()
	if got := funcs["coord"].(func(float64) string)(-156.3311); got != "-156.331100" {
		t.Errorf("coord = %q", got)
	}
	if got := funcs["batteryWidth"].(func(float64) string)(140); got != "100" {
		t.Errorf("batteryWidth = %q", got)
	}
	if got := funcs["timeAgo"].(func(time.Time) string)(time.Time{}); got != "never" {
		t.Errorf("timeAgo(zero) = %q", got)
	}

	for target, want := range map[string]int{
		"/api/history":            100,
		"/api/history?limit=5":    5,
		"/api/history?limit=-1":   100,
		"/api/history?limit=abc":  100,
		"/api/history?limit=5000": 1000,
	} {
		r := httptest.NewRequest(http.MethodGet, target, nil)
		if got := queryLimit(r, 100, 1000); got != want {
			t.Errorf("queryLimit(%s) = %d, want %d", target, got, want)
		}
	}
}
