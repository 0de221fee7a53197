package robotstate

import (
	"errors"
	"testing"
)

func TestDecode_FullPayload(t *testing.T) {
	data := []byte(`{
		"online": true,
		"batteryLevel": 76.5,
		"gpsLocation": {"latitude": 37.7749, "longitude": -122.4194},
		"messages": [
			{"timestamp": "2026-03-01T10:00:00Z", "message": "Gait: tripod"},
			{"timestamp": "2026-03-01T10:00:05Z", "message": "Obstacle ahead"}
		]
	}`)
	got, err := Decode(data, Defaults(false))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := RobotState{
		Online:       true,
		BatteryLevel: 76.5,
		GPSLocation:  GPSLocation{Latitude: 37.7749, Longitude: -122.4194},
		Messages: []Message{
			{Timestamp: "2026-03-01T10:00:00Z", Message: "Gait: tripod"},
			{Timestamp: "2026-03-01T10:00:05Z", Message: "Obstacle ahead"},
		},
	}
	if !got.Equal(want) {
		t.Errorf("Decode = %+v, want %+v", got, want)
	}
}

func TestDecode_MissingFieldsTakeDefaults(t *testing.T) {
	got, err := Decode([]byte(`{"online":true}`), Defaults(false))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.Online {
		t.Error("online should be true")
	}
	if got.BatteryLevel != 0 {
		t.Errorf("battery = %v, want 0", got.BatteryLevel)
	}
	if got.GPSLocation != (GPSLocation{}) {
		t.Errorf("gps = %+v, want zero", got.GPSLocation)
	}
	if got.Messages == nil || len(got.Messages) != 0 {
		t.Errorf("messages = %#v, want empty non-nil slice", got.Messages)
	}
}

func TestDecode_PlaceholderDefault(t *testing.T) {
	got, err := Decode([]byte(`{"batteryLevel":40}`), Defaults(true))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Messages) != 1 || got.Messages[0].Message != PlaceholderMessage {
		t.Errorf("messages = %+v, want placeholder", got.Messages)
	}

	got, err = Decode([]byte(`{"messages":[]}`), Defaults(true))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Messages) != 0 {
		t.Errorf("explicit empty messages should win over placeholder, got %+v", got.Messages)
	}
}

func TestDecode_NullCountsAsMissing(t *testing.T) {
	got, err := Decode([]byte(`{"online":true,"batteryLevel":null,"gpsLocation":null,"messages":null}`), Defaults(false))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.Online || got.BatteryLevel != 0 || got.GPSLocation != (GPSLocation{}) || len(got.Messages) != 0 {
		t.Errorf("Decode = %+v", got)
	}
}

func TestDecode_PartialLocation(t *testing.T) {
	got, err := Decode([]byte(`{"gpsLocation":{"latitude":12.5}}`), Defaults(false))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.GPSLocation.Latitude != 12.5 || got.GPSLocation.Longitude != 0 {
		t.Errorf("gps = %+v", got.GPSLocation)
	}
}

func TestDecode_StringMessages(t *testing.T) {
	got, err := Decode([]byte(`{"messages":["Walking","Standing"]}`), Defaults(false))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Messages) != 2 || got.Messages[0].Message != "Walking" || got.Messages[1].Timestamp != "" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestDecode_UnknownFieldsIgnored(t *testing.T) {
	got, err := Decode([]byte(`{"online":false,"firmware":"1.4.2","legs":6}`), Defaults(false))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Online {
		t.Error("online should be false")
	}
}

func TestDecode_InvalidShapes(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed", `{"online":`},
		{"array", `[1,2,3]`},
		{"string", `"hello"`},
		{"null", `null`},
		{"number", `42`},
		{"no known fields", `{"foo":"bar"}`},
		{"empty object", `{}`},
		{"online wrong type", `{"online":"yes"}`},
		{"battery wrong type", `{"batteryLevel":"full"}`},
		{"gps wrong type", `{"gpsLocation":[1,2]}`},
		{"latitude wrong type", `{"gpsLocation":{"latitude":"north"}}`},
		{"messages wrong type", `{"messages":"hi"}`},
		{"message element wrong type", `{"messages":[42]}`},
		{"message text wrong type", `{"messages":[{"message":7}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data), Defaults(false))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalidShape) {
				t.Errorf("err = %v, want invalid shape", err)
			}
			if KindOf(err) != KindInvalidShape {
				t.Errorf("KindOf = %v", KindOf(err))
			}
		})
	}
}

func TestDecode_DoesNotAliasDefaults(t *testing.T) {
	defaults := Defaults(true)
	got, err := Decode([]byte(`{"online":true}`), defaults)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got.Messages[0].Message = "changed"
	if defaults.Messages[0].Message != PlaceholderMessage {
		t.Error("decoded state shares its message slice with defaults")
	}
}
