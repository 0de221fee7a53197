package robotstate

import (
	"bytes"
	"encoding/json"
)

var stateFields = []string{"online", "batteryLevel", "gpsLocation", "messages"}

// Decode validates a robot-state payload and normalizes it. Fields the payload
// omits (or sends as null) take their value from defaults; unknown fields are
// ignored. Anything that is not a JSON object carrying at least one state field
// is a KindInvalidShape error.
func Decode(data []byte, defaults RobotState) (RobotState, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return RobotState{}, err
	}

	recognized := false
	for _, f := range stateFields {
		if _, ok := obj[f]; ok {
			recognized = true
			break
		}
	}
	if !recognized {
		return RobotState{}, invalidShape("no robot state fields in payload")
	}

	state := defaults.Clone()

	if raw, ok := present(obj, "online"); ok {
		if err := json.Unmarshal(raw, &state.Online); err != nil {
			return RobotState{}, invalidShape("online: expected boolean")
		}
	}
	if raw, ok := present(obj, "batteryLevel"); ok {
		if err := json.Unmarshal(raw, &state.BatteryLevel); err != nil {
			return RobotState{}, invalidShape("batteryLevel: expected number")
		}
	}
	if raw, ok := present(obj, "gpsLocation"); ok {
		loc, err := decodeLocation(raw, defaults.GPSLocation)
		if err != nil {
			return RobotState{}, err
		}
		state.GPSLocation = loc
	}
	if raw, ok := present(obj, "messages"); ok {
		msgs, err := decodeMessages(raw)
		if err != nil {
			return RobotState{}, err
		}
		state.Messages = msgs
	}
	return state, nil
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	if !json.Valid(data) {
		return nil, invalidShape("malformed JSON")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return nil, invalidShape("payload is not a JSON object")
	}
	return obj, nil
}

// present returns the raw value for key unless it is absent or null.
func present(obj map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := obj[key]
	if !ok || isNull(raw) {
		return nil, false
	}
	return raw, true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeLocation(raw json.RawMessage, def GPSLocation) (GPSLocation, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return GPSLocation{}, invalidShape("gpsLocation: expected object")
	}
	loc := def
	if v, ok := present(obj, "latitude"); ok {
		if err := json.Unmarshal(v, &loc.Latitude); err != nil {
			return GPSLocation{}, invalidShape("gpsLocation.latitude: expected number")
		}
	}
	if v, ok := present(obj, "longitude"); ok {
		if err := json.Unmarshal(v, &loc.Longitude); err != nil {
			return GPSLocation{}, invalidShape("gpsLocation.longitude: expected number")
		}
	}
	return loc, nil
}

// decodeMessages accepts both {timestamp, message} objects and bare strings.
func decodeMessages(raw json.RawMessage) ([]Message, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, invalidShape("messages: expected array")
	}
	msgs := make([]Message, 0, len(items))
	for i, item := range items {
		var text string
		if err := json.Unmarshal(item, &text); err == nil && !isNull(item) {
			msgs = append(msgs, Message{Message: text})
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil || obj == nil {
			return nil, invalidShape("messages[%d]: expected object or string", i)
		}
		var m Message
		if v, ok := present(obj, "timestamp"); ok {
			if err := json.Unmarshal(v, &m.Timestamp); err != nil {
				return nil, invalidShape("messages[%d].timestamp: expected string", i)
			}
		}
		if v, ok := present(obj, "message"); ok {
			if err := json.Unmarshal(v, &m.Message); err != nil {
				return nil, invalidShape("messages[%d].message: expected string", i)
			}
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
