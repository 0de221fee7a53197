package robotstate

// PlaceholderMessage is shown in the message log until the first real state
// arrives, when placeholder messages are enabled.
const PlaceholderMessage = "Connecting to robot..."

// RobotState is the canonical snapshot shown by the dashboards. It is replaced
// wholesale on every accepted update and never mutated in place.
type RobotState struct {
	Online       bool        `json:"online"`
	BatteryLevel float64     `json:"batteryLevel"`
	GPSLocation  GPSLocation `json:"gpsLocation"`
	Messages     []Message   `json:"messages"`
}

type GPSLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Message struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// Defaults returns the state used for any field a payload leaves out.
func Defaults(placeholder bool) RobotState {
	s := RobotState{Messages: []Message{}}
	if placeholder {
		s.Messages = []Message{{Message: PlaceholderMessage}}
	}
	return s
}

// Clone returns a deep copy. Messages is never nil in the copy so it always
// encodes as a JSON array.
func (s RobotState) Clone() RobotState {
	dup := s
	dup.Messages = make([]Message, len(s.Messages))
	copy(dup.Messages, s.Messages)
	return dup
}

// Equal reports whether two states carry the same values.
func (s RobotState) Equal(o RobotState) bool {
	if s.Online != o.Online || s.BatteryLevel != o.BatteryLevel || s.GPSLocation != o.GPSLocation {
		return false
	}
	if len(s.Messages) != len(o.Messages) {
		return false
	}
	for i := range s.Messages {
		if s.Messages[i] != o.Messages[i] {
			return false
		}
	}
	return true
}
