package live

import (
	"bufio"
	"io"
	"strings"
)

// RawEvent is one parsed server-sent event.
type RawEvent struct {
	Event string
	Data  string
	ID    string
}

// SSEReader splits a text/event-stream into events.
type SSEReader struct {
	scanner *bufio.Scanner
}

func NewSSEReader(r io.Reader) *SSEReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &SSEReader{scanner: sc}
}

// Next blocks until a complete event is available. It returns io.EOF at the
// end of the stream.
func (s *SSEReader) Next() (RawEvent, error) {
	var ev RawEvent
	var data []string
	seen := false

	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			if seen {
				ev.Data = strings.Join(data, "\n")
				return ev, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Event = value
			seen = true
		case "data":
			data = append(data, value)
			seen = true
		case "id":
			ev.ID = value
			seen = true
		}
	}
	if err := s.scanner.Err(); err != nil {
		return RawEvent{}, err
	}
	if seen {
		ev.Data = strings.Join(data, "\n")
		return ev, nil
	}
	return RawEvent{}, io.EOF
}
