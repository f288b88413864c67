package transport

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// Event is one Server-Sent Event.
type Event struct {
	// Type is the "event:" field. Empty means the default "message" type.
	Type string

	// Data joins all "data:" lines of the event with newlines.
	Data string

	// ID is the last event id seen on the stream when the event was
	// dispatched. It persists across events until the server changes it.
	ID string
}

// Scanner reads Server-Sent Events from a stream. Events end at a blank
// line; comment lines (":") and unknown fields are skipped.
type Scanner struct {
	reader  *bufio.Reader
	current Event
	err     error
	lastID  string
	retry   time.Duration
}

// NewScanner creates a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next event. It returns false at the end of the
// stream or on a read error; see Err.
func (s *Scanner) Next() bool {
	if s.err != nil {
		return false
	}
	s.current = Event{}

	var (
		dataLines []string
		hasData   bool
		ev        Event
	)

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			s.err = err
			// A final event without its blank line is still delivered.
			if err == io.EOF && hasData {
				ev.Data = strings.Join(dataLines, "\n")
				ev.ID = s.lastID
				s.current = ev
				return true
			}
			return false
		}

		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if hasData {
				ev.Data = strings.Join(dataLines, "\n")
				ev.ID = s.lastID
				s.current = ev
				return true
			}
			ev = Event{}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if !ok {
			field, value = line, ""
		}
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		case "event":
			ev.Type = value
		case "id":
			if !strings.Contains(value, "\x00") {
				s.lastID = value
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				s.retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
}

// Event returns the event read by the last successful Next.
func (s *Scanner) Event() Event {
	return s.current
}

// LastEventID returns the most recent "id:" value, even if no event has
// been dispatched since.
func (s *Scanner) LastEventID() string {
	return s.lastID
}

// Retry returns the reconnection delay last requested by the server, or 0.
func (s *Scanner) Retry() time.Duration {
	return s.retry
}

// Err returns the read error that stopped the scanner, or nil on a clean EOF.
func (s *Scanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
