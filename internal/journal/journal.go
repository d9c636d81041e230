// Package journal keeps an append-only record of what the live loop saw and
// sent: signals, alerts and failed cycles.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const (
	TypeSignal = "signal"
	TypeAlert  = "alert"
	TypeError  = "error"
)

// Event represents a journaled event.
type Event struct {
	Time        time.Time      `json:"time"`
	Type        string         `json:"type"` // signal, alert or error
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
}

// Journaler interface for journaling events.
type Journaler interface {
	LogEvent(event Event) error
	// GetEvents returns events of eventType within [start, end). An empty
	// eventType matches all events.
	GetEvents(eventType string, start, end time.Time) ([]Event, error)
}

func matches(e Event, eventType string, start, end time.Time) bool {
	if eventType != "" && e.Type != eventType {
		return false
	}
	return !e.Time.Before(start) && e.Time.Before(end)
}

// Memory keeps events in process memory.
type Memory struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) LogEvent(event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *Memory) GetEvents(eventType string, start, end time.Time) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Event
	for _, e := range m.events {
		if matches(e, eventType, start, end) {
			out = append(out, e)
		}
	}
	return out, nil
}

// File appends events to a JSON-lines file.
type File struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenFile opens path for appending, creating it if needed.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return &File{path: path, f: f}, nil
}

func (j *File) LogEvent(event Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return errors.New("journal is closed")
	}
	_, err = j.f.Write(line)
	return err
}

func (j *File) GetEvents(eventType string, start, end time.Time) ([]Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", j.path, err)
	}
	defer f.Close()
	return scan(f, eventType, start, end)
}

func (j *File) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return nil
	}
	err := j.f.Close()
	j.f = nil
	return err
}

func scan(r io.Reader, eventType string, start, end time.Time) ([]Event, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var out []Event
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("journal line %d: %w", line, err)
		}
		if matches(e, eventType, start, end) {
			out = append(out, e)
		}
	}
	return out, sc.Err()
}
