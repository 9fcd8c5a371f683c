package presence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/grovetools/mesh/logging"
	"github.com/grovetools/mesh/pkg/atomicio"
	"github.com/grovetools/mesh/pkg/paths"
	"github.com/sirupsen/logrus"
)

// EventKind enumerates the activity feed event types. The set is closed;
// unknown kinds are rejected at the type boundary.
type EventKind string

const (
	EventJoin    EventKind = "join"
	EventLeave   EventKind = "leave"
	EventMessage EventKind = "message"
	EventEdit    EventKind = "edit"
	EventCommit  EventKind = "commit"
	EventTest    EventKind = "test"
	EventReserve EventKind = "reserve"
	EventRelease EventKind = "release"
	EventStuck   EventKind = "stuck"
)

var validKinds = map[EventKind]bool{
	EventJoin: true, EventLeave: true, EventMessage: true, EventEdit: true,
	EventCommit: true, EventTest: true, EventReserve: true, EventRelease: true,
	EventStuck: true,
}

// Event is one line of feed.jsonl.
type Event struct {
	Kind   EventKind `json:"kind"`
	Agent  string    `json:"agent"`
	At     time.Time `json:"at"`
	Target string    `json:"target,omitempty"` // peer, path, or test command
	Detail string    `json:"detail,omitempty"` // reason, commit subject, pass/fail
}

// DefaultRetention bounds feed.jsonl length.
const DefaultRetention = 500

// editDebounce suppresses repeat edit events for the same file.
const editDebounce = 5 * time.Second

// Feed appends typed events to the shared activity log and reads them back.
type Feed struct {
	retention int
	log       *logrus.Entry

	mu       sync.Mutex
	lastEdit map[string]time.Time
	appends  int
}

// NewFeed creates a Feed with the given retention (0 means DefaultRetention).
func NewFeed(retention int) *Feed {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Feed{
		retention: retention,
		log:       logging.NewLogger("feed"),
		lastEdit:  make(map[string]time.Time),
	}
}

// Emit validates and appends one event. Edit events are debounced per file.
func (f *Feed) Emit(event Event) error {
	if !validKinds[event.Kind] {
		return fmt.Errorf("unknown feed event kind %q", event.Kind)
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}

	if event.Kind == EventEdit {
		f.mu.Lock()
		if last, ok := f.lastEdit[event.Target]; ok && event.At.Sub(last) < editDebounce {
			f.mu.Unlock()
			return nil
		}
		f.lastEdit[event.Target] = event.At
		f.mu.Unlock()
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal feed event: %w", err)
	}

	path := paths.FeedPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open feed: %w", err)
	}
	_, werr := file.Write(append(line, '\n'))
	cerr := file.Close()
	if werr != nil {
		return fmt.Errorf("append feed: %w", werr)
	}
	if cerr != nil {
		return cerr
	}

	// Compact opportunistically rather than on every append.
	f.mu.Lock()
	f.appends++
	shouldCompact := f.appends%50 == 0
	f.mu.Unlock()
	if shouldCompact {
		if err := f.compact(); err != nil {
			f.log.WithError(err).Warn("feed compaction failed")
		}
	}
	return nil
}

// Recent returns up to n events, oldest first. Malformed lines are skipped.
func (f *Feed) Recent(n int) ([]Event, error) {
	events, err := readAll()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}

func readAll() ([]Event, error) {
	file, err := os.Open(paths.FeedPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}
		if !validKinds[event.Kind] {
			continue
		}
		events = append(events, event)
	}
	return events, scanner.Err()
}

// compact rewrites the feed keeping the newest retention entries.
func (f *Feed) compact() error {
	events, err := readAll()
	if err != nil {
		return err
	}
	if len(events) <= f.retention {
		return nil
	}
	events = events[len(events)-f.retention:]

	var b strings.Builder
	for _, event := range events {
		line, err := json.Marshal(event)
		if err != nil {
			continue
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	return atomicio.WriteFile(paths.FeedPath(), []byte(b.String()), 0644)
}

// FormatLine renders one event for display. The formatter is exhaustive over
// the closed kind set.
func FormatLine(event Event) (string, error) {
	ts := event.At.Format("15:04:05")
	switch event.Kind {
	case EventJoin:
		return fmt.Sprintf("%s %s joined the mesh", ts, event.Agent), nil
	case EventLeave:
		return fmt.Sprintf("%s %s left the mesh", ts, event.Agent), nil
	case EventMessage:
		return fmt.Sprintf("%s %s messaged %s", ts, event.Agent, event.Target), nil
	case EventEdit:
		return fmt.Sprintf("%s %s edited %s", ts, event.Agent, event.Target), nil
	case EventCommit:
		return fmt.Sprintf("%s %s committed: %s", ts, event.Agent, event.Detail), nil
	case EventTest:
		return fmt.Sprintf("%s %s ran tests (%s): %s", ts, event.Agent, event.Detail, event.Target), nil
	case EventReserve:
		return fmt.Sprintf("%s %s reserved %s", ts, event.Agent, event.Target), nil
	case EventRelease:
		return fmt.Sprintf("%s %s released %s", ts, event.Agent, event.Target), nil
	case EventStuck:
		return fmt.Sprintf("%s %s looks stuck", ts, event.Agent), nil
	default:
		return "", fmt.Errorf("unknown feed event kind %q", event.Kind)
	}
}
