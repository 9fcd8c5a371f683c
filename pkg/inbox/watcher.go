package inbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/grovetools/mesh/logging"
	"github.com/grovetools/mesh/pkg/atomicio"
	"github.com/grovetools/mesh/pkg/paths"
	"github.com/sirupsen/logrus"
)

const (
	// debounceInterval coalesces bursts of filesystem events into one scan.
	debounceInterval = 50 * time.Millisecond

	// pollInterval drives the fallback scan loop when the platform watcher is
	// unavailable.
	pollInterval = 1500 * time.Millisecond

	// maxWatcherRetries bounds watcher restarts before the session falls back
	// to polling permanently.
	maxWatcherRetries = 5

	// maxBackoff caps the exponential restart backoff.
	maxBackoff = 30 * time.Second
)

// DeliverFunc receives one parsed message. It reports nothing back: the
// message file is deleted once it returns and is never requeued. Consumers
// must be idempotent on message id —
// a deliver-then-crash can re-deliver after restart.
type DeliverFunc func(Message)

// Watcher owns one session's inbox directory: it watches for new message
// files, scans in filename order, delivers, and deletes. Undeliverable files
// are quarantined to .deadletter.
type Watcher struct {
	sessionID string
	deliver   DeliverFunc
	log       *logrus.Entry

	mu       sync.Mutex
	scanning bool
	pending  bool

	debounce *time.Timer
}

// NewWatcher creates a Watcher for the session's inbox.
func NewWatcher(sessionID string, deliver DeliverFunc) *Watcher {
	return &Watcher{
		sessionID: sessionID,
		deliver:   deliver,
		log:       logging.NewLogger("inbox"),
	}
}

// Dir returns the watched inbox directory.
func (w *Watcher) Dir() string {
	return paths.InboxDir(w.sessionID)
}

// ScanNow runs one synchronous scan, deferring if a scan is already in
// flight. Used by callers that need deterministic delivery (tests, shutdown
// drains) without waiting on the platform watcher.
func (w *Watcher) ScanNow() {
	w.requestScan()
}

// Start runs the watcher until ctx is cancelled. It retries watcher failures
// with exponential backoff and degrades to polling for the rest of the
// session once the retry budget is spent.
func (w *Watcher) Start(ctx context.Context) {
	if err := os.MkdirAll(w.Dir(), 0755); err != nil {
		w.log.WithError(err).Error("could not create inbox directory; falling back to polling")
		w.poll(ctx)
		return
	}

	// Drain anything that arrived before we started watching.
	w.requestScan()

	backoff := time.Second
	for attempt := 0; attempt <= maxWatcherRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.watch(ctx)
		if err == nil {
			return // context cancelled
		}
		w.log.WithError(err).Warnf("inbox watcher failed (attempt %d/%d)", attempt+1, maxWatcherRetries+1)
	}

	w.log.Warn("watcher retry budget spent; polling inbox for the rest of the session")
	w.poll(ctx)
}

// watch runs one fsnotify session. Returns nil on context cancellation and an
// error when the watcher breaks and should be restarted.
func (w *Watcher) watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.Dir()); err != nil {
		return fmt.Errorf("watch %s: %w", w.Dir(), err)
	}

	for {
		select {
		case _, ok := <-fw.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}
			// Any event schedules a single debounced scan; the scan itself
			// decides what is deliverable.
			w.scheduleScan()
		case err, ok := <-fw.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			return fmt.Errorf("watcher error: %w", err)
		case <-ctx.Done():
			return nil
		}
	}
}

// poll is the permanent fallback loop.
func (w *Watcher) poll(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.requestScan()
		case <-ctx.Done():
			return
		}
	}
}

// scheduleScan arms the debounce timer; repeated events within the window
// collapse into one scan.
func (w *Watcher) scheduleScan() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(debounceInterval, w.requestScan)
}

// requestScan runs a scan, or defers one if a scan is already in flight. The
// deferred scan runs as soon as the first finishes, so no event is lost.
func (w *Watcher) requestScan() {
	w.mu.Lock()
	if w.scanning {
		w.pending = true
		w.mu.Unlock()
		return
	}
	w.scanning = true
	w.mu.Unlock()

	for {
		w.scanOnce()

		w.mu.Lock()
		if !w.pending {
			w.scanning = false
			w.mu.Unlock()
			return
		}
		w.pending = false
		w.mu.Unlock()
	}
}

// scanOnce lists the inbox in filename order and delivers each message.
func (w *Watcher) scanOnce() {
	entries, err := os.ReadDir(w.Dir())
	if err != nil {
		if !os.IsNotExist(err) {
			w.log.WithError(err).Warn("could not list inbox")
		}
		return
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(w.Dir(), name)

		var msg Message
		if err := atomicio.ReadJSON(path, &msg); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			w.quarantine(path, name, err)
			continue
		}

		msg.Text = StripANSI(msg.Text)
		w.deliver(msg)

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			w.log.WithError(err).Warnf("could not delete delivered message %s", name)
		}
	}
}

// quarantine moves an undeliverable file to .deadletter and continues.
func (w *Watcher) quarantine(path, name string, cause error) {
	dlq := paths.DeadLetterDir(w.sessionID)
	if err := os.MkdirAll(dlq, 0755); err != nil {
		w.log.WithError(err).Warn("could not create deadletter directory")
		return
	}
	dest := filepath.Join(dlq, fmt.Sprintf("%s.bad-%d", name, time.Now().Unix()))
	if err := os.Rename(path, dest); err != nil {
		w.log.WithError(err).Warnf("could not quarantine %s", name)
		return
	}
	w.log.WithError(cause).Warnf("quarantined undeliverable message %s", name)
}
