// Package inbox implements per-session message transport over the shared
// filesystem. Senders append atomically to a directory the recipient owns;
// the recipient consumes and deletes. Delivery is at-least-once at the
// filesystem level and exactly-once at the consumer.
package inbox

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/grovetools/mesh/errors"
	"github.com/grovetools/mesh/pkg/atomicio"
	"github.com/grovetools/mesh/pkg/naming"
	"github.com/grovetools/mesh/pkg/paths"
	"github.com/grovetools/mesh/pkg/process"
	"github.com/grovetools/mesh/pkg/registry"
)

// Message is the wire format of one inbox file.
type Message struct {
	ID      string    `json:"id"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
	ReplyTo string    `json:"reply_to,omitempty"`
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]|\x1b\][^\x07]*\x07`)

// StripANSI removes terminal escape sequences from message text before
// display. Senders are other agents; their output can carry color codes.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// Sender validates recipients against the registry and writes messages into
// their inboxes.
type Sender struct {
	reg *registry.Registry
}

// NewSender creates a Sender backed by the given registry.
func NewSender(reg *registry.Registry) *Sender {
	return &Sender{reg: reg}
}

// Send validates the target (name valid, registration present, PID alive) and
// atomically writes the message into the recipient's inbox. The inbox is
// keyed by session id, not name. Senders never wait for delivery.
func (s *Sender) Send(from, to, text, replyTo string) (*Message, error) {
	if err := naming.Validate(to); err != nil {
		return nil, err
	}

	target, err := s.reg.Load(to)
	if err != nil {
		return nil, errors.AgentNotFound(to)
	}
	if !process.IsAlive(target.PID) {
		return nil, errors.AgentNotActive(to, target.PID)
	}

	msg := &Message{
		ID:      uuid.NewString(),
		From:    from,
		To:      to,
		Text:    text,
		At:      time.Now(),
		ReplyTo: replyTo,
	}

	// Filename order is delivery order within one inbox.
	name := fmt.Sprintf("%020d-%s.json", msg.At.UnixNano(), msg.ID[:8])
	path := filepath.Join(paths.InboxDir(target.SessionID), name)
	if err := atomicio.WriteJSON(path, msg); err != nil {
		return nil, fmt.Errorf("write message to %s: %w", to, err)
	}
	return msg, nil
}
