// Package messenger is the host-integration shell: one long-lived
// coordination object per agent process, owning the registry handle, the
// inbox watcher, swarm access, presence, and the crew orchestrator. The
// action router dispatches the pi_messenger tool surface onto it.
package messenger

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/grovetools/mesh/config"
	meshErrors "github.com/grovetools/mesh/errors"
	crewpkg "github.com/grovetools/mesh/internal/crew"
	"github.com/grovetools/mesh/git"
	"github.com/grovetools/mesh/logging"
	"github.com/grovetools/mesh/pkg/crew"
	"github.com/grovetools/mesh/pkg/inbox"
	"github.com/grovetools/mesh/pkg/naming"
	"github.com/grovetools/mesh/pkg/paths"
	"github.com/grovetools/mesh/pkg/presence"
	"github.com/grovetools/mesh/pkg/registry"
	"github.com/grovetools/mesh/pkg/reserve"
	"github.com/grovetools/mesh/pkg/swarm"
	"github.com/sirupsen/logrus"
)

// Host is the embedding agent runtime, reduced to the capabilities the mesh
// consumes. Steer feeds text into the turn loop as user-visible input; Notify
// raises a UI notification.
type Host interface {
	Steer(text string)
	Notify(title, body string)
}

// Options configures a Messenger for one host session.
type Options struct {
	Host      Host
	Config    *config.Config
	SessionID string
	Cwd       string
	Model     string
	Human     bool
}

// Messenger is the per-process coordination object. All handler state that
// the source kept in module-level singletons lives here: the listing cache
// (inside Registry), the seen-senders map, and the autonomous state (inside
// the orchestrator).
type Messenger struct {
	host  Host
	cfg   *config.Config
	log   *logrus.Entry
	model string
	cwd   string

	reg     *registry.Registry
	sender  *inbox.Sender
	swarm   *swarm.Swarm
	feed    *presence.Feed
	stuck   *presence.StuckTracker
	crewOps *crewpkg.Orchestrator

	mu          sync.Mutex
	self        *registry.Registration
	sessionID   string
	seenSenders map[string]bool // keyed (name, sessionId)
	deliveredID map[string]bool // message-id idempotence window
	watcher     *inbox.Watcher
	watchCancel context.CancelFunc
}

// New creates a Messenger. It does not join the mesh; call Join (or let the
// router's join action do it).
func New(opts Options) *Messenger {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	cwd := opts.Cwd
	if cwd == "" {
		cwd, _ = os.Getwd()
	}

	reg := registry.New()
	m := &Messenger{
		host:        opts.Host,
		cfg:         cfg,
		log:         logging.NewLogger("messenger"),
		model:       opts.Model,
		cwd:         cwd,
		reg:         reg,
		sender:      inbox.NewSender(reg),
		swarm:       swarm.New(reg),
		feed:        presence.NewFeed(0),
		stuck:       presence.NewStuckTracker(),
		sessionID:   sessionID,
		seenSenders: make(map[string]bool),
		deliveredID: make(map[string]bool),
	}
	m.crewOps = crewpkg.New(crew.NewStore(cwd), cfg, nil, m.steer)
	return m
}

// steer forwards a continuation prompt to the host, when present.
func (m *Messenger) steer(text string) {
	if m.host != nil {
		m.host.Steer(text)
	}
}

// Registered reports whether this process has joined the mesh.
func (m *Messenger) Registered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.self != nil
}

// Self returns a copy of the current registration, or nil.
func (m *Messenger) Self() *registry.Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.self == nil {
		return nil
	}
	clone := *m.self
	return &clone
}

// Join registers this process on the mesh. An explicit name (argument or
// environment) never retries on collision; a generated name does.
func (m *Messenger) Join(explicitName, specPath string, human bool) (*registry.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.self != nil {
		return m.self, nil
	}

	if err := paths.EnsureBase(); err != nil {
		return nil, meshErrors.Wrap(err, meshErrors.ErrCodeRegistrationFailed, "could not create mesh directories")
	}

	name := explicitName
	if name == "" {
		name = os.Getenv(paths.EnvAgentName)
	}
	if name != "" {
		if err := naming.Validate(name); err != nil {
			return nil, err
		}
		if taken, pid := m.reg.IsTaken(name); taken {
			return nil, meshErrors.NameTaken(name, pid)
		}
	} else {
		gen := naming.NewGenerator(naming.Theme(m.cfg.NameTheme), m.cfg.NameWords, time.Now().UnixNano())
		generated, err := gen.Generate(func(candidate string) bool {
			taken, _ := m.reg.IsTaken(candidate)
			return taken
		})
		if err != nil {
			return nil, err
		}
		name = generated
	}

	branch := git.NewClient(m.cwd).CurrentBranch(context.Background())
	reg := &registry.Registration{
		Name:      name,
		PID:       os.Getpid(),
		SessionID: m.sessionID,
		Cwd:       m.cwd,
		Model:     m.model,
		StartedAt: time.Now(),
		Branch:    branch,
		SpecPath:  specPath,
		Human:     human,
		Activity:  registry.Activity{LastActivityAt: time.Now()},
	}
	if err := m.reg.Register(reg); err != nil {
		return nil, err
	}
	m.self = reg

	ctx, cancel := context.WithCancel(context.Background())
	m.watchCancel = cancel
	m.watcher = inbox.NewWatcher(m.sessionID, m.deliver)
	go m.watcher.Start(ctx)

	if err := m.feed.Emit(presence.Event{Kind: presence.EventJoin, Agent: name}); err != nil {
		m.log.WithError(err).Warn("could not emit join event")
	}
	return reg, nil
}

// Leave deregisters on clean shutdown: registration and inbox removed, feed
// notified, watcher stopped.
func (m *Messenger) Leave() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.self == nil {
		return nil
	}
	if m.watchCancel != nil {
		m.watchCancel()
		m.watchCancel = nil
	}
	if err := m.feed.Emit(presence.Event{Kind: presence.EventLeave, Agent: m.self.Name}); err != nil {
		m.log.WithError(err).Warn("could not emit leave event")
	}
	err := m.reg.Deregister(m.self)
	m.self = nil
	return err
}

// deliver is the inbox watcher callback. Delivery is idempotent on message
// id: a deliver-then-crash can replay a message after restart.
func (m *Messenger) deliver(msg inbox.Message) {
	m.mu.Lock()
	if m.deliveredID[msg.ID] {
		m.mu.Unlock()
		return
	}
	m.deliveredID[msg.ID] = true
	if len(m.deliveredID) > 1000 {
		m.deliveredID = map[string]bool{msg.ID: true}
	}

	firstContact := false
	var senderKey string
	if sender, err := m.reg.Load(msg.From); err == nil {
		senderKey = msg.From + "\n" + sender.SessionID
	} else {
		senderKey = msg.From + "\n?"
	}
	if !m.seenSenders[senderKey] {
		m.seenSenders[senderKey] = true
		firstContact = true
	}
	m.mu.Unlock()

	text := fmt.Sprintf("Message from %s: %s", msg.From, msg.Text)
	if firstContact && m.cfg.SenderDetailsOnFirstContact {
		if sender, err := m.reg.Load(msg.From); err == nil {
			text = fmt.Sprintf("Message from %s (cwd %s, branch %s, model %s): %s",
				msg.From, sender.Cwd, sender.Branch, sender.Model, msg.Text)
		}
	}
	if m.cfg.ReplyHint != "" {
		text += "\n" + m.cfg.ReplyHint
	}

	m.steer(text)
}

// peers lists active agents excluding self, honoring folder scoping.
func (m *Messenger) peers() ([]registry.Registration, error) {
	opts := registry.ListOptions{}
	if self := m.Self(); self != nil {
		opts.ExcludeName = self.Name
	}
	if m.cfg.ScopeToFolder {
		opts.Cwd = m.cwd
	}
	return m.reg.ActiveAgents(opts)
}

// CheckWrite enforces peer reservations on a local write-class tool call. A
// non-nil conflict means the host must abort the tool operation.
func (m *Messenger) CheckWrite(tool, target string) (*reserve.Conflict, error) {
	if !reserve.IsWriteTool(tool) || !m.Registered() {
		return nil, nil
	}
	agents, err := m.peers()
	if err != nil {
		return nil, err
	}
	return reserve.CheckWrite(agents, m.cwd, target), nil
}

// NoteToolCall records local activity: counters, activity timestamps, and
// derived feed events (edits, commits, test runs).
func (m *Messenger) NoteToolCall(tool, detail string, exitCode int) {
	m.mu.Lock()
	self := m.self
	m.mu.Unlock()
	if self == nil {
		return
	}

	self.Counters.ToolCalls++
	if reserve.IsWriteTool(tool) && detail != "" {
		self.Counters.RecordFile(detail)
		if err := m.feed.Emit(presence.Event{Kind: presence.EventEdit, Agent: self.Name, Target: detail}); err != nil {
			m.log.WithError(err).Debug("could not emit edit event")
		}
	}
	if tool == "bash" {
		m.noteBash(self.Name, detail, exitCode)
	}
	if err := m.reg.Touch(self, "", tool); err != nil {
		m.log.WithError(err).Debug("could not touch registration")
	}
}

// noteBash pattern-matches shell commands for commit and test feed events.
func (m *Messenger) noteBash(agent, cmd string, exitCode int) {
	switch {
	case commitPattern.MatchString(cmd):
		if err := m.feed.Emit(presence.Event{Kind: presence.EventCommit, Agent: agent, Detail: commitSubject(cmd)}); err != nil {
			m.log.WithError(err).Debug("could not emit commit event")
		}
	case testPattern.MatchString(cmd):
		outcome := "pass"
		if exitCode != 0 {
			outcome = "fail"
		}
		if err := m.feed.Emit(presence.Event{Kind: presence.EventTest, Agent: agent, Target: cmd, Detail: outcome}); err != nil {
			m.log.WithError(err).Debug("could not emit test event")
		}
	}
}

// statusOf derives a peer's presence, firing a stuck notification once per
// episode.
func (m *Messenger) statusOf(reg *registry.Registration) presence.Status {
	hasWork := len(reg.Reservations) > 0
	if !hasWork {
		if _, _, found, err := m.swarm.ClaimOf(reg); err == nil && found {
			hasWork = true
		}
	}

	threshold := time.Duration(m.cfg.StuckThresholdSeconds) * time.Second
	status := presence.Derive(reg.Activity.LastActivityAt, hasWork, threshold, time.Now())

	if m.stuck.Observe(reg.Name, status) {
		if err := m.feed.Emit(presence.Event{Kind: presence.EventStuck, Agent: reg.Name}); err != nil {
			m.log.WithError(err).Debug("could not emit stuck event")
		}
		if m.host != nil {
			m.host.Notify("Agent stuck", fmt.Sprintf("%s has been inactive for over %s", reg.Name, threshold))
		}
	}
	return status
}
