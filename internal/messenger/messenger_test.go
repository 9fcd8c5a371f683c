package messenger

import (
	"context"
	"testing"

	"github.com/grovetools/mesh/config"
	"github.com/grovetools/mesh/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHost struct {
	steers  []string
	notices []string
}

func (h *recordingHost) Steer(text string) { h.steers = append(h.steers, text) }
func (h *recordingHost) Notify(title, body string) {
	h.notices = append(h.notices, title+": "+body)
}

func newTestMessenger(t *testing.T, session string) (*Messenger, *recordingHost) {
	t.Helper()
	host := &recordingHost{}
	m := New(Options{
		Host:      host,
		Config:    config.Default(),
		SessionID: session,
		Cwd:       t.TempDir(),
	})
	return m, host
}

func TestDispatchRequiresRegistration(t *testing.T) {
	testutil.TempBase(t)
	m, _ := newTestMessenger(t, "s1")

	result := m.Dispatch(context.Background(), "list", nil)
	assert.Equal(t, "NOT_REGISTERED", result.Details["error"])

	result = m.Dispatch(context.Background(), "send", map[string]interface{}{"to": "x", "message": "hi"})
	assert.Equal(t, "NOT_REGISTERED", result.Details["error"])
}

func TestJoinThenStatus(t *testing.T) {
	testutil.TempBase(t)
	m, _ := newTestMessenger(t, "s1")

	result := m.Dispatch(context.Background(), "join", map[string]interface{}{"name": "Alpha"})
	require.False(t, result.IsError(), result.Text)
	assert.Equal(t, "Alpha", result.Details["name"])

	result = m.Dispatch(context.Background(), "status", nil)
	require.False(t, result.IsError(), result.Text)
	assert.Equal(t, "Alpha", result.Details["name"])
}

func TestJoinGeneratesDistinctNames(t *testing.T) {
	testutil.TempBase(t)
	a, _ := newTestMessenger(t, "s1")
	b, _ := newTestMessenger(t, "s2")

	regA, err := a.Join("", "", false)
	require.NoError(t, err)
	regB, err := b.Join("", "", false)
	require.NoError(t, err)
	assert.NotEqual(t, regA.Name, regB.Name)
}

func TestExplicitNameConflictFails(t *testing.T) {
	testutil.TempBase(t)
	a, _ := newTestMessenger(t, "s1")
	b, _ := newTestMessenger(t, "s2")

	_, err := a.Join("Shared", "", false)
	require.NoError(t, err)
	_, err = b.Join("Shared", "", false)
	require.Error(t, err, "explicit names never retry")
}

// Handshake & message: B sends, A's inbox file appears and the watcher scan
// steers A with the text.
func TestSendAndDeliver(t *testing.T) {
	testutil.TempBase(t)
	a, hostA := newTestMessenger(t, "session-a")
	b, _ := newTestMessenger(t, "session-b")

	_, err := a.Join("Alpha", "", false)
	require.NoError(t, err)
	_, err = b.Join("Beta", "", false)
	require.NoError(t, err)

	result := b.Dispatch(context.Background(), "send",
		map[string]interface{}{"to": "Alpha", "message": "hi"})
	require.False(t, result.IsError(), result.Text)

	// Drive a scan directly rather than waiting on fsnotify timing.
	drainInbox(a)

	require.NotEmpty(t, hostA.steers)
	assert.Contains(t, hostA.steers[0], "Beta")
	assert.Contains(t, hostA.steers[0], "hi")
}

func TestDeliverIdempotentOnID(t *testing.T) {
	testutil.TempBase(t)
	a, hostA := newTestMessenger(t, "session-a")
	b, _ := newTestMessenger(t, "session-b")
	_, err := a.Join("Alpha", "", false)
	require.NoError(t, err)
	_, err = b.Join("Beta", "", false)
	require.NoError(t, err)

	msg, err := b.sender.Send("Beta", "Alpha", "once", "")
	require.NoError(t, err)

	a.deliver(*msg)
	a.deliver(*msg)
	assert.Len(t, hostA.steers, 1, "same message id delivers once")
}

func TestBroadcastSkipsBadRecipients(t *testing.T) {
	testutil.TempBase(t)
	a, _ := newTestMessenger(t, "session-a")
	b, _ := newTestMessenger(t, "session-b")
	_, err := a.Join("Alpha", "", false)
	require.NoError(t, err)
	_, err = b.Join("Beta", "", false)
	require.NoError(t, err)

	result := a.Dispatch(context.Background(), "send", map[string]interface{}{
		"to":      []interface{}{"Beta", "Missing"},
		"message": "fan out",
	})
	require.False(t, result.IsError(), result.Text)
	sent := result.Details["sent"].(map[string]interface{})
	failed := result.Details["failed"].(map[string]interface{})
	assert.Contains(t, sent, "Beta")
	assert.Contains(t, failed, "Missing")
}

// Reservations block writes, not reads, and release unblocks.
func TestReservationEnforcement(t *testing.T) {
	testutil.TempBase(t)
	a, _ := newTestMessenger(t, "session-a")
	b, _ := newTestMessenger(t, "session-b")

	// Same project directory so B sees A's reservation anchor.
	b.cwd = a.cwd
	_, err := a.Join("Alpha", "", false)
	require.NoError(t, err)
	_, err = b.Join("Beta", "", false)
	require.NoError(t, err)

	result := a.Dispatch(context.Background(), "reserve", map[string]interface{}{
		"paths":  []interface{}{"src/auth/"},
		"reason": "login rework",
	})
	require.False(t, result.IsError(), result.Text)

	conflict, err := b.CheckWrite("edit", "src/auth/login.ts")
	require.NoError(t, err)
	require.NotNil(t, conflict, "write into a reserved subtree is blocked")
	assert.Equal(t, "Alpha", conflict.Peer.Name)

	conflict, err = b.CheckWrite("read", "src/auth/login.ts")
	require.NoError(t, err)
	assert.Nil(t, conflict, "reads are never blocked")

	result = a.Dispatch(context.Background(), "release", map[string]interface{}{"releaseAll": true})
	require.False(t, result.IsError(), result.Text)

	b.reg.Invalidate()
	conflict, err = b.CheckWrite("edit", "src/auth/login.ts")
	require.NoError(t, err)
	assert.Nil(t, conflict, "release unblocks the subtree")
}

func TestLegacyKeyForms(t *testing.T) {
	testutil.TempBase(t)
	m, _ := newTestMessenger(t, "s1")
	_, err := m.Join("Alpha", "", false)
	require.NoError(t, err)

	// Legacy reserve: paths under the `reserve` key itself.
	result := m.Dispatch(context.Background(), "", map[string]interface{}{
		"reserve": "docs/",
	})
	require.False(t, result.IsError(), result.Text)

	// Legacy release: boolean sentinel means release everything.
	result = m.Dispatch(context.Background(), "", map[string]interface{}{
		"release": true,
	})
	require.False(t, result.IsError(), result.Text)
	assert.Contains(t, result.Text, "Released")
}

func TestRenameAction(t *testing.T) {
	testutil.TempBase(t)
	m, _ := newTestMessenger(t, "s1")
	_, err := m.Join("Alpha", "", false)
	require.NoError(t, err)

	result := m.Dispatch(context.Background(), "rename", map[string]interface{}{"name": "Omega"})
	require.False(t, result.IsError(), result.Text)
	assert.Equal(t, "Omega", m.Self().Name)
}

func TestStringList(t *testing.T) {
	assert.Nil(t, stringList(nil))
	assert.Equal(t, []string{"a"}, stringList("a"))
	assert.Equal(t, []string{"a", "b"}, stringList([]interface{}{"a", "b"}))
	assert.Nil(t, stringList(42))
}

func TestInferLegacyAction(t *testing.T) {
	assert.Equal(t, "send", inferLegacyAction(map[string]interface{}{"to": "x", "message": "hi"}))
	assert.Equal(t, "claim", inferLegacyAction(map[string]interface{}{"claim": "TASK-1"}))
	assert.Equal(t, "release", inferLegacyAction(map[string]interface{}{"release": true}))
	assert.Equal(t, "", inferLegacyAction(map[string]interface{}{"other": 1}))
}

// drainInbox runs one watcher scan synchronously. The background watcher may
// or may not have scanned already; delivery is idempotent on message id
// either way.
func drainInbox(m *Messenger) {
	m.watcher.ScanNow()
}
