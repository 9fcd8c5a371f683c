package presence

import (
	"testing"
	"time"

	"github.com/grovetools/mesh/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerive(t *testing.T) {
	now := time.Now()
	threshold := 900 * time.Second

	tests := []struct {
		name     string
		elapsed  time.Duration
		hasWork  bool
		expected Status
	}{
		{"fresh with work", 10 * time.Second, true, StatusActive},
		{"fresh without work", 10 * time.Second, false, StatusActive},
		{"short lull", 2 * time.Minute, false, StatusIdle},
		{"long lull with claim", 10 * time.Minute, true, StatusIdle},
		{"long lull without claim", 10 * time.Minute, false, StatusAway},
		{"past threshold with claim", 20 * time.Minute, true, StatusStuck},
		{"past threshold without claim", 20 * time.Minute, false, StatusAway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := Derive(now.Add(-tt.elapsed), tt.hasWork, threshold, now)
			assert.Equal(t, tt.expected, status)
		})
	}
}

func TestStuckTrackerOncePerEpisode(t *testing.T) {
	tracker := NewStuckTracker()

	assert.True(t, tracker.Observe("alpha", StatusStuck), "first stuck observation notifies")
	assert.False(t, tracker.Observe("alpha", StatusStuck), "repeat observation is debounced")

	assert.False(t, tracker.Observe("alpha", StatusActive))
	assert.True(t, tracker.Observe("alpha", StatusStuck), "new episode notifies again")

	assert.True(t, tracker.Observe("beta", StatusStuck), "episodes are per name")
}

func TestFeedEmitAndRecent(t *testing.T) {
	testutil.TempBase(t)
	feed := NewFeed(0)

	require.NoError(t, feed.Emit(Event{Kind: EventJoin, Agent: "alpha"}))
	require.NoError(t, feed.Emit(Event{Kind: EventMessage, Agent: "alpha", Target: "beta"}))
	require.NoError(t, feed.Emit(Event{Kind: EventCommit, Agent: "alpha", Detail: "fix parser"}))

	events, err := feed.Recent(10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, EventJoin, events[0].Kind)
	assert.Equal(t, EventCommit, events[2].Kind)

	events, err = feed.Recent(2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventMessage, events[0].Kind)
}

func TestFeedRejectsUnknownKind(t *testing.T) {
	testutil.TempBase(t)
	feed := NewFeed(0)
	err := feed.Emit(Event{Kind: EventKind("teleport"), Agent: "alpha"})
	require.Error(t, err)
}

func TestFeedEditDebounce(t *testing.T) {
	testutil.TempBase(t)
	feed := NewFeed(0)

	require.NoError(t, feed.Emit(Event{Kind: EventEdit, Agent: "a", Target: "main.go"}))
	require.NoError(t, feed.Emit(Event{Kind: EventEdit, Agent: "a", Target: "main.go"}))
	require.NoError(t, feed.Emit(Event{Kind: EventEdit, Agent: "a", Target: "other.go"}))

	events, err := feed.Recent(10)
	require.NoError(t, err)
	assert.Len(t, events, 2, "repeat edit of the same file within the window is dropped")
}

func TestFeedCompaction(t *testing.T) {
	testutil.TempBase(t)
	feed := NewFeed(10)

	// Cross the opportunistic compaction boundary.
	for i := 0; i < 120; i++ {
		require.NoError(t, feed.Emit(Event{Kind: EventJoin, Agent: "a"}))
	}

	events, err := feed.Recent(0)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(events), 60, "retention bounds the feed")
}

func TestFormatLineExhaustive(t *testing.T) {
	for kind := range validKinds {
		_, err := FormatLine(Event{Kind: kind, Agent: "a", Target: "t", Detail: "d"})
		assert.NoError(t, err, "kind %s must format", kind)
	}

	_, err := FormatLine(Event{Kind: EventKind("bogus")})
	assert.Error(t, err)
}
