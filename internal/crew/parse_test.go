package crew

import (
	"testing"

	"github.com/grovetools/mesh/pkg/crew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTasksJSONBlock(t *testing.T) {
	output := "Here is the plan.\n\n```tasks-json\n" +
		`[
  {"title": "Set up storage", "description": "Create the store.", "dependsOn": []},
  {"title": "Wire transport", "description": "Hook it up.", "dependsOn": ["Set up storage"]},
  {"title": "Polish", "description": "Cleanup.", "dependsOn": ["task 2"]}
]` + "\n```\nDone.\n"

	tasks, err := parseTasks(output)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "Set up storage", tasks[0].Title)
	assert.Equal(t, []string{"Set up storage"}, tasks[1].DependsOn)
}

func TestParseTasksJSONMalformed(t *testing.T) {
	_, err := parseTasks("```tasks-json\n{not an array}\n```")
	assert.Error(t, err)
}

func TestParseTasksMarkdownFallback(t *testing.T) {
	output := `## Plan

### Task 1: Set up storage
Create the store layer.

### Task 2: Wire transport
Dependencies: Task 1
Hook the transport into the store.

### Task 3: Polish
Dependencies: set up storage, task-2
Final cleanup.
`

	tasks, err := parseTasks(output)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "Set up storage", tasks[0].Title)
	assert.Empty(t, tasks[0].DependsOn)
	assert.Equal(t, []string{"Task 1"}, tasks[1].DependsOn)
	assert.Equal(t, []string{"set up storage", "task-2"}, tasks[2].DependsOn)
	assert.Contains(t, tasks[1].Description, "Hook the transport")
	assert.NotContains(t, tasks[1].Description, "Dependencies:")
}

func TestResolveDependencies(t *testing.T) {
	parsed := []ParsedTask{
		{Title: "Set up storage"},
		{Title: "Wire transport", DependsOn: []string{"Set up storage"}},
		{Title: "Polish", DependsOn: []string{"task 2", "Task-1", "ghost feature"}},
	}
	created := []*crew.Task{
		{ID: "task-1", Title: "Set up storage"},
		{ID: "task-2", Title: "Wire transport"},
		{ID: "task-3", Title: "Polish"},
	}

	resolved, unresolved := resolveDependencies(parsed, created)
	assert.Empty(t, resolved[0])
	assert.Equal(t, []string{"task-1"}, resolved[1])
	assert.Equal(t, []string{"task-2", "task-1"}, resolved[2])
	require.Len(t, unresolved, 1)
	assert.Contains(t, unresolved[0], "ghost feature")
}

func TestParseReview(t *testing.T) {
	output := `The plan is close but not ready.

Verdict: NEEDS_WORK

## Issues
- task 2 has no acceptance criteria
- missing error handling task

## Suggestions
- split task 3
`
	outcome := parseReview(output)
	assert.Equal(t, crew.VerdictNeedsWork, outcome.Verdict)
	assert.Equal(t, "The plan is close but not ready.", outcome.Summary)
	assert.Equal(t, []string{
		"task 2 has no acceptance criteria",
		"missing error handling task",
	}, outcome.Issues)
	assert.Equal(t, []string{"split task 3"}, outcome.Suggestions)
}

func TestParseReviewVerdictVariants(t *testing.T) {
	tests := []struct {
		output  string
		verdict string
	}{
		{"**Verdict**: SHIP\n", crew.VerdictShip},
		{"verdict — MAJOR_RETHINK", crew.VerdictMajorRethink},
		{"no verdict anywhere", crew.VerdictNeedsWork},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.verdict, parseReview(tt.output).Verdict, "input %q", tt.output)
	}
}

func TestParseQuestions(t *testing.T) {
	output := `### Q1 (single)
Which storage backend should we target first?
- SQLite
- Postgres

### Q2 (text)
Describe the expected deployment environment.

### Q3 (multi)
Which platforms matter?
- Linux
- macOS
- Windows
`
	questions := parseQuestions(output)
	require.Len(t, questions, 3)

	assert.Equal(t, "q1", questions[0].ID)
	assert.Equal(t, "single", questions[0].Type)
	assert.Equal(t, "Which storage backend should we target first?", questions[0].Prompt)
	assert.Equal(t, []string{"SQLite", "Postgres"}, questions[0].Options)

	assert.Equal(t, "text", questions[1].Type)
	assert.Empty(t, questions[1].Options)

	assert.Equal(t, []string{"Linux", "macOS", "Windows"}, questions[2].Options)
}

func TestParseSpecUpdates(t *testing.T) {
	output := `### Updated: task-2
Rationale: storage API changed.

New content:
The store now exposes batched writes; use them.

### Updated: task-3
No content section here, should be dropped.

### Updated: task-4
#### New content
Use the new retry helper.
`
	updates := parseSpecUpdates(output)
	require.Len(t, updates, 2)
	assert.Equal(t, "task-2", updates[0].TaskID)
	assert.Contains(t, updates[0].Content, "batched writes")
	assert.Equal(t, "task-4", updates[1].TaskID)
	assert.Contains(t, updates[1].Content, "retry helper")
}
