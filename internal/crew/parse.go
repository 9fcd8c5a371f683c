package crew

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/grovetools/mesh/pkg/crew"
)

// ParsedTask is one entry of a planner task list before store resolution.
type ParsedTask struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	DependsOn   []string `json:"dependsOn"`
}

var (
	tasksJSONPattern  = regexp.MustCompile("(?s)```tasks-json\\s*\n(.*?)```")
	taskHeadingLine   = regexp.MustCompile(`(?m)^### Task (\d+): (.+)$`)
	dependenciesLine  = regexp.MustCompile(`(?mi)^Dependencies:\s*(.*)$`)
	verdictPattern    = regexp.MustCompile(`(?i)verdict[^A-Za-z]*(SHIP|NEEDS_WORK|MAJOR_RETHINK)`)
	questionHeading   = regexp.MustCompile(`(?m)^### Q(\d+) \((single|multi|text)\)\s*$`)
	syncUpdateHeading = regexp.MustCompile(`(?m)^### Updated: (task-\d+)\s*$`)
)

// parseTasks extracts a task list from planner output. The preferred format
// is a fenced tasks-json block; the fallback is `### Task N:` markdown
// headings with a Dependencies line.
func parseTasks(output string) ([]ParsedTask, error) {
	if match := tasksJSONPattern.FindStringSubmatch(output); match != nil {
		var tasks []ParsedTask
		if err := json.Unmarshal([]byte(match[1]), &tasks); err != nil {
			return nil, fmt.Errorf("parse tasks-json block: %w", err)
		}
		return tasks, nil
	}
	return parseTasksMarkdown(output), nil
}

// parseTasksMarkdown is the heading-based fallback.
func parseTasksMarkdown(output string) []ParsedTask {
	locs := taskHeadingLine.FindAllStringSubmatchIndex(output, -1)
	var tasks []ParsedTask
	for i, loc := range locs {
		title := output[loc[4]:loc[5]]
		end := len(output)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(output[loc[1]:end])

		var deps []string
		if depMatch := dependenciesLine.FindStringSubmatch(body); depMatch != nil {
			for _, d := range strings.Split(depMatch[1], ",") {
				d = strings.TrimSpace(d)
				if d != "" && !strings.EqualFold(d, "none") {
					deps = append(deps, d)
				}
			}
			body = strings.TrimSpace(dependenciesLine.ReplaceAllString(body, ""))
		}

		tasks = append(tasks, ParsedTask{Title: title, Description: body, DependsOn: deps})
	}
	return tasks
}

// resolveDependencies rewrites raw dependency strings to task ids. A
// dependency matches by lowercased title or by `task N` / `task-N` alias
// (ordinal over the parsed list). Unresolvable strings are returned for the
// caller to report.
func resolveDependencies(parsed []ParsedTask, created []*crew.Task) (resolved [][]string, unresolved []string) {
	byTitle := make(map[string]string, len(created))
	for _, t := range created {
		byTitle[strings.ToLower(strings.TrimSpace(t.Title))] = t.ID
	}
	byOrdinal := func(n int) string {
		if n >= 1 && n <= len(created) {
			return created[n-1].ID
		}
		return ""
	}

	aliasPattern := regexp.MustCompile(`(?i)^task[ -](\d+)$`)
	resolved = make([][]string, len(parsed))
	for i, p := range parsed {
		for _, raw := range p.DependsOn {
			key := strings.ToLower(strings.TrimSpace(raw))
			if id, ok := byTitle[key]; ok {
				resolved[i] = append(resolved[i], id)
				continue
			}
			if m := aliasPattern.FindStringSubmatch(key); m != nil {
				n, _ := strconv.Atoi(m[1])
				if id := byOrdinal(n); id != "" {
					resolved[i] = append(resolved[i], id)
					continue
				}
			}
			unresolved = append(unresolved, fmt.Sprintf("%s -> %q", created[i].ID, raw))
		}
	}
	return resolved, unresolved
}

// ReviewOutcome is a parsed reviewer response.
type ReviewOutcome struct {
	Verdict     string
	Summary     string
	Issues      []string
	Suggestions []string
}

// parseReview extracts the verdict and the Issues/Suggestions sections from
// reviewer output. A response without a recognizable verdict defaults to
// NEEDS_WORK so a malformed reviewer never ships a plan.
func parseReview(output string) ReviewOutcome {
	outcome := ReviewOutcome{Verdict: crew.VerdictNeedsWork}
	if match := verdictPattern.FindStringSubmatch(output); match != nil {
		outcome.Verdict = strings.ToUpper(match[1])
	}

	outcome.Issues = sectionItems(output, "Issues")
	outcome.Suggestions = sectionItems(output, "Suggestions")

	// First non-empty line that isn't a heading doubles as the summary.
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || verdictPattern.MatchString(line) {
			continue
		}
		outcome.Summary = line
		break
	}
	return outcome
}

// sectionItems collects `- ` bullets under a heading (any level) or a
// `<name>:` label line, stopping at the next heading.
func sectionItems(output, name string) []string {
	headingPattern := regexp.MustCompile(`(?mi)^(?:#+\s*` + name + `\s*|` + name + `:)\s*$`)
	loc := headingPattern.FindStringIndex(output)
	if loc == nil {
		return nil
	}

	var items []string
	for _, line := range strings.Split(output[loc[1]:], "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") || headingEnd(trimmed) {
			break
		}
		if strings.HasPrefix(trimmed, "- ") {
			items = append(items, strings.TrimSpace(trimmed[2:]))
		}
	}
	return items
}

// headingEnd reports whether a line starts another labelled section.
func headingEnd(line string) bool {
	for _, label := range []string{"Verdict:", "Issues:", "Suggestions:"} {
		if strings.HasPrefix(line, label) {
			return true
		}
	}
	return false
}

// Question is one parsed interview question, written to the canonical JSON
// file consumed by the host's interview tool.
type Question struct {
	ID      string   `json:"id"`
	Type    string   `json:"type"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
}

// parseQuestions extracts `### Q<N> (<type>)` blocks. The prompt joins every
// non-bullet line of the block with spaces; `- ` bullets become options.
func parseQuestions(output string) []Question {
	locs := questionHeading.FindAllStringSubmatchIndex(output, -1)
	var questions []Question
	for i, loc := range locs {
		number := output[loc[2]:loc[3]]
		qtype := output[loc[4]:loc[5]]
		end := len(output)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := output[loc[1]:end]

		q := Question{ID: "q" + number, Type: qtype}
		var promptLines []string
		for _, line := range strings.Split(body, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			if strings.HasPrefix(trimmed, "- ") {
				q.Options = append(q.Options, strings.TrimSpace(trimmed[2:]))
				continue
			}
			promptLines = append(promptLines, trimmed)
		}
		q.Prompt = strings.Join(promptLines, " ")
		if q.Prompt != "" {
			questions = append(questions, q)
		}
	}
	return questions
}

// SpecUpdate is one parsed sync amendment for a dependent task.
type SpecUpdate struct {
	TaskID  string
	Content string
}

var newContentPattern = regexp.MustCompile(`(?mi)^(?:#+\s*New content\s*|New content:)\s*$`)

// parseSpecUpdates extracts `### Updated: <task-id>` blocks and their "New
// content" sections. Blocks without a content section are dropped.
func parseSpecUpdates(output string) []SpecUpdate {
	locs := syncUpdateHeading.FindAllStringSubmatchIndex(output, -1)
	var updates []SpecUpdate
	for i, loc := range locs {
		taskID := output[loc[2]:loc[3]]
		end := len(output)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := output[loc[1]:end]

		contentLoc := newContentPattern.FindStringIndex(body)
		if contentLoc == nil {
			continue
		}
		content := strings.TrimSpace(body[contentLoc[1]:])
		if content == "" {
			continue
		}
		updates = append(updates, SpecUpdate{TaskID: taskID, Content: content})
	}
	return updates
}
