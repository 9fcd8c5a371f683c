// Package crew persists the per-project plan and task state under
// <project>/.pi/messenger/crew. Any process operating in the project
// directory may mutate this state; the long-running planning action is
// serialized separately by the crew lock.
package crew

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/grovetools/mesh/errors"
	"github.com/grovetools/mesh/logging"
	"github.com/grovetools/mesh/pkg/atomicio"
	"github.com/grovetools/mesh/pkg/paths"
	"github.com/grovetools/mesh/util/frontmatter"
	"github.com/sirupsen/logrus"
)

var taskFilePattern = regexp.MustCompile(`^task-(\d+)\.json$`)

// Store reads and writes plan/task state for one project directory.
type Store struct {
	projectDir string
	log        *logrus.Entry
}

// NewStore creates a Store rooted at the given project directory.
func NewStore(projectDir string) *Store {
	return &Store{projectDir: projectDir, log: logging.NewLogger("crew-store")}
}

// Dir returns the crew state directory.
func (s *Store) Dir() string {
	return paths.CrewDir(s.projectDir)
}

// ProjectDir returns the project root this store belongs to.
func (s *Store) ProjectDir() string {
	return s.projectDir
}

// TasksDir returns the directory holding task files.
func (s *Store) TasksDir() string {
	return filepath.Join(s.Dir(), "tasks")
}

// BlocksDir returns the directory holding block notes.
func (s *Store) BlocksDir() string {
	return filepath.Join(s.Dir(), "blocks")
}

// ArtifactsDir returns the directory holding spawned-agent artifacts.
func (s *Store) ArtifactsDir() string {
	return filepath.Join(s.Dir(), "artifacts")
}

// PlanLockPath returns the crew planning lock file.
func (s *Store) PlanLockPath() string {
	return filepath.Join(s.Dir(), "plan.lock")
}

// PlanPath returns plan.json.
func (s *Store) PlanPath() string {
	return filepath.Join(s.Dir(), "plan.json")
}

// PlanSpecPath returns plan.md, the analyst's full output.
func (s *Store) PlanSpecPath() string {
	return filepath.Join(s.Dir(), "plan.md")
}

// ProgressPath returns planning-progress.md.
func (s *Store) ProgressPath() string {
	return filepath.Join(s.Dir(), "planning-progress.md")
}

// InterviewPath returns the canonical interview questions file.
func (s *Store) InterviewPath() string {
	return filepath.Join(s.Dir(), "interview-questions.json")
}

// LoadPlan returns the project plan, or a typed NO_PLAN error.
func (s *Store) LoadPlan() (*Plan, error) {
	var plan Plan
	if err := atomicio.ReadJSON(s.PlanPath(), &plan); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NoPlan()
		}
		return nil, err
	}
	return &plan, nil
}

// CreatePlan writes a new plan. A second plan for the same project returns
// PLAN_EXISTS carrying the existing PRD path.
func (s *Store) CreatePlan(prdPath string) (*Plan, error) {
	if existing, err := s.LoadPlan(); err == nil {
		return nil, errors.PlanExists(existing.PRDPath)
	}

	now := time.Now()
	plan := &Plan{PRDPath: prdPath, CreatedAt: now, UpdatedAt: now}
	if err := atomicio.WriteJSON(s.PlanPath(), plan); err != nil {
		return nil, fmt.Errorf("write plan: %w", err)
	}
	s.log.WithField("prd", prdPath).Info("plan created")
	return plan, nil
}

// SavePlan rewrites the plan, bumping its updated timestamp.
func (s *Store) SavePlan(plan *Plan) error {
	plan.UpdatedAt = time.Now()
	return atomicio.WriteJSON(s.PlanPath(), plan)
}

// DeletePlan removes the plan entry. Used to roll back a plan created earlier
// in a failed plan action.
func (s *Store) DeletePlan() error {
	for _, p := range []string{s.PlanPath(), s.PlanSpecPath()} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// taskPath returns tasks/<id>.json.
func (s *Store) taskPath(id string) string {
	return filepath.Join(s.TasksDir(), id+".json")
}

// taskSpecPath returns tasks/<id>.md.
func (s *Store) taskSpecPath(id string) string {
	return filepath.Join(s.TasksDir(), id+".md")
}

// LoadTask returns one task by id.
func (s *Store) LoadTask(id string) (*Task, error) {
	var task Task
	if err := atomicio.ReadJSON(s.taskPath(id), &task); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.TaskNotFound(id)
		}
		return nil, err
	}
	return &task, nil
}

// SaveTask rewrites a task, bumping its updated timestamp and keeping the
// spec file's frontmatter in step.
func (s *Store) SaveTask(task *Task) error {
	task.UpdatedAt = time.Now()
	if err := atomicio.WriteJSON(s.taskPath(task.ID), task); err != nil {
		return fmt.Errorf("write task %s: %w", task.ID, err)
	}
	s.syncSpecFrontmatter(task)
	return nil
}

// LoadTaskSpec returns the markdown spec body for a task (without
// frontmatter).
func (s *Store) LoadTaskSpec(id string) (string, error) {
	data, err := os.ReadFile(s.taskSpecPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return stripFrontmatter(string(data)), nil
}

// WriteTaskSpec writes the markdown spec for a task with frontmatter.
func (s *Store) WriteTaskSpec(task *Task, body string) error {
	content := frontmatter.Render(frontmatter.DocMetadata{
		ID:     task.ID,
		Title:  task.Title,
		Status: string(task.Status),
	}, body)
	return atomicio.WriteFile(s.taskSpecPath(task.ID), []byte(content), 0644)
}

// AppendTaskSpec appends a section to a task's spec file; existing content is
// never replaced.
func (s *Store) AppendTaskSpec(id, section string) error {
	path := s.taskSpecPath(id)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	_, werr := file.WriteString("\n" + section + "\n")
	cerr := file.Close()
	if werr != nil {
		return werr
	}
	return cerr
}

// syncSpecFrontmatter rewrites the spec file's frontmatter to match the task
// record, preserving the body.
func (s *Store) syncSpecFrontmatter(task *Task) {
	data, err := os.ReadFile(s.taskSpecPath(task.ID))
	if err != nil {
		return
	}
	body := stripFrontmatter(string(data))
	if err := s.WriteTaskSpec(task, body); err != nil {
		s.log.WithError(err).Warnf("could not sync spec frontmatter for %s", task.ID)
	}
}

// stripFrontmatter removes a leading frontmatter block from markdown.
func stripFrontmatter(content string) string {
	if len(content) < 4 || content[:4] != "---\n" {
		return content
	}
	rest := content[4:]
	idx := indexOfClose(rest)
	if idx < 0 {
		return content
	}
	body := rest[idx:]
	for len(body) > 0 && body[0] == '\n' {
		body = body[1:]
	}
	return body
}

func indexOfClose(rest string) int {
	for i := 0; i+4 <= len(rest); i++ {
		if (i == 0 || rest[i-1] == '\n') && rest[i:i+4] == "---\n" {
			return i + 4
		}
	}
	return -1
}

// ListTasks returns all tasks ordered by numeric id.
func (s *Store) ListTasks() ([]*Task, error) {
	entries, err := os.ReadDir(s.TasksDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	type numbered struct {
		n    int
		task *Task
	}
	var tasks []numbered
	for _, entry := range entries {
		match := taskFilePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		n, _ := strconv.Atoi(match[1])
		var task Task
		if err := atomicio.ReadJSON(filepath.Join(s.TasksDir(), entry.Name()), &task); err != nil {
			// Malformed task files are skipped without being reported.
			continue
		}
		tasks = append(tasks, numbered{n: n, task: &task})
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].n < tasks[j].n })
	result := make([]*Task, len(tasks))
	for i, t := range tasks {
		result[i] = t.task
	}
	return result, nil
}

// nextTaskID allocates the next integer-sequential id by scanning existing
// files and taking max + 1.
func (s *Store) nextTaskID() (string, error) {
	entries, err := os.ReadDir(s.TasksDir())
	if err != nil && !os.IsNotExist(err) {
		return "", err
	}

	max := 0
	for _, entry := range entries {
		match := taskFilePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		if n, err := strconv.Atoi(match[1]); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("task-%d", max+1), nil
}

// CreateTask allocates an id and persists a new todo task with its spec body.
// Dependencies must reference existing task ids.
func (s *Store) CreateTask(title, spec string, dependsOn []string) (*Task, error) {
	for _, dep := range dependsOn {
		if _, err := s.LoadTask(dep); err != nil {
			return nil, errors.New(errors.ErrCodeDependencyNotFound,
				fmt.Sprintf("dependency '%s' does not exist", dep)).WithDetail("dependency", dep)
		}
	}

	id, err := s.nextTaskID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	task := &Task{
		ID:        id,
		Title:     title,
		Status:    StatusTodo,
		DependsOn: dependsOn,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := atomicio.WriteJSON(s.taskPath(id), task); err != nil {
		return nil, fmt.Errorf("write task %s: %w", id, err)
	}
	if err := s.WriteTaskSpec(task, spec); err != nil {
		return nil, fmt.Errorf("write task spec %s: %w", id, err)
	}

	if plan, err := s.LoadPlan(); err == nil {
		plan.TaskCount++
		if err := s.SavePlan(plan); err != nil {
			s.log.WithError(err).Warn("could not bump plan task count")
		}
	}

	s.log.WithFields(logrus.Fields{"task": id, "title": title}).Info("task created")
	return task, nil
}
