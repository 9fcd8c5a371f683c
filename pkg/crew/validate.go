package crew

import (
	"fmt"
)

// ValidationReport summarizes store consistency checks and any repairs.
type ValidationReport struct {
	TaskCount       int      `json:"task_count"`
	CompletedCount  int      `json:"completed_count"`
	CountersFixed   bool     `json:"counters_fixed"`
	MissingDeps     []string `json:"missing_deps,omitempty"`
	Cycle           []string `json:"cycle,omitempty"`
	InvalidStatuses []string `json:"invalid_statuses,omitempty"`
}

// Validate checks dependency existence, graph acyclicity, and status values,
// and resyncs the plan counters. Plan counters are eventually-consistent
// maintenance fields; this is their source of truth.
func (s *Store) Validate() (*ValidationReport, error) {
	tasks, err := s.ListTasks()
	if err != nil {
		return nil, err
	}

	report := &ValidationReport{}
	byID := make(map[string]*Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	for _, t := range tasks {
		if !ValidStatus(t.Status) {
			report.InvalidStatuses = append(report.InvalidStatuses,
				fmt.Sprintf("%s: %s", t.ID, t.Status))
		}
		for _, dep := range t.DependsOn {
			if _, ok := byID[dep]; !ok {
				report.MissingDeps = append(report.MissingDeps,
					fmt.Sprintf("%s -> %s", t.ID, dep))
			}
		}
	}

	report.Cycle = findCycle(tasks)

	fixed, err := s.Resync()
	if err != nil {
		return nil, err
	}
	report.CountersFixed = fixed

	if plan, err := s.LoadPlan(); err == nil {
		report.TaskCount = plan.TaskCount
		report.CompletedCount = plan.CompletedCount
	}
	return report, nil
}

// Resync rewrites the plan counters from the actual task set. Returns whether
// anything changed.
func (s *Store) Resync() (bool, error) {
	plan, err := s.LoadPlan()
	if err != nil {
		return false, nil // no plan, nothing to resync
	}

	tasks, err := s.ListTasks()
	if err != nil {
		return false, err
	}

	total := len(tasks)
	completed := 0
	for _, t := range tasks {
		if t.Status == StatusDone {
			completed++
		}
	}

	if plan.TaskCount == total && plan.CompletedCount == completed {
		return false, nil
	}
	plan.TaskCount = total
	plan.CompletedCount = completed
	return true, s.SavePlan(plan)
}

// findCycle runs DFS with a recursion stack over the dependency graph and
// returns the first cycle found, or nil.
func findCycle(tasks []*Task) []string {
	deps := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		deps[t.ID] = t.DependsOn
	}

	const (
		white = 0 // unvisited
		gray  = 1 // on the recursion stack
		black = 2 // finished
	)
	color := make(map[string]int, len(tasks))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)

		for _, dep := range deps[id] {
			switch color[dep] {
			case gray:
				// Found a back edge; slice the stack from dep onwards.
				for i, n := range stack {
					if n == dep {
						cycle = append(append([]string{}, stack[i:]...), dep)
						return true
					}
				}
			case white:
				if visit(dep) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, t := range tasks {
		if color[t.ID] == white && visit(t.ID) {
			return cycle
		}
	}
	return nil
}
