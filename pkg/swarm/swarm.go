// Package swarm implements the claim/complete protocol over shared specs.
// Claims and completions are JSON maps keyed by absolute spec path, mutated
// only under the swarm lock; stale claims are collected lazily on every entry
// to the critical section, including read paths.
package swarm

import (
	"fmt"
	"os"
	"time"

	"github.com/grovetools/mesh/errors"
	"github.com/grovetools/mesh/logging"
	"github.com/grovetools/mesh/pkg/atomicio"
	"github.com/grovetools/mesh/pkg/lockfile"
	"github.com/grovetools/mesh/pkg/paths"
	"github.com/grovetools/mesh/pkg/process"
	"github.com/grovetools/mesh/pkg/registry"
	"github.com/sirupsen/logrus"
)

// Claim marks a task as owned by one agent.
type Claim struct {
	Agent     string    `json:"agent"`
	SessionID string    `json:"session_id"`
	PID       int       `json:"pid"`
	At        time.Time `json:"at"`
	Reason    string    `json:"reason,omitempty"`
}

// Completion is the terminal record for a task. Completions survive agent
// death.
type Completion struct {
	By    string    `json:"by"`
	At    time.Time `json:"at"`
	Notes string    `json:"notes,omitempty"`
}

// Claims maps absolute spec path -> task id -> claim.
type Claims map[string]map[string]Claim

// Completions maps absolute spec path -> task id -> completion.
type Completions map[string]map[string]Completion

// Swarm coordinates claims across processes.
type Swarm struct {
	reg *registry.Registry
	log *logrus.Entry
}

// New creates a Swarm backed by the given registry (used for staleness
// checks).
func New(reg *registry.Registry) *Swarm {
	return &Swarm{reg: reg, log: logging.NewLogger("swarm")}
}

// State is a consistent snapshot for one spec after garbage collection.
type State struct {
	Claims      map[string]Claim
	Completions map[string]Completion
}

// withLock runs fn inside the swarm critical section. The section must stay
// short and pure-filesystem.
func (s *Swarm) withLock(fn func(claims Claims, completions Completions) error) error {
	lock, err := lockfile.Acquire(paths.SwarmLockPath(), lockfile.SwarmOptions())
	if err != nil {
		return err
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil {
			s.log.WithError(rerr).Warn("could not release swarm lock")
		}
	}()

	claims := Claims{}
	if err := atomicio.ReadJSON(paths.ClaimsPath(), &claims); err != nil && !os.IsNotExist(err) {
		// A malformed claims file is treated as empty; the next write
		// replaces it wholesale.
		s.log.WithError(err).Warn("claims file unreadable; starting empty")
		claims = Claims{}
	}
	completions := Completions{}
	if err := atomicio.ReadJSON(paths.CompletionsPath(), &completions); err != nil && !os.IsNotExist(err) {
		s.log.WithError(err).Warn("completions file unreadable; starting empty")
		completions = Completions{}
	}

	s.collect(claims)

	return fn(claims, completions)
}

// collect removes stale claims in place. A claim is stale if its PID is dead,
// the owning registration is missing, or the registration's session id no
// longer matches.
func (s *Swarm) collect(claims Claims) {
	for spec, tasks := range claims {
		for taskID, claim := range tasks {
			if s.isStale(claim) {
				s.log.WithFields(logrus.Fields{"spec": spec, "task": taskID, "agent": claim.Agent}).
					Debug("collecting stale claim")
				delete(tasks, taskID)
			}
		}
		if len(tasks) == 0 {
			delete(claims, spec)
		}
	}
}

func (s *Swarm) isStale(claim Claim) bool {
	if !process.IsAlive(claim.PID) {
		return true
	}
	reg, err := s.reg.Load(claim.Agent)
	if err != nil {
		return true
	}
	return reg.SessionID != claim.SessionID
}

func (s *Swarm) writeClaims(claims Claims) error {
	if err := atomicio.WriteJSON(paths.ClaimsPath(), claims); err != nil {
		return fmt.Errorf("write claims: %w", err)
	}
	return nil
}

// Claim takes (spec, taskID) for the calling agent. It enforces the two swarm
// invariants: one claim per agent anywhere, one claim per slot.
func (s *Swarm) Claim(agent *registry.Registration, spec, taskID, reason string) error {
	if spec == "" {
		return errors.New(errors.ErrCodeNoSpec, "claim requires a spec path")
	}

	return s.withLock(func(claims Claims, completions Completions) error {
		if done, ok := completions[spec][taskID]; ok {
			return errors.AlreadyCompleted(spec, taskID, done.By)
		}

		// Invariant 1: at most one claim total per agent across all specs.
		for otherSpec, tasks := range claims {
			for otherTask, claim := range tasks {
				if claim.Agent == agent.Name && claim.SessionID == agent.SessionID {
					return errors.AlreadyHaveClaim(otherSpec, otherTask)
				}
			}
		}

		// Invariant 2: at most one non-stale claim per (spec, task id).
		if existing, ok := claims[spec][taskID]; ok {
			return errors.AlreadyClaimed(spec, taskID, existing.Agent)
		}

		if claims[spec] == nil {
			claims[spec] = make(map[string]Claim)
		}
		claims[spec][taskID] = Claim{
			Agent:     agent.Name,
			SessionID: agent.SessionID,
			PID:       agent.PID,
			At:        time.Now(),
			Reason:    reason,
		}
		return s.writeClaims(claims)
	})
}

// Unclaim releases the caller's claim on (spec, taskID).
func (s *Swarm) Unclaim(agent *registry.Registration, spec, taskID string) error {
	return s.withLock(func(claims Claims, completions Completions) error {
		existing, ok := claims[spec][taskID]
		if !ok {
			return errors.New(errors.ErrCodeNotClaimed,
				fmt.Sprintf("%s in %s is not claimed", taskID, spec))
		}
		if existing.Agent != agent.Name || existing.SessionID != agent.SessionID {
			return errors.New(errors.ErrCodeNotYourClaim,
				fmt.Sprintf("%s in %s is claimed by %s", taskID, spec, existing.Agent))
		}

		delete(claims[spec], taskID)
		if len(claims[spec]) == 0 {
			delete(claims, spec)
		}
		return s.writeClaims(claims)
	})
}

// Complete moves (spec, taskID) from claims to completions. Completions are
// written first: a crash between the two writes leaves the durable outcome
// recorded and a dangling claim that the next access collects.
func (s *Swarm) Complete(agent *registry.Registration, spec, taskID, notes string) error {
	return s.withLock(func(claims Claims, completions Completions) error {
		if done, ok := completions[spec][taskID]; ok {
			return errors.AlreadyCompleted(spec, taskID, done.By)
		}

		existing, ok := claims[spec][taskID]
		if !ok {
			return errors.New(errors.ErrCodeNotClaimed,
				fmt.Sprintf("%s in %s is not claimed", taskID, spec))
		}
		if existing.Agent != agent.Name || existing.SessionID != agent.SessionID {
			return errors.New(errors.ErrCodeNotYourClaim,
				fmt.Sprintf("%s in %s is claimed by %s", taskID, spec, existing.Agent))
		}

		if completions[spec] == nil {
			completions[spec] = make(map[string]Completion)
		}
		completions[spec][taskID] = Completion{By: agent.Name, At: time.Now(), Notes: notes}
		if err := atomicio.WriteJSON(paths.CompletionsPath(), completions); err != nil {
			return fmt.Errorf("write completions: %w", err)
		}

		delete(claims[spec], taskID)
		if len(claims[spec]) == 0 {
			delete(claims, spec)
		}
		return s.writeClaims(claims)
	})
}

// List returns the post-GC state for one spec.
func (s *Swarm) List(spec string) (*State, error) {
	state := &State{
		Claims:      map[string]Claim{},
		Completions: map[string]Completion{},
	}
	err := s.withLock(func(claims Claims, completions Completions) error {
		for taskID, claim := range claims[spec] {
			state.Claims[taskID] = claim
		}
		for taskID, done := range completions[spec] {
			state.Completions[taskID] = done
		}
		// Persist the GC performed on entry so dead claims don't linger.
		return s.writeClaims(claims)
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// ClaimOf returns the caller's active claim, if any, across all specs.
func (s *Swarm) ClaimOf(agent *registry.Registration) (spec, taskID string, found bool, err error) {
	err = s.withLock(func(claims Claims, completions Completions) error {
		for sp, tasks := range claims {
			for id, claim := range tasks {
				if claim.Agent == agent.Name && claim.SessionID == agent.SessionID {
					spec, taskID, found = sp, id, true
					return nil
				}
			}
		}
		return nil
	})
	return
}
