// Package registry manages the per-agent registration files that define mesh
// membership. A registration is owned by the process whose PID it records;
// peers treat dead-PID entries as garbage and remove them on sight.
package registry

import (
	"fmt"
	"os"
	"time"

	"github.com/grovetools/mesh/errors"
	"github.com/grovetools/mesh/logging"
	"github.com/grovetools/mesh/pkg/atomicio"
	"github.com/grovetools/mesh/pkg/paths"
	"github.com/grovetools/mesh/pkg/process"
	"github.com/sirupsen/logrus"
)

// Registry reads and writes registration files and caches the hot listing
// path. One Registry instance belongs to one process.
type Registry struct {
	log *logrus.Entry

	cache cache
}

// New creates a Registry.
func New() *Registry {
	return &Registry{log: logging.NewLogger("registry")}
}

// Load reads a registration by name. Returns os.ErrNotExist when absent and
// INVALID_REGISTRATION when the file is unparsable.
func (r *Registry) Load(name string) (*Registration, error) {
	var reg Registration
	err := atomicio.ReadJSON(paths.RegistrationPath(name), &reg)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrCodeInvalidRegistration,
			fmt.Sprintf("registration for '%s' is unreadable", name))
	}
	return &reg, nil
}

// IsTaken reports whether name is held by a live process. A dead holder's
// registration is deleted on the way through. The second return is the live
// holder's PID.
func (r *Registry) IsTaken(name string) (bool, int) {
	reg, err := r.Load(name)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0
		}
		// Unparsable files are not ownership; leave them for the scanner.
		return false, 0
	}
	if process.IsAlive(reg.PID) {
		return true, reg.PID
	}
	r.log.WithFields(logrus.Fields{"name": name, "pid": reg.PID}).Debug("removing dead registration")
	_ = os.Remove(paths.RegistrationPath(name))
	r.Invalidate()
	return false, 0
}

// Register writes the registration atomically, then reads it back and
// verifies our own PID to detect a lost race. A file showing a foreign PID is
// left untouched.
func (r *Registry) Register(reg *Registration) error {
	if taken, pid := r.IsTaken(reg.Name); taken {
		return errors.NameTaken(reg.Name, pid)
	}

	if err := atomicio.WriteJSON(paths.RegistrationPath(reg.Name), reg); err != nil {
		return errors.Wrap(err, errors.ErrCodeRegistrationFailed,
			fmt.Sprintf("could not write registration for '%s'", reg.Name))
	}

	check, err := r.Load(reg.Name)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeRegistrationFailed,
			fmt.Sprintf("could not read back registration for '%s'", reg.Name))
	}
	if check.PID != reg.PID {
		return errors.RaceLost(reg.Name, check.PID)
	}

	r.Invalidate()
	r.log.WithFields(logrus.Fields{"name": reg.Name, "session": reg.SessionID}).Info("registered")
	return nil
}

// Save rewrites the caller's own registration. Only the owning process may
// call this.
func (r *Registry) Save(reg *Registration) error {
	if err := atomicio.WriteJSON(paths.RegistrationPath(reg.Name), reg); err != nil {
		return fmt.Errorf("update registration for '%s': %w", reg.Name, err)
	}
	r.Invalidate()
	return nil
}

// Deregister removes the caller's registration and inbox directory on clean
// shutdown.
func (r *Registry) Deregister(reg *Registration) error {
	if err := os.Remove(paths.RegistrationPath(reg.Name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove registration: %w", err)
	}
	if err := os.RemoveAll(paths.InboxDir(reg.SessionID)); err != nil {
		return fmt.Errorf("remove inbox: %w", err)
	}
	r.Invalidate()
	r.log.WithField("name", reg.Name).Info("deregistered")
	return nil
}

// Rename moves the caller's registration to a new name. The inbox is keyed by
// session id, never by name, so pending messages stay where they are.
func (r *Registry) Rename(reg *Registration, newName string) (*Registration, error) {
	if taken, pid := r.IsTaken(newName); taken {
		return nil, errors.NameTaken(newName, pid)
	}

	renamed := *reg
	renamed.Name = newName
	if err := atomicio.WriteJSON(paths.RegistrationPath(newName), &renamed); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRegistrationFailed,
			fmt.Sprintf("could not write registration for '%s'", newName))
	}

	check, err := r.Load(newName)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRegistrationFailed,
			fmt.Sprintf("could not read back registration for '%s'", newName))
	}
	if check.PID != reg.PID {
		return nil, errors.RaceLost(newName, check.PID)
	}

	if err := os.Remove(paths.RegistrationPath(reg.Name)); err != nil && !os.IsNotExist(err) {
		r.log.WithError(err).Warnf("could not remove old registration '%s'", reg.Name)
	}

	r.Invalidate()
	r.log.WithFields(logrus.Fields{"from": reg.Name, "to": newName}).Info("renamed")
	return &renamed, nil
}

// Touch records local activity on the caller's registration.
func (r *Registry) Touch(reg *Registration, activity, tool string) error {
	reg.Activity.LastActivityAt = time.Now()
	if activity != "" {
		reg.Activity.CurrentActivity = activity
	}
	if tool != "" {
		reg.Activity.LastTool = tool
	}
	return r.Save(reg)
}
