package registry

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grovetools/mesh/pkg/atomicio"
	"github.com/grovetools/mesh/pkg/paths"
	"github.com/grovetools/mesh/pkg/process"
)

// cacheTTL bounds the cost of the hot listing path, which runs on every
// keystroke and write enforcement.
const cacheTTL = time.Second

// ListOptions filters the active-agent listing.
type ListOptions struct {
	// ExcludeName drops the caller's own registration.
	ExcludeName string
	// Cwd, when non-empty, restricts results to agents in that directory
	// (folder scoping).
	Cwd string
}

type cacheKey struct {
	exclude string
	cwd     string
}

type cacheEntry struct {
	agents []Registration
	at     time.Time
}

type cache struct {
	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
}

// Invalidate drops the listing cache. Called on any local registration
// mutation.
func (r *Registry) Invalidate() {
	r.cache.mu.Lock()
	defer r.cache.mu.Unlock()
	r.cache.entries = nil
}

// ActiveAgents scans the registry directory, drops (and deletes) entries
// whose PID is no longer alive, and returns the rest sorted by name. Results
// are cached for one second per (exclude, cwd) key.
func (r *Registry) ActiveAgents(opts ListOptions) ([]Registration, error) {
	key := cacheKey{exclude: opts.ExcludeName, cwd: opts.Cwd}

	r.cache.mu.Lock()
	if entry, ok := r.cache.entries[key]; ok && time.Since(entry.at) < cacheTTL {
		agents := entry.agents
		r.cache.mu.Unlock()
		return agents, nil
	}
	r.cache.mu.Unlock()

	agents, err := r.scan(opts)
	if err != nil {
		return nil, err
	}

	r.cache.mu.Lock()
	if r.cache.entries == nil {
		r.cache.entries = make(map[cacheKey]cacheEntry)
	}
	r.cache.entries[key] = cacheEntry{agents: agents, at: time.Now()}
	r.cache.mu.Unlock()

	return agents, nil
}

func (r *Registry) scan(opts ListOptions) ([]Registration, error) {
	entries, err := os.ReadDir(paths.RegistryDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var agents []Registration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(paths.RegistryDir(), entry.Name())
		var reg Registration
		if err := atomicio.ReadJSON(path, &reg); err != nil {
			// Malformed files are skipped silently; a concurrent writer may
			// be mid-rename.
			continue
		}

		if !process.IsAlive(reg.PID) {
			r.log.WithField("name", reg.Name).Debug("pruning dead registration")
			_ = os.Remove(path)
			continue
		}

		if opts.ExcludeName != "" && reg.Name == opts.ExcludeName {
			continue
		}
		if opts.Cwd != "" && reg.Cwd != opts.Cwd {
			continue
		}
		agents = append(agents, reg)
	}

	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
	return agents, nil
}
