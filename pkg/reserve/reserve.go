// Package reserve implements advisory path reservations. Reservations live on
// each agent's registration; enforcement happens only on the local process's
// own write-class tool calls, by scanning every active peer's reservations.
package reserve

import (
	"strings"
	"time"

	"github.com/grovetools/mesh/pkg/registry"
	"github.com/grovetools/mesh/util/pathutil"
)

// writeTools are the tool names whose calls are checked against peer
// reservations. Reads are never blocked.
var writeTools = map[string]bool{
	"write": true,
	"edit":  true,
}

// IsWriteTool reports whether a tool call is write-class.
func IsWriteTool(tool string) bool {
	return writeTools[strings.ToLower(tool)]
}

// Declare canonicalizes a reservation request. A trailing slash at input time
// marks the reservation as a directory.
func Declare(anchor, path, reason string) registry.Reservation {
	dir := strings.HasSuffix(path, "/") || strings.HasSuffix(path, string([]rune{'\\'}))
	return registry.Reservation{
		Path:   pathutil.Canonical(anchor, path),
		Dir:    dir,
		Reason: reason,
		Since:  time.Now(),
	}
}

// Covers reports whether a reservation blocks the target path. A file
// reservation matches exactly; a directory reservation matches the path
// itself or anything under it.
func Covers(res registry.Reservation, target string) bool {
	if target == res.Path {
		return true
	}
	if res.Dir && strings.HasPrefix(target, res.Path+"/") {
		return true
	}
	return false
}

// Conflict describes a blocked write: who holds the reservation and why. It
// references a small PeerSummary resolved at conflict time rather than the
// full peer registration.
type Conflict struct {
	Peer        registry.PeerSummary `json:"peer"`
	Reservation registry.Reservation `json:"reservation"`
	Target      string               `json:"target"`
}

// CheckWrite normalizes the target path and scans active peers' reservations.
// The first match wins; there is no fairness queue. A nil return means the
// write may proceed.
func CheckWrite(peers []registry.Registration, anchor, target string) *Conflict {
	canonical := pathutil.Canonical(anchor, target)
	for i := range peers {
		peer := &peers[i]
		for _, res := range peer.Reservations {
			if Covers(res, canonical) {
				return &Conflict{
					Peer:        peer.Summary(),
					Reservation: res,
					Target:      canonical,
				}
			}
		}
	}
	return nil
}
