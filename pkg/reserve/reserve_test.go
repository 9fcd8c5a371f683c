package reserve

import (
	"testing"

	"github.com/grovetools/mesh/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeclare(t *testing.T) {
	res := Declare("/work/project", "src/auth/", "refactoring login")
	assert.Equal(t, "/work/project/src/auth", res.Path)
	assert.True(t, res.Dir, "trailing slash marks a directory reservation")
	assert.Equal(t, "refactoring login", res.Reason)
	assert.False(t, res.Since.IsZero())

	file := Declare("/work/project", "src/auth/login.ts", "")
	assert.Equal(t, "/work/project/src/auth/login.ts", file.Path)
	assert.False(t, file.Dir)
}

// Reservation nesting: for directory D, path P is blocked iff P = D or P
// starts with D + "/".
func TestCoversNesting(t *testing.T) {
	dir := registry.Reservation{Path: "/p/src/auth", Dir: true}
	file := registry.Reservation{Path: "/p/src/auth", Dir: false}

	tests := []struct {
		name    string
		res     registry.Reservation
		target  string
		covered bool
	}{
		{"dir exact", dir, "/p/src/auth", true},
		{"dir child", dir, "/p/src/auth/login.ts", true},
		{"dir deep child", dir, "/p/src/auth/oauth/token.ts", true},
		{"dir sibling prefix", dir, "/p/src/authx", false},
		{"dir parent", dir, "/p/src", false},
		{"file exact", file, "/p/src/auth", true},
		{"file child not covered", file, "/p/src/auth/login.ts", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.covered, Covers(tt.res, tt.target))
		})
	}
}

func TestIsWriteTool(t *testing.T) {
	assert.True(t, IsWriteTool("write"))
	assert.True(t, IsWriteTool("Edit"))
	assert.False(t, IsWriteTool("read"))
	assert.False(t, IsWriteTool("bash"))
}

func TestCheckWriteFirstMatchWins(t *testing.T) {
	peers := []registry.Registration{
		{
			Name: "alpha", Cwd: "/p", Branch: "main", Model: "opus",
			Reservations: []registry.Reservation{
				{Path: "/p/src/auth", Dir: true, Reason: "login rework"},
			},
		},
		{
			Name: "beta", Cwd: "/p",
			Reservations: []registry.Reservation{
				{Path: "/p/src", Dir: true},
			},
		},
	}

	conflict := CheckWrite(peers, "/p", "src/auth/login.ts")
	require.NotNil(t, conflict)
	assert.Equal(t, "alpha", conflict.Peer.Name)
	assert.Equal(t, "main", conflict.Peer.Branch)
	assert.Equal(t, "/p/src/auth", conflict.Reservation.Path)
	assert.Equal(t, "/p/src/auth/login.ts", conflict.Target)

	assert.Nil(t, CheckWrite(peers, "/p", "../elsewhere/file.go"))
	assert.Nil(t, CheckWrite(nil, "/p", "src/auth/login.ts"))
}
