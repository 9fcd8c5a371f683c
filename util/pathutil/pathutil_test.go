package pathutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		name     string
		anchor   string
		path     string
		expected string
	}{
		{"relative joins anchor", "/work/project", "src/auth.go", "/work/project/src/auth.go"},
		{"absolute passes through", "/work/project", "/etc/hosts", "/etc/hosts"},
		{"dot segments collapse", "/work/project", "./src/../src/auth.go", "/work/project/src/auth.go"},
		{"parent escapes anchor", "/work/project", "../other/file", "/work/other/file"},
		{"trailing slash dropped", "/work/project", "src/auth/", "/work/project/src/auth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Canonical(tt.anchor, tt.path)
			if result != tt.expected {
				t.Errorf("Canonical(%q, %q) = %q, want %q", tt.anchor, tt.path, result, tt.expected)
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	expanded, err := Expand("~/some/dir")
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	expected := filepath.Join(home, "some", "dir")
	if expanded != expected {
		t.Errorf("Expand(~/some/dir) = %q, want %q", expanded, expected)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("MESH_TEST_DIR", "/tmp/mesh-test")
	expanded, err := Expand("$MESH_TEST_DIR/sub")
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if expanded != "/tmp/mesh-test/sub" {
		t.Errorf("Expand($MESH_TEST_DIR/sub) = %q", expanded)
	}
}
