package conventional

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		wantType string
		scope    string
		breaking bool
		wantErr  bool
	}{
		{"plain feat", "feat: add login", "feat", "", false, false},
		{"scoped fix", "fix(auth): handle expiry", "fix", "auth", false, false},
		{"breaking", "refactor(core)!: drop v1 API", "refactor", "core", true, false},
		{"uppercase type normalized", "Feat: shout", "feat", "", false, false},
		{"not conventional", "updated some stuff", "", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			commit, err := Parse(tt.message)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.message)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.message, err)
			}
			if commit.Type != tt.wantType || commit.Scope != tt.scope || commit.IsBreaking != tt.breaking {
				t.Errorf("Parse(%q) = %+v", tt.message, commit)
			}
		})
	}
}

func TestLabel(t *testing.T) {
	if got := Label("fix(auth): handle expiry"); got != "fix(auth): handle expiry" {
		t.Errorf("Label = %q", got)
	}
	if got := Label("random subject line\nwith body"); got != "random subject line" {
		t.Errorf("Label passthrough = %q", got)
	}
}
