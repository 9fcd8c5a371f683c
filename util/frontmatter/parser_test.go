package frontmatter

import (
	"testing"
)

func TestParseString(t *testing.T) {
	content := `---
id: task-3
title: "Wire transport"
status: in_progress
---

The body starts here.
`
	meta, err := ParseString(content)
	if err != nil {
		t.Fatalf("ParseString failed: %v", err)
	}
	if meta.ID != "task-3" {
		t.Errorf("ID = %q, want task-3", meta.ID)
	}
	if meta.Title != "Wire transport" {
		t.Errorf("Title = %q", meta.Title)
	}
	if meta.Status != "in_progress" {
		t.Errorf("Status = %q", meta.Status)
	}
}

func TestParseWithoutFrontmatter(t *testing.T) {
	meta, err := ParseString("# Just a document\n\nNo metadata.\n")
	if err != nil {
		t.Fatalf("ParseString failed: %v", err)
	}
	if meta.ID != "" || meta.Title != "" {
		t.Errorf("expected empty metadata, got %+v", meta)
	}
}

func TestRenderRoundtrip(t *testing.T) {
	rendered := Render(DocMetadata{ID: "task-1", Title: "First", Status: "todo"}, "Body text.")
	meta, err := ParseString(rendered)
	if err != nil {
		t.Fatalf("ParseString failed: %v", err)
	}
	if meta.ID != "task-1" || meta.Title != "First" || meta.Status != "todo" {
		t.Errorf("roundtrip lost fields: %+v", meta)
	}
}
