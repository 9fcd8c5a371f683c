// Package frontmatter provides lightweight YAML frontmatter parsing for the
// markdown files the crew store writes (plan.md, task-N.md). This avoids
// coupling readers of those files to the store package.
package frontmatter

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// DocMetadata represents the fields the crew store records in frontmatter.
type DocMetadata struct {
	ID     string `yaml:"id"`
	Title  string `yaml:"title"`
	Status string `yaml:"status"`
}

// Parse extracts metadata from YAML frontmatter in a markdown reader.
// It stops reading after the closing '---' separator.
func Parse(r io.Reader) (DocMetadata, error) {
	scanner := bufio.NewScanner(r)
	var meta DocMetadata

	inFrontmatter := false
	lineCount := 0

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if trimmed == "---" {
			if !inFrontmatter {
				inFrontmatter = true
				continue
			}
			break // End of frontmatter
		}

		if !inFrontmatter {
			// Stop if we haven't found frontmatter in the first few lines
			lineCount++
			if lineCount > 5 {
				break
			}
			continue
		}

		parts := strings.SplitN(trimmed, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		switch key {
		case "id":
			meta.ID = value
		case "title":
			meta.Title = value
		case "status":
			meta.Status = value
		}
	}

	return meta, scanner.Err()
}

// ParseString extracts metadata from a string containing markdown with frontmatter.
func ParseString(content string) (DocMetadata, error) {
	return Parse(strings.NewReader(content))
}

// Render produces a frontmatter block followed by the body.
func Render(meta DocMetadata, body string) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "id: %s\n", meta.ID)
	fmt.Fprintf(&b, "title: %q\n", meta.Title)
	fmt.Fprintf(&b, "status: %s\n", meta.Status)
	b.WriteString("---\n\n")
	b.WriteString(body)
	return b.String()
}
