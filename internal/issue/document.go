package issue

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const timeLayout = time.RFC3339

var (
	// ErrMissingFrontMatter indicates the document did not start with a YAML fence.
	ErrMissingFrontMatter = errors.New("issue: missing frontmatter")
	// ErrMalformedFrontMatter indicates the YAML block could not be parsed.
	ErrMalformedFrontMatter = errors.New("issue: malformed frontmatter")
)

// frontMatter is the YAML header of an issue.md document.
type frontMatter struct {
	ID        string   `yaml:"id,omitempty"`
	Title     string   `yaml:"title"`
	Status    string   `yaml:"status"`
	DependsOn []string `yaml:"depends_on,omitempty"`
	Blocks    []string `yaml:"blocks,omitempty"`
	CreatedAt string   `yaml:"created_at,omitempty"`
	UpdatedAt string   `yaml:"updated_at,omitempty"`
}

// decodeDocument parses an issue.md payload for the issue identified by id.
func decodeDocument(id string, content []byte) (Issue, error) {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return Issue{}, ErrMissingFrontMatter
	}
	rest := normalized[4:]
	var header, body []byte
	if bytes.HasPrefix(rest, []byte("---\n")) {
		body = rest[4:]
	} else {
		parts := bytes.SplitN(rest, []byte("\n---\n"), 2)
		if len(parts) < 2 {
			if !bytes.HasSuffix(rest, []byte("\n---")) {
				return Issue{}, ErrMalformedFrontMatter
			}
			parts = [][]byte{bytes.TrimSuffix(rest, []byte("\n---")), nil}
		}
		header, body = parts[0], parts[1]
	}

	var fm frontMatter
	if err := yaml.Unmarshal(header, &fm); err != nil {
		return Issue{}, fmt.Errorf("%w: %v", ErrMalformedFrontMatter, err)
	}
	if fm.ID != "" && fm.ID != id {
		return Issue{}, fmt.Errorf("frontmatter id %q does not match directory id %q", fm.ID, id)
	}
	status, err := ParseStatus(fm.Status)
	if err != nil {
		return Issue{}, err
	}
	created, err := parseTimestamp(fm.CreatedAt)
	if err != nil {
		return Issue{}, fmt.Errorf("parse created_at: %w", err)
	}
	updated, err := parseTimestamp(fm.UpdatedAt)
	if err != nil {
		return Issue{}, fmt.Errorf("parse updated_at: %w", err)
	}
	for _, dep := range fm.DependsOn {
		if _, _, err := ParseID(dep); err != nil {
			return Issue{}, fmt.Errorf("depends_on: %w", err)
		}
	}

	return Issue{
		ID:        id,
		Title:     strings.TrimSpace(fm.Title),
		Status:    status,
		DependsOn: fm.DependsOn,
		Blocks:    fm.Blocks,
		CreatedAt: created,
		UpdatedAt: updated,
		Body:      strings.TrimLeft(string(body), "\n"),
	}, nil
}

// encodeDocument renders the issue as frontmatter plus body.
func encodeDocument(iss Issue) ([]byte, error) {
	fm := frontMatter{
		Title:     iss.Title,
		Status:    string(iss.Status),
		DependsOn: iss.DependsOn,
		Blocks:    iss.Blocks,
		CreatedAt: formatTimestamp(iss.CreatedAt),
		UpdatedAt: formatTimestamp(iss.UpdatedAt),
	}
	data, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(bytes.TrimRight(data, "\n"))
	buf.WriteString("\n---\n")
	if iss.Body != "" {
		buf.WriteString("\n")
		buf.WriteString(iss.Body)
		if !strings.HasSuffix(iss.Body, "\n") {
			buf.WriteString("\n")
		}
	}
	return buf.Bytes(), nil
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
