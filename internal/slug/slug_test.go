package slug

import (
	"strings"
	"testing"
)

func TestSlugify(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "whitespace only", in: "   ", want: ""},
		{name: "letters only", in: "Login", want: "login"},
		{name: "mixed case and digits", in: "Issue 42", want: "issue-42"},
		{name: "punctuation collapse", in: "Fix!!! Auth", want: "fix-auth"},
		{name: "trim hyphen", in: "--slug--", want: "slug"},
		{name: "multiple separators", in: "A/B\\C", want: "a-b-c"},
		{name: "non ascii dropped", in: "Café menu", want: "caf-menu"},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slugify(tt.in); got != tt.want {
				t.Fatalf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSlugifyShortensAtWordBoundary(t *testing.T) {
	t.Parallel()
	title := strings.Repeat("word ", 20)
	got := Slugify(title)
	if len(got) > MaxLength {
		t.Fatalf("len(%q) = %d, want <= %d", got, len(got), MaxLength)
	}
	if strings.HasSuffix(got, "-") || strings.HasSuffix(got, "wor") {
		t.Fatalf("Slugify cut mid-word: %q", got)
	}
}
