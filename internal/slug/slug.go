// Package slug derives directory-safe issue names from titles.
package slug

import "strings"

// MaxLength bounds generated names so issue directories and branch names
// stay readable.
const MaxLength = 48

// Slugify converts the provided text to a lowercase ASCII slug with hyphens,
// cut at a hyphen boundary when it exceeds MaxLength.
func Slugify(text string) string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return ""
	}

	var builder strings.Builder
	builder.Grow(len(clean))
	prevHyphen := false
	for _, r := range strings.ToLower(clean) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			builder.WriteRune(r)
			prevHyphen = false
		default:
			if !prevHyphen {
				builder.WriteRune('-')
				prevHyphen = true
			}
		}
	}

	return shorten(strings.Trim(builder.String(), "-"), MaxLength)
}

func shorten(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	if i := strings.LastIndexByte(cut, '-'); i > 0 {
		cut = cut[:i]
	}
	return strings.Trim(cut, "-")
}
