package issue

import (
	"strings"

	"golang.org/x/mod/semver"
)

// CompareVersions orders semver-like versions by precedence and everything
// else lexically. Semver versions sort before non-semver ones.
func CompareVersions(a, b string) int {
	sa, sb := canonicalSemver(a), canonicalSemver(b)
	switch {
	case sa != "" && sb != "":
		if c := semver.Compare(sa, sb); c != 0 {
			return c
		}
	case sa != "":
		return -1
	case sb != "":
		return 1
	}
	return strings.Compare(a, b)
}

func canonicalSemver(v string) string {
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return v
}
