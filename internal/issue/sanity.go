package issue

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/cmtonkinson/worksync/internal/graph"
)

// SanityCheck inspects a scanned issue set. Missing dependencies and stale
// blocks lists produce warnings; duplicate ids and cycles are errors.
func SanityCheck(issues []Issue, warn func(string)) error {
	counts := make(map[string]int, len(issues))
	for _, iss := range issues {
		counts[iss.ID]++
	}
	byID := ByID(issues)

	for _, iss := range issues {
		for _, dep := range iss.DependsOn {
			target, ok := byID[dep]
			if !ok {
				emitWarning(warn, fmt.Sprintf("issue sanity: %q depends on missing issue %q", iss.ID, dep))
				continue
			}
			if !slices.Contains(target.Blocks, iss.ID) {
				emitWarning(warn, fmt.Sprintf("issue sanity: %q does not list %q in blocks", dep, iss.ID))
			}
		}
		for _, blocked := range iss.Blocks {
			target, ok := byID[blocked]
			if !ok || !slices.Contains(target.DependsOn, iss.ID) {
				emitWarning(warn, fmt.Sprintf("issue sanity: %q lists %q in blocks without a matching dependency", iss.ID, blocked))
			}
		}
	}

	if dups := duplicateIDs(counts); len(dups) > 0 {
		return fmt.Errorf("duplicate issue ids: %s", strings.Join(dups, ", "))
	}
	return graph.New(DependencyMap(issues)).Validate()
}

func duplicateIDs(counts map[string]int) []string {
	var out []string
	for id, n := range counts {
		if n > 1 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func emitWarning(warn func(string), message string) {
	if warn == nil {
		return
	}
	warn(message)
}
