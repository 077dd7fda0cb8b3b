// Package buildinfo provides build metadata for the worksync CLI.
package buildinfo

// Build metadata variables set via linker flags during build.
var (
	// Version is the semantic version string (e.g., "1.2.3").
	Version = "dev"
	// Commit is the git commit SHA (e.g., "8d3f2a1").
	Commit = "unknown"
	// BuiltAt is the build timestamp in RFC3339 format (e.g., "2025-02-14T09:30:00Z").
	BuiltAt = "unknown"
)

// Info is the build metadata as reported by `worksync version --json`.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	BuiltAt string `json:"built_at"`
}

// Get snapshots the current build metadata.
func Get() Info {
	return Info{Version: Version, Commit: Commit, BuiltAt: BuiltAt}
}

// String renders the metadata as "version=<semver> commit=<sha> built_at=<rfc3339>".
func (i Info) String() string {
	return "version=" + i.Version + " commit=" + i.Commit + " built_at=" + i.BuiltAt
}

// String returns the formatted current build metadata.
func String() string {
	return Get().String()
}
