// Package version provides build-time version information.
// These variables are set via ldflags at build time.
package version

// Name is the client name sent to ESI.
const Name = "esigate"

var (
	// Version is the semantic version (e.g., "1.0.0")
	Version = "dev"

	// Commit is the git commit SHA
	Commit = "none"

	// Date is the build date in RFC3339 format
	Date = "unknown"
)

// IsDev reports whether this is an unreleased build.
func IsDev() bool {
	return Version == "dev"
}

// Full returns the full version string for display.
func Full() string {
	if IsDev() {
		return Name + " version dev (built from source)"
	}
	return Name + " version " + Version
}

// UserAgent returns the identifying client header for ESI requests.
// ESI asks clients to identify themselves as "<package>;<version>".
func UserAgent() string {
	return Name + ";" + Version
}
