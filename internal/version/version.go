// Package version holds the build metadata of jitgen. The variables are
// set at build time with -ldflags "-X jitkit/internal/version.Version=...".
package version

import (
	"strings"

	"github.com/fatih/color"
)

var (
	// Version is the semantic version of jitkit.
	Version = "0.1.0-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// GitMessage is an optional git commit message.
	GitMessage = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

var (
	majorColor = color.New(color.FgYellow, color.Bold)
	minorColor = color.New(color.FgGreen, color.Bold)
	patchColor = color.New(color.FgBlue, color.Bold)
)

// Info is a snapshot of the build metadata with blanks trimmed.
type Info struct {
	Version    string `json:"version"`
	GitCommit  string `json:"git_commit,omitempty"`
	GitMessage string `json:"git_message,omitempty"`
	BuildDate  string `json:"build_date,omitempty"`
}

// Current returns the metadata recorded in the binary. An empty Version
// reads as "dev".
func Current() Info {
	v := strings.TrimSpace(Version)
	if v == "" {
		v = "dev"
	}
	return Info{
		Version:    v,
		GitCommit:  strings.TrimSpace(GitCommit),
		GitMessage: strings.TrimSpace(GitMessage),
		BuildDate:  strings.TrimSpace(BuildDate),
	}
}

// Colored renders v with its major, minor and patch numbers in distinct
// colors. Anything that is not "X.Y.Z[suffix]" is returned unchanged.
func Colored(v string) string {
	core, suffix := v, ""
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		core, suffix = v[:i], v[i:]
	}
	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		return v
	}
	return majorColor.Sprint(parts[0]) + "." + minorColor.Sprint(parts[1]) + "." + patchColor.Sprint(parts[2]) + suffix
}
