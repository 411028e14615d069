package network

import (
	"strconv"
	"strings"
)

// version is a parsed semver, compared by (major, minor, patch) first;
// the pre-release tag is kept only for compareVersions' tie-breaking
// rule (a pre-release is always older than its corresponding release,
// and two pre-release tags are compared as plain strings), and build
// metadata is discarded, which is all the indexer-agent-version gate
// (spec §4.5) needs.
type version struct {
	major, minor, patch int
	preRelease          string
}

func parseVersion(s string) version {
	s = strings.TrimPrefix(s, "v")

	core := s
	var preRelease string
	if idx := strings.IndexAny(s, "-+"); idx >= 0 {
		core = s[:idx]
		if s[idx] == '-' {
			rest := s[idx+1:]
			if plus := strings.IndexByte(rest, '+'); plus >= 0 {
				rest = rest[:plus]
			}
			preRelease = rest
		}
	}

	parts := strings.SplitN(core, ".", 3)
	v := version{}
	if len(parts) > 0 {
		v.major, _ = strconv.Atoi(parts[0])
	}
	if len(parts) > 1 {
		v.minor, _ = strconv.Atoi(parts[1])
	}
	if len(parts) > 2 {
		v.patch, _ = strconv.Atoi(parts[2])
	}
	v.preRelease = preRelease
	return v
}

// compareVersions returns -1, 0 or 1 as a compares to b, following
// semver precedence for the release triple and treating any pre-release
// as strictly older than the same release without one.
func compareVersions(aStr, bStr string) int {
	a, b := parseVersion(aStr), parseVersion(bStr)

	if a.major != b.major {
		return cmpInt(a.major, b.major)
	}
	if a.minor != b.minor {
		return cmpInt(a.minor, b.minor)
	}
	if a.patch != b.patch {
		return cmpInt(a.patch, b.patch)
	}

	switch {
	case a.preRelease == b.preRelease:
		return 0
	case a.preRelease == "":
		return 1
	case b.preRelease == "":
		return -1
	default:
		return strings.Compare(a.preRelease, b.preRelease)
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// supportsScalarTap reports whether the given indexer-agent version
// meets the minimum required to support Scalar TAP receipt handling.
func supportsScalarTap(indexerAgentVersion string) bool {
	return compareVersions(indexerAgentVersion, minScalarTapSupportVersion) >= 0
}
