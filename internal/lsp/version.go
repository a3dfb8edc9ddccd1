package lsp

import "golang.org/x/mod/semver"

// rawVersion is bumped by hand at release time; serverVersion checks it
// with semver.IsValid and reports "v0.0.0" instead when it is malformed,
// so the `initialize` response never carries a bad version string.
const rawVersion = "v0.1.0"

var serverVersion = func() string {
	if !semver.IsValid(rawVersion) {
		return "v0.0.0"
	}
	return rawVersion
}()
