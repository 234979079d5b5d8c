// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import "fmt"

// Constants defining the application version.  The version follows the
// semantic versioning 2.0.0 spec (https://semver.org/).
const (
	semverMajor = 0
	semverMinor = 3
	semverPatch = 0
)

// preRelease contains the prerelease name of the application.  It is a
// variable so it can be modified at link time (e.g.
// `-ldflags "-X main.preRelease=rc1"`).  It must only contain characters from
// the semantic version alphabet.
var preRelease = "pre"

// version returns the application version as a properly formed string per the
// semantic versioning 2.0.0 spec (https://semver.org/).
func version() string {
	s := fmt.Sprintf("%d.%d.%d", semverMajor, semverMinor, semverPatch)
	if preRelease != "" {
		s += "-" + preRelease
	}
	return s
}
