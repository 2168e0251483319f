// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package version reports the release of the chain utilities along with the
// revision they were built from.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// AppName is the name reported by the utilities along with their version.
const AppName = "btcchain"

// Release numbers of the utilities.
const (
	Major uint = 0
	Minor uint = 1
	Patch uint = 0
)

var (
	// PreRelease and BuildMetadata may be overridden at link time, for
	// example with
	// -ldflags "-X github.com/btcsuite/btcchain/internal/version.PreRelease=rc1".
	// Characters outside the semantic versioning alphabets are dropped.
	PreRelease    = "pre"
	BuildMetadata = ""
)

// isAlnumHyphen reports whether r may appear in a pre-release identifier.
func isAlnumHyphen(r rune) bool {
	return r == '-' || ('0' <= r && r <= '9') || ('a' <= r && r <= 'z') ||
		('A' <= r && r <= 'Z')
}

// NormalizePreRelString strips str down to the characters allowed in a
// pre-release identifier.
func NormalizePreRelString(str string) string {
	return strings.Map(func(r rune) rune {
		if isAlnumHyphen(r) {
			return r
		}
		return -1
	}, str)
}

// NormalizeBuildString strips str down to the characters allowed in build
// metadata, which also permits dots.
func NormalizeBuildString(str string) string {
	return strings.Map(func(r rune) rune {
		if r == '.' || isAlnumHyphen(r) {
			return r
		}
		return -1
	}, str)
}

// vcsRevision returns the abbreviated commit the binary was built from, with
// a dirty marker for modified trees, or an empty string when the toolchain did
// not record one.
func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var revision string
	var modified bool
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	if revision != "" && modified {
		revision += ".dirty"
	}
	return revision
}

// buildString returns the build metadata to report.  An explicit
// BuildMetadata wins over the recorded revision.
func buildString() string {
	if build := NormalizeBuildString(BuildMetadata); build != "" {
		return build
	}
	return NormalizeBuildString(vcsRevision())
}

// String returns the semantic version of the utilities, such as
// 0.1.0-pre+1a2b3c4d5e6f.
func String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d.%d.%d", Major, Minor, Patch)
	if preRelease := NormalizePreRelString(PreRelease); preRelease != "" {
		sb.WriteString("-" + preRelease)
	}
	if build := buildString(); build != "" {
		sb.WriteString("+" + build)
	}
	return sb.String()
}

// Full returns the application name followed by its version.
func Full() string {
	return fmt.Sprintf("%s version %s", AppName, String())
}
