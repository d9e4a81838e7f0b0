/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version reports the build version.
package version

import (
	"runtime/debug"
	"strings"
)

// Version is set at build time via ldflags:
//
//	-X github.com/friendsincode/fairplay/internal/version.Version=X.Y.Z
var Version = "0.4.0"

// String returns the version with the VCS revision when the binary was
// built from a checkout.
func String() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Version
	}
	var rev string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return Version
	}
	if len(rev) > 7 {
		rev = rev[:7]
	}
	var b strings.Builder
	b.WriteString(Version)
	b.WriteString("+")
	b.WriteString(rev)
	if dirty {
		b.WriteString("-dirty")
	}
	return b.String()
}
