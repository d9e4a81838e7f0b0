/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"path/filepath"

	"github.com/samber/lo"
)

// DirStats is a read-only snapshot of one node and its descendants.
type DirStats struct {
	Name        string     `json:"name" yaml:"name"`
	Path        string     `json:"path" yaml:"path"`
	Tracks      int        `json:"tracks" yaml:"tracks"`
	TotalTracks int        `json:"total_tracks" yaml:"total_tracks"`
	LocalPlays  uint64     `json:"local_plays" yaml:"local_plays"`
	TotalPlays  uint64     `json:"total_plays" yaml:"total_plays"`
	Children    []DirStats `json:"children,omitempty" yaml:"children,omitempty"`
}

// Stats snapshots the whole tree. Paths are relative to the root, which is ".".
func (t *Tree) Stats() DirStats {
	return snapshot(t.root, ".")
}

func snapshot(n *Node, rel string) DirStats {
	return DirStats{
		Name:        n.name,
		Path:        rel,
		Tracks:      len(n.tracks),
		TotalTracks: n.totalTracks,
		LocalPlays:  n.localPlays,
		TotalPlays:  n.TotalPlays(),
		Children: lo.Map(n.children, func(c *Node, _ int) DirStats {
			return snapshot(c, filepath.Join(rel, c.name))
		}),
	}
}

// Walk visits s and every descendant depth first.
func (s DirStats) Walk(fn func(DirStats)) {
	fn(s)
	for _, c := range s.Children {
		c.Walk(fn)
	}
}
