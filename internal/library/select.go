/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"path/filepath"

	"github.com/samber/lo"
)

// Rand is the source of randomness used to break ties. *rand.Rand from
// math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

// localSlot marks the node's own tracks among the candidates.
const localSlot = -1

// Selection is the outcome of Select: the child index taken at each level
// below the root, then the index of the chosen track in the final node.
type Selection struct {
	Route []int
	Track int
	Path  string // relative to the tree root
}

// candidate is either the local slot or one child, with its played-factor
// kept as a fraction so ties compare exactly.
type candidate struct {
	slot   int
	plays  uint64
	tracks uint64
}

// less reports whether a's played-factor is below b's.
func (a candidate) less(b candidate) bool {
	return a.plays*b.tracks < b.plays*a.tracks
}

func (a candidate) equal(b candidate) bool {
	return a.plays*b.tracks == b.plays*a.tracks
}

// Select picks the next track without touching any counter. At every level
// the node's own tracks and each child compete on played-factor
// (plays / tracks); the lowest wins and ties are broken uniformly at random,
// with the local slot taking part in the tie like any child.
func Select(n *Node, rng Rand) (Selection, error) {
	if n == nil || n.totalTracks == 0 {
		return Selection{}, ErrEmpty
	}

	var sel Selection
	var parts []string
	for {
		cands := candidates(n)
		best := lo.MinBy(cands, func(a, b candidate) bool { return a.less(b) })
		tied := lo.Filter(cands, func(c candidate, _ int) bool { return c.equal(best) })
		pick := tied[rng.IntN(len(tied))]

		if pick.slot == localSlot {
			sel.Track = rng.IntN(len(n.tracks))
			parts = append(parts, n.tracks[sel.Track])
			sel.Path = filepath.Join(parts...)
			return sel, nil
		}

		sel.Route = append(sel.Route, pick.slot)
		n = n.children[pick.slot]
		parts = append(parts, n.name)
	}
}

func candidates(n *Node) []candidate {
	cands := make([]candidate, 0, len(n.children)+1)
	if len(n.tracks) > 0 {
		cands = append(cands, candidate{
			slot:   localSlot,
			plays:  n.localPlays,
			tracks: uint64(len(n.tracks)),
		})
	}
	for i, child := range n.children {
		cands = append(cands, candidate{
			slot:   i,
			plays:  child.TotalPlays(),
			tracks: uint64(child.totalTracks),
		})
	}
	return cands
}

// Apply records sel as played, updating the counters along its route.
func Apply(n *Node, sel Selection) {
	for _, idx := range sel.Route {
		n.subtreePlays++
		n = n.children[idx]
	}
	n.localPlays++
}

// Next selects a track, records the play and returns its path relative to the root.
func (t *Tree) Next(rng Rand) (string, error) {
	sel, err := Select(t.root, rng)
	if err != nil {
		return "", err
	}
	Apply(t.root, sel)
	return sel.Path, nil
}
