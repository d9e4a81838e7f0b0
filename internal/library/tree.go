/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package library builds a tree over a music folder and picks tracks from it
// so that every branch is played in proportion to the number of tracks it holds.
package library

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/friendsincode/fairplay/internal/telemetry"
)

// DefaultExtensions lists the file extensions treated as tracks when none are configured.
var DefaultExtensions = []string{".mp3"}

// Node is one directory. Only the play counters change after Build.
type Node struct {
	name     string
	tracks   []string
	children []*Node

	totalTracks  int    // tracks in this node and every descendant
	localPlays   uint64 // plays of this node's own tracks
	subtreePlays uint64 // plays anywhere below this node
}

// Name returns the directory name.
func (n *Node) Name() string { return n.name }

// TotalTracks returns the number of tracks in the subtree rooted at n.
func (n *Node) TotalTracks() int { return n.totalTracks }

// TotalPlays returns every play recorded in the subtree rooted at n.
func (n *Node) TotalPlays() uint64 { return n.localPlays + n.subtreePlays }

// BuildOptions tune Build. The zero value uses DefaultExtensions and discards logs.
type BuildOptions struct {
	Extensions []string
	Logger     zerolog.Logger
}

// Tree is a built directory tree and its absolute root path. It is owned by a
// single goroutine; callers see it only through paths and Stats snapshots.
type Tree struct {
	root *Node
	path string
}

// Build walks path synchronously and returns the pruned tree.
func Build(path string, opts BuildOptions) (*Tree, error) {
	return BuildContext(context.Background(), path, opts)
}

// BuildContext is Build traced under ctx. A cancelled ctx stops the walk
// with a KindUnreadable error.
func BuildContext(ctx context.Context, path string, opts BuildOptions) (tree *Tree, err error) {
	ctx, span := telemetry.StartSpan(ctx, "library", "library.Build")
	defer func() {
		telemetry.RecordError(span, err)
		if tree != nil {
			telemetry.AddSpanAttributes(span, map[string]any{"library.tracks": tree.TotalTracks()})
		}
		span.End()
	}()
	telemetry.AddSpanAttributes(span, map[string]any{"library.path": path})

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &DirError{Kind: KindUnreadable, Path: path, Err: err}
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &DirError{Kind: KindNotFound, Path: abs}
		}
		return nil, &DirError{Kind: KindUnreadable, Path: abs, Err: err}
	}
	if !info.IsDir() {
		return nil, &DirError{Kind: KindNotDir, Path: abs}
	}

	b := builder{
		ctx:    ctx,
		exts:   extensionSet(opts.Extensions),
		logger: opts.Logger,
	}
	root, err := b.walk(abs, filepath.Base(abs))
	if err != nil {
		return nil, &DirError{Kind: KindUnreadable, Path: abs, Err: err}
	}
	if root == nil {
		return nil, &DirError{Kind: KindEmpty, Path: abs}
	}

	return &Tree{root: root, path: abs}, nil
}

// Path returns the absolute root directory.
func (t *Tree) Path() string { return t.path }

// TotalTracks returns the number of eligible tracks in the tree.
func (t *Tree) TotalTracks() int { return t.root.totalTracks }

// Abs joins a path returned by Next with the root directory.
func (t *Tree) Abs(rel string) string {
	return filepath.Join(t.path, rel)
}

type builder struct {
	ctx    context.Context
	exts   map[string]struct{}
	logger zerolog.Logger
}

// walk returns nil, nil for a directory without tracks after pruning.
func (b builder) walk(dir, name string) (*Node, error) {
	if err := b.ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	node := &Node{name: name}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		full := filepath.Join(dir, entry.Name())

		switch {
		case entry.IsDir():
			child, err := b.walk(full, entry.Name())
			if err != nil {
				if b.ctx.Err() != nil {
					return nil, err
				}
				if !errors.Is(err, fs.ErrNotExist) {
					b.logger.Warn().Err(err).Str("dir", full).Msg("skipping unreadable directory")
				}
				continue
			}
			if child != nil {
				node.children = append(node.children, child)
			}
		case entry.Type().IsRegular():
			if b.eligible(entry.Name()) {
				node.tracks = append(node.tracks, entry.Name())
			}
		case entry.Type()&fs.ModeSymlink != 0:
			// Linked files count as tracks; linked directories are not
			// followed so a link back up the tree cannot loop.
			info, err := os.Stat(full)
			switch {
			case err != nil:
				b.logger.Debug().Err(err).Str("path", full).Msg("skipping broken symlink")
			case info.Mode().IsRegular():
				if b.eligible(entry.Name()) {
					node.tracks = append(node.tracks, entry.Name())
				}
			case info.IsDir():
				b.logger.Debug().Str("dir", full).Msg("not following symlinked directory")
			}
		}
	}

	node.totalTracks = len(node.tracks) + lo.SumBy(node.children, func(c *Node) int {
		return c.totalTracks
	})
	if node.totalTracks == 0 {
		return nil, nil
	}
	return node, nil
}

func (b builder) eligible(name string) bool {
	_, ok := b.exts[strings.ToLower(filepath.Ext(name))]
	return ok
}

func extensionSet(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return set
}
