/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"errors"
	"fmt"
)

// DirErrorKind classifies why a music directory could not be used.
type DirErrorKind int

const (
	KindNotFound DirErrorKind = iota + 1
	KindNotDir
	KindEmpty
	KindUnreadable
)

var (
	ErrNotFound   = errors.New("directory not found")
	ErrNotDir     = errors.New("not a directory")
	ErrEmpty      = errors.New("no tracks found")
	ErrUnreadable = errors.New("directory unreadable")
)

func (k DirErrorKind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindNotDir:
		return ErrNotDir
	case KindEmpty:
		return ErrEmpty
	default:
		return ErrUnreadable
	}
}

// String returns a stable identifier for the kind.
func (k DirErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindNotDir:
		return "not_dir"
	case KindEmpty:
		return "empty"
	case KindUnreadable:
		return "unreadable"
	default:
		return "unknown"
	}
}

// DirError is returned by Build. errors.Is matches it against the Err* sentinels.
type DirError struct {
	Kind DirErrorKind
	Path string
	Err  error // underlying filesystem error, if any
}

func (e *DirError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Path, e.Kind.sentinel(), e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Kind.sentinel())
}

func (e *DirError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind.sentinel(), e.Err}
	}
	return []error{e.Kind.sentinel()}
}

// Message is the text shown to a listener for this error.
func (e *DirError) Message() string {
	switch e.Kind {
	case KindNotFound:
		return "The selected folder does not exist."
	case KindNotDir:
		return "The selected path is not a folder."
	case KindEmpty:
		return "The selected folder contains no playable tracks."
	default:
		return "The selected folder could not be read."
	}
}
