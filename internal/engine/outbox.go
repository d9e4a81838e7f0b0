/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

// outbox queues messages for a channel so the orchestrator never blocks on
// a busy receiver. In a select, sending on ready(c) is disabled while the
// outbox is empty because ready returns nil.
type outbox[T any] struct {
	items []T
}

func (b *outbox[T]) push(v T) { b.items = append(b.items, v) }

func (b *outbox[T]) len() int { return len(b.items) }

func (b *outbox[T]) ready(c chan<- T) chan<- T {
	if len(b.items) == 0 {
		return nil
	}
	return c
}

func (b *outbox[T]) front() T {
	var zero T
	if len(b.items) == 0 {
		return zero
	}
	return b.items[0]
}

func (b *outbox[T]) pop() {
	var zero T
	b.items[0] = zero
	b.items = b.items[1:]
}

// drain removes every queued item, passing each to fn.
func (b *outbox[T]) drain(fn func(T)) {
	for _, v := range b.items {
		fn(v)
	}
	b.items = nil
}

// filter keeps only the items for which keep returns true.
func (b *outbox[T]) filter(keep func(T) bool) {
	kept := b.items[:0]
	for _, v := range b.items {
		if keep(v) {
			kept = append(kept, v)
		}
	}
	clear(b.items[len(kept):])
	b.items = kept
}
