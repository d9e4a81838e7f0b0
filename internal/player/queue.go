/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"errors"
	"math"
	"time"

	"github.com/gopxl/beep/v2"
)

// ErrNothingPlaying is returned by seeks on an empty queue.
var ErrNothingPlaying = errors.New("nothing playing")

// queueItem is one decoded track followed by its completion marker.
type queueItem struct {
	stream beep.StreamSeekCloser
	format beep.Format
	out    beep.Streamer
	marker func()
}

// queue streams its items back to back at a fixed sample rate and emits
// silence when empty, so it can stay attached to the output forever.
// It is not safe for concurrent use; the speaker sink guards it with the
// speaker lock.
type queue struct {
	rate  beep.SampleRate
	items []*queueItem
}

func newQueue(rate beep.SampleRate) *queue {
	return &queue{rate: rate}
}

func (q *queue) push(stream beep.StreamSeekCloser, format beep.Format, marker func()) {
	var out beep.Streamer = stream
	if format.SampleRate != q.rate {
		out = beep.Resample(4, format.SampleRate, q.rate, stream)
	}
	q.items = append(q.items, &queueItem{stream: stream, format: format, out: out, marker: marker})
}

func (q *queue) Stream(samples [][2]float64) (int, bool) {
	filled := 0
	for filled < len(samples) {
		if len(q.items) == 0 {
			clear(samples[filled:])
			break
		}
		n, ok := q.items[0].out.Stream(samples[filled:])
		filled += n
		if !ok || n == 0 {
			q.finishFront()
		}
	}
	return len(samples), true
}

func (q *queue) Err() error { return nil }

// finishFront closes the front track and fires its marker.
func (q *queue) finishFront() {
	if len(q.items) == 0 {
		return
	}
	front := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	front.stream.Close()
	if front.marker != nil {
		front.marker()
	}
}

func (q *queue) clear() {
	for _, it := range q.items {
		it.stream.Close()
	}
	q.items = nil
}

func (q *queue) position() time.Duration {
	if len(q.items) == 0 {
		return 0
	}
	front := q.items[0]
	return front.format.SampleRate.D(front.stream.Position())
}

func (q *queue) seek(d time.Duration) error {
	if len(q.items) == 0 {
		return ErrNothingPlaying
	}
	front := q.items[0]
	n := front.format.SampleRate.N(d)
	if l := front.stream.Len(); l > 0 && n >= l {
		n = l - 1
	}
	return front.stream.Seek(max(n, 0))
}

// gainToVolume maps a linear gain onto effects.Volume's base-2 exponent.
func gainToVolume(gain float64) (volume float64, silent bool) {
	if gain <= 0 {
		return 0, true
	}
	return math.Log2(gain), false
}
