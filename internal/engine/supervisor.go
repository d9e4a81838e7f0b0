/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/friendsincode/fairplay/internal/telemetry"
)

const (
	// Maximum restarts within window
	maxRestartsInWindow = 5
	restartWindow       = 5 * time.Minute
)

// errActorReturned is reported when an actor's Run returns nil while the
// orchestrator still needs it.
var errActorReturned = errors.New("actor returned unexpectedly")

// actorStatus is sent by a supervisor to the orchestrator.
type actorStatus struct {
	actor     string
	err       error
	restartIn time.Duration
	permanent bool
	restarted bool
}

// restartPolicy bounds how often an actor is brought back.
type restartPolicy struct {
	maxRestarts int
	window      time.Duration
	newBackOff  func() backoff.BackOff
}

func defaultRestartPolicy() restartPolicy {
	return restartPolicy{
		maxRestarts: maxRestartsInWindow,
		window:      restartWindow,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// supervise runs run until ctx is done, restarting it after a panic or an
// unexpected return. Every exit and restart is reported on status.
func supervise(ctx context.Context, name string, run func(context.Context) error, policy restartPolicy, status chan<- actorStatus, logger zerolog.Logger) {
	logger = logger.With().Str("actor", name).Logger()
	b := policy.newBackOff()
	var restarts []time.Time

	report := func(s actorStatus) bool {
		select {
		case status <- s:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		err := runRecovered(ctx, run)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errActorReturned
		}

		now := time.Now()
		cutoff := now.Add(-policy.window)
		for len(restarts) > 0 && restarts[0].Before(cutoff) {
			restarts = restarts[1:]
		}
		if len(restarts) >= policy.maxRestarts {
			logger.Error().Err(err).Int("restarts", len(restarts)).Msg("actor failed too often, giving up")
			report(actorStatus{actor: name, err: err, permanent: true})
			return
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			logger.Error().Err(err).Msg("actor backoff exhausted, giving up")
			report(actorStatus{actor: name, err: err, permanent: true})
			return
		}
		logger.Error().Err(err).Dur("restart_in", delay).Msg("actor stopped, restarting")
		if !report(actorStatus{actor: name, err: err, restartIn: delay}) {
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		restarts = append(restarts, time.Now())
		telemetry.ActorRestartsTotal.WithLabelValues(name).Inc()
		logger.Info().Int("restarts", len(restarts)).Msg("actor restarted")
		if !report(actorStatus{actor: name, restarted: true}) {
			return
		}
	}
}

func runRecovered(ctx context.Context, run func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return run(ctx)
}
