/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog for the process.
func Setup(environment string) zerolog.Logger {
	return SetupWithWriter(environment, os.Stderr, nil)
}

// SetupWithWriter writes human readable lines to console and, when capture
// is set, the raw JSON events to capture as well (e.g. a log buffer).
func SetupWithWriter(environment string, console io.Writer, capture io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var writer io.Writer = zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05.000"}
	if capture != nil {
		writer = zerolog.MultiLevelWriter(writer, capture)
	}

	logger := zerolog.New(writer).With().Timestamp().Logger().Level(Level(environment))
	log.Logger = logger
	return logger
}

// Level maps the environment name onto a log level.
func Level(environment string) zerolog.Level {
	if strings.EqualFold(environment, "development") {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}
