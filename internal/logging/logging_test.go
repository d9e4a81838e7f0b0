package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		env  string
		want zerolog.Level
	}{
		{"development", zerolog.DebugLevel},
		{"Development", zerolog.DebugLevel},
		{"production", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := Level(tt.env); got != tt.want {
			t.Errorf("Level(%q) = %v, want %v", tt.env, got, tt.want)
		}
	}
}

func TestSetupWithWriterCapturesJSON(t *testing.T) {
	var console, capture bytes.Buffer
	logger := SetupWithWriter("production", &console, &capture)

	logger.Debug().Msg("hidden")
	logger.Info().Str("component", "test").Msg("shown")

	if strings.Contains(capture.String(), "hidden") {
		t.Fatal("debug line written in production")
	}
	if !strings.Contains(capture.String(), `"message":"shown"`) {
		t.Fatalf("capture is not JSON: %q", capture.String())
	}
	if !strings.Contains(console.String(), "shown") || strings.Contains(console.String(), `"message"`) {
		t.Fatalf("console output should be human readable: %q", console.String())
	}
}
