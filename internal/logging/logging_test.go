package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"defaults", Options{}, false},
		{"debug json", Options{Level: "debug", Format: "json"}, false},
		{"uppercase level", Options{Level: "WARN", Format: "logfmt"}, false},
		{"bad level", Options{Level: "loud"}, true},
		{"bad format", Options{Format: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(&bytes.Buffer{}, tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: "info", Format: "json"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("Update installed", "version", "2.0.0")
	logger.Debug("Hidden at info level")

	out := buf.String()
	if !strings.Contains(out, "version") || !strings.Contains(out, "2.0.0") {
		t.Errorf("expected version key in output, got %q", out)
	}
	if !strings.Contains(out, "upkeep") || !strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("expected prefix in output, got %q", out)
	}
	if strings.Contains(out, "Hidden") {
		t.Errorf("debug message should be filtered, got %q", out)
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("OrDiscard(nil) returned nil")
	}
	// Must not panic.
	OrDiscard(nil).Error("dropped")
}
