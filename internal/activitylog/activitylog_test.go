package activitylog

import (
	"log/slog"
	"testing"

	"github.com/google/uuid"
)

func TestLog_DropsWhenFull(t *testing.T) {
	logger := slog.Default()
	w := NewWriter(nil, logger)
	// Don't start the background goroutine — nothing drains the channel.

	for i := 0; i < bufferSize; i++ {
		w.Log(uuid.New(), "test", nil)
	}

	// The next log should be dropped (non-blocking) rather than deadlock the caller.
	w.Log(uuid.New(), "dropped", nil)

	if len(w.entries) != bufferSize {
		t.Errorf("buffer size = %d, want %d", len(w.entries), bufferSize)
	}
}

func TestLog_EnqueuesEntry(t *testing.T) {
	logger := slog.Default()
	w := NewWriter(nil, logger)

	envID := uuid.New()
	w.Log(envID, "provisioned", nil)

	entry := <-w.entries
	if entry.EnvironmentID != envID {
		t.Errorf("EnvironmentID = %v, want %v", entry.EnvironmentID, envID)
	}
	if entry.Action != "provisioned" {
		t.Errorf("Action = %q, want %q", entry.Action, "provisioned")
	}
	if entry.OccurredAt.IsZero() {
		t.Error("OccurredAt should be set")
	}
}
