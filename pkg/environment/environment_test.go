package environment

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		if !strings.HasPrefix(id, "env_") {
			t.Fatalf("NewID() = %q, want env_ prefix", id)
		}
		if seen[id] {
			t.Fatalf("NewID() produced duplicate %q", id)
		}
		seen[id] = true
	}
}

func TestRowToResponse(t *testing.T) {
	hostname := "demo.mockfactory.dev"
	row := Row{
		ID:                  "env_abc123",
		DisplayName:         "demo",
		Hostname:            &hostname,
		State:               StateRunning,
		AutoShutdownSeconds: 3600,
		HourlyRate:          0.05,
	}

	resp := row.ToResponse()
	if resp.ID != row.ID {
		t.Errorf("ID = %q, want %q", resp.ID, row.ID)
	}
	if resp.State != StateRunning {
		t.Errorf("State = %q, want %q", resp.State, StateRunning)
	}
	if resp.AutoShutdownAfter.Seconds() != 3600 {
		t.Errorf("AutoShutdownAfter = %v, want 3600s", resp.AutoShutdownAfter)
	}
	if resp.Hostname == nil || *resp.Hostname != hostname {
		t.Errorf("Hostname = %v, want %q", resp.Hostname, hostname)
	}
}
