package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/afterdarksys/mockfactory/pkg/serviceinstance"
)

func TestNewAppliesDefaultIntervals(t *testing.T) {
	s := New(nil, nil, nil, nil, nil, nil, Config{})

	if s.shutdownInterval != 15*time.Minute {
		t.Errorf("shutdownInterval = %v, want 15m", s.shutdownInterval)
	}
	if s.portGCInterval != 10*time.Minute {
		t.Errorf("portGCInterval = %v, want 10m", s.portGCInterval)
	}
	if s.purgeInterval != time.Hour {
		t.Errorf("purgeInterval = %v, want 1h", s.purgeInterval)
	}
}

func TestNewKeepsExplicitIntervals(t *testing.T) {
	cfg := Config{ShutdownInterval: time.Minute, PortGCInterval: 2 * time.Minute, PurgeInterval: 3 * time.Minute}
	s := New(nil, nil, nil, nil, nil, nil, cfg)

	if s.shutdownInterval != time.Minute || s.portGCInterval != 2*time.Minute || s.purgeInterval != 3*time.Minute {
		t.Errorf("intervals not preserved: %+v", s)
	}
}

func TestDecidePortRelease(t *testing.T) {
	cases := []struct {
		name       string
		inspectErr error
		state      serviceinstance.ContainerState
		wantRelese bool
		wantReason string
	}{
		{"inspect error releases", errors.New("no such container"), serviceinstance.ContainerState{}, true, reasonUninspectable},
		{"stopped container stays (ports survive STOPPED)", nil, serviceinstance.ContainerState{Running: false}, false, ""},
		{"running container stays", nil, serviceinstance.ContainerState{Running: true}, false, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			release, reason := decidePortRelease(tc.inspectErr, tc.state)
			if release != tc.wantRelese {
				t.Errorf("release = %v, want %v", release, tc.wantRelese)
			}
			if reason != tc.wantReason {
				t.Errorf("reason = %q, want %q", reason, tc.wantReason)
			}
		})
	}
}
