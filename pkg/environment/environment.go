// Package environment implements the Environment entity and its lifecycle
// state machine (spec §3, §4.3): the central object every other domain
// package (portalloc, serviceinstance, metering, scheduler) hangs off of.
package environment

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
	"time"

	"github.com/google/uuid"
)

// State is a lifecycle state of an Environment (spec §4.3).
type State string

const (
	StateCreated     State = "CREATED"
	StateProvisioning State = "PROVISIONING"
	StateRunning     State = "RUNNING"
	StateStopped     State = "STOPPED"
	StateDestroying  State = "DESTROYING"
	StateDestroyed   State = "DESTROYED"
	StateError       State = "ERROR"
)

// tokenEncoding is the RFC 4648 base32 alphabet without padding. Unlike
// Crockford's base32 it keeps the letters I, L, O and U; NewID lowercases
// its output.
var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID mints an opaque environment token of the form "env_<23 chars>".
func NewID() string {
	b := make([]byte, 14)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return "env_" + strings.ToLower(tokenEncoding.EncodeToString(b))
}

// ServiceDeclaration is one entry of the declared service set (spec §3).
type ServiceDeclaration struct {
	Kind    string            `json:"kind"`
	Version string            `json:"version,omitempty"`
	Config  map[string]string `json:"config,omitempty"`
}

// EndpointDescriptor is the connection endpoint for one provisioned service,
// returned to callers with its credential component masked (spec §6).
type EndpointDescriptor struct {
	ServiceKind string `json:"service_kind"`
	Endpoint    string `json:"endpoint"`
}

// CreateRequest is the JSON body for POST /api/v1/environments.
type CreateRequest struct {
	Name             string               `json:"name" validate:"required,min=1,max=128"`
	Services         []ServiceDeclaration `json:"services" validate:"required,min=1,dive"`
	AutoShutdownHours float64             `json:"auto_shutdown_hours" validate:"omitempty,gt=0"`
}

// SetHostnameRequest is the JSON body for PATCH /api/v1/environments/{id}/hostname.
type SetHostnameRequest struct {
	Hostname string `json:"hostname" validate:"required,hostname_rfc1123"`
}

// Response is the JSON response for a single environment.
type Response struct {
	ID                string               `json:"id"`
	OwnerID           uuid.UUID            `json:"owner_id"`
	Name              string               `json:"name"`
	Hostname          *string              `json:"hostname,omitempty"`
	Services          []ServiceDeclaration `json:"services"`
	State             State                `json:"state"`
	CreatedAt         time.Time            `json:"created_at"`
	LastActivityAt    time.Time            `json:"last_activity_at"`
	StartedAt         *time.Time           `json:"started_at,omitempty"`
	StoppedAt         *time.Time           `json:"stopped_at,omitempty"`
	DestroyedAt       *time.Time           `json:"destroyed_at,omitempty"`
	AutoShutdownAfter time.Duration        `json:"auto_shutdown_after_seconds"`
	HourlyRate        float64              `json:"hourly_rate"`
	RunningCost        float64             `json:"running_cost"`
}

// CreateResponse is the JSON response for a successful creation, carrying the
// provisioned endpoints (spec §6).
type CreateResponse struct {
	Response
	Endpoints []EndpointDescriptor `json:"endpoints"`
}
