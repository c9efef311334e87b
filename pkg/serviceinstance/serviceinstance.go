// Package serviceinstance implements the Service Provisioner (spec §4.5,
// C6): it maps a declared service kind to either a container-backed daemon
// or a managed-backed external namespace, and exposes the result as a
// masked connection descriptor.
package serviceinstance

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a ServiceInstance (spec §3).
type State string

const (
	StateProvisioning State = "PROVISIONING"
	StateRunning      State = "RUNNING"
	StateStopped      State = "STOPPED"
	StateDestroyed    State = "DESTROYED"
)

// Backing distinguishes the two provisioning flows of spec §4.5.
type Backing string

const (
	BackingContainer Backing = "container"
	BackingManaged   Backing = "managed"
)

// Row represents a row in the service_instances table. Credentials holds the
// real secret and is never serialized to a Response (spec §6 masking rule).
type Row struct {
	ID          uuid.UUID
	EnvironmentID string
	Kind        string
	Backing     Backing
	ContainerID *string
	Port        *int
	Namespace   *string
	Credentials string
	Endpoint    string
	State       State
	CreatedAt   time.Time
}

// Response is the masked, caller-facing view of a ServiceInstance.
type Response struct {
	ID       uuid.UUID `json:"id"`
	Kind     string    `json:"kind"`
	State    State     `json:"state"`
	Endpoint string    `json:"endpoint"`
}

// maskedEndpoint returns endpoint with the credential component replaced by
// the fixed masking placeholder (spec §6 MUST rule).
func maskedEndpoint(rawEndpoint, credential string) string {
	if credential == "" {
		return rawEndpoint
	}
	masked := "*****"
	out := make([]byte, 0, len(rawEndpoint))
	i := 0
	for i < len(rawEndpoint) {
		if i+len(credential) <= len(rawEndpoint) && rawEndpoint[i:i+len(credential)] == credential {
			out = append(out, masked...)
			i += len(credential)
			continue
		}
		out = append(out, rawEndpoint[i])
		i++
	}
	return string(out)
}

// ToResponse converts a Row to its masked Response DTO.
func (r *Row) ToResponse() Response {
	return Response{
		ID:       r.ID,
		Kind:     r.Kind,
		State:    r.State,
		Endpoint: maskedEndpoint(r.Endpoint, credentialOf(r.Credentials)),
	}
}

// credentialOf extracts the raw secret from a stored credentials blob
// ("user:password" or a bare token); only the password/token component is
// masked, never the whole descriptor.
func credentialOf(credentials string) string {
	for i := len(credentials) - 1; i >= 0; i-- {
		if credentials[i] == ':' {
			return credentials[i+1:]
		}
	}
	return credentials
}
