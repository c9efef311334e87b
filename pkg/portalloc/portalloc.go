// Package portalloc implements the Port Allocator (spec §4.4): transactional
// smallest-free-port selection from a bounded range, serialized by a unique
// partial index with bounded retry on conflict.
package portalloc

import (
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultRangeMin and DefaultRangeMax bound the leasable host port range
	// (spec §4.4) when the operator doesn't override PORT_RANGE_MIN/MAX.
	DefaultRangeMin = 30000
	DefaultRangeMax = 40000

	maxRetries = 8
)

// Allocation is a single port lease, active or released.
type Allocation struct {
	Port              int
	ServiceInstanceID uuid.UUID
	Active            bool
	AllocatedAt       time.Time
	ReleasedAt        *time.Time
}
