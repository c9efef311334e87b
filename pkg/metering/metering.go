// Package metering implements Metering & Billing Accrual (spec §4.8, C9):
// it opens a UsageInterval when an Environment transitions to RUNNING, closes
// it on every transition away from RUNNING, and runs an hourly reconciliation
// loop that splits long-open intervals at the hour boundary.
package metering

import (
	"time"

	"github.com/google/uuid"
)

// Row represents a row in the usage_intervals table.
type Row struct {
	ID            uuid.UUID
	EnvironmentID string
	PeriodStart   time.Time
	PeriodEnd     *time.Time
	HourlyRate    float64
	Cost          *float64
	Billed        bool
}
