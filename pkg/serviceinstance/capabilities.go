package serviceinstance

import "time"

// ReadinessKind selects how a container-backed instance's readiness probe
// is performed (spec §4.5 step 5).
type ReadinessKind string

const (
	ReadinessTCP      ReadinessKind = "tcp"
	ReadinessRedisPing ReadinessKind = "redis-ping"
	ReadinessPgIsReady ReadinessKind = "pg-isready"
)

// Capability is one row of the static capability table keyed by service
// kind (spec §4.5 step 2).
type Capability struct {
	Kind         string
	Backing      Backing
	Image        string        // container-backed only
	InternalPort int           // container-backed only
	Readiness    ReadinessKind // container-backed only
	HourlyRate   float64
}

// defaultReadinessTimeout and defaultReadinessInterval bound the container-
// backed readiness poll (spec §4.5 step 5, default 30s with linear backoff).
const (
	defaultReadinessTimeout  = 30 * time.Second
	defaultReadinessInterval = 2 * time.Second
)

// capabilities is the static dispatch table. Every container-backed and
// managed-backed kind named in spec §3 has an entry; no other kinds are
// accepted by the Provisioner.
var capabilities = map[string]Capability{
	"redis": {
		Kind: "redis", Backing: BackingContainer,
		Image: "redis:7-alpine", InternalPort: 6379,
		Readiness: ReadinessRedisPing, HourlyRate: 0.01,
	},
	"postgresql": {
		Kind: "postgresql", Backing: BackingContainer,
		Image: "postgres:16-alpine", InternalPort: 5432,
		Readiness: ReadinessPgIsReady, HourlyRate: 0.02,
	},
	"postgresql-supabase": {
		Kind: "postgresql-supabase", Backing: BackingContainer,
		Image: "supabase/postgres:15.1.0.117", InternalPort: 5432,
		Readiness: ReadinessPgIsReady, HourlyRate: 0.03,
	},
	"postgresql-pgvector": {
		Kind: "postgresql-pgvector", Backing: BackingContainer,
		Image: "pgvector/pgvector:pg16", InternalPort: 5432,
		Readiness: ReadinessPgIsReady, HourlyRate: 0.025,
	},
	"postgresql-postgis": {
		Kind: "postgresql-postgis", Backing: BackingContainer,
		Image: "postgis/postgis:16-3.4-alpine", InternalPort: 5432,
		Readiness: ReadinessPgIsReady, HourlyRate: 0.025,
	},
	"mongodb": {
		Kind: "mongodb", Backing: BackingContainer,
		Image: "mongo:7", InternalPort: 27017,
		Readiness: ReadinessTCP, HourlyRate: 0.02,
	},
	"mysql": {
		Kind: "mysql", Backing: BackingContainer,
		Image: "mysql:8", InternalPort: 3306,
		Readiness: ReadinessTCP, HourlyRate: 0.02,
	},
	"elasticmq": {
		Kind: "elasticmq", Backing: BackingContainer,
		Image: "softwaremill/elasticmq-native:1.5.7", InternalPort: 9324,
		Readiness: ReadinessTCP, HourlyRate: 0.01,
	},
	"aws-s3":       {Kind: "aws-s3", Backing: BackingManaged, HourlyRate: 0.005},
	"gcp-storage":  {Kind: "gcp-storage", Backing: BackingManaged, HourlyRate: 0.005},
	"azure-blob":   {Kind: "azure-blob", Backing: BackingManaged, HourlyRate: 0.005},
	"aws-ecr":      {Kind: "aws-ecr", Backing: BackingManaged, HourlyRate: 0.005},
	"aws-iam":      {Kind: "aws-iam", Backing: BackingManaged, HourlyRate: 0.0},
	"aws-route53":  {Kind: "aws-route53", Backing: BackingManaged, HourlyRate: 0.0},
}

// Lookup returns the Capability for a service kind.
func Lookup(kind string) (Capability, bool) {
	c, ok := capabilities[kind]
	return c, ok
}

// HourlyRate implements environment.RateTable.
type CapabilityRateTable struct{}

func (CapabilityRateTable) HourlyRate(kind string) float64 {
	c, ok := capabilities[kind]
	if !ok {
		return 0
	}
	return c.HourlyRate
}
