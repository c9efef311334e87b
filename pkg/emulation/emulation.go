// Package emulation implements the Cloud-API Emulation Router (spec §4.6,
// C8): an HTTP mux keyed by environment and cloud family, translating a
// small subset of each family's API onto the control plane's own primitives
// (the Object-Store Adapter for S3-shaped calls, the DNS Record Store for
// Route53, ephemeral containers for Lambda invokes, and dedicated tables for
// everything else). Every request is authorized against its Environment and
// touches last-activity before the family translator runs; no per-request
// metering event is recorded.
package emulation

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afterdarksys/mockfactory/internal/apperr"
	"github.com/afterdarksys/mockfactory/pkg/containerrt"
	"github.com/afterdarksys/mockfactory/pkg/dnsrecord"
	"github.com/afterdarksys/mockfactory/pkg/environment"
	"github.com/afterdarksys/mockfactory/pkg/objectstore"
)

// Router owns every per-family translator and the shared ownership/activity
// plumbing they're built on.
type Router struct {
	pool    *pgxpool.Pool
	envs    *environment.Service
	runtime *containerrt.Client
	dns     *dnsrecord.Service
	logger  *slog.Logger

	s3       *s3Translator
	ec2      *ec2Translator
	lambda   *lambdaTranslator
	dynamodb *dynamoTranslator
	sqs      *sqsTranslator
	route53  *route53Translator
	iam      *iamTranslator
}

// New creates a Router wiring every family translator to its backing store.
// lambdaConcurrency bounds concurrent invokes per function (spec §4.6); pass
// 0 to use defaultLambdaConcurrency.
func New(pool *pgxpool.Pool, envs *environment.Service, runtime *containerrt.Client, objects ObjectStoreAPI, dns *dnsrecord.Service, lambdaConcurrency int, logger *slog.Logger) *Router {
	rt := &Router{pool: pool, envs: envs, runtime: runtime, dns: dns, logger: logger}
	rt.s3 = &s3Translator{objects: objects, store: newObjectMetaStore(pool)}
	rt.ec2 = &ec2Translator{store: newEC2Store(pool)}
	rt.lambda = &lambdaTranslator{store: newLambdaStore(pool), runtime: runtime, logger: logger, concurrency: lambdaConcurrency, inFlight: make(map[string]int)}
	rt.dynamodb = &dynamoTranslator{store: newDynamoStore(pool)}
	rt.sqs = &sqsTranslator{store: newSQSStore(pool)}
	rt.route53 = &route53Translator{dns: dns}
	rt.iam = &iamTranslator{store: newIAMStore()}
	return rt
}

// ObjectStoreAPI is the slice of the Object Store Adapter the S3 translator
// needs beyond namespace lifecycle (pkg/serviceinstance.ObjectStoreNamespaces
// covers creation/deletion; this adds object CRUD for PutObject/GetObject/
// ListObjects/DeleteObject, spec §4.6).
type ObjectStoreAPI interface {
	CreateNamespace(ctx context.Context, name string) error
	DeleteNamespace(ctx context.Context, name string) error
	PutObject(ctx context.Context, namespace, key string, body []byte) error
	GetObject(ctx context.Context, namespace, key string) ([]byte, error)
	ListObjects(ctx context.Context, namespace string) ([]objectstore.ObjectSummary, error)
	DeleteObject(ctx context.Context, namespace, key string) error
}

// authorize resolves the caller's ownership of environmentID, touches its
// last-activity timestamp, and returns the owned Environment row. Unlike
// environment.Service's own NotFound-masking convention, a wrong owner here
// returns Forbidden per spec §4.6's cross-cutting rule and invariant P2 (a
// real environment exists, the caller just isn't allowed at it).
func (rt *Router) authorize(ctx context.Context, callerID uuid.UUID, environmentID string) (environment.Row, error) {
	store := environment.NewStore(rt.pool)
	row, err := store.Get(ctx, environmentID)
	if err != nil {
		return environment.Row{}, apperr.New(apperr.NotFound, "environment not found")
	}
	if row.OwnerID != callerID {
		return environment.Row{}, apperr.New(apperr.Forbidden, "not the owner of this environment")
	}
	if err := rt.envs.TouchActivity(ctx, environmentID); err != nil {
		rt.logger.Warn("touching environment activity", "environment_id", environmentID, "error", err)
	}
	return row, nil
}

// PurgeEnvironment clears the in-memory IAM state for a destroyed
// Environment (spec §4.3/P7 cascade). DB-backed families (EC2, Lambda,
// DynamoDB, SQS, the S3 metadata tables) cascade on their environment_id
// foreign key instead and need no explicit call here.
func (rt *Router) PurgeEnvironment(environmentID string) {
	rt.iam.purgeEnvironment(environmentID)
}
