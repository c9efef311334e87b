package emulation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/afterdarksys/mockfactory/internal/apperr"
	"github.com/afterdarksys/mockfactory/pkg/containerrt"
)

const defaultLambdaConcurrency = 10

// lambdaRuntimeImages maps a declared Lambda runtime name to the container
// image its ephemeral invoke spins up from.
var lambdaRuntimeImages = map[string]string{
	"nodejs18.x":  "node:18-slim",
	"nodejs20.x":  "node:20-slim",
	"python3.11":  "python:3.11-slim",
	"python3.12":  "python:3.12-slim",
	"go1.x":       "golang:1.22-alpine",
	"provided.al2": "amazonlinux:2",
}

// lambdaTranslator implements the Lambda family (spec §4.6): function
// metadata lives in lambdaStore; Invoke starts a fresh container per call
// from the runtime's base image and tears it down afterward. There is no
// warm-container reuse and no cold-start optimization, matching the spec's
// "ephemeral container per invoke" description.
type lambdaTranslator struct {
	store       *lambdaStore
	runtime     *containerrt.Client
	logger      *slog.Logger
	concurrency int
	mu          sync.Mutex
	inFlight    map[string]int
}

// CreateFunction registers function metadata. No container is created until
// the first Invoke.
func (t *lambdaTranslator) CreateFunction(ctx context.Context, f lambdaFunctionRow) (lambdaFunctionRow, error) {
	if _, ok := lambdaRuntimeImages[f.Runtime]; !ok {
		return lambdaFunctionRow{}, apperr.New(apperr.InvalidRequest, fmt.Sprintf("unsupported runtime %q", f.Runtime))
	}
	row, err := t.store.create(ctx, f)
	if err != nil {
		return lambdaFunctionRow{}, apperr.Wrap(apperr.InternalError, "creating function", err)
	}
	return row, nil
}

func (t *lambdaTranslator) GetFunction(ctx context.Context, environmentID, name string) (lambdaFunctionRow, error) {
	row, err := t.store.get(ctx, environmentID, name)
	if err != nil {
		return lambdaFunctionRow{}, apperr.New(apperr.NotFound, "function not found")
	}
	return row, nil
}

func (t *lambdaTranslator) ListFunctions(ctx context.Context, environmentID string) ([]lambdaFunctionRow, error) {
	rows, err := t.store.list(ctx, environmentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, "listing functions", err)
	}
	return rows, nil
}

func (t *lambdaTranslator) DeleteFunction(ctx context.Context, environmentID, name string) error {
	if err := t.store.delete(ctx, environmentID, name); err != nil {
		return apperr.Wrap(apperr.InternalError, "deleting function", err)
	}
	return nil
}

// InvokeResult is the synchronous outcome of an ephemeral invoke.
type InvokeResult struct {
	StatusCode int
	Stdout     string
	Stderr     string
}

// Invoke runs the function's handler in a fresh container, bounded by the
// function's configured timeout and a per-function concurrency cap (spec
// §4.6: default 10, TooManyRequests beyond it).
func (t *lambdaTranslator) Invoke(ctx context.Context, environmentID, name string, event []byte) (InvokeResult, error) {
	f, err := t.store.get(ctx, environmentID, name)
	if err != nil {
		return InvokeResult{}, apperr.New(apperr.NotFound, "function not found")
	}

	key := environmentID + "/" + name
	if !t.acquire(key) {
		return InvokeResult{}, apperr.New(apperr.TooManyRequests, "function concurrency limit exceeded")
	}
	defer t.release(key)

	image := lambdaRuntimeImages[f.Runtime]

	env := make(map[string]string, len(f.EnvVars)+1)
	for k, v := range f.EnvVars {
		env[k] = v
	}
	// containerrt.Exec has no stdin channel, so the event is passed as an
	// env var rather than streamed, unlike a real Lambda invoke.
	env["LAMBDA_EVENT"] = string(event)

	containerID, err := t.runtime.Create(ctx, image, env, []string{"sleep", "infinity"}, 0, 0, map[string]string{
		"mockfactory.environment": environmentID,
		"mockfactory.lambda":      name,
	})
	if err != nil {
		return InvokeResult{}, apperr.Wrap(apperr.ProvisioningFailure, "creating invoke container", err)
	}
	defer func() { _ = t.runtime.Remove(ctx, containerID, true) }()

	if err := t.runtime.Start(ctx, containerID); err != nil {
		return InvokeResult{}, apperr.Wrap(apperr.ProvisioningFailure, "starting invoke container", err)
	}

	invokeCtx, cancel := context.WithTimeout(ctx, time.Duration(f.TimeoutSecs)*time.Second)
	defer cancel()

	stdout, stderr, exitCode, err := t.runtime.Exec(invokeCtx, containerID, []string{"sh", "-c", f.Handler})
	if err != nil {
		if invokeCtx.Err() != nil {
			return InvokeResult{}, apperr.New(apperr.Timeout, "function timed out")
		}
		return InvokeResult{}, apperr.Wrap(apperr.ProvisioningFailure, "invoking function", err)
	}

	status := 200
	if exitCode != 0 {
		status = 500
	}
	return InvokeResult{StatusCode: status, Stdout: stdout, Stderr: stderr}, nil
}

// toFunctionConfiguration shapes a stored function as the real Lambda SDK's
// GetFunctionConfiguration response so callers using a Lambda SDK against
// this endpoint decode cleanly.
func toFunctionConfiguration(row lambdaFunctionRow) lambdatypes.FunctionConfiguration {
	return lambdatypes.FunctionConfiguration{
		FunctionName: &row.Name,
		Runtime:      lambdatypes.Runtime(row.Runtime),
		Handler:      &row.Handler,
		MemorySize:   int32Ptr(int32(row.MemoryMB)),
		Timeout:      int32Ptr(int32(row.TimeoutSecs)),
		Environment: &lambdatypes.EnvironmentResponse{
			Variables: row.EnvVars,
		},
	}
}

func int32Ptr(v int32) *int32 { return &v }

func (t *lambdaTranslator) acquire(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	limit := t.concurrency
	if limit <= 0 {
		limit = defaultLambdaConcurrency
	}
	if t.inFlight[key] >= limit {
		return false
	}
	t.inFlight[key]++
	return true
}

func (t *lambdaTranslator) release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inFlight[key]--
	if t.inFlight[key] <= 0 {
		delete(t.inFlight, key)
	}
}
