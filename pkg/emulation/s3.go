package emulation

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/afterdarksys/mockfactory/internal/apperr"
)

// s3Translator implements the S3 / GCS / Blob family (spec §4.6): every
// bucket/object operation maps onto the Object Store Adapter, namespaced per
// environment so bucket names only need to be unique within an environment
// rather than globally. Object metadata (size, ETag) is tracked in
// objectMetaStore since the adapter itself is a dumb namespace+key/value
// store; S3 callers expect ETags back from PutObject and ListObjectsV2.
type s3Translator struct {
	objects ObjectStoreAPI
	store   *objectMetaStore
}

func namespaceFor(environmentID, bucket string) string {
	return fmt.Sprintf("env-%s-%s", environmentID, bucket)
}

// CreateBucket creates a namespace scoped to the environment and records the
// bucket name for ListBuckets.
func (t *s3Translator) CreateBucket(ctx context.Context, environmentID, bucket string) error {
	if err := t.objects.CreateNamespace(ctx, namespaceFor(environmentID, bucket)); err != nil {
		return apperr.Wrap(apperr.ProvisioningFailure, "creating bucket", err)
	}
	return t.store.recordBucket(ctx, environmentID, bucket)
}

// DeleteBucket deletes the namespace and its metadata rows.
func (t *s3Translator) DeleteBucket(ctx context.Context, environmentID, bucket string) error {
	if err := t.objects.DeleteNamespace(ctx, namespaceFor(environmentID, bucket)); err != nil {
		return apperr.Wrap(apperr.ProvisioningFailure, "deleting bucket", err)
	}
	return t.store.forgetBucket(ctx, environmentID, bucket)
}

// ListBuckets returns every bucket name created in this environment.
func (t *s3Translator) ListBuckets(ctx context.Context, environmentID string) ([]string, error) {
	return t.store.listBuckets(ctx, environmentID)
}

// PutObject writes an object and returns its computed ETag (an MD5 of the
// body, matching real S3's convention for non-multipart uploads).
func (t *s3Translator) PutObject(ctx context.Context, environmentID, bucket, key string, body []byte) (etag string, err error) {
	if err := t.objects.PutObject(ctx, namespaceFor(environmentID, bucket), key, body); err != nil {
		return "", apperr.Wrap(apperr.ProvisioningFailure, "putting object", err)
	}
	sum := md5.Sum(body)
	etag = hex.EncodeToString(sum[:])
	if err := t.store.recordObject(ctx, environmentID, bucket, key, etag, int64(len(body))); err != nil {
		return "", err
	}
	return etag, nil
}

func (t *s3Translator) GetObject(ctx context.Context, environmentID, bucket, key string) ([]byte, error) {
	body, err := t.objects.GetObject(ctx, namespaceFor(environmentID, bucket), key)
	if err != nil {
		return nil, apperr.New(apperr.NotFound, "object not found")
	}
	return body, nil
}

func (t *s3Translator) DeleteObject(ctx context.Context, environmentID, bucket, key string) error {
	if err := t.objects.DeleteObject(ctx, namespaceFor(environmentID, bucket), key); err != nil {
		return apperr.Wrap(apperr.ProvisioningFailure, "deleting object", err)
	}
	return t.store.forgetObject(ctx, environmentID, bucket, key)
}

// ObjectListing is one entry of a ListObjectsV2 response.
type ObjectListing struct {
	Key  string
	ETag string
	Size int64
}

func (t *s3Translator) ListObjectsV2(ctx context.Context, environmentID, bucket string) ([]ObjectListing, error) {
	return t.store.listObjects(ctx, environmentID, bucket)
}
