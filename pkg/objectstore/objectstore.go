// Package objectstore implements the Object Store Adapter (spec §4.5
// managed-backed flow, C3): it manages per-environment namespaces (buckets)
// against an S3-compatible backend, and exposes object CRUD for the S3-family
// emulation translator (spec §4.6 / §8 P8 round-trip property).
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/afterdarksys/mockfactory/pkg/serviceinstance"
)

// Config configures the S3-compatible backend MockFactory's managed-backed
// object storage runs against.
type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// Client drives namespace (bucket) and object operations against the
// configured S3-compatible endpoint.
type Client struct {
	s3 *s3.Client
}

// New builds a Client from Config, overriding the default resolver with a
// static endpoint when one is set (for MinIO or other local S3-compatible
// backends rather than AWS itself).
func New(ctx context.Context, cfg Config) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		awsconfig.WithAPIOptions([]func(*middleware.Stack) error{tagUserAgent}),
	)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &Client{s3: client}, nil
}

// tagUserAgent appends a product token identifying requests against the
// backing S3-compatible store as coming from MockFactory's object store
// adapter rather than a generic SDK client.
func tagUserAgent(stack *middleware.Stack) error {
	return stack.Build.Add(middleware.BuildMiddlewareFunc("MockFactoryUserAgent", func(ctx context.Context, in middleware.BuildInput, next middleware.BuildHandler) (middleware.BuildOutput, middleware.Metadata, error) {
		if req, ok := in.Request.(*smithyhttp.Request); ok {
			req.Header.Add("User-Agent", "mockfactory-objectstore/1.0")
		}
		return next.HandleBuild(ctx, in)
	}), middleware.After)
}

var _ serviceinstance.ObjectStoreNamespaces = (*Client)(nil)

// CreateNamespace creates the bucket backing a managed service instance.
func (c *Client) CreateNamespace(ctx context.Context, name string) error {
	_, err := c.s3.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)})
	var alreadyOwned *types.BucketAlreadyOwnedByYou
	if err != nil && !errors.As(err, &alreadyOwned) {
		return fmt.Errorf("creating namespace %s: %w", name, err)
	}
	return nil
}

// DeleteNamespace empties and deletes the bucket backing a managed service
// instance (spec §4.5 destroy flow).
func (c *Client) DeleteNamespace(ctx context.Context, name string) error {
	if err := c.emptyBucket(ctx, name); err != nil {
		return err
	}
	_, err := c.s3.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)})
	if err != nil {
		var notFound *types.NoSuchBucket
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("deleting namespace %s: %w", name, err)
	}
	return nil
}

func (c *Client) emptyBucket(ctx context.Context, name string) error {
	paginator := s3.NewListObjectsV2Paginator(c.s3, &s3.ListObjectsV2Input{Bucket: aws.String(name)})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			var notFound *types.NoSuchBucket
			if errors.As(err, &notFound) {
				return nil
			}
			return fmt.Errorf("listing objects in %s: %w", name, err)
		}
		for _, obj := range page.Contents {
			if _, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(name), Key: obj.Key}); err != nil {
				return fmt.Errorf("deleting object %s/%s: %w", name, *obj.Key, err)
			}
		}
	}
	return nil
}

// PutObject writes an object's body to a namespace, for the S3-family
// translator's PutObject operation.
func (c *Client) PutObject(ctx context.Context, namespace, key string, body []byte) error {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(namespace),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("putting object %s/%s: %w", namespace, key, err)
	}
	return nil
}

// GetObject reads an object's body back, for the S3-family translator's
// GetObject operation.
func (c *Client) GetObject(ctx context.Context, namespace, key string) ([]byte, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(namespace), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("getting object %s/%s: %w", namespace, key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object %s/%s: %w", namespace, key, err)
	}
	return data, nil
}

// ObjectSummary is one entry returned by ListObjects.
type ObjectSummary struct {
	Key  string
	Size int64
}

// ListObjects lists every object under a namespace, for the S3-family
// translator's ListObjectsV2 operation.
func (c *Client) ListObjects(ctx context.Context, namespace string) ([]ObjectSummary, error) {
	var items []ObjectSummary
	paginator := s3.NewListObjectsV2Paginator(c.s3, &s3.ListObjectsV2Input{Bucket: aws.String(namespace)})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing objects in %s: %w", namespace, err)
		}
		for _, obj := range page.Contents {
			items = append(items, ObjectSummary{Key: *obj.Key, Size: aws.ToInt64(obj.Size)})
		}
	}
	return items, nil
}

// DeleteObject removes a single object, for the S3-family translator's
// DeleteObject operation.
func (c *Client) DeleteObject(ctx context.Context, namespace, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(namespace), Key: aws.String(key)})
	if err != nil {
		return fmt.Errorf("deleting object %s/%s: %w", namespace, key, err)
	}
	return nil
}
