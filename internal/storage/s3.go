// Package storage implements the day-partitioned object store on Amazon S3.
// It is the single durable surface shared by the ingestion path (metadata and
// clip writes) and the query path (prefix listings, existence checks, and
// presigned downloads). Per-key semantics are last-writer-wins; the pipeline
// relies on deterministic keys rather than locking for idempotency.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"clipvault/internal/types"
)

// S3API is the subset of the S3 client used by the store. The concrete
// *s3.Client satisfies it; tests inject a mock.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Presigner is the subset of the S3 presign client used by the store.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store implements types.ObjectStore on a single S3 bucket.
type Store struct {
	client    S3API
	presigner Presigner
	bucket    string
	logger    *slog.Logger
}

// New creates a Store for the given bucket using a real S3 client and a
// presign client derived from it.
func New(client *s3.Client, bucket string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
		logger:    logger,
	}
}

// NewWithClients creates a Store with injected API and presign clients.
// Used by tests.
func NewWithClients(client S3API, presigner Presigner, bucket string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		presigner: presigner,
		bucket:    bucket,
		logger:    logger,
	}
}

// Put stores body under key, overwriting any existing object.
func (s *Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeStorageWrite,
			fmt.Sprintf("failed to store object %s", key), err)
	}

	s.logger.InfoContext(ctx, "object stored",
		"bucket", s.bucket,
		"key", key,
		"bytes", len(body),
		"content_type", contentType,
	)
	return nil
}

// Get returns the full object body.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, types.NewAppError(types.ErrCodeNotFoundEvent,
				fmt.Sprintf("object %s does not exist", key), err)
		}
		return nil, types.NewAppError(types.ErrCodeStorageRead,
			fmt.Sprintf("failed to read object %s", key), err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeStorageRead,
			fmt.Sprintf("failed to read body of object %s", key), err)
	}
	return body, nil
}

// Exists performs a HEAD request without transferring the body.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, types.NewAppError(types.ErrCodeStorageRead,
			fmt.Sprintf("failed to check existence of object %s", key), err)
	}
	return true, nil
}

// ListKeys returns every object key under the prefix, following continuation
// tokens. Day folders hold at most a few hundred artifacts, so the full
// listing is returned as one slice.
func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var continuation *string

	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeStorageList,
				fmt.Sprintf("failed to list objects under %s", prefix), err)
		}

		for _, obj := range out.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		continuation = out.NextContinuationToken
	}

	return keys, nil
}

// PresignGet returns a time-limited credential-free GET URL for one key.
// Responses to query clients carry these URLs instead of raw bytes because
// API-gateway-style fronting caps response payload size.
func (s *Store) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeStorageRead,
			fmt.Sprintf("failed to presign download for %s", key), err)
	}
	return req.URL, nil
}

// Compile-time assertion that Store implements types.ObjectStore.
var _ types.ObjectStore = (*Store)(nil)
