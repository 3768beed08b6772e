package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"clipvault/internal/types"
)

// --- Mock S3 Client ---

type mockS3 struct {
	putErr  error
	getErr  error
	getBody string
	headErr error

	// pages scripts successive ListObjectsV2 responses.
	pages     []*s3.ListObjectsV2Output
	listCalls int
	listErr   error
}

func (m *mockS3) PutObject(_ context.Context, _ *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) GetObject(_ context.Context, _ *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(m.getBody))}, nil
}

func (m *mockS3) HeadObject(_ context.Context, _ *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if m.headErr != nil {
		return nil, m.headErr
	}
	return &s3.HeadObjectOutput{}, nil
}

func (m *mockS3) ListObjectsV2(_ context.Context, _ *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := m.pages[m.listCalls]
	m.listCalls++
	return out, nil
}

type mockPresigner struct {
	url string
	err error
}

func (m *mockPresigner) PresignGetObject(_ context.Context, _ *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &v4.PresignedHTTPRequest{URL: m.url}, nil
}

func newTestStore(client S3API, presigner Presigner) *Store {
	return NewWithClients(client, presigner, "clipvault-test", slog.Default())
}

// --- Tests ---

func TestPut_MapsFailureToStorageWrite(t *testing.T) {
	store := newTestStore(&mockS3{putErr: errors.New("denied")}, &mockPresigner{})

	err := store.Put(context.Background(), "2023-11-14/evt1_AA:BB_1700000000000.json", []byte("{}"), "application/json")

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeStorageWrite {
		t.Fatalf("expected %s, got %v", types.ErrCodeStorageWrite, err)
	}
}

func TestGet_ReturnsBody(t *testing.T) {
	store := newTestStore(&mockS3{getBody: `{"name":"motion"}`}, &mockPresigner{})

	body, err := store.Get(context.Background(), "2023-11-14/evt1_AA:BB_1700000000000.json")
	if err != nil {
		t.Fatalf("Get returned unexpected error: %v", err)
	}
	if string(body) != `{"name":"motion"}` {
		t.Errorf("body = %q", body)
	}
}

func TestGet_NoSuchKeyMapsToNotFound(t *testing.T) {
	store := newTestStore(&mockS3{getErr: &s3types.NoSuchKey{}}, &mockPresigner{})

	_, err := store.Get(context.Background(), "2023-11-14/missing.json")

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeNotFoundEvent {
		t.Fatalf("expected %s, got %v", types.ErrCodeNotFoundEvent, err)
	}
}

func TestExists_NotFoundIsFalseNotError(t *testing.T) {
	store := newTestStore(&mockS3{headErr: &s3types.NotFound{}}, &mockPresigner{})

	ok, err := store.Exists(context.Background(), "2023-11-14/missing.mp4")
	if err != nil {
		t.Fatalf("Exists returned unexpected error: %v", err)
	}
	if ok {
		t.Error("Exists = true for missing object")
	}
}

func TestListKeys_FollowsContinuationTokens(t *testing.T) {
	mock := &mockS3{
		pages: []*s3.ListObjectsV2Output{
			{
				Contents: []s3types.Object{
					{Key: aws.String("2023-11-14/a.json")},
					{Key: aws.String("2023-11-14/a.mp4")},
				},
				IsTruncated:           aws.Bool(true),
				NextContinuationToken: aws.String("tok"),
			},
			{
				Contents:    []s3types.Object{{Key: aws.String("2023-11-14/b.json")}},
				IsTruncated: aws.Bool(false),
			},
		},
	}
	store := newTestStore(mock, &mockPresigner{})

	keys, err := store.ListKeys(context.Background(), "2023-11-14/")
	if err != nil {
		t.Fatalf("ListKeys returned unexpected error: %v", err)
	}
	if len(keys) != 3 {
		t.Errorf("keys = %v, want 3 entries", keys)
	}
	if mock.listCalls != 2 {
		t.Errorf("ListObjectsV2 called %d times, want 2", mock.listCalls)
	}
}

func TestPresignGet_ReturnsURL(t *testing.T) {
	store := newTestStore(&mockS3{}, &mockPresigner{url: "https://bucket.s3.amazonaws.com/key?sig=abc"})

	url, err := store.PresignGet(context.Background(), "2023-11-14/a.mp4", time.Hour)
	if err != nil {
		t.Fatalf("PresignGet returned unexpected error: %v", err)
	}
	if url != "https://bucket.s3.amazonaws.com/key?sig=abc" {
		t.Errorf("url = %q", url)
	}
}
