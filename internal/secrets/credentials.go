// Package secrets supplies video portal credentials from AWS Secrets Manager
// with process-local caching. Cold starts pay one GetSecretValue round trip;
// warm invocations reuse the cached value until the refresh interval elapses
// or a caller invalidates the cache after an authentication failure.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"clipvault/internal/types"
)

// ManagerClient is the subset of the Secrets Manager SDK client used by the
// credential source. The concrete *secretsmanager.Client satisfies it.
type ManagerClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// CredentialSource implements types.CredentialSource on Secrets Manager. The
// secret value is a JSON document with hostname, username, password, and
// apiKey fields.
type CredentialSource struct {
	client   ManagerClient
	secretID string
	ttl      time.Duration
	clock    types.Clock
	logger   *slog.Logger

	mu        sync.Mutex
	cached    types.Credentials
	fetchedAt time.Time
	valid     bool
}

// NewCredentialSource creates a source reading the given secret ID. A ttl of
// zero caches for the lifetime of the process.
func NewCredentialSource(client ManagerClient, secretID string, ttl time.Duration, logger *slog.Logger) *CredentialSource {
	return &CredentialSource{
		client:   client,
		secretID: secretID,
		ttl:      ttl,
		clock:    types.RealClock{},
		logger:   logger,
	}
}

// newCredentialSourceWithClock injects a clock for cache expiry tests.
func newCredentialSourceWithClock(client ManagerClient, secretID string, ttl time.Duration, clock types.Clock, logger *slog.Logger) *CredentialSource {
	src := NewCredentialSource(client, secretID, ttl, logger)
	src.clock = clock
	return src
}

// Credentials returns the cached credentials, fetching from Secrets Manager
// when the cache is empty or stale. Concurrent callers share one fetch.
func (s *CredentialSource) Credentials(ctx context.Context) (types.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.valid && !s.stale() {
		return s.cached, nil
	}

	creds, err := s.fetch(ctx)
	if err != nil {
		// A stale cached value beats a hard failure; the portal rejects
		// rotated credentials explicitly, which invalidates the cache.
		if s.valid {
			s.logger.WarnContext(ctx, "credential refresh failed, reusing cached value",
				"secret_id", s.secretID, "error", err)
			return s.cached, nil
		}
		return types.Credentials{}, err
	}

	s.cached = creds
	s.fetchedAt = s.clock.Now()
	s.valid = true
	return creds, nil
}

// Invalidate discards the cached value so the next Credentials call
// re-fetches. Called after the portal rejects a login.
func (s *CredentialSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.valid = false
}

func (s *CredentialSource) stale() bool {
	if s.ttl <= 0 {
		return false
	}
	return s.clock.Now().Sub(s.fetchedAt) >= s.ttl
}

func (s *CredentialSource) fetch(ctx context.Context) (types.Credentials, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretID),
	})
	if err != nil {
		return types.Credentials{}, types.NewAppError(types.ErrCodeConfigMissing,
			fmt.Sprintf("failed to fetch video portal credentials from %s", s.secretID), err)
	}
	if out.SecretString == nil {
		return types.Credentials{}, types.NewAppError(types.ErrCodeConfigMissing,
			fmt.Sprintf("secret %s has no string value", s.secretID), nil)
	}

	var creds types.Credentials
	if err := json.Unmarshal([]byte(*out.SecretString), &creds); err != nil {
		return types.Credentials{}, types.NewAppError(types.ErrCodeConfigMissing,
			fmt.Sprintf("secret %s is not valid credential JSON", s.secretID), err)
	}
	if creds.Hostname == "" || creds.Username == "" {
		return types.Credentials{}, types.NewAppError(types.ErrCodeConfigMissing,
			fmt.Sprintf("secret %s is missing hostname or username", s.secretID), nil)
	}

	s.logger.InfoContext(ctx, "video portal credentials fetched",
		"secret_id", s.secretID,
		"hostname", creds.Hostname,
	)
	return creds, nil
}

// Compile-time assertion that CredentialSource implements types.CredentialSource.
var _ types.CredentialSource = (*CredentialSource)(nil)
