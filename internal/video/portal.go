// Package video implements clip acquisition against the external video
// portal. The portal writes clip exports asynchronously after an alarm fires,
// so acquisition is a bounded polling protocol: authenticate, watch the
// export directory until a stable video artifact appears, download it, and
// always release the session. The poll budget is the only retry mechanism
// inside one attempt; exhausting it surrenders the message back to the queue
// for redelivery.
package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clipvault/internal/external"
	"clipvault/internal/keys"
	"clipvault/internal/types"
)

const (
	loginPath    = "/api/auth/login"
	logoutPath   = "/api/auth/logout"
	listingPath  = "/api/files"
	downloadPath = "/api/download"
)

// Config tunes the acquisition polling protocol.
type Config struct {
	// PollInterval is the wait between export directory listings.
	PollInterval time.Duration

	// PollBudget bounds the total time spent waiting for a stable artifact,
	// measured from the first listing. It must stay inside the queue
	// visibility timeout.
	PollBudget time.Duration

	// UserAgent identifies this pipeline to the portal.
	UserAgent string

	// BaseURL overrides the https://{hostname} base derived from
	// credentials. Used by tests to point at a local server.
	BaseURL string
}

// PortalClient implements types.VideoAcquirer against the portal HTTP API.
// All requests go through the shared BaseClient for circuit breaking and
// retry-with-backoff on transient failures.
type PortalClient struct {
	base   *external.BaseClient
	cfg    Config
	logger *slog.Logger
	sleep  func(time.Duration)
}

// PortalOption is a functional option for configuring a PortalClient.
type PortalOption func(*PortalClient)

// WithPortalSleepFunc overrides the inter-poll sleep. Tests use this to avoid
// real delays.
func WithPortalSleepFunc(fn func(time.Duration)) PortalOption {
	return func(c *PortalClient) {
		c.sleep = fn
	}
}

// NewPortalClient creates a portal client with the given HTTP client and
// polling configuration.
func NewPortalClient(httpClient *http.Client, cfg Config, logger *slog.Logger, opts ...PortalOption) *PortalClient {
	pc := &PortalClient{
		base: external.NewBaseClient(
			httpClient,
			"video-portal",
			external.DefaultRetryPolicy(),
			cfg.UserAgent,
		),
		cfg:    cfg,
		logger: logger,
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(pc)
	}
	return pc
}

// listingEntry is one row of the export directory listing.
type listingEntry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

type listingResponse struct {
	Files []listingEntry `json:"files"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Fetch acquires the clip export at clipURL (the portal-relative event path).
// The session obtained at login is always released, even on failure, because
// the portal caps concurrent sessions per account.
func (c *PortalClient) Fetch(ctx context.Context, clipURL string, creds types.Credentials) ([]byte, error) {
	baseURL := c.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://" + creds.Hostname
	}

	token, err := c.login(ctx, baseURL, creds)
	if err != nil {
		return nil, err
	}
	defer c.logout(ctx, baseURL, token)

	deadline := time.Now().Add(c.cfg.PollBudget)

	// An artifact only counts as complete when its size holds steady across
	// two consecutive listings. The portal writes exports in place, so a
	// single observation can catch a file mid-write.
	var lastName string
	var lastSize int64 = -1

	for {
		if err := ctx.Err(); err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamAcquisitionTimeout,
				"acquisition cancelled before clip export stabilized", err)
		}

		entry, found, err := c.listVideo(ctx, baseURL, token, clipURL)
		if err != nil {
			return nil, err
		}

		if found && entry.Size > 0 && entry.Name == lastName && entry.Size == lastSize {
			return c.download(ctx, baseURL, token, clipURL, entry.Name)
		}
		if found {
			lastName, lastSize = entry.Name, entry.Size
		}

		if time.Now().Add(c.cfg.PollInterval).After(deadline) {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamAcquisitionTimeout,
				fmt.Sprintf("clip export did not stabilize within %s", c.cfg.PollBudget), nil,
				map[string]any{"event_path": clipURL})
		}
		c.sleep(c.cfg.PollInterval)
	}
}

// login authenticates and returns a bearer token.
func (c *PortalClient) login(ctx context.Context, baseURL string, creds types.Credentials) (string, error) {
	payload, err := json.Marshal(loginRequest{
		Username: creds.Username,
		Password: creds.Password.Unmask(),
	})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to marshal portal login request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+loginPath, strings.NewReader(string(payload)))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to build portal login request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", creds.APIKey.Unmask())

	resp, err := c.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", types.NewAppError(types.ErrCodeUpstreamAuthFailed,
			"portal rejected login credentials", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return "", types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("portal login returned %d", resp.StatusCode), nil)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamUnavailable,
			"portal login response is not valid JSON", err)
	}
	if lr.Token == "" {
		return "", types.NewAppError(types.ErrCodeUpstreamAuthFailed,
			"portal login response carried no session token", nil)
	}
	return lr.Token, nil
}

// logout releases the portal session. Best effort: failures are logged, never
// propagated, because the clip outcome is already decided by the time logout
// runs.
func (c *PortalClient) logout(ctx context.Context, baseURL, token string) {
	// The parent context may already be cancelled; logout still has to run.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+logoutPath, nil)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to build portal logout request", "error", err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.base.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "portal logout failed", "error", err)
		return
	}
	resp.Body.Close()
}

// listVideo fetches the export directory listing and returns the completed
// video entry, if any. Hidden files and in-progress markers are skipped.
func (c *PortalClient) listVideo(ctx context.Context, baseURL, token, eventPath string) (listingEntry, bool, error) {
	u := baseURL + listingPath + "?path=" + url.QueryEscape(eventPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return listingEntry{}, false, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to build portal listing request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.base.Do(req)
	if err != nil {
		return listingEntry{}, false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return listingEntry{}, false, types.NewAppError(types.ErrCodeUpstreamAuthFailed,
			"portal session rejected during listing", nil)
	case resp.StatusCode == http.StatusNotFound:
		// The export directory appears asynchronously; absence is just
		// "not ready yet".
		return listingEntry{}, false, nil
	case resp.StatusCode != http.StatusOK:
		return listingEntry{}, false, types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("portal listing returned %d", resp.StatusCode), nil)
	}

	var listing listingResponse
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return listingEntry{}, false, types.NewAppError(types.ErrCodeUpstreamUnavailable,
			"portal listing response is not valid JSON", err)
	}

	for _, entry := range listing.Files {
		if entry.Type != "" && entry.Type != "file" {
			continue
		}
		name := strings.ToLower(entry.Name)
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") || strings.HasSuffix(name, ".part") {
			continue
		}
		if strings.HasSuffix(name, keys.VideoExt) {
			return entry, true, nil
		}
	}
	return listingEntry{}, false, nil
}

// download retrieves the completed clip bytes.
func (c *PortalClient) download(ctx context.Context, baseURL, token, eventPath, name string) ([]byte, error) {
	u := baseURL + downloadPath + "?path=" + url.QueryEscape(eventPath+"/"+name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to build portal download request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("portal download returned %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable,
			"failed to read clip download body", err)
	}
	if len(body) == 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable,
			"portal returned an empty clip download", nil)
	}
	return body, nil
}

// IsAuthFailure reports whether err is a portal authentication rejection,
// which should invalidate cached credentials before the next attempt.
func IsAuthFailure(err error) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == types.ErrCodeUpstreamAuthFailed
}

// Compile-time assertion that PortalClient implements types.VideoAcquirer.
var _ types.VideoAcquirer = (*PortalClient)(nil)
