// Package finder implements the query side of the pipeline: backward
// day-folder scans that resolve "the most recent clip" and "the clip for this
// event" into presigned download URLs. Scans walk from today toward the past
// in the scheme's canonical timezone, one listing per day folder, stopping at
// the first hit.
package finder

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"clipvault/internal/keys"
	"clipvault/internal/types"
)

// Result is the resolved answer for either query.
type Result struct {
	DownloadURL string          `json:"downloadUrl"`
	Filename    string          `json:"filename"`
	VideoKey    string          `json:"videoKey"`
	EventKey    string          `json:"eventKey,omitempty"`
	EventID     string          `json:"eventId,omitempty"`
	Timestamp   int64           `json:"timestamp,omitempty"`
	EventDate   string          `json:"eventDate"`
	ExpiresAt   time.Time       `json:"expiresAt"`
	EventData   json.RawMessage `json:"eventData,omitempty"`
}

// Finder answers both video queries against the object store.
type Finder struct {
	store  types.ObjectStore
	scheme *keys.Scheme

	// latestHorizon and eventHorizon bound the backward scans, in days
	// including today.
	latestHorizon int
	eventHorizon  int

	signedURLTTL time.Duration
	metrics      types.PipelineMetrics
	clock        types.Clock
	logger       *slog.Logger
}

// Option is a functional option for configuring a Finder.
type Option func(*Finder)

// WithClock injects a clock. Tests use it to pin "today".
func WithClock(clock types.Clock) Option {
	return func(f *Finder) {
		f.clock = clock
	}
}

// New creates a Finder. latestHorizon and eventHorizon are the scan depths in
// days for the latest-video and event-by-id queries respectively.
func New(
	store types.ObjectStore,
	scheme *keys.Scheme,
	latestHorizon, eventHorizon int,
	signedURLTTL time.Duration,
	metrics types.PipelineMetrics,
	logger *slog.Logger,
	opts ...Option,
) *Finder {
	f := &Finder{
		store:         store,
		scheme:        scheme,
		latestHorizon: latestHorizon,
		eventHorizon:  eventHorizon,
		signedURLTTL:  signedURLTTL,
		metrics:       metrics,
		clock:         types.RealClock{},
		logger:        logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// LatestVideo resolves the most recently captured clip within the horizon.
// Recency is decided by the timestamp embedded in the key, not by storage
// write time, so late reprocessing never reorders results.
func (f *Finder) LatestVideo(ctx context.Context) (*Result, error) {
	now := f.clock.Now()

	for day := 0; day < f.latestHorizon; day++ {
		folder := f.scheme.DayFolderAt(now.AddDate(0, 0, -day))
		listed, err := f.store.ListKeys(ctx, folder+"/")
		if err != nil {
			return nil, err
		}

		var bestKey string
		var bestTS int64 = -1
		for _, key := range listed {
			if !strings.HasSuffix(key, keys.VideoExt) {
				continue
			}
			ts, ok := keys.Timestamp(key)
			if !ok {
				f.logger.WarnContext(ctx, "skipping off-scheme key during scan", "key", key)
				continue
			}
			if ts > bestTS {
				bestTS = ts
				bestKey = key
			}
		}

		if bestKey == "" {
			continue
		}

		f.metrics.RecordScanDepth(ctx, "latest", day+1)
		return f.resolve(ctx, bestKey, bestTS, folder)
	}

	f.metrics.RecordScanDepth(ctx, "latest", f.latestHorizon)
	return nil, types.NewAppError(types.ErrCodeNotFoundRecentVideo,
		"no video artifacts found within the scan horizon", nil)
}

// VideoByEventID resolves the clip for one event. The event's metadata proves
// the event happened; a missing video object is then "event exists but its
// clip is unavailable", which is a different answer from "no such event".
func (f *Finder) VideoByEventID(ctx context.Context, eventID string) (*Result, error) {
	now := f.clock.Now()

	for day := 0; day < f.eventHorizon; day++ {
		folder := f.scheme.DayFolderAt(now.AddDate(0, 0, -day))
		listed, err := f.store.ListKeys(ctx, keys.EventPrefix(folder, eventID))
		if err != nil {
			return nil, err
		}

		var metadataKey string
		for _, key := range listed {
			if strings.HasSuffix(key, keys.MetadataExt) {
				metadataKey = key
				break
			}
		}
		if metadataKey == "" {
			continue
		}

		f.metrics.RecordScanDepth(ctx, "event", day+1)

		videoKey := keys.VideoKeyFor(metadataKey)
		exists, err := f.store.Exists(ctx, videoKey)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeNotFoundVideoUnavailable,
				"event exists but its video is unavailable", nil,
				map[string]any{"eventId": eventID, "eventKey": metadataKey})
		}

		ts, _ := keys.Timestamp(videoKey)
		result, err := f.resolve(ctx, videoKey, ts, folder)
		if err != nil {
			return nil, err
		}
		result.EventID = eventID
		return result, nil
	}

	f.metrics.RecordScanDepth(ctx, "event", f.eventHorizon)
	return nil, types.NewAppErrorWithDetails(types.ErrCodeNotFoundEvent,
		"no event found within the scan horizon", nil,
		map[string]any{"eventId": eventID})
}

// resolve presigns the video and attaches its companion metadata. Metadata
// retrieval is best effort; a video without readable metadata is still
// downloadable.
func (f *Finder) resolve(ctx context.Context, videoKey string, ts int64, folder string) (*Result, error) {
	url, err := f.store.PresignGet(ctx, videoKey, f.signedURLTTL)
	if err != nil {
		return nil, err
	}

	result := &Result{
		DownloadURL: url,
		Filename:    keys.Filename(videoKey),
		VideoKey:    videoKey,
		Timestamp:   ts,
		EventDate:   folder,
		ExpiresAt:   f.clock.Now().Add(f.signedURLTTL),
	}

	metadataKey := keys.MetadataKeyFor(videoKey)
	body, err := f.store.Get(ctx, metadataKey)
	if err != nil {
		f.logger.WarnContext(ctx, "video has no readable metadata companion",
			"video_key", videoKey, "error", err)
		return result, nil
	}
	result.EventKey = metadataKey
	result.EventData = json.RawMessage(body)
	return result, nil
}
