package api

import (
	"io"
	"net/http"

	"clipvault/internal/types"
)

// HandleAlarmEvent ingests one alarm webhook. A 200 means "queued for
// delayed processing", never "artifacts stored".
func (s *Server) HandleAlarmEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"failed to read request body", err))
		return
	}

	ack, err := s.Ingestion.Ingest(r.Context(), body)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: ack})
}

// HandleVideoByEventID resolves the clip for one event by its identifier.
func (s *Server) HandleVideoByEventID(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("eventId")
	if eventID == "" {
		Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			"eventId query parameter is required", nil,
			map[string]any{"field": "eventId"}))
		return
	}

	result, err := s.Finder.VideoByEventID(r.Context(), eventID)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: result})
}

// HandleLatestVideo resolves the most recently captured clip.
func (s *Server) HandleLatestVideo(w http.ResponseWriter, r *http.Request) {
	result, err := s.Finder.LatestVideo(r.Context())
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: result})
}

// HandleHealth reports liveness with build metadata. It deliberately touches
// no dependencies; a degraded portal must not fail the health check.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, APIResponse{Data: map[string]string{
		"status":      "ok",
		"service":     s.Config.Service,
		"environment": s.Config.Environment,
		"version":     s.Config.Build.Version,
		"commit":      s.Config.Build.Commit,
	}})
}
