// internal/server/handlers/pipeline.go

package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"brandpulse/internal/adapter/events"
	"brandpulse/internal/domain/signal"
	"brandpulse/internal/logging"
	"brandpulse/internal/service/theme"
)

const maxBatchBytes = 10 << 20

// BatchRunner runs ingestion batches and maintenance on stored posts
type BatchRunner interface {
	RunBatch(ctx context.Context, raws []signal.RawPost) (*signal.BatchReport, error)
	Reprocess(ctx context.Context, from, to time.Time) (*signal.BatchReport, error)
	PurgePost(ctx context.Context, postID string) error
}

// TopicRefresher refits the discovered-topic model on demand
type TopicRefresher interface {
	Refresh(ctx context.Context) (*signal.TopicSnapshot, error)
}

// PipelineHandler handles requests that write through the pipeline
type PipelineHandler struct {
	runner BatchRunner
	topics TopicRefresher
	logger logging.Logger
}

// NewPipelineHandler creates a new pipeline handler
func NewPipelineHandler(runner BatchRunner, topics TopicRefresher, logger logging.Logger) *PipelineHandler {
	return &PipelineHandler{
		runner: runner,
		topics: topics,
		logger: logger,
	}
}

// PostBatch runs a batch of raw posts submitted as JSON
func (h *PipelineHandler) PostBatch(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxBatchBytes)
	buf, err := io.ReadAll(body)
	if err != nil {
		respondWithError(w, h.logger, http.StatusRequestEntityTooLarge, "Batch too large", nil)
		return
	}

	raws, err := events.DecodeRawBatch(buf)
	if err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, "Invalid batch: "+err.Error(), nil)
		return
	}

	report, err := h.runner.RunBatch(r.Context(), raws)
	if err != nil {
		respondWithError(w, h.logger, http.StatusInternalServerError, "Failed to process batch", err)
		return
	}

	respondWithJSON(w, http.StatusOK, report)
}

// RefreshTopics refits the topic model now
func (h *PipelineHandler) RefreshTopics(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.topics.Refresh(r.Context())
	switch {
	case errors.Is(err, theme.ErrRefreshInProgress):
		respondWithError(w, h.logger, http.StatusConflict, "Topic refresh already in progress", nil)
		return
	case errors.Is(err, theme.ErrInsufficientCorpus):
		respondWithError(w, h.logger, http.StatusUnprocessableEntity, err.Error(), nil)
		return
	case err != nil:
		respondWithError(w, h.logger, http.StatusInternalServerError, "Failed to refresh topics", err)
		return
	}

	respondWithJSON(w, http.StatusOK, events.TopicsRefreshed{
		Version:  snapshot.Version,
		FittedAt: snapshot.FittedAt,
		Docs:     snapshot.Docs,
		Topics:   snapshot.Topics,
	})
}

// Reprocess re-scores stored posts in a date range
func (h *PipelineHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r.URL.Query())
	if err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if from.IsZero() || to.IsZero() {
		respondWithError(w, h.logger, http.StatusBadRequest, "from and to are required", nil)
		return
	}

	report, err := h.runner.Reprocess(r.Context(), from, to)
	if err != nil {
		respondWithError(w, h.logger, http.StatusInternalServerError, "Failed to reprocess posts", err)
		return
	}

	respondWithJSON(w, http.StatusOK, report)
}

// DeletePost purges a post and everything derived from it
func (h *PipelineHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, h.logger, http.StatusBadRequest, "Missing post ID", nil)
		return
	}

	if err := h.runner.PurgePost(r.Context(), id); err != nil {
		if errors.Is(err, signal.ErrNotFound) {
			respondWithError(w, h.logger, http.StatusNotFound, "Post not found", nil)
		} else {
			respondWithError(w, h.logger, http.StatusInternalServerError, "Failed to purge post", err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
