// internal/server/handlers/insights.go

package handlers

import (
	"net/http"

	"brandpulse/internal/domain/signal"
	"brandpulse/internal/logging"
)

// InsightsHandler serves the read-only dashboard queries
type InsightsHandler struct {
	reader signal.Reader
	logger logging.Logger
}

// NewInsightsHandler creates a new insights handler
func NewInsightsHandler(reader signal.Reader, logger logging.Logger) *InsightsHandler {
	return &InsightsHandler{
		reader: reader,
		logger: logger,
	}
}

// GetPosts returns posts with their sentiment
func (h *InsightsHandler) GetPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, err := parseRange(q)
	if err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, err.Error(), nil)
		return
	}
	limit, err := parseLimit(q)
	if err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, err.Error(), nil)
		return
	}

	label := signal.Label(q.Get("label"))
	switch label {
	case "", signal.LabelPositive, signal.LabelNeutral, signal.LabelNegative:
	default:
		respondWithError(w, h.logger, http.StatusBadRequest, "Invalid label", nil)
		return
	}

	posts, err := h.reader.FindPosts(r.Context(), signal.PostFilter{
		From:       from,
		To:         to,
		Platform:   q.Get("platform"),
		ThemeID:    q.Get("theme"),
		Label:      label,
		Competitor: q.Get("competitor"),
		Limit:      limit,
	})
	if err != nil {
		respondWithError(w, h.logger, http.StatusInternalServerError, "Failed to get posts", err)
		return
	}
	if posts == nil {
		posts = []signal.PostView{}
	}

	respondWithJSON(w, http.StatusOK, posts)
}

// GetTrends returns the sentiment trend series for one platform/theme
// combination. Omitted filters select the "all" series.
func (h *InsightsHandler) GetTrends(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, err := parseRange(q)
	if err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, err.Error(), nil)
		return
	}

	trends, err := h.reader.FindTrends(r.Context(), signal.TrendFilter{
		From:     from,
		To:       to,
		Platform: q.Get("platform"),
		ThemeID:  q.Get("theme"),
	})
	if err != nil {
		respondWithError(w, h.logger, http.StatusInternalServerError, "Failed to get trends", err)
		return
	}
	if trends == nil {
		trends = []signal.SentimentTrend{}
	}

	respondWithJSON(w, http.StatusOK, trends)
}

// GetThemes returns predefined and discovered themes
func (h *InsightsHandler) GetThemes(w http.ResponseWriter, r *http.Request) {
	themes, err := h.reader.ListThemes(r.Context())
	if err != nil {
		respondWithError(w, h.logger, http.StatusInternalServerError, "Failed to get themes", err)
		return
	}
	if themes == nil {
		themes = []signal.Theme{}
	}

	respondWithJSON(w, http.StatusOK, themes)
}

// GetMentions returns competitor mentions
func (h *InsightsHandler) GetMentions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, err := parseRange(q)
	if err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, err.Error(), nil)
		return
	}

	mentions, err := h.reader.FindMentions(r.Context(), signal.MentionFilter{
		From:       from,
		To:         to,
		Competitor: q.Get("competitor"),
		Platform:   q.Get("platform"),
	})
	if err != nil {
		respondWithError(w, h.logger, http.StatusInternalServerError, "Failed to get competitor mentions", err)
		return
	}
	if mentions == nil {
		mentions = []signal.CompetitorMention{}
	}

	respondWithJSON(w, http.StatusOK, mentions)
}

// GetSummary returns the dashboard overview for a date range
func (h *InsightsHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r.URL.Query())
	if err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, err.Error(), nil)
		return
	}

	summary, err := h.reader.Summarize(r.Context(), from, to)
	if err != nil {
		respondWithError(w, h.logger, http.StatusInternalServerError, "Failed to build summary", err)
		return
	}

	respondWithJSON(w, http.StatusOK, summary)
}
