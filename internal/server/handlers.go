package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/samzong/searchbeam/internal/domain"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type errorBody struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

type historyRecord struct {
	domain.SearchRecord
	DurationMs int64 `json:"durationMs"`
}

func writeJson(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJson(w, code, errorBody{
		StatusCode: code,
		Error:      http.StatusText(code),
		Message:    message,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJson(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := domain.SearchRequest{
		Platform:  strings.TrimSpace(q.Get("platform")),
		Query:     q.Get("q"),
		PageToken: q.Get("pageToken"),
	}

	if req.Platform == "" {
		writeError(w, http.StatusBadRequest, "querystring must have required property 'platform'")
		return
	}
	if !q.Has("q") {
		writeError(w, http.StatusBadRequest, "querystring must have required property 'q'")
		return
	}

	if raw := q.Get("maxResults"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "querystring/maxResults must be number")
			return
		}
		req.MaxResults = n
	}

	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	resp := s.search.Search(r.Context(), req)
	if resp.Failed() {
		writeError(w, http.StatusBadRequest, resp.Error)
		return
	}

	writeJson(w, http.StatusOK, resp)
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyQuery):
		return "Query must not be empty"
	case errors.Is(err, domain.ErrQueryTooLong):
		return "Query is too long, max " + strconv.Itoa(domain.MaxQueryLength) + " characters"
	case errors.Is(err, domain.ErrEmptyPlatform):
		return "querystring must have required property 'platform'"
	default:
		return err.Error()
	}
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	writeJson(w, http.StatusOK, map[string]any{
		"platforms": s.search.KeyStats(),
	})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	n := s.cache.Len()
	s.cache.Clear()

	s.logger.Info("cache cleared", zap.Int("entries", n))
	writeJson(w, http.StatusOK, map[string]int{"cleared": n})
}

func (s *Server) handleDeleteCacheEntry(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "querystring must have required property 'q'")
		return
	}
	pageToken := r.URL.Query().Get("pageToken")

	_, existed := s.cache.Get(platform, query, pageToken)
	s.cache.Delete(platform, query, pageToken)

	writeJson(w, http.StatusOK, map[string]bool{"deleted": existed})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "Search history is disabled")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "querystring/limit must be a positive number")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("load search history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Server Internal Error")
		return
	}

	out := make([]historyRecord, len(records))
	for i, rec := range records {
		out[i] = historyRecord{SearchRecord: rec, DurationMs: rec.Duration.Milliseconds()}
	}

	// totals - все записи по каждой известной платформе, без учета limit
	totals := make(map[string]int)
	for _, platform := range s.search.Platforms() {
		n, err := s.history.CountByPlatform(r.Context(), platform)
		if err != nil {
			s.logger.Error("count search history", zap.String("platform", platform), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Server Internal Error")
			return
		}
		totals[platform] = n
	}

	writeJson(w, http.StatusOK, map[string]any{"records": out, "totals": totals})
}
