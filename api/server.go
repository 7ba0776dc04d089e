package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/DeafMist/diet-digest/backend/internal/models"
	"github.com/DeafMist/diet-digest/backend/internal/repository"
	"github.com/DeafMist/diet-digest/backend/internal/store"
)

type server struct {
	log    *slog.Logger
	reader repository.Reader
	// health reports whether the store answers.
	health func(ctx context.Context) error
}

type errorResponse struct {
	Error string `json:"error"`
	ID    string `json:"id,omitempty"`
}

type listResponse struct {
	Items []models.ArticleSummary `json:"items"`
}

type suggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

func (s *server) routes(limiter *clientLimiter, timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if timeout > 0 {
		r.Use(middleware.Timeout(timeout))
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.middleware)
		}
		r.Get("/headlines", s.handleHeadlines)
		r.Get("/articles", s.handleSearch)
		r.Get("/articles/{id}", s.handleArticle)
		r.Get("/suggestions", s.handleSuggestions)
	})
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleHeadlines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := repository.HeadlineParams{
		Limit:  intParam(q.Get("limit")),
		Sort:   models.ParseSort(strings.TrimSpace(q.Get("sort"))),
		Offset: intParam(q.Get("offset")),
	}

	out, err := s.reader.Headlines(r.Context(), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	items, err := s.reader.SearchArticles(r.Context(), parseFilters(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []models.ArticleSummary{}
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items})
}

func (s *server) handleArticle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	article, err := s.reader.Article(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if article == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "article not found"})
		return
	}
	writeJSON(w, http.StatusOK, article)
}

func (s *server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := s.reader.Suggestions(r.Context(), q.Get("q"), intParam(q.Get("limit")), parseFilters(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if out == nil {
		out = []string{}
	}
	writeJSON(w, http.StatusOK, suggestionsResponse{Suggestions: out})
}

// writeError maps storage failures to 503/504 and everything else to 500.
// The response carries an id that is also logged.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, store.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}

	id := uuid.NewString()
	s.log.Error("request failed",
		slog.Any("err", err),
		slog.String("error_id", id),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
	)
	writeJSON(w, status, errorResponse{Error: http.StatusText(status), ID: id})
}

// parseFilters reads search filters from the query string. Words come from
// "words" as a comma separated list, or from the whitespace separated "q".
func parseFilters(r *http.Request) models.SearchFilters {
	q := r.URL.Query()
	words := parseCSV(q.Get("words"))
	if len(words) == 0 && r.URL.Path != "/api/suggestions" {
		words = strings.Fields(q.Get("q"))
	}
	return models.SearchFilters{
		Words:      words,
		Categories: parseCSV(q.Get("categories")),
		Houses:     parseCSV(q.Get("houses")),
		Meetings:   parseCSV(q.Get("meetings")),
		DateStart:  strings.TrimSpace(q.Get("dateStart")),
		DateEnd:    strings.TrimSpace(q.Get("dateEnd")),
		Sort:       models.ParseSort(strings.TrimSpace(q.Get("sort"))),
		Limit:      intParam(q.Get("limit")),
	}
}

func parseCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// intParam returns 0 for missing or malformed values, which the repository
// treats as "use the default".
func intParam(raw string) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
