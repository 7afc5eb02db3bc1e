// Package web serves the published calendar: the encoded .ics feed, an
// occurrence preview API, health and Prometheus metrics.
package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"evcal/internal/build"
	"evcal/internal/config"
	"evcal/internal/ics"
	appLog "evcal/internal/log"
	"evcal/internal/metrics"
	"evcal/internal/model"
)

// Server publishes the calendar built from the configured definition file.
// Refresh rebuilds the cached document and encoded bytes; handlers only
// ever read the cache, so requests never touch the filesystem.
type Server struct {
	cfg     *config.Config
	builder *build.Builder
	mux     *http.ServeMux

	mu        sync.RWMutex
	doc       *model.CalendarDocument
	encoded   []byte
	updatedAt time.Time
}

// NewServer constructs a Server. Call Refresh before serving so the first
// request does not see an empty calendar.
func NewServer(cfg *config.Config) *Server {
	s := &Server{
		cfg:     cfg,
		builder: build.New(),
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/calendar.ics", s.handleCalendar)
	s.mux.HandleFunc("/api/occurrences", s.handleOccurrences)
	s.mux.Handle("/metrics", promhttp.Handler())
	return s
}

// Refresh rebuilds the published calendar from the definition file.
func (s *Server) Refresh() error {
	doc, err := s.builder.LoadFile(s.cfg.DefinitionFile)
	if err == nil {
		if s.cfg.ProductID != "" {
			doc.ProductID = s.cfg.ProductID
		}
		var data []byte
		data, err = ics.Encode(doc)
		if err == nil {
			s.mu.Lock()
			s.doc = doc
			s.encoded = data
			s.updatedAt = time.Now()
			s.mu.Unlock()

			metrics.RefreshTotal.WithLabelValues("ok").Inc()
			metrics.LastRefreshTS.SetToCurrentTime()
			metrics.CalendarEvents.Set(float64(len(doc.Events)))
			appLog.Info("calendar refreshed", "file", s.cfg.DefinitionFile, "events", len(doc.Events), "bytes", len(data))
			return nil
		}
	}
	metrics.RefreshTotal.WithLabelValues("error").Inc()
	appLog.Error("calendar refresh failed", err, "file", s.cfg.DefinitionFile)
	return err
}

// Handler returns the server's http.Handler with metrics instrumentation
// and, when configured, basic auth.
func (s *Server) Handler() http.Handler {
	h := s.instrument(s.mux)
	if s.authEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuth(h)
	}
	return h
}

func (s *Server) authEnabled() bool {
	ba := s.cfg.BasicAuth
	return ba != nil && ba.Username != "" && ba.PasswordHash != ""
}

// basicAuth guards everything except /health and /metrics.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	ba := s.cfg.BasicAuth
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if ok && user == ba.Username {
			if match, err := VerifyPassword(pass, ba.PasswordHash); err == nil && match {
				next.ServeHTTP(w, r)
				return
			}
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="evcal", charset="UTF-8"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

// statusRecorder captures the response code for the request counter.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.code = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.RequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(rec.code)).Inc()
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleCalendar serves the encoded feed inline, the way subscription
// clients expect it (no attachment disposition).
func (s *Server) handleCalendar(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	data := s.encoded
	s.mu.RUnlock()

	if len(data) == 0 {
		writeError(w, http.StatusServiceUnavailable, "calendar not loaded")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("X-Published-TTL", "PT15M")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// occurrencesResponse is the JSON shape for /api/occurrences.
type occurrencesResponse struct {
	Occurrences   []occurrenceDTO `json:"occurrences"`
	TruncatedUIDs []string        `json:"truncated_uids,omitempty"`
	RangeStart    time.Time       `json:"range_start"`
	RangeEnd      time.Time       `json:"range_end"`
	Timezone      string          `json:"timezone"`
}

type occurrenceDTO struct {
	UID         string    `json:"uid"`
	InstanceKey string    `json:"instance_key"`
	Summary     string    `json:"summary"`
	Location    string    `json:"location,omitempty"`
	AllDay      bool      `json:"all_day"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// handleOccurrences expands the published events into concrete instances.
//
// GET /api/occurrences?days=30&backfill=1
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	doc := s.doc
	s.mu.RUnlock()

	if doc == nil {
		writeError(w, http.StatusServiceUnavailable, "calendar not loaded")
		return
	}

	q := r.URL.Query()
	days := parseIntDefault(q.Get("days"), s.cfg.HorizonDays)
	if days <= 0 {
		days = s.cfg.HorizonDays
	}
	backfill := parseIntDefault(q.Get("backfill"), 1)
	if backfill < 0 {
		backfill = 0
	}

	loc, err := time.LoadLocation(s.cfg.Timezone)
	if err != nil {
		appLog.Error("bad display timezone, using UTC", err, "timezone", s.cfg.Timezone)
		loc = time.UTC
	}

	now := time.Now().In(loc)
	rangeStart := now.AddDate(0, 0, -backfill)
	rangeEnd := now.AddDate(0, 0, days)

	result, err := ics.Expand(doc, ics.ExpandConfig{
		DisplayLocation: loc,
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
	})
	if err != nil {
		appLog.Error("occurrence expansion failed", err)
		writeError(w, http.StatusInternalServerError, "failed to expand events")
		return
	}

	dtos := make([]occurrenceDTO, 0, len(result.Occurrences))
	for _, occ := range result.Occurrences {
		dtos = append(dtos, occurrenceDTO{
			UID:         occ.UID,
			InstanceKey: occ.InstanceKey,
			Summary:     occ.Summary,
			Location:    occ.Location,
			AllDay:      occ.AllDay,
			Start:       occ.Start,
			End:         occ.End,
		})
	}

	writeJSON(w, http.StatusOK, occurrencesResponse{
		Occurrences:   dtos,
		TruncatedUIDs: result.TruncatedUIDs,
		RangeStart:    rangeStart,
		RangeEnd:      rangeEnd,
		Timezone:      loc.String(),
	})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
