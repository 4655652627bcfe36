package web

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"runon/internal/calendar"
	"runon/internal/config"
	"runon/internal/ics"
	"runon/internal/location"
	appLog "runon/internal/log"
	"runon/internal/model"
	"runon/internal/search"
)

const maxBodyBytes = 64 << 10

// Coordinator is the part of the event search the HTTP API drives.
type Coordinator interface {
	Snapshot() search.State
	LoadInitial()
	Search(query string)
	RegisterOrUnregister(eventID string, wantRegistered bool)
}

// LocationSink accepts coordinates reported by clients.
type LocationSink interface {
	Push(c model.Coordinate) error
}

// Server exposes the event list, the month calendar and the search
// triggers over HTTP.
type Server struct {
	cfg       *config.Config
	coord     Coordinator
	locations LocationSink
	loc       *time.Location
	weekStart time.Weekday
	now       func() time.Time
	router    *chi.Mux
}

// NewServer constructs a new Server. locations may be nil, in which case
// POST /api/location replies 503.
func NewServer(cfg *config.Config, coord Coordinator, locations LocationSink, loc *time.Location) *Server {
	if loc == nil {
		loc = time.UTC
	}
	s := &Server{
		cfg:       cfg,
		coord:     coord,
		locations: locations,
		loc:       loc,
		weekStart: cfg.WeekStartDay(),
		now:       time.Now,
		router:    chi.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger)

	if len(s.cfg.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		if s.basicAuthEnabled() {
			appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
			r.Use(s.basicAuthMiddleware)
		}

		r.Get("/state", s.handleState)
		r.Post("/load", s.handleLoad)
		r.Post("/search", s.handleSearch)
		r.Post("/location", s.handleLocation)
		r.Put("/events/{id}/registration", s.handleRegistration(true))
		r.Delete("/events/{id}/registration", s.handleRegistration(false))
		r.Get("/calendar", s.handleCalendar)
		r.Get("/calendar.ics", s.handleCalendarICS)
	})
}

// requestLogger logs one line per request through the app logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="runon", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventDTO is the JSON view of an event.
type eventDTO struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Date        time.Time         `json:"date"`
	Location    string            `json:"location,omitempty"`
	URL         string            `json:"url,omitempty"`
	DistanceKm  float64           `json:"distance_km,omitempty"`
	Coordinates *model.Coordinate `json:"coordinates,omitempty"`
}

type stateResponse struct {
	Events        []eventDTO        `json:"events"`
	IsLoading     bool              `json:"is_loading"`
	Error         string            `json:"error,omitempty"`
	KnownLocation *model.Coordinate `json:"known_location,omitempty"`
}

type dayDTO struct {
	Date    calendar.Day `json:"date"`
	InMonth bool         `json:"in_month"`
	Events  []eventDTO   `json:"events"`
}

type calendarResponse struct {
	Month     string     `json:"month"`
	Previous  string     `json:"previous"`
	Next      string     `json:"next"`
	WeekStart string     `json:"week_start"`
	Timezone  string     `json:"timezone"`
	Weeks     [][]dayDTO `json:"weeks"`
}

func toEventDTOs(events []model.Event, loc *time.Location) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		out = append(out, eventDTO{
			ID:          ev.ID,
			Title:       ev.Title,
			Description: ev.Description,
			Date:        ev.Date.In(loc),
			Location:    ev.Location,
			URL:         ev.URL,
			DistanceKm:  ev.DistanceKm,
			Coordinates: ev.Coordinates,
		})
	}
	return out
}

func (s *Server) stateResponse() stateResponse {
	st := s.coord.Snapshot()
	return stateResponse{
		Events:        toEventDTOs(st.Events, s.loc),
		IsLoading:     st.IsLoading,
		Error:         st.Error,
		KnownLocation: st.KnownLocation,
	}
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.stateResponse())
}

func (s *Server) handleLoad(w http.ResponseWriter, _ *http.Request) {
	s.coord.LoadInitial()
	writeJSON(w, http.StatusAccepted, s.stateResponse())
}

type searchRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.coord.Search(req.Query)
	writeJSON(w, http.StatusAccepted, s.stateResponse())
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	if s.locations == nil {
		writeError(w, http.StatusServiceUnavailable, "location updates are not enabled")
		return
	}
	var c model.Coordinate
	if err := decodeBody(r, &c); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.locations.Push(c); err != nil {
		switch {
		case errors.Is(err, location.ErrInvalidCoordinate):
			writeError(w, http.StatusBadRequest, "invalid coordinate")
		case errors.Is(err, location.ErrBufferFull):
			writeError(w, http.StatusTooManyRequests, "too many location updates")
		default:
			appLog.Error("location push failed", err)
			writeError(w, http.StatusServiceUnavailable, "location updates are not available")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, s.stateResponse())
}

func (s *Server) handleRegistration(register bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Occurrence ids contain '/', so clients send them escaped.
		id, err := url.PathUnescape(chi.URLParam(r, "id"))
		if err != nil || strings.TrimSpace(id) == "" {
			writeError(w, http.StatusBadRequest, "invalid event id")
			return
		}
		s.coord.RegisterOrUnregister(id, register)
		writeJSON(w, http.StatusAccepted, s.stateResponse())
	}
}

// handleCalendar returns the month grid with the current events bucketed
// by day.
//
// GET /api/calendar?month=2024-03
//   - month: defaults to the current month in the configured timezone
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	ref := s.now().In(s.loc)
	if m := r.URL.Query().Get("month"); m != "" {
		t, err := calendar.ParseMonth(m, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
			return
		}
		ref = t
	}

	grid, err := calendar.WeeksCovering(ref, s.weekStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	buckets := calendar.BucketByDay(s.coord.Snapshot().Events, grid)

	resp := calendarResponse{
		Month:     ref.Format("2006-01"),
		Previous:  calendar.PreviousMonth(ref).Format("2006-01"),
		Next:      calendar.NextMonth(ref).Format("2006-01"),
		WeekStart: strings.ToLower(s.weekStart.String()),
		Timezone:  s.loc.String(),
		Weeks:     make([][]dayDTO, 0, len(grid.Weeks)),
	}
	for _, week := range grid.Weeks {
		days := make([]dayDTO, 0, calendar.DaysPerWeek)
		for _, d := range week {
			days = append(days, dayDTO{
				Date:    d,
				InMonth: grid.InMonth(d),
				Events:  toEventDTOs(buckets[d], s.loc),
			})
		}
		resp.Weeks = append(resp.Weeks, days)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCalendarICS(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := ics.WriteCalendar(&buf, s.coord.Snapshot().Events, s.now()); err != nil {
		appLog.Error("calendar export failed", err)
		writeError(w, http.StatusInternalServerError, "failed to export calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="runon.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
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
