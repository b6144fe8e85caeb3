package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/finboard/fetch"
	appmw "github.com/briangreenhill/finboard/internal/http/middleware"
	"github.com/briangreenhill/finboard/internal/widgets"
)

// maxBodyBytes caps request bodies accepted by the API
const maxBodyBytes = 1 << 20

// DataSource is the fetch layer the API exposes
type DataSource interface {
	Fetch(ctx context.Context, rawURL string, opts *fetch.RequestOptions) fetch.Result
	TestConnection(ctx context.Context, rawURL string) fetch.ConnectionReport
	ClearCache(ctx context.Context) error
	CacheSize(ctx context.Context) int
}

type Server struct {
	Router  *chi.Mux
	Data    DataSource
	Widgets *widgets.Store
	Log     zerolog.Logger
}

type ServerOptions struct {
	Data     DataSource
	Widgets  *widgets.Store
	Gatherer prometheus.Gatherer
	APIToken string
	Logger   zerolog.Logger
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(opts.Logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(chimw.Recoverer)

	s := &Server{Router: r, Data: opts.Data, Widgets: opts.Widgets, Log: opts.Logger}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("write health check response")
		}
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(ar chi.Router) {
		ar.Use(appmw.RequireToken(opts.APIToken))
		ar.Use(chimw.AllowContentType("application/json"))

		ar.Post("/fetch", s.handleFetch)
		ar.Post("/test-connection", s.handleTestConnection)
		ar.Get("/cache", s.handleCacheInfo)
		ar.Delete("/cache", s.handleClearCache)

		ar.Get("/widgets", s.handleListWidgets)
		ar.Post("/widgets", s.handleCreateWidget)
		ar.Put("/widgets/order", s.handleReorder)
		ar.Post("/widgets/refresh", s.handleRefreshAll)
		ar.Route("/widgets/{widgetID}", func(wr chi.Router) {
			wr.Get("/", s.handleGetWidget)
			wr.Patch("/", s.handleUpdateWidget)
			wr.Delete("/", s.handleDeleteWidget)
			wr.Post("/refresh", s.handleRefreshWidget)
			wr.Get("/card", s.handleCard)
			wr.Get("/table", s.handleTable)
			wr.Get("/chart", s.handleChart)
		})
	})

	return s
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.writeJSON(w, r, status, map[string]string{"error": msg})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// widgetError maps store errors onto status codes
func (s *Server) widgetError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, widgets.ErrNotFound):
		s.writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, widgets.ErrInvalid):
		s.writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("widget operation failed")
		s.writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

type fetchRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		s.writeError(w, r, http.StatusBadRequest, "url required")
		return
	}

	opts := &fetch.RequestOptions{Method: strings.ToUpper(req.Method)}
	if len(req.Headers) > 0 {
		opts.Header = make(http.Header, len(req.Headers))
		for k, v := range req.Headers {
			opts.Header.Set(k, v)
		}
	}
	if req.Body != "" {
		opts.Body = []byte(req.Body)
	}

	s.writeJSON(w, r, http.StatusOK, s.Data.Fetch(r.Context(), req.URL, opts))
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		s.writeError(w, r, http.StatusBadRequest, "url required")
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.Data.TestConnection(r.Context(), req.URL))
}

func (s *Server) handleCacheInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]int{"size": s.Data.CacheSize(r.Context())})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.Data.ClearCache(r.Context()); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("clear cache failed")
		s.writeError(w, r, http.StatusInternalServerError, "could not clear cache")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListWidgets(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.Widgets.List())
}

func (s *Server) handleCreateWidget(w http.ResponseWriter, r *http.Request) {
	var d widgets.Draft
	if !s.decode(w, r, &d) {
		return
	}
	wd, err := s.Widgets.Add(r.Context(), d)
	if err != nil {
		s.widgetError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, wd)
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.Widgets.Reorder(req.IDs))
}

func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	if err := s.Widgets.RefreshAll(r.Context()); err != nil {
		s.widgetError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.Widgets.List())
}

func (s *Server) widget(w http.ResponseWriter, r *http.Request) (widgets.Widget, bool) {
	wd, ok := s.Widgets.Get(chi.URLParam(r, "widgetID"))
	if !ok {
		s.writeError(w, r, http.StatusNotFound, widgets.ErrNotFound.Error())
	}
	return wd, ok
}

func (s *Server) handleGetWidget(w http.ResponseWriter, r *http.Request) {
	if wd, ok := s.widget(w, r); ok {
		s.writeJSON(w, r, http.StatusOK, wd)
	}
}

// widgetPatch carries the fields a PATCH may change
type widgetPatch struct {
	Name            *string                 `json:"name"`
	APIURL          *string                 `json:"apiUrl"`
	RefreshInterval *int                    `json:"refreshInterval"`
	SelectedFields  *[]widgets.FieldMapping `json:"selectedFields"`
	DisplayMode     *widgets.DisplayMode    `json:"displayMode"`
	Config          *widgets.Config         `json:"config"`
}

func (p widgetPatch) apply(w *widgets.Widget) {
	if p.Name != nil {
		w.Name = *p.Name
	}
	if p.APIURL != nil {
		w.APIURL = *p.APIURL
	}
	if p.RefreshInterval != nil {
		w.RefreshInterval = *p.RefreshInterval
	}
	if p.SelectedFields != nil {
		w.SelectedFields = *p.SelectedFields
	}
	if p.DisplayMode != nil {
		w.DisplayMode = *p.DisplayMode
		w.Type = *p.DisplayMode
	}
	if p.Config != nil {
		w.Config = *p.Config
	}
}

func (s *Server) handleUpdateWidget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "widgetID")
	var p widgetPatch
	if !s.decode(w, r, &p) {
		return
	}

	before, ok := s.Widgets.Get(id)
	if !ok {
		s.writeError(w, r, http.StatusNotFound, widgets.ErrNotFound.Error())
		return
	}
	wd, err := s.Widgets.Update(id, p.apply)
	if err != nil {
		s.widgetError(w, r, err)
		return
	}
	if wd.APIURL != before.APIURL {
		if wd, err = s.Widgets.Refresh(r.Context(), id); err != nil {
			s.widgetError(w, r, err)
			return
		}
	}
	s.writeJSON(w, r, http.StatusOK, wd)
}

func (s *Server) handleDeleteWidget(w http.ResponseWriter, r *http.Request) {
	if err := s.Widgets.Remove(chi.URLParam(r, "widgetID")); err != nil {
		s.widgetError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefreshWidget(w http.ResponseWriter, r *http.Request) {
	wd, err := s.Widgets.Refresh(r.Context(), chi.URLParam(r, "widgetID"))
	if err != nil {
		s.widgetError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, wd)
}

func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	if wd, ok := s.widget(w, r); ok {
		s.writeJSON(w, r, http.StatusOK, widgets.CardRows(wd))
	}
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	wd, ok := s.widget(w, r)
	if !ok {
		return
	}
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, r, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		page = n
	}
	s.writeJSON(w, r, http.StatusOK, widgets.BuildTable(wd, r.URL.Query().Get("search"), page))
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	wd, ok := s.widget(w, r)
	if !ok {
		return
	}
	chart, ok := widgets.ChartSeries(wd)
	if !ok {
		s.writeError(w, r, http.StatusUnprocessableEntity, "no chart data available")
		return
	}
	s.writeJSON(w, r, http.StatusOK, chart)
}
