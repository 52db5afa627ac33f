// Package server exposes the hint and statistics API over HTTP.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"codeberg.org/mutker/socpowerd/internal/errors"
	"codeberg.org/mutker/socpowerd/internal/logger"
	"codeberg.org/mutker/socpowerd/internal/power"
	"codeberg.org/mutker/socpowerd/internal/sampler"
	"codeberg.org/mutker/socpowerd/internal/stats"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 5 * time.Second
	maxBodySize     = 4 << 10
)

type Server struct {
	arbiter  Arbiter
	launcher Launcher
	levels   LevelSource
	stats    StatsSource
	history  HistorySource
	metrics  http.Handler
	logger   logger.Logger
	version  string
}

// Option configures a Server.
type Option func(*Server)

func WithLauncher(l Launcher) Option { return func(s *Server) { s.launcher = l } }

func WithLevels(l LevelSource) Option { return func(s *Server) { s.levels = l } }

func WithStats(st StatsSource) Option { return func(s *Server) { s.stats = st } }

func WithHistory(h HistorySource) Option { return func(s *Server) { s.history = h } }

// WithMetrics mounts h on /metrics.
func WithMetrics(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

func WithLogger(l logger.Logger) Option { return func(s *Server) { s.logger = l } }

func WithVersion(v string) Option { return func(s *Server) { s.version = v } }

func New(arbiter Arbiter, opts ...Option) *Server {
	s := &Server{
		arbiter: arbiter,
		logger:  logger.New("server"),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": s.version,
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/hints", func(r chi.Router) {
			r.Post("/sustained", s.handleModeHint(power.HintSustainedPerformance))
			r.Post("/vr", s.handleModeHint(power.HintVRMode))
			r.Post("/interaction", s.handleInteraction)
			r.Post("/interactive", s.handleInteractive)
			r.Post("/launch", s.handleLaunch)
		})
		r.Get("/modes", s.handleModes)
		r.Get("/stats/{table}", s.handleStats)
		r.Get("/stats/{table}/history", s.handleHistory)
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	return r
}

// ListenAndServe serves Handler on addr until ctx is done, then shuts the
// server down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	errFactory := errors.New()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", addr).Msg("Hint API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return errFactory.Wrap(errors.ErrServe, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errFactory.Wrap(errors.ErrShutdownFailed, err)
	}

	return nil
}

type modeRequest struct {
	Enable *bool `json:"enable"`
}

type interactionRequest struct {
	DurationMs *int `json:"duration_ms"`
}

type interactiveRequest struct {
	On *bool `json:"on"`
}

type hintResponse struct {
	RequestID string          `json:"request_id"`
	State     power.ModeState `json:"state"`
}

func (s *Server) handleModeHint(hint power.Hint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req modeRequest
		if err := decode(r, &req, false); err != nil || req.Enable == nil {
			writeError(w, r, http.StatusBadRequest, errors.ErrInvalidArgument, `body must be {"enable": bool}`)
			return
		}

		s.hint(w, r, hint, *req.Enable)
	}
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	var req interactionRequest
	if err := decode(r, &req, true); err != nil {
		writeError(w, r, http.StatusBadRequest, errors.ErrInvalidArgument, `body must be {"duration_ms": int} or empty`)
		return
	}

	s.hint(w, r, power.HintInteraction, req.DurationMs)
}

func (s *Server) handleInteractive(w http.ResponseWriter, r *http.Request) {
	var req interactiveRequest
	if err := decode(r, &req, false); err != nil || req.On == nil {
		writeError(w, r, http.StatusBadRequest, errors.ErrInvalidArgument, `body must be {"on": bool}`)
		return
	}

	s.hint(w, r, power.HintSetInteractive, *req.On)
}

func (s *Server) hint(w http.ResponseWriter, r *http.Request, hint power.Hint, data any) {
	if err := s.arbiter.PowerHint(r.Context(), hint, data); err != nil {
		s.logger.Warn().Err(err).Str("hint", hint.String()).Msg("Hint failed")
		writeCodedError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, hintResponse{
		RequestID: middleware.GetReqID(r.Context()),
		State:     s.arbiter.State(),
	})
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	if s.launcher == nil {
		writeError(w, r, http.StatusNotImplemented, errors.ErrNotImplemented, "launch boost unavailable")
		return
	}

	h, err := s.launcher.BeginLaunch(r.Context())
	if err != nil {
		writeCodedError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"request_id": middleware.GetReqID(r.Context()),
		"handle":     h,
	})
}

type modesResponse struct {
	power.ModeState
	Levels map[string]int `json:"levels,omitempty"`
}

func (s *Server) handleModes(w http.ResponseWriter, _ *http.Request) {
	resp := modesResponse{ModeState: s.arbiter.State()}

	if s.levels != nil {
		resp.Levels = make(map[string]int)
		for k, v := range s.levels.Effective() {
			resp.Levels[k.String()] = v
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeError(w, r, http.StatusNotImplemented, errors.ErrNotImplemented, "statistics unavailable")
		return
	}

	samples, err := s.stats.Sample(r.Context(), chi.URLParam(r, "table"))
	if err != nil {
		writeCodedError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"samples": samples})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil || !s.history.Enabled() {
		writeError(w, r, http.StatusNotImplemented, errors.ErrNotImplemented, "history disabled")
		return
	}

	since := time.Time{}
	if raw := r.URL.Query().Get("since"); raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, errors.ErrInvalidArgument, "since must be a unix timestamp")
			return
		}
		since = time.Unix(secs, 0)
	}

	points, err := s.history.Query(r.Context(), chi.URLParam(r, "table"), since)
	if err != nil {
		writeCodedError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"points": points})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request served")
	})
}

// decode reads a JSON body. An empty body is accepted when optional is set.
func decode(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()

	err := dec.Decode(v)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}

	return err
}

// statusFor maps error codes to HTTP statuses.
var statusFor = map[errors.ErrorCode]int{
	errors.ErrInvalidArgument:   http.StatusBadRequest,
	power.ErrInvalidHintData:    http.StatusBadRequest,
	power.ErrUnknownHint:        http.StatusBadRequest,
	power.ErrGovernorUnreadable: http.StatusServiceUnavailable,
	power.ErrLockFailed:         http.StatusBadGateway,
	sampler.ErrUnknownTable:     http.StatusNotFound,
	stats.ErrNotFound:           http.StatusServiceUnavailable,
	errors.ErrNotImplemented:    http.StatusNotImplemented,
}

func writeCodedError(w http.ResponseWriter, r *http.Request, err error) {
	code, ok := errors.CodeOf(err)
	if !ok {
		code = errors.ErrInternal
	}

	status, ok := statusFor[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	writeError(w, r, status, code, err.Error())
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, status int, code errors.ErrorCode, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
		"request_id": middleware.GetReqID(r.Context()),
	})
}
