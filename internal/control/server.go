// Package control exposes the operator surface over HTTP.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/usecase"
	"NewsRelay/pkg/logger"
)

// ErrAlreadyRunning is returned when the control address is taken,
// which means another relay instance is serving.
var ErrAlreadyRunning = errors.New("already running")

// Operator is the slice of the pipeline the control surface drives.
type Operator interface {
	Health(ctx context.Context) usecase.Health
	Run(ctx context.Context, forced bool) (domain.RunReport, error)
	FailedDeliveries(ctx context.Context) ([]domain.DeliveryRecord, error)
	Requeue(ctx context.Context, title, date string) (bool, error)
}

// RequeueRequest is the body of POST /deliveries/requeue.
type RequeueRequest struct {
	Title string `json:"title"`
	Date  string `json:"date"`
}

// RequeueResponse reports whether a failed record was removed.
type RequeueResponse struct {
	Removed bool `json:"removed"`
}

// ForceResponse is the body returned by POST /runs/force.
type ForceResponse struct {
	Report domain.RunReport `json:"report"`
	Error  string           `json:"error,omitempty"`
}

// Server serves the operator endpoints.
type Server struct {
	op     Operator
	logger *slog.Logger
	srv    *http.Server

	// forcing guards against overlapping forced runs.
	forcing sync.Mutex
}

// NewServer builds the control server bound to addr.
func NewServer(op Operator, addr string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{op: op, logger: log}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          logger.New(log, "control-http"),
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/health", s.handleHealth)
	r.Post("/runs/force", s.handleForce)
	r.Route("/deliveries", func(r chi.Router) {
		r.Get("/failed", s.handleFailed)
		r.Post("/requeue", s.handleRequeue)
	})
	return r
}

// Listen binds the control address. A bind failure is reported as
// ErrAlreadyRunning.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return nil, errors.Join(ErrAlreadyRunning, err)
	}
	return ln, nil
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("control server listening", "addr", ln.Addr().String())
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.op.Health(r.Context())
	code := http.StatusOK
	if h.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}

func (s *Server) handleForce(w http.ResponseWriter, r *http.Request) {
	if !s.forcing.TryLock() {
		writeError(w, http.StatusConflict, errors.New("a forced run is already in progress"))
		return
	}
	defer s.forcing.Unlock()

	// The run outlives a dropped client connection.
	report, err := s.op.Run(context.WithoutCancel(r.Context()), true)
	resp := ForceResponse{Report: report}
	code := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleFailed(w http.ResponseWriter, r *http.Request) {
	records, err := s.op.FailedDeliveries(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if records == nil {
		records = []domain.DeliveryRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleRequeue(w http.ResponseWriter, r *http.Request) {
	var req RequeueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("bad request"))
		return
	}
	removed, err := s.op.Requeue(r.Context(), req.Title, req.Date)
	switch {
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code := http.StatusOK
	if !removed {
		code = http.StatusNotFound
	}
	writeJSON(w, code, RequeueResponse{Removed: removed})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("control request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
