// Package server exposes conversations over HTTP and websockets, plus
// Prometheus metrics and a gRPC health service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/becomeliminal/nim-graph/core"
	"github.com/becomeliminal/nim-graph/engine"
)

// Conversations is what the server needs from the orchestrator.
type Conversations interface {
	Send(ctx context.Context, in core.Input) (core.Turn, error)
	History(ctx context.Context, sessionID string) ([]core.Turn, error)
	Sessions(ctx context.Context) ([]string, error)
	Clear(ctx context.Context, sessionID string) error
}

// Server serves the conversation API.
type Server struct {
	conv           Conversations
	gatherer       prometheus.Gatherer
	requestTimeout time.Duration
	logger         *zap.Logger
	health         *health.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithRequestTimeout bounds each message turn. Zero means no limit.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.requestTimeout = d }
}

// New creates a server.
func New(conv Conversations, opts ...Option) *Server {
	s := &Server{
		conv:     conv,
		gatherer: prometheus.DefaultGatherer,
		logger:   zap.NewNop(),
		health:   health.NewServer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("server")
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Get("/v1/sessions", s.handleSessions)
	r.Route("/v1/sessions/{id}", func(r chi.Router) {
		r.Post("/messages", s.handleSend)
		r.Get("/messages", s.handleHistory)
		r.Delete("/messages", s.handleClear)
		r.Get("/ws", s.handleWebsocket)
	})
	return r
}

// GRPC returns a gRPC server carrying the standard health service.
func (s *Server) GRPC() *grpc.Server {
	g := grpc.NewServer()
	healthpb.RegisterHealthServer(g, s.health)
	return g
}

// Serve listens on addr (HTTP) and grpcAddr (gRPC health, skipped when
// empty) until ctx is canceled, then shuts both down.
func (s *Server) Serve(ctx context.Context, addr, grpcAddr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcSrv := s.GRPC()

	var grpcLis net.Listener
	if grpcAddr != "" {
		var err error
		if grpcLis, err = net.Listen("tcp", grpcAddr); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("http listening", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if grpcLis != nil {
		g.Go(func() error {
			s.logger.Info("grpc health listening", zap.String("addr", grpcAddr))
			return grpcSrv.Serve(grpcLis)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		s.health.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcSrv.GracefulStop()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type sendRequest struct {
	Message string `json:"message"`
}

type sendResponse struct {
	SessionID string    `json:"session_id"`
	Reply     core.Turn `json:"reply"`
}

type historyResponse struct {
	SessionID string      `json:"session_id"`
	Turns     []core.Turn `json:"turns"`
}

type sessionsResponse struct {
	Sessions []string `json:"sessions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	id := chi.URLParam(r, "id")
	reply, err := s.send(r.Context(), id, req.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{SessionID: id, Reply: reply})
}

func (s *Server) send(ctx context.Context, id, message string) (core.Turn, error) {
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}
	return s.conv.Send(ctx, core.Input{SessionID: id, Message: message})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.conv.Sessions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: ids})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	turns, err := s.conv.History(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if turns == nil {
		turns = []core.Turn{}
	}
	writeJSON(w, http.StatusOK, historyResponse{SessionID: id, Turns: turns})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.conv.Clear(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps a turn failure to an HTTP status.
func statusFor(err error) int {
	var limitErr *engine.StepLimitExceededError
	switch {
	case errors.Is(err, core.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.As(err, &limitErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
