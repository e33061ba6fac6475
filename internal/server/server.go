// Package server exposes the answer engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"virtualta/internal/answer"
	"virtualta/internal/domain"
)

const maxRequestBytes = 20 << 20

// Answerer is the engine behind POST /api/.
type Answerer interface {
	Answer(ctx context.Context, req answer.Request) (domain.Response, error)
}

type Server struct {
	mux      *http.ServeMux
	answerer Answerer
	logger   *zap.Logger
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id"`
}

// New wires the routes. gatherer may be nil to leave out /metrics.
func New(a Answerer, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{mux: http.NewServeMux(), answerer: a, logger: logger}
	s.mux.HandleFunc("POST /api/", s.handleAnswer)
	s.mux.HandleFunc("GET /{$}", s.handleHealth)
	if gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("listening", zap.String("addr", addr))
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Virtual TA is up!"})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	w.Header().Set("X-Request-Id", reqID)
	logger := s.logger.With(zap.String("request_id", reqID))

	var req answer.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body", RequestID: reqID})
		return
	}
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "question is required", RequestID: reqID})
		return
	}

	started := time.Now()
	resp, err := s.answerer.Answer(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status >= 500 {
			logger.Error("answer failed", zap.Error(err))
		} else {
			logger.Info("answer rejected", zap.Error(err))
		}
		writeJSON(w, status, errorBody{Error: err.Error(), RequestID: reqID})
		return
	}
	logger.Info("answered",
		zap.Int("links", len(resp.Links)),
		zap.Bool("image", req.Image != ""),
		zap.Duration("took", time.Since(started)))
	if resp.Links == nil {
		resp.Links = []domain.Link{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMalformedInput):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrProviderContract), errors.Is(err, domain.ErrTransientProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
