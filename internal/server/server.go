package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harun/aura/internal/observability"
	"github.com/rs/zerolog"
)

// Server exposes the assistant over HTTP and WebSocket.
type Server struct {
	options        Options
	assistant      Assistant
	server         *http.Server
	handler        http.Handler
	rateLimiter    *RateLimiter
	upgrader       websocket.Upgrader
	sockets        map[*websocket.Conn]struct{}
	socketsMu      sync.Mutex
	logger         zerolog.Logger
	startTime      time.Time
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// NewServer creates a new API server
func NewServer(options Options, assistant Assistant) (*Server, error) {
	if assistant == nil {
		return nil, fmt.Errorf("assistant is required")
	}
	if options.Port == 0 {
		options.Port = 3000
	}
	if options.Host == "" {
		options.Host = "127.0.0.1"
	}
	if options.ShutdownTimeout == 0 {
		options.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		options:     options,
		assistant:   assistant,
		rateLimiter: NewRateLimiter(options.RateLimitPerMinute),
		logger:      options.Logger.With().Str("component", "server").Logger(),
		startTime:   time.Now(),
		sockets:     make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	s.handler = s.routes()

	return s, nil
}

// Handler returns the routed handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /api/chat", s.instrument("chat", s.guard(s.limited(s.handleChat))))
	mux.Handle("GET /api/memory", s.instrument("memory_get", s.guard(s.handleGetMemory)))
	mux.Handle("DELETE /api/memory", s.instrument("memory_clear", s.guard(s.handleClearMemory)))
	mux.Handle("GET /api/tools", s.instrument("tools_list", s.handleListTools))
	mux.Handle("POST /api/tools/{name}", s.instrument("tool_call", s.guard(s.handleToolCall)))
	mux.Handle("GET /api/files", s.instrument("files_get", s.guard(s.handleFilesGet)))
	mux.Handle("POST /api/files", s.instrument("files_create", s.guard(s.handleFilesCreate)))
	mux.Handle("DELETE /api/files", s.instrument("files_delete", s.guard(s.handleFilesDelete)))
	mux.Handle("POST /api/vision/screenshot", s.instrument("screenshot", s.guard(s.handleScreenshot)))
	// WebSocket connections are long-lived; each frame is tracked separately.
	mux.Handle("GET /ws", s.instrument("ws", s.limited(s.handleWebSocket)))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", observability.MetricsHandler())

	return mux
}

// Start listens on the configured address and blocks until Stop.
func (s *Server) Start() error {
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.shutdownMu.Lock()
	if s.isShuttingDown {
		s.shutdownMu.Unlock()
		return nil
	}
	s.server = httpServer
	s.shutdownMu.Unlock()

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting API server")

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	return nil
}

// Stop refuses new requests, waits for in-flight exchanges up to the shutdown
// timeout, then closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	httpServer := s.server
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down API server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(s.options.ShutdownTimeout):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown cancelled, forcing close")
	}

	s.rateLimiter.Stop()
	s.closeSockets()

	if httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown API server: %w", err)
	}

	s.logger.Info().Msg("API server stopped")
	return nil
}

// guard rejects work during shutdown and tracks in-flight requests.
func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.beginRequest() {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "Server is shutting down"})
			return
		}
		defer s.inFlightReqs.Done()
		next(w, r)
	}
}

// beginRequest registers one in-flight unit of work unless shutting down.
func (s *Server) beginRequest() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	if s.isShuttingDown {
		return false
	}
	s.inFlightReqs.Add(1)
	return true
}

// instrument tags the request id and records per-route metrics.
func (s *Server) instrument(route string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		duration := time.Since(start)
		observability.RecordHTTPRequest(route, rec.status, duration)
		s.logger.Debug().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", duration).
			Msg("Request completed")
	})
}

// limited applies the per-client rate limit.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.rateLimiter.Allow(ip) {
			retryAfter := s.rateLimiter.RetryAfter(ip)
			s.logger.Warn().
				Str("ip", ip).
				Str("path", r.URL.Path).
				Int("retry_after", retryAfter).
				Msg("Rate limit exceeded")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "Too Many Requests"})
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusRecorder captures the response code. It forwards Hijack so WebSocket
// upgrades work through the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
