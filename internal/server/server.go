// internal/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xkilldash9x/seeclaw/internal/agent"
	"github.com/xkilldash9x/seeclaw/internal/config"
)

const defaultShutdownTimeout = 10 * time.Second

// Controller is the part of the agent engine the bridge drives.
type Controller interface {
	SubmitGoal(goal string) error
	Stop()
	Approve() error
	Reject() error
	State() agent.State
	Chat(ctx context.Context, message string) (string, error)
}

// Subscriber hands out notice streams, as agent.EventBus does.
type Subscriber interface {
	Subscribe(kinds ...agent.NoticeKind) (<-chan agent.Notice, func())
}

// Server exposes one engine to frontends over HTTP and WebSocket.
type Server struct {
	cfg     *config.Config
	srvCfg  config.ServerConfig
	logger  *zap.Logger
	engine  Controller
	events  Subscriber
	version string

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	wg      sync.WaitGroup
}

// New creates a bridge. cfg is used for get_config and may be nil.
func New(cfg *config.Config, engine Controller, events Subscriber, version string, logger *zap.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger.Named("server"),
		engine:  engine,
		events:  events,
		version: version,
		clients: make(map[*wsClient]struct{}),
	}
	if cfg != nil {
		s.srvCfg = cfg.Server()
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	// The WebSocket route stays outside the timeout and request-log middleware.
	r.Get("/ws/v1/events", s.handleEvents)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(2 * time.Minute))
		r.Use(s.requestLogger)

		r.Get("/healthz", s.handleHealthCheck)
		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/command", s.handleCommand)
			r.Get("/state", s.handleState)
			r.Get("/config", s.handleConfig)
			r.Get("/version", s.handleVersion)
		})
	})
	return r
}

// Start listens on the configured address until ctx ends, then shuts down
// gracefully and closes every WebSocket.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srvCfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srvCfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Frontend bridge listening.", zap.String("address", ln.Addr().String()))
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.closeClients()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.srvCfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("Shutting down frontend bridge.")
	err := httpServer.Shutdown(shutdownCtx)
	// Shutdown does not track hijacked WebSocket connections.
	s.closeClients()
	if err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	<-errCh
	return ctx.Err()
}

func (s *Server) register(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = struct{}{}
	s.wg.Add(1)
}

func (s *Server) unregister(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		s.wg.Done()
	}
}

// closeClients closes every connection and waits for their pumps to finish.
func (s *Server) closeClients() {
	s.mu.Lock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// checkOrigin accepts requests without an Origin header, same-host origins
// and anything listed in server.allowed_origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.srvCfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.checkOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each HTTP request through zap instead of the chi text logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
