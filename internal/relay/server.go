package relay

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gopkg.in/op/go-logging.v1"

	"cipherchat/internal/instrument"
	"cipherchat/internal/transport/websocket"
)

// ServerConfig configures the relay's HTTP surface.
type ServerConfig struct {
	Address        string
	CertFile       string
	KeyFile        string
	AllowAnyOrigin bool
	Transport      websocket.Options
}

// Server exposes an Engine over HTTP:
//
//	GET /ws       websocket upgrade, one relay connection per socket
//	GET /livez    liveness probe
//	GET /metrics  prometheus metrics, when metrics are enabled
type Server struct {
	cfg      ServerConfig
	engine   *Engine
	acceptor *websocket.Acceptor
	metrics  *instrument.Metrics
	log      *logging.Logger
	router   chi.Router
	http     *http.Server
}

// NewServer wires the routes. metrics may be nil.
func NewServer(cfg ServerConfig, engine *Engine, metrics *instrument.Metrics, log *logging.Logger) *Server {
	if log == nil {
		log = logging.MustGetLogger("relay")
	}
	s := &Server{
		cfg:      cfg,
		engine:   engine,
		acceptor: websocket.NewAcceptor(cfg.Transport, cfg.AllowAnyOrigin),
		metrics:  metrics,
		log:      log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	s.RegisterRoutes(r)
	s.router = r

	s.http = &http.Server{
		Addr:              cfg.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// RegisterRoutes adds the relay endpoints to r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/ws", s.serveWS)
	r.Get("/livez", s.livez)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
}

// Handler returns the routed handler, for httptest.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) livez(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	c, err := s.acceptor.Accept(w, r)
	if err != nil {
		s.log.Debugf("websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	if err := s.engine.Serve(r.Context(), c); err != nil && !errors.Is(err, ErrShuttingDown) {
		s.log.Warningf("connection from %s: %v", r.RemoteAddr, err)
	}
}

// ListenAndServe serves until Shutdown. TLS is used when both a certificate
// and a key are configured.
func (s *Server) ListenAndServe() error {
	var err error
	if s.cfg.CertFile != "" && s.cfg.KeyFile != "" {
		s.log.Noticef("relay listening on https://%s", s.cfg.Address)
		err = s.http.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
	} else {
		s.log.Warningf("relay listening on http://%s without TLS", s.cfg.Address)
		err = s.http.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and closes the live ones.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.engine.Shutdown()
	return err
}
