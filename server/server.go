package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"form-backend/config"

	"go.uber.org/zap"
)

// Server runs the API listener and the optional metrics listener.
type Server struct {
	cfg     *config.Config
	log     *zap.Logger
	http    *http.Server
	metrics *http.Server
	addr    net.Addr
	errs    chan error
}

// New prepares the HTTP server, and a metrics server when a metrics port is
// configured and metrics are given. Nothing is bound until Start.
func New(cfg *config.Config, handler http.Handler, metrics *Metrics, log *zap.Logger) *Server {
	s := &Server{
		cfg: cfg,
		log: log,
		http: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		errs: make(chan error, 2),
	}

	if cfg.MetricsPort > 0 && metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		s.metrics = &http.Server{
			Addr:              ":" + strconv.Itoa(cfg.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return s
}

// Start creates the uploads directory, binds the listeners and serves in the
// background. Serve failures after Start are delivered on Errors.
func (s *Server) Start() error {
	if err := EnsureDir(s.cfg.UploadDir); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	s.addr = ln.Addr()

	if s.metrics != nil {
		mln, err := net.Listen("tcp", s.metrics.Addr)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("listen metrics %s: %w", s.metrics.Addr, err)
		}
		go s.serve(s.metrics, mln)
		s.log.Info("metrics listening", zap.Int("port", s.cfg.MetricsPort))
	}

	go s.serve(s.http, ln)
	s.log.Info("server running", zap.Int("port", s.cfg.Port))
	return nil
}

func (s *Server) serve(srv *http.Server, ln net.Listener) {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.errs <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errs
}

// Addr is the bound address of the main listener, nil before Start.
func (s *Server) Addr() net.Addr {
	return s.addr
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	if s.metrics != nil {
		err = errors.Join(err, s.metrics.Shutdown(ctx))
	}
	return err
}

// EnsureDir creates dir if it is missing. On ephemeral filesystems the
// directory does not outlive the process.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}
