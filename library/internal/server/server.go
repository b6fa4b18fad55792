package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/Astemirdum/bookhub/library/config"
)

type Server struct {
	srv *http.Server
}

func NewServer(cfg config.HTTPServer, h http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:           net.JoinHostPort(cfg.Host, cfg.Port),
			Handler:        h,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			MaxHeaderBytes: 1 << 20,
		},
	}
}

// Run blocks until the server stops; a graceful Stop is not reported as an error.
func (s *Server) Run() error {
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
