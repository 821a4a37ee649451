// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/internaltools/credshare/pkg/logger"
	"github.com/internaltools/credshare/pkg/utils"
)

// Server runs a Handler on its own listener.
type Server struct {
	cfg  Config
	http *http.Server
	done chan error
}

func NewServer(cfg Config, handler http.Handler) *Server {
	cfg.Validate()
	return &Server{
		cfg: cfg,
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
	}
}

// Start binds the listener and serves in the background. The returned
// address is the bound one, which differs from the configured one when the
// port is 0.
func (s *Server) Start() (net.Addr, error) {
	tlsConfig, err := utils.LoadServerTLSConfig(s.cfg.CertFile, s.cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	ln, err := utils.NewListener(s.cfg.Addr, tlsConfig)
	if err != nil {
		return nil, err
	}
	s.done = make(chan error, 1)
	go func() {
		err := s.http.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			logger.Error().Err(err).Msg("http server exited abnormally")
		}
		s.done <- err
	}()
	logger.Info().Str("addr", ln.Addr().String()).Bool("tls", tlsConfig != nil).Msg("http server listening")
	return ln.Addr(), nil
}

// Shutdown stops accepting connections and waits for in-flight requests up
// to ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.done == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.done
}
