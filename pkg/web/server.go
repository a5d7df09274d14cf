// SPDX-License-Identifier: GPL-2.0-or-later

package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"movierec/pkg/catalog"
	"movierec/pkg/log"
)

// Server serves the API until its context is canceled.
type Server struct {
	Mux    *http.ServeMux
	logger log.ILogger
	server *http.Server
}

// Handlers are optional, nil values are not registered.
type Handlers struct {
	Logger  *log.Logger
	LogDB   *log.DB
	Catalog *catalog.Catalog
	Status  func() string
}

// NewServer registers the routes.
func NewServer(ctx context.Context, h Handlers) *Server {
	mux := http.NewServeMux()
	if h.Logger != nil {
		mux.Handle("/api/log/feed", LogFeed(ctx, h.Logger))
	}
	if h.LogDB != nil {
		mux.Handle("/api/log/query", LogQuery(h.LogDB))
	}
	if h.Catalog != nil {
		mux.Handle("/api/recordings", Recordings(h.Catalog))
	}
	if h.Status != nil {
		mux.Handle("/api/status", Status(h.Status))
	}

	var logger log.ILogger = log.NewMockLogger()
	if h.Logger != nil {
		logger = h.Logger
	}
	return &Server{
		Mux:    mux,
		logger: logger,
		server: &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second},
	}
}

// Start listens on address and serves until ctx is canceled.
// The returned address is the one actually listened on.
func (s *Server) Start(ctx context.Context, wg *sync.WaitGroup, address string) (string, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return "", fmt.Errorf("listen: %w", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		err := s.server.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Src("app").Msgf("server: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctx2) //nolint:errcheck
	}()

	s.logger.Info().Src("app").Msgf("serving api on %v", ln.Addr())
	return ln.Addr().String(), nil
}
