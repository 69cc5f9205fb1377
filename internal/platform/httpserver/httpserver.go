package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"
)

// Option configures the server.
type Option func(*http.Server)

// WithBaseContext makes ctx the parent of every request context, so
// cancelling it stops long-running handlers such as batch runs.
func WithBaseContext(ctx context.Context) Option {
	return func(s *http.Server) {
		s.BaseContext = func(net.Listener) context.Context { return ctx }
	}
}

// New builds an HTTP server with sane defaults for this project. Write
// timeout is left unset because batch runs answer only when finished.
func New(addr string, handler http.Handler, opts ...Option) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}
