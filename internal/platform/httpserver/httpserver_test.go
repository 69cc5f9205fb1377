package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	srv := New(":0", http.NotFoundHandler())
	assert.Equal(t, ":0", srv.Addr)
	assert.Equal(t, 5*time.Second, srv.ReadHeaderTimeout)
	assert.Zero(t, srv.WriteTimeout)
	assert.Nil(t, srv.BaseContext)
}

func TestWithBaseContextCancelsInFlightRequests(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	defer cancel()

	entered := make(chan struct{})
	stopped := make(chan error, 1)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		select {
		case <-r.Context().Done():
			stopped <- r.Context().Err()
		case <-time.After(5 * time.Second):
			stopped <- errors.New("request context was never cancelled")
		}
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := New(ln.Addr().String(), handler, WithBaseContext(base))
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/")
		if err == nil {
			resp.Body.Close()
		}
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the handler")
	}
	cancel()
	assert.ErrorIs(t, <-stopped, context.Canceled)

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	require.NoError(t, srv.Shutdown(shutdownCtx))
	assert.ErrorIs(t, <-serveErr, http.ErrServerClosed)
}
