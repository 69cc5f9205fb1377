package testutil

import (
	"net/http"
	"time"

	"numcheck/pkg/domain"
	"numcheck/pkg/requestcontext"
)

// WithSessionKey adds a session key to the request context, as the session
// middleware does for routed requests.
func WithSessionKey(req *http.Request, key domain.SessionKey) *http.Request {
	return req.WithContext(requestcontext.WithSessionKey(req.Context(), key))
}

// WithRequestTime pins the request clock.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
