package testutil

import (
	"net/http"

	"registrar/pkg/requestcontext"
)

// WithUserID simulates the auth middleware for handlers called directly.
func WithUserID(req *http.Request, userID string) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}

// WithBearer sets the Authorization header for requests that go through the
// full middleware chain.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// WithIdempotencyKey sets the Idempotency-Key header.
func WithIdempotencyKey(req *http.Request, key string) *http.Request {
	req.Header.Set("Idempotency-Key", key)
	return req
}
