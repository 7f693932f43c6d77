package webclient

import (
	"context"
	"errors"
)

// ErrNilRequest is returned by Do when called without a request.
var ErrNilRequest = errors.New("request cannot be nil")

// WebClient performs a single request and returns the full response.
// Non-2xx status codes are returned as responses, never as errors.
type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)

	// Get is a convenience method for simple GET requests
	Get(ctx context.Context, url string) (*Response, error)

	Close() error
}
