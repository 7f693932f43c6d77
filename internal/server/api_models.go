package server

import "github.com/raysh454/cgscrape/internal/tracker"

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// VersionListResponse wraps a page of archived versions, newest first.
type VersionListResponse struct {
	Versions []*tracker.Version `json:"versions"`
	Count    int                `json:"count"`
}

// VersionDetailResponse is a version's metadata plus its stored headers.
// The body is served separately by /versions/{id}/body.
type VersionDetailResponse struct {
	tracker.Version
	Headers map[string][]string `json:"headers,omitempty"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error"`
}
