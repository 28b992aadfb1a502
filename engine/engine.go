package engine

import (
	"context"
	"io"
)

// Engine is the interface that all fetch engines must implement.
type Engine interface {
	// Name returns the engine identifier ("http" or "rod").
	Name() string

	// Fetch retrieves the resource for the given request. An HTTP status of
	// 400 or above is reported as a *models.CrawlError with code
	// ErrCodeHTTPStatus; engines never terminate the process.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// FetchRequest contains everything an engine needs to fetch a resource.
type FetchRequest struct {
	URL string

	// Stream asks for the raw, unread response body (images) instead of
	// a fully buffered one (HTML pages).
	Stream bool
}

// FetchResult is the output of a successful engine fetch.
// Exactly one of Body and Stream is set, depending on FetchRequest.Stream.
type FetchResult struct {
	Body        []byte
	Stream      io.ReadCloser
	StatusCode  int
	ContentType string
	FinalURL    string
	EngineName  string
}
