// Package fetcher downloads remote snapshot files over HTTP with per-host rate
// limiting and retries, and unpacks the single-file archives they ship in.
package fetcher

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when the server answers 404. Callers treat it as a
// transport miss for the current cycle rather than a hard failure.
var ErrNotFound = eris.New("fetcher: resource not found")

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
