// Package fetcher downloads OMI semester bundles over HTTP and FTP and
// unpacks the ZIP archives they ship in.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL into path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// ConditionalFetcher additionally supports ETag-conditional downloads, so
// an unchanged semester bundle is not re-fetched.
type ConditionalFetcher interface {
	Fetcher

	// DownloadIfChanged fetches the URL only when the ETag differs.
	// Returns (body, newETag, changed, error); body is nil when not
	// changed.
	DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error)
}
