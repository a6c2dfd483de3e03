// Package fetcher downloads single HTML pages for the search engines and the
// contact extractor.
package fetcher

import (
	"context"
)

// Fetcher returns the decoded body of a page. One call is one network
// request: no retries, a bounded timeout, and any non-2xx response is an
// error.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}
