package fetcher

import (
	"context"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospector-cli/internal/resilience"
)

// DefaultUserAgents are the two browser identities rotated per request.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.5 Safari/605.1.15",
}

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgents   []string
	Timeout      time.Duration
	MaxBodyBytes int64
	// RateLimiters spaces requests per host. Hosts without an entry are not
	// throttled.
	RateLimiters map[string]*rate.Limiter
	// Client overrides the default http.Client (tests).
	Client *http.Client
}

// HTTPFetcher implements Fetcher using net/http.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	limiters map[string]*rate.Limiter
	pick     func(n int) int
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = 2 << 20
	}
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = DefaultUserAgents
	}
	limiters := make(map[string]*rate.Limiter, len(opts.RateLimiters))
	for k, v := range opts.RateLimiters {
		limiters[k] = v
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &HTTPFetcher{
		client:   client,
		opts:     opts,
		limiters: limiters,
		pick:     rand.IntN,
	}
}

// Client exposes the underlying http.Client so tests can install mocks.
func (f *HTTPFetcher) Client() *http.Client {
	return f.client
}

// UserAgent returns one of the configured identities at random.
func (f *HTTPFetcher) UserAgent() string {
	return f.opts.UserAgents[f.pick(len(f.opts.UserAgents))]
}

func (f *HTTPFetcher) limiterFor(rawURL string) *rate.Limiter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return f.limiters[u.Host]
}

// Fetch performs a single GET and returns the body decoded to UTF-8.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if lim := f.limiterFor(rawURL); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "fetcher: rate limiter wait")
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", eris.Wrap(resilience.NewFetchError(rawURL, err), "fetcher: create request")
	}
	req.Header.Set("User-Agent", f.UserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", eris.Wrap(resilience.NewFetchError(rawURL, err), "fetcher: get")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", eris.Wrap(resilience.NewStatusError(rawURL, resp.StatusCode), "fetcher: get")
	}

	body := io.LimitReader(resp.Body, f.opts.MaxBodyBytes)
	decoded, err := charset.NewReader(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", eris.Wrap(resilience.NewFetchError(rawURL, err), "fetcher: detect charset")
	}

	data, err := io.ReadAll(decoded)
	if err != nil {
		return "", eris.Wrap(resilience.NewFetchError(rawURL, err), "fetcher: read body")
	}
	return string(data), nil
}
