// Package search fans a query out to several web search engines and
// collects the result links each one returns.
package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sells-group/prospector-cli/internal/fetcher"
	"github.com/sells-group/prospector-cli/internal/htmldoc"
	"github.com/sells-group/prospector-cli/internal/resilience"
)

// Engine names accepted by New.
const (
	EngineGoogle     = "google"
	EngineBing       = "bing"
	EngineDuckDuckGo = "duckduckgo"
)

const (
	// DefaultSiteClause restricts results to common commercial TLDs.
	DefaultSiteClause = "site:.com OR site:.net OR site:.org"
	// DefaultMaxResults caps the links kept from one results page.
	DefaultMaxResults = 40
)

// Engine returns result links for one query.
type Engine interface {
	Name() string
	Search(ctx context.Context, query string) ([]string, error)
}

// BuildTerm composes the full search term: the query, the TLD restriction
// and the parenthesized geographic clause.
func BuildTerm(query, site, geo string) string {
	term := strings.TrimSpace(query)
	if site != "" {
		term += " " + site
	}
	if geo != "" {
		term += " (" + geo + ")"
	}
	return term
}

// Option configures an engine.
type Option func(*htmlEngine)

// WithSiteClause overrides DefaultSiteClause.
func WithSiteClause(site string) Option {
	return func(e *htmlEngine) {
		e.site = site
	}
}

// WithGeoClause sets the geographic disjunction appended to every query.
func WithGeoClause(geo string) Option {
	return func(e *htmlEngine) {
		e.geo = geo
	}
}

// WithMaxResults overrides DefaultMaxResults.
func WithMaxResults(n int) Option {
	return func(e *htmlEngine) {
		if n > 0 {
			e.max = n
		}
	}
}

// WithBaseURL points the engine at a different results endpoint.
func WithBaseURL(base string) Option {
	return func(e *htmlEngine) {
		e.baseURL = strings.TrimRight(base, "/")
	}
}

// htmlEngine scrapes a results page. Engines differ only in endpoint, query
// parameters and the selector used to find result anchors.
type htmlEngine struct {
	name    string
	ownHost string
	baseURL string
	params  string
	site    string
	geo     string
	max     int
	fetcher fetcher.Fetcher
	links   func(doc *htmldoc.Document) []string
}

func newEngine(e *htmlEngine, f fetcher.Fetcher, opts []Option) *htmlEngine {
	e.fetcher = f
	e.site = DefaultSiteClause
	e.max = DefaultMaxResults
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewGoogle creates an engine scraping google.com result pages.
func NewGoogle(f fetcher.Fetcher, opts ...Option) Engine {
	return newEngine(&htmlEngine{
		name:    EngineGoogle,
		ownHost: "google.com",
		baseURL: "https://www.google.com/search",
		params:  "&num=20&hl=en",
		links: func(doc *htmldoc.Document) []string {
			var out []string
			for _, href := range hrefs(doc.FindAll(htmldoc.IsElement(atom.A))) {
				if strings.HasPrefix(href, "http") && !strings.Contains(href, "google") {
					out = append(out, href)
				}
			}
			return out
		},
	}, f, opts)
}

// NewBing creates an engine scraping bing.com result pages.
func NewBing(f fetcher.Fetcher, opts ...Option) Engine {
	return newEngine(&htmlEngine{
		name:    EngineBing,
		ownHost: "bing.com",
		baseURL: "https://www.bing.com/search",
		params:  "&count=30",
		links: func(doc *htmldoc.Document) []string {
			var anchors []*html.Node
			for _, li := range doc.FindAll(htmldoc.And(htmldoc.IsElement(atom.Li), htmldoc.HasClass("b_algo"))) {
				for _, h2 := range htmldoc.FindAll(li, htmldoc.IsElement(atom.H2)) {
					anchors = append(anchors, htmldoc.FindAll(h2, htmldoc.IsElement(atom.A))...)
				}
			}
			return hrefs(anchors)
		},
	}, f, opts)
}

// NewDuckDuckGo creates an engine scraping the DuckDuckGo HTML endpoint.
func NewDuckDuckGo(f fetcher.Fetcher, opts ...Option) Engine {
	return newEngine(&htmlEngine{
		name:    EngineDuckDuckGo,
		ownHost: "duckduckgo.com",
		baseURL: "https://duckduckgo.com/html/",
		params:  "&kl=us-en",
		links: func(doc *htmldoc.Document) []string {
			var out []string
			for _, href := range hrefs(doc.FindAll(htmldoc.And(htmldoc.IsElement(atom.A), htmldoc.HasClass("result__a")))) {
				if strings.HasPrefix(href, "http") {
					out = append(out, href)
				}
			}
			return out
		},
	}, f, opts)
}

// New creates an engine by name.
func New(name string, f fetcher.Fetcher, opts ...Option) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case EngineGoogle:
		return NewGoogle(f, opts...), nil
	case EngineBing:
		return NewBing(f, opts...), nil
	case EngineDuckDuckGo, "ddg":
		return NewDuckDuckGo(f, opts...), nil
	default:
		return nil, eris.Errorf("search: unknown engine %q", name)
	}
}

func (e *htmlEngine) Name() string { return e.name }

// SearchURL returns the results page URL for query.
func (e *htmlEngine) SearchURL(query string) string {
	return fmt.Sprintf("%s?q=%s%s", e.baseURL, url.QueryEscape(BuildTerm(query, e.site, e.geo)), e.params)
}

// Search fetches one results page. Fetch and parse failures are returned;
// the aggregator turns them into an empty contribution.
func (e *htmlEngine) Search(ctx context.Context, query string) ([]string, error) {
	body, err := e.fetcher.Fetch(ctx, e.SearchURL(query))
	if err != nil {
		return nil, eris.Wrapf(err, "search: %s", e.name)
	}
	doc, err := htmldoc.Parse(body)
	if err != nil {
		return nil, eris.Wrapf(err, "search: %s parse", e.name)
	}
	links := e.keep(e.links(doc))
	if len(links) == 0 {
		if bt := DetectBlock(body); bt != BlockNone {
			return nil, eris.Wrapf(resilience.ErrBlocked, "search: %s served %s page", e.name, bt)
		}
	}
	return links, nil
}

// keep drops non-absolute and self-referencing links and applies the cap.
func (e *htmlEngine) keep(links []string) []string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		if len(out) == e.max {
			break
		}
		u, err := url.Parse(l)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
			continue
		}
		host := strings.ToLower(u.Hostname())
		if host == e.ownHost || strings.HasSuffix(host, "."+e.ownHost) {
			continue
		}
		out = append(out, l)
	}
	return out
}

func hrefs(nodes []*html.Node) []string {
	var out []string
	for _, n := range nodes {
		if h := strings.TrimSpace(htmldoc.Attr(n, "href")); h != "" {
			out = append(out, h)
		}
	}
	return out
}
