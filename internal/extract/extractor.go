package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector-cli/internal/fetcher"
	"github.com/sells-group/prospector-cli/internal/htmldoc"
	"github.com/sells-group/prospector-cli/internal/model"
)

// titleSeparators cut a page title down to the company name.
var titleSeparators = []string{" | ", " – "}

// Extractor fetches a candidate site and derives its contact fields.
type Extractor struct {
	fetcher fetcher.Fetcher
	rules   []Rule
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithAddressKeywords replaces the address rule with one matching keywords.
// An empty list keeps the default keywords.
func WithAddressKeywords(keywords []string) Option {
	return func(e *Extractor) {
		if len(keywords) == 0 {
			return
		}
		for i, r := range e.rules {
			if r.Field == FieldAddress {
				e.rules[i] = AddressRule(keywords)
			}
		}
	}
}

// New creates an Extractor that fetches pages with f.
func New(f fetcher.Fetcher, opts ...Option) *Extractor {
	e := &Extractor{fetcher: f, rules: DefaultRules()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract fetches url once and extracts its contact fields. It never returns
// an error: a failed fetch yields a StatusFailed result carrying an empty
// contact, a page with no matches yields StatusEmpty.
func (e *Extractor) Extract(ctx context.Context, url string) (res model.Result[model.Contact]) {
	empty := model.Contact{Website: url}
	defer func() {
		if r := recover(); r != nil {
			res = model.Failed(empty, eris.Errorf("extract: panic on %s: %v", url, r))
		}
	}()

	body, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return model.Failed(empty, eris.Wrap(err, "extract: fetch"))
	}

	c, err := e.FromHTML(url, body)
	if err != nil {
		return model.Failed(empty, err)
	}
	if c.IsEmpty() {
		return model.Empty(c)
	}
	return model.OK(c)
}

// FromHTML extracts contact fields from already-fetched HTML.
func (e *Extractor) FromHTML(url, body string) (model.Contact, error) {
	doc, err := htmldoc.Parse(body)
	if err != nil {
		return model.Contact{Website: url}, eris.Wrap(err, "extract: parse html")
	}

	c := model.Contact{Website: url, Name: NameFromTitle(doc.Title())}
	texts := NewTexts(doc)

	for _, r := range e.rules {
		v, src := r.Apply(texts)
		if v == "" {
			continue
		}
		switch r.Field {
		case FieldEmail:
			c.Email = v
		case FieldPhone:
			c.Phone = v
		case FieldAddress:
			c.Address = v
		default:
			panic(fmt.Sprintf("extract: unknown field %q", r.Field))
		}
		zap.L().Debug("extract: field matched",
			zap.String("url", url),
			zap.String("field", r.Field),
			zap.String("source", src),
		)
	}
	return c, nil
}

// NameFromTitle cuts a page title at the first separator and caps it.
func NameFromTitle(title string) string {
	for _, sep := range titleSeparators {
		if i := strings.Index(title, sep); i >= 0 {
			title = title[:i]
		}
	}
	return model.Truncate(title, model.MaxNameLen)
}
