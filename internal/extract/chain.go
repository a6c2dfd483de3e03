// Package extract derives contact fields from a candidate site's HTML using
// an ordered chain of text sources per field.
package extract

import (
	"regexp"

	"golang.org/x/net/html/atom"

	"github.com/sells-group/prospector-cli/internal/htmldoc"
	"github.com/sells-group/prospector-cli/internal/model"
)

// Texts holds the two text views of a page, computed once per document.
type Texts struct {
	Footer string
	Page   string
}

// footerRegion matches <footer> elements and elements classed as footers.
var footerRegion = htmldoc.Or(
	htmldoc.IsElement(atom.Footer),
	htmldoc.HasClass("site-footer"),
	htmldoc.HasClass("footer"),
)

// NewTexts computes the footer and full-page text of doc.
func NewTexts(doc *htmldoc.Document) Texts {
	var footer string
	for _, n := range htmldoc.FindOutermost(doc.Root(), footerRegion) {
		if s := htmldoc.Text(n); s != "" {
			if footer != "" {
				footer += " "
			}
			footer += s
		}
	}
	return Texts{Footer: footer, Page: doc.Text()}
}

// Source is one strategy for choosing the text a rule searches.
type Source struct {
	Name string
	Text func(t Texts) string
}

var (
	// FooterFirst searches footer text when the page has any, otherwise the
	// whole page. Contact details conventionally live in the footer.
	FooterFirst = Source{Name: "footer_first", Text: func(t Texts) string {
		if t.Footer != "" {
			return t.Footer
		}
		return t.Page
	}}

	// FullPage searches all visible text.
	FullPage = Source{Name: "page", Text: func(t Texts) string { return t.Page }}
)

// Rule extracts one field: each source is tried in order until Pattern
// matches.
type Rule struct {
	Field   string
	Pattern *regexp.Regexp
	Sources []Source
	MaxLen  int
}

// Apply returns the first match and the name of the source that produced it.
// An empty value means every source missed, which is not an error.
func (r Rule) Apply(t Texts) (value, source string) {
	for _, s := range r.Sources {
		if m := r.Pattern.FindString(s.Text(t)); m != "" {
			if r.MaxLen > 0 {
				m = model.Truncate(m, r.MaxLen)
			}
			return m, s.Name
		}
	}
	return "", ""
}

// Field names used by the default rules.
const (
	FieldEmail   = "email"
	FieldPhone   = "phone"
	FieldAddress = "address"
)

var (
	phonePattern = regexp.MustCompile(`\+?1?[\s\-\.\(]?\d{3}[\)\s\-\.\)]?\s?\d{3}\s?[\-\.\s]?\d{4}`)

	// DefaultAddressKeywords are the regional names a street address must
	// mention to be taken.
	DefaultAddressKeywords = []string{"Miami", "Broward", "Palm Beach", "Florida", "FL"}
)

// DefaultRules returns the email, phone and address rules. Email falls back
// to the full page when the footer-preferred text has none.
func DefaultRules() []Rule {
	return []Rule{
		{Field: FieldEmail, Pattern: model.EmailPattern, Sources: []Source{FooterFirst, FullPage}},
		{Field: FieldPhone, Pattern: phonePattern, Sources: []Source{FooterFirst}},
		AddressRule(DefaultAddressKeywords),
	}
}

// AddressRule builds an address rule for a different set of regional
// keywords (city, county or state names).
func AddressRule(keywords []string) Rule {
	alt := ""
	for i, k := range keywords {
		if i > 0 {
			alt += "|"
		}
		alt += regexp.QuoteMeta(k)
	}
	return Rule{
		Field:   FieldAddress,
		Pattern: regexp.MustCompile(`(?i)\d{2,5}\s+\w+.*(` + alt + `)\b.*`),
		Sources: []Source{FooterFirst},
		MaxLen:  model.MaxAddressLen,
	}
}
