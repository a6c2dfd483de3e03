// Package model defines the lead, suppression and stage result types shared by the pipeline.
package model

import (
	"regexp"
	"strings"
	"time"
)

// Source tags where a lead came from.
type Source string

const (
	SourceScrape Source = "scrape"
	SourceImport Source = "import"
)

// Field length caps applied before persistence.
const (
	MaxNameLen    = 255
	MaxAddressLen = 500
)

// Lead is a persisted prospective contact. A lead is created once, on the
// first successful ingestion of its email, and never updated afterwards.
type Lead struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name,omitempty" db:"name"`
	Email     string    `json:"email" db:"email"`
	Website   string    `json:"website,omitempty" db:"website"`
	Phone     string    `json:"phone,omitempty" db:"phone"`
	Address   string    `json:"address,omitempty" db:"address"`
	Source    Source    `json:"source" db:"source"`
	Domain    string    `json:"domain,omitempty" db:"domain"`
	Score     float64   `json:"score" db:"score"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SuppressionEntry is a permanently opted-out email address.
type SuppressionEntry struct {
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Contact holds the fields extracted from a single candidate site before
// scoring. Empty strings mean the field was not found.
type Contact struct {
	Website string `json:"website"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// IsEmpty reports whether no contact field was extracted.
func (c Contact) IsEmpty() bool {
	return c.Name == "" && c.Email == "" && c.Phone == "" && c.Address == ""
}

// EmailPattern finds an email address anywhere in free text.
var EmailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

var emailPrefix = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// ValidEmail reports whether s starts with a syntactically valid address.
func ValidEmail(s string) bool {
	return emailPrefix.MatchString(strings.TrimSpace(s))
}

// NormalizeEmail trims and lowercases an address for suppression lookups.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Truncate caps s at n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
