// Package scorer computes a lead's priority score from its extracted fields.
package scorer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector-cli/internal/config"
)

// GeoWeight is a bonus applied when Keyword appears in the lowercased address.
type GeoWeight struct {
	Keyword string  `json:"keyword"`
	Weight  float64 `json:"weight"`
}

// Weights holds the per-field and per-region score contributions.
type Weights struct {
	Email   float64     `json:"email"`
	Phone   float64     `json:"phone"`
	Address float64     `json:"address"`
	Geo     []GeoWeight `json:"geo"`
}

// DefaultWeights returns the standard table: email 2, phone 1, address 1,
// plus Miami 1.0, Broward 0.5, Palm Beach 0.5.
func DefaultWeights() Weights {
	return Weights{
		Email:   2.0,
		Phone:   1.0,
		Address: 1.0,
		Geo: []GeoWeight{
			{Keyword: "miami", Weight: 1.0},
			{Keyword: "broward", Weight: 0.5},
			{Keyword: "palm beach", Weight: 0.5},
		},
	}
}

// WeightsFromConfig converts the configured weights. Geo keywords are
// lowercased and sorted so the table is stable across runs.
func WeightsFromConfig(c config.ScorerConfig) Weights {
	w := Weights{
		Email:   c.EmailWeight,
		Phone:   c.PhoneWeight,
		Address: c.AddressWeight,
	}
	for k, v := range c.GeoWeights {
		w.Geo = append(w.Geo, GeoWeight{Keyword: strings.ToLower(strings.TrimSpace(k)), Weight: v})
	}
	sort.Slice(w.Geo, func(i, j int) bool { return w.Geo[i].Keyword < w.Geo[j].Keyword })
	return w
}

// Validate checks that every weight is non-negative and every geo keyword
// is non-empty, which keeps scores non-negative and field presence monotonic.
func (w Weights) Validate() error {
	var errs []string

	fields := []struct {
		name string
		v    float64
	}{
		{"email_weight", w.Email},
		{"phone_weight", w.Phone},
		{"address_weight", w.Address},
	}
	for _, f := range fields {
		if f.v < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", f.name))
		}
	}
	for _, g := range w.Geo {
		if g.Keyword == "" {
			errs = append(errs, "geo keyword must not be empty")
		}
		if g.Weight < 0 {
			errs = append(errs, fmt.Sprintf("geo weight for %q must be >= 0", g.Keyword))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
