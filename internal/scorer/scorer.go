package scorer

import (
	"strings"

	"github.com/sells-group/prospector-cli/internal/model"
)

// Scorer assigns a lead score from the presence of contact fields and
// regional keywords in the address.
type Scorer struct {
	weights Weights
}

// New creates a Scorer with the given weights.
func New(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// Default creates a Scorer using DefaultWeights.
func Default() *Scorer {
	return New(DefaultWeights())
}

// Weights returns the scorer's weight table.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score is pure and deterministic. Every geo keyword found in the address
// contributes, so "Miami, Broward" earns both bonuses.
func (s *Scorer) Score(c model.Contact) float64 {
	var score float64
	if c.Email != "" {
		score += s.weights.Email
	}
	if c.Phone != "" {
		score += s.weights.Phone
	}
	if c.Address != "" {
		score += s.weights.Address
		addr := strings.ToLower(c.Address)
		for _, g := range s.weights.Geo {
			if strings.Contains(addr, g.Keyword) {
				score += g.Weight
			}
		}
	}
	return score
}
