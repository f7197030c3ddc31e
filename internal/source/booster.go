// Package source computes per-source relevance multipliers from a parsed
// query. Boosting, not filtering, is the primary effect: sources are only
// excluded when the caller explicitly restricts by source id.
package source

import (
	"strings"

	"github.com/sievedocs/sieve/models"
)

// maxBoost caps the source-level multiplier so one framework hit cannot
// drown the hybrid relevance signal.
const maxBoost = 1.5

// Booster assigns boost factors to accessible sources.
type Booster struct{}

// NewBooster returns a Booster.
func NewBooster() *Booster { return &Booster{} }

// Boost returns the accessible source set and a boost map. A source whose
// framework or domain matches a detected framework tag gets a boost
// proportional to the tag's match confidence; everything else stays at 1.0.
func (b *Booster) Boost(parsed models.ParsedQuery, sources []models.Source) ([]models.Source, models.SourceBoost) {
	boosts := make(models.SourceBoost, len(sources))
	for _, src := range sources {
		boosts[src.ID] = 1.0
		for _, tag := range parsed.Frameworks {
			if !matches(src, tag.Name) {
				continue
			}
			factor := 1.0 + (maxBoost-1.0)*tag.Confidence
			if factor > boosts[src.ID] {
				boosts[src.ID] = factor
			}
		}
	}
	return sources, boosts
}

// matches checks the source's framework metadata first, then falls back to a
// domain substring match ("nextjs.org" matches tag "nextjs").
func matches(src models.Source, framework string) bool {
	if strings.EqualFold(src.Framework, framework) {
		return true
	}
	domain := strings.ToLower(src.Domain)
	return domain != "" && strings.Contains(domain, strings.ToLower(framework))
}
