// Package query turns raw query text into a structured intent: detected
// framework tags, extracted keywords, and a coarse intent category. Parsing
// never fails; unrecognized queries degrade to a keyword-only reference query.
package query

import (
	"sort"
	"strings"

	"github.com/sievedocs/sieve/models"
)

// frameworkAliases maps lowercased tokens and phrases to canonical framework
// names. Phrases are matched before single tokens so "react native" does not
// resolve to "react".
var frameworkAliases = map[string]string{
	"react":         "react",
	"reactjs":       "react",
	"react.js":      "react",
	"react native":  "reactnative",
	"next":          "nextjs",
	"nextjs":        "nextjs",
	"next.js":       "nextjs",
	"nuxt":          "nuxt",
	"nuxtjs":        "nuxt",
	"vue":           "vue",
	"vuejs":         "vue",
	"vue.js":        "vue",
	"svelte":        "svelte",
	"sveltekit":     "sveltekit",
	"angular":       "angular",
	"django":        "django",
	"flask":         "flask",
	"fastapi":       "fastapi",
	"rails":         "rails",
	"ruby on rails": "rails",
	"laravel":       "laravel",
	"spring":        "spring",
	"spring boot":   "spring",
	"express":       "express",
	"expressjs":     "express",
	"nestjs":        "nestjs",
	"nest.js":       "nestjs",
	"golang":        "go",
	"gin":           "gin",
	"echo":          "echo",
	"kubernetes":    "kubernetes",
	"k8s":           "kubernetes",
	"docker":        "docker",
	"terraform":     "terraform",
	"postgres":      "postgresql",
	"postgresql":    "postgresql",
	"redis":         "redis",
	"mongodb":       "mongodb",
	"mongo":         "mongodb",
	"graphql":       "graphql",
	"tailwind":      "tailwindcss",
	"tailwindcss":   "tailwindcss",
	"typescript":    "typescript",
	"stripe":        "stripe",
	"supabase":      "supabase",
	"firebase":      "firebase",
	"prisma":        "prisma",
}

// phraseConfidence applies to multi-word matches; exact single tokens score
// lower because short tokens collide with English more often.
const (
	phraseConfidence = 1.0
	tokenConfidence  = 0.8
)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "i": true, "my": true, "how": true, "what": true,
	"can": true, "use": true, "using": true, "does": true, "when": true,
}

// intentPrefixes are checked in order against the start of the query.
var intentPrefixes = []struct {
	prefix string
	intent models.Intent
}{
	{"how to", models.IntentHowTo},
	{"how do i", models.IntentHowTo},
	{"how can i", models.IntentHowTo},
	{"what is", models.IntentExplain},
	{"what are", models.IntentExplain},
	{"explain", models.IntentExplain},
	{"why does", models.IntentExplain},
}

var troubleshootMarkers = []string{"error", "fails", "failing", "doesn't work", "does not work", "not working", "broken", "crash", "exception"}

// Parser matches queries against a fixed framework dictionary. The zero
// configuration is the built-in dictionary; extra aliases can be layered on.
type Parser struct {
	aliases map[string]string
}

// NewParser returns a parser using the built-in framework dictionary plus any
// extra alias -> canonical-name entries.
func NewParser(extra map[string]string) *Parser {
	aliases := make(map[string]string, len(frameworkAliases)+len(extra))
	for k, v := range frameworkAliases {
		aliases[strings.ToLower(k)] = v
	}
	for k, v := range extra {
		aliases[strings.ToLower(k)] = v
	}
	return &Parser{aliases: aliases}
}

// Parse produces a ParsedQuery. It never fails: queries with no recognized
// frameworks yield an empty framework list and reference intent.
func (p *Parser) Parse(raw string) models.ParsedQuery {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	tokens := tokenize(lowered)

	frameworks, frameworkTokens := p.detectFrameworks(tokens)

	keywords := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if stopWords[tok] || frameworkTokens[tok] {
			continue
		}
		keywords = append(keywords, tok)
	}

	return models.ParsedQuery{
		Raw:        raw,
		Frameworks: frameworks,
		Keywords:   keywords,
		Intent:     classifyIntent(lowered),
	}
}

// detectFrameworks matches two-word phrases first, then single tokens, and
// returns tags ordered by confidence then name. frameworkTokens records the
// raw tokens consumed so keyword extraction does not double-weight them.
func (p *Parser) detectFrameworks(tokens []string) ([]models.FrameworkTag, map[string]bool) {
	found := map[string]float64{}
	consumed := map[string]bool{}

	for i := 0; i+1 < len(tokens); i++ {
		phrase := tokens[i] + " " + tokens[i+1]
		if name, ok := p.aliases[phrase]; ok {
			if phraseConfidence > found[name] {
				found[name] = phraseConfidence
			}
			consumed[tokens[i]] = true
			consumed[tokens[i+1]] = true
		}
	}
	for _, tok := range tokens {
		if consumed[tok] {
			continue
		}
		if name, ok := p.aliases[tok]; ok {
			if tokenConfidence > found[name] {
				found[name] = tokenConfidence
			}
			consumed[tok] = true
		}
	}

	tags := make([]models.FrameworkTag, 0, len(found))
	for name, conf := range found {
		tags = append(tags, models.FrameworkTag{Name: name, Confidence: conf})
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Confidence != tags[j].Confidence {
			return tags[i].Confidence > tags[j].Confidence
		}
		return tags[i].Name < tags[j].Name
	})
	return tags, consumed
}

func classifyIntent(lowered string) models.Intent {
	for _, m := range troubleshootMarkers {
		if strings.Contains(lowered, m) {
			return models.IntentTroubleshoot
		}
	}
	for _, ip := range intentPrefixes {
		if strings.HasPrefix(lowered, ip.prefix) {
			return ip.intent
		}
	}
	return models.IntentReference
}

// tokenize splits on whitespace, trimming surrounding punctuation but keeping
// interior dots so "next.js" survives as one token.
func tokenize(s string) []string {
	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		cleaned := strings.Trim(f, ".,!?;:'\"-()[]{}`")
		if cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}
