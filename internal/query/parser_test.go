package query

import (
	"testing"

	"github.com/sievedocs/sieve/models"
)

func TestParseDetectsFrameworksAndIntent(t *testing.T) {
	p := NewParser(nil)

	cases := []struct {
		name       string
		query      string
		intent     models.Intent
		frameworks []string
	}{
		{"howto nextjs", "how to add authentication in nextjs", models.IntentHowTo, []string{"nextjs"}},
		{"howdoi", "how do i deploy a django app", models.IntentHowTo, []string{"django"}},
		{"explain", "what is reciprocal rank fusion", models.IntentExplain, nil},
		{"troubleshoot", "react build fails with memory error", models.IntentTroubleshoot, []string{"react"}},
		{"reference default", "redis sorted set commands", models.IntentReference, []string{"redis"}},
		{"dotted alias", "next.js middleware configuration", models.IntentReference, []string{"nextjs"}},
		{"phrase alias", "ruby on rails migrations guide", models.IntentReference, []string{"rails"}},
		{"no frameworks", "sorting a slice by multiple keys", models.IntentReference, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := p.Parse(tc.query)
			if got.Intent != tc.intent {
				t.Fatalf("intent = %q, want %q", got.Intent, tc.intent)
			}
			if len(got.Frameworks) != len(tc.frameworks) {
				t.Fatalf("frameworks = %v, want %v", got.Frameworks, tc.frameworks)
			}
			for i, want := range tc.frameworks {
				if got.Frameworks[i].Name != want {
					t.Fatalf("frameworks[%d] = %q, want %q", i, got.Frameworks[i].Name, want)
				}
			}
		})
	}
}

func TestParseKeywordsExcludeStopWordsAndFrameworks(t *testing.T) {
	p := NewParser(nil)
	got := p.Parse("how to add authentication in nextjs")

	for _, kw := range got.Keywords {
		if kw == "nextjs" {
			t.Fatalf("framework token leaked into keywords: %v", got.Keywords)
		}
		if kw == "how" || kw == "to" || kw == "in" {
			t.Fatalf("stop word leaked into keywords: %v", got.Keywords)
		}
	}
	want := map[string]bool{"add": true, "authentication": true}
	for _, kw := range got.Keywords {
		delete(want, kw)
	}
	if len(want) != 0 {
		t.Fatalf("missing keywords %v in %v", want, got.Keywords)
	}
}

func TestParsePhraseBeatsSingleToken(t *testing.T) {
	p := NewParser(nil)
	got := p.Parse("react native navigation setup")
	if len(got.Frameworks) != 1 || got.Frameworks[0].Name != "reactnative" {
		t.Fatalf("frameworks = %v, want [reactnative]", got.Frameworks)
	}
	if got.Frameworks[0].Confidence != phraseConfidence {
		t.Fatalf("confidence = %v, want %v", got.Frameworks[0].Confidence, phraseConfidence)
	}
}

func TestParseNeverFails(t *testing.T) {
	p := NewParser(nil)
	for _, q := range []string{"", "   ", "????", "a the of"} {
		got := p.Parse(q)
		if got.Intent != models.IntentReference {
			t.Fatalf("intent for %q = %q, want reference", q, got.Intent)
		}
		if len(got.Frameworks) != 0 {
			t.Fatalf("frameworks for %q = %v, want none", q, got.Frameworks)
		}
	}
}

func TestParseExtraAliases(t *testing.T) {
	p := NewParser(map[string]string{"htmx": "htmx"})
	got := p.Parse("htmx form submission")
	if !got.HasFramework("htmx") {
		t.Fatalf("expected custom alias detection, got %v", got.Frameworks)
	}
}
