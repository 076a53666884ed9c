package domain

import "testing"

func TestPersonaForPrefersExactModel(t *testing.T) {
	q := CouncilQuery{PersonaMap: map[string]string{
		"openai/gpt-4o":      "exact",
		"other/gpt-4o:free":  "base",
		"google/gemini-pro":  "",
		"anthropic/claude-3": "critic",
	}}

	if got, ok := q.PersonaFor("openai/gpt-4o"); !ok || got != "exact" {
		t.Errorf("exact match = %q, %v", got, ok)
	}
	if got, ok := q.PersonaFor("claude-3:beta"); !ok || got != "critic" {
		t.Errorf("base name match = %q, %v", got, ok)
	}
	if _, ok := q.PersonaFor("google/gemini-pro"); ok {
		t.Error("empty prompt should not resolve")
	}
	if _, ok := q.PersonaFor("mistral/large"); ok {
		t.Error("unknown model should not resolve")
	}
}

func TestPersonaForBaseNameIsDeterministic(t *testing.T) {
	q := CouncilQuery{PersonaMap: map[string]string{
		"z-provider/hermes-4":      "last",
		"a-provider/hermes-4":      "first",
		"m-provider/hermes-4:free": "middle",
	}}

	for i := 0; i < 50; i++ {
		got, ok := q.PersonaFor("nous/hermes-4:nitro")
		if !ok || got != "first" {
			t.Fatalf("run %d: got %q, %v, want the lexicographically first key", i, got, ok)
		}
	}
}

func TestModelBaseName(t *testing.T) {
	cases := map[string]string{
		"nousresearch/hermes-4-405b:free": "hermes-4-405b",
		"gpt-4o":                          "gpt-4o",
		"a/b/c:d":                         "c",
	}
	for in, want := range cases {
		if got := ModelBaseName(in); got != want {
			t.Errorf("ModelBaseName(%q) = %q, want %q", in, got, want)
		}
	}
}
