package cache

import "testing"

func TestKeyIsStable(t *testing.T) {
	a := Key("analyze this contract", "be precise", []string{"openai", "groq"}, "best_of", 0.7, 4000)
	b := Key("analyze this contract", "be precise", []string{"openai", "groq"}, "best_of", 0.7, 4000)
	if a != b {
		t.Errorf("identical requests must collide: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected a hex sha256 key, got %q", a)
	}
}

func TestKeyNormalizesPromptWhitespace(t *testing.T) {
	a := Key("analyze   this\n\tcontract", "", []string{"openai"}, "best_of", 0.7, 4000)
	b := Key("analyze this contract", "", []string{"openai"}, "best_of", 0.7, 4000)
	if a != b {
		t.Error("whitespace-only prompt differences must not change the key")
	}
}

func TestKeyVariesWithEveryParameter(t *testing.T) {
	base := Key("prompt", "system", []string{"a", "b"}, "best_of", 0.7, 4000)
	variants := map[string]string{
		"prompt":         Key("other prompt", "system", []string{"a", "b"}, "best_of", 0.7, 4000),
		"system":         Key("prompt", "other system", []string{"a", "b"}, "best_of", 0.7, 4000),
		"provider set":   Key("prompt", "system", []string{"a"}, "best_of", 0.7, 4000),
		"provider order": Key("prompt", "system", []string{"b", "a"}, "best_of", 0.7, 4000),
		"strategy":       Key("prompt", "system", []string{"a", "b"}, "vote", 0.7, 4000),
		"temperature":    Key("prompt", "system", []string{"a", "b"}, "best_of", 0.8, 4000),
		"max tokens":     Key("prompt", "system", []string{"a", "b"}, "best_of", 0.7, 2000),
	}
	for name, got := range variants {
		if got == base {
			t.Errorf("changing %s should change the key", name)
		}
	}
}

func TestKeyFieldsCannotBleedIntoEachOther(t *testing.T) {
	// A value ending where the next begins must not produce the same digest.
	a := Key("ab", "c", nil, "", 0, 0)
	b := Key("a", "bc", nil, "", 0, 0)
	if a == b {
		t.Error("field boundaries must be unambiguous")
	}
}
