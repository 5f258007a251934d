package cache

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
)

// Key derives the content-addressable cache key for an orchestration call.
// Every parameter that changes the answer participates, written in a fixed
// field order so two logically identical requests always collide. Prompt
// whitespace is normalized; the provider list keeps its order because it is
// semantic (best_of tie-breaks on request order).
func Key(prompt, systemPrompt string, providers []string, strategy string, temperature float64, maxTokens int) string {
	h := sha256.New()
	writeField(h, "prompt", normalizeText(prompt))
	writeField(h, "system", normalizeText(systemPrompt))
	writeField(h, "providers", strings.Join(providers, ","))
	writeField(h, "strategy", strategy)
	writeField(h, "temperature", strconv.FormatFloat(temperature, 'f', 4, 64))
	writeField(h, "max_tokens", strconv.Itoa(maxTokens))
	return fmt.Sprintf("%x", h.Sum(nil))
}

func writeField(h interface{ Write([]byte) (int, error) }, name, value string) {
	h.Write([]byte(name))
	h.Write([]byte{'='})
	h.Write([]byte(value))
	h.Write([]byte{0})
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
