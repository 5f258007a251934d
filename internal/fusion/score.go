package fusion

import (
	"strings"
	"unicode/utf8"
)

const (
	defaultMinLength = 200
	defaultMaxLength = 6000
)

// scoreCandidate rates one answer on structural completeness, length within
// the expected band, and presence of required markers. Deterministic for a
// given input.
func scoreCandidate(text string, opts Options) float64 {
	return lengthScore(text, opts) + structureScore(text) + markerScore(text, opts)
}

// lengthScore peaks at 1.0 inside the expected band and decays linearly
// toward 0 outside it.
func lengthScore(text string, opts Options) float64 {
	min, max := opts.LengthBand[0], opts.LengthBand[1]
	if min <= 0 {
		min = defaultMinLength
	}
	if max <= min {
		max = defaultMaxLength
	}
	n := utf8.RuneCountInString(text)
	switch {
	case n >= min && n <= max:
		return 1.0
	case n < min:
		return float64(n) / float64(min)
	default:
		over := float64(n-max) / float64(max)
		if over > 1 {
			return 0
		}
		return 1 - over
	}
}

// structureScore rewards multi-paragraph answers with headings, lists, and
// closed sentences. Capped at 2.0.
func structureScore(text string) float64 {
	var score float64
	paras := paragraphs(text)
	if len(paras) >= 2 {
		score += 0.5
	}
	if len(paras) >= 4 {
		score += 0.25
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			score += 0.25
			break
		}
	}
	if hasListMarker(text) {
		score += 0.5
	}
	if t := strings.TrimSpace(text); strings.HasSuffix(t, ".") || strings.HasSuffix(t, "!") || strings.HasSuffix(t, "?") {
		score += 0.5
	}
	if score > 2 {
		score = 2
	}
	return score
}

func hasListMarker(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") || strings.HasPrefix(trimmed, "1.") {
			return true
		}
	}
	return false
}

// markerScore is the fraction of required markers present, weighted to 1.0.
func markerScore(text string, opts Options) float64 {
	if len(opts.RequiredMarkers) == 0 {
		return 0
	}
	found := 0
	for _, m := range opts.RequiredMarkers {
		if strings.Contains(text, m) {
			found++
		}
	}
	return float64(found) / float64(len(opts.RequiredMarkers))
}

// paragraphs splits text into trimmed, non-empty paragraph segments.
func paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeSegment collapses whitespace so trivially different renderings of
// the same paragraph vote together.
func normalizeSegment(p string) string {
	return strings.Join(strings.Fields(p), " ")
}
