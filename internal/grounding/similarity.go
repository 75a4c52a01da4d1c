// File: internal/grounding/similarity.go
package grounding

import "strings"

// normalizeText lowercases, collapses whitespace, and strips common label
// punctuation so "First Name: *" compares equal to "first name".
func normalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ":*•?! \t\n")
	return strings.Join(strings.Fields(s), " ")
}

// textSimilarity scores two label strings in [0,1]. Exact normalized
// equality scores 1.0, containment scores higher than fuzzy distance, and
// anything else falls back to normalized Levenshtein similarity.
func textSimilarity(a, b string) float64 {
	na, nb := normalizeText(a), normalizeText(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		// Containment is strong evidence but weaker than equality; scale by
		// the length ratio so "name" inside "first name" beats "name" inside
		// a paragraph of text.
		shorter, longer := len(na), len(nb)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		return 0.7 + 0.25*float64(shorter)/float64(longer)
	}
	return levenshteinSimilarity(na, nb)
}

// levenshteinSimilarity is 1 - dist/maxLen over the normalized strings.
func levenshteinSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 0
	}
	dist := levenshtein(ra, rb)
	return 1.0 - float64(dist)/float64(maxLen)
}

// levenshtein computes edit distance with a two-row rolling buffer.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = minInt(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// fuzzyLabelEquals reports whether a DOM label's text and a visually read
// label are the same label, tolerating OCR-level noise.
func fuzzyLabelEquals(domLabel, visualLabel string) bool {
	return textSimilarity(domLabel, visualLabel) >= 0.8
}
