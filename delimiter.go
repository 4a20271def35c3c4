package csvjson

import "strings"

// InferDelimiter picks the field separator for sample.
//
// Only the first non-empty line is inspected: later lines may carry the same
// characters inside quoted text. The candidate with strictly the highest count
// wins. No occurrences, or a tie for the maximum, yields DefaultDelimiter.
// An empty candidate set means DefaultCandidates.
func InferDelimiter(sample string, candidates []byte) byte {
	if len(candidates) == 0 {
		candidates = DefaultCandidates
	}
	line := firstNonEmptyLine(sample)
	if line == "" {
		return DefaultDelimiter
	}

	best := byte(DefaultDelimiter)
	bestCount := 0
	tie := false
	for _, c := range candidates {
		n := strings.Count(line, string(c))
		switch {
		case n > bestCount:
			best, bestCount, tie = c, n, false
		case n == bestCount && n > 0 && c != best:
			tie = true
		}
	}
	if bestCount == 0 || tie {
		return DefaultDelimiter
	}
	return best
}

func firstNonEmptyLine(s string) string {
	for len(s) > 0 {
		i := strings.IndexAny(s, "\r\n")
		if i < 0 {
			return s
		}
		if i > 0 {
			return s[:i]
		}
		s = s[1:]
	}
	return ""
}
