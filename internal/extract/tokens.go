package extract

import "unicode/utf8"

// EstimateTokens provides a fast token count estimate without importing a
// tokenizer. Rune count / 3 overestimates slightly for mixed-language text,
// which keeps the reported savings percentage conservative rather than
// inflated. Kept verbatim from purify's cleaner/tokens.go heuristic.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	est := n / 3
	if est < 1 {
		return 1
	}
	return est
}
