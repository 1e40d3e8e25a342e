// Package contextmw keeps accumulated analysis context under a token budget
// through threshold-triggered, semantics-preserving summarization.
package contextmw

// EstimateTokens approximates the token count of a text. No provider in use
// exposes a client-side tokenizer, so the conventional four-characters-per-
// token heuristic is applied consistently everywhere tokens are accounted.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	n := (len(s) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}
