package tokenizer

import "unicode/utf8"

// charsPerToken is the fixed ratio used when no exact tokenizer is available.
const charsPerToken = 4

// Estimate returns ceil(runes/4), the heuristic count used when no handle is
// available or the encoder fails.
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
}
