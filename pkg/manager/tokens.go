package manager

import "unicode"

// EstimateTokens approximates the token cost of mixed Chinese/English text:
// 1.2 tokens per CJK character plus 1.3 per latin word, never less than one.
func EstimateTokens(s string) int {
	var cjk, words int
	inWord := false
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Han, r):
			cjk++
			inWord = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if !inWord {
				words++
				inWord = true
			}
		default:
			inWord = false
		}
	}
	n := int(1.2*float64(cjk) + 1.3*float64(words))
	if n < 1 {
		n = 1
	}
	return n
}
