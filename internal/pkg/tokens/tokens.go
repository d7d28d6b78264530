package tokens

import "strings"

// Estimate approximates the token count of text: one per word plus one per
// non-ASCII rune, so CJK text without spaces is not undercounted.
func Estimate(text string) int {
	count := 0
	for _, r := range text {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(text))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}
