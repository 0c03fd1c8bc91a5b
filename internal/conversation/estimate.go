package conversation

import "unicode/utf8"

// EstimateTokens approximates the token cost of a piece of text as
// ceil(characters / 4). Always used for user-authored prompts, where
// the provider never reports a cost, and as a fallback for assistant
// text when the provider reports zero usage.
func EstimateTokens(text string) int64 {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return int64((n + 3) / 4)
}
