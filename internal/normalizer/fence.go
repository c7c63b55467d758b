package normalizer

import "strings"

const fenceMarker = "```"

// StripFences removes an opening fence with its optional language tag
// (``` or ```json) and a trailing fence from text. Content on the opening
// line after the tag is kept. Text without fences is returned trimmed.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, fenceMarker) {
		return text
	}

	text = strings.TrimPrefix(text, fenceMarker)
	text = text[languageTagLen(text):]

	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, fenceMarker)
	return strings.TrimSpace(text)
}

// languageTagLen reports the length of the info string tag that directly
// follows an opening fence.
func languageTagLen(s string) int {
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '+':
		default:
			return i
		}
	}
	return len(s)
}
