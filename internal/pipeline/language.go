package pipeline

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// minLanguageConfidence is the floor below which the detector's guess is
// discarded in favour of the configured default.
const minLanguageConfidence = 0.5

func detectLanguage(text, fallback string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return fallback
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() && info.Confidence < minLanguageConfidence {
		return fallback
	}
	code := info.Lang.Iso6391()
	if code == "" {
		return fallback
	}
	return code
}
