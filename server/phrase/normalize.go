package phrase

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MinPhraseLength is the shortest normalized secret phrase that arms the listener.
const MinPhraseLength = 3

// Normalize lower-cases and trims text, folds accents and collapses inner whitespace so that
// transcripts and the configured phrase compare on the same footing.
func Normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = stripAccents(text)
	return strings.Join(strings.Fields(text), " ")
}

// ValidPhrase reports whether phrase is long enough to be used.
func ValidPhrase(phrase string) bool {
	return len([]rune(Normalize(phrase))) >= MinPhraseLength
}

// Matches reports whether transcript contains phrase after normalization of both.
func Matches(transcript, phrase string) bool {
	p := Normalize(phrase)
	if len([]rune(p)) < MinPhraseLength {
		return false
	}
	return strings.Contains(Normalize(transcript), p)
}

func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	res, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return res
}
