// Package hangul implements the Korean initial-consonant (chosung) matching
// used by the local suggestion index: "ㄱㄱ" matches "감기".
package hangul

import "strings"

const (
	syllableBase = 0xAC00
	syllableEnd  = 0xD7A3
)

var chosung = []rune{
	'ㄱ', 'ㄲ', 'ㄴ', 'ㄷ', 'ㄸ', 'ㄹ', 'ㅁ', 'ㅂ', 'ㅃ', 'ㅅ',
	'ㅆ', 'ㅇ', 'ㅈ', 'ㅉ', 'ㅊ', 'ㅋ', 'ㅌ', 'ㅍ', 'ㅎ',
}

func isSyllable(r rune) bool {
	return r >= syllableBase && r <= syllableEnd
}

// Chosung maps every Hangul syllable in s to its initial consonant.
// Non-Hangul runes pass through unchanged: "감기" -> "ㄱㄱ", "Apple" -> "Apple".
func Chosung(s string) string {
	var b strings.Builder
	for _, r := range s {
		if isSyllable(r) {
			// 21 medial vowels x 28 final consonants per initial.
			b.WriteRune(chosung[(r-syllableBase)/(21*28)])
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Match reports whether query matches target, by direct containment or by
// chosung containment. Whitespace is ignored on both sides.
func Match(query, target string) bool {
	q := stripSpaces(query)
	t := stripSpaces(target)
	if q == "" || t == "" {
		return false
	}
	if strings.Contains(t, q) {
		return true
	}
	return strings.Contains(Chosung(t), q)
}

func stripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}
