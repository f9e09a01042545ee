package service

import "strings"

// Optical look-alikes folded onto one canonical character, so 0/O, 1/I, 5/S,
// 6/G, 8/B and 2/Z compare equal in either direction.
var ocrConfusions = map[rune]rune{
	'O': '0',
	'I': '1',
	'S': '5',
	'G': '6',
	'B': '8',
	'Z': '2',
}

// ExactMatch is case-insensitive plate equality.
func ExactMatch(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// LexicalSimilarity returns 2*LCS/(len(a)+len(b)) over the upper-cased strings.
func LexicalSimilarity(a, b string) float64 {
	ra := []rune(strings.ToUpper(a))
	rb := []rune(strings.ToUpper(b))

	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	if string(ra) == string(rb) {
		return 1
	}
	return 2 * float64(lcsLength(ra, rb)) / float64(total)
}

// PatternSimilarity is LexicalSimilarity after folding common OCR confusions.
func PatternSimilarity(a, b string) float64 {
	return LexicalSimilarity(foldConfusions(a), foldConfusions(b))
}

func foldConfusions(s string) string {
	return strings.Map(func(r rune) rune {
		if c, ok := ocrConfusions[r]; ok {
			return c
		}
		return r
	}, strings.ToUpper(s))
}

func lcsLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
