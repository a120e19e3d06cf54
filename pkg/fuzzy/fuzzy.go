package fuzzy

import (
	"strings"
	"unicode"
)

// LevenshteinDistance counts the single-rune edits needed to turn s1 into s2.
// Both inputs are normalized first.
func LevenshteinDistance(s1, s2 string) int {
	r1 := []rune(Normalize(s1))
	r2 := []rune(Normalize(s2))
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	// two rolling rows
	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(r2)]
}

// ContainsPhrase reports whether text contains phrase, tolerating small typos.
// The phrase is compared word by word against every window of the same
// length. Words shorter than typoMinLen must match exactly.
func ContainsPhrase(text, phrase string) bool {
	want := strings.Fields(Normalize(phrase))
	if len(want) == 0 {
		return false
	}
	words := strings.Fields(Normalize(text))
	for i := 0; i+len(want) <= len(words); i++ {
		if windowMatches(words[i:i+len(want)], want) {
			return true
		}
	}
	return false
}

const typoMinLen = 6

func windowMatches(window, want []string) bool {
	for j, w := range want {
		if window[j] == w {
			continue
		}
		if len([]rune(w)) < typoMinLen || LevenshteinDistance(window[j], w) > 1 {
			return false
		}
	}
	return true
}

// ScoreApplicant ranks how well an applicant matches a search query.
// Zero means no match.
func ScoreApplicant(query, name, email, major string) float64 {
	query = Normalize(query)
	if query == "" {
		return 0
	}
	score := 0.0

	nameNorm := Normalize(name)
	switch {
	case containsWord(nameNorm, query):
		score += 110
	case strings.Contains(nameNorm, query):
		score += 80
	default:
		score += wordScore(query, nameNorm, 40, 12)
	}

	emailNorm := strings.ToLower(email)
	if strings.Contains(emailNorm, query) {
		score += 60
	} else if local, _, ok := strings.Cut(emailNorm, "@"); ok && strings.HasPrefix(local, query) {
		score += 30
	}

	majorNorm := Normalize(major)
	if strings.Contains(majorNorm, query) {
		score += 50
	} else {
		score += wordScore(query, majorNorm, 25, 8)
	}

	return score
}

// Normalize lowercases, strips accents and punctuation, and collapses whitespace
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range removeAccents(strings.ToLower(s)) {
		switch {
		case r == '\'' || r == '’':
			// "that's" matches "thats"
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// wordScore rewards near matches and prefixes of single words
func wordScore(query, text string, base, perEdit float64) float64 {
	score := 0.0
	for _, word := range strings.Fields(text) {
		if dist := LevenshteinDistance(query, word); dist <= 2 {
			score += base - float64(dist)*perEdit
		}
		if strings.HasPrefix(word, query) {
			score += base * 0.8
		}
	}
	return score
}

func containsWord(text, query string) bool {
	for _, word := range strings.Fields(text) {
		if word == query {
			return true
		}
	}
	return false
}

// removeAccents drops nonspacing marks and folds common accented letters
func removeAccents(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		switch r {
		case 'á', 'à', 'â', 'ä', 'ã', 'å':
			result.WriteRune('a')
		case 'é', 'è', 'ê', 'ë':
			result.WriteRune('e')
		case 'í', 'ì', 'î', 'ï':
			result.WriteRune('i')
		case 'ó', 'ò', 'ô', 'ö', 'õ':
			result.WriteRune('o')
		case 'ú', 'ù', 'û', 'ü':
			result.WriteRune('u')
		case 'ñ':
			result.WriteRune('n')
		case 'ç':
			result.WriteRune('c')
		default:
			result.WriteRune(r)
		}
	}
	return result.String()
}
