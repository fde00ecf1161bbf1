// Package similarity implements the stateless pairwise string similarity
// functions a FieldRule may select: exact, substring, Levenshtein, and
// Jaro-Winkler, plus the phonetic codecs (Soundex, Metaphone) a MatchingSpec
// field rule can name via SimilarityPhoneticSoundex/Metaphone. Every
// function is symmetric, bounded in [0,1], and defined on empty strings.
package similarity

import (
	"math"
	"strings"
	"unicode"

	"github.com/Ramsey-B/reconcile/pkg/core"
)

// Scorer groups the similarity algorithms behind a single receiver so
// callers can hold one instance and call whichever function a FieldRule
// names.
type Scorer struct{}

// NewScorer creates a Scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Exact returns 1.0 iff the bytes are equal, else 0.0. Both empty is a
// match; comparison is case-sensitive (normalization, if any, happens
// before the similarity function runs).
func (s *Scorer) Exact(a, b string) float64 {
	if a == b {
		return 1.0
	}
	return 0.0
}

// Substring returns 0.8 iff either string contains the other
// (case-insensitive), else 0.0. Two empty strings score 1.0, the same as
// Exact gives them, rather than the substring score.
func (s *Scorer) Substring(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if strings.Contains(la, lb) || strings.Contains(lb, la) {
		return 0.8
	}
	return 0.0
}

// Levenshtein returns 1 - edit_distance/max(|a|,|b|); 1.0 for two empty
// strings.
func (s *Scorer) Levenshtein(a, b string) float64 {
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(s.LevenshteinDistance(a, b))/float64(maxLen)
}

// LevenshteinDistance computes the edit distance between a and b.
func (s *Scorer) LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prevRow[j]+1), prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}

// JaroWinkler computes the Jaro-Winkler similarity: the Jaro similarity
// plus a common-prefix boost capped at 4 characters with factor 0.1.
func (s *Scorer) JaroWinkler(a, b string) float64 {
	if a == b {
		return 1.0
	}

	jaro := s.Jaro(a, b)

	prefixLen := 0
	const maxPrefix = 4
	for i := 0; i < len(a) && i < len(b) && i < maxPrefix; i++ {
		if a[i] != b[i] {
			break
		}
		prefixLen++
	}

	const scalingFactor = 0.1
	return jaro + float64(prefixLen)*scalingFactor*(1.0-jaro)
}

// Jaro computes the standard Jaro similarity.
func (s *Scorer) Jaro(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	matchDist := max(len(a), len(b))/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}

	aMatches := make([]bool, len(a))
	bMatches := make([]bool, len(b))

	matches := 0
	for i := 0; i < len(a); i++ {
		start := max(0, i-matchDist)
		end := min(len(b), i+matchDist+1)

		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	transpositions := 0
	k := 0
	for i := 0; i < len(a); i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2

	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3
}

// Soundex returns the Soundex code of a string.
func (s *Scorer) Soundex(str string) string {
	if len(str) == 0 {
		return ""
	}
	str = strings.ToUpper(str)

	result := string(str[0])
	prevCode := soundexCode(rune(str[0]))

	for i := 1; i < len(str) && len(result) < 4; i++ {
		char := rune(str[i])
		if !unicode.IsLetter(char) {
			continue
		}
		code := soundexCode(char)
		if code != "0" && code != prevCode {
			result += code
		}
		prevCode = code
	}
	for len(result) < 4 {
		result += "0"
	}
	return result
}

// SoundexMatch returns 1.0 if the Soundex codes of a and b match.
func (s *Scorer) SoundexMatch(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	if s.Soundex(a) == s.Soundex(b) {
		return 1.0
	}
	return 0.0
}

func soundexCode(char rune) string {
	switch char {
	case 'B', 'F', 'P', 'V':
		return "1"
	case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
		return "2"
	case 'D', 'T':
		return "3"
	case 'L':
		return "4"
	case 'M', 'N':
		return "5"
	case 'R':
		return "6"
	default:
		return "0"
	}
}

// Metaphone returns a simplified Metaphone encoding of a string.
func (s *Scorer) Metaphone(str string) string {
	if len(str) == 0 {
		return ""
	}
	str = strings.ToUpper(str)

	var letters strings.Builder
	for _, char := range str {
		if unicode.IsLetter(char) {
			letters.WriteRune(char)
		}
	}
	str = letters.String()
	if len(str) == 0 {
		return ""
	}

	var out strings.Builder
	prevCode := byte(0)
	for i := 0; i < len(str) && out.Len() < 6; i++ {
		code := metaphoneCode(str[i], i, str)
		if code != 0 && code != prevCode {
			out.WriteByte(code)
			prevCode = code
		}
	}
	return out.String()
}

// MetaphoneMatch returns 1.0 if the Metaphone codes of a and b match.
func (s *Scorer) MetaphoneMatch(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	if s.Metaphone(a) == s.Metaphone(b) {
		return 1.0
	}
	return 0.0
}

func metaphoneCode(char byte, pos int, word string) byte {
	switch char {
	case 'A', 'E', 'I', 'O', 'U':
		if pos == 0 {
			return char
		}
		return 0
	case 'B':
		return 'B'
	case 'C':
		if pos+1 < len(word) && (word[pos+1] == 'I' || word[pos+1] == 'E' || word[pos+1] == 'Y') {
			return 'S'
		}
		return 'K'
	case 'D':
		return 'T'
	case 'F':
		return 'F'
	case 'G':
		return 'J'
	case 'H':
		return 0
	case 'J':
		return 'J'
	case 'K':
		return 'K'
	case 'L':
		return 'L'
	case 'M':
		return 'M'
	case 'N':
		return 'N'
	case 'P':
		if pos+1 < len(word) && word[pos+1] == 'H' {
			return 'F'
		}
		return 'P'
	case 'Q':
		return 'K'
	case 'R':
		return 'R'
	case 'S':
		return 'S'
	case 'T':
		return 'T'
	case 'V':
		return 'F'
	case 'W':
		return 0
	case 'X':
		return 'S'
	case 'Y':
		return 0
	case 'Z':
		return 'S'
	default:
		return 0
	}
}

// DateProximity scores two RFC3339 timestamps by day proximity: 1.0 exact,
// decaying linearly to 0.0 at maxDaysDiff.
func (s *Scorer) DateProximity(a, b string, maxDaysDiff int) float64 {
	ta, erra := parseTime(a)
	tb, errb := parseTime(b)
	if erra != nil || errb != nil {
		return 0.0
	}
	daysDiff := math.Abs(ta.Sub(tb).Hours() / 24)
	if daysDiff == 0 {
		return 1.0
	}
	if maxDaysDiff <= 0 || int(daysDiff) >= maxDaysDiff {
		return 0.0
	}
	return 1.0 - (daysDiff / float64(maxDaysDiff))
}

// Apply dispatches to the similarity function named by fn, applying it to
// the canonical string forms a and b.
func Apply(fn core.SimilarityFunction, a, b string, scorer *Scorer) float64 {
	switch fn {
	case core.SimilarityExact:
		return scorer.Exact(a, b)
	case core.SimilaritySubstring:
		return scorer.Substring(a, b)
	case core.SimilarityLevenshtein:
		return scorer.Levenshtein(a, b)
	case core.SimilarityJaroWinkler:
		return scorer.JaroWinkler(a, b)
	case core.SimilarityPhoneticSoundex:
		return scorer.SoundexMatch(a, b)
	case core.SimilarityPhoneticMetaphone:
		return scorer.MetaphoneMatch(a, b)
	default:
		return scorer.JaroWinkler(a, b)
	}
}
