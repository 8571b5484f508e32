package classifier

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds text for matching: Unicode compatibility normalization,
// lower-casing and trimming.
func Normalize(text string) string {
	// cases.Caser is stateful, so one per call.
	lower := cases.Lower(language.Und).String(norm.NFKC.String(text))
	return strings.TrimSpace(lower)
}

// Matcher finds which of a fixed list of phrases occur in a text as whole
// words or exact multi-word phrases. A phrase never matches inside a longer
// word: "gas" does not match "gasoline".
//
// Candidates are found in one Aho-Corasick pass and then confirmed against
// word boundaries. Safe for concurrent use.
type Matcher struct {
	phrases []string
	dict    []string
	owners  [][]int // dict index -> indexes into phrases
	ac      *ahocorasick.Matcher
}

// NewMatcher builds a matcher over phrases. Phrases are normalized; blank
// phrases never match.
func NewMatcher(phrases []string) *Matcher {
	m := &Matcher{phrases: make([]string, len(phrases))}
	byPhrase := make(map[string]int)
	for i, p := range phrases {
		p = strings.Join(strings.Fields(Normalize(p)), " ")
		m.phrases[i] = p
		if p == "" {
			continue
		}
		idx, ok := byPhrase[p]
		if !ok {
			idx = len(m.dict)
			byPhrase[p] = idx
			m.dict = append(m.dict, p)
			m.owners = append(m.owners, nil)
		}
		m.owners[idx] = append(m.owners[idx], i)
	}
	if len(m.dict) > 0 {
		m.ac = ahocorasick.NewStringMatcher(m.dict)
	}
	return m
}

// Len returns the number of phrases the matcher was built with.
func (m *Matcher) Len() int {
	return len(m.phrases)
}

// Phrase returns the normalized phrase at index i.
func (m *Matcher) Phrase(i int) string {
	return m.phrases[i]
}

// Matches returns the indexes of all phrases present in the already
// normalized text, in ascending order.
func (m *Matcher) Matches(text string) []int {
	if m.ac == nil || text == "" {
		return nil
	}
	var out []int
	for _, hit := range m.ac.MatchThreadSafe([]byte(text)) {
		if hit < 0 || hit >= len(m.dict) {
			continue
		}
		if !ContainsWord(text, m.dict[hit]) {
			continue
		}
		out = append(out, m.owners[hit]...)
	}
	sort.Ints(out)
	return out
}

// Any reports whether any phrase is present in the normalized text.
func (m *Matcher) Any(text string) bool {
	return len(m.Matches(text)) > 0
}

// ContainsWord reports whether phrase occurs in text delimited by word
// boundaries. Both arguments are expected to be normalized already.
func ContainsWord(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(phrase)
	last, _ := utf8.DecodeLastRuneInString(phrase)
	needLeft := isWordRune(first)
	needRight := isWordRune(last)

	offset := 0
	for offset <= len(text)-len(phrase) {
		i := strings.Index(text[offset:], phrase)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(phrase)
		leftOK := true
		if needLeft && start > 0 {
			r, _ := utf8.DecodeLastRuneInString(text[:start])
			leftOK = !isWordRune(r)
		}
		rightOK := true
		if needRight && end < len(text) {
			r, _ := utf8.DecodeRuneInString(text[end:])
			rightOK = !isWordRune(r)
		}
		if leftOK && rightOK {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return false
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}
