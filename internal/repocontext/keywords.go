package repocontext

import (
	"sort"
	"strings"
	"unicode"
)

// maxKeywords caps how many distinct keywords feed the index search.
const maxKeywords = 8

// stopwords are common words that carry no retrieval signal.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "this": {}, "that": {},
	"from": {}, "are": {}, "was": {}, "not": {}, "but": {}, "has": {},
	"have": {}, "had": {}, "can": {}, "could": {}, "should": {}, "would": {},
	"when": {}, "what": {}, "where": {}, "which": {}, "while": {}, "will": {},
	"into": {}, "about": {}, "after": {}, "before": {}, "there": {}, "their": {},
	"been": {}, "being": {}, "does": {}, "doesn": {}, "don": {}, "get": {},
	"gets": {}, "please": {}, "also": {}, "only": {}, "some": {}, "then": {},
	"than": {}, "them": {}, "they": {}, "you": {}, "your": {}, "our": {},
	"its": {}, "it's": {}, "any": {}, "all": {}, "how": {}, "why": {},
	"issue": {}, "error": {}, "using": {}, "use": {}, "like": {}, "just": {},
}

// ExtractKeywords derives search keywords from free text: lowercase words
// split on non-alphanumerics, stopwords and short tokens dropped, ranked
// by frequency, capped at maxKeywords.
func ExtractKeywords(texts ...string) []string {
	counts := make(map[string]int)
	order := make(map[string]int)
	pos := 0

	for _, text := range texts {
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			if len(w) < 3 {
				continue
			}
			if _, ok := stopwords[w]; ok {
				continue
			}
			if _, seen := counts[w]; !seen {
				order[w] = pos
				pos++
			}
			counts[w]++
		}
	}

	keywords := make([]string, 0, len(counts))
	for w := range counts {
		keywords = append(keywords, w)
	}
	// Frequency first, then first appearance for a stable order.
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return order[keywords[i]] < order[keywords[j]]
	})

	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	return keywords
}
