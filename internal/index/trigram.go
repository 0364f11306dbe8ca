// Package index maintains per-project character-trigram indexes over
// repository source files, supporting sublinear keyword retrieval plus a
// relevance scorer and section extractor used to shape prompt context.
package index

import (
	"hash/fnv"
	"strings"
)

// Trigrams yields every sliding 3-rune window of the lowercased input.
// Inputs shorter than 3 runes produce the whole string as the sole entry.
func Trigrams(s string) []string {
	runes := []rune(strings.ToLower(s))
	if len(runes) == 0 {
		return nil
	}
	if len(runes) < 3 {
		return []string{string(runes)}
	}
	grams := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		grams = append(grams, string(runes[i:i+3]))
	}
	return grams
}

// ContentHash returns a 64-bit FNV-1a hash of the content. Equal inputs
// always hash equal, which is all the change detector needs.
func ContentHash(content string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(content))
	return h.Sum64()
}
