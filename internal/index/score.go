package index

import "strings"

// RelevanceScore sums, over all keywords, the number of lowercase substring
// occurrences in the text. It weighs file content when ranking candidates.
func RelevanceScore(text string, keywords []string) int {
	lower := strings.ToLower(text)
	score := 0
	for _, keyword := range keywords {
		k := strings.ToLower(keyword)
		if k == "" {
			continue
		}
		score += strings.Count(lower, k)
	}
	return score
}

// Section is a contiguous 1-based line range extracted around keyword hits.
type Section struct {
	StartLine int
	EndLine   int
	Lines     []string
}

// ExtractSections finds every line containing any keyword and emits merged
// sections of ±contextLines around each hit. Overlapping or touching
// sections collapse into one.
func ExtractSections(text string, keywords []string, contextLines int) []Section {
	if len(keywords) == 0 {
		return nil
	}

	lines := strings.Split(text, "\n")

	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}

	type span struct{ start, end int } // 1-based, inclusive
	var spans []span
	for i, line := range lines {
		lower := strings.ToLower(line)
		hit := false
		for _, k := range lowered {
			if k != "" && strings.Contains(lower, k) {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}
		lineNo := i + 1
		start := lineNo - contextLines
		if start < 1 {
			start = 1
		}
		end := lineNo + contextLines
		if end > len(lines) {
			end = len(lines)
		}
		spans = append(spans, span{start, end})
	}

	if len(spans) == 0 {
		return nil
	}

	// Merge overlapping or touching spans. Hits are discovered in line
	// order, so spans are already sorted by start.
	merged := []span{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end+1 {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}

	sections := make([]Section, 0, len(merged))
	for _, s := range merged {
		sections = append(sections, Section{
			StartLine: s.start,
			EndLine:   s.end,
			Lines:     lines[s.start-1 : s.end],
		})
	}
	return sections
}
