package index

import (
	"fmt"
	"strings"
	"testing"
)

func TestRelevanceScore(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		keywords []string
		want     int
	}{
		{"single occurrence", "fn main()", []string{"main"}, 1},
		{"case insensitive", "Main MAIN main", []string{"main"}, 3},
		{"multiple keywords", "parse the parser", []string{"parse", "the"}, 3},
		{"no match", "hello", []string{"world"}, 0},
		{"empty keyword ignored", "hello", []string{""}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RelevanceScore(tt.text, tt.keywords); got != tt.want {
				t.Errorf("RelevanceScore() = %d, want %d", got, tt.want)
			}
		})
	}
}

// twentyLineFile returns a 20-line file with the keyword on line 10.
func twentyLineFile() string {
	lines := make([]string, 20)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i+1)
	}
	lines[9] = "here is the needle"
	return strings.Join(lines, "\n")
}

func TestExtractSectionsContextThree(t *testing.T) {
	sections := ExtractSections(twentyLineFile(), []string{"needle"}, 3)
	if len(sections) != 1 {
		t.Fatalf("got %d sections, want 1", len(sections))
	}
	s := sections[0]
	if s.StartLine != 7 || s.EndLine != 13 {
		t.Errorf("section = [%d,%d], want [7,13]", s.StartLine, s.EndLine)
	}
	if len(s.Lines) != 7 {
		t.Errorf("len(Lines) = %d, want 7", len(s.Lines))
	}
}

func TestExtractSectionsContextEight(t *testing.T) {
	sections := ExtractSections(twentyLineFile(), []string{"needle"}, 8)
	if len(sections) != 1 {
		t.Fatalf("got %d sections, want 1", len(sections))
	}
	s := sections[0]
	if s.StartLine != 2 || s.EndLine != 18 {
		t.Errorf("section = [%d,%d], want [2,18]", s.StartLine, s.EndLine)
	}
	if len(s.Lines) != 17 {
		t.Errorf("len(Lines) = %d, want 17", len(s.Lines))
	}
}

func TestExtractSectionsMergesTouchingRanges(t *testing.T) {
	text := "needle\nb\nc\nneedle\ne\nf\ng\nh\ni\nj"
	sections := ExtractSections(text, []string{"needle"}, 1)
	// Hits on lines 1 and 4 give [1,2] and [3,5], which touch and merge.
	if len(sections) != 1 {
		t.Fatalf("got %d sections, want 1 merged", len(sections))
	}
	if sections[0].StartLine != 1 || sections[0].EndLine != 5 {
		t.Errorf("merged section = [%d,%d], want [1,5]", sections[0].StartLine, sections[0].EndLine)
	}
}

func TestExtractSectionsDisjointRanges(t *testing.T) {
	lines := make([]string, 30)
	for i := range lines {
		lines[i] = "filler"
	}
	lines[2] = "needle one"
	lines[24] = "needle two"
	sections := ExtractSections(strings.Join(lines, "\n"), []string{"needle"}, 2)
	if len(sections) != 2 {
		t.Fatalf("got %d sections, want 2", len(sections))
	}
	if sections[0].StartLine != 1 || sections[0].EndLine != 5 {
		t.Errorf("first section = [%d,%d], want [1,5]", sections[0].StartLine, sections[0].EndLine)
	}
	if sections[1].StartLine != 23 || sections[1].EndLine != 27 {
		t.Errorf("second section = [%d,%d], want [23,27]", sections[1].StartLine, sections[1].EndLine)
	}
}

func TestExtractSectionsClampsAtBounds(t *testing.T) {
	sections := ExtractSections("needle\nb\nc", []string{"needle"}, 5)
	if len(sections) != 1 {
		t.Fatalf("got %d sections, want 1", len(sections))
	}
	if sections[0].StartLine != 1 || sections[0].EndLine != 3 {
		t.Errorf("section = [%d,%d], want clamped [1,3]", sections[0].StartLine, sections[0].EndLine)
	}
}

func TestExtractSectionsNoHits(t *testing.T) {
	if got := ExtractSections("a\nb\nc", []string{"zzz"}, 3); got != nil {
		t.Errorf("ExtractSections with no hits = %v, want nil", got)
	}
}
