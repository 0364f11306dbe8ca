package mention

import "testing"

func TestExtractCommand(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantOK  bool
	}{
		{"simple command", "@bot summarize this", "summarize this", true},
		{"leading text", "Hey @bot please summarize", "please summarize", true},
		{"no command", "Thanks @bot", "", false},
		{"whitespace only", "@bot   \n  ", "", false},
		{"no mention", "just a comment", "", false},
		{"trims whitespace", "@bot   X  ", "X", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractCommand(tt.body, "bot")
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ExtractCommand(%q) = (%q, %v), want (%q, %v)",
					tt.body, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestMentionedIsCaseSensitive(t *testing.T) {
	if !Mentioned("ping @bot", "bot") {
		t.Error("expected mention to match")
	}
	if Mentioned("ping @Bot", "bot") {
		t.Error("mention match must be case-sensitive")
	}
}
