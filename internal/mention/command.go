package mention

import "strings"

// Mentioned reports whether the body addresses the bot. The match is
// case-sensitive, mirroring how the forge renders mentions.
func Mentioned(body, botUsername string) bool {
	return strings.Contains(body, "@"+botUsername)
}

// ExtractCommand returns the trimmed text after the first occurrence of
// @{botUsername}. The second return is false when the mention carries no
// command at all (e.g. "Thanks @bot").
func ExtractCommand(body, botUsername string) (string, bool) {
	marker := "@" + botUsername
	idx := strings.Index(body, marker)
	if idx < 0 {
		return "", false
	}
	command := strings.TrimSpace(body[idx+len(marker):])
	if command == "" {
		return "", false
	}
	return command, true
}
