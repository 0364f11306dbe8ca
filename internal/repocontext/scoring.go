package repocontext

import "strings"

// binaryExtensions are file types never worth including as context.
var binaryExtensions = map[string]struct{}{
	"png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "ico": {}, "svg": {},
	"pdf": {}, "zip": {}, "tar": {}, "gz": {}, "bz2": {}, "xz": {},
	"exe": {}, "dll": {}, "so": {}, "dylib": {}, "bin": {}, "o": {},
	"a": {}, "jar": {}, "class": {}, "woff": {}, "woff2": {}, "ttf": {},
	"mp3": {}, "mp4": {}, "avi": {}, "mov": {}, "webm": {}, "lock": {},
}

// sourceExtensions mirror the index whitelist for path-only scoring.
var sourceExtensions = map[string]struct{}{
	"rs": {}, "py": {}, "js": {}, "ts": {}, "tsx": {}, "jsx": {},
	"java": {}, "c": {}, "cpp": {}, "h": {}, "hpp": {}, "go": {},
	"rb": {}, "php": {}, "cs": {}, "scala": {}, "kt": {}, "swift": {},
	"sh": {}, "vue": {}, "svelte": {},
}

// ScorePath ranks a file path by shape alone, used when the index is empty
// or stale: documentation +5, source code +3, +10 per keyword substring
// hit, binaries 0.
func ScorePath(path string, keywords []string) int {
	lower := strings.ToLower(path)

	ext := ""
	if idx := strings.LastIndex(lower, "."); idx >= 0 {
		ext = lower[idx+1:]
	}
	if _, ok := binaryExtensions[ext]; ok {
		return 0
	}

	score := 0
	base := lower
	if idx := strings.LastIndex(lower, "/"); idx >= 0 {
		base = lower[idx+1:]
	}
	if strings.HasPrefix(base, "readme") || strings.HasPrefix(lower, "docs/") || ext == "md" {
		score += 5
	}
	if _, ok := sourceExtensions[ext]; ok {
		score += 3
	}
	for _, keyword := range keywords {
		if keyword != "" && strings.Contains(lower, strings.ToLower(keyword)) {
			score += 10
		}
	}
	return score
}
