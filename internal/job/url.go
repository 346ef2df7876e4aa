package job

import (
	"regexp"
	"strings"
)

var youtubeURLPattern = regexp.MustCompile(
	`^(https?://)?(www\.)?(youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/)[\w-]+`,
)

// ValidateURL reports whether raw is one of the recognized YouTube forms:
// watch?v=, youtu.be/ or embed/, with optional scheme and www. prefix.
func ValidateURL(raw string) bool {
	return youtubeURLPattern.MatchString(strings.TrimSpace(raw))
}
