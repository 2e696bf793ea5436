package gateway

import (
	"regexp"
	"strings"
)

const maxTitleLength = 60

var (
	markdownMarkup = regexp.MustCompile("[*_`#>]+")
	titlePrefix    = regexp.MustCompile(`(?i)^(?:title|chat title|topic)\s*[:\-]\s*`)
)

// CleanTitle normalizes raw model output into a display-ready chat title:
// markdown markup and "Title:"-style prefixes are stripped, the result is
// collapsed to one line and hard-truncated.
func CleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if i := strings.IndexAny(title, "\r\n"); i >= 0 {
		title = title[:i]
	}
	title = markdownMarkup.ReplaceAllString(title, "")
	title = titlePrefix.ReplaceAllString(title, "")
	title = strings.Trim(title, "\"' ")

	runes := []rune(title)
	if len(runes) > maxTitleLength {
		title = strings.TrimSpace(string(runes[:maxTitleLength])) + "..."
	}
	return title
}
