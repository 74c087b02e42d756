package research

import (
	"regexp"
	"strings"
)

var blankRunRe = regexp.MustCompile(`\n{3,}`)

// NormalizeMarkdown converts CRLF and lone CR line endings to LF, collapses
// runs of two or more blank lines into one, and trims surrounding
// whitespace. Other lines are left untouched.
func NormalizeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
