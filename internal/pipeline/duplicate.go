package pipeline

import (
	"regexp"
	"strings"

	"mailtriage/internal/util"
)

// Generic acknowledgment openers, matched case-insensitively against the
// start of the most recent line. Whatever ends the thread is the freshest
// signal: a bare "thanks" implies no actionable substance, anything else
// implies the thread is still live. Heuristic only, and intentionally so.
var genericReplyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^thank you`),
	regexp.MustCompile(`^thanks`),
	regexp.MustCompile(`^appreciate it`),
	regexp.MustCompile(`^noted`),
	regexp.MustCompile(`^got it`),
	regexp.MustCompile(`^acknowledged`),
	regexp.MustCompile(`^understood`),
}

// DetectDuplicate reports whether the latest reply in the body is a
// content-free acknowledgment. Only the literal last non-empty line is
// inspected; bodies that concatenate a whole thread without separators are a
// known limitation of that rule, kept deliberately.
func DetectDuplicate(body string) bool {
	last := strings.ToLower(util.LastNonEmptyLine(body))
	if last == "" {
		return false
	}
	for _, re := range genericReplyPatterns {
		if re.MatchString(last) {
			return true
		}
	}
	return false
}
