package command

import (
	"regexp"
	"strings"
)

const (
	framePrefix = "data:"
	endSentinel = "__END__"
)

// CleanOutput joins streamed chunks into one reply, dropping framing that
// leaked through double-wrapped event streams and a trailing end marker.
func CleanOutput(chunks []string) string {
	lines := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		for _, line := range strings.Split(chunk, "\n") {
			line = strings.TrimRight(line, "\r")
			if strings.HasPrefix(strings.TrimSpace(line), framePrefix) {
				line = strings.TrimSpace(line)[len(framePrefix):]
				line = strings.TrimPrefix(line, " ")
			}
			if strings.TrimSpace(line) == endSentinel {
				continue
			}
			lines = append(lines, line)
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

var prLinkRe = regexp.MustCompile(`https://github\.com/[\w.-]+/[\w.-]+/pull/\d+`)

// ExtractPRLink returns the first GitHub pull request URL in text.
func ExtractPRLink(text string) string {
	return prLinkRe.FindString(text)
}
