package verdict

import (
	"strings"
)

const fence = "```"

// StripFence removes a wrapping Markdown code fence. The first line must be
// three backticks plus an optional language tag and the last line must be
// three backticks. Only those two lines are removed; backticks inside the
// body are left alone. Input without a complete wrapping fence is returned
// unchanged.
func StripFence(s string) string {
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}

	first := strings.TrimRight(lines[0], " \t\r")
	last := strings.TrimSpace(lines[len(lines)-1])

	if !isOpeningFence(first) || last != fence {
		return s
	}

	return strings.Join(lines[1:len(lines)-1], "\n")
}

func isOpeningFence(line string) bool {
	line = strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(line, fence) {
		return false
	}
	for _, r := range line[len(fence):] {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '+', r == '.':
		default:
			return false
		}
	}
	return true
}
