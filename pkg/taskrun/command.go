package taskrun

import "strings"

// StripCommonIndent strips the minimum common leading whitespace across
// non-blank lines of a rendered command. Leading
// and trailing all-blank lines are trimmed first, matching miniwdl's
// behavior of not letting an empty first/last line affect the common
// indent.
func StripCommonIndent(command string) string {
	lines := strings.Split(command, "\n")

	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	lines = lines[start:end]
	if len(lines) == 0 {
		return ""
	}

	minIndent := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		indent := leadingWhitespace(l)
		if minIndent == -1 || len(indent) < minIndent {
			minIndent = len(indent)
		}
	}
	if minIndent <= 0 {
		return strings.Join(lines, "\n")
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		if len(l) >= minIndent {
			out[i] = l[minIndent:]
		} else {
			out[i] = strings.TrimLeft(l, " \t")
		}
	}
	return strings.Join(out, "\n")
}

// leadingWhitespace returns s's leading run of spaces/tabs; tabs and spaces
// each count as one column, matching miniwdl's raw character-count dedent
// rather than a tab-expanding one.
func leadingWhitespace(s string) string {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return s[:i]
}
