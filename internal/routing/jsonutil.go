package routing

import (
	"regexp"
	"strings"
)

// fencePattern matches a markdown code block, with or without a language tag.
var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)\\s*```")

// stripCodeFences returns the body of the first fenced block, or s unchanged.
func stripCodeFences(s string) string {
	if m := fencePattern.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

// firstJSONObject returns the first balanced {...} in s, honoring string
// literals and escapes. Returns "" when none is found.
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
