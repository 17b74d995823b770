package textutil

import "strings"

// StripCodeFence removes a surrounding markdown code fence (``` or ```json)
// from an LLM response. Text that already starts with '{' or '[' is returned
// trimmed but otherwise untouched, since a fence may legitimately appear
// inside a string value.
func StripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" || text[0] == '{' || text[0] == '[' {
		return text
	}
	idx := strings.Index(text, "```")
	if idx < 0 {
		return text
	}
	text = text[idx+3:]
	text = strings.TrimPrefix(text, "json")
	if end := strings.LastIndex(text, "```"); end >= 0 {
		text = text[:end]
	}
	return strings.TrimSpace(text)
}

// SanitizeJSON escapes raw control characters that appear inside JSON string
// literals. Models occasionally emit literal newlines or tabs in long text
// fields, which encoding/json rejects.
func SanitizeJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}
		if escaped {
			escaped = false
			b.WriteByte(c)
			continue
		}
		switch c {
		case '\\':
			escaped = true
			b.WriteByte(c)
		case '"':
			inString = false
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 {
				continue
			}
			b.WriteByte(c)
		}
	}
	return b.String()
}
