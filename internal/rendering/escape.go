// Package rendering turns structured resume data into Typst markup.
package rendering

import "strings"

// EscapeTypstString escapes characters that would terminate or corrupt a Typst string literal.
// Special characters: \ "
func EscapeTypstString(text string) string {
	if text == "" || !strings.ContainsAny(text, `\"`) {
		return text
	}

	var result strings.Builder
	result.Grow(len(text) + 8)

	for _, r := range text {
		switch r {
		case '\\':
			result.WriteString(`\\`)
		case '"':
			result.WriteString(`\"`)
		default:
			result.WriteRune(r)
		}
	}

	return result.String()
}
