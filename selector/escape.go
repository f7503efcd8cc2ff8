package selector

import "strings"

// special holds the characters that must be backslash-escaped inside a
// class or id segment.
const special = "!\"#$%&'()*+,./:;<=>?@[\\]^`{|}~"

// Escape prefixes every selector metacharacter in s with a backslash.
func Escape(s string) string {
	if !strings.ContainsAny(s, special) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s) + 4)
	for _, r := range s {
		if r < 0x80 && strings.IndexByte(special, byte(r)) >= 0 {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
