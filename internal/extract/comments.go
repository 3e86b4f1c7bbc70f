// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import "strings"

// StripComments removes % comments up to end of line, keeping escaped \%
// literals. Line count is preserved so positions computed afterwards still
// map back through Combined.FileFor.
func StripComments(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	inComment := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case inComment:
			if c == '\n' {
				inComment = false
				b.WriteByte(c)
			}
		case c == '\\' && i+1 < len(src):
			b.WriteByte(c)
			b.WriteByte(src[i+1])
			i++
		case c == '%':
			inComment = true
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
