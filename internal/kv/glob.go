// ABOUTME: Redis-style glob matching for backends without native pattern support
// ABOUTME: '*' and '?' match any byte including '/', unlike path.Match

package kv

import (
	"fmt"
	"regexp"
	"strings"
)

// compileGlob translates a Redis KEYS/SCAN pattern into an anchored regexp.
// Supported: '*', '?', '[abc]', '[^abc]', '[a-z]' and '\' escapes.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString(`(?s)^`)

	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			sb.WriteString(`.*`)
		case '?':
			sb.WriteString(`.`)
		case '\\':
			if i+1 < len(pattern) {
				i++
			}
			sb.WriteString(regexp.QuoteMeta(string(pattern[i])))
		case '[':
			end := strings.IndexByte(pattern[i+1:], ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated character class in %q", pattern)
			}
			class := pattern[i+1 : i+1+end]
			sb.WriteByte('[')
			if strings.HasPrefix(class, "^") {
				sb.WriteByte('^')
				class = class[1:]
			}
			for j := 0; j < len(class); j++ {
				if class[j] == '-' {
					sb.WriteByte('-')
					continue
				}
				sb.WriteString(regexp.QuoteMeta(string(class[j])))
			}
			sb.WriteByte(']')
			i += end + 1
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	sb.WriteString(`$`)

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("compiling pattern %q: %w", pattern, err)
	}
	return re, nil
}
