package engine

import (
	"fmt"
	"strings"
)

var (
	pointerEscaper   = strings.NewReplacer("~", "~0", "/", "~1")
	pointerUnescaper = strings.NewReplacer("~1", "/", "~0", "~")
)

// EscapePointerToken escapes a single reference token for use in an RFC6902 path.
func EscapePointerToken(token string) string {
	return pointerEscaper.Replace(token)
}

// UnescapePointerToken reverses EscapePointerToken. "~01" decodes to "~1".
func UnescapePointerToken(token string) string {
	return pointerUnescaper.Replace(token)
}

// JoinPointer builds a JSON pointer from unescaped tokens.
func JoinPointer(tokens ...string) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteByte('/')
		b.WriteString(EscapePointerToken(t))
	}
	return b.String()
}

// SplitPointer parses a JSON pointer into unescaped tokens.
// The empty pointer addresses the whole document and yields no tokens.
func SplitPointer(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("json pointer %q must start with '/'", path)
	}
	raw := strings.Split(path[1:], "/")
	tokens := make([]string, len(raw))
	for i, t := range raw {
		if err := checkEscapes(t); err != nil {
			return nil, fmt.Errorf("json pointer %q: %w", path, err)
		}
		tokens[i] = UnescapePointerToken(t)
	}
	return tokens, nil
}

// checkEscapes rejects '~' not followed by '0' or '1'.
func checkEscapes(token string) error {
	for i := 0; i < len(token); i++ {
		if token[i] != '~' {
			continue
		}
		if i+1 >= len(token) || (token[i+1] != '0' && token[i+1] != '1') {
			return fmt.Errorf("invalid escape sequence at offset %d", i)
		}
	}
	return nil
}
