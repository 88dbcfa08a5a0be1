package analysis

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

// The matchers below form a small tolerant grammar over a JSON prefix. Each
// one works on a byte offset into the text and never reads past its end.

// stripFences removes markdown code fence markers.
func stripFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

func skipSpace(s string, i int) int {
	for i < len(s) {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			i++
		default:
			return i
		}
	}
	return i
}

// skipString returns the index just past the string literal opening at
// s[start], and false when the literal is unterminated.
func skipString(s string, start int) (int, bool) {
	for i := start + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i + 1, true
		}
	}
	return len(s), false
}

// quotedString decodes the string literal opening at s[start]. An
// unterminated literal yields everything received so far; an escape sequence
// cut by the end of the text is dropped.
func quotedString(s string, start int) (value string, end int, closed bool) {
	if start >= len(s) || s[start] != '"' {
		return "", start, false
	}

	var b strings.Builder
	i := start + 1
	for i < len(s) {
		c := s[i]
		switch c {
		case '"':
			return b.String(), i + 1, true
		case '\\':
			if i+1 >= len(s) {
				return b.String(), len(s), false
			}
			esc := s[i+1]
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case 'u':
				r, width, ok := unicodeEscape(s, i)
				if !ok {
					return b.String(), len(s), false
				}
				b.WriteRune(r)
				i += width
				continue
			default:
				b.WriteByte(esc)
			}
			i += 2
		default:
			b.WriteByte(c)
			i++
		}
	}

	return b.String(), len(s), false
}

// unicodeEscape decodes \uXXXX at s[i], joining surrogate pairs. ok is false
// when the text ends inside the escape.
func unicodeEscape(s string, i int) (r rune, width int, ok bool) {
	if i+6 > len(s) {
		return 0, 0, false
	}

	code, err := strconv.ParseUint(s[i+2:i+6], 16, 32)
	if err != nil {
		return '�', 6, true
	}

	r = rune(code)
	if !utf16.IsSurrogate(r) {
		return r, 6, true
	}

	if i+12 > len(s) {
		return 0, 0, false
	}
	if s[i+6] == '\\' && s[i+7] == 'u' {
		if low, err := strconv.ParseUint(s[i+8:i+12], 16, 32); err == nil {
			return utf16.DecodeRune(r, rune(low)), 12, true
		}
	}

	return '�', 6, true
}

// balancedEnd returns the index just past the brace or bracket that closes
// the one at s[start]. Delimiters inside string literals are ignored.
func balancedEnd(s string, start int) (int, bool) {
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '"':
			end, closed := skipString(s, i)
			if !closed {
				return 0, false
			}
			i = end - 1
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// balancedObject returns the first complete top-level {...} in s.
func balancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	end, ok := balancedEnd(s, start)
	if !ok {
		return "", false
	}

	return s[start:end], true
}

// fieldValue finds "key": in s at or after from and returns the offset of
// the value that follows. The offset equals len(s) when the value has not
// arrived yet.
func fieldValue(s, key string, from int) (int, bool) {
	needle := `"` + key + `"`
	for offset := from; offset < len(s); {
		idx := strings.Index(s[offset:], needle)
		if idx < 0 {
			return 0, false
		}

		pos := skipSpace(s, offset+idx+len(needle))
		if pos < len(s) && s[pos] == ':' {
			return skipSpace(s, pos+1), true
		}

		offset += idx + len(needle)
	}
	return 0, false
}

// stringField extracts the string value of key, closed or not.
func stringField(s, key string) (value string, closed bool, ok bool) {
	pos, found := fieldValue(s, key, 0)
	if !found || pos >= len(s) || s[pos] != '"' {
		return "", false, false
	}

	value, _, closed = quotedString(s, pos)
	return value, closed, true
}

// integerField extracts a numeric value of key, truncating any fraction.
// Quoted numbers are accepted.
func integerField(s, key string) (int, bool) {
	pos, found := fieldValue(s, key, 0)
	if !found || pos >= len(s) {
		return 0, false
	}

	if s[pos] == '"' {
		value, _, closed := quotedString(s, pos)
		if !closed {
			return 0, false
		}
		return parseInteger(strings.TrimSpace(value))
	}

	end := pos
	for end < len(s) && strings.IndexByte("-+0123456789.eE", s[end]) >= 0 {
		end++
	}
	return parseInteger(s[pos:end])
}

func parseInteger(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

// arrayField returns the offset of the '[' opening the value of key.
func arrayField(s, key string) (int, bool) {
	pos, found := fieldValue(s, key, 0)
	if !found || pos >= len(s) || s[pos] != '[' {
		return 0, false
	}
	return pos, true
}

// objectPrefixes collects the complete {...} elements of the array opening at
// s[start]. An element whose closing brace has not arrived is left out.
func objectPrefixes(s string, start int) []string {
	objects := []string{}
	i := start + 1
	for {
		i = skipSeparators(s, i)
		if i >= len(s) || s[i] == ']' {
			return objects
		}

		switch s[i] {
		case '{':
			end, ok := balancedEnd(s, i)
			if !ok {
				return objects
			}
			objects = append(objects, s[i:end])
			i = end
		default:
			next, ok := skipValue(s, i)
			if !ok {
				return objects
			}
			i = next
		}
	}
}

// stringArrayPrefix collects the complete string elements of the array
// opening at s[start]. A trailing unterminated element is dropped.
func stringArrayPrefix(s string, start int) []string {
	values := []string{}
	i := start + 1
	for {
		i = skipSeparators(s, i)
		if i >= len(s) || s[i] == ']' {
			return values
		}

		if s[i] == '"' {
			value, end, closed := quotedString(s, i)
			if !closed {
				return values
			}
			values = append(values, value)
			i = end
			continue
		}

		next, ok := skipValue(s, i)
		if !ok {
			return values
		}
		i = next
	}
}

// stringArrayField is stringArrayPrefix applied to the value of key. It
// returns nil when the key or its '[' has not been seen.
func stringArrayField(s, key string) []string {
	start, ok := arrayField(s, key)
	if !ok {
		return nil
	}
	return stringArrayPrefix(s, start)
}

func skipSeparators(s string, i int) int {
	for i < len(s) {
		switch s[i] {
		case ' ', '\t', '\n', '\r', ',':
			i++
		default:
			return i
		}
	}
	return i
}

// skipValue steps over one value of unexpected type inside an array.
func skipValue(s string, i int) (int, bool) {
	switch s[i] {
	case '"':
		return skipString(s, i)
	case '{', '[':
		return balancedEnd(s, i)
	}

	for i < len(s) && s[i] != ',' && s[i] != ']' {
		i++
	}
	return i, i < len(s)
}
