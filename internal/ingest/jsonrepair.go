// Package ingest contains the upstream feed controllers: the SSE stream
// reader with heuristic payload repair and the realtime subscription
// client, plus the runner that applies their events to the live store.
package ingest

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

var (
	// ErrTruncatedString marks a payload whose end falls inside a string
	// literal. Closing it would fabricate a value, so the payload is dropped.
	ErrTruncatedString = errors.New("ingest: payload truncated inside string literal")

	// ErrUnrepairable marks a payload still invalid after the repair pass.
	ErrUnrepairable = errors.New("ingest: payload not repairable")
)

// RepairJSON returns input unchanged when it is already valid JSON.
// Otherwise it applies one repair pass for the malformations the upstream
// feed is known to produce:
//
//   - single-quoted strings rewritten to double-quoted
//   - unquoted object keys and bareword values quoted
//   - trailing commas before a closing brace or bracket removed
//   - unterminated objects and arrays closed at end of input
//
// End of input inside a string literal is not repaired; the payload is
// rejected with ErrTruncatedString.
func RepairJSON(input string) (string, error) {
	if json.Valid([]byte(input)) {
		return input, nil
	}

	repaired, err := repairPass(input)
	if err != nil {
		return "", err
	}
	if !json.Valid([]byte(repaired)) {
		return "", ErrUnrepairable
	}
	return repaired, nil
}

func repairPass(s string) (string, error) {
	var out strings.Builder
	out.Grow(len(s) + 8)

	var stack []byte
	expectKey := false

	top := func() byte {
		if len(stack) == 0 {
			return 0
		}
		return stack[len(stack)-1]
	}

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			out.WriteByte(c)
			i++

		case c == '{':
			out.WriteByte(c)
			stack = append(stack, '{')
			expectKey = true
			i++

		case c == '[':
			out.WriteByte(c)
			stack = append(stack, '[')
			expectKey = false
			i++

		case c == '}' || c == ']':
			trimTrailingComma(&out)
			out.WriteByte(c)
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			expectKey = false
			i++

		case c == ',':
			out.WriteByte(c)
			if top() == '{' {
				expectKey = true
			}
			i++

		case c == ':':
			out.WriteByte(c)
			expectKey = false
			i++

		case c == '"' || c == '\'':
			next, err := copyString(&out, s, i)
			if err != nil {
				return "", err
			}
			i = next

		default:
			next := i
			for next < len(s) && !isDelimiter(s[next]) {
				next++
			}
			word := strings.TrimSpace(s[i:next])
			if word == "" {
				i = next
				continue
			}
			if expectKey || needsQuoting(word) {
				out.WriteByte('"')
				out.WriteString(word)
				out.WriteByte('"')
			} else {
				out.WriteString(word)
			}
			i = next
		}
	}

	trimTrailingComma(&out)
	for j := len(stack) - 1; j >= 0; j-- {
		if stack[j] == '{' {
			out.WriteByte('}')
		} else {
			out.WriteByte(']')
		}
	}
	return out.String(), nil
}

// copyString consumes one string literal starting at s[start] and emits it
// double-quoted. Reaching end of input before the closing quote is a
// truncation, not a repairable defect.
func copyString(out *strings.Builder, s string, start int) (int, error) {
	quote := s[start]
	out.WriteByte('"')

	i := start + 1
	for i < len(s) {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			esc := s[i+1]
			if quote == '\'' && esc == '\'' {
				out.WriteByte('\'')
			} else {
				out.WriteByte('\\')
				out.WriteByte(esc)
			}
			i += 2

		case c == quote:
			out.WriteByte('"')
			return i + 1, nil

		case c == '"' && quote == '\'':
			out.WriteString(`\"`)
			i++

		default:
			out.WriteByte(c)
			i++
		}
	}
	return 0, ErrTruncatedString
}

func isDelimiter(c byte) bool {
	switch c {
	case ',', ':', '{', '}', '[', ']', '"', '\'', ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

// needsQuoting reports whether a bareword value is neither a JSON literal
// nor a number and therefore must become a string.
func needsQuoting(word string) bool {
	switch word {
	case "true", "false", "null":
		return false
	}
	if _, err := strconv.ParseFloat(word, 64); err == nil {
		return false
	}
	return true
}

// trimTrailingComma removes a dangling comma, and any whitespace after it,
// from the end of the emitted output.
func trimTrailingComma(out *strings.Builder) {
	cur := out.String()
	trimmed := strings.TrimRight(cur, " \t\n\r")
	if !strings.HasSuffix(trimmed, ",") {
		return
	}
	out.Reset()
	out.WriteString(strings.TrimSuffix(trimmed, ","))
}
