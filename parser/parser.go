// Package parser extracts tool-call directives from raw model output.
//
// The grammar is deliberately tiny because it is a contract with an
// uncontrolled text generator:
//
//	TOOL: name(key="value", other="value")
//
// The marker may appear anywhere in the text. Values are double-quoted;
// backslash escapes are honored for quote, backslash, newline and tab, and
// parentheses inside quotes do not terminate the call. A marker that is not
// followed by an identifier and an opening parenthesis is plain text. A
// broken argument list yields a sentinel call the executor reports as
// invalid arguments. Parsing never fails.
package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Marker introduces a tool call in model output.
const Marker = "TOOL:"

// ToolCall is one parsed directive, immutable once produced. ParseErr is
// the best-effort sentinel: non-empty means the argument list was malformed
// and the call must not reach a handler.
type ToolCall struct {
	Name     string            `json:"name"`
	Args     map[string]string `json:"args,omitempty"`
	Raw      string            `json:"raw,omitempty"`
	ParseErr string            `json:"parse_err,omitempty"`
}

// Result splits model output into the user-visible remainder and the calls
// found, in textual order.
type Result struct {
	Remainder string
	Calls     []ToolCall
}

// Parse scans text for tool-call directives. Call spans, malformed ones
// included, are removed from the remainder.
func Parse(text string) Result {
	var calls []ToolCall
	var remainder strings.Builder
	rest := text
	for {
		idx := strings.Index(rest, Marker)
		if idx < 0 {
			remainder.WriteString(rest)
			break
		}
		call, span, ok := scanCall(rest[idx:])
		if !ok {
			remainder.WriteString(rest[:idx+len(Marker)])
			rest = rest[idx+len(Marker):]
			continue
		}
		remainder.WriteString(rest[:idx])
		calls = append(calls, call)
		rest = rest[idx+span:]
	}
	return Result{Remainder: tidyRemainder(remainder.String()), Calls: calls}
}

// scanCall parses one directive starting at the marker. ok is false when
// the marker turns out to be plain text.
func scanCall(s string) (ToolCall, int, bool) {
	pos := len(Marker)
	pos += countBlank(s[pos:])
	name, n := scanIdent(s[pos:])
	if n == 0 {
		return ToolCall{}, 0, false
	}
	pos += n
	pos += countBlank(s[pos:])
	if pos >= len(s) || s[pos] != '(' {
		return ToolCall{}, 0, false
	}
	pos++
	args, n, err := scanArgs(s[pos:])
	if err != nil {
		// swallow through end of line so the broken call is not echoed back
		end := len(s)
		if nl := strings.IndexByte(s[pos:], '\n'); nl >= 0 {
			end = pos + nl
		}
		return ToolCall{Name: name, Raw: s[:end], ParseErr: err.Error()}, end, true
	}
	pos += n
	return ToolCall{Name: name, Args: args, Raw: s[:pos]}, pos, true
}

// scanArgs parses the argument list after the opening parenthesis and
// returns the bytes consumed including the closing one. Duplicate keys:
// last wins.
func scanArgs(s string) (map[string]string, int, error) {
	args := map[string]string{}
	pos := 0
	pos += countBlank(s[pos:])
	if pos < len(s) && s[pos] == ')' {
		return args, pos + 1, nil
	}
	for {
		pos += countBlank(s[pos:])
		key, n := scanIdent(s[pos:])
		if n == 0 {
			return nil, 0, errors.New("expected parameter name")
		}
		pos += n
		pos += countBlank(s[pos:])
		if pos >= len(s) || s[pos] != '=' {
			return nil, 0, fmt.Errorf("expected = after parameter %s", key)
		}
		pos++
		pos += countBlank(s[pos:])
		value, n, err := scanQuoted(s[pos:])
		if err != nil {
			return nil, 0, err
		}
		pos += n
		args[key] = value
		pos += countBlank(s[pos:])
		if pos >= len(s) {
			return nil, 0, errors.New("unterminated argument list")
		}
		switch s[pos] {
		case ',':
			pos++
		case ')':
			return args, pos + 1, nil
		default:
			return nil, 0, fmt.Errorf("unexpected %q in argument list", s[pos])
		}
	}
}

// scanQuoted reads a double-quoted value with escapes. Newlines are legal
// inside quotes so file content can be passed inline.
func scanQuoted(s string) (string, int, error) {
	if len(s) == 0 || s[0] != '"' {
		return "", 0, errors.New("expected quoted value")
	}
	var b strings.Builder
	i := 1
	for i < len(s) {
		c := s[i]
		switch c {
		case '"':
			return b.String(), i + 1, nil
		case '\\':
			if i+1 >= len(s) {
				return "", 0, errors.New("unterminated string")
			}
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			default:
				b.WriteByte('\\')
				b.WriteByte(s[i])
			}
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, errors.New("unterminated string")
}

func scanIdent(s string) (string, int) {
	i := 0
	for i < len(s) {
		c := s[i]
		if c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || i > 0 && c >= '0' && c <= '9' {
			i++
			continue
		}
		break
	}
	return s[:i], i
}

// countBlank counts leading spaces and tabs. Newlines intentionally stop a
// directive: models that mention the marker in prose rarely keep writing
// the call on the next line.
func countBlank(s string) int {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return i
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

func tidyRemainder(s string) string {
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
