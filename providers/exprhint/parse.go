package exprhint

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrForeignHint is returned when asked to resolve a hint this provider did
// not produce.
var ErrForeignHint = errors.New("hint was not produced by the expression provider")

// Assignment is a "target = expression" line.
type Assignment struct {
	Target     string
	Expression string
	// EndColumn is the 1-based column just past the expression.
	EndColumn int
}

// ParseAssignment finds the first plain assignment in line. Comparisons,
// compound assignments and arrows are not assignments.
func ParseAssignment(line string) (Assignment, bool) {
	for i := 0; i < len(line); i++ {
		if line[i] != '=' {
			continue
		}

		var prev, next byte
		if i > 0 {
			prev = line[i-1]
		}

		if i+1 < len(line) {
			next = line[i+1]
		}

		if next == '=' || next == '>' {
			i++

			continue
		}

		if strings.IndexByte("=!<>+-*/%&|^", prev) >= 0 {
			return Assignment{}, false
		}

		target := line[:i]
		if prev == ':' {
			target = line[:i-1]
		}

		target = strings.TrimSpace(target)
		if !isTarget(target) {
			return Assignment{}, false
		}

		rhs := line[i+1:]
		expression, end := trimExpression(rhs)

		if expression == "" {
			return Assignment{}, false
		}

		return Assignment{
			Target:     target,
			Expression: expression,
			EndColumn:  utf8.RuneCountInString(line[:i+1+end]) + 1,
		}, true
	}

	return Assignment{}, false
}

func isTarget(s string) bool {
	if s == "" {
		return false
	}

	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}

		if !strings.ContainsRune("_$., :[]", r) {
			return false
		}
	}

	first, _ := utf8.DecodeRuneInString(s)

	return unicode.IsLetter(first) || first == '_' || first == '$'
}

// trimExpression drops a trailing line comment, whitespace and separators.
// It returns the expression and its end as a byte offset into rhs.
func trimExpression(rhs string) (string, int) {
	end := len(rhs)

	var quote byte

scan:
	for i := 0; i < len(rhs); i++ {
		c := rhs[i]

		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'' || c == '`':
			quote = c
		case c == '/' && i+1 < len(rhs) && rhs[i+1] == '/':
			end = i

			break scan
		}
	}

	body := strings.TrimRightFunc(rhs[:end], func(r rune) bool {
		return unicode.IsSpace(r) || r == ';' || r == ','
	})
	start := len(body) - len(strings.TrimLeftFunc(body, unicode.IsSpace))

	return body[start:], len(body)
}
