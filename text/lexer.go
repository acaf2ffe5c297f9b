package text

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/rlch/inlay"
)

// Token type constants - negative values as per participle convention.
const (
	TokenEOF        lexer.TokenType = lexer.EOF
	TokenComment    lexer.TokenType = -(iota + 2) //nolint:mnd // participle convention
	TokenString                                   // quoted strings, including unterminated ones
	TokenNumber                                   // all number formats
	TokenIdent                                    // identifiers
	TokenOp                                       // operators
	TokenPunct                                    // brackets and separators
	TokenWhitespace                               // spaces and tabs
	TokenOther                                    // any other single rune
)


// ErrDuplicateRule is returned for token rules that reuse a name.
var ErrDuplicateRule = errors.New("duplicate token rule")

// lineDefinition is the built-in participle lexer.Definition used when a
// language does not configure its own token rules. It is generic enough for
// C-like languages and is only ever fed a single line.
type lineDefinition struct {
	symbols map[string]lexer.TokenType
}

// DefaultLexer returns the built-in lexer.
//
//nolint:ireturn // Callers configure lexers by participle's interface.
func DefaultLexer() lexer.Definition {
	return defaultLexer
}

var defaultLexer = &lineDefinition{
	symbols: map[string]lexer.TokenType{
		"EOF":        TokenEOF,
		"Comment":    TokenComment,
		"String":     TokenString,
		"Number":     TokenNumber,
		"Ident":      TokenIdent,
		"Op":         TokenOp,
		"Punct":      TokenPunct,
		"Whitespace": TokenWhitespace,
		"Other":      TokenOther,
	},
}

// Symbols returns the mapping of symbol names to token types.
func (d *lineDefinition) Symbols() map[string]lexer.TokenType {
	return d.symbols
}

// Lex creates a new Lexer for the given reader.
//
//nolint:ireturn // Required by participle's lexer.Definition interface.
func (d *lineDefinition) Lex(filename string, r io.Reader) (lexer.Lexer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	return d.LexString(filename, string(data))
}

// LexString implements lexer.StringDefinition for efficiency.
//
//nolint:ireturn // Required by participle's lexer.StringDefinition interface.
func (d *lineDefinition) LexString(filename string, input string) (lexer.Lexer, error) {
	return &lineLexer{filename: filename, input: input, col: 1}, nil
}

// lineLexer holds the state for lexing one line.
type lineLexer struct {
	filename string
	input    string
	offset   int
	col      int
}

// Next returns the next token.
func (l *lineLexer) Next() (lexer.Token, error) {
	if l.eof() {
		return lexer.EOFToken(l.pos()), nil
	}

	start := l.pos()
	r := l.peek()

	if r == ' ' || r == '\t' || r == '\r' {
		for !l.eof() && (l.peek() == ' ' || l.peek() == '\t' || l.peek() == '\r') {
			l.advance()
		}

		return l.token(TokenWhitespace, start), nil
	}

	// Line comments run to the end of the line.
	if (r == '/' && l.peekAt(1) == '/') || r == '#' {
		for !l.eof() {
			l.advance()
		}

		return l.token(TokenComment, start), nil
	}

	if r == '"' || r == '\'' || r == '`' {
		return l.scanString(start, r), nil
	}

	if isDigit(r) {
		return l.scanNumber(start), nil
	}

	if isIdentStart(r) {
		l.advance()

		for !l.eof() && isIdentContinue(l.peek()) {
			l.advance()
		}

		return l.token(TokenIdent, start), nil
	}

	if tok, ok := l.scanMultiCharOp(start); ok {
		return tok, nil
	}

	l.advance()

	if strings.ContainsRune(".,:;()[]{}", r) {
		return l.token(TokenPunct, start), nil
	}

	if strings.ContainsRune("+-*/%^&|!<>=?~@\\", r) {
		return l.token(TokenOp, start), nil
	}

	return l.token(TokenOther, start), nil
}

func (l *lineLexer) pos() lexer.Position {
	return lexer.Position{
		Filename: l.filename,
		Offset:   l.offset,
		Line:     1,
		Column:   l.col,
	}
}

func (l *lineLexer) eof() bool {
	return l.offset >= len(l.input)
}

func (l *lineLexer) peek() rune {
	if l.eof() {
		return 0
	}

	r, _ := utf8.DecodeRuneInString(l.input[l.offset:])

	return r
}

func (l *lineLexer) peekAt(n int) rune {
	off := l.offset + n
	if off >= len(l.input) {
		return 0
	}

	r, _ := utf8.DecodeRuneInString(l.input[off:])

	return r
}

func (l *lineLexer) advance() {
	if l.eof() {
		return
	}

	_, size := utf8.DecodeRuneInString(l.input[l.offset:])
	l.offset += size
	l.col++
}

func (l *lineLexer) match(s string) bool {
	return strings.HasPrefix(l.input[l.offset:], s)
}

func (l *lineLexer) token(typ lexer.TokenType, start lexer.Position) lexer.Token {
	return lexer.Token{
		Type:  typ,
		Value: l.input[start.Offset:l.offset],
		Pos:   start,
	}
}

// scanString consumes a quoted string. Strings left open run to the end of
// the line, since the rest of the string is on a later line.
func (l *lineLexer) scanString(start lexer.Position, quote rune) lexer.Token {
	l.advance()

	for !l.eof() {
		ch := l.peek()
		if ch == '\\' && quote != '`' && l.peekAt(1) != 0 {
			l.advance()
			l.advance()

			continue
		}

		l.advance()

		if ch == quote {
			break
		}
	}

	return l.token(TokenString, start)
}

var multiCharOps = []string{
	"<<=", ">>=", "...", "&&", "||", "==", "!=", "<=", ">=", ":=", "->", "=>",
	"<<", ">>", "++", "--", "+=", "-=", "*=", "/=", "??", "?.", "::",
}

func (l *lineLexer) scanMultiCharOp(start lexer.Position) (lexer.Token, bool) {
	for _, op := range multiCharOps {
		if l.match(op) {
			for range len(op) {
				l.advance()
			}

			return l.token(TokenOp, start), true
		}
	}

	return lexer.Token{}, false
}

func (l *lineLexer) scanNumber(start lexer.Position) lexer.Token {
	if l.peek() == '0' {
		switch l.peekAt(1) {
		case 'x', 'X', 'o', 'O', 'b', 'B':
			l.advance()
			l.advance()

			for !l.eof() && (isHexDigit(l.peek()) || l.peek() == '_') {
				l.advance()
			}

			return l.token(TokenNumber, start)
		}
	}

	for !l.eof() && (isDigit(l.peek()) || l.peek() == '_') {
		l.advance()
	}

	if l.peek() == '.' && isDigit(l.peekAt(1)) {
		l.advance()

		for !l.eof() && (isDigit(l.peek()) || l.peek() == '_') {
			l.advance()
		}
	}

	if l.peek() == 'e' || l.peek() == 'E' {
		l.advance()

		if l.peek() == '+' || l.peek() == '-' {
			l.advance()
		}

		for !l.eof() && isDigit(l.peek()) {
			l.advance()
		}
	}

	return l.token(TokenNumber, start)
}

// Character helpers.

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isHexDigit(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func isIdentStart(r rune) bool {
	return r == '$' || r == '_' || unicode.IsLetter(r)
}

func isIdentContinue(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// RulesLexer builds a lexer from named regular expressions, tried in order.
//
//nolint:ireturn // Callers configure lexers by participle's interface.
func RulesLexer(rules []inlay.TokenRule) (lexer.Definition, error) {
	converted := make([]lexer.SimpleRule, 0, len(rules))
	seen := make(map[string]string, len(rules))

	for _, r := range rules {
		// participle panics on a name reused with another pattern.
		if prev, ok := seen[r.Name]; ok && prev != r.Pattern {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateRule, r.Name)
		}

		seen[r.Name] = r.Pattern
		converted = append(converted, lexer.SimpleRule{Name: r.Name, Pattern: r.Pattern})
	}

	return lexer.NewSimple(converted)
}

// span is a token's [start, end) rune offsets within its line.
type span struct {
	start, end int
}

// tokenizeLine splits line into contiguous spans using def. When the lexer
// fails part way, the rest of the line becomes a single span.
func tokenizeLine(def lexer.Definition, line string) []span {
	length := utf8.RuneCountInString(line)
	if length == 0 {
		return []span{{0, 0}}
	}

	lex, err := lexString(def, line)
	if err != nil {
		return []span{{0, length}}
	}

	var (
		spans    []span
		byteOff  int
		runeOff  int
		consumed int
	)

	// Byte offsets only ever grow, so runes are counted incrementally.
	runeAt := func(b int) int {
		runeOff += utf8.RuneCountInString(line[byteOff:b])
		byteOff = b

		return runeOff
	}

	for {
		tok, err := lex.Next()
		if err != nil || tok.EOF() {
			break
		}

		start := runeAt(tok.Pos.Offset)
		end := runeAt(tok.Pos.Offset + len(tok.Value))

		if end <= start {
			break
		}

		if start > consumed {
			spans = append(spans, span{consumed, start})
		}

		spans = append(spans, span{start, end})
		consumed = end
	}

	if consumed < length {
		spans = append(spans, span{consumed, length})
	}

	return spans
}

//nolint:ireturn // participle returns lexers by interface.
func lexString(def lexer.Definition, s string) (lexer.Lexer, error) {
	if sd, ok := def.(lexer.StringDefinition); ok {
		return sd.LexString("", s)
	}

	return def.Lex("", strings.NewReader(s))
}
