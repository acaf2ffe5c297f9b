package text_test

import (
	"errors"
	"testing"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/rlch/inlay"
	"github.com/rlch/inlay/text"
)

func TestDefaultLexer_Symbols(t *testing.T) {
	t.Parallel()

	symbols := text.DefaultLexer().Symbols()

	for _, name := range []string{"EOF", "Comment", "String", "Number", "Ident", "Op", "Punct", "Whitespace"} {
		if _, ok := symbols[name]; !ok {
			t.Errorf("missing symbol: %s", name)
		}
	}
}

type tokenExpect struct {
	typ   lexer.TokenType
	value string
}

func lexAll(t *testing.T, def lexer.Definition, input string) []lexer.Token {
	t.Helper()

	lex, err := def.(lexer.StringDefinition).LexString("", input)
	if err != nil {
		t.Fatalf("LexString() error: %v", err)
	}

	tokens, err := lexer.ConsumeAll(lex)
	if err != nil {
		t.Fatalf("ConsumeAll() error: %v", err)
	}

	return tokens
}

func TestDefaultLexer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected []tokenExpect
	}{
		{
			name:  "assignment",
			input: "x := 0x1F + 2.5e3",
			expected: []tokenExpect{
				{text.TokenIdent, "x"},
				{text.TokenWhitespace, " "},
				{text.TokenOp, ":="},
				{text.TokenWhitespace, " "},
				{text.TokenNumber, "0x1F"},
				{text.TokenWhitespace, " "},
				{text.TokenOp, "+"},
				{text.TokenWhitespace, " "},
				{text.TokenNumber, "2.5e3"},
			},
		},
		{
			name:  "call with string",
			input: `print("a\"b", $v)`,
			expected: []tokenExpect{
				{text.TokenIdent, "print"},
				{text.TokenPunct, "("},
				{text.TokenString, `"a\"b"`},
				{text.TokenPunct, ","},
				{text.TokenWhitespace, " "},
				{text.TokenIdent, "$v"},
				{text.TokenPunct, ")"},
			},
		},
		{
			name:  "unknown runes are single tokens",
			input: "a😀. b→c",
			expected: []tokenExpect{
				{text.TokenIdent, "a"},
				{text.TokenOther, "😀"},
				{text.TokenPunct, "."},
				{text.TokenWhitespace, " "},
				{text.TokenIdent, "b"},
				{text.TokenOther, "→"},
				{text.TokenIdent, "c"},
			},
		},
		{
			name:  "unterminated string runs to end of line",
			input: `s = 'open`,
			expected: []tokenExpect{
				{text.TokenIdent, "s"},
				{text.TokenWhitespace, " "},
				{text.TokenOp, "="},
				{text.TokenWhitespace, " "},
				{text.TokenString, "'open"},
			},
		},
		{
			name:  "trailing comment",
			input: "a.b // note",
			expected: []tokenExpect{
				{text.TokenIdent, "a"},
				{text.TokenPunct, "."},
				{text.TokenIdent, "b"},
				{text.TokenWhitespace, " "},
				{text.TokenComment, "// note"},
			},
		},
		{
			name:  "unicode identifiers",
			input: "größe>=1",
			expected: []tokenExpect{
				{text.TokenIdent, "größe"},
				{text.TokenOp, ">="},
				{text.TokenNumber, "1"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tokens := lexAll(t, text.DefaultLexer(), tt.input)

			// Drop EOF.
			tokens = tokens[:len(tokens)-1]

			if len(tokens) != len(tt.expected) {
				t.Fatalf("expected %d tokens, got %d: %v", len(tt.expected), len(tokens), tokens)
			}

			for i, exp := range tt.expected {
				if tokens[i].Type != exp.typ || tokens[i].Value != exp.value {
					t.Errorf("token %d: expected (%d, %q), got (%d, %q)",
						i, exp.typ, exp.value, tokens[i].Type, tokens[i].Value)
				}
			}
		})
	}
}

func TestRulesLexer(t *testing.T) {
	t.Parallel()

	def, err := text.RulesLexer([]inlay.TokenRule{
		{Name: "Ident", Pattern: `[a-z]+`},
		{Name: "Space", Pattern: `\s+`},
		{Name: "Punct", Pattern: `[.()]`},
	})
	if err != nil {
		t.Fatal(err)
	}

	tokens := lexAll(t, def, "foo.bar (baz)")

	var values []string
	for _, tok := range tokens[:len(tokens)-1] {
		values = append(values, tok.Value)
	}

	expected := []string{"foo", ".", "bar", " ", "(", "baz", ")"}
	if len(values) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, values)
	}

	for i := range expected {
		if values[i] != expected[i] {
			t.Errorf("token %d: expected %q, got %q", i, expected[i], values[i])
		}
	}

	_, err = text.RulesLexer([]inlay.TokenRule{{Name: "Bad", Pattern: `(`}})
	if err == nil {
		t.Error("expected an error for an invalid pattern")
	}
}

func TestRulesLexer_DuplicateName(t *testing.T) {
	t.Parallel()

	_, err := text.RulesLexer([]inlay.TokenRule{
		{Name: "Word", Pattern: `[a-z]+`},
		{Name: "Word", Pattern: `[A-Z]+`},
	})
	if !errors.Is(err, text.ErrDuplicateRule) {
		t.Errorf("expected ErrDuplicateRule, got %v", err)
	}
}
