// Package text provides an in-memory inlay.Document backed by a regexp word
// finder and an on-demand participle tokenizer.
package text

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/rlch/inlay"
)

// DefaultWordPattern matches numbers with a fraction, or runs of characters
// that are neither separators nor whitespace.
const DefaultWordPattern = "(-?\\d*\\.\\d\\w*)|([^`~!@#$%^&*()\\-=+\\[{\\]}\\\\|;:'\",.<>/?\\s]+)"

// DefaultCheapLineLength is the longest line tokenized on demand.
const DefaultCheapLineLength = 2048

var defaultWordRegexp = regexp.MustCompile(DefaultWordPattern)

// Options configures word and token rules for a Document.
type Options struct {
	// WordPattern finds words. Nil means DefaultWordPattern.
	WordPattern *regexp.Regexp
	// CheapLineLength bounds TokenizeIfCheap, in characters. Zero means
	// DefaultCheapLineLength.
	CheapLineLength int
	// Lexer splits a line into tokens. Nil means DefaultLexer.
	Lexer lexer.Definition
}

// OptionsFor compiles the word and token rules of a language config.
func OptionsFor(cfg inlay.LanguageConfig) (Options, error) {
	opts := Options{CheapLineLength: cfg.CheapLineLength}

	if cfg.WordPattern != "" {
		re, err := regexp.Compile(cfg.WordPattern)
		if err != nil {
			return Options{}, fmt.Errorf("word pattern: %w", err)
		}

		opts.WordPattern = re
	}

	if len(cfg.Tokens) > 0 {
		def, err := RulesLexer(cfg.Tokens)
		if err != nil {
			return Options{}, fmt.Errorf("token rules: %w", err)
		}

		opts.Lexer = def
	}

	return opts, nil
}

// OptionsByLanguage compiles OptionsFor every configured language.
func OptionsByLanguage(languages map[string]inlay.LanguageConfig) (map[string]Options, error) {
	out := make(map[string]Options, len(languages))

	for lang, cfg := range languages {
		opts, err := OptionsFor(cfg)
		if err != nil {
			return nil, fmt.Errorf("language %s: %w", lang, err)
		}

		out[lang] = opts
	}

	return out, nil
}

func (o Options) withDefaults() Options {
	if o.WordPattern == nil {
		o.WordPattern = defaultWordRegexp
	}

	if o.CheapLineLength <= 0 {
		o.CheapLineLength = DefaultCheapLineLength
	}

	if o.Lexer == nil {
		o.Lexer = defaultLexer
	}

	return o
}

// Document is an immutable snapshot of a text document. Token state is
// computed lazily and is safe for concurrent use.
type Document struct {
	uri        string
	languageID string
	version    int32
	text       string
	lines      []string
	opts       Options

	mu     sync.Mutex
	tokens map[int]*Tokens
}

var _ inlay.Document = (*Document)(nil)

// New returns a snapshot of content.
func New(uri, languageID string, version int32, content string, opts Options) *Document {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}

	return &Document{
		uri:        uri,
		languageID: languageID,
		version:    version,
		text:       content,
		lines:      lines,
		opts:       opts.withDefaults(),
		tokens:     make(map[int]*Tokens),
	}
}

// WithText returns a new snapshot of the same document with other content.
func (d *Document) WithText(version int32, content string) *Document {
	return New(d.uri, d.languageID, version, content, d.opts)
}

// URI returns the document URI.
func (d *Document) URI() string { return d.uri }

// LanguageID returns the document language.
func (d *Document) LanguageID() string { return d.languageID }

// Version returns the snapshot version.
func (d *Document) Version() int32 { return d.version }

// Text returns the full content.
func (d *Document) Text() string { return d.text }

// LineCount returns the number of lines. Empty content has one line.
func (d *Document) LineCount() int { return len(d.lines) }

// LineContent returns line without its terminator, or "" when out of range.
func (d *Document) LineContent(line int) string {
	if line < 1 || line > len(d.lines) {
		return ""
	}

	return d.lines[line-1]
}

// ValidatePosition clamps pos into the document.
func (d *Document) ValidatePosition(pos inlay.Position) inlay.Position {
	pos.Line = min(max(pos.Line, 1), len(d.lines))
	pos.Column = min(max(pos.Column, 1), utf8.RuneCountInString(d.lines[pos.Line-1])+1)

	return pos
}

// WordAtPosition returns the word containing pos or ending right before it.
func (d *Document) WordAtPosition(pos inlay.Position) (inlay.Word, bool) {
	pos = d.ValidatePosition(pos)
	line := d.lines[pos.Line-1]
	offset := pos.Column - 1

	for _, loc := range d.opts.WordPattern.FindAllStringIndex(line, -1) {
		if loc[0] == loc[1] {
			continue
		}

		start := utf8.RuneCountInString(line[:loc[0]])
		if start > offset {
			break
		}

		end := start + utf8.RuneCountInString(line[loc[0]:loc[1]])
		if offset <= end {
			return inlay.Word{
				Text:        line[loc[0]:loc[1]],
				StartColumn: start + 1,
				EndColumn:   end + 1,
			}, true
		}
	}

	return inlay.Word{}, false
}

// TokenizeIfCheap tokenizes line unless it is longer than the configured
// limit.
func (d *Document) TokenizeIfCheap(line int) {
	if line < 1 || line > len(d.lines) {
		return
	}

	content := d.lines[line-1]
	if utf8.RuneCountInString(content) > d.opts.CheapLineLength {
		return
	}

	d.mu.Lock()
	_, done := d.tokens[line]
	d.mu.Unlock()

	if done {
		return
	}

	tokens := &Tokens{spans: tokenizeLine(d.opts.Lexer, content)}

	d.mu.Lock()
	d.tokens[line] = tokens
	d.mu.Unlock()
}

// LineTokens returns the tokens of line. Lines that were never tokenized are
// one token spanning the whole line.
//
//nolint:ireturn // inlay.Document requires the interface.
func (d *Document) LineTokens(line int) inlay.LineTokens {
	d.mu.Lock()
	tokens, ok := d.tokens[line]
	d.mu.Unlock()

	if ok {
		return tokens
	}

	return &Tokens{spans: []span{{0, utf8.RuneCountInString(d.LineContent(line))}}}
}

// Tokens is the tokenization of one line.
type Tokens struct {
	spans []span
}

var _ inlay.LineTokens = (*Tokens)(nil)

// Count returns the number of tokens.
func (t *Tokens) Count() int { return len(t.spans) }

// StartOffset returns the 0-based start of token i.
func (t *Tokens) StartOffset(i int) int { return t.spans[i].start }

// EndOffset returns the 0-based exclusive end of token i.
func (t *Tokens) EndOffset(i int) int { return t.spans[i].end }

// FindTokenIndexAtOffset returns the last token starting at or before offset.
func (t *Tokens) FindTokenIndexAtOffset(offset int) int {
	i, found := slices.BinarySearchFunc(t.spans, offset, func(s span, off int) int {
		return s.start - off
	})
	if found {
		return i
	}

	return max(i-1, 0)
}
