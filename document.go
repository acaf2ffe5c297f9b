package inlay

// Document is a read-only snapshot of a text document.
//
// Lines and columns are 1-based. Offsets handed to and returned from
// LineTokens are 0-based character offsets within a line.
type Document interface {
	URI() string
	LanguageID() string
	Version() int32

	// Text returns the full document content.
	Text() string
	LineCount() int
	// LineContent returns the text of line without its terminator.
	LineContent(line int) string

	// ValidatePosition clamps pos into the bounds of the document.
	ValidatePosition(pos Position) Position

	// WordAtPosition returns the word touching pos, using the document's own
	// word rules. A position just past the last character of a word still
	// touches it.
	WordAtPosition(pos Position) (Word, bool)

	// TokenizeIfCheap tokenizes line when doing so is cheap. Tokens may be
	// stale or coarse if it is not.
	TokenizeIfCheap(line int)
	// LineTokens returns the current tokens of line.
	LineTokens(line int) LineTokens
}

// Word is a word found on a single line. Columns are 1-based, EndColumn is
// exclusive.
type Word struct {
	Text        string
	StartColumn int
	EndColumn   int
}

// LineTokens is the tokenization of one line. Tokens cover the line
// contiguously; an empty line has a single empty token.
type LineTokens interface {
	Count() int
	StartOffset(index int) int
	EndOffset(index int) int
	// FindTokenIndexAtOffset returns the index of the token containing offset.
	// An offset on a boundary belongs to the token starting there; offsets
	// past the end of the line belong to the last token.
	FindTokenIndexAtOffset(offset int) int
}
