// Package inlay holds the shared domain types for collecting inlay hints:
// positions and anchors, hints, the document and provider contracts, and
// the small event/disposal primitives the collectors build on.
package inlay

import "fmt"

// Position is a 1-based line/column location in a document.
// Columns count characters (runes), not bytes.
type Position struct {
	Line   int `json:"line"   yaml:"line"`
	Column int `json:"column" yaml:"column"`
}

// Pos is shorthand for Position{Line: line, Column: column}.
func Pos(line, column int) Position {
	return Position{Line: line, Column: column}
}

// Compare returns -1, 0 or 1 depending on whether p sorts before, equal to,
// or after q.
func (p Position) Compare(q Position) int {
	switch {
	case p.Line < q.Line:
		return -1
	case p.Line > q.Line:
		return 1
	case p.Column < q.Column:
		return -1
	case p.Column > q.Column:
		return 1
	default:
		return 0
	}
}

// Before reports whether p is strictly before q.
func (p Position) Before(q Position) bool {
	return p.Compare(q) < 0
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Range is a half-open [Start, End) span of a document.
type Range struct {
	Start Position `json:"start" yaml:"start"`
	End   Position `json:"end"   yaml:"end"`
}

// RangeOf builds a range from two positions, swapping them when given out of
// order.
func RangeOf(a, b Position) Range {
	if b.Before(a) {
		a, b = b, a
	}

	return Range{Start: a, End: b}
}

// LineRange spans whole lines from startLine through endLine inclusive.
func LineRange(startLine, endLine int) Range {
	return Range{
		Start: Position{Line: startLine, Column: 1},
		End:   Position{Line: endLine + 1, Column: 1},
	}
}

// Contains reports whether pos lies in [Start, End].
// The end is inclusive so that a hint sitting at the very end of a range
// still belongs to it.
func (r Range) Contains(pos Position) bool {
	return !pos.Before(r.Start) && !r.End.Before(pos)
}

func (r Range) String() string {
	return fmt.Sprintf("[%s-%s)", r.Start, r.End)
}

// Side is the edge of an anchor range a hint hugs.
type Side string

const (
	// SideBefore renders the hint before the anchored text.
	SideBefore Side = "before"
	// SideAfter renders the hint after the anchored text.
	SideAfter Side = "after"
)

// Anchor is where a hint visually attaches in the document.
type Anchor struct {
	Range Range `json:"range"`
	Side  Side  `json:"side"`
}

func (a Anchor) String() string {
	return string(a.Side) + " " + a.Range.String()
}
