package hints

import "github.com/rlch/inlay"

// AnchorAt computes where a hint at pos attaches in doc.
//
// The position is first clamped into the document. If the range found by
// rangeAtPosition starts strictly before it, the hint hugs the preceding
// text: the anchor spans [start, pos) on the after side. Otherwise it hugs
// the following text: [pos, end) on the before side.
func AnchorAt(doc inlay.Document, pos inlay.Position) inlay.Anchor {
	pos = doc.ValidatePosition(pos)
	rng := rangeAtPosition(doc, pos)

	if rng.Start.Before(pos) {
		return inlay.Anchor{
			Range: inlay.Range{Start: rng.Start, End: pos},
			Side:  inlay.SideAfter,
		}
	}

	return inlay.Anchor{
		Range: inlay.Range{Start: pos, End: rng.End},
		Side:  inlay.SideBefore,
	}
}

// rangeAtPosition returns the word at pos, or failing that the token at pos.
// Single-character tokens (usually punctuation) are skipped in favour of a
// neighbouring token when pos sits on one of their edges.
func rangeAtPosition(doc inlay.Document, pos inlay.Position) inlay.Range {
	line := pos.Line

	if word, ok := doc.WordAtPosition(pos); ok {
		return inlay.Range{
			Start: inlay.Pos(line, word.StartColumn),
			End:   inlay.Pos(line, word.EndColumn),
		}
	}

	doc.TokenizeIfCheap(line)
	tokens := doc.LineTokens(line)

	offset := pos.Column - 1
	idx := tokens.FindTokenIndexAtOffset(offset)
	start := tokens.StartOffset(idx)
	end := tokens.EndOffset(idx)

	if end-start == 1 {
		switch {
		case start == offset && idx > 0:
			start = tokens.StartOffset(idx - 1)
			end = tokens.EndOffset(idx - 1)
		case end == offset && idx < tokens.Count()-1:
			start = tokens.StartOffset(idx + 1)
			end = tokens.EndOffset(idx + 1)
		}
	}

	return inlay.Range{
		Start: inlay.Pos(line, start+1),
		End:   inlay.Pos(line, end+1),
	}
}
