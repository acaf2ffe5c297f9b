// Package wire defines the LSP 3.17 inlay hint messages, which
// go.lsp.dev/protocol v0.12.0 predates, and converts between them and the
// 1-based inlay types.
//
// LSP counts characters in UTF-16 code units while inlay columns count
// runes. Conversions take the Lines of the document to translate between
// the two; with nil Lines columns are taken as they are.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf16"

	"go.lsp.dev/protocol"

	"github.com/rlch/inlay"
)

// Inlay hint methods.
const (
	MethodInlayHint        = "textDocument/inlayHint"
	MethodInlayHintResolve = "inlayHint/resolve"
	MethodInlayHintRefresh = "workspace/inlayHint/refresh"
)

// InlayHintOptions is the server capability for inlay hints.
type InlayHintOptions struct {
	ResolveProvider bool `json:"resolveProvider,omitempty"`
}

// InlayHintClientCapabilities is what a client announces about inlay hints.
type InlayHintClientCapabilities struct {
	DynamicRegistration bool            `json:"dynamicRegistration,omitempty"`
	ResolveSupport      *ResolveSupport `json:"resolveSupport,omitempty"`
}

// ResolveSupport lists the properties a client can resolve lazily.
type ResolveSupport struct {
	Properties []string `json:"properties"`
}

// InlayHintParams are the parameters of textDocument/inlayHint.
type InlayHintParams struct {
	TextDocument protocol.TextDocumentIdentifier `json:"textDocument"`
	Range        protocol.Range                  `json:"range"`
}

// InlayHint is a single hint on the wire.
type InlayHint struct {
	Position     protocol.Position   `json:"position"`
	Label        Label               `json:"label"`
	Kind         inlay.HintKind      `json:"kind,omitempty"`
	TextEdits    []protocol.TextEdit `json:"textEdits,omitempty"`
	Tooltip      *Tooltip            `json:"tooltip,omitempty"`
	PaddingLeft  bool                `json:"paddingLeft,omitempty"`
	PaddingRight bool                `json:"paddingRight,omitempty"`
	Data         json.RawMessage     `json:"data,omitempty"`
}

// LabelPart is one piece of a structured label.
type LabelPart struct {
	Value    string             `json:"value"`
	Tooltip  *Tooltip           `json:"tooltip,omitempty"`
	Location *protocol.Location `json:"location,omitempty"`
	Command  *protocol.Command  `json:"command,omitempty"`
}

// Label is either a plain string or a list of parts.
type Label struct {
	Parts []LabelPart
}

// PlainLabel returns a label that encodes as a string.
func PlainLabel(s string) Label {
	return Label{Parts: []LabelPart{{Value: s}}}
}

// String joins the label's parts.
func (l Label) String() string {
	var sb strings.Builder
	for _, p := range l.Parts {
		sb.WriteString(p.Value)
	}

	return sb.String()
}

func (l Label) plain() bool {
	return len(l.Parts) == 1 && l.Parts[0].Tooltip == nil && l.Parts[0].Location == nil && l.Parts[0].Command == nil
}

// MarshalJSON encodes plain labels as strings.
func (l Label) MarshalJSON() ([]byte, error) {
	if len(l.Parts) == 0 {
		return []byte(`""`), nil
	}

	if l.plain() {
		return json.Marshal(l.Parts[0].Value)
	}

	return json.Marshal(l.Parts)
}

// UnmarshalJSON accepts a string or a list of parts.
func (l *Label) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '"' {
		var s string

		err := json.Unmarshal(data, &s)
		if err != nil {
			return err
		}

		*l = PlainLabel(s)

		return nil
	}

	var parts []LabelPart

	err := json.Unmarshal(data, &parts)
	if err != nil {
		return fmt.Errorf("inlay hint label: %w", err)
	}

	l.Parts = parts

	return nil
}

// Tooltip is either a plain string or markup content.
type Tooltip struct {
	Kind  protocol.MarkupKind
	Value string
}

// MarshalJSON encodes tooltips without a kind as strings.
func (t Tooltip) MarshalJSON() ([]byte, error) {
	if t.Kind == "" {
		return json.Marshal(t.Value)
	}

	return json.Marshal(protocol.MarkupContent{Kind: t.Kind, Value: t.Value})
}

// UnmarshalJSON accepts a string or a MarkupContent object.
func (t *Tooltip) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '"' {
		t.Kind = ""

		return json.Unmarshal(data, &t.Value)
	}

	var mc protocol.MarkupContent

	err := json.Unmarshal(data, &mc)
	if err != nil {
		return fmt.Errorf("inlay hint tooltip: %w", err)
	}

	t.Kind, t.Value = mc.Kind, mc.Value

	return nil
}

// TextDocumentChange is a full-content change. The protocol package's event
// type always sends a range, which servers read as an incremental edit.
type TextDocumentChange struct {
	Text string `json:"text"`
}

// DidChangeTextDocumentParams is textDocument/didChange with full content.
type DidChangeTextDocumentParams struct {
	TextDocument   protocol.VersionedTextDocumentIdentifier `json:"textDocument"`
	ContentChanges []TextDocumentChange                     `json:"contentChanges"`
}

// Lines gives the text of a 1-based line. inlay.Document implements it.
type Lines interface {
	LineContent(line int) string
}

// FromPosition converts a 1-based position to LSP's 0-based one.
func FromPosition(lines Lines, p inlay.Position) protocol.Position {
	column := max(0, p.Column-1)
	if lines != nil {
		column = utf16Units(lines.LineContent(p.Line), column)
	}

	return protocol.Position{
		Line:      uint32(max(0, p.Line-1)), //nolint:gosec // G115: values are small line numbers
		Character: uint32(column),           //nolint:gosec // G115: values are small column numbers
	}
}

// ToPosition converts an LSP position to a 1-based one.
func ToPosition(lines Lines, p protocol.Position) inlay.Position {
	line := int(p.Line) + 1
	column := int(p.Character)

	if lines != nil {
		column = runeCount(lines.LineContent(line), column)
	}

	return inlay.Position{Line: line, Column: column + 1}
}

// FromRange converts a 1-based range to an LSP range.
func FromRange(lines Lines, r inlay.Range) protocol.Range {
	return protocol.Range{Start: FromPosition(lines, r.Start), End: FromPosition(lines, r.End)}
}

// ToRange converts an LSP range to a 1-based one. Reversed ranges are
// put in order.
func ToRange(lines Lines, r protocol.Range) inlay.Range {
	return inlay.RangeOf(ToPosition(lines, r.Start), ToPosition(lines, r.End))
}

// utf16Units returns how many UTF-16 code units the first runes runes of
// line take. Columns past the end count one unit each.
func utf16Units(line string, runes int) int {
	units := 0

	for _, r := range line {
		if runes == 0 {
			return units
		}

		units += max(1, utf16.RuneLen(r))
		runes--
	}

	return units + runes
}

// runeCount returns how many runes of line fit in units UTF-16 code units.
// An offset inside a surrogate pair counts the whole rune.
func runeCount(line string, units int) int {
	runes := 0

	for _, r := range line {
		if units <= 0 {
			return runes
		}

		units -= max(1, utf16.RuneLen(r))
		runes++
	}

	return runes + max(0, units)
}

// FromHint converts h to its wire form. Data is left for the caller.
func FromHint(lines Lines, h inlay.Hint) InlayHint {
	out := InlayHint{
		Position:     FromPosition(lines, h.Position),
		Label:        PlainLabel(h.Label),
		Kind:         h.Kind,
		PaddingLeft:  h.PaddingLeft,
		PaddingRight: h.PaddingRight,
	}

	if h.Tooltip != "" {
		out.Tooltip = &Tooltip{Kind: protocol.Markdown, Value: h.Tooltip}
	}

	return out
}

// ToHint converts a wire hint. Structured labels are flattened and Data is
// left for the caller.
func ToHint(lines Lines, w InlayHint) inlay.Hint {
	h := inlay.Hint{
		Position:     ToPosition(lines, w.Position),
		Label:        w.Label.String(),
		Kind:         w.Kind,
		PaddingLeft:  w.PaddingLeft,
		PaddingRight: w.PaddingRight,
	}

	if w.Tooltip != nil {
		h.Tooltip = w.Tooltip.Value
	}

	return h
}
