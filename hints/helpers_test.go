package hints_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/rlch/inlay"
)

// fakeDoc is an inlay.Document whose words and tokens are spelled out by the
// test rather than derived from the text.
type fakeDoc struct {
	lines  []string
	words  map[int][]inlay.Word
	tokens map[int][]string

	// leftBias makes token lookup prefer the token ending at an offset.
	leftBias bool

	mu        sync.Mutex
	tokenized []int
}

func newFakeDoc(lines ...string) *fakeDoc {
	return &fakeDoc{
		lines:  lines,
		words:  make(map[int][]inlay.Word),
		tokens: make(map[int][]string),
	}
}

func (d *fakeDoc) withWord(line, start, end int) *fakeDoc {
	text := string([]rune(d.lines[line-1])[start-1 : end-1])
	d.words[line] = append(d.words[line], inlay.Word{Text: text, StartColumn: start, EndColumn: end})

	return d
}

func (d *fakeDoc) withTokens(line int, tokens ...string) *fakeDoc {
	d.tokens[line] = tokens

	return d
}

func (d *fakeDoc) URI() string        { return "file:///fake.txt" }
func (d *fakeDoc) LanguageID() string { return "plaintext" }
func (d *fakeDoc) Version() int32     { return 1 }
func (d *fakeDoc) Text() string       { return strings.Join(d.lines, "\n") }
func (d *fakeDoc) LineCount() int     { return len(d.lines) }

func (d *fakeDoc) LineContent(line int) string {
	if line < 1 || line > len(d.lines) {
		return ""
	}

	return d.lines[line-1]
}

func (d *fakeDoc) ValidatePosition(pos inlay.Position) inlay.Position {
	pos.Line = min(max(pos.Line, 1), len(d.lines))
	pos.Column = min(max(pos.Column, 1), utf8.RuneCountInString(d.LineContent(pos.Line))+1)

	return pos
}

func (d *fakeDoc) WordAtPosition(pos inlay.Position) (inlay.Word, bool) {
	for _, w := range d.words[pos.Line] {
		if w.StartColumn <= pos.Column && pos.Column <= w.EndColumn {
			return w, true
		}
	}

	return inlay.Word{}, false
}

func (d *fakeDoc) TokenizeIfCheap(line int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.tokenized = append(d.tokenized, line)
}

//nolint:ireturn // Test double for an interface.
func (d *fakeDoc) LineTokens(line int) inlay.LineTokens {
	tokens, ok := d.tokens[line]
	if !ok {
		tokens = []string{d.LineContent(line)}
	}

	lt := &fakeTokens{leftBias: d.leftBias}
	offset := 0

	for _, tok := range tokens {
		n := utf8.RuneCountInString(tok)
		lt.starts = append(lt.starts, offset)
		lt.ends = append(lt.ends, offset+n)
		offset += n
	}

	return lt
}

type fakeTokens struct {
	starts, ends []int
	leftBias     bool
}

func (t *fakeTokens) Count() int              { return len(t.starts) }
func (t *fakeTokens) StartOffset(i int) int   { return t.starts[i] }
func (t *fakeTokens) EndOffset(i int) int     { return t.ends[i] }

func (t *fakeTokens) FindTokenIndexAtOffset(offset int) int {
	if t.leftBias {
		for i := range t.starts {
			if t.starts[i] < offset && offset <= t.ends[i] {
				return i
			}
		}
	}

	idx := 0

	for i := range t.starts {
		if t.starts[i] <= offset {
			idx = i
		}
	}

	return idx
}

// staticSource returns its providers in the given priority order.
type staticSource []inlay.Provider

func (s staticSource) Ordered(inlay.Document) []inlay.Provider { return s }

// stubProvider returns fixed hints and counts calls. With resolve set it also
// implements inlay.Resolver through resolvingProvider.
type stubProvider struct {
	name  string
	hints []inlay.Hint
	err   error
	panic bool

	calls    atomic.Int32
	disposed atomic.Int32
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) ProvideInlayHints(_ context.Context, _ inlay.Document, rng inlay.Range) (*inlay.HintList, error) {
	p.calls.Add(1)

	if p.panic {
		panic("boom")
	}

	if p.err != nil {
		return nil, p.err
	}

	var out []inlay.Hint

	for _, h := range p.hints {
		if rng.Contains(h.Position) {
			out = append(out, h)
		}
	}

	return &inlay.HintList{
		Hints:   out,
		Dispose: func() { p.disposed.Add(1) },
	}, nil
}

// resolvingProvider resolves hints with resolveFn, counting calls.
type resolvingProvider struct {
	stubProvider

	resolveFn    func(ctx context.Context, h inlay.Hint) (*inlay.Hint, error)
	resolveCalls atomic.Int32
}

func (p *resolvingProvider) ResolveInlayHint(ctx context.Context, h inlay.Hint) (*inlay.Hint, error) {
	p.resolveCalls.Add(1)

	return p.resolveFn(ctx, h)
}

// notifyingProvider signals changes through an Emitter.
type notifyingProvider struct {
	stubProvider

	changes *inlay.Emitter
}

func newNotifyingProvider(name string, hints ...inlay.Hint) *notifyingProvider {
	return &notifyingProvider{
		stubProvider: stubProvider{name: name, hints: hints},
		changes:      inlay.NewEmitter(),
	}
}

//nolint:ireturn // Disposable is the subscription handle.
func (p *notifyingProvider) OnDidChangeInlayHints(fn func()) inlay.Disposable {
	return p.changes.Subscribe(fn)
}

func hintAt(line, col int, label string) inlay.Hint {
	return inlay.Hint{Position: inlay.Pos(line, col), Label: label}
}

var errProvider = errors.New("provider failed")
