// Package exprhint shows the value of constant expressions on the right of
// assignments, e.g. "total = 60 * 60 * 24" gets a "= 86400" hint.
package exprhint

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/expr-lang/expr"
	"go.uber.org/zap"

	"github.com/rlch/inlay"
)

// DefaultMaxLength bounds a hint label, in characters.
const DefaultMaxLength = 40

// maxNodes keeps pathological lines from costing much to compile.
const maxNodes = 256

// Options configures the provider.
type Options struct {
	// ShowTypes appends the result type to each label.
	ShowTypes bool
	// MaxLength truncates long labels. Zero means DefaultMaxLength.
	MaxLength int
}

// OptionsFrom reads provider options from the config.
func OptionsFrom(cfg inlay.ExprConfig) Options {
	return Options{ShowTypes: cfg.ShowTypes, MaxLength: cfg.MaxLength}
}

// Provider computes value hints for constant expressions.
type Provider struct {
	logger  *zap.Logger
	changes *inlay.Emitter

	mu   sync.RWMutex
	opts Options
}

var (
	_ inlay.Provider       = (*Provider)(nil)
	_ inlay.Resolver       = (*Provider)(nil)
	_ inlay.ChangeNotifier = (*Provider)(nil)
)

// New returns a provider using opts.
func New(logger *zap.Logger, opts Options) *Provider {
	return &Provider{
		logger:  logger,
		changes: inlay.NewEmitter(),
		opts:    opts,
	}
}

// Name identifies the provider in logs.
func (p *Provider) Name() string { return "expr" }

// Options returns the current options.
func (p *Provider) Options() Options {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.opts
}

// SetOptions replaces the options and tells listeners that earlier hints are
// stale.
func (p *Provider) SetOptions(opts Options) {
	p.mu.Lock()
	changed := p.opts != opts
	p.opts = opts
	p.mu.Unlock()

	if changed {
		p.logger.Debug("Expression hint options changed",
			zap.Bool("showTypes", opts.ShowTypes),
			zap.Int("maxLength", opts.MaxLength))
		p.changes.Fire()
	}
}

// OnDidChangeInlayHints subscribes fn to option changes.
//
//nolint:ireturn // Disposable is the subscription handle.
func (p *Provider) OnDidChangeInlayHints(fn func()) inlay.Disposable {
	return p.changes.Subscribe(fn)
}

// Close drops every listener.
func (p *Provider) Close() {
	p.changes.Close()
}

// data travels with each hint so resolve does not re-parse the line.
type data struct {
	Expression string
	Value      any
}

// ProvideInlayHints returns a hint for every line in rng that assigns a
// constant expression.
func (p *Provider) ProvideInlayHints(ctx context.Context, doc inlay.Document, rng inlay.Range) (*inlay.HintList, error) {
	opts := p.Options()

	first := max(rng.Start.Line, 1)
	last := min(rng.End.Line, doc.LineCount())

	var out []inlay.Hint

	for line := first; line <= last; line++ {
		err := ctx.Err()
		if err != nil {
			return nil, err
		}

		a, ok := ParseAssignment(doc.LineContent(line))
		if !ok {
			continue
		}

		value, ok := Evaluate(a.Expression)
		if !ok {
			continue
		}

		hint := inlay.Hint{
			Position:    inlay.Pos(line, a.EndColumn),
			Label:       label(value, opts),
			PaddingLeft: true,
			Data:        data{Expression: a.Expression, Value: value},
		}

		if rng.Contains(hint.Position) {
			out = append(out, hint)
		}
	}

	return &inlay.HintList{Hints: out}, nil
}

// ResolveInlayHint adds a tooltip naming the expression and its type.
func (p *Provider) ResolveInlayHint(_ context.Context, hint inlay.Hint) (*inlay.Hint, error) {
	d, ok := hint.Data.(data)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrForeignHint, hint.Data)
	}

	return &inlay.Hint{
		Tooltip: fmt.Sprintf("`%s` evaluates to `%s` (%T)", d.Expression, Format(d.Value), d.Value),
	}, nil
}

func label(value any, opts Options) string {
	s := "= " + Format(value)
	if opts.ShowTypes {
		s += fmt.Sprintf(" (%T)", value)
	}

	limit := opts.MaxLength
	if limit <= 0 {
		limit = DefaultMaxLength
	}

	if utf8.RuneCountInString(s) > limit {
		s = string([]rune(s)[:limit-1]) + "…"
	}

	return s
}

// Evaluate compiles and runs a constant expression. It reports false for
// anything that needs variables, fails, or is already a literal.
func Evaluate(expression string) (any, bool) {
	program, err := expr.Compile(expression,
		expr.Env(map[string]any{}),
		expr.DisableBuiltin("now"),
		expr.DisableBuiltin("date"),
		expr.MaxNodes(maxNodes))
	if err != nil {
		return nil, false
	}

	output, err := expr.Run(program, map[string]any{})
	if err != nil || output == nil {
		return nil, false
	}

	if Format(output) == strings.TrimSpace(expression) {
		return nil, false
	}

	return output, true
}

// Format renders a value the way it would be written in an expression.
func Format(v any) string {
	switch v := v.(type) {
	case string:
		return strconv.Quote(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
