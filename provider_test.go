package inlay_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rlch/inlay"
)

type namedProvider string

func (p namedProvider) Name() string { return string(p) }

func (namedProvider) ProvideInlayHints(context.Context, inlay.Document, inlay.Range) (*inlay.HintList, error) {
	return nil, nil //nolint:nilnil // No hints.
}

type anonymousProvider struct{}

func (anonymousProvider) ProvideInlayHints(context.Context, inlay.Document, inlay.Range) (*inlay.HintList, error) {
	return nil, nil //nolint:nilnil // No hints.
}

// langDoc is a Document that only knows its language.
type langDoc struct {
	inlay.Document

	lang string
}

func (d langDoc) LanguageID() string { return d.lang }

func names(providers []inlay.Provider) []string {
	out := make([]string, 0, len(providers))
	for _, p := range providers {
		out = append(out, inlay.NameOf(p))
	}

	return out
}

func TestRegistry_Ordered(t *testing.T) {
	t.Parallel()

	r := inlay.NewRegistry()
	r.Register("go", namedProvider("go-old"))
	r.Register(inlay.AnyLanguage, namedProvider("any-old"))
	r.Register("python", namedProvider("py"))
	newest := r.Register("go", namedProvider("go-new"))
	r.Register(inlay.AnyLanguage, namedProvider("any-new"))

	assert.Equal(t, 5, r.Len())
	assert.Equal(t,
		[]string{"go-new", "go-old", "any-new", "any-old"},
		names(r.Ordered(langDoc{lang: "go"})))
	assert.Equal(t,
		[]string{"any-new", "any-old"},
		names(r.Ordered(langDoc{lang: "rust"})))

	newest.Dispose()
	newest.Dispose()

	assert.Equal(t, 4, r.Len())
	assert.Equal(t,
		[]string{"go-old", "any-new", "any-old"},
		names(r.Ordered(langDoc{lang: "go"})))
}

func TestRegistry_OrderedListsProvidersOnce(t *testing.T) {
	t.Parallel()

	both := namedProvider("both")

	r := inlay.NewRegistry()
	r.Register(inlay.AnyLanguage, both)
	r.Register("go", namedProvider("go"))
	r.Register("go", both)

	assert.Equal(t, []string{"both", "go"}, names(r.Ordered(langDoc{lang: "go"})))
	assert.Equal(t, []string{"both"}, names(r.Ordered(langDoc{lang: "rust"})))
}

func TestNameOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "expr", inlay.NameOf(namedProvider("expr")))
	assert.Equal(t, "provider", inlay.NameOf(anonymousProvider{}))
}

func TestErrorRecorder(t *testing.T) {
	t.Parallel()

	var rec inlay.ErrorRecorder

	rec.ReportError(assert.AnError)

	errs := rec.Errors()
	assert.Equal(t, []error{assert.AnError}, errs)

	errs[0] = nil
	assert.Equal(t, []error{assert.AnError}, rec.Errors(), "callers get a copy")

	assert.NotPanics(t, func() { inlay.DiscardErrors.ReportError(assert.AnError) })
}

func TestIsCancellation(t *testing.T) {
	t.Parallel()

	assert.True(t, inlay.IsCancellation(context.Canceled))
	assert.True(t, inlay.IsCancellation(fmt.Errorf("expr: %w", context.DeadlineExceeded)))
	assert.False(t, inlay.IsCancellation(assert.AnError))
	assert.False(t, inlay.IsCancellation(nil))
}
