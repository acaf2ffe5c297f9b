package inlay

import (
	"context"
	"slices"
	"sync"
)

// Provider computes inlay hints for a region of a document.
type Provider interface {
	// ProvideInlayHints returns the hints inside rng. A nil list means no
	// hints.
	ProvideInlayHints(ctx context.Context, doc Document, rng Range) (*HintList, error)
}

// Resolver is implemented by providers that can fill in deferred hint
// fields. A nil hint, or empty Label/Tooltip fields, keep the current value.
type Resolver interface {
	ResolveInlayHint(ctx context.Context, hint Hint) (*Hint, error)
}

// ChangeNotifier is implemented by providers that can tell when hints they
// produced earlier are out of date.
type ChangeNotifier interface {
	OnDidChangeInlayHints(fn func()) Disposable
}

// Named is implemented by providers that have a display name for logs.
type Named interface {
	Name() string
}

// NameOf returns a provider's display name, or "provider" if it has none.
func NameOf(p Provider) string {
	if n, ok := p.(Named); ok {
		return n.Name()
	}

	return "provider"
}

// AnyLanguage matches every document in a Registry.
const AnyLanguage = "*"

// Registry keeps providers per language.
//
// Ordered returns providers whose language matches the document exactly
// before wildcard providers; within each group the most recently registered
// comes first.
type Registry struct {
	mu      sync.RWMutex
	seq     int
	entries []registryEntry
}

type registryEntry struct {
	id       int
	language string
	provider Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds p for documents whose language is language (or AnyLanguage).
// Disposing the result removes it again.
func (r *Registry) Register(language string, p Provider) Disposable {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	id := r.seq
	r.entries = append(r.entries, registryEntry{id: id, language: language, provider: p})

	return Once(DisposableFunc(func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		r.entries = slices.DeleteFunc(r.entries, func(e registryEntry) bool {
			return e.id == id
		})
	}))
}

// Ordered returns the providers applicable to doc, highest priority first.
// A provider registered under several matching selectors appears once, at
// its highest priority. Providers are compared by identity, so register
// pointers or other comparable values.
func (r *Registry) Ordered(doc Document) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lang := doc.LanguageID()

	var exact, wildcard []Provider

	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]

		switch e.language {
		case lang:
			exact = append(exact, e.provider)
		case AnyLanguage:
			wildcard = append(wildcard, e.provider)
		}
	}

	ordered := make([]Provider, 0, len(exact)+len(wildcard))

	for _, p := range append(exact, wildcard...) {
		if !slices.Contains(ordered, p) {
			ordered = append(ordered, p)
		}
	}

	return ordered
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}
