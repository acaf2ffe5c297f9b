package hints

import (
	"context"
	"sync"

	"github.com/rlch/inlay"
)

// DefaultMaxResolveRounds bounds how often Resolve waits for another
// caller's resolution and then tries again.
const DefaultMaxResolveRounds = 8

// hintCell holds a hint shared between an item and its WithAnchor copies.
// Only a settling resolution writes to it.
type hintCell struct {
	mu   sync.RWMutex
	hint inlay.Hint
}

func (c *hintCell) get() inlay.Hint {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.hint
}

// merge overwrites label and tooltip with the non-empty fields of resolved.
func (c *hintCell) merge(resolved *inlay.Hint) {
	if resolved == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if resolved.Tooltip != "" {
		c.hint.Tooltip = resolved.Tooltip
	}

	if resolved.Label != "" {
		c.hint.Label = resolved.Label
	}
}

// flight is one outstanding resolution. done is closed when it settles.
type flight struct {
	done chan struct{}
}

// Item is one hint with its anchor.
type Item struct {
	cell      *hintCell
	anchor    inlay.Anchor
	provider  inlay.Provider
	errors    inlay.ErrorSink
	maxRounds int

	mu       sync.Mutex
	resolved bool
	flight   *flight
}

func newItem(hint inlay.Hint, anchor inlay.Anchor, provider inlay.Provider, errors inlay.ErrorSink, maxRounds int) *Item {
	if errors == nil {
		errors = inlay.DiscardErrors
	}

	if maxRounds < 1 {
		maxRounds = DefaultMaxResolveRounds
	}

	return &Item{
		cell:      &hintCell{hint: hint},
		anchor:    anchor,
		provider:  provider,
		errors:    errors,
		maxRounds: maxRounds,
	}
}

// Hint returns a snapshot of the hint.
func (it *Item) Hint() inlay.Hint {
	return it.cell.get()
}

// Anchor returns where the hint attaches.
func (it *Item) Anchor() inlay.Anchor {
	return it.anchor
}

// Provider returns the provider that produced the hint.
//
//nolint:ireturn // Providers are only known by interface.
func (it *Item) Provider() inlay.Provider {
	return it.provider
}

// Resolved reports whether the hint's deferred fields have been resolved.
func (it *Item) Resolved() bool {
	it.mu.Lock()
	defer it.mu.Unlock()

	return it.resolved
}

// WithAnchor returns a copy of it attached to anchor. The copy shares the
// hint and takes over the resolution state as it is right now, including an
// outstanding resolution, but later changes to either item do not affect
// the other.
func (it *Item) WithAnchor(anchor inlay.Anchor) *Item {
	it.mu.Lock()
	defer it.mu.Unlock()

	return &Item{
		cell:      it.cell,
		anchor:    anchor,
		provider:  it.provider,
		errors:    it.errors,
		maxRounds: it.maxRounds,
		resolved:  it.resolved,
		flight:    it.flight,
	}
}

// Resolve fills in the hint's deferred fields.
//
// Concurrent calls share a single request to the provider. A caller that
// had to wait for someone else's request tries again afterwards, unless ctx
// is done by then, since the hint may have changed while that request was
// running. Provider failures go to the error sink and leave the item
// unresolved so that a later call can retry. Resolve never aborts a request
// that is already running.
func (it *Item) Resolve(ctx context.Context) {
	resolver, ok := it.provider.(inlay.Resolver)
	if !ok {
		return
	}

	for range it.maxRounds {
		it.mu.Lock()

		if f := it.flight; f != nil {
			it.mu.Unlock()
			<-f.done

			it.mu.Lock()
			// Copies made by WithAnchor keep the handle they inherited.
			if it.flight == f {
				it.flight = nil
			}
			it.mu.Unlock()

			if ctx.Err() != nil {
				return
			}

			continue
		}

		if it.resolved {
			it.mu.Unlock()

			return
		}

		f := &flight{done: make(chan struct{})}
		it.flight = f
		it.mu.Unlock()

		succeeded := it.doResolve(ctx, resolver)

		it.mu.Lock()
		it.resolved = succeeded
		if it.flight == f {
			it.flight = nil
		}
		it.mu.Unlock()
		close(f.done)

		return
	}
}

func (it *Item) doResolve(ctx context.Context, resolver inlay.Resolver) bool {
	hint := it.cell.get()

	var resolved *inlay.Hint

	err := guard(it.provider, func() error {
		var err error
		resolved, err = resolver.ResolveInlayHint(ctx, hint)

		return err
	})
	if err != nil {
		if !inlay.IsCancellation(err) {
			it.errors.ReportError(err)
		}

		return false
	}

	it.cell.merge(resolved)

	return true
}
