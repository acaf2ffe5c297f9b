// Package hints collects inlay hints from many providers into one ordered,
// anchored set and resolves their deferred fields on demand.
package hints

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rlch/inlay"
)

// Source yields the providers for a document, highest priority first.
type Source interface {
	Ordered(doc inlay.Document) []inlay.Provider
}

// Collector builds FragmentSets.
type Collector struct {
	source    Source
	logger    *zap.Logger
	errors    inlay.ErrorSink
	maxRounds int
	timeout   time.Duration
}

// NewCollector returns a collector over the providers in source. Provider
// failures are logged to logger unless another sink is set.
func NewCollector(source Source, logger *zap.Logger) *Collector {
	return &Collector{
		source:    source,
		logger:    logger,
		errors:    inlay.LogErrors(logger),
		maxRounds: DefaultMaxResolveRounds,
	}
}

// SetErrorSink routes provider failures to sink.
func (c *Collector) SetErrorSink(sink inlay.ErrorSink) {
	c.errors = sink
}

// SetMaxResolveRounds bounds the retry loop of Item.Resolve.
func (c *Collector) SetMaxResolveRounds(n int) {
	c.maxRounds = n
}

// SetTimeout bounds each collection. Zero means no bound beyond the
// caller's context.
func (c *Collector) SetTimeout(d time.Duration) {
	c.timeout = d
}

// contribution is what one (provider, range) call produced.
type contribution struct {
	provider inlay.Provider
	list     *inlay.HintList
}

// Collect asks every provider for hints in every range and returns them as
// one set ordered by position.
//
// All calls run concurrently and Collect returns once every one of them has
// finished. A failing provider is reported to the error sink and contributes
// nothing; it never affects the others. Calls that end because ctx is done
// contribute nothing and are not reported. Hints at the same position keep
// provider priority order.
func (c *Collector) Collect(ctx context.Context, doc inlay.Document, ranges []inlay.Range) *FragmentSet {
	providers := c.source.Ordered(doc)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	// Slots are laid out by priority so that assembling them in order keeps
	// priority within equal positions after the stable sort.
	slots := make([]contribution, len(providers)*len(ranges))

	var g errgroup.Group

	// Launch lowest priority first.
	for pi := len(providers) - 1; pi >= 0; pi-- {
		provider := providers[pi]

		for ri, rng := range ranges {
			slot := &slots[pi*len(ranges)+ri]
			slot.provider = provider

			g.Go(func() error {
				list, err := provide(ctx, provider, doc, rng)
				if inlay.IsCancellation(err) {
					c.logger.Debug("Provider call cancelled", zap.String("provider", inlay.NameOf(provider)), zap.Error(err))

					return nil
				}

				if err != nil {
					c.errors.ReportError(err)

					return nil
				}

				slot.list = list

				return nil
			})
		}
	}

	_ = g.Wait()

	set := &FragmentSet{
		doc:      doc,
		ranges:   slices.Clone(ranges),
		onSignal: inlay.NewEmitter(),
	}

	subscribed := make([]bool, len(providers))

	for i, slot := range slots {
		pi := i / len(ranges)
		notifier, notifies := slot.provider.(inlay.ChangeNotifier)

		if slot.list != nil {
			if slot.list.Len() == 0 && !notifies {
				slot.list.Release()

				continue
			}

			set.disposables.AddFunc(slot.list.Release)

			for _, hint := range slot.list.Hints {
				anchor := AnchorAt(doc, hint.Position)
				set.items = append(set.items, newItem(hint, anchor, slot.provider, c.errors, c.maxRounds))
			}
		}

		if notifies && !subscribed[pi] {
			subscribed[pi] = true
			set.disposables.Add(notifier.OnDidChangeInlayHints(set.onSignal.Fire))
		}
	}

	set.disposables.AddFunc(set.onSignal.Close)

	// Items are not shared yet, so their cells can be read without locking.
	slices.SortStableFunc(set.items, func(a, b *Item) int {
		return a.cell.hint.Position.Compare(b.cell.hint.Position)
	})

	c.logger.Debug("Collected inlay hints",
		zap.String("uri", doc.URI()),
		zap.Int32("version", doc.Version()),
		zap.Int("providers", len(providers)),
		zap.Int("ranges", len(ranges)),
		zap.Int("hints", len(set.items)))

	return set
}

func provide(ctx context.Context, p inlay.Provider, doc inlay.Document, rng inlay.Range) (*inlay.HintList, error) {
	var list *inlay.HintList

	err := guard(p, func() error {
		var err error
		list, err = p.ProvideInlayHints(ctx, doc, rng)

		return err
	})
	if err != nil {
		return nil, err
	}

	return list, nil
}

// guard runs fn, turning a panic into an error and tagging errors with the
// provider's name.
func guard(p inlay.Provider, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", inlay.NameOf(p), r)
		}
	}()

	err = fn()
	if err != nil {
		return fmt.Errorf("%s: %w", inlay.NameOf(p), err)
	}

	return nil
}

// FragmentSet is the merged result of one collection.
type FragmentSet struct {
	doc         inlay.Document
	ranges      []inlay.Range
	items       []*Item
	onSignal    *inlay.Emitter
	disposables inlay.DisposableStore
	releaseOnce sync.Once
}

// Items returns the hints ordered by position.
func (s *FragmentSet) Items() []*Item {
	return slices.Clone(s.items)
}

// Len returns the number of hints.
func (s *FragmentSet) Len() int {
	return len(s.items)
}

// Item returns the i-th hint, or false when i is out of range.
func (s *FragmentSet) Item(i int) (*Item, bool) {
	if i < 0 || i >= len(s.items) {
		return nil, false
	}

	return s.items[i], true
}

// Ranges returns the ranges the set was collected for.
func (s *FragmentSet) Ranges() []inlay.Range {
	return slices.Clone(s.ranges)
}

// Document returns the snapshot the set was collected from.
//
//nolint:ireturn // Documents are only known by interface.
func (s *FragmentSet) Document() inlay.Document {
	return s.doc
}

// OnDidReceiveProviderSignal subscribes fn to change signals of every
// provider that contributed to the set. A signal means the set is stale and
// should be replaced.
//
//nolint:ireturn // Disposable is the subscription handle.
func (s *FragmentSet) OnDidReceiveProviderSignal(fn func()) inlay.Disposable {
	return s.onSignal.Subscribe(fn)
}

// Release unsubscribes from every provider and releases every provider
// result. Calling it more than once has no further effect.
func (s *FragmentSet) Release() {
	s.releaseOnce.Do(s.disposables.Dispose)
}
