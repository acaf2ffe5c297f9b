package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/rlch/inlay"
	"github.com/rlch/inlay/hints"
	"github.com/rlch/inlay/wire"
)

// refreshTimeout bounds a workspace/inlayHint/refresh round trip.
const refreshTimeout = 10 * time.Second

// hintData is carried in each hint's data field so resolve can find its item.
type hintData struct {
	URI   protocol.DocumentURI `json:"uri"`
	Set   string               `json:"set"`
	Index int                  `json:"index"`
}

// InlayHint handles textDocument/inlayHint.
func (s *Server) InlayHint(ctx context.Context, params *wire.InlayHintParams) ([]wire.InlayHint, error) {
	docURI := params.TextDocument.URI

	snapshot, ok := s.Snapshot(docURI)
	if !ok {
		s.logger.Debug("InlayHint for unknown document", zap.String("uri", string(docURI)))

		return []wire.InlayHint{}, nil
	}

	rng := wire.ToRange(snapshot, params.Range)
	set := s.collector.Collect(ctx, snapshot, []inlay.Range{rng})
	id := uuid.NewString()

	out := make([]wire.InlayHint, 0, set.Len())

	for i, item := range set.Items() {
		data, err := json.Marshal(hintData{URI: docURI, Set: id, Index: i})
		if err != nil {
			set.Release()

			return nil, fmt.Errorf("encoding hint data: %w", err)
		}

		h := wire.FromHint(snapshot, item.Hint())
		h.Data = data
		out = append(out, h)
	}

	s.logger.Debug("InlayHint",
		zap.String("uri", string(docURI)),
		zap.Stringer("range", rng),
		zap.Int("hints", len(out)))

	sub := set.OnDidReceiveProviderSignal(s.requestRefresh)

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[docURI]
	if !ok || doc.Snapshot != snapshot {
		// The document moved on while collecting; nothing can resolve these.
		sub.Dispose()
		set.Release()

		return out, nil
	}

	doc.sets = append(doc.sets, &retainedSet{id: id, set: set, sub: sub})

	for len(doc.sets) > maxRetainedSets {
		oldest := doc.sets[0]
		oldest.sub.Dispose()
		oldest.set.Release()
		doc.sets = doc.sets[1:]
	}

	return out, nil
}

// InlayHintResolve handles inlayHint/resolve. Hints whose set has been
// released come back unchanged.
func (s *Server) InlayHintResolve(ctx context.Context, hint *wire.InlayHint) (*wire.InlayHint, error) {
	if len(hint.Data) == 0 {
		return hint, nil
	}

	var data hintData
	if err := json.Unmarshal(hint.Data, &data); err != nil {
		s.logger.Debug("Resolve with foreign data", zap.Error(err))

		return hint, nil
	}

	set, ok := s.lookupSet(data)
	if !ok {
		return hint, nil
	}

	item, ok := set.Item(data.Index)
	if !ok {
		return hint, nil
	}

	item.Resolve(ctx)

	out := wire.FromHint(set.Document(), item.Hint())
	out.TextEdits = hint.TextEdits
	out.Data = hint.Data

	return &out, nil
}

func (s *Server) lookupSet(data hintData) (*hints.FragmentSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[data.URI]
	if !ok {
		return nil, false
	}

	for _, rs := range doc.sets {
		if rs.id == data.Set {
			return rs.set, true
		}
	}

	return nil, false
}

// requestRefresh asks the client to pull hints again. At most one request is
// in flight; signals arriving meanwhile are folded into it.
func (s *Server) requestRefresh() {
	if !s.refreshSupport.Load() {
		return
	}

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	if conn == nil || !s.refreshPending.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer s.refreshPending.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		var result any
		if _, err := conn.Call(ctx, wire.MethodInlayHintRefresh, nil, &result); err != nil {
			s.logger.Warn("Failed to request inlay hint refresh", zap.Error(err))

			_ = s.client.LogMessage(ctx, &protocol.LogMessageParams{
				Type:    protocol.MessageTypeWarning,
				Message: "inlay hint refresh failed: " + err.Error(),
			})
		}
	}()
}
