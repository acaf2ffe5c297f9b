// Package lsp implements a Language Server Protocol server that serves
// aggregated inlay hints.
package lsp

import (
	"context"
	"sync"
	"sync/atomic"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/zap"

	"github.com/rlch/inlay"
	"github.com/rlch/inlay/hints"
	"github.com/rlch/inlay/text"
)

// maxRetainedSets bounds the fragment sets kept per document for resolve.
const maxRetainedSets = 8

// DocumentCloser is told when the editor closes a document. Upstream
// providers use it to stop syncing.
type DocumentCloser interface {
	CloseDocument(ctx context.Context, docURI string) error
}

// Server holds the open documents and the fragment sets served from them.
type Server struct {
	client    protocol.Client
	logger    *zap.Logger
	collector *hints.Collector

	// Document state
	mu        sync.RWMutex
	documents map[protocol.DocumentURI]*Document
	languages map[string]text.Options
	closers   []DocumentCloser

	// Connection used for server-initiated requests, set by Handler
	conn           jsonrpc2.Conn
	refreshSupport atomic.Bool
	refreshPending atomic.Bool

	shutdown bool
}

// Document represents an open document in the server.
type Document struct {
	URI      protocol.DocumentURI
	Snapshot *text.Document

	// Sets whose items can still be resolved, oldest first.
	sets []*retainedSet
}

type retainedSet struct {
	id  string
	set *hints.FragmentSet
	sub inlay.Disposable
}

func (d *Document) release() {
	for _, rs := range d.sets {
		rs.sub.Dispose()
		rs.set.Release()
	}

	d.sets = nil
}

// NewServer creates a new LSP server collecting hints with collector.
func NewServer(client protocol.Client, logger *zap.Logger, collector *hints.Collector) *Server {
	return &Server{
		client:    client,
		logger:    logger,
		collector: collector,
		documents: make(map[protocol.DocumentURI]*Document),
		languages: make(map[string]text.Options),
	}
}

// SetLanguages sets the word and token rules used for new snapshots, keyed by
// language id.
func (s *Server) SetLanguages(languages map[string]text.Options) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.languages = languages
}

// AddDocumentCloser registers c to be told about closed documents.
func (s *Server) AddDocumentCloser(c DocumentCloser) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closers = append(s.closers, c)
}

// Initialize handles the initialize request.
func (s *Server) Initialize(_ context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	root := params.RootPath
	if params.RootURI != "" {
		root = uri.URI(params.RootURI).Filename()
	}

	s.logger.Info("Initialize", zap.String("root", root))

	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			// Full document sync - client sends entire content on change
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindFull,
			},
		},
		ServerInfo: &protocol.ServerInfo{
			Name:    "inlay-lsp",
			Version: "0.1.0",
		},
	}, nil
}

// Initialized handles the initialized notification.
func (s *Server) Initialized(_ context.Context, _ *protocol.InitializedParams) error {
	s.logger.Info("Initialized")

	return nil
}

// Shutdown handles the shutdown request.
func (s *Server) Shutdown(_ context.Context) error {
	s.logger.Info("Shutdown")

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range s.documents {
		doc.release()
	}

	s.shutdown = true

	return nil
}

// Exit handles the exit notification. Handler closes the connection
// afterwards.
func (s *Server) Exit(_ context.Context) error {
	s.logger.Info("Exit")

	return nil
}

func (s *Server) isShutdown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.shutdown
}

// DidOpen handles textDocument/didOpen notifications.
func (s *Server) DidOpen(_ context.Context, params *protocol.DidOpenTextDocumentParams) error {
	item := params.TextDocument
	s.logger.Info("DidOpen",
		zap.String("uri", string(item.URI)),
		zap.String("language", string(item.LanguageID)))

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.documents[item.URI]; ok {
		old.release()
	}

	lang := string(item.LanguageID)
	s.documents[item.URI] = &Document{
		URI:      item.URI,
		Snapshot: text.New(string(item.URI), lang, item.Version, item.Text, s.languages[lang]),
	}

	return nil
}

// DidChange handles textDocument/didChange notifications.
func (s *Server) DidChange(_ context.Context, params *protocol.DidChangeTextDocumentParams) error {
	s.logger.Debug("DidChange",
		zap.String("uri", string(params.TextDocument.URI)),
		zap.Int32("version", params.TextDocument.Version))

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[params.TextDocument.URI]
	if !ok {
		s.logger.Warn("DidChange for unknown document", zap.String("uri", string(params.TextDocument.URI)))

		return nil
	}

	// Full sync - take the last content change (should only be one with full sync)
	if len(params.ContentChanges) > 0 {
		content := params.ContentChanges[len(params.ContentChanges)-1].Text
		doc.Snapshot = doc.Snapshot.WithText(params.TextDocument.Version, content)
		doc.release()
	}

	return nil
}

// DidClose handles textDocument/didClose notifications.
func (s *Server) DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error {
	s.logger.Info("DidClose", zap.String("uri", string(params.TextDocument.URI)))

	s.mu.Lock()
	if doc, ok := s.documents[params.TextDocument.URI]; ok {
		doc.release()
		delete(s.documents, params.TextDocument.URI)
	}

	closers := s.closers
	s.mu.Unlock()

	for _, c := range closers {
		if err := c.CloseDocument(ctx, string(params.TextDocument.URI)); err != nil {
			s.logger.Warn("Failed to close document upstream", zap.Error(err))
		}
	}

	return nil
}

// DidSave handles textDocument/didSave notifications.
func (s *Server) DidSave(_ context.Context, params *protocol.DidSaveTextDocumentParams) error {
	s.logger.Debug("DidSave", zap.String("uri", string(params.TextDocument.URI)))

	return nil
}

// Snapshot returns the current snapshot of an open document.
func (s *Server) Snapshot(docURI protocol.DocumentURI) (*text.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[docURI]
	if !ok {
		return nil, false
	}

	return doc.Snapshot, true
}
