// Package upstream merges the inlay hints of an external language server.
// The server is driven as an LSP client over jsonrpc2.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/zap"
	"go.uber.org/zap/zapio"

	"github.com/rlch/inlay"
	"github.com/rlch/inlay/wire"
)

// Errors returned by Client.
var (
	ErrClosed      = errors.New("upstream server is closed")
	ErrForeignHint = errors.New("hint was not produced by this upstream server")
)

// shutdownTimeout bounds the shutdown handshake in Close.
const shutdownTimeout = 5 * time.Second

// Client is a Provider backed by an external language server.
type Client struct {
	name    string
	logger  *zap.Logger
	conn    jsonrpc2.Conn
	cmd     *exec.Cmd
	changes *inlay.Emitter

	// Capabilities announced by the server.
	hintProvider    bool
	resolveProvider bool

	mu     sync.Mutex
	docs   map[string]int32
	closed bool
}

var (
	_ inlay.Provider       = (*Client)(nil)
	_ inlay.Resolver       = (*Client)(nil)
	_ inlay.ChangeNotifier = (*Client)(nil)
)

// Start launches the configured server and initializes it for rootDir.
func Start(ctx context.Context, logger *zap.Logger, cfg inlay.UpstreamConfig, rootDir string) (*Client, error) {
	logger = logger.With(zap.String("upstream", cfg.Name))
	logger.Debug("Starting upstream server", zap.String("command", cfg.Command), zap.Strings("args", cfg.Args))

	cmd := exec.Command(cfg.Command, cfg.Args...) //nolint:gosec // Commands come from the user's config.
	cmd.Dir = rootDir
	cmd.Env = os.Environ()
	cmd.Stderr = &zapio.Writer{Log: logger, Level: zap.DebugLevel}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()

		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	err = cmd.Start()
	if err != nil {
		_ = stdin.Close()

		return nil, fmt.Errorf("start %s: %w", cfg.Command, err)
	}

	c, err := New(ctx, logger, cfg.Name, &pipe{ReadCloser: stdout, WriteCloser: stdin}, uri.File(rootDir))
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()

		return nil, err
	}

	c.cmd = cmd

	return c, nil
}

// New initializes a server already connected through rwc.
func New(ctx context.Context, logger *zap.Logger, name string, rwc io.ReadWriteCloser, rootURI uri.URI) (*Client, error) {
	c := &Client{
		name:    name,
		logger:  logger,
		conn:    jsonrpc2.NewConn(jsonrpc2.NewStream(rwc)),
		changes: inlay.NewEmitter(),
		docs:    make(map[string]int32),
	}

	c.conn.Go(ctx, protocol.Handlers(c.handle))

	err := c.initialize(ctx, rootURI)
	if err != nil {
		_ = c.conn.Close()

		return nil, fmt.Errorf("initialize %s: %w", name, err)
	}

	return c, nil
}

// Name identifies the server in logs.
func (c *Client) Name() string { return c.name }

// SupportsResolve reports whether the server resolves hints lazily.
func (c *Client) SupportsResolve() bool { return c.resolveProvider }

func (c *Client) initialize(ctx context.Context, rootURI uri.URI) error {
	params := map[string]any{
		"processId":  os.Getpid(),
		"clientInfo": map[string]any{"name": "inlay"},
		"rootUri":    rootURI,
		"capabilities": map[string]any{
			"textDocument": map[string]any{
				"synchronization": map[string]any{},
				"inlayHint": wire.InlayHintClientCapabilities{
					ResolveSupport: &wire.ResolveSupport{Properties: []string{"tooltip", "label"}},
				},
			},
			"workspace": map[string]any{
				"configuration": true,
				"inlayHint":     map[string]any{"refreshSupport": true},
			},
		},
		"initializationOptions": map[string]any{},
	}

	var result struct {
		Capabilities struct {
			InlayHintProvider json.RawMessage `json:"inlayHintProvider"`
		} `json:"capabilities"`
		ServerInfo *protocol.ServerInfo `json:"serverInfo,omitempty"`
	}

	err := protocol.Call(ctx, c.conn, protocol.MethodInitialize, params, &result)
	if err != nil {
		return err
	}

	c.hintProvider, c.resolveProvider = parseHintProvider(result.Capabilities.InlayHintProvider)

	fields := []zap.Field{
		zap.Bool("inlayHints", c.hintProvider),
		zap.Bool("resolve", c.resolveProvider),
	}
	if result.ServerInfo != nil {
		fields = append(fields, zap.String("server", result.ServerInfo.Name), zap.String("version", result.ServerInfo.Version))
	}

	c.logger.Info("Upstream server initialized", fields...)

	if !c.hintProvider {
		c.logger.Warn("Upstream server does not provide inlay hints")
	}

	return c.conn.Notify(ctx, protocol.MethodInitialized, &protocol.InitializedParams{})
}

// parseHintProvider reads the inlayHintProvider capability, which is a
// boolean or an options object.
func parseHintProvider(raw json.RawMessage) (bool, bool) {
	if len(raw) == 0 {
		return false, false
	}

	var enabled bool
	if json.Unmarshal(raw, &enabled) == nil {
		return enabled, false
	}

	var opts wire.InlayHintOptions
	if json.Unmarshal(raw, &opts) == nil {
		return true, opts.ResolveProvider
	}

	return false, false
}

// sync sends doc to the server unless it already has this version.
func (c *Client) sync(ctx context.Context, doc inlay.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	version, open := c.docs[doc.URI()]

	switch {
	case !open:
		err := c.conn.Notify(ctx, protocol.MethodTextDocumentDidOpen, &protocol.DidOpenTextDocumentParams{
			TextDocument: protocol.TextDocumentItem{
				URI:        protocol.DocumentURI(doc.URI()),
				LanguageID: protocol.LanguageIdentifier(doc.LanguageID()),
				Version:    doc.Version(),
				Text:       doc.Text(),
			},
		})
		if err != nil {
			return fmt.Errorf("open %s: %w", doc.URI(), err)
		}
	case version != doc.Version():
		err := c.conn.Notify(ctx, protocol.MethodTextDocumentDidChange, &wire.DidChangeTextDocumentParams{
			TextDocument: protocol.VersionedTextDocumentIdentifier{
				TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(doc.URI())},
				Version:                doc.Version(),
			},
			ContentChanges: []wire.TextDocumentChange{{Text: doc.Text()}},
		})
		if err != nil {
			return fmt.Errorf("change %s: %w", doc.URI(), err)
		}
	default:
		return nil
	}

	c.docs[doc.URI()] = doc.Version()

	return nil
}

// CloseDocument tells the server the document is no longer open.
func (c *Client) CloseDocument(ctx context.Context, docURI string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, open := c.docs[docURI]; !open || c.closed {
		return nil
	}

	delete(c.docs, docURI)

	return c.conn.Notify(ctx, protocol.MethodTextDocumentDidClose, &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(docURI)},
	})
}

// ProvideInlayHints forwards textDocument/inlayHint.
func (c *Client) ProvideInlayHints(ctx context.Context, doc inlay.Document, rng inlay.Range) (*inlay.HintList, error) {
	if !c.hintProvider {
		return &inlay.HintList{}, nil
	}

	err := c.sync(ctx, doc)
	if err != nil {
		return nil, err
	}

	params := &wire.InlayHintParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(doc.URI())},
		Range:        wire.FromRange(doc, rng),
	}

	var result []wire.InlayHint

	err = protocol.Call(ctx, c.conn, wire.MethodInlayHint, params, &result)
	if err != nil {
		return nil, err
	}

	hints := make([]inlay.Hint, 0, len(result))

	for _, w := range result {
		h := wire.ToHint(doc, w)
		h.Data = w
		hints = append(hints, h)
	}

	return &inlay.HintList{Hints: hints}, nil
}

// ResolveInlayHint forwards inlayHint/resolve with the server's own hint.
func (c *Client) ResolveInlayHint(ctx context.Context, hint inlay.Hint) (*inlay.Hint, error) {
	original, ok := hint.Data.(wire.InlayHint)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrForeignHint, hint.Data)
	}

	if !c.resolveProvider {
		return nil, nil //nolint:nilnil // Nothing to add.
	}

	var resolved wire.InlayHint

	err := protocol.Call(ctx, c.conn, wire.MethodInlayHintResolve, original, &resolved)
	if err != nil {
		return nil, err
	}

	h := wire.ToHint(nil, resolved)

	return &inlay.Hint{Label: h.Label, Tooltip: h.Tooltip}, nil
}

// OnDidChangeInlayHints subscribes fn to the server's refresh requests.
//
//nolint:ireturn // Disposable is the subscription handle.
func (c *Client) OnDidChangeInlayHints(fn func()) inlay.Disposable {
	return c.changes.Subscribe(fn)
}

// handle answers requests the server sends to its client.
func (c *Client) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	switch req.Method() {
	case wire.MethodInlayHintRefresh:
		err := reply(ctx, nil, nil)
		c.logger.Debug("Upstream requested inlay hint refresh")
		c.changes.Fire()

		return err

	case protocol.MethodWorkspaceConfiguration:
		var params protocol.ConfigurationParams

		err := json.Unmarshal(req.Params(), &params)
		if err != nil {
			return reply(ctx, nil, fmt.Errorf("%w: %w", jsonrpc2.ErrInvalidParams, err))
		}

		return reply(ctx, make([]any, len(params.Items)), nil)

	case protocol.MethodClientRegisterCapability,
		protocol.MethodClientUnregisterCapability,
		protocol.MethodWorkDoneProgressCreate:
		return reply(ctx, nil, nil)

	case protocol.MethodWindowLogMessage, protocol.MethodWindowShowMessage:
		var params protocol.LogMessageParams
		if json.Unmarshal(req.Params(), &params) == nil {
			c.logger.Debug("Upstream message", zap.String("message", params.Message))
		}

		return reply(ctx, nil, nil)
	}

	if _, isCall := req.(*jsonrpc2.Call); !isCall {
		// Diagnostics, progress and other notifications are not needed.
		return reply(ctx, nil, nil)
	}

	return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
}

// Close shuts the server down and releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()

		return nil
	}

	c.closed = true
	c.mu.Unlock()

	c.changes.Close()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := protocol.Call(ctx, c.conn, protocol.MethodShutdown, nil, nil)
	if err != nil {
		c.logger.Debug("Upstream shutdown failed", zap.Error(err))
	} else {
		_ = c.conn.Notify(ctx, protocol.MethodExit, nil)
	}

	err = c.conn.Close()

	if c.cmd != nil {
		waitErr := c.wait()

		var exitErr *exec.ExitError
		if waitErr != nil && !errors.As(waitErr, &exitErr) {
			return fmt.Errorf("wait for %s: %w", c.name, waitErr)
		}
	}

	return err
}

// wait reaps the server process, killing it if it outlives the shutdown
// handshake.
func (c *Client) wait() error {
	done := make(chan error, 1)

	go func() { done <- c.cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-time.After(shutdownTimeout):
		c.logger.Warn("Upstream server did not exit, killing it")
		_ = c.cmd.Process.Kill()

		return <-done
	}
}

// pipe joins a process's stdout and stdin into one stream.
type pipe struct {
	io.ReadCloser
	io.WriteCloser
}

func (p *pipe) Close() error {
	return errors.Join(p.WriteCloser.Close(), p.ReadCloser.Close())
}
