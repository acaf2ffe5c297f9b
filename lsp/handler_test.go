package lsp_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/rlch/inlay"
	"github.com/rlch/inlay/hints"
	"github.com/rlch/inlay/lsp"
	"github.com/rlch/inlay/providers/exprhint"
	"github.com/rlch/inlay/wire"
)

// editor is the client end of a connection to a running server.
type editor struct {
	conn      jsonrpc2.Conn
	server    jsonrpc2.Conn
	provider  *exprhint.Provider
	refreshes chan struct{}
}

func startServer(t *testing.T) *editor {
	t.Helper()

	logger := zap.NewNop()
	provider := exprhint.New(logger, exprhint.Options{})

	reg := inlay.NewRegistry()
	reg.Register(inlay.AnyLanguage, provider)

	serverSide, clientSide := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	serverConn := jsonrpc2.NewConn(jsonrpc2.NewStream(serverSide))
	server := lsp.NewServer(protocol.ClientDispatcher(serverConn, logger), logger, hints.NewCollector(reg, logger))
	serverConn.Go(ctx, protocol.Handlers(server.Handler(serverConn)))

	e := &editor{
		conn:      jsonrpc2.NewConn(jsonrpc2.NewStream(clientSide)),
		server:    serverConn,
		provider:  provider,
		refreshes: make(chan struct{}, 8),
	}

	e.conn.Go(ctx, protocol.Handlers(func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		if req.Method() == wire.MethodInlayHintRefresh {
			e.refreshes <- struct{}{}
		}

		return reply(ctx, nil, nil)
	}))

	t.Cleanup(func() {
		cancel()
		_ = e.conn.Close()
		_ = serverConn.Close()
	})

	return e
}

func (e *editor) initialize(t *testing.T, refresh bool) map[string]any {
	t.Helper()

	params := map[string]any{
		"processId": nil,
		"rootUri":   "file:///work",
		"capabilities": map[string]any{
			"textDocument": map[string]any{
				"inlayHint": map[string]any{
					"resolveSupport": map[string]any{"properties": []string{"tooltip"}},
				},
			},
			"workspace": map[string]any{
				"inlayHint": map[string]any{"refreshSupport": refresh},
			},
		},
	}

	var result map[string]any

	_, err := e.conn.Call(context.Background(), protocol.MethodInitialize, params, &result)
	require.NoError(t, err)
	require.NoError(t, e.conn.Notify(context.Background(), protocol.MethodInitialized, map[string]any{}))

	return result
}

func (e *editor) open(t *testing.T, text string) {
	t.Helper()

	err := e.conn.Notify(context.Background(), protocol.MethodTextDocumentDidOpen, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: testURI, LanguageID: "plaintext", Version: 1, Text: text},
	})
	require.NoError(t, err)
}

func (e *editor) hints(t *testing.T) []wire.InlayHint {
	t.Helper()

	var result []wire.InlayHint

	_, err := e.conn.Call(context.Background(), wire.MethodInlayHint, &wire.InlayHintParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
		Range:        protocol.Range{End: protocol.Position{Line: 100}},
	}, &result)
	require.NoError(t, err)

	return result
}

func TestHandler_InitializeAdvertisesInlayHints(t *testing.T) {
	t.Parallel()

	e := startServer(t)
	result := e.initialize(t, true)

	caps, ok := result["capabilities"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"resolveProvider": true}, caps["inlayHintProvider"])
	assert.NotNil(t, caps["textDocumentSync"])

	info, ok := result["serverInfo"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "inlay-lsp", info["name"])
}

func TestHandler_HintsAndResolve(t *testing.T) {
	t.Parallel()

	e := startServer(t)
	e.initialize(t, false)
	e.open(t, testSource)

	listed := e.hints(t)
	require.Len(t, listed, 2)
	assert.Equal(t, "= 6", listed[0].Label.String())

	var resolved wire.InlayHint

	_, err := e.conn.Call(context.Background(), wire.MethodInlayHintResolve, &listed[0], &resolved)
	require.NoError(t, err)
	require.NotNil(t, resolved.Tooltip)
	assert.Equal(t, "`2 * 3` evaluates to `6` (int)", resolved.Tooltip.Value)
}

func TestHandler_InvalidParams(t *testing.T) {
	t.Parallel()

	e := startServer(t)
	e.initialize(t, false)

	var result any

	_, err := e.conn.Call(context.Background(), wire.MethodInlayHint, []int{1, 2}, &result)
	require.Error(t, err)

	var rpcErr *jsonrpc2.Error

	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, jsonrpc2.InvalidParams, rpcErr.Code)
}

func TestHandler_UnknownMethod(t *testing.T) {
	t.Parallel()

	e := startServer(t)
	e.initialize(t, false)

	var result any

	_, err := e.conn.Call(context.Background(), "custom/thing", map[string]any{}, &result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestHandler_IgnoredNotifications(t *testing.T) {
	t.Parallel()

	e := startServer(t)
	e.initialize(t, false)

	require.NoError(t, e.conn.Notify(context.Background(), protocol.MethodWorkspaceDidChangeConfiguration, map[string]any{"settings": nil}))
	e.open(t, testSource)
	assert.Len(t, e.hints(t), 2)
}

func TestHandler_Shutdown(t *testing.T) {
	t.Parallel()

	e := startServer(t)
	e.initialize(t, false)
	e.open(t, testSource)

	var result any

	_, err := e.conn.Call(context.Background(), protocol.MethodShutdown, nil, &result)
	require.NoError(t, err)

	_, err = e.conn.Call(context.Background(), wire.MethodInlayHint, &wire.InlayHintParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
	}, &result)

	var rpcErr *jsonrpc2.Error

	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, jsonrpc2.InvalidRequest, rpcErr.Code)

	require.NoError(t, e.conn.Notify(context.Background(), protocol.MethodExit, nil))

	select {
	case <-e.server.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("server connection still open after exit")
	}
}

func TestHandler_ProviderSignalRefreshes(t *testing.T) {
	t.Parallel()

	e := startServer(t)
	e.initialize(t, true)
	e.open(t, testSource)
	require.NotEmpty(t, e.hints(t))

	e.provider.SetOptions(exprhint.Options{ShowTypes: true})

	select {
	case <-e.refreshes:
	case <-time.After(5 * time.Second):
		t.Fatal("no workspace/inlayHint/refresh after the provider signalled")
	}

	assert.Equal(t, "= 6 (int)", e.hints(t)[0].Label.String())
}

func TestHandler_NoRefreshWithoutClientSupport(t *testing.T) {
	t.Parallel()

	e := startServer(t)
	e.initialize(t, false)
	e.open(t, testSource)
	require.NotEmpty(t, e.hints(t))

	e.provider.SetOptions(exprhint.Options{ShowTypes: true})

	select {
	case <-e.refreshes:
		t.Fatal("refresh sent to a client that does not support it")
	case <-time.After(100 * time.Millisecond):
	}
}
