package lsp

import (
	"context"
	"encoding/json"
	"fmt"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/rlch/inlay/wire"
)

// serverCapabilities adds the inlay hint provider to the capabilities known
// to go.lsp.dev/protocol.
type serverCapabilities struct {
	protocol.ServerCapabilities

	InlayHintProvider *wire.InlayHintOptions `json:"inlayHintProvider,omitempty"`
}

type initializeResult struct {
	Capabilities serverCapabilities   `json:"capabilities"`
	ServerInfo   *protocol.ServerInfo `json:"serverInfo,omitempty"`
}

// clientCapabilities holds the client capabilities go.lsp.dev/protocol does
// not model.
type clientCapabilities struct {
	Capabilities struct {
		Workspace struct {
			InlayHint *struct {
				RefreshSupport bool `json:"refreshSupport"`
			} `json:"inlayHint"`
		} `json:"workspace"`
	} `json:"capabilities"`
}

// Handler returns the jsonrpc2 handler serving s on conn. Only the methods
// behind the advertised capabilities are routed; anything else is answered
// with a method-not-found error.
func (s *Server) Handler(conn jsonrpc2.Conn) jsonrpc2.Handler {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	routes := map[string]jsonrpc2.Handler{
		protocol.MethodInitialize:            s.handleInitialize,
		protocol.MethodInitialized:           notify(s.Initialized),
		protocol.MethodShutdown:              s.handleShutdown,
		protocol.MethodTextDocumentDidOpen:   notify(s.DidOpen),
		protocol.MethodTextDocumentDidChange: notify(s.DidChange),
		protocol.MethodTextDocumentDidClose:  notify(s.DidClose),
		protocol.MethodTextDocumentDidSave:   notify(s.DidSave),
		wire.MethodInlayHint:                 call(s.InlayHint),
		wire.MethodInlayHintResolve:          call(s.InlayHintResolve),
	}

	// Sent by editors regardless of capabilities.
	for _, method := range []string{protocol.MethodWorkspaceDidChangeConfiguration, protocol.MethodSetTrace} {
		routes[method] = ignore
	}

	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		if req.Method() == protocol.MethodExit {
			err := reply(ctx, nil, s.Exit(ctx))
			_ = conn.Close()

			return err
		}

		if s.isShutdown() {
			return reply(ctx, nil, fmt.Errorf("%w: %s after shutdown", jsonrpc2.ErrInvalidRequest, req.Method()))
		}

		route, ok := routes[req.Method()]
		if !ok {
			s.logger.Debug("Unhandled method", zap.String("method", req.Method()))

			return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
		}

		return route(ctx, reply, req)
	}
}

func (s *Server) handleInitialize(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.InitializeParams
	if err := decodeParams(req, &params); err != nil {
		return reply(ctx, nil, err)
	}

	var caps clientCapabilities
	if err := decodeParams(req, &caps); err != nil {
		return reply(ctx, nil, err)
	}

	refresh := caps.Capabilities.Workspace.InlayHint != nil && caps.Capabilities.Workspace.InlayHint.RefreshSupport
	s.refreshSupport.Store(refresh)

	result, err := s.Initialize(ctx, &params)
	if err != nil {
		return reply(ctx, nil, err)
	}

	return reply(ctx, &initializeResult{
		Capabilities: serverCapabilities{
			ServerCapabilities: result.Capabilities,
			InlayHintProvider:  &wire.InlayHintOptions{ResolveProvider: true},
		},
		ServerInfo: result.ServerInfo,
	}, nil)
}

func (s *Server) handleShutdown(ctx context.Context, reply jsonrpc2.Replier, _ jsonrpc2.Request) error {
	return reply(ctx, nil, s.Shutdown(ctx))
}

// call routes a request whose params decode into P.
func call[P, R any](fn func(context.Context, *P) (R, error)) jsonrpc2.Handler {
	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		var params P
		if err := decodeParams(req, &params); err != nil {
			return reply(ctx, nil, err)
		}

		result, err := fn(ctx, &params)

		return reply(ctx, result, err)
	}
}

// notify routes a notification whose params decode into P.
func notify[P any](fn func(context.Context, *P) error) jsonrpc2.Handler {
	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		var params P
		if err := decodeParams(req, &params); err != nil {
			return reply(ctx, nil, err)
		}

		return reply(ctx, nil, fn(ctx, &params))
	}
}

func ignore(ctx context.Context, reply jsonrpc2.Replier, _ jsonrpc2.Request) error {
	return reply(ctx, nil, nil)
}

func decodeParams(req jsonrpc2.Request, v any) error {
	params := req.Params()
	if len(params) == 0 {
		params = []byte("{}")
	}

	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("%w: %s: %w", jsonrpc2.ErrInvalidParams, req.Method(), err)
	}

	return nil
}
