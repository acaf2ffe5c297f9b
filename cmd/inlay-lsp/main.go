// Command inlay-lsp is a Language Server Protocol server that merges inlay
// hints from several providers.
package main

import (
	"context"
	"io"
	"os"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rlch/inlay"
	"github.com/rlch/inlay/hints"
	"github.com/rlch/inlay/lsp"
	"github.com/rlch/inlay/providers"
	"github.com/rlch/inlay/text"
)

func main() {
	// Set up logging to stderr (stdout is for LSP communication)
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	config := zap.NewDevelopmentConfig()
	config.OutputPaths = []string{"stderr"}
	config.Level = level

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("Starting inlay-lsp server")

	ctx := context.Background()

	err = run(ctx, logger, level, os.Stdin, os.Stdout)
	if err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger, level zap.AtomicLevel, in io.Reader, out io.Writer) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}

	cfg, cfgPath, err := inlay.LoadConfigOrDefault(wd)
	if err != nil {
		return err
	}

	setLevel(logger, level, cfg.LogLevel)

	languages, err := text.OptionsByLanguage(cfg.Languages)
	if err != nil {
		return err
	}

	set, err := providers.Build(ctx, logger, cfg, wd)
	if err != nil {
		return err
	}

	defer func() {
		if err := set.Close(); err != nil {
			logger.Warn("Failed to close providers", zap.Error(err))
		}
	}()

	collector := hints.NewCollector(set.Registry, logger)
	collector.SetErrorSink(inlay.LogErrors(logger))
	collector.SetMaxResolveRounds(cfg.MaxResolveRounds(hints.DefaultMaxResolveRounds))
	collector.SetTimeout(cfg.Collect.Timeout)

	// Create a JSON-RPC stream connection over stdio
	stream := jsonrpc2.NewStream(&readWriteCloser{in, out})
	conn := jsonrpc2.NewConn(stream)

	// Create a client to send notifications to the editor
	client := protocol.ClientDispatcher(conn, logger)

	// Create our LSP server
	server := lsp.NewServer(client, logger, collector)
	server.SetLanguages(languages)

	for _, u := range set.Upstream {
		server.AddDocumentCloser(u)
	}

	if cfgPath != "" {
		watcher, err := inlay.WatchConfig(cfgPath, logger, func(cfg *inlay.Config) {
			setLevel(logger, level, cfg.LogLevel)
			set.Reconfigure(cfg)

			languages, err := text.OptionsByLanguage(cfg.Languages)
			if err != nil {
				logger.Warn("Ignoring language rules", zap.Error(err))

				return
			}

			server.SetLanguages(languages)
		})
		if err != nil {
			logger.Warn("Config changes will not be picked up", zap.Error(err))
		} else {
			defer func() {
				_ = watcher.Close()
			}()
		}
	}

	// Register the server handler with the connection
	conn.Go(ctx, protocol.Handlers(server.Handler(conn)))

	// Wait for the connection to close
	<-conn.Done()

	return conn.Err()
}

func setLevel(logger *zap.Logger, level zap.AtomicLevel, name string) {
	if name == "" {
		return
	}

	l, err := zapcore.ParseLevel(name)
	if err != nil {
		logger.Warn("Unknown log level", zap.String("level", name))

		return
	}

	level.SetLevel(l)
}

// readWriteCloser wraps separate reader/writer into io.ReadWriteCloser.
type readWriteCloser struct {
	io.Reader
	io.Writer
}

func (rwc *readWriteCloser) Close() error {
	// Close writer if it's closeable
	if c, ok := rwc.Writer.(io.Closer); ok {
		return c.Close()
	}

	return nil
}
