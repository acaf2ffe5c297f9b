package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"
	"go.lsp.dev/uri"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/rlch/inlay"
	"github.com/rlch/inlay/hints"
	"github.com/rlch/inlay/providers"
	"github.com/rlch/inlay/text"
)

var (
	errNoFile   = errors.New("expected exactly one file")
	errBadLines = errors.New("lines must look like 3, 3:7 or 3:")
)

// languageByExt maps file extensions to LSP language ids.
var languageByExt = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascriptreact",
	".ts":   "typescript",
	".tsx":  "typescriptreact",
	".rs":   "rust",
	".rb":   "ruby",
	".java": "java",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".cs":   "csharp",
	".sh":   "shellscript",
	".yaml": "yaml",
	".yml":  "yaml",
	".json": "json",
	".md":   "markdown",
	".txt":  "plaintext",
}

func hintsCommand() *cli.Command {
	return &cli.Command{
		Name:      "hints",
		Usage:     "Collect the inlay hints of a file",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "config file (default: nearest .inlay.yaml)",
			},
			&cli.StringFlag{
				Name:    "lang",
				Aliases: []string{"l"},
				Usage:   "language id (default: from the file extension)",
			},
			&cli.StringFlag{
				Name:  "lines",
				Usage: "1-based line span, e.g. 10:20",
			},
			&cli.BoolFlag{
				Name:    "resolve",
				Aliases: []string{"r"},
				Usage:   "resolve every hint and print tooltips",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "disable colored output",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log provider activity to stderr",
			},
		},
		Action: runHints,
	}
}

func runHints(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) != 1 {
		return errNoFile
	}

	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path) //#nosec G304 -- path comes from user args
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd.String("config"), filepath.Dir(path))
	if err != nil {
		return err
	}

	logger, err := newLogger(cmd.Bool("verbose"))
	if err != nil {
		return err
	}

	defer func() {
		_ = logger.Sync()
	}()

	lang := cmd.String("lang")
	if lang == "" {
		lang = languageOf(path)
	}

	opts, err := text.OptionsFor(cfg.Languages[lang])
	if err != nil {
		return fmt.Errorf("language %s: %w", lang, err)
	}

	doc := text.New(string(uri.File(path)), lang, 1, string(data), opts)

	rng, err := parseLines(cmd.String("lines"), doc.LineCount())
	if err != nil {
		return err
	}

	set, err := providers.Build(ctx, logger, cfg, filepath.Dir(path), lang)
	if err != nil {
		return err
	}

	defer func() {
		if err := set.Close(); err != nil {
			logger.Warn("Failed to close providers", zap.Error(err))
		}
	}()

	collector := hints.NewCollector(set.Registry, logger)
	collector.SetMaxResolveRounds(cfg.MaxResolveRounds(hints.DefaultMaxResolveRounds))
	collector.SetTimeout(cfg.Collect.Timeout)

	fragments := collector.Collect(ctx, doc, []inlay.Range{rng})
	defer fragments.Release()

	resolve := cmd.Bool("resolve")
	if resolve {
		resolveAll(ctx, fragments.Items())
	}

	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}

	return printHints(out, fragments.Items(), resolve, stylesFor(out, cmd.Bool("no-color")))
}

func loadConfig(path, dir string) (*inlay.Config, error) {
	if path != "" {
		return inlay.LoadConfigFile(path)
	}

	cfg, _, err := inlay.LoadConfigOrDefault(dir)

	return cfg, err
}

func newLogger(verbose bool) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.OutputPaths = []string{"stderr"}
	config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)

	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	return config.Build()
}

func languageOf(path string) string {
	if lang, ok := languageByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}

	return "plaintext"
}

// parseLines turns "a", "a:b" or "a:" into a range over whole lines. An
// empty spec covers the document.
func parseLines(spec string, lineCount int) (inlay.Range, error) {
	if spec == "" {
		return inlay.LineRange(1, lineCount), nil
	}

	first, last, hasLast := strings.Cut(spec, ":")

	start, err := strconv.Atoi(first)
	if err != nil || start < 1 {
		return inlay.Range{}, fmt.Errorf("%w: %q", errBadLines, spec)
	}

	end := start

	switch {
	case hasLast && last == "":
		end = lineCount
	case hasLast:
		end, err = strconv.Atoi(last)
		if err != nil || end < start {
			return inlay.Range{}, fmt.Errorf("%w: %q", errBadLines, spec)
		}
	}

	return inlay.LineRange(start, end), nil
}

// resolveAll resolves items concurrently. Failures are left to the
// collector's error sink.
func resolveAll(ctx context.Context, items []*hints.Item) {
	var g errgroup.Group

	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, item := range items {
		g.Go(func() error {
			item.Resolve(ctx)

			return nil
		})
	}

	_ = g.Wait()
}

func printHints(w io.Writer, items []*hints.Item, tooltips bool, st *Styles) error {
	for _, item := range items {
		h := item.Hint()
		a := item.Anchor()

		side := st.Before
		if a.Side == inlay.SideAfter {
			side = st.After
		}

		_, err := fmt.Fprintf(w, "%s %s %s %s\n",
			st.Position.Render(h.Position.String()),
			side.Render(string(a.Side)),
			st.Anchor.Render(a.Range.String()),
			st.Label.Render(h.Label))
		if err != nil {
			return err
		}

		if !tooltips || h.Tooltip == "" {
			continue
		}

		for line := range strings.SplitSeq(h.Tooltip, "\n") {
			_, err := fmt.Fprintf(w, "%s%s\n", st.TooltipIndent, st.Tooltip.Render(line))
			if err != nil {
				return err
			}
		}
	}

	_, err := fmt.Fprintln(w, st.Count.Render(fmt.Sprintf("%d hints", len(items))))

	return err
}
