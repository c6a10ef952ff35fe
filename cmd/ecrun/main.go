// Command ecrun runs an ec source file: lexer → parser → evaluator, then
// drives the event loop until idle exit or an explicit process.exit.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/oxhq/ecrun/internal/diagnostics"
	"github.com/oxhq/ecrun/internal/evaluator"
	"github.com/oxhq/ecrun/internal/eventloop"
	"github.com/oxhq/ecrun/internal/host"
	"github.com/oxhq/ecrun/internal/modcache"
	"github.com/oxhq/ecrun/internal/modules"
	"github.com/oxhq/ecrun/internal/parser"
)

var (
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
)

var (
	flagEval     string
	flagJSON     bool
	flagNoColor  bool
	flagCacheDSN string
	flagDebug    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ecrun [file]",
		Short: "Run an ec script",
		Long:  "ecrun executes ec source files (.ec, .js, .mjs) with module, timer, and observe support.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  run,

		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.Flags().StringVarP(&flagEval, "eval", "e", "", "evaluate a source string instead of a file")
	rootCmd.Flags().BoolVar(&flagJSON, "json-diagnostics", false, "emit diagnostics as JSON")
	rootCmd.Flags().BoolVar(&flagNoColor, "no-color", false, "disable colored diagnostics")
	rootCmd.Flags().StringVar(&flagCacheDSN, "cache-dsn", "", "module fetch cache DSN (sqlite file path or libsql URL)")
	rootCmd.Flags().BoolVar(&flagDebug, "debug", false, "log cache SQL and resolver activity")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if flagNoColor || !isatty.IsTerminal(os.Stderr.Fd()) {
		color.NoColor = true
	}
	if flagEval == "" && len(args) == 0 {
		return errors.New("a file argument or --eval string is required")
	}

	loop := eventloop.New()
	h := host.New(loop, os.Stdout, os.Stderr)
	h.Argv = append([]string{"ecrun"}, args...)

	resolver := modules.New(loop, h.Install)
	resolver.Builtins = h.Builtins()
	resolver.Fetch = modules.NewFetcher(openCache())
	if flagDebug {
		resolver.Log = diagnostics.NewLogger(os.Stderr, diagnostics.LogLevelDebug)
	}

	err := runSource(loop, h, resolver, args)
	switch {
	case err == nil:
		loop.Run()
	case errors.Is(err, evaluator.ErrHalt):
		// process.exit: skip the loop, go straight to exit events.
	default:
		reportError(err)
		h.ExitCode = 1
		h.ExitExplicit = true
	}

	h.FireExitEvents()
	os.Exit(h.ExitCode)
	return nil
}

func runSource(loop *eventloop.Loop, h *host.Host, resolver *modules.Resolver, args []string) error {
	if flagEval != "" {
		wd, _ := os.Getwd()
		name := filepath.Join(wd, "<eval>")
		prog, err := parser.Parse(name, flagEval)
		if err != nil {
			return err
		}
		ev := evaluator.New(loop, resolver, diagnostics.NewBuffer(name, flagEval))
		h.Install(ev)
		return ev.Run(prog)
	}
	return resolver.LoadEntry(args[0])
}

// openCache connects the persistent module fetch cache when a DSN is
// configured; URL imports still work without it, they just refetch.
func openCache() *modcache.Store {
	dsn := flagCacheDSN
	if dsn == "" {
		dsn = os.Getenv("ECRUN_CACHE_DSN")
	}
	if dsn == "" {
		return nil
	}
	store, err := modcache.Connect(dsn, flagDebug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s cache disabled: %v\n", yellow("warning:"), err)
		return nil
	}
	return store
}

func reportError(err error) {
	var diag *diagnostics.Diagnostic
	if !errors.As(err, &diag) {
		var thrown *evaluator.ThrownError
		if errors.As(err, &thrown) {
			diag = &diagnostics.Diagnostic{
				Kind: diagnostics.Code{Kind: diagnostics.Runtime, ID: "UNCAUGHT"},
				Msg:  thrown.Error(),
			}
		} else {
			diag = &diagnostics.Diagnostic{
				Kind: diagnostics.Code{Kind: diagnostics.Runtime, ID: "RUNTIME_ERROR"},
				Msg:  err.Error(),
			}
		}
	}
	if flagJSON {
		fmt.Fprintln(os.Stderr, diag.JSON())
		return
	}
	fmt.Fprintln(os.Stderr, red(diag.Error()))
}
