// Command tickerdesk runs the conversational stock agent service.
//
// Usage:
//
//	tickerdesk serve --config config.yaml
//	tickerdesk serve --dev
//	tickerdesk index --force
//	tickerdesk quote AMZN
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"
	"golang.org/x/term"

	"github.com/tickerdesk/tickerdesk/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve   ServeCmd   `cmd:"" help:"Start the HTTP service."`
	Index   IndexCmd   `cmd:"" help:"Build or rebuild the document index."`
	Search  SearchCmd  `cmd:"" help:"Query the document index once and exit."`
	Quote   QuoteCmd   `cmd:"" help:"Fetch a stock quote once and exit."`
	Schema  SchemaCmd  `cmd:"" help:"Generate the config JSON schema."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("tickerdesk %s\n", version)
	return nil
}

// loadConfig loads the config file, or builds the zero-config default
// when no path is given.
func loadConfig(ctx context.Context, path string) (*config.Config, *config.Loader, error) {
	if path == "" {
		slog.Info("No config file, using defaults")
		return config.New(), nil, nil
	}

	cfg, loader, err := config.LoadFile(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	slog.Info("Loaded configuration", "path", path)
	return cfg, loader, nil
}

// printBanner prints the startup banner when stdout is a terminal.
func printBanner() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return
	}

	greenColor := "\033[38;2;16;185;129m"
	resetColor := "\033[0m"

	banner := `
▀█▀ █ █▀▀ █▄▀ █▀▀ █▀█ █▀▄ █▀▀ █▀ █▄▀
 █  █ █▄▄ █ █ ██▄ █▀▄ █▄▀ ██▄ ▄█ █ █
`
	fmt.Printf("%s%s%s\n", greenColor, banner, resetColor)
}

// shouldSkipBanner reports whether the invoked command is informational
// and its output may be piped, so the banner must stay out of it.
func shouldSkipBanner(args []string) bool {
	for _, arg := range args[1:] {
		switch arg {
		case "search", "quote", "schema", "version":
			return true
		}
	}
	return false
}

func main() {
	if !shouldSkipBanner(os.Args) {
		printBanner()
	}

	_ = config.LoadDotEnv()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("tickerdesk"),
		kong.Description("tickerdesk - conversational stock price agent"),
		kong.UsageOnError(),
	)

	cleanup, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
