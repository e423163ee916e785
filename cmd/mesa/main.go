package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hpungsan/mesa/internal/capsule"
	"github.com/hpungsan/mesa/internal/config"
	"github.com/hpungsan/mesa/internal/db"
	"github.com/hpungsan/mesa/internal/logging"
	"github.com/hpungsan/mesa/internal/mcp"
	"github.com/hpungsan/mesa/internal/ops"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"capsules": true, "challenge": true,
	"start": true, "show": true, "advance": true, "phase": true, "attempt": true,
	"join": true, "vote": true, "complete": true,
	"wallet": true, "wallets": true, "redeem": true, "stats": true, "purge": true,
	"export": true, "import": true,
	"serve": true,
	"help":  true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   __  __  ___  ___   _
  |  \/  || __|/ __| /_\
  | |\/| || _| \__ \/ _ \
  |_|  |_||___||___/_/ \_\

  Party challenges, tables and reward wallets

  Usage: mesa <command> [options]
         mesa serve
         mesa --help

  MCP server mode requires piped input.`)
}

// setup loads config and catalog, opens the database and builds the Env.
// The returned cleanup closes the database and flushes the logger.
func setup(baseDir string, opts ...ops.Option) (*ops.Env, func(), error) {
	cfg, err := config.Load(baseDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	cat, err := capsule.Load(cfg.CatalogPath)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	database, err := db.Init(baseDir)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db.ConfigurePool(database, cfg)

	env, err := ops.NewEnv(database, cfg, cat, baseDir, append([]ops.Option{ops.WithLogger(logger)}, opts...)...)
	if err != nil {
		database.Close()
		_ = logger.Sync()
		return nil, nil, err
	}

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger.Warn("unknown tools in disabled_tools", zap.Strings("tools", unknown))
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		logger.Warn("unknown types in disabled_types", zap.Strings("types", unknown))
	}

	cleanup := func() {
		database.Close()
		_ = logger.Sync()
	}
	return env, cleanup, nil
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil, "")
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}
	baseDir := filepath.Join(homeDir, ".mesa")

	// serve builds its own Env with countdown timers armed
	if isCLIMode() {
		var env *ops.Env
		if os.Args[1] != "serve" {
			var cleanup func()
			env, cleanup, err = setup(baseDir)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			defer cleanup()
		}

		app := newCLIApp(env, baseDir)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'mesa --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default). Stdio sessions are long-lived, so arm timers.
	env, cleanup, err := setup(baseDir, ops.WithCountdowns())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if _, err := env.ResumeCountdowns(context.Background()); err != nil {
		env.Logger.Warn("failed to resume recording countdowns", zap.Error(err))
	}

	if err := mcp.Run(env, Version); err != nil {
		env.Logger.Error("mcp server stopped", zap.Error(err))
		cleanup()
		os.Exit(1)
	}
}
