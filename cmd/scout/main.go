// Package main runs the Scout MCP server: AI-mode web search over stdio,
// backed by a pool of real browser sessions.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/entrhq/scout/pkg/config"
	"github.com/entrhq/scout/pkg/gateway"
	"github.com/entrhq/scout/pkg/logging"
	"github.com/entrhq/scout/pkg/search"
)

const version = "0.1.0"

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file (default ~/.scout/config.json)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("Scout v%s\n", version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "scout: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, closeLog, err := logging.Setup(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer closeLog()

	log.Info().Str("version", version).Msg("starting scout")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgrOpts := search.ManagerOptions{
		Headless:          cfg.Headless,
		BrowserPath:       cfg.BrowserPath,
		NavigationTimeout: cfg.NavigationTimeout(),
		ProfileBaseDir:    cfg.ProfileBaseDir,
		DefaultLanguage:   cfg.DefaultLanguage,
	}
	if mgrOpts.ProfileBaseDir == "" {
		mgrOpts.ProfileBaseDir = search.DefaultManagerOptions().ProfileBaseDir
	}

	poolOpts := search.PoolOptions{
		MaxSessions:           cfg.MaxSessions,
		IdleTimeout:           cfg.SessionIdleTimeout(),
		MaxSearchesPerSession: cfg.MaxSearchesPerSession,
		SweepInterval:         search.DefaultPoolOptions().SweepInterval,
	}

	pool := search.NewSessionPool(poolOpts, mgrOpts, search.DefaultPatterns(), log)
	go pool.Run(ctx)
	defer pool.CloseAll()

	gw := gateway.New(pool, gateway.Options{
		RequestTimeout: cfg.RequestTimeout(),
		CooldownWindow: cfg.Cooldown(),
	}, log)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "scout",
		Version: version,
	}, nil)
	gw.Register(server)

	log.Info().Msg("serving MCP over stdio")
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server stopped: %w", err)
	}

	log.Info().Msg("shutting down")
	return nil
}
