// CLAUDE:SUMMARY CLI entry point for feedcanon: one-shot resolve/equivalent, registry maintenance, HTTP daemon, MCP stdio server.
// Command feedcanon finds the canonical URL of web feeds.
//
// Usage:
//
//	feedcanon -resolve 'http://www.example.com/feed?utm_source=x'
//	feedcanon -equivalent 'http://example.com/rss,https://example.com/feed'
//	feedcanon -config feedcanon.yaml -serve          # HTTP API
//	feedcanon -db feedcanon.db -mcp                  # MCP over stdio
//	feedcanon -db feedcanon.db -merge                # fold duplicate feeds
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/feedcanon/keeper"
)

const version = "0.1.0"

type options struct {
	configPath   string
	dbPath       string
	addr         string
	resolveURL   string
	equivalent   string
	serve        bool
	mcpStdio     bool
	merge        bool
	allowPrivate bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to feedcanon.yaml config file")
	flag.StringVar(&o.dbPath, "db", "", "path to SQLite registry (overrides config)")
	flag.StringVar(&o.addr, "addr", "", "HTTP listen address (overrides config)")
	flag.StringVar(&o.resolveURL, "resolve", "", "resolve one feed URL and exit")
	flag.StringVar(&o.equivalent, "equivalent", "", "compare two feed URLs given as A,B and exit")
	flag.BoolVar(&o.serve, "serve", false, "run the HTTP API")
	flag.BoolVar(&o.mcpStdio, "mcp", false, "run an MCP server on stdio")
	flag.BoolVar(&o.merge, "merge", false, "merge registry feeds with equivalent canonical URLs and exit")
	flag.BoolVar(&o.allowPrivate, "allow-private", false, "allow fetching private and loopback addresses")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	// stdout belongs to the MCP transport and to one-shot results.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o); err != nil {
		logger.Error("feedcanon: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	cfg, err := resolveConfig(o)
	if err != nil {
		return err
	}

	s, err := keeper.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer s.Close()

	switch {
	case o.resolveURL != "":
		res, err := s.Resolve(ctx, o.resolveURL)
		if err != nil {
			return fmt.Errorf("resolve: %w", err)
		}
		return printJSON(res)

	case o.equivalent != "":
		a, b, ok := strings.Cut(o.equivalent, ",")
		if !ok {
			return errors.New("-equivalent expects two URLs separated by a comma")
		}
		eq, err := s.Equivalent(ctx, a, b)
		if err != nil {
			return fmt.Errorf("equivalent: %w", err)
		}
		return printJSON(eq)

	case o.merge:
		stats, err := s.MergeDuplicates(ctx)
		if err != nil {
			return fmt.Errorf("merge: %w", err)
		}
		return printJSON(stats)

	case o.mcpStdio:
		srv := mcp.NewServer(&mcp.Implementation{Name: "feedcanon", Version: version}, nil)
		s.RegisterMCP(srv)
		logger.Info("feedcanon: MCP stdio server running", "db", cfg.DBPath)
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp: %w", err)
		}
		return nil

	case o.serve:
		return serveHTTP(ctx, logger, cfg.Listen, s.Handler())
	}

	flag.Usage()
	return errors.New("nothing to do: pass -resolve, -equivalent, -merge, -serve or -mcp")
}

func serveHTTP(ctx context.Context, logger *slog.Logger, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("feedcanon: server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("feedcanon: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("feedcanon: shutdown", "error", err)
	}
	logger.Info("feedcanon: server stopped")
	return nil
}

func resolveConfig(o options) (*keeper.Config, error) {
	cfg := &keeper.Config{}
	if o.configPath != "" {
		var err error
		if cfg, err = keeper.LoadConfigFile(o.configPath); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	if o.addr != "" {
		cfg.Listen = o.addr
	}
	if o.allowPrivate {
		cfg.Fetch.AllowPrivate = true
	}
	return cfg, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
