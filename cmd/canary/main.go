// Command canary keeps the pages of a running Open WebUI instance branded
// as Canary Builds inside a real Chrome.
//
// Usage:
//
//	canary -url https://chat.example.com/           # single page, stdout reports
//	canary -config canary.yaml                      # pages, sinks and brand from YAML
//	canary -config canary.yaml -db canary.db        # plus hot-reloaded SQLite page registry
//	canary -url https://chat.example.com/ -remote ws://127.0.0.1:9222/devtools/browser/...
//	canary -config canary.yaml -admin 127.0.0.1:8099 -mcp  # admin API plus MCP tools at /mcp
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/canary/brand"
	"github.com/hazyhaar/canary/dom/cdpdom"
	"github.com/hazyhaar/canary/internal/config"
	"github.com/hazyhaar/canary/internal/dbopen"
	"github.com/hazyhaar/canary/live"
	"github.com/hazyhaar/canary/report"
)

type flags struct {
	config   string
	url      string
	db       string
	remote   string
	admin    string
	mcp      bool
	logLevel string
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "", "path to canary.yaml config file")
	flag.StringVar(&f.url, "url", "", "brand a single URL")
	flag.StringVar(&f.db, "db", "", "SQLite page registry (overrides registry.path)")
	flag.StringVar(&f.remote, "remote", "", "WebSocket URL of an existing Chrome (overrides browser.remote)")
	flag.StringVar(&f.admin, "admin", "", "admin API listen address (overrides admin.listen)")
	flag.BoolVar(&f.mcp, "mcp", false, "serve MCP tools at /mcp on the admin listener")
	flag.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch f.logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if f.config == "" && f.url == "" && f.db == "" {
		fmt.Fprintln(os.Stderr, "usage: canary -config <file> | -url <url> | -db <registry>")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, f); err != nil {
		logger.Error("canary: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, f flags) error {
	cfg := config.Default()
	if f.config != "" {
		var err error
		if cfg, err = config.LoadFile(f.config); err != nil {
			return err
		}
	}
	if f.url != "" {
		cfg.Pages = append(cfg.Pages, config.PageConfig{ID: config.PageID(f.url), URL: f.url})
	}
	if f.db != "" {
		cfg.Registry.Path = f.db
	}
	if f.remote != "" {
		cfg.Browser.Remote = f.remote
	}
	if f.admin != "" {
		cfg.Admin.Listen = f.admin
	}
	if f.mcp {
		cfg.Admin.MCP = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	b, err := brand.New(cfg.Brand)
	if err != nil {
		return fmt.Errorf("brand: %w", err)
	}
	mode, err := live.ParseBrowserMode(cfg.Browser.Mode)
	if err != nil {
		return err
	}

	dbs := make(map[string]*sql.DB)
	defer func() {
		for _, db := range dbs {
			db.Close()
		}
	}()
	openDB := func(path string) (*sql.DB, error) {
		if db, ok := dbs[path]; ok {
			return db, nil
		}
		db, err := dbopen.Open(path, dbopen.WithMkdirAll(),
			dbopen.WithSchema(config.Schema), dbopen.WithSchema(report.Schema))
		if err != nil {
			return nil, err
		}
		dbs[path] = db
		return db, nil
	}

	sinks, store, err := buildSinks(cfg, logger, openDB)
	if err != nil {
		return err
	}
	sink := report.NewRouter(logger, sinks...)
	defer sink.Close()

	m := live.New(live.Config{
		Browser: live.BrowserConfig{
			RemoteURL:       cfg.Browser.Remote,
			Mode:            mode,
			Stealth:         !cfg.Browser.NoStealth,
			MemoryLimit:     cfg.Browser.MemoryLimit,
			RecycleInterval: cfg.Browser.RecycleInterval,
			Block:           cfg.Browser.Block,
			XvfbDisplay:     cfg.Browser.XvfbDisplay,
		},
		Brand: b,
		Debounce: cdpdom.DebounceConfig{
			Window:    cfg.Debounce.Window,
			MaxBuffer: cfg.Debounce.MaxBuffer,
		},
		Sink:   sink,
		Logger: logger,
	})
	if err := m.Start(ctx); err != nil {
		return err
	}
	defer m.Stop()

	static := toPages(cfg.Pages)
	if cfg.Registry.Path != "" {
		db, err := openDB(cfg.Registry.Path)
		if err != nil {
			return err
		}
		// Registry pages are added to the static ones; the registry wins on
		// a shared ID.
		go config.WatchPages(ctx, db, cfg.Registry.Poll, logger, func(pages []config.PageConfig) error {
			return m.Sync(ctx, merge(static, toPages(pages)))
		})
	} else if err := m.Sync(ctx, static); err != nil {
		logger.Warn("canary: some pages failed to open", "error", err)
	}

	if cfg.Admin.Listen != "" {
		var opts []live.AdminOption
		opts = append(opts, live.WithAdminLogger(logger))
		if store != nil {
			opts = append(opts, live.WithHistory(store))
		}
		if cfg.Admin.MCP {
			mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "canary", Version: "1.0.0"}, nil)
			m.RegisterMCP(mcpSrv)
			opts = append(opts, live.WithMCP(mcpSrv))
			logger.Info("canary: MCP tools enabled", "path", "/mcp")
		}
		srv := &http.Server{
			Addr:              cfg.Admin.Listen,
			Handler:           live.Admin(m, opts...),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("canary: admin listening", "addr", cfg.Admin.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("canary: admin server", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("canary: running", "source", b.Source(), "target", b.Target(), "logo", b.LogoPath())
	<-ctx.Done()
	logger.Info("canary: shutting down")
	return nil
}

func buildSinks(cfg *config.Config, logger *slog.Logger, openDB func(string) (*sql.DB, error)) ([]report.Sink, *report.Store, error) {
	var sinks []report.Sink
	var store *report.Store
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, report.NewStdout(nil))
		case "webhook":
			sinks = append(sinks, report.NewAsync(report.NewWebhook(sc.URL, report.WithWebhookLogger(logger)), 0, logger))
		case "sqlite":
			path := sc.Path
			if path == "" {
				path = cfg.Registry.Path
			}
			if path == "" {
				path = "canary.db"
			}
			db, err := openDB(path)
			if err != nil {
				return nil, nil, err
			}
			store = report.NewStore(db)
			sinks = append(sinks, store)
		}
	}
	return sinks, store, nil
}

func toPages(in []config.PageConfig) []live.Page {
	out := make([]live.Page, 0, len(in))
	for _, p := range in {
		out = append(out, live.Page{ID: p.ID, URL: p.URL})
	}
	return out
}

func merge(static, registry []live.Page) []live.Page {
	seen := make(map[string]bool, len(registry))
	out := make([]live.Page, 0, len(static)+len(registry))
	for _, p := range registry {
		seen[p.ID] = true
		out = append(out, p)
	}
	for _, p := range static {
		if !seen[p.ID] {
			out = append(out, p)
		}
	}
	return out
}
