package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgnsrekt/capturewatch/internal/api"
	"github.com/dgnsrekt/capturewatch/internal/browser"
	"github.com/dgnsrekt/capturewatch/internal/capture"
	"github.com/dgnsrekt/capturewatch/internal/cdp"
	"github.com/dgnsrekt/capturewatch/internal/config"
	"github.com/dgnsrekt/capturewatch/internal/journal"
	"github.com/dgnsrekt/capturewatch/internal/netutil"
	"github.com/dgnsrekt/capturewatch/internal/status"
	"github.com/dgnsrekt/capturewatch/internal/translators"
	"github.com/dgnsrekt/capturewatch/internal/watcher"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("capturewatch config loaded",
		"cdp_url", cfg.CDPURL(),
		"cdp_enabled", cfg.CDPEnabled,
		"launch_browser", cfg.LaunchBrowser,
		"bind_addr", cfg.BindAddr,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"tab_url_filter", cfg.TabURLFilter,
		"translators_path", cfg.TranslatorsPath,
		"detect_timeout_ms", cfg.DetectTimeoutMS,
		"eval_timeout_ms", cfg.EvalTimeoutMS,
		"max_concurrent_detections", cfg.MaxConcurrentDetects,
		"journal_dir", cfg.JournalDir,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	catalog, err := translators.LoadCatalog(cfg.TranslatorsPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Warn("translator catalog not found, every page will be generic", "path", cfg.TranslatorsPath)
		catalog = &translators.Catalog{}
	case err != nil:
		slog.Error("failed to load translator catalog", "path", cfg.TranslatorsPath, "error", err)
		os.Exit(1)
	}
	slog.Info("translator catalog loaded", "translators", catalog.Len())

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}
	bindAddr := ln.Addr().String()

	var launcher *browser.Launcher
	if cfg.CDPEnabled && cfg.LaunchBrowser {
		launcher = browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			BinaryPath: cfg.BrowserPath,
			ProfileDir: cfg.BrowserProfileDir,
			StartURL:   cfg.BrowserStartURL,
		})
		if err := launcher.Launch(context.Background()); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
	}

	reg := capture.NewRegistry()
	broker := status.NewBroker()
	reg.SetNotifier(status.NewPublisher(reg, broker))

	var cdpClient *cdp.Client
	var evaluator translators.Evaluator
	if cfg.CDPEnabled {
		cdpClient = cdp.NewClient(cfg, cdp.NewTabRegistry())
		evaluator = cdpClient
	}
	engine := translators.NewEngine(catalog, evaluator, cfg.EvalTimeout())

	decisions := journal.NewDecisions(journal.NewWriter(cfg.JournalDir, "decisions", cfg.JournalBuffer, cfg.JournalMaxSizeMB))

	domains := cfg.DomainBlocklist
	if domains == nil {
		domains = watcher.DefaultDomainBlocklist
	}
	locations := cfg.LocationBlocklist
	if locations == nil {
		locations = watcher.DefaultLocationBlocklist
	}
	svc := watcher.NewService(reg, engine, watcher.Options{
		Filter:              watcher.NewFilter(domains, locations),
		Recorder:            decisions,
		Catalog:             catalog,
		DetectTimeout:       cfg.DetectTimeout(),
		MaxConcurrentDetect: int64(cfg.MaxConcurrentDetects),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Handler: api.NewServer(svc, broker), ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })
	g.Go(func() error {
		slog.Info("capturewatch listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cdpClient != nil {
		g.Go(func() error {
			if err := cdpClient.Connect(gctx, svc); err != nil {
				// The HTTP bridge keeps working without a browser.
				slog.Error("failed to connect CDP notifier", "cdp_url", cfg.CDPURL(), "error", err)
			} else {
				slog.Info("cdp notifier ready", "tabs", cdpClient.TabCount())
			}
			<-gctx.Done()
			return cdpClient.Close()
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		broker.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()
	reg.Close()
	if launcher != nil {
		launcher.Stop()
	}
	if err := decisions.Close(); err != nil {
		slog.Warn("journal close failed", "error", err)
	}
	if runErr != nil {
		slog.Error("capturewatch stopped with error", "error", runErr)
		os.Exit(1)
	}
	slog.Info("capturewatch stopped")
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
