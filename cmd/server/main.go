// File manager server
//
// Features:
// - Named disks over local, S3, SMB and in-memory storage
// - Folder listing with sort, filters and feature flags
// - Uploads with validation rules and pluggable naming strategies
// - Subtree rename/move with copy-verify-delete semantics
// - SSE domain events, optional PostgreSQL audit log
// - Background jobs per extension group (webhook handler)
// - Prometheus metrics & structured logging (zap)
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/fruitsalade/filemanager/internal/api"
	"github.com/fruitsalade/filemanager/internal/config"
	"github.com/fruitsalade/filemanager/internal/events"
	"github.com/fruitsalade/filemanager/internal/filemanager"
	"github.com/fruitsalade/filemanager/internal/jobs"
	"github.com/fruitsalade/filemanager/internal/logging"
	"github.com/fruitsalade/filemanager/internal/metrics"
	"github.com/fruitsalade/filemanager/internal/ratelimit"
	"github.com/fruitsalade/filemanager/internal/storage"
	"github.com/fruitsalade/filemanager/internal/storage/factory"
)

const shutdownTimeout = 15 * time.Second

var (
	v          = viper.New()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "filemanager",
	Short: "File manager server over named storage disks",
	Long: `filemanager serves a file manager HTTP API over one or more named
disks (local, S3, SMB or memory). Configuration is read from flags,
FILEMANAGER_* environment variables and an optional config file.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate the configuration and print the resolved disks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, name := range cfg.DiskNames() {
			marker := ""
			if name == cfg.DefaultDisk {
				marker = " (default)"
			}
			fmt.Fprintf(out, "%s\t%s%s\n", name, cfg.Disks[name].Type, marker)
		}
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "config file (yaml, json or toml)")
	flags.String("listen-addr", ":8080", "HTTP listen address")
	flags.String("metrics-addr", ":9090", "Prometheus metrics listen address")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, console)")
	flags.String("database-url", "", "PostgreSQL URL for the event audit log")
	flags.String("default-disk", "", "name of the default disk")

	for key, flag := range map[string]string{
		"listen_addr":  "listen-addr",
		"metrics_addr": "metrics-addr",
		"log_level":    "log-level",
		"log_format":   "log-format",
		"database_url": "database-url",
		"default_disk": "default-disk",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(serveCmd, configCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(v, configFile)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		return fmt.Errorf("logging init error: %w", err)
	}
	defer logging.Sync()

	logging.Info("file manager starting",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.Strings("disks", cfg.DiskNames()))

	// Disks
	defs, err := cfg.DiskDefinitions()
	if err != nil {
		return err
	}
	disks := storage.NewDisks(cfg.DefaultDisk)
	if err := factory.Load(ctx, disks, defs); err != nil {
		return fmt.Errorf("storage init failed: %w", err)
	}
	defer disks.Close()

	// Events: SSE broadcaster plus optional audit log
	broadcaster := events.NewBroadcaster()
	sinks := []events.Sink{broadcaster}
	var recent api.RecentEvents
	if cfg.DatabaseURL != "" {
		audit, err := events.OpenAuditLog(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("audit log init failed: %w", err)
		}
		defer audit.Close()
		sinks = append(sinks, audit)
		recent = audit
		logging.Info("event audit log enabled")
	}

	// Jobs
	dispatcher := jobs.NewDispatcher(jobs.Config{
		Jobs:    cfg.Jobs,
		Groups:  cfg.JobExtensions,
		Queue:   cfg.Queue,
		Workers: cfg.JobWorkers,
	})
	if cfg.WebhookURL != "" {
		dispatcher.Register(jobs.WebhookJob, jobs.NewWebhook(cfg.WebhookURL))
	}
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	manager, err := filemanager.New(disks, filemanager.Config{
		DefaultSort:       filemanager.SortOrder(cfg.DefaultSort),
		DefaultFilter:     cfg.DefaultFilter,
		DefaultVisibility: storage.ParseVisibility(cfg.DefaultVisibility),
		Buttons:           cfg.Buttons,
		Filters:           cfg.Filters,
		Rules:             uploadRules(cfg),
		NamingStrategy:    cfg.NamingStrategy,
	},
		filemanager.WithEvents(events.Multi(sinks...)),
		filemanager.WithDispatcher(dispatcher),
	)
	if err != nil {
		return fmt.Errorf("file manager init failed: %w", err)
	}

	limiter := ratelimit.New(cfg.RateLimitRPM)
	if limiter.Enabled() {
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n := limiter.Cleanup(time.Hour); n > 0 {
						logging.Debug("rate limiter buckets dropped", zap.Int("count", n))
					}
				}
			}
		}()
	}

	srv := api.NewServer(manager, broadcaster, recent, cfg.MaxUploadSize, api.WithRateLimiter(limiter))

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Request contexts end with ctx so SSE streams close on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// shutdownDone closes once in-flight handlers have returned, so the
	// deferred dispatcher and disk teardown never races a late upload.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		logging.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Warn("graceful shutdown timed out", zap.Error(err))
			httpServer.Close()
		}
		metricsServer.Close()
	}()

	logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	<-shutdownDone
	return nil
}

// uploadRules turns the validation settings into rules applied to every upload.
func uploadRules(cfg *config.Config) []filemanager.Rule {
	var rules []filemanager.Rule
	if cfg.MaxUploadSize > 0 {
		rules = append(rules, filemanager.MaxSize(cfg.MaxUploadSize))
	}
	if cfg.Validation.MaxSize > 0 {
		rules = append(rules, filemanager.MaxSize(cfg.Validation.MaxSize))
	}
	if len(cfg.Validation.AllowedExtensions) > 0 {
		rules = append(rules, filemanager.AllowedExtensions(cfg.Validation.AllowedExtensions...))
	}
	if len(cfg.Validation.DeniedExtensions) > 0 {
		rules = append(rules, filemanager.DeniedExtensions(cfg.Validation.DeniedExtensions...))
	}
	return rules
}
