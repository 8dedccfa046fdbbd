// Command pohwd is the Proof of Human Work daemon: it owns the input
// capture thread, the analysis scheduler, and the IPC/telemetry servers
// that the Commit Gate and editor plugins talk to.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/iodevs-net/git-gov/internal/config"
	"github.com/iodevs-net/git-gov/internal/daemon"
	"github.com/iodevs-net/git-gov/internal/ledger"
	"github.com/iodevs-net/git-gov/internal/logging"
	"github.com/iodevs-net/git-gov/internal/security"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (default: platform config dir)")
		daemonize  = flag.Bool("daemonize", false, "detach and run in the background")
		ledgerPath = flag.String("ledger", "", "path to the sqlite manifest ledger (default: alongside the config)")
	)
	flag.Parse()

	if *daemonize && os.Getenv("POHWD_DETACHED") != "1" {
		if err := relaunchDetached(); err != nil {
			fmt.Fprintf(os.Stderr, "pohwd: daemonize: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configPath, *ledgerPath); err != nil {
		fmt.Fprintf(os.Stderr, "pohwd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, ledgerPath string) error {
	cfg, created, err := config.LoadOrCreate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = parseLevel(cfg.Logging.Level)
	logCfg.Format = parseFormat(cfg.Logging.Format)
	logCfg.Output = cfg.Logging.Output
	logCfg.FilePath = cfg.Logging.FilePath
	logCfg.Component = "pohwd"

	log, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer log.Close()
	logging.SetDefault(log)

	if created {
		log.Info("pohwd: wrote default config", "path", config.ConfigPath())
	}

	audit := logging.DefaultAuditLogger()
	defer audit.Close()
	_ = audit.LogStartup(context.Background(), buildVersion(), map[string]interface{}{"config_created": created})
	defer func() { _ = audit.LogShutdown(context.Background(), "normal exit") }()

	if err := security.SecureEnvironment(); err != nil {
		log.Warn("pohwd: secure environment setup failed", "error", err)
	}
	if err := security.DisableCoreDumps(); err != nil {
		log.Warn("pohwd: disable core dumps failed, a crash may write signing key material to disk", "error", err)
	}
	for _, w := range security.RunSecurityChecklist().Warnings() {
		log.Warn("pohwd: startup security check", "warning", w)
	}

	_, statErr := os.Stat(cfg.Identity.KeyPath)
	d, err := daemon.New(cfg, log)
	if err != nil {
		return fmt.Errorf("init daemon: %w", err)
	}
	audit.SetDeviceID(d.NodeID())
	d.SetAuditLogger(audit)
	if statErr != nil {
		_ = audit.LogKeyGenerated(context.Background(), "ed25519", cfg.Identity.KeyPath)
	} else {
		_ = audit.LogKeyAccess(context.Background(), cfg.Identity.KeyPath, "load", true)
	}

	if ledgerPath == "" {
		ledgerPath = defaultLedgerPath(cfg)
	}
	store, err := ledger.Open(ledgerPath)
	if err != nil {
		log.Warn("pohwd: open ledger failed, running without persistent history", "error", err)
	} else {
		defer store.Close()
		d.SetLedger(store)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return d.Run(ctx)
}

func defaultLedgerPath(cfg *config.Config) string {
	return config.PohwdDir() + "/ledger.db"
}

// buildVersion returns the module version embedded at build time, or
// "dev" for a locally built binary with no version stamp.
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" {
		return "dev"
	}
	return info.Main.Version
}

func parseLevel(level string) logging.Level {
	switch level {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func parseFormat(format string) logging.Format {
	if format == "json" {
		return logging.FormatJSON
	}
	return logging.FormatText
}
