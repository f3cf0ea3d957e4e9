package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sessionkeeper/sessionkeeper/internal/bridge"
	"github.com/sessionkeeper/sessionkeeper/internal/config"
	"github.com/sessionkeeper/sessionkeeper/internal/logging"
	"github.com/sessionkeeper/sessionkeeper/internal/session"
	"github.com/sessionkeeper/sessionkeeper/internal/statedb"
)

// handleBridge runs the reconciliation engine against an editor plugin's
// event spool until SIGINT or SIGTERM.
func handleBridge(profile string, args []string) {
	fs := flag.NewFlagSet("bridge", flag.ExitOnError)
	spoolFlag := fs.String("spool", "", "spool directory override (default: <profile>/spool)")
	fs.Parse(args)

	teardown := setupLogging()
	defer teardown()

	// Stray stdlib log output (ours or a dependency's) flows into the
	// structured log instead of the terminal.
	log.SetFlags(0)
	log.SetOutput(logging.NewBridgeWriter(logging.CompBridge))

	bridgeLog := logging.ForComponent(logging.CompBridge)

	db := openSettingsDB(profile)
	if db != nil {
		defer db.Close()
	} else {
		fmt.Fprintln(os.Stderr, "Warning: settings database unavailable, sessions will not persist")
	}

	store := session.NewSessionStore(db)

	spoolDir := *spoolFlag
	if spoolDir == "" {
		dir, err := config.GetSpoolDir(profile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		spoolDir = dir
	} else {
		spoolDir = config.ExpandTilde(spoolDir)
	}

	exitTimeout, launchTimeout := config.GetTimingSettings()
	restore := config.GetRestoreSettings()

	editor := bridge.NewSpoolEditor(bridge.ActionsDir(spoolDir))
	keeper := session.NewKeeper(session.Config{
		ExitTimeout:      exitTimeout,
		LaunchTimeout:    launchTimeout,
		OpenRateLimit:    restore.OpenRateLimit,
		SuppressBlankTab: restore.GetSuppressBlankTab(),
	}, editor, store)

	maxAge := time.Duration(config.GetBridgeSettings().JanitorMaxAgeHours) * time.Hour
	br := bridge.New(spoolDir, editor, keeper, maxAge)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bridgeLog.Info("bridge_started",
		slog.String("profile", profile),
		slog.String("spool", spoolDir),
		slog.String("version", Version))

	err := br.Run(ctx)

	// Persist the committed sessions before the process goes away. Deferred
	// deletes younger than the exit timeout die here, which is what keeps a
	// full-quit session restorable.
	keeper.Shutdown()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openSettingsDB opens and migrates the profile's settings database, pulling
// in a legacy window-files.json when one is present. Returns nil when the
// database cannot be opened; callers degrade to memory-only operation.
func openSettingsDB(profile string) *statedb.SettingsDB {
	dbLog := logging.ForComponent(logging.CompDB)

	dbPath, err := config.GetSettingsDBPath(profile)
	if err != nil {
		dbLog.Error("settings_path_failed", slog.String("error", err.Error()))
		return nil
	}

	db, err := statedb.Open(dbPath)
	if err != nil {
		dbLog.Error("settings_open_failed",
			slog.String("path", dbPath),
			slog.String("error", err.Error()))
		return nil
	}
	if err := db.Migrate(); err != nil {
		dbLog.Error("settings_migrate_failed", slog.String("error", err.Error()))
		db.Close()
		return nil
	}

	legacyPath := filepath.Join(filepath.Dir(dbPath), statedb.LegacyStateFileName)
	if n, err := statedb.MigrateFromJSON(legacyPath, db, session.SessionKey); err != nil {
		dbLog.Warn("legacy_import_failed",
			slog.String("path", legacyPath),
			slog.String("error", err.Error()))
	} else if n > 0 {
		dbLog.Info("legacy_sessions_imported", slog.Int("windows", n))
	}

	return db
}
