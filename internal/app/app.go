package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"

	"drivesync/internal/auth"
	"drivesync/internal/config"
	"drivesync/internal/database"
	"drivesync/internal/ds"
	"drivesync/internal/fs"
	"drivesync/internal/remote"
)

// DSApp is the application layer between the CLI and SyncService.
// It constructs all dependencies from config, records every cycle in the
// cycle ledger, and owns the index and log file until Close.
type DSApp struct {
	cfg     *config.Config
	index   *database.SQLiteIndex
	service *ds.SyncService
	logger  *slog.Logger
	opID    *opLabel
	logFile io.Closer
	clock   ds.Clock
	ids     ds.IDGenerator
	rootID  string
}

// Options adjusts how NewDSApp wires the app. The zero value is what the
// CLI uses.
type Options struct {
	// RootFolderID overrides the configured remote root folder.
	RootFolderID string
	// Console receives a copy of every log line. Defaults to stderr.
	Console io.Writer
	// Progress receives transfer progress. Defaults to a printer on stderr
	// when stderr is a terminal.
	Progress ds.ProgressFunc
	// Remote replaces the store built from config.
	Remote ds.RemoteStore
}

// NewDSApp creates a fully wired DSApp from the given config.
// The caller must call Close when done.
func NewDSApp(ctx context.Context, cfg *config.Config, opts Options) (*DSApp, error) {
	if opts.RootFolderID != "" {
		c := *cfg
		c.RootFolderID = opts.RootFolderID
		cfg = &c
	}
	if cfg.RootFolderID == "" {
		c := *cfg
		c.RootFolderID = config.DefaultRootFolderID
		cfg = &c
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	opID := newOpLabel(time.Now().UTC().Format("20060102T150405Z"))
	logger, logFile, err := newLogger(logOptions{
		Dir:        cfg.LogDir,
		Level:      cfg.LogLevel,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Console:    console,
	}, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	dsLogger := &slogAdapter{l: logger}

	index, err := database.NewIndexFromConfig(cfg.Database)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening index: %w", err)
	}
	if err := index.Migrate(); err != nil {
		index.Close()
		logFile.Close()
		return nil, fmt.Errorf("migrating index: %w", err)
	}
	if err := index.CheckMigrations(); err != nil {
		index.Close()
		logFile.Close()
		return nil, fmt.Errorf("index schema out of date: %w", err)
	}

	store := opts.Remote
	if store == nil {
		var ts oauth2.TokenSource
		if cfg.Remote.Type == "drive" {
			ts, err = driveTokenSource(ctx, cfg, dsLogger)
			if err != nil {
				index.Close()
				logFile.Close()
				return nil, err
			}
		}
		store, err = remote.NewStoreFromConfig(ctx, cfg, ts)
		if err != nil {
			index.Close()
			logFile.Close()
			return nil, fmt.Errorf("creating remote store: %w", err)
		}
	}

	progress := opts.Progress
	if progress == nil {
		progress = terminalProgress(os.Stderr)
	}

	fsmgr := fs.NewOSFilesystemManager(cfg.Filesystem.Ignore)
	clock := ds.RealClock{}
	svc := ds.NewSyncService(index, store, fsmgr, dsLogger, clock, ds.Options{
		LocalRoot:    cfg.LocalRoot,
		RootFolderID: cfg.RootFolderID,
		Workers:      cfg.Transfer.Workers,
		Transfer: ds.TransferOptions{
			ChunkSize:   int(cfg.Transfer.ChunkSize),
			MaxAttempts: cfg.Transfer.MaxAttempts,
			Progress:    progress,
		},
	})

	return &DSApp{
		cfg:     cfg,
		index:   index,
		service: svc,
		logger:  logger,
		opID:    opID,
		logFile: logFile,
		clock:   clock,
		ids:     ds.UUIDGenerator{},
		rootID:  cfg.RootFolderID,
	}, nil
}

// driveTokenSource loads the stored OAuth token. A missing or unreadable
// token is fatal: no cycle can succeed without it.
func driveTokenSource(ctx context.Context, cfg *config.Config, logger ds.Logger) (oauth2.TokenSource, error) {
	p, err := newAuthProvider(cfg, logger)
	if err != nil {
		return nil, ds.Fatal(err)
	}
	ts, err := p.TokenSource(ctx)
	if err != nil {
		return nil, ds.Fatal(fmt.Errorf("loading credentials: %w", err))
	}
	return ts, nil
}

func newAuthProvider(cfg *config.Config, logger ds.Logger) (*auth.Provider, error) {
	store := auth.NewTokenStore(cfg.Remote.TokenPath, cfg.Remote.TokenKeyPath)
	return auth.NewProvider(cfg.Remote.ClientSecretPath, store, logger)
}

// Login runs the interactive OAuth flow for the Drive remote and stores the
// resulting token where NewDSApp will look for it.
func Login(ctx context.Context, cfg *config.Config, out io.Writer, readCode func() (string, error)) error {
	if cfg.Remote.Type != "drive" {
		return fmt.Errorf("remote type %q does not use OAuth", cfg.Remote.Type)
	}
	p, err := newAuthProvider(cfg, ds.NewNopLogger())
	if err != nil {
		return err
	}
	return auth.Login(ctx, p, out, readCode)
}

// RootFolderID returns the remote folder this app syncs.
func (a *DSApp) RootFolderID() string {
	return a.rootID
}

// RunOnce runs one sync cycle and records it in the cycle ledger.
func (a *DSApp) RunOnce(ctx context.Context) (ds.CycleStats, error) {
	cycleID := a.ids.New()
	a.opID.Set(cycleID)

	cycle, err := a.index.CreateCycle(cycleID, a.rootID, a.clock.Now())
	if err != nil {
		return ds.CycleStats{}, ds.Fatal(fmt.Errorf("recording cycle start: %w", err))
	}

	stats, runErr := a.service.RunCycle(ctx)

	status := cycleStatus(stats, runErr)
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		a.logger.Error("sync cycle failed", "status", status, "error", runErr)
	}
	if err := a.index.FinishCycle(cycle.ID, status, stats, errMsg, a.clock.Now()); err != nil {
		a.logger.Warn("recording cycle result", "cycle_id", cycleID, "error", err)
	}
	return stats, runErr
}

// RunForever runs a cycle every interval until ctx is cancelled or a fatal
// error occurs. Non-fatal cycle failures are logged and the loop continues.
// Cancellation is a clean shutdown and returns nil.
func (a *DSApp) RunForever(ctx context.Context, interval time.Duration) error {
	for {
		_, err := a.RunOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && ds.IsFatal(err) {
			return err
		}

		a.logger.Info("next sync cycle scheduled", "in", interval.String())
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// History returns the most recent sync cycles, newest first.
func (a *DSApp) History(limit int) ([]*ds.SyncCycle, error) {
	return a.index.ListCycles(limit)
}

// FileLog returns the sync history of one local path, newest first.
// The path need not exist on disk.
func (a *DSApp) FileLog(rawPath string, limit int) ([]*ds.HistoryEntry, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	return a.index.ListHistoryForPath(absPath, limit)
}

// BackupIndex writes a consistent snapshot of the index to rawPath.
func (a *DSApp) BackupIndex(rawPath string) error {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	if _, err := os.Stat(absPath); err == nil {
		return fmt.Errorf("%s already exists", absPath)
	}
	if err := a.index.BackupTo(absPath); err != nil {
		return err
	}
	a.logger.Info("index backed up", "path", absPath)
	return nil
}

// Close closes the index and the log file.
func (a *DSApp) Close() error {
	var firstErr error

	if err := a.index.Close(); err != nil {
		firstErr = fmt.Errorf("closing index: %w", err)
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}

	return firstErr
}
