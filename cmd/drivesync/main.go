package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"drivesync/internal/app"
	"drivesync/internal/auth"
	"drivesync/internal/config"
	"drivesync/internal/ds"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// readConfig reads the config file named by the defaults.
func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a DSApp. The caller must defer app.Close().
// rootFolderID overrides the configured remote root when non-empty.
func newApp(ctx context.Context, rootFolderID string) (*app.DSApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewDSApp(ctx, cfg, app.Options{RootFolderID: rootFolderID})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func rootArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

var rootCmd = &cobra.Command{
	Use:          "drivesync",
	Short:        "Two-way sync between a local directory and Google Drive",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		localRoot, _ := cmd.Flags().GetString("local-root")
		remoteType, _ := cmd.Flags().GetString("remote")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults.BaseDir)
		if localRoot != "" {
			abs, err := filepath.Abs(localRoot)
			if err != nil {
				return fmt.Errorf("resolving local root: %w", err)
			}
			cfg.LocalRoot = abs
		}
		if remoteType != "drive" {
			cfg.Remote = config.RemoteConfig{Type: remoteType}
		}

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir:   %s\n", defaults.BaseDir)
		fmt.Printf("Log Dir:    %s\n", defaults.LogDir())
		if cfg.LocalRoot == "" {
			fmt.Println("Set local_root in the config file before syncing.")
		}
		if cfg.Remote.Type == "drive" {
			fmt.Printf("Place your OAuth client secret at %s, then run 'drivesync auth login'.\n", cfg.Remote.ClientSecretPath)
		}
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Local Root:     %s\n", cfg.LocalRoot)
		fmt.Printf("Root Folder ID: %s\n", cfg.RootFolderID)
		fmt.Printf("Interval:       %s\n", cfg.Interval)
		fmt.Printf("Remote:         %s\n", cfg.Remote.Type)
		fmt.Printf("Database:       %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Workers:        %d\n", cfg.Transfer.Workers)
		fmt.Printf("Log Dir:        %s\n", cfg.LogDir)
		if err := cfg.Validate(); err != nil {
			fmt.Printf("\nProblems:\n%v\n", err)
		}
		return nil
	},
}

// auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Google Drive credentials",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize drivesync to access Google Drive",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		readCode := auth.LineReader(os.Stdin)
		if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
			readCode = func() (string, error) {
				b, err := term.ReadPassword(fd)
				fmt.Println()
				return string(b), err
			}
		}

		if err := app.Login(cmd.Context(), cfg, os.Stdout, readCode); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		fmt.Printf("Token saved to %s\n", cfg.Remote.TokenPath)
		return nil
	},
}

func printStats(stats ds.CycleStats) {
	fmt.Printf("Downloaded %d, uploaded %d, created %d local and %d remote folder(s), %d unchanged, %d failed\n",
		stats.Downloaded, stats.Uploaded, stats.LocalFoldersCreated, stats.RemoteFoldersCreated, stats.Unchanged, stats.Failed)
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync [ROOT_FOLDER_ID]",
	Short: "Run one sync cycle",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), rootArg(args))
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.RunOnce(cmd.Context())
		printStats(stats)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		return nil
	},
}

// run command
var runCmd = &cobra.Command{
	Use:   "run [ROOT_FOLDER_ID]",
	Short: "Sync forever, one cycle every interval",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		interval, err := cfg.SyncInterval()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("interval") {
			interval, _ = cmd.Flags().GetDuration("interval")
			if interval <= 0 {
				return errors.New("--interval must be positive")
			}
		}

		a, err := app.NewDSApp(cmd.Context(), cfg, app.Options{RootFolderID: rootArg(args)})
		if err != nil {
			return fmt.Errorf("initializing app: %w", err)
		}
		defer a.Close()

		fmt.Printf("Syncing %s with %s every %s\n", cfg.LocalRoot, a.RootFolderID(), interval)
		return a.RunForever(cmd.Context(), interval)
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sync cycle history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "")
		if err != nil {
			return err
		}
		defer a.Close()

		cycles, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(cycles) == 0 {
			fmt.Println("No sync cycles recorded.")
			return nil
		}

		for _, c := range cycles {
			duration := ""
			if c.FinishedAt.Valid {
				d := c.FinishedAt.Time.Sub(c.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %s  %-9s  down:%d up:%d failed:%d  %s\n",
				c.ID,
				c.StartedAt.Local().Format("2006-01-02 15:04:05"),
				c.Status,
				c.Stats.Downloaded,
				c.Stats.Uploaded,
				c.Stats.Failed,
				duration,
			)
			if c.Error != "" {
				fmt.Printf("     %s\n", c.Error)
			}
		}
		return nil
	},
}

// log command
var logCmd = &cobra.Command{
	Use:   "log PATH",
	Short: "View sync history of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.FileLog(args[0], limit)
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No sync history.")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%s  %-20s  %-7s  %s",
				e.SyncedAt.Local().Format("2006-01-02 15:04:05"),
				e.Action,
				e.Status,
				e.RemoteID,
			)
			if e.ErrorMessage != "" {
				fmt.Printf("  %s", e.ErrorMessage)
			}
			fmt.Println()
		}
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the metadata index",
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup PATH",
	Short: "Write a snapshot of the index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.BackupIndex(args[0]); err != nil {
			return err
		}
		fmt.Printf("Index written to %s\n", args[0])
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("local-root", "", "Local directory to keep in sync")
	configInitCmd.Flags().String("remote", "drive", "Remote store type (drive, s3, memory)")

	authCmd.AddCommand(authLoginCmd)
	dbCmd.AddCommand(dbBackupCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Duration("interval", 30*time.Minute, "Time between sync cycles (overrides the config)")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of cycles to show")
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().IntP("limit", "n", 50, "Maximum number of entries to show")
	rootCmd.AddCommand(dbCmd)
}
