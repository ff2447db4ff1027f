// Package cli implements the reactchat command line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Deirdris/react-chat/internal/config"
	"github.com/Deirdris/react-chat/internal/db"
	"github.com/Deirdris/react-chat/internal/logging"
	"github.com/Deirdris/react-chat/internal/roster"
)

// Execute runs the root command.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "reactchat",
		Short:         "Two-party messaging from the terminal",
		Long:          "reactchat is a two-party messaging client with live updates, read receipts, and message history.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	cmd.PersistentFlags().String("config", "", "Config file path")
	cmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("as", "", "Acting user ID (or set REACTCHAT_USER)")

	cmd.AddCommand(
		newSignInCmd(),
		newListCmd(),
		newSearchCmd(),
		newSendCmd(),
		newLogCmd(),
		newOpenCmd(),
	)

	return cmd
}

// runtime holds the wired-up application state behind a command.
type runtime struct {
	cfg      *config.Config
	database *db.DB
	store    *db.Store
	roster   *roster.Service
	viewer   string
}

func (r *runtime) Close() {
	if r.database != nil {
		r.database.Close()
	}
}

// newRuntime loads configuration, initializes logging, opens the database,
// and wires the services. The acting user comes from --as or REACTCHAT_USER.
func newRuntime(cmd *cobra.Command) (*runtime, error) {
	configFile, _ := cmd.Flags().GetString("config")
	loader := config.NewLoader()
	if configFile != "" {
		loader.SetConfigFile(configFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	logCfg := logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		EnableCaller: cfg.Logging.EnableCaller,
	}
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logCfg.Output = f
	}
	logging.Init(logCfg)

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.DatabasePath(), cfg.Database.BusyTimeoutMs)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	database.SetMaxOpenConns(cfg.Database.MaxConnections)
	if _, err := database.MigrateUp(cmd.Context()); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	store := db.NewStore(database,
		db.WithPollInterval(cfg.Chat.PollInterval),
		db.WithSubscribeBuffer(cfg.Chat.SubscribeBuffer),
	)

	viewer, _ := cmd.Flags().GetString("as")
	if viewer == "" {
		viewer = os.Getenv("REACTCHAT_USER")
	}

	return &runtime{
		cfg:      cfg,
		database: database,
		store:    store,
		roster:   roster.NewService(db.NewUserRepository(database), store.Conversations()),
		viewer:   strings.TrimSpace(viewer),
	}, nil
}

// requireViewer returns the acting user or an error when identity was not
// supplied. Every operation takes the acting user explicitly.
func (r *runtime) requireViewer() (string, error) {
	if r.viewer == "" {
		return "", fmt.Errorf("no acting user: pass --as <user-id> or set REACTCHAT_USER")
	}
	return r.viewer, nil
}

// withRuntime wraps a command run function with runtime setup and teardown.
func withRuntime(fn func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()
		ctx := cmd.Context()
		if rt.viewer != "" {
			ctx = logging.WithContext(ctx, logging.WithUser(rt.viewer))
		}
		return fn(ctx, rt, cmd, args)
	}
}
