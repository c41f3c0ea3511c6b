package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/HendryAvila/statevault/internal/config"
	"github.com/HendryAvila/statevault/internal/logging"
	svserver "github.com/HendryAvila/statevault/internal/server"
	"github.com/HendryAvila/statevault/internal/storage"
)

// globalFlags are the persistent flags shared by every subcommand. Empty
// values leave the config file and environment untouched.
type globalFlags struct {
	configPath string
	backend    string
	dataDir    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "statevault",
		Short:         "Versioned persisted-state store with schema migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default ~/.statevault/config.toml)")
	root.PersistentFlags().StringVar(&flags.backend, "backend", "", "backing store: "+strings.Join(storage.Backends, ", "))
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "directory for durable stores")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newServeCmd(flags),
		newMigrateCmd(flags),
		newDumpCmd(flags),
		newConfigCmd(flags),
		newVersionCmd(),
	)
	return root
}

// loadConfig resolves file, environment and flags, in that order.
func (f *globalFlags) loadConfig() (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	f.overrides(&cfg)
	return cfg, cfg.Validate()
}

// overrides applies the flags set on the command line to cfg.
func (f *globalFlags) overrides(cfg *config.Config) {
	if f.backend != "" {
		cfg.Backend = f.backend
	}
	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
}

// setup loads config and builds the logger. The close func is never nil.
func (f *globalFlags) setup() (config.Config, *slog.Logger, func(), error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return cfg, nil, func() {}, err
	}
	logger, closeLog, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		return cfg, nil, func() {}, err
	}
	return cfg, logger, func() { _ = closeLog() }, nil
}

// --- serve ---

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server (stdio transport)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closeLog, err := flags.setup()
			defer closeLog()
			if err != nil {
				return err
			}

			// Graceful shutdown on interrupt.
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			s, app, cleanup, err := svserver.New(ctx, cfg, logger)
			defer cleanup()
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}

			go func() {
				if err := svserver.ServeMetrics(ctx, app); err != nil {
					logger.Error("metrics server stopped", "error", err)
				}
			}()

			logger.Info("statevault serving", "backend", cfg.Backend, "version", app.Vault.State().Version())
			return server.ServeStdio(s)
		},
	}
}

// --- migrate ---

func newMigrateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Load persisted state, apply pending migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closeLog, err := flags.setup()
			defer closeLog()
			if err != nil {
				return err
			}

			app, cleanup, err := svserver.Build(cmd.Context(), cfg, logger)
			defer cleanup()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			res := app.Boot
			switch {
			case res.FreshInstall:
				fmt.Fprintf(out, "No persisted state. Initialized at version %d.\n", res.Envelope.Version())
			case len(res.Applied) == 0:
				fmt.Fprintf(out, "Already at version %d.\n", res.Envelope.Version())
			default:
				fmt.Fprintf(out, "Migrated %d -> %d (applied %v).\n", res.FromVersion, res.Envelope.Version(), res.Applied)
			}
			if n := app.Recorder.Count(); n > 0 {
				fmt.Fprintf(out, "%d diagnostic(s) captured:\n", n)
				for _, err := range app.Recorder.Errors() {
					fmt.Fprintf(out, "  - %v\n", err)
				}
			}
			if app.Vault.Manager().DataPersistenceFailing() {
				return fmt.Errorf("migrated state could not be persisted")
			}
			return nil
		},
	}
}

// --- dump ---

func newDumpCmd(flags *globalFlags) *cobra.Command {
	var controller string

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the persisted envelope as JSON without migrating it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closeLog, err := flags.setup()
			defer closeLog()
			if err != nil {
				return err
			}

			opts := cfg.StorageOptions()
			opts.Logger = logger
			store, closeStore, err := storage.Open(opts)
			defer func() { _ = closeStore() }()
			if err != nil {
				return err
			}

			env, err := store.Get(cmd.Context())
			if err != nil {
				return fmt.Errorf("reading state: %w", err)
			}
			if env == nil {
				return fmt.Errorf("no persisted state in %s backend", cfg.Backend)
			}

			var v any = env
			if controller != "" {
				value, ok := env.Data[controller]
				if !ok {
					return fmt.Errorf("controller %q not found", controller)
				}
				v = value
			}
			return writeJSON(cmd, v)
		},
	}
	cmd.Flags().StringVar(&controller, "controller", "", "print only this controller's state")
	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- config ---

func newConfigCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the statevault config file",
	}
	cmd.AddCommand(newConfigInitCmd(flags))
	return cmd
}

func newConfigInitCmd(flags *globalFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the defaults and any flags given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := flags.configPath
			if path == "" {
				path = config.DefaultPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			cfg := config.DefaultConfig()
			flags.overrides(&cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

// --- version ---

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "statevault v%s\n", svserver.Version)
		},
	}
}
