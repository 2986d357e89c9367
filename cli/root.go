// Package cli wires configuration, the generator and the loader into the
// shopload command.
package cli

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"shopload/blob"
	"shopload/config"
	"shopload/loaderr"
)

// app carries what every subcommand needs once the root has loaded config.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
}

// NewRootCmd builds the command tree. Each call gets its own viper instance.
func NewRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	rootCmd := &cobra.Command{
		Use:   "shopload",
		Short: "Generate synthetic e-commerce CSV files and bulk load them into a database",
		Long: `shopload writes the users, admins, categories, products, orders, order items
and cart files of a synthetic shop, then loads them in batches with the
table triggers suspended for the duration of the load.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.init,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is ./shopload.yaml)")
	pf.String("dialect", "", "database dialect: sqlserver, oracle, postgres, mysql or sqlite")
	pf.String("dsn", "", "database connection string (overrides database.dsn_env)")
	pf.String("data-dir", "", "directory of the CSV files, or s3://bucket/prefix")
	pf.String("compression", "", "CSV compression: gz, zst or lz4")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.String("log-format", "", "text or json")
	a.bind(rootCmd, true, map[string]string{
		"dialect":     "database.dialect",
		"dsn":         "database.dsn",
		"data-dir":    "data_dir",
		"compression": "compression",
		"log-level":   "log.level",
		"log-format":  "log.format",
	})

	rootCmd.AddCommand(
		newGenerateCmd(a),
		newLoadCmd(a),
		newCountCmd(a),
		newConfigCmd(a),
	)
	return rootCmd
}

// bind maps flag names to config keys. A flag overrides the file and the
// environment only when it is set on the command line.
func (a *app) bind(cmd *cobra.Command, persistent bool, flagToKey map[string]string) {
	flags := cmd.Flags()
	if persistent {
		flags = cmd.PersistentFlags()
	}
	for name, key := range flagToKey {
		if err := a.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func (a *app) init(cmd *cobra.Command, args []string) error {
	if err := config.ReadFile(a.v, a.cfgFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cfg.Logger(cmd.ErrOrStderr())
	slog.SetDefault(a.logger)
	return nil
}

func (a *app) store() (blob.Store, error) {
	return blob.Open(a.cfg.DataDir, blob.ObjectStoreConfig{
		Endpoint:  a.cfg.Storage.Endpoint,
		AccessKey: a.cfg.Storage.AccessKey,
		SecretKey: a.cfg.Storage.SecretKey,
		Region:    a.cfg.Storage.Region,
		UseSSL:    a.cfg.Storage.UseSSL,
	})
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		color.Yellow("Warning: could not read .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "Error: %v\n", err)
		return loaderr.ExitCode(err)
	}
	return 0
}
