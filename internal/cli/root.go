// Package cli provides the command-line interface for embedset.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/justapithecus/embedset/internal/config"
	"github.com/justapithecus/embedset/internal/logging"
)

// Version is set at build time.
var Version = "0.1.0"

// app holds state shared by all commands of one invocation.
type app struct {
	configPath string
	verbose    bool

	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error
}

// newRootCommand builds the embedset command tree and the state its
// commands share. Run it with execute so the log file is always closed.
func newRootCommand() (*cobra.Command, *app) {
	a := &app{}

	root := &cobra.Command{
		Use:   "embedset",
		Short: "Inspect embed jobs and export their result datasets",
		Long: `embedset polls hosted embed jobs and streams their result datasets
to local files or object storage as JSON Lines or CSV.

Configuration is read from a YAML file (--config or $EMBEDSET_CONFIG)
and EMBEDSET_* environment variables.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.init()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(a.statusCmd())
	root.AddCommand(a.waitCmd())
	root.AddCommand(a.exportCmd())
	return root, a
}

// Execute runs the CLI until completion or until SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root, a := newRootCommand()
	return execute(ctx, root, a)
}

// execute runs root and closes the log file whether or not the command
// failed. Cobra skips post-run hooks after a RunE error.
func execute(ctx context.Context, root *cobra.Command, a *app) error {
	defer a.close()
	return root.ExecuteContext(ctx)
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	a.cfg = cfg
	a.logger, a.closeLog = logging.Setup(logging.Config{
		Format: cfg.Log.Format,
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
	})
	return nil
}

func (a *app) close() {
	if a.closeLog == nil {
		return
	}
	if err := a.closeLog(); err != nil {
		a.logger.Warn("failed to close log file", "error", err)
	}
	a.closeLog = nil
}
