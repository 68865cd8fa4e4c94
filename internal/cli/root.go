// Package cli implements contactctl, a command-line front end to the
// contact import service.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/clientdedup/internal/bootstrap"
	"github.com/JonMunkholm/clientdedup/internal/config"
	"github.com/JonMunkholm/clientdedup/internal/core"
	"github.com/JonMunkholm/clientdedup/internal/logging"
)

// Opener produces the service a command runs against. The returned func
// releases it.
type Opener func(ctx context.Context) (*core.Service, func(), error)

// NewRootCmd builds the command tree. A nil open uses configuration from
// the environment, as the server does.
func NewRootCmd(open Opener) *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "contactctl",
		Short: "Import, export and inspect contact records",
		Long: `contactctl imports contact CSV files, flags duplicate entries and
exports the stored records. It uses the same storage settings as the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")

	if open == nil {
		open = func(ctx context.Context) (*core.Service, func(), error) {
			return openFromConfig(ctx, configFile)
		}
	}

	root.AddCommand(
		newImportCmd(open),
		newExportCmd(open),
		newStatsCmd(open),
		newResetCmd(open),
	)
	return root
}

// Execute runs contactctl with os.Args and prints any error to stderr.
func Execute(ctx context.Context) error {
	root := NewRootCmd(nil)
	err := root.ExecuteContext(ctx)
	if err != nil {
		reportError(root.ErrOrStderr(), err)
	}
	return err
}

// reportError prints the mapped user message for known failures, followed by
// the underlying error.
func reportError(w io.Writer, err error) {
	if !core.IsUserFacing(err) {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "Error: %s\n", core.FormatUserError(err))
	fmt.Fprintf(w, "  cause: %v\n", err)
}

func openFromConfig(ctx context.Context, path string) (*core.Service, func(), error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, err
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	app, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return app.Service, app.Close, nil
}
