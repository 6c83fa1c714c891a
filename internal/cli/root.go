package cli

import (
	"context"
	"os"
	"path/filepath"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/partforge/partforge/pkg/buildinfo"
)

// appName is used for the cache directory and command name.
const appName = "partforge"

// Execute runs the partforge CLI and returns an error if any command fails.
// This is the main entry point for the CLI application.
//
// The function sets up the root command with all subcommands (convert,
// validate, info, serve, cache, completion), configures logging based on
// the --verbose flag, and executes the command tree.
//
// Logging:
//   - Default: info level (logs to stderr)
//   - With --verbose (-v): debug level
//
// The logger is attached to the context and accessible to all commands via loggerFromContext.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext is Execute with a caller-supplied context, so signal
// handling set up in main cancels running jobs.
func ExecuteContext(ctx context.Context) error {
	var verbose bool

	root := &cobra.Command{
		Use:          appName,
		Short:        "PartForge converts and validates Mini 4WD part models",
		Long:         `PartForge is a CLI tool for converting 3D model and vector files between formats (STL, OBJ, PLY, SVG) and validating parts against Mini 4WD compatibility rules.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(ctx)
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newConvertCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newInfoCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newCacheCmd())
	root.AddCommand(newCompletionCmd())

	return root.ExecuteContext(ctx)
}

// cacheDir returns the cache directory using XDG standard (~/.cache/partforge/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
