// Package cli implements the logaware command line, which runs the batch
// pipeline over local files without the HTTP server.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/logaware/backend/internal/config"
	"github.com/logaware/backend/internal/logger"
)

type app struct {
	cfg      config.Config
	cfgErr   error
	logLevel string
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
}

func NewRootCommand() *cobra.Command {
	return NewRootCommandWithIO(os.Stdin, os.Stdout, os.Stderr)
}

func NewRootCommandWithIO(in io.Reader, out, errOut io.Writer) *cobra.Command {
	cfg, cfgErr := config.Load()
	if cfgErr != nil {
		cfg = config.Default()
	}
	a := &app{
		cfg:    cfg,
		cfgErr: cfgErr,
		stdin:  in,
		stdout: out,
		stderr: errOut,
	}

	cmd := &cobra.Command{
		Use:           "logaware",
		Short:         "Unsupervised anomaly detection for web access logs",
		Long:          "logaware scores every line of an access log with a density engine and an isolation engine and reports the lines either engine finds unusual.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger.Initialize(logger.Options{Level: a.logLevel, File: a.cfg.LogFile})
			if a.cfg.LogFile == "" {
				logger.SetOutput(a.stderr)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "WARN", "log level (DEBUG, INFO, WARN, ERROR)")

	cmd.AddCommand(newScoreCmd(a))
	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	cmd := NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
