// Package cli wires the basics application into a cobra command tree
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mrcode/nightscout-basics/internal/app"
)

type cli struct {
	verbose bool
	logger  *zap.Logger
	opts    []app.Option
}

// NewRootCmd builds the command tree. opts are passed to every App the
// commands create.
func NewRootCmd(opts ...app.Option) *cobra.Command {
	c := &cli{logger: zap.NewNop(), opts: opts}

	root := &cobra.Command{
		Use:           "nsbasics",
		Short:         "nsbasics summarizes diabetes device data",
		Long:          "nsbasics aggregates pump, CGM and meter data from Nightscout or a device export into the basics summary.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.initLogger(cmd.ErrOrStderr())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = c.logger.Sync()
		},
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		c.newReportCmd(),
		c.newSectionsCmd(),
		c.newSnapshotCmd(),
		c.newConfigCmd(),
		c.newVersionCmd(),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (c *cli) initLogger(w io.Writer) error {
	level := zapcore.WarnLevel
	if c.verbose {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(w), level)
	c.logger = zap.New(core).Named("nsbasics")
	return nil
}

func (c *cli) newApp() (*app.App, error) {
	opts := append([]app.Option{app.WithLogger(c.logger)}, c.opts...)
	return app.New(opts...)
}
