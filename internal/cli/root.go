package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"signcoach/internal/bootstrap"
	"signcoach/internal/config"
	"signcoach/internal/ports"
)

// Builder assembles the runtime graph for a command.
type Builder func(sink ports.EventSink, logger *slog.Logger) (bootstrap.Services, error)

type rootOptions struct {
	build    Builder
	logLevel string
}

// NewRootCommand returns the signcoach-practice command tree.
func NewRootCommand(build Builder) *cobra.Command {
	if build == nil {
		build = bootstrap.Build
	}
	opts := &rootOptions{build: build}

	root := &cobra.Command{
		Use:           "signcoach-practice",
		Short:         "Practice sign-language gestures against a recognition service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error); defaults to SIGNCOACH_LOG_LEVEL")

	root.AddCommand(newRunCommand(opts))
	root.AddCommand(newEndpointsCommand(opts))
	return root
}

// logger honours --log-level; nil lets the builder use the configured level.
func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	if o.logLevel == "" {
		return nil
	}
	return bootstrap.NewLogger(cmd.ErrOrStderr(), config.ParseLevel(o.logLevel))
}

// Execute runs the command tree until it completes or the process is interrupted.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(nil)
	if err := root.ExecuteContext(ctx); err != nil {
		root.PrintErrln(errStyle.Render("error:"), err)
		return 1
	}
	return 0
}
