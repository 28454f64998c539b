// Command surveyctl holds the operator tasks that have no HTTP surface:
// demo seeding, admin provisioning and location sheet maintenance.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"agrosurvey/internal/app"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env is resolved once per invocation in PersistentPreRunE.
type env struct {
	cfg    app.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	e := &env{}
	var verbose bool

	root := &cobra.Command{
		Use:           "surveyctl",
		Short:         "Operate the agrosurvey collection and dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			e.cfg = app.LoadConfig()
			if !verbose {
				e.logger = zap.NewNop()
				return nil
			}
			logger, err := app.NewLogger(e.cfg)
			if err != nil {
				return err
			}
			e.logger = logger
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(newSeedCmd(e), newAdminCmd(e), newLocationsCmd())
	return root
}
