package main

import (
	"fmt"

	"agrosurvey/internal/app"
	"agrosurvey/internal/seed"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSeedCmd(e *env) *cobra.Command {
	var count, parallel int

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert generated demo responses",
		Long: `Insert generated responses tagged ` + seed.Version + ` into the response
collection. About 80% of them report AI use and about 90% name lack of
training as a barrier.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, tax, err := app.LoadSchema(e.cfg, e.logger)
			if err != nil {
				return err
			}
			responses, conn, err := app.OpenStore(ctx, e.cfg)
			if err != nil {
				return err
			}
			if conn != nil {
				defer conn.Close()
			}

			gen, err := seed.NewGenerator(tax, nil)
			if err != nil {
				return err
			}
			n, err := seed.Run(ctx, responses, gen, count, parallel)
			e.logger.Info("seed finished", zap.Int("stored", n), zap.String("store", e.cfg.StoreDriver), zap.Error(err))
			if err != nil {
				return fmt.Errorf("stored %d of %d: %w", n, count, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d responses (%s)\n", n, seed.Version)
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 20, "number of responses to insert")
	cmd.Flags().IntVar(&parallel, "parallel", 8, "maximum concurrent writes")
	return cmd
}
