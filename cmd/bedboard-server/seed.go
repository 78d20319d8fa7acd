package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehr/bedboard/internal/domain/bed"
	"github.com/ehr/bedboard/internal/platform/changefeed"
	"github.com/ehr/bedboard/internal/platform/db"
	"github.com/ehr/bedboard/internal/platform/sandbox"
)

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default bed layout and optionally admit demo patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			demo, _ := cmd.Flags().GetInt("demo")
			seed, _ := cmd.Flags().GetInt64("seed")

			ctx := context.Background()
			in, err := connect(ctx, false)
			if err != nil {
				return err
			}
			defer in.Close()

			beds := bed.NewService(bed.NewRepoPG(in.pool), db.NewTxRunner(in.pool), changefeed.Discard)
			beds.SetClock(time.Now, in.loc)
			beds.SetLogger(in.logger)

			res, err := sandbox.NewSeeder(beds, sandbox.DefaultLayout()).Seed(ctx, sandbox.SeedConfig{DemoPatients: demo, Seed: seed})
			if err != nil {
				return err
			}
			fmt.Printf("Created %d bed(s), admitted %d demo patient(s) in %s.\n", res.BedsCreated, res.Admitted, res.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().Int("demo", 0, "Number of synthetic patients to admit into free beds")
	cmd.Flags().Int64("seed", 1, "Random seed for demo data")
	return cmd
}
