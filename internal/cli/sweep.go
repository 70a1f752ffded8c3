package cli

import (
	"time"

	"challenge-service/internal/app"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewSweepCmd runs a single expiry sweep and exits.
func NewSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire stale pending challenges and re-check stuck finalizations once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			rt, err := buildRuntime(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := app.NewExpirySweeper(rt.service, rt.store, sweepPolicy(cfg), logger).
				Sweep(cmd.Context(), time.Now().UTC())
			if err != nil {
				return err
			}
			logger.Info("sweep finished",
				zap.Int("expired", report.Expired),
				zap.Int("finalized", report.Finalized),
			)
			return nil
		},
	}
}
