package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skywatch/transient-gateway/internal/config"
	"github.com/skywatch/transient-gateway/internal/logger"
	"github.com/skywatch/transient-gateway/internal/metrics"
	"github.com/skywatch/transient-gateway/internal/store"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete events older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logger.Init(verbosity)
		defer func() { _ = log.Sync() }()

		st, err := store.Open(store.Options{
			Path:       cfg.Store.Path,
			Nside:      cfg.Store.Nside,
			TimeWindow: cfg.Store.TimeWindow,
			Retention:  cfg.Store.Retention,
			Log:        log,
		})
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer func() { _ = st.Close() }()

		n, err := st.Cleanup(context.Background(), cfg.Store.Retention)
		if err != nil {
			return err
		}
		metrics.RetentionDeletedTotal.Add(float64(n))
		log.Info("cleanup finished", zap.Int64("deleted", n))
		return nil
	},
}
