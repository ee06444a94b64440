package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skywatch/transient-gateway/internal/audit"
	"github.com/skywatch/transient-gateway/internal/config"
	"github.com/skywatch/transient-gateway/internal/decode"
	httpSrv "github.com/skywatch/transient-gateway/internal/http"
	"github.com/skywatch/transient-gateway/internal/ingest"
	"github.com/skywatch/transient-gateway/internal/kafka"
	"github.com/skywatch/transient-gateway/internal/logger"
	"github.com/skywatch/transient-gateway/internal/store"
	"github.com/skywatch/transient-gateway/internal/trigger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Consume notices from the broker and ingest them",
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

		aw, err := audit.NewWriter(cfg.Audit.Dir)
		if err != nil {
			return err
		}

		consumer := kafka.NewConsumerFromConfig(kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			GroupID:        cfg.Kafka.GroupID,
			Topics:         cfg.Topics(),
			ClientID:       cfg.Kafka.ClientID,
			ClientSecret:   cfg.Kafka.ClientSecret,
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: cfg.Kafka.CommitInterval,
		})
		defer func() { _ = consumer.Close() }()

		var trg *trigger.Builder
		if cfg.Trigger.Enabled {
			trg = &trigger.Builder{
				Criteria: trigger.Criteria{
					MinHasNeutronStar:    cfg.Trigger.MinHasNeutronStar,
					MinHasRemnant:        cfg.Trigger.MinHasRemnant,
					MaxTerrestrialChance: cfg.Trigger.MaxTerrestrialChance,
					MaxFalseAlarmRate:    cfg.Trigger.MaxFalseAlarmRate,
				},
				ExposureSec:           cfg.Trigger.ExposureSec,
				CalibratorExposureSec: cfg.Trigger.CalibratorExposureSec,
			}
		}

		loop := &ingest.Loop{
			Consumer:    consumer,
			Registry:    decode.Build(decode.Options{AcceptGroups: cfg.GW.AcceptGroups, AcceptIDPrefixes: cfg.GW.AcceptIDPrefixes, Log: log}),
			Store:       st,
			Audit:       aw,
			Trigger:     trg,
			Limits:      cfg.Limits(),
			Formats:     cfg.FormatMap(),
			PollTimeout: cfg.Ingest.PollTimeout,
			RunTimeout:  cfg.Ingest.RunTimeout,
			Log:         log,
		}

		var server *httpSrv.Server
		if cfg.HTTP.Enabled {
			server = httpSrv.NewServer(st)
			go func() {
				if err := server.Start(cfg.HTTP.Addr); err != nil {
					log.Warn("http server exited", zap.Error(err))
				}
			}()
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		errCh := make(chan error, 1)
		go func() { errCh <- loop.Run(ctx) }()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Info("signal received, shutting down", zap.String("signal", sig.String()))
			cancel()
			<-errCh
		case err = <-errCh:
			if err != nil {
				log.Error("ingestion loop exited", zap.Error(err))
			}
		}

		if server != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = server.Shutdown(shutdownCtx)
		}
		return err
	},
}
