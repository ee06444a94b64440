package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/skywatch/transient-gateway/internal/audit"
	"github.com/skywatch/transient-gateway/internal/config"
	"github.com/skywatch/transient-gateway/internal/decode"
	"github.com/skywatch/transient-gateway/internal/ingest"
	"github.com/skywatch/transient-gateway/internal/kafka"
	"github.com/skywatch/transient-gateway/internal/logger"
	"github.com/skywatch/transient-gateway/internal/store"
)

var (
	injectTopic string
	injectFile  string

	injectCmd = &cobra.Command{
		Use:   "inject",
		Short: "Run one notice from a file (or stdin) through the ingestion path",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log := logger.Init(verbosity)
			defer func() { _ = log.Sync() }()

			var payload []byte
			if injectFile == "" || injectFile == "-" {
				payload, err = io.ReadAll(os.Stdin)
			} else {
				payload, err = os.ReadFile(injectFile)
			}
			if err != nil {
				return fmt.Errorf("read notice: %w", err)
			}

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

			loop := &ingest.Loop{
				Registry: decode.Build(decode.Options{AcceptGroups: cfg.GW.AcceptGroups, AcceptIDPrefixes: cfg.GW.AcceptIDPrefixes, Log: log}),
				Store:    st,
				Audit:    aw,
				Formats:  cfg.FormatMap(),
				Log:      log,
			}
			loop.Process(context.Background(), kafka.Message{Topic: injectTopic, Value: payload})
			return nil
		},
	}
)

func init() {
	injectCmd.Flags().StringVar(&injectTopic, "topic", "", "topic/format the notice belongs to")
	injectCmd.Flags().StringVar(&injectFile, "file", "-", "notice file, '-' reads stdin")
	_ = injectCmd.MarkFlagRequired("topic")
}
