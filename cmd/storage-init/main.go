package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/LucasAro/JuscashCase/config"
	"github.com/LucasAro/JuscashCase/domain"
	"github.com/LucasAro/JuscashCase/storage"
)

type options struct {
	configPath string
	seedPath   string
	skipAzure  bool
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "storage-init",
		Short:         "Create the database schema, Azure tables and queues",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Read(opts.configPath)
			if err != nil {
				return err
			}
			if cfg.Debug {
				log.SetLevel(log.DebugLevel)
			}
			return run(cmd.Context(), cfg, opts, log.StandardLogger())
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to config file")
	cmd.Flags().StringVar(&opts.seedPath, "seed", "", "JSON file with publications to insert")
	cmd.Flags().BoolVar(&opts.skipAzure, "skip-azure", false, "do not create Azure tables and queues")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, opts options, logger *log.Logger) error {
	logger.Info("storage init starting")

	store, err := storage.Open(ctx, cfg.DB.URL, logger)
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	defer store.Close()

	if opts.seedPath != "" {
		n, err := seed(ctx, store, opts.seedPath)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		logger.Infof("seeded %d publications", n)
	}

	if cfg.Azure.Enabled() && !opts.skipAzure {
		if err := storage.EnsureTables(ctx, cfg.Azure.ConnectionString, cfg.Azure.HistoryTable); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
		if err := storage.EnsureQueues(ctx, cfg.Azure.ConnectionString, cfg.Azure.EventQueue); err != nil {
			return fmt.Errorf("create queues: %w", err)
		}
	} else {
		logger.Info("skipping Azure tables and queues")
	}

	logger.Info("storage init complete")
	return nil
}

func seed(ctx context.Context, store *storage.Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var recs []domain.Publication
	if err := sonic.ConfigStd.Unmarshal(data, &recs); err != nil {
		return 0, fmt.Errorf("decode %s: %w", path, err)
	}
	for i, p := range recs {
		if p.Status != "" {
			st, err := domain.ParseStatus(string(p.Status))
			if err != nil {
				return i, err
			}
			p.Status = st
		}
		if _, err := store.InsertPublication(ctx, p); err != nil {
			return i, fmt.Errorf("insert %q: %w", p.CaseNumber, err)
		}
	}
	return len(recs), nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}
