// cmd/historian/main.go drains room events from the Redis queue into Postgres
// and purges expired rooms.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/sudokuduel/internal/cache"
	"github.com/jason-s-yu/sudokuduel/internal/config"
	"github.com/jason-s-yu/sudokuduel/internal/database"
	"github.com/jason-s-yu/sudokuduel/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sudokuduel-historian",
		Short:         "Persist room events and purge expired rooms.",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	config.RegisterFlags(cmd.Flags())
	cmd.CompletionOptions.HiddenDefaultCmd = true
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	if cfg.DatabaseURL == "" || cfg.RedisAddr == "" {
		return errors.New("historian needs both --database-url and --redis-addr")
	}

	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	pg, err := database.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer pg.Close()
	if err := pg.Migrate(ctx); err != nil {
		return err
	}

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()
	bus := cache.NewRedisBus(rdb, cfg.QueueName, cfg.Channel, logger)

	svc := historian.New(bus, pg, pg, logger)
	svc.BatchSize = cfg.BatchSize
	svc.FlushInterval = cfg.FlushInterval
	svc.SweepInterval = cfg.SweepInterval
	svc.Run(ctx)
	return nil
}
