// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/sudokuduel/internal/auth"
	"github.com/jason-s-yu/sudokuduel/internal/cache"
	"github.com/jason-s-yu/sudokuduel/internal/config"
	"github.com/jason-s-yu/sudokuduel/internal/database"
	"github.com/jason-s-yu/sudokuduel/internal/game"
	"github.com/jason-s-yu/sudokuduel/internal/handlers"
	"github.com/jason-s-yu/sudokuduel/internal/historian"
	"github.com/jason-s-yu/sudokuduel/internal/identity"
	"github.com/jason-s-yu/sudokuduel/internal/ledger"
	"github.com/jason-s-yu/sudokuduel/internal/metrics"
	"github.com/jason-s-yu/sudokuduel/internal/puzzle"
	"github.com/jason-s-yu/sudokuduel/internal/room"
	"github.com/jason-s-yu/sudokuduel/internal/stats"
	"github.com/jason-s-yu/sudokuduel/internal/store"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const releaseVersion = "0.1.0"

// backend is what both the in-memory store and Postgres provide.
type backend interface {
	store.Store
	store.IdentityStore
}

func main() {
	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sudokuduel",
		Short:         "Turn-based multiplayer Sudoku duel server.",
		Args:          cobra.NoArgs,
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	config.RegisterFlags(cmd.Flags())
	cmd.CompletionOptions.HiddenDefaultCmd = true
	return cmd
}

func newLogger(level string) (*logrus.Logger, error) {
	logger := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(lvl)
	return logger, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	var st backend
	if cfg.DatabaseURL != "" {
		pg, err := database.Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		st = pg
	} else {
		logger.Warn("no database configured, rooms are kept in memory")
		mem := store.NewMemoryStore()
		st = mem
		// Without the historian process nothing else purges expired rooms.
		sweeper := historian.New(nil, nil, mem, logger)
		go sweepLoop(ctx, sweeper, cfg.SweepInterval)
	}

	var bus cache.Bus
	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		bus = cache.NewRedisBus(rdb, cfg.QueueName, cfg.Channel, logger)
	} else {
		bus = cache.NewLocalBus()
	}

	var issuer *auth.Issuer
	if cfg.PrivateKeyFile != "" && cfg.PublicKeyFile != "" {
		issuer, err = auth.NewIssuerFromFiles(cfg.PrivateKeyFile, cfg.PublicKeyFile, cfg.TokenExpire)
	} else {
		logger.Warn("no signing keys configured, generating an ephemeral pair")
		issuer, err = auth.NewIssuer(cfg.TokenExpire)
	}
	if err != nil {
		return err
	}

	m := metrics.New("sudokuduel")
	seed := time.Now().UnixNano()

	reg := room.NewRegistry(st, cfg.Rules, puzzle.NewSource(puzzle.NewBacktrackGenerator(seed), logger), logger)
	reg.Numbers = game.NewNumberSource(seed + 1)
	reg.Publisher = bus
	reg.Metrics = m

	machine := game.NewMachine(st, cfg.Rules, logger)
	machine.Numbers = game.NewNumberSource(seed + 2)
	machine.Publisher = bus
	machine.Metrics = m

	api := handlers.NewAPIServer(logger)
	api.Identity = identity.NewLedger(st, logger)
	api.Rooms = reg
	api.Machine = machine
	api.Moves = ledger.New(st)
	api.Stats = stats.New(st)
	api.Issuer = issuer
	api.Feed = bus
	api.Metrics = m
	api.PublicURL = cfg.PublicURL
	api.MaxLives = cfg.Rules.MaxLives

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func sweepLoop(ctx context.Context, svc *historian.Service, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.Sweep(ctx)
		}
	}
}
