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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Avatar/internal/adapters/heygen"
	router "github.com/dkeye/Avatar/internal/adapters/http"
	sig "github.com/dkeye/Avatar/internal/adapters/signal"
	"github.com/dkeye/Avatar/internal/adapters/token"
	"github.com/dkeye/Avatar/internal/app"
	"github.com/dkeye/Avatar/internal/app/sfu"
	"github.com/dkeye/Avatar/internal/config"
)

const shutdownTimeout = 5 * time.Second

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve the streaming avatar overlay",
	Long: `Serve the streaming avatar overlay.

On start the server fetches a session token, brings up one HeyGen avatar
session and greets the user. Browsers receive status updates and the
avatar's media over /api/ws/signal and can toggle the microphone.

Configuration is read from config/config.<env>.yaml and AVATAR_*
environment variables.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd)
	},
}

func init() {
	rootCmd.Flags().String("config-env", "dev", "config file suffix (config/config.<env>.yaml)")
	rootCmd.Flags().Int("port", 8080, "HTTP listen port")
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func Execute() error {
	return rootCmd.Execute()
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func run(cmd *cobra.Command) error {
	setupLogging()

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, keeping info")
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	session := app.NewController(
		token.NewFetcher(cfg.TokenURL),
		heygen.NewFactory(heygen.Options{
			APIBase: cfg.HeyGen.APIBase,
			WSBase:  cfg.HeyGen.WSBase,
		}),
		app.Options{
			Persona:         cfg.Persona(),
			WatchdogTimeout: cfg.WatchdogTimeout,
		},
	)

	registry := app.NewRegistry()
	stage := app.NewStage(sfu.NewRelayManager())
	ctl := &sig.SignalWSController{
		Session:    session,
		Registry:   registry,
		Stage:      stage,
		Limiter:    sig.NewMuteRateLimiter(cfg.MuteRateLimit, cfg.MuteRateInterval),
		Policy:     app.SimplePolicy{MaxDropped: app.DefaultMaxDropped},
		ICEURLs:    cfg.ICEServers,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.SetupRouter(ctx, cfg, ctl),
	}

	g, gctx := errgroup.WithContext(ctx)

	snaps, _ := session.Subscribe()
	g.Go(func() error {
		stage.Run(gctx, snaps)
		return nil
	})

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Avatar server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		session.Unmount()
		registry.CancelAll()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	session.Mount(gctx)

	err = g.Wait()
	log.Info().Msg("Server exited gracefully")
	return err
}
