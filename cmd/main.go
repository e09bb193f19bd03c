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
	"github.com/spf13/cobra"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"hikenity/cmd/buildCFG"
	"hikenity/internal/api/api"
	rabbitReader "hikenity/internal/consumerWorker"
	"hikenity/internal/dto"
	"hikenity/internal/notifier"
	"hikenity/internal/payment"
	"hikenity/internal/push"
	"hikenity/internal/rabbit"
	"hikenity/internal/repo"
	"hikenity/internal/service"
	"hikenity/internal/sweeper"
)

var (
	configPath     string
	migrationsPath string
)

func main() {
	zlog.Init()

	rootCmd := &cobra.Command{
		Use:          "hikenity",
		Short:        "Trip booking backend: payments, reminders and push notifications",
		SilenceUsage: true,
		RunE:         runServe,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the config file")
	rootCmd.PersistentFlags().StringVar(&migrationsPath, "migrations", "migrations/postgres", "directory with *.up.sql and *.down.sql files")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the change consumer and the scheduled sweeper",
		RunE:  runServe,
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reminder and auto-unlist pass and exit",
		Long: `Run the trip lifecycle sweep once. Intended for an external scheduler
such as cron when the in-process ticker is not used.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := zlog.Logger
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			repository, err := openRepository(cfg, &log)
			if err != nil {
				return err
			}

			sender, err := newSender(cfg, &log)
			if err != nil {
				return err
			}

			sw := sweeper.New(repository, sender, buildCFG.BuildSweeperConfig(cfg, &log), &log)
			sum := sw.Run(cmd.Context())
			if sum.Failed {
				return errors.New("sweep ended early, see logs")
			}
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all *.up.sql files",
		RunE: func(*cobra.Command, []string) error {
			return withRepository(func(r repo.Repository) error { return r.MigrateUp(migrationsPath) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Apply all *.down.sql files in reverse order",
		RunE: func(*cobra.Command, []string) error {
			return withRepository(func(r repo.Repository) error { return r.MigrateDown(migrationsPath) })
		},
	})

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	log := zlog.Logger

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	serverCfg := buildCFG.BuildServerConfig(cfg, &log)

	repository, err := openRepository(cfg, &log)
	if err != nil {
		return err
	}
	if err := repository.MigrateUp(migrationsPath); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	sender, err := newSender(cfg, &log)
	if err != nil {
		return err
	}

	stripeCfg, err := buildCFG.BuildStripeConfig(cfg, &log)
	if err != nil {
		return err
	}
	gateway := payment.NewGateway(stripeCfg)

	routes := map[string]rabbitReader.TriggerHandler{
		dto.KindBookingCreated:   notifier.NewBookingCreated(repository, sender, &log),
		dto.KindOrganiserUpdated: notifier.NewApprovalPending(repository, sender, &log),
	}

	rabbitCfg, err := buildCFG.BuildRabbitConfig(cfg, &log)
	if err != nil {
		return err
	}
	rmq, err := rabbit.NewRabbit(rabbitCfg.Url, rabbitCfg.Exchange, rabbitCfg.Queue, rabbitReader.RoutingKeys(routes))
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer rmq.Close()

	workerCtx, cancelWorkers := context.WithCancel(cmd.Context())
	defer cancelWorkers()

	reader := rabbitReader.NewReader(rmq, routes)
	reader.Start(workerCtx)

	sw := sweeper.New(repository, sender, buildCFG.BuildSweeperConfig(cfg, &log), &log)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sw.Start(workerCtx)
	}()

	serviceInstance := service.NewService(repository, &log, rmq, gateway, sw)
	app := api.NewRouters(&api.Routers{Service: serviceInstance})

	srv := &http.Server{
		Addr:              ":" + serverCfg.Port,
		Handler:           app,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on %s", serverCfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-signalChan:
		log.Info().Msgf("Received signal %s. Initiating shutdown...", sig)
	case runErr = <-serverErrChan:
		log.Error().Err(runErr).Msg("server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down server")
	}

	cancelWorkers()
	reader.Stop()
	<-sweeperDone

	log.Info().Msg("Shutdown complete")
	return runErr
}

func loadConfig() (*config.Config, error) {
	cfg := config.New()
	if err := cfg.Load(configPath, "", "HIKENITY"); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func openRepository(cfg *config.Config, log *zerolog.Logger) (repo.Repository, error) {
	masterDSN, slaveDSNs, poolOptions, err := buildCFG.BuildDBConfig(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build DB config: %w", err)
	}

	db, err := dbpg.New(masterDSN, slaveDSNs, poolOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}

	repository, err := repo.NewRepository(db, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}
	log.Info().Msg("Database connected successfully")
	return repository, nil
}

func withRepository(fn func(repo.Repository) error) error {
	log := zlog.Logger
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repository, err := openRepository(cfg, &log)
	if err != nil {
		return err
	}
	return fn(repository)
}

func newSender(cfg *config.Config, log *zerolog.Logger) (*push.Sender, error) {
	pushCfg, err := buildCFG.BuildPushConfig(cfg, log)
	if err != nil {
		return nil, err
	}
	return push.NewSender(pushCfg, push.NewGoogleTokenSource(push.MessagingScope), log), nil
}
