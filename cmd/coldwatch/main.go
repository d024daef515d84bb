package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/frigosense/coldwatch/internal/application"
	"github.com/frigosense/coldwatch/internal/config"
	"github.com/frigosense/coldwatch/internal/infrastructure/bus"
	"github.com/frigosense/coldwatch/internal/infrastructure/cache"
	"github.com/frigosense/coldwatch/internal/infrastructure/webhook"
	httpiface "github.com/frigosense/coldwatch/internal/interfaces/http"
	"github.com/frigosense/coldwatch/internal/persistence/postgres"
	"github.com/frigosense/coldwatch/internal/scheduler"
)

var version = "1.2.0"

const shutdownTimeout = 10 * time.Second

var (
	configPath   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "coldwatch",
	Short: "Cold-chain telemetry processor for BLE temperature sensors",
	Long: `Coldwatch ingests BLE sensor readings from field gateways, infers
per-sensor operational state (defrost cycles, virtual door events), raises
threshold and predictive alerts, and persists filtered telemetry.`,
	RunE: runService,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the telemetry processor",
	RunE:  runService,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("coldwatch %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/coldwatch.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override the configured log level")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

func runService(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}
	setupLogging(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log.Info().Str("version", version).Str("bus", cfg.BusURL).Msg("Coldwatch starting")

	db, store, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	snapshots := cache.NewAuto()
	engine := application.NewEngine(application.NewRealClock(), cfg.AlertSettings(), store, snapshots)

	consumer := bus.NewWebSocketConsumer(cfg.BusURL, cfg.BusTopic)
	engine.SetBusProbe(consumer.Connected)

	sender := webhook.NewClient(cfg.WebhookURL, cfg.WebhookTimeout)
	sched := scheduler.New(engine, store, sender, application.NewRealClock(), cfg.Intervals())
	httpServer := httpiface.NewServer(cfg.ListenAddr, engine)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = sched.Bootstrap(bootCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("startup bootstrap failed: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := consumer.Run(ctx, engine.HandlePayload); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Bus consumer stopped")
		}
	}()
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := httpServer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")

	flushCtx, cancelFlush := context.WithTimeout(context.Background(), shutdownTimeout)
	sched.Shutdown(flushCtx)
	cancelFlush()

	wg.Wait()
	log.Info().Msg("Coldwatch stopped")
	return nil
}
