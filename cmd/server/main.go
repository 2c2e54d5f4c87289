package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"interview-scheduler/internal/app"
	"interview-scheduler/internal/config"
	"interview-scheduler/internal/directory"
	"interview-scheduler/internal/logging"
	"interview-scheduler/internal/metrics"
	"interview-scheduler/internal/scheduling"
	"interview-scheduler/internal/server"
	"interview-scheduler/internal/store"
)

var (
	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "server",
	Short:         "Interview scheduling service",
	Long:          "Allocates interviewer time slots to candidates and serves the /schedule API.",
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the scheduling tables",
	RunE:  runMigrate,
}

var slotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "Manage interview slots",
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate weekday business-hour slots for an interviewer",
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().String("from", "", "first date, YYYY-MM-DD")
	generateCmd.Flags().String("to", "", "last date, YYYY-MM-DD (inclusive)")
	generateCmd.Flags().String("interviewer", "", "interviewer name")
	generateCmd.Flags().String("timezone", "UTC", "IANA time zone the business hours apply in")
	_ = generateCmd.MarkFlagRequired("from")
	_ = generateCmd.MarkFlagRequired("to")
	_ = generateCmd.MarkFlagRequired("interviewer")

	slotsCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(serveCmd, migrateCmd, slotsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err = logging.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		return err
	}
	return nil
}

func businessHours() scheduling.BusinessHours {
	return scheduling.BusinessHours{
		Start:      cfg.BusinessHoursStart,
		End:        cfg.BusinessHoursEnd,
		SlotLength: cfg.SlotLength(),
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, dir, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer backend.Close()

	if err := backend.Migrate(ctx); err != nil {
		return err
	}

	if cfg.RedisAddr != "" {
		client := directory.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		cached := directory.NewCached(client, dir, cfg.DirectoryCacheTTL, logger)
		defer cached.Close()
		dir = cached
		logger.Info("directory cache enabled", zap.String("addr", cfg.RedisAddr))
	}

	m := metrics.New()
	a, err := app.New(backend, dir, businessHours(), m, logger)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}

	router := app.NewRouter(a, app.RouterConfig{
		AllowedOrigins:    cfg.AllowedOrigins(),
		JWTSecret:         cfg.JWTSecret,
		StaticTokens:      cfg.Tokens(),
		MaxRequestsPerMin: cfg.MaxRequestsPerMin,
	}, m)

	logger.Info("interview scheduler starting", zap.String("env", cfg.Env), zap.String("backend", cfg.DBBackend))
	return server.Run(ctx, router, ":"+cfg.AppPort, logger)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	backend, _, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer backend.Close()

	if err := backend.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("migration complete")
	return nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	defer logger.Sync()

	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")
	interviewer, _ := cmd.Flags().GetString("interviewer")
	tz, _ := cmd.Flags().GetString("timezone")

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	from, err := time.ParseInLocation("2006-01-02", fromStr, loc)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to, err := time.ParseInLocation("2006-01-02", toStr, loc)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}

	ctx := cmd.Context()
	backend, _, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer backend.Close()
	if err := backend.Migrate(ctx); err != nil {
		return err
	}

	pool := scheduling.NewSlotPool(backend, logger, nil)
	gen, err := scheduling.NewGenerator(pool, businessHours())
	if err != nil {
		return err
	}
	created, err := gen.Generate(ctx, from, to, interviewer)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %d slots for %s\n", len(created), interviewer)
	return nil
}
