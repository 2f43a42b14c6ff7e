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

	"github.com/uhyunpark/predictcore/params"
	"github.com/uhyunpark/predictcore/pkg/api"
	"github.com/uhyunpark/predictcore/pkg/app/core/trading"
	"github.com/uhyunpark/predictcore/pkg/app/predict"
	"github.com/uhyunpark/predictcore/pkg/util"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version    = "dev"
	commitHash = "none"
)

const shutdownTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:   "predict-node",
	Short: "Prediction market exchange node",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the exchange with its HTTP and WebSocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}
		envPath, err := cmd.Flags().GetString("env")
		if err != nil {
			return err
		}
		cfg, err := params.Load(cfgPath, envPath)
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the node version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("predict-node %s (%s)\n", version, commitHash)
	},
}

func init() {
	serveCmd.Flags().String("config", "", "path to a TOML config file")
	serveCmd.Flags().String("env", "", "path to a .env file (defaults to ./.env when present)")
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg params.Log) (*zap.Logger, error) {
	if cfg.File == "" {
		return util.NewLogger(cfg.Level)
	}
	return util.NewLoggerWithFile(cfg.File, cfg.Level)
}

func serve(cfg params.Config) error {
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := api.NewHub(logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	app, err := predict.NewApp(cfg, logger, trading.WithListener(hub))
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	defer app.Close()

	// ---- Simulator (optional) ----
	if cfg.Simulator.Enabled {
		_, stopSim := predict.StartSimulator(ctx, app, cfg.Simulator, logger)
		defer stopSim()
	} else {
		logger.Info("simulator_disabled")
	}

	// ---- API Server ----
	server := api.NewServer(app, hub, cfg.API, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	logger.Info("node_started",
		zap.String("version", version),
		zap.Int("markets", app.Markets.Count()),
		zap.Int("resting_orders", app.Book.Len()),
		zap.String("data_dir", cfg.Storage.DataDir))

	select {
	case <-ctx.Done():
		logger.Info("shutdown_requested")
	case err := <-errCh:
		if err != nil {
			logger.Error("api_server_failed", zap.Error(err))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_failed", zap.Error(err))
	}
	return nil
}
