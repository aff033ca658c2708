package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/splitkit/splitkit/internal/config"
	"github.com/splitkit/splitkit/internal/engine"
	"github.com/splitkit/splitkit/internal/server"
	"github.com/splitkit/splitkit/internal/tracker"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the splitkit HTTP server.

The server provides:
  - Variant resolution and event ingest endpoints for the response runtime
  - Token-guarded test management endpoints
  - Prometheus metrics and a health check

Example:
  splitkit serve --port 8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (default from SPLITKIT_PORT or 8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if servePort > 0 {
		cfg.Port = servePort
	}

	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	gw, err := openGateway()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer gw.Close()

	collectors := tracker.NewCollectors(prometheus.DefaultRegisterer)
	tr := tracker.New(gw, log, collectors)
	eng := engine.New(gw, tr, log, engine.Config{
		MaxConcurrentTests: cfg.MaxConcurrentTests,
		MinAnalysisAge:     cfg.AnalysisMinAge,
		RetentionPeriod:    time.Duration(cfg.RetentionDays) * 24 * time.Hour,
	})

	srv := server.New(eng, tr, log, cfg.AdminToken)
	if cfg.AdminToken == "" {
		fmt.Printf("Admin token: %s\n", srv.Token())
		fmt.Println("Set SPLITKIT_ADMIN_TOKEN to keep it stable across restarts.")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx, cfg.Port, cfg.AnalysisInterval)
}
