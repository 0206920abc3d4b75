package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/groundcheck/internal/pipeline"
	"github.com/ppiankov/groundcheck/internal/server"
	"github.com/ppiankov/groundcheck/internal/telemetry"
	"github.com/ppiankov/groundcheck/internal/verify"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the verification API over HTTP",
	Long: `Serve exposes verification, analysis and citation history over HTTP.

Routes:
  POST /v1/verify     verify candidate citations (?require_publishable=true gates)
  POST /v1/analyze    analyze a normalized document
  POST /v1/spans      find every occurrence of a quotation
  GET  /v1/documents/:document_id/versions/:version_id/citations
  GET  /v1/documents/:document_id/versions/:version_id/passes
  GET  /healthz
  GET  /metrics       Prometheus metrics (server.metrics_enabled)

Example:
  groundcheck serve
  groundcheck serve --addr :9090 --storage badger`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr)")
	addRuntimeFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	var opts []verify.Option
	var serverOpts []server.Option
	if cfg.Server.MetricsEnabled {
		tel, err := telemetry.Init(true)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() { _ = tel.Shutdown(context.Background()) }()
		opts = append(opts, verify.WithMeterProvider(tel.MeterProvider()))
		serverOpts = append(serverOpts, server.WithMetricsHandler(tel.Handler()))
	}

	p, err := pipeline.Build(cfg, logger, opts...)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Warn("Failed to close pipeline", zap.Error(err))
		}
	}()

	srv := server.New(p, append(serverOpts, server.WithLogger(logger))...)

	fmt.Fprintf(os.Stderr, "✓ Listening on %s (storage: %s)\n", addr, cfg.Storage.Driver)
	return srv.Run(ctx, addr)
}
