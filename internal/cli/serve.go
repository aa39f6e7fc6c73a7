package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harun/ideascout/pkg/gateway"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the research HTTP gateway",
	Long: `Start the HTTP gateway exposing POST /research, the /research/stream
websocket and checkpoint inspection. Stops gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	ctx, stop := signal.NotifyContext(base, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	log := a.log.Component("gateway")
	server, err := gateway.NewServer(gateway.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		AllowOrigins:      cfg.Server.AllowOrigins,
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
		MaxConcurrent:     cfg.Server.MaxConcurrent,
		Researcher:        a.orchestrator,
		Checkpoints:       a.store,
		Logger:            log,
	})
	if err != nil {
		_ = a.Close(context.Background())
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	if err := server.Start(); err != nil {
		_ = a.Close(context.Background())
		return err
	}

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Gateway shutdown failed")
	}
	return a.Close(shutdownCtx)
}
