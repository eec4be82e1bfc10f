package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/macindex/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP dashboard",
	Long:  "Serve the chart dashboard and JSON API until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := buildPipeline(ctx)
		if err != nil {
			return err
		}
		addr := cfg.ServerAddr
		if serveAddr != "" {
			addr = serveAddr
		}
		srv := server.New(p, server.Options{
			Addr:            addr,
			RatePerSec:      cfg.ServerRatePerSec,
			Burst:           cfg.ServerBurst,
			ShutdownTimeout: time.Duration(cfg.ServerShutdownTimeoutSec) * time.Second,
		}, logger)
		cmd.Printf("Dashboard on http://%s (Ctrl+C to stop)\n", srv.Address())
		return srv.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server_addr)")
}
