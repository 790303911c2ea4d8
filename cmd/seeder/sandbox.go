package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSandboxCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Serve a local stand-in for the destination API",
		Long: `Serve the import, stats, list and sales-trend endpoints backed by sqlite,
with two seeded warehouses and the configured login user. Useful for trying
plans without touching a real instance.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.Sandbox.Addr
			}
			srv, err := startSandbox(a.cfg.Sandbox, addr, a.log)
			if err != nil {
				return err
			}
			a.log.Info("sandbox ready", zap.String("url", srv.URL()), zap.String("user", a.cfg.Sandbox.Username))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			a.log.Info("shutting down sandbox")
			closeWithTimeout(srv.Close)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: sandbox.addr from settings)")
	return cmd
}
