package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"trim-it/internal/api"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(newServices servicesFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")

			svc, err := loadServices(cmd, newServices)
			if err != nil {
				return err
			}
			defer svc.Close()

			if addr == "" {
				addr = svc.Settings().ListenAddr
			}

			ctx := cmd.Context()
			server := api.NewServer(api.ServerConfig{
				Addr:          addr,
				Toolchain:     svc.Provisioner,
				Clipper:       svc.Pipeline,
				Doctor:        svc,
				Bus:           svc.Bus,
				Logger:        svc.Logger,
				StartTime:     time.Now(),
				BackgroundCtx: ctx,
			})

			svc.Provisioner.Ensure()

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			svc.Pipeline.CancelAll()
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default from settings, 127.0.0.1:8790)")
	return cmd
}
