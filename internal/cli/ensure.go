package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"trim-it/internal/domain"
	"trim-it/internal/jobs"
)

func newEnsureCommand(newServices servicesFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Locate ffmpeg, downloading a static build when missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			retry, _ := cmd.Flags().GetBool("retry")

			svc, err := loadServices(cmd, newServices)
			if err != nil {
				return err
			}
			defer svc.Close()

			start := svc.Provisioner.Ensure
			if retry {
				start = svc.Provisioner.Retry
			}
			status, err := waitForTool(cmd.Context(), svc.Bus, start, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if status.State != domain.ToolStateReady {
				return fmt.Errorf("%w: %s", domain.ErrToolNotReady, status.Label())
			}
			fmt.Fprintln(cmd.OutOrStdout(), status.Path)
			return nil
		},
	}
	cmd.Flags().Bool("retry", false, "Retry after a failed setup")
	return cmd
}

// waitForTool starts provisioning and prints every ffmpeg_status label to
// out until a ready or failed status arrives.
func waitForTool(ctx context.Context, bus *jobs.EventBus, start func() <-chan struct{}, out io.Writer) (domain.ToolStatus, error) {
	sub := bus.Subscribe(jobs.TopicToolStatus, false)
	defer sub.Close()

	start()
	for {
		select {
		case <-ctx.Done():
			return domain.ToolStatus{}, ctx.Err()
		case event, ok := <-sub.C:
			if !ok {
				return domain.ToolStatus{}, fmt.Errorf("status stream closed")
			}
			fmt.Fprintln(out, event.Message)
			if event.Tool != nil && event.Tool.Terminal() {
				return *event.Tool, nil
			}
		}
	}
}
