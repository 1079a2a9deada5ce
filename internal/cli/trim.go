package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"trim-it/internal/domain"
	"trim-it/internal/jobs"
	"trim-it/internal/pipeline"
)

func newTrimCommand(newServices servicesFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trim <source>",
		Short: "Cut one clip from a local file or a video URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, _ := cmd.Flags().GetString("start")
			end, _ := cmd.Flags().GetString("end")
			ratio, _ := cmd.Flags().GetString("ratio")
			outDir, _ := cmd.Flags().GetString("out")

			if _, err := domain.ParseRatio(ratio); err != nil {
				return err
			}

			svc, err := loadServices(cmd, newServices)
			if err != nil {
				return err
			}
			defer svc.Close()

			if strings.TrimSpace(outDir) != "" {
				settings := svc.Settings()
				settings.OutputDir = outDir
				svc.OverrideSettings(settings)
			}

			ctx := cmd.Context()
			status, err := waitForTool(ctx, svc.Bus, svc.Provisioner.Ensure, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if status.State != domain.ToolStateReady {
				fmt.Fprintln(cmd.OutOrStdout(), pipeline.ErrorPrefix+fmt.Sprintf("%s (%s)", domain.ErrToolNotReady, status.Label()))
				return errTrimFailed
			}

			sub := svc.Bus.Subscribe(jobs.TopicClip, false)
			printed := make(chan struct{})
			go func() {
				defer close(printed)
				printClipEvents(sub.C, cmd.ErrOrStderr())
			}()

			_, outcome, runErr := svc.Trim(ctx, pipeline.Request{
				Source: args[0],
				Start:  start,
				End:    end,
				Ratio:  ratio,
			})
			sub.Close()
			<-printed

			fmt.Fprintln(cmd.OutOrStdout(), outcome)
			if runErr != nil {
				return errTrimFailed
			}
			return nil
		},
	}
	cmd.Flags().String("start", "", "Clip start, HH:MM:SS[.mmm]")
	cmd.Flags().String("end", "", "Clip end, HH:MM:SS[.mmm]")
	cmd.Flags().String("ratio", string(domain.RatioOriginal), "Output ratio: Original, 16:9, 9:16 or 1:1")
	cmd.Flags().String("out", "", "Output directory (overrides settings)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

// errTrimFailed signals a failure whose message was already printed.
var errTrimFailed = errors.New("trim failed")

// printClipEvents writes one line per status or progress event until ch closes.
func printClipEvents(ch <-chan jobs.Event, out io.Writer) {
	for event := range ch {
		switch event.Type {
		case jobs.EventTypeStatus:
			fmt.Fprintf(out, "[%s] %s\n", event.Status, event.Message)
		case jobs.EventTypeProgress:
			fmt.Fprintln(out, event.Message)
		case jobs.EventTypeLog:
			if event.Message != "" {
				fmt.Fprintln(out, event.Message)
			}
		}
	}
}
