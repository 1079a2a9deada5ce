package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"trim-it/internal/domain"
)

func newDoctorCommand(newServices servicesFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check tools and directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fix, _ := cmd.Flags().GetBool("fix")

			svc, err := loadServices(cmd, newServices)
			if err != nil {
				return err
			}
			defer svc.Close()

			report := svc.RunDiagnostics()
			if fix {
				for _, item := range report.Items {
					if item.Status == domain.DiagnosticStatusPass {
						continue
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "fixing %s...\n", item.ID)
					if _, err := svc.FixDiagnostic(cmd.Context(), item.ID); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "fix %s: %v\n", item.ID, err)
					}
				}
				report = svc.RunDiagnostics()
			}

			printReport(cmd.OutOrStdout(), report)
			if report.HasFailures {
				return errors.New("diagnostics reported failures")
			}
			return nil
		},
	}
	cmd.Flags().Bool("fix", false, "Try to fix failed and warned checks")
	return cmd
}

func printReport(w io.Writer, report domain.DiagnosticReport) {
	for _, item := range report.Items {
		fmt.Fprintf(w, "[%s] %s: %s\n", strings.ToUpper(string(item.Status)), item.Name, item.Message)
		if item.Hint != "" && item.Status != domain.DiagnosticStatusPass {
			fmt.Fprintf(w, "       %s\n", item.Hint)
		}
	}
}
