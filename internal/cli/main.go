// Package cli implements the trimit command line host.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"trim-it/internal/bootstrap"
)

// servicesFactory builds the service graph for one command invocation.
type servicesFactory func(settingsPath string, logOutput io.Writer) (*bootstrap.Services, error)

func defaultServices(settingsPath string, logOutput io.Writer) (*bootstrap.Services, error) {
	return bootstrap.NewServices(bootstrap.Options{SettingsPath: settingsPath, LogOutput: logOutput})
}

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(defaultServices)
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// NewRootCommand assembles the trimit command tree.
func NewRootCommand(newServices servicesFactory) *cobra.Command {
	root := &cobra.Command{
		Use:           "trimit",
		Short:         "Trim video clips with an auto-provisioned ffmpeg",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("settings", "", "Settings file (default ~/.trim-it/settings.json)")

	root.AddCommand(
		newEnsureCommand(newServices),
		newTrimCommand(newServices),
		newServeCommand(newServices),
		newDoctorCommand(newServices),
	)
	return root
}

// loadServices builds services from the --settings flag, logging to stderr.
func loadServices(cmd *cobra.Command, newServices servicesFactory) (*bootstrap.Services, error) {
	path, _ := cmd.Flags().GetString("settings")
	svc, err := newServices(path, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return svc, nil
}
