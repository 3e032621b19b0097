package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	cmd := &command{}

	root := &cobra.Command{
		Use:           "stackup",
		Short:         "Bring a multi-service development stack up and down as one unit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var up UpFlags
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Prepare, launch and watch every configured service",
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmd.Up(up)
		},
	}
	upCmd.Flags().StringVarP(&up.ConfigPath, "config", "c", "stackup.toml", "path to TOML config")
	upCmd.Flags().StringVar(&up.LogLevel, "log-level", "info", "debug|info|warn|error")

	var down DownFlags
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Stop every configured service, even ones launched by another run",
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmd.Down(down)
		},
	}
	downCmd.Flags().StringVarP(&down.ConfigPath, "config", "c", "stackup.toml", "path to TOML config")
	downCmd.Flags().DurationVar(&down.Wait, "wait", 0, "grace period before SIGKILL (default from config)")

	var status StatusFlags
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show which configured services are running",
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmd.Status(status)
		},
	}
	statusCmd.Flags().StringVarP(&status.ConfigPath, "config", "c", "stackup.toml", "path to TOML config")
	statusCmd.Flags().BoolVar(&status.JSONOut, "json", false, "print machine-readable JSON")

	root.AddCommand(upCmd, downCmd, statusCmd)
	return root
}
