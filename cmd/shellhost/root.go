package main

import (
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/shellhost/internal/infrastructure/config"
)

// globals are flags shared by every subcommand.
type globals struct {
	cfg       *config.Config
	logLevel  string
	dev       bool
	serverURL string
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   "shellhost",
		Short: "Host shells behind windows and attach displays to them",
		Long: `shellhost runs shell processes on behalf of windows. Each window has a
channel; a display attaches to the channel over a WebSocket, asks for shells,
sends them input and renders their output. Shells can be moved between
windows without restarting.`,
		Version: version,
		// Errors are reported by us; usage only for bad invocations.
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Logging.Level = g.logLevel
			}
			if cmd.Flags().Changed("dev") {
				cfg.Logging.Development = g.dev
			}
			if cmd.Flags().Changed("server") {
				cfg.Remote.ServerURL = g.serverURL
			}
			g.cfg = cfg
			return nil
		},
	}
	cmd.SetVersionTemplate(`{{printf "shellhost version %s\n" .Version}}`)

	flags := cmd.PersistentFlags()
	flags.StringVar(&g.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.BoolVar(&g.dev, "dev", false, "Human readable debug logs")
	flags.StringVar(&g.serverURL, "server", "http://localhost:8000", "Server URL for client commands")

	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newAttachCmd(g))
	cmd.AddCommand(newWindowsCmd(g))
	return cmd
}
