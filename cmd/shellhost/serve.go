package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/shellhost/internal/infrastructure/server"
)

func newServeCmd(g *globals) *cobra.Command {
	var (
		host     string
		port     string
		profiles string
		noPTY    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the window server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := g.cfg
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("profiles") {
				cfg.Shell.ProfilesPath = profiles
			}
			if noPTY {
				cfg.Shell.PTY = false
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			srv, err := server.New(cfg, server.Options{})
			if err != nil {
				return err
			}
			defer srv.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "Listen host")
	cmd.Flags().StringVarP(&port, "port", "p", "8000", "Listen port")
	cmd.Flags().StringVar(&profiles, "profiles", "", "Shell profile file (.yaml or .toml)")
	cmd.Flags().BoolVar(&noPTY, "no-pty", false, "Run the default shell on pipes instead of a pseudo-terminal")
	return cmd
}
