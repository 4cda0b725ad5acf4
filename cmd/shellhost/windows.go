package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/shellhost/internal/api/client"
	api "github.com/GriffinCanCode/shellhost/internal/api/http"
	"github.com/GriffinCanCode/shellhost/internal/domain/window"
	"github.com/GriffinCanCode/shellhost/internal/shared/id"
)

func newWindowsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "windows",
		Aliases: []string{"win"},
		Short:   "Manage windows on a running server",
	}

	newClient := func() *client.Client {
		return client.New(client.Options{BaseURL: g.cfg.Remote.ServerURL, RetryCount: 2})
	}

	var (
		width, height int
		profile       string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Open a window and print its channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := newClient().CreateWindow(cmd.Context(), api.CreateWindowRequest{
				Width:   width,
				Height:  height,
				Profile: profile,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Channel)
			return nil
		},
	}
	create.Flags().IntVar(&width, "width", 0, "Window width")
	create.Flags().IntVar(&height, "height", 0, "Window height")
	create.Flags().StringVar(&profile, "profile", "", "Shell profile")

	list := &cobra.Command{
		Use:   "list",
		Short: "List open windows and their shells",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			windows, err := newClient().ListWindows(cmd.Context())
			if err != nil {
				return err
			}
			printWindows(cmd.OutOrStdout(), windows)
			return nil
		},
	}

	closeCmd := &cobra.Command{
		Use:   "close <channel>",
		Short: "Close a window and kill its shells",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().CloseWindow(cmd.Context(), args[0])
		},
	}

	move := &cobra.Command{
		Use:   "move <from> <ref> <to>",
		Short: "Move a shell to another window",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient().MoveShell(cmd.Context(), args[0], id.RemoteRef(args[1]), args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "shell %s (pid %d) moved %s -> %s\n",
				resp.Shell.Ref, resp.Shell.Pid, resp.From, resp.To)
			return nil
		},
	}

	cmd.AddCommand(create, list, closeCmd, move)
	return cmd
}

func printWindows(out io.Writer, windows []window.WindowInfo) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tPROFILE\tSIZE\tSHELLS\tPENDING\tAGE")
	for _, w := range windows {
		fmt.Fprintf(tw, "%s\t%s\t%dx%d\t%d\t%d\t%s\n",
			w.Channel, w.Profile, w.Size.Width, w.Size.Height,
			len(w.Shells), w.Pending, time.Since(w.CreatedAt).Round(time.Second))
	}
	_ = tw.Flush()
}
