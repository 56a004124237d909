package cli

import (
	"net/url"

	"github.com/spf13/cobra"
)

func channelsPath(server string, rest ...string) string {
	p := "/v1/" + url.PathEscape(server) + "/channels"
	for _, r := range rest {
		p += "/" + url.PathEscape(r)
	}
	return p
}

func newChannelsCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Manage a server's registered channels",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Show the channel registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := o.requireServer(); err != nil {
				return err
			}
			return runAndPrint(cmd, o, "GET", channelsPath(o.server), nil)
		},
	}

	var private bool
	register := &cobra.Command{
		Use:   "register <name>",
		Short: "Create a channel and register it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.requireServer(); err != nil {
				return err
			}
			return runAndPrint(cmd, o, "POST", channelsPath(o.server), map[string]any{"name": args[0], "private": private})
		},
	}
	register.Flags().BoolVar(&private, "private", false, "create a private channel")

	include := &cobra.Command{
		Use:   "include <name>",
		Short: "Register an existing channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.requireServer(); err != nil {
				return err
			}
			return runAndPrint(cmd, o, "POST", channelsPath(o.server), map[string]any{"name": args[0], "existing": true})
		},
	}

	archive := &cobra.Command{
		Use:   "archive <name>",
		Short: "Archive a channel and drop it from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.requireServer(); err != nil {
				return err
			}
			return runAndPrint(cmd, o, "DELETE", channelsPath(o.server, args[0]), nil)
		},
	}

	cmd.AddCommand(list, register, include, archive)
	return cmd
}

func newServersCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List the logical servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAndPrint(cmd, o, "GET", "/v1/servers", nil)
		},
	}
}
