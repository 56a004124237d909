package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

// runAndPrint prints the reply, including the body of a partial failure,
// and returns any error.
func runAndPrint(cmd *cobra.Command, o *options, method, path string, body any) error {
	out, err := newClient(o).do(method, path, body)
	var ae *apiError
	if errors.As(err, &ae) && ae.Kind == "partial_failure" {
		if rerr := render(cmd.OutOrStdout(), o.output, ae.Body); rerr != nil {
			return rerr
		}
		return err
	}
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return render(cmd.OutOrStdout(), o.output, out)
}

func newCreateCmd(o *options) *cobra.Command {
	var (
		typ       string
		modifiers []string
	)
	cmd := &cobra.Command{
		Use:   "create <phrase> [value...]",
		Short: "Create a key with optional initial values",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.requireChannel(); err != nil {
				return err
			}
			values := args[1:]
			if values == nil {
				values = []string{}
			}
			body := map[string]any{
				"phrase":    args[0],
				"type":      typ,
				"modifiers": modifiers,
				"values":    values,
			}
			return runAndPrint(cmd, o, "POST", keyPath(o.server, o.channel), body)
		},
	}
	cmd.Flags().StringVarP(&typ, "type", "t", "singleBack", "key type: voting, multiple, singleFront or singleBack")
	cmd.Flags().StringSliceVarP(&modifiers, "modifier", "m", nil, "modifier: constant or undeletable (repeatable)")
	return cmd
}

func newReadCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "read <phrase>",
		Short: "Read a key's value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.requireChannel(); err != nil {
				return err
			}
			return runAndPrint(cmd, o, "GET", keyPath(o.server, o.channel, args[0]), nil)
		},
	}
}

func newUpdateCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "update <phrase> <value...>",
		Short: "Replace a key's values",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.requireChannel(); err != nil {
				return err
			}
			return runAndPrint(cmd, o, "PUT", keyPath(o.server, o.channel, args[0]), map[string]any{"values": args[1:]})
		},
	}
}

func newAppendCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "append <phrase> <value...>",
		Short: "Append values to a key",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.requireChannel(); err != nil {
				return err
			}
			return runAndPrint(cmd, o, "POST", keyPath(o.server, o.channel, args[0], "values"), map[string]any{"values": args[1:]})
		},
	}
}

func newDeleteCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <phrase>",
		Short: "Delete a key and its thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.requireChannel(); err != nil {
				return err
			}
			return runAndPrint(cmd, o, "DELETE", keyPath(o.server, o.channel, args[0]), nil)
		},
	}
}
