// Package cli implements slackdbctl, a command-line client for the slackdb
// HTTP API.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

type options struct {
	url     string
	server  string
	channel string
	output  string
	dial    dialFunc // tests route requests to an in-memory listener
}

// NewRootCommand builds the command tree writing to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	return newRootCommand(out, &options{})
}

func newRootCommand(out io.Writer, opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "slackdbctl",
		Short:         "Command-line client for slackdb",
		Long:          "slackdbctl reads and writes slackdb keys and manages registered channels through the slackdb HTTP API.",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.url, "url", envOr("SLACKDB_URL", "http://127.0.0.1:8080"), "slackdb API base URL")
	pf.StringVarP(&opts.server, "server", "s", os.Getenv("SLACKDB_SERVER"), "logical server name")
	pf.StringVarP(&opts.channel, "channel", "c", "", "channel name")
	pf.StringVarP(&opts.output, "output", "o", "json", "output format: json or yaml")

	root.AddCommand(
		newCreateCmd(opts),
		newReadCmd(opts),
		newUpdateCmd(opts),
		newAppendCmd(opts),
		newDeleteCmd(opts),
		newChannelsCmd(opts),
		newServersCmd(opts),
	)
	return root
}

// Execute runs the CLI against os.Args.
func Execute() {
	_ = godotenv.Load(".env")
	if err := NewRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (o *options) requireServer() error {
	if o.server == "" {
		return fmt.Errorf("--server is required (or SLACKDB_SERVER)")
	}
	return nil
}

func (o *options) requireChannel() error {
	if err := o.requireServer(); err != nil {
		return err
	}
	if o.channel == "" {
		return fmt.Errorf("--channel is required")
	}
	return nil
}
