package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/AgentOS/terminal/internal/domain/session"
)

// Options holds the flags shared by every command
type Options struct {
	Server     string
	User       string
	Token      string
	UserHeader string
	Timeout    time.Duration
	Retries    int
}

func (o *Options) client() (*Client, error) {
	return NewClient(ClientConfig{
		Server:     o.Server,
		User:       o.User,
		Token:      o.Token,
		UserHeader: o.UserHeader,
		Timeout:    o.Timeout,
		MaxRetries: o.Retries,
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewRootCmd creates the termctl root command
func NewRootCmd() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "termctl",
		Short: "Manage terminal sessions",
		Long: `termctl drives the terminal service's session API.

Available subcommands:
  create      Create a session
  list        List your sessions
  info        Show a session
  history     Print a session's history
  destroy     Destroy a session
  attach      Stream a session and send commands from stdin
  health      Check the service

Examples:
  termctl --user alice create
  termctl --user alice attach <session-id>
  termctl --user alice history <session-id>`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.Server, "server", envOr("TERMCTL_SERVER", "http://localhost:8000"), "Service base URL")
	flags.StringVar(&opts.User, "user", envOr("TERMCTL_USER", ""), "Caller identity")
	flags.StringVar(&opts.Token, "token", envOr("TERMCTL_TOKEN", ""), "Shared gateway token")
	flags.StringVar(&opts.UserHeader, "user-header", "X-User-ID", "Header carrying the caller identity")
	flags.DurationVar(&opts.Timeout, "timeout", 30*time.Second, "Request timeout")
	flags.IntVar(&opts.Retries, "retries", 3, "Retries for failed idempotent requests")

	// Add subcommands
	cmd.AddCommand(newCreateCmd(opts))
	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newInfoCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	cmd.AddCommand(newDestroyCmd(opts))
	cmd.AddCommand(newAttachCmd(opts))
	cmd.AddCommand(newHealthCmd(opts))

	return cmd
}

func newCreateCmd(opts *Options) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			created, err := c.Create(cmd.Context())
			if err != nil {
				return err
			}
			if quiet {
				fmt.Fprintln(cmd.OutOrStdout(), created.SessionID)
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Session:\t%s\n", created.SessionID)
			fmt.Fprintf(w, "Mode:\t%s\n", created.Mode)
			fmt.Fprintf(w, "Base dir:\t%s\n", created.BaseDir)
			return w.Flush()
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only the session id")
	return cmd
}

func newListCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ids, err := c.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func newInfoCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "info <session-id>",
		Short: "Show a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			info, err := c.Info(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Session:\t%s\n", info.ID)
			fmt.Fprintf(w, "Owner:\t%s\n", info.OwnerID)
			fmt.Fprintf(w, "Mode:\t%s\n", info.Mode)
			fmt.Fprintf(w, "Base dir:\t%s\n", info.BaseDir)
			fmt.Fprintf(w, "Current dir:\t%s\n", info.CurrentDir)
			if info.Cols > 0 {
				fmt.Fprintf(w, "Size:\t%dx%d\n", info.Cols, info.Rows)
			}
			fmt.Fprintf(w, "Created:\t%s\n", info.CreatedAt.Format(time.RFC3339))
			fmt.Fprintf(w, "Last activity:\t%s\n", info.LastActivity.Format(time.RFC3339))
			return w.Flush()
		},
	}
}

func newHistoryCmd(opts *Options) *cobra.Command {
	var commandsOnly bool
	cmd := &cobra.Command{
		Use:   "history <session-id>",
		Short: "Print a session's history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			entries, err := c.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				switch {
				case e.Type == session.EntryCommand:
					fmt.Fprintf(out, "%s $ %s\n", e.Timestamp.Format(time.TimeOnly), e.Data)
				case !commandsOnly:
					fmt.Fprint(out, e.Data)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&commandsOnly, "commands", false, "Print commands only")
	return cmd
}

func newDestroyCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "destroy <session-id>",
		Short: "Destroy a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.Destroy(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "destroyed %s\n", args[0])
			return nil
		},
	}
}

func newAttachCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <session-id>",
		Short: "Stream a session and send commands from stdin",
		Long: `Attach binds to an existing session. Every line read from stdin is sent
as a command; output is written to stdout and errors to stderr. Detaching
(EOF or Ctrl-C) leaves the session running.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			err = Attach(cmd.Context(), c.StreamURL(args[0]), c.StreamHeaders(),
				cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
			var exit *ExitError
			if errors.As(err, &exit) {
				fmt.Fprintf(cmd.ErrOrStderr(), "\n[session exited with code %d]\n", exit.Code)
				if exit.Code == 0 {
					return nil
				}
			}
			return err
		},
	}
}

func newHealthCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			h, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status=%s sessions=%d websocket=%t\n", h.Status, h.Sessions, h.WSSupport)
			return nil
		},
	}
}
