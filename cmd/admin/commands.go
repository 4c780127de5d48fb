package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"queryforum/backend/internal/api/handler"
	"queryforum/backend/internal/hostel"
	"queryforum/backend/internal/models"
	"queryforum/backend/internal/storage"

	"github.com/spf13/cobra"
)

type openFunc func(ctx context.Context) (*adminApp, error)

func newRootCommand(open openFunc) *cobra.Command {
	var adminID string

	root := &cobra.Command{
		Use:           "admin",
		Short:         "Query forum administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&adminID, "admin-id", "cli-admin", "user id recorded as the acting admin")

	session := func() *models.Session {
		return &models.Session{UserID: adminID, IsAdmin: true}
	}

	// withApp opens the app for one command and closes it afterwards.
	withApp := func(run func(cmd *cobra.Command, app *adminApp, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			app, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()
			return run(cmd, app, args)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database tables",
			Args:  cobra.NoArgs,
			RunE: withApp(func(cmd *cobra.Command, app *adminApp, _ []string) error {
				if err := storage.Migrate(app.store.DB); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations complete")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "set-status <complaint-id> <open|in_progress|resolved>",
			Short: "Change the status of a complaint",
			Args:  cobra.ExactArgs(2),
			RunE: withApp(func(cmd *cobra.Command, app *adminApp, args []string) error {
				view, err := app.complaints.SetStatus(cmd.Context(), session(), args[0], models.ComplaintStatus(args[1]))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "complaint %s is now %s\n", view.ID, view.Status)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "reply <complaint-id> <text>...",
			Short: "Post an admin reply to a complaint",
			Args:  cobra.MinimumNArgs(2),
			RunE: withApp(func(cmd *cobra.Command, app *adminApp, args []string) error {
				reply, err := app.complaints.PostReply(cmd.Context(), session(), args[0], strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reply %s posted on complaint %s\n", reply.ID, reply.ComplaintID)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Print complaint counts",
			Args:  cobra.NoArgs,
			RunE: withApp(func(cmd *cobra.Command, app *adminApp, _ []string) error {
				stats, err := app.stats.Stats(cmd.Context(), session())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "total\t%d\n", stats.Total)
				fmt.Fprintf(w, "open\t%d\n", stats.Open)
				fmt.Fprintf(w, "in_progress\t%d\n", stats.InProgress)
				fmt.Fprintf(w, "resolved\t%d\n", stats.Resolved)
				for _, c := range stats.ByCategory {
					fmt.Fprintf(w, "  %s\t%d\n", c.Category, c.Count)
				}
				return w.Flush()
			}),
		},
		issueTokenCommand(open),
		lookupHostelCommand(),
	)
	return root
}

func issueTokenCommand(open openFunc) *cobra.Command {
	var admin bool
	cmd := &cobra.Command{
		Use:   "issue-token <user-id>",
		Short: "Sign a session token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			auth := handler.NewAuthenticator(app.cfg.JWTSecret, app.cfg.JWTIssuer, app.cfg.TokenTTL)
			token, err := auth.IssueToken(args[0], admin)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "grant admin rights")
	return cmd
}

func lookupHostelCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "lookup-hostel <registration-number>",
		Short: "Show the hostel a registration number maps to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			directory := hostel.Default()
			if file != "" {
				var err error
				if directory, err = hostel.Load(file); err != nil {
					return err
				}
			}
			h, ok := directory.HostelFor(args[0])
			if !ok {
				return fmt.Errorf("registration number %q is not in the hostel directory", hostel.NormalizeRegistration(args[0]))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", hostel.NormalizeRegistration(args[0]), h)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "directory", "", "hostel directory YAML file (defaults to the built-in one)")
	return cmd
}
