// Package cli is the operator command line over a workspace session.
package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/emgroup/sitesync/internal/auth"
	"github.com/emgroup/sitesync/internal/cli/formatter"
	"github.com/emgroup/sitesync/internal/workspace"
	"github.com/spf13/cobra"
)

// ErrAdminOnly is returned when a stakeholder runs an admin command.
var ErrAdminOnly = errors.New("only the project admin can do this")

// Sessions opens workspace sessions for a participant.
type Sessions interface {
	Identify(email string) (auth.Identity, error)
	OpenWorkspace(ctx context.Context, projectID string, who auth.Identity) (*workspace.Workspace, error)
}

// App holds what the commands need.
type App struct {
	Sessions Sessions

	projectID string
	email     string
}

// NewRootCmd creates the top-level "sitesync" command.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "sitesync",
		Short:         "Project workspace for updates, actions, questions, photos and documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&app.projectID, "project", "p", "", "Project id (defaults to the configured project)")
	root.PersistentFlags().StringVar(&app.email, "as", "", "Email to act as (defaults to SITESYNC_USER_EMAIL)")

	root.AddCommand(
		newWhoAmICmd(app),
		newProjectCmd(app),
		newUpdatesCmd(app),
		newActionsCmd(app),
		newQuestionsCmd(app),
		newPhotosCmd(app),
		newDocsCmd(app),
		newAlertsCmd(app),
		newWatchCmd(app),
	)
	return root
}

// session opens a workspace for the selected project and participant, runs
// fn, waits for background writes and reports any that failed.
func (app *App) session(cmd *cobra.Command, fn func(ctx context.Context, ws *workspace.Workspace) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	who, err := app.Sessions.Identify(app.email)
	if err != nil {
		return err
	}
	ws, err := app.Sessions.OpenWorkspace(ctx, app.projectID, who)
	if err != nil {
		return fmt.Errorf("opening workspace: %w", err)
	}
	defer ws.Close()

	if err := fn(ctx, ws); err != nil {
		return err
	}
	ws.Wait()
	if alerts := ws.Alerts(); len(alerts) > 0 {
		fmt.Fprint(cmd.ErrOrStderr(), formatter.FormatAlerts(alerts))
		return fmt.Errorf("%d background write(s) failed", len(alerts))
	}
	return nil
}

// adminSession is session restricted to the project admin.
func (app *App) adminSession(cmd *cobra.Command, fn func(ctx context.Context, ws *workspace.Workspace) error) error {
	return app.session(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
		if !ws.Identity().IsAdmin() {
			return ErrAdminOnly
		}
		return fn(ctx, ws)
	})
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id, nil
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

func newWhoAmICmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in participant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.session(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				who := ws.Identity()
				printf(cmd, "%s <%s> %s on %s\n", who.Name, who.Email, formatter.Dim(string(who.Role)), ws.ProjectID())
				return nil
			})
		},
	}
}

func newAlertsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "alerts",
		Short: "Show failed background writes from this session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.session(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				alerts := ws.Alerts()
				if len(alerts) == 0 {
					printf(cmd, "No alerts.\n")
					return nil
				}
				printf(cmd, "%s", formatter.FormatAlerts(alerts))
				return nil
			})
		},
	}
}
