package cli

import (
	"context"

	"github.com/emgroup/sitesync/internal/cli/formatter"
	"github.com/emgroup/sitesync/internal/domain/project"
	"github.com/emgroup/sitesync/internal/workspace"
	"github.com/spf13/cobra"
)

func newProjectCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"projects"},
		Short:   "Show and edit projects",
	}
	cmd.AddCommand(
		newProjectListCmd(app),
		newProjectShowCmd(app),
		newProjectEditCmd(app),
	)
	return cmd
}

func newProjectListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.session(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				projects, err := ws.Projects(ctx)
				if err != nil {
					return err
				}
				if len(projects) == 0 {
					printf(cmd, "No projects found.\n")
					return nil
				}
				printf(cmd, "%s", formatter.FormatProjects(projects, ws.ProjectID()))
				return nil
			})
		},
	}
}

func newProjectShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the project overview",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.session(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				p, err := ws.Project(ctx)
				if err != nil {
					return err
				}
				printf(cmd, "%s", formatter.FormatProject(*p))
				return nil
			})
		},
	}
}

func newProjectEditCmd(app *App) *cobra.Command {
	var name, status, location, summary, focus, coordination, image string

	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Edit the project overview (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var details project.Details
			flags := cmd.Flags()
			set := func(flag string, value *string, dst **string) {
				if flags.Changed(flag) {
					*dst = value
				}
			}
			set("name", &name, &details.Name)
			set("status", &status, &details.Status)
			set("location", &location, &details.Location)
			set("summary", &summary, &details.Summary)
			set("focus", &focus, &details.Focus)
			set("coordination", &coordination, &details.Coordination)
			set("image", &image, &details.Image)

			return app.adminSession(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				p, err := ws.UpdateProjectDetails(ctx, details)
				if err != nil {
					return err
				}
				printf(cmd, "Updated project %s\n", p.Name)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Project name")
	cmd.Flags().StringVar(&status, "status", "", "Project status")
	cmd.Flags().StringVar(&location, "location", "", "Site location")
	cmd.Flags().StringVar(&summary, "summary", "", "Summary")
	cmd.Flags().StringVar(&focus, "focus", "", "Current focus")
	cmd.Flags().StringVar(&coordination, "coordination", "", "Coordination notes")
	cmd.Flags().StringVar(&image, "image", "", "Cover image URL")
	return cmd
}
