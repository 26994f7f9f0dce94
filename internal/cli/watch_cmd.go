package cli

import (
	"context"
	"time"

	"github.com/emgroup/sitesync/internal/cli/formatter"
	"github.com/emgroup/sitesync/internal/workspace"
	"github.com/spf13/cobra"
)

func newWatchCmd(app *App) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print a line whenever another participant changes the workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.session(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				if duration > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, duration)
					defer cancel()
				}

				changes := make(chan string, 16)
				stop := ws.Watch(func(name string) {
					select {
					case changes <- name:
					default:
					}
				})
				defer stop()

				printf(cmd, "Watching %s as %s\n", ws.ProjectID(), ws.Identity().Name)
				for {
					select {
					case <-ctx.Done():
						return nil
					case name := <-changes:
						printf(cmd, "%s %s changed\n", formatter.Dim(time.Now().Format(time.TimeOnly)), name)
					}
				}
			})
		},
	}
	cmd.Flags().DurationVar(&duration, "for", 0, "Stop after this long (default: until interrupted)")
	return cmd
}
