package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/emgroup/sitesync/internal/cli/formatter"
	"github.com/emgroup/sitesync/internal/domain/record"
	"github.com/emgroup/sitesync/internal/workspace"
	"github.com/spf13/cobra"
)

func newUpdatesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "updates",
		Aliases: []string{"update"},
		Short:   "Site updates",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.session(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				printf(cmd, "%s", formatter.FormatUpdates(ws.Updates()))
				return nil
			})
		},
	}

	var tag string
	post := &cobra.Command{
		Use:   "post <content>",
		Short: "Post an update (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.adminSession(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				id, err := ws.AddUpdate(ctx, args[0], tag)
				if err != nil {
					return err
				}
				printf(cmd, "Posted update %d\n", id)
				return nil
			})
		},
	}
	post.Flags().StringVar(&tag, "tag", "General", "Update tag")

	edit := &cobra.Command{
		Use:   "edit <id> <content>",
		Short: "Replace the content of an update (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return app.adminSession(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				if err := ws.EditUpdate(ctx, id, args[1]); err != nil {
					return err
				}
				printf(cmd, "Edited update %d\n", id)
				return nil
			})
		},
	}

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an update (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return app.adminSession(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				if err := ws.DeleteUpdate(ctx, id); err != nil {
					return err
				}
				printf(cmd, "Deleted update %d\n", id)
				return nil
			})
		},
	}

	cmd.AddCommand(post, edit, rm)
	return cmd
}

func newActionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "actions",
		Aliases: []string{"action"},
		Short:   "Action items",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.session(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				printf(cmd, "%s", formatter.FormatActions(ws.Actions()))
				return nil
			})
		},
	}

	var assignedTo, due string
	add := &cobra.Command{
		Use:   "add <task>",
		Short: "Add an action item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.session(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				id, err := ws.AddAction(ctx, args[0], assignedTo, due)
				if err != nil {
					return err
				}
				printf(cmd, "Added action %d\n", id)
				return nil
			})
		},
	}
	add.Flags().StringVar(&assignedTo, "assign", "", "Who the action is assigned to")
	add.Flags().StringVar(&due, "due", "", "Due date, e.g. \"20 Jan 2026\"")
	_ = add.MarkFlagRequired("assign")

	setStatus := func(use, short string, status record.ActionStatus) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return app.session(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
					if err := ws.UpdateActionStatus(ctx, id, status); err != nil {
						return err
					}
					printf(cmd, "Action %d is %s\n", id, status)
					return nil
				})
			},
		}
	}

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an action item (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return app.adminSession(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				if err := ws.DeleteAction(ctx, id); err != nil {
					return err
				}
				printf(cmd, "Deleted action %d\n", id)
				return nil
			})
		},
	}

	cmd.AddCommand(
		add,
		setStatus("close", "Mark an action closed", record.ActionClosed),
		setStatus("reopen", "Mark an action open again", record.ActionOpen),
		rm,
	)
	return cmd
}

func newQuestionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "questions",
		Aliases: []string{"question", "qa"},
		Short:   "Question threads",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.session(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				printf(cmd, "%s", formatter.FormatQuestions(ws.Questions()))
				return nil
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a thread with its replies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return app.session(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				q, ok := ws.Question(id)
				if !ok {
					return fmt.Errorf("%w: %d", record.ErrRecordNotFound, id)
				}
				printf(cmd, "%s", formatter.FormatThread(q))
				return nil
			})
		},
	}

	var category, background string
	ask := &cobra.Command{
		Use:   "ask <title>",
		Short: "Open a question thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.session(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				id, err := ws.AddQuestion(ctx, args[0], category, background)
				if err != nil {
					return err
				}
				printf(cmd, "Opened question %d\n", id)
				return nil
			})
		},
	}
	ask.Flags().StringVar(&category, "category", "General", "Question category, e.g. RFI")
	ask.Flags().StringVar(&background, "context", "", "Background for the question")

	reply := &cobra.Command{
		Use:   "reply <id> <content>",
		Short: "Reply to a thread",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return app.session(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				r, err := ws.AddReply(ctx, id, args[1])
				if err != nil {
					return err
				}
				printf(cmd, "Replied to question %d as %s\n", id, r.Author)
				return nil
			})
		},
	}

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a thread (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return app.adminSession(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				if err := ws.DeleteQuestion(ctx, id); err != nil {
					return err
				}
				printf(cmd, "Deleted question %d\n", id)
				return nil
			})
		},
	}

	cmd.AddCommand(show, ask, reply, rm)
	return cmd
}

func newPhotosCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "photos",
		Aliases: []string{"photo"},
		Short:   "Site photos",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.session(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				printf(cmd, "%s", formatter.FormatPhotos(ws.Photos()))
				return nil
			})
		},
	}

	var desc, tag string
	add := &cobra.Command{
		Use:   "add <url>",
		Short: "Add a photo by URL (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.adminSession(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				id, err := ws.AddPhoto(ctx, args[0], desc, tag)
				if err != nil {
					return err
				}
				printf(cmd, "Added photo %d\n", id)
				return nil
			})
		},
	}

	upload := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a photo (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.adminSession(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				id, err := ws.UploadPhoto(ctx, filepath.Base(args[0]), f, desc, tag)
				if err != nil {
					return err
				}
				printf(cmd, "Uploaded photo %d\n", id)
				return nil
			})
		},
	}
	for _, c := range []*cobra.Command{add, upload} {
		c.Flags().StringVar(&desc, "desc", "", "Caption")
		c.Flags().StringVar(&tag, "tag", "Progress", "Photo tag")
	}

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a photo (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return app.adminSession(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				if err := ws.DeletePhoto(ctx, id); err != nil {
					return err
				}
				printf(cmd, "Deleted photo %d\n", id)
				return nil
			})
		},
	}

	cmd.AddCommand(add, upload, rm)
	return cmd
}
