package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/emgroup/sitesync/internal/cli/formatter"
	"github.com/emgroup/sitesync/internal/domain/document"
	"github.com/emgroup/sitesync/internal/workspace"
	"github.com/spf13/cobra"
)

func newDocsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "docs",
		Aliases: []string{"documents"},
		Short:   "Project documents",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.session(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				tree := ws.Documents()
				if len(tree) == 0 {
					printf(cmd, "No folders.\n")
					return nil
				}
				printf(cmd, "%s", formatter.FormatDocuments(tree))
				return nil
			})
		},
	}

	upload := &cobra.Command{
		Use:   "upload <folder-id> <file>",
		Short: "Upload a document into a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.session(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				file, err := ws.UploadDocument(ctx, args[0], filepath.Base(args[1]), f)
				if err != nil {
					return err
				}
				printf(cmd, "Added %s (%s) as %s\n", file.Name, humanize.Bytes(uint64(file.Size)), file.ID)
				return nil
			})
		},
	}

	var name string
	var size int64
	link := &cobra.Command{
		Use:   "link <folder-id> <url>",
		Short: "Add a document that is already hosted elsewhere",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				name = filepath.Base(args[1])
			}
			return app.session(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				file, err := ws.AddFile(ctx, args[0], document.File{
					Name: name,
					Type: document.TypeFromName(name),
					Size: size,
					URL:  args[1],
				})
				if err != nil {
					return err
				}
				printf(cmd, "Added %s as %s\n", file.Name, file.ID)
				return nil
			})
		},
	}
	link.Flags().StringVar(&name, "name", "", "Display name (defaults to the URL's last element)")
	link.Flags().Int64Var(&size, "size", 0, "Size in bytes")

	rm := &cobra.Command{
		Use:   "rm <file-id>",
		Short: "Delete a document (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.adminSession(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				if err := ws.DeleteFile(ctx, args[0]); err != nil {
					return err
				}
				printf(cmd, "Deleted document %s\n", args[0])
				return nil
			})
		},
	}

	mkdir := &cobra.Command{
		Use:   "mkdir <name>",
		Short: "Add a folder (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.adminSession(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
				folder, err := ws.AddFolder(ctx, args[0])
				if err != nil {
					return err
				}
				printf(cmd, "Added folder %s as %s\n", folder.Name, folder.ID)
				return nil
			})
		},
	}

	cmd.AddCommand(upload, link, rm, mkdir)
	return cmd
}
