package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `sitesync is the shared workspace of a construction project: site updates, action items, Q&A threads, site photos and a document index.

Working rules:
1) Orient with whoami, then get_project. Every tool takes an optional project_id.
2) Writes return at once and are saved in the background. A record you add appears in list_* once the store confirms it, usually within a second.
3) Ids are numbers for records and strings for document files and folders. Use the ids from list_* results.
4) If a save fails the change is not rolled back; list_alerts shows the failure.
5) Deleting something already gone is not an error.
6) Posting updates, adding photos, deleting anything and editing the project overview need the admin role.

Docs:
- sitesync://docs/index
- sitesync://docs/sync
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "sitesync://docs/index",
		Name:        "docs_index",
		Title:       "sitesync tools",
		Description: "Which tool to use for each part of the workspace.",
		Content: `# sitesync tools

| Area | Read | Write |
|---|---|---|
| Project | list_projects, get_project | update_project_details (admin) |
| Updates | list_updates | post_update, edit_update, delete_update (admin) |
| Actions | list_actions | add_action, set_action_status, delete_action (admin) |
| Q&A | list_questions, get_question | ask_question, reply_to_question, delete_question (admin) |
| Photos | list_photos | add_photo, delete_photo (admin) |
| Documents | list_documents | add_document, add_folder (admin), delete_document (admin) |
| Alerts | list_alerts | |

Updates, questions and photos are listed newest first. Actions keep the order they were created in. New document files go to the top of their folder.

While a collection has never been written, list_* shows a set of sample records. They disappear as soon as the first real record is saved and cannot be edited or deleted.
`,
	},
	{
		URI:         "sitesync://docs/sync",
		Name:        "docs_sync",
		Title:       "How changes are saved",
		Description: "Background saves, alerts and the known race windows.",
		Content: `# How changes are saved

Each participant has a live copy of the project that the store refreshes after every change by anyone.

- Adds, edits and deletes are sent in the background. The tool returns before the store confirms.
- A failed save raises an alert (list_alerts). Nothing is retried or rolled back.
- Editing or deleting a record that has not been confirmed yet is ignored.
- Replying to a thread rewrites its whole reply list. Two replies sent to the same thread at the same moment can lose one of them.
- The document index is saved as a whole. Unless the server runs with versioned documents, two people changing it at the same moment can lose one change.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		doc := doc

		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
