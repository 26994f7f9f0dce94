package mcp

import (
	"context"
	"strings"

	"github.com/emgroup/sitesync/internal/auth"
	"github.com/emgroup/sitesync/internal/domain/document"
	"github.com/emgroup/sitesync/internal/workspace"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// toolHandlers resolves the caller's workspace and forwards to it.
type toolHandlers struct {
	sessions       *Sessions
	defaultProject string
}

func (h *toolHandlers) session(ctx context.Context, projectID string) (*workspace.Workspace, auth.Identity, error) {
	who, ok := identityFrom(ctx)
	if !ok {
		return nil, auth.Identity{}, mapError(ErrUnauthenticated)
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		projectID = h.defaultProject
	}
	ws, err := h.sessions.Get(ctx, projectID, who)
	if err != nil {
		return nil, auth.Identity{}, mapError(err)
	}
	return ws, who, nil
}

func (h *toolHandlers) adminSession(ctx context.Context, projectID string) (*workspace.Workspace, error) {
	ws, who, err := h.session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !who.IsAdmin() {
		return nil, mapError(ErrForbidden)
	}
	return ws, nil
}

// registerTools adds every workspace tool to server.
func registerTools(server *sdkmcp.Server, h *toolHandlers) {
	// Projects
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "whoami", Description: "Show the signed-in participant and the default project"}, h.whoami)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "list_projects", Description: "List every construction project"}, h.listProjects)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "get_project", Description: "Get the details of a project"}, h.getProject)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "update_project_details", Description: "Edit project overview fields (admin)"}, h.updateProjectDetails)

	// Updates
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "list_updates", Description: "List site updates, newest first"}, h.listUpdates)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "post_update", Description: "Post a site update (admin)"}, h.postUpdate)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "edit_update", Description: "Replace the text of a site update (admin)"}, h.editUpdate)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "delete_update", Description: "Delete a site update (admin)"}, h.deleteUpdate)

	// Actions
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "list_actions", Description: "List action items in creation order"}, h.listActions)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "add_action", Description: "Create an open action item"}, h.addAction)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "set_action_status", Description: "Open or close an action item"}, h.setActionStatus)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "delete_action", Description: "Delete an action item (admin)"}, h.deleteAction)

	// Q&A
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "list_questions", Description: "List Q&A threads, newest first"}, h.listQuestions)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "get_question", Description: "Get one Q&A thread with its replies"}, h.getQuestion)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "ask_question", Description: "Open a new Q&A thread"}, h.askQuestion)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "reply_to_question", Description: "Reply to a thread and mark it answered"}, h.replyToQuestion)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "delete_question", Description: "Delete a Q&A thread (admin)"}, h.deleteQuestion)

	// Photos
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "list_photos", Description: "List site photos, newest first"}, h.listPhotos)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "add_photo", Description: "Add a site photo by image URL (admin)"}, h.addPhoto)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "delete_photo", Description: "Delete a site photo (admin)"}, h.deletePhoto)

	// Documents
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "list_documents", Description: "List document folders and their files"}, h.listDocuments)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "add_document", Description: "Add a file entry at the top of a folder"}, h.addDocument)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "delete_document", Description: "Remove a file entry (admin)"}, h.deleteDocument)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "add_folder", Description: "Create an empty document folder (admin)"}, h.addFolder)

	// Alerts
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "list_alerts", Description: "List recent background save failures for this session"}, h.listAlerts)
}

func (h *toolHandlers) whoami(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectParams) (*sdkmcp.CallToolResult, WhoAmIResult, error) {
	ws, who, err := h.session(ctx, in.ProjectID)
	if err != nil {
		return nil, WhoAmIResult{}, err
	}
	return nil, WhoAmIResult{Identity: who, Project: ws.ProjectID()}, nil
}

func (h *toolHandlers) listProjects(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectParams) (*sdkmcp.CallToolResult, ProjectsResult, error) {
	ws, _, err := h.session(ctx, in.ProjectID)
	if err != nil {
		return nil, ProjectsResult{}, err
	}
	projects, err := ws.Projects(ctx)
	if err != nil {
		return nil, ProjectsResult{}, mapError(err)
	}
	return nil, ProjectsResult{Projects: orEmpty(projects)}, nil
}

func (h *toolHandlers) getProject(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectParams) (*sdkmcp.CallToolResult, ProjectResult, error) {
	ws, _, err := h.session(ctx, in.ProjectID)
	if err != nil {
		return nil, ProjectResult{}, err
	}
	proj, err := ws.Project(ctx)
	if err != nil {
		return nil, ProjectResult{}, mapError(err)
	}
	return nil, ProjectResult{Project: *proj}, nil
}

func (h *toolHandlers) updateProjectDetails(ctx context.Context, _ *sdkmcp.CallToolRequest, in UpdateProjectDetailsParams) (*sdkmcp.CallToolResult, ProjectResult, error) {
	ws, err := h.adminSession(ctx, in.ProjectID)
	if err != nil {
		return nil, ProjectResult{}, err
	}
	proj, err := ws.UpdateProjectDetails(ctx, in.details())
	if err != nil {
		return nil, ProjectResult{}, mapError(err)
	}
	return nil, ProjectResult{Project: *proj}, nil
}

func (h *toolHandlers) listUpdates(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectParams) (*sdkmcp.CallToolResult, UpdatesResult, error) {
	ws, _, err := h.session(ctx, in.ProjectID)
	if err != nil {
		return nil, UpdatesResult{}, err
	}
	return nil, UpdatesResult{Updates: orEmpty(ws.Updates())}, nil
}

func (h *toolHandlers) postUpdate(ctx context.Context, _ *sdkmcp.CallToolRequest, in AddUpdateParams) (*sdkmcp.CallToolResult, IDResult, error) {
	ws, err := h.adminSession(ctx, in.ProjectID)
	if err != nil {
		return nil, IDResult{}, err
	}
	id, err := ws.AddUpdate(ctx, in.Content, in.Tag)
	if err != nil {
		return nil, IDResult{}, mapError(err)
	}
	return nil, IDResult{ID: id}, nil
}

func (h *toolHandlers) editUpdate(ctx context.Context, _ *sdkmcp.CallToolRequest, in EditUpdateParams) (*sdkmcp.CallToolResult, OKResult, error) {
	ws, err := h.adminSession(ctx, in.ProjectID)
	if err != nil {
		return nil, OKResult{}, err
	}
	if err := ws.EditUpdate(ctx, in.ID, in.Content); err != nil {
		return nil, OKResult{}, mapError(err)
	}
	return nil, OKResult{OK: true}, nil
}

func (h *toolHandlers) deleteUpdate(ctx context.Context, _ *sdkmcp.CallToolRequest, in IDParams) (*sdkmcp.CallToolResult, OKResult, error) {
	ws, err := h.adminSession(ctx, in.ProjectID)
	if err != nil {
		return nil, OKResult{}, err
	}
	if err := ws.DeleteUpdate(ctx, in.ID); err != nil {
		return nil, OKResult{}, mapError(err)
	}
	return nil, OKResult{OK: true}, nil
}

func (h *toolHandlers) listActions(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectParams) (*sdkmcp.CallToolResult, ActionsResult, error) {
	ws, _, err := h.session(ctx, in.ProjectID)
	if err != nil {
		return nil, ActionsResult{}, err
	}
	return nil, ActionsResult{Actions: orEmpty(ws.Actions())}, nil
}

func (h *toolHandlers) addAction(ctx context.Context, _ *sdkmcp.CallToolRequest, in AddActionParams) (*sdkmcp.CallToolResult, IDResult, error) {
	ws, _, err := h.session(ctx, in.ProjectID)
	if err != nil {
		return nil, IDResult{}, err
	}
	id, err := ws.AddAction(ctx, in.Task, in.AssignedTo, in.DueDate)
	if err != nil {
		return nil, IDResult{}, mapError(err)
	}
	return nil, IDResult{ID: id}, nil
}

func (h *toolHandlers) setActionStatus(ctx context.Context, _ *sdkmcp.CallToolRequest, in SetActionStatusParams) (*sdkmcp.CallToolResult, OKResult, error) {
	ws, _, err := h.session(ctx, in.ProjectID)
	if err != nil {
		return nil, OKResult{}, err
	}
	if err := ws.UpdateActionStatus(ctx, in.ID, in.Status); err != nil {
		return nil, OKResult{}, mapError(err)
	}
	return nil, OKResult{OK: true}, nil
}

func (h *toolHandlers) deleteAction(ctx context.Context, _ *sdkmcp.CallToolRequest, in IDParams) (*sdkmcp.CallToolResult, OKResult, error) {
	ws, err := h.adminSession(ctx, in.ProjectID)
	if err != nil {
		return nil, OKResult{}, err
	}
	if err := ws.DeleteAction(ctx, in.ID); err != nil {
		return nil, OKResult{}, mapError(err)
	}
	return nil, OKResult{OK: true}, nil
}

func (h *toolHandlers) listQuestions(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectParams) (*sdkmcp.CallToolResult, QuestionsResult, error) {
	ws, _, err := h.session(ctx, in.ProjectID)
	if err != nil {
		return nil, QuestionsResult{}, err
	}
	return nil, QuestionsResult{Questions: orEmpty(ws.Questions())}, nil
}

func (h *toolHandlers) getQuestion(ctx context.Context, _ *sdkmcp.CallToolRequest, in IDParams) (*sdkmcp.CallToolResult, QuestionResult, error) {
	ws, _, err := h.session(ctx, in.ProjectID)
	if err != nil {
		return nil, QuestionResult{}, err
	}
	q, ok := ws.Question(in.ID)
	if !ok {
		return nil, QuestionResult{}, &APIError{Code: "RECORD_NOT_FOUND", Message: "thread not found", RecoveryHint: "List the collection to find current ids"}
	}
	return nil, QuestionResult{Question: q}, nil
}

func (h *toolHandlers) askQuestion(ctx context.Context, _ *sdkmcp.CallToolRequest, in AskQuestionParams) (*sdkmcp.CallToolResult, IDResult, error) {
	ws, _, err := h.session(ctx, in.ProjectID)
	if err != nil {
		return nil, IDResult{}, err
	}
	id, err := ws.AddQuestion(ctx, in.Title, in.Category, in.Context)
	if err != nil {
		return nil, IDResult{}, mapError(err)
	}
	return nil, IDResult{ID: id}, nil
}

func (h *toolHandlers) replyToQuestion(ctx context.Context, _ *sdkmcp.CallToolRequest, in ReplyParams) (*sdkmcp.CallToolResult, ReplyResult, error) {
	ws, _, err := h.session(ctx, in.ProjectID)
	if err != nil {
		return nil, ReplyResult{}, err
	}
	reply, err := ws.AddReply(ctx, in.ID, in.Content)
	if err != nil {
		return nil, ReplyResult{}, mapError(err)
	}
	return nil, ReplyResult{Reply: reply}, nil
}

func (h *toolHandlers) deleteQuestion(ctx context.Context, _ *sdkmcp.CallToolRequest, in IDParams) (*sdkmcp.CallToolResult, OKResult, error) {
	ws, err := h.adminSession(ctx, in.ProjectID)
	if err != nil {
		return nil, OKResult{}, err
	}
	if err := ws.DeleteQuestion(ctx, in.ID); err != nil {
		return nil, OKResult{}, mapError(err)
	}
	return nil, OKResult{OK: true}, nil
}

func (h *toolHandlers) listPhotos(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectParams) (*sdkmcp.CallToolResult, PhotosResult, error) {
	ws, _, err := h.session(ctx, in.ProjectID)
	if err != nil {
		return nil, PhotosResult{}, err
	}
	return nil, PhotosResult{Photos: orEmpty(ws.Photos())}, nil
}

func (h *toolHandlers) addPhoto(ctx context.Context, _ *sdkmcp.CallToolRequest, in AddPhotoParams) (*sdkmcp.CallToolResult, IDResult, error) {
	ws, err := h.adminSession(ctx, in.ProjectID)
	if err != nil {
		return nil, IDResult{}, err
	}
	id, err := ws.AddPhoto(ctx, in.Src, in.Desc, in.Tag)
	if err != nil {
		return nil, IDResult{}, mapError(err)
	}
	return nil, IDResult{ID: id}, nil
}

func (h *toolHandlers) deletePhoto(ctx context.Context, _ *sdkmcp.CallToolRequest, in IDParams) (*sdkmcp.CallToolResult, OKResult, error) {
	ws, err := h.adminSession(ctx, in.ProjectID)
	if err != nil {
		return nil, OKResult{}, err
	}
	if err := ws.DeletePhoto(ctx, in.ID); err != nil {
		return nil, OKResult{}, mapError(err)
	}
	return nil, OKResult{OK: true}, nil
}

func (h *toolHandlers) listDocuments(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectParams) (*sdkmcp.CallToolResult, DocumentsResult, error) {
	ws, _, err := h.session(ctx, in.ProjectID)
	if err != nil {
		return nil, DocumentsResult{}, err
	}
	return nil, DocumentsResult{Folders: orEmpty(ws.Documents())}, nil
}

func (h *toolHandlers) addDocument(ctx context.Context, _ *sdkmcp.CallToolRequest, in AddDocumentParams) (*sdkmcp.CallToolResult, FileResult, error) {
	ws, _, err := h.session(ctx, in.ProjectID)
	if err != nil {
		return nil, FileResult{}, err
	}
	file, err := ws.AddFile(ctx, in.FolderID, document.File{Name: in.Name, URL: in.URL, Size: in.Size})
	if err != nil {
		return nil, FileResult{}, mapError(err)
	}
	return nil, FileResult{File: file}, nil
}

func (h *toolHandlers) deleteDocument(ctx context.Context, _ *sdkmcp.CallToolRequest, in DeleteDocumentParams) (*sdkmcp.CallToolResult, OKResult, error) {
	ws, err := h.adminSession(ctx, in.ProjectID)
	if err != nil {
		return nil, OKResult{}, err
	}
	if err := ws.DeleteFile(ctx, in.ID); err != nil {
		return nil, OKResult{}, mapError(err)
	}
	return nil, OKResult{OK: true}, nil
}

func (h *toolHandlers) addFolder(ctx context.Context, _ *sdkmcp.CallToolRequest, in AddFolderParams) (*sdkmcp.CallToolResult, FolderResult, error) {
	ws, err := h.adminSession(ctx, in.ProjectID)
	if err != nil {
		return nil, FolderResult{}, err
	}
	folder, err := ws.AddFolder(ctx, in.Name)
	if err != nil {
		return nil, FolderResult{}, mapError(err)
	}
	return nil, FolderResult{Folder: folder}, nil
}

func (h *toolHandlers) listAlerts(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectParams) (*sdkmcp.CallToolResult, AlertsResult, error) {
	ws, _, err := h.session(ctx, in.ProjectID)
	if err != nil {
		return nil, AlertsResult{}, err
	}
	return nil, AlertsResult{Alerts: alertViews(ws.Alerts())}, nil
}

func orEmpty[S ~[]E, E any](s S) []E {
	if s == nil {
		return []E{}
	}
	return s
}
