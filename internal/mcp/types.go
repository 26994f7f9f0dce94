package mcp

import (
	"time"

	"github.com/emgroup/sitesync/internal/alert"
	"github.com/emgroup/sitesync/internal/auth"
	"github.com/emgroup/sitesync/internal/domain/document"
	"github.com/emgroup/sitesync/internal/domain/project"
	"github.com/emgroup/sitesync/internal/domain/record"
)

// ProjectParams selects a project. Every tool accepts it.
type ProjectParams struct {
	ProjectID string `json:"project_id,omitempty" jsonschema:"project key, defaults to the server's project"`
}

type UpdateProjectDetailsParams struct {
	ProjectID    string  `json:"project_id,omitempty" jsonschema:"project key, defaults to the server's project"`
	Name         *string `json:"name,omitempty"`
	Status       *string `json:"status,omitempty"`
	Location     *string `json:"location,omitempty"`
	Summary      *string `json:"summary,omitempty"`
	Focus        *string `json:"focus,omitempty" jsonschema:"current focus of the works"`
	Coordination *string `json:"coordination,omitempty" jsonschema:"coordination notes for stakeholders"`
	Image        *string `json:"image,omitempty" jsonschema:"cover image URL"`
}

func (p UpdateProjectDetailsParams) details() project.Details {
	return project.Details{
		Name:         p.Name,
		Status:       p.Status,
		Location:     p.Location,
		Summary:      p.Summary,
		Focus:        p.Focus,
		Coordination: p.Coordination,
		Image:        p.Image,
	}
}

type IDParams struct {
	ProjectID string `json:"project_id,omitempty" jsonschema:"project key, defaults to the server's project"`
	ID        int64  `json:"id" jsonschema:"record id"`
}

type AddUpdateParams struct {
	ProjectID string `json:"project_id,omitempty" jsonschema:"project key, defaults to the server's project"`
	Content   string `json:"content"`
	Tag       string `json:"tag,omitempty" jsonschema:"e.g. Progress, Safety, Compliance"`
}

type EditUpdateParams struct {
	ProjectID string `json:"project_id,omitempty" jsonschema:"project key, defaults to the server's project"`
	ID        int64  `json:"id"`
	Content   string `json:"content"`
}

type AddActionParams struct {
	ProjectID  string `json:"project_id,omitempty" jsonschema:"project key, defaults to the server's project"`
	Task       string `json:"task"`
	AssignedTo string `json:"assigned_to"`
	DueDate    string `json:"due_date,omitempty" jsonschema:"e.g. 20 Dec 2025"`
}

type SetActionStatusParams struct {
	ProjectID string              `json:"project_id,omitempty" jsonschema:"project key, defaults to the server's project"`
	ID        int64               `json:"id"`
	Status    record.ActionStatus `json:"status" jsonschema:"Open or Closed"`
}

type AskQuestionParams struct {
	ProjectID string `json:"project_id,omitempty" jsonschema:"project key, defaults to the server's project"`
	Title     string `json:"title"`
	Category  string `json:"category,omitempty" jsonschema:"e.g. RFI, Access"`
	Context   string `json:"context,omitempty" jsonschema:"background for the question"`
}

type ReplyParams struct {
	ProjectID string `json:"project_id,omitempty" jsonschema:"project key, defaults to the server's project"`
	ID        int64  `json:"id" jsonschema:"thread id"`
	Content   string `json:"content"`
}

type AddPhotoParams struct {
	ProjectID string `json:"project_id,omitempty" jsonschema:"project key, defaults to the server's project"`
	Src       string `json:"src" jsonschema:"image URL"`
	Desc      string `json:"desc,omitempty" jsonschema:"caption"`
	Tag       string `json:"tag,omitempty"`
}

type AddDocumentParams struct {
	ProjectID string `json:"project_id,omitempty" jsonschema:"project key, defaults to the server's project"`
	FolderID  string `json:"folder_id"`
	Name      string `json:"name" jsonschema:"file name including extension"`
	URL       string `json:"url,omitempty"`
	Size      int64  `json:"size,omitempty" jsonschema:"size in bytes"`
}

type DeleteDocumentParams struct {
	ProjectID string `json:"project_id,omitempty" jsonschema:"project key, defaults to the server's project"`
	ID        string `json:"id" jsonschema:"file id"`
}

type AddFolderParams struct {
	ProjectID string `json:"project_id,omitempty" jsonschema:"project key, defaults to the server's project"`
	Name      string `json:"name"`
}

// Results. Every tool returns an object.

type ProjectsResult struct {
	Projects []project.Project `json:"projects"`
}

type ProjectResult struct {
	Project project.Project `json:"project"`
}

type WhoAmIResult struct {
	Identity auth.Identity `json:"identity"`
	Project  string        `json:"project"`
}

type IDResult struct {
	ID int64 `json:"id"`
}

type OKResult struct {
	OK bool `json:"ok"`
}

type UpdatesResult struct {
	Updates []record.Update `json:"updates"`
}

type ActionsResult struct {
	Actions []record.Action `json:"actions"`
}

type QuestionsResult struct {
	Questions []record.QuestionThread `json:"questions"`
}

type QuestionResult struct {
	Question record.QuestionThread `json:"question"`
}

type ReplyResult struct {
	Reply record.Reply `json:"reply"`
}

type PhotosResult struct {
	Photos []record.Photo `json:"photos"`
}

type DocumentsResult struct {
	Folders []document.Folder `json:"folders"`
}

type FileResult struct {
	File document.File `json:"file"`
}

type FolderResult struct {
	Folder document.Folder `json:"folder"`
}

// AlertView is an alert with its time rendered as RFC 3339.
type AlertView struct {
	Message   string `json:"message"`
	Operation string `json:"operation"`
	Target    string `json:"target"`
	At        string `json:"at"`
}

type AlertsResult struct {
	Alerts []AlertView `json:"alerts"`
}

func alertViews(alerts []alert.Alert) []AlertView {
	out := make([]AlertView, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, AlertView{
			Message:   a.Message,
			Operation: a.Operation,
			Target:    a.Target,
			At:        a.At.UTC().Format(time.RFC3339),
		})
	}
	return out
}
