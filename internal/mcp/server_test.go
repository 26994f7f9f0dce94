package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/emgroup/sitesync/internal/auth"
	"github.com/emgroup/sitesync/internal/domain/project"
	"github.com/emgroup/sitesync/internal/domain/record"
	"github.com/emgroup/sitesync/internal/store/memstore"
	"github.com/emgroup/sitesync/internal/workspace"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

const (
	adminEmail       = "christo@emgroup.co.nz"
	stakeholderEmail = "sam@contractor.co.nz"
)

type harness struct {
	sessions *Sessions
	client   *sdkmcp.ClientSession
}

func newHarness(t *testing.T, defaultEmail string) *harness {
	t.Helper()
	ctx := context.Background()

	st := memstore.New()
	t.Cleanup(func() { st.Close() })
	projects := project.NewService(project.NewMemoryRepository(), nil)
	require.NoError(t, projects.EnsureSeeded(ctx))

	sessions := NewSessions(func(ctx context.Context, projectID string, who auth.Identity) (*workspace.Workspace, error) {
		if _, err := projects.Get(ctx, projectID); err != nil {
			return nil, err
		}
		ws, err := workspace.New(st, projects, nil, workspace.Options{ProjectID: projectID, Identity: who}, nil)
		if err != nil {
			return nil, err
		}
		if err := ws.Open(ctx); err != nil {
			return nil, err
		}
		return ws, nil
	}, nil)
	t.Cleanup(sessions.Close)

	server := NewServer(Config{
		Sessions:       sessions,
		Directory:      auth.NewDirectory(adminEmail, "Christo"),
		DefaultProject: "south-mall",
		DefaultEmail:   defaultEmail,
	})
	serverTransport, clientTransport := sdkmcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })

	return &harness{sessions: sessions, client: cs}
}

func (h *harness) call(t *testing.T, email, tool string, args map[string]any) *sdkmcp.CallToolResult {
	t.Helper()
	params := &sdkmcp.CallToolParams{Name: tool, Arguments: args}
	if email != "" {
		params.Meta = sdkmcp.Meta{EmailMetaKey: email}
	}
	res, err := h.client.CallTool(context.Background(), params)
	require.NoError(t, err)
	return res
}

func resultText(t *testing.T, res *sdkmcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok)
	return text.Text
}

// callInto calls tool and decodes its successful result into out.
func (h *harness) callInto(t *testing.T, email, tool string, args map[string]any, out any) {
	t.Helper()
	res := h.call(t, email, tool, args)
	require.False(t, res.IsError, resultText(t, res))
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), out))
}

func (h *harness) callErr(t *testing.T, email, tool string, args map[string]any) string {
	t.Helper()
	res := h.call(t, email, tool, args)
	require.True(t, res.IsError)
	return resultText(t, res)
}

func TestServer_ListsToolsAndDocs(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	tools, err := h.client.ListTools(ctx, nil)
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"list_updates", "post_update", "add_action", "reply_to_question", "list_documents", "add_folder", "list_alerts"} {
		require.True(t, names[want], want)
	}

	res, err := h.client.ReadResource(ctx, &sdkmcp.ReadResourceParams{URI: "sitesync://docs/index"})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	require.Contains(t, res.Contents[0].Text, "reply_to_question")
}

func TestServer_RequiresIdentity(t *testing.T) {
	h := newHarness(t, "")
	msg := h.callErr(t, "", "list_updates", nil)
	require.Contains(t, msg, "UNAUTHENTICATED")
	require.Zero(t, h.sessions.Len())
}

func TestServer_DefaultEmail(t *testing.T) {
	h := newHarness(t, stakeholderEmail)
	var who WhoAmIResult
	h.callInto(t, "", "whoami", nil, &who)
	require.Equal(t, "sam", who.Identity.Name)
	require.Equal(t, auth.RoleStakeholder, who.Identity.Role)
	require.Equal(t, "south-mall", who.Project)
}

func TestServer_AdminOnlyTools(t *testing.T) {
	h := newHarness(t, "")

	msg := h.callErr(t, stakeholderEmail, "post_update", map[string]any{"content": "Hoardings moved"})
	require.Contains(t, msg, "FORBIDDEN")
	msg = h.callErr(t, stakeholderEmail, "delete_action", map[string]any{"id": 1})
	require.Contains(t, msg, "FORBIDDEN")

	var created IDResult
	h.callInto(t, adminEmail, "post_update", map[string]any{"content": "Hoardings moved to Zone 3", "tag": "Safety"}, &created)
	require.NotZero(t, created.ID)

	require.Eventually(t, func() bool {
		var updates UpdatesResult
		h.callInto(t, stakeholderEmail, "list_updates", nil, &updates)
		return len(updates.Updates) == 1 && updates.Updates[0].ID == created.ID &&
			updates.Updates[0].Author == "Christo (Admin)"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestServer_ActionWorkflow(t *testing.T) {
	h := newHarness(t, "")

	var created IDResult
	h.callInto(t, stakeholderEmail, "add_action", map[string]any{
		"task":        "Confirm crane lift window",
		"assigned_to": "Contractor",
		"due_date":    "16 Jan 2026",
	}, &created)

	require.Eventually(t, func() bool {
		var actions ActionsResult
		h.callInto(t, stakeholderEmail, "list_actions", nil, &actions)
		return len(actions.Actions) == 1 && actions.Actions[0].Status == record.ActionOpen
	}, 3*time.Second, 20*time.Millisecond)

	var ok OKResult
	h.callInto(t, stakeholderEmail, "set_action_status", map[string]any{"id": created.ID, "status": "Closed"}, &ok)
	require.True(t, ok.OK)

	require.Eventually(t, func() bool {
		var actions ActionsResult
		h.callInto(t, stakeholderEmail, "list_actions", nil, &actions)
		return len(actions.Actions) == 1 && actions.Actions[0].Status == record.ActionClosed
	}, 3*time.Second, 20*time.Millisecond)

	msg := h.callErr(t, stakeholderEmail, "set_action_status", map[string]any{"id": created.ID, "status": "Done"})
	require.Contains(t, msg, "INVALID_STATUS")
}

func TestServer_QuestionReply(t *testing.T) {
	h := newHarness(t, "")

	var created IDResult
	h.callInto(t, stakeholderEmail, "ask_question", map[string]any{
		"title":    "Loading bay clearance?",
		"category": "Access",
	}, &created)

	require.Eventually(t, func() bool {
		res := h.call(t, adminEmail, "get_question", map[string]any{"id": created.ID})
		return !res.IsError
	}, 3*time.Second, 20*time.Millisecond)

	var reply ReplyResult
	h.callInto(t, adminEmail, "reply_to_question", map[string]any{"id": created.ID, "content": "4.2m at the gate."}, &reply)
	require.Equal(t, "Christo (Admin)", reply.Reply.Author)

	require.Eventually(t, func() bool {
		var q QuestionResult
		h.callInto(t, stakeholderEmail, "get_question", map[string]any{"id": created.ID}, &q)
		return q.Question.Status == record.ThreadAnswered && len(q.Question.Replies) == 1
	}, 3*time.Second, 20*time.Millisecond)

	msg := h.callErr(t, stakeholderEmail, "reply_to_question", map[string]any{"id": 12345, "content": "hello"})
	require.Contains(t, msg, "RECORD_NOT_FOUND")
}

func TestServer_Documents(t *testing.T) {
	h := newHarness(t, "")

	var docs DocumentsResult
	h.callInto(t, stakeholderEmail, "list_documents", nil, &docs)
	require.Len(t, docs.Folders, 4)

	var file FileResult
	h.callInto(t, stakeholderEmail, "add_document", map[string]any{
		"folder_id": "folder-3",
		"name":      "Inspection-Report-Jan.pdf",
		"size":      204800,
	}, &file)
	require.Equal(t, "PDF", file.File.Type)
	require.Equal(t, "sam", file.File.Author)

	h.callInto(t, stakeholderEmail, "list_documents", nil, &docs)
	require.Equal(t, file.File.ID, docs.Folders[2].Items[0].ID)

	msg := h.callErr(t, stakeholderEmail, "add_document", map[string]any{"folder_id": "folder-x", "name": "a.pdf"})
	require.Contains(t, msg, "FOLDER_NOT_FOUND")

	msg = h.callErr(t, stakeholderEmail, "add_folder", map[string]any{"name": "Variations"})
	require.Contains(t, msg, "FORBIDDEN")
	var folder FolderResult
	h.callInto(t, adminEmail, "add_folder", map[string]any{"name": "Variations"}, &folder)
	require.Equal(t, "Variations", folder.Folder.Name)
}

func TestServer_Projects(t *testing.T) {
	h := newHarness(t, "")

	var all ProjectsResult
	h.callInto(t, stakeholderEmail, "list_projects", nil, &all)
	require.Len(t, all.Projects, 5)

	var proj ProjectResult
	h.callInto(t, stakeholderEmail, "get_project", map[string]any{"project_id": "civil-drainage"}, &proj)
	require.Equal(t, "Civil Drainage Remediation", proj.Project.Name)

	msg := h.callErr(t, stakeholderEmail, "update_project_details", map[string]any{"focus": "x"})
	require.Contains(t, msg, "FORBIDDEN")

	h.callInto(t, adminEmail, "update_project_details", map[string]any{"focus": "Bakery flooring cure"}, &proj)
	require.Equal(t, "Bakery flooring cure", proj.Project.Focus)

	msg = h.callErr(t, adminEmail, "get_project", map[string]any{"project_id": "unknown"})
	require.Contains(t, msg, "PROJECT_NOT_FOUND")
}

func TestServer_InvalidEmailRejected(t *testing.T) {
	h := newHarness(t, "")
	_, err := h.client.CallTool(context.Background(), &sdkmcp.CallToolParams{
		Meta: sdkmcp.Meta{EmailMetaKey: "not-an-email"},
		Name: "list_updates",
	})
	require.Error(t, err)
}

func TestSessions_OnePerParticipant(t *testing.T) {
	h := newHarness(t, "")
	h.callInto(t, stakeholderEmail, "list_updates", nil, &UpdatesResult{})
	h.callInto(t, stakeholderEmail, "list_actions", nil, &ActionsResult{})
	require.Equal(t, 1, h.sessions.Len())

	h.callInto(t, adminEmail, "list_updates", nil, &UpdatesResult{})
	h.callInto(t, adminEmail, "list_updates", map[string]any{"project_id": "civil-drainage"}, &UpdatesResult{})
	require.Equal(t, 3, h.sessions.Len())

	h.sessions.Close()
	require.Zero(t, h.sessions.Len())
	msg := h.callErr(t, adminEmail, "list_updates", nil)
	require.True(t, strings.Contains(msg, "not open"), msg)
}

func TestServer_UnknownProjectOpensNothing(t *testing.T) {
	h := newHarness(t, "")
	msg := h.callErr(t, adminEmail, "list_updates", map[string]any{"project_id": "sout-mall-typo"})
	require.Contains(t, msg, "PROJECT_NOT_FOUND")
	msg = h.callErr(t, stakeholderEmail, "list_documents", map[string]any{"project_id": "sout-mall-typo"})
	require.Contains(t, msg, "PROJECT_NOT_FOUND")
	require.Zero(t, h.sessions.Len())
}

func TestMapError(t *testing.T) {
	cases := map[error]string{
		ErrForbidden:                                      "FORBIDDEN",
		record.ErrRecordNotFound:                          "RECORD_NOT_FOUND",
		project.ErrProjectNotFound:                        "PROJECT_NOT_FOUND",
		workspace.ErrUploadsDisabled:                      "UPLOADS_DISABLED",
		fmt.Errorf("wrapped: %w", record.ErrInvalidInput): "INVALID_INPUT",
	}
	for err, code := range cases {
		apiErr := MapError(err)
		require.NotNil(t, apiErr, err.Error())
		require.Equal(t, code, apiErr.Code)
		require.ErrorIs(t, apiErr, err)
	}
	require.Nil(t, MapError(nil))
	require.Nil(t, MapError(fmt.Errorf("boom")))
}
