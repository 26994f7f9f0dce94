package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/emgroup/sitesync/internal/auth"
	"github.com/emgroup/sitesync/internal/blob"
	"github.com/emgroup/sitesync/internal/domain/project"
	"github.com/emgroup/sitesync/internal/store/memstore"
	"github.com/emgroup/sitesync/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminEmail = "christo@emgroup.co.nz"
	samEmail   = "sam@contractor.co.nz"
)

// testSessions opens workspaces over one shared in-memory store, so records
// written by one command are visible to the next.
type testSessions struct {
	store     *memstore.Store
	projects  *project.Service
	uploads   *blob.FS
	directory *auth.Directory
}

func (s *testSessions) Identify(email string) (auth.Identity, error) {
	if email == "" {
		email = samEmail
	}
	return s.directory.Identify(email)
}

func (s *testSessions) OpenWorkspace(ctx context.Context, projectID string, who auth.Identity) (*workspace.Workspace, error) {
	if projectID == "" {
		projectID = "south-mall"
	}
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}
	ws, err := workspace.New(s.store, s.projects, s.uploads, workspace.Options{ProjectID: projectID, Identity: who}, nil)
	if err != nil {
		return nil, err
	}
	if err := ws.Open(ctx); err != nil {
		return nil, err
	}
	return ws, nil
}

func testApp(t *testing.T) *App {
	t.Helper()
	st := memstore.New()
	t.Cleanup(func() { st.Close() })

	projects := project.NewService(project.NewMemoryRepository(), nil)
	require.NoError(t, projects.EnsureSeeded(context.Background()))

	uploads, err := blob.NewFS(t.TempDir(), "/files", 1<<20)
	require.NoError(t, err)

	return &App{Sessions: &testSessions{
		store:     st,
		projects:  projects,
		uploads:   uploads,
		directory: auth.NewDirectory(adminEmail, "Christo"),
	}}
}

func executeCmd(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(app)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestWhoAmI(t *testing.T) {
	app := testApp(t)

	out, err := executeCmd(t, app, "whoami", "--as", adminEmail)
	require.NoError(t, err)
	assert.Contains(t, out, "Christo (Admin)")
	assert.Contains(t, out, "south-mall")

	out, err = executeCmd(t, app, "whoami", "-p", "civil-drainage")
	require.NoError(t, err)
	assert.Contains(t, out, "sam <"+samEmail+">")
	assert.Contains(t, out, "civil-drainage")
}

func TestUpdates_PostReplacesSeedThenEditAndDelete(t *testing.T) {
	app := testApp(t)

	out, err := executeCmd(t, app, "updates")
	require.NoError(t, err)
	assert.Contains(t, out, "CONTENT")

	out, err = executeCmd(t, app, "updates", "post", "Level 2 slab poured", "--tag", "Progress", "--as", adminEmail)
	require.NoError(t, err)
	var id int64
	_, err = fmt.Sscanf(out, "Posted update %d", &id)
	require.NoError(t, err)

	out, err = executeCmd(t, app, "updates")
	require.NoError(t, err)
	assert.Contains(t, out, "Level 2 slab poured")
	assert.Contains(t, out, "Christo (Admin)")

	_, err = executeCmd(t, app, "updates", "edit", fmt.Sprint(id), "Level 2 slab poured and cured", "--as", adminEmail)
	require.NoError(t, err)
	out, err = executeCmd(t, app, "updates")
	require.NoError(t, err)
	assert.Contains(t, out, "Level 2 slab poured and cured")

	_, err = executeCmd(t, app, "updates", "rm", fmt.Sprint(id), "--as", adminEmail)
	require.NoError(t, err)
	out, err = executeCmd(t, app, "updates")
	require.NoError(t, err)
	assert.NotContains(t, out, "Level 2 slab poured")
}

func TestUnknownProjectFails(t *testing.T) {
	app := testApp(t)

	_, err := executeCmd(t, app, "updates", "--project", "sout-mall-typo")
	require.ErrorIs(t, err, project.ErrProjectNotFound)
}

func TestAdminCommandsRejectStakeholders(t *testing.T) {
	app := testApp(t)

	for _, args := range [][]string{
		{"updates", "post", "hello"},
		{"updates", "rm", "1"},
		{"actions", "rm", "1"},
		{"questions", "rm", "1"},
		{"photos", "add", "https://example.com/a.jpg"},
		{"docs", "rm", "f1-1"},
		{"docs", "mkdir", "Permits"},
		{"project", "edit", "--status", "Complete"},
	} {
		_, err := executeCmd(t, app, args...)
		require.ErrorIs(t, err, ErrAdminOnly, "%v", args)
	}
}

func TestActions_AddAndClose(t *testing.T) {
	app := testApp(t)

	out, err := executeCmd(t, app, "actions", "add", "Confirm crane booking", "--assign", "Dave", "--due", "20 Jan 2026")
	require.NoError(t, err)
	var id int64
	_, err = fmt.Sscanf(out, "Added action %d", &id)
	require.NoError(t, err)

	out, err = executeCmd(t, app, "actions", "close", fmt.Sprint(id))
	require.NoError(t, err)
	assert.Contains(t, out, "Closed")

	out, err = executeCmd(t, app, "actions")
	require.NoError(t, err)
	assert.Contains(t, out, "Confirm crane booking")
	assert.Contains(t, out, "Closed")

	_, err = executeCmd(t, app, "actions", "add", "No assignee")
	require.Error(t, err)
}

func TestActions_CloseUnknown(t *testing.T) {
	app := testApp(t)
	_, err := executeCmd(t, app, "actions", "close", "not-a-number")
	require.Error(t, err)
}

func TestQuestions_AskReplyShow(t *testing.T) {
	app := testApp(t)

	out, err := executeCmd(t, app, "questions", "ask", "Bakery floor levels?", "--category", "RFI", "--context", "Survey differs from drawings")
	require.NoError(t, err)
	var id int64
	_, err = fmt.Sscanf(out, "Opened question %d", &id)
	require.NoError(t, err)

	out, err = executeCmd(t, app, "questions", "reply", fmt.Sprint(id), "Use the survey levels", "--as", adminEmail)
	require.NoError(t, err)
	assert.Contains(t, out, "Christo (Admin)")

	out, err = executeCmd(t, app, "questions", "show", fmt.Sprint(id))
	require.NoError(t, err)
	assert.Contains(t, out, "Bakery floor levels?")
	assert.Contains(t, out, "Answered")
	assert.Contains(t, out, "Use the survey levels")

	_, err = executeCmd(t, app, "questions", "show", "42")
	require.Error(t, err)
}

func TestPhotos_Upload(t *testing.T) {
	app := testApp(t)
	path := filepath.Join(t.TempDir(), "slab.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0o644))

	out, err := executeCmd(t, app, "photos", "upload", path, "--desc", "Slab pour", "--as", adminEmail)
	require.NoError(t, err)
	assert.Contains(t, out, "Uploaded photo")

	out, err = executeCmd(t, app, "photos")
	require.NoError(t, err)
	assert.Contains(t, out, "Slab pour")
	assert.Contains(t, out, "/files/")
}

func TestDocs_UploadLinkMkdir(t *testing.T) {
	app := testApp(t)
	path := filepath.Join(t.TempDir(), "Drawing_A102.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7"), 0o644))

	out, err := executeCmd(t, app, "docs", "upload", "folder-1", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Added Drawing_A102.pdf")

	_, err = executeCmd(t, app, "docs", "link", "folder-2", "https://example.com/rfi/RFI_013.pdf")
	require.NoError(t, err)

	_, err = executeCmd(t, app, "docs", "upload", "no-such-folder", path)
	require.Error(t, err)

	_, err = executeCmd(t, app, "docs", "mkdir", "Permits", "--as", adminEmail)
	require.NoError(t, err)

	out, err = executeCmd(t, app, "docs")
	require.NoError(t, err)
	assert.Contains(t, out, "Drawing_A102.pdf")
	assert.Contains(t, out, "RFI_013.pdf")
	assert.Contains(t, out, "Permits")
	assert.Contains(t, out, "Drawing_A101_RevC.pdf", "seed files survive")
}

func TestProject_ListShowEdit(t *testing.T) {
	app := testApp(t)

	out, err := executeCmd(t, app, "project", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "civil-drainage")
	assert.Contains(t, out, "●")

	_, err = executeCmd(t, app, "project", "edit", "--status", "Practical Completion", "--as", adminEmail)
	require.NoError(t, err)

	out, err = executeCmd(t, app, "project", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Practical Completion")
}

func TestAlerts_None(t *testing.T) {
	app := testApp(t)
	out, err := executeCmd(t, app, "alerts")
	require.NoError(t, err)
	assert.Contains(t, out, "No alerts.")
}

func TestWatch_StopsAfterDuration(t *testing.T) {
	app := testApp(t)
	start := time.Now()
	out, err := executeCmd(t, app, "watch", "--for", "50ms")
	require.NoError(t, err)
	assert.Contains(t, out, "Watching south-mall")
	assert.Less(t, time.Since(start), 5*time.Second)
}
