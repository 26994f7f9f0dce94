// Package testserver runs the full HTTP stack in-process for functional tests.
package testserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/emgroup/sitesync/internal/app"
	"github.com/emgroup/sitesync/internal/auth"
	"github.com/emgroup/sitesync/internal/config"
	"github.com/emgroup/sitesync/internal/mcp"
	"github.com/emgroup/sitesync/internal/transport"
	"github.com/emgroup/sitesync/internal/workspace"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

// AdminEmail is the admin of every test server.
const AdminEmail = "christo@emgroup.co.nz"

type TestServer struct {
	Server    *httptest.Server
	Runtime   *app.Runtime
	AccessKey string
}

// New starts a server on the memory backend guarded by accessKey.
func New(t *testing.T, accessKey string) *TestServer {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store.Backend = config.BackendMemory
	cfg.DB.Path = filepath.Join(dir, "sitesync.db")
	cfg.Uploads.Dir = filepath.Join(dir, "uploads")
	cfg.Server.AccessKey = accessKey
	cfg.Auth.AdminEmail = AdminEmail

	rt, err := app.Open(context.Background(), cfg, nil)
	require.NoError(t, err)

	sessions := mcp.NewSessions(func(ctx context.Context, projectID string, who auth.Identity) (*workspace.Workspace, error) {
		return rt.OpenWorkspace(ctx, projectID, who)
	}, nil)

	mcpServer := mcp.NewServer(mcp.Config{
		Sessions:       sessions,
		Directory:      rt.Directory,
		DefaultProject: cfg.Workspace.Project,
		Version:        "test",
	})
	handler := sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{SessionTimeout: time.Minute},
	)
	server := httptest.NewServer(transport.NewRouter(handler, rt.Uploads, transport.Options{
		FilesPrefix: cfg.Uploads.BaseURL,
		AccessKey:   accessKey,
	}))

	t.Cleanup(func() {
		server.Close()
		sessions.Close()
		_ = rt.Close()
	})

	return &TestServer{Server: server, Runtime: rt, AccessKey: accessKey}
}

// headerTransport adds the access key and the caller's email to every request.
type headerTransport struct {
	base      http.RoundTripper
	accessKey string
	email     string
}

func (h *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if h.accessKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.accessKey)
	}
	if h.email != "" {
		req.Header.Set(mcp.EmailHeader, h.email)
	}
	return h.base.RoundTrip(req)
}

// HTTPClient returns a client that authenticates as email.
func (ts *TestServer) HTTPClient(email string) *http.Client {
	return &http.Client{Transport: &headerTransport{
		base:      http.DefaultTransport,
		accessKey: ts.AccessKey,
		email:     email,
	}}
}

// Client is an MCP client session for one participant.
type Client struct {
	Session *sdkmcp.ClientSession
}

// Connect opens an MCP session over streamable HTTP as email.
func (ts *TestServer) Connect(t *testing.T, email string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &sdkmcp.StreamableClientTransport{
		Endpoint:   ts.Server.URL + "/mcp",
		HTTPClient: ts.HTTPClient(email),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return &Client{Session: session}
}

// Call invokes a tool and decodes its JSON result into out. Tool errors fail
// the test.
func (c *Client) Call(t *testing.T, name string, args map[string]any, out any) {
	t.Helper()
	result := c.call(t, name, args)
	require.False(t, result.IsError, "tool %s returned error: %s", name, text(result))
	if out != nil {
		require.NoError(t, json.Unmarshal([]byte(text(result)), out))
	}
}

// CallOK is Call for tools that may not succeed yet; it reports success
// instead of failing the test.
func (c *Client) CallOK(t *testing.T, name string, args map[string]any, out any) bool {
	t.Helper()
	result := c.call(t, name, args)
	if result.IsError {
		return false
	}
	if out != nil {
		require.NoError(t, json.Unmarshal([]byte(text(result)), out))
	}
	return true
}

// CallErr invokes a tool that is expected to fail and returns its message.
func (c *Client) CallErr(t *testing.T, name string, args map[string]any) string {
	t.Helper()
	result := c.call(t, name, args)
	require.True(t, result.IsError, "tool %s should have failed", name)
	return text(result)
}

func (c *Client) call(t *testing.T, name string, args map[string]any) *sdkmcp.CallToolResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if args == nil {
		args = map[string]any{}
	}
	result, err := c.Session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err, "CallTool %s", name)
	return result
}

func text(result *sdkmcp.CallToolResult) string {
	for _, content := range result.Content {
		if tc, ok := content.(*sdkmcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
