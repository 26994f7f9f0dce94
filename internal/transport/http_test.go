package transport

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"net/http/httptest"

	"github.com/emgroup/sitesync/internal/blob"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, accessKey string) (*httptest.Server, *blob.FS) {
	t.Helper()
	files, err := blob.NewFS(t.TempDir(), "/files", 1<<20)
	require.NoError(t, err)

	mcpHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("mcp"))
	})
	server := httptest.NewServer(NewRouter(mcpHandler, files, Options{FilesPrefix: "/files/", AccessKey: accessKey}))
	t.Cleanup(server.Close)
	return server, files
}

func get(t *testing.T, url, token string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestRouter_Health(t *testing.T) {
	server, _ := newTestServer(t, "site-key")
	code, body := get(t, server.URL+"/health", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body)
}

func TestRouter_MCPRequiresAccessKey(t *testing.T) {
	server, _ := newTestServer(t, "site-key")

	code, _ := get(t, server.URL+"/mcp", "")
	require.Equal(t, http.StatusUnauthorized, code)

	code, body := get(t, server.URL+"/mcp", "site-key")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "mcp", body)
}

func TestRouter_ServesUploads(t *testing.T) {
	server, files := newTestServer(t, "")

	obj, err := files.Upload(context.Background(), "plan.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)

	code, body := get(t, server.URL+obj.URL, "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "%PDF", body)

	code, _ = get(t, server.URL+"/files/.hidden", "")
	require.Equal(t, http.StatusNotFound, code)

	code, _ = get(t, server.URL+"/files/missing.pdf", "")
	require.Equal(t, http.StatusNotFound, code)
}

func TestFilesPrefix(t *testing.T) {
	require.Equal(t, "/files", FilesPrefix("/files/"))
	require.Equal(t, "/media/site", FilesPrefix("media/site"))
	require.Equal(t, "/files", FilesPrefix(""))
}
