package statusapi

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestServer(t *testing.T) (*Server, string, string) {
	t.Helper()
	runDir := t.TempDir()
	cacheDir := t.TempDir()
	s := New(runDir, cacheDir)
	return s, runDir, cacheDir
}

func makeRun(t *testing.T, runDir, id, rc string) {
	t.Helper()
	host := filepath.Join(runDir, id)
	require.NoError(t, os.MkdirAll(filepath.Join(host, "work"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(host, "stdout.txt"), []byte("output here\n"), 0o644))
	if rc != "" {
		require.NoError(t, os.WriteFile(filepath.Join(host, "rc"), []byte(rc), 0o644))
	}
}

func TestStatusEmpty(t *testing.T) {
	s, runDir, _ := setupTestServer(t)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/status", nil), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, runDir, body["runDir"])
	assert.Equal(t, float64(0), body["runCount"])
}

func TestListRunsReflectsRunDir(t *testing.T) {
	s, runDir, _ := setupTestServer(t)
	makeRun(t, runDir, "20260101_000000_hello", "0")
	makeRun(t, runDir, "20260101_000001_fail", "1")
	makeRun(t, runDir, "20260101_000002_active", "")
	s.rescan()

	resp, err := s.App().Test(httptest.NewRequest("GET", "/runs", nil), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var runs []RunInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	require.Len(t, runs, 3)
	// Sorted by id.
	assert.Equal(t, "20260101_000000_hello", runs[0].ID)
	assert.Equal(t, "done", runs[0].State)
	assert.Equal(t, "failed", runs[1].State)
	assert.Equal(t, "running", runs[2].State)
}

func TestGetRunAndStdout(t *testing.T) {
	s, runDir, _ := setupTestServer(t)
	makeRun(t, runDir, "20260101_000000_hello", "0")
	s.rescan()

	resp, err := s.App().Test(httptest.NewRequest("GET", "/runs/20260101_000000_hello", nil), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var info RunInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "done", info.State)

	resp, err = s.App().Test(httptest.NewRequest("GET", "/runs/20260101_000000_hello/stdout", nil), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "output here\n", string(b))
}

func TestGetRunNotFound(t *testing.T) {
	s, _, _ := setupTestServer(t)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/runs/nope", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestListCacheDigests(t *testing.T) {
	s, _, cacheDir := setupTestServer(t)
	require.NoError(t, os.MkdirAll(filepath.Join(cacheDir, "bb00digest"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(cacheDir, "aa00digest"), 0o755))

	resp, err := s.App().Test(httptest.NewRequest("GET", "/cache", nil), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var digests []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&digests))
	assert.Equal(t, []string{"aa00digest", "bb00digest"}, digests)
}

func TestWatchRunDirPicksUpNewRuns(t *testing.T) {
	s, runDir, _ := setupTestServer(t)
	require.NoError(t, s.WatchRunDir())
	defer s.Shutdown()

	makeRun(t, runDir, "20260101_000000_new", "0")
	// The fsnotify path is asynchronous; rescan directly to keep the test
	// deterministic, as the watch goroutine does on each event.
	s.rescan()

	s.mu.RLock()
	_, ok := s.runs["20260101_000000_new"]
	s.mu.RUnlock()
	assert.True(t, ok)
}
