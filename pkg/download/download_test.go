package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlenv"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlvalue"
)

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://example.com/f.txt"))
	assert.True(t, IsRemote("http://example.com/f.txt"))
	assert.True(t, IsRemote("s3://bucket/key"))
	assert.True(t, IsRemote("gs://bucket/key"))

	assert.False(t, IsRemote("/abs/path.txt"))
	assert.False(t, IsRemote("relative/path.txt"))
	assert.False(t, IsRemote("ftp://example.com/f"))
}

func serveCounted(t *testing.T, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestResolveFetchesAndCaches(t *testing.T) {
	srv, hits := serveCounted(t, "reference data")
	d := NewDownloader(t.TempDir(), t.TempDir())

	url := srv.URL + "/ref/genome.fa"
	p1, unlock1, err := d.Resolve(context.Background(), diag.SourcePos{}, url)
	require.NoError(t, err)
	b, err := os.ReadFile(p1)
	require.NoError(t, err)
	assert.Equal(t, "reference data", string(b))
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	unlock1()

	// Second resolve is served from the download cache without a fetch.
	p2, unlock2, err := d.Resolve(context.Background(), diag.SourcePos{}, url)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	unlock2()
}

func TestResolveUncacheableSkipsCache(t *testing.T) {
	srv, hits := serveCounted(t, "x")
	d := NewDownloader(t.TempDir(), t.TempDir())
	d.Policy.Deny = []string{srv.URL}

	url := srv.URL + "/f"
	p1, unlock1, err := d.Resolve(context.Background(), diag.SourcePos{}, url)
	require.NoError(t, err)
	unlock1()

	p2, unlock2, err := d.Resolve(context.Background(), diag.SourcePos{}, url)
	require.NoError(t, err)
	unlock2()

	assert.NotEqual(t, p1, p2, "uncacheable downloads get fresh scratch paths")
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestResolveUnknownScheme(t *testing.T) {
	d := NewDownloader(t.TempDir(), t.TempDir())
	_, _, err := d.Resolve(context.Background(), diag.SourcePos{}, "s3://bucket/key")
	require.Error(t, err)
	de, ok := err.(*diag.Error)
	require.True(t, ok)
	assert.Equal(t, diag.KindDownloadFailed, de.Kind)
}

func TestResolveHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	d := NewDownloader(t.TempDir(), t.TempDir())
	_, _, err := d.Resolve(context.Background(), diag.SourcePos{}, srv.URL+"/missing")
	assert.Error(t, err)
}

func TestResolveInputsRewritesRemoteLeaves(t *testing.T) {
	srv, _ := serveCounted(t, "content")
	d := NewDownloader(t.TempDir(), t.TempDir())

	inputs := wdlenv.Bind[wdlvalue.Value](nil, "local", wdlvalue.NewFile("/tmp/already-here"), nil)
	inputs = wdlenv.Bind(inputs, "remote", wdlvalue.NewFile(srv.URL+"/data.txt"), nil)
	inputs = wdlenv.Bind(inputs, "nested", wdlvalue.NewArray(wdltype.File(), []wdlvalue.Value{
		wdlvalue.NewFile(srv.URL + "/other.txt"),
	}), nil)

	resolved, release, err := ResolveInputs(context.Background(), d, inputs)
	require.NoError(t, err)
	defer release()

	local, _ := resolved.Resolve("local")
	assert.Equal(t, "/tmp/already-here", local.AsString())

	remote, _ := resolved.Resolve("remote")
	assert.False(t, IsRemote(remote.AsString()))
	assert.FileExists(t, remote.AsString())

	nested, _ := resolved.Resolve("nested")
	assert.False(t, IsRemote(nested.AsList()[0].AsString()))
}

func TestResolveInputsPassesThroughNonFileValues(t *testing.T) {
	d := NewDownloader(t.TempDir(), t.TempDir())
	inputs := wdlenv.Bind[wdlvalue.Value](nil, "n", wdlvalue.NewInt(3), nil)
	inputs = wdlenv.Bind(inputs, "s", wdlvalue.NewString("https://not-a-file-type"), nil)

	resolved, release, err := ResolveInputs(context.Background(), d, inputs)
	require.NoError(t, err)
	defer release()

	s, _ := resolved.Resolve("s")
	assert.Equal(t, "https://not-a-file-type", s.AsString(), "String values are never downloaded")
}
