package audio

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLocalPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.m4a")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	local, err := NewResolver("").Resolve(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, local.Path)
	local.Release()
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestResolveDownloadsURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "remote-audio")
	}))
	defer srv.Close()

	local, err := NewResolver(t.TempDir()).Resolve(context.Background(), srv.URL+"/rec.m4a?sig=1")
	require.NoError(t, err)
	data, err := os.ReadFile(local.Path)
	require.NoError(t, err)
	assert.Equal(t, "remote-audio", string(data))
	assert.Equal(t, ".m4a", filepath.Ext(local.Path))

	local.Release()
	_, err = os.Stat(local.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestResolveMissingFile(t *testing.T) {
	_, err := NewResolver("").Resolve(context.Background(), "/nope/missing.m4a")
	require.Error(t, err)
}
