package llm

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayClientRewritesOrigin(t *testing.T) {
	var gotPath, gotForwarded string
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotForwarded = r.Header.Get("X-Forwarded-Host")
		io.WriteString(w, "ok")
	}))
	defer relay.Close()

	client, err := NewRelayHTTPClient(2, 5*time.Second, relay.URL+"/gemini")
	require.NoError(t, err)

	resp, err := client.Get("https://generativelanguage.googleapis.com/v1beta/files/abc")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "/gemini/v1beta/files/abc", gotPath)
	assert.Equal(t, "generativelanguage.googleapis.com", gotForwarded)
}

func TestRelayClientWithoutRelayIsPlain(t *testing.T) {
	client, err := NewRelayHTTPClient(2, time.Second, "")
	require.NoError(t, err)
	_, isRewrite := client.Transport.(*RewriteTransport)
	assert.False(t, isRewrite)
}

func TestRelayClientRejectsBareHost(t *testing.T) {
	_, err := NewRelayHTTPClient(2, time.Second, "relay.local")
	require.Error(t, err)
}
