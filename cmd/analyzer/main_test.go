package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingServer serves until Shutdown, like http.Server.
type blockingServer struct {
	stopped chan struct{}
}

func (s *blockingServer) ListenAndServe() error {
	<-s.stopped
	return http.ErrServerClosed
}

func (s *blockingServer) Shutdown(context.Context) error {
	close(s.stopped)
	return nil
}

func TestServeWaitsForDrain(t *testing.T) {
	srv := &blockingServer{stopped: make(chan struct{})}
	sigCh := make(chan os.Signal, 1)
	release := make(chan struct{})
	var drained atomic.Bool

	drain := func(context.Context) {
		<-release
		drained.Store(true)
	}

	result := make(chan error, 1)
	go func() { result <- serve(srv, sigCh, time.Second, drain) }()

	sigCh <- syscall.SIGTERM
	select {
	case <-result:
		t.Fatal("serve returned before drain finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-result:
		require.NoError(t, err)
		assert.True(t, drained.Load())
	case <-time.After(time.Second):
		t.Fatal("serve did not return after drain")
	}
}

type failingServer struct{}

func (failingServer) ListenAndServe() error          { return errors.New("address in use") }
func (failingServer) Shutdown(context.Context) error { return nil }

func TestServeReturnsListenError(t *testing.T) {
	err := serve(failingServer{}, make(chan os.Signal), time.Second, func(context.Context) {})
	require.EqualError(t, err, "address in use")
}
