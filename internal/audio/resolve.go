package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Local is a recording available on disk. Release deletes it when it was
// downloaded into a temp file and is a no-op otherwise.
type Local struct {
	Path    string
	Release func()
}

// Resolver turns a stored audio reference (local path or URL) into a local file.
type Resolver struct {
	client  *http.Client
	tempDir string
}

// NewResolver creates a Resolver downloading into tempDir ("" for the OS default).
func NewResolver(tempDir string) *Resolver {
	return &Resolver{client: &http.Client{Timeout: 10 * time.Minute}, tempDir: tempDir}
}

// Resolve returns a local path for ref, downloading http(s) references.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*Local, error) {
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		if _, err := os.Stat(ref); err != nil {
			return nil, fmt.Errorf("original audio: %w", err)
		}
		return &Local{Path: ref, Release: func() {}}, nil
	}

	req, err := http.NewRequestWithContext(ctx, "GET", ref, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download status %d", resp.StatusCode)
	}

	ext := filepath.Ext(strings.SplitN(ref, "?", 2)[0])
	f, err := os.CreateTemp(r.tempDir, "original-*"+ext)
	if err != nil {
		return nil, err
	}
	tmp := f.Name()
	_, copyErr := io.Copy(f, resp.Body)
	f.Close()
	if copyErr != nil {
		os.Remove(tmp)
		return nil, copyErr
	}
	return &Local{Path: tmp, Release: func() { os.Remove(tmp) }}, nil
}
