package transcript

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/session-analyzer/internal/audio"
	"github.com/hubenschmidt/session-analyzer/internal/llm"
)

type fakeFiles struct {
	mu      sync.Mutex
	deleted []string
	failN   int
}

func (f *fakeFiles) Upload(_ context.Context, path, mime string) (*llm.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return nil, errors.New("connection reset")
	}
	return &llm.File{Name: "files/" + path, URI: "u://" + path, MimeType: mime, State: llm.FileActive}, nil
}

func (f *fakeFiles) File(_ context.Context, name string) (*llm.File, error) {
	return &llm.File{Name: name, State: llm.FileActive}, nil
}

func (f *fakeFiles) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	return nil
}

type scriptedGen struct {
	calls int
	last  llm.Request
	reply func(n int) (string, error)
}

func (g *scriptedGen) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	g.calls++
	g.last = req
	text, err := g.reply(g.calls)
	if err != nil {
		return nil, err
	}
	return &llm.Response{Text: text}, nil
}

const okTranscript = `{"mood_score": 70, "sigh_count": 0, "laugh_count": 0, "summary": "s",
	"transcript": [{"speaker": "Speaker_0", "text": "hi", "timestamp": "00:01", "is_me": true}]}`

func fastConfig() Config {
	return Config{RetryDelay: time.Millisecond, PollInterval: time.Millisecond, MaxWait: time.Second}
}

func TestExtractMultiChunkPromptAndCleanup(t *testing.T) {
	files := &fakeFiles{}
	gen := &scriptedGen{reply: func(int) (string, error) { return okTranscript, nil }}
	chunks := []audio.Chunk{
		{Index: 0, Span: audio.Span{Start: 0, End: 600}, Path: "c0.m4a", MimeType: "audio/mp4"},
		{Index: 1, Span: audio.Span{Start: 600, End: 1200}, Path: "c1.m4a", MimeType: "audio/mp4"},
	}

	res, err := NewExtractor(files, gen, fastConfig()).Extract(context.Background(), chunks)
	require.NoError(t, err)
	assert.Len(t, res.Turns, 1)

	require.Len(t, gen.last.Parts, 3)
	assert.Contains(t, gen.last.Parts[0].Text, "片段 2：从 10:00 开始")
	assert.Equal(t, "u://c0.m4a", gen.last.Parts[1].File.URI)
	assert.Equal(t, "u://c1.m4a", gen.last.Parts[2].File.URI)
	assert.ElementsMatch(t, []string{"files/c0.m4a", "files/c1.m4a"}, files.deleted)
}

func TestExtractRetriesUploadThenSucceeds(t *testing.T) {
	files := &fakeFiles{failN: 2}
	gen := &scriptedGen{reply: func(int) (string, error) { return okTranscript, nil }}

	_, err := NewExtractor(files, gen, fastConfig()).Extract(context.Background(), []audio.Chunk{{Path: "a.m4a"}})
	require.NoError(t, err)
}

func TestExtractDeletesFilesWhenGenerationFails(t *testing.T) {
	files := &fakeFiles{}
	gen := &scriptedGen{reply: func(int) (string, error) { return "", errors.New("503") }}

	_, err := NewExtractor(files, gen, fastConfig()).Extract(context.Background(), []audio.Chunk{{Path: "a.m4a"}})
	require.Error(t, err)
	assert.Equal(t, 3, gen.calls)
	assert.Equal(t, []string{"files/a.m4a"}, files.deleted)
}

func TestExtractDoesNotRetryUndecodableOutput(t *testing.T) {
	files := &fakeFiles{}
	gen := &scriptedGen{reply: func(int) (string, error) { return "sorry, no", nil }}

	_, err := NewExtractor(files, gen, fastConfig()).Extract(context.Background(), []audio.Chunk{{Path: "a.m4a"}})
	require.ErrorIs(t, err, llm.ErrDecode)
	assert.Equal(t, 1, gen.calls)
	assert.Len(t, files.deleted, 1)
}

func TestExtractSingleChunkHasNoOffsetInstruction(t *testing.T) {
	gen := &scriptedGen{reply: func(int) (string, error) { return okTranscript, nil }}
	_, err := NewExtractor(&fakeFiles{}, gen, fastConfig()).Extract(context.Background(), []audio.Chunk{{Path: "a.m4a"}})
	require.NoError(t, err)
	assert.NotContains(t, gen.last.Parts[0].Text, "片段 1")
}
