// Package audio prepares uploaded recordings for the transcription model:
// probing, size-bounded splitting, and locating the original file.
package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hubenschmidt/session-analyzer/internal/metrics"
)

// DefaultMaxChunkBytes is the largest file sent to the model in one piece.
const DefaultMaxChunkBytes = 18 * 1024 * 1024

// Span is a time window of a recording, in seconds.
type Span struct {
	Start float64
	End   float64
}

// Duration returns the span length in seconds.
func (s Span) Duration() float64 { return s.End - s.Start }

// Chunk is one piece of a recording ready for upload.
type Chunk struct {
	Index    int
	Span     Span
	Path     string
	MimeType string
}

// Plan divides a recording of size bytes and duration seconds into
// ceil(size/maxBytes) equal, contiguous spans covering [0, duration].
func Plan(size, maxBytes int64, duration float64) []Span {
	n := 1
	if maxBytes > 0 && size > maxBytes {
		n = int(math.Ceil(float64(size) / float64(maxBytes)))
	}
	step := duration / float64(n)
	spans := make([]Span, n)
	for i := range n {
		spans[i] = Span{Start: float64(i) * step, End: float64(i+1) * step}
	}
	spans[n-1].End = duration
	return spans
}

// SplitterConfig configures a Splitter.
type SplitterConfig struct {
	FFmpeg        string
	FFprobe       string
	MaxChunkBytes int64
	ChunkTimeout  time.Duration
	TempDir       string
}

// Splitter cuts recordings above the size threshold into time-based chunks
// with ffmpeg.
type Splitter struct {
	cfg SplitterConfig
}

// NewSplitter creates a Splitter, filling defaults for empty fields.
func NewSplitter(cfg SplitterConfig) *Splitter {
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = "ffmpeg"
	}
	if cfg.FFprobe == "" {
		cfg.FFprobe = "ffprobe"
	}
	if cfg.MaxChunkBytes <= 0 {
		cfg.MaxChunkBytes = DefaultMaxChunkBytes
	}
	if cfg.ChunkTimeout <= 0 {
		cfg.ChunkTimeout = 120 * time.Second
	}
	return &Splitter{cfg: cfg}
}

// ChunkSet is the result of Split. Cleanup removes any temporary files and is
// safe to call more than once.
type ChunkSet struct {
	Chunks []Chunk
	temps  []string
}

// Cleanup removes the temporary chunk files.
func (cs *ChunkSet) Cleanup() {
	if cs == nil {
		return
	}
	removeAll(cs.temps)
	cs.temps = nil
}

// Split returns the recording unchanged when it is under the threshold,
// otherwise one temporary file per planned span. On error every chunk written
// so far is removed.
func (s *Splitter) Split(ctx context.Context, path string) (*ChunkSet, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat audio: %w", err)
	}
	mime := MimeType(path)

	if info.Size() <= s.cfg.MaxChunkBytes {
		return &ChunkSet{Chunks: []Chunk{{Index: 0, Path: path, MimeType: mime}}}, nil
	}

	duration, err := s.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	spans := Plan(info.Size(), s.cfg.MaxChunkBytes, duration)
	slog.Info("splitting audio", "path", path, "bytes", info.Size(), "duration_s", duration, "chunks", len(spans))

	codec, format, ext, chunkMime := encodingFor(path)
	set := &ChunkSet{Chunks: make([]Chunk, 0, len(spans))}
	for i, span := range spans {
		out, cutErr := s.cut(ctx, path, span, codec, format, ext)
		if cutErr != nil {
			set.Cleanup()
			return nil, fmt.Errorf("cut chunk %d: %w", i, cutErr)
		}
		set.temps = append(set.temps, out)
		set.Chunks = append(set.Chunks, Chunk{Index: i, Span: span, Path: out, MimeType: chunkMime})
		metrics.AudioChunks.Inc()
	}
	return set, nil
}

func (s *Splitter) cut(ctx context.Context, path string, span Span, codec, format, ext string) (string, error) {
	f, err := os.CreateTemp(s.cfg.TempDir, "chunk-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create chunk file: %w", err)
	}
	out := f.Name()
	f.Close()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ChunkTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.cfg.FFmpeg,
		"-y",
		"-ss", strconv.FormatFloat(span.Start, 'f', 3, 64),
		"-i", path,
		"-t", strconv.FormatFloat(span.Duration(), 'f', 3, 64),
		"-c:a", codec,
		"-vn",
		"-f", format,
		out,
	)
	if output, runErr := cmd.CombinedOutput(); runErr != nil {
		os.Remove(out)
		return "", fmt.Errorf("ffmpeg: %w: %s", runErr, tail(string(output), 300))
	}
	return out, nil
}

// probeResult is the part of ffprobe's JSON report Probe reads.
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// DurationSeconds parses the container duration, 0 when absent.
func (p probeResult) DurationSeconds() float64 {
	d, err := strconv.ParseFloat(strings.TrimSpace(p.Format.Duration), 64)
	if err != nil {
		return 0
	}
	return d
}

// Probe returns the recording duration in seconds via ffprobe.
func (s *Splitter) Probe(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.cfg.FFprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (float64, error) {
	var res probeResult
	if err := json.Unmarshal(out, &res); err != nil {
		return 0, fmt.Errorf("decode ffprobe report: %w", err)
	}
	d := res.DurationSeconds()
	if d <= 0 {
		return 0, fmt.Errorf("ffprobe returned unusable duration %q", res.Format.Duration)
	}
	return d, nil
}

// MimeType maps a recording extension to the MIME type the model expects.
func MimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	case ".aac":
		return "audio/aac"
	default:
		return "audio/mpeg"
	}
}

// encodingFor keeps MP4 containers as AAC and re-encodes everything else to MP3.
func encodingFor(path string) (codec, format, ext, mime string) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m4a", ".mp4":
		return "aac", "mp4", ".m4a", "audio/mp4"
	default:
		return "libmp3lame", "mp3", ".mp3", "audio/mpeg"
	}
}

func removeAll(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			slog.Warn("remove temp chunk", "path", p, "error", err)
		}
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
