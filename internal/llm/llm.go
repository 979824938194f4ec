// Package llm holds the generation contracts shared by every pipeline stage
// and the engine clients that satisfy them.
package llm

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrDecode marks model output that could not be decoded as the expected JSON.
	// It is never retried: re-asking rarely fixes a malformed response.
	ErrDecode = errors.New("undecodable model output")

	// ErrFileNotActive is returned when an uploaded file ends in a state other than ACTIVE.
	ErrFileNotActive = errors.New("uploaded file not active")

	// ErrFilePartsUnsupported is returned by text-only engines handed an audio part.
	ErrFilePartsUnsupported = errors.New("engine does not accept file parts")
)

// Remote file states reported by the file API.
const (
	FileProcessing = "PROCESSING"
	FileActive     = "ACTIVE"
	FileFailed     = "FAILED"
)

// File is a handle to media uploaded to the model provider.
type File struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	State    string `json:"state"`
}

// Part is one element of a multimodal prompt: either text or an uploaded file.
type Part struct {
	Text string
	File *File
}

// TextPart wraps s as a prompt part.
func TextPart(s string) Part { return Part{Text: s} }

// FilePart references an uploaded file in a prompt.
func FilePart(f *File) Part { return Part{File: f} }

// Request is a single-turn generation call.
type Request struct {
	Model     string
	System    string
	Parts     []Part
	JSON      bool
	MaxTokens int
}

// Response holds the generated text with timing.
type Response struct {
	Text      string  `json:"text"`
	LatencyMs float64 `json:"latency_ms"`
}

// Generator produces a completion for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// FileStore manages media uploaded for multimodal prompts.
type FileStore interface {
	Upload(ctx context.Context, path, mimeType string) (*File, error)
	File(ctx context.Context, name string) (*File, error)
	Delete(ctx context.Context, name string) error
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (*Response, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Prompt builds a text-only request.
func Prompt(system, text string) Request {
	return Request{System: system, Parts: []Part{TextPart(text)}}
}

// textOnly flattens parts for engines without file support.
func textOnly(parts []Part) (string, error) {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.File != nil {
			return "", ErrFilePartsUnsupported
		}
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, "\n\n"), nil
}
