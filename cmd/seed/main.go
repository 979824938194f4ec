package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hubenschmidt/session-analyzer/internal/env"
	"github.com/hubenschmidt/session-analyzer/internal/memory"
	"github.com/hubenschmidt/session-analyzer/internal/skills"
	"github.com/hubenschmidt/session-analyzer/internal/store"
)

func main() {
	driver := flag.String("store-driver", env.Str("STORE_DRIVER", store.SQLite), "store driver (pgx or sqlite)")
	dsn := flag.String("dsn", env.Str("STORE_DSN", "data/analyzer.db"), "store connection string")
	skillsDir := flag.String("skills-dir", env.Str("SKILLS_DIR", "skills"), "directory of skill definitions")
	qdrantURL := flag.String("qdrant-url", env.Str("QDRANT_URL", ""), "Qdrant URL; empty skips memory setup")
	ollamaURL := flag.String("ollama-url", env.Str("OLLAMA_URL", "http://localhost:11434"), "embedding server URL")
	model := flag.String("model", env.Str("EMBEDDING_MODEL", "nomic-embed-text"), "embedding model")
	collection := flag.String("collection", env.Str("MEMORY_COLLECTION", "session_memory"), "memory collection")
	vectorSize := flag.Int("vector-size", env.Int("VECTOR_SIZE", 768), "embedding vector dimension")
	notesDir := flag.String("notes", "", "directory of .txt notes to import as memories")
	user := flag.String("user", "", "owner of imported notes")
	chunkSize := flag.Int("chunk-size", 500, "max characters per note chunk")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := store.Open(ctx, *driver, *dsn)
	if err != nil {
		slog.Error("open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	n, err := skills.NewDirRegistry(*skillsDir, db, time.Minute).Sync(ctx)
	if err != nil {
		slog.Error("sync skills", "dir", *skillsDir, "error", err)
		os.Exit(1)
	}
	slog.Info("skills synced", "count", n)

	if *qdrantURL == "" {
		slog.Info("qdrant not configured, skipping memory setup")
		return
	}

	qdrant := memory.NewQdrantClient(*qdrantURL, 4)
	mem := memory.NewService(memory.Config{
		Embedder:   memory.NewEmbeddingClient(*ollamaURL, *model, 4),
		Qdrant:     qdrant,
		Collection: *collection,
	})
	if err := mem.Ensure(ctx, *vectorSize); err != nil {
		slog.Error("ensure collection", "error", err)
		os.Exit(1)
	}
	count, err := qdrant.PointCount(ctx, *collection)
	if err == nil {
		slog.Info("memory collection ready", "collection", *collection, "points", count)
	}

	if *notesDir == "" {
		return
	}
	if *user == "" {
		fmt.Fprintln(os.Stderr, "usage: seed --notes ./notes --user <user id>")
		os.Exit(1)
	}

	files, err := filepath.Glob(filepath.Join(*notesDir, "*.txt"))
	if err != nil {
		slog.Error("glob notes", "error", err)
		os.Exit(1)
	}

	var total int
	for _, f := range files {
		added, err := importNotes(ctx, mem, f, *user, *chunkSize)
		if err != nil {
			slog.Error("import notes", "file", f, "error", err)
			continue
		}
		total += added
		slog.Info("imported", "file", f, "chunks", added)
	}
	slog.Info("done", "total_chunks", total, "files", len(files))
}

func importNotes(ctx context.Context, mem *memory.Service, path, userID string, chunkSize int) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	chunks := memory.ChunkText(string(data), chunkSize)
	for i, chunk := range chunks {
		rec := memory.Record{UserID: userID, Kind: memory.KindNote, Text: chunk}
		if err := mem.Add(ctx, rec); err != nil {
			return i, fmt.Errorf("chunk %d: %w", i, err)
		}
	}
	return len(chunks), nil
}
