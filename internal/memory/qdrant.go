package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hubenschmidt/session-analyzer/internal/llm"
)

// QdrantClient talks to Qdrant's REST API.
type QdrantClient struct {
	url    string
	client *http.Client
}

// NewQdrantClient creates a Qdrant REST client.
func NewQdrantClient(url string, poolSize int) *QdrantClient {
	return &QdrantClient{
		url:    url,
		client: llm.NewPooledHTTPClient(poolSize, 30*time.Second),
	}
}

// Point is a vector with its payload.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float64      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Hit is one search result.
type Hit struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Match restricts a search to points whose payload key equals value.
type Match struct {
	Key   string
	Value string
}

// EnsureCollection creates a cosine collection unless it already exists.
func (q *QdrantClient) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	status, _, err := q.do(ctx, http.MethodPut, "/collections/"+name, createCollection{
		Vectors: vectorConfig{Size: vectorSize, Distance: "Cosine"},
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	// 409: already exists
	if status == http.StatusOK || status == http.StatusConflict {
		return nil
	}
	return fmt.Errorf("create collection status %d", status)
}

// EnsureIndex creates a keyword payload index on field.
func (q *QdrantClient) EnsureIndex(ctx context.Context, collection, field string) error {
	status, body, err := q.do(ctx, http.MethodPut, "/collections/"+collection+"/index", payloadIndex{
		FieldName: field, FieldSchema: "keyword",
	})
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("create index status %d: %s", status, body)
	}
	return nil
}

// Upsert inserts or replaces points.
func (q *QdrantClient) Upsert(ctx context.Context, collection string, points []Point) error {
	status, body, err := q.do(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", upsertRequest{Points: points})
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("upsert status %d: %s", status, body)
	}
	return nil
}

// Search returns the nearest neighbours of vector that satisfy every match.
func (q *QdrantClient) Search(ctx context.Context, collection string, vector []float64, topK int, scoreThreshold float64, must ...Match) ([]Hit, error) {
	req := searchRequest{
		Vector:         vector,
		Limit:          topK,
		ScoreThreshold: scoreThreshold,
		WithPayload:    true,
	}
	if len(must) > 0 {
		req.Filter = &filter{}
		for _, m := range must {
			req.Filter.Must = append(req.Filter.Must, condition{Key: m.Key, Match: matchValue{Value: m.Value}})
		}
	}

	status, body, err := q.do(ctx, http.MethodPost, "/collections/"+collection+"/points/search", req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("search status %d: %s", status, body)
	}

	var result searchResponse
	if err = json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return result.Result, nil
}

// PointCount returns the number of points in a collection.
func (q *QdrantClient) PointCount(ctx context.Context, collection string) (int, error) {
	status, body, err := q.do(ctx, http.MethodGet, "/collections/"+collection, nil)
	if err != nil {
		return 0, fmt.Errorf("collection info: %w", err)
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("collection info status %d", status)
	}
	var result collectionInfo
	if err = json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("decode collection info: %w", err)
	}
	return result.Result.PointsCount, nil
}

func (q *QdrantClient) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.url+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

type createCollection struct {
	Vectors vectorConfig `json:"vectors"`
}

type vectorConfig struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type payloadIndex struct {
	FieldName   string `json:"field_name"`
	FieldSchema string `json:"field_schema"`
}

type upsertRequest struct {
	Points []Point `json:"points"`
}

type matchValue struct {
	Value string `json:"value"`
}

type condition struct {
	Key   string     `json:"key"`
	Match matchValue `json:"match"`
}

type filter struct {
	Must []condition `json:"must"`
}

type searchRequest struct {
	Vector         []float64 `json:"vector"`
	Limit          int       `json:"limit"`
	ScoreThreshold float64   `json:"score_threshold,omitempty"`
	WithPayload    bool      `json:"with_payload"`
	Filter         *filter   `json:"filter,omitempty"`
}

type searchResponse struct {
	Result []Hit `json:"result"`
}

type collectionInfo struct {
	Result struct {
		PointsCount int `json:"points_count"`
	} `json:"result"`
}
