package lore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const chromaCollections = "/api/v2/tenants/default_tenant/databases/default_database/collections"

// ChromaStore keeps lore in a Chroma server, talking to its v2 REST API.
// Embeddings are computed on this side so any Chroma deployment works.
type ChromaStore struct {
	baseURL      string
	collection   string
	collectionID string
	embedder     Embedder
	httpClient   *http.Client
	logger       *slog.Logger
}

type chromaCollection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type chromaUpsertRequest struct {
	IDs        []string            `json:"ids"`
	Embeddings [][]float32         `json:"embeddings"`
	Metadatas  []map[string]string `json:"metadatas,omitempty"`
	Documents  []string            `json:"documents,omitempty"`
}

type chromaQueryRequest struct {
	QueryEmbeddings [][]float32 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
	Include         []string    `json:"include"`
}

type chromaQueryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]string         `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float32        `json:"distances"`
}

// NewChromaStore connects to the Chroma server at baseURL and gets or
// creates the named collection.
func NewChromaStore(ctx context.Context, baseURL, collection string, embedder Embedder, logger *slog.Logger) (*ChromaStore, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("chroma URL is required")
	}
	s := &ChromaStore{
		baseURL:    baseURL,
		collection: collection,
		embedder:   embedder,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
	id, err := s.getOrCreateCollection(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting or creating collection %q: %w", collection, err)
	}
	s.collectionID = id
	logger.Debug("connected to chroma", "url", baseURL, "collection", collection, "collection_id", id)
	return s, nil
}

func (s *ChromaStore) getOrCreateCollection(ctx context.Context) (string, error) {
	var col chromaCollection
	status, err := s.do(ctx, http.MethodGet, chromaCollections+"/"+s.collection, nil, &col)
	if err == nil {
		return col.ID, nil
	}
	if status != http.StatusNotFound {
		return "", err
	}
	if _, err := s.do(ctx, http.MethodPost, chromaCollections, map[string]string{"name": s.collection}, &col); err != nil {
		return "", err
	}
	return col.ID, nil
}

// do sends a JSON request and decodes a JSON response into out. It returns
// the response status alongside any error.
func (s *ChromaStore) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// Add upserts chunks so that re-ingesting lore replaces earlier copies.
func (s *ChromaStore) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	req := chromaUpsertRequest{
		IDs:        make([]string, len(chunks)),
		Embeddings: make([][]float32, len(chunks)),
		Metadatas:  make([]map[string]string, len(chunks)),
		Documents:  make([]string, len(chunks)),
	}
	for i, c := range chunks {
		emb, err := s.embedder.Embed(ctx, c.Text)
		if err != nil {
			return fmt.Errorf("embedding %s: %w", c.ID, err)
		}
		req.IDs[i] = c.ID
		req.Embeddings[i] = emb
		req.Metadatas[i] = c.Metadata
		req.Documents[i] = c.Text
	}
	if _, err := s.do(ctx, http.MethodPost, chromaCollections+"/"+s.collectionID+"/upsert", req, nil); err != nil {
		return fmt.Errorf("adding lore: %w", err)
	}
	s.logger.Debug("upserted lore into chroma", "count", len(chunks))
	return nil
}

// Query returns up to k chunks, closest first.
func (s *ChromaStore) Query(ctx context.Context, query string, k int) ([]Chunk, error) {
	if k <= 0 {
		return nil, nil
	}
	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var resp chromaQueryResponse
	req := chromaQueryRequest{
		QueryEmbeddings: [][]float32{emb},
		NResults:        k,
		Include:         []string{"documents", "metadatas", "distances"},
	}
	if _, err := s.do(ctx, http.MethodPost, chromaCollections+"/"+s.collectionID+"/query", req, &resp); err != nil {
		return nil, fmt.Errorf("querying lore: %w", err)
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}

	chunks := make([]Chunk, len(resp.IDs[0]))
	for i, id := range resp.IDs[0] {
		chunks[i] = Chunk{ID: id, Metadata: map[string]string{}}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			chunks[i].Text = resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			for k, v := range resp.Metadatas[0][i] {
				if str, ok := v.(string); ok {
					chunks[i].Metadata[k] = str
				}
			}
		}
	}
	return chunks, nil
}

func (s *ChromaStore) Count(ctx context.Context) (int, error) {
	var n int
	if _, err := s.do(ctx, http.MethodGet, chromaCollections+"/"+s.collectionID+"/count", nil, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *ChromaStore) Close() error {
	return nil
}

var _ Store = (*ChromaStore)(nil)
