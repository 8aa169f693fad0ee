// Package embedding implements C3: turning repository text into dense
// vectors via a local embedding server, with health checking. Failures
// degrade to an empty vector rather than raising, per spec §4.3.
// Grounded on the teacher's internal/embedding/ollama.go HTTP client shape.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"starbase/internal/logging"
)

const defaultBatchSize = 10

// Embedder is the C3 capability.
type Embedder struct {
	endpoint  string
	model     string
	client    *http.Client
	batchSize int
}

// New builds an Embedder pointed at a local embedding server. batchSize <= 0
// falls back to the spec's default of 10.
func New(endpoint, model string, batchSize int) *Embedder {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "embeddinggemma"
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Embedder{
		endpoint:  endpoint,
		model:     model,
		client:    &http.Client{Timeout: 30 * time.Second},
		batchSize: batchSize,
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns the vector for text, or an empty vector if text is empty,
// the request fails, or it times out. Never returns an error: callers treat
// a zero-length result as "no embedding" (spec §4.3).
func (e *Embedder) Embed(ctx context.Context, text string) []float32 {
	if text == "" {
		return nil
	}

	body, err := json.Marshal(embedRequest{Model: e.model, Prompt: text})
	if err != nil {
		logging.Embedding("marshaling embed request: %v", err)
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		logging.Embedding("building embed request: %v", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		logging.Embedding("embed request failed after %v: %v", time.Since(start), err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		logging.Embedding("embed returned status %d: %s", resp.StatusCode, string(raw))
		return nil
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		logging.Embedding("decoding embed response: %v", err)
		return nil
	}

	logging.EmbeddingDebug("embedded %d chars into %d dims in %v", len(text), len(result.Embedding), time.Since(start))
	return result.Embedding
}

// EmbedBatch embeds each text sequentially, one request at a time, and
// processes every text it is given. It does not split or limit the input by
// the configured batch size; callers that need chunking use BatchSize.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.Embed(ctx, text)
	}
	return out
}

// BatchSize returns the configured batch bound for callers chunking large
// input sets.
func (e *Embedder) BatchSize() int {
	return e.batchSize
}

// Health reports whether the embedding server is reachable.
func (e *Embedder) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		logging.EmbeddingDebug("health check failed: %v", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

func chunk(texts []string, size int) [][]string {
	if size <= 0 {
		size = defaultBatchSize
	}
	var chunks [][]string
	for i := 0; i < len(texts); i += size {
		end := i + size
		if end > len(texts) {
			end = len(texts)
		}
		chunks = append(chunks, texts[i:end])
	}
	return chunks
}

// EmbedAllBatched embeds an arbitrarily large slice of texts, chunking at
// the configured batch size so the embedding backend never sees more than
// BatchSize() requests in flight from a single call.
func (e *Embedder) EmbedAllBatched(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, 0, len(texts))
	for _, c := range chunk(texts, e.batchSize) {
		out = append(out, e.EmbedBatch(ctx, c)...)
	}
	return out
}
