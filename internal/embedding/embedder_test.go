package embedding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmbedReturnsVectorOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
	}))
	defer srv.Close()

	e := New(srv.URL, "test-model", 0)
	vec := e.Embed(context.Background(), "hello world")
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedEmptyTextReturnsEmptyVector(t *testing.T) {
	e := New("http://unused", "test-model", 0)
	vec := e.Embed(context.Background(), "")
	assert.Empty(t, vec)
}

func TestEmbedServerErrorReturnsEmptyVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := New(srv.URL, "test-model", 0)
	vec := e.Embed(context.Background(), "hello")
	assert.Empty(t, vec)
}

func TestEmbedUnreachableServerReturnsEmptyVector(t *testing.T) {
	e := New("http://127.0.0.1:1", "test-model", 0)
	vec := e.Embed(context.Background(), "hello")
	assert.Empty(t, vec)
}

func TestEmbedBatchProcessesEachText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[1,2]}`))
	}))
	defer srv.Close()

	e := New(srv.URL, "test-model", 0)
	vecs := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	assert.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Equal(t, []float32{1, 2}, v)
	}
}

func TestEmbedAllBatchedChunksAtBatchSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[1]}`))
	}))
	defer srv.Close()

	e := New(srv.URL, "test-model", 2)
	texts := []string{"a", "b", "c", "d", "e"}
	vecs := e.EmbedAllBatched(context.Background(), texts)
	assert.Len(t, vecs, 5)
	assert.Equal(t, 2, e.BatchSize())
}

func TestHealthReportsReachability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := New(srv.URL, "test-model", 0)
	assert.True(t, e.Health(context.Background()))

	e2 := New("http://127.0.0.1:1", "test-model", 0)
	assert.False(t, e2.Health(context.Background()))
}
