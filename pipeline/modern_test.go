package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candlelight-ai/lyceum/schema"
)

func TestHTTPEngineRetrieve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req engineRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "what is virtue", req.Query)
		assert.Equal(t, "aristotle", req.Collection)
		assert.Equal(t, 5, req.Limit)

		json.NewEncoder(w).Encode(engineResponse{Results: []engineResult{
			{ID: "doc-1", Score: 0.9, Payload: map[string]any{"text": "passage"}},
			{ID: "doc-2", Score: 0.5},
		}})
	}))
	defer srv.Close()

	e := NewHTTPEngine(srv.URL, time.Second)
	nodes, err := e.Retrieve(context.Background(), "what is virtue", "aristotle", 5)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "doc-1", nodes[0].ID)
	assert.Equal(t, 0.9, nodes[0].Score)
	assert.Equal(t, "aristotle", nodes[0].Collection)
	assert.Equal(t, "passage", nodes[0].Payload["text"])
}

func TestHTTPEngineNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewHTTPEngine(srv.URL, time.Second)
	_, err := e.Retrieve(context.Background(), "q", "c", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPEngineUnreachable(t *testing.T) {
	e := NewHTTPEngine("http://127.0.0.1:1", 100*time.Millisecond)
	_, err := e.Retrieve(context.Background(), "q", "c", 5)
	assert.Error(t, err)
}

func TestModernRunnerAssignsRanks(t *testing.T) {
	engine := stubEngine{nodes: okResult("a", "b", "c").FinalResults}
	r := NewModernRunner(engine, nil)

	result, err := r.Run(context.Background(), Request{Query: "q", Limit: 3, RequestID: "req-9"})
	require.NoError(t, err)
	assert.Equal(t, "req-9", result.Metadata.RequestID)
	assert.Equal(t, 3, result.Metadata.FinalResultCount)
	for i, n := range result.FinalResults {
		assert.Equal(t, i+1, n.Rank)
	}
}

type stubEngine struct {
	nodes []schema.RankedNode
}

func (e stubEngine) Retrieve(context.Context, string, string, int) ([]schema.RankedNode, error) {
	return e.nodes, nil
}
