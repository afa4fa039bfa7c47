package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient("localhost")
	assert.Error(t, err)

	c, err := NewClient("http://localhost:11434/api/chat")
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestQuery(t *testing.T) {
	var got api.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(api.ChatResponse{
			Model:   got.Model,
			Message: api.Message{Role: "assistant", Content: `{"primary":{"label":"none"}}`},
			Done:    true,
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/api/chat")
	require.NoError(t, err)

	out, err := c.Query(context.Background(), "minicpm-v4", "locate", []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, `{"primary":{"label":"none"}}`, out)

	assert.Equal(t, "minicpm-v4", got.Model)
	require.Len(t, got.Messages, 1)
	require.Len(t, got.Messages[0].Images, 1)
	assert.Equal(t, []byte("img"), []byte(got.Messages[0].Images[0]))
	assert.Equal(t, float64(4096), got.Options["num_ctx"])
}

func TestQueryServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"model not loaded"}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Query(context.Background(), "m", "p", nil)
	assert.Error(t, err)
}
