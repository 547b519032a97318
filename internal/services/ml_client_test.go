package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowgraph-mcp/backend/internal/llm"
)

func TestHTTPMLClient_Embed(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"bare array", `[0.5, 0.25]`},
		{"wrapped", `{"embedding": [0.5, 0.25]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/embedding", r.URL.Path)
				var body map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "hello", body["text"])
				_, _ = w.Write([]byte(tt.response))
			}))
			defer srv.Close()

			vec, err := NewHTTPMLClient(srv.URL, time.Second).Embed(context.Background(), "hello")
			require.NoError(t, err)
			assert.Equal(t, []float32{0.5, 0.25}, vec)
		})
	}
}

func TestHTTPMLClient_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPMLClient(srv.URL, time.Second).Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, llm.ErrProviderUnavailable)
}
