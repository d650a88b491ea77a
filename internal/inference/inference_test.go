package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2:3b", req.Model)
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		_ = json.NewEncoder(w).Encode(ollamaResponse{Message: Turn{Role: "assistant", Content: "Hi there"}, Done: true})
	}))
	defer srv.Close()

	g := NewOllama(srv.URL+"/", 0.7)
	reply, err := g.Generate(context.Background(), "llama3.2:3b", []Turn{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "Hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", reply.Text)
}

func TestOllamaErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   ErrorKind
	}{
		{"missing model", http.StatusNotFound, `{"error":"model not found"}`, KindUnsupportedModel},
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, KindRemote},
		{"empty reply", http.StatusOK, `{"message":{"role":"assistant","content":""},"done":true}`, KindRemote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewOllama(srv.URL, 0).Generate(context.Background(), "m", nil)
			require.Error(t, err)
			assert.True(t, IsKind(err, tt.kind), "got %v", err)
		})
	}
}

func TestOllamaTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewOllama(srv.URL, 0).Generate(ctx, "m", nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTimeout), "got %v", err)
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hosted hi"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	g := NewOpenAI("sk-test", srv.URL+"/v1", 0.2)
	reply, err := g.Generate(context.Background(), "gpt-4o-mini", []Turn{{Role: "user", Content: "Hello"}})
	require.NoError(t, err)
	assert.Equal(t, "hosted hi", reply.Text)
}

func TestOpenAIRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI("k", srv.URL+"/v1", 0).Generate(context.Background(), "gpt-4o-mini", nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindRemote), "got %v", err)
}

type stubGateway struct {
	calls []string
}

func (s *stubGateway) Generate(_ context.Context, model string, _ []Turn) (Reply, error) {
	s.calls = append(s.calls, model)
	return Reply{Text: "ok", Elapsed: time.Millisecond}, nil
}

func TestRouterDispatch(t *testing.T) {
	local, hosted := &stubGateway{}, &stubGateway{}
	r := NewRouter(NewRegistry(true), map[Provider]Gateway{
		ProviderOllama: local,
		ProviderOpenAI: hosted,
	}, zerolog.Nop())

	_, err := r.Generate(context.Background(), "gemma3", nil)
	require.NoError(t, err)
	_, err = r.Generate(context.Background(), "gpt-4o-mini", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"gemma3"}, local.calls)
	assert.Equal(t, []string{"gpt-4o-mini"}, hosted.calls)

	_, err = r.Generate(context.Background(), "nope", nil)
	assert.True(t, IsKind(err, KindUnsupportedModel))
}

func TestRouterMissingProvider(t *testing.T) {
	r := NewRouter(NewRegistry(true), map[Provider]Gateway{ProviderOllama: &stubGateway{}}, zerolog.Nop())
	_, err := r.Generate(context.Background(), "gpt-4o-mini", nil)
	assert.True(t, IsKind(err, KindUnsupportedModel))
}

func TestRegistry(t *testing.T) {
	local := NewRegistry(false)
	_, ok := local.Lookup("gpt-4o-mini")
	assert.False(t, ok)
	assert.Equal(t, DefaultModel, local.Default().Name)

	all := NewRegistry(true).List()
	require.Len(t, all, 3)
	assert.Equal(t, DefaultModel, all[0].Name)
	assert.True(t, all[0].Default)
	m, ok := NewRegistry(true).Lookup("gpt-4o-mini")
	require.True(t, ok)
	assert.True(t, m.Premium)
}
