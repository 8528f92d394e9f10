package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/pkg/types"
)

type stubAdapter struct {
	provider types.Provider
}

func (s stubAdapter) Provider() types.Provider { return s.provider }

func (s stubAdapter) BuildRequest([]types.Turn, types.Message, types.ProviderMeta, Credential) (*Request, error) {
	return &Request{}, nil
}

func (s stubAdapter) OpenStream(io.ReadCloser) Stream { return nil }

func (s stubAdapter) TranslateToolCall(types.ToolCall) (json.RawMessage, error) { return nil, nil }

func (s stubAdapter) TranslateToolOutput(string, string) (json.RawMessage, error) { return nil, nil }

func TestRegistryGet(t *testing.T) {
	r := NewRegistry(stubAdapter{provider: types.ProviderOpenAI})

	a, err := r.Get(types.ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, types.ProviderOpenAI, a.Provider())

	_, err = r.Get(types.ProviderGemini)
	assert.ErrorIs(t, err, ErrUnknownProvider)

	r.Register(stubAdapter{provider: types.ProviderGemini})
	_, err = r.Get(types.ProviderGemini)
	assert.NoError(t, err)
	assert.Len(t, r.Providers(), 2)
}

func TestStaticResolver(t *testing.T) {
	r := NewStaticResolver(map[string]Credential{
		"openai-default": {APIKey: "sk-1"},
	})

	cred, err := r.Resolve("openai-default")
	require.NoError(t, err)
	assert.Equal(t, "sk-1", cred.APIKey)

	_, err = r.Resolve("missing")
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	r.Set("missing", Credential{APIKey: "sk-2", BaseURL: "http://localhost:1"})
	cred, err = r.Resolve("missing")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:1", cred.BaseURL)
}

func TestEnvResolver(t *testing.T) {
	t.Setenv("PARLEY_TEST_KEY", "sk-env")
	t.Setenv("PARLEY_TEST_KEY_BASE_URL", "http://proxy:8080")

	cred, err := EnvResolver{}.Resolve("PARLEY_TEST_KEY")
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cred.APIKey)
	assert.Equal(t, "http://proxy:8080", cred.BaseURL)

	_, err = EnvResolver{}.Resolve("PARLEY_TEST_UNSET")
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestHTTPTransportOpenStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"model":"m"}`, string(body))
		w.Write([]byte("data: hello\n\n"))
	}))
	defer srv.Close()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer sk-test")

	tr := NewHTTPTransport()
	rc, err := tr.OpenStream(context.Background(), &Request{
		Method:  http.MethodPost,
		URL:     srv.URL,
		Headers: headers,
		Body:    []byte(`{"model":"m"}`),
	})
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "data: hello\n\n", string(got))
}

func TestHTTPTransportErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport()
	_, err := tr.OpenStream(context.Background(), &Request{Method: http.MethodPost, URL: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestHTTPTransportContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := NewHTTPTransport()
	_, err := tr.OpenStream(ctx, &Request{Method: http.MethodGet, URL: "http://127.0.0.1:0"})
	assert.Error(t, err)
}
