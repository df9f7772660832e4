package sampling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/require"
)

func mockAnthropicServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "msg_test", "type": "message", "role": "assistant",
			"model": "claude-sonnet-4-5",
			"usage": map[string]any{"input_tokens": 10, "output_tokens": 5},
			"content": []map[string]any{
				{"type": "text", "text": text},
			},
		})
	}))
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := New(Options{})
	require.ErrorIs(t, err, ErrAPIKeyRequired)
}

func TestCompleteReturnsProviderText(t *testing.T) {
	server := mockAnthropicServer(t, `{"subtasks":[{"id":"a"}]}`)
	defer server.Close()

	c, err := New(Options{APIKey: "test-key", MaxRetries: 0}, option.WithBaseURL(server.URL))
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), PhaseDecompose, "decompose this")
	require.NoError(t, err)
	require.Equal(t, `{"subtasks":[{"id":"a"}]}`, out)
}

func TestDecomposeResponseValidate(t *testing.T) {
	valid := DecomposeResponse{Subtasks: []DecomposeSubtask{
		{ID: "a"}, {ID: "b", Dependencies: []string{"a"}},
	}}
	require.NoError(t, valid.Validate())

	empty := DecomposeResponse{}
	require.Error(t, empty.Validate())

	badDep := DecomposeResponse{Subtasks: []DecomposeSubtask{{ID: "a", Dependencies: []string{"ghost"}}}}
	require.Error(t, badDep.Validate())
}

func TestResolveResponseValidate(t *testing.T) {
	require.NoError(t, ResolveResponse{ChosenIndex: 1}.Validate(2))
	require.Error(t, ResolveResponse{ChosenIndex: 2}.Validate(2))
	require.Error(t, ResolveResponse{ChosenIndex: -1}.Validate(2))
}

func TestSynthesizeResponseValidate(t *testing.T) {
	require.NoError(t, SynthesizeResponse{Status: IntegrationReady}.Validate())
	require.Error(t, SynthesizeResponse{Status: "bogus"}.Validate())
}
