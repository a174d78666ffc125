// internal/llmclient/google_client_test.go
package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/config"
)

// -- Test Setup Helpers --

func validModelConfig() config.ModelConfig {
	return config.ModelConfig{
		Model:           "gemini-2.0-flash",
		APIKey:          "test-api-key",
		APITimeout:      10 * time.Second,
		MaxTokens:       2048,
		Temperature:     0.2,
		InputCostPer1K:  0.10,
		OutputCostPer1K: 0.40,
	}
}

// setupGoogleClient rigs up a GoogleClient pointed at a mock HTTP server.
func setupGoogleClient(t *testing.T, handler http.HandlerFunc) (*GoogleClient, *observer.ObservedLogs) {
	t.Helper()
	if handler == nil {
		handler = func(w http.ResponseWriter, r *http.Request) {
			t.Log("Warning: Unexpected HTTP request in test.")
			w.WriteHeader(http.StatusNotFound)
		}
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	loggerCore, observedLogs := observer.New(zap.InfoLevel)
	cfg := validModelConfig()
	cfg.Endpoint = server.URL

	client, err := NewGoogleClient(cfg, zap.New(loggerCore))
	require.NoError(t, err, "NewGoogleClient initialization failed")
	client.httpClient.Timeout = 5 * time.Second
	return client, observedLogs
}

func geminiSuccessBody(text string, promptTokens, completionTokens int) string {
	return fmt.Sprintf(`{
		"candidates": [{"content": {"parts": [{"text": %q}], "role": "model"}, "finishReason": "STOP"}],
		"usageMetadata": {"promptTokenCount": %d, "candidatesTokenCount": %d, "totalTokenCount": %d}
	}`, text, promptTokens, completionTokens, promptTokens+completionTokens)
}

func testRequest() schemas.GenerationRequest {
	return schemas.GenerationRequest{
		SystemPrompt: "You are a browsing agent.",
		UserPrompt:   "What is on this page?",
		Options:      schemas.GenerationOptions{Temperature: 0.2, ForceJSONFormat: true},
	}
}

// -- Tests --

func TestNewGoogleClient_RequiresAPIKey(t *testing.T) {
	cfg := validModelConfig()
	cfg.APIKey = ""
	_, err := NewGoogleClient(cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestGoogleClient_Generate_Success(t *testing.T) {
	var capturedPayload geminiRequestPayload
	client, _ := setupGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-api-key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&capturedPayload))
		fmt.Fprint(w, geminiSuccessBody(`{"tool":"scroll"}`, 1000, 50))
	})

	result, err := client.Generate(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, `{"tool":"scroll"}`, result.Content)
	assert.Equal(t, 1000, result.Usage.PromptTokens)
	assert.Equal(t, 50, result.Usage.CompletionTokens)
	assert.InDelta(t, 0.12, result.Usage.EstimatedCost, 1e-9)

	require.NotNil(t, capturedPayload.SystemInstruction)
	assert.Equal(t, "You are a browsing agent.", capturedPayload.SystemInstruction.Parts[0].Text)
	assert.Equal(t, "application/json", capturedPayload.GenerationConfig.ResponseMimeType)
	require.Len(t, capturedPayload.Contents, 1)
	assert.Equal(t, "What is on this page?", capturedPayload.Contents[0].Parts[0].Text)
}

func TestGoogleClient_Generate_AttachesImages(t *testing.T) {
	var capturedPayload geminiRequestPayload
	client, _ := setupGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&capturedPayload))
		fmt.Fprint(w, geminiSuccessBody("ok", 10, 5))
	})

	req := testRequest()
	req.Images = []schemas.ImageAttachment{{MIMEType: "image/jpeg", Data: []byte{0xFF, 0xD8}}}
	_, err := client.Generate(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, capturedPayload.Contents[0].Parts, 2)
	inline := capturedPayload.Contents[0].Parts[1].InlineData
	require.NotNil(t, inline)
	assert.Equal(t, "image/jpeg", inline.MIMEType)
	assert.NotEmpty(t, inline.Data)
}

func TestGoogleClient_Generate_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := setupGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error": "rate limited"}`)
			return
		}
		fmt.Fprint(w, geminiSuccessBody("recovered", 10, 5))
	})

	result, err := client.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Content)
	assert.Equal(t, int32(2), calls.Load(), "expected exactly one retry")
}

func TestGoogleClient_Generate_PermanentErrorDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	client, _ := setupGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": "invalid request"}`)
	})

	_, err := client.Generate(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, schemas.IsCategory(err, schemas.ErrProviderError))
	assert.Equal(t, int32(1), calls.Load(), "permanent errors must not be retried")
}

func TestGoogleClient_Generate_SafetyBlockIsPermanent(t *testing.T) {
	var calls atomic.Int32
	client, _ := setupGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"candidates": [{"content": {"parts": []}, "finishReason": "SAFETY"}]}`)
	})

	_, err := client.Generate(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
	assert.Equal(t, int32(1), calls.Load())
}

func TestEstimateCost(t *testing.T) {
	cfg := config.ModelConfig{InputCostPer1K: 0.5, OutputCostPer1K: 1.5}
	assert.InDelta(t, 0.5+1.5, estimateCost(cfg, 1000, 1000), 1e-9)
	assert.Zero(t, estimateCost(config.ModelConfig{}, 1000, 1000))
}
