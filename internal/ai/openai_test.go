package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func completion(message map[string]interface{}) string {
	body, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []interface{}{map[string]interface{}{
			"index":         0,
			"finish_reason": "tool_calls",
			"message":       message,
		}},
	})
	return string(body)
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOpenAIProvider(quietLogger(), OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: server.URL + "/",
		Timeout: 2 * time.Second,
	})
}

func TestOpenAIProviderDisabled(t *testing.T) {
	p := NewOpenAIProvider(quietLogger(), OpenAIConfig{})
	assert.False(t, p.Enabled())

	result, err := p.ComputeValuation(context.Background(), "brief")
	require.NoError(t, err)
	assert.Nil(t, result.CalculatedValuation)
	assert.Empty(t, result.Justification)
}

func TestOpenAIProviderFunctionCall(t *testing.T) {
	var request map[string]interface{}
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &request)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion(map[string]interface{}{
			"role":    "assistant",
			"content": nil,
			"tool_calls": []interface{}{map[string]interface{}{
				"id":   "call_1",
				"type": "function",
				"function": map[string]interface{}{
					"name":      "submit_valuation",
					"arguments": `{"calculatedValuation":"402 500","justification":"<p>ok</p>"}`,
				},
			}},
		})))
	})
	assert.True(t, p.Enabled())

	result, err := p.ComputeValuation(context.Background(), "brief")
	require.NoError(t, err)
	require.NotNil(t, result.CalculatedValuation)
	assert.Equal(t, 402500.0, *result.CalculatedValuation)
	assert.Equal(t, "<p>ok</p>", result.Justification)

	require.NotNil(t, request)
	assert.Equal(t, "gpt-4o-mini", request["model"])
	toolChoice, ok := request["tool_choice"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "submit_valuation", toolChoice["function"].(map[string]interface{})["name"])
}

func TestOpenAIProviderContentFallback(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion(map[string]interface{}{
			"role":    "assistant",
			"content": "I think roughly four hundred thousand euros.",
		})))
	})

	result, err := p.ComputeValuation(context.Background(), "brief")
	require.NoError(t, err)
	assert.Nil(t, result.CalculatedValuation)
	assert.Equal(t, "I think roughly four hundred thousand euros.", result.Justification)
}

func TestOpenAIProviderHTTPError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
	})

	_, err := p.ComputeValuation(context.Background(), "brief")
	assert.Error(t, err)
}
