package openrouter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"computer-use-agent/internal/application/port/output"
	"computer-use-agent/internal/application/service"
	"computer-use-agent/internal/domain/entity"
	"computer-use-agent/internal/infrastructure/logger"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertResponseMessage_WithContent(t *testing.T) {
	msg := openai.ChatCompletionMessage{
		Role:    "assistant",
		Content: "Hello, world!",
	}

	result := convertResponseMessage(msg)

	assert.Equal(t, entity.RoleAssistant, result.Role)
	assert.Equal(t, "Hello, world!", result.Content)
	assert.Empty(t, result.ToolCalls)
}

func TestConvertResponseMessage_WithToolCalls(t *testing.T) {
	msg := openai.ChatCompletionMessage{
		Role: "assistant",
		ToolCalls: []openai.ToolCall{
			{
				ID:   "call_123",
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      "click_at",
					Arguments: `{"x":500,"y":500}`,
				},
			},
		},
	}

	result := convertResponseMessage(msg)

	assert.Equal(t, entity.RoleAssistant, result.Role)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "call_123", result.ToolCalls[0].ID)
	assert.Equal(t, "click_at", result.ToolCalls[0].Name)
	assert.JSONEq(t, `{"x":500,"y":500}`, result.ToolCalls[0].Arguments)
}

func TestConvertResponseMessage_DefaultsRole(t *testing.T) {
	result := convertResponseMessage(openai.ChatCompletionMessage{Content: "done"})
	assert.Equal(t, entity.RoleAssistant, result.Role)
}

func TestConvertMessages_ImagesBecomeMultiContent(t *testing.T) {
	messages := []entity.Message{
		{Role: entity.RoleSystem, Content: "system"},
		{
			Role:    entity.RoleUser,
			Content: "Turn 0.",
			Images:  []entity.Image{{MIMEType: "image/png", Data: []byte{1, 2, 3}}},
		},
	}

	result := convertMessages(messages)

	require.Len(t, result, 2)
	assert.Equal(t, "system", result[0].Content)
	assert.Empty(t, result[0].MultiContent)

	assert.Empty(t, result[1].Content)
	require.Len(t, result[1].MultiContent, 2)
	assert.Equal(t, openai.ChatMessagePartTypeText, result[1].MultiContent[0].Type)
	assert.Equal(t, "Turn 0.", result[1].MultiContent[0].Text)
	assert.Equal(t, openai.ChatMessagePartTypeImageURL, result[1].MultiContent[1].Type)
	assert.Equal(t, "data:image/png;base64,AQID", result[1].MultiContent[1].ImageURL.URL)
}

func TestConvertMessages_ToolMessages(t *testing.T) {
	messages := []entity.Message{
		{
			Role:      entity.RoleAssistant,
			Content:   "clicking",
			ToolCalls: []entity.ToolCall{{ID: "c1", Name: "click_at", Arguments: `{}`}},
		},
		{Role: entity.RoleTool, ToolCallID: "c1", Name: "click_at", Content: "ok"},
	}

	result := convertMessages(messages)

	require.Len(t, result, 2)
	require.Len(t, result[0].ToolCalls, 1)
	assert.Equal(t, openai.ToolTypeFunction, result[0].ToolCalls[0].Type)
	assert.Equal(t, "click_at", result[0].ToolCalls[0].Function.Name)
	assert.Equal(t, "tool", result[1].Role)
	assert.Equal(t, "c1", result[1].ToolCallID)
	assert.Equal(t, "ok", result[1].Content)
}

func TestDataURL_DefaultsToPNG(t *testing.T) {
	assert.True(t, strings.HasPrefix(dataURL(entity.Image{Data: []byte("x")}), "data:image/png;base64,"))
}

func TestConvertTools(t *testing.T) {
	tools := convertTools([]entity.ToolDefinition{{
		Name:        "navigate",
		Description: "Open a URL",
		Parameters:  map[string]interface{}{"type": "object"},
	}})

	require.Len(t, tools, 1)
	assert.Equal(t, openai.ToolTypeFunction, tools[0].Type)
	assert.Equal(t, "navigate", tools[0].Function.Name)
}

const completionBody = `{
  "id": "gen-1",
  "object": "chat.completion",
  "model": "test/model",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": "I will search.",
      "tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "navigate", "arguments": "{\"url\":\"example.com\"}"}}]
    }
  }],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *OpenRouterAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig("test-key", "test/model")
	cfg.BaseURL = srv.URL
	cfg.Timeout = 5 * time.Second
	cfg.Logger = logger.NewNop()
	return NewOpenRouterAdapter(cfg)
}

func TestChat_SendsScreenshotAndTools(t *testing.T) {
	var body map[string]interface{}
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody)
	})

	resp, err := adapter.Chat(context.Background(), output.ChatRequest{
		Messages: []entity.Message{
			{Role: entity.RoleSystem, Content: "sys"},
			{Role: entity.RoleUser, Content: "Turn 0.", Images: []entity.Image{{MIMEType: "image/png", Data: []byte("png")}}},
		},
		Tools: []entity.ToolDefinition{{Name: "navigate", Parameters: map[string]interface{}{"type": "object"}}},
	})
	require.NoError(t, err)

	assert.Equal(t, "I will search.", resp.Message.Content)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "navigate", resp.Message.ToolCalls[0].Name)

	assert.Equal(t, "test/model", body["model"])
	assert.Equal(t, "auto", body["tool_choice"])
	messages := body["messages"].([]interface{})
	require.Len(t, messages, 2)
	parts := messages[1].(map[string]interface{})["content"].([]interface{})
	require.Len(t, parts, 2)
	image := parts[1].(map[string]interface{})["image_url"].(map[string]interface{})
	assert.True(t, strings.HasPrefix(image["url"].(string), "data:image/png;base64,"))
}

func fastPolicy() service.RetryPolicy {
	return service.RetryPolicy{Initial: time.Millisecond, Multiplier: 1, MaxInterval: time.Millisecond, MaxAttempts: 3}
}

func TestChat_UnauthorizedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","code":401}}`)
	})

	err := service.Retry(context.Background(), fastPolicy(), func() error {
		_, err := adapter.Chat(context.Background(), output.ChatRequest{Messages: []entity.Message{{Role: entity.RoleUser, Content: "hi"}}})
		return err
	}, nil)

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestChat_ServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, `{"error":{"message":"upstream","code":502}}`)
			return
		}
		_, _ = io.WriteString(w, completionBody)
	})

	var resp *output.ChatResponse
	err := service.Retry(context.Background(), fastPolicy(), func() error {
		var err error
		resp, err = adapter.Chat(context.Background(), output.ChatRequest{Messages: []entity.Message{{Role: entity.RoleUser, Content: "hi"}}})
		return err
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "I will search.", resp.Message.Content)
}

func TestChat_NoChoices(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","choices":[]}`)
	})

	_, err := adapter.Chat(context.Background(), output.ChatRequest{Messages: []entity.Message{{Role: entity.RoleUser, Content: "hi"}}})
	assert.ErrorContains(t, err, "no choices")
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&openai.APIError{HTTPStatusCode: 429}))
	assert.True(t, retryable(&openai.APIError{HTTPStatusCode: 503}))
	assert.False(t, retryable(&openai.APIError{HTTPStatusCode: 400}))
	assert.False(t, retryable(&openai.RequestError{HTTPStatusCode: 403}))
	assert.False(t, retryable(context.Canceled))
}
