package openaiapi

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContentParts(t *testing.T) {
	parts := ContentParts("hello")
	require.Len(t, parts, 1)
	require.Equal(t, "text", parts[0].Type)
	require.Equal(t, "hello", parts[0].Text)

	// 多模态数组：JSON 解码后是 []any，保持原始顺序
	var msg OpenAIMessage
	require.NoError(t, json.Unmarshal([]byte(`{
		"role": "user",
		"content": [
			{"type": "text", "text": "what is this"},
			{"type": "image_url", "image_url": {"url": "data:image/png;base64,AAAA"}},
			{"type": "text", "text": "answer briefly"}
		]
	}`), &msg))
	parts = ContentParts(msg.Content)
	require.Len(t, parts, 3)
	require.Equal(t, "what is this", parts[0].Text)
	require.Equal(t, "image_url", parts[1].Type)
	require.NotNil(t, parts[1].ImageURL)
	require.Equal(t, "data:image/png;base64,AAAA", parts[1].ImageURL.URL)
	require.Equal(t, "answer briefly", parts[2].Text)

	// null / 数字等内容返回空
	require.Nil(t, ContentParts(nil))
	require.Nil(t, ContentParts(42.0))
}

func TestNewChatCompletionID(t *testing.T) {
	id := NewChatCompletionID()
	require.True(t, strings.HasPrefix(id, "chatcmpl-"))
	require.NotEqual(t, id, NewChatCompletionID())
}

func TestToChatChunk(t *testing.T) {
	chunk := ToChatChunk("chatcmpl-1", "gemini-2.5-flash", "hi", nil)
	data, err := json.Marshal(chunk)
	require.NoError(t, err)
	require.Contains(t, string(data), `"object":"chat.completion.chunk"`)
	require.Contains(t, string(data), `"content":"hi"`)

	// 终止块：content 省略，finish_reason 为 "stop"
	stop := "stop"
	final := ToChatChunk("chatcmpl-1", "gemini-2.5-flash", "", &stop)
	data, err = json.Marshal(final)
	require.NoError(t, err)
	require.NotContains(t, string(data), `"content"`)
	require.NotContains(t, string(data), `"role"`)
	require.Contains(t, string(data), `"finish_reason":"stop"`)
}

func TestToChatCompletion(t *testing.T) {
	resp := ToChatCompletion("chatcmpl-1", "gemini-2.5-pro", "answer", 7, 3)
	require.Equal(t, "chat.completion", resp.Object)
	require.Len(t, resp.Choices, 1)
	require.Equal(t, "answer", resp.Choices[0].Message.Content)
	require.Equal(t, 10, resp.Usage.TotalTokens)
}
