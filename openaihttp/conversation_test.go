package openaihttp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/LubyRuffy/gemini2o/geminiweb"
	"github.com/LubyRuffy/gemini2o/openaiapi"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testBuilder(t *testing.T, httpClient *http.Client) *conversationBuilder {
	t.Helper()
	b := newConversationBuilder(httpClient, zerolog.Nop())
	b.tempDir = t.TempDir()
	return b
}

func wireMessage(t *testing.T, raw string) openaiapi.OpenAIMessage {
	t.Helper()
	var msg openaiapi.OpenAIMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	return msg
}

func TestConvert_TextOnly(t *testing.T) {
	b := testBuilder(t, nil)

	messages, files, err := b.Convert(context.Background(), []openaiapi.OpenAIMessage{
		{Role: "user", Content: "hello"},
	})
	require.NoError(t, err)
	require.Empty(t, files)
	require.Equal(t, "Human: hello\n\nAssistant: ", geminiweb.FoldConversation(messages))
}

func TestConvert_MultiRole(t *testing.T) {
	b := testBuilder(t, nil)

	messages, _, err := b.Convert(context.Background(), []openaiapi.OpenAIMessage{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hey"},
		{Role: "tool", Content: "ignored"}, // 未知角色直接跳过
	})
	require.NoError(t, err)
	require.Len(t, messages, 3)
	require.Equal(t, schema.System, messages[0].Role)
	require.Equal(t, schema.User, messages[1].Role)
	require.Equal(t, schema.Assistant, messages[2].Role)
}

func TestConvert_EmptyAndInvalid(t *testing.T) {
	b := testBuilder(t, nil)

	_, _, err := b.Convert(context.Background(), nil)
	require.Error(t, err)

	_, _, err = b.Convert(context.Background(), []openaiapi.OpenAIMessage{
		{Role: "function", Content: "x"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no valid messages")
}

func TestConvert_DataURLImage(t *testing.T) {
	b := testBuilder(t, nil)

	payload := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	msg := wireMessage(t, fmt.Sprintf(`{
		"role": "user",
		"content": [
			{"type": "text", "text": "what is this"},
			{"type": "image_url", "image_url": {"url": "data:image/png;base64,%s"}}
		]
	}`, payload))

	messages, files, err := b.Convert(context.Background(), []openaiapi.OpenAIMessage{msg})
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.True(t, strings.HasSuffix(files[0], ".png"))

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(data))

	require.Len(t, messages, 1)
	require.Contains(t, messages[0].Content, "what is this")
	require.Contains(t, messages[0].Content, fmt.Sprintf("[Image: %s] ", files[0]))
}

func TestConvert_DataURLImage_BadBase64(t *testing.T) {
	b := testBuilder(t, nil)

	msg := wireMessage(t, `{
		"role": "user",
		"content": [{"type": "image_url", "image_url": {"url": "data:image/png;base64,!!!not-base64!!!"}}]
	}`)

	messages, files, err := b.Convert(context.Background(), []openaiapi.OpenAIMessage{msg})
	require.NoError(t, err)
	require.Empty(t, files)
	require.Contains(t, messages[0].Content, "[Image processing failed]")
}

func TestConvert_RemoteImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()
	b := testBuilder(t, srv.Client())

	msg := wireMessage(t, fmt.Sprintf(`{
		"role": "user",
		"content": [{"type": "image_url", "image_url": {"url": "%s/cat.jpg"}}]
	}`, srv.URL))

	messages, files, err := b.Convert(context.Background(), []openaiapi.OpenAIMessage{msg})
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.True(t, strings.HasSuffix(files[0], ".jpg"))
	require.Contains(t, messages[0].Content, fmt.Sprintf("[Image from URL: %s/cat.jpg] ", srv.URL))
}

func TestConvert_RemoteImage_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	b := testBuilder(t, srv.Client())

	msg := wireMessage(t, fmt.Sprintf(`{
		"role": "user",
		"content": [{"type": "image_url", "image_url": {"url": "%s/missing.png"}}]
	}`, srv.URL))

	messages, files, err := b.Convert(context.Background(), []openaiapi.OpenAIMessage{msg})
	require.NoError(t, err)
	require.Empty(t, files)
	require.Contains(t, messages[0].Content, "[Image download failed]")
}

func TestConvert_UnsupportedScheme(t *testing.T) {
	b := testBuilder(t, nil)

	msg := wireMessage(t, `{
		"role": "user",
		"content": [{"type": "image_url", "image_url": {"url": "ftp://example.com/a.png"}}]
	}`)

	messages, files, err := b.Convert(context.Background(), []openaiapi.OpenAIMessage{msg})
	require.NoError(t, err)
	require.Empty(t, files)
	require.Contains(t, messages[0].Content, "[Unsupported image format]")
}

func TestExtForMIME(t *testing.T) {
	require.Equal(t, ".jpg", extForMIME("image/jpeg"))
	require.Equal(t, ".jpg", extForMIME("image/jpg"))
	require.Equal(t, ".gif", extForMIME("image/gif"))
	require.Equal(t, ".webp", extForMIME("image/webp"))
	require.Equal(t, ".png", extForMIME("image/png"))
	require.Equal(t, ".png", extForMIME("application/octet-stream"))
}
