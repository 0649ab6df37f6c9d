package geminiweb

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/LubyRuffy/gemini2o"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
)

type generateCall struct {
	prompt string
	files  []string
}

type fakeGenerator struct {
	mu            sync.Mutex
	calls         []generateCall
	reply         *Reply
	failWithFiles bool
	failAll       bool
}

func (g *fakeGenerator) GenerateContent(ctx context.Context, prompt string, files []string, model gemini2o.Model) (*Reply, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, generateCall{prompt: prompt, files: files})
	if g.failAll {
		return nil, fmt.Errorf("backend down")
	}
	if g.failWithFiles && len(files) > 0 {
		return nil, fmt.Errorf("image rejected")
	}
	if g.reply == nil {
		return &Reply{Text: "ok"}, nil
	}
	return g.reply, nil
}

func stageTempFiles(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, 0, n)
	for i := 0; i < n; i++ {
		p := filepath.Join(dir, fmt.Sprintf("img_%d.png", i))
		require.NoError(t, os.WriteFile(p, []byte("png-bytes"), 0o600))
		paths = append(paths, p)
	}
	return paths
}

func TestFoldConversation(t *testing.T) {
	got := FoldConversation([]*schema.Message{schema.UserMessage("hello")})
	require.Equal(t, "Human: hello\n\nAssistant: ", got)

	got = FoldConversation([]*schema.Message{
		schema.SystemMessage("be brief"),
		schema.UserMessage("hi"),
		schema.AssistantMessage("hey", nil),
		{Role: "tool", Content: "ignored"},
		nil,
	})
	require.Equal(t, "System: be brief\n\nHuman: hi\n\nAssistant: hey\n\nAssistant: ", got)
}

func TestChatModel_Generate_TextOnly(t *testing.T) {
	gen := &fakeGenerator{reply: &Reply{Text: "hi there"}}
	m, err := NewChatModel(ChatModelConfig{Generator: gen})
	require.NoError(t, err)

	msg, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hello")})
	require.NoError(t, err)
	require.Equal(t, "hi there", msg.Content)
	require.Equal(t, schema.Assistant, msg.Role)

	require.Len(t, gen.calls, 1)
	require.Equal(t, "Human: hello\n\nAssistant: ", gen.calls[0].prompt)
	require.Empty(t, gen.calls[0].files)

	// "Human: hello\n\nAssistant: " 按空白切 3 个 token
	require.NotNil(t, msg.ResponseMeta)
	require.NotNil(t, msg.ResponseMeta.Usage)
	require.Equal(t, 3, msg.ResponseMeta.Usage.PromptTokens)
	require.Equal(t, 2, msg.ResponseMeta.Usage.CompletionTokens)
	require.Equal(t, 5, msg.ResponseMeta.Usage.TotalTokens)
}

func TestChatModel_Generate_CleansUpFilesOnSuccess(t *testing.T) {
	paths := stageTempFiles(t, 2)
	gen := &fakeGenerator{}
	m, err := NewChatModel(ChatModelConfig{Generator: gen})
	require.NoError(t, err)

	_, err = m.WithFiles(paths).Generate(context.Background(), []*schema.Message{schema.UserMessage("look")})
	require.NoError(t, err)

	require.Len(t, gen.calls, 1)
	require.Equal(t, paths, gen.calls[0].files)
	for _, p := range paths {
		_, statErr := os.Stat(p)
		require.True(t, os.IsNotExist(statErr), "staged file should be removed: %s", p)
	}
}

func TestChatModel_Generate_CleansUpFilesOnError(t *testing.T) {
	paths := stageTempFiles(t, 1)
	gen := &fakeGenerator{failAll: true}
	m, err := NewChatModel(ChatModelConfig{Generator: gen})
	require.NoError(t, err)

	_, err = m.WithFiles(paths).Generate(context.Background(), []*schema.Message{schema.UserMessage("look")})
	require.Error(t, err)

	for _, p := range paths {
		_, statErr := os.Stat(p)
		require.True(t, os.IsNotExist(statErr), "staged file should be removed even on error: %s", p)
	}
}

func TestChatModel_Generate_FallsBackToTextOnly(t *testing.T) {
	paths := stageTempFiles(t, 1)
	gen := &fakeGenerator{failWithFiles: true, reply: &Reply{Text: "degraded"}}
	m, err := NewChatModel(ChatModelConfig{Generator: gen})
	require.NoError(t, err)

	msg, err := m.WithFiles(paths).Generate(context.Background(), []*schema.Message{schema.UserMessage("look")})
	require.NoError(t, err)
	require.Equal(t, "degraded", msg.Content)

	require.Len(t, gen.calls, 2)
	require.NotEmpty(t, gen.calls[0].files)
	require.Empty(t, gen.calls[1].files)
}

func TestChatModel_Generate_SkipsMissingFiles(t *testing.T) {
	gen := &fakeGenerator{}
	m, err := NewChatModel(ChatModelConfig{Generator: gen})
	require.NoError(t, err)

	_, err = m.WithFiles([]string{"/nonexistent/img.png"}).Generate(context.Background(), []*schema.Message{schema.UserMessage("look")})
	require.NoError(t, err)

	require.Len(t, gen.calls, 1)
	require.Empty(t, gen.calls[0].files)
}

func TestChatModel_Generate_EmptyReplyFallback(t *testing.T) {
	gen := &fakeGenerator{reply: &Reply{Text: "   "}}
	m, err := NewChatModel(ChatModelConfig{Generator: gen})
	require.NoError(t, err)

	msg, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	require.Equal(t, EmptyReplyFallback, msg.Content)
}

func TestChatModel_Stream_ChunksConcatToReply(t *testing.T) {
	reply := "hello  streaming\nworld "
	gen := &fakeGenerator{reply: &Reply{Text: reply}}
	m, err := NewChatModel(ChatModelConfig{Generator: gen, StreamDelay: time.Millisecond})
	require.NoError(t, err)

	sr, err := m.Stream(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	defer sr.Close()

	var got string
	count := 0
	for {
		msg, err := sr.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got += msg.Content
		count++
	}
	require.Equal(t, reply, got)
	require.Greater(t, count, 1)
}

func TestChatModel_Stream_GenerateErrorPropagates(t *testing.T) {
	gen := &fakeGenerator{failAll: true}
	m, err := NewChatModel(ChatModelConfig{Generator: gen, StreamDelay: time.Millisecond})
	require.NoError(t, err)

	sr, err := m.Stream(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	defer sr.Close()

	_, err = sr.Recv()
	require.Error(t, err)
}

func TestSplitStreamChunks(t *testing.T) {
	require.Nil(t, splitStreamChunks(""))
	require.Equal(t, []string{"one"}, splitStreamChunks("one"))
	require.Equal(t, []string{"a ", "b"}, splitStreamChunks("a b"))
	require.Equal(t, []string{"a \n ", "b\t", "c  "}, splitStreamChunks("a \n b\tc  "))
	require.Equal(t, []string{"你好，世界"}, splitStreamChunks("你好，世界"))
}
