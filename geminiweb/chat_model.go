package geminiweb

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/LubyRuffy/gemini2o"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

const (
	// DefaultGenerateTimeout 是单次 generate 调用的超时时间。
	DefaultGenerateTimeout = 120 * time.Second
	// DefaultStreamDelay 是流式输出相邻 chunk 之间的间隔，用于模拟打字效果。
	DefaultStreamDelay = 20 * time.Millisecond
)

// ContentGenerator 是 ChatModel 依赖的后端能力，由 *Client 实现。
type ContentGenerator interface {
	GenerateContent(ctx context.Context, prompt string, files []string, model gemini2o.Model) (*Reply, error)
}

type ChatModelConfig struct {
	// Generator 必填，通常来自 SessionHolder.EnsureReady。
	Generator ContentGenerator
	// Model 为空时使用枚举第一项。
	Model gemini2o.Model
	// GenerateTimeout 单次后端调用超时，默认 DefaultGenerateTimeout。
	GenerateTimeout time.Duration
	// StreamDelay 流式 chunk 间隔，默认 DefaultStreamDelay。
	StreamDelay time.Duration
	Logger      zerolog.Logger
}

// ChatModel 是基于 Gemini 网页版接口的 eino ChatModel 实现。
// 一次 Generate/Stream 即一轮完整编排：折叠对话、携带图片调用后端、
// 失败时降级为纯文本重试、清理暂存图片、整理回复并估算用量。
type ChatModel struct {
	config ChatModelConfig
	files  []string
}

func NewChatModel(config ChatModelConfig) (*ChatModel, error) {
	if config.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if config.Model.Name == "" {
		config.Model = gemini2o.Models()[0]
	}
	if config.GenerateTimeout <= 0 {
		config.GenerateTimeout = DefaultGenerateTimeout
	}
	if config.StreamDelay <= 0 {
		config.StreamDelay = DefaultStreamDelay
	}
	return &ChatModel{config: config}, nil
}

// WithFiles 返回携带暂存图片路径的副本。
// 文件所有权随之转移：本轮编排结束时会尽力删除这些文件。
func (m *ChatModel) WithFiles(paths []string) *ChatModel {
	cloned := *m
	cloned.files = paths
	return &cloned
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...einoModel.Option) (*schema.Message, error) {
	text, usage, err := m.doGenerate(ctx, FoldConversation(input))
	if err != nil {
		return nil, err
	}
	msg := schema.AssistantMessage(text, nil)
	msg.ResponseMeta = &schema.ResponseMeta{
		FinishReason: "stop",
		Usage:        usage,
	}
	return msg, nil
}

// Stream 在完整回复生成后按词切片逐段下发，模拟真实的流式输出。
// 断连（ctx 取消或读端关闭）时生成器立即停止。
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, _ ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	sr, sw := schema.Pipe[*schema.Message](64)
	go func() {
		defer sw.Close()

		text, usage, err := m.doGenerate(ctx, FoldConversation(input))
		if err != nil {
			sw.Send(nil, err)
			return
		}

		chunks := splitStreamChunks(text)
		for i, chunk := range chunks {
			if ctx.Err() != nil {
				return
			}
			msg := &schema.Message{Role: schema.Assistant, Content: chunk}
			if i == len(chunks)-1 {
				msg.ResponseMeta = &schema.ResponseMeta{Usage: usage}
			}
			if closed := sw.Send(msg, nil); closed {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.config.StreamDelay):
			}
		}
	}()
	return sr, nil
}

// doGenerate 执行一轮后端调用并返回整理后的回复文本与用量估算。
// 无论成败，暂存图片都会在返回前尽力删除。
func (m *ChatModel) doGenerate(ctx context.Context, prompt string) (string, *schema.TokenUsage, error) {
	defer m.cleanupFiles()

	genCtx, cancel := context.WithTimeout(ctx, m.config.GenerateTimeout)
	defer cancel()

	files := m.existingFiles()
	var reply *Reply
	var err error
	if len(files) > 0 {
		reply, err = m.config.Generator.GenerateContent(genCtx, prompt, files, m.config.Model)
		if err != nil {
			// 带图请求失败时降级为纯文本重试，不把图片错误抛给调用方
			m.config.Logger.Warn().Err(err).Msg("image request failed, falling back to text-only")
			reply, err = m.config.Generator.GenerateContent(genCtx, prompt, nil, m.config.Model)
		}
	} else {
		reply, err = m.config.Generator.GenerateContent(genCtx, prompt, nil, m.config.Model)
	}
	if err != nil {
		return "", nil, fmt.Errorf("generate content failed: %w", err)
	}

	text := FormatReply(reply)
	usage := &schema.TokenUsage{
		PromptTokens:     len(strings.Fields(prompt)),
		CompletionTokens: len(strings.Fields(text)),
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return text, usage, nil
}

// existingFiles 过滤掉已不存在的暂存文件。
func (m *ChatModel) existingFiles() []string {
	valid := make([]string, 0, len(m.files))
	for _, path := range m.files {
		if _, err := os.Stat(path); err != nil {
			m.config.Logger.Warn().Str("path", path).Msg("staged image missing, skipped")
			continue
		}
		valid = append(valid, path)
	}
	return valid
}

func (m *ChatModel) cleanupFiles() {
	for _, path := range m.files {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.config.Logger.Warn().Err(err).Str("path", path).Msg("failed to delete staged image")
		}
	}
}

// FoldConversation 把消息列表折叠成一段线性对话文本，
// 末尾追加 "Assistant: " 引导后端作答。未知角色会被忽略。
func FoldConversation(input []*schema.Message) string {
	var b strings.Builder
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			b.WriteString("System: ")
		case schema.User:
			b.WriteString("Human: ")
		case schema.Assistant:
			b.WriteString("Assistant: ")
		default:
			continue
		}
		b.WriteString(msg.Content)
		b.WriteString("\n\n")
	}
	b.WriteString("Assistant: ")
	return b.String()
}

// splitStreamChunks 按词切片，每个词连同其后的空白一起下发，
// 保证所有 chunk 拼接后与原文完全一致（参见流式终止性质的测试）。
func splitStreamChunks(s string) []string {
	if s == "" {
		return nil
	}
	var chunks []string
	start := 0
	inSpace := false
	for i, r := range s {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace {
			chunks = append(chunks, s[start:i])
			start = i
			inSpace = false
		}
	}
	if start < len(s) {
		chunks = append(chunks, s[start:])
	}
	return chunks
}
