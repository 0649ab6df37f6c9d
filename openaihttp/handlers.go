package openaihttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/LubyRuffy/gemini2o"
	"github.com/LubyRuffy/gemini2o/geminiweb"
	"github.com/LubyRuffy/gemini2o/openaiapi"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

type httpError struct {
	Status  int
	Message string
	Err     error
}

func (e *httpError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Message) != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

func (e *httpError) Unwrap() error { return e.Err }

type chatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...einoModel.Option) (*schema.Message, error)
	Stream(ctx context.Context, input []*schema.Message, opts ...einoModel.Option) (*schema.StreamReader[*schema.Message], error)
}

// Handlers 返回带鉴权的 net/http 处理器（models/chat.completions/upload）。
func Handlers(cfg Config) (modelsHandler, chatHandler, uploadHandler http.HandlerFunc, err error) {
	resolved, err := resolveConfig(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	compat, err := newCompatHandler(compatConfig{
		Now:               time.Now,
		NewChatCompletion: openaiapi.NewChatCompletionID,
		WriteJSON:         writeJSON,
		WriteOpenAIError:  writeOpenAIError,
		NewChatModel:      newChatModelFactory(resolved),
		Builder:           newConversationBuilder(resolved.HTTPClient, resolved.Logger),
		Logger:            resolved.Logger,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	auth := newAuthMiddleware(resolved.Secrets, resolved.Logger)
	return auth(compat.handleModels), auth(compat.handleChatCompletions), auth(compat.handleUpload), nil
}

// newChatModelFactory 把 SessionHolder 封装成按请求构建 ChatModel 的工厂。
// 初始化失败映射为带 500 状态的 httpError，下一个请求会自动重试初始化。
func newChatModelFactory(resolved resolvedConfig) func(ctx context.Context, model gemini2o.Model, files []string) (chatModel, error) {
	return func(ctx context.Context, model gemini2o.Model, files []string) (chatModel, error) {
		client, err := resolved.Holder.EnsureReady(ctx)
		if err != nil {
			return nil, &httpError{
				Status:  http.StatusInternalServerError,
				Message: fmt.Sprintf("gemini backend not ready: %v", err),
				Err:     err,
			}
		}

		m, err := geminiweb.NewChatModel(geminiweb.ChatModelConfig{
			Generator:       client,
			Model:           model,
			GenerateTimeout: resolved.GenerateTimeout,
			StreamDelay:     resolved.StreamDelay,
			Logger:          resolved.Logger,
		})
		if err != nil {
			return nil, &httpError{
				Status:  http.StatusInternalServerError,
				Message: "failed to create chat model",
				Err:     err,
			}
		}
		return m.WithFiles(files), nil
	}
}

type resolvedConfig struct {
	BasePath        string
	Holder          *geminiweb.SessionHolder
	Secrets         []string
	HTTPClient      *http.Client
	GenerateTimeout time.Duration
	StreamDelay     time.Duration
	Logger          zerolog.Logger
}

func resolveConfig(cfg Config) (resolvedConfig, error) {
	if cfg.Cookies == nil {
		return resolvedConfig{}, fmt.Errorf("Cookies is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	holder, err := geminiweb.NewSessionHolder(geminiweb.SessionHolderConfig{
		Cookies:     cfg.Cookies,
		BaseURL:     cfg.BaseURL,
		UploadURL:   cfg.UploadURL,
		HTTPClient:  client,
		InitTimeout: cfg.InitTimeout,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return resolvedConfig{}, err
	}

	var secrets []string
	for _, s := range []string{cfg.APIKey, cfg.HFToken} {
		if s = strings.TrimSpace(s); s != "" {
			secrets = append(secrets, s)
		}
	}

	return resolvedConfig{
		BasePath:        normalizeBasePath(cfg.BasePath),
		Holder:          holder,
		Secrets:         secrets,
		HTTPClient:      client,
		GenerateTimeout: cfg.GenerateTimeout,
		StreamDelay:     cfg.StreamDelay,
		Logger:          cfg.Logger,
	}, nil
}

type compatConfig struct {
	Now               func() time.Time
	NewChatCompletion func() string
	WriteJSON         func(w http.ResponseWriter, data interface{})
	WriteOpenAIError  func(w http.ResponseWriter, statusCode int, message string)
	NewChatModel      func(ctx context.Context, model gemini2o.Model, files []string) (chatModel, error)
	Builder           *conversationBuilder
	Logger            zerolog.Logger
}

type compatHandler struct {
	now               func() time.Time
	newChatCompletion func() string
	writeJSON         func(w http.ResponseWriter, data interface{})
	writeOpenAIError  func(w http.ResponseWriter, statusCode int, message string)
	newChatModel      func(ctx context.Context, model gemini2o.Model, files []string) (chatModel, error)
	builder           *conversationBuilder
	logger            zerolog.Logger
}

func newCompatHandler(cfg compatConfig) (*compatHandler, error) {
	if cfg.WriteJSON == nil {
		return nil, fmt.Errorf("WriteJSON is required")
	}
	if cfg.WriteOpenAIError == nil {
		return nil, fmt.Errorf("WriteOpenAIError is required")
	}
	if cfg.NewChatModel == nil {
		return nil, fmt.Errorf("NewChatModel is required")
	}
	if cfg.Builder == nil {
		cfg.Builder = newConversationBuilder(nil, cfg.Logger)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewChatCompletion == nil {
		cfg.NewChatCompletion = openaiapi.NewChatCompletionID
	}
	return &compatHandler{
		now:               cfg.Now,
		newChatCompletion: cfg.NewChatCompletion,
		writeJSON:         cfg.WriteJSON,
		writeOpenAIError:  cfg.WriteOpenAIError,
		newChatModel:      cfg.NewChatModel,
		builder:           cfg.Builder,
		logger:            cfg.Logger,
	}, nil
}

func (h *compatHandler) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeOpenAIError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	backendModels := gemini2o.Models()
	modelsList := make([]openaiapi.OpenAIModel, 0, len(backendModels))
	now := h.now().Unix()
	for _, m := range backendModels {
		modelsList = append(modelsList, openaiapi.OpenAIModel{
			ID:      m.Name,
			Object:  "model",
			Created: now,
			OwnedBy: "google-gemini-web",
		})
	}

	h.writeJSON(w, openaiapi.OpenAIModelList{
		Object: "list",
		Data:   modelsList,
	})
}

func (h *compatHandler) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeOpenAIError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req openaiapi.OpenAIChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeOpenAIError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	messages, files, err := h.builder.Convert(r.Context(), req.Messages)
	if err != nil {
		cleanupStaged(files, h.logger)
		h.writeOpenAIError(w, http.StatusBadRequest, err.Error())
		return
	}

	// 任意模型名都会映射到枚举中的某一项，从不因未知模型报错
	model := gemini2o.MapModelName(req.Model)
	h.completeChat(w, r, chatParams{
		ChatID:    h.newChatCompletion(),
		ModelName: echoModelName(req.Model, model),
		Model:     model,
		Messages:  messages,
		Files:     files,
		Stream:    req.Stream,
	})
}

// handleUpload 处理 multipart 表单的多模态请求（message + files[]）。
// 非图片文件跳过并告警，不报错；响应与非流式 chat.completions 相同。
func (h *compatHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeOpenAIError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.writeOpenAIError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	modelName := strings.TrimSpace(r.FormValue("model"))
	if modelName == "" {
		modelName = gemini2o.DefaultModelName
	}
	model := gemini2o.MapModelName(modelName)

	var sb strings.Builder
	sb.WriteString(r.FormValue("message"))
	var files []string
	uploads := r.MultipartForm.File["files[]"]
	if len(uploads) == 0 {
		uploads = r.MultipartForm.File["files"]
	}
	for _, fh := range uploads {
		contentType := fh.Header.Get("Content-Type")
		if !strings.HasPrefix(contentType, "image/") {
			h.logger.Warn().Str("filename", fh.Filename).Str("content_type", contentType).
				Msg("skipping non-image upload")
			continue
		}
		path, err := h.builder.StageUpload(fh)
		if err != nil {
			h.logger.Warn().Err(err).Str("filename", fh.Filename).Msg("failed to stage upload")
			sb.WriteString("\n" + placeholderProcessFailed)
			continue
		}
		files = append(files, path)
		sb.WriteString("\n")
		fmt.Fprintf(&sb, placeholderImage, path)
	}

	h.completeChat(w, r, chatParams{
		ChatID:    h.newChatCompletion(),
		ModelName: model.Name,
		Model:     model,
		Messages:  []*schema.Message{schema.UserMessage(sb.String())},
		Files:     files,
		Stream:    false,
	})
}

type chatParams struct {
	ChatID    string
	ModelName string
	Model     gemini2o.Model
	Messages  []*schema.Message
	Files     []string
	Stream    bool
}

func (h *compatHandler) completeChat(w http.ResponseWriter, r *http.Request, p chatParams) {
	cm, err := h.newChatModel(r.Context(), p.Model, p.Files)
	if err != nil {
		cleanupStaged(p.Files, h.logger)
		h.writeOpenAIError(w, httpStatusFromError(err), httpMessageFromError(err))
		return
	}

	if p.Stream {
		h.streamResponse(w, r, cm, p)
		return
	}

	respMsg, err := cm.Generate(r.Context(), p.Messages)
	if err != nil {
		h.writeOpenAIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	promptTokens, completionTokens := usageFromMeta(respMsg)
	h.writeJSON(w, openaiapi.ToChatCompletion(p.ChatID, p.ModelName, respMsg.Content, promptTokens, completionTokens))
}

// streamResponse 以 SSE 推送回复。先完成首个 Recv 再写响应头，
// 这样生成失败还能以普通 500 返回；其后的错误只能用错误 chunk 收尾。
func (h *compatHandler) streamResponse(w http.ResponseWriter, r *http.Request, cm chatModel, p chatParams) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeOpenAIError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sr, err := cm.Stream(r.Context(), p.Messages)
	if err != nil {
		h.writeOpenAIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer sr.Close()

	first, err := sr.Recv()
	if err != nil && err != io.EOF {
		h.writeOpenAIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	emit := func(chunk openaiapi.OpenAIChatChunk) {
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	finish := func() {
		finishReason := "stop"
		emit(openaiapi.ToChatChunk(p.ChatID, p.ModelName, "", &finishReason))
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}

	// 先发一个只带角色的 chunk
	emit(openaiapi.ToChatChunk(p.ChatID, p.ModelName, "", nil))

	msg := first
	for err == nil {
		if msg != nil && msg.Content != "" {
			emit(openaiapi.ToChatChunk(p.ChatID, p.ModelName, msg.Content, nil))
		}
		msg, err = sr.Recv()
	}
	if err != io.EOF {
		// 流中途失败：发一个错误内容 chunk 后正常收尾，绝不留下未终止的流
		h.logger.Error().Err(err).Msg("stream failed midway")
		finishReason := "stop"
		emit(openaiapi.ToChatChunk(p.ChatID, p.ModelName, "Error: "+err.Error(), &finishReason))
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
		return
	}
	finish()
}

// echoModelName 回显请求里的模型名，请求未带时回显映射后的规范名。
func echoModelName(requested string, model gemini2o.Model) string {
	if strings.TrimSpace(requested) == "" {
		return model.Name
	}
	return requested
}

func usageFromMeta(msg *schema.Message) (promptTokens, completionTokens int) {
	if msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return 0, 0
	}
	return msg.ResponseMeta.Usage.PromptTokens, msg.ResponseMeta.Usage.CompletionTokens
}

func httpStatusFromError(err error) int {
	var httpErr *httpError
	if errors.As(err, &httpErr) && httpErr != nil && httpErr.Status != 0 {
		return httpErr.Status
	}
	return http.StatusInternalServerError
}

func httpMessageFromError(err error) string {
	var httpErr *httpError
	if errors.As(err, &httpErr) && httpErr != nil && strings.TrimSpace(httpErr.Message) != "" {
		return httpErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
