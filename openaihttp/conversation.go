package openaihttp

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/LubyRuffy/gemini2o/openaiapi"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// remoteFetchTimeout 远程图片下载的超时上限。
const remoteFetchTimeout = 10 * time.Second

// 图片处理结果在对话文本中的占位符（含尾部空格，便于与后续文本衔接）。
const (
	placeholderImage         = "[Image: %s] "
	placeholderImageURL      = "[Image from URL: %s] "
	placeholderProcessFailed = "[Image processing failed] "
	placeholderFetchFailed   = "[Image download failed] "
	placeholderUnsupported   = "[Unsupported image format] "
)

// extByMIME 数据 URL 的 MIME 类型到文件扩展名映射，未知类型用 .png。
var extByMIME = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// conversationBuilder 把 OpenAI 消息列表转成 eino 消息，同时把内嵌图片
// 落盘为暂存文件。文本中的图片位置用占位符标注，真正的图片内容
// 由调用方把暂存路径交给 ChatModel 上传。
type conversationBuilder struct {
	httpClient *http.Client
	tempDir    string
	logger     zerolog.Logger
}

func newConversationBuilder(httpClient *http.Client, logger zerolog.Logger) *conversationBuilder {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &conversationBuilder{
		httpClient: httpClient,
		tempDir:    os.TempDir(),
		logger:     logger,
	}
}

// Convert 把消息列表转为 eino 消息，返回按出现顺序排列的暂存图片路径。
// 未知角色的消息跳过不报错；出错时已落盘的文件由调用方负责清理。
func (b *conversationBuilder) Convert(ctx context.Context, messages []openaiapi.OpenAIMessage) ([]*schema.Message, []string, error) {
	if len(messages) == 0 {
		return nil, nil, fmt.Errorf("messages is required")
	}

	result := make([]*schema.Message, 0, len(messages))
	var files []string
	for _, msg := range messages {
		content, staged := b.renderContent(ctx, msg.Content)
		files = append(files, staged...)

		switch strings.TrimSpace(msg.Role) {
		case "system":
			result = append(result, schema.SystemMessage(content))
		case "user":
			result = append(result, schema.UserMessage(content))
		case "assistant":
			result = append(result, schema.AssistantMessage(content, nil))
		default:
			continue
		}
	}

	if len(result) == 0 {
		return nil, files, fmt.Errorf("no valid messages to send")
	}
	return result, files, nil
}

// renderContent 按片段原始顺序拼接文本，图片片段就地落盘并替换为占位符。
// 单个图片失败只影响自己的占位符，绝不中断整条消息。
func (b *conversationBuilder) renderContent(ctx context.Context, content any) (string, []string) {
	var sb strings.Builder
	var files []string
	for _, part := range openaiapi.ContentParts(content) {
		switch part.Type {
		case "text":
			sb.WriteString(part.Text)
		case "image_url":
			if part.ImageURL == nil || part.ImageURL.URL == "" {
				sb.WriteString(placeholderProcessFailed)
				continue
			}
			url := part.ImageURL.URL
			switch {
			case strings.HasPrefix(url, "data:"):
				path, err := b.stageDataURL(url)
				if err != nil {
					b.logger.Warn().Err(err).Msg("failed to stage data url image")
					sb.WriteString(placeholderProcessFailed)
					continue
				}
				files = append(files, path)
				fmt.Fprintf(&sb, placeholderImage, path)
			case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
				path, err := b.stageRemoteImage(ctx, url)
				if err != nil {
					b.logger.Warn().Err(err).Str("url", url).Msg("failed to fetch remote image")
					sb.WriteString(placeholderFetchFailed)
					continue
				}
				files = append(files, path)
				fmt.Fprintf(&sb, placeholderImageURL, url)
			default:
				sb.WriteString(placeholderUnsupported)
			}
		}
	}
	return sb.String(), files
}

// stageDataURL 解码 data:<mime>;base64,<payload> 并落盘。
func (b *conversationBuilder) stageDataURL(dataURL string) (string, error) {
	header, payload, ok := strings.Cut(dataURL, ",")
	if !ok {
		return "", fmt.Errorf("malformed data url")
	}

	mimeType := strings.TrimPrefix(header, "data:")
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("invalid base64 payload: %w", err)
	}
	return b.writeTemp(data, extForMIME(mimeType))
}

// stageRemoteImage 带超时下载远程图片并落盘，非 200 视为失败。
func (b *conversationBuilder) stageRemoteImage(ctx context.Context, url string) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, remoteFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return "", err
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	return b.writeTemp(data, extForMIME(strings.TrimSpace(contentType)))
}

// StageUpload 把 multipart 上传的文件落盘，扩展名取自原始文件名。
func (b *conversationBuilder) StageUpload(fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, 32<<20))
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(fh.Filename)
	if ext == "" {
		ext = extForMIME(fh.Header.Get("Content-Type"))
	}
	return b.writeTemp(data, ext)
}

// writeTemp 用随机文件名写入暂存目录，避免并发请求间的文件名冲突。
func (b *conversationBuilder) writeTemp(data []byte, ext string) (string, error) {
	path := filepath.Join(b.tempDir, "gemini2o_"+uuid.New().String()[:8]+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func extForMIME(mimeType string) string {
	if ext, ok := extByMIME[mimeType]; ok {
		return ext
	}
	return ".png"
}
