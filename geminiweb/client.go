package geminiweb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/LubyRuffy/gemini2o"
	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL 是 Gemini 网页版站点地址。
	DefaultBaseURL = "https://gemini.google.com"
	// DefaultUploadURL 是图片等附件的上传端点。
	DefaultUploadURL = "https://content-push.googleapis.com/upload/"

	generatePath   = "/_/BardChatUi/data/assistant.lamda.BardFrontendService/StreamGenerate"
	uploadPushID   = "feeds/mcudyrk2a4khkz"
	modelHeaderKey = "x-goog-ext-525001261-jspb"
)

// accessTokenRe 从 /app 页面脚本里提取会话 token（即 SNlM0e）。
var accessTokenRe = regexp.MustCompile(`"SNlM0e":"(.*?)"`)

// Reply 是后端的一次应答。Thoughts 仅 thinking 系列模型会出现。
type Reply struct {
	Text     string
	Thoughts string
}

type ClientConfig struct {
	// Secure1PSID 必填，来自浏览器 Cookie __Secure-1PSID。
	Secure1PSID string
	// Secure1PSIDTS 可选，部分账号没有该 Cookie。
	Secure1PSIDTS string
	// BaseURL 可选，默认 DefaultBaseURL，测试时指向 httptest。
	BaseURL string
	// UploadURL 可选，默认 DefaultUploadURL。
	UploadURL string
	// HTTPClient 可选，nil 时内部使用 &http.Client{}。
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client 是 Gemini 网页版私有接口的适配器。
// 必须先调用 Init 获取会话 token，之后才能 GenerateContent。
type Client struct {
	config      ClientConfig
	accessToken string
	reqID       atomic.Int64
}

func NewClient(config ClientConfig) (*Client, error) {
	if strings.TrimSpace(config.Secure1PSID) == "" {
		return nil, fmt.Errorf("__Secure-1PSID is required")
	}
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(config.UploadURL) == "" {
		config.UploadURL = DefaultUploadURL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	return &Client{config: config}, nil
}

// Init 携带 Cookie 访问 /app 页面并提取会话 token。
// Cookie 失效时页面不包含 token，此时返回错误。
func (c *Client) Init(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/app", nil)
	if err != nil {
		return fmt.Errorf("failed to build init request: %w", err)
	}
	c.setCommonHeaders(req)

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("init request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("init request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("failed to read init response: %w", err)
	}

	m := accessTokenRe.FindSubmatch(body)
	if m == nil {
		return fmt.Errorf("access token not found in app page, cookies may be invalid or expired")
	}
	c.accessToken = string(m[1])

	c.config.Logger.Info().
		Str("secure_1psid_prefix", prefix(c.config.Secure1PSID, 5)).
		Msg("gemini web client initialized")
	return nil
}

// GenerateContent 发送一轮对话请求并返回应答。
// files 是已落盘的图片路径，为空时发起纯文本请求。
func (c *Client) GenerateContent(ctx context.Context, prompt string, files []string, model gemini2o.Model) (*Reply, error) {
	if c.accessToken == "" {
		return nil, fmt.Errorf("client is not initialized")
	}

	refs := make([]any, 0, len(files))
	for _, path := range files {
		id, err := c.uploadFile(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to upload %s: %w", filepath.Base(path), err)
		}
		refs = append(refs, []any{[]any{id}, filepath.Base(path)})
	}

	var promptPart []any
	if len(refs) > 0 {
		promptPart = []any{prompt, 0, nil, refs}
	} else {
		promptPart = []any{prompt}
	}
	inner, err := json.Marshal([]any{promptPart, nil, []any{}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode prompt: %w", err)
	}
	freq, err := json.Marshal([]any{nil, string(inner)})
	if err != nil {
		return nil, fmt.Errorf("failed to encode f.req: %w", err)
	}

	form := url.Values{}
	form.Set("at", c.accessToken)
	form.Set("f.req", string(freq))

	endpoint := c.config.BaseURL + generatePath + "?" + url.Values{
		"bl":     {"boq_assistant-bard-web-server_20250729.06_p0"},
		"_reqid": {strconv.FormatInt(100000+c.reqID.Add(100000), 10)},
		"rt":     {"c"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build generate request: %w", err)
	}
	c.setCommonHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")
	if model.Header != "" {
		req.Header.Set(modelHeaderKey, model.Header)
	}

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, fmt.Errorf("generate request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read generate response: %w", err)
	}

	reply, err := parseGenerateResponse(body)
	if err != nil {
		return nil, err
	}

	c.config.Logger.Debug().
		Str("model", model.Name).
		Int("files", len(files)).
		Int("reply_len", len(reply.Text)).
		Msg("generate completed")
	return reply, nil
}

// uploadFile 把单个文件推送到上传端点，返回后续请求引用用的标识符。
func (c *Client) uploadFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.UploadURL, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Push-ID", uploadPushID)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload failed with status %d", resp.StatusCode)
	}

	id, err := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(id)), nil
}

func (c *Client) setCommonHeaders(req *http.Request) {
	cookie := "__Secure-1PSID=" + c.config.Secure1PSID
	if c.config.Secure1PSIDTS != "" {
		cookie += "; __Secure-1PSIDTS=" + c.config.Secure1PSIDTS
	}
	req.Header.Set("Cookie", cookie)
	req.Header.Set("X-Same-Domain", "1")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
}

// parseGenerateResponse 解析 batchexecute 的流式响应。
// 响应由多段 "wrb.fr" 行组成，内层又是一段 JSON 字符串，
// 候选文本位于 body[4][0][1][0]，thinking 内容位于 body[4][0][37][0][0]。
// 取最后一段有候选的行（流式输出的最后一段最完整）。
func parseGenerateResponse(body []byte) (*Reply, error) {
	var reply *Reply
	for _, line := range bytes.Split(body, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if !bytes.HasPrefix(line, []byte("[[")) {
			continue
		}
		var outer []any
		if err := json.Unmarshal(line, &outer); err != nil {
			continue
		}
		for _, entry := range outer {
			arr, ok := entry.([]any)
			if !ok || len(arr) < 3 {
				continue
			}
			if kind, _ := arr[0].(string); kind != "wrb.fr" {
				continue
			}
			payload, ok := arr[2].(string)
			if !ok {
				continue
			}
			var inner any
			if err := json.Unmarshal([]byte(payload), &inner); err != nil {
				continue
			}
			text, ok := jsonIndexString(inner, 4, 0, 1, 0)
			if !ok {
				continue
			}
			r := &Reply{Text: text}
			if thoughts, ok := jsonIndexString(inner, 4, 0, 37, 0, 0); ok {
				r.Thoughts = thoughts
			}
			reply = r
		}
	}
	if reply == nil {
		return nil, fmt.Errorf("no candidate found in response, the prompt may have been blocked")
	}
	return reply, nil
}

// jsonIndexString 沿下标路径访问嵌套的 []any，末端必须是字符串。
func jsonIndexString(v any, path ...int) (string, bool) {
	for _, idx := range path {
		arr, ok := v.([]any)
		if !ok || idx >= len(arr) {
			return "", false
		}
		v = arr[idx]
	}
	s, ok := v.(string)
	return s, ok
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
