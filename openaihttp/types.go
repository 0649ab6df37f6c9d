package openaihttp

import (
	"net/http"
	"time"

	"github.com/LubyRuffy/gemini2o/geminiweb"
	"github.com/rs/zerolog"
)

type Config struct {
	// BasePath 仅用于 Gin 注册路由时拼接路径，默认 "/v1"。
	BasePath string
	// BaseURL Gemini 网页版站点地址，默认 geminiweb.DefaultBaseURL。
	BaseURL string
	// UploadURL 附件上传端点，默认 geminiweb.DefaultUploadURL。
	UploadURL string
	// HTTPClient 可选，nil 时内部使用 &http.Client{}。
	HTTPClient *http.Client
	// Cookies 必填：通过回调注入 __Secure-1PSID/__Secure-1PSIDTS。
	Cookies geminiweb.CookieProvider
	// APIKey/HFToken 是两个可接受的访问密钥，命中任意一个即通过鉴权。
	// 两者都为空时鉴权关闭（开放模式）。
	APIKey  string
	HFToken string
	// InitTimeout 后端会话初始化超时，默认 geminiweb.DefaultInitTimeout。
	InitTimeout time.Duration
	// GenerateTimeout 单次生成超时，默认 geminiweb.DefaultGenerateTimeout。
	GenerateTimeout time.Duration
	// StreamDelay 流式 chunk 间隔，默认 geminiweb.DefaultStreamDelay。
	StreamDelay time.Duration
	Logger      zerolog.Logger
}
