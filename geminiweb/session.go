package geminiweb

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultInitTimeout 是后端会话初始化的超时时间。
const DefaultInitTimeout = 300 * time.Second

// CookieProvider 提供访问网页版所需的 Cookie 凭据对。
type CookieProvider func(ctx context.Context) (secure1PSID, secure1PSIDTS string, err error)

type SessionHolderConfig struct {
	// Cookies 必填：通过回调注入凭据，该包不直接读环境变量。
	Cookies CookieProvider
	// BaseURL/UploadURL/HTTPClient 透传给 Client，均可选。
	BaseURL    string
	UploadURL  string
	HTTPClient *http.Client
	// InitTimeout 初始化超时，默认 DefaultInitTimeout。
	InitTimeout time.Duration
	Logger      zerolog.Logger
}

// SessionHolder 持有进程级唯一的已初始化 Client。
// 首次使用时惰性构建；初始化失败不会被缓存，下一个请求会重试，
// 这是有意的按需重试策略，而不是熔断。
type SessionHolder struct {
	config SessionHolderConfig

	mu     sync.Mutex
	client *Client
}

func NewSessionHolder(config SessionHolderConfig) (*SessionHolder, error) {
	if config.Cookies == nil {
		return nil, fmt.Errorf("Cookies is required")
	}
	if config.InitTimeout <= 0 {
		config.InitTimeout = DefaultInitTimeout
	}
	return &SessionHolder{config: config}, nil
}

// EnsureReady 返回已初始化的 Client，必要时先构建并初始化。
// 并发安全：同一时刻只会有一次初始化握手。
func (h *SessionHolder) EnsureReady(ctx context.Context) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.client != nil {
		return h.client, nil
	}

	psid, psidts, err := h.config.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	client, err := NewClient(ClientConfig{
		Secure1PSID:   psid,
		Secure1PSIDTS: psidts,
		BaseURL:       h.config.BaseURL,
		UploadURL:     h.config.UploadURL,
		HTTPClient:    h.config.HTTPClient,
		Logger:        h.config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, h.config.InitTimeout)
	defer cancel()
	if err := client.Init(initCtx); err != nil {
		h.config.Logger.Error().Err(err).Msg("gemini client init failed, will retry on next request")
		return nil, fmt.Errorf("failed to initialize gemini client: %w", err)
	}

	h.client = client
	return h.client, nil
}
