package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/LubyRuffy/gemini2o/auth"
	"github.com/LubyRuffy/gemini2o/logutil"
	"github.com/LubyRuffy/gemini2o/openaihttp"
	"github.com/gin-gonic/gin"
)

func main() {
	var (
		listen     = flag.String("listen", "127.0.0.1:8000", "listen address")
		basePath   = flag.String("base-path", "/v1", "base path prefix")
		baseURL    = flag.String("base-url", "", "gemini web base url (default: https://gemini.google.com)")
		authSource = flag.String("auth-source", "auto", "cookie source: env|file|auto")
	)
	flag.Parse()

	logger := logutil.New()

	provider, err := auth.NewProvider(*authSource)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid auth-source")
	}

	// 访问密钥从环境变量读取，日志里只出现有界前缀
	apiKey := os.Getenv("API_KEY")
	hfToken := os.Getenv("HF_TOKEN")
	if apiKey == "" && hfToken == "" {
		logger.Warn().Msg("API_KEY/HF_TOKEN not set, API authentication disabled")
	} else {
		logger.Info().
			Str("api_key_prefix", secretPrefix(apiKey)).
			Str("hf_token_prefix", secretPrefix(hfToken)).
			Msg("API authentication enabled")
	}

	r := gin.New()
	r.Use(gin.Logger(), openaihttp.CORSMiddleware(), openaihttp.RecoveryMiddleware(logger))

	err = openaihttp.RegisterGinRoutes(r, openaihttp.Config{
		BasePath: *basePath,
		BaseURL:  *baseURL,
		APIKey:   apiKey,
		HFToken:  hfToken,
		Logger:   logger,
		Cookies: func(ctx context.Context) (string, string, error) {
			return provider.Auth(ctx)
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("register routes failed")
	}

	srv := &http.Server{
		Addr:              *listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	clientAddr := addrForLocalClient(*listen)
	logger.Info().Msgf("gemini2o server listening on http://%s%s", clientAddr, *basePath)
	logger.Info().Msgf("try: curl http://%s%s/models", clientAddr, *basePath)
	logger.Info().Msgf("try: curl http://%s%s/chat/completions -H 'Content-Type: application/json' -d '{\"model\":\"gemini-2.5-flash\",\"messages\":[{\"role\":\"user\",\"content\":\"hi\"}]}'", clientAddr, *basePath)
	logger.Info().Msgf("OpenAI SDK base_url: http://%s%s", clientAddr, *basePath)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("server exited")
	}
}

// addrForLocalClient 把通配监听地址换成本机可访问的地址，仅用于日志提示。
func addrForLocalClient(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		return net.JoinHostPort("127.0.0.1", port)
	}
	return net.JoinHostPort(host, port)
}

// secretPrefix 返回密钥的前几个字符用于日志，绝不输出完整密钥。
func secretPrefix(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "..."
}
