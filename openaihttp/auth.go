package openaihttp

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// newAuthMiddleware 返回保护 /v1 路由的鉴权装饰器。
// secrets 为空时鉴权关闭（显式的开放模式，启动时打印告警）。
func newAuthMiddleware(secrets []string, logger zerolog.Logger) func(http.HandlerFunc) http.HandlerFunc {
	if len(secrets) == 0 {
		logger.Warn().Msg("no API key configured, all routes are open")
		return func(next http.HandlerFunc) http.HandlerFunc { return next }
	}
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token, ok := requestToken(r)
			if !ok || !matchesAny(token, secrets) {
				writeOpenAIError(w, http.StatusUnauthorized, "invalid or missing API key")
				return
			}
			next(w, r)
		}
	}
}

// requestToken 提取请求携带的访问密钥。
// X-API-Key 优先于 Authorization；Authorization 必须是 Bearer scheme。
func requestToken(r *http.Request) (string, bool) {
	if v := strings.TrimSpace(r.Header.Get("X-API-Key")); v != "" {
		return v, true
	}
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return "", false
	}
	token := strings.TrimSpace(authz[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

func matchesAny(token string, secrets []string) bool {
	for _, secret := range secrets {
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1 {
			return true
		}
	}
	return false
}
