package openaihttp

import (
	"fmt"
	"net/http"

	"github.com/LubyRuffy/gemini2o/openaiapi"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RegisterGinRoutes 注册 OpenAI 兼容路由与根路径存活探针。
func RegisterGinRoutes(r gin.IRouter, cfg Config) error {
	if r == nil {
		return fmt.Errorf("router is nil")
	}
	modelsHandler, chatHandler, uploadHandler, err := Handlers(cfg)
	if err != nil {
		return err
	}

	basePath := normalizeBasePath(cfg.BasePath)
	r.GET(joinPath(basePath, "/models"), gin.WrapF(modelsHandler))
	r.POST(joinPath(basePath, "/chat/completions"), gin.WrapF(chatHandler))
	r.POST(joinPath(basePath, "/chat/completions/upload"), gin.WrapF(uploadHandler))
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "online",
			"message": "Gemini web OpenAI-compatible API is running",
		})
	})
	return nil
}

// CORSMiddleware 允许浏览器端直接调用，预检请求直接放行。
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RecoveryMiddleware 把 panic 转成 OpenAI 风格的 JSON 错误响应。
func RecoveryMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error().Interface("panic", rec).Str("path", c.Request.URL.Path).
					Msg("request handler panicked")
				errResp := openaiapi.OpenAIError{}
				errResp.Error.Message = fmt.Sprintf("internal server error: %v", rec)
				errResp.Error.Type = "internal_server_error"
				c.AbortWithStatusJSON(http.StatusInternalServerError, errResp)
			}
		}()
		c.Next()
	}
}
