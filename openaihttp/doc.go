// Package openaihttp 提供基于 Gemini 网页版接口的 OpenAI v1 兼容 HTTP 处理器。
//
// 该包对外只暴露：
// - net/http 形式的 handlers（models/chat.completions/multipart 上传）
// - Gin 路由注册方法与配套中间件（CORS、panic 恢复）
//
// Cookie 凭据仅通过回调注入（geminiweb.CookieProvider），该包不直接读环境变量。
// 配置了 APIKey/HFToken 时所有 /v1 路由要求鉴权；两者都未配置时为开放模式。
//
// 使用示例：
//
//	// net/http
//	modelsH, chatH, uploadH, _ := openaihttp.Handlers(openaihttp.Config{
//		Cookies: func(ctx context.Context) (string, string, error) {
//			return psid, psidts, nil
//		},
//	})
//	mux.HandleFunc("/v1/models", modelsH)
//	mux.HandleFunc("/v1/chat/completions", chatH)
//	mux.HandleFunc("/v1/chat/completions/upload", uploadH)
//
//	// gin
//	_ = openaihttp.RegisterGinRoutes(r, openaihttp.Config{
//		BasePath: "/v1",
//		Cookies:  func(ctx context.Context) (string, string, error) { return psid, psidts, nil },
//	})
package openaihttp
