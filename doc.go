// Package gemini2o 提供将 Gemini 网页版（基于 __Secure-1PSID Cookie 的私有接口）
// 转换为 OpenAI 兼容 API 的能力，方便第三方程序以 OpenAI SDK 的方式调用，
// 从而在没有官方 APIKey 的场景下复用网页版配额。
//
// 该仓库主要包含两类能力：
//  1. HTTP 兼容层：openaihttp 包导出 /v1/models、/v1/chat/completions、
//     /v1/chat/completions/upload handlers，以及 Gin 路由注册方法
//  2. SDK：geminiweb 包提供可供 Eino/ADK 使用的 ChatModel 实现
package gemini2o
