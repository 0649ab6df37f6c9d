package auth

import "context"

// Provider 用于从不同来源读取 Gemini 网页版的 Cookie 凭据对。
// secure1PSID 必填，secure1PSIDTS 允许为空（部分账号没有该 Cookie）。
type Provider interface {
	Auth(ctx context.Context) (secure1PSID, secure1PSIDTS string, err error)
}

type Source string

const (
	SourceEnv  Source = "env"
	SourceFile Source = "file"
	SourceAuto Source = "auto"
)
