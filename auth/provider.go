package auth

import (
	"context"
	"fmt"
	"strings"
)

// NewProvider 根据来源创建 Provider。
// source 允许：env/file/auto；空值按 env 处理。
func NewProvider(source string) (Provider, error) {
	s := strings.ToLower(strings.TrimSpace(source))
	if s == "" {
		s = string(SourceEnv)
	}
	switch Source(s) {
	case SourceEnv:
		return &envProvider{}, nil
	case SourceFile:
		return &cookieFileProvider{}, nil
	case SourceAuto:
		return &autoProvider{providers: []Provider{&envProvider{}, &cookieFileProvider{}}}, nil
	default:
		return nil, fmt.Errorf("unsupported auth source: %s", source)
	}
}

// Static 返回固定凭据的 Provider，主要用于测试和嵌入场景。
func Static(secure1PSID, secure1PSIDTS string) Provider {
	return &staticProvider{psid: secure1PSID, psidts: secure1PSIDTS}
}

type staticProvider struct {
	psid   string
	psidts string
}

func (p *staticProvider) Auth(ctx context.Context) (string, string, error) {
	if strings.TrimSpace(p.psid) == "" {
		return "", "", fmt.Errorf("__Secure-1PSID is empty")
	}
	return p.psid, p.psidts, nil
}

type autoProvider struct {
	providers []Provider
}

func (p *autoProvider) Auth(ctx context.Context) (string, string, error) {
	var lastErr error
	for _, provider := range p.providers {
		psid, psidts, err := provider.Auth(ctx)
		if err == nil && strings.TrimSpace(psid) != "" {
			return psid, psidts, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return "", "", lastErr
	}
	return "", "", fmt.Errorf("no credentials available")
}
