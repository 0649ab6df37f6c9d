package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultCookieFile 是 file 来源的默认路径（相对 $HOME）。
const DefaultCookieFile = ".gemini2o/cookies.json"

type cookieFileProvider struct {
	path string
}

func (p *cookieFileProvider) Auth(ctx context.Context) (string, string, error) {
	path := p.path
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, DefaultCookieFile)
	}
	return ReadCookiesFromPath(path)
}

// ReadCookiesFromPath 从 JSON 文件读取 Cookie 对。
// 文件格式与浏览器导出保持一致：
//
//	{"__Secure-1PSID": "...", "__Secure-1PSIDTS": "..."}
func ReadCookiesFromPath(path string) (string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("read cookie file: %w", err)
	}

	var cookies map[string]string
	if err := json.Unmarshal(data, &cookies); err != nil {
		return "", "", fmt.Errorf("parse cookie file %s: %w", path, err)
	}

	psid := strings.TrimSpace(cookies["__Secure-1PSID"])
	if psid == "" {
		return "", "", fmt.Errorf("cookie file %s has no __Secure-1PSID", path)
	}
	return psid, strings.TrimSpace(cookies["__Secure-1PSIDTS"]), nil
}
