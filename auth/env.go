package auth

import (
	"context"
	"fmt"
	"os"
	"strings"
)

const (
	EnvSecure1PSID   = "SECURE_1PSID"
	EnvSecure1PSIDTS = "SECURE_1PSIDTS"
)

type envProvider struct{}

func (p *envProvider) Auth(ctx context.Context) (string, string, error) {
	psid := strings.TrimSpace(os.Getenv(EnvSecure1PSID))
	if psid == "" {
		return "", "", fmt.Errorf("%s is not set", EnvSecure1PSID)
	}
	return psid, strings.TrimSpace(os.Getenv(EnvSecure1PSIDTS)), nil
}
