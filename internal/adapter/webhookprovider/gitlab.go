package webhookprovider

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/komodo-run/core/internal/port/webhookprovider"
)

// GitLab verifies GitLab's static-token push-event webhooks ("X-Gitlab-
// Token" is a shared secret compared directly, not an HMAC over the body).
type GitLab struct{}

var _ webhookprovider.Provider = GitLab{}

func (GitLab) Name() string            { return "gitlab" }
func (GitLab) SignatureHeader() string { return "X-Gitlab-Token" }

func (GitLab) Verify(secret string, _ []byte, headerValue string) bool {
	return subtle.ConstantTimeCompare([]byte(headerValue), []byte(secret)) == 1
}

func (GitLab) Branch(body []byte) (string, error) {
	var payload struct {
		Ref string `json:"ref"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("parse gitlab push event: %w", err)
	}
	return strings.TrimPrefix(payload.Ref, "refs/heads/"), nil
}
