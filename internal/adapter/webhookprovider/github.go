// Package webhookprovider implements webhookprovider.Provider for the VCS
// hosts Komodo supports webhook triggers from.
package webhookprovider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/komodo-run/core/internal/port/webhookprovider"
)

// GitHub verifies GitHub's HMAC-SHA256 push-event webhooks.
type GitHub struct{}

var _ webhookprovider.Provider = GitHub{}

func (GitHub) Name() string            { return "github" }
func (GitHub) SignatureHeader() string { return "X-Hub-Signature-256" }

func (GitHub) Verify(secret string, body []byte, headerValue string) bool {
	sig := strings.TrimPrefix(headerValue, "sha256=")
	sigBytes, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(sigBytes, mac.Sum(nil))
}

func (GitHub) Branch(body []byte) (string, error) {
	var payload struct {
		Ref string `json:"ref"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("parse github push event: %w", err)
	}
	return strings.TrimPrefix(payload.Ref, "refs/heads/"), nil
}
