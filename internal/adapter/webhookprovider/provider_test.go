package webhookprovider_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/komodo-run/core/internal/adapter/webhookprovider"
)

func TestGitHub_Verify(t *testing.T) {
	secret := "s3cr3t"
	body := []byte(`{"ref":"refs/heads/main"}`)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	gh := webhookprovider.GitHub{}
	if !gh.Verify(secret, body, sig) {
		t.Error("expected valid signature to verify")
	}
	if gh.Verify(secret, body, "sha256=deadbeef") {
		t.Error("expected invalid signature to fail")
	}
	if gh.Verify("wrong-secret", body, sig) {
		t.Error("expected signature under wrong secret to fail")
	}
}

func TestGitHub_Branch(t *testing.T) {
	gh := webhookprovider.GitHub{}

	branch, err := gh.Branch([]byte(`{"ref":"refs/heads/main"}`))
	if err != nil {
		t.Fatalf("Branch() error = %v", err)
	}
	if branch != "main" {
		t.Errorf("branch = %q, want main", branch)
	}

	tagBranch, err := gh.Branch([]byte(`{"ref":"refs/tags/v1.0.0"}`))
	if err != nil {
		t.Fatalf("Branch() error = %v", err)
	}
	if tagBranch == "main" {
		t.Errorf("tag ref should not resolve to a branch match, got %q", tagBranch)
	}
}

func TestGitLab_Verify(t *testing.T) {
	gl := webhookprovider.GitLab{}
	if !gl.Verify("token-123", nil, "token-123") {
		t.Error("expected matching token to verify")
	}
	if gl.Verify("token-123", nil, "wrong-token") {
		t.Error("expected mismatched token to fail")
	}
}

func TestGitLab_Branch(t *testing.T) {
	gl := webhookprovider.GitLab{}
	branch, err := gl.Branch([]byte(`{"ref":"refs/heads/develop"}`))
	if err != nil {
		t.Fatalf("Branch() error = %v", err)
	}
	if branch != "develop" {
		t.Errorf("branch = %q, want develop", branch)
	}
}

func TestLookup(t *testing.T) {
	if _, ok := webhookprovider.Lookup("github"); !ok {
		t.Error("expected github to be registered")
	}
	if _, ok := webhookprovider.Lookup("gitlab"); !ok {
		t.Error("expected gitlab to be registered")
	}
	if _, ok := webhookprovider.Lookup("bitbucket"); ok {
		t.Error("expected bitbucket to be unregistered")
	}
}
