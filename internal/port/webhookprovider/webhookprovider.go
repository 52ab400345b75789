// Package webhookprovider abstracts the per-VCS-provider details of the
// webhook listener: which header carries the signature, how to
// verify it, and how to pull the pushed branch out of the provider's own
// push-event body shape. Only `ref` is ever consumed from the body.
package webhookprovider

// Provider verifies one VCS host's webhook delivery and extracts the
// pushed branch from its push-event payload.
type Provider interface {
	// Name is the path segment used in /listener/<name>/... routes.
	Name() string

	// SignatureHeader is the HTTP header the provider sends its
	// signature/token in (e.g. "X-Hub-Signature-256").
	SignatureHeader() string

	// Verify checks the signature header value against body using secret.
	// Returns false on any mismatch or malformed header.
	Verify(secret string, body []byte, headerValue string) bool

	// Branch extracts the short branch name (e.g. "main") from a
	// "refs/heads/<branch>" ref in body. Returns "" if the payload has no
	// ref (e.g. a tag push or a ping event), which the caller treats as a
	// no-op delivery rather than an error.
	Branch(body []byte) (string, error)
}
