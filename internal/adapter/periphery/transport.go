package periphery

import (
	"crypto/tls"
	"net/http"
)

// insecureTransport clones the default transport with certificate
// verification disabled, for self-signed Periphery agent certs
// (config.Periphery.DisableTLSVerify).
func insecureTransport() http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if t.TLSClientConfig == nil {
		t.TLSClientConfig = &tls.Config{}
	}
	t.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec // opt-in for self-signed periphery agents, per config
	return t
}
