package webhookprovider

import "github.com/komodo-run/core/internal/port/webhookprovider"

// registry lists every supported provider by its /listener/<provider>/...
// path segment.
var registry = map[string]webhookprovider.Provider{
	"github": GitHub{},
	"gitlab": GitLab{},
}

// Lookup returns the Provider registered under name, or false if unknown.
func Lookup(name string) (webhookprovider.Provider, bool) {
	p, ok := registry[name]
	return p, ok
}
