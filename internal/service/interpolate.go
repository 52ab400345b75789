package service

import (
	"context"
	"regexp"

	"github.com/komodo-run/core/internal/port/database"
)

// variablePattern matches {{variable.NAME}} placeholders in execution
// args: variables and secrets share one namespace and are interpolated
// the same way; IsSecret has no effect here.
var variablePattern = regexp.MustCompile(`\{\{\s*variable\.([A-Za-z0-9_]+)\s*\}\}`)

// interpolate replaces every {{variable.NAME}} placeholder in s with the
// named Variable's value, looked up fresh from store on every call so a
// rotated secret takes effect on the next run without a cache to bust.
// Unknown names are left untouched rather than erroring, matching the
// original behavior of a template engine over a possibly-partial set.
func interpolate(ctx context.Context, store database.Store, s string) string {
	if !variablePattern.MatchString(s) {
		return s
	}
	return variablePattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := variablePattern.FindStringSubmatch(match)
		if len(sub) != 2 {
			return match
		}
		v, err := store.GetVariable(ctx, sub[1])
		if err != nil {
			return match
		}
		return v.Value
	})
}

// interpolateMap applies interpolate to every value in m, returning a new
// map (m is never mutated in place since config maps are shared with the
// cached Resource).
func interpolateMap(ctx context.Context, store database.Store, m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = interpolate(ctx, store, v)
	}
	return out
}
