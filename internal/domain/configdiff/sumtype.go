package configdiff

import "github.com/imdario/mergo"

// Variant is the wire shape for a sum-typed config such as AlerterEndpoint
// (Custom|Slack|Discord), BuilderConfig (Url|Server|Aws|Hetzner), or
// StackFileSource (FilesOnHost|GitRepo|Inline): a `type` discriminator plus
// a `params` bag whose shape depends on the type.
type Variant struct {
	Type   string         `json:"type" toml:"type"`
	Params map[string]any `json:"params" toml:"params"`
}

// MergeVariant implements the variant-aware merge rule: if old and new
// agree on Type, their Params merge field-by-field (new values win, unset
// keys in new are left alone); if the Type differs, new replaces old
// wholesale. The same-variant case is a genuine map merge, delegated to
// mergo rather than hand-rolled, since that is exactly the shape mergo is
// built for.
func MergeVariant(old, next Variant) (Variant, error) {
	if next.Type == "" {
		return old, nil
	}
	if old.Type != next.Type {
		return next, nil
	}
	merged := make(map[string]any, len(old.Params))
	for k, v := range old.Params {
		merged[k] = v
	}
	if err := mergo.Merge(&merged, next.Params, mergo.WithOverride); err != nil {
		return Variant{}, err
	}
	return Variant{Type: old.Type, Params: merged}, nil
}
