package schema

import "path"

// Filter selects the tables a diff looks at. Patterns use path.Match syntax.
// A table matching Deny is always excluded, even when it also matches Allow.
// An empty Allow list admits every table not denied.
type Filter struct {
	Allow []string
	Deny  []string
}

// Includes reports whether table passes the filter.
func (f Filter) Includes(table string) bool {
	if matchAny(f.Deny, table) {
		return false
	}
	if len(f.Allow) == 0 {
		return true
	}
	return matchAny(f.Allow, table)
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if p == name {
			return true
		}
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
