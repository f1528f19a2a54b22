package perm

// Earlier deployments stored permissions as a flat map of coarse boolean
// flags. That shape is deprecated input: it is migrated to the nested
// schema on read and never written back.
var legacyFlags = map[string]struct {
	module Module
	cap    Capability
}{
	"can_access_articles": {ModuleArticles, CapAccess},
	"view_all_articles":   {ModuleArticles, CapViewAll},
	"can_create_article":  {ModuleArticles, CapCreate},
}

// IsLegacy reports whether the raw permission document uses the deprecated
// flat-flag shape.
func IsLegacy(raw map[string]any) bool {
	for key := range raw {
		if _, ok := legacyFlags[key]; ok {
			return true
		}
	}
	return false
}

// FromLegacy converts a flat-flag document into the nested schema. Unknown
// flags are dropped; capabilities the flags never covered stay denied.
func FromLegacy(raw map[string]any) Set {
	s := None()
	for key, target := range legacyFlags {
		if v, ok := raw[key].(bool); ok && v {
			s.Grant(target.module, target.cap, true)
		}
	}
	return s
}
