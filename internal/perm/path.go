package perm

import (
	"fmt"
	"strings"
)

// ParsePath splits a dotted permission path such as "articles.view_all" and
// validates both halves against the schema. Admin toggles arrive in this
// form, one checkbox per capability.
func ParsePath(path string) (Module, Capability, error) {
	parts := strings.SplitN(strings.TrimSpace(path), ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("perm: malformed path %q", path)
	}
	m, c := Module(parts[0]), Capability(parts[1])
	if !Valid(m, c) {
		return "", "", fmt.Errorf("perm: unknown permission %q", path)
	}
	return m, c, nil
}

// Path renders the dotted form of a module/capability pair.
func Path(m Module, c Capability) string {
	return string(m) + "." + string(c)
}
