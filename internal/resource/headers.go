package resource

import "strings"

// Manifest headers whose value is a list of package clauses.
var packageHeaders = map[string]bool{
	"export-package":        true,
	"import-package":        true,
	"dynamicimport-package": true,
	"private-package":       true,
	"conditional-package":   true,
	"ignore-package":        true,
}

// Bundle identity headers change only through bundle update rules.
const (
	HeaderSymbolicName = "Bundle-SymbolicName"
	HeaderVersion      = "Bundle-Version"
	HeaderName         = "Bundle-Name"
	HeaderDescription  = "Bundle-Description"
	HeaderExport       = "Export-Package"
)

var identityHeaders = map[string]bool{
	"bundle-symbolicname": true,
	"bundle-version":      true,
	"bundle-name":         true,
	"bundle-description":  true,
}

func isPackageHeader(name string) bool  { return packageHeaders[strings.ToLower(name)] }
func isIdentityHeader(name string) bool { return identityHeaders[strings.ToLower(name)] }

// splitOutside splits s at every sep that is not inside double quotes.
func splitOutside(s string, sep byte) []string {
	var out []string
	quoted, start := false, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case sep:
			if !quoted {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

// clause is one comma-separated element of a package header: one or more
// package names followed by attributes and directives.
type clause struct {
	parts []string // raw ';' separated parts, whitespace kept
	paths int      // leading parts that are package names
}

func parseClause(s string) *clause {
	c := &clause{parts: splitOutside(s, ';')}
	for _, p := range c.parts {
		if strings.Contains(p, "=") {
			break
		}
		c.paths++
	}
	return c
}

func (c *clause) String() string { return strings.Join(c.parts, ";") }

// setAttribute replaces the value of attribute key (not a directive),
// keeping its quoting. It reports whether the attribute was present.
func (c *clause) setAttribute(key, value string) bool {
	for i := c.paths; i < len(c.parts); i++ {
		k, v, ok := strings.Cut(c.parts[i], "=")
		if !ok || strings.HasSuffix(k, ":") || strings.TrimSpace(k) != key {
			continue
		}
		lead := v[:len(v)-len(strings.TrimLeft(v, " \t"))]
		if strings.HasPrefix(strings.TrimSpace(v), `"`) {
			value = `"` + value + `"`
		}
		c.parts[i] = k + "=" + lead + value
		return true
	}
	return false
}

// attribute returns the unquoted value of attribute key.
func (c *clause) attribute(key string) (string, bool) {
	for i := c.paths; i < len(c.parts); i++ {
		k, v, ok := strings.Cut(c.parts[i], "=")
		if ok && !strings.HasSuffix(k, ":") && strings.TrimSpace(k) == key {
			return strings.Trim(strings.TrimSpace(v), `"`), true
		}
	}
	return "", false
}
