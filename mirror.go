package sdkforge

import "strings"

// MirrorIDDist is the well-known mirror every non-restricted distfile is
// implicitly served from, keyed by its cache name.
const MirrorIDDist = "dist"

// Mirror is an ordered list of base URLs serving the same content.
//
// A distfile reference of the form "mirror://<id>/<path>" expands to one
// candidate URL per base URL, in list order.
type Mirror struct {
	ID   string   `json:"id"`
	URLs []string `json:"urls"`
}

// Expand resolves a path against every base URL, in order.
func (m *Mirror) Expand(path string) []string {
	out := make([]string, 0, len(m.URLs))
	for _, base := range m.URLs {
		out = append(out, joinURL(base, path))
	}
	return out
}

func joinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}
