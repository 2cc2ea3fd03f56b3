package reports

import (
	"strconv"
	"strings"
)

// Request is the resolved form of a list of selectors.
type Request struct {
	// Indices are the valid report indices in selector order, deduplicated.
	Indices []int
	// Unavailable lists selectors that matched nothing in the catalog.
	Unavailable []string
}

// Empty reports whether no valid report was selected.
func (r Request) Empty() bool {
	return len(r.Indices) == 0
}

// Joined renders the indices as ReportCLI expects them: "0, 3, 11".
func (r Request) Joined() string {
	parts := make([]string, len(r.Indices))
	for i, idx := range r.Indices {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, ", ")
}

// Resolve maps each selector to a report index. A selector is either a
// numeric index present in the catalog or a canonical report name. Unknown
// selectors are collected, not fatal.
func (c *Catalog) Resolve(selectors []string) Request {
	var req Request
	seen := map[int]bool{}
	for _, raw := range selectors {
		sel := strings.TrimSpace(raw)
		if sel == "" {
			continue
		}
		idx, ok := c.resolveOne(sel)
		if !ok {
			req.Unavailable = append(req.Unavailable, raw)
			continue
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		req.Indices = append(req.Indices, idx)
	}
	return req
}

func (c *Catalog) resolveOne(sel string) (int, bool) {
	if n, err := strconv.Atoi(sel); err == nil {
		_, ok := c.Lookup(n)
		return n, ok
	}
	return c.IndexOf(sel)
}
