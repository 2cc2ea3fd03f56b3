// Package reports holds the ReportCLI report catalog and resolves
// user-supplied report selectors against it. Report indices belong to a
// specific PeptideShaker release, so the catalog carries the tool version it
// was taken from and can be replaced from a YAML file.
package reports

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry is one report type.
type Entry struct {
	Index int    `yaml:"index"`
	Name  string `yaml:"name"`
}

// Catalog is a versioned name→index table.
type Catalog struct {
	Tool    string  `yaml:"tool"`
	Version string  `yaml:"version"`
	Entries []Entry `yaml:"reports"`

	byName  map[string]int
	byIndex map[int]Entry
}

// PeptideShaker116 is the report catalog of PeptideShaker 1.16.x.
func PeptideShaker116() *Catalog {
	c := &Catalog{
		Tool:    "PeptideShaker",
		Version: "1.16",
		Entries: []Entry{
			{0, "Certificate of Analysis"},
			{1, "Default Hierarchical Report"},
			{2, "Default PSM Phosphorylation Report"},
			{3, "Default PSM Report"},
			{4, "Default PSM Report with non-validated matches"},
			{5, "Default Peptide Phosphorylation Report"},
			{6, "Default Peptide Report"},
			{7, "Default Peptide Report with non-validated matches"},
			{8, "Default Protein Phosphorylation Report"},
			{9, "Default Protein Report"},
			{10, "Default Protein Report with non-validated matches"},
			{11, "Extended PSM Report"},
		},
	}
	if err := c.index(); err != nil {
		panic(err)
	}
	return c
}

// Default returns the catalog used when none is configured.
func Default() *Catalog {
	return PeptideShaker116()
}

// LoadCatalog reads a catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reports: read catalog %s: %w", path, err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("reports: parse catalog %s: %w", path, err)
	}
	if err := c.index(); err != nil {
		return nil, fmt.Errorf("reports: %s: %w", path, err)
	}
	return &c, nil
}

func (c *Catalog) index() error {
	if len(c.Entries) == 0 {
		return fmt.Errorf("catalog has no reports")
	}
	c.byName = make(map[string]int, len(c.Entries))
	c.byIndex = make(map[int]Entry, len(c.Entries))
	for _, e := range c.Entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return fmt.Errorf("report %d has no name", e.Index)
		}
		if e.Index < 0 {
			return fmt.Errorf("report %q has a negative index", name)
		}
		key := nameKey(name)
		if _, dup := c.byName[key]; dup {
			return fmt.Errorf("duplicate report name %q", name)
		}
		if _, dup := c.byIndex[e.Index]; dup {
			return fmt.Errorf("duplicate report index %d", e.Index)
		}
		c.byName[key] = e.Index
		c.byIndex[e.Index] = Entry{Index: e.Index, Name: name}
	}
	sort.Slice(c.Entries, func(i, j int) bool { return c.Entries[i].Index < c.Entries[j].Index })
	return nil
}

// Len returns the number of reports.
func (c *Catalog) Len() int {
	return len(c.Entries)
}

// Lookup returns the entry for an index.
func (c *Catalog) Lookup(index int) (Entry, bool) {
	e, ok := c.byIndex[index]
	return e, ok
}

// IndexOf resolves a canonical report name (case-insensitive).
func (c *Catalog) IndexOf(name string) (int, bool) {
	idx, ok := c.byName[nameKey(name)]
	return idx, ok
}

// DefaultSelectors returns the indices requested when the caller names none:
// every report up to and including the default protein phosphorylation report.
func (c *Catalog) DefaultSelectors() []string {
	var out []string
	for _, e := range c.Entries {
		if e.Index <= 8 {
			out = append(out, strconv.Itoa(e.Index))
		}
	}
	return out
}

// Label renders "<tool> <version>".
func (c *Catalog) Label() string {
	return strings.TrimSpace(c.Tool + " " + c.Version)
}

func nameKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
