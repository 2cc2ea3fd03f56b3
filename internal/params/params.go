package params

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kingrea/proteoflow/internal/failure"
	"github.com/kingrea/proteoflow/internal/toolchain"
)

// ListDelimiter joins list elements inside a single parameter token. It
// contains no whitespace so an encoded list is always one token.
const ListDelimiter = ",&"

// listJoin separates list elements in the rendered flag value.
const listJoin = ", "

// Keys set by Derive itself; overrides may not replace them.
const (
	KeyOut = "out"
	KeyDB  = "db"
)

// EncodeList serializes items into one delimiter-joined token.
func EncodeList(items []string) string {
	return strings.Join(items, ListDelimiter)
}

// DecodeList reverses EncodeList. The empty token decodes to no items.
func DecodeList(token string) []string {
	if token == "" {
		return []string{}
	}
	return strings.Split(token, ListDelimiter)
}

// FormatValue renders a YAML scalar or list as a parameter value. Booleans
// become 1/0, the form the compomics CLIs accept. Lists are encoded with
// EncodeList; nested structures are rejected.
func FormatValue(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool:
		if v {
			return "1", nil
		}
		return "0", nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case []string:
		return encodeItems(v)
	case []any:
		items := make([]string, 0, len(v))
		for i, item := range v {
			if isCompound(item) {
				return "", fmt.Errorf("list element %d: nested values are not supported", i)
			}
			s, err := FormatValue(item)
			if err != nil {
				return "", fmt.Errorf("list element %d: %w", i, err)
			}
			items = append(items, s)
		}
		return encodeItems(items)
	}
	return "", fmt.Errorf("unsupported value type %T", value)
}

func encodeItems(items []string) (string, error) {
	for i, item := range items {
		if strings.Contains(item, ListDelimiter) {
			return "", fmt.Errorf("list element %d contains reserved delimiter %q", i, ListDelimiter)
		}
	}
	return EncodeList(items), nil
}

func isCompound(value any) bool {
	switch value.(type) {
	case []any, []string, map[string]any:
		return true
	}
	return false
}

func isList(value any) bool {
	switch value.(type) {
	case []any, []string:
		return true
	}
	return false
}

// Parameter is one merged entry. List values hold an encoded token.
type Parameter struct {
	Key   string
	Value string
	List  bool
}

// Items returns the decoded elements of a list parameter.
func (p Parameter) Items() []string {
	if !p.List {
		return []string{p.Value}
	}
	return DecodeList(p.Value)
}

// FlagValue returns the value handed to the external tool.
func (p Parameter) FlagValue() string {
	if !p.List {
		return p.Value
	}
	return strings.Join(DecodeList(p.Value), listJoin)
}

// ParameterSet is the immutable result of Derive.
type ParameterSet struct {
	entries  map[string]Parameter
	outPath  string
	database string
}

// Request carries everything Derive needs besides the defaults.
type Request struct {
	Level     string
	Overrides map[string]any
	// OutPath is where IdentificationParametersCLI writes the .par file.
	OutPath string
	// Database is the resolved target/decoy FASTA.
	Database string
}

// Derive merges common defaults, the level preset and overrides, in that
// order of increasing precedence.
func Derive(d *Defaults, req Request) (*ParameterSet, error) {
	if d == nil {
		return nil, failure.Config("params: derive", "defaults are required")
	}
	if !d.HasLevel(req.Level) {
		return nil, failure.Config("params: derive", "unknown sensitivity level %q (known: %s)", req.Level, strings.Join(d.LevelNames(), ", "))
	}
	if strings.TrimSpace(req.OutPath) == "" {
		return nil, failure.Config("params: derive", "parameter file path is required")
	}
	if strings.TrimSpace(req.Database) == "" {
		return nil, failure.Config("params: derive", "database path is required")
	}

	level := normalizeLevel(req.Level)
	preset := d.Levels[level]
	set := &ParameterSet{entries: map[string]Parameter{}, outPath: req.OutPath, database: req.Database}
	layers := []struct {
		name   string
		values map[string]any
	}{
		{"ms-common", d.Common},
		{"ms-level." + level, preset},
		{"overrides", req.Overrides},
	}
	for _, layer := range layers {
		for key, value := range layer.values {
			key = strings.TrimLeft(strings.TrimSpace(key), "-")
			if key == "" {
				return nil, failure.Config("params: derive", "%s: empty parameter name", layer.name)
			}
			if key == KeyOut || key == KeyDB {
				return nil, failure.Config("params: derive", "%s: %q is derived and cannot be set", layer.name, key)
			}
			formatted, err := FormatValue(value)
			if err != nil {
				return nil, failure.Config("params: derive", "%s.%s: %v", layer.name, key, err)
			}
			set.entries[key] = Parameter{Key: key, Value: formatted, List: isList(value)}
		}
	}
	return set, nil
}

// Get returns a merged parameter.
func (s *ParameterSet) Get(key string) (Parameter, bool) {
	p, ok := s.entries[key]
	return p, ok
}

// Keys returns the merged parameter names, sorted.
func (s *ParameterSet) Keys() []string {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// OutPath returns the parameter file location.
func (s *ParameterSet) OutPath() string {
	return s.outPath
}

// Map returns the flat key/value mapping including the derived fields.
func (s *ParameterSet) Map() map[string]string {
	out := make(map[string]string, len(s.entries)+2)
	for k, p := range s.entries {
		out[k] = p.FlagValue()
	}
	out[KeyOut] = s.outPath
	out[KeyDB] = s.database
	return out
}

// Args renders the set as -key value tokens: merged keys sorted, then the
// derived out and db. Empty lists omit their flag.
func (s *ParameterSet) Args() *toolchain.Args {
	args := &toolchain.Args{}
	for _, key := range s.Keys() {
		p := s.entries[key]
		if p.List && len(p.Items()) == 0 {
			continue
		}
		args.Pair(key, p.FlagValue())
	}
	args.Pair(KeyOut, s.outPath)
	args.Pair(KeyDB, s.database)
	return args
}

// EngineSelection maps engine names to their SearchCLI flag value.
type EngineSelection map[string]string

// EngineSelection returns the engine flags from the defaults.
func (d *Defaults) EngineSelection() (EngineSelection, error) {
	sel := make(EngineSelection, len(d.Engines))
	for name, value := range d.Engines {
		formatted, err := FormatValue(value)
		if err != nil {
			return nil, fmt.Errorf("params: search-engines.%s: %w", name, err)
		}
		sel[strings.TrimSpace(name)] = formatted
	}
	return sel, nil
}

// Names returns the engine names, sorted.
func (e EngineSelection) Names() []string {
	names := make([]string, 0, len(e))
	for name := range e {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Enabled returns the engines whose flag is not "0".
func (e EngineSelection) Enabled() []string {
	var enabled []string
	for _, name := range e.Names() {
		if v := strings.TrimSpace(e[name]); v != "" && v != "0" {
			enabled = append(enabled, name)
		}
	}
	return enabled
}

// AppendTo adds one -engine flag pair per engine, sorted by name.
func (e EngineSelection) AppendTo(args *toolchain.Args) {
	for _, name := range e.Names() {
		args.Pair(name, e[name])
	}
}
