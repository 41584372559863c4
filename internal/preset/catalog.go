package preset

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// ErrPresetNotFound is matched by MissingPresetError.
var ErrPresetNotFound = errors.New("preset: not found")

// MissingPresetError reports an active preset absent from the catalog.
type MissingPresetError struct {
	Name        string
	Suggestions []string
}

func (e *MissingPresetError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("preset: %s not found", e.Name)
	}
	return fmt.Sprintf("preset: %s not found (did you mean %s?)", e.Name, strings.Join(e.Suggestions, ", "))
}

// Is lets errors.Is match ErrPresetNotFound.
func (e *MissingPresetError) Is(target error) bool {
	return target == ErrPresetNotFound
}

// Catalog is a name-keyed set of presets. It is built fresh per operation
// and passed explicitly; nothing is cached globally.
type Catalog struct {
	byName map[string]Preset
}

// NewCatalog layers preset lists; later layers replace earlier entries with
// the same name.
func NewCatalog(layers ...[]Preset) *Catalog {
	c := &Catalog{byName: map[string]Preset{}}
	for _, layer := range layers {
		for _, p := range layer {
			c.byName[p.Name] = p
		}
	}
	return c
}

// LoadCatalog loads the embedded presets, then each directory in order.
func LoadCatalog(dirs ...string) (*Catalog, error) {
	embedded, err := LoadEmbedded()
	if err != nil {
		return nil, err
	}
	layers := [][]Preset{embedded}
	for _, dir := range dirs {
		presets, err := LoadDir(dir)
		if err != nil {
			return nil, err
		}
		layers = append(layers, presets)
	}
	return NewCatalog(layers...), nil
}

// Lookup finds a preset by name.
func (c *Catalog) Lookup(name string) (Preset, bool) {
	if c == nil {
		return Preset{}, false
	}
	p, ok := c.byName[strings.TrimSpace(name)]
	return p, ok
}

// All returns every preset sorted by order, then name.
func (c *Catalog) All() []Preset {
	if c == nil {
		return nil
	}
	out := make([]Preset, 0, len(c.byName))
	for _, p := range c.byName {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Names returns preset names sorted alphabetically.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve maps active preset names onto catalog entries, dropping repeated
// names. An unknown name fails with *MissingPresetError.
func (c *Catalog) Resolve(active []string) ([]Preset, error) {
	seen := make(map[string]struct{}, len(active))
	resolved := make([]Preset, 0, len(active))
	for _, name := range active {
		name = strings.TrimSpace(name)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		p, ok := c.Lookup(name)
		if !ok {
			return nil, &MissingPresetError{Name: name, Suggestions: c.suggest(name, 3)}
		}
		resolved = append(resolved, p)
	}
	return resolved, nil
}

// Search ranks presets by fuzzy match against name and description.
// An empty query returns All().
func (c *Catalog) Search(query string) []Preset {
	query = strings.TrimSpace(query)
	all := c.All()
	if query == "" {
		return all
	}
	targets := make([]string, len(all))
	for i, p := range all {
		targets[i] = p.Name + " " + p.Description
	}
	matches := fuzzy.Find(query, targets)
	out := make([]Preset, 0, len(matches))
	for _, match := range matches {
		out = append(out, all[match.Index])
	}
	return out
}

func (c *Catalog) suggest(name string, limit int) []string {
	if name == "" {
		return nil
	}
	names := c.Names()
	matches := fuzzy.Find(name, names)
	var out []string
	for _, match := range matches {
		out = append(out, match.Str)
		if len(out) == limit {
			break
		}
	}
	return out
}
