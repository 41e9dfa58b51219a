package catalog

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogRawData []byte

// catalogFile is the top-level structure of the embedded YAML.
type catalogFile struct {
	Entries []ModelEntry `yaml:"entries"`
}

// PortGroup is a group of identical ports on a model.
type PortGroup struct {
	Kind  string `yaml:"kind" json:"kind"`
	Count int    `yaml:"count" json:"count"`
}

// ModelEntry is the static hardware description of one device model.
type ModelEntry struct {
	ID         string      `yaml:"id" json:"id"`
	Vendor     string      `yaml:"vendor" json:"vendor"`
	Model      string      `yaml:"model" json:"model"`
	Adapters   []string    `yaml:"adapters" json:"adapters"`
	MaxPorts   int         `yaml:"max_ports" json:"max_ports"`
	MaxClients int         `yaml:"max_clients,omitempty" json:"max_clients,omitempty"`
	Throughput string      `yaml:"throughput,omitempty" json:"throughput,omitempty"`
	Ports      []PortGroup `yaml:"ports" json:"ports"`
	Features   []string    `yaml:"features" json:"features"`
}

// Catalog provides lazy-loaded access to the embedded model catalog.
type Catalog struct {
	once    sync.Once
	entries []ModelEntry
	byID    map[string]int
	err     error
}

// NewCatalog creates a new Catalog that will parse the embedded YAML on first access.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Entries returns a copy of all catalog entries.
func (c *Catalog) Entries() ([]ModelEntry, error) {
	c.once.Do(c.load)
	if c.err != nil {
		return nil, c.err
	}
	cp := make([]ModelEntry, len(c.entries))
	copy(cp, c.entries)
	return cp, nil
}

// Lookup returns the entry for a model id. Matching is case-insensitive.
func (c *Catalog) Lookup(id string) (ModelEntry, bool) {
	c.once.Do(c.load)
	if c.err != nil {
		return ModelEntry{}, false
	}
	i, ok := c.byID[strings.ToLower(id)]
	if !ok {
		return ModelEntry{}, false
	}
	return c.entries[i], true
}

// load parses the embedded YAML catalog data.
func (c *Catalog) load() {
	c.err = c.parse(catalogRawData)
}

func (c *Catalog) parse(data []byte) error {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("catalog: parse yaml: %w", err)
	}
	byID := make(map[string]int, len(f.Entries))
	for i, e := range f.Entries {
		key := strings.ToLower(e.ID)
		if key == "" {
			return fmt.Errorf("catalog: entry %d has no id", i)
		}
		if _, dup := byID[key]; dup {
			return fmt.Errorf("catalog: duplicate id %q", e.ID)
		}
		byID[key] = i
	}
	c.entries = f.Entries
	c.byID = byID
	return nil
}
