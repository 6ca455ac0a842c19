package catalog

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"dofaline/internal/domain"
)

//go:embed catalog.yml
var defaultYAML []byte

type Country struct {
	Name string `yaml:"name" json:"name"`
	Code string `yaml:"code" json:"code"`
}

type Process struct {
	ID   string   `yaml:"id" json:"id"`
	Name string   `yaml:"name" json:"name"`
	Sub  []string `yaml:"sub,omitempty" json:"sub,omitempty"`
}

type ProcessGroup struct {
	Group     string    `yaml:"group" json:"group"`
	Processes []Process `yaml:"processes" json:"processes"`
}

// ProcessNode is a resolved entry of the process map; sub-processes carry their parent id.
type ProcessNode struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Group    string `json:"group"`
	ParentID string `json:"parent_id,omitempty"`
}

// Catalog holds the fixed enumerations the data entry forms choose from.
type Catalog struct {
	Countries       []Country                      `yaml:"countries" json:"countries"`
	Axes            []string                       `yaml:"axes" json:"axes"`
	Categories      []string                       `yaml:"categories" json:"categories"`
	TypeLabels      map[domain.DofaType]string     `yaml:"type_labels" json:"type_labels"`
	ImpactLabels    map[int]string                 `yaml:"impact_labels" json:"impact_labels"`
	ProcessMap      []ProcessGroup                 `yaml:"process_map" json:"process_map"`
	FactorTemplates map[string]map[string][]string `yaml:"factor_templates" json:"factor_templates"`

	processes map[string]ProcessNode
}

// Load parses a catalog document.
func Load(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("invalid catalog yaml: %w", err)
	}
	c.processes = map[string]ProcessNode{}
	for _, g := range c.ProcessMap {
		for _, p := range g.Processes {
			if _, dup := c.processes[p.ID]; dup {
				return nil, fmt.Errorf("duplicate process id %s", p.ID)
			}
			c.processes[p.ID] = ProcessNode{ID: p.ID, Name: p.Name, Group: g.Group}
			for _, s := range p.Sub {
				id := SubProcessID(p.ID, s)
				c.processes[id] = ProcessNode{ID: id, Name: s, Group: g.Group, ParentID: p.ID}
			}
		}
	}
	return &c, nil
}

var loadDefault = sync.OnceValue(func() *Catalog {
	c, err := Load(defaultYAML)
	if err != nil {
		panic(err)
	}
	return c
})

// Default returns the built-in catalog.
func Default() *Catalog {
	return loadDefault()
}

// SubProcessID builds the identifier of a sub-process node.
func SubProcessID(parentID, name string) string {
	return parentID + "-" + name
}

func (c *Catalog) HasCountry(name string) bool {
	for _, ct := range c.Countries {
		if ct.Name == name {
			return true
		}
	}
	return false
}

func (c *Catalog) HasAxis(axis string) bool {
	return contains(c.Axes, axis)
}

func (c *Catalog) HasCategory(category string) bool {
	return contains(c.Categories, category)
}

// Factors returns the suggested factor labels for an axis and category.
func (c *Catalog) Factors(axis, category string) []string {
	return c.FactorTemplates[axis][category]
}

func (c *Catalog) TypeLabel(t domain.DofaType) string {
	if l, ok := c.TypeLabels[t]; ok {
		return l
	}
	return string(t)
}

func (c *Catalog) ImpactLabel(impact int) string {
	return c.ImpactLabels[impact]
}

// LookupProcess resolves a process or sub-process id.
func (c *Catalog) LookupProcess(id string) (ProcessNode, bool) {
	n, ok := c.processes[id]
	return n, ok
}

func contains(items []string, v string) bool {
	for _, it := range items {
		if it == v {
			return true
		}
	}
	return false
}
