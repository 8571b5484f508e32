// Package rules holds the versioned keyword tables that drive intake decisions:
// category keywords, per-category image label allow-lists, the abuse deny-list
// and the urgency tiers. Tables are data only; they are loaded once at startup.
package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"report-intake-pipeline/models"

	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRules []byte

// Category is one routable department with its detection vocabulary.
type Category struct {
	Name        models.Category `yaml:"name"`
	Keywords    []string        `yaml:"keywords"`
	ImageLabels []string        `yaml:"image_labels"`
}

// Urgency holds the urgency tiers. Override terms win over everything else.
type Urgency struct {
	Override []string `yaml:"override"`
	High     []string `yaml:"high"`
	Medium   []string `yaml:"medium"`
}

// Table is the complete rule set.
type Table struct {
	Version            string     `yaml:"version"`
	Categories         []Category `yaml:"categories"`
	GenericImageLabels []string   `yaml:"generic_image_labels"`
	Abusive            []string   `yaml:"abusive"`
	Urgency            Urgency    `yaml:"urgency"`
}

// Default returns the rule set compiled into the binary.
func Default() (*Table, error) {
	return Parse(defaultRules)
}

// Load reads a rule set from path. An empty path selects the embedded defaults.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes, cleans and validates a YAML rule set.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	t.clean()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks that the table only names known categories, names each at
// most once, and has something to match against.
func (t *Table) Validate() error {
	if t.Version == "" {
		return errors.New("rules: version is required")
	}
	if len(t.Categories) == 0 {
		return errors.New("rules: at least one category is required")
	}
	seen := make(map[models.Category]bool, len(t.Categories))
	for _, c := range t.Categories {
		if !c.Name.IsRoutable() {
			return fmt.Errorf("rules: unknown category %q", c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("rules: category %q listed twice", c.Name)
		}
		seen[c.Name] = true
		if len(c.Keywords) == 0 {
			return fmt.Errorf("rules: category %q has no keywords", c.Name)
		}
	}
	return nil
}

// Category returns the rules for name.
func (t *Table) Category(name models.Category) (*Category, bool) {
	for i := range t.Categories {
		if t.Categories[i].Name == name {
			return &t.Categories[i], true
		}
	}
	return nil, false
}

// CategoryNames lists the categories in table order.
func (t *Table) CategoryNames() []models.Category {
	names := make([]models.Category, 0, len(t.Categories))
	for _, c := range t.Categories {
		names = append(names, c.Name)
	}
	return names
}

// CandidateLabels is the union of all category keywords in table order. It
// is the label vocabulary offered to vision models.
func (t *Table) CandidateLabels() []string {
	seen := make(map[string]bool)
	var labels []string
	for _, c := range t.Categories {
		for _, kw := range c.Keywords {
			if seen[kw] {
				continue
			}
			seen[kw] = true
			labels = append(labels, kw)
		}
	}
	return labels
}

func (t *Table) clean() {
	t.Version = strings.TrimSpace(t.Version)
	for i := range t.Categories {
		c := &t.Categories[i]
		c.Name = models.Category(strings.TrimSpace(string(c.Name)))
		c.Keywords = cleanList(c.Keywords)
		c.ImageLabels = cleanList(c.ImageLabels)
	}
	t.GenericImageLabels = cleanList(t.GenericImageLabels)
	t.Abusive = cleanList(t.Abusive)
	t.Urgency.Override = cleanList(t.Urgency.Override)
	t.Urgency.High = cleanList(t.Urgency.High)
	t.Urgency.Medium = cleanList(t.Urgency.Medium)
}

// cleanList lower-cases, collapses whitespace and drops empty and repeated
// entries while keeping the original order.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
