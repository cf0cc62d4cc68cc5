// Package category holds the closed category taxonomy, effective category
// resolution and the origin category string format.
package category

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

//go:embed taxonomy.toml
var defaultTaxonomy []byte

// Group is one parent entry of the taxonomy.
type Group struct {
	Name       string   `toml:"name"`
	Categories []string `toml:"categories"`
}

// Taxonomy is an immutable two-level category table with derived lookups.
type Taxonomy struct {
	groups []Group
	parent map[string]string
	leaves []string
}

var (
	defaultOnce sync.Once
	defaultTax  *Taxonomy
)

// Default returns the built-in taxonomy, parsed once.
func Default() *Taxonomy {
	defaultOnce.Do(func() {
		t, err := Parse(defaultTaxonomy)
		if err != nil {
			panic(fmt.Sprintf("category: embedded taxonomy: %v", err))
		}
		defaultTax = t
	})
	return defaultTax
}

// Parse decodes a TOML taxonomy document.
func Parse(data []byte) (*Taxonomy, error) {
	var doc struct {
		Group []Group `toml:"group"`
	}
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, fmt.Errorf("decode taxonomy: %w", err)
	}
	return New(doc.Group)
}

// New builds a taxonomy from groups, rejecting empty names and duplicate leaves.
func New(groups []Group) (*Taxonomy, error) {
	if len(groups) == 0 {
		return nil, errors.New("taxonomy has no groups")
	}
	t := &Taxonomy{parent: map[string]string{}}
	for _, g := range groups {
		name := strings.TrimSpace(g.Name)
		if name == "" {
			return nil, errors.New("taxonomy group without a name")
		}
		cp := Group{Name: name}
		for _, leaf := range g.Categories {
			leaf = strings.TrimSpace(leaf)
			if leaf == "" {
				return nil, fmt.Errorf("group %q has an empty category", name)
			}
			if prev, ok := t.parent[leaf]; ok {
				return nil, fmt.Errorf("category %q listed under both %q and %q", leaf, prev, name)
			}
			t.parent[leaf] = name
			t.leaves = append(t.leaves, leaf)
			cp.Categories = append(cp.Categories, leaf)
		}
		t.groups = append(t.groups, cp)
	}
	return t, nil
}

// Groups returns a copy of the taxonomy in definition order.
func (t *Taxonomy) Groups() []Group {
	out := make([]Group, len(t.groups))
	for i, g := range t.groups {
		out[i] = Group{Name: g.Name, Categories: append([]string(nil), g.Categories...)}
	}
	return out
}

// Leaves returns every valid leaf category in definition order.
func (t *Taxonomy) Leaves() []string {
	return append([]string(nil), t.leaves...)
}

// SortedLeaves returns the leaf names sorted alphabetically.
func (t *Taxonomy) SortedLeaves() []string {
	out := t.Leaves()
	sort.Strings(out)
	return out
}

// IsLeaf reports whether name is a valid leaf category. Matching is exact.
func (t *Taxonomy) IsLeaf(name string) bool {
	_, ok := t.parent[name]
	return ok
}

// Parent returns the group that owns leaf.
func (t *Taxonomy) Parent(leaf string) (string, bool) {
	p, ok := t.parent[leaf]
	return p, ok
}

// Describe renders the taxonomy as "group: leaf, leaf" lines.
func (t *Taxonomy) Describe() string {
	var b strings.Builder
	for _, g := range t.groups {
		fmt.Fprintf(&b, "- %s: %s\n", g.Name, strings.Join(g.Categories, ", "))
	}
	return b.String()
}
