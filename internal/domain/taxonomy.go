package domain

import (
	"fmt"
	"sort"
	"strings"
)

// TaxonomyNode is one strategy code with an optional parent code.
type TaxonomyNode struct {
	Code   string `yaml:"code"`
	Parent string `yaml:"parent"`
}

// Taxonomy is an explicit strategy tree. A preference for a parent code covers
// every descendant. Codes not present in the tree are roots that only match themselves.
type Taxonomy struct {
	parent map[string]string
}

// NormalizeCode canonicalizes a taxonomy, sector or geography code for comparison.
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// NewTaxonomy builds a taxonomy and rejects cycles, self-parents and duplicate codes.
func NewTaxonomy(nodes []TaxonomyNode) (*Taxonomy, error) {
	t := &Taxonomy{parent: make(map[string]string, len(nodes))}
	for _, n := range nodes {
		code := NormalizeCode(n.Code)
		if code == "" {
			return nil, fmt.Errorf("taxonomy node with empty code")
		}
		if _, dup := t.parent[code]; dup {
			return nil, fmt.Errorf("duplicate taxonomy code %q", n.Code)
		}
		parent := NormalizeCode(n.Parent)
		if parent == code {
			return nil, fmt.Errorf("taxonomy code %q is its own parent", n.Code)
		}
		t.parent[code] = parent
	}
	for code := range t.parent {
		seen := map[string]bool{code: true}
		for p := t.parent[code]; p != ""; p = t.parent[p] {
			if seen[p] {
				return nil, fmt.Errorf("taxonomy cycle through %q", code)
			}
			seen[p] = true
		}
	}
	return t, nil
}

// MustTaxonomy builds a taxonomy or panics. Intended for tests and defaults.
func MustTaxonomy(nodes []TaxonomyNode) *Taxonomy {
	t, err := NewTaxonomy(nodes)
	if err != nil {
		panic(err)
	}
	return t
}

// Ancestors returns the normalized code followed by all of its ancestors, nearest first.
func (t *Taxonomy) Ancestors(code string) []string {
	c := NormalizeCode(code)
	if c == "" {
		return nil
	}
	out := []string{c}
	if t == nil {
		return out
	}
	for p := t.parent[c]; p != ""; p = t.parent[p] {
		out = append(out, p)
	}
	return out
}

// Covers reports whether a preference for ancestor is satisfied by code.
func (t *Taxonomy) Covers(ancestor, code string) bool {
	a := NormalizeCode(ancestor)
	if a == "" {
		return false
	}
	for _, c := range t.Ancestors(code) {
		if c == a {
			return true
		}
	}
	return false
}

// Codes returns all known codes in sorted order.
func (t *Taxonomy) Codes() []string {
	out := make([]string, 0, len(t.parent))
	for c := range t.parent {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// DefaultTaxonomyNodes is the built-in strategy tree used when config provides none.
func DefaultTaxonomyNodes() []TaxonomyNode {
	return []TaxonomyNode{
		{Code: "Private Equity"},
		{Code: "Private Equity - Buyout", Parent: "Private Equity"},
		{Code: "Private Equity - Growth", Parent: "Private Equity"},
		{Code: "Venture Capital"},
		{Code: "Venture Capital - Seed", Parent: "Venture Capital"},
		{Code: "Venture Capital - Early Stage", Parent: "Venture Capital"},
		{Code: "Venture Capital - Late Stage", Parent: "Venture Capital"},
		{Code: "Private Credit"},
		{Code: "Private Credit - Direct Lending", Parent: "Private Credit"},
		{Code: "Private Credit - Distressed", Parent: "Private Credit"},
		{Code: "Real Assets"},
		{Code: "Real Assets - Real Estate", Parent: "Real Assets"},
		{Code: "Real Assets - Infrastructure", Parent: "Real Assets"},
	}
}
