// Package catalog declares the ticker universes tracked per ecosystem.
//
// Every ecosystem is an ordered list of categories. A category may be shared
// between ecosystems; its symbols then belong to both universes, and the union
// within one universe is deduplicated while remembering every category a
// symbol came from.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ndewijer/strategy-index-backend/internal/apperrors"
)

// Ecosystem names a ticker universe.
type Ecosystem string

const (
	EcosystemAI       Ecosystem = "ai"
	EcosystemRobotics Ecosystem = "robotics"
)

// DefaultEcosystem is used when a request doesn't name one.
const DefaultEcosystem = EcosystemAI

// Category is a named group of symbols. Shared categories appear in more than
// one ecosystem.
type Category struct {
	Name    string
	Symbols []string
}

// Definition lists the categories of one ecosystem in display order.
type Definition struct {
	Ecosystem  Ecosystem
	Categories []Category
}

// Entry is one symbol of a universe with its provenance.
type Entry struct {
	Symbol     string   `json:"symbol"`
	Categories []string `json:"categories"`
	Shared     bool     `json:"shared"`
	Market     string   `json:"market"`
}

// Catalog resolves ecosystems to symbol universes.
type Catalog struct {
	order     []Ecosystem
	universes map[Ecosystem][]Entry
	shared    map[string]bool
}

// New builds a catalog from definitions. A category is shared when its name
// appears in more than one definition.
func New(defs ...Definition) *Catalog {
	c := &Catalog{
		universes: make(map[Ecosystem][]Entry, len(defs)),
		shared:    make(map[string]bool),
	}

	seenIn := make(map[string]map[Ecosystem]bool)
	for _, def := range defs {
		for _, cat := range def.Categories {
			if seenIn[cat.Name] == nil {
				seenIn[cat.Name] = make(map[Ecosystem]bool)
			}
			seenIn[cat.Name][def.Ecosystem] = true
		}
	}
	for name, ecos := range seenIn {
		if len(ecos) > 1 {
			c.shared[name] = true
		}
	}

	for _, def := range defs {
		if _, exists := c.universes[def.Ecosystem]; !exists {
			c.order = append(c.order, def.Ecosystem)
		}
		c.universes[def.Ecosystem] = c.buildUniverse(def)
	}
	return c
}

func (c *Catalog) buildUniverse(def Definition) []Entry {
	var entries []Entry
	index := make(map[string]int)
	for _, cat := range def.Categories {
		for _, raw := range cat.Symbols {
			symbol := strings.TrimSpace(raw)
			if symbol == "" {
				continue
			}
			i, ok := index[symbol]
			if !ok {
				index[symbol] = len(entries)
				entries = append(entries, Entry{Symbol: symbol, Market: Market(symbol)})
				i = len(entries) - 1
			}
			e := &entries[i]
			if !contains(e.Categories, cat.Name) {
				e.Categories = append(e.Categories, cat.Name)
			}
			if c.shared[cat.Name] {
				e.Shared = true
			}
		}
	}
	return entries
}

// Ecosystems returns the declared ecosystems in declaration order.
func (c *Catalog) Ecosystems() []Ecosystem {
	return append([]Ecosystem(nil), c.order...)
}

// ParseEcosystem accepts an ecosystem name case-insensitively.
func (c *Catalog) ParseEcosystem(s string) (Ecosystem, error) {
	e := Ecosystem(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := c.universes[e]; !ok {
		return "", fmt.Errorf("%w: %q", apperrors.ErrUnknownEcosystem, s)
	}
	return e, nil
}

// SymbolsFor returns the deduplicated universe of eco in declaration order.
func (c *Catalog) SymbolsFor(eco Ecosystem) ([]string, error) {
	entries, ok := c.universes[eco]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownEcosystem, eco)
	}
	symbols := make([]string, len(entries))
	for i, e := range entries {
		symbols[i] = e.Symbol
	}
	return symbols, nil
}

// Entries returns the universe of eco with category provenance.
func (c *Catalog) Entries(eco Ecosystem) ([]Entry, error) {
	entries, ok := c.universes[eco]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownEcosystem, eco)
	}
	out := make([]Entry, len(entries))
	for i, e := range entries {
		e.Categories = append([]string(nil), e.Categories...)
		out[i] = e
	}
	return out, nil
}

// CategoriesOf returns the categories symbol belongs to within eco.
func (c *Catalog) CategoriesOf(eco Ecosystem, symbol string) []string {
	for _, e := range c.universes[eco] {
		if e.Symbol == symbol {
			return append([]string(nil), e.Categories...)
		}
	}
	return nil
}

// IsShared reports whether category appears in more than one ecosystem.
func (c *Catalog) IsShared(category string) bool {
	return c.shared[category]
}

// SharedCategories returns the names of shared categories, sorted.
func (c *Catalog) SharedCategories() []string {
	names := make([]string, 0, len(c.shared))
	for name := range c.shared {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllSymbols returns the union of every universe, deduplicated, in
// ecosystem then declaration order.
func (c *Catalog) AllSymbols() []string {
	seen := make(map[string]bool)
	var out []string
	for _, eco := range c.order {
		for _, e := range c.universes[eco] {
			if !seen[e.Symbol] {
				seen[e.Symbol] = true
				out = append(out, e.Symbol)
			}
		}
	}
	return out
}

// Market derives the listing market from an exchange suffix. Symbols without
// a suffix are treated as US listings.
func Market(symbol string) string {
	i := strings.LastIndex(symbol, ".")
	if i < 0 || i == len(symbol)-1 {
		return "US"
	}
	switch strings.ToUpper(symbol[i+1:]) {
	case "T":
		return "JP"
	case "L":
		return "UK"
	case "HK":
		return "HK"
	case "DE", "F":
		return "DE"
	case "PA":
		return "FR"
	case "AS":
		return "NL"
	default:
		return strings.ToUpper(symbol[i+1:])
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
