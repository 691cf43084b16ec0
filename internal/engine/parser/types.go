package parser

import "sort"

type CellKind int

const (
	CellCode CellKind = iota
	CellMarkdown
	CellRaw
)

func (k CellKind) String() string {
	switch k {
	case CellCode:
		return "code"
	case CellMarkdown:
		return "markdown"
	case CellRaw:
		return "raw"
	}
	return "unknown"
}

// Cell is one source unit of a notebook. Index is the 0-based position in the
// notebook; ID is the stable nbformat identifier used by execution telemetry.
type Cell struct {
	Index  int
	Kind   CellKind
	Source string
	ID     string
}

type Notebook struct {
	ID    string // instrumentation id from notebook metadata, if tagged
	Name  string
	Cells []Cell
}

// CodeCells returns the code cells in notebook order.
func (n *Notebook) CodeCells() []Cell {
	out := make([]Cell, 0, len(n.Cells))
	for _, c := range n.Cells {
		if c.Kind == CellCode {
			out = append(out, c)
		}
	}
	return out
}

// NameSet is a set of Python identifiers.
type NameSet map[string]struct{}

func (s NameSet) Add(name string) {
	if name == "" {
		return
	}
	s[name] = struct{}{}
}

func (s NameSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Intersects reports whether the two sets share at least one name.
func (s NameSet) Intersects(other NameSet) bool {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for name := range small {
		if large.Has(name) {
			return true
		}
	}
	return false
}

func (s NameSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Symbols holds what a single cell defines, reads and imports.
type Symbols struct {
	Definitions NameSet
	Usages      NameSet
	Imports     NameSet
}

func NewSymbols() Symbols {
	return Symbols{
		Definitions: make(NameSet),
		Usages:      make(NameSet),
		Imports:     make(NameSet),
	}
}

func (s Symbols) Empty() bool {
	return len(s.Definitions) == 0 && len(s.Usages) == 0 && len(s.Imports) == 0
}
