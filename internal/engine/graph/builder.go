package graph

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"nbcollab/internal/engine/parser"
	"nbcollab/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SymbolExtractor reports what a cell's source defines, reads and imports.
// Implementations must fail soft and return empty sets for unparsable input.
type SymbolExtractor interface {
	Extract(source string) parser.Symbols
}

type BuildOptions struct {
	// IncludeImports makes a name imported by an earlier cell count as a
	// dependency source, in addition to its definitions.
	IncludeImports bool
}

func DefaultBuildOptions() BuildOptions {
	return BuildOptions{IncludeImports: true}
}

type Builder struct {
	extractor SymbolExtractor
	opts      BuildOptions
}

func NewBuilder(extractor SymbolExtractor, opts BuildOptions) *Builder {
	return &Builder{extractor: extractor, opts: opts}
}

var headingPattern = regexp.MustCompile(`(?m)^[ \t]*(#+)[ \t]+(\S.*)$`)

// LastHeading returns the title and level of the last markdown heading in src.
func LastHeading(src string) (title string, level int, ok bool) {
	matches := headingPattern.FindAllStringSubmatch(src, -1)
	if len(matches) == 0 {
		return "", 0, false
	}
	last := matches[len(matches)-1]
	title = strings.TrimSpace(last[2])
	if title == "" {
		return "", 0, false
	}
	return title, len(last[1]), true
}

// section is the heading that owns the cells currently being visited.
type section struct {
	id    NodeID
	name  string
	level int
}

type analyzedCell struct {
	id      NodeID
	section NodeID
	symbols parser.Symbols
}

// Build constructs the dependency graph for the ordered cells and prunes
// sections that no dependency enters or leaves.
func (b *Builder) Build(ctx context.Context, cells []parser.Cell) *Graph {
	_, span := observability.Tracer.Start(ctx, "graph.Build", trace.WithAttributes(
		attribute.Int("cells", len(cells)),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		observability.AnalysisDuration.WithLabelValues("build_graph").Observe(time.Since(start).Seconds())
	}()

	g := Prune(b.BuildCandidate(cells))
	g.publishMetrics()
	span.SetAttributes(
		attribute.Int("nodes", len(g.order)),
		attribute.Int("edges", len(g.edges)),
	)
	return g
}

// BuildCandidate constructs the unpruned graph: every distinct heading gets a
// section node and the start sentinel is always present.
func (b *Builder) BuildCandidate(cells []parser.Cell) *Graph {
	g := New()
	current := section{id: StartID, name: StartSection, level: 0}
	g.insertNode(newSectionNode(current))

	earlier := make([]analyzedCell, 0, len(cells))
	for _, cell := range cells {
		switch cell.Kind {
		case parser.CellMarkdown:
			title, level, ok := LastHeading(cell.Source)
			if !ok || title == current.name {
				continue
			}
			if id, seen := g.sectionsByName[title]; seen {
				// A repeated heading resumes the section it first named.
				current = section{id: id, name: title, level: g.nodes[id].Level}
				continue
			}
			current = section{id: SectionID(cell.Index), name: title, level: level}
			g.insertNode(newSectionNode(current))

		case parser.CellCode:
			symbols := b.extractor.Extract(cell.Source)
			id := CellID(cell.Index)
			g.insertNode(newCellNode(cell, current))

			for _, prev := range earlier {
				if !b.dependsOn(prev.symbols, symbols) {
					continue
				}
				if _, added := g.insertEdge(prev.id, id, 0); !added {
					continue
				}
				if prev.section != current.id {
					g.addSectionDependency(prev.section, current.id)
				}
			}
			earlier = append(earlier, analyzedCell{id: id, section: current.id, symbols: symbols})
		}
	}
	return g
}

func (b *Builder) dependsOn(prev, cur parser.Symbols) bool {
	if prev.Definitions.Intersects(cur.Usages) {
		return true
	}
	return b.opts.IncludeImports && prev.Imports.Intersects(cur.Usages)
}

// addSectionDependency counts one more cell dependency crossing from one
// section into another. Only a direct edge between the pair is incremented.
func (g *Graph) addSectionDependency(from, to NodeID) {
	if e, exists := g.Edge(from, to); exists {
		e.Weight++
		return
	}
	g.insertEdge(from, to, 1)
}

func newSectionNode(s section) *Node {
	return &Node{
		ID:      s.id,
		Label:   s.name,
		Section: s.name,
		Level:   s.level,
	}
}

func newCellNode(cell parser.Cell, s section) *Node {
	return &Node{
		ID:        CellID(cell.Index),
		Label:     fmt.Sprintf("Cell %d", cell.Index+1),
		Section:   s.name,
		Level:     s.level,
		CellID:    cell.ID,
		SectionID: s.id,
	}
}
