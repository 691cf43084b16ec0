package parser

import (
	"sync"
	"time"

	"nbcollab/internal/shared/observability"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

// PythonSymbolExtractor reports the names a Python cell defines, reads and
// imports. Cells that fail to parse (IPython magics, shell escapes, syntax
// errors) yield three empty sets.
//
// Safe for concurrent use; tree-sitter parsers are recycled through a pool.
type PythonSymbolExtractor struct {
	lang    *sitter.Language
	parsers sync.Pool
	engine  *ExtractorEngine
}

func NewPythonSymbolExtractor() *PythonSymbolExtractor {
	e := &PythonSymbolExtractor{
		lang: sitter.NewLanguage(tree_sitter_python.Language()),
	}
	e.parsers.New = func() any {
		sp := sitter.NewParser()
		sp.SetLanguage(e.lang)
		return sp
	}
	e.engine = NewExtractorEngine(map[string]NodeHandler{
		"import_statement":        e.extractImport,
		"import_from_statement":   e.extractFromImport,
		"future_import_statement": skipNode,
		"function_definition":     e.extractDefinition,
		"class_definition":        e.extractDefinition,
		"assignment":              e.extractAssignment,
		"identifier":              e.extractName,
		"global_statement":        skipNode,
		"nonlocal_statement":      skipNode,
	})
	return e
}

func (e *PythonSymbolExtractor) Extract(source string) Symbols {
	start := time.Now()
	defer func() {
		observability.ExtractionDuration.Observe(time.Since(start).Seconds())
	}()

	sp := e.parsers.Get().(*sitter.Parser)
	defer func() {
		sp.Reset()
		e.parsers.Put(sp)
	}()

	src := []byte(source)
	tree := sp.Parse(src, nil)
	if tree == nil {
		observability.ExtractionFailuresTotal.Inc()
		return NewSymbols()
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.HasError() {
		observability.ExtractionFailuresTotal.Inc()
		return NewSymbols()
	}

	ctx := &ExtractionContext{Source: src, Symbols: NewSymbols()}
	e.engine.Walk(ctx, root)
	return ctx.Symbols
}

func skipNode(*ExtractionContext, *sitter.Node) bool { return true }

// import a.b, import numpy as np
func (e *PythonSymbolExtractor) extractImport(ctx *ExtractionContext, node *sitter.Node) bool {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		e.addImported(ctx, node.NamedChild(i))
	}
	return true
}

// from m import a, b as c, *
func (e *PythonSymbolExtractor) extractFromImport(ctx *ExtractionContext, node *sitter.Node) bool {
	module := node.ChildByFieldName("module_name")
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if sameNode(child, module) {
			continue
		}
		e.addImported(ctx, child)
	}
	return true
}

func (e *PythonSymbolExtractor) addImported(ctx *ExtractionContext, node *sitter.Node) {
	if node == nil {
		return
	}
	switch node.Kind() {
	case "dotted_name":
		ctx.Symbols.Imports.Add(ctx.Text(node))
	case "aliased_import":
		if alias := node.ChildByFieldName("alias"); alias != nil {
			ctx.Symbols.Imports.Add(ctx.Text(alias))
			return
		}
		ctx.Symbols.Imports.Add(ctx.Text(node.ChildByFieldName("name")))
	case "wildcard_import":
		ctx.Symbols.Imports.Add("*")
	}
}

func (e *PythonSymbolExtractor) extractDefinition(ctx *ExtractionContext, node *sitter.Node) bool {
	if name := node.ChildByFieldName("name"); name != nil {
		ctx.Symbols.Definitions.Add(ctx.Text(name))
	}
	return false
}

// Plain and unpacking assignments define their target names. Annotated
// assignments (x: int = 1) only declare a type and are not counted.
func (e *PythonSymbolExtractor) extractAssignment(ctx *ExtractionContext, node *sitter.Node) bool {
	if node.ChildByFieldName("type") != nil {
		return false
	}
	ctx.AppendTargetNames(node.ChildByFieldName("left"))
	return false
}

func (e *PythonSymbolExtractor) extractName(ctx *ExtractionContext, node *sitter.Node) bool {
	if isNameExpression(node) {
		ctx.Symbols.Usages.Add(ctx.Text(node))
	}
	return true
}

// isNameExpression reports whether an identifier is a variable reference, as
// opposed to an attribute name, a declared function/class/parameter name or a
// keyword argument label.
func isNameExpression(node *sitter.Node) bool {
	parent := node.Parent()
	if parent == nil {
		return true
	}

	switch parent.Kind() {
	case "attribute":
		return sameNode(parent.ChildByFieldName("object"), node)
	case "function_definition", "class_definition", "keyword_argument",
		"default_parameter", "typed_default_parameter":
		return !sameNode(parent.ChildByFieldName("name"), node)
	case "parameters", "lambda_parameters", "typed_parameter":
		return false
	case "list_splat_pattern", "dictionary_splat_pattern":
		if gp := parent.Parent(); gp != nil {
			switch gp.Kind() {
			case "parameters", "lambda_parameters", "typed_parameter":
				return false
			}
		}
		return true
	case "dotted_name", "aliased_import", "relative_import", "import_prefix":
		return false
	}
	return true
}
