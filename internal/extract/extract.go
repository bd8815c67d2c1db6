// Package extract turns parsed C# syntax trees into symbols and the
// structural relations between them. All resolution is intra-file: edges to
// entities declared elsewhere are dropped on purpose.
package extract

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/csharp"

	"cinder/internal/model"
)

// declKinds maps tree-sitter-c-sharp node types to symbol kinds.
var declKinds = map[string]string{
	"class_declaration":     model.KindClass,
	"struct_declaration":    model.KindStruct,
	"interface_declaration": model.KindInterface,
	"enum_declaration":      model.KindEnum,
	"method_declaration":    model.KindMethod,
	"property_declaration":  model.KindProperty,
}

// kinds tried when resolving a base-type identifier.
var baseKinds = []string{model.KindClass, model.KindInterface, model.KindStruct}

// kinds tried when resolving a callee identifier.
var calleeKinds = []string{model.KindMethod, "function"}

const anonymousName = "<anonymous>"

// FileParse is the result of extracting one file.
type FileParse struct {
	Symbols   []model.Symbol
	Relations []model.Relation
}

// Extractor parses C# sources with tree-sitter and extracts symbols and
// relations. It is not safe for concurrent use; each worker should own one.
type Extractor struct {
	parser *sitter.Parser
}

func New() *Extractor {
	p := sitter.NewParser()
	p.SetLanguage(csharp.GetLanguage())
	return &Extractor{parser: p}
}

// Parse extracts symbols and relations from one file's source bytes.
// Malformed regions yield a degraded tree and simply produce fewer symbols;
// empty input yields empty lists, not an error.
func (e *Extractor) Parse(ctx context.Context, filePath string, src []byte) (*FileParse, error) {
	tree, err := e.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	symbols := extractSymbols(filePath, root, src)
	table := buildSymbolTable(symbols)
	relations := extractRelations(root, src, table)

	return &FileParse{Symbols: symbols, Relations: relations}, nil
}

// extractSymbols walks every node in document order using an explicit
// work-list of node handles and emits a symbol for each recognized
// declaration, at any nesting depth.
func extractSymbols(filePath string, root *sitter.Node, src []byte) []model.Symbol {
	var symbols []model.Symbol

	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if kind, ok := declKinds[n.Type()]; ok {
			name := anonymousName
			if id := firstChildOfType(n, "identifier"); id != nil {
				name = id.Content(src)
			}
			startLine := int(n.StartPoint().Row) + 1
			symbols = append(symbols, model.Symbol{
				ID:        model.SymbolID(filePath, startLine, name),
				FilePath:  filePath,
				Name:      name,
				Kind:      kind,
				StartLine: startLine,
				EndLine:   int(n.EndPoint().Row) + 1,
				Signature: firstLine(n.Content(src)),
			})
		}

		// Push children in reverse so the visit order is document order.
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, n.Child(i))
		}
	}
	return symbols
}

// symbolKey is the composite resolution key for one file's extraction pass.
type symbolKey struct {
	kind string
	name string
	line int
}

// symbolTable resolves identifiers against a single file's symbols.
//
// byKey holds the full (kind, name, declarationLine) key, used when the
// declaration site is known. byName resolves by (kind, name) alone for callee
// and base-type references; colliding declarations overwrite and the last one
// wins, which is the accepted precision trade-off of name-only matching.
type symbolTable struct {
	byKey  map[symbolKey]model.Symbol
	byName map[symbolKey]model.Symbol
}

func buildSymbolTable(symbols []model.Symbol) *symbolTable {
	t := &symbolTable{
		byKey:  make(map[symbolKey]model.Symbol, len(symbols)),
		byName: make(map[symbolKey]model.Symbol, len(symbols)),
	}
	for _, s := range symbols {
		t.byKey[symbolKey{s.Kind, s.Name, s.StartLine}] = s
		t.byName[symbolKey{kind: s.Kind, name: s.Name}] = s
	}
	return t
}

func (t *symbolTable) atLine(kind, name string, line int) (model.Symbol, bool) {
	s, ok := t.byKey[symbolKey{kind, name, line}]
	return s, ok
}

func (t *symbolTable) byKindName(kinds []string, name string) (model.Symbol, bool) {
	for _, kind := range kinds {
		if s, ok := t.byName[symbolKey{kind: kind, name: name}]; ok {
			return s, true
		}
	}
	return model.Symbol{}, false
}

// extractRelations makes a second pass over the tree collecting inheritance
// and call edges. Identical edges collapse; unresolvable references (external
// types, unknown callees) are silently dropped.
func extractRelations(root *sitter.Node, src []byte, table *symbolTable) []model.Relation {
	var relations []model.Relation
	seen := make(map[model.Relation]bool)
	add := func(r model.Relation) {
		if !seen[r] {
			seen[r] = true
			relations = append(relations, r)
		}
	}

	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch n.Type() {
		case "class_declaration", "struct_declaration", "interface_declaration":
			inheritanceEdges(n, src, table, add)
		case "method_declaration":
			callEdges(n, src, table, add)
		}

		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, n.Child(i))
		}
	}
	return relations
}

// inheritanceEdges emits an inherits edge for every base-list identifier that
// resolves to a type declared in the same file.
func inheritanceEdges(n *sitter.Node, src []byte, table *symbolTable, add func(model.Relation)) {
	id := firstChildOfType(n, "identifier")
	if id == nil {
		return
	}
	kind := declKinds[n.Type()]
	from, ok := table.atLine(kind, id.Content(src), int(n.StartPoint().Row)+1)
	if !ok {
		return
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.Type() != "base_list" {
			continue
		}
		for _, baseID := range descendantsOfType(child, "identifier") {
			base, ok := table.byKindName(baseKinds, baseID.Content(src))
			if !ok {
				continue
			}
			add(model.Relation{
				FromSymbolID: from.ID,
				ToSymbolID:   base.ID,
				Type:         model.RelationInherits,
			})
		}
	}
}

// callEdges emits a calls edge for every invocation inside a method body whose
// callee identifier resolves by name within the same file. No type checking:
// overloads and name collisions can produce spurious or missing edges.
func callEdges(n *sitter.Node, src []byte, table *symbolTable, add func(model.Relation)) {
	id := firstChildOfType(n, "identifier")
	if id == nil {
		return
	}
	from, ok := table.atLine(model.KindMethod, id.Content(src), int(n.StartPoint().Row)+1)
	if !ok {
		return
	}

	for _, inv := range descendantsOfType(n, "invocation_expression") {
		calleeID := firstChildOfType(inv, "identifier")
		if calleeID == nil {
			continue
		}
		callee, ok := table.byKindName(calleeKinds, calleeID.Content(src))
		if !ok {
			continue
		}
		add(model.Relation{
			FromSymbolID: from.ID,
			ToSymbolID:   callee.ID,
			Type:         model.RelationCalls,
		})
	}
}

func firstChildOfType(n *sitter.Node, typeName string) *sitter.Node {
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c.Type() == typeName {
			return c
		}
	}
	return nil
}

func descendantsOfType(n *sitter.Node, typeName string) []*sitter.Node {
	var out []*sitter.Node
	stack := []*sitter.Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur.Type() == typeName && cur != n {
			out = append(out, cur)
		}
		for i := int(cur.ChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, cur.Child(i))
		}
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
