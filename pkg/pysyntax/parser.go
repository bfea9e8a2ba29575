package pysyntax

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/alexaandru/go-sitter-forest/python"
)

// Sentinel errors for parser operations.
var (
	// ErrSyntax is wrapped by every ParseError.
	ErrSyntax = errors.New("invalid python syntax")

	errNoRootNode = errors.New("no root node")
	errPoolType   = errors.New("unexpected parser pool type")
)

// ParseError reports the first syntax error found in a file.
type ParseError struct {
	Filename string
	Line     int
	Column   int
	Snippet  string
}

func (e *ParseError) Error() string {
	if e.Filename == "" {
		return fmt.Sprintf("line %d, column %d: %v near %q", e.Line, e.Column, ErrSyntax, e.Snippet)
	}

	return fmt.Sprintf("%s:%d:%d: %v near %q", e.Filename, e.Line, e.Column, ErrSyntax, e.Snippet)
}

// Unwrap lets errors.Is match ErrSyntax.
func (e *ParseError) Unwrap() error {
	return ErrSyntax
}

// snippetLen bounds the source excerpt quoted in a ParseError.
const snippetLen = 24

// nodeFields lists, per node kind, the tree-sitter fields the tree records on
// children. Fields not listed here are not needed by any consumer.
var nodeFields = map[string][]string{
	"aliased_import":           {"name", "alias"},
	"import_from_statement":    {"module_name"},
	"attribute":                {"object", "attribute"},
	"keyword_argument":         {"name", "value"},
	"assignment":               {"left", "right", "type"},
	"augmented_assignment":     {"left", "right"},
	"function_definition":      {"name", "parameters", "return_type", "body"},
	"class_definition":         {"name", "superclasses", "body"},
	"decorated_definition":     {"definition"},
	"lambda":                   {"parameters", "body"},
	"default_parameter":        {"name", "value"},
	"typed_parameter":          {"type"},
	"typed_default_parameter":  {"name", "type", "value"},
	"for_statement":            {"left", "right", "body"},
	"for_in_clause":            {"left", "right"},
	"named_expression":         {"name", "value"},
	"call":                     {"function", "arguments"},
	"subscript":                {"value"},
	"with_item":                {"value"},
	"as_pattern":               {"alias"},
	"except_clause":            {"alias"},
	"list_comprehension":       {"body"},
	"set_comprehension":        {"body"},
	"dictionary_comprehension": {"body"},
	"generator_expression":     {"body"},
	"type_alias_statement":     {"left", "right"},
}

// Parser turns Python source into Trees. It is safe for concurrent use; each
// call borrows a tree-sitter parser from an internal pool.
type Parser struct {
	language *sitter.Language
	pool     sync.Pool
}

// NewParser creates a Python parser backed by tree-sitter-python.
func NewParser() *Parser {
	lang := sitter.NewLanguage(python.GetLanguage())

	parser := &Parser{language: lang}
	parser.pool = sync.Pool{
		New: func() any {
			tsParser := sitter.NewParser()
			tsParser.SetLanguage(lang)

			return tsParser
		},
	}

	return parser
}

var (
	defaultParser     *Parser
	defaultParserOnce sync.Once
)

// Parse parses src with a process-wide shared Parser.
func Parse(ctx context.Context, filename string, src []byte) (*Tree, error) {
	defaultParserOnce.Do(func() {
		defaultParser = NewParser()
	})

	return defaultParser.Parse(ctx, filename, src)
}

// Parse parses src. Any ERROR or missing node yields a *ParseError.
func (p *Parser) Parse(ctx context.Context, filename string, src []byte) (*Tree, error) {
	tsParser, ok := p.pool.Get().(*sitter.Parser)
	if !ok {
		return nil, errPoolType
	}

	defer p.pool.Put(tsParser)

	tsTree, err := tsParser.ParseString(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	defer tsTree.Close()

	root := tsTree.RootNode()
	if root.IsNull() {
		return nil, errNoRootNode
	}

	tree := &Tree{
		Filename: filename,
		Source:   src,
	}

	tree.Root = convert(root, nil)

	if bad := firstBroken(tree.Root); bad != nil {
		return nil, tree.parseError(bad)
	}

	return tree, nil
}

func convert(tsNode sitter.Node, parent *Node) *Node {
	out := &Node{
		Kind:   tsNode.Type(),
		Parent: parent,
		Start:  uint32(tsNode.StartByte()), //nolint:gosec // tree-sitter byte offsets fit in uint32
		End:    uint32(tsNode.EndByte()),   //nolint:gosec // tree-sitter byte offsets fit in uint32
		Named:  tsNode.IsNamed(),
	}

	count := tsNode.ChildCount()
	if count == 0 {
		return out
	}

	out.Children = make([]*Node, 0, count)

	for idx := range count {
		out.Children = append(out.Children, convert(tsNode.Child(idx), out))
	}

	assignFields(tsNode, out)

	return out
}

// assignFields copies tree-sitter field names onto converted children. The
// bare binding only exposes ChildByFieldName, so children are matched by span
// and kind; for repeated fields only the first occurrence is labelled.
func assignFields(tsNode sitter.Node, out *Node) {
	fields, ok := nodeFields[out.Kind]
	if !ok {
		return
	}

	for _, field := range fields {
		fieldNode := tsNode.ChildByFieldName(field)
		if fieldNode.IsNull() {
			continue
		}

		start := uint32(fieldNode.StartByte()) //nolint:gosec // tree-sitter byte offsets fit in uint32
		end := uint32(fieldNode.EndByte())     //nolint:gosec // tree-sitter byte offsets fit in uint32
		kind := fieldNode.Type()

		for _, child := range out.Children {
			if child.Field == "" && child.Start == start && child.End == end && child.Kind == kind {
				child.Field = field

				break
			}
		}
	}
}

// zeroWidthAllowed are kinds that may legitimately cover no bytes.
var zeroWidthAllowed = map[string]bool{
	KindModule: true,
	KindBlock:  true,
}

// firstBroken returns the first ERROR node or missing token in source order.
func firstBroken(root *Node) *Node {
	var bad *Node

	root.Walk(func(n *Node) bool {
		if bad != nil {
			return false
		}

		if n.Kind == KindError {
			bad = n

			return false
		}

		if len(n.Children) == 0 && n.Start == n.End && !zeroWidthAllowed[n.Kind] {
			bad = n

			return false
		}

		return true
	})

	return bad
}

func (t *Tree) parseError(bad *Node) *ParseError {
	line, col := t.Position(bad.Start)

	end := min(int(bad.Start)+snippetLen, len(t.Source))
	if bad.End > bad.Start && int(bad.End) < end {
		end = int(bad.End)
	}

	return &ParseError{
		Filename: t.Filename,
		Line:     line,
		Column:   col,
		Snippet:  string(t.Source[bad.Start:end]),
	}
}
