// Package qualify rewrites direct imports of a watched module into one
// qualified-alias import.
//
//	from typing import List, Optional as Opt    import typing as t
//	import typing                           ->
//	x: List[Opt[int]] = typing.cast(...)        x: t.List[t.Optional[int]] = t.cast(...)
//
// The scanning pass classifies the watched imports and records which
// bindings they introduce. The rewriting pass deletes the from-imports,
// turns the first bare import into the alias form, and qualifies every read
// of a recorded binding. The canonical import is requested once per file and
// only materializes when something was rewritten.
package qualify

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Sumatoshi-tech/pyqualify/pkg/codemod"
	"github.com/Sumatoshi-tech/pyqualify/pkg/pyscope"
	"github.com/Sumatoshi-tech/pyqualify/pkg/pysyntax"
)

// MatchMode selects how reads are matched to the watched imports.
type MatchMode string

// Match modes.
const (
	// MatchScope rewrites a read only when it resolves to a watched import.
	MatchScope MatchMode = "scope"
	// MatchSpelling rewrites every read spelled like a watched name.
	MatchSpelling MatchMode = "spelling"
)

// Defaults.
const (
	DefaultModule = "typing"
	DefaultAlias  = "t"
)

// Sentinel errors for option validation.
var (
	ErrInvalidModule    = errors.New("module must be a dotted python name")
	ErrInvalidAlias     = errors.New("alias must be a python identifier")
	ErrInvalidMatchMode = errors.New("match mode must be scope or spelling")
)

var (
	identRe  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	dottedRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
)

// Options configure the transform.
type Options struct {
	Module string
	Alias  string
	Match  MatchMode
}

// DefaultOptions returns `typing` qualified as `t`, matched by scope.
func DefaultOptions() Options {
	return Options{Module: DefaultModule, Alias: DefaultAlias, Match: MatchScope}
}

// Validate checks the options.
func (o Options) Validate() error {
	if !dottedRe.MatchString(o.Module) {
		return fmt.Errorf("%w: %q", ErrInvalidModule, o.Module)
	}

	if !identRe.MatchString(o.Alias) {
		return fmt.Errorf("%w: %q", ErrInvalidAlias, o.Alias)
	}

	if o.Match != MatchScope && o.Match != MatchSpelling {
		return fmt.Errorf("%w: %q", ErrInvalidMatchMode, o.Match)
	}

	return nil
}

// Transform is the qualify rewrite. Create one per file with New or Factory.
type Transform struct {
	opts  Options
	state *state
}

// New creates a Transform.
func New(opts Options) *Transform {
	return &Transform{opts: opts}
}

// Factory returns a codemod.Factory producing fresh transforms.
func Factory(opts Options) codemod.Factory {
	return func() codemod.Transform { return New(opts) }
}

// state is the classification gathered while scanning one file.
type state struct {
	// unaliased holds symbols imported under their own name, in first-seen
	// order.
	unaliased *orderedSet
	// aliases maps a local alias to the symbol it renames.
	aliases map[string]string
	// registry holds the from-import statements to delete with the reads of
	// the symbols they imported.
	registry map[*pysyntax.Node][]*pysyntax.Node
	// marker is the first bare `import M`; it is rewritten in place.
	marker *pysyntax.Node
	// tracked holds the bindings introduced by registered statements and
	// the marker.
	tracked map[*pyscope.Binding]bool
	// markerBinding is the binding of the marker, nil when unset.
	markerBinding *pyscope.Binding
	// markerRewritten is set once the marker carries the alias.
	markerRewritten bool
	// outside is set when a rewrite lies where the marker's alias is not
	// visible, so the canonical import must be injected.
	outside bool
	// annotation is the string annotation being rewritten in Finish.
	annotation *pysyntax.Node
}

func newState() *state {
	return &state{
		unaliased: newOrderedSet(),
		aliases:   make(map[string]string),
		registry:  make(map[*pysyntax.Node][]*pysyntax.Node),
		tracked:   make(map[*pyscope.Binding]bool),
	}
}

// Setup resets the per-file state and files the canonical import request.
func (tr *Transform) Setup(ctx *codemod.Context) {
	tr.state = newState()
	ctx.Injector.Request(tr.opts.Module, "", tr.opts.Alias)

	tr.checkAliasShadowed(ctx)
}

// Visit classifies watched imports.
func (tr *Transform) Visit(ctx *codemod.Context, node *pysyntax.Node) bool {
	switch node.Kind {
	case pysyntax.KindImportFromStatement:
		tr.classifyFromImport(ctx, node)

		return false
	case pysyntax.KindImportStatement:
		tr.classifyImport(ctx, node)

		return false
	}

	return true
}

// Leave rewrites import sites and references.
func (tr *Transform) Leave(ctx *codemod.Context, cur *pysyntax.Cursor) {
	node := cur.Node()

	switch node.Kind {
	case pysyntax.KindImportStatement, pysyntax.KindImportFromStatement:
		tr.rewriteImport(ctx, cur)
	case pysyntax.KindIdentifier:
		tr.rewriteIdentifier(ctx, cur)
	case pysyntax.KindAttribute:
		tr.rewriteModuleAttribute(ctx, cur)
	}
}

// Finish qualifies reads inside string annotations.
func (tr *Transform) Finish(ctx *codemod.Context) {
	for _, ann := range ctx.Scope.StringAnnotations() {
		if ann.Node.IsDeleted() {
			continue
		}

		tr.state.annotation = ann.Node

		sub := &codemod.Context{
			Filename: ctx.Filename,
			Tree:     ann.Tree,
			Scope:    ctx.Scope,
			Logger:   ctx.Logger,
		}

		pysyntax.Apply(ann.Tree, nil, func(cur *pysyntax.Cursor) bool {
			tr.Leave(sub, cur)

			return true
		})

		ctx.Stats.Add(sub.Stats)

		if ann.Modified() {
			ctx.Tree.ReplaceNode(ann.Node, pysyntax.NewString(ann.Literal()))
		}
	}

	tr.state.annotation = nil

	// A marker rewritten in place already binds the alias for every rewrite.
	if tr.state.markerRewritten && !tr.state.outside {
		ctx.Injector.Withdraw(tr.opts.Module, "", tr.opts.Alias)
	}
}

// noteRewrite records whether a rewritten node can see the alias bound by
// the marker. Reads inside string annotations are judged by the annotation.
func (tr *Transform) noteRewrite(node *pysyntax.Node) {
	st := tr.state
	if st.outside {
		return
	}

	if st.annotation != nil {
		node = st.annotation
	}

	body := tr.markerBody()
	if body == nil {
		st.outside = true

		return
	}

	for cur := node; cur != nil; cur = cur.Parent {
		if cur == body {
			return
		}
	}

	st.outside = true
}

// markerBody returns the block whose code sees the marker's binding: the
// module, or the body of the function holding it. It is nil when the marker
// is missing, conditional, or bound in a class body.
func (tr *Transform) markerBody() *pysyntax.Node {
	st := tr.state
	if st.marker == nil || st.markerBinding == nil || st.markerBinding.Scope == nil {
		return nil
	}

	scope := st.markerBinding.Scope

	var body *pysyntax.Node

	switch scope.Kind {
	case pyscope.ScopeModule:
		body = scope.Node
	case pyscope.ScopeFunction:
		if scope.Node != nil {
			body = scope.Node.ChildByField("body")
		}
	default:
		return nil
	}

	if body == nil || st.marker.Parent != body {
		return nil
	}

	return body
}

// checkAliasShadowed warns when the alias is already bound at module level
// by anything but the canonical import.
func (tr *Transform) checkAliasShadowed(ctx *codemod.Context) {
	for _, b := range ctx.Scope.Module().Bindings(tr.opts.Alias) {
		if b.Kind == pyscope.BindImport && b.Module == tr.opts.Module {
			continue
		}

		ctx.Warn(codemod.WarnAliasShadowed, codemod.SeverityAdvisory, b.Node,
			fmt.Sprintf("%s is already bound in module scope; qualified references may resolve to it", tr.opts.Alias))

		return
	}
}

// orderedSet is an insertion-ordered set of strings.
type orderedSet struct {
	items []string
	index map[string]int
}

func newOrderedSet() *orderedSet {
	return &orderedSet{index: make(map[string]int)}
}

func (s *orderedSet) Add(item string) {
	if _, ok := s.index[item]; ok {
		return
	}

	s.index[item] = len(s.items)
	s.items = append(s.items, item)
}

func (s *orderedSet) Has(item string) bool {
	_, ok := s.index[item]

	return ok
}

func (s *orderedSet) Remove(item string) {
	idx, ok := s.index[item]
	if !ok {
		return
	}

	s.items = append(s.items[:idx], s.items[idx+1:]...)
	delete(s.index, item)

	for i := idx; i < len(s.items); i++ {
		s.index[s.items[i]] = i
	}
}

func (s *orderedSet) Items() []string {
	return s.items
}

func (s *orderedSet) String() string {
	return "{" + strings.Join(s.items, ", ") + "}"
}
