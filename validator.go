package patternlang

// DefaultRecursionDepth bounds how many named-type hops a struct/union/
// bitfield inheritance or member chain may take before the validator gives
// up and reports infinite or excessive recursion. Overridable
// via `#pragma eval_depth`.
const DefaultRecursionDepth = 32

// Validator runs the structural checks a parsed Program must pass before it
// reaches the evaluator: no two top-level declarations share a qualified
// name, no enum declares the same entry twice, named-type references don't
// recurse past a bound, and no required AST slot is nil.
type Validator struct {
	types    map[string]*TypeDeclNode
	maxDepth int
	errs     []*CompileError
}

func NewValidator(types map[string]*TypeDeclNode, maxDepth int) *Validator {
	if maxDepth <= 0 {
		maxDepth = DefaultRecursionDepth
	}
	return &Validator{types: types, maxDepth: maxDepth}
}

func (v *Validator) fail(err *CompileError) { v.errs = append(v.errs, err) }

// Validate runs every structural check and returns the accumulated errors;
// an empty slice means the program is safe to hand to the evaluator.
func (v *Validator) Validate(prog *Program) []*CompileError {
	decls := v.collectDeclarations(prog.Statements, "")
	v.checkRedefinitions(decls)
	for _, td := range v.types {
		v.checkEnumEntries(td)
	}
	for name := range v.types {
		v.checkRecursionDepth(name, nil, td0Span(v.types[name]))
	}
	v.checkNonNil(prog)
	return v.errs
}

func td0Span(td *TypeDeclNode) Span {
	if td == nil {
		return EmptySpan
	}
	return td.Sp
}

// declaration is one top-level name introduced anywhere in the program
// (including inside namespaces), used to detect cross-kind collisions that
// the parser's own types-map insertion doesn't catch (function
// redefinitions, using-aliases shadowing a type, etc).
type declaration struct {
	name string
	kind string
	span Span
}

func (v *Validator) collectDeclarations(stmts []Node, nsPrefix string) []declaration {
	var out []declaration
	for _, s := range stmts {
		switch n := s.(type) {
		case *TypeDeclNode:
			out = append(out, declaration{name: n.QualifiedName(), kind: "type", span: n.Sp})
		case *FunctionDefinitionNode:
			out = append(out, declaration{name: n.QualifiedName(), kind: "function", span: n.Sp})
		case *UsingNode:
			out = append(out, declaration{name: n.Name, kind: "using", span: n.Sp})
		case *NamespaceNode:
			out = append(out, v.collectDeclarations(n.Body, nsPrefix)...)
		}
	}
	return out
}

func (v *Validator) checkRedefinitions(decls []declaration) {
	seen := map[string]declaration{}
	for _, d := range decls {
		if prior, ok := seen[d.name]; ok {
			_ = prior
			v.fail(ErrRedefinition(d.span, d.name))
			continue
		}
		seen[d.name] = d
	}
}

func (v *Validator) checkEnumEntries(td *TypeDeclNode) {
	en, ok := td.Body.(*EnumNode)
	if !ok {
		return
	}
	seen := map[string]bool{}
	for _, e := range en.Entries {
		if seen[e.Name] {
			v.fail(ErrRedefinition(e.Sp, td.QualifiedName()+"::"+e.Name))
			continue
		}
		seen[e.Name] = true
	}
}

// checkRecursionDepth walks the named-type reference graph rooted at name
// (inheritance list plus member/field/pointee types), failing once the
// chain exceeds maxDepth or revisits a type already on the current path
// (a cycle would otherwise recurse forever).
func (v *Validator) checkRecursionDepth(name string, path []string, span Span) {
	for _, p := range path {
		if p == name {
			v.fail(ErrRecursionDepth(span, v.maxDepth))
			return
		}
	}
	if len(path) >= v.maxDepth {
		v.fail(ErrRecursionDepth(span, v.maxDepth))
		return
	}
	td, ok := v.types[name]
	if !ok {
		return
	}
	path = append(path, name)
	for _, ref := range v.namedTypeRefs(td.Body) {
		v.checkRecursionDepth(ref.Name, path, ref.Sp)
	}
}

// namedTypeRefs collects every TypeRefNode of kind TypeRefNamed directly
// reachable from a type's body (one hop; checkRecursionDepth does the walk).
func (v *Validator) namedTypeRefs(body Node) []*TypeRefNode {
	var out []*TypeRefNode
	add := func(t *TypeRefNode) {
		if t != nil && t.Kind == TypeRefNamed {
			out = append(out, t)
		}
	}
	addMember := func(m StructMember) {
		switch d := m.Decl.(type) {
		case *VariableDeclNode:
			add(d.Type)
		case *ArrayVariableDeclNode:
			add(d.Type)
		case *PointerVariableDeclNode:
			add(d.PointeeType)
		case *MultiVariableDeclNode:
			add(d.Type)
		case *BitfieldFieldNode:
			add(d.EnumRef)
		case *BitfieldArrayVariableDeclNode:
			if d.Field != nil {
				add(d.Field.EnumRef)
			}
		}
	}
	switch b := body.(type) {
	case *StructNode:
		for _, inh := range b.Inheritance {
			add(inh)
		}
		for _, m := range b.Members {
			addMember(m)
		}
	case *UnionNode:
		for _, m := range b.Members {
			addMember(m)
		}
	case *BitfieldNode:
		for _, m := range b.Members {
			addMember(m)
		}
	case *TypeRefNode:
		add(b) // using-alias: Body is the aliased TypeRefNode itself
	}
	return out
}

// checkNonNil defensively verifies the required child slots of every
// control-flow and expression node actually reached by the parser are
// populated; these should never trip given how the parser
// constructs nodes, but a nil here would otherwise panic deep in the
// evaluator instead of surfacing a diagnosable error.
func (v *Validator) checkNonNil(prog *Program) {
	for _, s := range prog.Statements {
		v.checkNode(s)
	}
}

func (v *Validator) checkNode(n Node) {
	if n == nil {
		v.fail(ErrNullNode(EmptySpan))
		return
	}
	switch t := n.(type) {
	case *NamespaceNode:
		for _, s := range t.Body {
			v.checkNode(s)
		}
	case *FunctionDefinitionNode:
		if t.Body == nil {
			v.fail(ErrNullNode(t.Sp))
			return
		}
		v.checkNode(t.Body)
	case *TypeDeclNode:
		v.checkTypeBody(t.Body, t.Sp)
	case *CompoundStatementNode:
		for _, s := range t.Statements {
			v.checkNode(s)
		}
	case *ConditionalStatementNode:
		v.requireNonNil(t.Cond, t.Sp)
		v.requireNonNil(t.Then, t.Sp)
		if t.Then != nil {
			v.checkNode(t.Then)
		}
		if t.Else != nil {
			v.checkNode(t.Else)
		}
	case *WhileStatementNode:
		v.requireNonNil(t.Cond, t.Sp)
		v.requireNonNil(t.Body, t.Sp)
		if t.Body != nil {
			v.checkNode(t.Body)
		}
	case *ForStatementNode:
		v.requireNonNil(t.Cond, t.Sp)
		v.requireNonNil(t.Body, t.Sp)
		if t.Body != nil {
			v.checkNode(t.Body)
		}
	case *MatchStatementNode:
		v.requireNonNil(t.Subject, t.Sp)
		for _, c := range t.Cases {
			if c.Body == nil {
				v.fail(ErrNullNode(t.Sp))
				continue
			}
			v.checkNode(c.Body)
		}
	case *TryCatchStatementNode:
		v.requireNonNil(t.Try, t.Sp)
		if t.Try != nil {
			v.checkNode(t.Try)
		}
		if t.Catch != nil {
			v.checkNode(t.Catch)
		}
	case *ControlFlowStatementNode:
		if t.Kind == ControlFlowReturn && t.Value != nil {
			v.checkNode(t.Value)
		}
	case *LValueAssignmentNode:
		v.requireNonNil(t.Target, t.Sp)
		v.requireNonNil(t.Value, t.Sp)
	case *MathematicalExpressionNode:
		v.requireNonNil(t.Left, t.Sp)
		v.requireNonNil(t.Right, t.Sp)
	case *UnaryExpressionNode:
		v.requireNonNil(t.Operand, t.Sp)
	case *TernaryExpressionNode:
		v.requireNonNil(t.Cond, t.Sp)
		v.requireNonNil(t.Then, t.Sp)
		v.requireNonNil(t.Else, t.Sp)
	case *CastNode:
		v.requireNonNil(t.Target, t.Sp)
		v.requireNonNil(t.Value, t.Sp)
	}
}

func (v *Validator) requireNonNil(n Node, fallback Span) {
	if n == nil {
		v.fail(ErrNullNode(fallback))
	}
}

func (v *Validator) checkTypeBody(body Node, fallback Span) {
	members := func(ms []StructMember) {
		for _, m := range ms {
			if m.Decl == nil {
				v.fail(ErrNullNode(fallback))
				continue
			}
			v.checkNode(m.Decl)
		}
	}
	switch b := body.(type) {
	case *StructNode:
		members(b.Members)
	case *UnionNode:
		members(b.Members)
	case *BitfieldNode:
		members(b.Members)
	case *EnumNode:
		// entries validated for uniqueness in checkEnumEntries
	}
}
