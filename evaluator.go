package patternlang

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Limits bounds runaway programs; all are overridable via #pragma.
type Limits struct {
	MaxArrayLen      int
	MaxLoopIters     int
	MaxPatternCount  int
	MaxCallDepth     int
}

func DefaultLimits() Limits {
	return Limits{MaxArrayLen: 1 << 20, MaxLoopIters: 1 << 24, MaxPatternCount: 1 << 20, MaxCallDepth: 512}
}

// controlSignal threads break/continue/return out of exec without panicking;
// a nil signal means "ran to completion, nothing special happened".
type controlSignal struct {
	kind  ControlFlowKind
	value Literal
}

// cursor is the evaluator's read/write position: a section id plus a
// bit-precise offset into it (whole-byte access is the common case,
// bitfields advance by less than a byte).
type cursor struct {
	section   uint32
	bitOffset uint64 // offset in bits from section start
}

func (c cursor) byteOffset() uint64 { return c.bitOffset / 8 }

// Evaluator walks a parsed Program, creating patterns and executing
// statements/expressions.
type Evaluator struct {
	Sources  *SourceRegistry
	Sections *SectionRegistry
	Scopes   *ScopeStack
	Template *TemplateStack
	Heap     *Heap
	Config   *Config

	Types   map[string]*TypeDeclNode
	Funcs   map[string]*FunctionDefinitionNode
	Imports map[string]*Source

	Env map[string]Literal // `in` variables, supplied by the host
	Out map[string]Literal // `out` variables, read back by the host

	Patterns []Pattern // top-level result list, appended to by create_patterns

	cur           cursor
	callDepth     int
	limits        Limits
	aborted       int32 // atomic
	dangerous     func(qualifiedName string) bool
	namedSections map[string]uint32

	// subRun executes an imported source in a fresh runtime sharing this
	// one's resolver and pragma handlers; set by
	// the Runtime façade, nil when the Evaluator is driven standalone.
	subRun func(src *Source, startOffset uint64) ([]Pattern, error)

	patternCount      int
	currentArrayIndex int    // index of the array element being materialized
	endian            Endian // runtime default, set from config; falls back to DefaultEndian
}

func NewEvaluator(sources *SourceRegistry, sections *SectionRegistry) *Evaluator {
	return &Evaluator{
		Sources:  sources,
		Sections: sections,
		Scopes:   NewScopeStack(),
		Template: NewTemplateStack(),
		Heap:     NewHeap(),
		Config:   NewConfig(),
		Types:    map[string]*TypeDeclNode{},
		Funcs:    map[string]*FunctionDefinitionNode{},
		Imports:  map[string]*Source{},
		Env:      map[string]Literal{},
		Out:      map[string]Literal{},
		limits:   DefaultLimits(),
		cur:      cursor{section: MainSectionID},
		endian:   DefaultEndian,
	}
}

// SetDangerousHandler installs the callback consulted before a `dangerous`
// function runs; nil denies every dangerous call.
func (e *Evaluator) SetDangerousHandler(h func(qualifiedName string) bool) { e.dangerous = h }

// Abort requests cancellation from another goroutine; IsRunning/abort are
// polled at scope pushes, loop iterations, and statement starts.
func (e *Evaluator) Abort()            { atomic.StoreInt32(&e.aborted, 1) }
func (e *Evaluator) IsAborted() bool   { return atomic.LoadInt32(&e.aborted) != 0 }
func (e *Evaluator) ResetAbort()       { atomic.StoreInt32(&e.aborted, 0) }

func (e *Evaluator) checkAborted(span Span) *EvalError {
	if e.IsAborted() {
		return ErrAborted(span)
	}
	return nil
}

// Reset discards everything a prior run accumulated so the Evaluator can be
// reused.
func (e *Evaluator) Reset() {
	e.Scopes = NewScopeStack()
	e.Template = NewTemplateStack()
	e.Heap.Reset()
	e.Patterns = nil
	e.patternCount = 0
	e.cur = cursor{section: MainSectionID}
	e.ResetAbort()
}

// Run registers every top-level type/function/using declaration, then
// executes top-level statements in order, creating patterns for every
// placed variable declaration it encounters.
func (e *Evaluator) Run(prog *Program) ([]Pattern, *EvalError) {
	e.registerDeclarations(prog.Statements, "")
	for _, s := range prog.Statements {
		if err := e.checkAborted(s.Span()); err != nil {
			return e.Patterns, err
		}
		if _, err := e.execTopLevel(s); err != nil {
			return e.Patterns, err
		}
	}
	return e.Patterns, nil
}

func (e *Evaluator) registerDeclarations(stmts []Node, nsPrefix string) {
	for _, s := range stmts {
		switch n := s.(type) {
		case *TypeDeclNode:
			e.Types[n.QualifiedName()] = n
		case *FunctionDefinitionNode:
			e.Funcs[n.QualifiedName()] = n
		case *NamespaceNode:
			e.registerDeclarations(n.Body, nsPrefix)
		}
	}
}

// execTopLevel handles the statement kinds only valid at the top level (type/
// function/using/import/namespace declarations plus variable placements);
// everything else delegates to exec.
func (e *Evaluator) execTopLevel(n Node) (*controlSignal, *EvalError) {
	switch t := n.(type) {
	case *TypeDeclNode, *FunctionDefinitionNode, *UsingNode:
		return nil, nil // already registered / resolved lazily
	case *ImportNode:
		return nil, e.execImport(t)
	case *NamespaceNode:
		for _, s := range t.Body {
			if _, err := e.execTopLevel(s); err != nil {
				return nil, err
			}
		}
		return nil, nil
	case *InOutDeclNode:
		return nil, e.execInOutDecl(t)
	default:
		return e.exec(n)
	}
}

func (e *Evaluator) execInOutDecl(n *InOutDeclNode) *EvalError {
	if n.IsOut {
		if _, ok := e.Out[n.Name]; !ok {
			e.Out[n.Name] = UnitLiteral(n.Sp)
		}
		return nil
	}
	if _, ok := e.Env[n.Name]; !ok {
		return ErrVariable(n.Sp, n.Name).WithHint(fmt.Sprintf("`in` variable %q was not supplied", n.Name))
	}
	e.Scopes.Top().Declare(n.Name, nil) // marks the name as bound; value comes from Env on lookup
	return nil
}

// execImport resolves `import "path" [as prefix]` and records the source
// under the prefix (or, unprefixed, the path's base name without extension).
// Nothing runs yet: placing the registered name as a type later instantiates
// a sub-runtime over the source at the cursor.
func (e *Evaluator) execImport(n *ImportNode) *EvalError {
	src, err := e.Sources.Resolve(n.Path)
	if err != nil {
		return ErrTypeMismatch(n.Sp, fmt.Sprintf("cannot resolve import %q", n.Path)).WithDescription(err.Error())
	}
	name := n.Prefix
	if name == "" {
		name = importName(n.Path)
	}
	e.Imports[name] = src
	return nil
}

// importName derives the type name an unprefixed import binds: the last path
// segment with its extension stripped.
func importName(path string) string {
	if i := strings.LastIndexAny(path, "/\\"); i >= 0 {
		path = path[i+1:]
	}
	if i := strings.LastIndex(path, "."); i > 0 {
		path = path[:i]
	}
	return path
}

// exec runs one statement, returning a non-nil controlSignal when a
// break/continue/return should unwind to the nearest consumer (loop or
// function call).
func (e *Evaluator) exec(n Node) (*controlSignal, *EvalError) {
	if err := e.checkAborted(n.Span()); err != nil {
		return nil, err
	}
	switch t := n.(type) {
	case *CompoundStatementNode:
		for _, s := range t.Statements {
			sig, err := e.exec(s)
			if err != nil {
				return nil, err
			}
			if sig != nil {
				return sig, nil
			}
		}
		return nil, nil

	case *ConditionalStatementNode:
		cond, err := e.evalExpr(t.Cond)
		if err != nil {
			return nil, err
		}
		b, err := cond.ToBoolean()
		if err != nil {
			return nil, err
		}
		if b {
			return e.exec(t.Then)
		}
		if t.Else != nil {
			return e.exec(t.Else)
		}
		return nil, nil

	case *WhileStatementNode:
		iters := 0
		for {
			if err := e.checkAborted(t.Sp); err != nil {
				return nil, err
			}
			cond, err := e.evalExpr(t.Cond)
			if err != nil {
				return nil, err
			}
			b, err := cond.ToBoolean()
			if err != nil {
				return nil, err
			}
			if !b {
				return nil, nil
			}
			sig, err := e.exec(t.Body)
			if err != nil {
				return nil, err
			}
			if sig != nil {
				if sig.kind == ControlFlowBreak {
					return nil, nil
				}
				if sig.kind == ControlFlowReturn {
					return sig, nil
				}
				// continue: fall through to next iteration
			}
			iters++
			if iters > e.limits.MaxLoopIters {
				return nil, ErrLimit(t.Sp, "loop iterations", e.limits.MaxLoopIters)
			}
		}

	case *ForStatementNode:
		if t.Init != nil {
			if _, err := e.exec(t.Init); err != nil {
				return nil, err
			}
		}
		iters := 0
		for {
			if err := e.checkAborted(t.Sp); err != nil {
				return nil, err
			}
			if t.Cond != nil {
				cond, err := e.evalExpr(t.Cond)
				if err != nil {
					return nil, err
				}
				b, err := cond.ToBoolean()
				if err != nil {
					return nil, err
				}
				if !b {
					return nil, nil
				}
			}
			sig, err := e.exec(t.Body)
			if err != nil {
				return nil, err
			}
			if sig != nil {
				if sig.kind == ControlFlowBreak {
					return nil, nil
				}
				if sig.kind == ControlFlowReturn {
					return sig, nil
				}
			}
			if t.Post != nil {
				if _, err := e.exec(t.Post); err != nil {
					return nil, err
				}
			}
			iters++
			if iters > e.limits.MaxLoopIters {
				return nil, ErrLimit(t.Sp, "loop iterations", e.limits.MaxLoopIters)
			}
		}

	case *MatchStatementNode:
		subj, err := e.evalExpr(t.Subject)
		if err != nil {
			return nil, err
		}
		for _, c := range t.Cases {
			if c.IsWild || len(c.Values) == 0 {
				return e.exec(c.Body)
			}
			for _, v := range c.Values {
				val, err := e.evalExpr(v)
				if err != nil {
					return nil, err
				}
				eq, err := literalsEqual(subj, val)
				if err != nil {
					return nil, err
				}
				if eq {
					return e.exec(c.Body)
				}
			}
		}
		return nil, nil

	case *TryCatchStatementNode:
		return e.execTryCatch(t)

	case *ControlFlowStatementNode:
		sig := &controlSignal{kind: t.Kind}
		if t.Kind == ControlFlowReturn && t.Value != nil {
			v, err := e.evalExpr(t.Value)
			if err != nil {
				return nil, err
			}
			sig.value = v
		}
		return sig, nil

	case *VariableDeclNode, *ArrayVariableDeclNode, *PointerVariableDeclNode,
		*MultiVariableDeclNode, *BitfieldArrayVariableDeclNode:
		_, err := e.createPatternsFor(n)
		return nil, err

	case *LValueAssignmentNode:
		return nil, e.execLValueAssign(t)
	case *RValueAssignmentNode:
		v, err := e.evalExpr(t.Value)
		if err != nil {
			return nil, err
		}
		e.assignLocal(t.Name, v)
		return nil, nil

	case *FunctionCallNode:
		_, err := e.evalExpr(t)
		return nil, err

	default:
		// Bare expression statement.
		_, err := e.evalExpr(n)
		return nil, err
	}
}

func (e *Evaluator) assignLocal(name string, v Literal) {
	for i := 0; i < e.Scopes.Depth(); i++ {
		s, _ := e.Scopes.Get(i)
		if _, ok := s.Lookup(name); ok {
			s.Declare(name, patternFromLiteral(v))
			return
		}
	}
	if _, ok := e.Out[name]; ok {
		e.Out[name] = v
		return
	}
	e.Scopes.Top().Declare(name, patternFromLiteral(v))
}

func (e *Evaluator) execLValueAssign(n *LValueAssignmentNode) *EvalError {
	// A bare `name = expr` targeting a declared `out` variable with no
	// matching local writes straight into e.Out: resolvePattern would
	// otherwise wrap the current Out value in a detached, throwaway pattern
	// that writeLiteralInto could mutate without ever being observed again
	// (`out u32 r; r = main();` must yield r=42).
	if len(n.Target.Path) == 1 && n.Target.Path[0].Index == nil {
		name := n.Target.Path[0].Name
		if _, inScope := e.Scopes.Resolve(name); !inScope {
			if _, isOut := e.Out[name]; isOut {
				val, err := e.evalExpr(n.Value)
				if err != nil {
					return err
				}
				e.Out[name] = val
				return nil
			}
		}
	}

	target, err := e.resolvePattern(n.Target)
	if err != nil {
		return err
	}
	val, err := e.evalExpr(n.Value)
	if err != nil {
		return err
	}
	return writeLiteralInto(target, val)
}

// execTryCatch snapshots cursor/scope-depth/heap-size at entry, runs the try
// body, and on error rolls every one of those back before running catch.
func (e *Evaluator) execTryCatch(t *TryCatchStatementNode) (*controlSignal, *EvalError) {
	savedCur := e.cur
	savedDepth := e.Scopes.Depth()
	savedHeap := e.Heap.Size()

	sig, err := e.exec(t.Try)
	if err == nil {
		return sig, nil
	}

	e.cur = savedCur
	for e.Scopes.Depth() > savedDepth {
		e.Scopes.Pop()
	}
	_ = savedHeap // heap slots are never freed early; kept for symmetry/documentation

	if t.Catch == nil {
		return nil, err
	}
	return e.exec(t.Catch)
}

func literalsEqual(a, b Literal) (bool, *EvalError) {
	if a.IsNumeric() && b.IsNumeric() {
		af, err := a.ToFloat()
		if err != nil {
			return false, err
		}
		bf, err := b.ToFloat()
		if err != nil {
			return false, err
		}
		return af == bf, nil
	}
	if a.Kind == LiteralString && b.Kind == LiteralString {
		return a.Str == b.Str, nil
	}
	if a.Kind == LiteralBool && b.Kind == LiteralBool {
		return a.Bool == b.Bool, nil
	}
	return false, nil
}

// patternFromLiteral wraps a plain value in a minimal Pattern so locals can
// live in a Scope uniformly whether they came from a placed read or from an
// assignment expression.
func patternFromLiteral(v Literal) Pattern {
	base := PatternBase{Sp: v.Span}
	switch v.Kind {
	case LiteralUnsigned:
		base.K = PatternUnsigned
		return NewUnsignedPattern(base, v.Unsigned, nil)
	case LiteralSigned:
		base.K = PatternSigned
		return NewSignedPattern(base, v.Signed, nil)
	case LiteralFloat:
		base.K = PatternFloat
		return NewFloatPattern(base, v.Float, nil)
	case LiteralBool:
		base.K = PatternBoolean
		return NewBooleanPattern(base, v.Bool)
	case LiteralChar:
		base.K = PatternCharacter
		return NewCharacterPattern(base, v.Char, false)
	case LiteralString:
		base.K = PatternString
		return NewStringPattern(base, v.Str, false, []byte(v.Str))
	case LiteralPattern:
		return v.Pattern
	default:
		base.K = PatternPadding
		return NewPaddingPattern(base)
	}
}

func writeLiteralInto(p Pattern, v Literal) *EvalError {
	switch t := p.(type) {
	case *UnsignedPattern:
		u, err := v.ToUnsigned()
		if err != nil {
			return err
		}
		t.Val = u
		return nil
	case *SignedPattern:
		s, err := v.ToSigned()
		if err != nil {
			return err
		}
		t.Val = s
		return nil
	case *FloatPattern:
		f, err := v.ToFloat()
		if err != nil {
			return err
		}
		t.Val = f
		return nil
	case *BooleanPattern:
		b, err := v.ToBoolean()
		if err != nil {
			return err
		}
		t.Val = b
		return nil
	default:
		return ErrTypeMismatch(v.Span, "this pattern is not assignable")
	}
}
