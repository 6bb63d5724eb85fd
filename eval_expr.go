package patternlang

import "fmt"

// evalExpr evaluates n to a Literal: a single type switch rather than a
// method per node.
func (e *Evaluator) evalExpr(n Node) (Literal, *EvalError) {
	if err := e.checkAborted(n.Span()); err != nil {
		return Literal{}, err
	}
	switch t := n.(type) {
	case *LiteralNode:
		return t.Value, nil

	case *RValueNode:
		p, err := e.resolvePattern(t)
		if err != nil {
			return Literal{}, err
		}
		return e.readPatternValue(p)

	case *LValueAssignmentNode:
		if err := e.execLValueAssign(t); err != nil {
			return Literal{}, err
		}
		return e.evalExpr(t.Target)

	case *RValueAssignmentNode:
		v, err := e.evalExpr(t.Value)
		if err != nil {
			return Literal{}, err
		}
		e.assignLocal(t.Name, v)
		return v, nil

	case *MathematicalExpressionNode:
		return e.evalBinary(t)

	case *UnaryExpressionNode:
		return e.evalUnary(t)

	case *TernaryExpressionNode:
		c, err := e.evalExpr(t.Cond)
		if err != nil {
			return Literal{}, err
		}
		b, err := c.ToBoolean()
		if err != nil {
			return Literal{}, err
		}
		if b {
			return e.evalExpr(t.Then)
		}
		return e.evalExpr(t.Else)

	case *CastNode:
		v, err := e.evalExpr(t.Value)
		if err != nil {
			return Literal{}, err
		}
		return e.castLiteral(v, t.Target, t.Sp)

	case *TypeOperatorNode:
		return e.evalTypeOperator(t)

	case *CurrentOffsetNode:
		return UnsignedLiteral(e.cur.byteOffset(), t.Sp), nil

	case *ScopeResolutionNode:
		return e.evalScopeResolution(t)

	case *FunctionCallNode:
		return e.callFunction(t)

	default:
		return Literal{}, ErrInternal(n.Span(), fmt.Sprintf("%T is not an expression", n))
	}
}

// resolvePattern walks a dotted/indexed path against the scope stack,
// starting from the first segment (a local, an `in`/`out` variable, or the
// enclosing struct's `this`/`parent`) and indexing into struct fields or
// array elements for the rest.
func (e *Evaluator) resolvePattern(rv *RValueNode) (Pattern, *EvalError) {
	if len(rv.Path) == 0 {
		return nil, ErrInternal(rv.Sp, "empty rvalue path")
	}
	first := rv.Path[0]

	var cur Pattern
	switch first.Name {
	case "this":
		cur = e.Scopes.Top().Parent
	case "parent":
		if s, ok := e.Scopes.Get(1); ok {
			cur = s.Parent
		}
	default:
		if p, ok := e.Scopes.Resolve(first.Name); ok {
			cur = p
		} else if v, ok := e.Env[first.Name]; ok {
			cur = patternFromLiteral(v)
		} else if v, ok := e.Out[first.Name]; ok {
			cur = patternFromLiteral(v)
		} else {
			return nil, ErrVariable(rv.Sp, first.Name)
		}
	}
	if cur == nil {
		return nil, ErrVariable(rv.Sp, first.Name).WithHint("referenced before it has a value in this scope")
	}

	for _, seg := range rv.Path[1:] {
		if seg.Index != nil {
			idxLit, err := e.evalExpr(seg.Index)
			if err != nil {
				return nil, err
			}
			idx, err := idxLit.ToSigned()
			if err != nil {
				return nil, err
			}
			indexable, ok := cur.(Indexable)
			if !ok {
				return nil, ErrIndexOutOfRange(rv.Sp, int(idx), 0).WithHint("this pattern is not indexable")
			}
			next, err := indexable.Index(int(idx))
			if err != nil {
				return nil, err
			}
			cur = next
			continue
		}
		sp, ok := cur.(*StructPattern)
		if !ok {
			if u, ok := cur.(*UnionPattern); ok {
				found := false
				for _, f := range u.Fields {
					if f.Base().Name == seg.Name {
						cur = f
						found = true
						break
					}
				}
				if !found {
					return nil, ErrVariable(rv.Sp, seg.Name)
				}
				continue
			}
			return nil, ErrTypeMismatch(rv.Sp, fmt.Sprintf("%q has no field %q", cur.Base().Name, seg.Name))
		}
		field, ok := sp.Field(seg.Name)
		if !ok {
			return nil, ErrVariable(rv.Sp, seg.Name)
		}
		cur = field
	}
	return cur, nil
}

func (e *Evaluator) evalBinary(n *MathematicalExpressionNode) (Literal, *EvalError) {
	l, err := e.evalExpr(n.Left)
	if err != nil {
		return Literal{}, err
	}
	r, err := e.evalExpr(n.Right)
	if err != nil {
		return Literal{}, err
	}

	switch n.Op {
	case OpStrConcat:
		if l.Kind == LiteralString || r.Kind == LiteralString {
			ls, err := l.ToStringValue()
			if err != nil {
				return Literal{}, err
			}
			rs, err := r.ToStringValue()
			if err != nil {
				return Literal{}, err
			}
			return StringLiteral(ls+rs, n.Sp), nil
		}
		return e.arith(n.Op, l, r, n.Sp)

	case OpStrRepeat:
		if l.Kind == LiteralString {
			cnt, err := r.ToUnsigned()
			if err != nil {
				return Literal{}, err
			}
			s := ""
			for i := uint64(0); i < cnt; i++ {
				s += l.Str
			}
			return StringLiteral(s, n.Sp), nil
		}
		return e.arith(n.Op, l, r, n.Sp)

	case OpEq, OpNeq:
		eq, err := literalsEqual(l, r)
		if err != nil {
			return Literal{}, err
		}
		if n.Op == OpNeq {
			eq = !eq
		}
		return BoolLiteral(eq, n.Sp), nil

	case OpLt, OpLte, OpGt, OpGte:
		lf, err := l.ToFloat()
		if err != nil {
			return Literal{}, err
		}
		rf, err := r.ToFloat()
		if err != nil {
			return Literal{}, err
		}
		var res bool
		switch n.Op {
		case OpLt:
			res = lf < rf
		case OpLte:
			res = lf <= rf
		case OpGt:
			res = lf > rf
		case OpGte:
			res = lf >= rf
		}
		return BoolLiteral(res, n.Sp), nil

	case OpBoolAnd, OpBoolOr, OpBoolXor:
		lb, err := l.ToBoolean()
		if err != nil {
			return Literal{}, err
		}
		rb, err := r.ToBoolean()
		if err != nil {
			return Literal{}, err
		}
		var res bool
		switch n.Op {
		case OpBoolAnd:
			res = lb && rb
		case OpBoolOr:
			res = lb || rb
		case OpBoolXor:
			res = lb != rb
		}
		return BoolLiteral(res, n.Sp), nil

	default:
		return e.arith(n.Op, l, r, n.Sp)
	}
}

func (e *Evaluator) arith(op BinOp, l, r Literal, sp Span) (Literal, *EvalError) {
	if l.Kind == LiteralFloat || r.Kind == LiteralFloat {
		lf, err := l.ToFloat()
		if err != nil {
			return Literal{}, err
		}
		rf, err := r.ToFloat()
		if err != nil {
			return Literal{}, err
		}
		switch op {
		case OpAdd:
			return FloatLiteral(lf+rf, sp), nil
		case OpSub:
			return FloatLiteral(lf-rf, sp), nil
		case OpMul:
			return FloatLiteral(lf*rf, sp), nil
		case OpDiv:
			if rf == 0 {
				return Literal{}, ErrMath(sp, "division by zero")
			}
			return FloatLiteral(lf/rf, sp), nil
		default:
			return Literal{}, ErrMath(sp, fmt.Sprintf("operator %s is not defined over floats", op))
		}
	}

	if l.Kind == LiteralSigned || r.Kind == LiteralSigned {
		ls, err := l.ToSigned()
		if err != nil {
			return Literal{}, err
		}
		rs, err := r.ToSigned()
		if err != nil {
			return Literal{}, err
		}
		res, err := signedArith(op, ls, rs, sp)
		if err != nil {
			return Literal{}, err
		}
		return SignedLiteral(res, sp), nil
	}

	lu, err := l.ToUnsigned()
	if err != nil {
		return Literal{}, err
	}
	ru, err := r.ToUnsigned()
	if err != nil {
		return Literal{}, err
	}
	res, err := unsignedArith(op, lu, ru, sp)
	if err != nil {
		return Literal{}, err
	}
	return UnsignedLiteral(res, sp), nil
}

func signedArith(op BinOp, l, r int64, sp Span) (int64, *EvalError) {
	switch op {
	case OpAdd:
		return l + r, nil
	case OpSub:
		return l - r, nil
	case OpMul:
		return l * r, nil
	case OpDiv:
		if r == 0 {
			return 0, ErrMath(sp, "division by zero")
		}
		return l / r, nil
	case OpMod:
		if r == 0 {
			return 0, ErrMath(sp, "modulo by zero")
		}
		return l % r, nil
	case OpBitAnd:
		return l & r, nil
	case OpBitOr:
		return l | r, nil
	case OpBitXor:
		return l ^ r, nil
	case OpShl:
		return l << uint(r), nil
	case OpShr:
		return l >> uint(r), nil
	default:
		return 0, ErrMath(sp, fmt.Sprintf("operator %s is not defined over signed integers", op))
	}
}

func unsignedArith(op BinOp, l, r uint64, sp Span) (uint64, *EvalError) {
	switch op {
	case OpAdd:
		return l + r, nil
	case OpSub:
		return l - r, nil
	case OpMul:
		return l * r, nil
	case OpDiv:
		if r == 0 {
			return 0, ErrMath(sp, "division by zero")
		}
		return l / r, nil
	case OpMod:
		if r == 0 {
			return 0, ErrMath(sp, "modulo by zero")
		}
		return l % r, nil
	case OpBitAnd:
		return l & r, nil
	case OpBitOr:
		return l | r, nil
	case OpBitXor:
		return l ^ r, nil
	case OpShl:
		return l << r, nil
	case OpShr:
		return l >> r, nil
	default:
		return 0, ErrMath(sp, fmt.Sprintf("operator %s is not defined over unsigned integers", op))
	}
}

func (e *Evaluator) evalUnary(n *UnaryExpressionNode) (Literal, *EvalError) {
	v, err := e.evalExpr(n.Operand)
	if err != nil {
		return Literal{}, err
	}
	switch n.Op {
	case OpNot:
		b, err := v.ToBoolean()
		if err != nil {
			return Literal{}, err
		}
		return BoolLiteral(!b, n.Sp), nil
	case OpBitNot:
		u, err := v.ToUnsigned()
		if err != nil {
			return Literal{}, err
		}
		return UnsignedLiteral(^u, n.Sp), nil
	case OpNeg:
		if v.Kind == LiteralFloat {
			return FloatLiteral(-v.Float, n.Sp), nil
		}
		s, err := v.ToSigned()
		if err != nil {
			return Literal{}, err
		}
		return SignedLiteral(-s, n.Sp), nil
	default:
		return Literal{}, ErrInternal(n.Sp, "unknown unary operator")
	}
}

// castLiteral reinterprets v as target's scalar kind; casting to a
// composite type is rejected, that is only meaningful for sizeof/typenameof
// and pattern placement.
func (e *Evaluator) castLiteral(v Literal, target *TypeRefNode, sp Span) (Literal, *EvalError) {
	if target.Kind != TypeRefBuiltin {
		return Literal{}, ErrTypeMismatch(sp, "can only cast to a primitive type")
	}
	k := target.Builtin
	switch {
	case k == TBool:
		b, err := v.ToBoolean()
		return BoolLiteral(b, sp), err
	case k == TFloat || k == TDouble:
		f, err := v.ToFloat()
		return FloatLiteral(f, sp), err
	case k.IsSigned():
		s, err := v.ToSigned()
		return SignedLiteral(s, sp), err
	case k == TChar || k == TChar16:
		u, err := v.ToUnsigned()
		return CharLiteral(rune(u), sp), err
	default:
		u, err := v.ToUnsigned()
		return UnsignedLiteral(u, sp), err
	}
}

func (e *Evaluator) evalTypeOperator(n *TypeOperatorNode) (Literal, *EvalError) {
	switch n.Kind {
	case TypeOpSizeof:
		if n.Target != nil {
			sz, err := e.sizeOfType(n.Target, n.Sp)
			if err != nil {
				return Literal{}, err
			}
			return UnsignedLiteral(sz, n.Sp), nil
		}
		v, err := e.evalExpr(n.Value)
		if err != nil {
			return Literal{}, err
		}
		if v.Kind == LiteralPattern {
			return UnsignedLiteral(v.Pattern.Base().Size, n.Sp), nil
		}
		return Literal{}, ErrTypeMismatch(n.Sp, "sizeof(expr) requires a pattern-valued expression")

	case TypeOpAddressof:
		v, err := e.evalExpr(n.Value)
		if err != nil {
			return Literal{}, err
		}
		if v.Kind != LiteralPattern {
			return Literal{}, ErrTypeMismatch(n.Sp, "addressof requires a pattern-valued expression")
		}
		return UnsignedLiteral(v.Pattern.Base().Offset, n.Sp), nil

	case TypeOpTypenameof:
		if n.Target != nil {
			return StringLiteral(typeRefName(n.Target), n.Sp), nil
		}
		v, err := e.evalExpr(n.Value)
		if err != nil {
			return Literal{}, err
		}
		if v.Kind == LiteralPattern {
			return StringLiteral(v.Pattern.Base().TypeName, n.Sp), nil
		}
		return StringLiteral(v.Kind.String(), n.Sp), nil

	default:
		return Literal{}, ErrInternal(n.Sp, "unknown type operator")
	}
}

func typeRefName(t *TypeRefNode) string {
	switch t.Kind {
	case TypeRefBuiltin:
		return t.Builtin.String()
	default:
		return t.Name
	}
}

func (e *Evaluator) evalScopeResolution(n *ScopeResolutionNode) (Literal, *EvalError) {
	if len(n.Path) < 2 {
		return Literal{}, ErrInternal(n.Sp, "malformed scope resolution")
	}
	qualified := n.Path[0]
	for _, seg := range n.Path[1 : len(n.Path)-1] {
		qualified += "::" + seg
	}
	entry := n.Path[len(n.Path)-1]

	td, ok := e.Types[qualified]
	if !ok {
		return Literal{}, ErrTypeMismatch(n.Sp, fmt.Sprintf("unknown type %q", qualified))
	}
	en, ok := td.Body.(*EnumNode)
	if !ok {
		return Literal{}, ErrTypeMismatch(n.Sp, fmt.Sprintf("%q is not an enum", qualified))
	}
	var prev int64 = -1
	for _, entryNode := range en.Entries {
		val := prev + 1
		if entryNode.Value != nil {
			lit, err := e.evalExpr(entryNode.Value)
			if err != nil {
				return Literal{}, err
			}
			v, err := lit.ToSigned()
			if err != nil {
				return Literal{}, err
			}
			val = v
		}
		prev = val
		if entryNode.Name == entry {
			return SignedLiteral(val, n.Sp), nil
		}
	}
	return Literal{}, ErrVariable(n.Sp, qualified+"::"+entry)
}
