package patternlang

import "fmt"

// applyAttributes applies a declaration's `[[...]]` attribute list to the
// pattern its body already materialized. It
// runs after the pattern exists so attributes can read the pattern's value
// (format_read) and so visibility/placement attributes land on the same
// PatternBase the tree-walker and renderer see.
func (e *Evaluator) applyAttributes(p Pattern, attrs []*Attribute) *EvalError {
	if len(attrs) == 0 {
		return nil
	}
	base := p.Base()
	for _, a := range attrs {
		switch a.Name {
		case "color":
			s, err := attrStringArg(a)
			if err != nil {
				return err
			}
			base.Color = s
		case "name":
			s, err := attrStringArg(a)
			if err != nil {
				return err
			}
			base.DisplayName = s
		case "comment":
			s, err := attrStringArg(a)
			if err != nil {
				return err
			}
			base.Comment = s
		case "format_read":
			s, err := attrStringArg(a)
			if err != nil {
				return err
			}
			base.FormatRead = s
			if ferr := e.applyFormatRead(p); ferr != nil {
				return ferr
			}
		case "format_write":
			s, err := attrStringArg(a)
			if err != nil {
				return err
			}
			base.FormatWrite = s
		case "transform":
			s, err := attrStringArg(a)
			if err != nil {
				return err
			}
			base.Transform = s
		case "pointer_base":
			// Pointer rebasing already happened in createPointerPattern,
			// before the pointee was materialized; just record the name.
			s, err := attrStringArg(a)
			if err != nil {
				return err
			}
			base.PointerBase = s
		case "hidden":
			base.Vis = VisibilityHidden
		case "tree_hidden":
			base.Vis = VisibilityTreeHidden
		case "highlight_hidden":
			base.Vis = VisibilityHighlightHidden
		case "inline":
			base.Inline = true
		case "sealed":
			base.Sealed = true
		case "no_unique_address":
			base.NoUniqueAddress = true
		case "single":
			base.Single = true
		case "export":
			base.Export = true
			v, verr := p.Value()
			if verr != nil {
				return verr
			}
			e.Out[base.Name] = v
		case "boolean", "__initial_value__":
			// boolean is consumed by createBitfieldField for the 1-bit
			// bitfield flavor; __initial_value__ is consumed by
			// createPatternsFor's local-with-init short-circuit. Neither
			// is a generic pattern attribute.
		default:
			return ErrAttribute(a.Sp, fmt.Sprintf("unknown attribute %q", a.Name))
		}
	}
	return nil
}

// applyFormatRead calls the format_read function once with the pattern's
// raw value and caches the resulting display string for ToString to
// consult.
func (e *Evaluator) applyFormatRead(p Pattern) *EvalError {
	base := p.Base()
	raw, err := p.Value()
	if err != nil {
		return err
	}
	lit, ferr := e.callNamedFunction(base.FormatRead, []Literal{raw}, base.Sp)
	if ferr != nil {
		return ferr
	}
	s, serr := lit.ToStringValue()
	if serr != nil {
		return serr
	}
	base.FormatReadText = s
	return nil
}

// readPatternValue is the read path an RValue expression takes: the raw
// value, passed through the `transform` attribute's function when one is
// set; transforms change what a read returns, so they run per-read.
func (e *Evaluator) readPatternValue(p Pattern) (Literal, *EvalError) {
	v, err := p.Value()
	if err != nil {
		return Literal{}, err
	}
	base := p.Base()
	if base.Transform == "" {
		return v, nil
	}
	return e.callNamedFunction(base.Transform, []Literal{v}, base.Sp)
}

// attrStringArg extracts an attribute's lone string-or-identifier argument:
// `name("s")` parses its argument as a string literal, while
// `pointer_base(fn_name)` parses as a bare identifier path.
func attrStringArg(a *Attribute) (string, *EvalError) {
	if len(a.Args) == 0 {
		return "", ErrAttribute(a.Sp, fmt.Sprintf("attribute %q requires an argument", a.Name))
	}
	switch n := a.Args[0].(type) {
	case *LiteralNode:
		if n.Value.Kind == LiteralString {
			return n.Value.Str, nil
		}
	case *RValueNode:
		if s, ok := identArgText(n); ok {
			return s, nil
		}
	}
	return "", ErrAttribute(a.Sp, fmt.Sprintf("attribute %q's argument must be a string or identifier", a.Name))
}

// pointerBaseAttr looks for `pointer_base("fn")` among a pointer
// declaration's attributes without going through the generic attribute
// pass, since it must run before the pointee is materialized.
func pointerBaseAttr(attrs []*Attribute) (string, bool) {
	for _, a := range attrs {
		if a.Name != "pointer_base" {
			continue
		}
		if s, err := attrStringArg(a); err == nil {
			return s, true
		}
	}
	return "", false
}

// initialValueAttr extracts the synthetic `__initial_value__` attribute's
// initializer expression, smuggled through the Attrs slot by the parser for
// a local `T name = expr;` declaration.
func initialValueAttr(attrs []*Attribute) (Node, bool) {
	for _, a := range attrs {
		if a.Name == "__initial_value__" && len(a.Args) == 1 {
			return a.Args[0], true
		}
	}
	return nil, false
}

// placeInitializedLocal evaluates a local declaration's initializer and
// binds the result under name, without reading any section bytes or moving
// the placement cursor — a local-with-init is a plain value binding, not a
// placed pattern.
func (e *Evaluator) placeInitializedLocal(typ *TypeRefNode, name string, initExpr Node) (Pattern, *EvalError) {
	lit, err := e.evalExpr(initExpr)
	if err != nil {
		return nil, err
	}
	p := patternFromLiteral(lit)
	p.Base().Name = name
	if err := e.declareResult(name, p); err != nil {
		return nil, err
	}
	return p, nil
}
