package patternlang

// parseArrayDims parses the `[count]` or `[while(cond)]` suffix of an array
// declaration, returning whichever of count/while is present.
func (p *Parser) parseArrayDims() (count, while Node, err *CompileError) {
	if _, err = p.expectSeparator("["); err != nil {
		return nil, nil, err
	}
	if p.atSeparator("]") {
		p.advance()
		return nil, nil, nil // zero-sized array is legal
	}
	if p.atKeyword("while") {
		p.advance()
		if _, err = p.expectSeparator("("); err != nil {
			return nil, nil, err
		}
		while, err = p.parseExpression()
		if err != nil {
			return nil, nil, err
		}
		if _, err = p.expectSeparator(")"); err != nil {
			return nil, nil, err
		}
	} else {
		count, err = p.parseExpression()
		if err != nil {
			return nil, nil, err
		}
	}
	if _, err = p.expectSeparator("]"); err != nil {
		return nil, nil, err
	}
	return count, while, nil
}

func (p *Parser) parseSectionRef() (*SectionRef, *CompileError) {
	if !p.atKeyword("in") {
		return nil, nil
	}
	start := p.cur().Span
	p.advance()
	name, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	return &SectionRef{Name: name.Text, Sp: start.Join(name.Span)}, nil
}

// parseStructMember parses one member of a struct/union body: a nested
// control-flow construct, or a typed declaration (plain/array/pointer).
func (p *Parser) parseStructMember() (Node, *CompileError) {
	if p.atKeyword("if") {
		return p.parseConditional()
	}
	if p.atKeyword("while") {
		return p.parseWhile()
	}
	if p.atIdentifier() && p.cur().Text == "match" {
		return p.parseMatch()
	}
	if p.atKeyword("break") || p.atKeyword("continue") || p.atKeyword("return") {
		return p.parseControlFlow()
	}
	return p.parseTypedDecl()
}

// parsePlacementOrDecl handles top-level `T name @ addr [in section];` and
// `T *name : Size @ addr;` forms, falling back to a plain
// statement (assignment, bare call, control flow) when the lookahead isn't
// a typed declaration at all, e.g. `r = main();` reassigning an `out`
// variable declared earlier in the same program.
func (p *Parser) parsePlacementOrDecl() (Node, *CompileError) {
	m := p.begin()
	if decl, err := p.parseTypedDecl(); err == nil {
		return decl, nil
	}
	p.reset(m)
	return p.parseStatement()
}

func (p *Parser) parseTypedDecl() (Node, *CompileError) {
	start := p.cur().Span
	typ, err := p.parseTypeRef()
	if err != nil {
		return nil, err
	}

	if p.atOperator("*") {
		return p.parsePointerDecl(start, typ)
	}

	name, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}

	if p.atSeparator(",") {
		names := []string{name.Text}
		for p.atSeparator(",") {
			p.advance()
			n, err := p.expectIdentifier()
			if err != nil {
				return nil, err
			}
			names = append(names, n.Text)
		}
		end := p.cur().Span
		if _, err := p.expectSeparator(";"); err != nil {
			return nil, err
		}
		return &MultiVariableDeclNode{Type: typ, Names: names, Sp: start.Join(end)}, nil
	}

	if p.atSeparator("[") {
		count, while, err := p.parseArrayDims()
		if err != nil {
			return nil, err
		}
		placement, section, err := p.parsePlacementSuffix()
		if err != nil {
			return nil, err
		}
		attrs, err := p.parseAttributes()
		if err != nil {
			return nil, err
		}
		end := p.cur().Span
		if _, err := p.expectSeparator(";"); err != nil {
			return nil, err
		}
		return &ArrayVariableDeclNode{
			Type: typ, Name: name.Text, Count: count, While: while,
			Placement: placement, Section: section, Attrs: attrs, Sp: start.Join(end),
		}, nil
	}

	placement, section, err := p.parsePlacementSuffix()
	if err != nil {
		return nil, err
	}

	// Plain local assignment with an initializer: `T name = expr;`
	var initial Node
	if p.atOperator("=") {
		p.advance()
		initial, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}

	attrs, err := p.parseAttributes()
	if err != nil {
		return nil, err
	}
	end := p.cur().Span
	if _, err := p.expectSeparator(";"); err != nil {
		return nil, err
	}
	if placement == nil && initial != nil {
		placement = nil // distinguished from a `@` placement: evaluator treats Placement==nil,Initial!=nil as local-with-init
	}
	decl := &VariableDeclNode{Type: typ, Name: name.Text, Placement: placement, Section: section, Attrs: attrs, Sp: start.Join(end)}
	if initial != nil {
		decl.Attrs = append(decl.Attrs, &Attribute{Name: "__initial_value__", Args: []Node{initial}, Sp: initial.Span()})
	}
	return decl, nil
}

func (p *Parser) parsePlacementSuffix() (Node, *SectionRef, *CompileError) {
	var placement Node
	if p.atOperator("@") {
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, nil, err
		}
		placement = expr
	}
	section, err := p.parseSectionRef()
	if err != nil {
		return nil, nil, err
	}
	return placement, section, nil
}

func (p *Parser) parsePointerDecl(start Span, pointee *TypeRefNode) (Node, *CompileError) {
	if _, err := p.expectOperator("*"); err != nil {
		return nil, err
	}
	name, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectOperator(":"); err != nil {
		return nil, err
	}
	sizeType, err := p.parseTypeRef()
	if err != nil {
		return nil, err
	}
	placement, section, err := p.parsePlacementSuffix()
	if err != nil {
		return nil, err
	}
	attrs, err := p.parseAttributes()
	if err != nil {
		return nil, err
	}
	end := p.cur().Span
	if _, err := p.expectSeparator(";"); err != nil {
		return nil, err
	}
	return &PointerVariableDeclNode{
		PointeeType: pointee, SizeType: sizeType, Name: name.Text,
		Placement: placement, Section: section, Attrs: attrs, Sp: start.Join(end),
	}, nil
}

// ---- function definitions ----

func (p *Parser) parseFunctionDefinition() (*FunctionDefinitionNode, *CompileError) {
	start := p.cur().Span
	if _, err := p.expectKeyword("fn"); err != nil {
		return nil, err
	}
	name, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectSeparator("("); err != nil {
		return nil, err
	}

	var (
		params        []FunctionParam
		defaultParams []Node
		pack          *ParameterPack
	)
	for !p.atSeparator(")") {
		if p.atIdentifier() && p.cur().Text == "auto" {
			// handled below as untyped param type keyword "auto"
		}
		if p.atValueType() && p.cur().Text == "auto" && p.peekAheadIsEllipsisParam() {
			packStart := p.cur().Span
			p.advance() // auto
			if _, err := p.expectOperator("..."); err != nil {
				return nil, err
			}
			pname, err := p.expectIdentifier()
			if err != nil {
				return nil, err
			}
			pack = &ParameterPack{Name: pname.Text, Sp: packStart.Join(pname.Span)}
			break
		}

		var ptype *TypeRefNode
		if p.atValueType() && p.cur().Text == "auto" {
			p.advance()
		} else {
			ptype, err = p.parseTypeRef()
			if err != nil {
				return nil, err
			}
		}
		pname, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		params = append(params, FunctionParam{Type: ptype, Name: pname.Text})

		if p.atOperator("=") {
			p.advance()
			def, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			defaultParams = append(defaultParams, def)
		} else if len(defaultParams) > 0 {
			return nil, ErrUnexpectedToken(pname.Span, "default value (parameters with defaults must trail)", pname.Text)
		}

		if p.atSeparator(",") {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expectSeparator(")"); err != nil {
		return nil, err
	}

	attrs, err := p.parseAttributes()
	if err != nil {
		return nil, err
	}
	dangerous := false
	for _, a := range attrs {
		if a.Name == "dangerous" {
			dangerous = true
		}
	}

	body, err := p.parseCompoundStatement()
	if err != nil {
		return nil, err
	}

	return &FunctionDefinitionNode{
		Namespace: currentNamespace(p.namespaceStack), Name: name.Text,
		Params: params, DefaultParams: defaultParams, ParameterPack: pack,
		Body: body, Dangerous: dangerous, Sp: start.Join(p.cur().Span),
	}, nil
}

// peekAheadIsEllipsisParam distinguishes `auto name` (untyped param) from
// `auto... name` (trailing parameter pack).
func (p *Parser) peekAheadIsEllipsisParam() bool {
	m := p.partBegin()
	defer p.partReset(m)
	p.advance() // auto
	return p.atOperator("...")
}

// ---- statements ----

func (p *Parser) parseCompoundStatement() (*CompoundStatementNode, *CompileError) {
	start := p.cur().Span
	if _, err := p.expectSeparator("{"); err != nil {
		return nil, err
	}
	var stmts []Node
	for !p.atSeparator("}") {
		if p.curSkipTrivia().Kind == TokenEndOfProgram {
			return nil, ErrUnexpectedToken(p.cur().Span, "'}'", "eof")
		}
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	end := p.cur().Span
	if _, err := p.expectSeparator("}"); err != nil {
		return nil, err
	}
	return &CompoundStatementNode{Statements: stmts, Sp: start.Join(end)}, nil
}

func (p *Parser) parseStatement() (Node, *CompileError) {
	switch {
	case p.atKeyword("if"):
		return p.parseConditional()
	case p.atKeyword("while"):
		return p.parseWhile()
	case p.atKeyword("for"):
		return p.parseFor()
	case p.atIdentifier() && p.cur().Text == "match":
		return p.parseMatch()
	case p.atKeyword("try"):
		return p.parseTryCatch()
	case p.atKeyword("break") || p.atKeyword("continue") || p.atKeyword("return"):
		return p.parseControlFlow()
	case p.atSeparator("{"):
		return p.parseCompoundStatement()
	default:
		return p.parseExprStatementOrDecl()
	}
}

func (p *Parser) parseConditional() (Node, *CompileError) {
	start := p.cur().Span
	p.advance() // if
	if _, err := p.expectSeparator("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectSeparator(")"); err != nil {
		return nil, err
	}
	then, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	var els Node
	if p.atKeyword("else") {
		p.advance()
		els, err = p.parseStatement()
		if err != nil {
			return nil, err
		}
	}
	return &ConditionalStatementNode{Cond: cond, Then: then, Else: els, Sp: start.Join(p.cur().Span)}, nil
}

func (p *Parser) parseWhile() (Node, *CompileError) {
	start := p.cur().Span
	p.advance() // while
	if _, err := p.expectSeparator("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectSeparator(")"); err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &WhileStatementNode{Cond: cond, Body: body, Sp: start.Join(p.cur().Span)}, nil
}

func (p *Parser) parseFor() (Node, *CompileError) {
	start := p.cur().Span
	p.advance() // for
	if _, err := p.expectSeparator("("); err != nil {
		return nil, err
	}
	init, err := p.parseExprStatementOrDecl()
	if err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectSeparator(";"); err != nil {
		return nil, err
	}
	post, err := p.parseAssignmentExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectSeparator(")"); err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &ForStatementNode{Init: init, Cond: cond, Post: post, Body: body, Sp: start.Join(p.cur().Span)}, nil
}

func (p *Parser) parseMatch() (Node, *CompileError) {
	start := p.cur().Span
	p.advance() // match
	if _, err := p.expectSeparator("("); err != nil {
		return nil, err
	}
	subject, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectSeparator(")"); err != nil {
		return nil, err
	}
	if _, err := p.expectSeparator("{"); err != nil {
		return nil, err
	}
	var cases []MatchCase
	for !p.atSeparator("}") {
		if _, err := p.expectSeparator("("); err != nil {
			return nil, err
		}
		var values []Node
		wild := false
		for {
			if p.atSeparator("_") || (p.atIdentifier() && p.cur().Text == "_") {
				p.advance()
				wild = true
			} else {
				v, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				values = append(values, v)
			}
			if p.atSeparator(",") {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expectSeparator(")"); err != nil {
			return nil, err
		}
		if _, err := p.expectOperator(":"); err != nil {
			return nil, err
		}
		body, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		cases = append(cases, MatchCase{Values: values, IsWild: wild, Body: body})
	}
	end := p.cur().Span
	if _, err := p.expectSeparator("}"); err != nil {
		return nil, err
	}
	return &MatchStatementNode{Subject: subject, Cases: cases, Sp: start.Join(end)}, nil
}

func (p *Parser) parseTryCatch() (Node, *CompileError) {
	start := p.cur().Span
	p.advance() // try
	tryBody, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	var catchBody Node
	if p.atKeyword("catch") {
		p.advance()
		catchBody, err = p.parseStatement()
		if err != nil {
			return nil, err
		}
	}
	return &TryCatchStatementNode{Try: tryBody, Catch: catchBody, Sp: start.Join(p.cur().Span)}, nil
}

func (p *Parser) parseControlFlow() (Node, *CompileError) {
	start := p.cur().Span
	kind := map[string]ControlFlowKind{"break": ControlFlowBreak, "continue": ControlFlowContinue, "return": ControlFlowReturn}[p.cur().Text]
	p.advance()
	var value Node
	if kind == ControlFlowReturn && !p.atSeparator(";") {
		var err *CompileError
		value, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	end := p.cur().Span
	if _, err := p.expectSeparator(";"); err != nil {
		return nil, err
	}
	return &ControlFlowStatementNode{Kind: kind, Value: value, Sp: start.Join(end)}, nil
}

// parseExprStatementOrDecl disambiguates a leading type (declaration) from a
// plain expression statement / assignment by attempting the declaration
// first and backtracking on failure.
func (p *Parser) parseExprStatementOrDecl() (Node, *CompileError) {
	if p.atValueType() || p.atIdentifierTypeStart() {
		m := p.begin()
		if decl, err := p.parseTypedDecl(); err == nil {
			return decl, nil
		}
		p.reset(m)
	}

	expr, err := p.parseAssignmentExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectSeparator(";"); err != nil {
		return nil, err
	}
	return expr, nil
}

// atIdentifierTypeStart heuristically detects `Identifier name` (a
// named-type declaration) by looking one token ahead.
func (p *Parser) atIdentifierTypeStart() bool {
	if !p.atIdentifier() {
		return false
	}
	m := p.partBegin()
	defer p.partReset(m)
	p.advance()
	for p.atOperator("::") {
		p.advance()
		if !p.atIdentifier() {
			return false
		}
		p.advance()
	}
	if p.atOperator("<") {
		// template application; assume it's a type and let the real parse
		// confirm or fail.
		return true
	}
	return p.atIdentifier() || p.atOperator("*")
}
