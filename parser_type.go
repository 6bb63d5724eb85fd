package patternlang

import "fmt"

// parseTypeRef parses a type reference: a builtin keyword, or a (possibly
// namespaced) identifier optionally followed by `<template args>` and/or a
// leading `be`/`le` endian modifier.
func (p *Parser) parseTypeRef() (*TypeRefNode, *CompileError) {
	start := p.cur().Span
	endian := EndianNative
	hasEndian := false
	if p.atKeyword("be") {
		p.advance()
		endian, hasEndian = EndianBig, true
	} else if p.atKeyword("le") {
		p.advance()
		endian, hasEndian = EndianLittle, true
	}

	t := p.curSkipTrivia()
	var ref *TypeRefNode
	switch {
	case t.Kind == TokenValueType:
		p.advance()
		kind, ok := LookupBuiltinKind(t.Text)
		if !ok {
			return nil, ErrUnknownType(t.Span, t.Text)
		}
		ref = NewBuiltinTypeRef(kind, t.Span)

	case t.Kind == TokenIdentifier:
		name, err := p.parseQualifiedTypeName()
		if err != nil {
			return nil, err
		}
		ref = NewNamedTypeRef(name, t.Span)

	default:
		return nil, ErrUnexpectedToken(t.Span, "type", t.String())
	}

	if p.atOperator("<") {
		args, err := p.parseTemplateArgs()
		if err != nil {
			return nil, err
		}
		ref.Args = args
	}

	ref.Endian, ref.HasEndian = endian, hasEndian
	ref.Sp = start.Join(p.cur().Span)
	return ref, nil
}

func (p *Parser) parseQualifiedTypeName() (string, *CompileError) {
	first, err := p.expectIdentifier()
	if err != nil {
		return "", err
	}
	name := first.Text
	for p.atOperator("::") {
		p.advance()
		next, err := p.expectIdentifier()
		if err != nil {
			return "", err
		}
		name = name + "::" + next.Text
	}
	return name, nil
}

func (p *Parser) parseTemplateArgs() ([]Node, *CompileError) {
	if _, err := p.expectOperator("<"); err != nil {
		return nil, err
	}
	var args []Node
	for !p.atOperator(">") {
		m := p.partBegin()
		if ref, err := p.parseTypeRef(); err == nil {
			args = append(args, ref)
		} else {
			p.partReset(m)
			expr, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, expr)
		}
		if p.atSeparator(",") {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expectOperator(">"); err != nil {
		return nil, err
	}
	return args, nil
}

// parseAttributes parses a (possibly absent) trailing `[[a, b(args),...]]`
// attribute list.
func (p *Parser) parseAttributes() ([]*Attribute, *CompileError) {
	if !p.atSeparator("[") {
		return nil, nil
	}
	m := p.partBegin()
	p.advance()
	if !p.atSeparator("[") {
		p.partReset(m)
		return nil, nil
	}
	p.advance()

	var attrs []*Attribute
	for {
		start := p.cur().Span
		name, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		if name.Text == "left_to_right" || name.Text == "right_to_left" {
			return nil, NewCompileError(KindParser, CodeInvalidAttribute, "attribute rejected",
				fmt.Sprintf("attribute %q is rejected; use bitfield_order(direction, size)", name.Text), start)
		}
		var args []Node
		if p.atSeparator("(") {
			p.advance()
			for !p.atSeparator(")") {
				arg, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if p.atSeparator(",") {
					p.advance()
					continue
				}
				break
			}
			if _, err := p.expectSeparator(")"); err != nil {
				return nil, err
			}
		}
		attrs = append(attrs, &Attribute{Name: name.Text, Args: args, Sp: start.Join(p.cur().Span)})
		if p.atSeparator(",") {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expectSeparator("]"); err != nil {
		return nil, err
	}
	if _, err := p.expectSeparator("]"); err != nil {
		return nil, err
	}
	return attrs, nil
}

func (p *Parser) parseTypeDecl() (*TypeDeclNode, *CompileError) {
	start := p.cur().Span
	kw := p.cur().Text
	p.advance()

	name, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}

	var templateParams []*TemplateParameter
	if p.atOperator("<") {
		templateParams, err = p.parseTemplateParamList()
		if err != nil {
			return nil, err
		}
	}

	var inheritance []*TypeRefNode
	if p.atOperator(":") {
		p.advance()
		for {
			ref, err := p.parseTypeRef()
			if err != nil {
				return nil, err
			}
			inheritance = append(inheritance, ref)
			if p.atSeparator(",") {
				p.advance()
				continue
			}
			break
		}
	}

	var underlying *TypeRefNode
	if kw == "enum" {
		if _, err := p.expectOperator(":"); err != nil {
			return nil, err
		}
		underlying, err = p.parseTypeRef()
		if err != nil {
			return nil, err
		}
	}

	var body Node
	switch kw {
	case "struct":
		body, err = p.parseStructBody(inheritance)
	case "union":
		body, err = p.parseUnionBody()
	case "bitfield":
		body, err = p.parseBitfieldBody()
	case "enum":
		body, err = p.parseEnumBody(underlying)
	}
	if err != nil {
		return nil, err
	}

	attrs, err := p.parseAttributes()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectSeparator(";"); err != nil {
		return nil, err
	}

	switch b := body.(type) {
	case *StructNode:
		b.Attrs = attrs
	case *UnionNode:
		b.Attrs = attrs
	case *BitfieldNode:
		b.Attrs = attrs
		order, fixedSize, ok, oerr := bitfieldOrderFromAttrs(attrs)
		if oerr != nil {
			return nil, oerr
		}
		if ok {
			b.Order = order
			b.FixedSize = fixedSize
		}
	}

	return &TypeDeclNode{
		Name:           p.qualify(name.Text),
		Namespace:      currentNamespace(p.namespaceStack),
		Body:           body,
		TemplateParams: templateParams,
		Attrs:          attrs,
		Sp:             start.Join(p.cur().Span),
	}, nil
}

func currentNamespace(stack []string) string {
	if len(stack) == 0 {
		return ""
	}
	out := stack[0]
	for _, s := range stack[1:] {
		out += "::" + s
	}
	return out
}

func (p *Parser) parseStructBody(inheritance []*TypeRefNode) (*StructNode, *CompileError) {
	start := p.cur().Span
	if _, err := p.expectSeparator("{"); err != nil {
		return nil, err
	}
	var members []StructMember
	for !p.atSeparator("}") {
		m, err := p.parseStructMember()
		if err != nil {
			return nil, err
		}
		members = append(members, StructMember{Decl: m})
	}
	end := p.cur().Span
	if _, err := p.expectSeparator("}"); err != nil {
		return nil, err
	}
	return &StructNode{Members: members, Inheritance: inheritance, Sp: start.Join(end)}, nil
}

func (p *Parser) parseUnionBody() (*UnionNode, *CompileError) {
	start := p.cur().Span
	if _, err := p.expectSeparator("{"); err != nil {
		return nil, err
	}
	var members []StructMember
	for !p.atSeparator("}") {
		m, err := p.parseStructMember()
		if err != nil {
			return nil, err
		}
		members = append(members, StructMember{Decl: m})
	}
	end := p.cur().Span
	if _, err := p.expectSeparator("}"); err != nil {
		return nil, err
	}
	return &UnionNode{Members: members, Sp: start.Join(end)}, nil
}

func (p *Parser) parseEnumBody(underlying *TypeRefNode) (*EnumNode, *CompileError) {
	start := p.cur().Span
	if _, err := p.expectSeparator("{"); err != nil {
		return nil, err
	}
	var entries []EnumEntry
	for !p.atSeparator("}") {
		name, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		var value Node
		if p.atOperator("=") {
			p.advance()
			value, err = p.parseExpression()
			if err != nil {
				return nil, err
			}
		}
		entries = append(entries, EnumEntry{Name: name.Text, Value: value, Sp: name.Span})
		if p.atSeparator(",") {
			p.advance()
			continue
		}
		break
	}
	end := p.cur().Span
	if _, err := p.expectSeparator("}"); err != nil {
		return nil, err
	}
	return &EnumNode{Underlying: underlying, Entries: entries, Sp: start.Join(end)}, nil
}

func (p *Parser) parseBitfieldBody() (*BitfieldNode, *CompileError) {
	start := p.cur().Span
	if _, err := p.expectSeparator("{"); err != nil {
		return nil, err
	}
	var members []StructMember
	for !p.atSeparator("}") {
		field, err := p.parseBitfieldField()
		if err != nil {
			return nil, err
		}
		members = append(members, StructMember{Decl: field})
	}
	end := p.cur().Span
	if _, err := p.expectSeparator("}"); err != nil {
		return nil, err
	}
	return &BitfieldNode{Members: members, Sp: start.Join(end)}, nil
}

func (p *Parser) parseBitfieldField() (Node, *CompileError) {
	start := p.cur().Span
	var enumRef *TypeRefNode
	signed := false
	if p.atKeyword("signed") {
		p.advance()
		signed = true
	} else if p.atKeyword("unsigned") {
		p.advance()
	} else if p.atIdentifier() {
		m := p.partBegin()
		ref, err := p.parseTypeRef()
		if err == nil && p.atIdentifier() {
			enumRef = ref
		} else {
			p.partReset(m)
		}
	}

	name, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectOperator(":"); err != nil {
		return nil, err
	}
	size, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	attrs, err := p.parseAttributes()
	if err != nil {
		return nil, err
	}

	field := &BitfieldFieldNode{Name: name.Text, Size: size, Signed: signed, EnumRef: enumRef, Attrs: attrs, Sp: start.Join(p.cur().Span)}

	if p.atSeparator("[") {
		count, while, err := p.parseArrayDims()
		if err != nil {
			return nil, err
		}
		decl := &BitfieldArrayVariableDeclNode{Field: field, Count: count, While: while, Sp: start.Join(p.cur().Span)}
		if _, err := p.expectSeparator(";"); err != nil {
			return nil, err
		}
		return decl, nil
	}

	if _, err := p.expectSeparator(";"); err != nil {
		return nil, err
	}
	return field, nil
}

// bitfieldOrderFromAttrs looks for the `bitfield_order(direction, size)`
// attribute, the per-type replacement for the removed `#pragma
// bitfield_order`: bit order is a per-bitfield choice, not a program-wide
// default.
func bitfieldOrderFromAttrs(attrs []*Attribute) (BitfieldOrderDirection, int, bool, *CompileError) {
	for _, a := range attrs {
		if a.Name != "bitfield_order" {
			continue
		}
		if len(a.Args) < 1 {
			return 0, 0, false, NewCompileError(KindParser, CodeInvalidAttribute, "attribute rejected",
				"bitfield_order requires a direction argument", a.Sp)
		}
		dirText, ok := identArgText(a.Args[0])
		if !ok {
			return 0, 0, false, NewCompileError(KindParser, CodeInvalidAttribute, "attribute rejected",
				"bitfield_order's direction argument must be an identifier", a.Sp)
		}
		var dir BitfieldOrderDirection
		switch dirText {
		case "left_to_right":
			dir = BitfieldOrderLeftToRight
		case "right_to_left":
			dir = BitfieldOrderRightToLeft
		default:
			return 0, 0, false, NewCompileError(KindParser, CodeInvalidAttribute, "attribute rejected",
				fmt.Sprintf("bitfield_order direction %q must be left_to_right or right_to_left", dirText), a.Sp)
		}
		size := 0
		if len(a.Args) > 1 {
			lit, ok := a.Args[1].(*LiteralNode)
			if !ok || lit.Value.Kind != LiteralUnsigned {
				return 0, 0, false, NewCompileError(KindParser, CodeInvalidAttribute, "attribute rejected",
					"bitfield_order's size argument must be an unsigned integer literal", a.Sp)
			}
			size = int(lit.Value.Unsigned)
		}
		return dir, size, true, nil
	}
	return 0, 0, false, nil
}

// identArgText extracts a bare identifier from an attribute argument: `foo`
// parses as a single-segment RValueNode, the same shape a path expression
// takes.
func identArgText(n Node) (string, bool) {
	rv, ok := n.(*RValueNode)
	if !ok || len(rv.Path) != 1 || rv.Path[0].Index != nil {
		return "", false
	}
	return rv.Path[0].Name, true
}
