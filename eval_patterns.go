package patternlang

import (
	"fmt"
	"math"
)

// readBytes accumulates a Read call's chunks into one contiguous slice; most
// callers need the whole region at once to interpret it as a scalar.
func (e *Evaluator) readBytes(sectionID uint32, offset, length uint64) ([]byte, *EvalError) {
	sec, ok := e.Sections.Get(sectionID)
	if !ok {
		return nil, ErrMemory(EmptySpan, fmt.Sprintf("unknown section %d", sectionID))
	}
	out := make([]byte, 0, length)
	err := sec.Read(offset, length, func(chunk []byte) *EvalError {
		out = append(out, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Evaluator) writeBytes(sectionID uint32, offset uint64, data []byte) *EvalError {
	if sectionID == MainSectionID {
		return ErrMemory(EmptySpan, "the main section is read-only")
	}
	sec, ok := e.Sections.Get(sectionID)
	if !ok {
		return ErrMemory(EmptySpan, fmt.Sprintf("unknown section %d", sectionID))
	}
	pos := 0
	return sec.Write(true, offset, uint64(len(data)), func(buf []byte) (int, *EvalError) {
		n := copy(buf, data[pos:])
		pos += n
		return n, nil
	})
}

// decodeUint interprets b as an unsigned integer in the given byte order,
// widened to 64 bits (literal.go's NOTE on u128/i128 applies here too: bytes
// beyond the low 8 are folded in, which only matters for widths this host
// cannot represent precisely anyway).
func decodeUint(b []byte, endian Endian) uint64 {
	var v uint64
	if endian == EndianBig {
		for _, by := range b {
			v = v<<8 | uint64(by)
		}
	} else {
		for i := len(b) - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
	}
	return v
}

func encodeUint(v uint64, size int, endian Endian) []byte {
	b := make([]byte, size)
	if endian == EndianBig {
		for i := size - 1; i >= 0; i-- {
			b[i] = byte(v)
			v >>= 8
		}
	} else {
		for i := 0; i < size; i++ {
			b[i] = byte(v)
			v >>= 8
		}
	}
	return b
}

// effectiveEndian resolves a type ref's endian: an explicit `big`/`little`
// wins, otherwise fall back to the evaluator's runtime default (set from
// `#pragma endian`), not the compile-time DefaultEndian.
func (e *Evaluator) effectiveEndian(endian Endian, has bool) Endian {
	if has {
		return endian
	}
	return e.endian
}

// sizeOfType computes a type's byte size without materializing a pattern in
// the tree of record, by building it into InstantiationSectionID instead.
func (e *Evaluator) sizeOfType(t *TypeRefNode, sp Span) (uint64, *EvalError) {
	if t.Kind == TypeRefBuiltin {
		sz, ok := t.Builtin.SizeOf()
		if !ok {
			return 0, ErrTypeMismatch(sp, fmt.Sprintf("%s has no fixed size", t.Builtin))
		}
		return uint64(sz), nil
	}
	p, err := e.createPattern(t, "$sizeof", 0, InstantiationSectionID)
	if err != nil {
		return 0, err
	}
	return p.Base().Size, nil
}

// createPattern is the central dispatcher every placement path funnels
// through: a builtin primitive, or a named struct/union/bitfield/enum/alias.
func (e *Evaluator) createPattern(t *TypeRefNode, name string, offset uint64, sectionID uint32) (Pattern, *EvalError) {
	switch t.Kind {
	case TypeRefBuiltin:
		return e.createPrimitivePattern(t.Builtin, name, offset, sectionID, e.effectiveEndian(t.Endian, t.HasEndian), t.Sp)
	case TypeRefNamed, TypeRefImported:
		td, ok := e.Types[t.Name]
		if !ok {
			if src, imported := e.Imports[t.Name]; imported {
				return e.createImportedPattern(src, name, offset, sectionID, t.Sp)
			}
			return nil, ErrTypeMismatch(t.Sp, fmt.Sprintf("unknown type %q", t.Name))
		}
		return e.createNamedPattern(td, t, name, offset, sectionID)
	default:
		return nil, ErrInternal(t.Sp, "unknown type ref kind")
	}
}

func (e *Evaluator) createNamedPattern(td *TypeDeclNode, ref *TypeRefNode, name string, offset uint64, sectionID uint32) (Pattern, *EvalError) {
	if len(td.TemplateParams) > 0 {
		e.bindTemplateArgs(td, ref)
		defer e.unbindTemplateArgs(td)
	}
	switch body := td.Body.(type) {
	case *StructNode:
		return e.createStructPattern(td, body, name, offset, sectionID)
	case *UnionNode:
		return e.createUnionPattern(td, body, name, offset, sectionID)
	case *BitfieldNode:
		return e.createBitfieldPattern(td, body, name, offset, sectionID)
	case *EnumNode:
		return e.createEnumPattern(td, body, name, offset, sectionID)
	case *TypeRefNode:
		return e.createPattern(body, name, offset, sectionID)
	default:
		return nil, ErrInternal(td.Sp, "type declaration has no body")
	}
}

// createImportedPattern materializes a name bound by `import` by handing the
// imported source to a sub-runtime sharing this one's resolver and pragma
// handlers, started at the placement offset. Its top-level patterns compose
// into the placement: a single pattern is adopted directly, several are
// wrapped in a synthetic struct spanning the subtree's range.
func (e *Evaluator) createImportedPattern(src *Source, name string, offset uint64, sectionID uint32, sp Span) (Pattern, *EvalError) {
	if e.subRun == nil {
		return nil, ErrInternal(sp, "imported types require a runtime host")
	}
	pats, err := e.subRun(src, offset)
	if err != nil {
		if ee, ok := err.(*EvalError); ok {
			return nil, ee.PushTrace(sp)
		}
		return nil, ErrTypeMismatch(sp, fmt.Sprintf("imported source %q failed to compile", src.Name)).WithDescription(err.Error())
	}
	if len(pats) == 0 {
		return nil, ErrTypeMismatch(sp, fmt.Sprintf("imported source %q produced no patterns", src.Name))
	}
	if len(pats) == 1 {
		p := pats[0]
		p.Base().Name = name
		return p, nil
	}

	start := pats[0].Base().Offset
	for _, p := range pats {
		if p.Base().Offset < start {
			start = p.Base().Offset
		}
	}
	base := PatternBase{K: PatternStruct, Name: name, TypeName: src.Name, Offset: start, SectionID: sectionID, Sp: sp}
	shell := NewStructPattern(base, pats, nil)
	for _, p := range pats {
		p.Base().Parent = shell
	}
	shell.Size = patternsSpan(pats)
	return shell, nil
}

func (e *Evaluator) bindTemplateArgs(td *TypeDeclNode, ref *TypeRefNode) {
	for i, param := range td.TemplateParams {
		if i >= len(ref.Args) {
			break
		}
		if param.IsType {
			if tr, ok := ref.Args[i].(*TypeRefNode); ok {
				e.Template.PushType(param.Name, tr)
			}
			continue
		}
		lit, err := e.evalExpr(ref.Args[i])
		if err != nil {
			continue
		}
		e.Template.PushValue(param.Name, patternFromLiteral(lit))
	}
}

func (e *Evaluator) unbindTemplateArgs(td *TypeDeclNode) {
	values, types := 0, 0
	for _, p := range td.TemplateParams {
		if p.IsType {
			types++
		} else {
			values++
		}
	}
	e.Template.PopValues(values)
	e.Template.PopTypes(types)
}

func (e *Evaluator) createPrimitivePattern(k BuiltinKind, name string, offset uint64, sectionID uint32, endian Endian, sp Span) (Pattern, *EvalError) {
	base := PatternBase{Name: name, TypeName: k.String(), Offset: offset, SectionID: sectionID, Endian: endian, HasEndian: true, Sp: sp}

	switch k {
	case TBool:
		raw, err := e.readBytes(sectionID, offset, 1)
		if err != nil {
			return nil, err
		}
		base.K, base.Size = PatternBoolean, 1
		return NewBooleanPattern(base, raw[0] != 0), nil

	case TChar:
		raw, err := e.readBytes(sectionID, offset, 1)
		if err != nil {
			return nil, err
		}
		base.K, base.Size = PatternCharacter, 1
		return NewCharacterPattern(base, rune(raw[0]), false), nil

	case TChar16:
		raw, err := e.readBytes(sectionID, offset, 2)
		if err != nil {
			return nil, err
		}
		base.K, base.Size = PatternWideCharacter, 2
		return NewCharacterPattern(base, rune(decodeUint(raw, endian)), true), nil

	case TFloat:
		raw, err := e.readBytes(sectionID, offset, 4)
		if err != nil {
			return nil, err
		}
		bits := uint32(decodeUint(raw, endian))
		base.K, base.Size = PatternFloat, 4
		return NewFloatPattern(base, float64(math.Float32frombits(bits)), raw), nil

	case TDouble:
		raw, err := e.readBytes(sectionID, offset, 8)
		if err != nil {
			return nil, err
		}
		bits := decodeUint(raw, endian)
		base.K, base.Size = PatternFloat, 8
		return NewFloatPattern(base, math.Float64frombits(bits), raw), nil

	case TStr:
		raw, err := e.readCString(sectionID, offset)
		if err != nil {
			return nil, err
		}
		base.K, base.Size = PatternString, uint64(len(raw))
		return NewStringPattern(base, string(raw), false, raw), nil

	case TPadding:
		base.K, base.Size = PatternPadding, 1
		return NewPaddingPattern(base), nil

	case TAuto, TAny:
		return nil, ErrTypeMismatch(sp, fmt.Sprintf("%s cannot be materialized directly; it must be inferred from context", k))

	default:
		size, ok := k.SizeOf()
		if !ok {
			return nil, ErrTypeMismatch(sp, fmt.Sprintf("%s has no fixed size", k))
		}
		raw, err := e.readBytes(sectionID, offset, uint64(size))
		if err != nil {
			return nil, err
		}
		if k.IsSigned() {
			u := decodeUint(raw, endian)
			base.K, base.Size = PatternSigned, uint64(size)
			return NewSignedPattern(base, signExtend(u, size), raw), nil
		}
		base.K, base.Size = PatternUnsigned, uint64(size)
		return NewUnsignedPattern(base, decodeUint(raw, endian), raw), nil
	}
}

func signExtend(u uint64, byteWidth int) int64 {
	bits := uint(byteWidth * 8)
	if bits >= 64 {
		return int64(u)
	}
	shift := 64 - bits
	return int64(u<<shift) >> shift
}

func (e *Evaluator) readCString(sectionID uint32, offset uint64) ([]byte, *EvalError) {
	sec, ok := e.Sections.Get(sectionID)
	if !ok {
		return nil, ErrMemory(EmptySpan, fmt.Sprintf("unknown section %d", sectionID))
	}
	var out []byte
	for i := uint64(0); i < uint64(e.limits.MaxArrayLen); i++ {
		b, err := e.readOneByte(sec, offset+i)
		if err != nil {
			return out, nil // unterminated at EOF: return what we have
		}
		if b == 0 {
			return out, nil
		}
		out = append(out, b)
	}
	return nil, ErrLimit(EmptySpan, "string length", e.limits.MaxArrayLen)
}

func (e *Evaluator) readOneByte(sec Section, offset uint64) (byte, *EvalError) {
	var b byte
	err := sec.Read(offset, 1, func(chunk []byte) *EvalError {
		b = chunk[0]
		return nil
	})
	return b, err
}

// ---- struct ----

func inheritanceNames(sn *StructNode) []string {
	out := make([]string, len(sn.Inheritance))
	for i, t := range sn.Inheritance {
		out[i] = t.Name
	}
	return out
}

func (e *Evaluator) createStructPattern(td *TypeDeclNode, sn *StructNode, name string, offset uint64, sectionID uint32) (Pattern, *EvalError) {
	base := PatternBase{K: PatternStruct, Name: name, TypeName: td.QualifiedName(), Offset: offset, SectionID: sectionID, Sp: td.Sp}
	shell := NewStructPattern(base, nil, inheritanceNames(sn))

	e.Scopes.Push(shell, e.Heap)
	defer e.Scopes.Pop()

	savedCur := e.cur
	e.cur = cursor{section: sectionID, bitOffset: offset * 8}

	var inherited []Pattern
	for _, inh := range sn.Inheritance {
		p, err := e.createPattern(inh, inh.Name, e.cur.byteOffset(), sectionID)
		if err != nil {
			e.cur = savedCur
			return nil, err
		}
		inherited = append(inherited, p)
		e.cur.bitOffset += p.Base().Size * 8
	}

	fields, err := e.buildMembers(sn.Members, sectionID)
	e.cur = savedCur
	if err != nil {
		return nil, err
	}

	shell.Fields = append(inherited, fields...)
	for _, f := range shell.Fields {
		f.Base().Parent = shell
	}
	shell.Size = patternsSpan(shell.Fields)
	return shell, nil
}

// buildMembers walks a struct/bitfield's member list: `continue` inside a
// member discards the accumulated members, `break` stops layout.
func (e *Evaluator) buildMembers(members []StructMember, sectionID uint32) ([]Pattern, *EvalError) {
	var fields []Pattern
	for _, m := range members {
		sig, err := e.buildMemberStmt(m.Decl, sectionID, &fields)
		if err != nil {
			return nil, err
		}
		if sig != nil {
			if sig.kind == ControlFlowBreak {
				break
			}
			if sig.kind == ControlFlowContinue {
				fields = nil
				continue
			}
		}
	}
	return fields, nil
}

func (e *Evaluator) buildMemberStmt(n Node, sectionID uint32, fields *[]Pattern) (*controlSignal, *EvalError) {
	if err := e.checkAborted(n.Span()); err != nil {
		return nil, err
	}
	switch t := n.(type) {
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
			return e.buildMemberStmt(t.Then, sectionID, fields)
		}
		if t.Else != nil {
			return e.buildMemberStmt(t.Else, sectionID, fields)
		}
		return nil, nil

	case *MatchStatementNode:
		subj, err := e.evalExpr(t.Subject)
		if err != nil {
			return nil, err
		}
		for _, c := range t.Cases {
			if c.IsWild || len(c.Values) == 0 {
				return e.buildMemberStmt(c.Body, sectionID, fields)
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
					return e.buildMemberStmt(c.Body, sectionID, fields)
				}
			}
		}
		return nil, nil

	case *CompoundStatementNode:
		for _, s := range t.Statements {
			sig, err := e.buildMemberStmt(s, sectionID, fields)
			if err != nil {
				return nil, err
			}
			if sig != nil {
				return sig, nil
			}
		}
		return nil, nil

	case *ControlFlowStatementNode:
		return &controlSignal{kind: t.Kind}, nil

	default:
		ps, err := e.createPatternsFor(n)
		if err != nil {
			return nil, err
		}
		*fields = append(*fields, ps...)
		return nil, nil
	}
}

func patternsSpan(fields []Pattern) uint64 {
	var maxEnd uint64
	if len(fields) == 0 {
		return 0
	}
	base := fields[0].Base().Offset
	for _, f := range fields {
		end := f.Base().Offset - base + f.Base().Size
		if end > maxEnd {
			maxEnd = end
		}
	}
	return maxEnd
}

// ---- union ----

func (e *Evaluator) createUnionPattern(td *TypeDeclNode, un *UnionNode, name string, offset uint64, sectionID uint32) (Pattern, *EvalError) {
	base := PatternBase{K: PatternUnion, Name: name, TypeName: td.QualifiedName(), Offset: offset, SectionID: sectionID, Sp: td.Sp}
	shell := NewUnionPattern(base, nil)

	e.Scopes.Push(shell, e.Heap)
	defer e.Scopes.Pop()

	var fields []Pattern
	for _, m := range un.Members {
		savedCur := e.cur
		e.cur = cursor{section: sectionID, bitOffset: offset * 8}
		ps, err := e.createPatternsFor(m.Decl)
		e.cur = savedCur
		if err != nil {
			return nil, err
		}
		fields = append(fields, ps...)
	}

	shell.Fields = fields
	for _, f := range fields {
		f.Base().Parent = shell
	}
	var maxSize uint64
	for _, f := range fields {
		if f.Base().Size > maxSize {
			maxSize = f.Base().Size
		}
	}
	shell.Size = maxSize
	return shell, nil
}

// ---- enum ----

func (e *Evaluator) createEnumPattern(td *TypeDeclNode, en *EnumNode, name string, offset uint64, sectionID uint32) (Pattern, *EvalError) {
	underlying, err := e.createPattern(en.Underlying, name, offset, sectionID)
	if err != nil {
		return nil, err
	}
	val, err := underlying.Value()
	if err != nil {
		return nil, err
	}
	target, err := val.ToSigned()
	if err != nil {
		return nil, err
	}

	entryName := ""
	var prev int64 = -1
	for _, entry := range en.Entries {
		v := prev + 1
		if entry.Value != nil {
			lit, err := e.evalExpr(entry.Value)
			if err != nil {
				return nil, err
			}
			sv, err := lit.ToSigned()
			if err != nil {
				return nil, err
			}
			v = sv
		}
		prev = v
		if v == target {
			entryName = entry.Name
			break
		}
	}

	base := PatternBase{K: PatternEnum, Name: name, TypeName: td.QualifiedName(), Offset: offset,
		Size: underlying.Base().Size, SectionID: sectionID, Sp: td.Sp}
	return NewEnumPattern(base, underlying, entryName), nil
}

// ---- bitfield ----

func (e *Evaluator) createBitfieldPattern(td *TypeDeclNode, bf *BitfieldNode, name string, offset uint64, sectionID uint32) (Pattern, *EvalError) {
	order := bf.Order
	if order == BitfieldOrderDefault {
		if e.endian == EndianLittle {
			order = BitfieldOrderRightToLeft
		} else {
			order = BitfieldOrderLeftToRight
		}
	}

	base := PatternBase{K: PatternBitfield, Name: name, TypeName: td.QualifiedName(), Offset: offset, SectionID: sectionID, Sp: td.Sp}
	shell := NewBitfieldPattern(base, nil, order)

	e.Scopes.Push(shell, e.Heap)
	defer e.Scopes.Pop()

	bitCur := uint64(0)
	var fields []Pattern
	for _, m := range bf.Members {
		f, width, err := e.createBitfieldMember(m.Decl, offset, sectionID, bitCur, order)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
		bitCur += width
	}

	shell.Fields = fields
	for _, f := range fields {
		f.Base().Parent = shell
	}
	totalBits := bitCur
	if bf.FixedSize > 0 {
		totalBits = uint64(bf.FixedSize)
	}
	shell.Size = (totalBits + 7) / 8
	return shell, nil
}

func (e *Evaluator) createBitfieldMember(n Node, byteOffset uint64, sectionID uint32, bitOffset uint64, order BitfieldOrderDirection) (Pattern, uint64, *EvalError) {
	switch d := n.(type) {
	case *BitfieldFieldNode:
		f, width, err := e.createBitfieldField(d, byteOffset, sectionID, bitOffset, order)
		if err != nil {
			return nil, 0, err
		}
		if err := e.applyAttributes(f, d.Attrs); err != nil {
			return nil, 0, err
		}
		return f, width, nil
	case *BitfieldArrayVariableDeclNode:
		count := 1
		if d.Count != nil {
			lit, err := e.evalExpr(d.Count)
			if err != nil {
				return nil, 0, err
			}
			c, err := lit.ToUnsigned()
			if err != nil {
				return nil, 0, err
			}
			count = int(c)
		}
		var elems []Pattern
		var totalWidth uint64
		for i := 0; i < count; i++ {
			f, width, err := e.createBitfieldField(d.Field, byteOffset, sectionID, bitOffset+totalWidth, order)
			if err != nil {
				return nil, 0, err
			}
			if err := e.applyAttributes(f, d.Field.Attrs); err != nil {
				return nil, 0, err
			}
			elems = append(elems, f)
			totalWidth += width
		}
		base := PatternBase{K: PatternBitfieldArray, Name: d.Field.Name, Offset: byteOffset, SectionID: sectionID, Sp: d.Sp,
			BitOffset: int(bitOffset), BitSize: int(totalWidth), HasBits: true}
		return NewBitfieldArrayPattern(base, elems), totalWidth, nil
	default:
		return nil, 0, ErrInternal(n.Span(), "unexpected bitfield member node")
	}
}

func (e *Evaluator) createBitfieldField(f *BitfieldFieldNode, byteOffset uint64, sectionID uint32, bitOffset uint64, order BitfieldOrderDirection) (Pattern, uint64, *EvalError) {
	widthLit, err := e.evalExpr(f.Size)
	if err != nil {
		return nil, 0, err
	}
	width, err := widthLit.ToUnsigned()
	if err != nil {
		return nil, 0, err
	}

	raw, err := e.readBitRange(sectionID, byteOffset, bitOffset, width, order)
	if err != nil {
		return nil, 0, err
	}

	base := PatternBase{Name: f.Name, Offset: byteOffset, SectionID: sectionID, Sp: f.Sp,
		BitOffset: int(bitOffset), BitSize: int(width), HasBits: true, K: PatternBitfieldField}

	var flavor BitfieldFieldFlavor
	fp := NewBitfieldFieldPattern(base, flavor)
	switch {
	case f.EnumRef != nil:
		fp.Flavor = FieldEnum
		fp.Unsigned = raw
		td, ok := e.Types[f.EnumRef.Name]
		if ok {
			if en, ok := td.Body.(*EnumNode); ok {
				fp.EnumName = td.QualifiedName()
				var prev int64 = -1
				for _, entry := range en.Entries {
					v := prev + 1
					if entry.Value != nil {
						lit, err := e.evalExpr(entry.Value)
						if err == nil {
							if sv, err := lit.ToSigned(); err == nil {
								v = sv
							}
						}
					}
					prev = v
					if uint64(v) == raw {
						fp.EntryName = entry.Name
						break
					}
				}
			}
		}
	case width == 1 && f.Attrs != nil && hasBooleanAttr(f.Attrs):
		fp.Flavor = FieldBoolean
		fp.Bool = raw != 0
	case f.Signed:
		fp.Flavor = FieldSigned
		fp.Signed = signExtendBits(raw, width)
	default:
		fp.Flavor = FieldUnsigned
		fp.Unsigned = raw
	}
	return fp, width, nil
}

func hasBooleanAttr(attrs []*Attribute) bool {
	for _, a := range attrs {
		if a.Name == "boolean" {
			return true
		}
	}
	return false
}

func signExtendBits(v uint64, bits uint64) int64 {
	if bits == 0 || bits >= 64 {
		return int64(v)
	}
	shift := 64 - bits
	return int64(v<<shift) >> shift
}

// readBitRange reads `width` bits starting at bitOffset within the byte at
// byteOffset, filling right-to-left (LSB-first, matching little-endian byte
// order) or left-to-right per order.
func (e *Evaluator) readBitRange(sectionID uint32, byteOffset, bitOffset, width uint64, order BitfieldOrderDirection) (uint64, *EvalError) {
	startByte := byteOffset + bitOffset/8
	totalBytes := (bitOffset%8 + width + 7) / 8
	raw, err := e.readBytes(sectionID, startByte, totalBytes)
	if err != nil {
		return 0, err
	}
	whole := decodeUint(raw, EndianBig)
	shift := bitOffset % 8
	if order == BitfieldOrderRightToLeft {
		mask := uint64(1)<<width - 1
		return (whole >> shift) & mask, nil
	}
	totalBits := totalBytes * 8
	leftShift := totalBits - shift - width
	mask := uint64(1)<<width - 1
	return (whole >> leftShift) & mask, nil
}

// ---- array ----

func (e *Evaluator) createArrayPattern(decl *ArrayVariableDeclNode, offset uint64, sectionID uint32) (Pattern, *EvalError) {
	dynamic := decl.While != nil
	var elemType string
	if decl.Type.Kind == TypeRefBuiltin {
		elemType = decl.Type.Builtin.String()
	} else {
		elemType = decl.Type.Name
	}

	base := PatternBase{K: PatternArrayStatic, Name: decl.Name, Offset: offset, SectionID: sectionID, Sp: decl.Sp}
	if dynamic {
		base.K = PatternArrayDynamic
	}
	shell := NewArrayPattern(base, nil, elemType, dynamic)

	// Elements materialize against the live cursor so a `while` condition
	// referencing `$` sees each element's advance; the caller's cursor is
	// restored afterwards and re-advanced by afterPlace as usual.
	savedCur := e.cur
	savedIdx := e.currentArrayIndex
	e.cur = cursor{section: sectionID, bitOffset: offset * 8}
	defer func() {
		e.cur = savedCur
		e.currentArrayIndex = savedIdx
	}()

	var elems []Pattern
	if !dynamic {
		countLit, err := e.evalExpr(decl.Count)
		if err != nil {
			return nil, err
		}
		count, err := countLit.ToUnsigned()
		if err != nil {
			return nil, err
		}
		if count > uint64(e.limits.MaxArrayLen) {
			return nil, ErrLimit(decl.Sp, "array length", e.limits.MaxArrayLen)
		}
		for i := uint64(0); i < count; i++ {
			if err := e.checkAborted(decl.Sp); err != nil {
				return nil, err
			}
			e.currentArrayIndex = int(i)
			el, err := e.createPattern(decl.Type, fmt.Sprintf("[%d]", i), e.cur.byteOffset(), sectionID)
			if err != nil {
				return nil, err
			}
			elems = append(elems, el)
			e.cur.bitOffset += el.Base().Size * 8
		}
	} else {
		for i := 0;; i++ {
			if i >= e.limits.MaxArrayLen {
				return nil, ErrLimit(decl.Sp, "array length", e.limits.MaxArrayLen)
			}
			if err := e.checkAborted(decl.Sp); err != nil {
				return nil, err
			}
			e.currentArrayIndex = i
			cond, err := e.evalExpr(decl.While)
			if err != nil {
				return nil, err
			}
			b, err := cond.ToBoolean()
			if err != nil {
				return nil, err
			}
			if !b {
				break
			}
			el, err := e.createPattern(decl.Type, fmt.Sprintf("[%d]", i), e.cur.byteOffset(), sectionID)
			if err != nil {
				return nil, err
			}
			elems = append(elems, el)
			e.cur.bitOffset += el.Base().Size * 8
		}
	}

	shell.Elements = elems
	for _, el := range elems {
		el.Base().Parent = shell
	}
	shell.Size = e.cur.byteOffset() - offset
	return shell, nil
}

// ---- pointer ----

func (e *Evaluator) createPointerPattern(decl *PointerVariableDeclNode, offset uint64, sectionID uint32) (Pattern, *EvalError) {
	sizeVal, err := e.createPattern(decl.SizeType, decl.Name+"$size", offset, sectionID)
	if err != nil {
		return nil, err
	}
	addrLit, err := sizeVal.Value()
	if err != nil {
		return nil, err
	}
	address, err := addrLit.ToUnsigned()
	if err != nil {
		return nil, err
	}

	base := PatternBase{K: PatternPointer, Name: decl.Name, Offset: offset, Size: sizeVal.Base().Size, SectionID: sectionID, Sp: decl.Sp}

	// `pointer_base("fn")` adjusts the pointee address before it is read
	//; this must happen before materializing
	// the pointee, so it is handled here rather than in the generic
	// post-materialization attribute pass.
	if fnName, ok := pointerBaseAttr(decl.Attrs); ok {
		rebased, rerr := e.callNamedFunction(fnName, []Literal{UnsignedLiteral(address, decl.Sp)}, decl.Sp)
		if rerr != nil {
			return nil, rerr
		}
		newAddr, rerr := rebased.ToUnsigned()
		if rerr != nil {
			return nil, rerr
		}
		address = newAddr
		base.PointerBase = fnName
	}

	pointee, perr := e.createPattern(decl.PointeeType, decl.Name+"$pointee", address, sectionID)
	if perr != nil {
		// An unreadable pointee is recorded, not fatal: the pointer value itself is still valid.
		return NewPointerPattern(base, sizeVal, nil, address), nil
	}
	return NewPointerPattern(base, sizeVal, pointee, address), nil
}

// ---- declaration dispatch ----

// createPatternsFor builds the pattern(s) a declaration node introduces,
// advancing the evaluator's cursor for a sequential (unplaced) declaration,
// declaring each result under its name in the current scope, and — only at
// the global scope — appending it to the top-level result list.
func (e *Evaluator) createPatternsFor(n Node) ([]Pattern, *EvalError) {
	switch t := n.(type) {
	case *VariableDeclNode:
		if init, ok := initialValueAttr(t.Attrs); ok {
			p, err := e.placeInitializedLocal(t.Type, t.Name, init)
			if err != nil {
				return nil, err
			}
			return []Pattern{p}, nil
		}
		p, err := e.placeOne(t.Type, t.Name, t.Placement, t.Section, t.Attrs)
		if err != nil {
			return nil, err
		}
		return []Pattern{p}, nil

	case *MultiVariableDeclNode:
		var out []Pattern
		for _, name := range t.Names {
			p, err := e.placeOne(t.Type, name, nil, nil, nil)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil

	case *ArrayVariableDeclNode:
		sectionID := e.sectionForRef(t.Section)
		offset := e.placementOffset(t.Placement, sectionID)
		p, err := e.createArrayPattern(t, offset, sectionID)
		if err != nil {
			return nil, err
		}
		if err := e.applyAttributes(p, t.Attrs); err != nil {
			return nil, err
		}
		e.afterPlace(t.Placement, p)
		return []Pattern{p}, nil

	case *PointerVariableDeclNode:
		sectionID := e.sectionForRef(t.Section)
		offset := e.placementOffset(t.Placement, sectionID)
		p, err := e.createPointerPattern(t, offset, sectionID)
		if err != nil {
			return nil, err
		}
		if err := e.applyAttributes(p, t.Attrs); err != nil {
			return nil, err
		}
		e.afterPlace(t.Placement, p)
		return []Pattern{p}, nil

	case *BitfieldArrayVariableDeclNode:
		return nil, ErrInternal(t.Sp, "bitfield array declared outside a bitfield")

	default:
		return nil, ErrInternal(n.Span(), fmt.Sprintf("%T is not a declaration", n))
	}
}

func (e *Evaluator) placeOne(typ *TypeRefNode, name string, placement Node, sectionRef *SectionRef, attrs []*Attribute) (Pattern, *EvalError) {
	sectionID := e.sectionForRef(sectionRef)
	offset := e.placementOffset(placement, sectionID)
	p, err := e.createPattern(typ, name, offset, sectionID)
	if err != nil {
		return nil, err
	}
	if err := e.applyAttributes(p, attrs); err != nil {
		return nil, err
	}
	e.afterPlace(placement, p)
	if err := e.declareResult(name, p); err != nil {
		return nil, err
	}
	return p, nil
}

// declareResult binds name in the current scope and, at the global scope,
// appends p to the top-level result list, counting it against the
// `pattern_limit` pragma.
func (e *Evaluator) declareResult(name string, p Pattern) *EvalError {
	e.Scopes.Top().Declare(name, p)
	if e.Scopes.Depth() == 1 {
		if e.patternCount >= e.limits.MaxPatternCount {
			return ErrLimit(p.Span(), "pattern count", e.limits.MaxPatternCount)
		}
		e.patternCount++
		e.Patterns = append(e.Patterns, p)
	}
	return nil
}

func (e *Evaluator) placementOffset(placement Node, sectionID uint32) uint64 {
	if placement == nil {
		if sectionID == e.cur.section {
			return e.cur.byteOffset()
		}
		return 0
	}
	lit, err := e.evalExpr(placement)
	if err != nil {
		return e.cur.byteOffset()
	}
	off, err := lit.ToUnsigned()
	if err != nil {
		return e.cur.byteOffset()
	}
	return off
}

func (e *Evaluator) afterPlace(placement Node, p Pattern) {
	if placement != nil {
		return // explicit placement never moves the sequential cursor
	}
	if p.Base().NoUniqueAddress {
		return // `no_unique_address`: this field does not occupy its own space
	}
	if p.Base().SectionID == e.cur.section {
		e.cur.bitOffset = (p.Base().Offset + p.Base().Size) * 8
	}
}

// sectionForRef resolves a `in section(...)` target to a section id,
// allocating a fresh in-memory section the first time a name is seen.
func (e *Evaluator) sectionForRef(ref *SectionRef) uint32 {
	if ref == nil || ref.Name == "" {
		return e.cur.section
	}
	if id, ok := e.namedSections[ref.Name]; ok {
		return id
	}
	id := e.Sections.NewID()
	e.Sections.Register(NewInMemorySection(id, nil, 0))
	if e.namedSections == nil {
		e.namedSections = map[string]uint32{}
	}
	e.namedSections[ref.Name] = id
	return id
}

