package patternlang

import (
	"fmt"
	"strconv"
	"strings"
)

// PatternKind tags every variant a Pattern can be.
type PatternKind byte

const (
	PatternPadding PatternKind = iota
	PatternUnsigned
	PatternSigned
	PatternFloat
	PatternBoolean
	PatternCharacter
	PatternWideCharacter
	PatternString
	PatternWideString
	PatternArrayStatic
	PatternArrayDynamic
	PatternStruct
	PatternUnion
	PatternBitfield
	PatternBitfieldField
	PatternBitfieldArray
	PatternEnum
	PatternPointer
	PatternErrorPattern
)

var patternKindNames = map[PatternKind]string{
	PatternPadding: "padding", PatternUnsigned: "unsigned", PatternSigned: "signed",
	PatternFloat: "float", PatternBoolean: "boolean", PatternCharacter: "character",
	PatternWideCharacter: "wide_character", PatternString: "string", PatternWideString: "wide_string",
	PatternArrayStatic: "array_static", PatternArrayDynamic: "array_dynamic",
	PatternStruct: "struct", PatternUnion: "union", PatternBitfield: "bitfield",
	PatternBitfieldField: "bitfield_field", PatternBitfieldArray: "bitfield_array",
	PatternEnum: "enum", PatternPointer: "pointer", PatternErrorPattern: "error",
}

func (k PatternKind) String() string { return patternKindNames[k] }

// Pattern is the common interface of every node in the tree a runtime
// produces: an addressed, typed, byte-backed view over the input. Addressing
// and presentation live as plain fields/methods on the embedded PatternBase
// (no polymorphism needed there), while value access and tree-walking are
// genuinely per-variant and so are ordinary Go methods dispatched through
// this interface, plus Accept for external visitors (formatters, the
// diagnostics renderer) that want to walk the tree without a type switch of
// their own.
type Pattern interface {
	Node
	Base() *PatternBase
	Value() (Literal, *EvalError)
	RawBytes() []byte
	ToString() (string, *EvalError)
	FormatDisplayValue() (string, *EvalError)
	Accept(PatternVisitor) error
	Clone() Pattern
}

// Indexable is implemented by patterns supporting random-access indexing.
type Indexable interface {
	Len() int
	Index(i int) (Pattern, *EvalError)
}

// Iterable is implemented by patterns that enumerate children.
type Iterable interface {
	Children() []Pattern
}

func IsIndexable(p Pattern) bool { _, ok := p.(Indexable); return ok }
func IsIterable(p Pattern) bool  { _, ok := p.(Iterable); return ok }

// PatternBase holds every field common to all variants: addressing,
// typing, identity and presentation. Embedded into each
// concrete pattern struct rather than placed behind a class hierarchy.
type PatternBase struct {
	K PatternKind

	Name     string
	TypeName string

	Offset    uint64 // byte offset within SectionID
	Size      uint64 // byte size; 0 for bit-addressed fields sized only in bits
	SectionID uint32
	BitOffset int
	BitSize   int
	HasBits   bool

	Endian    Endian
	HasEndian bool

	// DisplayName holds the `name("s")` attribute override; empty means
	// FormattedName falls back to Name.
	DisplayName string

	Color       string
	Comment     string
	Vis         Visibility
	FormatRead  string
	FormatWrite string
	Transform   string
	PointerBase string

	// FormatReadText caches the string produced by calling FormatRead's
	// function once, right after attributes applied to this pattern; empty
	// means no format_read override applies.
	FormatReadText string

	Inline          bool
	Sealed          bool
	NoUniqueAddress bool
	Single          bool
	Export          bool

	// Parent is a non-owning back-reference to the enclosing struct-like
	// pattern, modeling "enclosed by" lookup, never ownership. Go's GC
	// tolerates the resulting cycle; Clone() never copies it, so clones are
	// detached subtrees.
	Parent Pattern

	Sp Span
}

func (b *PatternBase) Base() *PatternBase { return b }
func (b *PatternBase) Span() Span         { return b.Sp }
func (b *PatternBase) Kind() PatternKind  { return b.K }

// formattedRead reports the cached format_read() output, if the format_read
// attribute applied one to this pattern.
func (b *PatternBase) formattedRead() (string, bool) {
	return b.FormatReadText, b.FormatReadText != ""
}

// FormattedName returns the display name: the `name("s")` attribute
// override when set, else the variable name the evaluator assigned it.
func (b *PatternBase) FormattedName() string {
	if b.DisplayName != "" {
		return b.DisplayName
	}
	if b.Name != "" {
		return b.Name
	}
	return "<anonymous>"
}

func cloneBase(b PatternBase) PatternBase {
	b.Parent = nil
	return b
}

// ---- scalar variants ----

type PaddingPattern struct{ PatternBase }

func NewPaddingPattern(base PatternBase) *PaddingPattern {
	base.K = PatternPadding
	return &PaddingPattern{base}
}
func (p *PaddingPattern) Value() (Literal, *EvalError) { return UnitLiteral(p.Sp), nil }
func (p *PaddingPattern) RawBytes() []byte             { return make([]byte, p.Size) }
func (p *PaddingPattern) ToString() (string, *EvalError) {
	if s, ok := p.formattedRead(); ok {
		return s, nil
	}
	return fmt.Sprintf("<%d bytes padding>", p.Size), nil
}
func (p *PaddingPattern) FormatDisplayValue() (string, *EvalError) { return p.ToString() }
func (p *PaddingPattern) Accept(v PatternVisitor) error            { return v.VisitPadding(p) }
func (p *PaddingPattern) Clone() Pattern {
	c := *p
	c.PatternBase = cloneBase(p.PatternBase)
	return &c
}

type UnsignedPattern struct {
	PatternBase
	Val uint64
	Raw []byte
}

func NewUnsignedPattern(base PatternBase, val uint64, raw []byte) *UnsignedPattern {
	base.K = PatternUnsigned
	return &UnsignedPattern{PatternBase: base, Val: val, Raw: raw}
}
func (p *UnsignedPattern) Value() (Literal, *EvalError) { return UnsignedLiteral(p.Val, p.Sp), nil }
func (p *UnsignedPattern) RawBytes() []byte             { return p.Raw }
func (p *UnsignedPattern) ToString() (string, *EvalError) {
	if s, ok := p.formattedRead(); ok {
		return s, nil
	}
	return strconv.FormatUint(p.Val, 10), nil
}
func (p *UnsignedPattern) FormatDisplayValue() (string, *EvalError) { return p.ToString() }
func (p *UnsignedPattern) Accept(v PatternVisitor) error            { return v.VisitUnsigned(p) }
func (p *UnsignedPattern) Clone() Pattern {
	c := *p
	c.PatternBase = cloneBase(p.PatternBase)
	return &c
}

type SignedPattern struct {
	PatternBase
	Val int64
	Raw []byte
}

func NewSignedPattern(base PatternBase, val int64, raw []byte) *SignedPattern {
	base.K = PatternSigned
	return &SignedPattern{PatternBase: base, Val: val, Raw: raw}
}
func (p *SignedPattern) Value() (Literal, *EvalError) { return SignedLiteral(p.Val, p.Sp), nil }
func (p *SignedPattern) RawBytes() []byte             { return p.Raw }
func (p *SignedPattern) ToString() (string, *EvalError) {
	if s, ok := p.formattedRead(); ok {
		return s, nil
	}
	return strconv.FormatInt(p.Val, 10), nil
}
func (p *SignedPattern) FormatDisplayValue() (string, *EvalError) { return p.ToString() }
func (p *SignedPattern) Accept(v PatternVisitor) error            { return v.VisitSigned(p) }
func (p *SignedPattern) Clone() Pattern {
	c := *p
	c.PatternBase = cloneBase(p.PatternBase)
	return &c
}

type FloatPattern struct {
	PatternBase
	Val float64
	Raw []byte
}

func NewFloatPattern(base PatternBase, val float64, raw []byte) *FloatPattern {
	base.K = PatternFloat
	return &FloatPattern{PatternBase: base, Val: val, Raw: raw}
}
func (p *FloatPattern) Value() (Literal, *EvalError) { return FloatLiteral(p.Val, p.Sp), nil }
func (p *FloatPattern) RawBytes() []byte             { return p.Raw }
func (p *FloatPattern) ToString() (string, *EvalError) {
	if s, ok := p.formattedRead(); ok {
		return s, nil
	}
	return strconv.FormatFloat(p.Val, 'g', -1, 64), nil
}
func (p *FloatPattern) FormatDisplayValue() (string, *EvalError) { return p.ToString() }
func (p *FloatPattern) Accept(v PatternVisitor) error            { return v.VisitFloat(p) }
func (p *FloatPattern) Clone() Pattern {
	c := *p
	c.PatternBase = cloneBase(p.PatternBase)
	return &c
}

type BooleanPattern struct {
	PatternBase
	Val bool
}

func NewBooleanPattern(base PatternBase, val bool) *BooleanPattern {
	base.K = PatternBoolean
	return &BooleanPattern{PatternBase: base, Val: val}
}
func (p *BooleanPattern) Value() (Literal, *EvalError) { return BoolLiteral(p.Val, p.Sp), nil }
func (p *BooleanPattern) RawBytes() []byte {
	if p.Val {
		return []byte{1}
	}
	return []byte{0}
}
func (p *BooleanPattern) ToString() (string, *EvalError) {
	if s, ok := p.formattedRead(); ok {
		return s, nil
	}
	return strconv.FormatBool(p.Val), nil
}
func (p *BooleanPattern) FormatDisplayValue() (string, *EvalError)  { return p.ToString() }
func (p *BooleanPattern) Accept(v PatternVisitor) error             { return v.VisitBoolean(p) }
func (p *BooleanPattern) Clone() Pattern {
	c := *p
	c.PatternBase = cloneBase(p.PatternBase)
	return &c
}

type CharacterPattern struct {
	PatternBase
	Val  rune
	Wide bool
}

func NewCharacterPattern(base PatternBase, val rune, wide bool) *CharacterPattern {
	if wide {
		base.K = PatternWideCharacter
	} else {
		base.K = PatternCharacter
	}
	return &CharacterPattern{PatternBase: base, Val: val, Wide: wide}
}
func (p *CharacterPattern) Value() (Literal, *EvalError) { return CharLiteral(p.Val, p.Sp), nil }
func (p *CharacterPattern) RawBytes() []byte {
	if p.Wide {
		return []byte{byte(p.Val), byte(p.Val >> 8)}
	}
	return []byte{byte(p.Val)}
}
func (p *CharacterPattern) ToString() (string, *EvalError) {
	if s, ok := p.formattedRead(); ok {
		return s, nil
	}
	return string(p.Val), nil
}
func (p *CharacterPattern) FormatDisplayValue() (string, *EvalError) { return p.ToString() }
func (p *CharacterPattern) Accept(v PatternVisitor) error {
	if p.Wide {
		return v.VisitWideCharacter(p)
	}
	return v.VisitCharacter(p)
}
func (p *CharacterPattern) Clone() Pattern {
	c := *p
	c.PatternBase = cloneBase(p.PatternBase)
	return &c
}

type StringPattern struct {
	PatternBase
	Val  string
	Wide bool
	Raw  []byte
}

func NewStringPattern(base PatternBase, val string, wide bool, raw []byte) *StringPattern {
	if wide {
		base.K = PatternWideString
	} else {
		base.K = PatternString
	}
	return &StringPattern{PatternBase: base, Val: val, Wide: wide, Raw: raw}
}
func (p *StringPattern) Value() (Literal, *EvalError)           { return StringLiteral(p.Val, p.Sp), nil }
func (p *StringPattern) RawBytes() []byte                       { return p.Raw }
func (p *StringPattern) ToString() (string, *EvalError) {
	if s, ok := p.formattedRead(); ok {
		return s, nil
	}
	return p.Val, nil
}
func (p *StringPattern) FormatDisplayValue() (string, *EvalError) {
	if s, ok := p.formattedRead(); ok {
		return s, nil
	}
	return strconv.Quote(p.Val), nil
}
func (p *StringPattern) Accept(v PatternVisitor) error {
	if p.Wide {
		return v.VisitWideString(p)
	}
	return v.VisitString(p)
}
func (p *StringPattern) Clone() Pattern {
	c := *p
	c.PatternBase = cloneBase(p.PatternBase)
	return &c
}

// ---- containers ----

type ArrayPattern struct {
	PatternBase
	Elements     []Pattern
	ElementType  string
	Dynamic      bool // true when materialized via a `while` condition
}

func NewArrayPattern(base PatternBase, elems []Pattern, elemType string, dynamic bool) *ArrayPattern {
	if dynamic {
		base.K = PatternArrayDynamic
	} else {
		base.K = PatternArrayStatic
	}
	return &ArrayPattern{PatternBase: base, Elements: elems, ElementType: elemType, Dynamic: dynamic}
}
func (p *ArrayPattern) Len() int { return len(p.Elements) }
func (p *ArrayPattern) Index(i int) (Pattern, *EvalError) {
	if i < 0 || i >= len(p.Elements) {
		return nil, ErrIndexOutOfRange(p.Sp, i, len(p.Elements))
	}
	return p.Elements[i], nil
}
func (p *ArrayPattern) Children() []Pattern { return p.Elements }
func (p *ArrayPattern) Value() (Literal, *EvalError) {
	return UnitLiteral(p.Sp), nil // arrays have no scalar value; callers index instead
}
func (p *ArrayPattern) RawBytes() []byte {
	var b []byte
	for _, e := range p.Elements {
		b = append(b, e.RawBytes()...)
	}
	return b
}
func (p *ArrayPattern) ToString() (string, *EvalError) {
	if s, ok := p.formattedRead(); ok {
		return s, nil
	}
	parts := make([]string, len(p.Elements))
	for i, e := range p.Elements {
		s, err := e.ToString()
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return "[" + strings.Join(parts, ", ") + "]", nil
}

// FormatDisplayValue honors the `single` attribute: a one-element array so
// marked displays as its lone element instead of a bracketed list.
func (p *ArrayPattern) FormatDisplayValue() (string, *EvalError) {
	if s, ok := p.formattedRead(); ok {
		return s, nil
	}
	if p.Single && len(p.Elements) == 1 {
		return p.Elements[0].FormatDisplayValue()
	}
	return p.ToString()
}
func (p *ArrayPattern) Accept(v PatternVisitor) error {
	if p.Dynamic {
		return v.VisitArrayDynamic(p)
	}
	return v.VisitArrayStatic(p)
}
func (p *ArrayPattern) Clone() Pattern {
	c := *p
	c.PatternBase = cloneBase(p.PatternBase)
	c.Elements = make([]Pattern, len(p.Elements))
	for i, e := range p.Elements {
		c.Elements[i] = e.Clone()
	}
	return &c
}

// StructPattern accumulates member offsets in declaration order.
type StructPattern struct {
	PatternBase
	Fields      []Pattern
	Inheritance []string
}

func NewStructPattern(base PatternBase, fields []Pattern, inheritance []string) *StructPattern {
	base.K = PatternStruct
	return &StructPattern{PatternBase: base, Fields: fields, Inheritance: inheritance}
}
func (p *StructPattern) Len() int                         { return len(p.Fields) }
func (p *StructPattern) Index(i int) (Pattern, *EvalError) {
	if i < 0 || i >= len(p.Fields) {
		return nil, ErrIndexOutOfRange(p.Sp, i, len(p.Fields))
	}
	return p.Fields[i], nil
}
func (p *StructPattern) Children() []Pattern { return p.Fields }
func (p *StructPattern) Field(name string) (Pattern, bool) {
	for _, f := range p.Fields {
		if f.Base().Name == name {
			return f, true
		}
	}
	return nil, false
}
func (p *StructPattern) Value() (Literal, *EvalError) { return UnitLiteral(p.Sp), nil }
func (p *StructPattern) RawBytes() []byte {
	var b []byte
	for _, f := range p.Fields {
		b = append(b, f.RawBytes()...)
	}
	return b
}
func (p *StructPattern) ToString() (string, *EvalError) {
	if s, ok := p.formattedRead(); ok {
		return s, nil
	}
	return p.TypeName, nil
}
func (p *StructPattern) FormatDisplayValue() (string, *EvalError) { return p.ToString() }
func (p *StructPattern) Accept(v PatternVisitor) error            { return v.VisitStruct(p) }
func (p *StructPattern) Clone() Pattern {
	c := *p
	c.PatternBase = cloneBase(p.PatternBase)
	c.Fields = make([]Pattern, len(p.Fields))
	for i, f := range p.Fields {
		c.Fields[i] = f.Clone()
		c.Fields[i].Base().Parent = &c
	}
	return &c
}

// UnionPattern sizes to max(child.size).
type UnionPattern struct {
	PatternBase
	Fields []Pattern
}

func NewUnionPattern(base PatternBase, fields []Pattern) *UnionPattern {
	base.K = PatternUnion
	maxSize := uint64(0)
	for _, f := range fields {
		if s := f.Base().Size; s > maxSize {
			maxSize = s
		}
	}
	base.Size = maxSize
	return &UnionPattern{PatternBase: base, Fields: fields}
}
func (p *UnionPattern) Len() int { return len(p.Fields) }
func (p *UnionPattern) Index(i int) (Pattern, *EvalError) {
	if i < 0 || i >= len(p.Fields) {
		return nil, ErrIndexOutOfRange(p.Sp, i, len(p.Fields))
	}
	return p.Fields[i], nil
}
func (p *UnionPattern) Children() []Pattern          { return p.Fields }
func (p *UnionPattern) Value() (Literal, *EvalError) { return UnitLiteral(p.Sp), nil }
func (p *UnionPattern) RawBytes() []byte {
	if len(p.Fields) == 0 {
		return nil
	}
	longest := p.Fields[0].RawBytes()
	for _, f := range p.Fields[1:] {
		if raw := f.RawBytes(); len(raw) > len(longest) {
			longest = raw
		}
	}
	return longest
}
func (p *UnionPattern) ToString() (string, *EvalError) {
	if s, ok := p.formattedRead(); ok {
		return s, nil
	}
	return p.TypeName, nil
}
func (p *UnionPattern) FormatDisplayValue() (string, *EvalError) { return p.ToString() }
func (p *UnionPattern) Accept(v PatternVisitor) error            { return v.VisitUnion(p) }
func (p *UnionPattern) Clone() Pattern {
	c := *p
	c.PatternBase = cloneBase(p.PatternBase)
	c.Fields = make([]Pattern, len(p.Fields))
	for i, f := range p.Fields {
		c.Fields[i] = f.Clone()
		c.Fields[i].Base().Parent = &c
	}
	return &c
}

// BitfieldPattern opens a bit-addressed region.
type BitfieldPattern struct {
	PatternBase
	Fields []Pattern
	Order  BitfieldOrderDirection
}

func NewBitfieldPattern(base PatternBase, fields []Pattern, order BitfieldOrderDirection) *BitfieldPattern {
	base.K = PatternBitfield
	return &BitfieldPattern{PatternBase: base, Fields: fields, Order: order}
}
func (p *BitfieldPattern) Len() int { return len(p.Fields) }
func (p *BitfieldPattern) Index(i int) (Pattern, *EvalError) {
	if i < 0 || i >= len(p.Fields) {
		return nil, ErrIndexOutOfRange(p.Sp, i, len(p.Fields))
	}
	return p.Fields[i], nil
}
func (p *BitfieldPattern) Children() []Pattern          { return p.Fields }
func (p *BitfieldPattern) Value() (Literal, *EvalError) { return UnitLiteral(p.Sp), nil }
func (p *BitfieldPattern) RawBytes() []byte {
	var b []byte
	for _, f := range p.Fields {
		b = append(b, f.RawBytes()...)
	}
	return b
}
func (p *BitfieldPattern) ToString() (string, *EvalError) {
	if s, ok := p.formattedRead(); ok {
		return s, nil
	}
	return p.TypeName, nil
}
func (p *BitfieldPattern) FormatDisplayValue() (string, *EvalError) { return p.ToString() }
func (p *BitfieldPattern) Accept(v PatternVisitor) error            { return v.VisitBitfield(p) }
func (p *BitfieldPattern) Clone() Pattern {
	c := *p
	c.PatternBase = cloneBase(p.PatternBase)
	c.Fields = make([]Pattern, len(p.Fields))
	for i, f := range p.Fields {
		c.Fields[i] = f.Clone()
		c.Fields[i].Base().Parent = &c
	}
	return &c
}

// BitfieldFieldFlavor distinguishes the signed/boolean/enum flavors a
// bitfield field can take.
type BitfieldFieldFlavor byte

const (
	FieldUnsigned BitfieldFieldFlavor = iota
	FieldSigned
	FieldBoolean
	FieldEnum
)

type BitfieldFieldPattern struct {
	PatternBase
	Flavor   BitfieldFieldFlavor
	Unsigned uint64
	Signed   int64
	Bool     bool
	EnumName string
	EntryName string // matched enum entry name, when Flavor == FieldEnum
}

func NewBitfieldFieldPattern(base PatternBase, flavor BitfieldFieldFlavor) *BitfieldFieldPattern {
	base.K = PatternBitfieldField
	return &BitfieldFieldPattern{PatternBase: base, Flavor: flavor}
}
func (p *BitfieldFieldPattern) Value() (Literal, *EvalError) {
	switch p.Flavor {
	case FieldSigned:
		return SignedLiteral(p.Signed, p.Sp), nil
	case FieldBoolean:
		return BoolLiteral(p.Bool, p.Sp), nil
	default:
		return UnsignedLiteral(p.Unsigned, p.Sp), nil
	}
}
func (p *BitfieldFieldPattern) RawBytes() []byte { return nil } // bit-addressed; no byte-aligned raw view
func (p *BitfieldFieldPattern) ToString() (string, *EvalError) {
	if s, ok := p.formattedRead(); ok {
		return s, nil
	}
	if p.Flavor == FieldEnum && p.EntryName != "" {
		return p.EnumName + "::" + p.EntryName, nil
	}
	lit, err := p.Value()
	if err != nil {
		return "", err
	}
	return lit.ToStringValue()
}
func (p *BitfieldFieldPattern) FormatDisplayValue() (string, *EvalError) { return p.ToString() }
func (p *BitfieldFieldPattern) Accept(v PatternVisitor) error            { return v.VisitBitfieldField(p) }
func (p *BitfieldFieldPattern) Clone() Pattern {
	c := *p
	c.PatternBase = cloneBase(p.PatternBase)
	return &c
}

type BitfieldArrayPattern struct {
	PatternBase
	Elements []Pattern // *BitfieldFieldPattern elements
}

func NewBitfieldArrayPattern(base PatternBase, elems []Pattern) *BitfieldArrayPattern {
	base.K = PatternBitfieldArray
	return &BitfieldArrayPattern{PatternBase: base, Elements: elems}
}
func (p *BitfieldArrayPattern) Len() int { return len(p.Elements) }
func (p *BitfieldArrayPattern) Index(i int) (Pattern, *EvalError) {
	if i < 0 || i >= len(p.Elements) {
		return nil, ErrIndexOutOfRange(p.Sp, i, len(p.Elements))
	}
	return p.Elements[i], nil
}
func (p *BitfieldArrayPattern) Children() []Pattern          { return p.Elements }
func (p *BitfieldArrayPattern) Value() (Literal, *EvalError) { return UnitLiteral(p.Sp), nil }
func (p *BitfieldArrayPattern) RawBytes() []byte             { return nil }
func (p *BitfieldArrayPattern) ToString() (string, *EvalError) {
	if s, ok := p.formattedRead(); ok {
		return s, nil
	}
	parts := make([]string, len(p.Elements))
	for i, e := range p.Elements {
		s, err := e.ToString()
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return "[" + strings.Join(parts, ", ") + "]", nil
}
func (p *BitfieldArrayPattern) FormatDisplayValue() (string, *EvalError) { return p.ToString() }
func (p *BitfieldArrayPattern) Accept(v PatternVisitor) error            { return v.VisitBitfieldArray(p) }
func (p *BitfieldArrayPattern) Clone() Pattern {
	c := *p
	c.PatternBase = cloneBase(p.PatternBase)
	c.Elements = make([]Pattern, len(p.Elements))
	for i, e := range p.Elements {
		c.Elements[i] = e.Clone()
	}
	return &c
}

// EnumPattern wraps a primitive-sized underlying value tagged with its
// value-table lookup result.
type EnumPattern struct {
	PatternBase
	Underlying Pattern
	EntryName  string // "" when the value matches no declared entry
}

func NewEnumPattern(base PatternBase, underlying Pattern, entryName string) *EnumPattern {
	base.K = PatternEnum
	base.Size = underlying.Base().Size
	return &EnumPattern{PatternBase: base, Underlying: underlying, EntryName: entryName}
}
func (p *EnumPattern) Value() (Literal, *EvalError) { return p.Underlying.Value() }
func (p *EnumPattern) RawBytes() []byte             { return p.Underlying.RawBytes() }
func (p *EnumPattern) ToString() (string, *EvalError) {
	if s, ok := p.formattedRead(); ok {
		return s, nil
	}
	if p.EntryName != "" {
		return p.TypeName + "::" + p.EntryName, nil
	}
	u, err := p.Underlying.ToString()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s(%s)", p.TypeName, u), nil
}
func (p *EnumPattern) FormatDisplayValue() (string, *EvalError) { return p.ToString() }
func (p *EnumPattern) Accept(v PatternVisitor) error            { return v.VisitEnum(p) }
func (p *EnumPattern) Children() []Pattern                      { return []Pattern{p.Underlying} }
func (p *EnumPattern) Clone() Pattern {
	c := *p
	c.PatternBase = cloneBase(p.PatternBase)
	c.Underlying = p.Underlying.Clone()
	return &c
}

// PointerPattern stores the pointer-size pattern and the pointee subtree.
type PointerPattern struct {
	PatternBase
	PointerValue Pattern // the pointer-size integer pattern
	Pointee      Pattern
	Address      uint64
}

func NewPointerPattern(base PatternBase, pointerValue, pointee Pattern, address uint64) *PointerPattern {
	base.K = PatternPointer
	return &PointerPattern{PatternBase: base, PointerValue: pointerValue, Pointee: pointee, Address: address}
}
func (p *PointerPattern) Value() (Literal, *EvalError) { return UnsignedLiteral(p.Address, p.Sp), nil }
func (p *PointerPattern) RawBytes() []byte             { return p.PointerValue.RawBytes() }
func (p *PointerPattern) ToString() (string, *EvalError) {
	if s, ok := p.formattedRead(); ok {
		return s, nil
	}
	return fmt.Sprintf("*0x%x", p.Address), nil
}
func (p *PointerPattern) FormatDisplayValue() (string, *EvalError) { return p.ToString() }
func (p *PointerPattern) Accept(v PatternVisitor) error            { return v.VisitPointer(p) }
func (p *PointerPattern) Children() []Pattern {
	if p.Pointee == nil {
		return nil
	}
	return []Pattern{p.Pointee}
}
func (p *PointerPattern) Clone() Pattern {
	c := *p
	c.PatternBase = cloneBase(p.PatternBase)
	c.PointerValue = p.PointerValue.Clone()
	if p.Pointee != nil {
		c.Pointee = p.Pointee.Clone()
	}
	return &c
}

// ErrorPattern stands in for a subtree the evaluator could not materialize,
// letting the rest of the tree render around the failure.
type ErrorPattern struct {
	PatternBase
	Message string
}

func NewErrorPattern(base PatternBase, message string) *ErrorPattern {
	base.K = PatternErrorPattern
	return &ErrorPattern{PatternBase: base, Message: message}
}
func (p *ErrorPattern) Value() (Literal, *EvalError)               { return UnitLiteral(p.Sp), nil }
func (p *ErrorPattern) RawBytes() []byte                           { return nil }
func (p *ErrorPattern) ToString() (string, *EvalError)             { return p.Message, nil }
func (p *ErrorPattern) FormatDisplayValue() (string, *EvalError)   { return p.Message, nil }
func (p *ErrorPattern) Accept(v PatternVisitor) error              { return v.VisitErrorPattern(p) }
func (p *ErrorPattern) Clone() Pattern {
	c := *p
	c.PatternBase = cloneBase(p.PatternBase)
	return &c
}
