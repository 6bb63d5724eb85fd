package patternlang

// TypeRefKind tags what a TypeRefNode points at.
type TypeRefKind int

const (
	TypeRefBuiltin TypeRefKind = iota
	TypeRefNamed               // a struct/union/bitfield/enum/using-alias by name
	TypeRefImported            // `ImportedType(name)`: a type pulled in via `import`
)

// TypeRefNode is how every type position in the grammar (variable
// declarations, casts, sizeof/typenameof, template arguments) refers to a
// type: either a BuiltinType, or a named type optionally instantiated with
// template arguments and an endian override.
type TypeRefNode struct {
	Kind     TypeRefKind
	Builtin  BuiltinKind
	Name     string // TypeRefNamed / TypeRefImported
	Args     []Node // template arguments (TypeRefNode or value expressions)
	Endian   Endian
	HasEndian bool
	Sp       Span
}

func (n *TypeRefNode) Span() Span { return n.Sp }

func NewBuiltinTypeRef(k BuiltinKind, sp Span) *TypeRefNode {
	return &TypeRefNode{Kind: TypeRefBuiltin, Builtin: k, Sp: sp}
}

func NewNamedTypeRef(name string, sp Span) *TypeRefNode {
	return &TypeRefNode{Kind: TypeRefNamed, Name: name, Sp: sp}
}

// ---- TypeDecl ----

// TypeDeclNode is a named type declaration: struct/union/bitfield/enum, or a
// `using` alias whose Body is another TypeRefNode wrapped as a Node.
type TypeDeclNode struct {
	Name             string
	Namespace        string // fully-qualified prefix, empty at global scope
	Body             Node   // *StructNode | *UnionNode | *BitfieldNode | *EnumNode | *TypeRefNode (using-alias)
	TemplateParams   []*TemplateParameter
	Attrs            []*Attribute
	DocInfo
	Sp Span
}

func (n *TypeDeclNode) Span() Span      { return n.Sp }
func (n *TypeDeclNode) QualifiedName() string {
	if n.Namespace == "" {
		return n.Name
	}
	return n.Namespace + "::" + n.Name
}

// ImportedTypeNode is a reference to a type defined in another (sub-runtime)
// source, resolved lazily at evaluation time.
type ImportedTypeNode struct {
	Path string
	Name string
	Sp   Span
}

func (n *ImportedTypeNode) Span() Span { return n.Sp }

// ---- Struct / Union / Bitfield / Enum bodies ----

type StructMember struct {
	Decl Node // *VariableDeclNode | *ArrayVariableDeclNode | *PointerVariableDeclNode | *ConditionalStatementNode | *MatchStatementNode | *BitfieldArrayVariableDeclNode | *MultiVariableDeclNode
}

type StructNode struct {
	Members     []StructMember
	Inheritance []*TypeRefNode
	Attrs       []*Attribute
	DocInfo
	Sp Span
}

func (n *StructNode) Span() Span { return n.Sp }

type UnionNode struct {
	Members []StructMember
	Attrs   []*Attribute
	DocInfo
	Sp Span
}

func (n *UnionNode) Span() Span { return n.Sp }

// BitfieldOrderDirection mirrors the `bitfield_order(direction, size)`
// attribute.
type BitfieldOrderDirection int

const (
	BitfieldOrderDefault BitfieldOrderDirection = iota
	BitfieldOrderLeftToRight
	BitfieldOrderRightToLeft
)

type BitfieldNode struct {
	Members   []StructMember // *BitfieldFieldNode | *BitfieldArrayVariableDeclNode
	Attrs     []*Attribute
	Order     BitfieldOrderDirection
	FixedSize int // 0 when unset
	DocInfo
	Sp Span
}

func (n *BitfieldNode) Span() Span { return n.Sp }

type EnumEntry struct {
	Name  string
	Value Node // nil => auto-increment from previous entry (starting at 0)
	Sp    Span
}

type EnumNode struct {
	Underlying *TypeRefNode
	Entries    []EnumEntry
	DocInfo
	Sp Span
}

func (n *EnumNode) Span() Span { return n.Sp }

// ---- Variable placements ----

type SectionRef struct {
	Name string // empty => MainSection (default placement target)
	Sp   Span
}

type VariableDeclNode struct {
	Type       *TypeRefNode
	Name       string
	Placement  Node // nil => a plain local variable; otherwise the `@ addr` expression
	Section    *SectionRef
	Attrs      []*Attribute
	DocInfo
	Sp Span
}

func (n *VariableDeclNode) Span() Span { return n.Sp }

// MultiVariableDeclNode covers `T a, b, c;` sharing one type and placement
// rule applied independently per name.
type MultiVariableDeclNode struct {
	Type  *TypeRefNode
	Names []string
	Sp    Span
}

func (n *MultiVariableDeclNode) Span() Span { return n.Sp }

type ArrayVariableDeclNode struct {
	Type      *TypeRefNode
	Name      string
	Count     Node // fixed-count form; nil when While != nil
	While     Node // condition form: `T name[while(cond)]`
	Placement Node
	Section   *SectionRef
	Attrs     []*Attribute
	DocInfo
	Sp Span
}

func (n *ArrayVariableDeclNode) Span() Span { return n.Sp }

type PointerVariableDeclNode struct {
	PointeeType *TypeRefNode
	SizeType    *TypeRefNode
	Name        string
	Placement   Node
	Section     *SectionRef
	Attrs       []*Attribute
	DocInfo
	Sp Span
}

func (n *PointerVariableDeclNode) Span() Span { return n.Sp }

// ---- Bitfield fields ----

type BitfieldFieldNode struct {
	Name    string
	Size    Node // bit width expression
	Signed  bool
	EnumRef *TypeRefNode // non-nil when declared as `T name : bits` where T is an enum type
	Attrs   []*Attribute
	DocInfo
	Sp Span
}

func (n *BitfieldFieldNode) Span() Span { return n.Sp }

type BitfieldArrayVariableDeclNode struct {
	Field *BitfieldFieldNode
	Count Node
	While Node
	Sp    Span
}

func (n *BitfieldArrayVariableDeclNode) Span() Span { return n.Sp }

// ---- Functions ----

type FunctionParam struct {
	Type *TypeRefNode // nil => untyped (`auto`) parameter
	Name string
}

type FunctionDefinitionNode struct {
	Namespace      string
	Name           string
	Params         []FunctionParam
	DefaultParams  []Node // aligned to the trailing len(DefaultParams) params
	ParameterPack  *ParameterPack
	Body           *CompoundStatementNode
	Dangerous      bool
	DocInfo
	Sp Span
}

func (n *FunctionDefinitionNode) Span() Span { return n.Sp }

func (n *FunctionDefinitionNode) QualifiedName() string {
	if n.Namespace == "" {
		return n.Name
	}
	return n.Namespace + "::" + n.Name
}

func (n *FunctionDefinitionNode) MinParams() int {
	return len(n.Params) - len(n.DefaultParams)
}

func (n *FunctionDefinitionNode) MaxParams() int {
	if n.ParameterPack != nil {
		return -1 // unbounded
	}
	return len(n.Params)
}
