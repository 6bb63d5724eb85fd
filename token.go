package patternlang

import "fmt"

// TokenKind tags the token union.
type TokenKind byte

const (
	TokenKeyword TokenKind = iota
	TokenOperator
	TokenValueType
	TokenSeparator
	TokenIdentifier
	TokenInteger
	TokenFloat
	TokenString
	TokenCharacter
	TokenDirective
	TokenDocComment
	TokenComment
	TokenEndOfProgram
)

func (k TokenKind) String() string {
	names := [...]string{
		"Keyword", "Operator", "ValueType", "Separator", "Identifier",
		"Integer", "Float", "String", "Character", "Directive",
		"DocComment", "Comment", "EndOfProgram",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// Token carries its originating Span alongside its kind-specific payload.
type Token struct {
	Kind TokenKind
	Span Span

	Text string // Keyword/Operator/ValueType/Separator/Identifier/Directive literal text

	IntValue   uint64
	IntSigned  bool
	FloatValue float64

	StrValue  string // decoded String/Character/DocComment text
	CharValue rune

	DocGlobal     bool // doc-comment attaches to the enclosing declaration, not the next member
	DocSingleLine bool
}

func (t Token) String() string {
	switch t.Kind {
	case TokenEndOfProgram:
		return "<eof>"
	case TokenString:
		return fmt.Sprintf("%q", t.StrValue)
	case TokenCharacter:
		return fmt.Sprintf("'%c'", t.CharValue)
	case TokenInteger:
		return fmt.Sprintf("%d", t.IntValue)
	case TokenFloat:
		return fmt.Sprintf("%g", t.FloatValue)
	default:
		return t.Text
	}
}

// Keywords recognized by the lexer.
var keywords = map[string]bool{
	"struct": true, "union": true, "enum": true, "bitfield": true,
	"using": true, "fn": true, "namespace": true, "import": true, "as": true,
	"if": true, "else": true, "while": true, "for": true,
	"match": true, "try": true, "catch": true,
	"break": true, "continue": true, "return": true,
	"in": true, "out": true, "be": true, "le": true,
	"signed": true, "unsigned": true,
	"true": true, "false": true,
	"parent": true, "this": true, "null": true, "unmapped": true,
	"addressof": true, "sizeof": true, "typenameof": true,
	"section": true, "ref": true, "const": true, "fn_return": true,
}

// Primitive value-type keywords.
var valueTypes = map[string]bool{
	"u8": true, "u16": true, "u24": true, "u32": true, "u48": true, "u64": true, "u96": true, "u128": true,
	"s8": true, "s16": true, "s24": true, "s32": true, "s48": true, "s64": true, "s96": true, "s128": true,
	"float": true, "double": true, "char": true, "char16": true, "bool": true,
	"str": true, "padding": true, "auto": true, "any": true,
}

// Multi-character operators, longest first so the lexer can greedily match.
var multiCharOperators = []string{
	"<<=", ">>=",
	"::", "==", "!=", "<=", ">=", "&&", "||", "^^", "<<", ">>", "+=", "-=", "*=", "/=", "...",
}

var singleCharOperators = "+-*/%&|^~!<>=?:$@"
var separators = "(){}[];,."
