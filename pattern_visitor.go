package patternlang

import (
	"fmt"
	"strings"
)

// PatternVisitor is implemented by anything that wants to walk a pattern
// tree without a type switch of its own — formatters, the diagnostics
// renderer, external tooling embedding this package. One method per
// concrete pattern variant.
type PatternVisitor interface {
	VisitPadding(*PaddingPattern) error
	VisitUnsigned(*UnsignedPattern) error
	VisitSigned(*SignedPattern) error
	VisitFloat(*FloatPattern) error
	VisitBoolean(*BooleanPattern) error
	VisitCharacter(*CharacterPattern) error
	VisitWideCharacter(*CharacterPattern) error
	VisitString(*StringPattern) error
	VisitWideString(*StringPattern) error
	VisitArrayStatic(*ArrayPattern) error
	VisitArrayDynamic(*ArrayPattern) error
	VisitStruct(*StructPattern) error
	VisitUnion(*UnionPattern) error
	VisitBitfield(*BitfieldPattern) error
	VisitBitfieldField(*BitfieldFieldPattern) error
	VisitBitfieldArray(*BitfieldArrayPattern) error
	VisitEnum(*EnumPattern) error
	VisitPointer(*PointerPattern) error
	VisitErrorPattern(*ErrorPattern) error
}

// printerCore is the indentation/box-drawing writer every tree-shaped
// printer in this package shares.
type printerCore struct {
	padStr []string
	output strings.Builder
}

func (pc *printerCore) indent(s string)   { pc.padStr = append(pc.padStr, s) }
func (pc *printerCore) unindent()         { pc.padStr = pc.padStr[:len(pc.padStr)-1] }
func (pc *printerCore) padding()          { for _, s := range pc.padStr { pc.output.WriteString(s) } }
func (pc *printerCore) write(s string)    { pc.output.WriteString(s) }
func (pc *printerCore) writel(s string)   { pc.write(s); pc.output.WriteByte('\n') }
func (pc *printerCore) pwrite(s string)   { pc.padding(); pc.write(s) }
func (pc *printerCore) pwritel(s string)  { pc.pwrite(s); pc.output.WriteByte('\n') }

// PatternPrinter renders a pattern tree as an indented ASCII tree, used by
// tests and by diagnostics.go when a `try` failure needs to show the subtree
// that was discarded.
type PatternPrinter struct{ printerCore }

func NewPatternPrinter() *PatternPrinter { return &PatternPrinter{} }

func Print(p Pattern) string {
	pp := NewPatternPrinter()
	if err := p.Accept(pp); err != nil {
		return fmt.Sprintf("<error printing pattern: %s>", err)
	}
	return pp.output.String()
}

func (pp *PatternPrinter) header(b *PatternBase, extra string) string {
	name := b.FormattedName()
	if extra != "" {
		return fmt.Sprintf("%s %s : %s (%s)", b.K, name, extra, b.Sp)
	}
	return fmt.Sprintf("%s %s (%s)", b.K, name, b.Sp)
}

func (pp *PatternPrinter) leaf(b *PatternBase, valueText string) error {
	pp.writel(pp.header(b, valueText))
	return nil
}

func (pp *PatternPrinter) children(kids []Pattern) error {
	for i, k := range kids {
		last := i == len(kids)-1
		if last {
			pp.pwrite("└── ")
			pp.indent("    ")
		} else {
			pp.pwrite("├── ")
			pp.indent("│   ")
		}
		if err := k.Accept(pp); err != nil {
			return err
		}
		pp.unindent()
		if !last {
			pp.write("")
		}
	}
	return nil
}

func (pp *PatternPrinter) VisitPadding(p *PaddingPattern) error {
	return pp.leaf(&p.PatternBase, fmt.Sprintf("%d bytes", p.Size))
}
func (pp *PatternPrinter) VisitUnsigned(p *UnsignedPattern) error {
	s, _ := p.ToString()
	return pp.leaf(&p.PatternBase, s)
}
func (pp *PatternPrinter) VisitSigned(p *SignedPattern) error {
	s, _ := p.ToString()
	return pp.leaf(&p.PatternBase, s)
}
func (pp *PatternPrinter) VisitFloat(p *FloatPattern) error {
	s, _ := p.ToString()
	return pp.leaf(&p.PatternBase, s)
}
func (pp *PatternPrinter) VisitBoolean(p *BooleanPattern) error {
	s, _ := p.ToString()
	return pp.leaf(&p.PatternBase, s)
}
func (pp *PatternPrinter) VisitCharacter(p *CharacterPattern) error {
	s, _ := p.ToString()
	return pp.leaf(&p.PatternBase, s)
}
func (pp *PatternPrinter) VisitWideCharacter(p *CharacterPattern) error {
	return pp.VisitCharacter(p)
}
func (pp *PatternPrinter) VisitString(p *StringPattern) error {
	s, _ := p.FormatDisplayValue()
	return pp.leaf(&p.PatternBase, s)
}
func (pp *PatternPrinter) VisitWideString(p *StringPattern) error { return pp.VisitString(p) }

func (pp *PatternPrinter) VisitArrayStatic(p *ArrayPattern) error {
	pp.writel(pp.header(&p.PatternBase, fmt.Sprintf("%s[%d]", p.ElementType, len(p.Elements))))
	return pp.children(p.Elements)
}
func (pp *PatternPrinter) VisitArrayDynamic(p *ArrayPattern) error {
	return pp.VisitArrayStatic(p)
}
func (pp *PatternPrinter) VisitStruct(p *StructPattern) error {
	pp.writel(pp.header(&p.PatternBase, ""))
	return pp.children(p.Fields)
}
func (pp *PatternPrinter) VisitUnion(p *UnionPattern) error {
	pp.writel(pp.header(&p.PatternBase, ""))
	return pp.children(p.Fields)
}
func (pp *PatternPrinter) VisitBitfield(p *BitfieldPattern) error {
	pp.writel(pp.header(&p.PatternBase, ""))
	return pp.children(p.Fields)
}
func (pp *PatternPrinter) VisitBitfieldField(p *BitfieldFieldPattern) error {
	s, _ := p.ToString()
	return pp.leaf(&p.PatternBase, s)
}
func (pp *PatternPrinter) VisitBitfieldArray(p *BitfieldArrayPattern) error {
	pp.writel(pp.header(&p.PatternBase, fmt.Sprintf("[%d]", len(p.Elements))))
	return pp.children(p.Elements)
}
func (pp *PatternPrinter) VisitEnum(p *EnumPattern) error {
	s, _ := p.ToString()
	return pp.leaf(&p.PatternBase, s)
}
func (pp *PatternPrinter) VisitPointer(p *PointerPattern) error {
	pp.writel(pp.header(&p.PatternBase, fmt.Sprintf("-> 0x%x", p.Address)))
	if p.Pointee == nil {
		return nil
	}
	return pp.children([]Pattern{p.Pointee})
}
func (pp *PatternPrinter) VisitErrorPattern(p *ErrorPattern) error {
	return pp.leaf(&p.PatternBase, "error: "+p.Message)
}
