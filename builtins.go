package patternlang

import (
	"fmt"
	"math"
)

// BuiltinSignature documents one stdlib binding's calling convention without
// committing to a body: the host embedding this package supplies the real
// implementation via RegisterBuiltin; only the calling convention is fixed
// here.
type BuiltinSignature struct {
	Name      string
	MinArgs   int
	MaxArgs   int // -1 = unbounded
	Dangerous bool
}

// StdlibSurface lists every binding `std::*` functions are expected to
// expose; only the handful actually implemented below are present in
// builtinRegistry, the rest exist purely as a contract the host can bind.
var StdlibSurface = []BuiltinSignature{
	{Name: "std::mem::read_unsigned", MinArgs: 2, MaxArgs: 2},
	{Name: "std::mem::read_signed", MinArgs: 2, MaxArgs: 2},
	{Name: "std::mem::read_string", MinArgs: 2, MaxArgs: 2},
	{Name: "std::mem::base_address", MinArgs: 0, MaxArgs: 0},
	{Name: "std::mem::size", MinArgs: 0, MaxArgs: 0},
	{Name: "std::mem::eof", MinArgs: 0, MaxArgs: 0},
	{Name: "std::core::array_index", MinArgs: 0, MaxArgs: 0},
	{Name: "std::file::open", MinArgs: 1, MaxArgs: 1, Dangerous: true},
	{Name: "std::file::read", MinArgs: 3, MaxArgs: 3, Dangerous: true},
	{Name: "std::file::close", MinArgs: 1, MaxArgs: 1, Dangerous: true},
	{Name: "std::math::min", MinArgs: 2, MaxArgs: 2},
	{Name: "std::math::max", MinArgs: 2, MaxArgs: 2},
	{Name: "std::math::abs", MinArgs: 1, MaxArgs: 1},
	{Name: "std::math::pow", MinArgs: 2, MaxArgs: 2},
	{Name: "std::math::sqrt", MinArgs: 1, MaxArgs: 1},
	{Name: "std::string::length", MinArgs: 1, MaxArgs: 1},
	{Name: "std::string::substr", MinArgs: 3, MaxArgs: 3},
	{Name: "std::string::to_upper", MinArgs: 1, MaxArgs: 1},
	{Name: "std::string::to_lower", MinArgs: 1, MaxArgs: 1},
}

func init() {
	RegisterBuiltin("std::mem::size", func(e *Evaluator, args []Literal, sp Span) (Literal, *EvalError) {
		sec, ok := e.Sections.Get(MainSectionID)
		if !ok {
			return Literal{}, ErrMemory(sp, "no main section attached")
		}
		return UnsignedLiteral(sec.Size(), sp), nil
	})

	RegisterBuiltin("std::mem::eof", func(e *Evaluator, args []Literal, sp Span) (Literal, *EvalError) {
		sec, ok := e.Sections.Get(e.cur.section)
		if !ok {
			return Literal{}, ErrMemory(sp, "no section attached")
		}
		return BoolLiteral(e.cur.byteOffset() >= sec.Size(), sp), nil
	})

	RegisterBuiltin("std::core::array_index", func(e *Evaluator, args []Literal, sp Span) (Literal, *EvalError) {
		return UnsignedLiteral(uint64(e.currentArrayIndex), sp), nil
	})

	RegisterBuiltin("std::math::min", func(e *Evaluator, args []Literal, sp Span) (Literal, *EvalError) {
		if len(args) != 2 {
			return Literal{}, ErrBuiltin(sp, "std::math::min expects 2 arguments")
		}
		a, err := args[0].ToFloat()
		if err != nil {
			return Literal{}, err
		}
		b, err := args[1].ToFloat()
		if err != nil {
			return Literal{}, err
		}
		if a < b {
			return args[0], nil
		}
		return args[1], nil
	})

	RegisterBuiltin("std::math::max", func(e *Evaluator, args []Literal, sp Span) (Literal, *EvalError) {
		if len(args) != 2 {
			return Literal{}, ErrBuiltin(sp, "std::math::max expects 2 arguments")
		}
		a, err := args[0].ToFloat()
		if err != nil {
			return Literal{}, err
		}
		b, err := args[1].ToFloat()
		if err != nil {
			return Literal{}, err
		}
		if a > b {
			return args[0], nil
		}
		return args[1], nil
	})

	RegisterBuiltin("std::math::abs", func(e *Evaluator, args []Literal, sp Span) (Literal, *EvalError) {
		if len(args) != 1 {
			return Literal{}, ErrBuiltin(sp, "std::math::abs expects 1 argument")
		}
		if args[0].Kind == LiteralSigned {
			v := args[0].Signed
			if v < 0 {
				v = -v
			}
			return SignedLiteral(v, sp), nil
		}
		f, err := args[0].ToFloat()
		if err != nil {
			return Literal{}, err
		}
		return FloatLiteral(math.Abs(f), sp), nil
	})

	RegisterBuiltin("std::math::pow", func(e *Evaluator, args []Literal, sp Span) (Literal, *EvalError) {
		if len(args) != 2 {
			return Literal{}, ErrBuiltin(sp, "std::math::pow expects 2 arguments")
		}
		a, err := args[0].ToFloat()
		if err != nil {
			return Literal{}, err
		}
		b, err := args[1].ToFloat()
		if err != nil {
			return Literal{}, err
		}
		return FloatLiteral(math.Pow(a, b), sp), nil
	})

	RegisterBuiltin("std::math::sqrt", func(e *Evaluator, args []Literal, sp Span) (Literal, *EvalError) {
		if len(args) != 1 {
			return Literal{}, ErrBuiltin(sp, "std::math::sqrt expects 1 argument")
		}
		f, err := args[0].ToFloat()
		if err != nil {
			return Literal{}, err
		}
		return FloatLiteral(math.Sqrt(f), sp), nil
	})

	RegisterBuiltin("std::string::length", func(e *Evaluator, args []Literal, sp Span) (Literal, *EvalError) {
		if len(args) != 1 {
			return Literal{}, ErrBuiltin(sp, "std::string::length expects 1 argument")
		}
		s, err := args[0].ToStringValue()
		if err != nil {
			return Literal{}, err
		}
		return UnsignedLiteral(uint64(len(s)), sp), nil
	})

	RegisterBuiltin("std::string::substr", func(e *Evaluator, args []Literal, sp Span) (Literal, *EvalError) {
		if len(args) != 3 {
			return Literal{}, ErrBuiltin(sp, "std::string::substr expects 3 arguments")
		}
		s, err := args[0].ToStringValue()
		if err != nil {
			return Literal{}, err
		}
		start, err := args[1].ToUnsigned()
		if err != nil {
			return Literal{}, err
		}
		length, err := args[2].ToUnsigned()
		if err != nil {
			return Literal{}, err
		}
		if start > uint64(len(s)) || start+length > uint64(len(s)) {
			return Literal{}, ErrIndexOutOfRange(sp, int(start+length), len(s))
		}
		return StringLiteral(s[start:start+length], sp), nil
	})

	RegisterBuiltin("std::string::to_upper", func(e *Evaluator, args []Literal, sp Span) (Literal, *EvalError) {
		s, err := stringArg(args, 0, sp)
		if err != nil {
			return Literal{}, err
		}
		return StringLiteral(toUpperASCII(s), sp), nil
	})

	RegisterBuiltin("std::string::to_lower", func(e *Evaluator, args []Literal, sp Span) (Literal, *EvalError) {
		s, err := stringArg(args, 0, sp)
		if err != nil {
			return Literal{}, err
		}
		return StringLiteral(toLowerASCII(s), sp), nil
	})

	// File-system and dangerous bindings are host-provided; this package
	// only documents their signatures in StdlibSurface.
	for _, sig := range StdlibSurface {
		if sig.Dangerous {
			name := sig.Name
			RegisterDangerousBuiltin(name, func(e *Evaluator, args []Literal, sp Span) (Literal, *EvalError) {
				return Literal{}, ErrBuiltin(sp, fmt.Sprintf("%q has no host binding registered", name))
			})
		}
	}
}

func stringArg(args []Literal, i int, sp Span) (string, *EvalError) {
	if i >= len(args) {
		return "", ErrBuiltin(sp, "missing argument")
	}
	return args[i].ToStringValue()
}

func toUpperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 32
		}
	}
	return string(b)
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}
