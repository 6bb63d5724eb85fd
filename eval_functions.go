package patternlang

import (
	"fmt"
	"strings"
)

// BuiltinFunc is how a host-registered stdlib binding (builtins.go) plugs
// into the evaluator: it receives already-evaluated arguments and returns a
// single Literal result.
type BuiltinFunc func(e *Evaluator, args []Literal, sp Span) (Literal, *EvalError)

// callFunction evaluates arguments left to right, materializing each to a
// Literal, then dispatches to a builtin or a
// user-defined function definition.
func (e *Evaluator) callFunction(n *FunctionCallNode) (Literal, *EvalError) {
	args := make([]Literal, len(n.Args))
	for i, a := range n.Args {
		v, err := e.evalExpr(a)
		if err != nil {
			return Literal{}, err
		}
		args[i] = v
	}

	qualified := n.Name
	if n.Namespace != "" {
		qualified = n.Namespace + "::" + n.Name
	}

	if bf, ok := builtinRegistry[qualified]; ok {
		if dangerousBuiltins[qualified] {
			if e.dangerous == nil || !e.dangerous(qualified) {
				return Literal{}, ErrFunction(n.Sp, fmt.Sprintf("call to dangerous function %q was denied", qualified))
			}
		}
		return bf(e, args, n.Sp)
	}

	fn, ok := e.Funcs[qualified]
	if !ok {
		return Literal{}, undefinedFunction(qualified, n.Sp)
	}
	return e.callUserFunction(fn, args, n.Sp)
}

// undefinedFunction builds the lookup-failure error, with a standard-library
// hint when the missing name lives under `std::`.
func undefinedFunction(qualified string, sp Span) *EvalError {
	err := ErrFunction(sp, fmt.Sprintf("undefined function %q", qualified))
	if strings.HasPrefix(qualified, "std::") {
		err = err.WithHint("the standard library is provided by the host; register its bindings with AddFunction before running")
	}
	return err
}

// callNamedFunction looks up name as a builtin, then a user-defined function,
// and calls it with already-evaluated args. This is the path an attribute
// naming a function (format_read/format_write/transform/pointer_base) takes
// to invoke it, as opposed to callFunction's call-expression path.
func (e *Evaluator) callNamedFunction(name string, args []Literal, sp Span) (Literal, *EvalError) {
	if bf, ok := builtinRegistry[name]; ok {
		if dangerousBuiltins[name] {
			if e.dangerous == nil || !e.dangerous(name) {
				return Literal{}, ErrFunction(sp, fmt.Sprintf("call to dangerous function %q was denied", name))
			}
		}
		return bf(e, args, sp)
	}
	fn, ok := e.Funcs[name]
	if !ok {
		return Literal{}, undefinedFunction(name, sp)
	}
	return e.callUserFunction(fn, args, sp)
}

func (e *Evaluator) callUserFunction(fn *FunctionDefinitionNode, args []Literal, sp Span) (Literal, *EvalError) {
	if fn.Dangerous {
		if e.dangerous == nil || !e.dangerous(fn.QualifiedName()) {
			return Literal{}, ErrFunction(sp, fmt.Sprintf("call to dangerous function %q was denied", fn.QualifiedName()))
		}
	}

	minP, maxP := fn.MinParams(), fn.MaxParams()
	if len(args) < minP || (maxP >= 0 && len(args) > maxP) {
		return Literal{}, ErrFunction(sp, fmt.Sprintf("%q expects between %d and %d arguments, got %d", fn.QualifiedName(), minP, maxP, len(args)))
	}

	if e.callDepth >= e.limits.MaxCallDepth {
		return Literal{}, ErrLimit(sp, "call depth", e.limits.MaxCallDepth)
	}
	e.callDepth++
	defer func() { e.callDepth-- }()

	e.Scopes.Push(e.Scopes.Top().Parent, e.Heap)
	defer e.Scopes.Pop()

	scope := e.Scopes.Top()
	for i, p := range fn.Params {
		var v Literal
		switch {
		case i < len(args):
			v = args[i]
		default:
			defIdx := i - (len(fn.Params) - len(fn.DefaultParams))
			if defIdx >= 0 && defIdx < len(fn.DefaultParams) {
				dv, err := e.evalExpr(fn.DefaultParams[defIdx])
				if err != nil {
					return Literal{}, err
				}
				v = dv
			}
		}
		scope.Declare(p.Name, patternFromLiteral(v))
	}
	if fn.ParameterPack != nil && len(args) > len(fn.Params) {
		for i := len(fn.Params); i < len(args); i++ {
			scope.ParameterPack = append(scope.ParameterPack, patternFromLiteral(args[i]))
		}
	}

	sig, err := e.exec(fn.Body)
	if err != nil {
		return Literal{}, err
	}
	if sig != nil && sig.kind == ControlFlowReturn {
		if sig.value.Kind == LiteralPattern {
			// Pattern-valued returns clone into the parent scope.
			return PatternLiteral(sig.value.Pattern.Clone(), sp), nil
		}
		return sig.value, nil
	}
	return UnitLiteral(sp), nil
}

// builtinRegistry is populated by builtins.go at package init; it is the
// host-facing registration surface (signatures only for most stdlib
// bindings) plus what this package implements directly.
var builtinRegistry = map[string]BuiltinFunc{}

// dangerousBuiltins marks names that must clear the evaluator's dangerous-
// function handler before running, populated by RegisterDangerousBuiltin /
// Runtime.AddDangerousFunction.
var dangerousBuiltins = map[string]bool{}

// RegisterBuiltin lets host code (or builtins.go) install a named function
// callable from pattern-language source as `ns::name(...)`.
func RegisterBuiltin(qualifiedName string, fn BuiltinFunc) {
	builtinRegistry[qualifiedName] = fn
}

// RegisterDangerousBuiltin is RegisterBuiltin plus the dangerous-function
// gate.
func RegisterDangerousBuiltin(qualifiedName string, fn BuiltinFunc) {
	builtinRegistry[qualifiedName] = fn
	dangerousBuiltins[qualifiedName] = true
}
