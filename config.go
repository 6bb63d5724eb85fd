package patternlang

import "fmt"

// Config is a typed key/value map driven by `#pragma key value` directives:
// typed values keyed by dotted path.
type Config map[string]*cfgVal

// NewConfig primes the defaults every runtime needs before a program runs.
func NewConfig() *Config {
	m := make(Config)
	m.SetInt("eval.recursion_depth", DefaultRecursionDepth)
	m.SetInt("eval.array_limit", DefaultLimits().MaxArrayLen)
	m.SetInt("eval.loop_limit", DefaultLimits().MaxLoopIters)
	m.SetInt("eval.pattern_limit", DefaultLimits().MaxPatternCount)
	m.SetString("eval.endian", "little")
	m.SetInt("eval.base_address", 0)
	m.SetBool("eval.allow_dangerous", false)
	m.SetBool("eval.debug", false)
	return &m
}

type cfgValType int

const (
	cfgValType_Undefined cfgValType = iota
	cfgValType_Bool
	cfgValType_Int
	cfgValType_String
)

func (vt cfgValType) String() string {
	return map[cfgValType]string{
		cfgValType_Undefined: "undefined",
		cfgValType_Bool:      "bool",
		cfgValType_Int:       "int",
		cfgValType_String:    "string",
	}[vt]
}

type cfgVal struct {
	typ      cfgValType
	asBool   bool
	asInt    int
	asString string
}

func (v *cfgVal) assignType(vt cfgValType) {
	if v.typ != vt && v.typ != cfgValType_Undefined {
		panic(fmt.Sprintf("cannot assign %s to a %s config value", vt, v.typ))
	}
	v.typ = vt
}

func (v *cfgVal) checkType(vt cfgValType) {
	if v.typ != vt {
		panic(fmt.Sprintf("cannot retrieve %s from a %s config value", vt, v.typ))
	}
}

func (c *Config) SetBool(path string, v bool) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValType_Bool)
	(*c)[path].asBool = v
}

func (c *Config) SetInt(path string, v int) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValType_Int)
	(*c)[path].asInt = v
}

func (c *Config) SetString(path string, v string) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValType_String)
	(*c)[path].asString = v
}

func (c *Config) GetBool(path string) bool {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValType_Bool)
		return val.asBool
	}
	panic(fmt.Sprintf("bool setting %q does not exist", path))
}

func (c *Config) GetInt(path string) int {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValType_Int)
		return val.asInt
	}
	panic(fmt.Sprintf("int setting %q does not exist", path))
}

func (c *Config) GetString(path string) string {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValType_String)
		return val.asString
	}
	panic(fmt.Sprintf("string setting %q does not exist", path))
}

// Has reports whether path was ever set, letting callers probe without
// risking the get-methods' type-mismatch panic.
func (c *Config) Has(path string) bool {
	_, ok := (*c)[path]
	return ok
}

// registerPragmas wires every known config key to the preprocessor's pragma
// handler surface, so `#pragma eval_depth = 64`
// updates the same Config the evaluator reads its limits from. Bit order is
// not among these: it is a per-bitfield attribute, not a program-wide
// pragma.
func (c *Config) registerPragmas(pp *Preprocessor) {
	c.registerIntPragma(pp, "eval_depth", "eval.recursion_depth")
	c.registerIntPragma(pp, "array_limit", "eval.array_limit")
	c.registerIntPragma(pp, "loop_limit", "eval.loop_limit")
	c.registerIntPragma(pp, "pattern_limit", "eval.pattern_limit")
	c.registerIntPragma(pp, "base_address", "eval.base_address")
	c.registerStringPragma(pp, "endian", "eval.endian")
	c.registerBoolPragma(pp, "allow_dangerous", "eval.allow_dangerous")
	c.registerBoolPragma(pp, "debug", "eval.debug")
}

func (c *Config) registerIntPragma(pp *Preprocessor, name, key string) {
	pp.RegisterPragma(name, func(value string, span Span) bool {
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
			return false
		}
		c.SetInt(key, n)
		return true
	})
}

func (c *Config) registerStringPragma(pp *Preprocessor, name, key string) {
	pp.RegisterPragma(name, func(value string, span Span) bool {
		c.SetString(key, value)
		return true
	})
}

func (c *Config) registerBoolPragma(pp *Preprocessor, name, key string) {
	pp.RegisterPragma(name, func(value string, span Span) bool {
		switch value {
		case "true", "1":
			c.SetBool(key, true)
		case "false", "0":
			c.SetBool(key, false)
		default:
			return false
		}
		return true
	})
}
