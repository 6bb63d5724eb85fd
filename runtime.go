package patternlang

import "fmt"

// LogLevel tags a console-log entry; Info/Warning/Debug cover the
// `print`/`warning`/`#pragma debug` surface.
type LogLevel int

const (
	LogInfo LogLevel = iota
	LogWarning
	LogDebug
)

func (l LogLevel) String() string {
	switch l {
	case LogWarning:
		return "warning"
	case LogDebug:
		return "debug"
	default:
		return "info"
	}
}

// LogEntry is one line appended to the runtime's console log by `std::print`/
// `std::warning` or by the evaluator itself under `#pragma debug`.
type LogEntry struct {
	Level   LogLevel
	Message string
}

// LoggerFunc lets the host observe console-log output as it happens, in
// addition to the batch `GetConsoleLog` retrieval.
type LoggerFunc func(level LogLevel, message string)

// Runtime is the embedding façade: it owns the
// SourceRegistry, wires a fresh Preprocessor/Lexer/Parser/Validator/Evaluator
// pipeline per execution, and exposes the host-facing accessors (patterns,
// out-variables, console log, error) the CLI/formatters/fuzzer layers that
// this repository does not implement would consume.
type Runtime struct {
	Sources  *SourceRegistry
	Resolver *FileResolver

	sections *SectionRegistry
	mainSize uint64

	defines []defineEntry
	pragmas map[string]PragmaHandler

	builtins   map[string]BuiltinFunc
	dangerous  map[string]bool
	dangerousHandler func(qualifiedName string) bool

	logger  LoggerFunc
	console []LogEntry

	lastEvaluator *Evaluator
	lastConfig    *Config
	lastError     error
	running       bool
	subDepth      int
}

type defineEntry struct {
	name, value string
}

// NewRuntime constructs a Runtime with no data source attached; callers must
// SetDataSource (or SetMainData, for in-process byte slices) before
// executing any pattern program that places a variable against the main
// section.
func NewRuntime() *Runtime {
	r := &Runtime{
		Sources:  NewSourceRegistry(),
		Resolver: NewFileResolver(nil),
		pragmas:  map[string]PragmaHandler{},
		builtins: map[string]BuiltinFunc{},
		dangerous: map[string]bool{},
	}
	r.Sources.SetDefault(r.Resolver)
	return r
}

// SetIncludePaths configures the default FileResolver's search path.
func (r *Runtime) SetIncludePaths(paths []string) {
	r.Resolver.IncludePaths = paths
	r.Sources.SetIncludePaths(paths)
}

// RegisterProtocol installs a custom resolver for a "proto://" prefix such
// as `file://` or `git://`.
func (r *Runtime) RegisterProtocol(prefix string, handler ProtocolHandler) {
	r.Sources.RegisterProtocol(prefix, handler)
}

// SetMainData points the main section directly at an in-memory byte slice;
// the common case for embedders that already hold the bytes (tests, a
// memory-mapped buffer already read by the host).
func (r *Runtime) SetMainData(data []byte) {
	r.sections = NewSectionRegistry(data)
	r.mainSize = uint64(len(data))
}

// SetDataSource wires the main section to host reader/writer callbacks, for
// hosts that want to stream from a file or device instead of buffering the
// whole input.
func (r *Runtime) SetDataSource(reader DataSourceReader, writer DataSourceWriter, size uint64) {
	r.sections = NewSectionRegistry(nil)
	r.sections.sections[MainSectionID] = NewDataSourceSection(MainSectionID, size, reader, writer)
	r.mainSize = size
}

// AddDefine registers a `#define` as though it appeared at the top of every
// source this runtime preprocesses.
func (r *Runtime) AddDefine(name string, value string) {
	r.defines = append(r.defines, defineEntry{name, value})
}

// AddPragma registers a host-level pragma handler in addition to the builtin
// ones Config wires.
func (r *Runtime) AddPragma(name string, handler PragmaHandler) {
	r.pragmas[name] = handler
}

// AddFunction registers a callable builtin under `namespace::name`.
func (r *Runtime) AddFunction(namespace, name string, fn BuiltinFunc) {
	qualified := name
	if namespace != "" {
		qualified = namespace + "::" + name
	}
	r.builtins[qualified] = fn
}

// AddDangerousFunction registers a builtin gated by the dangerous-function
// handler; the handler sees the fully
// qualified name before fn ever runs.
func (r *Runtime) AddDangerousFunction(namespace, name string, fn BuiltinFunc) {
	qualified := name
	if namespace != "" {
		qualified = namespace + "::" + name
	}
	r.builtins[qualified] = fn
	r.dangerous[qualified] = true
	dangerousBuiltins[qualified] = true
}

// SetDangerousFunctionHandler installs the host callback consulted before
// any dangerous builtin or user function runs; a nil handler denies every
// dangerous call, per the evaluator's default.
func (r *Runtime) SetDangerousFunctionHandler(cb func(qualifiedName string) bool) {
	r.dangerousHandler = cb
}

// SetLogger installs a callback invoked synchronously for every console-log
// line, in addition to the batch accessor.
func (r *Runtime) SetLogger(cb LoggerFunc) { r.logger = cb }

func (r *Runtime) log(level LogLevel, message string) {
	entry := LogEntry{Level: level, Message: message}
	r.console = append(r.console, entry)
	if r.logger != nil {
		r.logger(level, message)
	}
}

// Abort requests cooperative cancellation of the run in progress, if any
//; safe to call from another goroutine.
func (r *Runtime) Abort() {
	if r.lastEvaluator != nil {
		r.lastEvaluator.Abort()
	}
}

// IsRunning reports whether ExecuteString/ExecuteFile currently has an
// evaluation in flight. This implementation runs synchronously on the
// calling goroutine, so IsRunning is only ever true to a concurrent
// observer calling in from another goroutine while a run is active: no
// partial pattern tree is exposed until the run finishes.
func (r *Runtime) IsRunning() bool { return r.running }

// Reset discards the last run's evaluator state, error, and console log so
// the Runtime can be reused cleanly.
func (r *Runtime) Reset() {
	r.lastEvaluator = nil
	r.lastError = nil
	r.console = nil
}

// GetPatterns returns the top-level patterns produced by the last
// successful run, or nil if the last run failed or none has happened yet.
func (r *Runtime) GetPatterns() []Pattern {
	if r.lastEvaluator == nil {
		return nil
	}
	return r.lastEvaluator.Patterns
}

// GetOutVariables returns the `out`-declared variables populated by the last
// run.
func (r *Runtime) GetOutVariables() map[string]Literal {
	if r.lastEvaluator == nil {
		return nil
	}
	return r.lastEvaluator.Out
}

// GetConsoleLog returns every print/warning line emitted across runs since
// the last Reset.
func (r *Runtime) GetConsoleLog() []LogEntry { return r.console }

// GetError returns the first error encountered by the last run, or nil on
// success.
func (r *Runtime) GetError() error { return r.lastError }

// ExecuteFile resolves path through the registry/resolver, then runs it the
// same way ExecuteString does.
func (r *Runtime) ExecuteFile(path string, env, in map[string]Literal) bool {
	src, err := r.Sources.Resolve(path)
	if err != nil {
		r.lastError = fmt.Errorf("resolving %q: %w", path, err)
		return false
	}
	return r.run(src, env, in)
}

// Parse compiles code through the preprocessor, lexer, parser, and validator
// without executing it; the returned Program is the
// validated AST, and a non-empty error list means compilation failed.
func (r *Runtime) Parse(code string) (*Program, []*CompileError) {
	src := r.Sources.AddVirtual(code, "")
	return r.compile(src)
}

// ExecuteString registers code as a virtual source and runs it. env seeds
// the `in`-variable-visible runtime
// environment; in seeds variables declared `in` at the top level.
func (r *Runtime) ExecuteString(code string, env, in map[string]Literal) bool {
	src := r.Sources.AddVirtual(code, "")
	return r.run(src, env, in)
}

// ExecuteFunction parses code as a single bare expression/function body and
// evaluates it outside of any pattern placement — no section is required
// and no patterns are produced; the returned
// Literal is the expression's value.
func (r *Runtime) ExecuteFunction(code string) (Literal, error) {
	src := r.Sources.AddVirtual("fn __anonymous__() { "+code+" }", "")
	prog, errs := r.compile(src)
	if len(errs) > 0 {
		r.lastError = errs[0]
		return Literal{}, errs[0]
	}

	ev := r.newEvaluator()
	ev.registerDeclarations(prog.Statements, "")
	fn, ok := ev.Funcs["__anonymous__"]
	if !ok {
		err := fmt.Errorf("no expression found")
		r.lastError = err
		return Literal{}, err
	}
	v, eerr := ev.callUserFunction(fn, nil, fn.Sp)
	if eerr != nil {
		r.lastError = eerr
		return Literal{}, eerr
	}
	return v, nil
}

func (r *Runtime) run(src *Source, env, in map[string]Literal) bool {
	r.running = true
	defer func() { r.running = false }()

	r.lastError = nil
	prog, errs := r.compile(src)
	if len(errs) > 0 {
		r.lastError = errs[0]
		return false
	}

	ev := r.newEvaluator()
	for k, v := range env {
		ev.Env[k] = v
	}
	for k, v := range in {
		ev.Env[k] = v
	}

	patterns, eerr := ev.Run(prog)
	ev.Patterns = patterns
	r.lastEvaluator = ev
	if eerr != nil {
		r.lastError = eerr
		ev.Patterns = nil // partial patterns are discarded on error
		return false
	}
	return true
}

// compile runs the preprocessor, lexer (via the preprocessor), parser, and
// validator over src, in that order.
func (r *Runtime) compile(src *Source) (*Program, []*CompileError) {
	cfg := NewConfig()
	pp := NewPreprocessor(r.Sources)
	cfg.registerPragmas(pp)
	for name, handler := range r.pragmas {
		pp.RegisterPragma(name, handler)
	}
	for _, d := range r.defines {
		toks := []Token{}
		if d.value != "" {
			vl := NewLexer(&Source{Content: d.value, Name: src.Name, ID: src.ID})
			vtoks, _ := vl.Lex()
			for _, t := range vtoks {
				if t.Kind != TokenEndOfProgram {
					toks = append(toks, t)
				}
			}
		}
		pp.defines[d.name] = toks
	}

	tokens, errs := pp.Process(src, "")
	if len(errs) > 0 {
		return nil, errs
	}

	parser := NewParser(tokens)
	prog, perrs := parser.Parse()
	if len(perrs) > 0 {
		return nil, perrs
	}

	val := NewValidator(parser.Types(), cfg.GetInt("eval.recursion_depth"))
	if verrs := val.Validate(prog); len(verrs) > 0 {
		return nil, verrs
	}

	r.lastConfig = cfg
	return prog, nil
}

func (r *Runtime) newEvaluator() *Evaluator {
	if r.sections == nil {
		r.sections = NewSectionRegistry(nil)
	}
	ev := NewEvaluator(r.Sources, r.sections)
	if r.lastConfig != nil {
		ev.Config = r.lastConfig
	}
	ev.limits = limitsFromConfig(ev.Config, ev.limits)
	ev.endian = endianFromConfig(ev.Config)
	ev.SetDangerousHandler(func(qualified string) bool {
		if r.dangerousHandler != nil {
			return r.dangerousHandler(qualified)
		}
		return false
	})

	ev.subRun = r.subRuntimeRun

	for name, fn := range defaultBuiltinBindings(r) {
		builtinRegistry[name] = fn
	}
	for name, fn := range r.builtins {
		builtinRegistry[name] = fn
	}
	return ev
}

// subRuntimeRun backs the evaluator's `import` handling: a fresh Runtime
// sharing this one's resolver, sections,
// pragma handlers, and registered functions compiles and executes src with
// its read cursor started at startOffset, and the resulting top-level
// patterns are handed back for composition into the importing tree.
func (r *Runtime) subRuntimeRun(src *Source, startOffset uint64) ([]Pattern, error) {
	if r.subDepth >= maxImportDepth {
		return nil, fmt.Errorf("import nesting exceeds %d levels", maxImportDepth)
	}
	sub := &Runtime{
		Sources:          r.Sources,
		Resolver:         r.Resolver,
		sections:         r.sections,
		mainSize:         r.mainSize,
		defines:          r.defines,
		pragmas:          r.pragmas,
		builtins:         r.builtins,
		dangerous:        r.dangerous,
		dangerousHandler: r.dangerousHandler,
		logger:           r.logger,
		subDepth:         r.subDepth + 1,
	}
	prog, errs := sub.compile(src)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	ev := sub.newEvaluator()
	ev.cur = cursor{section: MainSectionID, bitOffset: startOffset * 8}
	pats, eerr := ev.Run(prog)
	r.console = append(r.console, sub.console...)
	if eerr != nil {
		return nil, eerr
	}
	return pats, nil
}

// maxImportDepth bounds import chains so a cyclic import fails instead of
// recursing forever.
const maxImportDepth = 8

func limitsFromConfig(cfg *Config, base Limits) Limits {
	if cfg.Has("eval.array_limit") {
		base.MaxArrayLen = cfg.GetInt("eval.array_limit")
	}
	if cfg.Has("eval.loop_limit") {
		base.MaxLoopIters = cfg.GetInt("eval.loop_limit")
	}
	if cfg.Has("eval.pattern_limit") {
		base.MaxPatternCount = cfg.GetInt("eval.pattern_limit")
	}
	return base
}

// endianFromConfig resolves `#pragma endian`'s string value into the
// Evaluator's runtime default; an unset or unrecognized value keeps the
// compile-time DefaultEndian, matching "native resolves to the compiler's
// default" for this repo's single-target evaluator.
func endianFromConfig(cfg *Config) Endian {
	if !cfg.Has("eval.endian") {
		return DefaultEndian
	}
	switch cfg.GetString("eval.endian") {
	case "big":
		return EndianBig
	case "little":
		return EndianLittle
	default:
		return DefaultEndian
	}
}

// defaultBuiltinBindings wires `std::print`/`std::warning` through this
// Runtime's console log; every other stdlib binding is either already
// registered at package init (builtins.go) or left to the host via
// AddFunction/AddDangerousFunction.
func defaultBuiltinBindings(r *Runtime) map[string]BuiltinFunc {
	return map[string]BuiltinFunc{
		"std::print": func(e *Evaluator, args []Literal, sp Span) (Literal, *EvalError) {
			r.log(LogInfo, joinArgs(args))
			return UnitLiteral(sp), nil
		},
		"std::warning": func(e *Evaluator, args []Literal, sp Span) (Literal, *EvalError) {
			r.log(LogWarning, joinArgs(args))
			return UnitLiteral(sp), nil
		},
	}
}

func joinArgs(args []Literal) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		s, err := a.ToStringValue()
		if err != nil {
			out += fmt.Sprintf("<%s>", a.Kind)
			continue
		}
		out += s
	}
	return out
}
