package patternlang

import (
	"strconv"
	"strings"
)

// PragmaHandler is invoked once preprocessing of the entry source completes
//; false means the pragma rejected its value.
type PragmaHandler func(value string, span Span) bool

// Preprocessor expands #include/#define/#ifdef/#pragma/#error directives
// into a flat token stream. It lexes each source exactly once
// and afterwards only manipulates tokens.
type Preprocessor struct {
	registry *SourceRegistry
	pragmas  map[string]PragmaHandler

	defines     map[string][]Token
	onceGuard   map[string]bool
	includeStk  map[uint32]bool // recursion guard against cyclic #include
	excluded    []Span
	debugPragma bool
}

func NewPreprocessor(registry *SourceRegistry) *Preprocessor {
	return &Preprocessor{
		registry:   registry,
		pragmas:    map[string]PragmaHandler{},
		defines:    map[string][]Token{},
		onceGuard:  map[string]bool{},
		includeStk: map[uint32]bool{},
	}
}

func (p *Preprocessor) RegisterPragma(name string, handler PragmaHandler) {
	p.pragmas[name] = handler
}

// ExcludedSpans returns the spans of tokens dropped by a false #ifdef/#ifndef
// branch, for IDE tooling to gray out.
func (p *Preprocessor) ExcludedSpans() []Span { return p.excluded }

// Process preprocesses source under namespace (the empty string for the
// top-level entry source; a prefix for `import "path" as prefix`), returning
// the expanded token stream or the errors encountered.
func (p *Preprocessor) Process(source *Source, namespace string) ([]Token, []*CompileError) {
	if p.includeStk[source.ID] {
		return nil, nil // cyclic include: once-semantics below usually prevents this; fail soft
	}
	p.includeStk[source.ID] = true
	defer delete(p.includeStk, source.ID)

	lexer := NewLexer(source)
	rawTokens, errs := lexer.Lex()
	if len(errs) > 0 {
		return nil, errs
	}

	var (
		out        []Token
		condStack  []bool // true = currently-active branch
		sawPragmaOnce bool
	)

	active := func() bool {
		for _, c := range condStack {
			if !c {
				return false
			}
		}
		return true
	}

	for i := 0; i < len(rawTokens); i++ {
		tok := rawTokens[i]

		if tok.Kind == TokenComment || tok.Kind == TokenDocComment {
			if active() {
				out = append(out, tok)
			}
			continue
		}

		if tok.Kind != TokenDirective {
			if !active() {
				p.excluded = append(p.excluded, tok.Span)
				continue
			}
			p.expandInto(&out, tok)
			continue
		}

		switch tok.Text {
		case "ifdef", "ifndef":
			name := strings.TrimSpace(tok.StrValue)
			_, defined := p.defines[name]
			cond := defined
			if tok.Text == "ifndef" {
				cond = !defined
			}
			condStack = append(condStack, cond)

		case "endif":
			if len(condStack) == 0 {
				return nil, []*CompileError{ErrUnknownDirective(tok.Span, "endif")}
			}
			condStack = condStack[:len(condStack)-1]

		case "else":
			if len(condStack) == 0 {
				return nil, []*CompileError{ErrUnknownDirective(tok.Span, "else")}
			}
			condStack[len(condStack)-1] = !condStack[len(condStack)-1]

		case "define":
			if !active() {
				continue
			}
			name, value := splitDefine(tok.StrValue)
			var valueToks []Token
			if value != "" {
				vsrc := &Source{Content: value, Name: source.Name, ID: source.ID}
				vl := NewLexer(vsrc)
				toks, verrs := vl.Lex()
				if len(verrs) > 0 {
					return nil, verrs
				}
				for _, t := range toks {
					if t.Kind != TokenEndOfProgram {
						valueToks = append(valueToks, t)
					}
				}
			}
			p.defines[name] = valueToks

		case "undef":
			if !active() {
				continue
			}
			delete(p.defines, strings.TrimSpace(tok.StrValue))

		case "pragma":
			if !active() {
				continue
			}
			key, value := splitDefine(tok.StrValue)
			if key == "once" {
				sawPragmaOnce = true
				continue
			}
			if key == "debug" {
				p.debugPragma = true
				continue
			}
			handler, ok := p.pragmas[key]
			if !ok {
				continue // unregistered pragmas are advisory; unknown keys are tolerated
			}
			if !handler(value, tok.Span) {
				return nil, []*CompileError{ErrPragmaFailed(tok.Span, key)}
			}

		case "error":
			if !active() {
				continue
			}
			return nil, []*CompileError{ErrUser(tok.Span, tok.StrValue)}

		case "include":
			if !active() {
				continue
			}
			toks, err := p.processInclude(tok, namespace)
			if err != nil {
				return nil, []*CompileError{err}
			}
			out = append(out, toks...)

		default:
			if active() {
				return nil, []*CompileError{ErrUnknownDirective(tok.Span, tok.Text)}
			}
		}
	}

	if sawPragmaOnce {
		p.onceGuard[onceKey(source.ID, namespace)] = true
	}

	out = append(out, Token{Kind: TokenEndOfProgram})
	return out, nil
}

func onceKey(sourceID uint32, namespace string) string {
	return namespace + "\x00" + strconv.FormatUint(uint64(sourceID), 10)
}

func (p *Preprocessor) processInclude(tok Token, namespace string) ([]Token, *CompileError) {
	path := strings.Trim(strings.TrimSpace(tok.StrValue), "<>\"")
	src, err := p.registry.Resolve(path)
	if err != nil {
		return nil, ErrIncludeNotFound(tok.Span, path, []string{err.Error()})
	}
	if p.onceGuard[onceKey(src.ID, namespace)] {
		return nil, nil
	}
	toks, errs := p.Process(src, namespace)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	// strip the nested EndOfProgram; only the outermost stream needs one
	if n := len(toks); n > 0 && toks[n-1].Kind == TokenEndOfProgram {
		toks = toks[:n-1]
	}
	return toks, nil
}

func (p *Preprocessor) expandInto(out *[]Token, tok Token) {
	if tok.Kind == TokenIdentifier {
		if replacement, ok := p.defines[tok.Text]; ok {
			*out = append(*out, replacement...)
			return
		}
	}
	*out = append(*out, tok)
}

func splitDefine(s string) (name, value string) {
	s = strings.TrimSpace(s)
	idx := strings.IndexAny(s, " \t")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx:])
}
