package patternlang

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Source is an immutable, registered chunk of pattern-language text.
type Source struct {
	Content string
	Name    string
	ID      uint32

	lineIndex *LineIndex
}

// EmptySourceID is the sentinel id for locations that do not originate from
// real source text.
const EmptySourceID uint32 = 0

func (s *Source) Lines() *LineIndex {
	if s.lineIndex == nil {
		s.lineIndex = NewLineIndex(s.ID, []byte(s.Content))
	}
	return s.lineIndex
}

// ProtocolHandler resolves a path (after its "proto://" prefix has been
// stripped) into source content.
type ProtocolHandler interface {
	Resolve(path string) (content string, name string, err error)
}

// SourceRegistry owns every Source for the lifetime of a Runtime, caching by
// resolved path so repeated resolutions return the same stable pointer, and
// indexing by id for O(1) Span rendering.
type SourceRegistry struct {
	byPath     map[string]*Source
	byID       []*Source // index 0 reserved for EmptySourceID
	protocols  map[string]ProtocolHandler
	defaultRes ProtocolHandler
	includes   []string
}

func NewSourceRegistry() *SourceRegistry {
	return &SourceRegistry{
		byPath:    map[string]*Source{},
		byID:      []*Source{nil}, // index 0 == EmptySourceID, never dereferenced
		protocols: map[string]ProtocolHandler{},
	}
}

func (r *SourceRegistry) RegisterProtocol(prefix string, handler ProtocolHandler) {
	r.protocols[prefix] = handler
}

func (r *SourceRegistry) SetDefault(handler ProtocolHandler) {
	r.defaultRes = handler
}

func (r *SourceRegistry) SetIncludePaths(paths []string) {
	r.includes = paths
}

// Get returns the Source registered under id, or nil for EmptySourceID / an
// id unknown to this registry.
func (r *SourceRegistry) Get(id uint32) *Source {
	if int(id) >= len(r.byID) {
		return nil
	}
	return r.byID[id]
}

// AddVirtual registers in-memory source text under a synthetic name (used
// for `execute_string`, and for test fixtures).
func (r *SourceRegistry) AddVirtual(code, name string) *Source {
	if name == "" {
		name = fmt.Sprintf("<virtual-%d>", len(r.byID))
	}
	if s, ok := r.byPath[name]; ok {
		return s
	}
	s := &Source{Content: code, Name: name, ID: uint32(len(r.byID))}
	r.byID = append(r.byID, s)
	r.byPath[name] = s
	return s
}

// Resolve looks up path, dispatching to a registered protocol handler when
// path has a "proto://" prefix, or to the default handler otherwise. The
// same path always returns the same *Source.
func (r *SourceRegistry) Resolve(path string) (*Source, error) {
	if s, ok := r.byPath[path]; ok {
		return s, nil
	}

	var (
		content string
		name    string
		err     error
	)

	if idx := strings.Index(path, "://"); idx >= 0 {
		prefix := path[:idx]
		handler, ok := r.protocols[prefix]
		if !ok {
			return nil, fmt.Errorf("no resolver registered for protocol %q", prefix)
		}
		content, name, err = handler.Resolve(path[idx+3:])
	} else if r.defaultRes != nil {
		content, name, err = r.defaultRes.Resolve(path)
	} else {
		return nil, fmt.Errorf("no default resolver configured, cannot resolve %q", path)
	}
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = path
	}

	s := &Source{Content: content, Name: name, ID: uint32(len(r.byID))}
	r.byID = append(r.byID, s)
	r.byPath[path] = s
	return s, nil
}

// FileResolver is the default ProtocolHandler: it searches IncludePaths for
// path, trying the extensions "hexpat" and "pat" in order when path has
// none.
type FileResolver struct {
	IncludePaths []string
}

func NewFileResolver(includePaths []string) *FileResolver {
	return &FileResolver{IncludePaths: includePaths}
}

var defaultPatternExtensions = []string{"hexpat", "pat"}

func (f *FileResolver) Resolve(path string) (string, string, error) {
	candidates := f.candidatePaths(path)

	var tried []string
	for _, candidate := range candidates {
		content, err := os.ReadFile(candidate)
		if err == nil {
			return string(content), candidate, nil
		}
		tried = append(tried, candidate)
	}
	return "", "", fmt.Errorf("could not resolve %q, tried: %s", path, strings.Join(tried, ", "))
}

func (f *FileResolver) candidatePaths(path string) []string {
	bases := []string{path}
	if !filepath.IsAbs(path) {
		for _, inc := range f.IncludePaths {
			bases = append(bases, filepath.Join(inc, path))
		}
	}

	var out []string
	for _, b := range bases {
		if filepath.Ext(b) != "" {
			out = append(out, b)
			continue
		}
		for _, ext := range defaultPatternExtensions {
			out = append(out, b+"."+ext)
		}
	}
	return out
}
