package patternlang

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// Location is a single point within a source: its source id plus a
// human-readable line/column and a byte cursor for slicing.
type Location struct {
	SourceID uint32
	Line     int32
	Column   int32
	Cursor   int32
}

// Span is a half-open range of Locations within a single source.
type Span struct {
	Start Location
	End   Location
}

// EmptySpan is returned by nodes synthesized without source text (builtin
// registrations, implicit conversions).
var EmptySpan = Span{}

func NewSpan(start, end Location) Span {
	return Span{Start: start, End: end}
}

func (s Span) String() string {
	if s.Start.Line == s.End.Line {
		if s.Start.Column == s.End.Column {
			return fmt.Sprintf("%d:%d", s.Start.Line, s.Start.Column)
		}
		return fmt.Sprintf("%d:%d..%d", s.Start.Line, s.Start.Column, s.End.Column)
	}
	return fmt.Sprintf("%d:%d..%d:%d", s.Start.Line, s.Start.Column, s.End.Line, s.End.Column)
}

// Join returns the smallest span covering both a and b. Both must belong to
// the same source; callers at AST/pattern boundaries only ever join spans
// they themselves produced.
func (s Span) Join(o Span) Span {
	start, end := s.Start, o.End
	if o.Start.Cursor < s.Start.Cursor {
		start = o.Start
	}
	if s.End.Cursor > o.End.Cursor {
		end = s.End
	}
	return Span{Start: start, End: end}
}

// LineIndex allows fast conversion from byte cursor offsets to line/column.
//
// It stores the start byte offset of each line (0-based). Given a cursor, it
// finds the line by binary searching line starts (O(log lines)) and computes
// the column as runes since lineStart + 1.
type LineIndex struct {
	sourceID  uint32
	input     []byte
	lineStart []int32
}

func NewLineIndex(sourceID uint32, input []byte) *LineIndex {
	lineStart := make([]int32, 1, 64)
	lineStart[0] = 0
	for i, b := range input {
		if b == '\n' {
			lineStart = append(lineStart, int32(i+1))
		}
	}
	return &LineIndex{sourceID: sourceID, input: input, lineStart: lineStart}
}

func (li *LineIndex) LocationAt(cursor int32) Location {
	if cursor < 0 {
		cursor = 0
	}
	if int(cursor) > len(li.input) {
		cursor = int32(len(li.input))
	}

	lineIdx := sort.Search(len(li.lineStart), func(i int) bool {
		return li.lineStart[i] > cursor
	}) - 1
	if lineIdx < 0 {
		lineIdx = 0
	}

	lineStart := li.lineStart[lineIdx]
	col := int32(utf8.RuneCount(li.input[lineStart:cursor])) + 1

	return Location{
		SourceID: li.sourceID,
		Line:     int32(lineIdx + 1),
		Column:   col,
		Cursor:   cursor,
	}
}

func (li *LineIndex) Span(start, end int32) Span {
	return Span{Start: li.LocationAt(start), End: li.LocationAt(end)}
}

// LineText returns the full text of the line containing cursor, without its
// trailing newline. Used by diagnostics rendering.
func (li *LineIndex) LineText(line int32) string {
	idx := int(line) - 1
	if idx < 0 || idx >= len(li.lineStart) {
		return ""
	}
	start := li.lineStart[idx]
	end := int32(len(li.input))
	if idx+1 < len(li.lineStart) {
		end = li.lineStart[idx+1] - 1
	}
	if end < start {
		end = start
	}
	return string(li.input[start:end])
}
