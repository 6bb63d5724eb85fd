package patternlang

import "fmt"

// Well-known section ids.
const (
	MainSectionID          uint32 = 0 // the input data; read-only, backed by the DataSource
	HeapSectionID          uint32 = 1 // scratch; function locals; growable vector-of-vectors
	PatternLocalSectionID  uint32 = 2 // pattern-local variables, never exposed as addressed memory
	InstantiationSectionID uint32 = 3 // ephemeral, for sizeof/typenameof without materialization
	firstUserSectionID     uint32 = 4
)

// instantiationSectionSize bounds how large a single sizeof/typenameof
// materialization can be; generous enough for any realistic type.
const instantiationSectionSize uint64 = 1 << 32

// ChunkAttribute describes one run of a section as either mapped to real
// storage or an unmapped gap, for `read_chunk_attributes`.
type ChunkAttribute struct {
	Offset uint64
	Length uint64
	Mapped bool
}

// ReadChunkFunc receives successive slices of the bytes a Read call
// produces; returning an error aborts the read.
type ReadChunkFunc func(chunk []byte) *EvalError

// WriteChunkFunc is asked to fill buf with up to len(buf) bytes to write,
// returning how many it filled; it is called repeatedly until the
// requested length is satisfied.
type WriteChunkFunc func(buf []byte) (int, *EvalError)

// Section is a byte-addressable region identified by its id.
// Every implementation goes through the bounds checks in SectionBase before
// touching its own storage.
type Section interface {
	ID() uint32
	Size() uint64
	Resize(newSize uint64) *EvalError
	Read(offset, length uint64, cb ReadChunkFunc) *EvalError
	Write(expand bool, offset, length uint64, cb WriteChunkFunc) *EvalError
	ReadChunkAttributes(offset, length uint64, cb func(ChunkAttribute)) bool
}

// defaultChunkSize bounds how much of a read/write is buffered in one
// round-trip through a ReadChunkFunc/WriteChunkFunc, applied uniformly so
// every section streams the same way regardless of backend.
const defaultChunkSize = 4096

// SectionBase centralizes the bounds checks every concrete section needs:
// refuse out-of-range reads, refuse writes past end unless expand is set and
// resize succeeds.
type SectionBase struct {
	id uint32
}

func (b SectionBase) ID() uint32 { return b.id }

func (b SectionBase) checkRead(size, offset, length uint64) *EvalError {
	if offset+length > size {
		return ErrMemory(EmptySpan, fmt.Sprintf("read [%d, %d) out of bounds (size %d)", offset, offset+length, size))
	}
	return nil
}

// ---- EmptySection ----

type EmptySection struct{ SectionBase }

func NewEmptySection(id uint32) *EmptySection { return &EmptySection{SectionBase{id}} }

func (s *EmptySection) Size() uint64 { return 0 }
func (s *EmptySection) Resize(uint64) *EvalError {
	return ErrMemory(EmptySpan, "empty section cannot be resized")
}
func (s *EmptySection) Read(offset, length uint64, cb ReadChunkFunc) *EvalError {
	if length == 0 {
		return nil
	}
	return ErrMemory(EmptySpan, "empty section refuses reads")
}
func (s *EmptySection) Write(expand bool, offset, length uint64, cb WriteChunkFunc) *EvalError {
	return ErrMemory(EmptySpan, "empty section refuses writes")
}
func (s *EmptySection) ReadChunkAttributes(offset, length uint64, cb func(ChunkAttribute)) bool {
	return length == 0
}

// ---- ZerosSection ----

// ZerosSection has a fixed logical size and always reads as zeros; writes
// are refused.
type ZerosSection struct {
	SectionBase
	size uint64
}

func NewZerosSection(id uint32, size uint64) *ZerosSection {
	return &ZerosSection{SectionBase{id}, size}
}

func (s *ZerosSection) Size() uint64 { return s.size }
func (s *ZerosSection) Resize(n uint64) *EvalError {
	s.size = n
	return nil
}
func (s *ZerosSection) Read(offset, length uint64, cb ReadChunkFunc) *EvalError {
	if err := s.checkRead(s.size, offset, length); err != nil {
		return err
	}
	zeros := make([]byte, defaultChunkSize)
	for remaining := length; remaining > 0; {
		n := remaining
		if n > defaultChunkSize {
			n = defaultChunkSize
		}
		if err := cb(zeros[:n]); err != nil {
			return err
		}
		remaining -= n
	}
	return nil
}
func (s *ZerosSection) Write(expand bool, offset, length uint64, cb WriteChunkFunc) *EvalError {
	return ErrMemory(EmptySpan, "zeros section refuses writes")
}
func (s *ZerosSection) ReadChunkAttributes(offset, length uint64, cb func(ChunkAttribute)) bool {
	if offset+length > s.size {
		return false
	}
	cb(ChunkAttribute{Offset: offset, Length: length, Mapped: true})
	return true
}

// ---- InMemorySection ----

// InMemorySection is a bounded growable vector; Resize fails past MaxSize
// (0 meaning unbounded).
type InMemorySection struct {
	SectionBase
	data    []byte
	MaxSize uint64
}

func NewInMemorySection(id uint32, initial []byte, maxSize uint64) *InMemorySection {
	return &InMemorySection{SectionBase: SectionBase{id}, data: initial, MaxSize: maxSize}
}

func (s *InMemorySection) Size() uint64 { return uint64(len(s.data)) }

func (s *InMemorySection) Resize(n uint64) *EvalError {
	if s.MaxSize != 0 && n > s.MaxSize {
		return ErrMemory(EmptySpan, fmt.Sprintf("resize to %d exceeds max size %d", n, s.MaxSize))
	}
	if n <= uint64(len(s.data)) {
		s.data = s.data[:n]
		return nil
	}
	grown := make([]byte, n)
	copy(grown, s.data)
	s.data = grown
	return nil
}

func (s *InMemorySection) Read(offset, length uint64, cb ReadChunkFunc) *EvalError {
	if err := s.checkRead(uint64(len(s.data)), offset, length); err != nil {
		return err
	}
	buf := s.data[offset : offset+length]
	for len(buf) > 0 {
		n := len(buf)
		if n > defaultChunkSize {
			n = defaultChunkSize
		}
		if err := cb(buf[:n]); err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

func (s *InMemorySection) Write(expand bool, offset, length uint64, cb WriteChunkFunc) *EvalError {
	end := offset + length
	if end > uint64(len(s.data)) {
		if !expand {
			return ErrMemory(EmptySpan, fmt.Sprintf("write [%d,%d) past end (size %d) without expand", offset, end, len(s.data)))
		}
		if err := s.Resize(end); err != nil {
			return err
		}
	}
	remaining := s.data[offset:end]
	for len(remaining) > 0 {
		n, err := cb(remaining)
		if err != nil {
			return err
		}
		if n <= 0 {
			return ErrMemory(EmptySpan, "write callback made no progress")
		}
		remaining = remaining[n:]
	}
	return nil
}

func (s *InMemorySection) ReadChunkAttributes(offset, length uint64, cb func(ChunkAttribute)) bool {
	if offset+length > uint64(len(s.data)) {
		return false
	}
	cb(ChunkAttribute{Offset: offset, Length: length, Mapped: true})
	return true
}

// ---- DataSourceSection ----

// DataSourceReader/Writer are the host-provided callbacks a
// DataSourceSection streams its reads and writes through.
type DataSourceReader func(offset uint64, buf []byte) (int, error)
type DataSourceWriter func(offset uint64, buf []byte) (int, error)

// DataSourceSection wraps external reader/writer callbacks with a bounded
// scratch buffer; it refuses reentrant access (a single in-flight access
// flag) and refuses resize.
type DataSourceSection struct {
	SectionBase
	size     uint64
	reader   DataSourceReader
	writer   DataSourceWriter
	inFlight bool
}

func NewDataSourceSection(id uint32, size uint64, reader DataSourceReader, writer DataSourceWriter) *DataSourceSection {
	return &DataSourceSection{SectionBase: SectionBase{id}, size: size, reader: reader, writer: writer}
}

func (s *DataSourceSection) Size() uint64 { return s.size }
func (s *DataSourceSection) Resize(uint64) *EvalError {
	return ErrMemory(EmptySpan, "data source section refuses resize")
}

func (s *DataSourceSection) enter() *EvalError {
	if s.inFlight {
		return ErrMemory(EmptySpan, "reentrant access to data source section")
	}
	s.inFlight = true
	return nil
}
func (s *DataSourceSection) leave() { s.inFlight = false }

func (s *DataSourceSection) Read(offset, length uint64, cb ReadChunkFunc) *EvalError {
	if err := s.checkRead(s.size, offset, length); err != nil {
		return err
	}
	if s.reader == nil {
		return ErrMemory(EmptySpan, "data source section has no reader")
	}
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()

	buf := make([]byte, defaultChunkSize)
	for remaining := length; remaining > 0; {
		n := remaining
		if n > defaultChunkSize {
			n = defaultChunkSize
		}
		read, ioErr := s.reader(offset, buf[:n])
		if ioErr != nil {
			return ErrMemory(EmptySpan, fmt.Sprintf("data source read error: %s", ioErr))
		}
		if err := cb(buf[:read]); err != nil {
			return err
		}
		offset += uint64(read)
		remaining -= uint64(read)
		if uint64(read) == 0 {
			return ErrMemory(EmptySpan, "data source reader made no progress")
		}
	}
	return nil
}

func (s *DataSourceSection) Write(expand bool, offset, length uint64, cb WriteChunkFunc) *EvalError {
	if expand {
		return ErrMemory(EmptySpan, "data source section cannot expand")
	}
	if err := s.checkRead(s.size, offset, length); err != nil {
		return err
	}
	if s.writer == nil {
		return ErrMemory(EmptySpan, "data source section has no writer")
	}
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()

	buf := make([]byte, defaultChunkSize)
	for remaining := length; remaining > 0; {
		n := remaining
		if n > defaultChunkSize {
			n = defaultChunkSize
		}
		filled, err := cb(buf[:n])
		if err != nil {
			return err
		}
		written, ioErr := s.writer(offset, buf[:filled])
		if ioErr != nil {
			return ErrMemory(EmptySpan, fmt.Sprintf("data source write error: %s", ioErr))
		}
		offset += uint64(written)
		remaining -= uint64(written)
	}
	return nil
}

func (s *DataSourceSection) ReadChunkAttributes(offset, length uint64, cb func(ChunkAttribute)) bool {
	if offset+length > s.size {
		return false
	}
	cb(ChunkAttribute{Offset: offset, Length: length, Mapped: true})
	return true
}

// ---- ViewSection ----

type viewSpan struct {
	offset  uint64 // offset within this view
	section uint32
	base    uint64 // offset within the target section
	size    uint64
}

// ViewSection composes spans of other sections into one addressable range;
// gaps between spans are unmapped. Like DataSourceSection it refuses
// reentrant access.
type ViewSection struct {
	SectionBase
	spans    []viewSpan // kept sorted by offset
	resolve  func(id uint32) (Section, bool)
	inFlight bool
}

func NewViewSection(id uint32, resolve func(id uint32) (Section, bool)) *ViewSection {
	return &ViewSection{SectionBase: SectionBase{id}, resolve: resolve}
}

// Map adds a span translating [offset, offset+size) in this view to
// [base, base+size) of the given backing section.
func (s *ViewSection) Map(offset uint64, sectionID uint32, base, size uint64) {
	sp := viewSpan{offset: offset, section: sectionID, base: base, size: size}
	i := 0
	for i < len(s.spans) && s.spans[i].offset < offset {
		i++
	}
	s.spans = append(s.spans, viewSpan{})
	copy(s.spans[i+1:], s.spans[i:])
	s.spans[i] = sp
}

func (s *ViewSection) Size() uint64 {
	if len(s.spans) == 0 {
		return 0
	}
	last := s.spans[len(s.spans)-1]
	return last.offset + last.size
}

func (s *ViewSection) Resize(uint64) *EvalError {
	return ErrMemory(EmptySpan, "view section cannot be resized directly; map additional spans instead")
}

func (s *ViewSection) findSpan(offset uint64) (viewSpan, bool) {
	for _, sp := range s.spans {
		if offset >= sp.offset && offset < sp.offset+sp.size {
			return sp, true
		}
	}
	return viewSpan{}, false
}

func (s *ViewSection) enter() *EvalError {
	if s.inFlight {
		return ErrMemory(EmptySpan, "reentrant access to view section")
	}
	s.inFlight = true
	return nil
}
func (s *ViewSection) leave() { s.inFlight = false }

func (s *ViewSection) Read(offset, length uint64, cb ReadChunkFunc) *EvalError {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()

	end := offset + length
	for offset < end {
		sp, ok := s.findSpan(offset)
		if !ok {
			return ErrMemory(EmptySpan, fmt.Sprintf("view has an unmapped gap at offset %d", offset)).
				WithHint("nearest mapped spans: " + s.describeSpans())
		}
		avail := sp.offset + sp.size - offset
		take := end - offset
		if take > avail {
			take = avail
		}
		backing, ok := s.resolve(sp.section)
		if !ok {
			return ErrMemory(EmptySpan, fmt.Sprintf("view references unknown section %d", sp.section))
		}
		backingOffset := sp.base + (offset - sp.offset)
		if err := backing.Read(backingOffset, take, cb); err != nil {
			return err
		}
		offset += take
	}
	return nil
}

func (s *ViewSection) Write(expand bool, offset, length uint64, cb WriteChunkFunc) *EvalError {
	if expand {
		return ErrMemory(EmptySpan, "view section cannot expand")
	}
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()

	end := offset + length
	for offset < end {
		sp, ok := s.findSpan(offset)
		if !ok {
			return ErrMemory(EmptySpan, fmt.Sprintf("view has an unmapped gap at offset %d", offset)).
				WithHint("nearest mapped spans: " + s.describeSpans())
		}
		avail := sp.offset + sp.size - offset
		take := end - offset
		if take > avail {
			take = avail
		}
		backing, ok := s.resolve(sp.section)
		if !ok {
			return ErrMemory(EmptySpan, fmt.Sprintf("view references unknown section %d", sp.section))
		}
		backingOffset := sp.base + (offset - sp.offset)
		if err := backing.Write(false, backingOffset, take, cb); err != nil {
			return err
		}
		offset += take
	}
	return nil
}

func (s *ViewSection) ReadChunkAttributes(offset, length uint64, cb func(ChunkAttribute)) bool {
	end := offset + length
	ok := true
	for offset < end {
		sp, found := s.findSpan(offset)
		if !found {
			cb(ChunkAttribute{Offset: offset, Length: 1, Mapped: false})
			offset++
			ok = false
			continue
		}
		avail := sp.offset + sp.size - offset
		take := end - offset
		if take > avail {
			take = avail
		}
		cb(ChunkAttribute{Offset: offset, Length: take, Mapped: true})
		offset += take
	}
	return ok
}

func (s *ViewSection) describeSpans() string {
	out := ""
	for i, sp := range s.spans {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("[%d,%d)->section %d", sp.offset, sp.offset+sp.size, sp.section)
	}
	return out
}

// ---- SectionRegistry ----

// SectionRegistry owns every section a runtime knows about, seeded with the
// four well-known ids.
type SectionRegistry struct {
	sections map[uint32]Section
	nextID   uint32
}

func NewSectionRegistry(mainData []byte) *SectionRegistry {
	r := &SectionRegistry{sections: map[uint32]Section{}, nextID: firstUserSectionID}
	r.sections[MainSectionID] = NewInMemorySection(MainSectionID, mainData, uint64(len(mainData)))
	r.sections[HeapSectionID] = NewInMemorySection(HeapSectionID, nil, 0)
	r.sections[PatternLocalSectionID] = NewInMemorySection(PatternLocalSectionID, nil, 0)
	// sizeof/typenameof materialize a type's fields to measure them without
	// real input bytes backing the read; a ZerosSection answers any read
	// with zeros instead of refusing length>0 like an empty section would.
	r.sections[InstantiationSectionID] = NewZerosSection(InstantiationSectionID, instantiationSectionSize)
	return r
}

func (r *SectionRegistry) Get(id uint32) (Section, bool) {
	s, ok := r.sections[id]
	return s, ok
}

func (r *SectionRegistry) Register(s Section) uint32 {
	id := s.ID()
	r.sections[id] = s
	return id
}

// NewID allocates a fresh section id for a dynamically created section (a
// named `in section` target, or a sub-runtime's heap).
func (r *SectionRegistry) NewID() uint32 {
	id := r.nextID
	r.nextID++
	return id
}

func (r *SectionRegistry) Resolve(id uint32) (Section, bool) { return r.Get(id) }
