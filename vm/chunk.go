package vm

// ---------------------------------------------------------------------------
// SourceSpan: source location for error reporting and debug info
// ---------------------------------------------------------------------------

// SourceSpan locates a region of source text. Line and Column are 1-based;
// a zero Line means the span is unknown.
type SourceSpan struct {
	Line   uint32
	Column uint32
	Offset uint32
	Length uint32
}

// IsKnown reports whether the span carries real location info.
func (s SourceSpan) IsKnown() bool { return s.Line > 0 }

// ---------------------------------------------------------------------------
// UpvalueSpec: static description of one closure capture
// ---------------------------------------------------------------------------

// UpvalueSpec tells MakeClosure where an upvalue comes from: a local slot of
// the enclosing frame (IsLocal) or the enclosing closure's own upvalue list.
type UpvalueSpec struct {
	IsLocal bool
	Index   uint8
}

// ---------------------------------------------------------------------------
// Chunk: one compiled function
// ---------------------------------------------------------------------------

// Chunk is the compiled form of a single function or top-level program:
// an instruction stream, a constant pool, and frame metadata.
type Chunk struct {
	Code      []byte
	Constants []Value
	// Spans is parallel to instruction start offsets; empty without debug info.
	Spans        []InstrSpan
	Name         string
	SourceFile   string
	Arity        int
	LocalCount   int
	UpvalueSpecs []UpvalueSpec
}

// InstrSpan attaches a source span to the instruction starting at Offset.
type InstrSpan struct {
	Offset uint32
	Span   SourceSpan
}

// NewChunk creates an empty chunk with the given name.
func NewChunk(name string) *Chunk {
	return &Chunk{Name: name}
}

// AddConstant appends a value to the constant pool, deduplicating scalars
// and strings by value and nested chunks by identity. Returns the index.
func (c *Chunk) AddConstant(v Value) uint16 {
	for i, existing := range c.Constants {
		if existing.Kind != v.Kind {
			continue
		}
		switch v.Kind {
		case KindInt, KindBool:
			if existing.Int == v.Int {
				return uint16(i)
			}
		case KindFloat:
			if existing.Float == v.Float {
				return uint16(i)
			}
		case KindStr:
			if existing.Str == v.Str {
				return uint16(i)
			}
		case KindUnit:
			return uint16(i)
		case KindChunk:
			if existing.Chunk == v.Chunk {
				return uint16(i)
			}
		}
	}
	c.Constants = append(c.Constants, v)
	return uint16(len(c.Constants) - 1)
}

// SpanAt returns the span covering the instruction at the given code
// offset, or a zero span if no debug info matches.
func (c *Chunk) SpanAt(offset int) SourceSpan {
	var best SourceSpan
	for _, is := range c.Spans {
		if int(is.Offset) > offset {
			break
		}
		best = is.Span
	}
	return best
}
