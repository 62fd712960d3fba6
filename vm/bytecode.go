package vm

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack and constant operations
const (
	OpNop          Opcode = 0x00 // no operation
	OpLoadConst    Opcode = 0x01 // push constants[k] (16-bit index)
	OpLoadLocal    Opcode = 0x02 // push locals[k] (8-bit slot)
	OpStoreLocal   Opcode = 0x03 // pop into locals[k]
	OpLoadUpvalue  Opcode = 0x04 // push upvalue[k]
	OpStoreUpvalue Opcode = 0x05 // pop into upvalue[k]
	OpPop          Opcode = 0x06 // discard top of stack
	OpDup          Opcode = 0x07 // duplicate top of stack
	OpLoadGlobal   Opcode = 0x08 // push global named by constants[k] (16-bit index)
	OpStoreGlobal  Opcode = 0x09 // pop into global named by constants[k]
)

// Arithmetic
const (
	OpAdd Opcode = 0x10 // two ints or two floats; two strings concatenate
	OpSub Opcode = 0x11
	OpMul Opcode = 0x12
	OpDiv Opcode = 0x13
	OpMod Opcode = 0x14 // integer modulo
)

// Comparisons and boolean operations
const (
	OpEq  Opcode = 0x20
	OpNeq Opcode = 0x21
	OpLt  Opcode = 0x22
	OpLte Opcode = 0x23
	OpGt  Opcode = 0x24
	OpGte Opcode = 0x25
	OpAnd Opcode = 0x26
	OpOr  Opcode = 0x27
	OpNot Opcode = 0x28
)

// Control flow
const (
	OpJump        Opcode = 0x30 // ip += offset (signed 16-bit)
	OpJumpIfFalse Opcode = 0x31 // pop Bool; if false, ip += offset
	OpCall        Opcode = 0x32 // call callee with n args (8-bit)
	OpReturn      Opcode = 0x33 // pop frame, push result
	OpTailCall    Opcode = 0x34 // reuse current frame for call
)

// Aggregate construction and access
const (
	OpMakeTuple   Opcode = 0x40 // pop n, push Tuple (8-bit)
	OpMakeList    Opcode = 0x41 // pop n, push List (16-bit)
	OpCons        Opcode = 0x42 // pop tail, head; push cons cell
	OpMakeArray   Opcode = 0x43 // pop n, push Array (16-bit)
	OpMakeRecord  Opcode = 0x44 // pop n name/value pairs, push Record (8-bit)
	OpMakeVariant Opcode = 0x45 // pop n fields + variant/type names, push Variant (8-bit)
	OpGetField    Opcode = 0x46 // push field constants[k] of record (16-bit)
	OpArrayGet    Opcode = 0x47 // pop index, array; push element
	OpHead        Opcode = 0x48 // pop list; push head
	OpArraySet    Opcode = 0x49 // pop value, index, array; mutate; push unit
	OpArrayLength Opcode = 0x4A // pop array; push length
	OpTail        Opcode = 0x4B // pop list; push tail
	OpIsNil       Opcode = 0x4C // pop list; push Bool
)

// Pattern matching
const (
	OpMatchTag  Opcode = 0x50 // pop value; test variant tag constants[k]; push Bool
	OpMatchLit  Opcode = 0x51 // pop value; test equality with constants[k]; push Bool
	OpBindLocal Opcode = 0x52 // copy top into locals[k] without popping (8-bit)
	OpDestruct  Opcode = 0x53 // pop aggregate; push its n fields in order (8-bit)
)

// Closures and upvalues
const (
	OpMakeClosure    Opcode = 0x60 // build Closure from chunk at constants[k] (16-bit)
	OpCaptureUpvalue Opcode = 0x61 // (is_local, index) append upvalue to closure on top
	OpCloseUpvalue   Opcode = 0x62 // close open upvalues at frame slot >= k (16-bit)
)

// Opcodes 0x80-0xFF are reserved.

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string
	OperandBytes int
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop:          {"NOP", 0},
	OpLoadConst:    {"LOAD_CONST", 2},
	OpLoadLocal:    {"LOAD_LOCAL", 1},
	OpStoreLocal:   {"STORE_LOCAL", 1},
	OpLoadUpvalue:  {"LOAD_UPVALUE", 1},
	OpStoreUpvalue: {"STORE_UPVALUE", 1},
	OpPop:          {"POP", 0},
	OpDup:          {"DUP", 0},
	OpLoadGlobal:   {"LOAD_GLOBAL", 2},
	OpStoreGlobal:  {"STORE_GLOBAL", 2},

	OpAdd: {"ADD", 0},
	OpSub: {"SUB", 0},
	OpMul: {"MUL", 0},
	OpDiv: {"DIV", 0},
	OpMod: {"MOD", 0},

	OpEq:  {"EQ", 0},
	OpNeq: {"NEQ", 0},
	OpLt:  {"LT", 0},
	OpLte: {"LTE", 0},
	OpGt:  {"GT", 0},
	OpGte: {"GTE", 0},
	OpAnd: {"AND", 0},
	OpOr:  {"OR", 0},
	OpNot: {"NOT", 0},

	OpJump:        {"JUMP", 2},
	OpJumpIfFalse: {"JUMP_IF_FALSE", 2},
	OpCall:        {"CALL", 1},
	OpReturn:      {"RETURN", 0},
	OpTailCall:    {"TAIL_CALL", 1},

	OpMakeTuple:   {"MAKE_TUPLE", 1},
	OpMakeList:    {"MAKE_LIST", 2},
	OpCons:        {"CONS", 0},
	OpMakeArray:   {"MAKE_ARRAY", 2},
	OpMakeRecord:  {"MAKE_RECORD", 1},
	OpMakeVariant: {"MAKE_VARIANT", 1},
	OpGetField:    {"GET_FIELD", 2},
	OpArrayGet:    {"ARRAY_GET", 0},
	OpArraySet:    {"ARRAY_SET", 0},
	OpArrayLength: {"ARRAY_LENGTH", 0},
	OpHead:        {"HEAD", 0},
	OpTail:        {"TAIL", 0},
	OpIsNil:       {"IS_NIL", 0},

	OpMatchTag:  {"MATCH_TAG", 2},
	OpMatchLit:  {"MATCH_LIT", 2},
	OpBindLocal: {"BIND_LOCAL", 1},
	OpDestruct:  {"DESTRUCT", 1},

	OpMakeClosure:    {"MAKE_CLOSURE", 2},
	OpCaptureUpvalue: {"CAPTURE_UPVALUE", 2},
	OpCloseUpvalue:   {"CLOSE_UPVALUE", 2},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// String implements the Stringer interface.
func (op Opcode) String() string { return op.Info().Name }

// ---------------------------------------------------------------------------
// Builder: helper for constructing chunk code
// ---------------------------------------------------------------------------

// Builder appends encoded instructions to a chunk, tracking spans and
// patching forward jumps.
type Builder struct {
	chunk *Chunk
	span  SourceSpan
}

// NewBuilder creates a builder targeting the given chunk.
func NewBuilder(chunk *Chunk) *Builder {
	return &Builder{chunk: chunk}
}

// Chunk returns the chunk under construction.
func (b *Builder) Chunk() *Chunk { return b.chunk }

// Len returns the current code length.
func (b *Builder) Len() int { return len(b.chunk.Code) }

// SetSpan records the span attached to subsequently emitted instructions.
func (b *Builder) SetSpan(span SourceSpan) {
	if span.IsKnown() {
		b.span = span
	}
}

func (b *Builder) recordSpan() {
	if !b.span.IsKnown() {
		return
	}
	off := uint32(len(b.chunk.Code))
	n := len(b.chunk.Spans)
	if n > 0 && b.chunk.Spans[n-1].Offset == off {
		b.chunk.Spans[n-1].Span = b.span
		return
	}
	b.chunk.Spans = append(b.chunk.Spans, InstrSpan{Offset: off, Span: b.span})
}

// Emit appends an opcode with no operands.
func (b *Builder) Emit(op Opcode) {
	b.recordSpan()
	b.chunk.Code = append(b.chunk.Code, byte(op))
}

// EmitU8 appends an opcode with a single byte operand.
func (b *Builder) EmitU8(op Opcode, operand uint8) {
	b.recordSpan()
	b.chunk.Code = append(b.chunk.Code, byte(op), operand)
}

// EmitU8U8 appends an opcode with two byte operands.
func (b *Builder) EmitU8U8(op Opcode, a, c uint8) {
	b.recordSpan()
	b.chunk.Code = append(b.chunk.Code, byte(op), a, c)
}

// EmitU16 appends an opcode with a 16-bit operand (little-endian).
func (b *Builder) EmitU16(op Opcode, operand uint16) {
	b.recordSpan()
	b.chunk.Code = append(b.chunk.Code, byte(op), byte(operand), byte(operand>>8))
}

// EmitConst adds v to the constant pool and emits LOAD_CONST.
func (b *Builder) EmitConst(v Value) {
	b.EmitU16(OpLoadConst, b.chunk.AddConstant(v))
}

// EmitJump appends a jump with a placeholder offset and returns the
// position to patch.
func (b *Builder) EmitJump(op Opcode) int {
	b.recordSpan()
	b.chunk.Code = append(b.chunk.Code, byte(op), 0xFF, 0xFF)
	return len(b.chunk.Code) - 2
}

// PatchJump resolves a forward jump to land at the current position.
// The offset is relative to the instruction following the operand.
func (b *Builder) PatchJump(pos int) error {
	offset := len(b.chunk.Code) - (pos + 2)
	if offset > 32767 || offset < -32768 {
		return fmt.Errorf("jump offset %d out of range", offset)
	}
	binary.LittleEndian.PutUint16(b.chunk.Code[pos:], uint16(int16(offset)))
	return nil
}

// EmitLoop appends a backward jump to an absolute target position.
func (b *Builder) EmitLoop(target int) error {
	b.recordSpan()
	b.chunk.Code = append(b.chunk.Code, byte(OpJump))
	offset := target - (len(b.chunk.Code) + 2)
	if offset > 32767 || offset < -32768 {
		return fmt.Errorf("loop offset %d out of range", offset)
	}
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], uint16(int16(offset)))
	b.chunk.Code = append(b.chunk.Code, buf[:]...)
	return nil
}

// ---------------------------------------------------------------------------
// Reader: decodes an instruction stream
// ---------------------------------------------------------------------------

// Reader reads chunk code for interpretation or disassembly.
type Reader struct {
	code []byte
	pos  int
}

// NewReader creates a reader over the given code.
func NewReader(code []byte) *Reader {
	return &Reader{code: code}
}

// Position returns the current read position.
func (r *Reader) Position() int { return r.pos }

// HasMore reports whether bytes remain.
func (r *Reader) HasMore() bool { return r.pos < len(r.code) }

// ReadOpcode reads the next opcode.
func (r *Reader) ReadOpcode() Opcode {
	op := Opcode(r.code[r.pos])
	r.pos++
	return op
}

// ReadU8 reads a single byte operand.
func (r *Reader) ReadU8() uint8 {
	v := r.code[r.pos]
	r.pos++
	return v
}

// ReadU16 reads a 16-bit operand (little-endian).
func (r *Reader) ReadU16() uint16 {
	v := binary.LittleEndian.Uint16(r.code[r.pos:])
	r.pos += 2
	return v
}

// ReadI16 reads a signed 16-bit operand (little-endian).
func (r *Reader) ReadI16() int16 { return int16(r.ReadU16()) }

// Skip advances the position by n bytes.
func (r *Reader) Skip(n int) { r.pos += n }

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction renders one instruction at the reader's position
// and advances past it.
func DisassembleInstruction(r *Reader, chunk *Chunk) string {
	pos := r.Position()
	op := r.ReadOpcode()
	info := op.Info()

	switch info.OperandBytes {
	case 0:
		return fmt.Sprintf("%04d  %s", pos, info.Name)
	case 1:
		operand := r.ReadU8()
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, operand)
	case 2:
		switch op {
		case OpJump, OpJumpIfFalse:
			offset := r.ReadI16()
			return fmt.Sprintf("%04d  %s %d (-> %04d)", pos, info.Name, offset, r.Position()+int(offset))
		case OpCaptureUpvalue:
			isLocal := r.ReadU8()
			index := r.ReadU8()
			return fmt.Sprintf("%04d  %s is_local=%d index=%d", pos, info.Name, isLocal, index)
		case OpLoadConst, OpLoadGlobal, OpStoreGlobal, OpGetField, OpMatchTag, OpMatchLit, OpMakeClosure:
			idx := r.ReadU16()
			if chunk != nil && int(idx) < len(chunk.Constants) {
				return fmt.Sprintf("%04d  %s %d (%s)", pos, info.Name, idx, chunk.Constants[idx])
			}
			return fmt.Sprintf("%04d  %s %d", pos, info.Name, idx)
		default:
			operand := r.ReadU16()
			return fmt.Sprintf("%04d  %s %d", pos, info.Name, operand)
		}
	default:
		r.Skip(info.OperandBytes)
		return fmt.Sprintf("%04d  %s", pos, info.Name)
	}
}

// Disassemble returns a full disassembly of a chunk's code, recursing into
// nested chunks in the constant pool.
func Disassemble(chunk *Chunk) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "== %s (arity %d, locals %d) ==\n", chunk.Name, chunk.Arity, chunk.LocalCount)
	r := NewReader(chunk.Code)
	for r.HasMore() {
		sb.WriteString(DisassembleInstruction(r, chunk))
		sb.WriteByte('\n')
	}
	for _, c := range chunk.Constants {
		if c.Kind == KindChunk {
			sb.WriteByte('\n')
			sb.WriteString(Disassemble(c.Chunk))
		}
	}
	return sb.String()
}
