package vm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// ImageReader: deserializes and validates a .fzb bytecode file
// ---------------------------------------------------------------------------

// ImageReader parses a .fzb image back into a chunk, validating the
// structure before anything is handed to a VM.
type ImageReader struct {
	data  []byte
	pos   int
	flags uint32
}

// NewImageReader creates a reader over raw image bytes.
func NewImageReader(data []byte) *ImageReader {
	return &ImageReader{data: data}
}

// ReadImageFile loads and validates a .fzb file from disk.
func ReadImageFile(path string) (*Chunk, *ImageMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read image %s: %w", path, err)
	}
	return NewImageReader(data).ReadImage()
}

// ReadImage parses the image and returns the root chunk and metadata.
func (r *ImageReader) ReadImage() (*Chunk, *ImageMetadata, error) {
	magic, err := r.readBytes(4)
	if err != nil {
		return nil, nil, err
	}
	if !bytes.Equal(magic, ImageMagic[:]) {
		return nil, nil, fmt.Errorf("not a Fusabi bytecode file (bad magic %x)", magic)
	}

	version, err := r.readU8()
	if err != nil {
		return nil, nil, err
	}
	if version != ImageVersion {
		return nil, nil, fmt.Errorf("unsupported bytecode version %d (expected %d)", version, ImageVersion)
	}

	r.flags, err = r.readU32()
	if err != nil {
		return nil, nil, err
	}

	metaLen, err := r.readU32()
	if err != nil {
		return nil, nil, err
	}
	metaBytes, err := r.readBytes(int(metaLen))
	if err != nil {
		return nil, nil, err
	}
	var meta ImageMetadata
	if err := cbor.Unmarshal(metaBytes, &meta); err != nil {
		return nil, nil, fmt.Errorf("decode metadata: %w", err)
	}

	chunk := NewChunk(meta.ModuleName)
	chunk.Arity = meta.Arity
	chunk.LocalCount = meta.LocalCount
	if err := r.readChunkBody(chunk); err != nil {
		return nil, nil, err
	}
	if r.pos != len(r.data) {
		return nil, nil, fmt.Errorf("trailing garbage: %d bytes past end of image", len(r.data)-r.pos)
	}
	if err := ValidateChunk(chunk); err != nil {
		return nil, nil, err
	}
	return chunk, &meta, nil
}

func (r *ImageReader) readChunkBody(chunk *Chunk) error {
	constCount, err := r.readU32()
	if err != nil {
		return err
	}
	chunk.Constants = make([]Value, 0, constCount)
	for i := uint32(0); i < constCount; i++ {
		c, err := r.readConstant()
		if err != nil {
			return err
		}
		chunk.Constants = append(chunk.Constants, c)
	}

	codeLen, err := r.readU32()
	if err != nil {
		return err
	}
	code, err := r.readBytes(int(codeLen))
	if err != nil {
		return err
	}
	chunk.Code = bytes.Clone(code)

	debugLen, err := r.readU32()
	if err != nil {
		return err
	}
	if debugLen > 0 {
		end := r.pos + int(debugLen)
		spanCount, err := r.readU32()
		if err != nil {
			return err
		}
		chunk.Spans = make([]InstrSpan, 0, spanCount)
		for i := uint32(0); i < spanCount; i++ {
			vals := make([]uint32, 5)
			for j := range vals {
				vals[j], err = r.readU32()
				if err != nil {
					return err
				}
			}
			chunk.Spans = append(chunk.Spans, InstrSpan{
				Offset: vals[0],
				Span:   SourceSpan{Line: vals[1], Column: vals[2], Offset: vals[3], Length: vals[4]},
			})
		}
		if r.pos != end {
			return fmt.Errorf("debug section length mismatch")
		}
	}
	return nil
}

func (r *ImageReader) readConstant() (Value, error) {
	tag, err := r.readU8()
	if err != nil {
		return Unit, err
	}
	switch tag {
	case constTagInt:
		v, err := r.readU64()
		if err != nil {
			return Unit, err
		}
		return IntValue(int64(v)), nil
	case constTagBool:
		b, err := r.readU8()
		if err != nil {
			return Unit, err
		}
		return BoolValue(b != 0), nil
	case constTagString, constTagSymbol:
		s, err := r.readString()
		if err != nil {
			return Unit, err
		}
		return StrValue(s), nil
	case constTagFloat:
		v, err := r.readU64()
		if err != nil {
			return Unit, err
		}
		return FloatValue(math.Float64frombits(v)), nil
	case constTagUnit:
		return Unit, nil
	case constTagNestedChunk:
		chunk, err := r.readNestedChunk()
		if err != nil {
			return Unit, err
		}
		return ChunkValue(chunk), nil
	default:
		return Unit, fmt.Errorf("unknown constant tag %d", tag)
	}
}

func (r *ImageReader) readNestedChunk() (*Chunk, error) {
	name, err := r.readString()
	if err != nil {
		return nil, err
	}
	arity, err := r.readU32()
	if err != nil {
		return nil, err
	}
	localCount, err := r.readU32()
	if err != nil {
		return nil, err
	}
	upvalCount, err := r.readU8()
	if err != nil {
		return nil, err
	}

	chunk := NewChunk(name)
	chunk.Arity = int(arity)
	chunk.LocalCount = int(localCount)
	chunk.UpvalueSpecs = make([]UpvalueSpec, 0, upvalCount)
	for i := uint8(0); i < upvalCount; i++ {
		isLocal, err := r.readU8()
		if err != nil {
			return nil, err
		}
		index, err := r.readU8()
		if err != nil {
			return nil, err
		}
		chunk.UpvalueSpecs = append(chunk.UpvalueSpecs, UpvalueSpec{IsLocal: isLocal != 0, Index: index})
	}
	if err := r.readChunkBody(chunk); err != nil {
		return nil, err
	}
	return chunk, nil
}

// ---------------------------------------------------------------------------
// Low-level reads
// ---------------------------------------------------------------------------

func (r *ImageReader) readBytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, fmt.Errorf("truncated image: need %d bytes at offset %d", n, r.pos)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *ImageReader) readU8() (uint8, error) {
	b, err := r.readBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *ImageReader) readU32() (uint32, error) {
	b, err := r.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *ImageReader) readU64() (uint64, error) {
	b, err := r.readBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *ImageReader) readString() (string, error) {
	n, err := r.readU32()
	if err != nil {
		return "", err
	}
	b, err := r.readBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// ValidateChunk checks structural integrity before execution: instruction
// decoding, jump targets and constant indices. Recurses into nested chunks.
func ValidateChunk(chunk *Chunk) error {
	reader := NewReader(chunk.Code)
	starts := make(map[int]bool)

	for reader.HasMore() {
		pos := reader.Position()
		starts[pos] = true
		op := reader.ReadOpcode()
		info := op.Info()
		if _, known := opcodeTable[op]; !known {
			return fmt.Errorf("%s: unknown opcode 0x%02X at %d", chunk.Name, byte(op), pos)
		}
		if reader.Position()+info.OperandBytes > len(chunk.Code) {
			return fmt.Errorf("%s: truncated operand at %d", chunk.Name, pos)
		}
		switch op {
		case OpJump, OpJumpIfFalse:
			offset := reader.ReadI16()
			target := reader.Position() + int(offset)
			if target < 0 || target > len(chunk.Code) {
				return fmt.Errorf("%s: jump at %d targets %d outside code", chunk.Name, pos, target)
			}
		case OpLoadConst, OpLoadGlobal, OpStoreGlobal, OpGetField, OpMatchTag, OpMatchLit, OpMakeClosure:
			idx := reader.ReadU16()
			if int(idx) >= len(chunk.Constants) {
				return fmt.Errorf("%s: constant index %d out of range at %d", chunk.Name, idx, pos)
			}
		default:
			reader.Skip(info.OperandBytes)
		}
	}

	for _, c := range chunk.Constants {
		if c.Kind == KindChunk {
			if len(c.Chunk.UpvalueSpecs) > 255 {
				return fmt.Errorf("%s: too many upvalue specs", c.Chunk.Name)
			}
			if err := ValidateChunk(c.Chunk); err != nil {
				return err
			}
		}
	}
	return nil
}
