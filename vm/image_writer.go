package vm

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Image format constants
// ---------------------------------------------------------------------------

// ImageMagic identifies a Fusabi bytecode file.
var ImageMagic = [4]byte{'F', 'Z', 'B', 0x01}

// ImageVersion is the current .fzb format version.
const ImageVersion uint8 = 1

// Image flags
const (
	ImageFlagNone      uint32 = 0
	ImageFlagDebugInfo uint32 = 1 << 0
	ImageFlagSourceMap uint32 = 1 << 2
)

// Constant pool tags
const (
	constTagInt         uint8 = 0
	constTagBool        uint8 = 1
	constTagString      uint8 = 2
	constTagSymbol      uint8 = 3
	constTagNestedChunk uint8 = 4
	constTagFloat       uint8 = 5
	constTagUnit        uint8 = 6
)

// ImageMetadata is the CBOR-encoded metadata block of a .fzb file. Arity
// and LocalCount describe the root chunk's frame.
type ImageMetadata struct {
	ModuleName string   `cbor:"module_name"`
	SourceHash [32]byte `cbor:"source_hash"`
	Timestamp  int64    `cbor:"timestamp"`
	Deps       []string `cbor:"deps"`
	Exports    []string `cbor:"exports"`
	Arity      int      `cbor:"arity"`
	LocalCount int      `cbor:"local_count"`
}

// cborEncMode uses canonical encoding so equal metadata always produces
// identical bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// HashSource computes the metadata source hash for a compilation unit.
func HashSource(source string) [32]byte {
	return sha256.Sum256([]byte(source))
}

// ---------------------------------------------------------------------------
// ImageWriter: serializes a compiled chunk to the .fzb binary format
// ---------------------------------------------------------------------------

// ImageWriter serializes a root chunk plus metadata into a .fzb image.
type ImageWriter struct {
	buf   bytes.Buffer
	flags uint32
}

// NewImageWriter creates an image writer.
func NewImageWriter() *ImageWriter {
	return &ImageWriter{}
}

// WriteImage serializes the chunk with its metadata and returns the bytes.
func (w *ImageWriter) WriteImage(chunk *Chunk, meta ImageMetadata) ([]byte, error) {
	w.buf.Reset()
	w.flags = ImageFlagNone
	if hasDebugInfo(chunk) {
		w.flags |= ImageFlagDebugInfo
	}

	w.buf.Write(ImageMagic[:])
	w.buf.WriteByte(ImageVersion)
	w.writeU32(w.flags)

	meta.Arity = chunk.Arity
	meta.LocalCount = chunk.LocalCount
	metaBytes, err := cborEncMode.Marshal(&meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	w.writeU32(uint32(len(metaBytes)))
	w.buf.Write(metaBytes)

	if err := w.writeChunkBody(chunk); err != nil {
		return nil, err
	}
	return bytes.Clone(w.buf.Bytes()), nil
}

// WriteImageFile serializes the chunk and writes it to path.
func (w *ImageWriter) WriteImageFile(path string, chunk *Chunk, meta ImageMetadata) error {
	data, err := w.WriteImage(chunk, meta)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func hasDebugInfo(chunk *Chunk) bool {
	if len(chunk.Spans) > 0 {
		return true
	}
	for _, c := range chunk.Constants {
		if c.Kind == KindChunk && hasDebugInfo(c.Chunk) {
			return true
		}
	}
	return false
}

// writeChunkBody writes constant pool, code and debug info for one chunk.
// Nested chunks recurse with their frame metadata prefixed.
func (w *ImageWriter) writeChunkBody(chunk *Chunk) error {
	w.writeU32(uint32(len(chunk.Constants)))
	for _, c := range chunk.Constants {
		if err := w.writeConstant(c); err != nil {
			return err
		}
	}

	w.writeU32(uint32(len(chunk.Code)))
	w.buf.Write(chunk.Code)

	if w.flags&ImageFlagDebugInfo != 0 && len(chunk.Spans) > 0 {
		var debug bytes.Buffer
		writeU32To(&debug, uint32(len(chunk.Spans)))
		for _, is := range chunk.Spans {
			writeU32To(&debug, is.Offset)
			writeU32To(&debug, is.Span.Line)
			writeU32To(&debug, is.Span.Column)
			writeU32To(&debug, is.Span.Offset)
			writeU32To(&debug, is.Span.Length)
		}
		w.writeU32(uint32(debug.Len()))
		w.buf.Write(debug.Bytes())
	} else {
		w.writeU32(0)
	}
	return nil
}

func (w *ImageWriter) writeConstant(c Value) error {
	switch c.Kind {
	case KindInt:
		w.buf.WriteByte(constTagInt)
		w.writeU64(uint64(c.Int))
	case KindBool:
		w.buf.WriteByte(constTagBool)
		if c.Bool() {
			w.buf.WriteByte(1)
		} else {
			w.buf.WriteByte(0)
		}
	case KindStr:
		w.buf.WriteByte(constTagString)
		w.writeU32(uint32(len(c.Str)))
		w.buf.WriteString(c.Str)
	case KindFloat:
		w.buf.WriteByte(constTagFloat)
		w.writeU64(math.Float64bits(c.Float))
	case KindUnit:
		w.buf.WriteByte(constTagUnit)
	case KindChunk:
		w.buf.WriteByte(constTagNestedChunk)
		return w.writeNestedChunk(c.Chunk)
	default:
		return fmt.Errorf("constant pool cannot hold a %s", c.Kind)
	}
	return nil
}

func (w *ImageWriter) writeNestedChunk(chunk *Chunk) error {
	w.writeString(chunk.Name)
	w.writeU32(uint32(chunk.Arity))
	w.writeU32(uint32(chunk.LocalCount))
	w.buf.WriteByte(uint8(len(chunk.UpvalueSpecs)))
	for _, spec := range chunk.UpvalueSpecs {
		if spec.IsLocal {
			w.buf.WriteByte(1)
		} else {
			w.buf.WriteByte(0)
		}
		w.buf.WriteByte(spec.Index)
	}
	return w.writeChunkBody(chunk)
}

func (w *ImageWriter) writeString(s string) {
	w.writeU32(uint32(len(s)))
	w.buf.WriteString(s)
}

func (w *ImageWriter) writeU32(v uint32) { writeU32To(&w.buf, v) }

func (w *ImageWriter) writeU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func writeU32To(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
