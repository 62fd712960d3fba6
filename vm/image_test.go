package vm

import (
	"bytes"
	"reflect"
	"testing"
)

func buildImageTestChunk() *Chunk {
	inner := NewChunk("helper")
	inner.Arity = 1
	inner.LocalCount = 1
	inner.UpvalueSpecs = []UpvalueSpec{{IsLocal: true, Index: 0}}
	ib := NewBuilder(inner)
	ib.EmitU8(OpLoadLocal, 0)
	ib.Emit(OpReturn)

	root := NewChunk("main")
	root.LocalCount = 2
	b := NewBuilder(root)
	b.SetSpan(SourceSpan{Line: 1, Column: 1, Length: 2})
	b.EmitConst(IntValue(42))
	b.EmitConst(StrValue("hello"))
	b.EmitConst(FloatValue(2.5))
	b.EmitConst(BoolValue(true))
	b.EmitConst(Unit)
	idx := root.AddConstant(ChunkValue(inner))
	b.EmitU16(OpMakeClosure, idx)
	b.Emit(OpReturn)
	return root
}

func TestImageRoundTrip(t *testing.T) {
	chunk := buildImageTestChunk()
	meta := ImageMetadata{
		ModuleName: "main",
		SourceHash: HashSource("let x = 42"),
		Timestamp:  1700000000,
		Deps:       []string{"lib.fsx"},
		Exports:    []string{"x"},
	}

	data, err := NewImageWriter().WriteImage(chunk, meta)
	if err != nil {
		t.Fatalf("WriteImage: %v", err)
	}
	loaded, loadedMeta, err := NewImageReader(data).ReadImage()
	if err != nil {
		t.Fatalf("ReadImage: %v", err)
	}

	if !bytes.Equal(loaded.Code, chunk.Code) {
		t.Errorf("code differs after round trip")
	}
	if len(loaded.Constants) != len(chunk.Constants) {
		t.Fatalf("constant count = %d, want %d", len(loaded.Constants), len(chunk.Constants))
	}
	for i, c := range chunk.Constants {
		got := loaded.Constants[i]
		if c.Kind == KindChunk {
			if !bytes.Equal(got.Chunk.Code, c.Chunk.Code) ||
				got.Chunk.Arity != c.Chunk.Arity ||
				!reflect.DeepEqual(got.Chunk.UpvalueSpecs, c.Chunk.UpvalueSpecs) {
				t.Errorf("nested chunk differs after round trip")
			}
			continue
		}
		if !ValuesEqual(got, c) {
			t.Errorf("constant %d = %v, want %v", i, got, c)
		}
	}
	if loaded.Arity != chunk.Arity || loaded.LocalCount != chunk.LocalCount {
		t.Errorf("frame metadata differs: arity %d/%d locals %d/%d",
			loaded.Arity, chunk.Arity, loaded.LocalCount, chunk.LocalCount)
	}
	if !reflect.DeepEqual(loaded.Spans, chunk.Spans) {
		t.Errorf("debug spans differ after round trip")
	}
	if loadedMeta.ModuleName != "main" || loadedMeta.SourceHash != meta.SourceHash {
		t.Errorf("metadata differs after round trip")
	}
	if len(loadedMeta.Deps) != 1 || loadedMeta.Deps[0] != "lib.fsx" {
		t.Errorf("deps differ after round trip: %v", loadedMeta.Deps)
	}
}

func TestImageRejectsBadMagic(t *testing.T) {
	data, _ := NewImageWriter().WriteImage(buildImageTestChunk(), ImageMetadata{ModuleName: "m"})
	data[0] = 'X'
	if _, _, err := NewImageReader(data).ReadImage(); err == nil {
		t.Error("bad magic accepted")
	}
}

func TestImageRejectsBadVersion(t *testing.T) {
	data, _ := NewImageWriter().WriteImage(buildImageTestChunk(), ImageMetadata{ModuleName: "m"})
	data[4] = 99
	if _, _, err := NewImageReader(data).ReadImage(); err == nil {
		t.Error("unsupported version accepted")
	}
}

func TestImageRejectsTruncation(t *testing.T) {
	data, _ := NewImageWriter().WriteImage(buildImageTestChunk(), ImageMetadata{ModuleName: "m"})
	if _, _, err := NewImageReader(data[:len(data)-4]).ReadImage(); err == nil {
		t.Error("truncated image accepted")
	}
}

func TestValidateRejectsJumpOutsideCode(t *testing.T) {
	chunk := NewChunk("bad")
	b := NewBuilder(chunk)
	b.Emit(OpNop)
	chunk.Code = append(chunk.Code, byte(OpJump), 0x7F, 0x7F) // far forward
	if err := ValidateChunk(chunk); err == nil {
		t.Error("jump outside code section accepted")
	}
}

func TestValidateRejectsConstantIndexOutOfRange(t *testing.T) {
	chunk := NewChunk("bad")
	chunk.Code = []byte{byte(OpLoadConst), 0x05, 0x00}
	if err := ValidateChunk(chunk); err == nil {
		t.Error("constant index out of range accepted")
	}
}

func TestValidateRejectsUnknownOpcode(t *testing.T) {
	chunk := NewChunk("bad")
	chunk.Code = []byte{0xEE}
	if err := ValidateChunk(chunk); err == nil {
		t.Error("unknown opcode accepted")
	}
}
