package vm

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestChunkCachePutGet(t *testing.T) {
	cache, err := OpenChunkCache(filepath.Join(t.TempDir(), "chunks.db"))
	if err != nil {
		t.Fatalf("OpenChunkCache: %v", err)
	}
	defer cache.Close()

	chunk := NewChunk("cached")
	b := NewBuilder(chunk)
	b.EmitConst(IntValue(7))
	b.Emit(OpReturn)

	hash := HashSource("let x = 7")
	meta := ImageMetadata{ModuleName: "cached", SourceHash: hash}
	if err := cache.Put("/tmp/x.fsx", hash, chunk, meta); err != nil {
		t.Fatalf("Put: %v", err)
	}

	loaded, loadedMeta := cache.Get(hash)
	if loaded == nil {
		t.Fatal("Get missed after Put")
	}
	if !bytes.Equal(loaded.Code, chunk.Code) {
		t.Errorf("cached code differs")
	}
	if loadedMeta.ModuleName != "cached" {
		t.Errorf("cached metadata differs: %q", loadedMeta.ModuleName)
	}
}

func TestChunkCacheMiss(t *testing.T) {
	cache, err := OpenChunkCache(filepath.Join(t.TempDir(), "chunks.db"))
	if err != nil {
		t.Fatalf("OpenChunkCache: %v", err)
	}
	defer cache.Close()

	if chunk, _ := cache.Get(HashSource("never stored")); chunk != nil {
		t.Error("Get hit on empty cache")
	}
}

func TestChunkCacheOverwrite(t *testing.T) {
	cache, err := OpenChunkCache(filepath.Join(t.TempDir(), "chunks.db"))
	if err != nil {
		t.Fatalf("OpenChunkCache: %v", err)
	}
	defer cache.Close()

	hash := HashSource("same source")
	first := NewChunk("first")
	NewBuilder(first).EmitConst(IntValue(1))
	second := NewChunk("second")
	NewBuilder(second).EmitConst(IntValue(2))

	if err := cache.Put("a.fsx", hash, first, ImageMetadata{ModuleName: "first", SourceHash: hash}); err != nil {
		t.Fatal(err)
	}
	if err := cache.Put("a.fsx", hash, second, ImageMetadata{ModuleName: "second", SourceHash: hash}); err != nil {
		t.Fatal(err)
	}
	_, meta := cache.Get(hash)
	if meta == nil || meta.ModuleName != "second" {
		t.Errorf("overwrite not applied: %v", meta)
	}
}
