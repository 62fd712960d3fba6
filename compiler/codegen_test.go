package compiler

import (
	"strconv"
	"testing"

	"github.com/fusabi-lang/fusabi/vm"
)

func compileSource(t *testing.T, source string) *Result {
	t.Helper()
	session := NewSession(Options{})
	result, err := session.Compile(source)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	return result
}

func TestCompileProducesValidChunk(t *testing.T) {
	result := compileSource(t, "let add x y = x + y in add 1 2")
	if err := vm.ValidateChunk(result.Chunk); err != nil {
		t.Errorf("emitted chunk fails validation: %v", err)
	}
}

func TestCompileLambdaEmitsNestedChunk(t *testing.T) {
	result := compileSource(t, "fun x -> x")
	found := false
	for _, c := range result.Chunk.Constants {
		if c.Kind == vm.KindChunk {
			found = true
			if c.Chunk.Arity != 1 {
				t.Errorf("lambda arity = %d, want 1", c.Chunk.Arity)
			}
		}
	}
	if !found {
		t.Error("no nested chunk for lambda")
	}
}

func TestCompileClosureUpvalueSpecs(t *testing.T) {
	// The inner lambda captures x from the enclosing lambda.
	result := compileSource(t, "fun x -> fun y -> x + y")
	var outer *vm.Chunk
	for _, c := range result.Chunk.Constants {
		if c.Kind == vm.KindChunk {
			outer = c.Chunk
		}
	}
	if outer == nil {
		t.Fatal("no outer lambda chunk")
	}
	var inner *vm.Chunk
	for _, c := range outer.Constants {
		if c.Kind == vm.KindChunk {
			inner = c.Chunk
		}
	}
	if inner == nil {
		t.Fatal("no inner lambda chunk")
	}
	if len(inner.UpvalueSpecs) != 1 {
		t.Fatalf("upvalue specs = %d, want 1", len(inner.UpvalueSpecs))
	}
	if !inner.UpvalueSpecs[0].IsLocal || inner.UpvalueSpecs[0].Index != 0 {
		t.Errorf("spec = %+v, want local capture of slot 0", inner.UpvalueSpecs[0])
	}
}

func TestCompileNonExhaustiveMatchWarns(t *testing.T) {
	result := compileSource(t, "match 1 with | 2 -> 0")
	if len(result.Warnings) == 0 {
		t.Error("no warning for non-exhaustive match")
	}
}

func TestCompileExhaustiveMatchDoesNotWarn(t *testing.T) {
	sources := []string{
		"match 1 with | 2 -> 0 | _ -> 1",
		"match true with | true -> 1 | false -> 0",
		"match [1] with | [] -> 0 | x :: rest -> x",
		"match Some 1 with | Some x -> x | None -> 0",
	}
	for _, source := range sources {
		result := compileSource(t, source)
		if len(result.Warnings) != 0 {
			t.Errorf("unexpected warning for %q: %v", source, result.Warnings[0].Msg)
		}
	}
}

func TestStrictExhaustivenessRefusesBytecode(t *testing.T) {
	session := NewSession(Options{StrictExhaustiveness: true})
	if _, err := session.Compile("match 1 with | 2 -> 0"); err == nil {
		t.Error("strict mode emitted bytecode for non-exhaustive match")
	}
}

func TestCompileDebugInfoSpans(t *testing.T) {
	session := NewSession(Options{Debug: true, SourceFile: "test.fsx"})
	result, err := session.Compile("1 + 2")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if len(result.Chunk.Spans) == 0 {
		t.Error("no spans recorded with debug info enabled")
	}
}

func TestCompileWithoutDebugInfoOmitsSpans(t *testing.T) {
	result := compileSource(t, "1 + 2")
	if len(result.Chunk.Spans) != 0 {
		t.Errorf("spans recorded without debug info: %d", len(result.Chunk.Spans))
	}
}

func TestCompileTooManyLocalsFails(t *testing.T) {
	// 300 nested lets exceed the 8-bit slot space of one frame.
	source := ""
	for i := 0; i < 300; i++ {
		source += "let x" + strconv.Itoa(i) + " = 1 in "
	}
	source += "0"
	session := NewSession(Options{})
	if _, err := session.Compile(source); err == nil {
		t.Error("no error for too many locals")
	}
}
