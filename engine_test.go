package fusabi

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fusabi-lang/fusabi/vm"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func evalInt(t *testing.T, engine *Engine, source string) int64 {
	t.Helper()
	result, err := engine.Eval(source)
	if err != nil {
		t.Fatalf("Eval(%q): %v", source, err)
	}
	if result.Kind != vm.KindInt {
		t.Fatalf("Eval(%q) = %v (%s), want int", source, result, result.Kind)
	}
	return result.Int
}

// ---------------------------------------------------------------------------
// End-to-end evaluation
// ---------------------------------------------------------------------------

func TestEvalCurriedApplication(t *testing.T) {
	engine := newTestEngine(t)
	if got := evalInt(t, engine, "let add x y = x + y in add 10 5"); got != 15 {
		t.Errorf("result = %d, want 15", got)
	}
}

func TestEvalRecursiveFactorial(t *testing.T) {
	engine := newTestEngine(t)
	source := "let rec fact n = if n <= 1 then 1 else n * fact (n - 1) in fact 5"
	if got := evalInt(t, engine, source); got != 120 {
		t.Errorf("result = %d, want 120", got)
	}
}

func TestEvalTuplePatternMatch(t *testing.T) {
	engine := newTestEngine(t)
	source := "let pair = (1, 2) in match pair with | (x, y) -> x + y"
	if got := evalInt(t, engine, source); got != 3 {
		t.Errorf("result = %d, want 3", got)
	}
}

func TestEvalListRecursion(t *testing.T) {
	engine := newTestEngine(t)
	source := "let rec len xs = match xs with | [] -> 0 | _ :: ys -> 1 + len ys in len [1;2;3;4;5]"
	if got := evalInt(t, engine, source); got != 5 {
		t.Errorf("result = %d, want 5", got)
	}
}

func TestEvalRecordUpdate(t *testing.T) {
	engine := newTestEngine(t)
	source := `let p = { name = "Alice"; age = 30 } in { p with age = 31 }.age`
	if got := evalInt(t, engine, source); got != 31 {
		t.Errorf("result = %d, want 31", got)
	}
}

func TestEvalRecordUpdateDoesNotMutateOriginal(t *testing.T) {
	engine := newTestEngine(t)
	source := `let p = { name = "Alice"; age = 30 } in
let q = { p with age = 31 } in
p.age`
	if got := evalInt(t, engine, source); got != 30 {
		t.Errorf("original record mutated: age = %d, want 30", got)
	}
}

func TestEvalUserVariantMatch(t *testing.T) {
	engine := newTestEngine(t)
	source := "type Opt = Some of int | None in match Some 42 with | Some x -> x | None -> 0"
	if got := evalInt(t, engine, source); got != 42 {
		t.Errorf("result = %d, want 42", got)
	}
}

func TestEvalLetPolymorphism(t *testing.T) {
	engine := newTestEngine(t)
	result, err := engine.Eval("let id x = x in (id 1, id true)")
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if result.Kind != vm.KindTuple || len(result.Tuple) != 2 {
		t.Fatalf("result = %v, want a pair", result)
	}
	if result.Tuple[0].Int != 1 || !result.Tuple[1].Bool() {
		t.Errorf("result = %v, want (1, true)", result)
	}
}

func TestEvalTypeMismatchIsCompileTime(t *testing.T) {
	engine := newTestEngine(t)
	_, err := engine.Eval("1 + true")
	if err == nil {
		t.Fatal("no error for 1 + true")
	}
	if !strings.Contains(err.Error(), "type mismatch") {
		t.Errorf("err = %v, want type mismatch", err)
	}
}

func TestEvalRunawayRecursionOverflows(t *testing.T) {
	config := DefaultConfig()
	config.MaxStackDepth = 128
	engine, err := NewEngine(config)
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	_, err = engine.Eval("let rec f x = f x in f 0")
	var vmErr *vm.VmError
	if !errors.As(err, &vmErr) || vmErr.Kind != vm.ErrStackOverflow {
		t.Errorf("err = %v, want StackOverflow", err)
	}
}

func TestEvalMatchFailureAtRuntime(t *testing.T) {
	engine := newTestEngine(t)
	_, err := engine.Eval("match 1 with | 2 -> 0")
	var vmErr *vm.VmError
	if !errors.As(err, &vmErr) || vmErr.Kind != vm.ErrMatchFailure {
		t.Errorf("err = %v, want MatchFailure", err)
	}
}

func TestEvalGuards(t *testing.T) {
	engine := newTestEngine(t)
	source := "let classify n = match n with | x when x < 0 -> -1 | 0 -> 0 | _ -> 1 in classify 5"
	if got := evalInt(t, engine, source); got != 1 {
		t.Errorf("result = %d, want 1", got)
	}
}

func TestEvalPipelinesAndStdlib(t *testing.T) {
	engine := newTestEngine(t)
	if got := evalInt(t, engine, "[1; 2; 3] |> List.length"); got != 3 {
		t.Errorf("result = %d, want 3", got)
	}
}

func TestEvalListReverseTwiceIsIdentity(t *testing.T) {
	engine := newTestEngine(t)
	result, err := engine.Eval("List.reverse (List.reverse [1; 2; 3])")
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	elems := vm.ListToSlice(result)
	if len(elems) != 3 || elems[0].Int != 1 || elems[2].Int != 3 {
		t.Errorf("result = %v, want [1; 2; 3]", result)
	}
}

func TestEvalOptionDefaultValue(t *testing.T) {
	engine := newTestEngine(t)
	if got := evalInt(t, engine, "Option.defaultValue 7 (Some 3)"); got != 3 {
		t.Errorf("Some case = %d, want 3", got)
	}
	if got := evalInt(t, engine, "Option.defaultValue 7 None"); got != 7 {
		t.Errorf("None case = %d, want 7", got)
	}
}

func TestEvalArrayMutation(t *testing.T) {
	engine := newTestEngine(t)
	source := "let a = [| 1; 2; 3 |] in\nlet u = a.[1] <- 20 in\na.[1]"
	if got := evalInt(t, engine, source); got != 20 {
		t.Errorf("result = %d, want 20", got)
	}
}

func TestEvalModulesAndOpen(t *testing.T) {
	engine := newTestEngine(t)
	source := "module Math =\n  let add x y = x + y\n\nlet viaQualified = Math.add 2 3"
	if got := evalInt(t, engine, source); got != 5 {
		t.Errorf("qualified call = %d, want 5", got)
	}
	if got := evalInt(t, engine, "open Math\nadd 4 5"); got != 9 {
		t.Errorf("open call = %d, want 9", got)
	}
}

// ---------------------------------------------------------------------------
// Session accumulation and shadowing
// ---------------------------------------------------------------------------

func TestReplAccumulatesEnvironment(t *testing.T) {
	engine := newTestEngine(t)
	if _, err := engine.Eval("let x = 10"); err != nil {
		t.Fatalf("first line: %v", err)
	}
	if got := evalInt(t, engine, "x + 5"); got != 15 {
		t.Errorf("result = %d, want 15", got)
	}
}

func TestShadowingKeepsEarlierClosuresView(t *testing.T) {
	engine := newTestEngine(t)
	if _, err := engine.Eval("let base = 10"); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Eval("let get () = base"); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Eval("let base = 99"); err != nil {
		t.Fatal(err)
	}
	// The closure compiled before the shadowing still reads the old slot.
	if got := evalInt(t, engine, "get ()"); got != 10 {
		t.Errorf("closure view = %d, want 10", got)
	}
	// New code reads the new binding.
	if got := evalInt(t, engine, "base"); got != 99 {
		t.Errorf("current binding = %d, want 99", got)
	}
}

// ---------------------------------------------------------------------------
// Host functions
// ---------------------------------------------------------------------------

func TestRegisterHostFunction(t *testing.T) {
	engine := newTestEngine(t)
	engine.Register("Host.triple", 1, func(machine *vm.VM, args []vm.Value) (vm.Value, *vm.VmError) {
		return vm.IntValue(args[0].Int * 3), nil
	})
	if got := evalInt(t, engine, "Host.triple 7"); got != 21 {
		t.Errorf("result = %d, want 21", got)
	}
}

func TestCallTopLevelBinding(t *testing.T) {
	engine := newTestEngine(t)
	if _, err := engine.Eval("let add x y = x + y"); err != nil {
		t.Fatal(err)
	}
	result, err := engine.Call("add", vm.IntValue(2), vm.IntValue(3))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Int != 5 {
		t.Errorf("result = %v, want 5", result)
	}
}

func TestHostErrorSurfaces(t *testing.T) {
	engine := newTestEngine(t)
	engine.Register("Host.fail", 1, func(machine *vm.VM, args []vm.Value) (vm.Value, *vm.VmError) {
		return vm.Unit, vm.HostError("boom")
	})
	_, err := engine.Eval("Host.fail ()")
	var vmErr *vm.VmError
	if !errors.As(err, &vmErr) || vmErr.Kind != vm.ErrHost {
		t.Errorf("err = %v, want Host error", err)
	}
}

// ---------------------------------------------------------------------------
// Async end to end
// ---------------------------------------------------------------------------

func TestAsyncComputationExpression(t *testing.T) {
	engine := newTestEngine(t)
	source := "Async.RunSynchronously (async { let! x = Async.Return 20\n return x + 1 })"
	if got := evalInt(t, engine, source); got != 21 {
		t.Errorf("result = %d, want 21", got)
	}
}

func TestAsyncStartAndJoin(t *testing.T) {
	engine := newTestEngine(t)
	source := "Async.RunSynchronously (Async.start (async { return 42 }))"
	if got := evalInt(t, engine, source); got != 42 {
		t.Errorf("result = %d, want 42", got)
	}
}

func TestAsyncParallelPair(t *testing.T) {
	engine := newTestEngine(t)
	source := "let t1 = Async.start (async { return 1 }) in\n" +
		"let t2 = Async.start (async { return 2 }) in\n" +
		"Async.RunSynchronously (Async.parallel2 t1 t2)"
	result, err := engine.Eval(source)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if result.Kind != vm.KindTuple || result.Tuple[0].Int != 1 || result.Tuple[1].Int != 2 {
		t.Errorf("result = %v, want (1, 2)", result)
	}
}

func TestAsyncCatchReifiesFailure(t *testing.T) {
	engine := newTestEngine(t)
	engine.Register("Host.failAsync", 1, func(machine *vm.VM, args []vm.Value) (vm.Value, *vm.VmError) {
		async := machine.Async()
		id := async.Spawn(func(ctx context.Context) (vm.Value, *vm.VmError) {
			return vm.Unit, vm.HostError("network down")
		})
		return vm.AsyncValue(id), nil
	})
	source := "Async.RunSynchronously (Async.catch (Host.failAsync ()))"
	result, err := engine.Eval(source)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if result.Kind != vm.KindVariant || result.Variant.VariantName != "Error" {
		t.Fatalf("result = %v, want Error variant", result)
	}
}

// ---------------------------------------------------------------------------
// Bytecode files
// ---------------------------------------------------------------------------

func TestGrindAndExecRoundTrip(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "prog.fsx")
	fzbPath := filepath.Join(dir, "prog.fzb")
	source := "let rec fib n = if n < 2 then n else fib (n - 1) + fib (n - 2) in fib 10"
	if err := os.WriteFile(srcPath, []byte(source), 0o644); err != nil {
		t.Fatal(err)
	}

	grinder := newTestEngine(t)
	if err := grinder.Grind(srcPath, fzbPath); err != nil {
		t.Fatalf("Grind: %v", err)
	}

	runner := newTestEngine(t)
	result, err := runner.ExecFile(fzbPath)
	if err != nil {
		t.Fatalf("ExecFile: %v", err)
	}
	if result.Int != 55 {
		t.Errorf("fib 10 = %v, want 55", result)
	}
}

func TestEvalFileWithLoadDirectives(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lib.fsx"), []byte("let libValue = 40"), 0o644); err != nil {
		t.Fatal(err)
	}
	mainPath := filepath.Join(dir, "main.fsx")
	if err := os.WriteFile(mainPath, []byte("#load \"lib.fsx\"\nlibValue + 2"), 0o644); err != nil {
		t.Fatal(err)
	}

	engine := newTestEngine(t)
	result, err := engine.EvalFile(mainPath)
	if err != nil {
		t.Fatalf("EvalFile: %v", err)
	}
	if result.Int != 42 {
		t.Errorf("result = %v, want 42", result)
	}
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

func TestValueConversionsRoundTrip(t *testing.T) {
	converted, err := ToValue(map[string]interface{}{
		"name":  "Ada",
		"count": 3,
		"tags":  []interface{}{"x", "y"},
	})
	if err != nil {
		t.Fatalf("ToValue: %v", err)
	}
	if converted.Kind != vm.KindRecord {
		t.Fatalf("converted = %v, want record", converted)
	}

	back, err := FromValue(converted)
	if err != nil {
		t.Fatalf("FromValue: %v", err)
	}
	record, ok := back.(map[string]interface{})
	if !ok || record["name"] != "Ada" || record["count"] != int64(3) {
		t.Errorf("round trip = %#v", back)
	}

	tagged, err := FromValue(vm.SomeValue(vm.IntValue(1)))
	if err != nil {
		t.Fatalf("FromValue variant: %v", err)
	}
	if tg, ok := tagged.(Tagged); !ok || tg.TypeName != "Option" || tg.VariantName != "Some" {
		t.Errorf("tagged = %#v", tagged)
	}
}
