package compiler

import (
	"fmt"

	"github.com/fusabi-lang/fusabi/vm"
)

// ---------------------------------------------------------------------------
// Codegen: compile typed AST to bytecode chunks
// ---------------------------------------------------------------------------

// CompileError reports a failure during code generation.
type CompileError struct {
	Pos Position
	Msg string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// Warning is a non-fatal diagnostic, e.g. a non-exhaustive match.
type Warning struct {
	Pos Position
	Msg string
}

// matchFailureFn is the hidden host function raised when no arm matches.
const matchFailureFn = "Internal.matchFailure"

// Codegen holds cross-function compilation state.
type Codegen struct {
	defs       *TypeDefs
	exprTypes  map[Expr]Type
	inf        *Inferencer
	errors     []*CompileError
	warnings   []Warning
	debug      bool
	sourceFile string

	// globals known at compile time: stdlib natives, previously compiled
	// top-level bindings and module members.
	knownGlobals map[string]bool
	// globalAliases maps a stable binding name to its current runtime slot
	// (top-level shadowing binds fresh slots).
	globalAliases map[string]string
	// opens is the stack of module prefixes brought in by `open`.
	opens []string
	// modulePrefix is non-empty while compiling inside a module.
	modulePrefix string
}

// NewCodegen creates a code generator using the inference results.
func NewCodegen(inf *Inferencer, knownGlobals map[string]bool, aliases map[string]string, debug bool, sourceFile string) *Codegen {
	if knownGlobals == nil {
		knownGlobals = make(map[string]bool)
	}
	if aliases == nil {
		aliases = make(map[string]string)
	}
	return &Codegen{
		defs:          inf.defs,
		exprTypes:     inf.ExprTypes,
		inf:           inf,
		debug:         debug,
		sourceFile:    sourceFile,
		knownGlobals:  knownGlobals,
		globalAliases: aliases,
	}
}

// Errors returns accumulated compile errors.
func (cg *Codegen) Errors() []*CompileError { return cg.errors }

// Warnings returns accumulated warnings.
func (cg *Codegen) Warnings() []Warning { return cg.warnings }

func (cg *Codegen) errorf(pos Position, format string, args ...interface{}) {
	cg.errors = append(cg.errors, &CompileError{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

func (cg *Codegen) warnf(pos Position, format string, args ...interface{}) {
	cg.warnings = append(cg.warnings, Warning{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

// resolvedType returns the resolved inferred type of an expression.
func (cg *Codegen) resolvedType(e Expr) Type {
	if t, ok := cg.exprTypes[e]; ok {
		return cg.inf.resolve(t)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Per-function compiler
// ---------------------------------------------------------------------------

type localVar struct {
	name     string
	slot     int
	depth    int
	captured bool
}

type funcCompiler struct {
	cg        *Codegen
	enclosing *funcCompiler
	builder   *vm.Builder
	chunk     *vm.Chunk
	locals    []localVar
	depth     int
	highWater int // max slot count observed
}

func newFuncCompiler(cg *Codegen, enclosing *funcCompiler, name string) *funcCompiler {
	chunk := vm.NewChunk(name)
	chunk.SourceFile = cg.sourceFile
	return &funcCompiler{
		cg:        cg,
		enclosing: enclosing,
		builder:   vm.NewBuilder(chunk),
		chunk:     chunk,
	}
}

func (fc *funcCompiler) setSpan(pos Position) {
	if fc.cg.debug && pos.Line > 0 {
		fc.builder.SetSpan(vm.SourceSpan{
			Line:   uint32(pos.Line),
			Column: uint32(pos.Column),
			Offset: uint32(pos.Offset),
		})
	}
}

// declareLocal reserves a slot for a name in the current scope.
func (fc *funcCompiler) declareLocal(name string, pos Position) int {
	slot := len(fc.locals)
	if slot > 255 {
		fc.cg.errorf(pos, "too many locals in one function")
		return 255
	}
	fc.locals = append(fc.locals, localVar{name: name, slot: slot, depth: fc.depth})
	if len(fc.locals) > fc.highWater {
		fc.highWater = len(fc.locals)
	}
	return slot
}

// declareTemp reserves an anonymous slot.
func (fc *funcCompiler) declareTemp(pos Position) int {
	return fc.declareLocal("", pos)
}

func (fc *funcCompiler) beginScope() { fc.depth++ }

// endScope drops the scope's locals, closing upvalues over captured slots.
func (fc *funcCompiler) endScope() {
	fc.depth--
	lowestCaptured := -1
	i := len(fc.locals)
	for i > 0 && fc.locals[i-1].depth > fc.depth {
		i--
		if fc.locals[i].captured {
			lowestCaptured = fc.locals[i].slot
		}
	}
	if lowestCaptured >= 0 {
		fc.builder.EmitU16(vm.OpCloseUpvalue, uint16(lowestCaptured))
	}
	fc.locals = fc.locals[:i]
}

// dropScope discards the scope's locals without emitting anything; used
// where the caller has already emitted explicit CloseUpvalue instructions.
func (fc *funcCompiler) dropScope() {
	fc.depth--
	i := len(fc.locals)
	for i > 0 && fc.locals[i-1].depth > fc.depth {
		i--
	}
	fc.locals = fc.locals[:i]
}

func (fc *funcCompiler) resolveLocal(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	for i := len(fc.locals) - 1; i >= 0; i-- {
		if fc.locals[i].name == name {
			return fc.locals[i].slot, true
		}
	}
	return 0, false
}

// resolveUpvalue finds name in an enclosing function, recording capture
// specs along the chain. Upvalues are deduplicated per spec.
func (fc *funcCompiler) resolveUpvalue(name string) (int, bool) {
	if fc.enclosing == nil {
		return 0, false
	}
	if slot, ok := fc.enclosing.resolveLocal(name); ok {
		fc.enclosing.markCaptured(slot)
		return fc.addUpvalue(vm.UpvalueSpec{IsLocal: true, Index: uint8(slot)}), true
	}
	if idx, ok := fc.enclosing.resolveUpvalue(name); ok {
		return fc.addUpvalue(vm.UpvalueSpec{IsLocal: false, Index: uint8(idx)}), true
	}
	return 0, false
}

func (fc *funcCompiler) markCaptured(slot int) {
	for i := range fc.locals {
		if fc.locals[i].slot == slot {
			fc.locals[i].captured = true
		}
	}
}

func (fc *funcCompiler) addUpvalue(spec vm.UpvalueSpec) int {
	for i, existing := range fc.chunk.UpvalueSpecs {
		if existing == spec {
			return i
		}
	}
	fc.chunk.UpvalueSpecs = append(fc.chunk.UpvalueSpecs, spec)
	return len(fc.chunk.UpvalueSpecs) - 1
}

// finish seals the chunk.
func (fc *funcCompiler) finish() *vm.Chunk {
	fc.builder.Emit(vm.OpReturn)
	fc.chunk.LocalCount = fc.highWater
	return fc.chunk
}

// ---------------------------------------------------------------------------
// Expression compilation
// ---------------------------------------------------------------------------

func (fc *funcCompiler) compileExpr(e Expr) {
	fc.setSpan(e.Pos())

	switch e := e.(type) {
	case *IntLit:
		fc.builder.EmitConst(vm.IntValue(e.Value))
	case *FloatLit:
		fc.builder.EmitConst(vm.FloatValue(e.Value))
	case *StringLit:
		fc.builder.EmitConst(vm.StrValue(e.Value))
	case *BoolLit:
		fc.builder.EmitConst(vm.BoolValue(e.Value))
	case *UnitLit:
		fc.builder.EmitConst(vm.Unit)

	case *Ident:
		fc.compileIdent(e)

	case *Lambda:
		fc.compileLambda(e)

	case *App:
		fc.compileApp(e)

	case *BinOp:
		fc.compileBinOp(e)

	case *Unary:
		fc.compileUnary(e)

	case *Let:
		fc.beginScope()
		fc.compileExpr(e.Value)
		slot := fc.declareLocal(e.Name, e.P)
		fc.builder.EmitU8(vm.OpStoreLocal, uint8(slot))
		fc.compileExpr(e.Body)
		fc.endScope()

	case *LetRec:
		fc.beginScope()
		// Pre-allocate every slot so each right-hand side sees all names.
		slots := make([]int, len(e.Bindings))
		for i, b := range e.Bindings {
			fc.builder.EmitConst(vm.Unit)
			slots[i] = fc.declareLocal(b.Name, e.P)
			fc.builder.EmitU8(vm.OpStoreLocal, uint8(slots[i]))
		}
		for i, b := range e.Bindings {
			fc.compileExpr(b.Value)
			fc.builder.EmitU8(vm.OpStoreLocal, uint8(slots[i]))
		}
		fc.compileExpr(e.Body)
		fc.endScope()

	case *If:
		fc.compileExpr(e.Cond)
		elseJump := fc.builder.EmitJump(vm.OpJumpIfFalse)
		fc.compileExpr(e.Then)
		endJump := fc.builder.EmitJump(vm.OpJump)
		fc.patch(elseJump, e.P)
		fc.compileExpr(e.Else)
		fc.patch(endJump, e.P)

	case *Match:
		fc.compileMatch(e)

	case *TupleExpr:
		for _, el := range e.Elems {
			fc.compileExpr(el)
		}
		fc.builder.EmitU8(vm.OpMakeTuple, uint8(len(e.Elems)))

	case *ListExpr:
		for _, el := range e.Elems {
			fc.compileExpr(el)
		}
		fc.builder.EmitU16(vm.OpMakeList, uint16(len(e.Elems)))

	case *ArrayExpr:
		for _, el := range e.Elems {
			fc.compileExpr(el)
		}
		fc.builder.EmitU16(vm.OpMakeArray, uint16(len(e.Elems)))

	case *RecordExpr:
		for _, f := range e.Fields {
			fc.builder.EmitConst(vm.StrValue(f.Name))
			fc.compileExpr(f.Value)
		}
		fc.builder.EmitU8(vm.OpMakeRecord, uint8(len(e.Fields)))

	case *RecordUpdate:
		fc.compileRecordUpdate(e)

	case *FieldAccess:
		fc.compileExpr(e.Target)
		idx := fc.chunk.AddConstant(vm.StrValue(e.Name))
		fc.builder.EmitU16(vm.OpGetField, idx)

	case *IndexGet:
		fc.compileExpr(e.Target)
		fc.compileExpr(e.Index)
		fc.builder.Emit(vm.OpArrayGet)

	case *IndexSet:
		fc.compileExpr(e.Target)
		fc.compileExpr(e.Index)
		fc.compileExpr(e.Value)
		fc.builder.Emit(vm.OpArraySet)

	case *Sequence:
		fc.compileExpr(e.First)
		fc.builder.Emit(vm.OpPop)
		fc.compileExpr(e.Second)

	default:
		fc.cg.errorf(e.Pos(), "cannot compile %T", e)
	}
}

func (fc *funcCompiler) patch(jump int, pos Position) {
	if err := fc.builder.PatchJump(jump); err != nil {
		fc.cg.errorf(pos, "%v", err)
	}
}

// compileIdent resolves a name: local, upvalue, constructor, then global
// (directly or through an open module).
func (fc *funcCompiler) compileIdent(e *Ident) {
	if slot, ok := fc.resolveLocal(e.Name); ok {
		fc.builder.EmitU8(vm.OpLoadLocal, uint8(slot))
		return
	}
	if idx, ok := fc.resolveUpvalue(e.Name); ok {
		fc.builder.EmitU8(vm.OpLoadUpvalue, uint8(idx))
		return
	}
	if owner, ok := fc.cg.defs.VariantOwner(variantNameOf(e.Name)); ok {
		fc.compileConstructorRef(owner, variantNameOf(e.Name), e.P)
		return
	}
	fc.emitLoadGlobal(fc.cg.resolveGlobalName(e.Name), e.P)
}

func variantNameOf(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i+1:]
		}
	}
	return name
}

// resolveGlobalName maps an unqualified name through the module prefix and
// open imports to its qualified name, then to its current runtime slot.
func (cg *Codegen) resolveGlobalName(name string) string {
	stable := name
	switch {
	case cg.modulePrefix != "" && cg.knownGlobals[cg.modulePrefix+"."+name]:
		stable = cg.modulePrefix + "." + name
	case cg.knownGlobals[name]:
		stable = name
	default:
		for i := len(cg.opens) - 1; i >= 0; i-- {
			qualified := cg.opens[i] + "." + name
			if cg.knownGlobals[qualified] {
				stable = qualified
				break
			}
		}
	}
	if slot, ok := cg.globalAliases[stable]; ok {
		return slot
	}
	return stable
}

func (fc *funcCompiler) emitLoadGlobal(name string, pos Position) {
	idx := fc.chunk.AddConstant(vm.StrValue(name))
	fc.builder.EmitU16(vm.OpLoadGlobal, idx)
}

// compileConstructorRef compiles a bare DU constructor. Nullary cases
// build the variant immediately; others build a synthetic curried closure.
func (fc *funcCompiler) compileConstructorRef(typeName, variantName string, pos Position) {
	arity := fc.cg.defs.VariantArity(typeName, variantName)
	if arity == 0 {
		fc.builder.EmitConst(vm.StrValue(typeName))
		fc.builder.EmitConst(vm.StrValue(variantName))
		fc.builder.EmitU8(vm.OpMakeVariant, 0)
		return
	}
	chunk := fc.cg.constructorChunk(typeName, variantName, arity)
	idx := fc.chunk.AddConstant(vm.ChunkValue(chunk))
	fc.builder.EmitU16(vm.OpMakeClosure, idx)
}

// constructorChunk builds fun x1 -> ... fun xn -> Variant(x1..xn) for a
// constructor used as a first-class function.
func (cg *Codegen) constructorChunk(typeName, variantName string, arity int) *vm.Chunk {
	// Innermost chunk captures all earlier parameters as upvalues.
	var build func(depth int) *vm.Chunk
	build = func(depth int) *vm.Chunk {
		chunk := vm.NewChunk(variantName)
		chunk.Arity = 1
		chunk.LocalCount = 1
		b := vm.NewBuilder(chunk)
		if depth == arity-1 {
			b.EmitConst(vm.StrValue(typeName))
			b.EmitConst(vm.StrValue(variantName))
			// Earlier parameters arrive as upvalues, the last as local 0.
			for i := 0; i < depth; i++ {
				b.EmitU8(vm.OpLoadUpvalue, uint8(i))
			}
			b.EmitU8(vm.OpLoadLocal, 0)
			b.EmitU8(vm.OpMakeVariant, uint8(arity))
			b.Emit(vm.OpReturn)
			for i := 0; i < depth; i++ {
				chunk.UpvalueSpecs = append(chunk.UpvalueSpecs, upvalueSpecFor(i, depth))
			}
			return chunk
		}
		inner := build(depth + 1)
		innerIdx := chunk.AddConstant(vm.ChunkValue(inner))
		b.EmitU16(vm.OpMakeClosure, innerIdx)
		for _, spec := range inner.UpvalueSpecs {
			isLocal := uint8(0)
			if spec.IsLocal {
				isLocal = 1
			}
			b.EmitU8U8(vm.OpCaptureUpvalue, isLocal, spec.Index)
		}
		b.Emit(vm.OpReturn)
		for i := 0; i < depth; i++ {
			chunk.UpvalueSpecs = append(chunk.UpvalueSpecs, upvalueSpecFor(i, depth))
		}
		return chunk
	}
	return build(0)
}

// upvalueSpecFor describes how the chunk at the given nesting depth sees
// parameter i: the immediately enclosing parameter is a local capture, the
// rest are forwarded upvalues.
func upvalueSpecFor(i, depth int) vm.UpvalueSpec {
	if i == depth-1 {
		return vm.UpvalueSpec{IsLocal: true, Index: 0}
	}
	return vm.UpvalueSpec{IsLocal: false, Index: uint8(i)}
}

func (fc *funcCompiler) compileLambda(e *Lambda) {
	child := newFuncCompiler(fc.cg, fc, e.Name)
	child.chunk.Arity = 1
	child.declareLocal(e.Param, e.P)
	child.compileExpr(e.Body)
	chunk := child.finish()

	idx := fc.chunk.AddConstant(vm.ChunkValue(chunk))
	fc.builder.EmitU16(vm.OpMakeClosure, idx)
	for _, spec := range chunk.UpvalueSpecs {
		isLocal := uint8(0)
		if spec.IsLocal {
			isLocal = 1
		}
		fc.builder.EmitU8U8(vm.OpCaptureUpvalue, isLocal, spec.Index)
	}
}

// compileApp flattens an application spine. Constructor applications
// build variants directly; everything else is a chain of unary calls.
func (fc *funcCompiler) compileApp(e *App) {
	var args []Expr
	head := Expr(e)
	for {
		app, ok := head.(*App)
		if !ok {
			break
		}
		args = append([]Expr{app.Arg}, args...)
		head = app.Fn
	}

	if id, ok := head.(*Ident); ok {
		_, shadowedLocal := fc.resolveLocal(id.Name)
		if !shadowedLocal {
			name := variantNameOf(id.Name)
			if owner, isCtor := fc.cg.defs.VariantOwner(name); isCtor {
				arity := fc.cg.defs.VariantArity(owner, name)
				if arity == len(args) && arity > 0 {
					fc.builder.EmitConst(vm.StrValue(owner))
					fc.builder.EmitConst(vm.StrValue(name))
					for _, arg := range args {
						fc.compileExpr(arg)
					}
					fc.builder.EmitU8(vm.OpMakeVariant, uint8(arity))
					return
				}
			}
		}
	}

	// Applications always push a frame; recursion depth is bounded by the
	// configured frame limit rather than flattened into TailCall.
	fc.compileExpr(head)
	for _, arg := range args {
		fc.compileExpr(arg)
		fc.builder.EmitU8(vm.OpCall, 1)
	}
}

func (fc *funcCompiler) compileBinOp(e *BinOp) {
	switch e.Op {
	case OpAnd:
		// a && b with short-circuit evaluation.
		fc.compileExpr(e.Left)
		rightJump := fc.builder.EmitJump(vm.OpJumpIfFalse)
		fc.compileExpr(e.Right)
		endJump := fc.builder.EmitJump(vm.OpJump)
		fc.patch(rightJump, e.P)
		fc.builder.EmitConst(vm.BoolValue(false))
		fc.patch(endJump, e.P)
		return

	case OpOr:
		fc.compileExpr(e.Left)
		rightJump := fc.builder.EmitJump(vm.OpJumpIfFalse)
		fc.builder.EmitConst(vm.BoolValue(true))
		endJump := fc.builder.EmitJump(vm.OpJump)
		fc.patch(rightJump, e.P)
		fc.compileExpr(e.Right)
		fc.patch(endJump, e.P)
		return

	case OpCons:
		fc.compileExpr(e.Left)
		fc.compileExpr(e.Right)
		fc.builder.Emit(vm.OpCons)
		return
	}

	fc.compileExpr(e.Left)
	fc.compileExpr(e.Right)

	switch e.Op {
	case OpAdd:
		fc.builder.Emit(vm.OpAdd)
	case OpSub:
		fc.builder.Emit(vm.OpSub)
	case OpMul:
		fc.builder.Emit(vm.OpMul)
	case OpDiv:
		fc.builder.Emit(vm.OpDiv)
	case OpMod:
		fc.builder.Emit(vm.OpMod)
	case OpEq:
		fc.builder.Emit(vm.OpEq)
	case OpNeq:
		fc.builder.Emit(vm.OpNeq)
	case OpLt:
		fc.builder.Emit(vm.OpLt)
	case OpLte:
		fc.builder.Emit(vm.OpLte)
	case OpGt:
		fc.builder.Emit(vm.OpGt)
	case OpGte:
		fc.builder.Emit(vm.OpGte)
	}
}

func (fc *funcCompiler) compileUnary(e *Unary) {
	switch e.Op {
	case "-":
		// 0 - x, using a float zero when the operand is float-typed.
		zero := vm.IntValue(0)
		if t, ok := fc.cg.resolvedType(e.Operand).(*TCon); ok && t.Name == "float" {
			zero = vm.FloatValue(0)
		}
		fc.builder.EmitConst(zero)
		fc.compileExpr(e.Operand)
		fc.builder.Emit(vm.OpSub)
	default:
		fc.compileExpr(e.Operand)
		fc.builder.Emit(vm.OpNot)
	}
}

// compileRecordUpdate lowers { r with f = e } to a fresh MakeRecord that
// reuses untouched fields of the base.
func (fc *funcCompiler) compileRecordUpdate(e *RecordUpdate) {
	record, ok := fc.cg.resolvedType(e.Base).(*TRecord)
	if !ok {
		fc.cg.errorf(e.P, "record update requires a known record type")
		fc.builder.EmitConst(vm.Unit)
		return
	}

	updated := make(map[string]Expr, len(e.Fields))
	for _, f := range e.Fields {
		updated[f.Name] = f.Value
	}

	fc.beginScope()
	fc.compileExpr(e.Base)
	baseSlot := fc.declareTemp(e.P)
	fc.builder.EmitU8(vm.OpStoreLocal, uint8(baseSlot))

	for _, name := range record.Names {
		fc.builder.EmitConst(vm.StrValue(name))
		if value, isUpdated := updated[name]; isUpdated {
			fc.compileExpr(value)
		} else {
			fc.builder.EmitU8(vm.OpLoadLocal, uint8(baseSlot))
			idx := fc.chunk.AddConstant(vm.StrValue(name))
			fc.builder.EmitU16(vm.OpGetField, idx)
		}
	}
	fc.builder.EmitU8(vm.OpMakeRecord, uint8(len(record.Names)))
	fc.endScope()
}
