package compiler

import (
	"github.com/fusabi-lang/fusabi/vm"
)

// ---------------------------------------------------------------------------
// Pattern match compilation
// ---------------------------------------------------------------------------
//
// The scrutinee is evaluated once into a temp slot, then each arm emits a
// test chain: discriminator tests jump to the next arm on failure, bound
// sub-values land in fresh slots, and an optional guard re-tests. A final
// synthetic arm raises MatchFailure when nothing matched.

func (fc *funcCompiler) compileMatch(e *Match) {
	fc.beginScope()
	fc.compileExpr(e.Scrutinee)
	scrutineeSlot := fc.declareTemp(e.P)
	fc.builder.EmitU8(vm.OpStoreLocal, uint8(scrutineeSlot))

	if !fc.cg.matchIsExhaustive(e) {
		fc.cg.warnf(e.P, "this match may not be exhaustive")
	}

	var endJumps []int
	for _, arm := range e.Arms {
		fc.beginScope()
		armBase := len(fc.locals)
		failJumps := fc.compilePatternTest(arm.Pattern, scrutineeSlot)
		if arm.Guard != nil {
			fc.compileExpr(arm.Guard)
			failJumps = append(failJumps, fc.builder.EmitJump(vm.OpJumpIfFalse))
		}
		fc.compileExpr(arm.Body)
		// Arm slots are recycled by later arms; close over them on every
		// exit path so captured bindings survive.
		fc.builder.EmitU16(vm.OpCloseUpvalue, uint16(armBase))
		endJumps = append(endJumps, fc.builder.EmitJump(vm.OpJump))
		// Failed tests fall through here to try the next arm.
		for _, jump := range failJumps {
			fc.patch(jump, e.P)
		}
		fc.builder.EmitU16(vm.OpCloseUpvalue, uint16(armBase))
		fc.dropScope()
	}

	// No arm matched.
	fc.emitLoadGlobal(matchFailureFn, e.P)
	fc.builder.EmitConst(vm.Unit)
	fc.builder.EmitU8(vm.OpCall, 1)

	for _, jump := range endJumps {
		fc.patch(jump, e.P)
	}
	fc.endScope()
}

// compilePatternTest emits tests and bindings for one pattern over the
// value in slot. It returns the jump positions that must be patched to the
// next arm.
func (fc *funcCompiler) compilePatternTest(pat Pattern, slot int) []int {
	switch p := pat.(type) {
	case *WildcardPat:
		return nil

	case *VarPat:
		bound := fc.declareLocal(p.Name, p.P)
		fc.builder.EmitU8(vm.OpLoadLocal, uint8(slot))
		fc.builder.EmitU8(vm.OpStoreLocal, uint8(bound))
		return nil

	case *LitPat:
		fc.builder.EmitU8(vm.OpLoadLocal, uint8(slot))
		idx := fc.chunk.AddConstant(litValue(p.Value))
		fc.builder.EmitU16(vm.OpMatchLit, idx)
		return []int{fc.builder.EmitJump(vm.OpJumpIfFalse)}

	case *TuplePat:
		// Arity is guaranteed by typing; destructure and recurse.
		fc.builder.EmitU8(vm.OpLoadLocal, uint8(slot))
		fc.builder.EmitU8(vm.OpDestruct, uint8(len(p.Elems)))
		slots := fc.storeDestructured(len(p.Elems), p.P)
		var fails []int
		for i, sub := range p.Elems {
			fails = append(fails, fc.compilePatternTest(sub, slots[i])...)
		}
		return fails

	case *ConsPat:
		var fails []int
		fc.builder.EmitU8(vm.OpLoadLocal, uint8(slot))
		fc.builder.Emit(vm.OpIsNil)
		fc.builder.Emit(vm.OpNot)
		fails = append(fails, fc.builder.EmitJump(vm.OpJumpIfFalse))

		fc.builder.EmitU8(vm.OpLoadLocal, uint8(slot))
		fc.builder.Emit(vm.OpHead)
		headSlot := fc.declareTemp(p.P)
		fc.builder.EmitU8(vm.OpStoreLocal, uint8(headSlot))

		fc.builder.EmitU8(vm.OpLoadLocal, uint8(slot))
		fc.builder.Emit(vm.OpTail)
		tailSlot := fc.declareTemp(p.P)
		fc.builder.EmitU8(vm.OpStoreLocal, uint8(tailSlot))

		fails = append(fails, fc.compilePatternTest(p.Head, headSlot)...)
		fails = append(fails, fc.compilePatternTest(p.Tail, tailSlot)...)
		return fails

	case *ListPat:
		var fails []int
		current := slot
		for _, sub := range p.Elems {
			fc.builder.EmitU8(vm.OpLoadLocal, uint8(current))
			fc.builder.Emit(vm.OpIsNil)
			fc.builder.Emit(vm.OpNot)
			fails = append(fails, fc.builder.EmitJump(vm.OpJumpIfFalse))

			fc.builder.EmitU8(vm.OpLoadLocal, uint8(current))
			fc.builder.Emit(vm.OpHead)
			headSlot := fc.declareTemp(p.P)
			fc.builder.EmitU8(vm.OpStoreLocal, uint8(headSlot))

			fc.builder.EmitU8(vm.OpLoadLocal, uint8(current))
			fc.builder.Emit(vm.OpTail)
			tailSlot := fc.declareTemp(p.P)
			fc.builder.EmitU8(vm.OpStoreLocal, uint8(tailSlot))

			fails = append(fails, fc.compilePatternTest(sub, headSlot)...)
			current = tailSlot
		}
		// The remainder must be the empty list.
		fc.builder.EmitU8(vm.OpLoadLocal, uint8(current))
		fc.builder.Emit(vm.OpIsNil)
		fails = append(fails, fc.builder.EmitJump(vm.OpJumpIfFalse))
		return fails

	case *VariantPat:
		var fails []int
		fc.builder.EmitU8(vm.OpLoadLocal, uint8(slot))
		tagIdx := fc.chunk.AddConstant(vm.StrValue(vm.MakeTag(p.TypeName, p.VariantName)))
		fc.builder.EmitU16(vm.OpMatchTag, tagIdx)
		fails = append(fails, fc.builder.EmitJump(vm.OpJumpIfFalse))

		if len(p.Args) > 0 {
			fc.builder.EmitU8(vm.OpLoadLocal, uint8(slot))
			fc.builder.EmitU8(vm.OpDestruct, uint8(len(p.Args)))
			slots := fc.storeDestructured(len(p.Args), p.P)
			for i, sub := range p.Args {
				fails = append(fails, fc.compilePatternTest(sub, slots[i])...)
			}
		}
		return fails

	case *RecordPat:
		var fails []int
		for _, f := range p.Fields {
			fc.builder.EmitU8(vm.OpLoadLocal, uint8(slot))
			idx := fc.chunk.AddConstant(vm.StrValue(f.Name))
			fc.builder.EmitU16(vm.OpGetField, idx)
			fieldSlot := fc.declareTemp(p.P)
			fc.builder.EmitU8(vm.OpStoreLocal, uint8(fieldSlot))
			fails = append(fails, fc.compilePatternTest(f.Pattern, fieldSlot)...)
		}
		return fails
	}
	return nil
}

// storeDestructured moves n destructured stack values into fresh temp
// slots and returns the slots in field order.
func (fc *funcCompiler) storeDestructured(n int, pos Position) []int {
	slots := make([]int, n)
	for i := 0; i < n; i++ {
		slots[i] = fc.declareTemp(pos)
	}
	// Values sit on the stack in field order, so they pop in reverse.
	for i := n - 1; i >= 0; i-- {
		fc.builder.EmitU8(vm.OpStoreLocal, uint8(slots[i]))
	}
	return slots
}

func litValue(e Expr) vm.Value {
	switch lit := e.(type) {
	case *IntLit:
		return vm.IntValue(lit.Value)
	case *FloatLit:
		return vm.FloatValue(lit.Value)
	case *StringLit:
		return vm.StrValue(lit.Value)
	case *BoolLit:
		return vm.BoolValue(lit.Value)
	default:
		return vm.Unit
	}
}

// ---------------------------------------------------------------------------
// Exhaustiveness analysis
// ---------------------------------------------------------------------------

// matchIsExhaustive runs a conservative completeness check. Guarded arms
// never count toward coverage.
func (cg *Codegen) matchIsExhaustive(e *Match) bool {
	coveredVariants := make(map[string]bool)
	coveredBools := make(map[bool]bool)
	sawNil, sawConsIrrefutable := false, false
	var duType string

	for _, arm := range e.Arms {
		if arm.Guard != nil {
			continue
		}
		switch p := arm.Pattern.(type) {
		case *WildcardPat, *VarPat:
			return true
		case *TuplePat:
			if allIrrefutable(p.Elems) {
				return true
			}
		case *RecordPat:
			irrefutable := true
			for _, f := range p.Fields {
				if !isIrrefutable(f.Pattern) {
					irrefutable = false
					break
				}
			}
			if irrefutable {
				return true
			}
		case *LitPat:
			if b, ok := p.Value.(*BoolLit); ok {
				coveredBools[b.Value] = true
			}
			if _, ok := p.Value.(*UnitLit); ok {
				return true
			}
		case *VariantPat:
			if allIrrefutable(p.Args) {
				coveredVariants[p.VariantName] = true
				duType = p.TypeName
			}
		case *ListPat:
			if len(p.Elems) == 0 {
				sawNil = true
			}
		case *ConsPat:
			if isIrrefutable(p.Head) && isIrrefutable(p.Tail) {
				sawConsIrrefutable = true
			}
		}
	}

	if coveredBools[true] && coveredBools[false] {
		return true
	}
	if sawNil && sawConsIrrefutable {
		return true
	}
	if duType != "" {
		return cg.coversAllVariants(duType, coveredVariants)
	}
	return false
}

func (cg *Codegen) coversAllVariants(typeName string, covered map[string]bool) bool {
	switch typeName {
	case "Option":
		return covered["Some"] && covered["None"]
	case "Result":
		return covered["Ok"] && covered["Error"]
	}
	def, ok := cg.defs.dus[typeName]
	if !ok {
		return false
	}
	for _, v := range def.Variants {
		if !covered[v.Name] {
			return false
		}
	}
	return true
}

func allIrrefutable(pats []Pattern) bool {
	for _, p := range pats {
		if !isIrrefutable(p) {
			return false
		}
	}
	return true
}

func isIrrefutable(p Pattern) bool {
	switch p := p.(type) {
	case *WildcardPat, *VarPat:
		return true
	case *TuplePat:
		return allIrrefutable(p.Elems)
	case *RecordPat:
		for _, f := range p.Fields {
			if !isIrrefutable(f.Pattern) {
				return false
			}
		}
		return true
	}
	return false
}
