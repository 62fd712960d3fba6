package compiler

import (
	"fmt"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Type is an inferred type.
type Type interface {
	typeNode()
	String() string
}

type (
	// TCon is a (possibly applied) type constructor: Int, List<a>, Option<a>,
	// or a user-defined DU.
	TCon struct {
		Name string
		Args []Type
	}

	// TArrow is a curried function type.
	TArrow struct {
		From Type
		To   Type
	}

	// TTuple is a fixed-arity tuple type.
	TTuple struct {
		Elems []Type
	}

	// TRecord is a record type as an ordered row. TypeName is set for
	// nominally declared records.
	TRecord struct {
		TypeName string
		Names    []string
		Fields   map[string]Type
	}

	// TVar is a type variable.
	TVar struct {
		ID int
	}
)

func (*TCon) typeNode()    {}
func (*TArrow) typeNode()  {}
func (*TTuple) typeNode()  {}
func (*TRecord) typeNode() {}
func (*TVar) typeNode()    {}

func (t *TCon) String() string {
	if len(t.Args) == 0 {
		return t.Name
	}
	parts := make([]string, len(t.Args))
	for i, a := range t.Args {
		parts[i] = a.String()
	}
	return t.Name + "<" + strings.Join(parts, ", ") + ">"
}

func (t *TArrow) String() string {
	from := t.From.String()
	if _, ok := t.From.(*TArrow); ok {
		from = "(" + from + ")"
	}
	return from + " -> " + t.To.String()
}

func (t *TTuple) String() string {
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, " * ") + ")"
}

func (t *TRecord) String() string {
	if t.TypeName != "" {
		return t.TypeName
	}
	parts := make([]string, 0, len(t.Names))
	for _, name := range t.Names {
		parts = append(parts, name+": "+t.Fields[name].String())
	}
	return "{ " + strings.Join(parts, "; ") + " }"
}

func (t *TVar) String() string {
	return fmt.Sprintf("'t%d", t.ID)
}

// Base types.
var (
	TypeInt    = &TCon{Name: "int"}
	TypeFloat  = &TCon{Name: "float"}
	TypeBool   = &TCon{Name: "bool"}
	TypeString = &TCon{Name: "string"}
	TypeUnit   = &TCon{Name: "unit"}
)

func listOf(t Type) Type   { return &TCon{Name: "List", Args: []Type{t}} }
func arrayOf(t Type) Type  { return &TCon{Name: "Array", Args: []Type{t}} }
func optionOf(t Type) Type { return &TCon{Name: "Option", Args: []Type{t}} }
func asyncOf(t Type) Type  { return &TCon{Name: "Async", Args: []Type{t}} }
func arrow(ts ...Type) Type {
	t := ts[len(ts)-1]
	for i := len(ts) - 2; i >= 0; i-- {
		t = &TArrow{From: ts[i], To: t}
	}
	return t
}

// Scheme is a universally quantified type for let-polymorphism. Schemes
// live only in the type environment.
type Scheme struct {
	Vars []int
	Body Type
}

// TypeEnv maps names to schemes.
type TypeEnv struct {
	parent   *TypeEnv
	bindings map[string]*Scheme
}

// NewTypeEnv creates an environment nested in parent (which may be nil).
func NewTypeEnv(parent *TypeEnv) *TypeEnv {
	return &TypeEnv{parent: parent, bindings: make(map[string]*Scheme)}
}

// Bind installs a scheme for a name.
func (env *TypeEnv) Bind(name string, s *Scheme) {
	env.bindings[name] = s
}

// Lookup resolves a name through the environment chain.
func (env *TypeEnv) Lookup(name string) (*Scheme, bool) {
	for e := env; e != nil; e = e.parent {
		if s, ok := e.bindings[name]; ok {
			return s, true
		}
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// Type definition registry
// ---------------------------------------------------------------------------

// TypeDefs registers user record and DU definitions so constructors,
// patterns and field accesses resolve to nominal types.
type TypeDefs struct {
	records  map[string]*RecordTypeDef // type name -> def
	dus      map[string]*DuTypeDef     // type name -> def
	variants map[string]string         // variant name -> owning type name
	fields   map[string][]string       // field name -> record type names containing it
}

// NewTypeDefs creates a registry pre-loaded with Option and Result.
func NewTypeDefs() *TypeDefs {
	d := &TypeDefs{
		records:  make(map[string]*RecordTypeDef),
		dus:      make(map[string]*DuTypeDef),
		variants: make(map[string]string),
		fields:   make(map[string][]string),
	}
	// Option and Result are built into the base environment; their
	// constructors are handled generically during inference.
	d.variants["Some"] = "Option"
	d.variants["None"] = "Option"
	d.variants["Ok"] = "Result"
	d.variants["Error"] = "Result"
	return d
}

// AddRecord registers a record type definition.
func (d *TypeDefs) AddRecord(def *RecordTypeDef) {
	d.records[def.Name] = def
	for _, f := range def.Fields {
		d.fields[f.Name] = append(d.fields[f.Name], def.Name)
	}
}

// AddDu registers a discriminated union definition.
func (d *TypeDefs) AddDu(def *DuTypeDef) {
	d.dus[def.Name] = def
	for _, v := range def.Variants {
		d.variants[v.Name] = def.Name
	}
}

// VariantOwner resolves a variant name to its owning type.
func (d *TypeDefs) VariantOwner(variant string) (string, bool) {
	owner, ok := d.variants[variant]
	return owner, ok
}

// VariantArity returns the declared field count of a DU case.
func (d *TypeDefs) VariantArity(typeName, variant string) int {
	switch typeName {
	case "Option":
		if variant == "Some" {
			return 1
		}
		return 0
	case "Result":
		return 1
	}
	if def, ok := d.dus[typeName]; ok {
		for _, v := range def.Variants {
			if v.Name == variant {
				return len(v.Args)
			}
		}
	}
	return 0
}

// ---------------------------------------------------------------------------
// TypeError
// ---------------------------------------------------------------------------

// TypeError is one inference failure with its source span.
type TypeError struct {
	Pos Position
	Msg string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// ---------------------------------------------------------------------------
// Inferencer: algorithm W with let-polymorphism
// ---------------------------------------------------------------------------

// Inferencer runs Hindley-Milner inference over a program. Errors are
// accumulated; the compiler refuses to emit bytecode when any exist.
type Inferencer struct {
	nextVar int
	subst   map[int]Type
	errors  []*TypeError
	defs    *TypeDefs

	// hostKnown reports whether a qualified name is a registered host
	// function; such names type as fresh variables when no scheme exists.
	hostKnown func(name string) bool

	// ExprTypes records the inferred type of every expression node for the
	// code generator (record updates, numeric negation).
	ExprTypes map[Expr]Type
}

// NewInferencer creates an inference engine over the given definitions.
func NewInferencer(defs *TypeDefs, hostKnown func(string) bool) *Inferencer {
	if defs == nil {
		defs = NewTypeDefs()
	}
	if hostKnown == nil {
		hostKnown = func(string) bool { return false }
	}
	return &Inferencer{
		subst:     make(map[int]Type),
		defs:      defs,
		hostKnown: hostKnown,
		ExprTypes: make(map[Expr]Type),
	}
}

// Errors returns accumulated type errors.
func (inf *Inferencer) Errors() []*TypeError { return inf.errors }

func (inf *Inferencer) errorf(pos Position, format string, args ...interface{}) {
	inf.errors = append(inf.errors, &TypeError{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

// fresh returns a new type variable.
func (inf *Inferencer) fresh() *TVar {
	inf.nextVar++
	return &TVar{ID: inf.nextVar}
}

// resolve chases the substitution one level at a time until it reaches a
// non-variable or an unbound variable.
func (inf *Inferencer) resolve(t Type) Type {
	for {
		v, ok := t.(*TVar)
		if !ok {
			return t
		}
		bound, exists := inf.subst[v.ID]
		if !exists {
			return t
		}
		t = bound
	}
}

// resolveDeep applies the substitution throughout a type, for display.
func (inf *Inferencer) resolveDeep(t Type) Type {
	switch t := inf.resolve(t).(type) {
	case *TArrow:
		return &TArrow{From: inf.resolveDeep(t.From), To: inf.resolveDeep(t.To)}
	case *TTuple:
		elems := make([]Type, len(t.Elems))
		for i, e := range t.Elems {
			elems[i] = inf.resolveDeep(e)
		}
		return &TTuple{Elems: elems}
	case *TCon:
		if len(t.Args) == 0 {
			return t
		}
		args := make([]Type, len(t.Args))
		for i, a := range t.Args {
			args[i] = inf.resolveDeep(a)
		}
		return &TCon{Name: t.Name, Args: args}
	case *TRecord:
		fields := make(map[string]Type, len(t.Fields))
		for name, f := range t.Fields {
			fields[name] = inf.resolveDeep(f)
		}
		return &TRecord{TypeName: t.TypeName, Names: t.Names, Fields: fields}
	default:
		return t
	}
}

// occurs reports whether variable id appears in t.
func (inf *Inferencer) occurs(id int, t Type) bool {
	switch t := inf.resolve(t).(type) {
	case *TVar:
		return t.ID == id
	case *TArrow:
		return inf.occurs(id, t.From) || inf.occurs(id, t.To)
	case *TTuple:
		for _, e := range t.Elems {
			if inf.occurs(id, e) {
				return true
			}
		}
	case *TCon:
		for _, a := range t.Args {
			if inf.occurs(id, a) {
				return true
			}
		}
	case *TRecord:
		for _, f := range t.Fields {
			if inf.occurs(id, f) {
				return true
			}
		}
	}
	return false
}

// unify makes two types equal, decomposing structurally and binding
// variables in the substitution.
func (inf *Inferencer) unify(a, b Type, pos Position) {
	a, b = inf.resolve(a), inf.resolve(b)

	if av, ok := a.(*TVar); ok {
		if bv, ok := b.(*TVar); ok && av.ID == bv.ID {
			return
		}
		if inf.occurs(av.ID, b) {
			inf.errorf(pos, "occurs check: cannot construct infinite type %s = %s", a, b)
			return
		}
		inf.subst[av.ID] = b
		return
	}
	if _, ok := b.(*TVar); ok {
		inf.unify(b, a, pos)
		return
	}

	switch at := a.(type) {
	case *TCon:
		bt, ok := b.(*TCon)
		if !ok || at.Name != bt.Name || len(at.Args) != len(bt.Args) {
			inf.errorf(pos, "type mismatch: expected %s, found %s", a, b)
			return
		}
		for i := range at.Args {
			inf.unify(at.Args[i], bt.Args[i], pos)
		}

	case *TArrow:
		bt, ok := b.(*TArrow)
		if !ok {
			inf.errorf(pos, "type mismatch: expected %s, found %s", a, b)
			return
		}
		inf.unify(at.From, bt.From, pos)
		inf.unify(at.To, bt.To, pos)

	case *TTuple:
		bt, ok := b.(*TTuple)
		if !ok || len(at.Elems) != len(bt.Elems) {
			inf.errorf(pos, "type mismatch: expected %s, found %s", a, b)
			return
		}
		for i := range at.Elems {
			inf.unify(at.Elems[i], bt.Elems[i], pos)
		}

	case *TRecord:
		bt, ok := b.(*TRecord)
		if !ok {
			inf.errorf(pos, "type mismatch: expected %s, found %s", a, b)
			return
		}
		if len(at.Fields) != len(bt.Fields) {
			inf.errorf(pos, "record mismatch: expected %s, found %s", a, b)
			return
		}
		for name, ft := range at.Fields {
			bf, exists := bt.Fields[name]
			if !exists {
				inf.errorf(pos, "record %s has no field %q", b, name)
				return
			}
			inf.unify(ft, bf, pos)
		}

	default:
		inf.errorf(pos, "type mismatch: expected %s, found %s", a, b)
	}
}

// freeVars collects unbound variables of t.
func (inf *Inferencer) freeVars(t Type, acc map[int]bool) {
	switch t := inf.resolve(t).(type) {
	case *TVar:
		acc[t.ID] = true
	case *TArrow:
		inf.freeVars(t.From, acc)
		inf.freeVars(t.To, acc)
	case *TTuple:
		for _, e := range t.Elems {
			inf.freeVars(e, acc)
		}
	case *TCon:
		for _, a := range t.Args {
			inf.freeVars(a, acc)
		}
	case *TRecord:
		for _, f := range t.Fields {
			inf.freeVars(f, acc)
		}
	}
}

// envFreeVars collects variables free anywhere in the environment.
func (inf *Inferencer) envFreeVars(env *TypeEnv, acc map[int]bool) {
	for e := env; e != nil; e = e.parent {
		for _, s := range e.bindings {
			inner := make(map[int]bool)
			inf.freeVars(s.Body, inner)
			for id := range inner {
				if !contains(s.Vars, id) {
					acc[id] = true
				}
			}
		}
	}
}

func contains(ids []int, id int) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// generalize quantifies the variables of t not free in env.
func (inf *Inferencer) generalize(env *TypeEnv, t Type) *Scheme {
	envVars := make(map[int]bool)
	inf.envFreeVars(env, envVars)

	tVars := make(map[int]bool)
	inf.freeVars(t, tVars)

	var quantified []int
	for id := range tVars {
		if !envVars[id] {
			quantified = append(quantified, id)
		}
	}
	sort.Ints(quantified)
	return &Scheme{Vars: quantified, Body: t}
}

// instantiate replaces each quantified variable with a fresh one.
func (inf *Inferencer) instantiate(s *Scheme) Type {
	if len(s.Vars) == 0 {
		return s.Body
	}
	mapping := make(map[int]Type, len(s.Vars))
	for _, id := range s.Vars {
		mapping[id] = inf.fresh()
	}
	return inf.substituteVars(s.Body, mapping)
}

func (inf *Inferencer) substituteVars(t Type, mapping map[int]Type) Type {
	switch t := inf.resolve(t).(type) {
	case *TVar:
		if repl, ok := mapping[t.ID]; ok {
			return repl
		}
		return t
	case *TArrow:
		return &TArrow{From: inf.substituteVars(t.From, mapping), To: inf.substituteVars(t.To, mapping)}
	case *TTuple:
		elems := make([]Type, len(t.Elems))
		for i, e := range t.Elems {
			elems[i] = inf.substituteVars(e, mapping)
		}
		return &TTuple{Elems: elems}
	case *TCon:
		if len(t.Args) == 0 {
			return t
		}
		args := make([]Type, len(t.Args))
		for i, a := range t.Args {
			args[i] = inf.substituteVars(a, mapping)
		}
		return &TCon{Name: t.Name, Args: args}
	case *TRecord:
		fields := make(map[string]Type, len(t.Fields))
		for name, f := range t.Fields {
			fields[name] = inf.substituteVars(f, mapping)
		}
		return &TRecord{TypeName: t.TypeName, Names: t.Names, Fields: fields}
	}
	return t
}

// ---------------------------------------------------------------------------
// Expression inference
// ---------------------------------------------------------------------------

// Infer computes the type of an expression under env, recording the result
// in ExprTypes.
func (inf *Inferencer) Infer(env *TypeEnv, expr Expr) Type {
	t := inf.inferExpr(env, expr)
	inf.ExprTypes[expr] = t
	return t
}

func (inf *Inferencer) inferExpr(env *TypeEnv, expr Expr) Type {
	switch e := expr.(type) {
	case *IntLit:
		return TypeInt
	case *FloatLit:
		return TypeFloat
	case *StringLit:
		return TypeString
	case *BoolLit:
		return TypeBool
	case *UnitLit:
		return TypeUnit

	case *Ident:
		if s, ok := env.Lookup(e.Name); ok {
			return inf.instantiate(s)
		}
		if t, ok := inf.constructorType(e.Name); ok {
			return t
		}
		if inf.hostKnown(e.Name) {
			// Host functions registered without a declared type are opaque
			// to inference.
			return inf.fresh()
		}
		inf.errorf(e.P, "unbound variable %q", e.Name)
		return inf.fresh()

	case *Lambda:
		paramType := inf.fresh()
		inner := NewTypeEnv(env)
		inner.Bind(e.Param, &Scheme{Body: paramType})
		bodyType := inf.Infer(inner, e.Body)
		return &TArrow{From: paramType, To: bodyType}

	case *App:
		fnType := inf.Infer(env, e.Fn)
		argType := inf.Infer(env, e.Arg)
		resultType := inf.fresh()
		inf.unify(fnType, &TArrow{From: argType, To: resultType}, e.P)
		return resultType

	case *BinOp:
		return inf.inferBinOp(env, e)

	case *Unary:
		operandType := inf.Infer(env, e.Operand)
		switch e.Op {
		case "-":
			resolved := inf.resolve(operandType)
			if con, ok := resolved.(*TCon); ok && con.Name == "float" {
				return TypeFloat
			}
			inf.unify(operandType, TypeInt, e.P)
			return TypeInt
		default:
			inf.unify(operandType, TypeBool, e.P)
			return TypeBool
		}

	case *Let:
		valueType := inf.Infer(env, e.Value)
		inner := NewTypeEnv(env)
		if isSyntacticValue(e.Value) {
			inner.Bind(e.Name, inf.generalize(env, valueType))
		} else {
			// Value restriction: expansive expressions stay monomorphic.
			inner.Bind(e.Name, &Scheme{Body: valueType})
		}
		return inf.Infer(inner, e.Body)

	case *LetRec:
		inner := NewTypeEnv(env)
		pre := make([]Type, len(e.Bindings))
		for i, b := range e.Bindings {
			pre[i] = inf.fresh()
			inner.Bind(b.Name, &Scheme{Body: pre[i]})
		}
		for i, b := range e.Bindings {
			rhsType := inf.Infer(inner, b.Value)
			inf.unify(pre[i], rhsType, e.P)
		}
		generalized := NewTypeEnv(env)
		for i, b := range e.Bindings {
			generalized.Bind(b.Name, inf.generalize(env, pre[i]))
		}
		return inf.Infer(generalized, e.Body)

	case *If:
		condType := inf.Infer(env, e.Cond)
		inf.unify(condType, TypeBool, e.Cond.Pos())
		thenType := inf.Infer(env, e.Then)
		elseType := inf.Infer(env, e.Else)
		inf.unify(thenType, elseType, e.P)
		return thenType

	case *Match:
		return inf.inferMatch(env, e)

	case *TupleExpr:
		elems := make([]Type, len(e.Elems))
		for i, el := range e.Elems {
			elems[i] = inf.Infer(env, el)
		}
		return &TTuple{Elems: elems}

	case *ListExpr:
		elemType := inf.fresh()
		for _, el := range e.Elems {
			inf.unify(elemType, inf.Infer(env, el), el.Pos())
		}
		return listOf(elemType)

	case *ArrayExpr:
		elemType := inf.fresh()
		for _, el := range e.Elems {
			inf.unify(elemType, inf.Infer(env, el), el.Pos())
		}
		return arrayOf(elemType)

	case *RecordExpr:
		names := make([]string, 0, len(e.Fields))
		fields := make(map[string]Type, len(e.Fields))
		for _, f := range e.Fields {
			names = append(names, f.Name)
			fields[f.Name] = inf.Infer(env, f.Value)
		}
		record := &TRecord{Names: names, Fields: fields}
		if typeName, ok := inf.matchRecordDef(names); ok {
			record.TypeName = typeName
		}
		return record

	case *RecordUpdate:
		baseType := inf.Infer(env, e.Base)
		resolved := inf.resolve(baseType)
		record, ok := resolved.(*TRecord)
		if !ok {
			if _, isVar := resolved.(*TVar); isVar {
				inf.errorf(e.P, "record update requires a known record type")
			} else {
				inf.errorf(e.P, "type mismatch: expected a record, found %s", resolved)
			}
			return baseType
		}
		for _, f := range e.Fields {
			declared, exists := record.Fields[f.Name]
			if !exists {
				inf.errorf(e.P, "record %s has no field %q", record, f.Name)
				continue
			}
			inf.unify(declared, inf.Infer(env, f.Value), f.Value.Pos())
		}
		return baseType

	case *FieldAccess:
		return inf.inferFieldAccess(env, e)

	case *IndexGet:
		elemType := inf.fresh()
		inf.unify(inf.Infer(env, e.Target), arrayOf(elemType), e.P)
		inf.unify(inf.Infer(env, e.Index), TypeInt, e.Index.Pos())
		return elemType

	case *IndexSet:
		elemType := inf.fresh()
		inf.unify(inf.Infer(env, e.Target), arrayOf(elemType), e.P)
		inf.unify(inf.Infer(env, e.Index), TypeInt, e.Index.Pos())
		inf.unify(inf.Infer(env, e.Value), elemType, e.Value.Pos())
		return TypeUnit

	case *Sequence:
		inf.Infer(env, e.First)
		return inf.Infer(env, e.Second)
	}

	inf.errorf(expr.Pos(), "cannot infer type of %T", expr)
	return inf.fresh()
}

func (inf *Inferencer) inferBinOp(env *TypeEnv, e *BinOp) Type {
	leftType := inf.Infer(env, e.Left)
	rightType := inf.Infer(env, e.Right)

	switch e.Op {
	case OpAdd, OpSub, OpMul, OpDiv:
		inf.unify(leftType, rightType, e.P)
		resolved := inf.resolve(leftType)
		if con, ok := resolved.(*TCon); ok {
			switch con.Name {
			case "float":
				return TypeFloat
			case "string":
				if e.Op == OpAdd {
					return TypeString
				}
			}
		}
		inf.unify(leftType, TypeInt, e.P)
		return TypeInt

	case OpMod:
		inf.unify(leftType, TypeInt, e.P)
		inf.unify(rightType, TypeInt, e.P)
		return TypeInt

	case OpEq, OpNeq:
		inf.unify(leftType, rightType, e.P)
		return TypeBool

	case OpLt, OpLte, OpGt, OpGte:
		inf.unify(leftType, rightType, e.P)
		return TypeBool

	case OpAnd, OpOr:
		inf.unify(leftType, TypeBool, e.Left.Pos())
		inf.unify(rightType, TypeBool, e.Right.Pos())
		return TypeBool

	case OpCons:
		inf.unify(rightType, listOf(leftType), e.P)
		return rightType
	}

	inf.errorf(e.P, "unknown operator %s", e.Op)
	return inf.fresh()
}

func (inf *Inferencer) inferMatch(env *TypeEnv, e *Match) Type {
	scrutineeType := inf.Infer(env, e.Scrutinee)
	resultType := inf.fresh()

	for i := range e.Arms {
		arm := &e.Arms[i]
		armEnv := NewTypeEnv(env)
		inf.inferPattern(armEnv, arm.Pattern, scrutineeType)
		if arm.Guard != nil {
			inf.unify(inf.Infer(armEnv, arm.Guard), TypeBool, arm.Guard.Pos())
		}
		inf.unify(resultType, inf.Infer(armEnv, arm.Body), arm.Body.Pos())
	}
	return resultType
}

// inferPattern unifies the pattern's shape with the scrutinee type and
// binds pattern variables (monomorphically) in env.
func (inf *Inferencer) inferPattern(env *TypeEnv, pat Pattern, scrutinee Type) {
	switch p := pat.(type) {
	case *WildcardPat:

	case *VarPat:
		env.Bind(p.Name, &Scheme{Body: scrutinee})

	case *LitPat:
		var litType Type
		switch p.Value.(type) {
		case *IntLit:
			litType = TypeInt
		case *FloatLit:
			litType = TypeFloat
		case *StringLit:
			litType = TypeString
		case *BoolLit:
			litType = TypeBool
		default:
			litType = TypeUnit
		}
		inf.unify(scrutinee, litType, p.P)

	case *TuplePat:
		elems := make([]Type, len(p.Elems))
		for i := range elems {
			elems[i] = inf.fresh()
		}
		inf.unify(scrutinee, &TTuple{Elems: elems}, p.P)
		for i, sub := range p.Elems {
			inf.inferPattern(env, sub, elems[i])
		}

	case *ListPat:
		elemType := inf.fresh()
		inf.unify(scrutinee, listOf(elemType), p.P)
		for _, sub := range p.Elems {
			inf.inferPattern(env, sub, elemType)
		}

	case *ConsPat:
		elemType := inf.fresh()
		inf.unify(scrutinee, listOf(elemType), p.P)
		inf.inferPattern(env, p.Head, elemType)
		inf.inferPattern(env, p.Tail, listOf(elemType))

	case *VariantPat:
		inf.inferVariantPattern(env, p, scrutinee)

	case *RecordPat:
		resolved := inf.resolve(scrutinee)
		record, ok := resolved.(*TRecord)
		if !ok {
			names := make([]string, 0, len(p.Fields))
			for _, f := range p.Fields {
				names = append(names, f.Name)
			}
			if typeName, found := inf.matchRecordDef(names); found {
				record = inf.recordTypeOf(typeName)
				inf.unify(scrutinee, record, p.P)
			} else {
				inf.errorf(p.P, "cannot determine record type of pattern")
				return
			}
		}
		for _, f := range p.Fields {
			fieldType, exists := record.Fields[f.Name]
			if !exists {
				inf.errorf(p.P, "record %s has no field %q", record, f.Name)
				continue
			}
			inf.inferPattern(env, f.Pattern, fieldType)
		}
	}
}

func (inf *Inferencer) inferVariantPattern(env *TypeEnv, p *VariantPat, scrutinee Type) {
	owner, ok := inf.defs.VariantOwner(p.VariantName)
	if !ok {
		inf.errorf(p.P, "unknown constructor %q", p.VariantName)
		return
	}
	p.TypeName = owner

	switch owner {
	case "Option":
		elemType := inf.fresh()
		inf.unify(scrutinee, optionOf(elemType), p.P)
		if p.VariantName == "Some" {
			if len(p.Args) != 1 {
				inf.errorf(p.P, "Some expects 1 argument, pattern has %d", len(p.Args))
				return
			}
			inf.inferPattern(env, p.Args[0], elemType)
		} else if len(p.Args) != 0 {
			inf.errorf(p.P, "None takes no arguments")
		}
		return

	case "Result":
		okType, errType := inf.fresh(), inf.fresh()
		inf.unify(scrutinee, &TCon{Name: "Result", Args: []Type{okType, errType}}, p.P)
		if len(p.Args) != 1 {
			inf.errorf(p.P, "%s expects 1 argument, pattern has %d", p.VariantName, len(p.Args))
			return
		}
		if p.VariantName == "Ok" {
			inf.inferPattern(env, p.Args[0], okType)
		} else {
			inf.inferPattern(env, p.Args[0], errType)
		}
		return
	}

	def := inf.defs.dus[owner]
	inf.unify(scrutinee, &TCon{Name: owner}, p.P)
	for _, variant := range def.Variants {
		if variant.Name != p.VariantName {
			continue
		}
		if len(p.Args) != len(variant.Args) {
			inf.errorf(p.P, "%s expects %d arguments, pattern has %d",
				p.VariantName, len(variant.Args), len(p.Args))
			return
		}
		for i, sub := range p.Args {
			inf.inferPattern(env, sub, inf.typeFromExpr(variant.Args[i]))
		}
		return
	}
	inf.errorf(p.P, "type %s has no case %q", owner, p.VariantName)
}

func (inf *Inferencer) inferFieldAccess(env *TypeEnv, e *FieldAccess) Type {
	targetType := inf.Infer(env, e.Target)
	resolved := inf.resolve(targetType)

	if record, ok := resolved.(*TRecord); ok {
		fieldType, exists := record.Fields[e.Name]
		if !exists {
			inf.errorf(e.P, "record %s has no field %q", record, e.Name)
			return inf.fresh()
		}
		return fieldType
	}

	// An unresolved target can still be pinned down when exactly one
	// declared record owns the field.
	if owners := inf.defs.fields[e.Name]; len(owners) == 1 {
		record := inf.recordTypeOf(owners[0])
		inf.unify(targetType, record, e.P)
		return record.Fields[e.Name]
	}

	inf.errorf(e.P, "cannot determine record type for field %q", e.Name)
	return inf.fresh()
}

// constructorType types a bare DU constructor reference: nullary cases
// have the DU type, others are curried functions of their arguments.
func (inf *Inferencer) constructorType(name string) (Type, bool) {
	owner, ok := inf.defs.VariantOwner(name)
	if !ok {
		return nil, false
	}
	switch owner + "." + name {
	case "Option.Some":
		elemType := inf.fresh()
		return &TArrow{From: elemType, To: optionOf(elemType)}, true
	case "Option.None":
		return optionOf(inf.fresh()), true
	case "Result.Ok":
		okType, errType := inf.fresh(), inf.fresh()
		return &TArrow{From: okType, To: &TCon{Name: "Result", Args: []Type{okType, errType}}}, true
	case "Result.Error":
		okType, errType := inf.fresh(), inf.fresh()
		return &TArrow{From: errType, To: &TCon{Name: "Result", Args: []Type{okType, errType}}}, true
	}

	def := inf.defs.dus[owner]
	if def == nil {
		return nil, false
	}
	for _, variant := range def.Variants {
		if variant.Name != name {
			continue
		}
		result := Type(&TCon{Name: owner})
		for i := len(variant.Args) - 1; i >= 0; i-- {
			result = &TArrow{From: inf.typeFromExpr(variant.Args[i]), To: result}
		}
		return result, true
	}
	return nil, false
}

// matchRecordDef finds the declared record type whose field set equals the
// given names.
func (inf *Inferencer) matchRecordDef(names []string) (string, bool) {
	for typeName, def := range inf.defs.records {
		if len(def.Fields) != len(names) {
			continue
		}
		matched := true
		for _, f := range def.Fields {
			found := false
			for _, n := range names {
				if n == f.Name {
					found = true
					break
				}
			}
			if !found {
				matched = false
				break
			}
		}
		if matched {
			return typeName, true
		}
	}
	return "", false
}

// recordTypeOf builds the TRecord of a declared record type.
func (inf *Inferencer) recordTypeOf(typeName string) *TRecord {
	def := inf.defs.records[typeName]
	names := make([]string, 0, len(def.Fields))
	fields := make(map[string]Type, len(def.Fields))
	for _, f := range def.Fields {
		names = append(names, f.Name)
		fields[f.Name] = inf.typeFromExpr(f.Type)
	}
	return &TRecord{TypeName: typeName, Names: names, Fields: fields}
}

// typeFromExpr converts a syntactic type annotation to a Type.
func (inf *Inferencer) typeFromExpr(te TypeExpr) Type {
	switch t := te.(type) {
	case *NamedType:
		switch t.Name {
		case "int":
			return TypeInt
		case "float":
			return TypeFloat
		case "bool":
			return TypeBool
		case "string":
			return TypeString
		case "unit":
			return TypeUnit
		}
		args := make([]Type, len(t.Args))
		for i, a := range t.Args {
			args[i] = inf.typeFromExpr(a)
		}
		if _, ok := inf.defs.records[t.Name]; ok {
			return inf.recordTypeOf(t.Name)
		}
		return &TCon{Name: t.Name, Args: args}
	case *TupleType:
		elems := make([]Type, len(t.Elems))
		for i, e := range t.Elems {
			elems[i] = inf.typeFromExpr(e)
		}
		return &TTuple{Elems: elems}
	case *ArrowType:
		return &TArrow{From: inf.typeFromExpr(t.From), To: inf.typeFromExpr(t.To)}
	}
	return inf.fresh()
}

// isSyntacticValue implements the value restriction test: only these
// shapes may be generalized at let.
func isSyntacticValue(e Expr) bool {
	switch e := e.(type) {
	case *IntLit, *FloatLit, *StringLit, *BoolLit, *UnitLit, *Ident, *Lambda:
		return true
	case *TupleExpr:
		for _, el := range e.Elems {
			if !isSyntacticValue(el) {
				return false
			}
		}
		return true
	case *ListExpr:
		for _, el := range e.Elems {
			if !isSyntacticValue(el) {
				return false
			}
		}
		return true
	case *RecordExpr:
		for _, f := range e.Fields {
			if !isSyntacticValue(f.Value) {
				return false
			}
		}
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Base environment
// ---------------------------------------------------------------------------

// BaseEnv builds the type environment of the standard library.
func (inf *Inferencer) BaseEnv() *TypeEnv {
	env := NewTypeEnv(nil)

	poly := func(build func(vars []Type) Type, n int) *Scheme {
		vars := make([]Type, n)
		ids := make([]int, n)
		for i := range vars {
			v := inf.fresh()
			vars[i] = v
			ids[i] = v.ID
		}
		return &Scheme{Vars: ids, Body: build(vars)}
	}
	mono := func(t Type) *Scheme { return &Scheme{Body: t} }

	env.Bind("printfn", poly(func(v []Type) Type { return arrow(v[0], TypeUnit) }, 1))
	env.Bind("print", poly(func(v []Type) Type { return arrow(v[0], TypeUnit) }, 1))
	env.Bind("ignore", poly(func(v []Type) Type { return arrow(v[0], TypeUnit) }, 1))
	env.Bind("string", poly(func(v []Type) Type { return arrow(v[0], TypeString) }, 1))
	env.Bind("int", poly(func(v []Type) Type { return arrow(v[0], TypeInt) }, 1))
	env.Bind("float", poly(func(v []Type) Type { return arrow(v[0], TypeFloat) }, 1))
	env.Bind("not", mono(arrow(TypeBool, TypeBool)))
	env.Bind("fst", poly(func(v []Type) Type { return arrow(&TTuple{Elems: v}, v[0]) }, 2))
	env.Bind("snd", poly(func(v []Type) Type { return arrow(&TTuple{Elems: v}, v[1]) }, 2))

	env.Bind("List.length", poly(func(v []Type) Type { return arrow(listOf(v[0]), TypeInt) }, 1))
	env.Bind("List.isEmpty", poly(func(v []Type) Type { return arrow(listOf(v[0]), TypeBool) }, 1))
	env.Bind("List.head", poly(func(v []Type) Type { return arrow(listOf(v[0]), v[0]) }, 1))
	env.Bind("List.tail", poly(func(v []Type) Type { return arrow(listOf(v[0]), listOf(v[0])) }, 1))
	env.Bind("List.reverse", poly(func(v []Type) Type { return arrow(listOf(v[0]), listOf(v[0])) }, 1))
	env.Bind("List.append", poly(func(v []Type) Type {
		return arrow(listOf(v[0]), listOf(v[0]), listOf(v[0]))
	}, 1))
	env.Bind("List.map", poly(func(v []Type) Type {
		return arrow(arrow(v[0], v[1]), listOf(v[0]), listOf(v[1]))
	}, 2))
	env.Bind("List.iter", poly(func(v []Type) Type {
		return arrow(arrow(v[0], TypeUnit), listOf(v[0]), TypeUnit)
	}, 1))
	env.Bind("List.filter", poly(func(v []Type) Type {
		return arrow(arrow(v[0], TypeBool), listOf(v[0]), listOf(v[0]))
	}, 1))
	env.Bind("List.fold", poly(func(v []Type) Type {
		return arrow(arrow(v[1], v[0], v[1]), v[1], listOf(v[0]), v[1])
	}, 2))
	env.Bind("List.contains", poly(func(v []Type) Type {
		return arrow(v[0], listOf(v[0]), TypeBool)
	}, 1))
	env.Bind("List.init", poly(func(v []Type) Type {
		return arrow(TypeInt, arrow(TypeInt, v[0]), listOf(v[0]))
	}, 1))

	env.Bind("Array.create", poly(func(v []Type) Type { return arrow(TypeInt, v[0], arrayOf(v[0])) }, 1))
	env.Bind("Array.init", poly(func(v []Type) Type {
		return arrow(TypeInt, arrow(TypeInt, v[0]), arrayOf(v[0]))
	}, 1))
	env.Bind("Array.length", poly(func(v []Type) Type { return arrow(arrayOf(v[0]), TypeInt) }, 1))
	env.Bind("Array.get", poly(func(v []Type) Type { return arrow(arrayOf(v[0]), TypeInt, v[0]) }, 1))
	env.Bind("Array.set", poly(func(v []Type) Type {
		return arrow(arrayOf(v[0]), TypeInt, v[0], TypeUnit)
	}, 1))
	env.Bind("Array.map", poly(func(v []Type) Type {
		return arrow(arrow(v[0], v[1]), arrayOf(v[0]), arrayOf(v[1]))
	}, 2))
	env.Bind("Array.iter", poly(func(v []Type) Type {
		return arrow(arrow(v[0], TypeUnit), arrayOf(v[0]), TypeUnit)
	}, 1))
	env.Bind("Array.toList", poly(func(v []Type) Type { return arrow(arrayOf(v[0]), listOf(v[0])) }, 1))
	env.Bind("Array.ofList", poly(func(v []Type) Type { return arrow(listOf(v[0]), arrayOf(v[0])) }, 1))

	env.Bind("String.length", mono(arrow(TypeString, TypeInt)))
	env.Bind("String.concat", mono(arrow(TypeString, listOf(TypeString), TypeString)))
	env.Bind("String.split", mono(arrow(TypeString, TypeString, listOf(TypeString))))
	env.Bind("String.contains", mono(arrow(TypeString, TypeString, TypeBool)))
	env.Bind("String.startsWith", mono(arrow(TypeString, TypeString, TypeBool)))
	env.Bind("String.endsWith", mono(arrow(TypeString, TypeString, TypeBool)))
	env.Bind("String.toUpper", mono(arrow(TypeString, TypeString)))
	env.Bind("String.toLower", mono(arrow(TypeString, TypeString)))
	env.Bind("String.trim", mono(arrow(TypeString, TypeString)))
	env.Bind("String.sub", mono(arrow(TypeString, TypeInt, TypeInt, TypeString)))
	env.Bind("String.replace", mono(arrow(TypeString, TypeString, TypeString, TypeString)))

	env.Bind("Option.isSome", poly(func(v []Type) Type { return arrow(optionOf(v[0]), TypeBool) }, 1))
	env.Bind("Option.isNone", poly(func(v []Type) Type { return arrow(optionOf(v[0]), TypeBool) }, 1))
	env.Bind("Option.defaultValue", poly(func(v []Type) Type {
		return arrow(v[0], optionOf(v[0]), v[0])
	}, 1))
	env.Bind("Option.map", poly(func(v []Type) Type {
		return arrow(arrow(v[0], v[1]), optionOf(v[0]), optionOf(v[1]))
	}, 2))
	env.Bind("Option.bind", poly(func(v []Type) Type {
		return arrow(arrow(v[0], optionOf(v[1])), optionOf(v[0]), optionOf(v[1]))
	}, 2))

	resultOf := func(ok, err Type) Type { return &TCon{Name: "Result", Args: []Type{ok, err}} }
	env.Bind("Result.isOk", poly(func(v []Type) Type { return arrow(resultOf(v[0], v[1]), TypeBool) }, 2))
	env.Bind("Result.isError", poly(func(v []Type) Type { return arrow(resultOf(v[0], v[1]), TypeBool) }, 2))
	env.Bind("Result.map", poly(func(v []Type) Type {
		return arrow(arrow(v[0], v[1]), resultOf(v[0], v[2]), resultOf(v[1], v[2]))
	}, 3))
	env.Bind("Result.mapError", poly(func(v []Type) Type {
		return arrow(arrow(v[1], v[2]), resultOf(v[0], v[1]), resultOf(v[0], v[2]))
	}, 3))
	env.Bind("Result.bind", poly(func(v []Type) Type {
		return arrow(arrow(v[0], resultOf(v[1], v[2])), resultOf(v[0], v[2]), resultOf(v[1], v[2]))
	}, 3))

	env.Bind("Async.Return", poly(func(v []Type) Type { return arrow(v[0], asyncOf(v[0])) }, 1))
	env.Bind("Async.Bind", poly(func(v []Type) Type {
		return arrow(asyncOf(v[0]), arrow(v[0], asyncOf(v[1])), asyncOf(v[1]))
	}, 2))
	env.Bind("Async.Delay", poly(func(v []Type) Type {
		return arrow(arrow(TypeUnit, asyncOf(v[0])), asyncOf(v[0]))
	}, 1))
	env.Bind("Async.ReturnFrom", poly(func(v []Type) Type { return arrow(asyncOf(v[0]), asyncOf(v[0])) }, 1))
	env.Bind("Async.Zero", mono(arrow(TypeUnit, asyncOf(TypeUnit))))
	env.Bind("Async.Combine", poly(func(v []Type) Type {
		return arrow(asyncOf(TypeUnit), asyncOf(v[0]), asyncOf(v[0]))
	}, 1))
	env.Bind("Async.RunSynchronously", poly(func(v []Type) Type { return arrow(asyncOf(v[0]), v[0]) }, 1))
	env.Bind("Async.start", poly(func(v []Type) Type { return arrow(asyncOf(v[0]), asyncOf(v[0])) }, 1))
	env.Bind("Async.sleep", mono(arrow(TypeInt, asyncOf(TypeUnit))))
	env.Bind("Async.parallel", poly(func(v []Type) Type {
		return arrow(listOf(asyncOf(v[0])), asyncOf(listOf(v[0])))
	}, 1))
	env.Bind("Async.parallel2", poly(func(v []Type) Type {
		return arrow(asyncOf(v[0]), asyncOf(v[1]), asyncOf(&TTuple{Elems: v}))
	}, 2))
	env.Bind("Async.parallel3", poly(func(v []Type) Type {
		return arrow(asyncOf(v[0]), asyncOf(v[1]), asyncOf(v[2]), asyncOf(&TTuple{Elems: v}))
	}, 3))
	env.Bind("Async.withTimeout", poly(func(v []Type) Type {
		return arrow(TypeInt, asyncOf(v[0]), asyncOf(optionOf(v[0])))
	}, 1))
	env.Bind("Async.catch", poly(func(v []Type) Type {
		return arrow(asyncOf(v[0]), asyncOf(resultOf(v[0], TypeString)))
	}, 1))
	env.Bind("Async.cancel", poly(func(v []Type) Type { return arrow(asyncOf(v[0]), TypeUnit) }, 1))

	senderOf := func(t Type) Type { return &TCon{Name: "Sender", Args: []Type{t}} }
	receiverOf := func(t Type) Type { return &TCon{Name: "Receiver", Args: []Type{t}} }
	env.Bind("Channel.create", poly(func(v []Type) Type {
		return arrow(TypeInt, &TTuple{Elems: []Type{senderOf(v[0]), receiverOf(v[0])}})
	}, 1))
	env.Bind("Channel.send", poly(func(v []Type) Type { return arrow(senderOf(v[0]), v[0], TypeUnit) }, 1))
	env.Bind("Channel.trySend", poly(func(v []Type) Type { return arrow(senderOf(v[0]), v[0], TypeBool) }, 1))
	env.Bind("Channel.receive", poly(func(v []Type) Type { return arrow(receiverOf(v[0]), v[0]) }, 1))
	env.Bind("Channel.tryReceive", poly(func(v []Type) Type {
		return arrow(receiverOf(v[0]), optionOf(v[0]))
	}, 1))
	env.Bind("Channel.receiveAsync", poly(func(v []Type) Type {
		return arrow(receiverOf(v[0]), asyncOf(v[0]))
	}, 1))
	env.Bind("Channel.close", poly(func(v []Type) Type { return arrow(senderOf(v[0]), TypeUnit) }, 1))
	env.Bind("Channel.length", poly(func(v []Type) Type { return arrow(receiverOf(v[0]), TypeInt) }, 1))

	return env
}
