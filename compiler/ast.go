package compiler

// ---------------------------------------------------------------------------
// AST: expressions, patterns, items
// ---------------------------------------------------------------------------

// Expr is any expression node.
type Expr interface {
	Pos() Position
	exprNode()
}

// BinOpKind enumerates binary operators surviving desugaring.
type BinOpKind int

const (
	OpAdd BinOpKind = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpAnd
	OpOr
	OpCons
)

var binOpNames = map[BinOpKind]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpEq: "=", OpNeq: "<>", OpLt: "<", OpLte: "<=", OpGt: ">", OpGte: ">=",
	OpAnd: "&&", OpOr: "||", OpCons: "::",
}

func (k BinOpKind) String() string { return binOpNames[k] }

type (
	// IntLit is an integer literal.
	IntLit struct {
		Value int64
		P     Position
	}

	// FloatLit is a floating-point literal.
	FloatLit struct {
		Value float64
		P     Position
	}

	// StringLit is a string literal.
	StringLit struct {
		Value string
		P     Position
	}

	// BoolLit is true or false.
	BoolLit struct {
		Value bool
		P     Position
	}

	// UnitLit is ().
	UnitLit struct {
		P Position
	}

	// Ident is a variable reference, possibly module-qualified ("Math.add").
	Ident struct {
		Name string
		P    Position
	}

	// Lambda is a single-parameter function; multi-parameter forms desugar
	// to nested lambdas in the parser.
	Lambda struct {
		Param string
		Body  Expr
		Name  string // source binding name, for diagnostics
		P     Position
	}

	// App is a single-argument application.
	App struct {
		Fn  Expr
		Arg Expr
		P   Position
	}

	// BinOp is a primitive binary operation.
	BinOp struct {
		Op    BinOpKind
		Left  Expr
		Right Expr
		P     Position
	}

	// Unary is negation (-e) or logical not.
	Unary struct {
		Op      string // "-" or "not"
		Operand Expr
		P       Position
	}

	// Let binds one name in a body.
	Let struct {
		Name  string
		Value Expr
		Body  Expr
		P     Position
	}

	// LetRec binds mutually recursive names in a body.
	LetRec struct {
		Bindings []RecBinding
		Body     Expr
		P        Position
	}

	// If is a two-armed conditional.
	If struct {
		Cond Expr
		Then Expr
		Else Expr
		P    Position
	}

	// Match is pattern matching with arms in textual order.
	Match struct {
		Scrutinee Expr
		Arms      []MatchArm
		P         Position
	}

	// TupleExpr is (e1, e2, ...).
	TupleExpr struct {
		Elems []Expr
		P     Position
	}

	// ListExpr is [e1; e2; ...].
	ListExpr struct {
		Elems []Expr
		P     Position
	}

	// ArrayExpr is [| e1; e2; ... |].
	ArrayExpr struct {
		Elems []Expr
		P     Position
	}

	// RecordExpr is { f1 = e1; f2 = e2 }.
	RecordExpr struct {
		Fields []RecordField
		P      Position
	}

	// RecordUpdate is { r with f = e }.
	RecordUpdate struct {
		Base   Expr
		Fields []RecordField
		P      Position
	}

	// FieldAccess is r.f.
	FieldAccess struct {
		Target Expr
		Name   string
		P      Position
	}

	// IndexGet is a.[i].
	IndexGet struct {
		Target Expr
		Index  Expr
		P      Position
	}

	// IndexSet is a.[i] <- v, producing unit.
	IndexSet struct {
		Target Expr
		Index  Expr
		Value  Expr
		P      Position
	}

	// Sequence evaluates First for effect, then Second.
	Sequence struct {
		First  Expr
		Second Expr
		P      Position
	}
)

// RecBinding is one binding of a let rec group.
type RecBinding struct {
	Name  string
	Value Expr
}

// RecordField is one name = expr pair.
type RecordField struct {
	Name  string
	Value Expr
}

// MatchArm is | pattern [when guard] -> body.
type MatchArm struct {
	Pattern Pattern
	Guard   Expr // nil when absent
	Body    Expr
}

func (e *IntLit) Pos() Position       { return e.P }
func (e *FloatLit) Pos() Position     { return e.P }
func (e *StringLit) Pos() Position    { return e.P }
func (e *BoolLit) Pos() Position      { return e.P }
func (e *UnitLit) Pos() Position      { return e.P }
func (e *Ident) Pos() Position        { return e.P }
func (e *Lambda) Pos() Position       { return e.P }
func (e *App) Pos() Position          { return e.P }
func (e *BinOp) Pos() Position        { return e.P }
func (e *Unary) Pos() Position        { return e.P }
func (e *Let) Pos() Position          { return e.P }
func (e *LetRec) Pos() Position       { return e.P }
func (e *If) Pos() Position           { return e.P }
func (e *Match) Pos() Position        { return e.P }
func (e *TupleExpr) Pos() Position    { return e.P }
func (e *ListExpr) Pos() Position     { return e.P }
func (e *ArrayExpr) Pos() Position    { return e.P }
func (e *RecordExpr) Pos() Position   { return e.P }
func (e *RecordUpdate) Pos() Position { return e.P }
func (e *FieldAccess) Pos() Position  { return e.P }
func (e *IndexGet) Pos() Position     { return e.P }
func (e *IndexSet) Pos() Position     { return e.P }
func (e *Sequence) Pos() Position     { return e.P }

func (*IntLit) exprNode()       {}
func (*FloatLit) exprNode()     {}
func (*StringLit) exprNode()    {}
func (*BoolLit) exprNode()      {}
func (*UnitLit) exprNode()      {}
func (*Ident) exprNode()        {}
func (*Lambda) exprNode()       {}
func (*App) exprNode()          {}
func (*BinOp) exprNode()        {}
func (*Unary) exprNode()        {}
func (*Let) exprNode()          {}
func (*LetRec) exprNode()       {}
func (*If) exprNode()           {}
func (*Match) exprNode()        {}
func (*TupleExpr) exprNode()    {}
func (*ListExpr) exprNode()     {}
func (*ArrayExpr) exprNode()    {}
func (*RecordExpr) exprNode()   {}
func (*RecordUpdate) exprNode() {}
func (*FieldAccess) exprNode()  {}
func (*IndexGet) exprNode()     {}
func (*IndexSet) exprNode()     {}
func (*Sequence) exprNode()     {}

// ---------------------------------------------------------------------------
// Patterns
// ---------------------------------------------------------------------------

// Pattern is any pattern node.
type Pattern interface {
	Pos() Position
	patternNode()
}

type (
	// WildcardPat is _.
	WildcardPat struct {
		P Position
	}

	// VarPat binds the matched value to a name.
	VarPat struct {
		Name string
		P    Position
	}

	// LitPat matches a literal value.
	LitPat struct {
		Value Expr // IntLit, FloatLit, StringLit, BoolLit or UnitLit
		P     Position
	}

	// TuplePat matches a tuple positionally.
	TuplePat struct {
		Elems []Pattern
		P     Position
	}

	// ListPat matches a list of fixed shape [p1; p2; ...].
	ListPat struct {
		Elems []Pattern
		P     Position
	}

	// ConsPat matches head :: tail.
	ConsPat struct {
		Head Pattern
		Tail Pattern
		P    Position
	}

	// VariantPat matches a DU case. TypeName is resolved from the type
	// definition registry during inference.
	VariantPat struct {
		TypeName    string // filled during inference
		VariantName string
		Args        []Pattern
		P           Position
	}

	// RecordPat matches named record fields: { name = p; ... }.
	RecordPat struct {
		Fields []RecordFieldPat
		P      Position
	}
)

// RecordFieldPat is one field pattern of a record pattern.
type RecordFieldPat struct {
	Name    string
	Pattern Pattern
}

func (p *WildcardPat) Pos() Position { return p.P }
func (p *VarPat) Pos() Position      { return p.P }
func (p *LitPat) Pos() Position      { return p.P }
func (p *TuplePat) Pos() Position    { return p.P }
func (p *ListPat) Pos() Position     { return p.P }
func (p *ConsPat) Pos() Position     { return p.P }
func (p *VariantPat) Pos() Position  { return p.P }
func (p *RecordPat) Pos() Position   { return p.P }

func (*WildcardPat) patternNode() {}
func (*VarPat) patternNode()      {}
func (*LitPat) patternNode()      {}
func (*TuplePat) patternNode()    {}
func (*ListPat) patternNode()     {}
func (*ConsPat) patternNode()     {}
func (*VariantPat) patternNode()  {}
func (*RecordPat) patternNode()   {}

// ---------------------------------------------------------------------------
// Type expressions and definitions
// ---------------------------------------------------------------------------

// TypeExpr is a syntactic type annotation or definition component.
type TypeExpr interface {
	typeExprNode()
}

type (
	// NamedType is a (possibly parameterized) type name: int, Option<int>.
	NamedType struct {
		Name string
		Args []TypeExpr
	}

	// TupleType is t1 * t2 * ...
	TupleType struct {
		Elems []TypeExpr
	}

	// ArrowType is t1 -> t2.
	ArrowType struct {
		From TypeExpr
		To   TypeExpr
	}
)

func (*NamedType) typeExprNode() {}
func (*TupleType) typeExprNode() {}
func (*ArrowType) typeExprNode() {}

// RecordTypeDef is `type Name = { f1: t1; f2: t2 }`.
type RecordTypeDef struct {
	Name   string
	Fields []RecordTypeField
}

// RecordTypeField is one declared record field.
type RecordTypeField struct {
	Name string
	Type TypeExpr
}

// DuTypeDef is `type Name = Case1 of t | Case2 | ...`.
type DuTypeDef struct {
	Name     string
	Variants []DuVariant
}

// DuVariant is one case of a discriminated union. Arity is len(Args).
type DuVariant struct {
	Name string
	Args []TypeExpr
}

// ---------------------------------------------------------------------------
// Top-level items
// ---------------------------------------------------------------------------

// Item is a top-level declaration.
type Item interface {
	itemNode()
}

type (
	// LetItem is a top-level binding.
	LetItem struct {
		Name  string
		Value Expr
		Rec   bool
		And   []RecBinding // additional bindings of a let rec ... and group
		P     Position

		// runtimeNames are the versioned global slots assigned during
		// inference; shadowing binds a fresh slot so closures compiled
		// earlier keep their view.
		runtimeNames []string
	}

	// ExprItem is a bare top-level expression.
	ExprItem struct {
		Value Expr
	}

	// TypeItem declares a record or DU type.
	TypeItem struct {
		Record *RecordTypeDef
		Du     *DuTypeDef
		P      Position
	}

	// ModuleItem declares a (possibly nested) module.
	ModuleItem struct {
		Name  string
		Items []Item
		P     Position
	}

	// OpenItem brings a module's bindings into scope.
	OpenItem struct {
		Path []string
		P    Position
	}
)

func (*LetItem) itemNode()    {}
func (*ExprItem) itemNode()   {}
func (*TypeItem) itemNode()   {}
func (*ModuleItem) itemNode() {}
func (*OpenItem) itemNode()   {}

// LoadDirective is a #load "path" line at the top of a file.
type LoadDirective struct {
	Path string
	P    Position
}

// Program is one parsed compilation unit.
type Program struct {
	Directives []LoadDirective
	Items      []Item
}
