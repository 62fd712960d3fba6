package compiler

import "testing"

func parseOne(t *testing.T, input string) Expr {
	t.Helper()
	p := NewParser(input)
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parse errors: %v", errs[0])
	}
	if len(prog.Items) != 1 {
		t.Fatalf("item count = %d, want 1", len(prog.Items))
	}
	item, ok := prog.Items[0].(*ExprItem)
	if !ok {
		t.Fatalf("item = %T, want expression", prog.Items[0])
	}
	return item.Value
}

func TestParseMultiParamLetDesugarsToCurriedLambdas(t *testing.T) {
	p := NewParser("let add x y = x + y")
	prog := p.ParseProgram()
	if len(p.Errors()) > 0 {
		t.Fatalf("parse errors: %v", p.Errors()[0])
	}
	let, ok := prog.Items[0].(*LetItem)
	if !ok {
		t.Fatalf("item = %T, want let", prog.Items[0])
	}
	outer, ok := let.Value.(*Lambda)
	if !ok || outer.Param != "x" {
		t.Fatalf("outer = %T, want lambda x", let.Value)
	}
	inner, ok := outer.Body.(*Lambda)
	if !ok || inner.Param != "y" {
		t.Fatalf("inner = %T, want lambda y", outer.Body)
	}
	if _, ok := inner.Body.(*BinOp); !ok {
		t.Errorf("body = %T, want binop", inner.Body)
	}
}

func TestParsePipelineDesugarsToApplication(t *testing.T) {
	// a |> f  ==  f a
	expr := parseOne(t, "a |> f")
	app, ok := expr.(*App)
	if !ok {
		t.Fatalf("expr = %T, want app", expr)
	}
	if fn, ok := app.Fn.(*Ident); !ok || fn.Name != "f" {
		t.Errorf("fn = %v, want f", app.Fn)
	}
	if arg, ok := app.Arg.(*Ident); !ok || arg.Name != "a" {
		t.Errorf("arg = %v, want a", app.Arg)
	}
}

func TestParseCompositionDesugarsToLambda(t *testing.T) {
	// f >> g  ==  fun x -> g (f x)
	expr := parseOne(t, "f >> g")
	lambda, ok := expr.(*Lambda)
	if !ok {
		t.Fatalf("expr = %T, want lambda", expr)
	}
	outer, ok := lambda.Body.(*App)
	if !ok {
		t.Fatalf("body = %T, want app", lambda.Body)
	}
	if fn, ok := outer.Fn.(*Ident); !ok || fn.Name != "g" {
		t.Errorf("outer fn = %v, want g", outer.Fn)
	}
	inner, ok := outer.Arg.(*App)
	if !ok {
		t.Fatalf("inner = %T, want app", outer.Arg)
	}
	if fn, ok := inner.Fn.(*Ident); !ok || fn.Name != "f" {
		t.Errorf("inner fn = %v, want f", inner.Fn)
	}
}

func TestParseConsIsRightAssociative(t *testing.T) {
	expr := parseOne(t, "1 :: 2 :: []")
	outer, ok := expr.(*BinOp)
	if !ok || outer.Op != OpCons {
		t.Fatalf("expr = %T, want cons", expr)
	}
	if inner, ok := outer.Right.(*BinOp); !ok || inner.Op != OpCons {
		t.Errorf("right = %T, want nested cons", outer.Right)
	}
}

func TestParseApplicationBindsTighterThanOperators(t *testing.T) {
	// f 1 + 2  ==  (f 1) + 2
	expr := parseOne(t, "f 1 + 2")
	binop, ok := expr.(*BinOp)
	if !ok || binop.Op != OpAdd {
		t.Fatalf("expr = %T, want add", expr)
	}
	if _, ok := binop.Left.(*App); !ok {
		t.Errorf("left = %T, want application", binop.Left)
	}
}

func TestParseMatchArms(t *testing.T) {
	expr := parseOne(t, "match xs with | [] -> 0 | x :: rest when x > 0 -> 1 | _ -> 2")
	m, ok := expr.(*Match)
	if !ok {
		t.Fatalf("expr = %T, want match", expr)
	}
	if len(m.Arms) != 3 {
		t.Fatalf("arm count = %d, want 3", len(m.Arms))
	}
	if _, ok := m.Arms[0].Pattern.(*ListPat); !ok {
		t.Errorf("arm 0 pattern = %T, want list", m.Arms[0].Pattern)
	}
	if _, ok := m.Arms[1].Pattern.(*ConsPat); !ok {
		t.Errorf("arm 1 pattern = %T, want cons", m.Arms[1].Pattern)
	}
	if m.Arms[1].Guard == nil {
		t.Errorf("arm 1 guard missing")
	}
	if _, ok := m.Arms[2].Pattern.(*WildcardPat); !ok {
		t.Errorf("arm 2 pattern = %T, want wildcard", m.Arms[2].Pattern)
	}
}

func TestParseRecordLiteralAndUpdate(t *testing.T) {
	rec := parseOne(t, `{ name = "A"; age = 30 }`)
	record, ok := rec.(*RecordExpr)
	if !ok || len(record.Fields) != 2 {
		t.Fatalf("expr = %T, want record with 2 fields", rec)
	}

	upd := parseOne(t, "{ p with age = 31 }")
	update, ok := upd.(*RecordUpdate)
	if !ok || len(update.Fields) != 1 || update.Fields[0].Name != "age" {
		t.Fatalf("expr = %T, want update of age", upd)
	}
}

func TestParseIndexGetAndSet(t *testing.T) {
	get := parseOne(t, "a.[0]")
	if _, ok := get.(*IndexGet); !ok {
		t.Fatalf("expr = %T, want index get", get)
	}

	set := parseOne(t, "a.[0] <- 5")
	if _, ok := set.(*IndexSet); !ok {
		t.Fatalf("expr = %T, want index set", set)
	}
}

func TestParseQualifiedNameVsFieldAccess(t *testing.T) {
	qualified := parseOne(t, "List.map")
	if id, ok := qualified.(*Ident); !ok || id.Name != "List.map" {
		t.Fatalf("expr = %v, want qualified ident", qualified)
	}

	field := parseOne(t, "person.age")
	if fa, ok := field.(*FieldAccess); !ok || fa.Name != "age" {
		t.Fatalf("expr = %T, want field access", field)
	}
}

func TestParseTypeDefinitions(t *testing.T) {
	p := NewParser("type Shape = Circle of float | Square of float | Empty")
	prog := p.ParseProgram()
	if len(p.Errors()) > 0 {
		t.Fatalf("parse errors: %v", p.Errors()[0])
	}
	typeItem, ok := prog.Items[0].(*TypeItem)
	if !ok || typeItem.Du == nil {
		t.Fatalf("item = %T, want DU type", prog.Items[0])
	}
	if len(typeItem.Du.Variants) != 3 {
		t.Fatalf("variant count = %d, want 3", len(typeItem.Du.Variants))
	}
	if len(typeItem.Du.Variants[0].Args) != 1 || len(typeItem.Du.Variants[2].Args) != 0 {
		t.Errorf("variant arities wrong: %+v", typeItem.Du.Variants)
	}

	p2 := NewParser("type Person = { name: string; age: int }")
	prog2 := p2.ParseProgram()
	if len(p2.Errors()) > 0 {
		t.Fatalf("parse errors: %v", p2.Errors()[0])
	}
	recItem, ok := prog2.Items[0].(*TypeItem)
	if !ok || recItem.Record == nil || len(recItem.Record.Fields) != 2 {
		t.Fatalf("item = %+v, want record type with 2 fields", prog2.Items[0])
	}
}

func TestParseComputationExpression(t *testing.T) {
	// async { let! x = op in-effect; return x } becomes
	// Async.Delay(fun _ -> Async.Bind(op, fun x -> Async.Return x))
	expr := parseOne(t, "async { let! x = op\n return x }")
	delay, ok := expr.(*App)
	if !ok {
		t.Fatalf("expr = %T, want app", expr)
	}
	if fn, ok := delay.Fn.(*Ident); !ok || fn.Name != "Async.Delay" {
		t.Fatalf("outer call = %v, want Async.Delay", delay.Fn)
	}
	thunkLambda, ok := delay.Arg.(*Lambda)
	if !ok {
		t.Fatalf("delay arg = %T, want lambda", delay.Arg)
	}
	bind, ok := thunkLambda.Body.(*App)
	if !ok {
		t.Fatalf("thunk body = %T, want app", thunkLambda.Body)
	}
	bindInner, ok := bind.Fn.(*App)
	if !ok {
		t.Fatalf("bind fn = %T, want curried app", bind.Fn)
	}
	if fn, ok := bindInner.Fn.(*Ident); !ok || fn.Name != "Async.Bind" {
		t.Errorf("bind call = %v, want Async.Bind", bindInner.Fn)
	}
	cont, ok := bind.Arg.(*Lambda)
	if !ok || cont.Param != "x" {
		t.Errorf("continuation = %T, want fun x", bind.Arg)
	}
}

func TestParseModuleOffsideRule(t *testing.T) {
	source := "module Math =\n  let add x y = x + y\n  let two = 2\n\nlet other = 1"
	p := NewParser(source)
	prog := p.ParseProgram()
	if len(p.Errors()) > 0 {
		t.Fatalf("parse errors: %v", p.Errors()[0])
	}
	if len(prog.Items) != 2 {
		t.Fatalf("item count = %d, want 2", len(prog.Items))
	}
	mod, ok := prog.Items[0].(*ModuleItem)
	if !ok || mod.Name != "Math" {
		t.Fatalf("item 0 = %T, want module Math", prog.Items[0])
	}
	if len(mod.Items) != 2 {
		t.Errorf("module item count = %d, want 2", len(mod.Items))
	}
	if _, ok := prog.Items[1].(*LetItem); !ok {
		t.Errorf("item 1 = %T, want top-level let", prog.Items[1])
	}
}

func TestParseLoadDirectives(t *testing.T) {
	p := NewParser("#load \"lib.fsx\"\n#load \"util.fsx\"\nlet x = 1")
	prog := p.ParseProgram()
	if len(p.Errors()) > 0 {
		t.Fatalf("parse errors: %v", p.Errors()[0])
	}
	if len(prog.Directives) != 2 {
		t.Fatalf("directive count = %d, want 2", len(prog.Directives))
	}
	if prog.Directives[0].Path != "lib.fsx" || prog.Directives[1].Path != "util.fsx" {
		t.Errorf("directive paths = %+v", prog.Directives)
	}
}

func TestParseErrorReportsPosition(t *testing.T) {
	p := NewParser("let = 5")
	p.ParseProgram()
	errs := p.Errors()
	if len(errs) == 0 {
		t.Fatal("no error for malformed let")
	}
	if errs[0].Pos.Line != 1 {
		t.Errorf("error pos = %v, want line 1", errs[0].Pos)
	}
}
