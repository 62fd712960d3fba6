package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Value: the Fusabi runtime value universe
// ---------------------------------------------------------------------------

// Kind discriminates the runtime type of a Value.
type Kind uint8

const (
	KindUnit Kind = iota
	KindInt
	KindFloat
	KindBool
	KindStr
	KindTuple
	KindList
	KindArray
	KindRecord
	KindVariant
	KindClosure
	KindNative
	KindChunk // nested chunk, constant pool only
	KindAsync
	KindChanSender
	KindChanReceiver
)

var kindNames = map[Kind]string{
	KindUnit:         "unit",
	KindInt:          "int",
	KindFloat:        "float",
	KindBool:         "bool",
	KindStr:          "string",
	KindTuple:        "tuple",
	KindList:         "list",
	KindArray:        "array",
	KindRecord:       "record",
	KindVariant:      "variant",
	KindClosure:      "closure",
	KindNative:       "native function",
	KindChunk:        "chunk",
	KindAsync:        "async",
	KindChanSender:   "channel sender",
	KindChanReceiver: "channel receiver",
}

// String returns the human-readable kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is a tagged runtime value. Exactly one payload field is meaningful
// for a given Kind. Int carries int payloads and Bool values (0/1); async
// task ids live in Task; heap kinds carry a pointer payload.
type Value struct {
	Kind     Kind
	Int      int64
	Float    float64
	Str      string
	Tuple    []Value
	List     *ListNode
	Array    *ArrayObject
	Record   *RecordObject
	Variant  *VariantObject
	Closure  *Closure
	Native   *NativeFn
	Chunk    *Chunk
	Task     TaskID
	Sender   *ChannelSender
	Receiver *ChannelReceiver
}

// ---------------------------------------------------------------------------
// Heap object types
// ---------------------------------------------------------------------------

// ListNode is one cons cell of an immutable, structurally shared list.
// A nil *ListNode is the empty list.
type ListNode struct {
	Head Value
	Tail *ListNode
}

// ArrayObject is a shared mutable ordered sequence. Mutation through any
// alias is visible through all aliases.
type ArrayObject struct {
	Elems []Value
}

// RecordObject is a shared mapping from field name to value. The field set
// is fixed at construction; functional update builds a new record.
type RecordObject struct {
	Names  []string // insertion order, fixed at construction
	Fields map[string]Value
}

// VariantObject is an inhabitant of a discriminated union.
type VariantObject struct {
	TypeName    string
	VariantName string
	Fields      []Value
}

// Closure pairs a compiled chunk with its captured upvalues.
type Closure struct {
	Chunk    *Chunk
	Upvalues []*Upvalue
	Name     string
}

// NativeFn points into the host registry. Applied carries arguments bound
// by partial application of a multi-argument native.
type NativeFn struct {
	Name    string
	Arity   int
	Fn      HostFunc
	Applied []Value
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// Unit is the unit value.
var Unit = Value{Kind: KindUnit}

func IntValue(n int64) Value     { return Value{Kind: KindInt, Int: n} }
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func StrValue(s string) Value    { return Value{Kind: KindStr, Str: s} }

func BoolValue(b bool) Value {
	if b {
		return Value{Kind: KindBool, Int: 1}
	}
	return Value{Kind: KindBool}
}

func TupleValue(elems []Value) Value { return Value{Kind: KindTuple, Tuple: elems} }

// EmptyList is the empty list value.
var EmptyList = Value{Kind: KindList}

// ConsValue prepends head onto tail. Tail must be a list.
func ConsValue(head, tail Value) Value {
	return Value{Kind: KindList, List: &ListNode{Head: head, Tail: tail.List}}
}

// ListFromSlice builds a list value from a Go slice, preserving order.
func ListFromSlice(elems []Value) Value {
	var node *ListNode
	for i := len(elems) - 1; i >= 0; i-- {
		node = &ListNode{Head: elems[i], Tail: node}
	}
	return Value{Kind: KindList, List: node}
}

// ListToSlice flattens a list value into a Go slice.
func ListToSlice(v Value) []Value {
	var out []Value
	for node := v.List; node != nil; node = node.Tail {
		out = append(out, node.Head)
	}
	return out
}

// ListLen walks the list and returns its length.
func ListLen(v Value) int {
	n := 0
	for node := v.List; node != nil; node = node.Tail {
		n++
	}
	return n
}

func ArrayValue(elems []Value) Value {
	return Value{Kind: KindArray, Array: &ArrayObject{Elems: elems}}
}

// RecordValue builds a record from parallel name/value slices.
func RecordValue(names []string, values []Value) Value {
	fields := make(map[string]Value, len(names))
	for i, name := range names {
		fields[name] = values[i]
	}
	return Value{Kind: KindRecord, Record: &RecordObject{Names: names, Fields: fields}}
}

func VariantValue(typeName, variantName string, fields []Value) Value {
	return Value{Kind: KindVariant, Variant: &VariantObject{
		TypeName:    typeName,
		VariantName: variantName,
		Fields:      fields,
	}}
}

func ClosureValue(c *Closure) Value  { return Value{Kind: KindClosure, Closure: c} }
func NativeValue(fn *NativeFn) Value { return Value{Kind: KindNative, Native: fn} }
func ChunkValue(chunk *Chunk) Value  { return Value{Kind: KindChunk, Chunk: chunk} }
func AsyncValue(id TaskID) Value     { return Value{Kind: KindAsync, Task: id} }

// SomeValue and NoneValue build Option inhabitants.
func SomeValue(v Value) Value { return VariantValue("Option", "Some", []Value{v}) }
func NoneValue() Value        { return VariantValue("Option", "None", nil) }

// OkValue and ErrorValue build Result inhabitants.
func OkValue(v Value) Value    { return VariantValue("Result", "Ok", []Value{v}) }
func ErrorValue(v Value) Value { return VariantValue("Result", "Error", []Value{v}) }

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Bool reports the boolean payload. Only meaningful for KindBool.
func (v Value) Bool() bool { return v.Int != 0 }

// IsNilList reports whether v is the empty list.
func (v Value) IsNilList() bool { return v.Kind == KindList && v.List == nil }

// Clone for a record produces a new RecordObject with the same fields,
// used by functional record update. Other kinds share or copy by value.
func (r *RecordObject) Clone() *RecordObject {
	names := make([]string, len(r.Names))
	copy(names, r.Names)
	fields := make(map[string]Value, len(r.Fields))
	for k, val := range r.Fields {
		fields[k] = val
	}
	return &RecordObject{Names: names, Fields: fields}
}

// ---------------------------------------------------------------------------
// Equality
// ---------------------------------------------------------------------------

// ValuesEqual implements script-level structural equality. Tuples, lists,
// records and variants compare element-wise; arrays, closures and channel
// handles compare by identity.
func ValuesEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindUnit:
		return true
	case KindInt, KindBool:
		return a.Int == b.Int
	case KindFloat:
		return a.Float == b.Float
	case KindStr:
		return a.Str == b.Str
	case KindTuple:
		if len(a.Tuple) != len(b.Tuple) {
			return false
		}
		for i := range a.Tuple {
			if !ValuesEqual(a.Tuple[i], b.Tuple[i]) {
				return false
			}
		}
		return true
	case KindList:
		an, bn := a.List, b.List
		for an != nil && bn != nil {
			if !ValuesEqual(an.Head, bn.Head) {
				return false
			}
			an, bn = an.Tail, bn.Tail
		}
		return an == nil && bn == nil
	case KindRecord:
		if len(a.Record.Fields) != len(b.Record.Fields) {
			return false
		}
		for name, av := range a.Record.Fields {
			bv, ok := b.Record.Fields[name]
			if !ok || !ValuesEqual(av, bv) {
				return false
			}
		}
		return true
	case KindVariant:
		if a.Variant.TypeName != b.Variant.TypeName ||
			a.Variant.VariantName != b.Variant.VariantName ||
			len(a.Variant.Fields) != len(b.Variant.Fields) {
			return false
		}
		for i := range a.Variant.Fields {
			if !ValuesEqual(a.Variant.Fields[i], b.Variant.Fields[i]) {
				return false
			}
		}
		return true
	case KindArray:
		return a.Array == b.Array
	case KindClosure:
		return a.Closure == b.Closure
	case KindNative:
		return a.Native.Name == b.Native.Name
	case KindAsync:
		return a.Task == b.Task
	case KindChanSender:
		return a.Sender == b.Sender
	case KindChanReceiver:
		return a.Receiver == b.Receiver
	}
	return false
}

// ---------------------------------------------------------------------------
// Display
// ---------------------------------------------------------------------------

// String renders a value the way the REPL prints results.
func (v Value) String() string {
	switch v.Kind {
	case KindUnit:
		return "()"
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		s := strconv.FormatFloat(v.Float, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	case KindBool:
		if v.Bool() {
			return "true"
		}
		return "false"
	case KindStr:
		return v.Str
	case KindTuple:
		parts := make([]string, len(v.Tuple))
		for i, e := range v.Tuple {
			parts[i] = e.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case KindList:
		var parts []string
		for node := v.List; node != nil; node = node.Tail {
			parts = append(parts, node.Head.String())
		}
		return "[" + strings.Join(parts, "; ") + "]"
	case KindArray:
		parts := make([]string, len(v.Array.Elems))
		for i, e := range v.Array.Elems {
			parts[i] = e.String()
		}
		return "[|" + strings.Join(parts, "; ") + "|]"
	case KindRecord:
		parts := make([]string, 0, len(v.Record.Names))
		for _, name := range v.Record.Names {
			parts = append(parts, name+" = "+v.Record.Fields[name].String())
		}
		return "{ " + strings.Join(parts, "; ") + " }"
	case KindVariant:
		if len(v.Variant.Fields) == 0 {
			return v.Variant.VariantName
		}
		parts := make([]string, len(v.Variant.Fields))
		for i, f := range v.Variant.Fields {
			parts[i] = f.String()
		}
		return v.Variant.VariantName + " (" + strings.Join(parts, ", ") + ")"
	case KindClosure:
		if v.Closure.Name != "" {
			return "<fun " + v.Closure.Name + ">"
		}
		return "<fun>"
	case KindNative:
		return "<native " + v.Native.Name + ">"
	case KindChunk:
		return "<chunk " + v.Chunk.Name + ">"
	case KindAsync:
		return fmt.Sprintf("<async task %d>", v.Task)
	case KindChanSender:
		return "<channel sender>"
	case KindChanReceiver:
		return "<channel receiver>"
	}
	return "<unknown>"
}
