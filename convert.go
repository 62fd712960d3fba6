package fusabi

import (
	"fmt"
	"sort"

	"github.com/fusabi-lang/fusabi/vm"
)

// ---------------------------------------------------------------------------
// Host <-> script value conversions
// ---------------------------------------------------------------------------

// Tagged is host data converted to a script variant.
type Tagged struct {
	TypeName    string
	VariantName string
	Fields      []interface{}
}

// ToValue converts a Go value into a script value. Slices become lists,
// maps become records, Tagged becomes a variant.
func ToValue(v interface{}) (vm.Value, error) {
	switch v := v.(type) {
	case nil:
		return vm.Unit, nil
	case vm.Value:
		return v, nil
	case bool:
		return vm.BoolValue(v), nil
	case int:
		return vm.IntValue(int64(v)), nil
	case int32:
		return vm.IntValue(int64(v)), nil
	case int64:
		return vm.IntValue(v), nil
	case float32:
		return vm.FloatValue(float64(v)), nil
	case float64:
		return vm.FloatValue(v), nil
	case string:
		return vm.StrValue(v), nil
	case []interface{}:
		elems := make([]vm.Value, len(v))
		for i, e := range v {
			converted, err := ToValue(e)
			if err != nil {
				return vm.Unit, err
			}
			elems[i] = converted
		}
		return vm.ListFromSlice(elems), nil
	case map[string]interface{}:
		names := make([]string, 0, len(v))
		for name := range v {
			names = append(names, name)
		}
		sort.Strings(names)
		values := make([]vm.Value, len(names))
		for i, name := range names {
			converted, err := ToValue(v[name])
			if err != nil {
				return vm.Unit, err
			}
			values[i] = converted
		}
		return vm.RecordValue(names, values), nil
	case Tagged:
		fields := make([]vm.Value, len(v.Fields))
		for i, f := range v.Fields {
			converted, err := ToValue(f)
			if err != nil {
				return vm.Unit, err
			}
			fields[i] = converted
		}
		return vm.VariantValue(v.TypeName, v.VariantName, fields), nil
	}
	return vm.Unit, fmt.Errorf("cannot convert %T to a script value", v)
}

// FromValue converts a script value back into plain Go data. Tuples and
// lists become slices, records become maps, variants become Tagged.
func FromValue(v vm.Value) (interface{}, error) {
	switch v.Kind {
	case vm.KindUnit:
		return nil, nil
	case vm.KindInt:
		return v.Int, nil
	case vm.KindFloat:
		return v.Float, nil
	case vm.KindBool:
		return v.Bool(), nil
	case vm.KindStr:
		return v.Str, nil
	case vm.KindTuple:
		out := make([]interface{}, len(v.Tuple))
		for i, e := range v.Tuple {
			converted, err := FromValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	case vm.KindList:
		elems := vm.ListToSlice(v)
		out := make([]interface{}, len(elems))
		for i, e := range elems {
			converted, err := FromValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	case vm.KindArray:
		out := make([]interface{}, len(v.Array.Elems))
		for i, e := range v.Array.Elems {
			converted, err := FromValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	case vm.KindRecord:
		out := make(map[string]interface{}, len(v.Record.Names))
		for _, name := range v.Record.Names {
			converted, err := FromValue(v.Record.Fields[name])
			if err != nil {
				return nil, err
			}
			out[name] = converted
		}
		return out, nil
	case vm.KindVariant:
		fields := make([]interface{}, len(v.Variant.Fields))
		for i, f := range v.Variant.Fields {
			converted, err := FromValue(f)
			if err != nil {
				return nil, err
			}
			fields[i] = converted
		}
		return Tagged{
			TypeName:    v.Variant.TypeName,
			VariantName: v.Variant.VariantName,
			Fields:      fields,
		}, nil
	}
	return nil, fmt.Errorf("cannot convert a %s to host data", v.Kind)
}
