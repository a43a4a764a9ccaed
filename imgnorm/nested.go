package imgnorm

import (
	"encoding/json"
	"math"
	"reflect"

	"github.com/juju/errors"
)

// nestedToArray flattens a rectangular nested sequence.
//
// Typed Go slices keep their element type ([][]uint16 gives Uint16, [][]int
// gives Int64).  Untyped trees as produced by encoding/json or a CBOR decoder
// give Int64 when every leaf is integral and Float64 otherwise.
func nestedToArray(v interface{}) (*Array, error) {
	if v == nil {
		return nil, ErrMissingInput
	}
	if a, ok := v.(*Array); ok {
		return a, nil
	}
	var (
		shape  []int
		leaves []reflect.Value
	)
	if err := walk(reflect.ValueOf(v), 0, &shape, &leaves); err != nil {
		return nil, errors.Trace(err)
	}
	if len(shape) < 2 || len(shape) > 3 {
		return nil, errors.Annotatef(ErrShape, "expected 2 or 3 dimensions, got %d", len(shape))
	}
	if len(leaves) == 0 {
		return nil, errors.Annotatef(ErrShape, "no elements")
	}

	if untyped(v) && isInteger(leaves[0]) {
		return collect(shape, leaves, Int64, func(n int) interface{} { return make([]int64, n) },
			func(d interface{}, i int, l reflect.Value) { d.([]int64)[i] = toInt64(l) }), nil
	}

	switch leaves[0].Kind() {
	case reflect.Uint8:
		return collect(shape, leaves, Uint8, func(n int) interface{} { return make([]uint8, n) },
			func(d interface{}, i int, l reflect.Value) { d.([]uint8)[i] = uint8(l.Uint()) }), nil
	case reflect.Int8:
		return collect(shape, leaves, Int8, func(n int) interface{} { return make([]int8, n) },
			func(d interface{}, i int, l reflect.Value) { d.([]int8)[i] = int8(l.Int()) }), nil
	case reflect.Uint16:
		return collect(shape, leaves, Uint16, func(n int) interface{} { return make([]uint16, n) },
			func(d interface{}, i int, l reflect.Value) { d.([]uint16)[i] = uint16(l.Uint()) }), nil
	case reflect.Int16:
		return collect(shape, leaves, Int16, func(n int) interface{} { return make([]int16, n) },
			func(d interface{}, i int, l reflect.Value) { d.([]int16)[i] = int16(l.Int()) }), nil
	case reflect.Uint32:
		return collect(shape, leaves, Uint32, func(n int) interface{} { return make([]uint32, n) },
			func(d interface{}, i int, l reflect.Value) { d.([]uint32)[i] = uint32(l.Uint()) }), nil
	case reflect.Int32:
		return collect(shape, leaves, Int32, func(n int) interface{} { return make([]int32, n) },
			func(d interface{}, i int, l reflect.Value) { d.([]int32)[i] = int32(l.Int()) }), nil
	case reflect.Uint64, reflect.Uint:
		return collect(shape, leaves, Uint64, func(n int) interface{} { return make([]uint64, n) },
			func(d interface{}, i int, l reflect.Value) { d.([]uint64)[i] = l.Uint() }), nil
	case reflect.Int64, reflect.Int:
		return collect(shape, leaves, Int64, func(n int) interface{} { return make([]int64, n) },
			func(d interface{}, i int, l reflect.Value) { d.([]int64)[i] = l.Int() }), nil
	case reflect.Float32:
		return collect(shape, leaves, Float32, func(n int) interface{} { return make([]float32, n) },
			func(d interface{}, i int, l reflect.Value) { d.([]float32)[i] = float32(l.Float()) }), nil
	case reflect.Float64:
		if integral(leaves) && untyped(v) {
			return collect(shape, leaves, Int64, func(n int) interface{} { return make([]int64, n) },
				func(d interface{}, i int, l reflect.Value) { d.([]int64)[i] = int64(l.Float()) }), nil
		}
		return collect(shape, leaves, Float64, func(n int) interface{} { return make([]float64, n) },
			func(d interface{}, i int, l reflect.Value) { d.([]float64)[i] = l.Float() }), nil
	}
	return nil, errors.Annotatef(ErrShape, "non-numeric element %s", leaves[0].Type())
}

// walk records the shape of v at each depth and appends the leaves in row-major order
func walk(v reflect.Value, depth int, shape *[]int, leaves *[]reflect.Value) error {
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return errors.Annotatef(ErrShape, "nil element at depth %d", depth)
		}
		v = v.Elem()
	}
	if num, ok := v.Interface().(json.Number); ok {
		f, err := num.Float64()
		if err != nil {
			return errors.Annotatef(ErrShape, "bad number %q", num)
		}
		v = reflect.ValueOf(f)
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if depth == len(*shape) {
			if depth > 0 && len(*leaves) > 0 {
				return errors.Annotatef(ErrShape, "ragged nesting at depth %d", depth)
			}
			*shape = append(*shape, v.Len())
		} else if depth > len(*shape) || (*shape)[depth] != v.Len() {
			return errors.Annotatef(ErrShape, "ragged sequence at depth %d", depth)
		}
		for i := 0; i < v.Len(); i++ {
			if err := walk(v.Index(i), depth+1, shape, leaves); err != nil {
				return err
			}
		}
		return nil
	case reflect.Bool, reflect.String, reflect.Map, reflect.Struct, reflect.Complex64, reflect.Complex128:
		return errors.Annotatef(ErrShape, "non-numeric element %s", v.Type())
	}
	if depth != len(*shape) {
		return errors.Annotatef(ErrShape, "ragged nesting at depth %d", depth)
	}
	if n := len(*leaves); n > 0 && (*leaves)[0].Kind() != v.Kind() {
		// mixed kinds are widened to float64
		v = reflect.ValueOf(toFloat(v))
		if (*leaves)[0].Kind() != reflect.Float64 {
			for i := range *leaves {
				(*leaves)[i] = reflect.ValueOf(toFloat((*leaves)[i]))
			}
		}
	}
	*leaves = append(*leaves, v)
	return nil
}

func toFloat(v reflect.Value) float64 {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint())
	}
	return v.Float()
}

func isInteger(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func toInt64(v reflect.Value) int64 {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(v.Uint())
	}
	return v.Int()
}

// untyped is true when the leaves came through interface{} values, as from a decoder
func untyped(v interface{}) bool {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Slice || t.Kind() == reflect.Array || t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.Interface
}

func integral(leaves []reflect.Value) bool {
	for _, l := range leaves {
		f := l.Float()
		if f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
			return false
		}
	}
	return true
}

func collect(shape []int, leaves []reflect.Value, dt DType, mk func(int) interface{}, set func(interface{}, int, reflect.Value)) *Array {
	data := mk(len(leaves))
	for i, l := range leaves {
		set(data, i, l)
	}
	return &Array{Shape: shape, DType: dt, Data: data}
}
