package imgnorm

import (
	"fmt"
	"reflect"

	"github.com/juju/errors"
)

// DType is the element type of an Array
type DType int

const (
	// Invalid is the zero DType and never appears in a normalized array
	Invalid DType = iota
	Uint8
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Uint64
	Int64
	Float32
	Float64
)

var dtypeNames = map[DType]string{
	Uint8:   "uint8",
	Int8:    "int8",
	Uint16:  "uint16",
	Int16:   "int16",
	Uint32:  "uint32",
	Int32:   "int32",
	Uint64:  "uint64",
	Int64:   "int64",
	Float32: "float32",
	Float64: "float64",
}

// String returns the numpy-style name of the dtype, e.g. "uint16"
func (d DType) String() string {
	if s, ok := dtypeNames[d]; ok {
		return s
	}
	return fmt.Sprintf("DType(%d)", int(d))
}

// Size is the width of one element in bytes
func (d DType) Size() int {
	switch d {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	case Uint64, Int64, Float64:
		return 8
	}
	return 0
}

// dtypeOf maps a flat slice to its DType
func dtypeOf(data interface{}) DType {
	switch data.(type) {
	case []uint8:
		return Uint8
	case []int8:
		return Int8
	case []uint16:
		return Uint16
	case []int16:
		return Int16
	case []uint32:
		return Uint32
	case []int32:
		return Int32
	case []uint64:
		return Uint64
	case []int64:
		return Int64
	case []float32:
		return Float32
	case []float64:
		return Float64
	}
	return Invalid
}

// Array is the canonical pixel array.
//
// Data holds a flat, row-major slice whose element type matches DType
// ([]uint8 for Uint8, []float64 for Float64 and so on).  Shape is
// (height, width) or (height, width, channels).
type Array struct {
	Shape []int
	DType DType
	Data  interface{}
}

// NewArray wraps a flat slice with a shape.  The slice is not copied.
func NewArray(data interface{}, shape ...int) (*Array, error) {
	dt := dtypeOf(data)
	if dt == Invalid {
		return nil, errors.Annotatef(ErrShape, "unsupported element slice %T", data)
	}
	if len(shape) < 1 {
		return nil, errors.Annotatef(ErrShape, "empty shape")
	}
	n := 1
	for _, s := range shape {
		if s < 0 {
			return nil, errors.Annotatef(ErrShape, "negative dimension in %v", shape)
		}
		n *= s
	}
	if l := reflect.ValueOf(data).Len(); l != n {
		return nil, errors.Annotatef(ErrShape, "%d elements do not fill shape %v", l, shape)
	}
	return &Array{Shape: append([]int(nil), shape...), DType: dt, Data: data}, nil
}

// Len is the number of elements in the array
func (a *Array) Len() int {
	if a == nil || a.Data == nil {
		return 0
	}
	return reflect.ValueOf(a.Data).Len()
}

// Height is the first axis length
func (a *Array) Height() int {
	if len(a.Shape) < 1 {
		return 0
	}
	return a.Shape[0]
}

// Width is the second axis length, or 1 for a one-dimensional array
func (a *Array) Width() int {
	if len(a.Shape) < 2 {
		return 1
	}
	return a.Shape[1]
}

// Channels is the third axis length, or 1 for a two-dimensional array
func (a *Array) Channels() int {
	if len(a.Shape) < 3 {
		return 1
	}
	return a.Shape[2]
}

// Clone returns a deep copy
func (a *Array) Clone() *Array {
	if a == nil {
		return nil
	}
	src := reflect.ValueOf(a.Data)
	dst := reflect.MakeSlice(src.Type(), src.Len(), src.Len())
	reflect.Copy(dst, src)
	return &Array{
		Shape: append([]int(nil), a.Shape...),
		DType: a.DType,
		Data:  dst.Interface(),
	}
}

// Planes returns a copy of a (H, W, C) array with the channels stored as
// consecutive (H, W) planes, shape (C, H, W).  Two-axis arrays are copied
// unchanged.
func (a *Array) Planes() *Array {
	if len(a.Shape) != 3 {
		return a.Clone()
	}
	h, w, c := a.Shape[0], a.Shape[1], a.Channels()
	return &Array{
		Shape: []int{c, h, w},
		DType: a.DType,
		Data:  transposeData(a.Data, h*w, c),
	}
}

// interleave is the inverse of Planes: (C, H, W) becomes (H, W, C)
func interleave(a *Array) *Array {
	c, h, w := a.Shape[0], a.Shape[1], a.Shape[2]
	return &Array{
		Shape: []int{h, w, c},
		DType: a.DType,
		Data:  transposeData(a.Data, c, h*w),
	}
}

// transposeData transposes flat row-major rows×cols data into a new slice
func transposeData(data interface{}, rows, cols int) interface{} {
	switch d := data.(type) {
	case []uint8:
		return transpose(d, rows, cols)
	case []int8:
		return transpose(d, rows, cols)
	case []uint16:
		return transpose(d, rows, cols)
	case []int16:
		return transpose(d, rows, cols)
	case []uint32:
		return transpose(d, rows, cols)
	case []int32:
		return transpose(d, rows, cols)
	case []uint64:
		return transpose(d, rows, cols)
	case []int64:
		return transpose(d, rows, cols)
	case []float32:
		return transpose(d, rows, cols)
	case []float64:
		return transpose(d, rows, cols)
	}
	return data
}

func transpose[T any](src []T, rows, cols int) []T {
	out := make([]T, len(src))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out[j*rows+i] = src[i*cols+j]
		}
	}
	return out
}

// Float64At returns element i of the flat data widened to float64
func (a *Array) Float64At(i int) float64 {
	switch d := a.Data.(type) {
	case []uint8:
		return float64(d[i])
	case []int8:
		return float64(d[i])
	case []uint16:
		return float64(d[i])
	case []int16:
		return float64(d[i])
	case []uint32:
		return float64(d[i])
	case []int32:
		return float64(d[i])
	case []uint64:
		return float64(d[i])
	case []int64:
		return float64(d[i])
	case []float32:
		return float64(d[i])
	case []float64:
		return d[i]
	}
	return 0
}

// validate checks that Data, DType and Shape agree
func (a *Array) validate() error {
	if a == nil {
		return errors.Annotatef(ErrShape, "nil array")
	}
	if dt := dtypeOf(a.Data); dt == Invalid || dt != a.DType {
		return errors.Annotatef(ErrShape, "data %T does not match dtype %s", a.Data, a.DType)
	}
	n := 1
	for _, s := range a.Shape {
		n *= s
	}
	if len(a.Shape) == 0 || n != a.Len() {
		return errors.Annotatef(ErrShape, "%d elements do not fill shape %v", a.Len(), a.Shape)
	}
	return nil
}
