/*Package imgnorm turns the accepted image inputs into one canonical pixel array.

A Source states explicitly which representation the caller holds: a path to
an encoded file, a decoded image.Image, an Array, a buffer of encoded bytes,
or a nested numeric sequence.  Normalize resolves every kind to an *Array
with row-major (height, width[, channels]) axes.

*/
package imgnorm

import (
	"image"

	"github.com/juju/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	// ErrMissingInput is returned when neither a path nor in-memory data was given
	ErrMissingInput = errors.ConstError("either an image path or image data is needed")

	// ErrDecode is returned when a path or buffer does not hold a decodable image
	ErrDecode = errors.ConstError("cannot decode image")

	// ErrShape is returned for arrays and sequences that are not dense and rectangular
	ErrShape = errors.ConstError("invalid array shape")
)

// Kind tags the representation held by a Source
type Kind int

const (
	// KindNone is the zero Kind; a Source of this kind is empty
	KindNone Kind = iota
	KindPath
	KindImage
	KindArray
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindPath:
		return "path"
	case KindImage:
		return "image"
	case KindArray:
		return "array"
	case KindBytes:
		return "bytes"
	}
	return "none"
}

// Source is one image in one of the accepted representations.
// The zero value is an empty source.
type Source struct {
	kind  Kind
	path  string
	img   image.Image
	arr   *Array
	bytes []byte
}

// FromPath references an encoded image file on disk
func FromPath(path string) Source {
	if path == "" {
		return Source{}
	}
	return Source{kind: KindPath, path: path}
}

// FromImage wraps an already decoded image
func FromImage(img image.Image) Source {
	if img == nil {
		return Source{}
	}
	return Source{kind: KindImage, img: img}
}

// FromArray wraps a dense array.  It is copied during normalization.
func FromArray(a *Array) Source {
	if a == nil {
		return Source{}
	}
	return Source{kind: KindArray, arr: a}
}

// FromBytes wraps an in-memory encoded image, e.g. the body of a PNG file
func FromBytes(b []byte) Source {
	if len(b) == 0 {
		return Source{}
	}
	return Source{kind: KindBytes, bytes: b}
}

// FromNested converts a nested numeric sequence such as [][]int{{1, 2, 3}, {4, 5, 6}}
// into an array source.  It returns ErrShape for ragged or non-numeric input.
func FromNested(v interface{}) (Source, error) {
	a, err := nestedToArray(v)
	if err != nil {
		return Source{}, errors.Trace(err)
	}
	return Source{kind: KindArray, arr: a}, nil
}

// FromDense converts a gonum matrix to a float64 array source
func FromDense(m mat.Matrix) Source {
	if m == nil {
		return Source{}
	}
	r, c := m.Dims()
	data := make([]float64, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			data[i*c+j] = m.At(i, j)
		}
	}
	return Source{kind: KindArray, arr: &Array{Shape: []int{r, c}, DType: Float64, Data: data}}
}

// FromFrame wraps a strided 16-bit camera frame of the given height and width.
// The buffer is not copied until normalization.
func FromFrame(buf []uint16, height, width int) (Source, error) {
	a, err := NewArray(buf, height, width)
	if err != nil {
		return Source{}, errors.Trace(err)
	}
	return Source{kind: KindArray, arr: a}, nil
}

// Kind reports which representation the source holds
func (s Source) Kind() Kind {
	return s.kind
}

// Empty is true for the zero Source
func (s Source) Empty() bool {
	return s.kind == KindNone
}

// Path returns the referenced file for KindPath sources
func (s Source) Path() string {
	return s.path
}

// Resolve picks the source to normalize from an optional path and optional
// in-memory data.  Data takes precedence over the path.
func Resolve(path string, data Source) (Source, error) {
	if !data.Empty() {
		return data, nil
	}
	if path != "" {
		return FromPath(path), nil
	}
	return Source{}, ErrMissingInput
}
