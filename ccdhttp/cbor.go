package ccdhttp

import (
	"encoding/binary"
	"math"

	"github.com/fxamacker/cbor/v2"
	"github.com/juju/errors"
	"github.com/openpmd/ccd/imgnorm"
)

// RFC 8746 tags
const (
	tagMultiDimArray = 40
	tagUint8         = 64
	tagUint16LE      = 69
	tagUint32LE      = 70
	tagUint64LE      = 71
	tagInt8          = 72
	tagInt16LE       = 77
	tagInt32LE       = 78
	tagInt64LE       = 79
	tagFloat32LE     = 85
	tagFloat64LE     = 86
)

// decodeCBOR turns a CBOR body into an image source.  The body is either a
// row-major multi-dimensional array (tag 40) over a typed array, or plain
// nested arrays of numbers.
func decodeCBOR(body []byte) (imgnorm.Source, error) {
	var v interface{}
	if err := cbor.Unmarshal(body, &v); err != nil {
		return imgnorm.Source{}, errors.NewNotValid(err, "cbor body")
	}
	if tag, ok := v.(cbor.Tag); ok {
		arr, err := decodeMultiDimArray(tag)
		if err != nil {
			return imgnorm.Source{}, err
		}
		return imgnorm.FromArray(arr), nil
	}
	return imgnorm.FromNested(v)
}

func decodeMultiDimArray(tag cbor.Tag) (*imgnorm.Array, error) {
	if tag.Number != tagMultiDimArray {
		return nil, errors.NotValidf("cbor tag %d, expected multidim tag 40", tag.Number)
	}
	items, ok := tag.Content.([]interface{})
	if !ok || len(items) != 2 {
		return nil, errors.NotValidf("multidim array content")
	}
	dimsRaw, ok := items[0].([]interface{})
	if !ok {
		return nil, errors.NotValidf("multidim dimensions")
	}
	dims := make([]int, len(dimsRaw))
	for i, d := range dimsRaw {
		n, err := toInt(d)
		if err != nil {
			return nil, err
		}
		dims[i] = n
	}
	typed, ok := items[1].(cbor.Tag)
	if !ok {
		return nil, errors.NotValidf("multidim data is not a typed array")
	}
	flat, err := decodeTypedArray(typed)
	if err != nil {
		return nil, err
	}
	return imgnorm.NewArray(flat, dims...)
}

func decodeTypedArray(tag cbor.Tag) (interface{}, error) {
	data, ok := tag.Content.([]byte)
	if !ok {
		return nil, errors.NotValidf("typed array content %T", tag.Content)
	}
	width := map[uint64]int{
		tagUint8: 1, tagInt8: 1,
		tagUint16LE: 2, tagInt16LE: 2,
		tagUint32LE: 4, tagInt32LE: 4, tagFloat32LE: 4,
		tagUint64LE: 8, tagInt64LE: 8, tagFloat64LE: 8,
	}[tag.Number]
	if width == 0 {
		return nil, errors.NotSupportedf("typed array tag %d", tag.Number)
	}
	if len(data)%width != 0 {
		return nil, errors.NotValidf("%d bytes for %d-byte elements", len(data), width)
	}
	n := len(data) / width
	le := binary.LittleEndian
	switch tag.Number {
	case tagUint8:
		return append([]uint8(nil), data...), nil
	case tagInt8:
		out := make([]int8, n)
		for i := range out {
			out[i] = int8(data[i])
		}
		return out, nil
	case tagUint16LE:
		out := make([]uint16, n)
		for i := range out {
			out[i] = le.Uint16(data[i*2:])
		}
		return out, nil
	case tagInt16LE:
		out := make([]int16, n)
		for i := range out {
			out[i] = int16(le.Uint16(data[i*2:]))
		}
		return out, nil
	case tagUint32LE:
		out := make([]uint32, n)
		for i := range out {
			out[i] = le.Uint32(data[i*4:])
		}
		return out, nil
	case tagInt32LE:
		out := make([]int32, n)
		for i := range out {
			out[i] = int32(le.Uint32(data[i*4:]))
		}
		return out, nil
	case tagFloat32LE:
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(le.Uint32(data[i*4:]))
		}
		return out, nil
	case tagUint64LE:
		out := make([]uint64, n)
		for i := range out {
			out[i] = le.Uint64(data[i*8:])
		}
		return out, nil
	case tagInt64LE:
		out := make([]int64, n)
		for i := range out {
			out[i] = int64(le.Uint64(data[i*8:]))
		}
		return out, nil
	default: // tagFloat64LE
		out := make([]float64, n)
		for i := range out {
			out[i] = math.Float64frombits(le.Uint64(data[i*8:]))
		}
		return out, nil
	}
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case uint64:
		return int(n), nil
	case int64:
		return int(n), nil
	}
	return 0, errors.NotValidf("dimension %v", v)
}
