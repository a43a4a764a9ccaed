package imgnorm

import (
	"fmt"
	"io"

	"github.com/astrogo/fitsio"
)

// bzero16 is the offset scientific cameras use to store uint16 frames in
// signed 16-bit FITS images
const bzero16 = 32768

// decodeFITS reads the primary image HDU of a FITS stream.
//
// FITS axes run fastest-first: NAXIS1 is the width, NAXIS2 the height and
// a NAXIS3 counts colour planes.  Reversing the axes gives row-major
// (H, W) or (C, H, W); cubes are then interleaved to (H, W, C).
func decodeFITS(r io.Reader) (*Array, error) {
	f, err := fitsio.Open(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	hdu := f.HDU(0)
	im, ok := hdu.(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("primary HDU is not an image")
	}
	hdr := im.Header()
	axes := hdr.Axes()
	if len(axes) < 2 || len(axes) > 3 {
		return nil, fmt.Errorf("expected 2 or 3 axes, got %v", axes)
	}
	shape := make([]int, len(axes))
	n := 1
	for i, a := range axes {
		shape[len(axes)-1-i] = a
		n *= a
	}

	arr, err := readFITSData(im, hdr, shape, n)
	if err != nil {
		return nil, err
	}
	if len(shape) == 3 {
		arr = interleave(arr)
	}
	return arr, nil
}

func readFITSData(im fitsio.Image, hdr *fitsio.Header, shape []int, n int) (*Array, error) {
	switch bitpix := hdr.Bitpix(); bitpix {
	case 8:
		buf := make([]byte, n)
		if err := im.Read(&buf); err != nil {
			return nil, err
		}
		return &Array{Shape: shape, DType: Uint8, Data: buf}, nil
	case 16:
		buf := make([]int16, n)
		if err := im.Read(&buf); err != nil {
			return nil, err
		}
		if cardInt(hdr, "BZERO") == bzero16 {
			out := make([]uint16, n)
			for i, v := range buf {
				out[i] = uint16(int32(v) + bzero16)
			}
			return &Array{Shape: shape, DType: Uint16, Data: out}, nil
		}
		return &Array{Shape: shape, DType: Int16, Data: buf}, nil
	case 32:
		buf := make([]int32, n)
		if err := im.Read(&buf); err != nil {
			return nil, err
		}
		return &Array{Shape: shape, DType: Int32, Data: buf}, nil
	case 64:
		buf := make([]int64, n)
		if err := im.Read(&buf); err != nil {
			return nil, err
		}
		return &Array{Shape: shape, DType: Int64, Data: buf}, nil
	case -32:
		buf := make([]float32, n)
		if err := im.Read(&buf); err != nil {
			return nil, err
		}
		return &Array{Shape: shape, DType: Float32, Data: buf}, nil
	case -64:
		buf := make([]float64, n)
		if err := im.Read(&buf); err != nil {
			return nil, err
		}
		return &Array{Shape: shape, DType: Float64, Data: buf}, nil
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
	}
}

// cardInt returns the integral value of a header card, or 0 if it is absent
func cardInt(hdr *fitsio.Header, name string) int64 {
	card := hdr.Get(name)
	if card == nil {
		return 0
	}
	switch v := card.Value.(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}
