package imgnorm

import (
	"image"
	"image/color"

	"github.com/juju/errors"
	"github.com/mdouchement/hdr"
)

// ImageToArray converts a decoded image to an array.
//
// Grayscale and paletted images become (H, W); colour images become
// (H, W, 3), or (H, W, 4) when their colour model has an alpha channel
// (NRGBA, NRGBA64, NYCbCrA), whatever the alpha values are.  Sample depth is
// kept: 8-bit models give uint8, 16-bit models give uint16 and HDR images
// give float32.
func ImageToArray(img image.Image) (*Array, error) {
	if img == nil {
		return nil, ErrMissingInput
	}
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	if h <= 0 || w <= 0 {
		return nil, errors.Annotatef(ErrShape, "empty image bounds %v", b)
	}

	switch im := img.(type) {
	case *image.Gray:
		out := make([]uint8, 0, h*w)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := im.PixOffset(b.Min.X, y)
			out = append(out, im.Pix[off:off+w]...)
		}
		return &Array{Shape: []int{h, w}, DType: Uint8, Data: out}, nil

	case *image.Gray16:
		out := make([]uint16, 0, h*w)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				out = append(out, im.Gray16At(x, y).Y)
			}
		}
		return &Array{Shape: []int{h, w}, DType: Uint16, Data: out}, nil

	case *image.Paletted:
		out := make([]uint8, 0, h*w)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := im.PixOffset(b.Min.X, y)
			out = append(out, im.Pix[off:off+w]...)
		}
		return &Array{Shape: []int{h, w}, DType: Uint8, Data: out}, nil

	case *image.CMYK:
		out := make([]uint8, 0, h*w*4)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := im.PixOffset(b.Min.X, y)
			out = append(out, im.Pix[off:off+4*w]...)
		}
		return &Array{Shape: []int{h, w, 4}, DType: Uint8, Data: out}, nil

	case hdr.Image:
		out := make([]float32, 0, h*w*3)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, _ := im.HDRAt(x, y).HDRRGBA()
				out = append(out, float32(r), float32(g), float32(bl))
			}
		}
		return &Array{Shape: []int{h, w, 3}, DType: Float32, Data: out}, nil

	case *image.RGBA64, *image.NRGBA64:
		return colorToArray16(img, h, w), nil
	}
	return colorToArray8(img, h, w), nil
}

// channels is 4 for colour models that carry straight alpha and 3
// otherwise.  It depends on the type only, never on pixel values, so every
// frame from one source has the same shape.
func channels(img image.Image) int {
	switch img.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.NYCbCrA:
		return 4
	}
	switch img.ColorModel() {
	case color.NRGBAModel, color.NRGBA64Model, color.NYCbCrAModel:
		return 4
	}
	return 3
}

func colorToArray8(img image.Image, h, w int) *Array {
	b := img.Bounds()
	ch := channels(img)
	out := make([]uint8, 0, h*w*ch)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out = append(out, c.R, c.G, c.B)
			if ch == 4 {
				out = append(out, c.A)
			}
		}
	}
	return &Array{Shape: []int{h, w, ch}, DType: Uint8, Data: out}
}

func colorToArray16(img image.Image, h, w int) *Array {
	b := img.Bounds()
	ch := channels(img)
	out := make([]uint16, 0, h*w*ch)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
			out = append(out, c.R, c.G, c.B)
			if ch == 4 {
				out = append(out, c.A)
			}
		}
	}
	return &Array{Shape: []int{h, w, ch}, DType: Uint16, Data: out}
}
