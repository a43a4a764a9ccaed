package imgnorm

import (
	"bytes"
	"image"
	"io"

	// registered with image.Decode
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/juju/errors"
)

var (
	fitsMagic  = []byte("SIMPLE  =")
	rgbeMagics = [][]byte{[]byte("#?RADIANCE"), []byte("#?RGBE")}
)

// Decode reads one encoded image and converts it to an array.
//
// FITS primary images and Radiance HDR files are recognized by their magic
// bytes; everything else goes through image.Decode, which knows PNG, JPEG,
// GIF, TIFF and BMP.  Any failure is reported as ErrDecode.
func Decode(r io.ReadSeeker) (*Array, error) {
	head := make([]byte, 16)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, errors.Annotatef(ErrDecode, "read header: %v", err)
	}
	head = head[:n]
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Annotatef(ErrDecode, "rewind: %v", err)
	}

	switch {
	case bytes.HasPrefix(head, fitsMagic):
		arr, err := decodeFITS(r)
		if err != nil {
			return nil, errors.Annotatef(ErrDecode, "fits: %v", err)
		}
		return arr, nil
	case hasAnyPrefix(head, rgbeMagics):
		arr, err := decodeRGBE(r)
		if err != nil {
			return nil, errors.Annotatef(ErrDecode, "rgbe: %v", err)
		}
		return arr, nil
	}

	img, format, err := image.Decode(r)
	if err != nil {
		return nil, errors.Annotatef(ErrDecode, "%v", err)
	}
	logger.Tracef("decoded %s image %v", format, img.Bounds())
	return ImageToArray(img)
}

func hasAnyPrefix(b []byte, prefixes [][]byte) bool {
	for _, p := range prefixes {
		if bytes.HasPrefix(b, p) {
			return true
		}
	}
	return false
}
