package imgnorm

import (
	"io"

	"github.com/mdouchement/hdr/codec/rgbe"
)

// decodeRGBE reads a Radiance .hdr file into a float32 (H, W, 3) array
func decodeRGBE(r io.Reader) (*Array, error) {
	img, err := rgbe.Decode(r)
	if err != nil {
		return nil, err
	}
	return ImageToArray(img)
}
