package imgnorm

import (
	"bytes"
	"os"

	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("ccd.imgnorm")

// Normalize produces the canonical array for a source.
//
// Paths and byte buffers go through the decoder, images are converted
// directly and arrays are deep copied.  The returned array never aliases
// caller memory.
func Normalize(src Source) (*Array, error) {
	switch src.kind {
	case KindImage:
		return ImageToArray(src.img)
	case KindArray:
		if err := src.arr.validate(); err != nil {
			return nil, errors.Trace(err)
		}
		return src.arr.Clone(), nil
	case KindBytes:
		return Decode(bytes.NewReader(src.bytes))
	case KindPath:
		f, err := os.Open(src.path)
		if err != nil {
			return nil, errors.Annotatef(err, "open image %s", src.path)
		}
		defer f.Close()
		arr, err := Decode(f)
		if err != nil {
			return nil, errors.Annotatef(err, "image %s", src.path)
		}
		logger.Tracef("decoded %s as %s %v", src.path, arr.DType, arr.Shape)
		return arr, nil
	}
	return nil, ErrMissingInput
}
