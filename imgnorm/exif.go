package imgnorm

import (
	"os"

	"github.com/juju/errors"
	"github.com/rwcarlsen/goexif/exif"
)

// ExposureFromEXIF reads the EXIF ExposureTime tag of an image file, in seconds
func ExposureFromEXIF(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Trace(err)
	}
	defer f.Close()

	ex, err := exif.Decode(f)
	if err != nil {
		return 0, errors.Annotatef(err, "exif parsing %s", path)
	}
	tag, err := ex.Get(exif.ExposureTime)
	if _, ok := err.(exif.TagNotPresentError); ok {
		return 0, errors.NotFoundf("exif ExposureTime in %s", path)
	}
	if err != nil {
		return 0, errors.Annotatef(err, "exif ExposureTime %s", path)
	}
	num, denom, err := tag.Rat2(0)
	if err != nil {
		return 0, errors.Annotatef(err, "exif ExposureTime %s", path)
	}
	if denom == 0 {
		return 0, errors.NotValidf("exif ExposureTime %d/0 in %s", num, path)
	}
	return float64(num) / float64(denom), nil
}
