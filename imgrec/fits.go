package imgrec

import (
	"io"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/juju/errors"
	"github.com/openpmd/ccd/ccd"
	"github.com/openpmd/ccd/imgnorm"
)

// Cards are the header cards describing a written image
func Cards(rec ccd.Record) []fitsio.Card {
	c := rec.Calibration
	cards := []fitsio.Card{
		{Name: "CCDNAME", Value: rec.Identity.Name, Comment: "camera name"},
		{Name: "CCDMODEL", Value: rec.Identity.Model, Comment: "camera model"},
		{Name: "CCDSER", Value: rec.Identity.Serial, Comment: "camera serial number"},
		{Name: "OPERATOR", Value: rec.Identity.Operator},
		{Name: "IMGNUM", Value: rec.ImageNumber, Comment: "image number in series"},
		{Name: "DATE-OBS", Value: rec.Time.UTC().Format(time.RFC3339Nano)},
		{Name: "RESX", Value: c.Resolution[0], Comment: "[m] sampling along x"},
		{Name: "RESY", Value: c.Resolution[1], Comment: "[m] sampling along y"},
		{Name: "ROIX", Value: c.Region[0]},
		{Name: "ROIY", Value: c.Region[1]},
		{Name: "ROIW", Value: c.Region[2]},
		{Name: "ROIH", Value: c.Region[3]},
	}
	if c.ExposureTime != nil {
		cards = append(cards, fitsio.Card{Name: "EXPTIME", Value: *c.ExposureTime, Comment: "[s]"})
	}
	return cards
}

// dataRange returns the smallest and largest pixel value of arr
func dataRange(arr *imgnorm.Array) (lo, hi float64) {
	lo, hi = arr.Float64At(0), arr.Float64At(0)
	for i, n := 1, arr.Len(); i < n; i++ {
		v := arr.Float64At(i)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// WriteFITS streams arr as a single-HDU fits file to w.  Unsigned 16 and
// 32 bit data are stored signed with the customary BZERO offset.  Colour
// images are written as a cube of NAXIS3 channel planes.
func WriteFITS(w io.Writer, arr *imgnorm.Array, metadata []fitsio.Card) error {
	if arr == nil || arr.Len() == 0 {
		return errors.NotValidf("empty image")
	}
	lo, hi := dataRange(arr)
	metadata = append(metadata,
		fitsio.Card{Name: "DATAMIN", Value: lo, Comment: "minimum pixel value"},
		fitsio.Card{Name: "DATAMAX", Value: hi, Comment: "maximum pixel value"})
	if len(arr.Shape) == 3 {
		arr = arr.Planes()
	}
	// fits axes are fastest-first
	dims := make([]int, len(arr.Shape))
	for i, s := range arr.Shape {
		dims[len(dims)-1-i] = s
	}

	var (
		bitpix int
		data   interface{}
	)
	switch d := arr.Data.(type) {
	case []uint8:
		bitpix, data = 8, d
	case []int8:
		ints := make([]int16, len(d))
		for i, v := range d {
			ints[i] = int16(v)
		}
		bitpix, data = 16, ints
	case []int16:
		bitpix, data = 16, d
	case []uint16:
		ints := make([]int16, len(d))
		for i, v := range d {
			ints[i] = int16(int32(v) - 32768)
		}
		bitpix, data = 16, ints
		metadata = append(metadata, fitsio.Card{Name: "BZERO", Value: 32768}, fitsio.Card{Name: "BSCALE", Value: 1.0})
	case []int32:
		bitpix, data = 32, d
	case []uint32:
		ints := make([]int32, len(d))
		for i, v := range d {
			ints[i] = int32(int64(v) - 2147483648)
		}
		bitpix, data = 32, ints
		metadata = append(metadata, fitsio.Card{Name: "BZERO", Value: 2147483648}, fitsio.Card{Name: "BSCALE", Value: 1.0})
	case []int64:
		bitpix, data = 64, d
	case []float32:
		bitpix, data = -32, d
	case []float64:
		bitpix, data = -64, d
	default:
		return errors.NotSupportedf("fits data type %s", arr.DType)
	}

	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(bitpix, dims)
	defer im.Close()
	if err = im.Header().Append(metadata...); err != nil {
		return err
	}
	if err = im.Write(data); err != nil {
		return err
	}
	return fits.Write(im)
}
