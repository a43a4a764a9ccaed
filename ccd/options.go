package ccd

import (
	"os"
	"time"

	"github.com/openpmd/ccd/container"
	"github.com/openpmd/ccd/imgnorm"
)

// Unknown is written for identity fields and the exposure time when the
// caller did not provide them
const Unknown = "unknown"

// DefaultBackend is the container backend used when Options.Backend is nil
const DefaultBackend = "hdf5"

// Identity describes the camera and who operates it
type Identity struct {
	Name     string `json:"name" yaml:"name" koanf:"name"`
	Model    string `json:"model" yaml:"model" koanf:"model"`
	Serial   string `json:"serial" yaml:"serial" koanf:"serial"`
	Operator string `json:"operator" yaml:"operator" koanf:"operator"`
}

func (id Identity) resolved() Identity {
	for _, f := range []*string{&id.Name, &id.Model, &id.Serial, &id.Operator} {
		if *f == "" {
			*f = Unknown
		}
	}
	return id
}

// Calibration is the spatial and temporal calibration applied to images
// as they are written
type Calibration struct {
	// Resolution is the sampling step along x and y, in meters
	Resolution [2]float64 `json:"resolution"`

	// Region is the region of interest: offset x, offset y, width, height
	Region [4]float64 `json:"region"`

	// ExposureTime in seconds; nil when unknown
	ExposureTime *float64 `json:"exposureTime"`
}

// DefaultCalibration is the calibration of a series opened without one
func DefaultCalibration() Calibration {
	return Calibration{
		Resolution: [2]float64{1, 1},
		Region:     [4]float64{0, 0, 1, 1},
	}
}

// Copy returns a deep copy of c
func (c Calibration) Copy() Calibration {
	if c.ExposureTime != nil {
		e := *c.ExposureTime
		c.ExposureTime = &e
	}
	return c
}

// Apply returns c with every field set in u replaced
func (c Calibration) Apply(u Recalibration) Calibration {
	c = c.Copy()
	if u.Resolution != nil {
		c.Resolution = *u.Resolution
	}
	if u.Region != nil {
		c.Region = *u.Region
	}
	if u.ExposureTime != nil {
		e := *u.ExposureTime
		c.ExposureTime = &e
	}
	return c
}

// Recalibration is a partial calibration update; nil fields keep their
// previous value
type Recalibration struct {
	Resolution   *[2]float64 `json:"resolution,omitempty"`
	Region       *[4]float64 `json:"region,omitempty"`
	ExposureTime *float64    `json:"exposureTime,omitempty"`
}

// Empty is true if u changes nothing
func (u Recalibration) Empty() bool {
	return u.Resolution == nil && u.Region == nil && u.ExposureTime == nil
}

// Record describes one image after it has been written.  The Array must
// not be modified.
type Record struct {
	// Series is the path of the container the image went into
	Series string

	ImageNumber int
	Key         string

	// Dataset is the object path of the pixel data
	Dataset string

	Time        time.Time
	Identity    Identity
	Calibration Calibration
	Array       *imgnorm.Array
}

// Options modifies Open.  The zero value opens a series with every
// optional field at its default.
type Options struct {
	Identity Identity

	// initial calibration, each field optional
	Resolution   *[2]float64
	Region       *[4]float64
	ExposureTime *float64

	// Overwrite replaces an existing file at the path; when false, Open
	// fails with an AlreadyExists error instead
	Overwrite bool

	// DisableSWMR turns off single-writer/multi-reader preparation of the
	// container, which is on by default
	DisableSWMR bool

	// ReplaceSpaces turns spaces in the file name into underscores
	ReplaceSpaces bool

	// Compression is passed through to every dataset
	Compression *container.Compression

	// Backend is the storage engine; nil means the registered DefaultBackend
	Backend container.Backend

	// OnWrite is called after each successful Add
	OnWrite func(Record)

	// Now is the clock; nil means time.Now
	Now func() time.Time

	// Hostname is recorded as the machine; empty means os.Hostname
	Hostname string
}

func (o Options) calibration() Calibration {
	return DefaultCalibration().Apply(Recalibration{
		Resolution:   o.Resolution,
		Region:       o.Region,
		ExposureTime: o.ExposureTime,
	})
}

func (o Options) backend() (container.Backend, error) {
	if o.Backend != nil {
		return o.Backend, nil
	}
	return container.Lookup(DefaultBackend)
}

func (o Options) clock() func() time.Time {
	if o.Now != nil {
		return o.Now
	}
	return time.Now
}

func (o Options) hostname() string {
	if o.Hostname != "" {
		return o.Hostname
	}
	h, err := os.Hostname()
	if err != nil {
		logger.Warningf("cannot determine host name: %v", err)
		return Unknown
	}
	return h
}
