package ccd

import (
	"github.com/openpmd/ccd/container"
)

// openPMD layout constants
const (
	OpenPMDVersion    = "1.1.0"
	basePath          = "/data/%T/"
	meshesPath        = "shots/"
	iterationEncoding = "groupBased"
	iterationFormat   = "/data/%T/"
	dataGroup         = "/data"
)

// SeriesAttributes are written once to the container root
type SeriesAttributes struct {
	OpenPMD              string
	OpenPMDExtension     uint32
	BasePath             string
	MeshesPath           string
	IterationEncoding    string
	IterationFormat      string
	Author               string
	Software             string
	SoftwareVersion      string
	SoftwareDependencies string
	Machine              string
	Date                 string
	CCDName              string
	CCDModel             string
	CCDSerial            string
}

// NewSeriesAttributes fills the root record from an identity and provenance
func NewSeriesAttributes(id Identity, p Provenance) SeriesAttributes {
	return SeriesAttributes{
		OpenPMD:              OpenPMDVersion,
		OpenPMDExtension:     0,
		BasePath:             basePath,
		MeshesPath:           meshesPath,
		IterationEncoding:    iterationEncoding,
		IterationFormat:      iterationFormat,
		Author:               id.Operator,
		Software:             p.Software,
		SoftwareVersion:      p.SoftwareVersion,
		SoftwareDependencies: p.SoftwareDependencies,
		Machine:              p.Machine,
		Date:                 p.Date,
		CCDName:              id.Name,
		CCDModel:             id.Model,
		CCDSerial:            id.Serial,
	}
}

// Attrs implements the attribute record
func (a SeriesAttributes) Attrs() []container.Attr {
	return []container.Attr{
		{Name: "openPMD", Value: a.OpenPMD},
		{Name: "openPMDextension", Value: a.OpenPMDExtension},
		{Name: "basePath", Value: a.BasePath},
		{Name: "meshesPath", Value: a.MeshesPath},
		{Name: "iterationEncoding", Value: a.IterationEncoding},
		{Name: "iterationFormat", Value: a.IterationFormat},
		{Name: "author", Value: a.Author},
		{Name: "software", Value: a.Software},
		{Name: "softwareVersion", Value: a.SoftwareVersion},
		{Name: "softwareDependencies", Value: a.SoftwareDependencies},
		{Name: "machine", Value: a.Machine},
		{Name: "date", Value: a.Date},
		{Name: "ccdName", Value: a.CCDName},
		{Name: "ccdModel", Value: a.CCDModel},
		{Name: "ccdSerial", Value: a.CCDSerial},
	}
}

// IterationAttributes are written to each /data/{key} group
type IterationAttributes struct {
	// Time is seconds since the Unix epoch
	Time       float64
	Dt         float64
	TimeUnitSI float64
}

// Attrs implements the attribute record
func (a IterationAttributes) Attrs() []container.Attr {
	return []container.Attr{
		{Name: "time", Value: a.Time},
		{Name: "dt", Value: a.Dt},
		{Name: "timeUnitSI", Value: a.TimeUnitSI},
	}
}

// MeshAttributes are written to each pixel dataset
type MeshAttributes struct {
	Geometry         string
	GridSpacing      []float64
	GridGlobalOffset []float64
	GridUnitSI       float64
	Position         []float32
	DataOrder        string
	TimeOffset       float64
	AxisLabels       []string
	UnitSI           float64

	// UnitDimension holds the SI base exponents L, M, T, I, theta, N, J.
	// Pixels are fluence, radiant energy per area: M T^-2.
	UnitDimension []float64

	CCDResolution []float64
	CCDROI        []float64
	CCDROILabels  []string

	// CCDExposureTime is a float64 in seconds or the string Unknown
	CCDExposureTime interface{}
}

// NewMeshAttributes derives the dataset record from a calibration snapshot
func NewMeshAttributes(c Calibration) MeshAttributes {
	var exposure interface{} = Unknown
	if c.ExposureTime != nil {
		exposure = *c.ExposureTime
	}
	return MeshAttributes{
		Geometry:         "cartesian",
		GridSpacing:      []float64{c.Resolution[0], c.Resolution[1]},
		GridGlobalOffset: []float64{c.Region[0], c.Region[1]},
		GridUnitSI:       1.0,
		Position:         []float32{0, 0},
		DataOrder:        "C",
		TimeOffset:       0.0,
		AxisLabels:       []string{"x", "y"},
		UnitSI:           1.0,
		UnitDimension:    []float64{0, 1, -2, 0, 0, 0, 0},
		CCDResolution:    []float64{c.Resolution[0], c.Resolution[1]},
		CCDROI:           []float64{c.Region[0], c.Region[1], c.Region[2], c.Region[3]},
		CCDROILabels:     []string{"x", "y", "w", "h"},
		CCDExposureTime:  exposure,
	}
}

// Attrs implements the attribute record
func (a MeshAttributes) Attrs() []container.Attr {
	return []container.Attr{
		{Name: "geometry", Value: a.Geometry},
		{Name: "gridSpacing", Value: a.GridSpacing},
		{Name: "gridGlobalOffset", Value: a.GridGlobalOffset},
		{Name: "gridUnitSI", Value: a.GridUnitSI},
		{Name: "position", Value: a.Position},
		{Name: "dataOrder", Value: a.DataOrder},
		{Name: "timeOffset", Value: a.TimeOffset},
		{Name: "axisLabels", Value: a.AxisLabels},
		{Name: "unitSI", Value: a.UnitSI},
		{Name: "unitDimension", Value: a.UnitDimension},
		{Name: "ccdResolution", Value: a.CCDResolution},
		{Name: "ccdROI", Value: a.CCDROI},
		{Name: "ccdROILabels", Value: a.CCDROILabels},
		{Name: "ccdExposureTime", Value: a.CCDExposureTime},
	}
}
