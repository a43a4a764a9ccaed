/*Package ccd writes camera image series into openPMD containers.

A Series is one acquisition run.  Open establishes the container and the
root metadata, Add writes one image per call under /data/{NNNNNN}, and
Recalibrate changes the calibration stamped on subsequent images:

	s, err := ccd.Open("cam1_ccd.h5", ccd.Options{
		Identity:   ccd.Identity{Name: "cam1"},
		Resolution: &[2]float64{2e-6, 2e-6},
	})
	if err != nil {
		return err
	}
	defer s.Close()
	err = s.Add(0, "frame0.png", imgnorm.Source{})

A Series is not safe for concurrent use.
*/
package ccd

import (
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/openpmd/ccd/container"
	"github.com/openpmd/ccd/imgnorm"
)

var logger = loggo.GetLogger("ccd")

// ErrNotWritable is returned by operations on a series that is not in
// write mode
const ErrNotWritable = errors.ConstError("series is not in write mode")

// Mode is the state of a series
type Mode int

const (
	// ModeWrite accepts images
	ModeWrite Mode = iota

	// ModeClosed is terminal
	ModeClosed
)

func (m Mode) String() string {
	switch m {
	case ModeWrite:
		return "write"
	case ModeClosed:
		return "closed"
	}
	return "invalid"
}

// Series is an open image series
type Series struct {
	path        string
	mode        Mode
	w           container.Writer
	identity    Identity
	cal         Calibration
	prov        Provenance
	swmr        bool
	compression *container.Compression
	onWrite     func(Record)
	now         func() time.Time
}

// Open creates the container at path and writes the series metadata.
// Either the series is fully established or no container is left behind.
func Open(path string, opts Options) (*Series, error) {
	backend, err := opts.backend()
	if err != nil {
		return nil, errors.Trace(err)
	}
	path = SanitizePath(path, opts.ReplaceSpaces)
	if !opts.Overwrite {
		exists, err := backend.Exists(path)
		if err != nil {
			return nil, errors.Annotatef(err, "check %s", path)
		}
		if exists {
			return nil, errors.AlreadyExistsf("file %q", path)
		}
	}

	s := &Series{
		path:        path,
		identity:    opts.Identity.resolved(),
		cal:         opts.calibration(),
		swmr:        !opts.DisableSWMR,
		compression: opts.Compression,
		onWrite:     opts.OnWrite,
		now:         opts.clock(),
	}
	s.prov = newProvenance(backend, opts.hostname(), s.now())

	w, err := backend.Create(path, container.CreateOptions{Truncate: opts.Overwrite, SWMR: s.swmr})
	if err != nil {
		return nil, errors.Annotatef(err, "create series %s", path)
	}
	if err := establish(w, NewSeriesAttributes(s.identity, s.prov)); err != nil {
		if cerr := w.Close(); cerr != nil {
			logger.Warningf("closing partial series %s: %v", path, cerr)
		}
		if rerr := backend.Remove(path); rerr != nil {
			logger.Warningf("removing partial series %s: %v", path, rerr)
		}
		return nil, errors.Annotatef(err, "initialize series %s", path)
	}
	s.w = w
	s.mode = ModeWrite
	logger.Infof("opened series %s for camera %s", path, s.identity.Name)
	return s, nil
}

func establish(w container.Writer, root SeriesAttributes) error {
	if err := w.SetAttrs("/", root.Attrs()...); err != nil {
		return errors.Trace(err)
	}
	if err := w.CreateGroup(dataGroup); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(w.Flush())
}

// Path is the sanitized path of the container
func (s *Series) Path() string { return s.path }

// Mode is the current state of the series
func (s *Series) Mode() Mode { return s.mode }

// Identity is the resolved camera identity
func (s *Series) Identity() Identity { return s.identity }

// Provenance is what was recorded at Open
func (s *Series) Provenance() Provenance { return s.prov }

// Calibration returns a copy of the current calibration
func (s *Series) Calibration() Calibration { return s.cal.Copy() }

// Recalibrate replaces the calibration fields set in u.  Nothing is written
// until the next Add.
func (s *Series) Recalibrate(u Recalibration) error {
	if s.mode != ModeWrite {
		return errors.Annotatef(ErrNotWritable, "recalibrate %s", s.path)
	}
	s.cal = s.cal.Apply(u)
	logger.Debugf("recalibrated %s: %+v", s.path, s.cal)
	return nil
}

// Add writes one image.  imageData takes precedence over imagePath; at
// least one must be given.  The image number is not checked; reusing one
// fails with the backend's AlreadyExists error and leaves the series
// writable.
func (s *Series) Add(imageNumber int, imagePath string, imageData imgnorm.Source) error {
	if s.mode != ModeWrite {
		return errors.Annotatef(ErrNotWritable, "add image %d to %s", imageNumber, s.path)
	}
	src, err := imgnorm.Resolve(imagePath, imageData)
	if err != nil {
		return errors.Annotatef(err, "image %d", imageNumber)
	}
	arr, err := imgnorm.Normalize(src)
	if err != nil {
		return errors.Annotatef(err, "image %d", imageNumber)
	}

	cal := s.cal.Copy()
	now := s.now()
	group := ImagePath(imageNumber)
	dataset := DatasetPath(imageNumber)
	if err := s.w.CreateGroup(group); err != nil {
		return errors.Trace(err)
	}
	if err := s.w.CreateGroup(container.Parent(dataset)); err != nil {
		return errors.Trace(err)
	}
	if err := s.w.CreateDataset(dataset, arr, container.DatasetOptions{Compression: s.compression}); err != nil {
		return errors.Trace(err)
	}
	iter := IterationAttributes{Time: epochSeconds(now), Dt: 0, TimeUnitSI: 1}
	if err := s.w.SetAttrs(group, iter.Attrs()...); err != nil {
		return errors.Trace(err)
	}
	if err := s.w.SetAttrs(dataset, NewMeshAttributes(cal).Attrs()...); err != nil {
		return errors.Trace(err)
	}
	if s.swmr {
		if err := s.w.Flush(); err != nil {
			return errors.Trace(err)
		}
	}
	logger.Tracef("wrote %s%s %s%v", s.path, dataset, arr.DType, arr.Shape)

	if s.onWrite != nil {
		s.onWrite(Record{
			Series:      s.path,
			ImageNumber: imageNumber,
			Key:         ImageKey(imageNumber),
			Dataset:     dataset,
			Time:        now,
			Identity:    s.identity,
			Calibration: cal,
			Array:       arr,
		})
	}
	return nil
}

// Close flushes and releases the container.  Closing twice returns
// ErrNotWritable.
func (s *Series) Close() error {
	if s.mode != ModeWrite {
		return errors.Annotatef(ErrNotWritable, "close %s", s.path)
	}
	s.mode = ModeClosed
	w := s.w
	s.w = nil
	ferr := w.Flush()
	if err := w.Close(); err != nil {
		return errors.Annotatef(err, "close %s", s.path)
	}
	logger.Infof("closed series %s", s.path)
	return errors.Trace(ferr)
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
