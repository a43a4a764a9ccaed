/*Package session routes calls to named, open image series.

A Registry is owned by its caller; there is no process-wide state.  Each
camera name maps to at most one open series, written to
{Directory}/{name}_ccd.h5, or {name}_scan_{scan}_ccd.h5 when a scan number
is given.  Calls on one series are serialized; different series proceed
independently.
*/
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/openpmd/ccd/ccd"
	"github.com/openpmd/ccd/container"
	"github.com/openpmd/ccd/imgnorm"
	"github.com/openpmd/ccd/imgrec"
)

var logger = loggo.GetLogger("ccd.session")

// ErrDuplicateName is returned when a camera name is opened twice
const ErrDuplicateName = errors.ConstError("camera name is already open")

// Config is the policy shared by every series of a registry
type Config struct {
	// Directory receives the series files
	Directory string `yaml:"Directory" koanf:"directory"`

	// AllowOverwrite replaces existing files of the same name
	AllowOverwrite bool `yaml:"AllowOverwrite" koanf:"allowoverwrite"`

	// CreateDirectory creates Directory on first open if it is missing
	CreateDirectory bool `yaml:"CreateDirectory" koanf:"createdirectory"`

	// Backend is the container backend; nil means the default
	Backend container.Backend `yaml:"-" koanf:"-"`

	// Recorder, if not nil, also saves every image as FITS
	Recorder *imgrec.Recorder `yaml:"-" koanf:"-"`

	// OnEvent is called after every successful operation
	OnEvent func(Event) `yaml:"-" koanf:"-"`
}

// EventKind names what happened to a series
type EventKind string

// event kinds
const (
	EventOpen        EventKind = "open"
	EventAdd         EventKind = "add"
	EventRecalibrate EventKind = "recalibrate"
	EventClose       EventKind = "close"
)

// Event describes a successful operation on a series
type Event struct {
	Kind        EventKind        `json:"kind"`
	Name        string           `json:"name"`
	Path        string           `json:"path,omitempty"`
	Time        time.Time        `json:"time"`
	ImageNumber *int             `json:"imageNumber,omitempty"`
	Shape       []int            `json:"shape,omitempty"`
	DType       string           `json:"dtype,omitempty"`
	Calibration *ccd.Calibration `json:"calibration,omitempty"`
	Sidecar     string           `json:"sidecar,omitempty"`
}

// Info is a snapshot of one open series
type Info struct {
	Name        string          `json:"name"`
	Path        string          `json:"path"`
	Mode        string          `json:"mode"`
	Identity    ccd.Identity    `json:"identity"`
	Calibration ccd.Calibration `json:"calibration"`
	Images      int             `json:"images"`
}

type entry struct {
	mu     sync.Mutex
	series *ccd.Series
	images int
}

// Registry holds the open series by camera name
type Registry struct {
	cfg Config

	mu     sync.Mutex
	series map[string]*entry
}

// New returns an empty registry
func New(cfg Config) *Registry {
	return &Registry{cfg: cfg, series: make(map[string]*entry)}
}

// FileName is the file a camera's series is written to, without the directory
func FileName(name string, scan *int) string {
	if scan != nil {
		return fmt.Sprintf("%s_scan_%d_ccd.h5", name, *scan)
	}
	return name + "_ccd.h5"
}

// OpenWrite opens a new series for the named camera and returns its path.
// opts supplies identity and calibration; the registry sets the camera
// name, the backend and the overwrite policy.
func (r *Registry) OpenWrite(name string, scan *int, opts ccd.Options) (string, error) {
	if err := ccd.ValidateName(name); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.series[name]; ok {
		return "", errors.Annotatef(ErrDuplicateName, "%q", name)
	}
	if r.cfg.CreateDirectory && r.cfg.Directory != "" {
		if err := os.MkdirAll(r.cfg.Directory, 0o755); err != nil {
			return "", errors.Trace(err)
		}
	}

	e := &entry{}
	opts.Identity.Name = name
	opts.Overwrite = r.cfg.AllowOverwrite
	opts.Backend = r.cfg.Backend
	hook := opts.OnWrite
	opts.OnWrite = func(rec ccd.Record) {
		e.images++
		if hook != nil {
			hook(rec)
		}
		r.written(name, rec)
	}
	s, err := ccd.Open(filepath.Join(r.cfg.Directory, FileName(name, scan)), opts)
	if err != nil {
		return "", err
	}
	e.series = s
	r.series[name] = e
	r.emit(Event{Kind: EventOpen, Name: name, Path: s.Path(), Time: time.Now()})
	return s.Path(), nil
}

func (r *Registry) written(name string, rec ccd.Record) {
	ev := Event{
		Kind:        EventAdd,
		Name:        name,
		Path:        rec.Dataset,
		Time:        rec.Time,
		ImageNumber: &rec.ImageNumber,
		Shape:       rec.Array.Shape,
		DType:       rec.Array.DType.String(),
		Calibration: &rec.Calibration,
	}
	if r.cfg.Recorder != nil {
		fn, err := r.cfg.Recorder.Record(rec)
		if err != nil {
			logger.Errorf("fits copy of %s image %d: %v", name, rec.ImageNumber, err)
		}
		ev.Sidecar = fn
	}
	r.emit(ev)
}

func (r *Registry) emit(ev Event) {
	if r.cfg.OnEvent != nil {
		r.cfg.OnEvent(ev)
	}
}

func (r *Registry) lookup(name string) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.series[name]
	if !ok {
		return nil, errors.NotFoundf("camera %q (not opened)", name)
	}
	return e, nil
}

// Add writes one image to the named series
func (r *Registry) Add(name string, imageNumber int, imagePath string, imageData imgnorm.Source) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.series.Add(imageNumber, imagePath, imageData)
}

// Recalibrate updates the calibration of the named series.  An empty
// update is accepted and announces nothing.
func (r *Registry) Recalibrate(name string, u ccd.Recalibration) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	if u.Empty() {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.series.Recalibrate(u); err != nil {
		return err
	}
	cal := e.series.Calibration()
	r.emit(Event{Kind: EventRecalibrate, Name: name, Path: e.series.Path(), Time: time.Now(), Calibration: &cal})
	return nil
}

// Info describes the named series
func (r *Registry) Info(name string) (Info, error) {
	e, err := r.lookup(name)
	if err != nil {
		return Info{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return Info{
		Name:        name,
		Path:        e.series.Path(),
		Mode:        e.series.Mode().String(),
		Identity:    e.series.Identity(),
		Calibration: e.series.Calibration(),
		Images:      e.images,
	}, nil
}

// Close closes the named series and forgets the name, even when closing
// the container fails
func (r *Registry) Close(name string) error {
	r.mu.Lock()
	e, ok := r.series[name]
	if ok {
		delete(r.series, name)
	}
	r.mu.Unlock()
	if !ok {
		return errors.NotFoundf("camera %q (not opened)", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.series.Close()
	if err == nil {
		r.emit(Event{Kind: EventClose, Name: name, Path: e.series.Path(), Time: time.Now()})
	}
	return err
}

// CloseAll closes every open series and returns the first error
func (r *Registry) CloseAll() error {
	var first error
	for _, name := range r.Names() {
		if err := r.Close(name); err != nil {
			logger.Errorf("closing %s: %v", name, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Names lists the open camera names in order
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.series))
	for k := range r.series {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
