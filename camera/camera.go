/*Package camera describes a minimal frame-grabbing camera and feeds its
frames into an image series.

The Minimal type contains the basics; Mock is a deterministic stand-in
used for dry runs and tests.
*/
package camera

import (
	"sync"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/openpmd/ccd/imgnorm"
)

var logger = loggo.GetLogger("ccd.camera")

// Minimal describes a minimal camera interface with only the basics.
type Minimal interface {
	// Initialize initializes the camera.  This may have myriad side effects,
	// for example the initialization of a camera driver in C
	// or the allocation of buffer(s) for holding camera frames.
	Initialize() error

	// Finalize finalizes the camera, which will typically call a similar
	// function on the camera driver
	Finalize() error

	// GetRes gets the (H, W) associated with the data returned by GetFrameU16
	GetRes() ([2]int, error)

	// GetFrameU16 gets a frame as uint16.  The data is a 1D slice which is
	// strided by the frame width.
	GetFrameU16() (*[]uint16, error)
}

// Exposer is implemented by cameras that know their exposure time
type Exposer interface {
	// GetExposureTime gets the exposure time in seconds
	GetExposureTime() (float64, error)
}

// Adder receives frames; *ccd.Series and a session bound to one name
// both satisfy it
type Adder interface {
	Add(imageNumber int, imagePath string, imageData imgnorm.Source) error
}

// Acquire grabs n frames from cam and adds them to dst numbered from
// first.  It stops at the first error and returns how many frames were
// written.
func Acquire(cam Minimal, dst Adder, first, n int) (int, error) {
	res, err := cam.GetRes()
	if err != nil {
		return 0, errors.Annotate(err, "camera resolution")
	}
	for i := 0; i < n; i++ {
		buf, err := cam.GetFrameU16()
		if err != nil {
			return i, errors.Annotatef(err, "grab frame %d", first+i)
		}
		src, err := imgnorm.FromFrame(*buf, res[0], res[1])
		if err != nil {
			return i, errors.Annotatef(err, "frame %d", first+i)
		}
		if err := dst.Add(first+i, "", src); err != nil {
			return i, errors.Trace(err)
		}
		logger.Tracef("acquired frame %d", first+i)
	}
	return n, nil
}

// Mock is a camera producing a moving ramp pattern.  Frame k has pixel
// (y, x) equal to (k + y*W + x) mod 65536.
type Mock struct {
	mu          sync.Mutex
	H, W        int
	Exposure    float64
	initialized bool
	frame       int
}

// NewMock returns a mock camera with an h×w sensor
func NewMock(h, w int) *Mock {
	return &Mock{H: h, W: w, Exposure: 1e-3}
}

// Initialize implements Minimal
func (m *Mock) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = true
	return nil
}

// Finalize implements Minimal
func (m *Mock) Finalize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = false
	return nil
}

// GetRes implements Minimal
func (m *Mock) GetRes() ([2]int, error) {
	return [2]int{m.H, m.W}, nil
}

// GetFrameU16 implements Minimal
func (m *Mock) GetFrameU16() (*[]uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return nil, errors.New("camera not initialized")
	}
	buf := make([]uint16, m.H*m.W)
	for i := range buf {
		buf[i] = uint16(m.frame + i)
	}
	m.frame++
	return &buf, nil
}

// GetExposureTime implements Exposer
func (m *Mock) GetExposureTime() (float64, error) {
	return m.Exposure, nil
}
