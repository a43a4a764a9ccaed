// Package imgrec contains an image recorder used to automatically save a FITS copy of each image written to a series.
package imgrec

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/openpmd/ccd/ccd"
	"github.com/openpmd/ccd/generichttp"
)

var logger = loggo.GetLogger("ccd.imgrec")

// Recorder records images as {Prefix}{camera}_{NNNNNN}.fits files in yyyy-mm-dd subfolders of Root.
// It is safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	// Root is the root path
	Root string

	// Prefix is the prefix for the filenames
	Prefix string

	// Enabled turns recording on and off
	Enabled bool

	// Now is the clock used to pick the day folder; nil means time.Now
	Now func() time.Time
}

// timeFolder is the yyyy-mm-dd subfolder for today
func (r *Recorder) timeFolder() string {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	y, m, d := now().Date()
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}

// mkDir makes the folder and returns it
func (r *Recorder) mkDir() (string, error) {
	fldr := filepath.Join(r.Root, r.timeFolder())
	err := os.MkdirAll(fldr, 0o777)
	return fldr, err
}

// FileName is the name a record is saved under, without the folder
func (r *Recorder) FileName(rec ccd.Record) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fileName(rec)
}

func (r *Recorder) fileName(rec ccd.Record) string {
	return fmt.Sprintf("%s%s_%s.fits", r.Prefix, rec.Identity.Name, rec.Key)
}

// Record writes rec as a FITS file and returns its path.  When the
// recorder is disabled nothing is written and the path is empty.
func (r *Recorder) Record(rec ccd.Record) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.Enabled {
		return "", nil
	}
	if err := ccd.ValidateName(rec.Identity.Name); err != nil {
		return "", err
	}
	fldr, err := r.mkDir()
	if err != nil {
		return "", errors.Trace(err)
	}
	fn := filepath.Join(fldr, r.fileName(rec))
	fid, err := os.Create(fn)
	if err != nil {
		return "", errors.Trace(err)
	}
	defer fid.Close()
	buf := bufio.NewWriter(fid)
	if err = WriteFITS(buf, rec.Array, Cards(rec)); err != nil {
		return "", errors.Annotatef(err, "write %s", fn)
	}
	if err = buf.Flush(); err != nil {
		return "", errors.Trace(err)
	}
	logger.Debugf("recorded %s", fn)
	return fn, errors.Trace(fid.Close())
}

// HTTPWrapper is an HTTP wrapper around an image recorder that allows the folder and prefix to be changed on the fly
//
// it does not implement generichttp.HTTPer, offering an Inject method allowing it to be injected
// into another HTTPer
type HTTPWrapper struct {
	*Recorder
}

// NewHTTPWrapper returns an HTTP wrapper around a recorder
func NewHTTPWrapper(r *Recorder) HTTPWrapper {
	return HTTPWrapper{r}
}

func (h HTTPWrapper) setRoot(root string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Root = root
	_, err := h.mkDir()
	return err
}

func (h HTTPWrapper) getRoot() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Root, nil
}

func (h HTTPWrapper) setPrefix(prefix string) error {
	if prefix != "" {
		if err := ccd.ValidateName(prefix); err != nil {
			return err
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Prefix = prefix
	return nil
}

func (h HTTPWrapper) getPrefix() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Prefix, nil
}

func (h HTTPWrapper) setEnabled(b bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Enabled = b
	return nil
}

func (h HTTPWrapper) getEnabled() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Enabled, nil
}

// Inject adds GET and POST routes for /autowrite/root, /autowrite/prefix and /autowrite/enabled to the HTTPer which manipulate this wrapper's recorder
func (h HTTPWrapper) Inject(other generichttp.HTTPer) {
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/root"}] = generichttp.SetString(h.setRoot)
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/root"}] = generichttp.GetString(h.getRoot)
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/prefix"}] = generichttp.SetString(h.setPrefix)
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/prefix"}] = generichttp.GetString(h.getPrefix)
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/enabled"}] = generichttp.SetBool(h.setEnabled)
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/enabled"}] = generichttp.GetBool(h.getEnabled)
}
