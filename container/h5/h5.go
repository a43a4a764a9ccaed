//go:build cgo

package h5

import (
	"os"
	"reflect"
	"runtime/debug"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/openpmd/ccd/container"
	"github.com/openpmd/ccd/imgnorm"
	"gonum.org/v1/hdf5"
)

var logger = loggo.GetLogger("ccd.container.h5")

func init() {
	container.Register("hdf5", Backend{})
}

// Backend creates HDF5 files on the local filesystem
type Backend struct{}

// Exists implements container.Backend
func (Backend) Exists(path string) (bool, error) {
	st, err := os.Stat(path)
	if err == nil {
		return !st.IsDir(), nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Trace(err)
}

// Create implements container.Backend.  Without opts.Truncate the file is
// created exclusively and creation fails if it exists.
func (Backend) Create(path string, opts container.CreateOptions) (container.Writer, error) {
	flags := hdf5.F_ACC_EXCL
	if opts.Truncate {
		flags = hdf5.F_ACC_TRUNC
	}
	f, err := hdf5.CreateFile(path, flags)
	if err != nil {
		if !opts.Truncate {
			if _, serr := os.Stat(path); serr == nil {
				return nil, errors.AlreadyExistsf("file %q", path)
			}
		}
		return nil, errors.Annotatef(err, "create %s", path)
	}
	if opts.SWMR {
		if err := latestFormat(f); err != nil {
			f.Close()
			os.Remove(path)
			return nil, errors.Annotatef(err, "swmr format bounds for %s", path)
		}
	}
	logger.Debugf("created %s (swmr=%v)", path, opts.SWMR)
	return &writer{
		f:     f,
		path:  path,
		swmr:  opts.SWMR,
		kinds: map[string]container.NodeKind{"/": container.GroupNode},
	}, nil
}

// Remove implements container.Backend
func (Backend) Remove(path string) error {
	return errors.Trace(os.Remove(path))
}

// Versions implements container.Versioner
func (Backend) Versions() []string {
	out := []string{"hdf5@" + libVersion()}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range bi.Deps {
			if dep.Path == "gonum.org/v1/hdf5" {
				out = append(out, dep.Path+"@"+dep.Version)
			}
		}
	}
	return out
}

type writer struct {
	f     *hdf5.File
	path  string
	swmr  bool
	kinds map[string]container.NodeKind
}

func (w *writer) checkNew(path string) error {
	if w.f == nil {
		return errors.New("container is closed")
	}
	if _, ok := w.kinds[path]; ok {
		return errors.AlreadyExistsf("object %q", path)
	}
	if k, ok := w.kinds[container.Parent(path)]; !ok || k != container.GroupNode {
		return errors.NotFoundf("parent group of %q", path)
	}
	return nil
}

func (w *writer) CreateGroup(path string) error {
	path = container.Clean(path)
	if err := w.checkNew(path); err != nil {
		return err
	}
	g, err := w.f.CreateGroup(path)
	if err != nil {
		return errors.Annotatef(err, "create group %s", path)
	}
	w.kinds[path] = container.GroupNode
	return errors.Trace(g.Close())
}

func (w *writer) CreateDataset(path string, arr *imgnorm.Array, opts container.DatasetOptions) error {
	path = container.Clean(path)
	if err := w.checkNew(path); err != nil {
		return err
	}
	if arr == nil || arr.Len() == 0 {
		return errors.NotValidf("empty array for %q", path)
	}
	dtype, err := nativeType(arr.DType)
	if err != nil {
		return errors.Trace(err)
	}
	dims := make([]uint, len(arr.Shape))
	for i, s := range arr.Shape {
		dims[i] = uint(s)
	}
	space, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return errors.Trace(err)
	}
	defer space.Close()

	var dset *hdf5.Dataset
	if c := opts.Compression; c != nil {
		plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
		if err != nil {
			return errors.Trace(err)
		}
		defer plist.Close()
		chunk := dims
		if len(c.Chunk) == len(dims) {
			chunk = make([]uint, len(c.Chunk))
			for i, s := range c.Chunk {
				chunk[i] = uint(s)
			}
		}
		if err := plist.SetChunk(chunk); err != nil {
			return errors.Annotatef(err, "chunk %v", chunk)
		}
		if err := plist.SetDeflate(c.Level); err != nil {
			return errors.Annotatef(err, "deflate level %d", c.Level)
		}
		dset, err = w.f.CreateDatasetWith(path, dtype, space, plist)
		if err != nil {
			return errors.Annotatef(err, "create dataset %s", path)
		}
	} else {
		dset, err = w.f.CreateDataset(path, dtype, space)
		if err != nil {
			return errors.Annotatef(err, "create dataset %s", path)
		}
	}
	defer dset.Close()
	w.kinds[path] = container.DatasetNode

	// Dataset.Write needs an addressable slice
	ptr := reflect.New(reflect.TypeOf(arr.Data))
	ptr.Elem().Set(reflect.ValueOf(arr.Data))
	return errors.Annotatef(dset.Write(ptr.Interface()), "write dataset %s", path)
}

// attributer is satisfied by *hdf5.Group and *hdf5.Dataset; the root is
// opened as the group "/"
type attributer interface {
	CreateAttribute(name string, dtype *hdf5.Datatype, dspace *hdf5.Dataspace) (*hdf5.Attribute, error)
}

func (w *writer) SetAttrs(path string, attrs ...container.Attr) error {
	if w.f == nil {
		return errors.New("container is closed")
	}
	path = container.Clean(path)
	kind, ok := w.kinds[path]
	if !ok {
		return errors.NotFoundf("object %q", path)
	}
	var obj attributer
	switch kind {
	case container.GroupNode:
		g, err := w.f.OpenGroup(path)
		if err != nil {
			return errors.Annotatef(err, "open group %s", path)
		}
		defer g.Close()
		obj = g
	default:
		d, err := w.f.OpenDataset(path)
		if err != nil {
			return errors.Annotatef(err, "open dataset %s", path)
		}
		defer d.Close()
		obj = d
	}
	for _, a := range attrs {
		if err := writeAttr(obj, a); err != nil {
			return errors.Annotatef(err, "attribute %s@%s", path, a.Name)
		}
	}
	return nil
}

func (w *writer) Flush() error {
	if w.f == nil {
		return errors.New("container is closed")
	}
	return errors.Trace(flush(w.f))
}

func (w *writer) Close() error {
	if w.f == nil {
		return errors.New("container is closed")
	}
	err := w.f.Close()
	w.f = nil
	logger.Debugf("closed %s", w.path)
	return errors.Trace(err)
}

func nativeType(dt imgnorm.DType) (*hdf5.Datatype, error) {
	switch dt {
	case imgnorm.Uint8:
		return hdf5.T_NATIVE_UINT8, nil
	case imgnorm.Int8:
		return hdf5.T_NATIVE_INT8, nil
	case imgnorm.Uint16:
		return hdf5.T_NATIVE_UINT16, nil
	case imgnorm.Int16:
		return hdf5.T_NATIVE_INT16, nil
	case imgnorm.Uint32:
		return hdf5.T_NATIVE_UINT32, nil
	case imgnorm.Int32:
		return hdf5.T_NATIVE_INT32, nil
	case imgnorm.Uint64:
		return hdf5.T_NATIVE_UINT64, nil
	case imgnorm.Int64:
		return hdf5.T_NATIVE_INT64, nil
	case imgnorm.Float32:
		return hdf5.T_NATIVE_FLOAT, nil
	case imgnorm.Float64:
		return hdf5.T_NATIVE_DOUBLE, nil
	}
	return nil, errors.NotSupportedf("dtype %s", dt)
}

// writeAttr maps a Go attribute value to an HDF5 attribute.  Strings are
// written as fixed-length byte strings, the layout numpy.string_ produces.
func writeAttr(obj attributer, a container.Attr) error {
	switch v := a.Value.(type) {
	case string:
		return writeStrings(obj, a.Name, []string{v}, true)
	case []string:
		return writeStrings(obj, a.Name, v, false)
	case float64:
		return writeScalar(obj, a.Name, hdf5.T_NATIVE_DOUBLE, &v)
	case float32:
		return writeScalar(obj, a.Name, hdf5.T_NATIVE_FLOAT, &v)
	case uint32:
		return writeScalar(obj, a.Name, hdf5.T_NATIVE_UINT32, &v)
	case int64:
		return writeScalar(obj, a.Name, hdf5.T_NATIVE_INT64, &v)
	case []float64:
		return writeVector(obj, a.Name, hdf5.T_NATIVE_DOUBLE, len(v), &v)
	case []float32:
		return writeVector(obj, a.Name, hdf5.T_NATIVE_FLOAT, len(v), &v)
	case []int64:
		return writeVector(obj, a.Name, hdf5.T_NATIVE_INT64, len(v), &v)
	}
	return errors.NotSupportedf("attribute type %T", a.Value)
}

func writeScalar(obj attributer, name string, dtype *hdf5.Datatype, ptr interface{}) error {
	space, err := hdf5.CreateDataspace(hdf5.S_SCALAR)
	if err != nil {
		return err
	}
	defer space.Close()
	attr, err := obj.CreateAttribute(name, dtype, space)
	if err != nil {
		return err
	}
	defer attr.Close()
	return attr.Write(ptr, dtype)
}

func writeVector(obj attributer, name string, dtype *hdf5.Datatype, n int, ptr interface{}) error {
	if n == 0 {
		return errors.NotValidf("empty attribute %s", name)
	}
	space, err := hdf5.CreateSimpleDataspace([]uint{uint(n)}, nil)
	if err != nil {
		return err
	}
	defer space.Close()
	attr, err := obj.CreateAttribute(name, dtype, space)
	if err != nil {
		return err
	}
	defer attr.Close()
	return attr.Write(ptr, dtype)
}

func writeStrings(obj attributer, name string, strs []string, scalar bool) error {
	size := 1
	for _, s := range strs {
		if len(s) > size {
			size = len(s)
		}
	}
	buf := make([]byte, 0, size*len(strs))
	for _, s := range strs {
		buf = append(buf, s...)
		buf = append(buf, strings.Repeat("\x00", size-len(s))...)
	}
	dtype, err := hdf5.T_C_S1.Copy()
	if err != nil {
		return err
	}
	defer dtype.Close()
	if err := dtype.SetSize(size); err != nil {
		return err
	}
	if scalar {
		return writeScalar(obj, name, dtype, &buf)
	}
	return writeVector(obj, name, dtype, len(strs), &buf)
}
