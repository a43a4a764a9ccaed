/*Package container describes the storage engine a series is written through.

A container is a hierarchical file of groups, typed attributes and dense
datasets.  Objects are addressed by absolute slash-separated paths such as
"/data/000001/shots/raw".  Backends register themselves by name, in the
manner of database/sql drivers:

	import _ "github.com/openpmd/ccd/container/h5"

*/
package container

import (
	"sort"
	"strings"
	"sync"

	"github.com/juju/errors"
	"github.com/openpmd/ccd/imgnorm"
)

// Attr is one typed attribute.
//
// Value is one of string, []string, float64, []float64, float32, []float32,
// uint32, int64 or []int64.  Backends map them to their native types.
type Attr struct {
	Name  string
	Value interface{}
}

// Compression is the pass-through compression hook for datasets
type Compression struct {
	// Level is the deflate level, 1-9
	Level int

	// Chunk is the chunk shape; when empty the whole dataset is one chunk
	Chunk []int
}

// DatasetOptions modifies dataset creation
type DatasetOptions struct {
	// Compression is nil for contiguous, uncompressed storage
	Compression *Compression
}

// CreateOptions modifies container creation
type CreateOptions struct {
	// Truncate replaces an existing file; when false, creation fails if
	// the file exists
	Truncate bool

	// SWMR prepares the file for single-writer/multi-reader access
	SWMR bool
}

// Writer is an open container
type Writer interface {
	// CreateGroup creates a group.  The parent must exist.  Creating a
	// group that already exists fails with errors.AlreadyExists.
	CreateGroup(path string) error

	// SetAttrs attaches attributes to an existing group or dataset;
	// "/" is the root
	SetAttrs(path string, attrs ...Attr) error

	// CreateDataset writes arr as a new dataset.  The parent must exist.
	CreateDataset(path string, arr *imgnorm.Array, opts DatasetOptions) error

	// Flush commits staged writes to storage
	Flush() error

	// Close flushes and releases the container
	Close() error
}

// Backend creates containers
type Backend interface {
	// Exists reports whether a container is present at path
	Exists(path string) (bool, error)

	// Create makes a new container at path
	Create(path string, opts CreateOptions) (Writer, error)

	// Remove deletes the container at path
	Remove(path string) error
}

// Versioner is implemented by backends that can describe their software stack,
// as "name@version" items
type Versioner interface {
	Versions() []string
}

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Backend)
)

// Register makes a backend available by name.  It panics on duplicates.
func Register(name string, b Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if b == nil {
		panic("container: Register backend is nil")
	}
	if _, dup := backends[name]; dup {
		panic("container: Register called twice for backend " + name)
	}
	backends[name] = b
}

// Lookup returns the named backend
func Lookup(name string) (Backend, error) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	b, ok := backends[name]
	if !ok {
		return nil, errors.NotFoundf("container backend %q (have %s; forgotten import?)", name, strings.Join(registered(), ", "))
	}
	return b, nil
}

// Backends lists the registered backend names
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	return registered()
}

// registered lists the backend names; backendsMu must be held
func registered() []string {
	out := make([]string, 0, len(backends))
	for k := range backends {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Parent returns the parent path of an absolute object path ("/" for top level objects)
func Parent(path string) string {
	path = Clean(path)
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

// Clean normalizes an object path to a leading slash and no trailing slash
func Clean(path string) string {
	path = "/" + strings.Trim(path, "/")
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	return path
}
