package container

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/juju/errors"
	"github.com/openpmd/ccd/imgnorm"
)

func init() {
	Register("memory", NewMemory())
}

// NodeKind distinguishes groups from datasets
type NodeKind int

const (
	GroupNode NodeKind = iota
	DatasetNode
)

// Node is one object of an in-memory container
type Node struct {
	Kind        NodeKind
	Attrs       map[string]interface{}
	Data        *imgnorm.Array
	Compression *Compression
}

// File is an in-memory container
type File struct {
	mu     sync.Mutex
	nodes  map[string]*Node
	SWMR   bool
	Closed bool
}

// Node returns the object at path
func (f *File) Node(path string) (*Node, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[Clean(path)]
	return n, ok
}

// Attr returns one attribute of the object at path
func (f *File) Attr(path, name string) (interface{}, bool) {
	n, ok := f.Node(path)
	if !ok {
		return nil, false
	}
	v, ok := n.Attrs[name]
	return v, ok
}

// Paths lists every object path in lexical order
func (f *File) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.nodes))
	for k := range f.nodes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Dump writes a readable listing of the container to w
func (f *File) Dump(w io.Writer) error {
	for _, p := range f.Paths() {
		n, _ := f.Node(p)
		depth := strings.Count(p, "/")
		if p == "/" {
			depth = 0
		}
		indent := strings.Repeat("  ", depth)
		switch n.Kind {
		case GroupNode:
			if _, err := fmt.Fprintf(w, "%s%s/\n", indent, p); err != nil {
				return err
			}
		case DatasetNode:
			if _, err := fmt.Fprintf(w, "%s%s %s%v\n", indent, p, n.Data.DType, n.Data.Shape); err != nil {
				return err
			}
		}
		keys := make([]string, 0, len(n.Attrs))
		for k := range n.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, err := fmt.Fprintf(w, "%s  @%s = %v\n", indent, k, n.Attrs[k]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Memory is a Backend keeping containers in memory.  It is safe for
// concurrent use; each File serializes its own writes.
type Memory struct {
	mu    sync.Mutex
	files map[string]*File
}

// NewMemory returns an empty in-memory backend
func NewMemory() *Memory {
	return &Memory{files: make(map[string]*File)}
}

// File returns the container stored at path
func (m *Memory) File(path string) (*File, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[path]
	return f, ok
}

// Exists implements Backend
func (m *Memory) Exists(path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok, nil
}

// Create implements Backend
func (m *Memory) Create(path string, opts CreateOptions) (Writer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; ok && !opts.Truncate {
		return nil, errors.AlreadyExistsf("container %q", path)
	}
	f := &File{
		nodes: map[string]*Node{"/": {Kind: GroupNode, Attrs: map[string]interface{}{}}},
		SWMR:  opts.SWMR,
	}
	m.files[path] = f
	return &memWriter{f: f}, nil
}

// Remove implements Backend
func (m *Memory) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; !ok {
		return errors.NotFoundf("container %q", path)
	}
	delete(m.files, path)
	return nil
}

// Versions implements Versioner
func (m *Memory) Versions() []string {
	return []string{"memory@0"}
}

type memWriter struct {
	f *File
}

func (w *memWriter) check() error {
	if w.f.Closed {
		return errors.New("container is closed")
	}
	return nil
}

func (w *memWriter) CreateGroup(path string) error {
	return w.create(path, &Node{Kind: GroupNode, Attrs: map[string]interface{}{}})
}

func (w *memWriter) create(path string, n *Node) error {
	w.f.mu.Lock()
	defer w.f.mu.Unlock()
	if err := w.check(); err != nil {
		return err
	}
	path = Clean(path)
	if _, ok := w.f.nodes[path]; ok {
		return errors.AlreadyExistsf("object %q", path)
	}
	parent, ok := w.f.nodes[Parent(path)]
	if !ok || parent.Kind != GroupNode {
		return errors.NotFoundf("parent group of %q", path)
	}
	w.f.nodes[path] = n
	return nil
}

func (w *memWriter) SetAttrs(path string, attrs ...Attr) error {
	w.f.mu.Lock()
	defer w.f.mu.Unlock()
	if err := w.check(); err != nil {
		return err
	}
	n, ok := w.f.nodes[Clean(path)]
	if !ok {
		return errors.NotFoundf("object %q", path)
	}
	for _, a := range attrs {
		n.Attrs[a.Name] = a.Value
	}
	return nil
}

func (w *memWriter) CreateDataset(path string, arr *imgnorm.Array, opts DatasetOptions) error {
	if arr == nil {
		return errors.NotValidf("nil array for %q", path)
	}
	return w.create(path, &Node{
		Kind:        DatasetNode,
		Attrs:       map[string]interface{}{},
		Data:        arr.Clone(),
		Compression: opts.Compression,
	})
}

func (w *memWriter) Flush() error {
	w.f.mu.Lock()
	defer w.f.mu.Unlock()
	return w.check()
}

func (w *memWriter) Close() error {
	w.f.mu.Lock()
	defer w.f.mu.Unlock()
	if err := w.check(); err != nil {
		return err
	}
	w.f.Closed = true
	return nil
}
