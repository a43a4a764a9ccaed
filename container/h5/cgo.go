//go:build cgo

package h5

// #cgo LDFLAGS: -lhdf5
// #cgo darwin CFLAGS: -I/usr/local/include
// #cgo darwin LDFLAGS: -L/usr/local/lib
// #include "hdf5.h"
import "C"

import (
	"fmt"

	"gonum.org/v1/hdf5"
)

// latestFormat restricts the file to the newest on-disk format, which
// single-writer/multi-reader access requires
func latestFormat(f *hdf5.File) error {
	if rc := C.H5Fset_libver_bounds(C.hid_t(f.ID()), C.H5F_LIBVER_LATEST, C.H5F_LIBVER_LATEST); rc < 0 {
		return fmt.Errorf("H5Fset_libver_bounds failed (%d)", int(rc))
	}
	return nil
}

// flush commits all buffers of the file to disk
func flush(f *hdf5.File) error {
	if rc := C.H5Fflush(C.hid_t(f.ID()), C.H5F_SCOPE_GLOBAL); rc < 0 {
		return fmt.Errorf("H5Fflush failed (%d)", int(rc))
	}
	return nil
}

// libVersion is the version of the linked HDF5 library
func libVersion() string {
	var maj, min, rel C.uint
	if C.H5get_libversion(&maj, &min, &rel) < 0 {
		return "unknown"
	}
	return fmt.Sprintf("%d.%d.%d", uint(maj), uint(min), uint(rel))
}

// libverBounds reports the format bounds the file was created with
func libverBounds(f *hdf5.File) (low, high int, err error) {
	var lo, hi C.H5F_libver_t
	if rc := C.H5Fget_libver_bounds(C.hid_t(f.ID()), &lo, &hi); rc < 0 {
		return 0, 0, fmt.Errorf("H5Fget_libver_bounds failed (%d)", int(rc))
	}
	return int(lo), int(hi), nil
}

// libverLatest is the newest format bound known to the linked library
func libverLatest() int {
	return int(C.H5F_LIBVER_LATEST)
}
