// Package h5 is the HDF5 container backend.  Importing it registers the
// backend under the name "hdf5".
//
// The backend links against libhdf5 through cgo; with cgo disabled the
// package is empty and the backend is not registered.
package h5
