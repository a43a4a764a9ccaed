// Package server contains misc server utilities.
package server

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("ccd.server")

// ReplyWithFile replies to the client request by serving the file at path.
// contentType may be empty, in which case it is sniffed from the name.
func ReplyWithFile(w http.ResponseWriter, r *http.Request, path, contentType string) {
	filePath, err := filepath.Abs(path)
	if err != nil {
		logger.Errorf("unable to compute abspath of file %s: %v", path, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	f, err := os.Open(filePath)
	if err != nil {
		logger.Debugf("source file missing %s", filePath)
		http.Error(w, "source file missing", http.StatusNotFound)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		logger.Errorf("error retrieving source file stats %s", err)
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(filePath)+`"`)
	http.ServeContent(w, r, filepath.Base(filePath), stat.ModTime(), f)
}
