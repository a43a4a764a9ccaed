package ccd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
)

// MaxNameLength caps the file name component of a series path, in characters
const MaxNameLength = 255

// SanitizePath caps the final element of path at MaxNameLength characters,
// leaving the directory untouched.  With replaceSpaces, spaces in the file
// name become underscores.
func SanitizePath(path string, replaceSpaces bool) string {
	dir, file := filepath.Split(path)
	if replaceSpaces {
		file = strings.ReplaceAll(file, " ", "_")
	}
	if r := []rune(file); len(r) > MaxNameLength {
		file = string(r[:MaxNameLength])
	}
	return dir + file
}

// ValidateName checks that a camera name can be used as part of a file
// name: not empty and no path separators or parent references.
func ValidateName(name string) error {
	switch {
	case name == "":
		return errors.NotValidf("empty camera name")
	case strings.ContainsAny(name, `/\`),
		strings.Contains(name, ".."),
		name == ".",
		filepath.Base(name) != name:
		return errors.NotValidf("camera name %q", name)
	}
	return nil
}

// ImageKey is the group name of an image: six digits, zero padded.  Numbers
// outside 0-999999 are formatted as-is ("1000000", "-00001").
func ImageKey(n int) string {
	return fmt.Sprintf("%06d", n)
}

// ImagePath is the group of image n within the container
func ImagePath(n int) string {
	return "/data/" + ImageKey(n)
}

// DatasetPath is the pixel dataset of image n within the container
func DatasetPath(n int) string {
	return ImagePath(n) + "/" + meshesPath + "raw"
}
