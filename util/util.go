// Package util contains misc internal utilities.
package util

import (
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
)

// IntSliceToCSV convets a slice of ints to CSV formatted data.
// e.g., []int{1,2,3,4,5} => "1,2,3,4,5"
func IntSliceToCSV(is []int) string {
	s := make([]string, len(is))
	for i, v := range is {
		s[i] = strconv.Itoa(v)
	}

	return strings.Join(s, ",")
}

// ParseSeconds parses an exposure time.  Bare numbers are seconds;
// anything time.ParseDuration accepts ("10ms", "1.5s") works too.
func ParseSeconds(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f < 0 {
			return 0, errors.NotValidf("negative exposure %q", s)
		}
		return f, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.NotValidf("exposure %q", s)
	}
	if d < 0 {
		return 0, errors.NotValidf("negative exposure %q", s)
	}
	return d.Seconds(), nil
}

// ParseFloats parses a comma separated list of exactly n floats,
// e.g. "0,0,512,512"
func ParseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, errors.NotValidf("%q: want %d values, got %d", s, n, len(parts))
	}
	out := make([]float64, n)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.NotValidf("%q: element %d", s, i)
		}
		out[i] = f
	}
	return out, nil
}
