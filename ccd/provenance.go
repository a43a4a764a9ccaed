package ccd

import (
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/openpmd/ccd/container"
)

// Software is the name recorded as the creator of every container
const Software = "openPMD-CCD"

// Version of this module
const Version = "0.1.0"

// DateLayout formats the creation date, with the local UTC offset
const DateLayout = "2006-01-02 15:04:05 -0700"

// tracked are the modules reported in softwareDependencies when they are
// linked into the binary
var tracked = []string{
	"github.com/astrogo/fitsio",
	"golang.org/x/image",
	"github.com/mdouchement/hdr",
}

// Provenance records what created a container, where and when
type Provenance struct {
	Software             string
	SoftwareVersion      string
	SoftwareDependencies string
	Machine              string
	Date                 string
}

func newProvenance(b container.Backend, host string, now time.Time) Provenance {
	return Provenance{
		Software:             Software,
		SoftwareVersion:      Version,
		SoftwareDependencies: SoftwareDependencies(b),
		Machine:              host,
		Date:                 now.Local().Format(DateLayout),
	}
}

// SoftwareDependencies lists the toolchain, the backend's stack and the
// image codecs as "name@version" items separated by semicolons
func SoftwareDependencies(b container.Backend) string {
	deps := []string{"go@" + strings.TrimPrefix(runtime.Version(), "go")}
	if v, ok := b.(container.Versioner); ok {
		deps = append(deps, v.Versions()...)
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, mod := range bi.Deps {
			for _, t := range tracked {
				if mod.Path == t {
					deps = append(deps, mod.Path+"@"+mod.Version)
				}
			}
		}
	}
	return strings.Join(deps, ";")
}
