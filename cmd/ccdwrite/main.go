// ccdwrite writes image files, or frames from a mock camera, into an
// openPMD CCD series.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/openpmd/ccd/camera"
	"github.com/openpmd/ccd/ccd"
	"github.com/openpmd/ccd/container"
	_ "github.com/openpmd/ccd/container/h5"
	"github.com/openpmd/ccd/imgnorm"
	"github.com/openpmd/ccd/util"
	"github.com/theckman/yacspin"
)

// Version is the version number.  Typically injected via ldflags with git build
var Version = "1"

var logger = loggo.GetLogger("ccd.ccdwrite")

var imageExt = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".tif": true, ".tiff": true, ".fits": true, ".fit": true, ".fts": true,
	".hdr": true, ".pic": true,
}

// collect expands directories into their image files, sorted by name
func collect(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		var found []string
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && imageExt[strings.ToLower(filepath.Ext(path))] {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, errors.Annotatef(err, "walking %s", arg)
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}

func main() {
	var (
		out       = flag.String("o", "ccd.h5", "series file to create")
		name      = flag.String("name", "", "camera name")
		model     = flag.String("model", "", "camera model")
		serial    = flag.String("serial", "", "camera serial number")
		operator  = flag.String("operator", "", "operator, recorded as the author")
		res       = flag.String("res", "", "pixel resolution as \"x,y\"")
		roi       = flag.String("roi", "", "region of interest as \"x,y,w,h\"")
		exposure  = flag.String("exposure", "", "exposure time, e.g. 0.01 or 10ms")
		useEXIF   = flag.Bool("exif", false, "take each image's exposure time from its EXIF data")
		start     = flag.Int("start", 0, "number of the first image")
		mock      = flag.Int("mock", 0, "write this many frames from a mock camera instead of files")
		mockSize  = flag.String("mock-size", "64,64", "mock sensor size as \"h,w\"")
		backend   = flag.String("backend", ccd.DefaultBackend, "container backend, one of "+strings.Join(container.Backends(), ", ")+"; \"memory\" is a dry run that prints the layout")
		overwrite = flag.Bool("overwrite", false, "replace an existing file")
		noSWMR    = flag.Bool("no-swmr", false, "do not prepare the file for concurrent readers")
		spaces    = flag.Bool("replace-spaces", false, "replace spaces in the file name with underscores")
		deflate   = flag.Int("deflate", 0, "deflate level 1-9; 0 stores images uncompressed")
		verbose   = flag.Bool("v", false, "debug logging")
		version   = flag.Bool("version", false, "print the version and exit")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: ccdwrite [flags] file-or-dir...\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if *version {
		fmt.Printf("ccdwrite version %v\n", Version)
		return
	}
	if *verbose {
		loggo.ConfigureLoggers("ccd=DEBUG")
	}

	b, err := container.Lookup(*backend)
	if err != nil {
		log.Fatal(err)
	}
	opts := ccd.Options{
		Identity:      ccd.Identity{Name: *name, Model: *model, Serial: *serial, Operator: *operator},
		Overwrite:     *overwrite,
		DisableSWMR:   *noSWMR,
		ReplaceSpaces: *spaces,
		Backend:       b,
	}
	if *res != "" {
		v, err := util.ParseFloats(*res, 2)
		if err != nil {
			log.Fatal(err)
		}
		opts.Resolution = &[2]float64{v[0], v[1]}
	}
	if *roi != "" {
		v, err := util.ParseFloats(*roi, 4)
		if err != nil {
			log.Fatal(err)
		}
		opts.Region = &[4]float64{v[0], v[1], v[2], v[3]}
	}
	if *exposure != "" {
		t, err := util.ParseSeconds(*exposure)
		if err != nil {
			log.Fatal(err)
		}
		opts.ExposureTime = &t
	}
	if *deflate > 0 {
		opts.Compression = &container.Compression{Level: *deflate}
	}

	var files []string
	if *mock == 0 {
		if flag.NArg() == 0 {
			flag.Usage()
			os.Exit(2)
		}
		files, err = collect(flag.Args())
		if err != nil {
			log.Fatal(err)
		}
		if len(files) == 0 {
			log.Fatal("no image files found")
		}
	}

	series, err := ccd.Open(*out, opts)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " " + series.Path(),
		SuffixAutoColon:   true,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		log.Fatal(err)
	}
	spinner.Start()

	var n int
	if *mock > 0 {
		n, err = writeMock(series, spinner, *mockSize, *start, *mock)
	} else {
		n, err = writeFiles(series, spinner, files, *start, *useEXIF)
	}
	if cerr := series.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		spinner.StopFailMessage(fmt.Sprintf("%d images written, then %v", n, err))
		spinner.StopFail()
		os.Exit(1)
	}
	spinner.StopMessage(fmt.Sprintf("%d images written", n))
	spinner.Stop()

	if mem, ok := b.(*container.Memory); ok {
		if f, ok := mem.File(series.Path()); ok {
			f.Dump(os.Stdout)
		}
	}
}

func writeFiles(series *ccd.Series, spinner *yacspin.Spinner, files []string, start int, useEXIF bool) (int, error) {
	for i, path := range files {
		spinner.Message(filepath.Base(path))
		if useEXIF {
			t, err := imgnorm.ExposureFromEXIF(path)
			if err != nil {
				// keep the previous exposure
				logger.Warningf("%v", err)
			} else if err := series.Recalibrate(ccd.Recalibration{ExposureTime: &t}); err != nil {
				return i, err
			}
		}
		if err := series.Add(start+i, path, imgnorm.Source{}); err != nil {
			return i, errors.Annotate(err, path)
		}
	}
	return len(files), nil
}

func writeMock(series *ccd.Series, spinner *yacspin.Spinner, size string, start, count int) (int, error) {
	hw, err := util.ParseFloats(size, 2)
	if err != nil {
		return 0, err
	}
	cam := camera.NewMock(int(hw[0]), int(hw[1]))
	if err := cam.Initialize(); err != nil {
		return 0, err
	}
	defer cam.Finalize()
	t, _ := cam.GetExposureTime()
	if err := series.Recalibrate(ccd.Recalibration{ExposureTime: &t}); err != nil {
		return 0, err
	}
	spinner.Message(fmt.Sprintf("%d mock frames", count))
	return camera.Acquire(cam, series, start, count)
}
