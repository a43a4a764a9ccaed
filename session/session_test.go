package session

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/juju/errors"
	"github.com/openpmd/ccd/ccd"
	"github.com/openpmd/ccd/container"
	"github.com/openpmd/ccd/imgnorm"
	"github.com/openpmd/ccd/imgrec"
)

func nested(t *testing.T, v interface{}) imgnorm.Source {
	t.Helper()
	src, err := imgnorm.FromNested(v)
	if err != nil {
		t.Fatal(err)
	}
	return src
}

func TestFileName(t *testing.T) {
	scan := 12
	if got := FileName("cam", &scan); got != "cam_scan_12_ccd.h5" {
		t.Errorf("with scan: %s", got)
	}
	if got := FileName("cam", nil); got != "cam_ccd.h5" {
		t.Errorf("without scan: %s", got)
	}
}

func TestDefaultCamWorkflow(t *testing.T) {
	mem := container.NewMemory()
	var events []Event
	reg := New(Config{
		Directory: "run",
		Backend:   mem,
		OnEvent:   func(ev Event) { events = append(events, ev) },
	})
	path, err := reg.OpenWrite("defaultCam", nil, ccd.Options{Hostname: "h"})
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join("run", "defaultCam_ccd.h5") {
		t.Errorf("unexpected path %s", path)
	}
	frames := [][][]int{{{1, 2, 3}, {4, 5, 6}}, {{3, 4, 5}, {6, 7, 8}}, {{6, 7, 8}, {9, 0, 1}}}
	for i, fr := range frames {
		if err := reg.Add("defaultCam", i, "", nested(t, fr)); err != nil {
			t.Fatal(err)
		}
	}
	info, err := reg.Info("defaultCam")
	if err != nil {
		t.Fatal(err)
	}
	if info.Images != 3 || info.Identity.Name != "defaultCam" || info.Mode != "write" {
		t.Errorf("unexpected info %+v", info)
	}
	if err := reg.Close("defaultCam"); err != nil {
		t.Fatal(err)
	}
	if len(reg.Names()) != 0 {
		t.Errorf("closed series still registered: %v", reg.Names())
	}

	f, ok := mem.File(path)
	if !ok {
		t.Fatal("no container written")
	}
	n, _ := f.Node("/data/000002/shots/raw")
	if diff := cmp.Diff([]int64{6, 7, 8, 9, 0, 1}, n.Data.Data); diff != "" {
		t.Errorf("image 2 (-want +got):\n%s", diff)
	}

	var kinds []EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	want := []EventKind{EventOpen, EventAdd, EventAdd, EventAdd, EventClose}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestDuplicateAndUnknownNames(t *testing.T) {
	reg := New(Config{Backend: container.NewMemory()})
	scan := 1
	if _, err := reg.OpenWrite("cam", &scan, ccd.Options{}); err != nil {
		t.Fatal(err)
	}
	defer reg.CloseAll()
	if _, err := reg.OpenWrite("cam", nil, ccd.Options{}); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
	checks := map[string]error{
		"add":         reg.Add("other", 0, "x.png", imgnorm.Source{}),
		"recalibrate": reg.Recalibrate("other", ccd.Recalibration{}),
		"close":       reg.Close("other"),
	}
	for op, err := range checks {
		if !errors.Is(err, errors.NotFound) {
			t.Errorf("%s on unknown camera: expected NotFound, got %v", op, err)
		}
	}
}

func TestOverwritePolicy(t *testing.T) {
	mem := container.NewMemory()
	reg := New(Config{Backend: mem})
	if _, err := reg.OpenWrite("cam", nil, ccd.Options{}); err != nil {
		t.Fatal(err)
	}
	reg.Close("cam")
	if _, err := reg.OpenWrite("cam", nil, ccd.Options{}); !errors.Is(err, errors.AlreadyExists) {
		t.Errorf("expected AlreadyExists, got %v", err)
	}
	if len(reg.Names()) != 0 {
		t.Error("failed open must not register the name")
	}

	reg = New(Config{Backend: mem, AllowOverwrite: true})
	if _, err := reg.OpenWrite("cam", nil, ccd.Options{}); err != nil {
		t.Errorf("overwrite allowed: %v", err)
	}
	reg.CloseAll()
}

func TestRecalibrateEventAndRecorder(t *testing.T) {
	rec := &imgrec.Recorder{Root: t.TempDir(), Enabled: true}
	var events []Event
	reg := New(Config{
		Backend:  container.NewMemory(),
		Recorder: rec,
		OnEvent:  func(ev Event) { events = append(events, ev) },
	})
	if _, err := reg.OpenWrite("cam", nil, ccd.Options{}); err != nil {
		t.Fatal(err)
	}
	defer reg.CloseAll()
	res := [2]float64{3, 4}
	if err := reg.Recalibrate("cam", ccd.Recalibration{Resolution: &res}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Add("cam", 1, "", nested(t, [][]uint16{{1, 2}, {3, 4}})); err != nil {
		t.Fatal(err)
	}
	last := events[len(events)-1]
	if last.Kind != EventAdd || last.Sidecar == "" || last.Calibration.Resolution != res {
		t.Errorf("unexpected add event %+v", last)
	}
	if events[1].Kind != EventRecalibrate || events[1].Calibration.Resolution != res {
		t.Errorf("unexpected recalibrate event %+v", events[1])
	}
}

func TestEmptyRecalibrationIsQuiet(t *testing.T) {
	var events []Event
	reg := New(Config{
		Backend: container.NewMemory(),
		OnEvent: func(ev Event) { events = append(events, ev) },
	})
	if _, err := reg.OpenWrite("cam", nil, ccd.Options{}); err != nil {
		t.Fatal(err)
	}
	defer reg.CloseAll()
	before, err := reg.Info("cam")
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.Recalibrate("cam", ccd.Recalibration{}); err != nil {
		t.Errorf("empty update: %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventOpen {
		t.Errorf("empty update emitted events: %+v", events)
	}
	after, _ := reg.Info("cam")
	if diff := cmp.Diff(before.Calibration, after.Calibration); diff != "" {
		t.Errorf("calibration changed (-before +after):\n%s", diff)
	}
}

func TestOpenWriteRejectsPathNames(t *testing.T) {
	mem := container.NewMemory()
	reg := New(Config{Directory: "/srv/ccd", Backend: mem})
	for _, name := range []string{"", "../../tmp/evil", "a/b", `a\b`, "..", ".", "cam..1"} {
		if _, err := reg.OpenWrite(name, nil, ccd.Options{}); !errors.Is(err, errors.NotValid) {
			t.Errorf("OpenWrite(%q): expected NotValid, got %v", name, err)
		}
	}
	if len(reg.Names()) != 0 {
		t.Errorf("rejected names were registered: %v", reg.Names())
	}
	if _, ok := mem.File("/tmp/evil_ccd.h5"); ok {
		t.Error("series created outside the directory")
	}
	if _, err := reg.OpenWrite("cam.1", nil, ccd.Options{}); err != nil {
		t.Errorf("dotted name: %v", err)
	}
	reg.CloseAll()
}
