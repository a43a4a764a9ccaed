package ccd

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/juju/errors"
	"github.com/openpmd/ccd/container"
	"github.com/openpmd/ccd/imgnorm"
)

var fixedNow = time.Date(2020, 6, 1, 12, 30, 0, 0, time.UTC)

func testOptions(mem *container.Memory) Options {
	return Options{
		Backend:  mem,
		Hostname: "testhost",
		Now:      func() time.Time { return fixedNow },
	}
}

func nested(t *testing.T, v interface{}) imgnorm.Source {
	t.Helper()
	src, err := imgnorm.FromNested(v)
	if err != nil {
		t.Fatal(err)
	}
	return src
}

func openMem(t *testing.T, path string, opts Options) (*Series, *container.File) {
	t.Helper()
	s, err := Open(path, opts)
	if err != nil {
		t.Fatal(err)
	}
	f, ok := opts.Backend.(*container.Memory).File(s.Path())
	if !ok {
		t.Fatalf("no container stored at %s", s.Path())
	}
	return s, f
}

func attr(t *testing.T, f *container.File, path, name string) interface{} {
	t.Helper()
	v, ok := f.Attr(path, name)
	if !ok {
		t.Fatalf("missing attribute %s@%s", path, name)
	}
	return v
}

func TestOpenWritesRootSchema(t *testing.T) {
	mem := container.NewMemory()
	opts := testOptions(mem)
	opts.Identity = Identity{Name: "Go Pro", Model: "HERO8 Black", Serial: "12345678"}
	s, f := openMem(t, "scan.h5", opts)
	defer s.Close()

	want := map[string]interface{}{
		"openPMD":           "1.1.0",
		"openPMDextension":  uint32(0),
		"basePath":          "/data/%T/",
		"meshesPath":        "shots/",
		"iterationEncoding": "groupBased",
		"iterationFormat":   "/data/%T/",
		"author":            Unknown,
		"software":          "openPMD-CCD",
		"softwareVersion":   Version,
		"machine":           "testhost",
		"ccdName":           "Go Pro",
		"ccdModel":          "HERO8 Black",
		"ccdSerial":         "12345678",
	}
	for k, v := range want {
		if got := attr(t, f, "/", k); !cmp.Equal(got, v) {
			t.Errorf("root@%s: expected %v, got %v", k, v, got)
		}
	}
	if date := attr(t, f, "/", "date").(string); date != fixedNow.Local().Format(DateLayout) {
		t.Errorf("unexpected date %q", date)
	}
	deps := attr(t, f, "/", "softwareDependencies").(string)
	if !strings.HasPrefix(deps, "go@") || !strings.Contains(deps, "memory@") {
		t.Errorf("unexpected softwareDependencies %q", deps)
	}
	if n, ok := f.Node("/data"); !ok || n.Kind != container.GroupNode {
		t.Error("expected /data group")
	}
	if !f.SWMR {
		t.Error("SWMR should be requested by default")
	}
}

func TestCam1Scenario(t *testing.T) {
	mem := container.NewMemory()
	opts := testOptions(mem)
	opts.Identity.Name = "cam1"
	opts.Resolution = &[2]float64{2, 2}
	opts.Region = &[4]float64{0, 0, 10, 10}
	s, f := openMem(t, "cam1_ccd.h5", opts)
	if err := s.Add(0, "", nested(t, [][]int{{1, 2, 3}, {4, 5, 6}})); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if !f.Closed {
		t.Error("container should be closed")
	}
	n, ok := f.Node("/data/000000/shots/raw")
	if !ok || n.Kind != container.DatasetNode {
		t.Fatal("expected dataset /data/000000/shots/raw")
	}
	want := &imgnorm.Array{Shape: []int{2, 3}, DType: imgnorm.Int64, Data: []int64{1, 2, 3, 4, 5, 6}}
	if diff := cmp.Diff(want, n.Data); diff != "" {
		t.Errorf("pixels (-want +got):\n%s", diff)
	}
	if got := n.Attrs["gridSpacing"]; !cmp.Equal(got, []float64{2, 2}) {
		t.Errorf("gridSpacing: %v", got)
	}
	if got := n.Attrs["gridGlobalOffset"]; !cmp.Equal(got, []float64{0, 0}) {
		t.Errorf("gridGlobalOffset: %v", got)
	}
	if got := n.Attrs["ccdROI"]; !cmp.Equal(got, []float64{0, 0, 10, 10}) {
		t.Errorf("ccdROI: %v", got)
	}
	if got := n.Attrs["ccdExposureTime"]; got != Unknown {
		t.Errorf("ccdExposureTime: %v", got)
	}
	if got := n.Attrs["unitDimension"]; !cmp.Equal(got, []float64{0, 1, -2, 0, 0, 0, 0}) {
		t.Errorf("unitDimension: %v", got)
	}
	if got := n.Attrs["position"]; !cmp.Equal(got, []float32{0, 0}) {
		t.Errorf("position: %v", got)
	}
	group := "/data/000000"
	if got := attr(t, f, group, "time").(float64); got != float64(fixedNow.Unix()) {
		t.Errorf("time: %v", got)
	}
	if got := attr(t, f, group, "dt"); got != 0.0 {
		t.Errorf("dt: %v", got)
	}
	if got := attr(t, f, group, "timeUnitSI"); got != 1.0 {
		t.Errorf("timeUnitSI: %v", got)
	}
}

func calibrationAttrs(t *testing.T, f *container.File, n int) []interface{} {
	t.Helper()
	p := DatasetPath(n)
	return []interface{}{attr(t, f, p, "ccdResolution"), attr(t, f, p, "ccdROI"), attr(t, f, p, "ccdExposureTime")}
}

func TestCalibrationCarriesOver(t *testing.T) {
	s, f := openMem(t, "carry.h5", testOptions(container.NewMemory()))
	defer s.Close()
	for i := 0; i < 2; i++ {
		if err := s.Add(i, "", nested(t, [][]uint8{{1}})); err != nil {
			t.Fatal(err)
		}
	}
	if diff := cmp.Diff(calibrationAttrs(t, f, 0), calibrationAttrs(t, f, 1)); diff != "" {
		t.Errorf("consecutive images differ:\n%s", diff)
	}
}

func TestRecalibrateSnapshot(t *testing.T) {
	s, f := openMem(t, "snap.h5", testOptions(container.NewMemory()))
	defer s.Close()
	img := nested(t, [][]uint8{{1, 2}})
	if err := s.Add(7, "", img); err != nil {
		t.Fatal(err)
	}
	exposure := 0.25
	err := s.Recalibrate(Recalibration{
		Resolution:   &[2]float64{5e-6, 6e-6},
		ExposureTime: &exposure,
	})
	if err != nil {
		t.Fatal(err)
	}
	exposure = 99 // the series holds its own copy
	if err := s.Add(8, "", img); err != nil {
		t.Fatal(err)
	}

	before := []interface{}{[]float64{1, 1}, []float64{0, 0, 1, 1}, Unknown}
	after := []interface{}{[]float64{5e-6, 6e-6}, []float64{0, 0, 1, 1}, 0.25}
	if diff := cmp.Diff(before, calibrationAttrs(t, f, 7)); diff != "" {
		t.Errorf("image 7 changed after recalibration (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(after, calibrationAttrs(t, f, 8)); diff != "" {
		t.Errorf("image 8 (-want +got):\n%s", diff)
	}
	if got := s.Calibration(); *got.ExposureTime != 0.25 || got.Region != [4]float64{0, 0, 1, 1} {
		t.Errorf("unexpected calibration %+v", got)
	}
}

func TestNormalizerEquivalence(t *testing.T) {
	im := image.NewGray16(image.Rect(0, 0, 5, 4))
	for i := 0; i < 20; i++ {
		im.SetGray16(i%5, i/5, color.Gray16{Y: uint16(3000 * i)})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, im); err != nil {
		t.Fatal(err)
	}
	fn := filepath.Join(t.TempDir(), "frame.png")
	if err := os.WriteFile(fn, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	arr, err := imgnorm.ImageToArray(im)
	if err != nil {
		t.Fatal(err)
	}

	s, f := openMem(t, "equiv.h5", testOptions(container.NewMemory()))
	defer s.Close()
	adds := []func() error{
		func() error { return s.Add(0, fn, imgnorm.Source{}) },
		func() error { return s.Add(1, "", imgnorm.FromImage(im)) },
		func() error { return s.Add(2, "", imgnorm.FromBytes(buf.Bytes())) },
		func() error { return s.Add(3, "", imgnorm.FromArray(arr)) },
	}
	for i, add := range adds {
		if err := add(); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	ref, _ := f.Node(DatasetPath(0))
	for i := 1; i < len(adds); i++ {
		n, _ := f.Node(DatasetPath(i))
		if diff := cmp.Diff(ref.Data, n.Data); diff != "" {
			t.Errorf("image %d differs from path source:\n%s", i, diff)
		}
	}
}

func TestDataTakesPrecedence(t *testing.T) {
	s, f := openMem(t, "prec.h5", testOptions(container.NewMemory()))
	defer s.Close()
	data := nested(t, [][]uint16{{9, 8}, {7, 6}})
	if err := s.Add(0, filepath.Join(t.TempDir(), "missing.png"), data); err != nil {
		t.Fatal(err)
	}
	alone, _ := imgnorm.Normalize(data)
	n, _ := f.Node(DatasetPath(0))
	if diff := cmp.Diff(alone, n.Data); diff != "" {
		t.Errorf("(-data alone +stored):\n%s", diff)
	}
}

func TestAddMissingInput(t *testing.T) {
	mem := container.NewMemory()
	s, f := openMem(t, "missing.h5", testOptions(mem))
	defer s.Close()
	if err := s.Add(0, "", imgnorm.Source{}); !errors.Is(err, imgnorm.ErrMissingInput) {
		t.Errorf("expected ErrMissingInput, got %v", err)
	}
	if _, ok := f.Node(ImagePath(0)); ok {
		t.Error("nothing should be written without input")
	}
}

func TestAddDecodeFailureWritesNothing(t *testing.T) {
	s, f := openMem(t, "bad.h5", testOptions(container.NewMemory()))
	defer s.Close()
	err := s.Add(0, "", imgnorm.FromBytes([]byte("definitely not an image")))
	if !errors.Is(err, imgnorm.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
	if _, ok := f.Node(ImagePath(0)); ok {
		t.Error("no group should be created for an undecodable image")
	}
}

func TestDuplicateImageNumber(t *testing.T) {
	s, _ := openMem(t, "dup.h5", testOptions(container.NewMemory()))
	defer s.Close()
	img := nested(t, [][]uint8{{1}})
	if err := s.Add(3, "", img); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(3, "", img); !errors.Is(err, errors.AlreadyExists) {
		t.Errorf("expected AlreadyExists, got %v", err)
	}
	if s.Mode() != ModeWrite {
		t.Error("series should stay writable after a collision")
	}
	if err := s.Add(4, "", img); err != nil {
		t.Errorf("add after collision: %v", err)
	}
}

func TestStateMachine(t *testing.T) {
	s, _ := openMem(t, "state.h5", testOptions(container.NewMemory()))
	if s.Mode() != ModeWrite {
		t.Fatalf("new series in mode %s", s.Mode())
	}
	if err := s.Recalibrate(Recalibration{}); err != nil {
		t.Errorf("recalibrate in write mode: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if s.Mode() != ModeClosed {
		t.Errorf("expected closed, got %s", s.Mode())
	}
	checks := map[string]error{
		"add":         s.Add(0, "", nested(t, [][]uint8{{1}})),
		"recalibrate": s.Recalibrate(Recalibration{}),
		"close":       s.Close(),
	}
	for op, err := range checks {
		if !errors.Is(err, ErrNotWritable) {
			t.Errorf("%s after close: expected ErrNotWritable, got %v", op, err)
		}
	}
}

func TestOverwriteGuard(t *testing.T) {
	mem := container.NewMemory()
	opts := testOptions(mem)
	s, first := openMem(t, "guard.h5", opts)
	if err := s.Add(0, "", nested(t, [][]uint8{{1}})); err != nil {
		t.Fatal(err)
	}
	s.Close()

	if _, err := Open("guard.h5", opts); !errors.Is(err, errors.AlreadyExists) {
		t.Errorf("expected AlreadyExists, got %v", err)
	}
	if f, _ := mem.File("guard.h5"); f != first {
		t.Error("existing container was replaced without Overwrite")
	}

	opts.Overwrite = true
	s, second := openMem(t, "guard.h5", opts)
	defer s.Close()
	if second == first {
		t.Fatal("Overwrite should replace the container")
	}
	if _, ok := second.Node(ImagePath(0)); ok {
		t.Error("replaced container still holds old images")
	}
}

type failingWriter struct {
	container.Writer
}

func (failingWriter) SetAttrs(string, ...container.Attr) error {
	return errors.New("disk full")
}

type failingBackend struct {
	*container.Memory
}

func (b failingBackend) Create(path string, opts container.CreateOptions) (container.Writer, error) {
	w, err := b.Memory.Create(path, opts)
	return failingWriter{w}, err
}

func TestOpenRemovesPartialContainer(t *testing.T) {
	mem := container.NewMemory()
	opts := testOptions(mem)
	opts.Backend = failingBackend{mem}
	if _, err := Open("partial.h5", opts); err == nil {
		t.Fatal("expected an error")
	}
	if ok, _ := mem.Exists("partial.h5"); ok {
		t.Error("partial container left behind")
	}
}

func TestImageKeyEdges(t *testing.T) {
	tests := map[int]string{
		0:       "000000",
		42:      "000042",
		999999:  "999999",
		1000000: "1000000",
		-1:      "-00001",
	}
	for in, want := range tests {
		if got := ImageKey(in); got != want {
			t.Errorf("ImageKey(%d) = %q, want %q", in, got, want)
		}
	}

	s, f := openMem(t, "edge.h5", testOptions(container.NewMemory()))
	defer s.Close()
	img := nested(t, [][]uint8{{1}})
	for _, n := range []int{999999, 1000000} {
		if err := s.Add(n, "", img); err != nil {
			t.Fatal(err)
		}
	}
	for _, p := range []string{"/data/999999", "/data/1000000/shots/raw"} {
		if _, ok := f.Node(p); !ok {
			t.Errorf("expected %s", p)
		}
	}
}

func TestSanitizePath(t *testing.T) {
	long := strings.Repeat("é", 300)
	dir := strings.Repeat("d", 300)
	tests := []struct {
		in      string
		replace bool
		want    string
	}{
		{"scan 1.h5", false, "scan 1.h5"},
		{"my dir/scan 1.h5", true, "my dir/scan_1.h5"},
		{dir + "/" + long, false, dir + "/" + strings.Repeat("é", 255)},
		{"plain.h5", false, "plain.h5"},
	}
	for _, tt := range tests {
		if got := SanitizePath(tt.in, tt.replace); got != tt.want {
			t.Errorf("SanitizePath(%.20q, %v) = %.40q", tt.in, tt.replace, got)
		}
	}
}

func TestOnWriteRecord(t *testing.T) {
	var got []Record
	opts := testOptions(container.NewMemory())
	opts.Identity.Name = "hook"
	opts.OnWrite = func(r Record) { got = append(got, r) }
	s, _ := openMem(t, "hook.h5", opts)
	defer s.Close()
	if err := s.Add(12, "", nested(t, [][]uint8{{1, 2}})); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one record, got %d", len(got))
	}
	r := got[0]
	if r.Key != "000012" || r.Dataset != "/data/000012/shots/raw" || r.Identity.Name != "hook" || !r.Time.Equal(fixedNow) {
		t.Errorf("unexpected record %+v", r)
	}
}

func TestCompressionPassThrough(t *testing.T) {
	opts := testOptions(container.NewMemory())
	opts.Compression = &container.Compression{Level: 4}
	s, f := openMem(t, "gz.h5", opts)
	defer s.Close()
	if err := s.Add(0, "", nested(t, [][]uint8{{1}})); err != nil {
		t.Fatal(err)
	}
	n, _ := f.Node(DatasetPath(0))
	if n.Compression == nil || n.Compression.Level != 4 {
		t.Errorf("compression not passed through: %+v", n.Compression)
	}
}
