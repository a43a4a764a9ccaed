package imgnorm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/google/go-cmp/cmp"
	"github.com/juju/errors"
	"gonum.org/v1/gonum/mat"
)

func gray16Fixture() *image.Gray16 {
	im := image.NewGray16(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			im.SetGray16(x, y, color.Gray16{Y: uint16(1000*y + 10*x + 7)})
		}
	}
	return im
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestNormalizeEquivalentAcrossSources(t *testing.T) {
	img := gray16Fixture()
	encoded := encodePNG(t, img)
	fn := filepath.Join(t.TempDir(), "frame.png")
	if err := os.WriteFile(fn, encoded, 0o644); err != nil {
		t.Fatal(err)
	}
	fromImage, err := Normalize(FromImage(img))
	if err != nil {
		t.Fatal(err)
	}
	fromArray, err := Normalize(FromArray(fromImage))
	if err != nil {
		t.Fatal(err)
	}
	fromBytes, err := Normalize(FromBytes(encoded))
	if err != nil {
		t.Fatal(err)
	}
	fromPath, err := Normalize(FromPath(fn))
	if err != nil {
		t.Fatal(err)
	}
	if fromImage.DType != Uint16 || !cmp.Equal(fromImage.Shape, []int{3, 4}) {
		t.Errorf("expected uint16 (3, 4), got %s %v", fromImage.DType, fromImage.Shape)
	}
	for name, got := range map[string]*Array{"array": fromArray, "bytes": fromBytes, "path": fromPath} {
		if diff := cmp.Diff(fromImage, got); diff != "" {
			t.Errorf("%s source differs from decoded image (-image +%s):\n%s", name, name, diff)
		}
	}
}

func TestNormalizeArrayIsCopied(t *testing.T) {
	a, err := NewArray([]uint8{1, 2, 3, 4}, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Normalize(FromArray(a))
	if err != nil {
		t.Fatal(err)
	}
	a.Data.([]uint8)[0] = 99
	if got := out.Data.([]uint8)[0]; got != 1 {
		t.Errorf("normalized array aliases caller memory, element 0 is %d", got)
	}
}

func TestNormalizeEmptySource(t *testing.T) {
	_, err := Normalize(Source{})
	if !errors.Is(err, ErrMissingInput) {
		t.Errorf("expected ErrMissingInput, got %v", err)
	}
}

func TestNormalizeGarbageBytes(t *testing.T) {
	_, err := Normalize(FromBytes([]byte("this is not an image at all")))
	if !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestNormalizeMissingFile(t *testing.T) {
	_, err := Normalize(FromPath(filepath.Join(t.TempDir(), "nope.png")))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected a not-exist cause, got %v", err)
	}
}

func TestResolvePrecedence(t *testing.T) {
	data := FromBytes([]byte{1})
	src, err := Resolve("/some/file.png", data)
	if err != nil {
		t.Fatal(err)
	}
	if src.Kind() != KindBytes {
		t.Errorf("expected data to win over path, got kind %s", src.Kind())
	}
	src, err = Resolve("/some/file.png", Source{})
	if err != nil {
		t.Fatal(err)
	}
	if src.Kind() != KindPath || src.Path() != "/some/file.png" {
		t.Errorf("expected path source, got %s %q", src.Kind(), src.Path())
	}
	if _, err = Resolve("", Source{}); !errors.Is(err, ErrMissingInput) {
		t.Errorf("expected ErrMissingInput, got %v", err)
	}
}

func TestFromNestedInts(t *testing.T) {
	src, err := FromNested([][]int{{1, 2, 3}, {4, 5, 6}})
	if err != nil {
		t.Fatal(err)
	}
	a, err := Normalize(src)
	if err != nil {
		t.Fatal(err)
	}
	want := &Array{Shape: []int{2, 3}, DType: Int64, Data: []int64{1, 2, 3, 4, 5, 6}}
	if diff := cmp.Diff(want, a); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestFromNestedJSON(t *testing.T) {
	var v interface{}
	if err := json.Unmarshal([]byte(`[[1, 2, 3], [4, 5, 6]]`), &v); err != nil {
		t.Fatal(err)
	}
	src, err := FromNested(v)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := Normalize(src)
	if a.DType != Int64 {
		t.Errorf("integral JSON should give int64, got %s", a.DType)
	}

	if err := json.Unmarshal([]byte(`[[1.5, 2], [3, 4]]`), &v); err != nil {
		t.Fatal(err)
	}
	src, err = FromNested(v)
	if err != nil {
		t.Fatal(err)
	}
	a, _ = Normalize(src)
	want := &Array{Shape: []int{2, 2}, DType: Float64, Data: []float64{1.5, 2, 3, 4}}
	if diff := cmp.Diff(want, a); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestFromNestedRagged(t *testing.T) {
	tests := map[string]interface{}{
		"short row":  [][]int{{1, 2, 3}, {4, 5}},
		"deep row":   []interface{}{[]interface{}{1.0, 2.0}, []interface{}{[]interface{}{3.0}, 4.0}},
		"one dim":    []int{1, 2, 3},
		"non-number": [][]string{{"a"}},
	}
	for name, in := range tests {
		if _, err := FromNested(in); !errors.Is(err, ErrShape) {
			t.Errorf("%s: expected ErrShape, got %v", name, err)
		}
	}
}

func TestFromNestedRGB(t *testing.T) {
	src, err := FromNested([][][]uint8{{{1, 2, 3}, {4, 5, 6}}})
	if err != nil {
		t.Fatal(err)
	}
	a, _ := Normalize(src)
	if !cmp.Equal(a.Shape, []int{1, 2, 3}) || a.DType != Uint8 {
		t.Errorf("expected uint8 (1, 2, 3), got %s %v", a.DType, a.Shape)
	}
}

func TestFromDense(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	a, err := Normalize(FromDense(m))
	if err != nil {
		t.Fatal(err)
	}
	want := &Array{Shape: []int{2, 2}, DType: Float64, Data: []float64{1, 2, 3, 4}}
	if diff := cmp.Diff(want, a); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestFromFrameShapeMismatch(t *testing.T) {
	if _, err := FromFrame(make([]uint16, 5), 2, 3); !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
}

func TestImageToArrayColor(t *testing.T) {
	// fully opaque, yet the model carries alpha
	im := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	im.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	im.SetNRGBA(1, 0, color.NRGBA{R: 40, G: 50, B: 60, A: 255})
	a, err := ImageToArray(im)
	if err != nil {
		t.Fatal(err)
	}
	want := &Array{Shape: []int{1, 2, 4}, DType: Uint8, Data: []uint8{10, 20, 30, 255, 40, 50, 60, 255}}
	if diff := cmp.Diff(want, a); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	im.SetNRGBA(1, 0, color.NRGBA{R: 40, G: 50, B: 60, A: 128})
	a, _ = ImageToArray(im)
	if !cmp.Equal(a.Shape, []int{1, 2, 4}) {
		t.Errorf("translucent image should keep alpha, got shape %v", a.Shape)
	}
}

func TestImageToArrayChannelsByModel(t *testing.T) {
	rect := image.Rect(0, 0, 2, 2)
	tests := []struct {
		name string
		img  image.Image
		want []int
	}{
		{"rgba", image.NewRGBA(rect), []int{2, 2, 3}},
		{"ycbcr", image.NewYCbCr(rect, image.YCbCrSubsampleRatio444), []int{2, 2, 3}},
		{"nrgba", image.NewNRGBA(rect), []int{2, 2, 4}},
		{"rgba64", image.NewRGBA64(rect), []int{2, 2, 3}},
		{"nrgba64", image.NewNRGBA64(rect), []int{2, 2, 4}},
		{"nycbcra", image.NewNYCbCrA(rect, image.YCbCrSubsampleRatio444), []int{2, 2, 4}},
	}
	for _, tt := range tests {
		a, err := ImageToArray(tt.img)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if !cmp.Equal(a.Shape, tt.want) {
			t.Errorf("%s: expected shape %v, got %v", tt.name, tt.want, a.Shape)
		}
	}

	// the same RGBA frame must keep its shape whatever its alpha values are
	opaque := image.NewNRGBA(rect)
	for i := range opaque.Pix {
		opaque.Pix[i] = 255
	}
	transparent := image.NewNRGBA(rect)
	a1, _ := ImageToArray(opaque)
	a2, _ := ImageToArray(transparent)
	if !cmp.Equal(a1.Shape, a2.Shape) {
		t.Errorf("shape depends on pixel values: %v vs %v", a1.Shape, a2.Shape)
	}
}

func TestImageToArraySubImage(t *testing.T) {
	im := image.NewGray(image.Rect(0, 0, 3, 3))
	for i := range im.Pix {
		im.Pix[i] = uint8(i)
	}
	sub := im.SubImage(image.Rect(1, 1, 3, 3))
	a, err := ImageToArray(sub)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint8{4, 5, 7, 8}
	if diff := cmp.Diff(want, a.Data); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestDecodeFITS(t *testing.T) {
	var buf bytes.Buffer
	f, err := fitsio.Create(&buf)
	if err != nil {
		t.Fatal(err)
	}
	im := fitsio.NewImage(16, []int{3, 2})
	if err = im.Header().Append(fitsio.Card{Name: "BZERO", Value: 32768}, fitsio.Card{Name: "BSCALE", Value: 1.0}); err != nil {
		t.Fatal(err)
	}
	if err = im.Write([]int16{-32768, -32767, 0, 1, 32766, 32767}); err != nil {
		t.Fatal(err)
	}
	if err = f.Write(im); err != nil {
		t.Fatal(err)
	}
	im.Close()
	f.Close()

	a, err := Normalize(FromBytes(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	want := &Array{Shape: []int{2, 3}, DType: Uint16, Data: []uint16{0, 1, 32768, 32769, 65534, 65535}}
	if diff := cmp.Diff(want, a); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestDecodeFITSCube(t *testing.T) {
	var buf bytes.Buffer
	f, err := fitsio.Create(&buf)
	if err != nil {
		t.Fatal(err)
	}
	// W=2, H=1, three planes R, G, B
	im := fitsio.NewImage(8, []int{2, 1, 3})
	if err = im.Write([]byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatal(err)
	}
	if err = f.Write(im); err != nil {
		t.Fatal(err)
	}
	im.Close()
	f.Close()

	a, err := Normalize(FromBytes(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	want := &Array{Shape: []int{1, 2, 3}, DType: Uint8, Data: []uint8{1, 3, 5, 2, 4, 6}}
	if diff := cmp.Diff(want, a); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestPlanes(t *testing.T) {
	a, err := NewArray([]int16{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, 2, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	p := a.Planes()
	want := &Array{Shape: []int{3, 2, 2}, DType: Int16, Data: []int16{1, 4, 7, 10, 2, 5, 8, 11, 3, 6, 9, 12}}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(a, interleave(p)); diff != "" {
		t.Errorf("interleave does not undo Planes (-want +got):\n%s", diff)
	}

	gray, _ := NewArray([]float32{1, 2}, 1, 2)
	if diff := cmp.Diff(gray, gray.Planes()); diff != "" {
		t.Errorf("two-axis arrays are copied as is (-want +got):\n%s", diff)
	}
}

func ExampleFromNested() {
	src, _ := FromNested([][]int{{1, 2, 3}, {4, 5, 6}})
	a, _ := Normalize(src)
	fmt.Println(a.DType, a.Shape, a.Data)
	// Output: int64 [2 3] [1 2 3 4 5 6]
}
