// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package imgio

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"path/filepath"
	"testing"

	"github.com/mlnoga/nightfilter/internal/grid"
	"golang.org/x/image/bmp"
)

func pattern(t *testing.T, width, height int, typ grid.SampleType) *grid.Grid {
	g, err := grid.NewGrid(width, height, typ)
	if err != nil {
		t.Fatal(err)
	}
	_, hi := typ.Range()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			g.Set(x, y, float32(math.Floor(float64(hi)*float64(x*height+y)/float64(width*height))))
		}
	}
	return g
}

func sameData(t *testing.T, name string, got, want *grid.Grid) {
	if !got.SameShape(want) {
		t.Fatalf("%s: %dx%d; want %dx%d", name, got.Width, got.Height, want.Width, want.Height)
	}
	if got.Type != want.Type {
		t.Errorf("%s: type %v; want %v", name, got.Type, want.Type)
	}
	for i := range want.Data {
		if got.Data[i] != want.Data[i] {
			t.Fatalf("%s: pixel %d=%g; want %g", name, i, got.Data[i], want.Data[i])
		}
	}
}

func TestPNGRoundTrip(t *testing.T) {
	for _, typ := range []grid.SampleType{grid.Uint8, grid.Uint16} {
		g := pattern(t, 37, 23, typ)
		var buf bytes.Buffer
		if err := WritePNG(&buf, g, DefaultStretch(g)); err != nil {
			t.Fatal(err)
		}
		res, err := Read(&buf, GrayLuma)
		if err != nil {
			t.Fatal(err)
		}
		sameData(t, "png "+typ.String(), res, g)
	}
}

func TestTIFF16RoundTrip(t *testing.T) {
	g := pattern(t, 19, 31, grid.Uint16)
	var buf bytes.Buffer
	if err := WriteTIFF16(&buf, g, DefaultStretch(g)); err != nil {
		t.Fatal(err)
	}
	res, err := Read(&buf, GrayLuma)
	if err != nil {
		t.Fatal(err)
	}
	sameData(t, "tiff16", res, g)
}

func TestJPGApproximate(t *testing.T) {
	g, _ := grid.NewGrid(16, 16, grid.Uint8)
	for i := range g.Data {
		g.Data[i] = 100
	}
	var buf bytes.Buffer
	if err := WriteJPG(&buf, g, DefaultStretch(g), 95); err != nil {
		t.Fatal(err)
	}
	res, err := Read(&buf, GrayLuma)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range res.Data {
		if math.Abs(float64(v-100)) > 2 {
			t.Fatalf("pixel %d=%g; want 100+-2", i, v)
		}
	}
}

func TestColorToGray(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 1))
	img.Set(0, 0, color.RGBA{0, 0, 0, 255})
	img.Set(1, 0, color.RGBA{255, 255, 255, 255})
	img.Set(2, 0, color.RGBA{255, 0, 0, 255})
	img.Set(3, 0, color.RGBA{77, 77, 77, 255})

	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()

	luma, err := Read(bytes.NewReader(data), GrayLuma)
	if err != nil {
		t.Fatal(err)
	}
	if luma.Type != grid.Uint8 {
		t.Errorf("type %v; want uint8", luma.Type)
	}
	for i, want := range []float32{0, 255, 54, 77} {
		if luma.Data[i] != want {
			t.Errorf("luma[%d]=%g; want %g", i, luma.Data[i], want)
		}
	}

	light, err := Read(bytes.NewReader(data), GrayLightness)
	if err != nil {
		t.Fatal(err)
	}
	if light.Data[0] != 0 || light.Data[1] != 255 {
		t.Errorf("lightness black %g white %g; want 0 255", light.Data[0], light.Data[1])
	}
	if !(light.Data[3] > 77) {
		t.Errorf("lightness of dark gray %g; want above its encoded value 77", light.Data[3])
	}
}

func TestColorToGrayIgnoresAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	img.SetNRGBA(0, 0, color.NRGBA{200, 100, 50, 255})
	img.SetNRGBA(1, 0, color.NRGBA{200, 100, 50, 128})
	img.SetNRGBA(2, 0, color.NRGBA{200, 100, 50, 0})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	g, err := Read(bytes.NewReader(buf.Bytes()), GrayLuma)
	if err != nil {
		t.Fatal(err)
	}
	// 0.2125*200 + 0.7154*100 + 0.0721*50 = 117.645
	for i, v := range g.Data {
		if v != 118 {
			t.Errorf("alpha %d: gray %g; want 118", img.Pix[4*i+3], v)
		}
	}

	lit, err := FromImage(img, GrayLightness)
	if err != nil {
		t.Fatal(err)
	}
	if lit.Data[2] != lit.Data[0] || lit.Data[0] == 0 {
		t.Errorf("lightness opaque %g transparent %g; want equal and nonzero", lit.Data[0], lit.Data[2])
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	g := pattern(t, 8, 8, grid.Uint8)
	g.ID = 3

	name := filepath.Join(dir, "out.png")
	if err := WriteFile(name, g, 95); err != nil {
		t.Fatal(err)
	}
	res, err := ReadFile(name, 3, GrayLuma)
	if err != nil {
		t.Fatal(err)
	}
	sameData(t, "file", res, g)
	if res.ID != 3 || res.FileName != name {
		t.Errorf("id %d name %s; want 3 %s", res.ID, res.FileName, name)
	}

	if err := WriteFile(filepath.Join(dir, "out.fits"), g, 95); !errors.Is(err, grid.ErrConfiguration) {
		t.Errorf("unknown suffix: err=%v", err)
	}
	if _, err := ReadFile(filepath.Join(dir, "missing.png"), 1, GrayLuma); err == nil {
		t.Errorf("missing file: no error")
	}
}

func TestDefaultStretchFloat(t *testing.T) {
	g, _ := grid.NewGridFromRows([][]float32{{-8, 0, 8}}, grid.Float32)
	s := DefaultStretch(g)
	if s.Min != -8 || s.Max != 8 || s.Gamma != 1 {
		t.Errorf("stretch %+v; want -8 8 1", s)
	}
	img := ToGray(g, s)
	if img.Pix[0] != 0 || img.Pix[1] != 128 || img.Pix[2] != 255 {
		t.Errorf("pixels %v; want [0 128 255]", img.Pix[:3])
	}
}
