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

package convolve

import (
	"errors"
	"testing"

	"github.com/mlnoga/nightfilter/internal/grid"
)

// 16x16 grid with a vertical step from 0 to 200 between columns 7 and 8
func cannyStep(t *testing.T, typ grid.SampleType) *grid.Grid {
	g, err := grid.NewGrid(16, 16, typ)
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < g.Height; y++ {
		for x := 8; x < g.Width; x++ {
			g.Set(x, y, 200)
		}
	}
	return g
}

func TestCannyThinStepEdge(t *testing.T) {
	g := cannyStep(t, grid.Uint8)
	res, err := Canny(g, 0, 50, 150, 2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Type != grid.Uint8 || res.Width != 16 || res.Height != 16 {
		t.Fatalf("result %s", res.DimensionsToString())
	}
	for y := 0; y < res.Height; y++ {
		for x := 0; x < res.Width; x++ {
			want := float32(0)
			if x == 7 {
				want = 255
			}
			if res.At(x, y) != want {
				t.Errorf("row %d: %v; want single edge in column 7", y, res.Row(y))
				break
			}
		}
	}
}

func TestCannySmoothedStepEdge(t *testing.T) {
	res, err := Canny(cannyStep(t, grid.Float32), 1.1, 50, 150, 1)
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < res.Height; y++ {
		count := 0
		for x, v := range res.Row(y) {
			if v == 0 {
				continue
			}
			count++
			if v != 1 || (x != 7 && x != 8) {
				t.Errorf("row %d: edge %g at column %d; want 1 at column 7 or 8", y, v, x)
			}
		}
		if count != 1 {
			t.Errorf("row %d: %d edge pixels; want 1", y, count)
		}
	}
}

func TestCannyFlat(t *testing.T) {
	g, _ := grid.NewGrid(9, 9, grid.Uint16)
	for i := range g.Data {
		g.Data[i] = 1000
	}
	res, err := Canny(g, 1, 10, 20, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range res.Data {
		if v != 0 {
			t.Errorf("flat grid edge at %d", i)
			break
		}
	}
}

type hysteresisTestCase struct {
	Name      string
	Magnitude []float32
	Width     int
	Want      []bool
}

func TestHysteresis(t *testing.T) {
	tcs := []hysteresisTestCase{
		{"weak neighbours of strong", []float32{0, 40, 60, 200, 60, 0, 60}, 7,
			[]bool{false, false, true, true, true, false, false}},
		{"weak chain", []float32{200, 60, 60, 60, 40, 60}, 6,
			[]bool{true, true, true, true, false, false}},
		{"diagonal", []float32{
			200, 0, 0,
			0, 60, 0,
			0, 0, 60}, 3,
			[]bool{
				true, false, false,
				false, true, false,
				false, false, true}},
		{"weak only", []float32{60, 60, 60, 60}, 2,
			[]bool{false, false, false, false}},
	}
	for _, tc := range tcs {
		got := hysteresis(tc.Magnitude, tc.Width, 50, 150)
		for i := range got {
			if got[i] != tc.Want[i] {
				t.Errorf("%s: %v; want %v", tc.Name, got, tc.Want)
				break
			}
		}
	}
}

func TestCannyRejectsInvalidParameters(t *testing.T) {
	g := cannyStep(t, grid.Uint8)
	for _, th := range [][2]float32{{-1, 10}, {20, 10}} {
		if _, err := Canny(g, 0, th[0], th[1], 1); !errors.Is(err, grid.ErrConfiguration) {
			t.Errorf("thresholds %v: err=%v", th, err)
		}
	}
	if _, err := Canny(g, -1, 50, 150, 1); !errors.Is(err, grid.ErrConfiguration) {
		t.Errorf("negative sigma: err=%v", err)
	}
}
