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
	"math"
	"testing"

	"github.com/mlnoga/nightfilter/internal/grid"
	"github.com/valyala/fastrand"
)

func grid3x3(t *testing.T) *grid.Grid {
	g, err := grid.NewGridFromRows([][]float32{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}, grid.Uint8)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func noisyGrid(t *testing.T, width, height int, seed uint32) *grid.Grid {
	g, err := grid.NewGrid(width, height, grid.Float32)
	if err != nil {
		t.Fatal(err)
	}
	rng := fastrand.RNG{}
	rng.Seed(seed)
	for i := range g.Data {
		g.Data[i] = 100 + float32(rng.Uint32n(101)) - 50
	}
	return g
}

func stdDev(data []float32) float64 {
	mean := 0.0
	for _, d := range data {
		mean += float64(d)
	}
	mean /= float64(len(data))
	variance := 0.0
	for _, d := range data {
		diff := float64(d) - mean
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(len(data)))
}

type convolveTestCase struct {
	Name   string
	Kernel [][]float32
	Border grid.Border
	Want   [][]float32
}

func TestConvolveKnownValues(t *testing.T) {
	tcs := []convolveTestCase{
		{"ones zero-padded", [][]float32{{1, 1, 1}, {1, 1, 1}, {1, 1, 1}}, grid.Constant(0),
			[][]float32{{12, 21, 16}, {27, 45, 33}, {24, 39, 28}}},
		{"laplacian zero-padded", [][]float32{{1, 1, 1}, {1, -8, 1}, {1, 1, 1}}, grid.Constant(0),
			[][]float32{{3, 3, -11}, {-9, 0, -21}, {-39, -33, -53}}},
		{"top-left tap shifts down-right", [][]float32{{1, 0, 0}, {0, 0, 0}, {0, 0, 0}}, grid.Constant(0),
			[][]float32{{0, 0, 0}, {0, 1, 2}, {0, 4, 5}}},
		{"top-left tap replicate", [][]float32{{1, 0, 0}, {0, 0, 0}, {0, 0, 0}}, grid.Replicate(),
			[][]float32{{1, 1, 2}, {1, 1, 2}, {4, 4, 5}}},
		{"ones constant 10", [][]float32{{1, 1, 1}, {1, 1, 1}, {1, 1, 1}}, grid.Constant(10),
			[][]float32{{62, 51, 66}, {57, 45, 63}, {74, 69, 78}}},
	}

	g := grid3x3(t)
	for _, tc := range tcs {
		k, err := NewKernel(tc.Kernel)
		if err != nil {
			t.Fatalf("%s: %s", tc.Name, err)
		}
		res, err := Convolve(g, k, tc.Border)
		if err != nil {
			t.Fatalf("%s: %s", tc.Name, err)
		}
		if res.Type != grid.Float32 {
			t.Errorf("%s: type %v; want float32", tc.Name, res.Type)
		}
		for y, row := range tc.Want {
			for x, want := range row {
				if got := res.At(x, y); got != want {
					t.Errorf("%s: res[%d][%d]=%g; want %g", tc.Name, y, x, got, want)
				}
			}
		}
	}
}

func TestConvolveIdentityKernel(t *testing.T) {
	g := noisyGrid(t, 17, 9, 1)
	res, err := Convolve(g, Identity(), grid.Constant(0))
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range g.Data {
		if res.Data[i] != v {
			t.Errorf("res[%d]=%g; want %g", i, res.Data[i], v)
		}
	}
}

func TestConvolveMeanReducesVariance(t *testing.T) {
	g := noisyGrid(t, 64, 48, 2)
	for _, size := range []int{3, 5, 9} {
		k, err := Mean(size)
		if err != nil {
			t.Fatal(err)
		}
		res, err := Convolve(g, k, grid.Replicate())
		if err != nil {
			t.Fatal(err)
		}
		if before, after := stdDev(g.Data), stdDev(res.Data); after > before {
			t.Errorf("mean %dx%d: stddev %.4g; want <= %.4g", size, size, after, before)
		}
	}
}

func TestConvolveShapePreserved(t *testing.T) {
	dims := [][2]int{{1, 1}, {1, 7}, {7, 1}, {2, 2}, {31, 17}}
	for _, d := range dims {
		g := noisyGrid(t, d[0], d[1], 3)
		for _, size := range []int{1, 3, 5, 7} {
			k, _ := Mean(size)
			res, err := Convolve(g, k, grid.Constant(0))
			if err != nil {
				t.Fatalf("%v size %d: %s", d, size, err)
			}
			if !res.SameShape(g) {
				t.Errorf("%v size %d: result %dx%d", d, size, res.Width, res.Height)
			}
		}
	}
}

func TestConvolveSignedOutputNotClipped(t *testing.T) {
	g, _ := grid.NewGridFromRows([][]float32{{0, 0, 0}, {0, 255, 0}, {0, 0, 0}}, grid.Uint8)
	res, err := Convolve(g, Laplacian(), grid.Constant(0))
	if err != nil {
		t.Fatal(err)
	}
	if res.At(1, 1) != -8*255 {
		t.Errorf("center=%g; want %g", res.At(1, 1), float32(-8*255))
	}
	if res.At(0, 0) != 255 {
		t.Errorf("corner=%g; want 255", res.At(0, 0))
	}
}

func TestConvolveRejectsInvalidKernel(t *testing.T) {
	if _, err := NewKernel([][]float32{{1, 1, 1, 1}, {1, 1, 1, 1}, {1, 1, 1, 1}, {1, 1, 1, 1}}); !errors.Is(err, grid.ErrConfiguration) {
		t.Errorf("4x4 kernel: err=%v; want configuration error", err)
	}
	if _, err := NewKernel([][]float32{{1, 1, 1}, {1, 1}, {1, 1, 1}}); !errors.Is(err, grid.ErrConfiguration) {
		t.Errorf("ragged kernel: err=%v; want configuration error", err)
	}
	if _, err := Mean(4); !errors.Is(err, grid.ErrConfiguration) {
		t.Errorf("mean 4: err=%v; want configuration error", err)
	}

	g := grid3x3(t)
	before := g.Clone()
	even := &Kernel{Size: 4, Weights: make([]float32, 16)}
	for _, k := range []*Kernel{even, nil, {Size: 3, Weights: make([]float32, 4)}, {Size: 0}} {
		res, err := Convolve(g, k, grid.Constant(0))
		if !errors.Is(err, grid.ErrConfiguration) {
			t.Errorf("kernel %v: err=%v; want configuration error", k, err)
		}
		if res != nil {
			t.Errorf("kernel %v: partial result", k)
		}
	}
	for i := range g.Data {
		if g.Data[i] != before.Data[i] {
			t.Fatalf("input modified at %d", i)
		}
	}
}

func TestConvolveWorkersIndependent(t *testing.T) {
	g := noisyGrid(t, 40, 33, 4)
	k, _ := Gaussian(1.5)
	one, err := ConvolveWorkers(g, k, grid.Reflect(), 1)
	if err != nil {
		t.Fatal(err)
	}
	many, err := ConvolveWorkers(g, k, grid.Reflect(), 7)
	if err != nil {
		t.Fatal(err)
	}
	for i := range one.Data {
		if one.Data[i] != many.Data[i] {
			t.Fatalf("pixel %d: %g with 1 worker, %g with 7", i, one.Data[i], many.Data[i])
		}
	}
}

func TestSeparableGaussMatchesDirect(t *testing.T) {
	g := noisyGrid(t, 25, 21, 5)
	for _, sigma := range []float32{1, 2} {
		k, err := Gaussian(sigma)
		if err != nil {
			t.Fatal(err)
		}
		direct, err := Convolve(g, k, grid.Reflect())
		if err != nil {
			t.Fatal(err)
		}
		separable, err := GaussFilter2D(g, sigma)
		if err != nil {
			t.Fatal(err)
		}
		for i := range direct.Data {
			if math.Abs(float64(direct.Data[i]-separable.Data[i])) > 1e-3 {
				t.Errorf("sigma=%g pixel %d: direct %g separable %g", sigma, i, direct.Data[i], separable.Data[i])
				break
			}
		}
	}
}

func TestGradient(t *testing.T) {
	// vertical step edge between columns 2 and 3
	g, _ := grid.NewGrid(6, 5, grid.Uint8)
	for y := 0; y < g.Height; y++ {
		for x := 3; x < g.Width; x++ {
			g.Set(x, y, 100)
		}
	}
	res, err := Gradient(g, SobelX(), SobelY(), grid.Replicate())
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < g.Height; y++ {
		if res.At(0, y) != 0 || res.At(5, y) != 0 {
			t.Errorf("row %d: flat region gradient %g %g; want 0", y, res.At(0, y), res.At(5, y))
		}
		if res.At(2, y) != 400 || res.At(3, y) != 400 {
			t.Errorf("row %d: edge gradient %g %g; want 400", y, res.At(2, y), res.At(3, y))
		}
	}
}

func TestKernelByName(t *testing.T) {
	for _, name := range KernelNames {
		k, err := KernelByName(name, 3, 1)
		if err != nil {
			t.Errorf("%s: %s", name, err)
			continue
		}
		if err := k.Validate(); err != nil {
			t.Errorf("%s: %s", name, err)
		}
	}
	if _, err := KernelByName("emboss", 3, 1); !errors.Is(err, grid.ErrConfiguration) {
		t.Errorf("unknown kernel: err=%v", err)
	}
	if k, _ := Mean(3); math.Abs(float64(k.Sum()-1)) > 1e-5 {
		t.Errorf("mean kernel sum %g; want 1", k.Sum())
	}
	if k, _ := Gaussian(2); math.Abs(float64(k.Sum()-1)) > 1e-5 {
		t.Errorf("gaussian kernel sum %g; want 1", k.Sum())
	}
}
