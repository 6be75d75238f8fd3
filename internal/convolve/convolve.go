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
	"fmt"
	"math"

	"github.com/mlnoga/nightfilter/internal/grid"
)

// Convolves the grid with the given kernel by direct multiply-accumulate over the padded grid.
// The result is float32 and has the same dimensions as the input. No clipping or rounding is applied,
// kernels like the Laplacian produce signed values which are left for the caller to normalize.
func Convolve(g *grid.Grid, k *Kernel, border grid.Border) (*grid.Grid, error) {
	return ConvolveWorkers(g, k, border, 0)
}

// Like Convolve, with the number of worker goroutines given explicitly. 0 uses all CPUs
func ConvolveWorkers(g *grid.Grid, k *Kernel, border grid.Border, workers int) (*grid.Grid, error) {
	if g == nil {
		return nil, grid.NewConfigurationError("grid", "nil input")
	}
	if err := k.Validate(); err != nil {
		return nil, err
	}
	p := (k.Size - 1) / 2
	if k.Size > g.Width+2*p || k.Size > g.Height+2*p {
		return nil, grid.NewConfigurationError("kernel", fmt.Sprintf("side length %d exceeds padded %dx%d grid",
			k.Size, g.Width+2*p, g.Height+2*p))
	}

	padded, err := grid.Pad(g, p, border)
	if err != nil {
		return nil, err
	}
	res := grid.NewGridLike(g, grid.Float32)
	pw, size, weights := padded.Width, k.Size, k.Weights

	grid.ParallelRows(g.Height, workers, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			out := res.Row(y)
			for x := range out {
				sum := float32(0)
				for ky := 0; ky < size; ky++ {
					window := padded.Data[(y+ky)*pw+x : (y+ky)*pw+x+size]
					kernel := weights[ky*size : (ky+1)*size]
					for kx, w := range kernel {
						sum += window[kx] * w
					}
				}
				out[x] = sum
			}
		}
	})
	return res, nil
}

// Calculates the gradient magnitude sqrt(gx^2+gy^2) from two directional kernels, e.g. SobelX and SobelY
func Gradient(g *grid.Grid, kx, ky *Kernel, border grid.Border) (*grid.Grid, error) {
	return GradientWorkers(g, kx, ky, border, 0)
}

// Like Gradient, with the number of worker goroutines given explicitly. 0 uses all CPUs
func GradientWorkers(g *grid.Grid, kx, ky *Kernel, border grid.Border, workers int) (*grid.Grid, error) {
	gx, err := ConvolveWorkers(g, kx, border, workers)
	if err != nil {
		return nil, err
	}
	gy, err := ConvolveWorkers(g, ky, border, workers)
	if err != nil {
		return nil, err
	}
	for i, x := range gx.Data {
		y := gy.Data[i]
		gx.Data[i] = float32(math.Sqrt(float64(x*x + y*y)))
	}
	return gx, nil
}
