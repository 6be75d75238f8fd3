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
	"github.com/mlnoga/nightfilter/internal/grid"
)

// Convolve the given 2D image provided by data and width with the given 1D kernel along the x axis, and store the result in res.
// Out of bounds coordinates are mapped back with symmetric reflection
func Convolve1DX(res, data []float32, width int, kernel []float32) {
	height := len(data) / width
	k := len(kernel) / 2
	b := grid.Reflect()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sum := float32(0.0)
			for i := -k; i <= k; i++ {
				x1 := b.Index(width, x+i)
				sum += data[y*width+x1] * kernel[i+k]
			}
			res[y*width+x] = sum
		}
	}
}

// Convolve the given 2D image provided by data and width with the given 1D kernel along the y axis, and store the result in res.
// Out of bounds coordinates are mapped back with symmetric reflection
func Convolve1DY(res, data []float32, width int, kernel []float32) {
	height := len(data) / width
	k := len(kernel) / 2
	b := grid.Reflect()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sum := float32(0.0)
			for i := -k; i <= k; i++ {
				y1 := b.Index(height, y+i)
				sum += data[y1*width+x] * kernel[i+k]
			}
			res[y*width+x] = sum
		}
	}
}

// Generate a 1D gaussian kernel of given standard deviation, and apply it separably to the grid.
// Returns a newly allocated float32 grid
func GaussFilter2D(g *grid.Grid, sigma float32) (*grid.Grid, error) {
	if g == nil {
		return nil, grid.NewConfigurationError("grid", "nil input")
	}
	if err := CheckSigma(sigma); err != nil {
		return nil, err
	}
	kernel := GaussianKernel1D(sigma)
	tmp := make([]float32, len(g.Data))
	res := grid.NewGridLike(g, grid.Float32)
	Convolve1DX(tmp, g.Data, g.Width, kernel)
	Convolve1DY(res.Data, tmp, g.Width, kernel)
	return res, nil
}

// Applies unsharp mask to data, given its blurred version and the gain for combination.
// Results are clipped to min..max. Pixels below the threshold are left unchanged. Stores the result in res
func ApplyUnsharpMask(res, data, blurred []float32, gain float32, min, max, absThreshold float32) {
	for i, d := range data {
		if d < absThreshold {
			res[i] = d
		} else {
			r := d + (d-blurred[i])*gain
			if r < min {
				r = min
			}
			if r > max {
				r = max
			}
			res[i] = r
		}
	}
}

// Applies unsharp mask to the grid, using provided sigma for the Gauss filter and gain for combination.
// Results are clipped to min..max. Pixels below the threshold are left unchanged. Returns a newly allocated grid
func UnsharpMask(g *grid.Grid, sigma, gain, min, max, absThreshold float32) (*grid.Grid, error) {
	blurred, err := GaussFilter2D(g, sigma)
	if err != nil {
		return nil, err
	}
	res := grid.NewGridLike(g, grid.Float32)
	ApplyUnsharpMask(res.Data, g.Data, blurred.Data, gain, min, max, absThreshold)
	return res, nil
}

// High boost filtering: adds amount times the high frequency residual g-blur(g) to the grid. Not clipped
func HighBoost(g *grid.Grid, amount, sigma float32) (*grid.Grid, error) {
	blurred, err := GaussFilter2D(g, sigma)
	if err != nil {
		return nil, err
	}
	for i, d := range g.Data {
		blurred.Data[i] = d + amount*(d-blurred.Data[i])
	}
	return blurred, nil
}
