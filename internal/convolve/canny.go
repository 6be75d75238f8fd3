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

// Checks the hysteresis thresholds of the Canny edge detector
func CheckCannyThresholds(low, high float32) error {
	if !(low >= 0) {
		return grid.NewConfigurationError("low", fmt.Sprintf("%g is negative", low))
	}
	if !(high >= low) {
		return grid.NewConfigurationError("high", fmt.Sprintf("%g is below low threshold %g", high, low))
	}
	return nil
}

// Canny edge detection. Smooths with a gaussian of given sigma, takes Sobel gradients with replicated
// borders, thins them by non-maximum suppression along the gradient direction, and keeps pixels with
// magnitude above high plus all pixels above low which are 8-connected to those.
// Sigma 0 skips smoothing. Edge pixels are set to the type maximum (1 for float32), others to 0
func Canny(g *grid.Grid, sigma, low, high float32, workers int) (*grid.Grid, error) {
	if g == nil {
		return nil, grid.NewConfigurationError("grid", "nil input")
	}
	if err := CheckCannyThresholds(low, high); err != nil {
		return nil, err
	}
	src := g
	if sigma != 0 {
		var err error
		if src, err = GaussFilter2D(g, sigma); err != nil {
			return nil, err
		}
	}
	gx, err := ConvolveWorkers(src, SobelX(), grid.Replicate(), workers)
	if err != nil {
		return nil, err
	}
	gy, err := ConvolveWorkers(src, SobelY(), grid.Replicate(), workers)
	if err != nil {
		return nil, err
	}

	width, height := g.Width, g.Height
	mag := make([]float32, len(gx.Data))
	for i, x := range gx.Data {
		y := gy.Data[i]
		mag[i] = float32(math.Sqrt(float64(x*x + y*y)))
	}

	thin := make([]float32, len(mag))
	grid.ParallelRows(height, workers, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < width; x++ {
				i := y*width + x
				m := mag[i]
				if m == 0 {
					continue
				}
				dx, dy := gradientDirection(gx.Data[i], gy.Data[i])
				prev := magnitudeAt(mag, width, height, x-dx, y-dy)
				next := magnitudeAt(mag, width, height, x+dx, y+dy)
				if m > prev && m >= next {
					thin[i] = m
				}
			}
		}
	})

	on := float32(1)
	if g.Type != grid.Float32 {
		_, on = g.Type.Range()
	}
	res := grid.NewGridLike(g, g.Type)
	for i, e := range hysteresis(thin, width, low, high) {
		if e {
			res.Data[i] = on
		}
	}
	return res, nil
}

// Quantizes the gradient direction to one of four neighbour offsets: horizontal, two diagonals, vertical
func gradientDirection(gx, gy float32) (dx, dy int) {
	angle := math.Atan2(float64(gy), float64(gx)) * 180 / math.Pi
	if angle < 0 {
		angle += 180
	}
	switch {
	case angle < 22.5 || angle >= 157.5:
		return 1, 0
	case angle < 67.5:
		return 1, 1
	case angle < 112.5:
		return 0, 1
	}
	return -1, 1
}

func magnitudeAt(mag []float32, width, height, x, y int) float32 {
	if x < 0 || x >= width || y < 0 || y >= height {
		return 0
	}
	return mag[y*width+x]
}

// Marks pixels above high as edges, and grows them through 8-connected pixels above low
func hysteresis(mag []float32, width int, low, high float32) []bool {
	height := len(mag) / width
	edges := make([]bool, len(mag))
	var stack []int
	for i, m := range mag {
		if m > high {
			edges[i] = true
			stack = append(stack, i)
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%width, i/width
		for ny := y - 1; ny <= y+1; ny++ {
			for nx := x - 1; nx <= x+1; nx++ {
				if nx < 0 || nx >= width || ny < 0 || ny >= height {
					continue
				}
				j := ny*width + nx
				if !edges[j] && mag[j] > low {
					edges[j] = true
					stack = append(stack, j)
				}
			}
		}
	}
	return edges
}
