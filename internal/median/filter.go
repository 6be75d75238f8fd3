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

package median

import (
	"fmt"

	"github.com/mlnoga/nightfilter/internal/grid"
)

// Checks that a window size is positive and odd
func checkWindowSize(param string, size int) error {
	if size < 1 {
		return grid.NewConfigurationError(param, fmt.Sprintf("window size %d is not positive", size))
	}
	if size&1 == 0 {
		return grid.NewConfigurationError(param, fmt.Sprintf("window size %d is even", size))
	}
	return nil
}

// Checks the window size of the fixed size median filter
func CheckWindowSize(size int) error { return checkWindowSize("size", size) }

// Applies a fixed size median filter to the grid, replicating edge samples beyond the border.
// Returns a newly allocated grid of the same dimensions and sample type.
func Filter(g *grid.Grid, size int) (*grid.Grid, error) {
	return FilterWorkers(g, size, 0)
}

// Like Filter, with the number of worker goroutines given explicitly. 0 uses all CPUs
func FilterWorkers(g *grid.Grid, size, workers int) (*grid.Grid, error) {
	if g == nil {
		return nil, grid.NewConfigurationError("grid", "nil input")
	}
	if err := checkWindowSize("size", size); err != nil {
		return nil, err
	}

	margin := size / 2
	padded, err := grid.Pad(g, margin, grid.Replicate())
	if err != nil {
		return nil, err
	}
	res := grid.NewGridLike(g, g.Type)
	pw := padded.Width

	grid.ParallelRows(g.Height, workers, func(y0, y1 int) {
		if size == 3 {
			for y := y0; y < y1; y++ {
				medianFilterLine3x3(res.Row(y), padded.Data[y*pw:(y+3)*pw], pw)
			}
			return
		}
		gathered := make([]float32, size*size)
		for y := y0; y < y1; y++ {
			out := res.Row(y)
			for x := range out {
				j := 0
				for wy := y; wy < y+size; wy++ {
					j += copy(gathered[j:], padded.Data[wy*pw+x:wy*pw+x+size])
				}
				out[x] = MedianFloat32(gathered)
			}
		}
	})
	return res, nil
}

// Input data is three padded lines of given width. Applies a 3x3 median filter to these,
// and stores the results for the middle line in output, which has width-2 samples.
func medianFilterLine3x3(output, data []float32, width int) {
	var gathered = []float32{0, 0, 0, 0, 0, 0, 0, 0, 0}

	for x := range output {
		ioff := x
		gathered[0] = data[ioff]
		gathered[1] = data[ioff+1]
		gathered[2] = data[ioff+2]
		ioff += width
		gathered[3] = data[ioff]
		gathered[4] = data[ioff+1]
		gathered[5] = data[ioff+2]
		ioff += width
		gathered[6] = data[ioff]
		gathered[7] = data[ioff+1]
		gathered[8] = data[ioff+2]
		output[x] = MedianFloat32Slice9(gathered)
	}
}
