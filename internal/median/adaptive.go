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
	"sync/atomic"

	"github.com/mlnoga/nightfilter/internal/grid"
)

// Counts of the decisions taken by the adaptive median filter, one per pixel
type AdaptiveStats struct {
	Kept     int64 // center sample was strictly inside the window range and kept
	Replaced int64 // center sample was an extreme and replaced by the window median
	Fallback int64 // no window up to max size had an interior median, last median used
}

func (s AdaptiveStats) String() string {
	return fmt.Sprintf("kept %d replaced %d fallback %d", s.Kept, s.Replaced, s.Fallback)
}

// Applies the adaptive median filter to the grid. For each pixel the window grows from minSize to maxSize
// in steps of two until its median lies strictly between window minimum and maximum. The center sample is
// kept if it too lies strictly inside, else replaced by the median. If no window qualifies, the median of the
// largest window is used. Returns a newly allocated grid of the same dimensions and sample type.
func Adaptive(g *grid.Grid, minSize, maxSize int) (*grid.Grid, error) {
	res, _, err := AdaptiveWithStats(g, minSize, maxSize, 0)
	return res, err
}

// Like Adaptive, with the number of worker goroutines given explicitly. 0 uses all CPUs
func AdaptiveWorkers(g *grid.Grid, minSize, maxSize, workers int) (*grid.Grid, error) {
	res, _, err := AdaptiveWithStats(g, minSize, maxSize, workers)
	return res, err
}

// Checks the window size range of the adaptive median filter
func CheckAdaptiveRange(minSize, maxSize int) error {
	if err := checkWindowSize("minSize", minSize); err != nil {
		return err
	}
	if err := checkWindowSize("maxSize", maxSize); err != nil {
		return err
	}
	if minSize > maxSize {
		return grid.NewConfigurationError("minSize", fmt.Sprintf("minSize %d exceeds maxSize %d", minSize, maxSize))
	}
	return nil
}

// Applies the adaptive median filter and also returns per-pixel decision counts
func AdaptiveWithStats(g *grid.Grid, minSize, maxSize, workers int) (*grid.Grid, AdaptiveStats, error) {
	var stats AdaptiveStats
	if g == nil {
		return nil, stats, grid.NewConfigurationError("grid", "nil input")
	}
	if err := CheckAdaptiveRange(minSize, maxSize); err != nil {
		return nil, stats, err
	}

	// pad once for the largest window, all smaller windows stay centered inside it
	margin := maxSize / 2
	padded, err := grid.Pad(g, margin, grid.Replicate())
	if err != nil {
		return nil, stats, err
	}
	res := grid.NewGridLike(g, grid.Float32)
	pw := padded.Width

	grid.ParallelRows(g.Height, workers, func(y0, y1 int) {
		var local AdaptiveStats
		gathered := make([]float32, maxSize*maxSize)

		for y := y0; y < y1; y++ {
			in, out := g.Row(y), res.Row(y)
			for x, center := range in {
				var zMed float32
				decided := false
				for size := minSize; size <= maxSize; size += 2 {
					off := (maxSize - size) / 2
					top, left := y+off, x+off

					// gather window and track its range
					zMin, zMax := padded.Data[top*pw+left], padded.Data[top*pw+left]
					j := 0
					for wy := top; wy < top+size; wy++ {
						for _, v := range padded.Data[wy*pw+left : wy*pw+left+size] {
							if v < zMin {
								zMin = v
							}
							if v > zMax {
								zMax = v
							}
							gathered[j] = v
							j++
						}
					}
					zMed = MedianFloat32(gathered[:j])

					if zMin < zMed && zMed < zMax {
						if zMin < center && center < zMax {
							out[x] = center
							local.Kept++
						} else {
							out[x] = zMed
							local.Replaced++
						}
						decided = true
						break
					}
				}
				if !decided {
					out[x] = zMed
					local.Fallback++
				}
			}
		}

		atomic.AddInt64(&stats.Kept, local.Kept)
		atomic.AddInt64(&stats.Replaced, local.Replaced)
		atomic.AddInt64(&stats.Fallback, local.Fallback)
	})

	return grid.CastTo(res, g.Type), stats, nil
}
