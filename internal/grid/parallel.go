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

package grid

import (
	"runtime"
)

// A row function. Processes rows [y0, y1). Must only write to its own rows of the output.
type RowFunction func(y0, y1 int)

// Applies the given row function to all rows in [0, height), split into bands.
// Uses thread parallelism across at most workers goroutines, or all available CPUs if workers<=0.
// Returns once all bands are done.
func ParallelRows(height, workers int, rf RowFunction) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers == 1 || height < 2 {
		rf(0, height)
		return
	}

	// split into 8*workers work packages, limit parallelism to workers
	numBatches := 8 * workers
	batchSize := (height + numBatches - 1) / numBatches
	sem := make(chan bool, workers)
	for lower := 0; lower < height; lower += batchSize {
		upper := lower + batchSize
		if upper > height {
			upper = height
		}

		sem <- true
		go func(y0, y1 int) {
			rf(y0, y1)
			<-sem
		}(lower, upper)
	}

	for i := 0; i < cap(sem); i++ { // wait for goroutines to finish
		sem <- true
	}
}
