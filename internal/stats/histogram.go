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

package stats

import (
	"fmt"
	"math"

	"github.com/mlnoga/nightfilter/internal/grid"
	"gonum.org/v1/gonum/optimize"
)

// Calculate histogram of data between min and max into given bins. Values outside are counted in the outermost bins
func Histogram(data []float32, min, max float32, bins []int32) {
	for i := range bins {
		bins[i] = 0
	}
	if max <= min {
		bins[0] = int32(len(data))
		return
	}
	last := len(bins) - 1
	scale := float32(last) / (max - min)
	for _, d := range data {
		index := int((d - min) * scale)
		if index < 0 || d != d {
			index = 0
		} else if index > last {
			index = last
		}
		bins[index]++
	}
}

// Returns the center of histogram bin i
func binCenter(i int, min, max float32, numBins int) float32 {
	return min + (float32(i)+0.5)*(max-min)/float32(numBins-1)
}

// Returns the location and the value of the histogram peak
func GetPeak(bins []int32, min, max float32) (x, y float32) {
	maxIndex, maxValue := -1, int32(math.MinInt32)
	for i, v := range bins {
		if v > maxValue {
			maxIndex, maxValue = i, v
		}
	}
	return binCenter(maxIndex, min, max, len(bins)), float32(maxValue)
}

// Calculates the mode and the standard deviation of the given histogram, by fitting a
// normal distribution with Nelder-Mead, starting from the peak and the histogram moments
func GetModeStdDevFromHistogram(bins []int32, min, max float32) (mode, stdDev float32, err error) {
	if len(bins) < 3 || max <= min {
		return 0, 0, grid.NewConfigurationError("histogram", fmt.Sprintf("%d bins over [%g,%g]", len(bins), min, max))
	}
	binWidth := float64(max-min) / float64(len(bins)-1)

	// Take an educated initial guess from the peak and the moments of the histogram
	peak, _ := GetPeak(bins, min, max)
	count, mean := 0.0, 0.0
	for i, b := range bins {
		count += float64(b)
		mean += float64(b) * float64(binCenter(i, min, max, len(bins)))
	}
	if count == 0 {
		return 0, 0, grid.NewConfigurationError("histogram", "no samples")
	}
	mean /= count
	variance := 0.0
	for i, b := range bins {
		diff := float64(binCenter(i, min, max, len(bins))) - mean
		variance += float64(b) * diff * diff
	}
	sigma0 := math.Max(math.Sqrt(variance/count), binWidth)

	// Now minimize the distance between the histogram and a normal distribution
	x0 := []float64{count * binWidth, float64(peak), sigma0}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			alpha, mu, sigma := x[0], x[1], math.Abs(x[2])
			if sigma == 0 {
				return math.Inf(1)
			}
			scaler := alpha / (sigma * math.Sqrt(2*math.Pi))
			sumSqDiff := 0.0
			for i, y := range bins {
				xmusig := (float64(binCenter(i, min, max, len(bins))) - mu) / sigma
				diff := float64(y) - scaler*math.Exp(-0.5*xmusig*xmusig)
				sumSqDiff += diff * diff
			}
			return math.Sqrt(sumSqDiff / float64(len(bins)))
		},
	}
	result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil {
		return -1, -1, err
	}
	return float32(result.X[1]), float32(math.Abs(result.X[2])), nil
}

// Calculates mode and standard deviation of a grid from a histogram with the given number of bins
func HistogramModeStdDev(g *grid.Grid, numBins int) (mode, stdDev float32, err error) {
	if numBins < 3 {
		return 0, 0, grid.NewConfigurationError("bins", fmt.Sprintf("%d is less than 3", numBins))
	}
	s, err := CalcBasicStats(g)
	if err != nil {
		return 0, 0, err
	}
	if s.Max == s.Min {
		return s.Min, 0, nil
	}
	bins := make([]int32, numBins)
	Histogram(g.Data, s.Min, s.Max, bins)
	return GetModeStdDevFromHistogram(bins, s.Min, s.Max)
}

// Calculates the threshold which maximizes the between-class variance of a histogram with the given
// number of bins (Otsu's method). Samples strictly above the threshold form the foreground.
// Constant grids return their single value, so no sample lies above
func OtsuThreshold(g *grid.Grid, numBins int) (float32, error) {
	if numBins < 2 {
		return 0, grid.NewConfigurationError("bins", fmt.Sprintf("%d is less than 2", numBins))
	}
	s, err := CalcBasicStats(g)
	if err != nil {
		return 0, err
	}
	if s.Max == s.Min {
		return s.Min, nil
	}
	bins := make([]int32, numBins)
	Histogram(g.Data, s.Min, s.Max, bins)

	total, totalSum := 0.0, 0.0
	for i, b := range bins {
		total += float64(b)
		totalSum += float64(b) * float64(binCenter(i, s.Min, s.Max, numBins))
	}

	best, bestVariance := 0, -1.0
	weight, sum := 0.0, 0.0
	for i := 0; i < numBins-1; i++ {
		weight += float64(bins[i])
		sum += float64(bins[i]) * float64(binCenter(i, s.Min, s.Max, numBins))
		rest := total - weight
		if weight == 0 || rest == 0 {
			continue
		}
		diff := sum/weight - (totalSum-sum)/rest
		if variance := weight * rest * diff * diff; variance > bestVariance {
			best, bestVariance = i, variance
		}
	}
	return binCenter(best, s.Min, s.Max, numBins), nil
}
