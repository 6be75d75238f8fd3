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

	"github.com/mlnoga/nightfilter/internal/convolve"
	"github.com/mlnoga/nightfilter/internal/grid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic statistics on grids
type BasicStats struct {
	Min    float32 // Minimum
	Max    float32 // Maximum
	Mean   float32 // Mean (average)
	StdDev float32 // Population standard deviation (norm 2, sigma)

	Noise     float32 // Noise estimation, not calculated by default
	Sharpness float32 // Variance of the Laplacian, not calculated by default
}

// Pretty print basic stats to string
func (s *BasicStats) String() string {
	return fmt.Sprintf("Min %.6g Max %.6g Mean %.6g StdDev %.6g Noise %.4g Sharpness %.4g",
		s.Min, s.Max, s.Mean, s.StdDev, s.Noise, s.Sharpness)
}

// Pretty print basic stats to CSV header
func (s *BasicStats) ToCSVHeader() string {
	return "Min,Max,Mean,StdDev,Noise,Sharpness"
}

// Pretty print basic stats to CSV line item
func (s *BasicStats) ToCSVLine() string {
	return fmt.Sprintf("%.6g,%.6g,%.6g,%.6g,%.4g,%.4g",
		s.Min, s.Max, s.Mean, s.StdDev, s.Noise, s.Sharpness)
}

func toFloat64(data []float32) []float64 {
	res := make([]float64, len(data))
	for i, d := range data {
		res[i] = float64(d)
	}
	return res
}

func checkGrid(g *grid.Grid) error {
	if g == nil || len(g.Data) == 0 {
		return grid.NewConfigurationError("grid", "nil or empty input")
	}
	return nil
}

// Calculate basic statistics for a grid
func CalcBasicStats(g *grid.Grid) (*BasicStats, error) {
	if err := checkGrid(g); err != nil {
		return nil, err
	}
	xs := toFloat64(g.Data)
	mean, stdDev := stat.PopMeanStdDev(xs, nil)
	return &BasicStats{
		Min:    float32(floats.Min(xs)),
		Max:    float32(floats.Max(xs)),
		Mean:   float32(mean),
		StdDev: float32(stdDev),
	}, nil
}

// Calculates basic statistics plus noise estimate and sharpness
func CalcExtendedStats(g *grid.Grid) (*BasicStats, error) {
	s, err := CalcBasicStats(g)
	if err != nil {
		return nil, err
	}
	if s.Noise, err = EstimateNoise(g); err != nil {
		return nil, err
	}
	if s.Sharpness, err = LaplacianVariance(g); err != nil {
		return nil, err
	}
	return s, nil
}

// Weights for noise estimation
var enKernel = &convolve.Kernel{Size: 3, Weights: []float32{
	1, -2, 1,
	-2, 4, -2,
	1, -2, 1,
}}

// Estimate the level of gaussian noise on a natural image, as standard deviation.
// From J. Immerkær, “Fast Noise Variance Estimation”, Computer Vision and Image Understanding, Vol. 64, No. 2, pp. 300-302, Sep. 1996.
// Only the interior is evaluated, grids smaller than 3x3 return zero.
func EstimateNoise(g *grid.Grid) (float32, error) {
	if err := checkGrid(g); err != nil {
		return 0, err
	}
	if g.Width < 3 || g.Height < 3 {
		return 0, nil
	}
	conv, err := convolve.Convolve(g, enKernel, grid.Replicate())
	if err != nil {
		return 0, err
	}
	sum := float64(0)
	for y := 1; y < g.Height-1; y++ {
		rowSum := float32(0)
		for _, c := range conv.Row(y)[1 : g.Width-1] {
			rowSum += float32(math.Abs(float64(c)))
		}
		sum += float64(rowSum)
	}
	factor := math.Sqrt(0.5*math.Pi) / (6 * float64(g.Width-2) * float64(g.Height-2))
	return float32(sum * factor), nil
}

// Calculates the variance of the 4-neighbour Laplacian as a sharpness metric. Higher is sharper
func LaplacianVariance(g *grid.Grid) (float32, error) {
	if err := checkGrid(g); err != nil {
		return 0, err
	}
	lap, err := convolve.Convolve(g, convolve.Laplacian4(), grid.Replicate())
	if err != nil {
		return 0, err
	}
	return float32(stat.PopVariance(toFloat64(lap.Data), nil)), nil
}
