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
	"gonum.org/v1/gonum/stat"
)

// Quality of a filtered grid relative to a reference
type Comparison struct {
	MSE  float64 // Mean squared error
	PSNR float64 // Peak signal to noise ratio in dB, +Inf for identical grids
	SSIM float64 // Global structural similarity index
}

func (c *Comparison) String() string {
	return fmt.Sprintf("MSE %.6g PSNR %.4gdB SSIM %.4f", c.MSE, c.PSNR, c.SSIM)
}

func checkPair(a, b *grid.Grid) error {
	if err := checkGrid(a); err != nil {
		return err
	}
	if err := checkGrid(b); err != nil {
		return err
	}
	if !a.SameShape(b) {
		return grid.NewConfigurationError("dimensions", fmt.Sprintf("%dx%d does not match %dx%d", a.Width, a.Height, b.Width, b.Height))
	}
	return nil
}

// Returns the mean squared error between two grids of equal shape
func MSE(a, b *grid.Grid) (float64, error) {
	if err := checkPair(a, b); err != nil {
		return 0, err
	}
	sum := float64(0)
	for i, av := range a.Data {
		diff := float64(av) - float64(b.Data[i])
		sum += diff * diff
	}
	return sum / float64(len(a.Data)), nil
}

// Returns the peak signal to noise ratio in dB for the given data range, e.g. 255 for 8-bit images.
// Identical grids yield +Inf
func PSNR(a, b *grid.Grid, dataRange float64) (float64, error) {
	if !(dataRange > 0) {
		return 0, grid.NewConfigurationError("dataRange", fmt.Sprintf("%g is not positive", dataRange))
	}
	mse, err := MSE(a, b)
	if err != nil {
		return 0, err
	}
	if mse == 0 {
		return math.Inf(1), nil
	}
	return 10 * math.Log10(dataRange*dataRange/mse), nil
}

// Returns the global structural similarity index between two grids for the given data range
func SSIM(a, b *grid.Grid, dataRange float64) (float64, error) {
	if !(dataRange > 0) {
		return 0, grid.NewConfigurationError("dataRange", fmt.Sprintf("%g is not positive", dataRange))
	}
	if err := checkPair(a, b); err != nil {
		return 0, err
	}
	const k1, k2 = 0.01, 0.03
	c1 := (k1 * dataRange) * (k1 * dataRange)
	c2 := (k2 * dataRange) * (k2 * dataRange)

	xs, ys := toFloat64(a.Data), toFloat64(b.Data)
	muX, muY := stat.Mean(xs, nil), stat.Mean(ys, nil)
	if len(xs) < 2 {
		if muX == muY {
			return 1, nil
		}
		return (2*muX*muY + c1) / (muX*muX + muY*muY + c1), nil
	}
	sigmaX, sigmaY := stat.Variance(xs, nil), stat.Variance(ys, nil)
	sigmaXY := stat.Covariance(xs, ys, nil)

	num := (2*muX*muY + c1) * (2*sigmaXY + c2)
	den := (muX*muX + muY*muY + c1) * (sigmaX + sigmaY + c2)
	if den > 0 {
		return num / den, nil
	}
	return 0, nil
}

// Compares a grid against a reference, for the given data range
func Compare(g, ref *grid.Grid, dataRange float64) (*Comparison, error) {
	mse, err := MSE(g, ref)
	if err != nil {
		return nil, err
	}
	psnr, err := PSNR(g, ref, dataRange)
	if err != nil {
		return nil, err
	}
	ssim, err := SSIM(g, ref, dataRange)
	if err != nil {
		return nil, err
	}
	return &Comparison{MSE: mse, PSNR: psnr, SSIM: ssim}, nil
}

// Returns the nominal data range of a grid's sample type, or its actual max-min for float32 grids
func DataRange(g *grid.Grid) float64 {
	if g.Type != grid.Float32 {
		lo, hi := g.Type.Range()
		return float64(hi - lo)
	}
	s, err := CalcBasicStats(g)
	if err != nil || s.Max == s.Min {
		return 1
	}
	return float64(s.Max - s.Min)
}
