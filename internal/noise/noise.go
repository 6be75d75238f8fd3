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

// Package noise synthesizes degraded test inputs for the filters.
// All functions take an explicit seed, so identical calls produce identical output.
package noise

import (
	"fmt"
	"math"

	"github.com/mlnoga/nightfilter/internal/grid"
	"github.com/valyala/fastrand"
)

const uniformBits = 24

// Returns a uniform sample in (0,1]
func uniform(rng *fastrand.RNG) float64 {
	return (float64(rng.Uint32n(1<<uniformBits)) + 1) / (1 << uniformBits)
}

// Returns a pair of independent standard normal samples, via Box-Muller
func normalPair(rng *fastrand.RNG) (z0, z1 float64) {
	r := math.Sqrt(-2 * math.Log(uniform(rng)))
	theta := 2 * math.Pi * uniform(rng)
	return r * math.Cos(theta), r * math.Sin(theta)
}

func newRNG(seed uint32) *fastrand.RNG {
	rng := &fastrand.RNG{}
	// fastrand treats a zero state as unseeded
	if seed == 0 {
		seed = 0x9e3779b9
	}
	rng.Seed(seed)
	return rng
}

// Returns a copy of the grid with additive gaussian noise of the given standard deviation.
// Integer grids are rounded and clamped to their type range
func AddGaussian(g *grid.Grid, sigma float32, seed uint32) (*grid.Grid, error) {
	if g == nil {
		return nil, grid.NewConfigurationError("grid", "nil input")
	}
	if sigma < 0 || math.IsNaN(float64(sigma)) {
		return nil, grid.NewConfigurationError("sigma", fmt.Sprintf("%g is negative", sigma))
	}
	res := grid.NewGridLike(g, g.Type)
	rng := newRNG(seed)
	lo, hi := g.Type.Range()
	for i := 0; i < len(g.Data); i += 2 {
		z0, z1 := normalPair(rng)
		res.Data[i] = perturb(g.Data[i], sigma, z0, g.Type, lo, hi)
		if i+1 < len(g.Data) {
			res.Data[i+1] = perturb(g.Data[i+1], sigma, z1, g.Type, lo, hi)
		}
	}
	return res, nil
}

func perturb(v, sigma float32, z float64, typ grid.SampleType, lo, hi float32) float32 {
	r := v + sigma*float32(z)
	if typ == grid.Float32 {
		return r
	}
	r = float32(math.Round(float64(r)))
	if r < lo {
		return lo
	} else if r > hi {
		return hi
	}
	return r
}

// Returns a copy of the grid with the given fraction of pixels replaced by salt or pepper with
// equal probability. Salt and pepper are the type range for integer grids, and min and max of the data for float32
func AddSaltPepper(g *grid.Grid, amount float32, seed uint32) (*grid.Grid, error) {
	if g == nil {
		return nil, grid.NewConfigurationError("grid", "nil input")
	}
	if !(amount >= 0 && amount <= 1) {
		return nil, grid.NewConfigurationError("amount", fmt.Sprintf("%g is not in [0,1]", amount))
	}
	pepper, salt := g.Type.Range()
	if g.Type == grid.Float32 {
		pepper, salt = minMax(g.Data)
	}

	res := g.Clone()
	rng := newRNG(seed)
	n := len(g.Data)
	count := int(math.Round(float64(amount) * float64(n)))

	// partial Fisher-Yates shuffle selects count distinct pixels
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := 0; i < count; i++ {
		j := i + int(rng.Uint32n(uint32(n-i)))
		perm[i], perm[j] = perm[j], perm[i]
		if rng.Uint32n(2) == 0 {
			res.Data[perm[i]] = pepper
		} else {
			res.Data[perm[i]] = salt
		}
	}
	return res, nil
}

func minMax(data []float32) (min, max float32) {
	min, max = data[0], data[0]
	for _, d := range data {
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return min, max
}
