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

package noise

import (
	"encoding/json"
	"fmt"

	"github.com/mlnoga/nightfilter/internal/grid"
	"github.com/mlnoga/nightfilter/internal/noise"
	"github.com/mlnoga/nightfilter/internal/ops"
)

// Adds gaussian noise. The seed is offset by the image ID, so each image gets its own
// reproducible noise. Takes one input, produces one output
type OpNoiseGaussian struct {
	ops.OpUnaryBase
	Sigma float32 `json:"sigma"`
	Seed  uint32  `json:"seed"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpNoiseGaussianDefault() }) } // register the operator for JSON decoding

func NewOpNoiseGaussianDefault() *OpNoiseGaussian { return NewOpNoiseGaussian(10, 1) }

func NewOpNoiseGaussian(sigma float32, seed uint32) *OpNoiseGaussian {
	op := OpNoiseGaussian{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "noiseGaussian", Active: sigma > 0}},
		Sigma:       sigma,
		Seed:        seed,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpNoiseGaussian) UnmarshalJSON(data []byte) error {
	type defaults OpNoiseGaussian
	def := defaults(*NewOpNoiseGaussianDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpNoiseGaussian(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpNoiseGaussian) Apply(g *grid.Grid, c *ops.Context) (result *grid.Grid, err error) {
	fmt.Fprintf(c.Log, "%d: Adding gaussian noise with sigma %.3g\n", g.ID, op.Sigma)
	return noise.AddGaussian(g, op.Sigma, op.Seed+uint32(g.ID))
}

// Adds salt and pepper noise to the given fraction of pixels. Takes one input, produces one output
type OpNoiseSaltPepper struct {
	ops.OpUnaryBase
	Amount float32 `json:"amount"`
	Seed   uint32  `json:"seed"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpNoiseSaltPepperDefault() }) } // register the operator for JSON decoding

func NewOpNoiseSaltPepperDefault() *OpNoiseSaltPepper { return NewOpNoiseSaltPepper(0.05, 1) }

func NewOpNoiseSaltPepper(amount float32, seed uint32) *OpNoiseSaltPepper {
	op := OpNoiseSaltPepper{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "noiseSaltPepper", Active: amount > 0}},
		Amount:      amount,
		Seed:        seed,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpNoiseSaltPepper) UnmarshalJSON(data []byte) error {
	type defaults OpNoiseSaltPepper
	def := defaults(*NewOpNoiseSaltPepperDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpNoiseSaltPepper(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpNoiseSaltPepper) Apply(g *grid.Grid, c *ops.Context) (result *grid.Grid, err error) {
	fmt.Fprintf(c.Log, "%d: Adding salt and pepper noise to %.2f%% of pixels\n", g.ID, op.Amount*100)
	return noise.AddSaltPepper(g, op.Amount, op.Seed+uint32(g.ID))
}
