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

package filter

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mlnoga/nightfilter/internal/convolve"
	"github.com/mlnoga/nightfilter/internal/grid"
	"github.com/mlnoga/nightfilter/internal/ops"
)

func checkFinite(param string, v float32) error {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return grid.NewConfigurationError(param, fmt.Sprintf("%g is not finite", v))
	}
	return nil
}

// Sharpens images with an unsharp mask. Takes one input, produces one output
type OpUnsharpMask struct {
	ops.OpUnaryBase
	Sigma     float32 `json:"sigma"`
	Gain      float32 `json:"gain"`
	Threshold float32 `json:"threshold"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpUnsharpMaskDefault() }) } // register the operator for JSON decoding

func NewOpUnsharpMaskDefault() *OpUnsharpMask { return NewOpUnsharpMask(1.5, 1, 0) }

func NewOpUnsharpMask(sigma, gain, threshold float32) *OpUnsharpMask {
	op := OpUnsharpMask{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "unsharpMask", Active: sigma > 0 && gain > 0}},
		Sigma:       sigma,
		Gain:        gain,
		Threshold:   threshold,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpUnsharpMask) UnmarshalJSON(data []byte) error {
	type defaults OpUnsharpMask
	def := defaults(*NewOpUnsharpMaskDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpUnsharpMask(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpUnsharpMask) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if op.Active {
		if err := convolve.CheckSigma(op.Sigma); err != nil {
			return nil, err
		}
		if err := checkFinite("gain", op.Gain); err != nil {
			return nil, err
		}
	}
	return op.OpUnaryBase.MakePromises(ins, c)
}

func (op *OpUnsharpMask) Apply(g *grid.Grid, c *ops.Context) (result *grid.Grid, err error) {
	fmt.Fprintf(c.Log, "%d: Unsharp masking with sigma %.3g gain %.3g thresh %.3g\n", g.ID, op.Sigma, op.Gain, op.Threshold)
	lo, hi := g.Type.Range()
	res, err := convolve.UnsharpMask(g, op.Sigma, op.Gain, lo, hi, op.Threshold)
	if err != nil {
		return nil, err
	}
	return grid.CastTo(res, g.Type), nil
}

// High boost filtering. Takes one input, produces one output
type OpHighBoost struct {
	ops.OpUnaryBase
	Amount float32 `json:"amount"`
	Sigma  float32 `json:"sigma"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpHighBoostDefault() }) } // register the operator for JSON decoding

func NewOpHighBoostDefault() *OpHighBoost { return NewOpHighBoost(1.5, 1) }

func NewOpHighBoost(amount, sigma float32) *OpHighBoost {
	op := OpHighBoost{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "highBoost", Active: true}},
		Amount:      amount,
		Sigma:       sigma,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpHighBoost) UnmarshalJSON(data []byte) error {
	type defaults OpHighBoost
	def := defaults(*NewOpHighBoostDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpHighBoost(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpHighBoost) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if op.Active {
		if err := convolve.CheckSigma(op.Sigma); err != nil {
			return nil, err
		}
		if err := checkFinite("amount", op.Amount); err != nil {
			return nil, err
		}
	}
	return op.OpUnaryBase.MakePromises(ins, c)
}

func (op *OpHighBoost) Apply(g *grid.Grid, c *ops.Context) (result *grid.Grid, err error) {
	fmt.Fprintf(c.Log, "%d: High boost with amount %.3g sigma %.3g\n", g.ID, op.Amount, op.Sigma)
	res, err := convolve.HighBoost(g, op.Amount, op.Sigma)
	if err != nil {
		return nil, err
	}
	return grid.CastTo(res, g.Type), nil
}

// Edge detection via gradient magnitude. Takes one input, produces one output
type OpGradient struct {
	ops.OpUnaryBase
	Operator string      `json:"operator"` // sobel or prewitt
	Border   grid.Border `json:"border"`
	Post     string      `json:"post"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpGradientDefault() }) } // register the operator for JSON decoding

func NewOpGradientDefault() *OpGradient { return NewOpGradient("sobel", grid.Replicate(), PostNormalize) }

func NewOpGradient(operator string, border grid.Border, post string) *OpGradient {
	op := OpGradient{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "gradient", Active: true}},
		Operator:    operator,
		Border:      border,
		Post:        post,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpGradient) UnmarshalJSON(data []byte) error {
	type defaults OpGradient
	def := defaults(*NewOpGradientDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpGradient(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

// Returns the directional kernel pair for the operator name
func (op *OpGradient) kernels() (kx, ky *convolve.Kernel, err error) {
	switch strings.ToLower(op.Operator) {
	case "sobel":
		return convolve.SobelX(), convolve.SobelY(), nil
	case "prewitt":
		return convolve.PrewittX(), convolve.PrewittY(), nil
	}
	return nil, nil, grid.NewConfigurationError("operator", fmt.Sprintf("unknown gradient operator '%s', want sobel or prewitt", op.Operator))
}

func (op *OpGradient) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if op.Active {
		if _, _, err := op.kernels(); err != nil {
			return nil, err
		}
		if err := checkPost(op.Post); err != nil {
			return nil, err
		}
	}
	return op.OpUnaryBase.MakePromises(ins, c)
}

func (op *OpGradient) Apply(g *grid.Grid, c *ops.Context) (result *grid.Grid, err error) {
	kx, ky, err := op.kernels()
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(c.Log, "%d: %s gradient magnitude, border %v\n", g.ID, op.Operator, op.Border)
	res, err := convolve.GradientWorkers(g, kx, ky, op.Border, c.Workers())
	if err != nil {
		return nil, err
	}
	return postProcess(res, g.Type, op.Post), nil
}

// Linearly maps the image range to [Min,Max]. Takes one input, produces one output
type OpNormalize struct {
	ops.OpUnaryBase
	Min float32 `json:"min"`
	Max float32 `json:"max"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpNormalizeDefault() }) } // register the operator for JSON decoding

// Default maps to [0,0], which selects the full range of the image type
func NewOpNormalizeDefault() *OpNormalize { return NewOpNormalize(0, 0) }

func NewOpNormalize(min, max float32) *OpNormalize {
	op := OpNormalize{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "normalize", Active: true}},
		Min:         min,
		Max:         max,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpNormalize) UnmarshalJSON(data []byte) error {
	type defaults OpNormalize
	def := defaults(*NewOpNormalizeDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpNormalize(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpNormalize) Apply(g *grid.Grid, c *ops.Context) (result *grid.Grid, err error) {
	lo, hi := op.Min, op.Max
	if lo == 0 && hi == 0 {
		lo, hi = outputRange(g.Type)
	}
	fmt.Fprintf(c.Log, "%d: Normalizing to [%.4g,%.4g]\n", g.ID, lo, hi)
	return grid.NormalizeMinMax(g, lo, hi), nil
}

// Clips the image to [Min,Max]. Takes one input, produces one output
type OpClip struct {
	ops.OpUnaryBase
	Min float32 `json:"min"`
	Max float32 `json:"max"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpClipDefault() }) } // register the operator for JSON decoding

func NewOpClipDefault() *OpClip { return NewOpClip(0, 255) }

func NewOpClip(min, max float32) *OpClip {
	op := OpClip{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "clip", Active: true}},
		Min:         min,
		Max:         max,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpClip) UnmarshalJSON(data []byte) error {
	type defaults OpClip
	def := defaults(*NewOpClipDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpClip(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpClip) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if op.Active && op.Min > op.Max {
		return nil, grid.NewConfigurationError("min", fmt.Sprintf("%g exceeds max %g", op.Min, op.Max))
	}
	return op.OpUnaryBase.MakePromises(ins, c)
}

func (op *OpClip) Apply(g *grid.Grid, c *ops.Context) (result *grid.Grid, err error) {
	fmt.Fprintf(c.Log, "%d: Clipping to [%.4g,%.4g]\n", g.ID, op.Min, op.Max)
	return grid.Clip(g, op.Min, op.Max), nil
}
