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
	"strings"

	"github.com/mlnoga/nightfilter/internal/convolve"
	"github.com/mlnoga/nightfilter/internal/grid"
	"github.com/mlnoga/nightfilter/internal/ops"
	"github.com/mlnoga/nightfilter/internal/stats"
)

// Canny edge detection. Produces a binary edge map of the input type. Takes one input, produces one output
type OpCanny struct {
	ops.OpUnaryBase
	Sigma float32 `json:"sigma"` // gaussian pre-smoothing, 0=off
	Low   float32 `json:"low"`   // hysteresis thresholds on the gradient magnitude
	High  float32 `json:"high"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpCannyDefault() }) } // register the operator for JSON decoding

// Defaults smooth with a 5x5 gaussian and use thresholds suited for 8-bit data
func NewOpCannyDefault() *OpCanny { return NewOpCanny(1.1, 50, 150) }

func NewOpCanny(sigma, low, high float32) *OpCanny {
	op := OpCanny{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "canny", Active: true}},
		Sigma:       sigma,
		Low:         low,
		High:        high,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpCanny) UnmarshalJSON(data []byte) error {
	type defaults OpCanny
	def := defaults(*NewOpCannyDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpCanny(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpCanny) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if op.Active {
		if op.Sigma != 0 {
			if err := convolve.CheckSigma(op.Sigma); err != nil {
				return nil, err
			}
		}
		if err := convolve.CheckCannyThresholds(op.Low, op.High); err != nil {
			return nil, err
		}
	}
	return op.OpUnaryBase.MakePromises(ins, c)
}

func (op *OpCanny) Apply(g *grid.Grid, c *ops.Context) (result *grid.Grid, err error) {
	fmt.Fprintf(c.Log, "%d: Canny edges with sigma %.3g, thresholds %.4g..%.4g\n", g.ID, op.Sigma, op.Low, op.High)
	return convolve.Canny(g, op.Sigma, op.Low, op.High, c.Workers())
}

// Threshold selection methods
const (
	ThresholdOtsu  = "otsu"  // maximize between-class variance of the histogram
	ThresholdFixed = "fixed" // use the given value
)

// Binarizes images: samples above the threshold become the type maximum (1 for float32), others 0.
// Takes one input, produces one output
type OpThreshold struct {
	ops.OpUnaryBase
	Method string  `json:"method"`
	Value  float32 `json:"value"` // threshold for the fixed method
	Bins   int     `json:"bins"`  // histogram bins for the otsu method
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpThresholdDefault() }) } // register the operator for JSON decoding

func NewOpThresholdDefault() *OpThreshold { return NewOpThreshold(ThresholdOtsu, 0) }

func NewOpThreshold(method string, value float32) *OpThreshold {
	op := OpThreshold{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "threshold", Active: true}},
		Method:      method,
		Value:       value,
		Bins:        256,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpThreshold) UnmarshalJSON(data []byte) error {
	type defaults OpThreshold
	def := defaults(*NewOpThresholdDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpThreshold(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpThreshold) validate() error {
	switch strings.ToLower(op.Method) {
	case ThresholdOtsu:
		if op.Bins < 2 {
			return grid.NewConfigurationError("bins", fmt.Sprintf("%d is less than 2", op.Bins))
		}
		return nil
	case ThresholdFixed:
		return checkFinite("value", op.Value)
	}
	return grid.NewConfigurationError("method", fmt.Sprintf("unknown threshold method '%s', want otsu or fixed", op.Method))
}

func (op *OpThreshold) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if op.Active {
		if err := op.validate(); err != nil {
			return nil, err
		}
	}
	return op.OpUnaryBase.MakePromises(ins, c)
}

func (op *OpThreshold) Apply(g *grid.Grid, c *ops.Context) (result *grid.Grid, err error) {
	if err := op.validate(); err != nil {
		return nil, err
	}
	thresh := op.Value
	if strings.ToLower(op.Method) == ThresholdOtsu {
		if thresh, err = stats.OtsuThreshold(g, op.Bins); err != nil {
			return nil, err
		}
	}

	_, on := outputRange(g.Type)
	res := grid.NewGridLike(g, g.Type)
	set := 0
	for i, v := range g.Data {
		if v > thresh {
			res.Data[i] = on
			set++
		}
	}
	fmt.Fprintf(c.Log, "%d: %s threshold %.4g, %d of %d pixels set\n", g.ID, op.Method, thresh, set, len(g.Data))
	return res, nil
}
