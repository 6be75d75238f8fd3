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
	"github.com/mlnoga/nightfilter/internal/median"
	"github.com/mlnoga/nightfilter/internal/ops"
)

// Post-processing applied to signed float convolution results
const (
	PostNone      = "none"      // keep float32 results as is
	PostClip      = "clip"      // clip to the input type range and cast back
	PostNormalize = "normalize" // stretch min..max to the input type range and cast back
)

func checkPost(post string) error {
	switch strings.ToLower(post) {
	case PostNone, PostClip, PostNormalize:
		return nil
	}
	return grid.NewConfigurationError("post", fmt.Sprintf("unknown post-processing '%s', want none, clip or normalize", post))
}

// Returns the output range for an input type. Float32 normalizes to [0,1] and does not clip
func outputRange(typ grid.SampleType) (lo, hi float32) {
	if typ == grid.Float32 {
		return 0, 1
	}
	return typ.Range()
}

// Applies post-processing to a float32 result, given the original input type
func postProcess(res *grid.Grid, typ grid.SampleType, post string) *grid.Grid {
	switch strings.ToLower(post) {
	case PostClip:
		return grid.CastTo(res, typ)
	case PostNormalize:
		lo, hi := outputRange(typ)
		return grid.CastTo(grid.NormalizeMinMax(res, lo, hi), typ)
	}
	return res
}

// Convolves images with a kernel from the library or an explicit weight matrix.
// Takes one input, produces one output
type OpConvolve struct {
	ops.OpUnaryBase
	Kernel  string      `json:"kernel"`            // library kernel name, see convolve.KernelNames
	Size    int         `json:"size"`              // side length for the mean kernel
	Sigma   float32     `json:"sigma"`             // standard deviation for the gaussian kernel
	Weights [][]float32 `json:"weights,omitempty"` // explicit kernel, overrides the name if present
	Border  grid.Border `json:"border"`
	Post    string      `json:"post"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpConvolveDefault() }) } // register the operator for JSON decoding

func NewOpConvolveDefault() *OpConvolve {
	return NewOpConvolve("mean", 3, 1, nil, grid.Constant(0), PostNone)
}

func NewOpConvolve(kernel string, size int, sigma float32, weights [][]float32, border grid.Border, post string) *OpConvolve {
	op := OpConvolve{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "convolve", Active: true}},
		Kernel:      kernel,
		Size:        size,
		Sigma:       sigma,
		Weights:     weights,
		Border:      border,
		Post:        post,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpConvolve) UnmarshalJSON(data []byte) error {
	type defaults OpConvolve
	def := defaults(*NewOpConvolveDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpConvolve(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

// Returns the kernel selected by the operator parameters
func (op *OpConvolve) GetKernel() (*convolve.Kernel, error) {
	if len(op.Weights) > 0 {
		return convolve.NewKernel(op.Weights)
	}
	return convolve.KernelByName(op.Kernel, op.Size, op.Sigma)
}

// Checks parameters before any image is touched
func (op *OpConvolve) Validate() error {
	if _, err := op.GetKernel(); err != nil {
		return err
	}
	return checkPost(op.Post)
}

func (op *OpConvolve) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if op.Active {
		if err := op.Validate(); err != nil {
			return nil, err
		}
	}
	return op.OpUnaryBase.MakePromises(ins, c)
}

func (op *OpConvolve) Apply(g *grid.Grid, c *ops.Context) (result *grid.Grid, err error) {
	k, err := op.GetKernel()
	if err != nil {
		return nil, err
	}
	if err := checkPost(op.Post); err != nil {
		return nil, err
	}
	fmt.Fprintf(c.Log, "%d: Convolving with %dx%d kernel [%v], border %v, post-processing %s\n",
		g.ID, k.Size, k.Size, k, op.Border, op.Post)
	res, err := convolve.ConvolveWorkers(g, k, op.Border, c.Workers())
	if err != nil {
		return nil, err
	}
	return postProcess(res, g.Type, op.Post), nil
}

// Adaptive median filter, window growing from MinSize to MaxSize. Takes one input, produces one output
type OpAdaptiveMedian struct {
	ops.OpUnaryBase
	MinSize int `json:"minSize"`
	MaxSize int `json:"maxSize"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpAdaptiveMedianDefault() }) } // register the operator for JSON decoding

func NewOpAdaptiveMedianDefault() *OpAdaptiveMedian { return NewOpAdaptiveMedian(3, 7) }

func NewOpAdaptiveMedian(minSize, maxSize int) *OpAdaptiveMedian {
	op := OpAdaptiveMedian{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "adaptiveMedian", Active: true}},
		MinSize:     minSize,
		MaxSize:     maxSize,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpAdaptiveMedian) UnmarshalJSON(data []byte) error {
	type defaults OpAdaptiveMedian
	def := defaults(*NewOpAdaptiveMedianDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpAdaptiveMedian(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpAdaptiveMedian) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if op.Active {
		if err := median.CheckAdaptiveRange(op.MinSize, op.MaxSize); err != nil {
			return nil, err
		}
	}
	return op.OpUnaryBase.MakePromises(ins, c)
}

func (op *OpAdaptiveMedian) Apply(g *grid.Grid, c *ops.Context) (result *grid.Grid, err error) {
	res, st, err := median.AdaptiveWithStats(g, op.MinSize, op.MaxSize, c.Workers())
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(c.Log, "%d: Adaptive median %d..%d: %v\n", g.ID, op.MinSize, op.MaxSize, st)
	return res, nil
}

// Fixed size median filter. Takes one input, produces one output
type OpMedian struct {
	ops.OpUnaryBase
	Size int `json:"size"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpMedianDefault() }) } // register the operator for JSON decoding

func NewOpMedianDefault() *OpMedian { return NewOpMedian(3) }

func NewOpMedian(size int) *OpMedian {
	op := OpMedian{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "median", Active: true}},
		Size:        size,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpMedian) UnmarshalJSON(data []byte) error {
	type defaults OpMedian
	def := defaults(*NewOpMedianDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpMedian(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpMedian) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if op.Active {
		if err := median.CheckWindowSize(op.Size); err != nil {
			return nil, err
		}
	}
	return op.OpUnaryBase.MakePromises(ins, c)
}

func (op *OpMedian) Apply(g *grid.Grid, c *ops.Context) (result *grid.Grid, err error) {
	fmt.Fprintf(c.Log, "%d: Median filter %dx%d\n", g.ID, op.Size, op.Size)
	return median.FilterWorkers(g, op.Size, c.Workers())
}
