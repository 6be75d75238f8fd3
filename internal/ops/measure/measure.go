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

package measure

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mlnoga/nightfilter/internal/grid"
	"github.com/mlnoga/nightfilter/internal/imgio"
	"github.com/mlnoga/nightfilter/internal/ops"
	"github.com/mlnoga/nightfilter/internal/stats"
)

// Logs statistics of each image and passes it on unchanged. Takes one input, produces one output
type OpStats struct {
	ops.OpUnaryBase
	Histogram bool `json:"histogram"` // also fit mode and standard deviation from a histogram
	Bins      int  `json:"bins"`
	CSV       bool `json:"csv"` // log as CSV line instead of text
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpStatsDefault() }) } // register the operator for JSON decoding

func NewOpStatsDefault() *OpStats { return NewOpStats(false, 256, false) }

func NewOpStats(histogram bool, bins int, csv bool) *OpStats {
	op := OpStats{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "stats", Active: true}},
		Histogram:   histogram,
		Bins:        bins,
		CSV:         csv,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpStats) UnmarshalJSON(data []byte) error {
	type defaults OpStats
	def := defaults(*NewOpStatsDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpStats(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpStats) Apply(g *grid.Grid, c *ops.Context) (result *grid.Grid, err error) {
	s, err := stats.CalcExtendedStats(g)
	if err != nil {
		return nil, err
	}
	if op.CSV {
		fmt.Fprintf(c.Log, "%d,%s,%s\n", g.ID, g.FileName, s.ToCSVLine())
	} else {
		fmt.Fprintf(c.Log, "%d: %s %v\n", g.ID, g.DimensionsToString(), s)
	}
	if op.Histogram {
		mode, stdDev, err := stats.HistogramModeStdDev(g, op.Bins)
		if err != nil {
			fmt.Fprintf(c.Log, "%d: Warning: histogram fit failed: %s\n", g.ID, err.Error())
		} else {
			fmt.Fprintf(c.Log, "%d: Histogram mode %.6g stddev %.6g\n", g.ID, mode, stdDev)
		}
	}
	return g, nil
}

// Compares each image against a reference image loaded from file, logging MSE, PSNR and SSIM.
// Passes the image on unchanged. Takes one input, produces one output
type OpCompare struct {
	ops.OpUnaryBase
	Reference string         `json:"reference"`
	Gray      imgio.GrayMode `json:"gray"`
	DataRange float64        `json:"dataRange"` // 0 selects the range of the reference sample type

	once sync.Once
	ref  *grid.Grid
	err  error
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpCompareDefault() }) } // register the operator for JSON decoding

func NewOpCompareDefault() *OpCompare { return NewOpCompare("", 0) }

func NewOpCompare(reference string, dataRange float64) *OpCompare {
	op := &OpCompare{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "compare", Active: reference != ""}},
		Reference:   reference,
		DataRange:   dataRange,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpCompare) UnmarshalJSON(data []byte) error {
	var aux struct {
		ops.OpBase
		Reference string         `json:"reference"`
		Gray      imgio.GrayMode `json:"gray"`
		DataRange float64        `json:"dataRange"`
	}
	aux.OpBase = ops.OpBase{Type: "compare", Active: true}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	op.OpUnaryBase = ops.OpUnaryBase{OpBase: aux.OpBase}
	op.Reference, op.Gray, op.DataRange = aux.Reference, aux.Gray, aux.DataRange
	op.OpUnaryBase.Apply = op.Apply
	return nil
}

// Sets an already loaded reference, e.g. for in-memory comparisons. Activates the operator
func (op *OpCompare) SetReference(ref *grid.Grid) {
	op.once.Do(func() { op.ref = ref })
	op.Active = true
}

func (op *OpCompare) loadReference(c *ops.Context) (*grid.Grid, error) {
	op.once.Do(func() {
		if c.Sandbox && !ops.IsPathAllowed(op.Reference) {
			op.err = fmt.Errorf("reference %s outside current directory tree", op.Reference)
			return
		}
		op.ref, op.err = imgio.ReadFile(op.Reference, -1, op.Gray)
		if op.err == nil {
			fmt.Fprintf(c.Log, "Loaded reference %s image from %s\n", op.ref.DimensionsToString(), op.Reference)
		}
	})
	return op.ref, op.err
}

func (op *OpCompare) Apply(g *grid.Grid, c *ops.Context) (result *grid.Grid, err error) {
	ref, err := op.loadReference(c)
	if err != nil {
		return nil, err
	}
	dataRange := op.DataRange
	if dataRange <= 0 {
		dataRange = stats.DataRange(ref)
	}
	cmp, err := stats.Compare(g, ref, dataRange)
	if err != nil {
		return nil, fmt.Errorf("%d: comparing against %s: %w", g.ID, op.Reference, err)
	}
	fmt.Fprintf(c.Log, "%d: %v\n", g.ID, cmp)
	return g, nil
}
