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
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Storage representation of the samples a grid was decoded from.
// Computation is always carried out in float32, the type is used to cast results back.
type SampleType int

const (
	Float32 SampleType = iota
	Uint8
	Uint16
)

var sampleTypeNames = []string{"float32", "uint8", "uint16"}

func (t SampleType) String() string {
	if t < 0 || int(t) >= len(sampleTypeNames) {
		return fmt.Sprintf("SampleType(%d)", int(t))
	}
	return sampleTypeNames[t]
}

// Returns the value range of the sample type. Float32 is unbounded
func (t SampleType) Range() (min, max float32) {
	switch t {
	case Uint8:
		return 0, 255
	case Uint16:
		return 0, 65535
	}
	return float32(math.Inf(-1)), float32(math.Inf(1))
}

// Parses a sample type from its string representation
func ParseSampleType(s string) (SampleType, error) {
	for i, n := range sampleTypeNames {
		if strings.EqualFold(s, n) {
			return SampleType(i), nil
		}
	}
	return Float32, NewConfigurationError("sampleType", fmt.Sprintf("unknown sample type '%s'", s))
}

func (t SampleType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *SampleType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseSampleType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// A single-channel 2D grid of samples, stored row-major.
type Grid struct {
	ID       int        // Sequential ID number, for log output
	FileName string     // Original file name, if any, for log output
	Width    int        // Number of columns
	Height   int        // Number of rows
	Type     SampleType // Original storage representation
	Data     []float32  // The samples, len(Data)==Width*Height
}

// Creates a zero-filled grid of given dimensions
func NewGrid(width, height int, typ SampleType) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, NewConfigurationError("dimensions", fmt.Sprintf("%dx%d is not a positive size", width, height))
	}
	return &Grid{
		Width:  width,
		Height: height,
		Type:   typ,
		Data:   make([]float32, width*height),
	}, nil
}

// Creates a grid from given data. Data is not copied
func NewGridFromData(width, height int, typ SampleType, data []float32) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, NewConfigurationError("dimensions", fmt.Sprintf("%dx%d is not a positive size", width, height))
	}
	if len(data) != width*height {
		return nil, NewConfigurationError("data", fmt.Sprintf("%d samples for a %dx%d grid", len(data), width, height))
	}
	return &Grid{Width: width, Height: height, Type: typ, Data: data}, nil
}

// Creates a grid from rows of samples. Rows must all have the same length
func NewGridFromRows(rows [][]float32, typ SampleType) (*Grid, error) {
	if len(rows) == 0 {
		return nil, NewConfigurationError("rows", "no rows given")
	}
	width := len(rows[0])
	data := make([]float32, 0, width*len(rows))
	for y, row := range rows {
		if len(row) != width {
			return nil, NewConfigurationError("rows", fmt.Sprintf("row %d has %d samples, want %d", y, len(row), width))
		}
		data = append(data, row...)
	}
	return NewGridFromData(width, len(rows), typ, data)
}

// Creates a grid with the same metadata and dimensions as g. New data array is allocated
func NewGridLike(g *Grid, typ SampleType) *Grid {
	return &Grid{
		ID:       g.ID,
		FileName: g.FileName,
		Width:    g.Width,
		Height:   g.Height,
		Type:     typ,
		Data:     make([]float32, len(g.Data)),
	}
}

// Returns a deep copy of the grid
func (g *Grid) Clone() *Grid {
	c := NewGridLike(g, g.Type)
	copy(c.Data, g.Data)
	return c
}

func (g *Grid) At(x, y int) float32 {
	return g.Data[y*g.Width+x]
}

func (g *Grid) Set(x, y int, v float32) {
	g.Data[y*g.Width+x] = v
}

// Returns the samples of row y. The slice aliases the grid data
func (g *Grid) Row(y int) []float32 {
	return g.Data[y*g.Width : (y+1)*g.Width]
}

// Returns true if both grids have the same width and height
func (g *Grid) SameShape(o *Grid) bool {
	return g.Width == o.Width && g.Height == o.Height
}

// Pretty print the dimensions of the grid
func (g *Grid) DimensionsToString() string {
	return fmt.Sprintf("%dx%d %s", g.Width, g.Height, g.Type)
}

// Returns a copy of the grid with samples converted to the given storage representation.
// Integer types are clamped to their range and truncated toward zero, NaNs become zero.
func CastTo(g *Grid, typ SampleType) *Grid {
	res := NewGridLike(g, typ)
	if typ == Float32 {
		copy(res.Data, g.Data)
		return res
	}
	lo, hi := typ.Range()
	for i, v := range g.Data {
		if math.IsNaN(float64(v)) || v < lo {
			v = lo
		} else if v > hi {
			v = hi
		}
		res.Data[i] = float32(math.Trunc(float64(v)))
	}
	return res
}

// Returns a copy of the grid with all samples clipped to [lo, hi]
func Clip(g *Grid, lo, hi float32) *Grid {
	res := NewGridLike(g, g.Type)
	for i, v := range g.Data {
		if v < lo {
			v = lo
		} else if v > hi {
			v = hi
		}
		res.Data[i] = v
	}
	return res
}

// Returns a copy of the grid linearly mapped from its own [min, max] to [lo, hi].
// A grid of uniform intensity maps to lo.
func NormalizeMinMax(g *Grid, lo, hi float32) *Grid {
	res := NewGridLike(g, g.Type)
	min, max := g.Data[0], g.Data[0]
	for _, v := range g.Data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max-min == 0 {
		for i := range res.Data {
			res.Data[i] = lo
		}
		return res
	}
	scale := (hi - lo) / (max - min)
	for i, v := range g.Data {
		res.Data[i] = (v-min)*scale + lo
	}
	return res
}
