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
	"strings"
)

// Enumerated type for border policies, i.e. how samples outside the grid are synthesized
type BorderMode int

const (
	BorderConstant BorderMode = iota
	BorderReplicate
	BorderReflect
)

var borderModeNames = []string{"constant", "replicate", "reflect"}

func (m BorderMode) String() string {
	if m < 0 || int(m) >= len(borderModeNames) {
		return fmt.Sprintf("BorderMode(%d)", int(m))
	}
	return borderModeNames[m]
}

func ParseBorderMode(s string) (BorderMode, error) {
	for i, n := range borderModeNames {
		if strings.EqualFold(s, n) {
			return BorderMode(i), nil
		}
	}
	return BorderConstant, NewConfigurationError("border", fmt.Sprintf("unknown border mode '%s'", s))
}

func (m BorderMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *BorderMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseBorderMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// A border policy. Value is only used for BorderConstant
type Border struct {
	Mode  BorderMode `json:"mode"`
	Value float32    `json:"value"`
}

// New border cells are set to the given value
func Constant(v float32) Border { return Border{Mode: BorderConstant, Value: v} }

// New border cells copy the nearest edge sample
func Replicate() Border { return Border{Mode: BorderReplicate} }

// New border cells mirror the grid at its edge, with the edge sample repeated once
func Reflect() Border { return Border{Mode: BorderReflect} }

func (b Border) String() string {
	if b.Mode == BorderConstant {
		return fmt.Sprintf("constant(%g)", b.Value)
	}
	return b.Mode.String()
}

// Maps a possibly out of bounds coordinate into [0, size-1] under the given mode.
// Returns -1 for BorderConstant coordinates outside the range.
func (b Border) Index(size, x int) int {
	if x >= 0 && x < size {
		return x
	}
	switch b.Mode {
	case BorderReplicate:
		if x < 0 {
			return 0
		}
		return size - 1
	case BorderReflect:
		for x < 0 || x >= size {
			if x < 0 {
				x = -x - 1
			}
			if x >= size {
				x = 2*size - x - 1
			}
		}
		return x
	}
	return -1
}

// Extends the grid by margin samples on every side, synthesizing new samples with the given border policy.
// The result has dimensions (Width+2*margin) x (Height+2*margin) and is owned exclusively by the caller.
func Pad(g *Grid, margin int, border Border) (*Grid, error) {
	if margin < 0 {
		return nil, NewConfigurationError("margin", fmt.Sprintf("%d is negative", margin))
	}
	if border.Mode < BorderConstant || border.Mode > BorderReflect {
		return nil, NewConfigurationError("border", fmt.Sprintf("unknown border mode %d", int(border.Mode)))
	}
	pw, ph := g.Width+2*margin, g.Height+2*margin
	res := &Grid{
		ID:       g.ID,
		FileName: g.FileName,
		Width:    pw,
		Height:   ph,
		Type:     g.Type,
		Data:     make([]float32, pw*ph),
	}

	// map padded columns to source columns once
	cols := make([]int, pw)
	for x := range cols {
		cols[x] = border.Index(g.Width, x-margin)
	}

	for y := 0; y < ph; y++ {
		dst := res.Data[y*pw : (y+1)*pw]
		sy := border.Index(g.Height, y-margin)
		if sy < 0 {
			for x := range dst {
				dst[x] = border.Value
			}
			continue
		}
		src := g.Row(sy)
		for x := 0; x < margin; x++ {
			dst[x] = sample(src, cols[x], border.Value)
		}
		copy(dst[margin:margin+g.Width], src)
		for x := margin + g.Width; x < pw; x++ {
			dst[x] = sample(src, cols[x], border.Value)
		}
	}
	return res, nil
}

func sample(row []float32, x int, fill float32) float32 {
	if x < 0 {
		return fill
	}
	return row[x]
}
