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

package imgio

import (
	"bufio"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/mlnoga/nightfilter/internal/grid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Enumerated type for converting color images to a single gray channel
type GrayMode int

const (
	GrayLuma      GrayMode = iota // Rec. 709 luma on the encoded RGB values
	GrayLightness                 // CIE L* lightness
)

var grayModeNames = []string{"luma", "lightness"}

func (m GrayMode) String() string {
	if m < 0 || int(m) >= len(grayModeNames) {
		return fmt.Sprintf("GrayMode(%d)", int(m))
	}
	return grayModeNames[m]
}

func ParseGrayMode(s string) (GrayMode, error) {
	for i, n := range grayModeNames {
		if strings.EqualFold(s, n) {
			return GrayMode(i), nil
		}
	}
	return GrayLuma, grid.NewConfigurationError("gray", fmt.Sprintf("unknown gray mode '%s'", s))
}

func (m GrayMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *GrayMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseGrayMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Rec. 709 luma weights
const (
	lumaR = 0.2125
	lumaG = 0.7154
	lumaB = 0.0721
)

// Reads an image file into a new grid with given ID. Supports PNG, JPEG, GIF, TIFF and BMP
func ReadFile(fileName string, id int, mode GrayMode) (*grid.Grid, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	g, err := Read(bufio.NewReader(file), mode)
	if err != nil {
		return nil, fmt.Errorf("%d: reading %s: %w", id, fileName, err)
	}
	g.ID, g.FileName = id, fileName
	return g, nil
}

// Decodes an image from the given reader into a new grid
func Read(r io.Reader, mode GrayMode) (*grid.Grid, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	return FromImage(img, mode)
}

// Converts a Go image into a grid. 8-bit sources yield Uint8 grids in 0..255,
// 16-bit sources Uint16 grids in 0..65535. Color is reduced to gray with the given mode
func FromImage(img image.Image, mode GrayMode) (*grid.Grid, error) {
	if mode != GrayLuma && mode != GrayLightness {
		return nil, grid.NewConfigurationError("gray", fmt.Sprintf("unknown gray mode %d", int(mode)))
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	typ := sampleTypeOf(img)
	g, err := grid.NewGrid(width, height, typ)
	if err != nil {
		return nil, err
	}

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < height; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+width]
			dst := g.Row(y)
			for x, p := range row {
				dst[x] = float32(p)
			}
		}
		return g, nil
	case *image.Gray16:
		for y := 0; y < height; y++ {
			dst := g.Row(y)
			for x := range dst {
				dst[x] = float32(src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
		return g, nil
	}

	_, scale := typ.Range()
	for y := 0; y < height; y++ {
		dst := g.Row(y)
		for x := range dst {
			dst[x] = float32(math.Round(float64(scale * gray(img.At(bounds.Min.X+x, bounds.Min.Y+y), mode))))
		}
	}
	return g, nil
}

// Returns the straight, non-premultiplied RGB of a color in [0,1], ignoring alpha.
// Colors stored with straight alpha keep their RGB even where fully transparent
func straightRGB(c color.Color) colorful.Color {
	switch n := c.(type) {
	case color.NRGBA:
		return colorful.Color{R: float64(n.R) / 0xff, G: float64(n.G) / 0xff, B: float64(n.B) / 0xff}
	case color.NRGBA64:
		return colorful.Color{R: float64(n.R) / 0xffff, G: float64(n.G) / 0xffff, B: float64(n.B) / 0xffff}
	}
	n := color.NRGBA64Model.Convert(c).(color.NRGBA64)
	return colorful.Color{R: float64(n.R) / 0xffff, G: float64(n.G) / 0xffff, B: float64(n.B) / 0xffff}
}

// Returns the gray value of a color in [0,1]
func gray(c color.Color, mode GrayMode) float32 {
	col := straightRGB(c)
	if mode == GrayLightness {
		l, _, _ := col.Clamped().Lab()
		return clamp01(float32(l))
	}
	return clamp01(float32(lumaR*col.R + lumaG*col.G + lumaB*col.B))
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	} else if v > 1 {
		return 1
	}
	return v
}

func sampleTypeOf(img image.Image) grid.SampleType {
	switch img.ColorModel() {
	case color.Gray16Model, color.RGBA64Model, color.NRGBA64Model:
		return grid.Uint16
	}
	return grid.Uint8
}
