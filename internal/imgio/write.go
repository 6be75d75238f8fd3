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
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/mlnoga/nightfilter/internal/grid"
	"golang.org/x/image/tiff"
)

// Mapping of grid samples to output intensities: [Min,Max] is stretched to the full output range, then gamma applied
type Stretch struct {
	Min   float32 `json:"min"`
	Max   float32 `json:"max"`
	Gamma float32 `json:"gamma"`
}

// Returns the identity stretch for integer grids, and a min-max stretch for float32 grids
func DefaultStretch(g *grid.Grid) Stretch {
	if g.Type != grid.Float32 {
		lo, hi := g.Type.Range()
		return Stretch{lo, hi, 1}
	}
	min, max := g.Data[0], g.Data[0]
	for _, d := range g.Data {
		if d < min || min != min {
			min = d
		}
		if d > max || max != max {
			max = d
		}
	}
	if !(max > min) {
		max = min + 1
	}
	return Stretch{min, max, 1}
}

// Maps a sample to [0,1]. NaNs become zero, else image output breaks
func (s Stretch) apply(v float32) float32 {
	v = (v - s.Min) / (s.Max - s.Min)
	if math.IsNaN(float64(v)) || v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	if s.Gamma != 1 && s.Gamma > 0 {
		v = float32(math.Pow(float64(v), float64(1/s.Gamma)))
	}
	return v
}

// Converts a grid into an 8-bit gray image
func ToGray(g *grid.Grid, s Stretch) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, g.Width, g.Height))
	for y := 0; y < g.Height; y++ {
		dst := img.Pix[y*img.Stride : y*img.Stride+g.Width]
		for x, v := range g.Row(y) {
			dst[x] = uint8(s.apply(v)*255 + 0.5)
		}
	}
	return img
}

// Converts a grid into a 16-bit gray image
func ToGray16(g *grid.Grid, s Stretch) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, g.Width, g.Height))
	for y := 0; y < g.Height; y++ {
		for x, v := range g.Row(y) {
			c := uint16(s.apply(v)*65535 + 0.5)
			i := img.PixOffset(x, y)
			img.Pix[i], img.Pix[i+1] = uint8(c>>8), uint8(c)
		}
	}
	return img
}

func createAndWrite(fileName string, write func(w io.Writer) error) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := write(writer); err != nil {
		return err
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	return file.Close()
}

// Write a grid to PNG, using the given stretch. Uint16 grids are written with 16 bits, others with 8
func WritePNG(writer io.Writer, g *grid.Grid, s Stretch) error {
	if g.Type == grid.Uint16 {
		return png.Encode(writer, ToGray16(g, s))
	}
	return png.Encode(writer, ToGray(g, s))
}

// Write a grid to 8-bit JPG, using the given stretch and quality
func WriteJPG(writer io.Writer, g *grid.Grid, s Stretch, quality int) error {
	return jpeg.Encode(writer, ToGray(g, s), &jpeg.Options{Quality: quality})
}

// Write a grid to 16-bit TIFF, using the given stretch
func WriteTIFF16(writer io.Writer, g *grid.Grid, s Stretch) error {
	return tiff.Encode(writer, ToGray16(g, s), &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

// Writes a grid to file with the default stretch, choosing the format from the file name suffix
func WriteFile(fileName string, g *grid.Grid, quality int) error {
	return WriteFileStretched(fileName, g, DefaultStretch(g), quality)
}

// Writes a grid to file with the given stretch, choosing the format from the file name suffix
func WriteFileStretched(fileName string, g *grid.Grid, s Stretch, quality int) error {
	var write func(w io.Writer) error
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".png":
		write = func(w io.Writer) error { return WritePNG(w, g, s) }
	case ".jpg", ".jpeg":
		write = func(w io.Writer) error { return WriteJPG(w, g, s, quality) }
	case ".tif", ".tiff":
		write = func(w io.Writer) error { return WriteTIFF16(w, g, s) }
	default:
		return grid.NewConfigurationError("fileName", fmt.Sprintf("unknown suffix for '%s', want .png, .jpg, .jpeg, .tif or .tiff", fileName))
	}
	if err := createAndWrite(fileName, write); err != nil {
		return fmt.Errorf("%d: writing %s: %w", g.ID, fileName, err)
	}
	return nil
}
