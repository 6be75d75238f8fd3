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

package convolve

import (
	"fmt"
	"math"
	"strings"

	"github.com/mlnoga/nightfilter/internal/grid"
)

const sqrt2 = 1.4142135623730950488016887242097

// A square convolution kernel with odd side length, stored row-major
type Kernel struct {
	Size    int       `json:"size"`
	Weights []float32 `json:"weights"`
}

// Creates a kernel from rows of weights. Rows must form a square with odd side length
func NewKernel(rows [][]float32) (*Kernel, error) {
	size := len(rows)
	if err := checkKernelSize(size); err != nil {
		return nil, err
	}
	weights := make([]float32, 0, size*size)
	for i, row := range rows {
		if len(row) != size {
			return nil, grid.NewConfigurationError("kernel", fmt.Sprintf("row %d has %d weights, want %d", i, len(row), size))
		}
		weights = append(weights, row...)
	}
	return &Kernel{Size: size, Weights: weights}, nil
}

func checkKernelSize(size int) error {
	if size < 1 {
		return grid.NewConfigurationError("kernel", fmt.Sprintf("side length %d is not positive", size))
	}
	if size&1 == 0 {
		return grid.NewConfigurationError("kernel", fmt.Sprintf("side length %d is even", size))
	}
	return nil
}

// Checks size and weights of a kernel, e.g. after unmarshaling from JSON
func (k *Kernel) Validate() error {
	if k == nil {
		return grid.NewConfigurationError("kernel", "nil kernel")
	}
	if err := checkKernelSize(k.Size); err != nil {
		return err
	}
	if len(k.Weights) != k.Size*k.Size {
		return grid.NewConfigurationError("kernel", fmt.Sprintf("%d weights for side length %d", len(k.Weights), k.Size))
	}
	return nil
}

func (k *Kernel) At(x, y int) float32 {
	return k.Weights[y*k.Size+x]
}

// Returns the sum of all weights
func (k *Kernel) Sum() float32 {
	sum := float32(0)
	for _, w := range k.Weights {
		sum += w
	}
	return sum
}

// Returns a copy of the kernel scaled so its weights sum to one. Kernels summing to zero are copied unchanged
func (k *Kernel) Normalize() *Kernel {
	res := &Kernel{Size: k.Size, Weights: append([]float32(nil), k.Weights...)}
	sum := k.Sum()
	if sum == 0 {
		return res
	}
	for i := range res.Weights {
		res.Weights[i] /= sum
	}
	return res
}

func (k *Kernel) String() string {
	var b strings.Builder
	for y := 0; y < k.Size; y++ {
		if y > 0 {
			b.WriteString("; ")
		}
		for x := 0; x < k.Size; x++ {
			if x > 0 {
				b.WriteRune(' ')
			}
			fmt.Fprintf(&b, "%.4g", k.At(x, y))
		}
	}
	return b.String()
}

// The 1x1 kernel with weight one
func Identity() *Kernel {
	return &Kernel{Size: 1, Weights: []float32{1}}
}

// Normalized box kernel of given size, i.e. all weights 1/size^2
func Mean(size int) (*Kernel, error) {
	if err := checkKernelSize(size); err != nil {
		return nil, err
	}
	w := make([]float32, size*size)
	for i := range w {
		w[i] = 1 / float32(size*size)
	}
	return &Kernel{Size: size, Weights: w}, nil
}

// 8-neighbour Laplacian kernel. Weights sum to zero, results are signed
func Laplacian() *Kernel {
	return &Kernel{Size: 3, Weights: []float32{
		1, 1, 1,
		1, -8, 1,
		1, 1, 1,
	}}
}

// 4-neighbour Laplacian kernel. Weights sum to zero, results are signed
func Laplacian4() *Kernel {
	return &Kernel{Size: 3, Weights: []float32{
		0, 1, 0,
		1, -4, 1,
		0, 1, 0,
	}}
}

func SobelX() *Kernel {
	return &Kernel{Size: 3, Weights: []float32{
		-1, 0, 1,
		-2, 0, 2,
		-1, 0, 1,
	}}
}

func SobelY() *Kernel {
	return &Kernel{Size: 3, Weights: []float32{
		-1, -2, -1,
		0, 0, 0,
		1, 2, 1,
	}}
}

func PrewittX() *Kernel {
	return &Kernel{Size: 3, Weights: []float32{
		-1, 0, 1,
		-1, 0, 1,
		-1, 0, 1,
	}}
}

func PrewittY() *Kernel {
	return &Kernel{Size: 3, Weights: []float32{
		-1, -1, -1,
		0, 0, 0,
		1, 1, 1,
	}}
}

// Returns the definite integral of the gaussian function with midpoint mu and standard deviation sigma for input x
func GaussianDefiniteIntegral(mu, sigma, x float32) float32 {
	return 0.5 * (1 + float32(math.Erf(float64((x-mu)/(sqrt2*sigma)))))
}

// Checks that a gaussian standard deviation is positive and finite
func CheckSigma(sigma float32) error {
	if !(sigma > 0) || math.IsInf(float64(sigma), 1) {
		return grid.NewConfigurationError("sigma", fmt.Sprintf("%g is not positive and finite", sigma))
	}
	return nil
}

// Generates a 1D gaussian kernel for the given sigma. Based on symbolic integration via error function
func GaussianKernel1D(sigma float32) (kernel []float32) {
	mu := float32(0)

	// Find minimal kernel width for which the area under the curve left of the kernel is below the acceptable error
	acceptOut := float32(0.01)
	radius := 0
	for {
		val := GaussianDefiniteIntegral(mu, sigma, float32(-0.5)-float32(radius))
		if val < acceptOut {
			radius--
			break
		}
		radius++
	}
	if radius < 0 {
		radius = 0 // sigma below ~0.22 leaves a single tap
	}
	width := 2*radius + 1
	kernel = make([]float32, width)

	// Calculate left half of the kernel via symbolic integration
	sum := float32(0)
	lower := GaussianDefiniteIntegral(mu, sigma, float32(-0.5)-float32(radius))
	for i := 0; i <= radius; i++ {
		upper := GaussianDefiniteIntegral(mu, sigma, float32(-0.5)-float32(radius)+float32(i+1))
		delta := upper - lower
		kernel[i] = delta
		sum += delta
		lower = upper
	}

	// Mirror right half of the kernel to avoid numeric instability
	for i := 1; i <= radius; i++ {
		value := kernel[radius-i]
		kernel[radius+i] = value
		sum += value
	}

	// Normalize the sum of the kernel to 1, for dealing with the truncated part of the distribution.
	factor := 1.0 / sum
	for i := range kernel {
		kernel[i] *= factor
	}
	return kernel
}

// Generates a 2D gaussian kernel for the given sigma, as outer product of the 1D kernel with itself
func Gaussian(sigma float32) (*Kernel, error) {
	if err := CheckSigma(sigma); err != nil {
		return nil, err
	}
	k1 := GaussianKernel1D(sigma)
	size := len(k1)
	w := make([]float32, size*size)
	for y, ky := range k1 {
		for x, kx := range k1 {
			w[y*size+x] = ky * kx
		}
	}
	return &Kernel{Size: size, Weights: w}, nil
}

// Kernel names accepted by KernelByName
var KernelNames = []string{"identity", "mean", "gaussian", "laplacian", "laplacian4", "sobelX", "sobelY", "prewittX", "prewittY"}

// Looks up a kernel from the library by name. Size is used for mean, sigma for gaussian
func KernelByName(name string, size int, sigma float32) (*Kernel, error) {
	switch strings.ToLower(name) {
	case "identity":
		return Identity(), nil
	case "mean", "box":
		return Mean(size)
	case "gaussian", "gauss":
		return Gaussian(sigma)
	case "laplacian", "laplace":
		return Laplacian(), nil
	case "laplacian4":
		return Laplacian4(), nil
	case "sobelx":
		return SobelX(), nil
	case "sobely":
		return SobelY(), nil
	case "prewittx":
		return PrewittX(), nil
	case "prewitty":
		return PrewittY(), nil
	}
	return nil, grid.NewConfigurationError("kernel", fmt.Sprintf("unknown kernel '%s', want one of %v", name, KernelNames))
}
