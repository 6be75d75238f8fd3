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

package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/cpuid"
	nl "github.com/mlnoga/nightfilter/internal"
	"github.com/mlnoga/nightfilter/internal/convolve"
	"github.com/mlnoga/nightfilter/internal/grid"
	"github.com/mlnoga/nightfilter/internal/imgio"
	"github.com/mlnoga/nightfilter/internal/ops"
	"github.com/mlnoga/nightfilter/internal/ops/filter"
	"github.com/mlnoga/nightfilter/internal/ops/measure"
	opnoise "github.com/mlnoga/nightfilter/internal/ops/noise"
	"github.com/mlnoga/nightfilter/internal/rest"
	"github.com/pbnjay/memory"
)

const version = "0.1.0"

var totalMiBs = memory.TotalMemory() / 1024 / 1024

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var out = flag.String("out", "out%d.png", "save output to `file`, %d is replaced by the image ID. Suffix selects .png, .jpg or .tif")
var log = flag.String("log", "", "save log output to `file`. `%auto` replaces suffix of output file with .log")
var gray = flag.String("gray", "luma", "gray conversion for color inputs, luma or lightness")
var quality = flag.Int64("quality", 95, "quality for JPEG output")
var maxThreads = flag.Int64("maxThreads", 0, "number of images processed in parallel, 0=auto from cores and memory")

var kernel = flag.String("kernel", "mean", "convolution kernel: "+strings.Join(convolve.KernelNames, ", "))
var size = flag.Int64("size", 3, "side length of the mean kernel and the fixed median window, odd")
var sigma = flag.Float64("sigma", 1, "standard deviation of the gaussian kernel")
var weights = flag.String("weights", "", "explicit convolution kernel as JSON rows, e.g. `[[0,1,0],[1,-4,1],[0,1,0]]`. Overrides -kernel")
var border = flag.String("border", "constant", "border policy: constant, replicate or reflect")
var cval = flag.Float64("cval", 0, "fill value for the constant border policy")
var post = flag.String("post", "none", "post-processing of convolution results: none, clip or normalize")

var minSize = flag.Int64("minSize", 3, "adaptive median: initial window size, odd")
var maxSize = flag.Int64("maxSize", 7, "adaptive median: maximum window size, odd")

var edgeOp = flag.String("edgeOp", "sobel", "edge detection operator, sobel, prewitt or canny")
var cannyLow = flag.Float64("cannyLow", 50, "canny: lower hysteresis threshold on the gradient magnitude")
var cannyHigh = flag.Float64("cannyHigh", 150, "canny: upper hysteresis threshold on the gradient magnitude")
var binarize = flag.String("binarize", "", "edges: binarize the gradient magnitude, otsu or a fixed threshold value")

var usmSigma = flag.Float64("usmSigma", 1.5, "unsharp masking sigma, ~1/3 radius")
var usmGain = flag.Float64("usmGain", 1, "unsharp masking gain")
var usmThresh = flag.Float64("usmThresh", 0, "unsharp masking threshold, pixels below are left unchanged")
var boost = flag.Float64("boost", 0, "sharpen with high boost of given amount instead of unsharp masking, 0=unsharp mask")

var noiseSigma = flag.Float64("noiseSigma", 0, "add gaussian noise with given sigma, 0=no op")
var noiseAmount = flag.Float64("noiseAmount", 0.05, "add salt and pepper noise to given fraction of pixels, 0=no op")
var seed = flag.Int64("seed", 1, "seed for noise generation, offset by the image ID")

var ref = flag.String("ref", "", "compare results against reference `file` with MSE, PSNR and SSIM")
var hist = flag.Bool("hist", false, "stats: also fit mode and standard deviation from a histogram")
var bins = flag.Int64("bins", 256, "stats: number of histogram bins")
var csv = flag.Bool("csv", false, "stats: log as CSV lines")

var opsFile = flag.String("ops", "", "run: load the operator pipeline from JSON `file`")

var addr = flag.String("addr", ":8080", "serve: listen address")
var chroot = flag.String("chroot", "", "serve: change filesystem root to `dir` before serving (requires root)")
var setuid = flag.Int64("setuid", -1, "serve: change user ID before serving, -1=don't")

var errUnknownCommand = errors.New("unknown command")

func main() {
	logWriter := nl.LogWriter
	start := time.Now()
	flag.CommandLine.SetOutput(logWriter)
	flag.Usage = func() {
		fmt.Fprintf(logWriter, `Nightfilter Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (convolve|amf|median|edges|sharpen|noise|stats|compare|run) (img0.png ... imgn.png)
       %s [-flag value] (serve|operators|legal|version|help)

Commands:
  convolve  Convolve images with a kernel
  amf       Apply the adaptive median filter
  median    Apply a fixed size median filter
  edges     Detect edges via gradient magnitude or Canny
  sharpen   Sharpen images with unsharp masking or high boost
  noise     Add gaussian and/or salt and pepper noise
  stats     Show image statistics
  compare   Compare images against the -ref image
  run       Run the JSON operator pipeline from -ops
  serve     Serve the REST API
  operators List operator types for JSON pipelines
  legal     Show license and attribution information
  version   Show version information

Flags:
`, os.Args[0], os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Initialize logging to file in addition to stdout, if selected
	if *log == "%auto" {
		if *out != "" {
			*log = strings.ReplaceAll(strings.TrimSuffix(*out, filepath.Ext(*out)), "%d", "") + ".log"
		} else {
			*log = ""
		}
	}
	if *log != "" {
		if err := nl.LogAlsoToFile(*log); err != nil {
			nl.LogFatalf("Unable to open logfile '%s': %s\n", *log, err.Error())
		}
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			nl.LogFatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			nl.LogFatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	var err error
	switch args[0] {
	case "serve":
		err = cmdServe(logWriter)

	case "operators":
		types := ops.OperatorTypes()
		sort.Strings(types)
		fmt.Fprintf(logWriter, "%s\n", strings.Join(types, "\n"))

	case "legal":
		cmdLegal(logWriter)

	case "version":
		cmdVersion(logWriter)

	case "help", "?":
		flag.Usage()

	default:
		var pipeline ops.Operator
		pipeline, err = buildPipeline(args[0])
		if errors.Is(err, errUnknownCommand) {
			fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
			flag.Usage()
			return
		}
		if err == nil {
			err = runPipeline(pipeline, args[1:], logWriter)
		}
	}

	elapsed := time.Since(start)
	fmt.Fprintf(logWriter, "\nDone after %v\n", elapsed)

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			nl.LogFatal("Could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			nl.LogFatal("Could not write allocation profile: ", err)
		}
	}

	if err != nil {
		nl.LogFatalf("Error: %s\n", err.Error())
	}
	nl.LogClose()
}

// Returns true if the flag with the given name was set on the command line
func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// Parses the border policy flags. Uses the given mode if the flag was not set explicitly
func parseBorder(defaultMode grid.BorderMode) (grid.Border, error) {
	mode := defaultMode
	if isFlagSet("border") {
		var err error
		if mode, err = grid.ParseBorderMode(*border); err != nil {
			return grid.Border{}, err
		}
	}
	return grid.Border{Mode: mode, Value: float32(*cval)}, nil
}

// Parses an explicit kernel given as JSON rows. Empty input returns nil
func parseWeights(s string) ([][]float32, error) {
	if s == "" {
		return nil, nil
	}
	var rows [][]float32
	if err := json.Unmarshal([]byte(s), &rows); err != nil {
		return nil, grid.NewConfigurationError("weights", fmt.Sprintf("'%s' is not a JSON matrix: %s", s, err.Error()))
	}
	return rows, nil
}

// Parses the binarization flag, either otsu or a fixed threshold value
func parseBinarize(s string) (*filter.OpThreshold, error) {
	if strings.EqualFold(s, filter.ThresholdOtsu) {
		return filter.NewOpThreshold(filter.ThresholdOtsu, 0), nil
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return nil, grid.NewConfigurationError("binarize", fmt.Sprintf("'%s' is neither otsu nor a number", s))
	}
	return filter.NewOpThreshold(filter.ThresholdFixed, float32(v)), nil
}

// Turns a command and the flags into an operator pipeline, which is applied to each input image
func buildPipeline(cmd string) (ops.Operator, error) {
	grayMode, err := imgio.ParseGrayMode(*gray)
	if err != nil {
		return nil, err
	}

	var steps []ops.Operator
	save := true
	switch cmd {
	case "convolve":
		b, err := parseBorder(grid.BorderConstant)
		if err != nil {
			return nil, err
		}
		ws, err := parseWeights(*weights)
		if err != nil {
			return nil, err
		}
		steps = append(steps, filter.NewOpConvolve(*kernel, int(*size), float32(*sigma), ws, b, *post))

	case "amf":
		steps = append(steps, filter.NewOpAdaptiveMedian(int(*minSize), int(*maxSize)))

	case "median":
		steps = append(steps, filter.NewOpMedian(int(*size)))

	case "edges":
		b, err := parseBorder(grid.BorderReplicate)
		if err != nil {
			return nil, err
		}
		p := *post
		if !isFlagSet("post") {
			p = filter.PostNormalize
		}
		if strings.EqualFold(*edgeOp, "canny") {
			sig := float32(1.1) // 5x5 gaussian
			if isFlagSet("sigma") {
				sig = float32(*sigma)
			}
			steps = append(steps, filter.NewOpCanny(sig, float32(*cannyLow), float32(*cannyHigh)))
			break
		}
		steps = append(steps, filter.NewOpGradient(*edgeOp, b, p))
		if *binarize != "" {
			opThreshold, err := parseBinarize(*binarize)
			if err != nil {
				return nil, err
			}
			steps = append(steps, opThreshold)
		}

	case "sharpen":
		if *boost > 0 {
			steps = append(steps, filter.NewOpHighBoost(float32(*boost), float32(*sigma)))
		} else {
			steps = append(steps, filter.NewOpUnsharpMask(float32(*usmSigma), float32(*usmGain), float32(*usmThresh)))
		}

	case "noise":
		if *noiseSigma > 0 {
			steps = append(steps, opnoise.NewOpNoiseGaussian(float32(*noiseSigma), uint32(*seed)))
		}
		if *noiseAmount > 0 {
			steps = append(steps, opnoise.NewOpNoiseSaltPepper(float32(*noiseAmount), uint32(*seed)))
		}
		if len(steps) == 0 {
			return nil, grid.NewConfigurationError("noiseSigma", "no noise selected, set -noiseSigma or -noiseAmount")
		}

	case "stats":
		steps = append(steps, measure.NewOpStats(*hist, int(*bins), *csv))
		save = false

	case "compare":
		if *ref == "" {
			return nil, grid.NewConfigurationError("ref", "compare needs a reference image")
		}
		save = false

	case "run":
		if *opsFile == "" {
			return nil, grid.NewConfigurationError("ops", "run needs a JSON pipeline file")
		}
		raw, err := os.ReadFile(*opsFile)
		if err != nil {
			return nil, err
		}
		op, err := ops.UnmarshalOperator(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", *opsFile, err)
		}
		steps = append(steps, op)
		save = false // pipelines carry their own save steps

	default:
		return nil, errUnknownCommand
	}

	if *ref != "" {
		opCompare := measure.NewOpCompare(*ref, 0)
		opCompare.Gray = grayMode
		steps = append(steps, opCompare)
	}
	if save && *out != "" {
		opSave := ops.NewOpSave(*out)
		opSave.Quality = int(*quality)
		steps = append(steps, opSave)
	}
	return ops.NewOpSequence(steps...), nil
}

// Loads all images matching the file patterns and applies the pipeline to each
func runPipeline(pipeline ops.Operator, filePatterns []string, logWriter io.Writer) error {
	grayMode, err := imgio.ParseGrayMode(*gray)
	if err != nil {
		return err
	}
	c := ops.NewContext(logWriter)
	if *maxThreads > 0 {
		c.MaxThreads = int(*maxThreads)
	}

	seq := ops.NewOpSequence(ops.NewOpLoadMany(filePatterns, grayMode), pipeline)
	m, err := json.MarshalIndent(seq, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "Processing with %d threads and these settings:\n%s\n\n", c.MaxThreads, string(m))

	outs, err := seq.MakePromises(nil, c)
	if err != nil {
		return err
	}
	_, err = ops.MaterializeAll(outs, c.MaxThreads, true)
	return err
}

func cmdServe(logWriter io.Writer) error {
	if err := rest.MakeSandbox(logWriter, *chroot, int(*setuid)); err != nil {
		return err
	}
	threads := int(*maxThreads)
	if threads <= 0 {
		threads = ops.DefaultMaxThreads(int(totalMiBs))
	}
	fmt.Fprintf(logWriter, "Serving REST API on %s with %d threads\n", *addr, threads)
	return rest.Serve(*addr, threads)
}

func cmdVersion(logWriter io.Writer) {
	fmt.Fprintf(logWriter, "Version %s\n", version)
	fmt.Fprintf(logWriter, "CPU %s with %d physical and %d logical cores, AVX2 %v\n",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, cpuid.CPU.AVX2())
	fmt.Fprintf(logWriter, "Memory %d MiB total, %d MiB free\n", totalMiBs, memory.FreeMemory()/1024/1024)
	fmt.Fprintf(logWriter, "Processing up to %d images in parallel\n", ops.DefaultMaxThreads(int(totalMiBs)))
}
