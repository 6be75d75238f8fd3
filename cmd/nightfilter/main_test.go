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
	"bytes"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mlnoga/nightfilter/internal/grid"
	"github.com/mlnoga/nightfilter/internal/imgio"
	"github.com/mlnoga/nightfilter/internal/ops"
	"github.com/mlnoga/nightfilter/internal/ops/filter"
	"github.com/mlnoga/nightfilter/internal/ops/measure"
)

func steps(t *testing.T, cmd string) []ops.Operator {
	t.Helper()
	op, err := buildPipeline(cmd)
	if err != nil {
		t.Fatalf("%s: %s", cmd, err)
	}
	return op.(*ops.OpSequence).Steps
}

func TestBuildPipelineDefaults(t *testing.T) {
	s := steps(t, "convolve")
	if len(s) != 2 {
		t.Fatalf("convolve: %d steps; want filter and save", len(s))
	}
	conv := s[0].(*filter.OpConvolve)
	if conv.Kernel != "mean" || conv.Size != 3 || conv.Border.Mode != grid.BorderConstant || conv.Post != filter.PostNone {
		t.Errorf("convolve %#v", conv)
	}
	if save := s[1].(*ops.OpSave); save.FilePattern != "out%d.png" || save.Quality != 95 {
		t.Errorf("save %#v", save)
	}

	edges := steps(t, "edges")[0].(*filter.OpGradient)
	if edges.Border.Mode != grid.BorderReplicate || edges.Post != filter.PostNormalize {
		t.Errorf("edges %#v", edges)
	}

	amf := steps(t, "amf")[0].(*filter.OpAdaptiveMedian)
	if amf.MinSize != 3 || amf.MaxSize != 7 {
		t.Errorf("amf %#v", amf)
	}

	if s := steps(t, "stats"); len(s) != 1 {
		t.Errorf("stats saves output: %d steps", len(s))
	}
	if s := steps(t, "noise"); s[0].GetType() != "noiseSaltPepper" {
		t.Errorf("noise step %s", s[0].GetType())
	}
}

func TestBuildPipelineErrors(t *testing.T) {
	if _, err := buildPipeline("frobnicate"); !errors.Is(err, errUnknownCommand) {
		t.Errorf("unknown command: err=%v", err)
	}
	if _, err := buildPipeline("compare"); !errors.Is(err, grid.ErrConfiguration) {
		t.Errorf("compare without reference: err=%v", err)
	}
	if _, err := buildPipeline("run"); !errors.Is(err, grid.ErrConfiguration) {
		t.Errorf("run without pipeline: err=%v", err)
	}
	if _, err := parseWeights("[[1,2"); !errors.Is(err, grid.ErrConfiguration) {
		t.Errorf("malformed weights: err=%v", err)
	}
	if ws, err := parseWeights("[[0,1,0],[1,-4,1],[0,1,0]]"); err != nil || len(ws) != 3 || ws[1][1] != -4 {
		t.Errorf("weights %v err %v", ws, err)
	}
}

func TestRunFromJSONFile(t *testing.T) {
	dir := t.TempDir()
	g, _ := grid.NewGrid(9, 9, grid.Uint8)
	for i := range g.Data {
		g.Data[i] = 100
	}
	g.Set(4, 4, 0)
	in := filepath.Join(dir, "in.png")
	if err := imgio.WriteFile(in, g, 95); err != nil {
		t.Fatal(err)
	}
	pipeline := filepath.Join(dir, "pipeline.json")
	json := `{"type":"seq","steps":[{"type":"median"},{"type":"save","filePattern":"` +
		filepath.ToSlash(filepath.Join(dir, "out%d.png")) + `"}]}`
	if err := os.WriteFile(pipeline, []byte(json), 0644); err != nil {
		t.Fatal(err)
	}

	if err := flag.Set("ops", pipeline); err != nil {
		t.Fatal(err)
	}
	defer flag.Set("ops", "")
	op, err := buildPipeline("run")
	if err != nil {
		t.Fatal(err)
	}

	var log bytes.Buffer
	if err := runPipeline(op, []string{in}, &log); err != nil {
		t.Fatalf("%s\n%s", err, log.String())
	}
	if !strings.Contains(log.String(), `"type": "median"`) {
		t.Errorf("effective pipeline not logged:\n%s", log.String())
	}
	res, err := imgio.ReadFile(filepath.Join(dir, "out0.png"), 0, imgio.GrayLuma)
	if err != nil {
		t.Fatal(err)
	}
	if res.At(4, 4) != 100 {
		t.Errorf("median output %g; want 100", res.At(4, 4))
	}
}

func TestReferenceAppendsCompare(t *testing.T) {
	if err := flag.Set("ref", "ref.png"); err != nil {
		t.Fatal(err)
	}
	defer flag.Set("ref", "")
	s := steps(t, "median")
	if len(s) != 3 {
		t.Fatalf("%d steps; want median, compare, save", len(s))
	}
	if cmp, ok := s[1].(*measure.OpCompare); !ok || cmp.Reference != "ref.png" || !cmp.Active {
		t.Errorf("step 1 %#v", s[1])
	}
}

func TestEdgesCannyAndBinarize(t *testing.T) {
	if err := flag.Set("edgeOp", "canny"); err != nil {
		t.Fatal(err)
	}
	s := steps(t, "edges")
	flag.Set("edgeOp", "sobel")
	canny, ok := s[0].(*filter.OpCanny)
	if !ok || canny.Sigma != 1.1 || canny.Low != 50 || canny.High != 150 {
		t.Errorf("canny step %#v", s[0])
	}

	if err := flag.Set("binarize", "otsu"); err != nil {
		t.Fatal(err)
	}
	defer flag.Set("binarize", "")
	s = steps(t, "edges")
	if len(s) != 3 {
		t.Fatalf("%d steps; want gradient, threshold, save", len(s))
	}
	if th, ok := s[1].(*filter.OpThreshold); !ok || th.Method != filter.ThresholdOtsu {
		t.Errorf("step 1 %#v", s[1])
	}

	flag.Set("binarize", "99.5")
	if th := steps(t, "edges")[1].(*filter.OpThreshold); th.Method != filter.ThresholdFixed || th.Value != 99.5 {
		t.Errorf("fixed threshold %#v", th)
	}
	flag.Set("binarize", "median")
	if _, err := buildPipeline("edges"); !errors.Is(err, grid.ErrConfiguration) {
		t.Errorf("bad binarize: err=%v", err)
	}
}
