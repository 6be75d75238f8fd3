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

package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/mlnoga/nightfilter/internal/grid"
	"github.com/mlnoga/nightfilter/internal/imgio"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	NewRouter(2).ServeHTTP(w, req)
	return w
}

// Changes into a temporary directory with two small test images, as the sandbox only permits relative paths
func inTempDir(t *testing.T) {
	dir := t.TempDir()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })

	for i, name := range []string{"a.png", "b.png"} {
		g, _ := grid.NewGrid(8, 8, grid.Uint8)
		for j := range g.Data {
			g.Data[j] = float32(20*i + j)
		}
		g.Set(4, 4, 255)
		if err := imgio.WriteFile(name, g, 95); err != nil {
			t.Fatal(err)
		}
	}
}

func TestPing(t *testing.T) {
	w := request(t, "GET", "/api/v1/ping", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "pong") {
		t.Errorf("%d %s", w.Code, w.Body.String())
	}
}

func TestOperators(t *testing.T) {
	w := request(t, "GET", "/api/v1/operators", "")
	var res struct {
		Operators []string `json:"operators"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"adaptiveMedian", "canny", "convolve", "noiseGaussian", "seq", "stats", "threshold"} {
		found := false
		for _, op := range res.Operators {
			found = found || op == want
		}
		if !found {
			t.Errorf("operator %s missing from %v", want, res.Operators)
		}
	}
}

func TestPostStats(t *testing.T) {
	inTempDir(t)
	w := request(t, "POST", "/api/v1/stats", `{"filePatterns":["*.png"],"stats":{"type":"stats","csv":true}}`)
	body := w.Body.String()
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "text/plain" {
		t.Fatalf("%d %s", w.Code, body)
	}
	for _, want := range []string{"Found 2 files.", "0,a.png,", "1,b.png,"} {
		if !strings.Contains(body, want) {
			t.Errorf("response lacks %q:\n%s", want, body)
		}
	}
}

func TestPostFilter(t *testing.T) {
	inTempDir(t)
	w := request(t, "POST", "/api/v1/filter", `{"filePatterns":["*.png"],"pipeline":{"type":"seq","steps":[
		{"type":"adaptiveMedian","maxSize":5},
		{"type":"save","filePattern":"out%d.png"}
	]}}`)
	body := w.Body.String()
	if w.Code != http.StatusOK || strings.Contains(body, "Error") {
		t.Fatalf("%d %s", w.Code, body)
	}
	if !strings.Contains(body, "Adaptive median 3..5") {
		t.Errorf("response %s", body)
	}
	for _, name := range []string{"out0.png", "out1.png"} {
		g, err := imgio.ReadFile(name, 0, imgio.GrayLuma)
		if err != nil {
			t.Fatal(err)
		}
		if g.At(4, 4) == 255 {
			t.Errorf("%s: impulse not removed", name)
		}
	}
}

func TestPostFilterErrors(t *testing.T) {
	inTempDir(t)
	if w := request(t, "POST", "/api/v1/filter", `{"filePatterns":["*.png"],"pipeline":{"type":"frobnicate"}}`); w.Code != http.StatusBadRequest {
		t.Errorf("unknown operator: %d %s", w.Code, w.Body.String())
	}
	if w := request(t, "POST", "/api/v1/filter", `{"filePatterns":["*.png"]}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing pipeline: %d %s", w.Code, w.Body.String())
	}
	if w := request(t, "POST", "/api/v1/filter", `{"filePatterns":`); w.Code != http.StatusBadRequest {
		t.Errorf("malformed body: %d %s", w.Code, w.Body.String())
	}

	w := request(t, "POST", "/api/v1/filter", `{"filePatterns":["*.png"],"pipeline":{"type":"convolve","weights":[[1,1],[1,1]]}}`)
	if !strings.Contains(w.Body.String(), "Error: ") || !strings.Contains(w.Body.String(), "even") {
		t.Errorf("even kernel: %s", w.Body.String())
	}
	w = request(t, "POST", "/api/v1/filter", `{"filePatterns":["/etc/*"],"pipeline":{"type":"median"}}`)
	if !strings.Contains(w.Body.String(), "no files to load") {
		t.Errorf("absolute pattern: %s", w.Body.String())
	}
	w = request(t, "POST", "/api/v1/filter", `{"filePatterns":["*.png"],"pipeline":{"type":"save","filePattern":"../escape%d.png"}}`)
	if !strings.Contains(w.Body.String(), "outside current directory tree") {
		t.Errorf("escaping save: %s", w.Body.String())
	}
}
