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
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/mlnoga/nightfilter/internal/imgio"
	"github.com/mlnoga/nightfilter/internal/ops"
	_ "github.com/mlnoga/nightfilter/internal/ops/filter" // registers filter operators
	"github.com/mlnoga/nightfilter/internal/ops/measure"
	_ "github.com/mlnoga/nightfilter/internal/ops/noise" // registers noise operators
)

// Creates the router for the REST API. Requests are processed with at most maxThreads images in parallel
func NewRouter(maxThreads int) *gin.Engine {
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.GET("/operators", getOperators)
			v1.POST("/stats", func(c *gin.Context) { postStats(c, maxThreads) })
			v1.POST("/filter", func(c *gin.Context) { postFilter(c, maxThreads) })
		}
	}
	return r
}

// Serves the REST API on the given address, e.g. ":8080"
func Serve(addr string, maxThreads int) error {
	return NewRouter(maxThreads).Run(addr)
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func getOperators(c *gin.Context) {
	types := ops.OperatorTypes()
	sort.Strings(types)
	c.JSON(http.StatusOK, gin.H{
		"operators": types,
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

// Serializes log writes from concurrently processed images, and flushes each one to the client
type streamWriter struct {
	mu sync.Mutex
	w  gin.ResponseWriter
}

func (s *streamWriter) Write(p []byte) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err = s.w.Write(p)
	s.w.Flush()
	return n, err
}

// Switches the response to a plain text log stream
func startStream(c *gin.Context) *streamWriter {
	header := c.Writer.Header()
	header.Set("Content-Type", "text/plain")
	c.Writer.WriteHeader(http.StatusOK)
	return &streamWriter{w: c.Writer}
}

// Loads all files matching the patterns and runs them through the operator.
// File access is restricted to the working directory tree
func run(logWriter io.Writer, maxThreads int, filePatterns []string, gray imgio.GrayMode, op ops.Operator) error {
	c := &ops.Context{Log: logWriter, MaxThreads: maxThreads, Sandbox: true}
	seq := ops.NewOpSequence(ops.NewOpLoadMany(filePatterns, gray), op)
	if err := printArgs(logWriter, "Pipeline:\n", "\n", seq); err != nil {
		return err
	}
	outs, err := seq.MakePromises(nil, c)
	if err != nil {
		return err
	}
	_, err = ops.MaterializeAll(outs, c.MaxThreads, true)
	return err
}

type postStatsArgs struct {
	FilePatterns []string         `json:"filePatterns"`
	Gray         imgio.GrayMode   `json:"gray"`
	Stats        *measure.OpStats `json:"stats"`
}

func postStats(c *gin.Context, maxThreads int) {
	var args postStatsArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if args.Stats == nil {
		args.Stats = measure.NewOpStatsDefault()
	}

	logWriter := startStream(c)
	if err := run(logWriter, maxThreads, args.FilePatterns, args.Gray, args.Stats); err != nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
	}
}

type postFilterArgs struct {
	FilePatterns []string        `json:"filePatterns"`
	Gray         imgio.GrayMode  `json:"gray"`
	Pipeline     json.RawMessage `json:"pipeline"` // a single operator, usually a seq
}

func postFilter(c *gin.Context, maxThreads int) {
	var args postFilterArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(args.Pipeline) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing pipeline"})
		return
	}
	op, err := ops.UnmarshalOperator(args.Pipeline)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logWriter := startStream(c)
	if err := run(logWriter, maxThreads, args.FilePatterns, args.Gray, op); err != nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
	}
}
