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

package ops

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/klauspost/cpuid"
	"github.com/mlnoga/nightfilter/internal/grid"
	"github.com/pbnjay/memory"
)

// Memory budget per concurrently materialized image
const imageMemoryMB = 64

// An execution context for operators
type Context struct {
	Log        io.Writer
	MemoryMB   int  // memory.TotalMemory()/1024/1024
	MaxThreads int  `json:"maxThreads"`
	Sandbox    bool // restrict file operations to relative paths inside the working directory
}

func NewContext(log io.Writer) *Context {
	memoryMB := int(memory.TotalMemory() / 1024 / 1024)
	return &Context{
		Log:        log,
		MemoryMB:   memoryMB,
		MaxThreads: DefaultMaxThreads(memoryMB),
	}
}

// Returns the number of images to process concurrently: GOMAXPROCS, bounded by the
// logical cores reported by the CPU and by available memory. At least one
func DefaultMaxThreads(memoryMB int) int {
	threads := runtime.GOMAXPROCS(0)
	if cores := cpuid.CPU.LogicalCores; cores > 0 && cores < threads {
		threads = cores
	}
	if byMemory := memoryMB / imageMemoryMB; memoryMB > 0 && byMemory < threads {
		threads = byMemory
	}
	if threads < 1 {
		threads = 1
	}
	return threads
}

// Returns the number of goroutines an operator may use within one image. GOMAXPROCS is shared
// among the MaxThreads images materialized concurrently. At least one
func (c *Context) Workers() int {
	threads := c.MaxThreads
	if threads < 1 {
		threads = 1
	}
	workers := runtime.GOMAXPROCS(0) / threads
	if workers < 1 {
		workers = 1
	}
	return workers
}

// A promise for a grid. Returns a materialized grid, or an error
type Promise func() (g *grid.Grid, err error)

// Materializes all promises with given concurrency limit.
// Errors from individual promises are combined, successful results are still returned
func MaterializeAll(ins []Promise, maxThreads int, forget bool) (outs []*grid.Grid, err error) {
	if len(ins) == 0 {
		return nil, nil
	}
	if maxThreads < 1 {
		maxThreads = 1
	}
	if !forget {
		outs = make([]*grid.Grid, len(ins))
	}
	limiter := make(chan bool, maxThreads)
	errs := make(chan error, len(ins))
	for i, in := range ins {
		limiter <- true
		go func(i int, theIn Promise) {
			defer func() { <-limiter }()
			g, err := theIn() // materialize the promise
			if err != nil {
				errs <- err
				return
			}
			if !forget {
				outs[i] = g
			}
			errs <- nil
		}(i, in)
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}
	for i := 0; i < len(ins); i++ { // collect errors
		if e := <-errs; e != nil {
			if err == nil {
				err = e
			} else {
				err = fmt.Errorf("%s; %w", err.Error(), e)
			}
		}
	}
	return RemoveNils(outs), err
}

// Remove nils from an array of grids, editing the underlying array in place
func RemoveNils(gs []*grid.Grid) []*grid.Grid {
	o := 0
	for i := 0; i < len(gs); i++ {
		if gs[i] != nil {
			gs[o] = gs[i]
			o++
		}
	}
	for i := o; i < len(gs); i++ {
		gs[i] = nil
	}
	return gs[:o]
}

// An general image processing operator: takes n promises as inputs,
// and produces m promises as output or an error
type Operator interface {
	GetType() string
	IsActive() bool
	MakePromises(ins []Promise, c *Context) (outs []Promise, err error)
}

// Base type for operators, including type information for JSON serializing/deserializing
type OpBase struct {
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

func (op *OpBase) GetType() string { return op.Type }
func (op *OpBase) IsActive() bool  { return op.Active }

// Factory method for subclasses of operators. For JSON serializing/deserializing
type OperatorFactory func() Operator

// Mapping from operator type strings to factory method for the type
var operatorFactories = map[string]OperatorFactory{}

// Returns the operator factory for a given type string
func GetOperatorFactory(t string) OperatorFactory {
	return operatorFactories[t]
}

// Returns the registered operator type strings
func OperatorTypes() []string {
	res := make([]string, 0, len(operatorFactories))
	for t := range operatorFactories {
		res = append(res, t)
	}
	return res
}

// Registers a given type string for a given type of Operator, identified via an exemplar generator
func SetOperatorFactory(f OperatorFactory) {
	op := f()
	t := op.GetType()
	if GetOperatorFactory(t) != nil {
		panic(fmt.Sprintf("error: re-registering operator key %s\n", t))
	}
	operatorFactories[t] = f
}

// Unmarshals a polymorphic operator from JSON, using the type field to select the factory
func UnmarshalOperator(raw []byte) (Operator, error) {
	var base OpBase
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, err
	}
	factory := GetOperatorFactory(base.Type)
	if factory == nil {
		return nil, grid.NewConfigurationError("type", fmt.Sprintf("unknown operator type '%s' in raw JSON message '%s'", base.Type, string(raw)))
	}
	op := factory()
	if err := json.Unmarshal(raw, op); err != nil {
		return nil, err
	}
	return op, nil
}

// A unary image processing operator: given n promises as inputs,
// applies itself to each of them individually and returns n output promises or an error
type OperatorUnary interface {
	Operator
	Apply(g *grid.Grid, c *Context) (gOut *grid.Grid, err error)
}

// Abstract base type for unary operators. Uses golang workaround for abstract classes
// from https://golangbyexample.com/go-abstract-class/
type OpUnaryBase struct {
	OpBase
	Apply func(g *grid.Grid, c *Context) (gOut *grid.Grid, err error) `json:"-"`
}

func (op *OpUnaryBase) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) == 0 {
		return nil, fmt.Errorf("%s operator with %d inputs", op.Type, len(ins))
	}
	outs = make([]Promise, len(ins))
	for i, in := range ins {
		outs[i] = op.MakePromise(in, c)
	}
	return outs, nil
}

func (op *OpUnaryBase) MakePromise(in Promise, c *Context) (out Promise) {
	return func() (g *grid.Grid, err error) {
		if g, err = in(); err != nil { // materialize input promise
			return nil, err
		}
		if !op.Active {
			return g, nil
		}
		return op.Apply(g, c) // apply unary operator
	}
}

// Applies a sequence of operators to a promise. Number of inputs, outputs as per the chained steps
type OpSequence struct {
	OpBase
	Steps    []Operator        `json:"-"`     // the actual steps
	StepsRaw []json.RawMessage `json:"steps"` // helper for unmarshaling
}

func init() { SetOperatorFactory(func() Operator { return NewOpSequenceDefault() }) } // register the operator for JSON decoding

func NewOpSequenceDefault() *OpSequence { return NewOpSequence() }

func NewOpSequence(steps ...Operator) *OpSequence {
	return &OpSequence{
		OpBase: OpBase{Type: "seq", Active: true},
		Steps:  steps,
	}
}

// Unmarshals a sequence of polymorphic operators from JSON.
// Uses temporary op.StepsRaw inspired by https://alexkappa.medium.com/json-polymorphism-in-go-4cade1e58ed1
func (op *OpSequence) UnmarshalJSON(b []byte) error {
	type alias OpSequence
	def := alias(*NewOpSequenceDefault())
	if err := json.Unmarshal(b, &def); err != nil {
		return err
	}
	*op = OpSequence(def)

	for _, raw := range op.StepsRaw {
		step, err := UnmarshalOperator(raw)
		if err != nil {
			return err
		}
		op.Steps = append(op.Steps, step)
	}
	op.StepsRaw = nil
	return nil
}

// Appends one or more operators to the existing sequence
func (op *OpSequence) Append(steps ...Operator) {
	op.Steps = append(op.Steps, steps...)
}

// Marshals a sequence with polymorphic operators to JSON.
// Uses the actual op.Steps with label "steps", and ignores op.StepsRaw
func (op *OpSequence) MarshalJSON() (bs []byte, err error) {
	buf := bytes.Buffer{}
	buf.WriteString("{\"type\":")
	inner, err := json.Marshal(op.Type)
	if err != nil {
		return nil, err
	}
	buf.Write(inner)
	fmt.Fprintf(&buf, ",\"active\":%v,\"steps\":", op.Active)
	steps := op.Steps
	if steps == nil {
		steps = []Operator{}
	}
	inner, err = json.Marshal(steps)
	if err != nil {
		return nil, err
	}
	buf.Write(inner)
	buf.WriteRune('}')
	return buf.Bytes(), nil
}

func (op *OpSequence) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if !op.Active {
		return ins, nil
	}
	return op.applyRecursive(op.Steps, ins, c)
}

func (op *OpSequence) applyRecursive(steps []Operator, ins []Promise, c *Context) (outs []Promise, err error) {
	if len(steps) == 0 {
		return ins, nil
	}
	ins, err = steps[0].MakePromises(ins, c)
	if err != nil {
		return nil, err
	}
	return op.applyRecursive(steps[1:], ins, c)
}

// Applies a single operator to each input. Takes n inputs, produces n outputs
type OpForEach struct {
	OpBase
	Operation Operator `json:"operation"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpForEachDefault() }) } // register the operator for JSON decoding

func NewOpForEachDefault() *OpForEach { return NewOpForEach(nil) }

func NewOpForEach(operation Operator) *OpForEach {
	return &OpForEach{
		OpBase:    OpBase{Type: "forEach", Active: operation != nil},
		Operation: operation,
	}
}

// Unmarshal the type from JSON, decoding the embedded polymorphic operation
func (op *OpForEach) UnmarshalJSON(data []byte) error {
	var aux struct {
		OpBase
		Operation json.RawMessage `json:"operation"`
	}
	aux.OpBase = NewOpForEachDefault().OpBase
	aux.Active = true
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	op.OpBase, op.Operation = aux.OpBase, nil
	if len(aux.Operation) > 0 && string(aux.Operation) != "null" {
		operation, err := UnmarshalOperator(aux.Operation)
		if err != nil {
			return err
		}
		op.Operation = operation
	}
	return nil
}

// Applies the operation to every input individually
func (op *OpForEach) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) == 0 || !op.Active {
		return ins, nil
	}
	if op.Operation == nil {
		return nil, fmt.Errorf("%s operator has no operation to apply", op.Type)
	}
	for _, in := range ins {
		out, err := op.Operation.MakePromises([]Promise{in}, c)
		if err != nil {
			return nil, err
		}
		if len(out) != 1 {
			return nil, fmt.Errorf("%s operator needs exactly one promise from embedded operation", op.Type)
		}
		outs = append(outs, out[0])
	}
	return outs, nil
}

// Materializes all inputs concurrently, limited by the context's MaxThreads.
// Takes n inputs, produces up to n outputs. Failed inputs are logged and dropped
type OpParallel struct {
	OpBase
}

func init() { SetOperatorFactory(func() Operator { return NewOpParallelDefault() }) } // register the operator for JSON decoding

func NewOpParallelDefault() *OpParallel { return NewOpParallel() }

func NewOpParallel() *OpParallel {
	return &OpParallel{OpBase: OpBase{Type: "parallel", Active: true}}
}

func (op *OpParallel) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) == 0 || !op.Active {
		return ins, nil
	}
	gs, err := MaterializeAll(ins, c.MaxThreads, false)
	if err != nil {
		fmt.Fprintf(c.Log, "Warning: %s\n", err.Error())
	}
	if len(gs) == 0 {
		if err == nil {
			err = errors.New("no images left")
		}
		return nil, err
	}
	outs = make([]Promise, len(gs))
	for i, g := range gs {
		outs[i] = materialized(g)
	}
	return outs, nil
}

// Returns a promise for an already materialized grid
func materialized(g *grid.Grid) Promise {
	return func() (*grid.Grid, error) { return g, nil }
}
