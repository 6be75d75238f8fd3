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

package noise

import (
	"io"
	"testing"

	"github.com/mlnoga/nightfilter/internal/grid"
	"github.com/mlnoga/nightfilter/internal/noise"
	"github.com/mlnoga/nightfilter/internal/ops"
)

func flatPromise(id int) ops.Promise {
	return func() (*grid.Grid, error) {
		g, err := grid.NewGrid(32, 32, grid.Uint8)
		if err != nil {
			return nil, err
		}
		g.ID = id
		for i := range g.Data {
			g.Data[i] = 128
		}
		return g, nil
	}
}

func TestSeedPerImage(t *testing.T) {
	c := &ops.Context{Log: io.Discard, MaxThreads: 2}
	op, err := ops.UnmarshalOperator([]byte(`{"type":"noiseSaltPepper","amount":0.2,"seed":5}`))
	if err != nil {
		t.Fatal(err)
	}
	outs, err := op.MakePromises([]ops.Promise{flatPromise(0), flatPromise(1)}, c)
	if err != nil {
		t.Fatal(err)
	}
	gs, err := ops.MaterializeAll(outs, c.MaxThreads, false)
	if err != nil {
		t.Fatal(err)
	}

	for id, g := range gs {
		base, _ := flatPromise(id)()
		want, _ := noise.AddSaltPepper(base, 0.2, uint32(5+id))
		for i := range want.Data {
			if g.Data[i] != want.Data[i] {
				t.Fatalf("image %d differs from seed %d at %d", id, 5+id, i)
			}
		}
	}
	same := true
	for i := range gs[0].Data {
		if gs[0].Data[i] != gs[1].Data[i] {
			same = false
			break
		}
	}
	if same {
		t.Errorf("images with different ids received identical noise")
	}
}

func TestGaussianOp(t *testing.T) {
	c := &ops.Context{Log: io.Discard, MaxThreads: 1}
	op := NewOpNoiseGaussianDefault()
	outs, err := op.MakePromises([]ops.Promise{flatPromise(0)}, c)
	if err != nil {
		t.Fatal(err)
	}
	g, err := outs[0]()
	if err != nil {
		t.Fatal(err)
	}
	changed := 0
	for _, v := range g.Data {
		if v != 128 {
			changed++
		}
	}
	if g.Type != grid.Uint8 || changed < len(g.Data)/2 {
		t.Errorf("type %v, %d of %d samples changed", g.Type, changed, len(g.Data))
	}

	if NewOpNoiseGaussian(0, 1).Active || NewOpNoiseSaltPepper(0, 1).Active {
		t.Errorf("zero noise operators are active")
	}
}
