/*
Copyright 2011-2026 Frederic Langlet
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
you may obtain a copy of the License at

                http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package bitstream

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamkanzi/kanzi/internal"
)

func TestWriteReadSingleValueByteAligned(t *testing.T) {
	for width := uint(1); width <= 32; width++ {
		width := width

		t.Run("", func(t *testing.T) {
			bs := internal.NewBufferStream()
			obs, err := NewDefaultOutputBitStream(bs, 16384)
			require.NoError(t, err)

			obs.WriteBits(0x0123456789ABCDEF, width)
			require.NoError(t, obs.Close())

			ibs, err := NewDefaultInputBitStream(bs, 16384)
			require.NoError(t, err)

			ibs.ReadBits(width)
			assert.Equal(t, uint64(width), ibs.Read())
			require.NoError(t, ibs.Close())
		})
	}
}

func TestWriteReadSingleValueMisaligned(t *testing.T) {
	for width := uint(1); width <= 32; width++ {
		width := width

		t.Run("", func(t *testing.T) {
			bs := internal.NewBufferStream()
			obs, err := NewDefaultOutputBitStream(bs, 16384)
			require.NoError(t, err)

			obs.WriteBit(1)
			obs.WriteBits(0x0123456789ABCDEF, width)
			require.NoError(t, obs.Close())

			ibs, err := NewDefaultInputBitStream(bs, 16384)
			require.NoError(t, err)

			ibs.ReadBit()
			ibs.ReadBits(width)
			assert.Equal(t, uint64(width+1), ibs.Read())
			require.NoError(t, ibs.Close())
		})
	}
}

func randomValuesForRound(round int) []int {
	rnd := rand.New(rand.NewSource(int64(round)))
	values := make([]int, 100)

	for i := range values {
		if round < 5 {
			values[i] = rnd.Intn(round*1000 + 100)
		} else {
			values[i] = rnd.Intn(1 << 31)
		}
	}

	return values
}

func TestWriteReadFixedWidthValues(t *testing.T) {
	for round := 1; round <= 10; round++ {
		round := round

		t.Run("", func(t *testing.T) {
			values := randomValuesForRound(round)
			bs := internal.NewBufferStream()

			obs, err := NewDefaultOutputBitStream(bs, 16384)
			require.NoError(t, err)

			for _, v := range values {
				obs.WriteBits(uint64(v), 32)
			}

			require.NoError(t, obs.Close())

			ibs, err := NewDefaultInputBitStream(bs, 16384)
			require.NoError(t, err)

			for _, want := range values {
				assert.Equal(t, uint64(want), ibs.ReadBits(32))
			}

			assert.Equal(t, uint64(len(values))*32, ibs.Read())
			require.NoError(t, ibs.Close())
		})
	}
}

func TestWriteReadVariableWidthValuesMisaligned(t *testing.T) {
	for round := 1; round <= 10; round++ {
		round := round

		t.Run("", func(t *testing.T) {
			widths := make([]uint, 100)
			values := randomValuesForRound(round)

			for i := range values {
				widths[i] = 1 + uint(i&63)
				values[i] &= (1 << widths[i]) - 1
			}

			bs := internal.NewBufferStream()
			obs, err := NewDefaultOutputBitStream(bs, 16384)
			require.NoError(t, err)

			for i, v := range values {
				obs.WriteBits(uint64(v), widths[i])
			}

			require.NoError(t, obs.Close())
			assert.Panics(t, func() { obs.WriteBit(1) }, "write after close must panic")

			ibs, err := NewDefaultInputBitStream(bs, 16384)
			require.NoError(t, err)

			for i, want := range values {
				assert.Equal(t, uint64(want), ibs.ReadBits(widths[i]))
			}

			require.NoError(t, ibs.Close())
			assert.Panics(t, func() { ibs.ReadBit() }, "read after close must panic")
		})
	}
}

func TestWriteReadArrayByteAligned(t *testing.T) {
	for round := 1; round <= 10; round++ {
		round := round

		t.Run("", func(t *testing.T) {
			rnd := rand.New(rand.NewSource(int64(round)))
			input := make([]byte, 100)

			for i := range input {
				if round < 5 {
					input[i] = byte(rnd.Intn(round*1000 + 100))
				} else {
					input[i] = byte(rnd.Intn(1 << 31))
				}
			}

			count := uint(8 + round*(20+(round&1)) + (round & 3))
			bs := internal.NewBufferStream()

			obs, err := NewDefaultOutputBitStream(bs, 16384)
			require.NoError(t, err)

			obs.WriteArray(input, count)
			require.NoError(t, obs.Close())

			ibs, err := NewDefaultInputBitStream(bs, 16384)
			require.NoError(t, err)

			output := make([]byte, 100)
			r := ibs.ReadArray(output, count)
			require.Equal(t, count, r)
			assert.Equal(t, input[:r>>3], output[:r>>3])
			require.NoError(t, ibs.Close())
		})
	}
}

func TestWriteReadArrayMisaligned(t *testing.T) {
	for round := 1; round <= 10; round++ {
		round := round

		t.Run("", func(t *testing.T) {
			rnd := rand.New(rand.NewSource(int64(round)))
			input := make([]byte, 100)

			for i := range input {
				if round < 5 {
					input[i] = byte(rnd.Intn(round*1000 + 100))
				} else {
					input[i] = byte(rnd.Intn(1 << 31))
				}
			}

			count := uint(8 + round*(20+(round&1)) + (round & 3))
			bs := internal.NewBufferStream()

			obs, err := NewDefaultOutputBitStream(bs, 16384)
			require.NoError(t, err)

			obs.WriteBit(0)
			obs.WriteArray(input[1:], count)
			require.NoError(t, obs.Close())

			ibs, err := NewDefaultInputBitStream(bs, 16384)
			require.NoError(t, err)

			ibs.ReadBit()
			output := make([]byte, 100)
			r := ibs.ReadArray(output[1:], count)
			require.Equal(t, count, r)
			assert.Equal(t, input[1:1+int(r>>3)], output[1:1+int(r>>3)])
			require.NoError(t, ibs.Close())
		})
	}
}

func TestDebugBitStreamMirrorsUnderlying(t *testing.T) {
	bs := internal.NewBufferStream()
	obs, err := NewDefaultOutputBitStream(bs, 16384)
	require.NoError(t, err)

	dbgobs, err := NewDebugOutputBitStream(obs, discardWriter{})
	require.NoError(t, err)
	dbgobs.ShowByte(true)
	dbgobs.Mark(true)

	dbgobs.WriteBits(0xDEADBEEF, 32)
	require.NoError(t, dbgobs.Close())
	assert.Equal(t, uint64(32), dbgobs.Written())

	ibs, err := NewDefaultInputBitStream(bs, 16384)
	require.NoError(t, err)

	dbgibs, err := NewDebugInputBitStream(ibs, discardWriter{})
	require.NoError(t, err)
	dbgibs.ShowByte(true)
	dbgibs.Mark(true)

	assert.Equal(t, uint64(0xDEADBEEF), dbgibs.ReadBits(32))
	assert.Equal(t, uint64(32), dbgibs.Read())
	require.NoError(t, dbgibs.Close())
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
