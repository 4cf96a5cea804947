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

package entropy

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kanzi "github.com/streamkanzi/kanzi"
	"github.com/streamkanzi/kanzi/bitstream"
	"github.com/streamkanzi/kanzi/internal"
)

var codecNames = []string{"HUFFMAN", "ANS0", "ANS1", "RANGE", "FPAQ", "CM", "TPAQ", "EXPGOLOMB"}

func newEncoder(t *testing.T, name string, obs kanzi.OutputBitStream) kanzi.EntropyEncoder {
	t.Helper()
	eType, err := GetType(name)
	require.NoError(t, err)

	ctx := map[string]any{"entropy": name, "bsVersion": uint(4)}
	enc, err := NewEntropyEncoder(obs, ctx, eType)
	require.NoError(t, err)
	return enc
}

func newDecoder(t *testing.T, name string, ibs kanzi.InputBitStream) kanzi.EntropyDecoder {
	t.Helper()
	eType, err := GetType(name)
	require.NoError(t, err)

	ctx := map[string]any{"entropy": name, "bsVersion": uint(4)}
	dec, err := NewEntropyDecoder(ibs, ctx, eType)
	require.NoError(t, err)
	return dec
}

// roundTrip encodes input with the named codec, decodes it back, and returns
// the encoded byte length alongside the decoded bytes.
func roundTrip(t *testing.T, name string, input []byte) (int, []byte) {
	t.Helper()
	bs := internal.NewBufferStream()

	obs, err := bitstream.NewDefaultOutputBitStream(bs, 16384)
	require.NoError(t, err)

	enc := newEncoder(t, name, obs)
	n, err := enc.Write(input)
	require.NoError(t, err)
	require.Equal(t, len(input), n)

	enc.Dispose()
	require.NoError(t, obs.Close())

	encodedLen := bs.Len()

	ibs, err := bitstream.NewDefaultInputBitStream(bs, 16384)
	require.NoError(t, err)

	dec := newDecoder(t, name, ibs)
	out := make([]byte, len(input))

	if len(input) > 0 {
		n, err = dec.Read(out)
		require.NoError(t, err)
		require.Equal(t, len(input), n)
	}

	dec.Dispose()
	require.NoError(t, ibs.Close())
	require.NoError(t, bs.Close())

	return encodedLen, out
}

func TestEntropyRoundTripAcrossPatterns(t *testing.T) {
	type testCase struct {
		name  string
		input []byte
	}

	allByteValues := make([]byte, 256)

	for i := range allByteValues {
		allByteValues[i] = byte(i)
	}

	sparse := make([]byte, 4096)

	for i := 1; i < 256; i++ {
		if i*16 < len(sparse) {
			sparse[i*16] = byte(i)
		}
	}

	testCases := []testCase{
		{"empty", []byte{}},
		{"single byte", []byte{42}},
		{"two identical bytes", []byte{42, 42}},
		{"two distinct bytes", []byte{'I', 'J'}},
		{"all identical 32 bytes", bytes32(2)},
		{"alternating two symbols", alternating(32, 2, 1)},
		{"ascii-like sequence", []byte{0x3d, 0x4d, 0x54, 0x47, 0x5a, 0x36, 0x39, 0x26, 0x72, 0x6f, 0x6c, 0x65, 0x3d, 0x70, 0x72, 0x65}},
		{"mixed sequence", []byte{0, 0, 32, 15, 252, 16, 0, 16, 0, 7, 255, 252, 224, 0, 31, 255}},
		{"all 256 byte values", allByteValues},
		{"sparse mostly zeros", sparse},
		{"repeating 3-byte pattern", []byte(strings.Repeat("LMN", 20))},
		{"three equal-size runs", []byte(strings.Repeat("P", 30) + strings.Repeat("Q", 30) + strings.Repeat("R", 30))},
		{"skewed frequencies", []byte(strings.Repeat("L", 50) + strings.Repeat("M", 20) + strings.Repeat("N", 5) + "O")},
		{"pseudo-random 4096 bytes", randomBytes(4096, 1)},
	}

	for _, codec := range codecNames {
		codec := codec

		for _, tc := range testCases {
			tc := tc

			t.Run(codec+"/"+tc.name, func(t *testing.T) {
				_, out := roundTrip(t, codec, tc.input)
				assert.Equal(t, tc.input, out)
			})
		}
	}
}

func TestEntropyCompressesRepetitiveInput(t *testing.T) {
	input := []byte(strings.Repeat("A", 2000))

	for _, codec := range codecNames {
		t.Run(codec, func(t *testing.T) {
			size, out := roundTrip(t, codec, input)
			assert.Equal(t, input, out)
			assert.Less(t, size, len(input), "expected %s to shrink a 2000-byte run of a single symbol", codec)
		})
	}
}

func TestEntropyPseudoRandomDataAcrossSeeds(t *testing.T) {
	for _, codec := range codecNames {
		codec := codec

		for seed := 0; seed < 5; seed++ {
			seed := seed

			t.Run(codec, func(t *testing.T) {
				input := randomBytes(256, int64(seed))
				_, out := roundTrip(t, codec, input)
				assert.Equal(t, input, out)
			})
		}
	}
}

func bytes32(v byte) []byte {
	b := make([]byte, 32)

	for i := range b {
		b[i] = v
	}

	return b
}

func alternating(size int, a, b byte) []byte {
	v := make([]byte, size)

	for i := range v {
		if i&1 == 0 {
			v[i] = a
		} else {
			v[i] = b
		}
	}

	return v
}

func randomBytes(size int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	v := make([]byte, size)
	r.Read(v)
	return v
}
