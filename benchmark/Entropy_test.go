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

package benchmark

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streamkanzi/kanzi/bitstream"
	"github.com/streamkanzi/kanzi/entropy"
	"github.com/streamkanzi/kanzi/internal"
)

var entropyCodecNames = []string{"HUFFMAN", "ANS0", "ANS1", "RANGE", "FPAQ", "CM", "TPAQ", "EXPGOLOMB"}

// burstyData fills dst with runs of a random byte, run lengths cycling
// through repeats starting at offset phase — mimics the short-run byte
// patterns a block's LZ/BWT stage would hand to the entropy stage.
func burstyData(dst []byte, repeats []int, phase int) {
	idx := phase

	for i := 0; i < len(dst); {
		length := repeats[idx]
		idx = (idx + 1) & 0x0F
		v := byte(rand.Intn(256))

		if i+length >= len(dst) {
			length = len(dst) - i
		}

		for j := 0; j < length && i < len(dst); j++ {
			dst[i] = v
			i++
		}
	}
}

func BenchmarkEntropyCodecs(b *testing.B) {
	repeats := []int{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5, 8, 9, 7, 9, 3}
	const size = 50000

	for _, name := range entropyCodecNames {
		name := name
		eType, err := entropy.GetType(name)
		require.NoError(b, err)

		b.Run(name, func(b *testing.B) {
			input := make([]byte, size)
			burstyData(input, repeats, 0)

			b.ReportAllocs()
			b.SetBytes(size)
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				bs := internal.NewBufferStream()
				ctx := map[string]any{"entropy": name, "bsVersion": uint(4)}

				obs, err := bitstream.NewDefaultOutputBitStream(bs, size)
				require.NoError(b, err)

				enc, err := entropy.NewEntropyEncoder(obs, ctx, eType)
				require.NoError(b, err)

				_, err = enc.Write(input)
				require.NoError(b, err)
				enc.Dispose()
				require.NoError(b, obs.Close())

				ibs, err := bitstream.NewDefaultInputBitStream(bs, size)
				require.NoError(b, err)

				dec, err := entropy.NewEntropyDecoder(ibs, ctx, eType)
				require.NoError(b, err)

				output := make([]byte, size)
				_, err = dec.Read(output)
				require.NoError(b, err)
				dec.Dispose()
				require.NoError(b, ibs.Close())
			}
		})
	}
}
