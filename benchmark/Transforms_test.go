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

	kanzi "github.com/streamkanzi/kanzi"
	"github.com/streamkanzi/kanzi/transform"
)

func getTransform(b *testing.B, name string) kanzi.ByteTransform {
	b.Helper()

	var res kanzi.ByteTransform
	var err error

	switch name {
	case "LZ":
		res, err = transform.NewLZCodec()

	case "LZX":
		ctx := map[string]interface{}{"lz": transform.LZX_TYPE}
		res, err = transform.NewLZCodecWithCtx(&ctx)

	case "LZP":
		ctx := map[string]interface{}{"lz": transform.LZP_TYPE}
		res, err = transform.NewLZCodecWithCtx(&ctx)

	case "ZRLT":
		res, err = transform.NewZRLT()

	case "RLT":
		res, err = transform.NewRLT()

	case "SRT":
		res, err = transform.NewSRT()

	case "ROLZ":
		res, err = transform.NewROLZCodecWithFlag(false)

	case "ROLZX":
		res, err = transform.NewROLZCodecWithFlag(true)

	case "RANK":
		res, err = transform.NewSBRT(transform.SBRT_MODE_RANK)

	case "MTFT":
		res, err = transform.NewSBRT(transform.SBRT_MODE_MTF)

	default:
		b.Fatalf("no such transform: %q", name)
	}

	require.NoError(b, err)
	return res
}

var benchmarkTransformNames = []string{
	"LZ", "LZP", "LZX", "ROLZ", "ROLZX", "ZRLT", "RLT", "SRT", "RANK", "MTFT",
}

func BenchmarkTransforms(b *testing.B) {
	for _, name := range benchmarkTransformNames {
		name := name

		b.Run(name, func(b *testing.B) {
			benchmarkTransformThroughput(b, name)
		})
	}
}

func benchmarkTransformThroughput(b *testing.B, name string) {
	const size = 50000
	rng := 256

	if name == "ZRLT" {
		rng = 5
	}

	input := make([]byte, size)
	output := make([]byte, 8*size)
	reverse := make([]byte, size)
	r := rand.New(rand.NewSource(1))

	// Leave a zero run at the start so ZRLT and LZP have a legal match to find.
	n := size / 20

	for n < len(input) {
		val := byte(r.Intn(4))

		if val%7 == 0 {
			val = 0
		}

		input[n] = val
		n++
		run := r.Intn(120) - 20

		for run > 0 && n < len(input) {
			input[n] = val
			n++
			run--
		}
	}

	if rng < 256 {
		for i := range input {
			input[i] = byte(int(input[i]) % rng)
		}
	}

	b.ReportAllocs()
	b.SetBytes(size)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		fwd := getTransform(b, name)
		_, dstIdx, err := fwd.Forward(input, output)
		require.NoError(b, err)

		inv := getTransform(b, name)
		_, _, err = inv.Inverse(output[:dstIdx], reverse)
		require.NoError(b, err)
	}
}
