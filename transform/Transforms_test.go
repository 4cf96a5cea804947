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

package transform

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kanzi "github.com/streamkanzi/kanzi"
)

var transformNames = []string{
	"LZ", "LZX", "LZP", "ALIAS", "NONE", "ZRLT", "RLT", "SRT",
	"ROLZ", "ROLZX", "RANK", "MTFT", "MM",
}

func newTransform(t *testing.T, name string) kanzi.ByteTransform {
	t.Helper()
	ctx := map[string]any{"transform": name, "bsVersion": uint(4)}

	var tf kanzi.ByteTransform
	var err error

	switch name {
	case "LZ":
		ctx["lz"] = LZ_TYPE
		tf, err = NewLZCodecWithCtx(&ctx)
	case "LZX":
		ctx["lz"] = LZX_TYPE
		tf, err = NewLZCodecWithCtx(&ctx)
	case "LZP":
		ctx["lz"] = LZP_TYPE
		tf, err = NewLZCodecWithCtx(&ctx)
	case "ALIAS":
		tf, err = NewAliasCodecWithCtx(&ctx)
	case "NONE":
		tf, err = NewNullTransformWithCtx(&ctx)
	case "ZRLT":
		tf, err = NewZRLTWithCtx(&ctx)
	case "RLT":
		tf, err = NewRLTWithCtx(&ctx)
	case "SRT":
		tf, err = NewSRTWithCtx(&ctx)
	case "ROLZ", "ROLZX":
		tf, err = NewROLZCodecWithCtx(&ctx)
	case "RANK":
		tf, err = NewSBRT(SBRT_MODE_RANK)
	case "MTFT":
		tf, err = NewSBRT(SBRT_MODE_MTF)
	case "MM":
		tf, err = NewFSDCodecWithCtx(&ctx)
	default:
		t.Fatalf("no such transform: %q", name)
	}

	require.NoError(t, err)
	return tf
}

// runPattern builds a byte buffer from arr and puts it through one forward
// and one inverse pass of the named transform, fresh instances for each
// direction (mirrors how the stream pipeline constructs transforms anew per
// block rather than reusing state).
func runPattern(t *testing.T, name string, arr []int) {
	t.Helper()
	input := make([]byte, len(arr))

	for i, v := range arr {
		input[i] = byte(v)
	}

	fwd := newTransform(t, name)
	output := make([]byte, fwd.MaxEncodedLen(len(input)))
	srcIdx, dstIdx, err := fwd.Forward(input, output)

	if err != nil {
		t.Skipf("transform declined input (compression ratio > 1.0): %v", err)
		return
	}

	if name != "MM" && (srcIdx != uint(len(input)) || srcIdx < dstIdx) {
		t.Skip("transform expanded input, skipping inverse check")
		return
	}

	inv := newTransform(t, name)
	reverse := make([]byte, len(input))
	_, _, err = inv.Inverse(output[:dstIdx], reverse)
	require.NoError(t, err)

	assert.Equal(t, input, reverse)
}

func transformTestPatterns(rng int) map[string][]int {
	rnd := rand.New(rand.NewSource(7))

	allEights := make([]int, 80000)

	for i := range allEights {
		allEights[i] = 8
	}

	allEights[0] = 1

	mostlyZeros := make([]int, 256)

	for i := range mostlyZeros {
		val := rnd.Intn(rng)

		if val >= 33 {
			val = 0
		}

		mostlyZeros[i] = val
	}

	sparseRandom := make([]int, 512)

	for i := 20; i < len(sparseRandom); i++ {
		sparseRandom[i] = rnd.Intn(rng)
	}

	runLength := make([]int, 1024)
	idx := 20

	for idx < len(runLength) {
		length := rnd.Intn(120)

		if length%3 == 0 {
			length = 1
		}

		val := rnd.Intn(rng)
		end := idx + length

		if end >= len(runLength) {
			end = len(runLength) - 1
		}

		for j := idx; j < end; j++ {
			runLength[j] = val
		}

		idx += length
	}

	return map[string][]int{
		"short run lengths":    {0, 1, 2, 2, 2, 2, 7, 9, 9, 16, 16, 16, 1, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3},
		"single outlier":       allEights,
		"small run pairs":      {0, 0, 1, 1, 2, 2, 2, 2, 2, 2, 2, 3, 3, 3},
		"mostly zeros":         mostlyZeros,
		"sparse random tail":   sparseRandom,
		"variable-length runs": runLength,
	}
}

func TestTransformsRoundTrip(t *testing.T) {
	for _, name := range transformNames {
		name := name

		rng := 256

		if name == "ZRLT" {
			rng = 5
		}

		for patternName, arr := range transformTestPatterns(rng) {
			patternName, arr := patternName, arr

			t.Run(name+"/"+patternName, func(t *testing.T) {
				runPattern(t, name, arr)
			})
		}
	}
}
