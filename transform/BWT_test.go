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

func bwtTestInputs() map[string][]byte {
	small := make([]byte, 128)
	rnd := rand.New(rand.NewSource(42))

	for i := range small {
		small[i] = byte(65 + rnd.Intn(24))
	}

	belowInverseThreshold := make([]byte, _BWT_BLOCK_SIZE_THRESHOLD2/2)

	for i := range belowInverseThreshold {
		belowInverseThreshold[i] = byte(i)
	}

	aboveInverseThreshold := make([]byte, _BWT_BLOCK_SIZE_THRESHOLD2*2)

	for i := range aboveInverseThreshold {
		aboveInverseThreshold[i] = byte(i)
	}

	return map[string][]byte{
		"mississippi":                []byte("mississippi"),
		"pi digits":                  []byte("3.14159265358979323846264338327950288419716939937510"),
		"repeated word pangram":      []byte("SIX.MIXED.PIXIES.SIFT.SIXTY.PIXIE.DUST.BOXES"),
		"small alphabet":             small,
		"below inverse algorithm threshold": belowInverseThreshold,
		"above inverse algorithm threshold": aboveInverseThreshold,
	}
}

func TestBWTRoundTrip(t *testing.T) {
	for name, input := range bwtTestInputs() {
		input := input

		t.Run(name, func(t *testing.T) {
			fwd, err := NewBWT()
			require.NoError(t, err)

			encoded := make([]byte, len(input))
			_, _, err = fwd.Forward(input, encoded)
			require.NoError(t, err)

			bwt := fwd
			chunks := GetBWTChunks(len(input))
			primaryIndexes := make([]uint, chunks)

			for i := range primaryIndexes {
				primaryIndexes[i] = bwt.PrimaryIndex(i)
			}

			inv, err := NewBWT()
			require.NoError(t, err)
			invBWT := inv

			for i := range primaryIndexes {
				invBWT.SetPrimaryIndex(i, primaryIndexes[i])
			}

			decoded := make([]byte, len(input))
			_, _, err = inv.Inverse(encoded, decoded)
			require.NoError(t, err)

			assert.Equal(t, input, decoded)
		})
	}
}

func TestBWTSRoundTrip(t *testing.T) {
	for name, input := range bwtTestInputs() {
		input := input

		t.Run(name, func(t *testing.T) {
			fwd, err := NewBWTS()
			require.NoError(t, err)

			encoded := make([]byte, len(input))
			_, _, err = fwd.Forward(input, encoded)
			require.NoError(t, err)

			inv, err := NewBWTS()
			require.NoError(t, err)

			decoded := make([]byte, len(input))
			_, _, err = inv.Inverse(encoded, decoded)
			require.NoError(t, err)

			assert.Equal(t, input, decoded)
		})
	}
}

func TestBWTPrimaryIndexInRange(t *testing.T) {
	input := []byte("SIX.MIXED.PIXIES.SIFT.SIXTY.PIXIE.DUST.BOXES")

	var fwd kanzi.ByteTransform
	fwd, err := NewBWT()
	require.NoError(t, err)

	encoded := make([]byte, len(input))
	_, _, err = fwd.Forward(input, encoded)
	require.NoError(t, err)

	pi := fwd.(*BWT).PrimaryIndex(0)
	assert.GreaterOrEqual(t, pi, uint(0))
	assert.Less(t, pi, uint(len(input)))
}
