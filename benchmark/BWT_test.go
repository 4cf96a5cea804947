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

var bwtBlockSizes = []int{64 * 1024, 256 * 1024, 4 * 1024 * 1024}

func BenchmarkBWT(b *testing.B) {
	for _, size := range bwtBlockSizes {
		size := size

		b.Run(benchName(size), func(b *testing.B) {
			benchmarkBWTFamilyRoundTrip(b, true, size)
		})
	}
}

func BenchmarkBWTS(b *testing.B) {
	for _, size := range bwtBlockSizes {
		size := size

		b.Run(benchName(size), func(b *testing.B) {
			benchmarkBWTFamilyRoundTrip(b, false, size)
		})
	}
}

func benchmarkBWTFamilyRoundTrip(b *testing.B, isBWT bool, size int) {
	buf1 := make([]byte, size)
	buf2 := make([]byte, size)
	buf3 := make([]byte, size)
	r := rand.New(rand.NewSource(1234567))

	for i := range buf1 {
		buf1[i] = byte(r.Intn(255) + 1)
	}

	newTf := func() kanzi.ByteTransform {
		var tf kanzi.ByteTransform
		var err error

		if isBWT {
			tf, err = transform.NewBWT()
		} else {
			tf, err = transform.NewBWTS()
		}

		require.NoError(b, err)
		return tf
	}

	tf := newTf()
	_, _, err := tf.Forward(buf1, buf2)
	require.NoError(b, err)

	_, _, err = tf.Inverse(buf2, buf3)
	require.NoError(b, err)
	require.Equal(b, buf1, buf3)

	b.ReportAllocs()
	b.SetBytes(int64(size))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _, err = tf.Forward(buf1, buf2)
		require.NoError(b, err)

		_, _, err = tf.Inverse(buf2, buf3)
		require.NoError(b, err)
	}
}
