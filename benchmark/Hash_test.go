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
	"fmt"
	"testing"

	"github.com/streamkanzi/kanzi/internal/hashsum"
)

var hashBlockSizes = []int{4 * 1024, 64 * 1024, 1024 * 1024}

func quadraticFill(buffer []byte) {
	for i := range buffer {
		buffer[i] = byte(i * i)
	}
}

func BenchmarkXXHash32(b *testing.B) {
	for _, size := range hashBlockSizes {
		size := size

		b.Run(benchName(size), func(b *testing.B) {
			buffer := make([]byte, size)
			quadraticFill(buffer)

			h := hashsum.NewXXHash32(0)
			b.SetBytes(int64(size))
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				h.SetSeed(uint32(i))
				h.Hash(buffer)
			}
		})
	}
}

func BenchmarkXXHash64(b *testing.B) {
	for _, size := range hashBlockSizes {
		size := size

		b.Run(benchName(size), func(b *testing.B) {
			buffer := make([]byte, size)
			quadraticFill(buffer)

			h := hashsum.NewXXHash64(0)
			b.SetBytes(int64(size))
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				h.SetSeed(uint64(i))
				h.Hash(buffer)
			}
		})
	}
}

func benchName(size int) string {
	if size >= 1024*1024 {
		return fmt.Sprintf("%dMiB", size/(1024*1024))
	}

	return fmt.Sprintf("%dKiB", size/1024)
}
