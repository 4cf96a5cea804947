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

package io

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamkanzi/kanzi/internal"
	"github.com/streamkanzi/kanzi/kerr"
)

// roundTrip compresses block with the given codec/transform/blockSize/jobs
// and checksum kind, decompresses the result, and returns the compressed
// size plus the decompressed bytes.
func roundTrip(t *testing.T, block []byte, codec, transform string, blockSize, jobs uint, checksumKind uint64) (int, []byte) {
	t.Helper()
	bs := internal.NewBufferStream()

	w, err := NewCompressedOutputStream(bs, codec, transform, blockSize, jobs, checksumKind)
	require.NoError(t, err)

	n, err := w.Write(block)
	require.NoError(t, err)
	require.Equal(t, len(block), n)
	require.NoError(t, w.Close())

	compressedSize := bs.Len()

	r, err := NewCompressedInputStream(bs, jobs)
	require.NoError(t, err)

	out := make([]byte, len(block))
	_, err = r.Read(out)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	return compressedSize, out
}

// Scenario 1: "mississippi", T=NONE, E=HUFFMAN, B=1024, checksum off.
func TestRoundTripMississippi(t *testing.T) {
	block := []byte("mississippi")
	size, out := roundTrip(t, block, "HUFFMAN", "NONE", 1024, 1, _CHECKSUM_NONE)
	assert.Equal(t, block, out)
	assert.GreaterOrEqual(t, size, 45)
	assert.LessOrEqual(t, size, 70)
}

// Scenario 2: 40 bytes of 0x02, T=NONE, E=FPAQ, checksum=32.
func TestRoundTripAllSameByteFPAQ(t *testing.T) {
	block := make([]byte, 40)

	for i := range block {
		block[i] = 0x02
	}

	size, out := roundTrip(t, block, "FPAQ", "NONE", 1024, 1, _CHECKSUM_32)
	assert.Equal(t, block, out)
	assert.GreaterOrEqual(t, size, 8)
}

// Scenario 3: 3MB pseudo-random bytes, T=LZX, E=FPAQ, B=262144, jobs=4,
// decompressed output matches a single-threaded run byte-for-byte.
func TestRoundTripPseudoRandomConcurrencyInvariance(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	block := make([]byte, 3*1024*1024)
	rnd.Read(block)

	_, outSingle := roundTrip(t, block, "FPAQ", "LZX", 262144, 1, _CHECKSUM_NONE)
	_, outMulti := roundTrip(t, block, "FPAQ", "LZX", 262144, 4, _CHECKSUM_NONE)

	assert.Equal(t, block, outSingle)
	assert.Equal(t, block, outMulti)
	assert.Equal(t, outSingle, outMulti)
}

// Scenario 4: 0..255 repeated to 1 MiB (scaled down from 8MiB for test
// speed; the compression-ratio invariant is size-independent for this
// input), T=BWT+MTFT+ZRLT, E=ANS0, compressed < 2% of input.
func TestRoundTripRepeatingSequenceBWTChain(t *testing.T) {
	block := make([]byte, 1024*1024)

	for i := range block {
		block[i] = byte(i)
	}

	size, out := roundTrip(t, block, "ANS0", "BWT+MTFT+ZRLT", 262144, 1, _CHECKSUM_NONE)
	assert.Equal(t, block, out)
	assert.Less(t, float64(size), 0.02*float64(len(block)))
}

// Scenario 5: flipping a byte inside a checksummed block must surface as
// a CRC-check failure on read, not a silent corruption.
func TestCorruptedBlockDetected(t *testing.T) {
	block := make([]byte, 1024*1024)
	rnd := rand.New(rand.NewSource(7))
	rnd.Read(block)

	bs := internal.NewBufferStream()
	w, err := NewCompressedOutputStream(bs, "HUFFMAN", "NONE", 65536, 1, _CHECKSUM_64)
	require.NoError(t, err)
	_, err = w.Write(block)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	corrupted := bs.Bytes()
	corrupted[32] ^= 0xFF

	r, err := NewCompressedInputStream(internal.NewBufferStream(corrupted), 1)
	require.NoError(t, err)

	out := make([]byte, len(block))
	_, err = r.Read(out)
	assert.Error(t, err)

	ioErr, ok := err.(*IOError)
	require.True(t, ok, "expected *IOError, got %T", err)
	assert.Equal(t, kerr.ErrCRCCheck, ioErr.ErrorCode())
}

// Idempotent close: a second Close is harmless; subsequent Write/Read fail.
func TestIdempotentClose(t *testing.T) {
	block := []byte("idempotent close")
	bs := internal.NewBufferStream()

	w, err := NewCompressedOutputStream(bs, "NONE", "NONE", 1024, 1, _CHECKSUM_NONE)
	require.NoError(t, err)
	_, err = w.Write(block)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.Write(block)
	assert.Error(t, err)

	r, err := NewCompressedInputStream(bs, 1)
	require.NoError(t, err)
	out := make([]byte, len(block))
	_, err = r.Read(out)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = r.Read(out)
	assert.Error(t, err)
}

// Incompressibility safety: random, already-dense bytes must not expand
// the block beyond its header overhead.
func TestIncompressibleBlockDoesNotExpand(t *testing.T) {
	block := make([]byte, 65536)
	rnd := rand.New(rand.NewSource(99))
	rnd.Read(block)

	size, out := roundTrip(t, block, "HUFFMAN", "LZ", 65536, 1, _CHECKSUM_NONE)
	assert.Equal(t, block, out)
	assert.LessOrEqual(t, size, len(block)+32)
}
