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

// Package hashsum provides the two block/header checksum flavors used by
// the stream format: a from-scratch XXHash32 (no ecosystem package ships
// a seeded 32-bit xxhash) and an XXHash64 built on top of
// github.com/cespare/xxhash/v2.
package hashsum

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

const (
	_XXHASH_PRIME32_1 = uint32(2654435761)
	_XXHASH_PRIME32_2 = uint32(2246822519)
	_XXHASH_PRIME32_3 = uint32(3266489917)
	_XXHASH_PRIME32_4 = uint32(668265263)
	_XXHASH_PRIME32_5 = uint32(374761393)
)

// XXHash32 is a from-scratch port of the reference xxHash32 algorithm
// (Yann Collet, https://github.com/Cyan4973/xxHash), used for the 32-bit
// checksum kind. cespare/xxhash/v2 only implements the 64-bit variant, so
// this flavor has no ecosystem library to delegate to.
type XXHash32 struct {
	seed uint32
}

// NewXXHash32 creates a new XXHash32 with the given seed.
func NewXXHash32(seed uint32) *XXHash32 {
	return &XXHash32{seed: seed}
}

// SetSeed changes the hash seed.
func (x *XXHash32) SetSeed(seed uint32) {
	x.seed = seed
}

// Hash returns the 32-bit digest of data.
func (x *XXHash32) Hash(data []byte) uint32 {
	end := len(data)
	var h32 uint32
	n := 0

	if end >= 16 {
		end16 := end - 16
		v1 := x.seed + _XXHASH_PRIME32_1 + _XXHASH_PRIME32_2
		v2 := x.seed + _XXHASH_PRIME32_2
		v3 := x.seed
		v4 := x.seed - _XXHASH_PRIME32_1

		for n <= end16 {
			buf := data[n : n+16]
			v1 = xxHash32Round(v1, binary.LittleEndian.Uint32(buf[0:4]))
			v2 = xxHash32Round(v2, binary.LittleEndian.Uint32(buf[4:8]))
			v3 = xxHash32Round(v3, binary.LittleEndian.Uint32(buf[8:12]))
			v4 = xxHash32Round(v4, binary.LittleEndian.Uint32(buf[12:16]))
			n += 16
		}

		h32 = ((v1 << 1) | (v1 >> 31)) + ((v2 << 7) | (v2 >> 25)) +
			((v3 << 12) | (v3 >> 20)) + ((v4 << 18) | (v4 >> 14))
	} else {
		h32 = x.seed + _XXHASH_PRIME32_5
	}

	h32 += uint32(end)

	for n+4 <= end {
		h32 += binary.LittleEndian.Uint32(data[n:n+4]) * _XXHASH_PRIME32_3
		h32 = ((h32 << 17) | (h32 >> 15)) * _XXHASH_PRIME32_4
		n += 4
	}

	for n < end {
		h32 += uint32(data[n]) * _XXHASH_PRIME32_5
		h32 = ((h32 << 11) | (h32 >> 21)) * _XXHASH_PRIME32_1
		n++
	}

	h32 ^= h32 >> 15
	h32 *= _XXHASH_PRIME32_2
	h32 ^= h32 >> 13
	h32 *= _XXHASH_PRIME32_3
	return h32 ^ (h32 >> 16)
}

func xxHash32Round(acc, val uint32) uint32 {
	acc += val * _XXHASH_PRIME32_2
	return ((acc << 13) | (acc >> 19)) * _XXHASH_PRIME32_1
}

// XXHash64 is the 64-bit checksum kind, backed by cespare/xxhash/v2.
// cespare's Digest has no seed parameter, so the seed is folded in by
// writing it as an 8-byte big-endian prefix ahead of the hashed data on
// every call; this is the common technique for deriving a seeded variant
// from an unseeded streaming hash.
type XXHash64 struct {
	seed    uint64
	seedBuf [8]byte
}

// NewXXHash64 creates a new XXHash64 with the given seed.
func NewXXHash64(seed uint64) *XXHash64 {
	x := &XXHash64{seed: seed}
	binary.BigEndian.PutUint64(x.seedBuf[:], seed)
	return x
}

// SetSeed changes the hash seed.
func (x *XXHash64) SetSeed(seed uint64) {
	x.seed = seed
	binary.BigEndian.PutUint64(x.seedBuf[:], seed)
}

// Hash returns the 64-bit digest of data.
func (x *XXHash64) Hash(data []byte) uint64 {
	d := xxhash.New()
	d.Write(x.seedBuf[:])
	d.Write(data)
	return d.Sum64()
}
