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
	"fmt"

	kanzi "github.com/streamkanzi/kanzi"
	"github.com/streamkanzi/kanzi/kerr"
)

// Checksum kinds carried in the stream header (2 bits, version 6+).
const (
	_CHECKSUM_NONE  = uint64(0)
	_CHECKSUM_32    = uint64(1)
	_CHECKSUM_64    = uint64(2)
	_CHECKSUM_RSVD3 = uint64(3)
)

const (
	_CURRENT_BS_VERSION = uint64(6)
	_MIN_BS_VERSION     = uint64(3)
	_HEADER_CRC_HASH    = uint32(0x1E35A7BD)
)

// streamHeader captures the fields of the "KANZ" stream header, version 6.
// Versions 3, 4 and 5 are read-only (historical, narrower checksum flag and
// a different trailer); new streams are always written as version 6.
type streamHeader struct {
	version       uint64
	checksumKind  uint64
	entropyType   uint32
	transformType uint64
	blockSize     uint64 // bytes, already multiplied back by 16
	sizeMask      uint64 // 0 => original size absent, else 16*sizeMask bits follow
	originalSize  uint64
	hasOriginal   bool
}

func (this *streamHeader) write(obs kanzi.OutputBitStream) *IOError {
	write := func(v uint64, n uint, field string) *IOError {
		if obs.WriteBits(v, n) != n {
			return &IOError{msg: "Cannot write " + field + " to header", code: kerr.ErrWriteFile}
		}

		return nil
	}

	if err := write(_BITSTREAM_TYPE, 32, "stream type"); err != nil {
		return err
	}

	if err := write(_CURRENT_BS_VERSION, 4, "version"); err != nil {
		return err
	}

	if err := write(this.checksumKind, 2, "checksum kind"); err != nil {
		return err
	}

	if err := write(uint64(this.entropyType), 5, "entropy type"); err != nil {
		return err
	}

	if err := write(this.transformType, 48, "transform types"); err != nil {
		return err
	}

	if err := write(this.blockSize>>4, 28, "block size"); err != nil {
		return err
	}

	if err := write(this.sizeMask, 2, "size mask"); err != nil {
		return err
	}

	if this.sizeMask != 0 {
		if err := write(this.originalSize, uint(16*this.sizeMask), "original size"); err != nil {
			return err
		}
	}

	if err := write(0, 15, "padding"); err != nil {
		return err
	}

	crc := this.headerCRC()

	if err := write(uint64(crc), 24, "header CRC"); err != nil {
		return err
	}

	return nil
}

// headerCRC folds the header fields with the version-seeded multiplier
// HASH, XORing in HASH*^field for each field, then folds the 32-bit
// accumulator down to 24 bits.
func (this *streamHeader) headerCRC() uint32 {
	seed := uint32(0x01030507) * uint32(_CURRENT_BS_VERSION)
	cksum := _HEADER_CRC_HASH * seed
	fields := []uint32{
		uint32(this.checksumKind),
		this.entropyType,
		uint32(this.transformType >> 32),
		uint32(this.transformType),
		uint32(this.blockSize >> 4),
		uint32(this.sizeMask),
	}

	if this.sizeMask != 0 {
		fields = append(fields, uint32(this.originalSize>>32), uint32(this.originalSize))
	}

	for _, f := range fields {
		cksum ^= _HEADER_CRC_HASH * ^f
	}

	cksum = (cksum >> 23) ^ (cksum >> 3)
	return cksum & 0x00FFFFFF
}

func readStreamHeader(ibs kanzi.InputBitStream) (*streamHeader, *IOError) {
	fileType := ibs.ReadBits(32)

	if fileType != _BITSTREAM_TYPE {
		return nil, &IOError{msg: "Invalid stream type", code: kerr.ErrInvalidFile}
	}

	version := ibs.ReadBits(4)

	if version > _CURRENT_BS_VERSION || version < _MIN_BS_VERSION {
		errMsg := fmt.Sprintf("Invalid bitstream, cannot read this version of the stream: %d", version)
		return nil, &IOError{msg: errMsg, code: kerr.ErrStreamVersion}
	}

	h := &streamHeader{version: version}

	if version >= 6 {
		return readStreamHeaderV6(ibs, h)
	}

	return readStreamHeaderLegacy(ibs, h)
}

func readStreamHeaderV6(ibs kanzi.InputBitStream, h *streamHeader) (*streamHeader, *IOError) {
	h.checksumKind = ibs.ReadBits(2)

	if h.checksumKind == _CHECKSUM_RSVD3 {
		return nil, &IOError{msg: "Invalid bitstream, reserved checksum kind", code: kerr.ErrInvalidFile}
	}

	h.entropyType = uint32(ibs.ReadBits(5))
	h.transformType = ibs.ReadBits(48)
	h.blockSize = ibs.ReadBits(28) << 4

	if h.blockSize < _MIN_BITSTREAM_BLOCK_SIZE || h.blockSize > _MAX_BITSTREAM_BLOCK_SIZE {
		errMsg := fmt.Sprintf("Invalid bitstream, incorrect block size: %d", h.blockSize)
		return nil, &IOError{msg: errMsg, code: kerr.ErrBlockSize}
	}

	h.sizeMask = ibs.ReadBits(2)

	if h.sizeMask != 0 {
		h.originalSize = ibs.ReadBits(uint(16 * h.sizeMask))
		h.hasOriginal = true
	}

	ibs.ReadBits(15) // reserved padding, ignored on read

	crc := uint32(ibs.ReadBits(24))

	if crc != h.headerCRC() {
		return nil, &IOError{msg: "Invalid bitstream: corrupted header", code: kerr.ErrCRCCheck}
	}

	return h, nil
}

// readStreamHeaderLegacy reads the version 3/4/5 trailer: a single checksum
// bit (0=none, 1=32-bit), a 6-bit approximate block count instead of an
// original-size field, and a 4-bit CRC. Versions 3 through 5 share this
// layout in this implementation (the exact V5 width could not be pinned
// down from the available corpus; see DESIGN.md).
func readStreamHeaderLegacy(ibs kanzi.InputBitStream, h *streamHeader) (*streamHeader, *IOError) {
	if ibs.ReadBit() == 1 {
		h.checksumKind = _CHECKSUM_32
	}

	h.entropyType = uint32(ibs.ReadBits(5))
	h.transformType = ibs.ReadBits(48)
	h.blockSize = ibs.ReadBits(28) << 4

	if h.blockSize < _MIN_BITSTREAM_BLOCK_SIZE || h.blockSize > _MAX_BITSTREAM_BLOCK_SIZE {
		errMsg := fmt.Sprintf("Invalid bitstream, incorrect block size: %d", h.blockSize)
		return nil, &IOError{msg: errMsg, code: kerr.ErrBlockSize}
	}

	nbInputBlocks := ibs.ReadBits(6)
	cksum1 := uint32(ibs.ReadBits(4))

	HASH := _HEADER_CRC_HASH
	cksum2 := HASH * uint32(h.version)
	cksum2 ^= HASH * h.entropyType
	cksum2 ^= HASH * uint32(h.transformType>>32)
	cksum2 ^= HASH * uint32(h.transformType)
	cksum2 ^= HASH * uint32(h.blockSize)
	cksum2 ^= HASH * uint32(nbInputBlocks)
	cksum2 = (cksum2 >> 23) ^ (cksum2 >> 3)

	if cksum1 != cksum2&0x0F {
		return nil, &IOError{msg: "Invalid bitstream: corrupted header", code: kerr.ErrCRCCheck}
	}

	return h, nil
}
