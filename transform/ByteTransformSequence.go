/*
Copyright 2011-2025 Frederic Langlet
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
	"errors"
	"fmt"

	kanzi "github.com/streamkanzi/kanzi"
)

const (
	_TRANSFORM_SKIP_MASK = 0xFF
)

// ByteTransformSequence chains up to 8 byte transforms. Each stage can be
// individually skipped on the inverse path via a bitmask set by the block
// codec, typically because that stage's forward pass expanded the data.
type ByteTransformSequence struct {
	transforms []kanzi.ByteTransform
	skipFlags  byte
}

// NewByteTransformSequence creates a sequence from the given list of transforms
func NewByteTransformSequence(transforms []kanzi.ByteTransform) (*ByteTransformSequence, error) {
	if len(transforms) == 0 || len(transforms) > 8 {
		return nil, errors.New("Only 1 to 8 transforms allowed")
	}

	this := &ByteTransformSequence{}
	this.transforms = transforms
	this.skipFlags = 0
	return this, nil
}

// Len returns the number of transforms in the sequence
func (this *ByteTransformSequence) Len() int {
	return len(this.transforms)
}

// SkipFlags returns the bitmask of skipped stages set by the last Forward call
// or by SetSkipFlags
func (this *ByteTransformSequence) SkipFlags() byte {
	return this.skipFlags
}

// SetSkipFlags overrides the skip bitmask, used by the decoder to replay
// what the encoder recorded for this block.
func (this *ByteTransformSequence) SetSkipFlags(flags byte) bool {
	this.skipFlags = flags
	return true
}

// Forward applies the sequence of transforms to src and writes the result to dst.
// A stage whose forward pass fails or expands the data beyond the destination
// buffer is skipped and its bit set in skipFlags; the untransformed bytes from
// that stage flow through to the next one.
func (this *ByteTransformSequence) Forward(src, dst []byte) (uint, uint, error) {
	if len(this.transforms) == 0 || len(src) == 0 {
		return doCopy(src, dst)
	}

	this.skipFlags = 0
	requiredSize := this.MaxEncodedLen(len(src))

	if requiredSize > len(dst) {
		return 0, 0, fmt.Errorf("Output buffer too small, required: %d, provided: %d", requiredSize, len(dst))
	}

	n := len(this.transforms)
	scratch := make([]byte, requiredSize)
	in := src

	for i, t := range this.transforms {
		out := scratch

		if i == n-1 {
			out = dst
		}

		iIdx, oIdx, err := t.Forward(in, out)

		if err != nil || iIdx != uint(len(in)) {
			// Transform did not consume all its input (incompressible, too
			// small, etc): mark this stage skipped, pass the data through.
			this.skipFlags |= byte(1 << uint(7-i))
			oIdx = uint(copy(out, in))
		}

		in = out[0:oIdx]

		if i != n-1 {
			scratch = make([]byte, requiredSize)
		}
	}

	if &in[0] != &dst[0] {
		copy(dst, in)
	}

	return uint(len(src)), uint(len(in)), nil
}

// Inverse applies the sequence of transforms in reverse order to src and
// writes the result to dst, honoring the skip bitmask set during Forward.
func (this *ByteTransformSequence) Inverse(src, dst []byte) (uint, uint, error) {
	if this.skipFlags == _TRANSFORM_SKIP_MASK {
		return doCopy(src, dst)
	}

	if len(this.transforms) == 0 || len(src) == 0 {
		return doCopy(src, dst)
	}

	in := src
	n := len(this.transforms)

	for i := n - 1; i >= 0; i-- {
		if (this.skipFlags>>uint(7-i))&1 == 1 {
			continue
		}

		var out []byte

		if i == 0 {
			out = dst
		} else {
			out = make([]byte, len(in)*3+64)
		}

		_, oIdx, err := this.transforms[i].Inverse(in, out)

		if err != nil {
			return 0, 0, err
		}

		in = out[0:oIdx]
	}

	if &in[0] != &dst[0] {
		n := copy(dst, in)
		return uint(len(src)), uint(n), nil
	}

	return uint(len(src)), uint(len(in)), nil
}

// MaxEncodedLen returns the max size required for the encoding output buffer
func (this *ByteTransformSequence) MaxEncodedLen(srcLen int) int {
	requiredSize := srcLen

	for _, t := range this.transforms {
		reqSize := t.MaxEncodedLen(requiredSize)

		if reqSize > requiredSize {
			requiredSize = reqSize
		}
	}

	return requiredSize
}
