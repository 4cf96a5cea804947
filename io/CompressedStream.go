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

// Package io provides the implementations of a Writer and a Reader used to
// respectively losslessly compress and decompress data to/from the KANZ
// container format.
package io

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	kanzi "github.com/streamkanzi/kanzi"
	"github.com/streamkanzi/kanzi/bitstream"
	"github.com/streamkanzi/kanzi/entropy"
	"github.com/streamkanzi/kanzi/internal"
	"github.com/streamkanzi/kanzi/internal/hashsum"
	"github.com/streamkanzi/kanzi/kerr"
	"github.com/streamkanzi/kanzi/transform"
)

// Write to/read from bitstream using a 2 step process:
// Encoding:
// - step 1: a ByteFunction is used to reduce the size of the input data (bytes input & output)
// - step 2: an EntropyEncoder is used to entropy code the results of step 1 (bytes input, bits output)
// Decoding is the exact reverse process.

const (
	_BITSTREAM_TYPE             = 0x4B414E5A // "KANZ"
	_STREAM_DEFAULT_BUFFER_SIZE = 256 * 1024
	_EXTRA_BUFFER_SIZE          = 512
	_COPY_BLOCK_MASK            = 0x80
	_TRANSFORMS_MASK            = 0x10
	_MIN_BITSTREAM_BLOCK_SIZE   = 1024
	_MAX_BITSTREAM_BLOCK_SIZE   = 1024 * 1024 * 1024
	_SMALL_BLOCK_SIZE           = 15
	_MAX_CONCURRENCY            = 64
	_CANCEL_TASKS_ID            = -1
	_UNKNOWN_NB_BLOCKS          = 65536
	_MAX_BLOCK_BIT_LENGTH       = uint64(1) << 34
)

// IOError is an extended error carrying a message and a stable kerr.Code.
type IOError struct {
	msg  string
	code kerr.Code
}

// Error returns the underlying error
func (this IOError) Error() string {
	return fmt.Sprintf("%v (code %v)", this.msg, this.code)
}

// Message returns the message string associated with the error
func (this IOError) Message() string {
	return this.msg
}

// ErrorCode returns the code value associated with the error
func (this IOError) ErrorCode() kerr.Code {
	return this.code
}

// blockHasher is the uniform 32/64-bit checksum interface used internally
// by the block codec; checksumKind picks which concrete hasher backs it.
type blockHasher interface {
	Hash(data []byte) uint64
	Bits() uint
}

type hasher32 struct{ h *hashsum.XXHash32 }

func (x hasher32) Hash(data []byte) uint64 { return uint64(x.h.Hash(data)) }
func (x hasher32) Bits() uint              { return 32 }

type hasher64 struct{ h *hashsum.XXHash64 }

func (x hasher64) Hash(data []byte) uint64 { return x.h.Hash(data) }
func (x hasher64) Bits() uint              { return 64 }

func newBlockHasher(checksumKind uint64) blockHasher {
	switch checksumKind {
	case _CHECKSUM_32:
		return hasher32{hashsum.NewXXHash32(_BITSTREAM_TYPE)}
	case _CHECKSUM_64:
		return hasher64{hashsum.NewXXHash64(_BITSTREAM_TYPE)}
	default:
		return nil
	}
}

type blockBuffer struct {
	// Enclose a slice in a struct to share it between stream and tasks
	// and reduce memory allocation.
	Buf []byte
}

// CompressedOutputStream a Writer that writes compressed data
// to an OutputBitStream.
type CompressedOutputStream struct {
	blockSize     int
	checksumKind  uint64
	hasher        blockHasher
	buffers       []blockBuffer
	entropyType   uint32
	transformType uint64
	obs           kanzi.OutputBitStream
	initialized   int32
	closed        int32
	blockID       int32
	jobs          int
	nbInputBlocks int
	available     int
	fileSize      int64
	listeners     []kanzi.Listener
	ctx           map[string]interface{}
}

type encodingTask struct {
	iBuffer            *blockBuffer
	oBuffer            *blockBuffer
	hasher             blockHasher
	blockLength        uint
	blockTransformType uint64
	blockEntropyType   uint32
	currentBlockID     int32
	processedBlockID   *int32
	wg                 *sync.WaitGroup
	listeners          []kanzi.Listener
	obs                kanzi.OutputBitStream
	ctx                map[string]interface{}
}

type encodingTaskResult struct {
	err *IOError
}

// NewCompressedOutputStream creates a new instance of CompressedOutputStream
func NewCompressedOutputStream(os io.WriteCloser, codec, transform string, blockSize, jobs uint, checksumKind uint64) (*CompressedOutputStream, error) {
	ctx := make(map[string]interface{})
	ctx["codec"] = codec
	ctx["transform"] = transform
	ctx["blockSize"] = blockSize
	ctx["jobs"] = jobs
	ctx["checksumKind"] = checksumKind
	return NewCompressedOutputStreamWithCtx(os, ctx)
}

// NewCompressedOutputStreamWithCtx creates a new instance of CompressedOutputStream using a
// map of parameters and a writer
func NewCompressedOutputStreamWithCtx(os io.WriteCloser, ctx map[string]interface{}) (*CompressedOutputStream, error) {
	var err error
	var obs kanzi.OutputBitStream

	if obs, err = bitstream.NewDefaultOutputBitStream(os, _STREAM_DEFAULT_BUFFER_SIZE); err != nil {
		errMsg := fmt.Sprintf("Cannot create output bit stream: %v", err)
		return nil, &IOError{msg: errMsg, code: kerr.ErrCreateBitstream}
	}

	return createCompressedOutputStreamWithCtx(obs, ctx)
}

// NewCompressedOutputStreamWithCtx2 creates a new instance of CompressedOutputStream using a
// map of parameters and a custom output bitstream
func NewCompressedOutputStreamWithCtx2(obs kanzi.OutputBitStream, ctx map[string]interface{}) (*CompressedOutputStream, error) {
	return createCompressedOutputStreamWithCtx(obs, ctx)
}

func createCompressedOutputStreamWithCtx(obs kanzi.OutputBitStream, ctx map[string]interface{}) (*CompressedOutputStream, error) {
	if obs == nil {
		return nil, &IOError{msg: "Invalid null output bitstream parameter", code: kerr.ErrCreateStream}
	}

	if ctx == nil {
		return nil, &IOError{msg: "Invalid null context parameter", code: kerr.ErrCreateStream}
	}

	entropyCodec := ctx["codec"].(string)
	t := ctx["transform"].(string)
	tasks := ctx["jobs"].(uint)

	if tasks == 0 || tasks > _MAX_CONCURRENCY {
		errMsg := fmt.Sprintf("The number of jobs must be in [1..%d], got %d", _MAX_CONCURRENCY, tasks)
		return nil, &IOError{msg: errMsg, code: kerr.ErrCreateStream}
	}

	bSize := ctx["blockSize"].(uint)

	if bSize > _MAX_BITSTREAM_BLOCK_SIZE {
		errMsg := fmt.Sprintf("The block size must be at most %d MB", _MAX_BITSTREAM_BLOCK_SIZE>>20)
		return nil, &IOError{msg: errMsg, code: kerr.ErrCreateStream}
	}

	if bSize < _MIN_BITSTREAM_BLOCK_SIZE {
		errMsg := fmt.Sprintf("The block size must be at least %d", _MIN_BITSTREAM_BLOCK_SIZE)
		return nil, &IOError{msg: errMsg, code: kerr.ErrCreateStream}
	}

	if int(bSize)&-16 != int(bSize) {
		return nil, &IOError{msg: "The block size must be a multiple of 16", code: kerr.ErrCreateStream}
	}

	this := &CompressedOutputStream{}
	this.obs = obs

	// Check entropy type validity
	var eType uint32
	var err error

	if eType, err = entropy.GetType(entropyCodec); err != nil {
		return nil, &IOError{msg: err.Error(), code: kerr.ErrCreateStream}
	}

	this.entropyType = eType

	// Check transform type validity
	this.transformType, err = transform.GetType(t)

	if err != nil {
		return nil, &IOError{msg: err.Error(), code: kerr.ErrCreateStream}
	}

	this.blockSize = int(bSize)
	this.available = 0
	nbBlocks := _UNKNOWN_NB_BLOCKS

	// If input size has been provided, calculate the number of blocks
	// in the input data, else keep it unknown (scheduled as 63 or more
	// blocks). This is a scheduling hint only: it
	// is never written to the stream header (the header instead carries
	// the original byte count, see writeHeader).
	if val, containsKey := ctx["fileSize"]; containsKey {
		fileSize := val.(int64)
		this.fileSize = fileSize
		nbBlocks = int((fileSize + int64(bSize-1)) / int64(bSize))
	} else {
		this.fileSize = -1
	}

	if nbBlocks >= _MAX_CONCURRENCY {
		this.nbInputBlocks = _MAX_CONCURRENCY - 1
	} else if nbBlocks == 0 {
		this.nbInputBlocks = 1
	} else {
		this.nbInputBlocks = nbBlocks
	}

	checksumKind := uint64(_CHECKSUM_NONE)

	if val, containsKey := ctx["checksumKind"]; containsKey {
		checksumKind = val.(uint64)
	}

	if checksumKind != _CHECKSUM_NONE && checksumKind != _CHECKSUM_32 && checksumKind != _CHECKSUM_64 {
		return nil, &IOError{msg: "Invalid checksum kind", code: kerr.ErrCreateStream}
	}

	this.checksumKind = checksumKind
	this.hasher = newBlockHasher(checksumKind)
	this.jobs = int(tasks)
	this.buffers = make([]blockBuffer, 2*this.jobs)

	// Allocate first buffer and add padding for incompressible blocks
	bufSize := this.blockSize + this.blockSize>>6

	if bufSize < 65536 {
		bufSize = 65536
	}

	this.buffers[0] = blockBuffer{Buf: make([]byte, bufSize)}
	this.buffers[this.jobs] = blockBuffer{Buf: make([]byte, 0)}

	for i := 1; i < this.jobs; i++ {
		this.buffers[i] = blockBuffer{Buf: make([]byte, 0)}
		this.buffers[i+this.jobs] = blockBuffer{Buf: make([]byte, 0)}
	}

	this.blockID = 0
	this.listeners = make([]kanzi.Listener, 0)
	this.ctx = ctx
	return this, nil
}

// AddListener adds an event listener to this output stream.
// Returns true if the listener has been added.
func (this *CompressedOutputStream) AddListener(bl kanzi.Listener) bool {
	if bl == nil {
		return false
	}

	this.listeners = append(this.listeners, bl)
	return true
}

// RemoveListener removes an event listener from this output stream.
// Returns true if the listener has been removed.
func (this *CompressedOutputStream) RemoveListener(bl kanzi.Listener) bool {
	if bl == nil {
		return false
	}

	for i, e := range this.listeners {
		if e == bl {
			this.listeners = append(this.listeners[:i], this.listeners[i+1:]...)
			return true
		}
	}

	return false
}

func (this *CompressedOutputStream) writeHeader() *IOError {
	h := &streamHeader{
		version:       _CURRENT_BS_VERSION,
		checksumKind:  this.checksumKind,
		entropyType:   this.entropyType,
		transformType: this.transformType,
		blockSize:     uint64(this.blockSize),
	}

	if this.fileSize >= 0 {
		h.sizeMask, h.originalSize = sizeMaskFor(uint64(this.fileSize))
		h.hasOriginal = true
	}

	return h.write(this.obs)
}

// sizeMaskFor picks the smallest size-mask (1, 2 or 3) whose 16*m-bit field
// can hold size; 0 is reserved for "absent" and never returned here.
func sizeMaskFor(size uint64) (uint64, uint64) {
	switch {
	case size < (uint64(1) << 16):
		return 1, size
	case size < (uint64(1) << 32):
		return 2, size
	default:
		return 3, size & ((uint64(1) << 48) - 1)
	}
}

// Write writes len(block) bytes from block to the underlying data stream.
// It returns the number of bytes written from block (0 <= n <= len(block))
// and any error encountered that caused the write to stop early.
func (this *CompressedOutputStream) Write(block []byte) (int, error) {
	if atomic.LoadInt32(&this.closed) == 1 {
		return 0, &IOError{msg: "Stream closed", code: kerr.ErrWriteFile}
	}

	off := 0
	remaining := len(block)

	for remaining > 0 {
		lenChunk := remaining
		bufOff := this.available % this.blockSize

		if lenChunk > this.blockSize-bufOff {
			lenChunk = this.blockSize - bufOff
		}

		if lenChunk > 0 {
			// Process a chunk of in-buffer data. No access to bitstream required
			bufID := this.available / this.blockSize
			copy(this.buffers[bufID].Buf[bufOff:], block[off:off+lenChunk])
			bufOff += lenChunk
			off += lenChunk
			remaining -= lenChunk
			this.available += lenChunk

			if bufOff >= this.blockSize {
				if bufID+1 < this.jobs {
					// Current write buffer is full
					if len(this.buffers[bufID+1].Buf) == 0 {
						bufSize := this.blockSize + this.blockSize>>6

						if bufSize < 65536 {
							bufSize = 65536
						}

						this.buffers[bufID+1].Buf = make([]byte, bufSize)
					}
				} else {
					// If all buffers are full, time to encode
					if err := this.processBlock(); err != nil {
						return len(block) - remaining, err
					}
				}
			}

			if remaining == 0 {
				break
			}
		}
	}

	return len(block) - remaining, nil
}

// Close writes the buffered data to the output stream then writes
// a final empty block and releases resources.
// Close makes the bitstream unavailable for further writes. Idempotent.
func (this *CompressedOutputStream) Close() error {
	if atomic.SwapInt32(&this.closed, 1) == 1 {
		return nil
	}

	if err := this.processBlock(); err != nil {
		return err
	}

	// Write terminal block of size 0
	this.obs.WriteBits(0, 5) // write length-3 (5 bits max)
	this.obs.WriteBits(0, 3)

	if err := this.obs.Close(); err != nil {
		return err
	}

	// Release resources
	for i := range this.buffers {
		this.buffers[i] = blockBuffer{Buf: make([]byte, 0)}
	}

	return nil
}

func (this *CompressedOutputStream) processBlock() error {
	if atomic.SwapInt32(&this.initialized, 1) == 0 {
		if err := this.writeHeader(); err != nil {
			return err
		}
	}

	if this.available == 0 {
		return nil
	}

	// Protect against future concurrent modification of the list of block listeners
	listeners := make([]kanzi.Listener, len(this.listeners))
	copy(listeners, this.listeners)

	nbTasks := this.jobs
	var jobsPerTask []uint

	// Assign optimal number of tasks and jobs per task
	if nbTasks > 1 {
		// Limit the number of jobs if there are fewer blocks than this.jobs.
		// It allows more jobs per task and reduces memory usage.
		if nbTasks > this.nbInputBlocks {
			nbTasks = this.nbInputBlocks
		}

		jobsPerTask, _ = internal.ComputeJobsPerTask(make([]uint, nbTasks), uint(this.jobs), uint(nbTasks))
	} else {
		jobsPerTask = []uint{uint(this.jobs)}
	}

	wg := sync.WaitGroup{}
	results := make([]encodingTaskResult, nbTasks)
	firstID := this.blockID

	// Invoke as many go routines as required
	for taskID := 0; taskID < nbTasks; taskID++ {
		dataLength := this.available

		if dataLength > this.blockSize {
			dataLength = this.blockSize
		}

		if dataLength == 0 {
			break
		}

		copyCtx := make(map[string]interface{})

		for k, v := range this.ctx {
			copyCtx[k] = v
		}

		copyCtx["jobs"] = jobsPerTask[taskID]
		wg.Add(1)
		this.available -= dataLength

		task := encodingTask{
			iBuffer:            &this.buffers[taskID],
			oBuffer:            &this.buffers[this.jobs+taskID],
			hasher:             this.hasher,
			blockLength:        uint(dataLength),
			blockTransformType: this.transformType,
			blockEntropyType:   this.entropyType,
			currentBlockID:     firstID + int32(taskID) + 1,
			processedBlockID:   &this.blockID,
			wg:                 &wg,
			obs:                this.obs,
			listeners:          listeners,
			ctx:                copyCtx}

		// Invoke the tasks concurrently
		go task.encode(&results[taskID])
	}

	// Wait for completion of all tasks
	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			return r.err
		}
	}

	return nil
}

// GetWritten returns the number of bytes written so far
func (this *CompressedOutputStream) GetWritten() uint64 {
	return (this.obs.Written() + 7) >> 3
}

// Encode mode + transformed entropy coded data
// mode | 0b10000000 => copy block
// mode | 0b0yy00000 => size(size(block))-1
// mode | 0b000y0000 => 1 if EXTENDED_SKIP (more than 4 transform slots active)
//
// case 4 transforms or less
// mode | 0b0000yyyy => transform sequence skip flags (1 means skip)
//
// case more than 4 transforms
// mode | 0b00000000
//
// then 0byyyyyyyy => transform sequence skip flags (1 means skip)
func (this *encodingTask) encode(res *encodingTaskResult) {
	data := this.iBuffer.Buf
	buffer := this.oBuffer.Buf
	mode := byte(0)
	var checksum uint64

	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				res.err = &IOError{msg: e.Error(), code: kerr.ErrProcessBlock}
			} else {
				res.err = &IOError{msg: fmt.Sprintf("%v", r), code: kerr.ErrProcessBlock}
			}
		}

		// Unblock other tasks
		if res.err != nil {
			atomic.StoreInt32(this.processedBlockID, _CANCEL_TASKS_ID)
		} else if atomic.LoadInt32(this.processedBlockID) == this.currentBlockID-1 {
			atomic.StoreInt32(this.processedBlockID, this.currentBlockID)
		}

		this.wg.Done()
	}()

	// Compute block checksum over the original (pre-transform) bytes
	if this.hasher != nil {
		checksum = this.hasher.Hash(data[0:this.blockLength])
	}

	if len(this.listeners) > 0 {
		evt := newChecksumEvent(kanzi.EVT_BEFORE_TRANSFORM, int(this.currentBlockID),
			int64(this.blockLength), checksum, this.hasher)
		notifyListeners(this.listeners, evt)
	}

	if this.blockLength <= _SMALL_BLOCK_SIZE {
		this.blockTransformType = transform.NONE_TYPE
		this.blockEntropyType = entropy.NONE_TYPE
		mode |= byte(_COPY_BLOCK_MASK)
	} else if skipOpt, prst := this.ctx["skipBlocks"]; prst && skipOpt.(bool) {
		skip := false

		if this.blockLength >= 8 {
			skip = internal.IsDataCompressed(internal.GetMagicType(data))
		}

		if !skip {
			histo := [256]int{}
			internal.ComputeHistogram(data[0:this.blockLength], histo[:], true, false)
			entropy1024 := internal.ComputeFirstOrderEntropy1024(int(this.blockLength), histo[:])
			skip = entropy1024 >= entropy.INCOMPRESSIBLE_THRESHOLD
		}

		if skip {
			this.blockTransformType = transform.NONE_TYPE
			this.blockEntropyType = entropy.NONE_TYPE
			mode |= _COPY_BLOCK_MASK
		}
	}

	this.ctx["size"] = this.blockLength
	t, err := transform.New(&this.ctx, this.blockTransformType)

	if err != nil {
		res.err = &IOError{msg: err.Error(), code: kerr.ErrInvalidCodec}
		return
	}

	requiredSize := t.MaxEncodedLen(int(this.blockLength))

	if this.blockLength >= 4 {
		magic := internal.GetMagicType(data)

		if internal.IsDataCompressed(magic) {
			this.ctx["dataType"] = internal.DT_BIN
		} else if internal.IsDataMultimedia(magic) {
			this.ctx["dataType"] = internal.DT_MULTIMEDIA
		} else if internal.IsDataExecutable(magic) {
			this.ctx["dataType"] = internal.DT_EXE
		}
	}

	if len(this.iBuffer.Buf) < requiredSize {
		extraBuf := make([]byte, requiredSize-len(this.iBuffer.Buf))
		data = append(data, extraBuf...)
		this.iBuffer.Buf = data
	}

	if len(this.oBuffer.Buf) < requiredSize {
		extraBuf := make([]byte, requiredSize-len(this.oBuffer.Buf))
		buffer = append(buffer, extraBuf...)
		this.oBuffer.Buf = buffer
	}

	// Forward transform
	_, postTransformLength, fErr := t.Forward(data[0:this.blockLength], buffer)

	// Fall back to copy mode if the transform failed or expanded the
	// block beyond what the decoder would trust as a real compression gain.
	maxOut := this.blockLength + this.blockLength>>1

	if maxOut < 2048 {
		maxOut = 2048
	}

	if fErr != nil || postTransformLength > maxOut {
		postTransformLength = this.blockLength
		copy(buffer[0:postTransformLength], data[0:postTransformLength])
		this.blockTransformType = transform.NONE_TYPE
		mode |= _COPY_BLOCK_MASK
		t.SetSkipFlags(0xFF)
	}

	this.ctx["size"] = postTransformLength
	dataSize := uint(1)

	if postTransformLength >= 256 {
		dataSize = uint(internal.Log2NoCheck(uint32(postTransformLength))>>3) + 1

		if dataSize > 4 {
			res.err = &IOError{msg: "Invalid block data length", code: kerr.ErrWriteFile}
			return
		}
	}

	// Record size of 'block size' - 1 in bytes
	mode |= byte(((dataSize - 1) & 0x03) << 5)

	if len(this.listeners) > 0 {
		evt := newChecksumEvent(kanzi.EVT_AFTER_TRANSFORM, int(this.currentBlockID),
			int64(postTransformLength), checksum, this.hasher)
		notifyListeners(this.listeners, evt)
	}

	bufSize := postTransformLength

	if bufSize < this.blockLength+(this.blockLength>>3) {
		bufSize = this.blockLength + (this.blockLength >> 3)
	}

	if bufSize < 512*1024 {
		bufSize = 512 * 1024
	}

	if len(data) < int(bufSize) {
		// Rare case where the transform expanded the input or the entropy
		// coder may expand the size
		data = make([]byte, bufSize)
	}

	// Create a bitstream local to the task
	bufStream := internal.NewBufferStream(data[0:0:cap(data)])
	obs, _ := bitstream.NewDefaultOutputBitStream(bufStream, 16384)

	// Write block 'header' (mode + compressed length)
	if (mode&_COPY_BLOCK_MASK) != 0 || t.Len() <= 4 {
		mode |= byte(t.SkipFlags() >> 4)
		obs.WriteBits(uint64(mode), 8)
	} else {
		mode |= _TRANSFORMS_MASK
		obs.WriteBits(uint64(mode), 8)
		obs.WriteBits(uint64(t.SkipFlags()), 8)
	}

	obs.WriteBits(uint64(postTransformLength), 8*dataSize)

	// Write checksum (32 or 64 bits, depending on stream checksum kind)
	if this.hasher != nil {
		obs.WriteBits(checksum, this.hasher.Bits())
	}

	if len(this.listeners) > 0 {
		evt := newChecksumEvent(kanzi.EVT_BEFORE_ENTROPY, int(this.currentBlockID),
			int64(postTransformLength), checksum, this.hasher)
		notifyListeners(this.listeners, evt)
	}

	// Each block is encoded separately
	// Rebuild the entropy encoder to reset block statistics
	ee, err := entropy.NewEntropyEncoder(obs, this.ctx, this.blockEntropyType)

	if err != nil {
		res.err = &IOError{msg: err.Error(), code: kerr.ErrInvalidCodec}
		return
	}

	// Entropy encode block
	if _, err = ee.Write(buffer[0:postTransformLength]); err != nil {
		res.err = &IOError{msg: err.Error(), code: kerr.ErrProcessBlock}
		return
	}

	// Dispose before displaying statistics. Dispose may write to the bitstream
	ee.Dispose()
	obs.Close()
	written := obs.Written()

	// Lock free synchronization
	for {
		taskID := atomic.LoadInt32(this.processedBlockID)

		if taskID == _CANCEL_TASKS_ID {
			return
		}

		if taskID == this.currentBlockID-1 {
			break
		}

		runtime.Gosched()
	}

	if len(this.listeners) > 0 {
		evt := newChecksumEvent(kanzi.EVT_AFTER_ENTROPY, int(this.currentBlockID),
			int64((written+7)>>3), checksum, this.hasher)
		notifyListeners(this.listeners, evt)
	}

	// Emit block size in bits (max size pre-entropy is 1 GB = 1 << 30 bytes)
	lw := uint(3)

	if written >= 8 {
		lw = uint(internal.Log2NoCheck(uint32(written>>3)) + 4)
	}

	this.obs.WriteBits(uint64(lw-3), 5) // write length-3 (5 bits max)
	this.obs.WriteBits(written, lw)
	chkSize := uint(1 << 30)

	if written < 1<<30 {
		chkSize = uint(written)
	}

	// Emit data to shared bitstream
	for n := uint(0); written > 0; {
		this.obs.WriteArray(data[n:], chkSize)
		n += (chkSize + 7) >> 3
		written -= uint64(chkSize)
		chkSize = uint(1 << 30)

		if written < 1<<30 {
			chkSize = uint(written)
		}
	}
}

func notifyListeners(listeners []kanzi.Listener, evt *kanzi.Event) {
	defer func() {
		// Ignore panics in block listeners.
		recover()
	}()

	for _, bl := range listeners {
		bl.ProcessEvent(evt)
	}
}

func newChecksumEvent(evtType, id int, size int64, checksum uint64, h blockHasher) *kanzi.Event {
	hashType := kanzi.EVT_HASH_NONE

	if h != nil {
		if h.Bits() == 64 {
			hashType = kanzi.EVT_HASH_64BITS
		} else {
			hashType = kanzi.EVT_HASH_32BITS
		}
	}

	return kanzi.NewEvent(evtType, id, size, checksum, hashType, time.Now())
}

type decodingTaskResult struct {
	err            *IOError
	data           []byte
	decoded        int
	blockID        int
	skipped        bool
	checksum       uint64
	completionTime time.Time
}

// CompressedInputStream a Reader that reads compressed data
// from an InputBitStream.
type CompressedInputStream struct {
	blockSize       int
	checksumKind    uint64
	hasher          blockHasher
	buffers         []blockBuffer
	entropyType     uint32
	transformType   uint64
	ibs             kanzi.InputBitStream
	initialized     int32
	closed          int32
	blockID         int32
	jobs            int
	bufferThreshold int
	available       int // decoded not consumed bytes
	consumed        int // decoded consumed bytes
	nbInputBlocks   int
	originalSize    int64 // -1 if unknown
	listeners       []kanzi.Listener
	ctx             map[string]interface{}
}

type decodingTask struct {
	iBuffer            *blockBuffer
	oBuffer            *blockBuffer
	hasher             blockHasher
	blockLength        uint
	blockTransformType uint64
	blockEntropyType   uint32
	currentBlockID     int32
	processedBlockID   *int32
	wg                 *sync.WaitGroup
	listeners          []kanzi.Listener
	ibs                kanzi.InputBitStream
	ctx                map[string]interface{}
}

// NewCompressedInputStream creates a new instance of CompressedInputStream
func NewCompressedInputStream(is io.ReadCloser, jobs uint) (*CompressedInputStream, error) {
	ctx := make(map[string]interface{})
	ctx["jobs"] = jobs
	return NewCompressedInputStreamWithCtx(is, ctx)
}

// NewCompressedInputStreamWithCtx creates a new instance of CompressedInputStream
// using a map of parameters
func NewCompressedInputStreamWithCtx(is io.ReadCloser, ctx map[string]interface{}) (*CompressedInputStream, error) {
	var err error
	var ibs kanzi.InputBitStream

	if ibs, err = bitstream.NewDefaultInputBitStream(is, _STREAM_DEFAULT_BUFFER_SIZE); err != nil {
		errMsg := fmt.Sprintf("Cannot create input bit stream: %v", err)
		return nil, &IOError{msg: errMsg, code: kerr.ErrCreateBitstream}
	}

	return createCompressedInputStreamWithCtx(ibs, ctx)
}

// NewCompressedInputStreamWithCtx2 creates a new instance of CompressedInputStream
// using a map of parameters and a custom input bitstream
func NewCompressedInputStreamWithCtx2(ibs kanzi.InputBitStream, ctx map[string]interface{}) (*CompressedInputStream, error) {
	return createCompressedInputStreamWithCtx(ibs, ctx)
}

func createCompressedInputStreamWithCtx(ibs kanzi.InputBitStream, ctx map[string]interface{}) (*CompressedInputStream, error) {
	if ibs == nil {
		return nil, &IOError{msg: "Invalid null input bitstream parameter", code: kerr.ErrCreateStream}
	}

	if ctx == nil {
		return nil, &IOError{msg: "Invalid null context parameter", code: kerr.ErrCreateStream}
	}

	tasks := ctx["jobs"].(uint)

	if tasks == 0 || tasks > _MAX_CONCURRENCY {
		errMsg := fmt.Sprintf("The number of jobs must be in [1..%d], got %d", _MAX_CONCURRENCY, tasks)
		return nil, &IOError{msg: errMsg, code: kerr.ErrCreateStream}
	}

	this := &CompressedInputStream{}
	this.ibs = ibs
	this.jobs = int(tasks)
	this.blockID = 0
	this.consumed = 0
	this.available = 0
	this.bufferThreshold = 0
	this.originalSize = -1
	this.buffers = make([]blockBuffer, 2*this.jobs)

	for i := range this.buffers {
		this.buffers[i] = blockBuffer{Buf: make([]byte, 0)}
	}

	this.listeners = make([]kanzi.Listener, 0)
	this.ctx = ctx
	this.blockSize = 0
	this.entropyType = entropy.NONE_TYPE
	this.transformType = transform.NONE_TYPE
	return this, nil
}

// AddListener adds an event listener to this input stream.
// Returns true if the listener has been added.
func (this *CompressedInputStream) AddListener(bl kanzi.Listener) bool {
	if bl == nil {
		return false
	}

	this.listeners = append(this.listeners, bl)
	return true
}

// RemoveListener removes an event listener from this input stream.
// Returns true if the listener has been removed.
func (this *CompressedInputStream) RemoveListener(bl kanzi.Listener) bool {
	if bl == nil {
		return false
	}

	for i, e := range this.listeners {
		if e == bl {
			this.listeners = append(this.listeners[:i], this.listeners[i+1:]...)
			return true
		}
	}

	return false
}

// OriginalSize returns the original (pre-compression) byte count recorded
// in the stream header, or -1 if the encoder did not record one.
func (this *CompressedInputStream) OriginalSize() int64 {
	return this.originalSize
}

func (this *CompressedInputStream) readHeader() *IOError {
	h, err := readStreamHeader(this.ibs)

	if err != nil {
		return err
	}

	this.checksumKind = h.checksumKind
	this.hasher = newBlockHasher(h.checksumKind)
	this.entropyType = h.entropyType
	this.transformType = h.transformType
	this.blockSize = int(h.blockSize)
	this.bufferThreshold = this.blockSize
	this.nbInputBlocks = _UNKNOWN_NB_BLOCKS

	if h.hasOriginal {
		this.originalSize = int64(h.originalSize)

		if this.blockSize > 0 {
			nb := int((this.originalSize + int64(this.blockSize-1)) / int64(this.blockSize))

			if nb > 0 && nb < _MAX_CONCURRENCY {
				this.nbInputBlocks = nb
			}
		}
	}

	this.ctx["blockSize"] = uint(this.blockSize)

	eType, eErr := entropy.GetName(this.entropyType)

	if eErr != nil {
		errMsg := fmt.Sprintf("Invalid bitstream, invalid entropy type: %d", this.entropyType)
		return &IOError{msg: errMsg, code: kerr.ErrInvalidCodec}
	}

	this.ctx["codec"] = eType
	this.ctx["extra"] = this.entropyType == entropy.TPAQX_TYPE

	tType, tErr := transform.GetName(this.transformType)

	if tErr != nil {
		errMsg := fmt.Sprintf("Invalid bitstream, invalid transform type: %d", this.transformType)
		return &IOError{msg: errMsg, code: kerr.ErrInvalidCodec}
	}

	this.ctx["transform"] = tType

	if len(this.listeners) > 0 {
		msg := ""
		msg += fmt.Sprintf("Checksum kind set to %v\n", this.checksumKind)
		msg += fmt.Sprintf("Block size set to %d bytes\n", this.blockSize)

		displayEType := eType

		if displayEType == "NONE" {
			displayEType = "no"
		}

		msg += fmt.Sprintf("Using %v entropy codec (stage 1)\n", displayEType)

		displayTType := tType

		if displayTType == "NONE" {
			displayTType = "no"
		}

		msg += fmt.Sprintf("Using %v transform (stage 2)\n", displayTType)
		evt := kanzi.NewEventFromString(kanzi.EVT_AFTER_HEADER_DECODING, 0, msg, time.Now())
		notifyListeners(this.listeners, evt)
	}

	return nil
}

// Close reads the buffered data from the input stream and releases resources.
// Close makes the bitstream unavailable for further reads. Idempotent
func (this *CompressedInputStream) Close() error {
	if atomic.SwapInt32(&this.closed, 1) == 1 {
		return nil
	}

	if err := this.ibs.Close(); err != nil {
		return err
	}

	this.available = 0

	// Release resources
	for i := range this.buffers {
		this.buffers[i] = blockBuffer{Buf: make([]byte, 0)}
	}

	return nil
}

// Read reads up to len(block) bytes and copies them into block.
// It returns the number of bytes read (0 <= n <= len(block)) and any error encountered.
func (this *CompressedInputStream) Read(block []byte) (int, error) {
	if atomic.LoadInt32(&this.closed) == 1 {
		return 0, &IOError{msg: "Stream closed", code: kerr.ErrReadFile}
	}

	if atomic.SwapInt32(&this.initialized, 1) == 0 {
		if err := this.readHeader(); err != nil {
			return 0, err
		}
	}

	off := 0
	remaining := len(block)

	for remaining > 0 {
		avail := this.available
		bufOff := this.consumed % this.blockSize

		if avail > this.bufferThreshold-bufOff {
			avail = this.bufferThreshold - bufOff
		}

		lenChunk := remaining

		if lenChunk > avail {
			lenChunk = avail
		}

		if lenChunk > 0 {
			// Process a chunk of in-buffer data. No access to bitstream required
			bufID := this.consumed / this.blockSize
			copy(block[off:], this.buffers[bufID].Buf[bufOff:bufOff+lenChunk])
			off += lenChunk
			remaining -= lenChunk
			this.available -= lenChunk
			this.consumed += lenChunk

			if this.available > 0 && bufOff+lenChunk >= this.bufferThreshold {
				continue
			}

			if remaining == 0 {
				break
			}
		}

		// Buffer empty, time to decode
		if this.available == 0 {
			var err error

			if this.available, err = this.processBlock(); err != nil {
				return len(block) - remaining, err
			}

			if this.available == 0 {
				// Reached end of stream
				if len(block) == remaining {
					return 0, io.EOF
				}

				break
			}
		}
	}

	return len(block) - remaining, nil
}

func (this *CompressedInputStream) processBlock() (int, error) {
	if atomic.LoadInt32(&this.blockID) == _CANCEL_TASKS_ID {
		return 0, nil
	}

	// Protect against future concurrent modification of the list of block listeners
	listeners := make([]kanzi.Listener, len(this.listeners))
	copy(listeners, this.listeners)
	decoded := 0

	for {
		nbTasks := this.jobs
		var jobsPerTask []uint

		if nbTasks > 1 {
			if nbTasks > this.nbInputBlocks {
				nbTasks = this.nbInputBlocks
			}

			jobsPerTask, _ = internal.ComputeJobsPerTask(make([]uint, nbTasks), uint(this.jobs), uint(nbTasks))
		} else {
			jobsPerTask = []uint{uint(this.jobs)}
		}

		results := make([]decodingTaskResult, nbTasks)
		wg := sync.WaitGroup{}
		firstID := this.blockID
		bufSize := this.blockSize + _EXTRA_BUFFER_SIZE

		if bufSize < this.blockSize+(this.blockSize>>4) {
			bufSize = this.blockSize + (this.blockSize >> 4)
		}

		// Invoke as many go routines as required
		for taskID := 0; taskID < nbTasks; taskID++ {
			if len(this.buffers[taskID].Buf) < bufSize {
				this.buffers[taskID].Buf = make([]byte, bufSize)
			}

			copyCtx := make(map[string]interface{})

			for k, v := range this.ctx {
				copyCtx[k] = v
			}

			copyCtx["jobs"] = jobsPerTask[taskID]
			results[taskID] = decodingTaskResult{}
			wg.Add(1)

			task := decodingTask{
				iBuffer:            &this.buffers[taskID],
				oBuffer:            &this.buffers[this.jobs+taskID],
				hasher:             this.hasher,
				blockLength:        uint(bufSize),
				blockTransformType: this.transformType,
				blockEntropyType:   this.entropyType,
				currentBlockID:     firstID + int32(taskID) + 1,
				processedBlockID:   &this.blockID,
				wg:                 &wg,
				listeners:          listeners,
				ibs:                this.ibs,
				ctx:                copyCtx}

			// Invoke the tasks concurrently
			go task.decode(&results[taskID])
		}

		// Wait for completion of all tasks
		wg.Wait()
		skipped := 0

		// Process results
		for _, r := range results {
			if r.decoded > this.blockSize {
				return decoded, &IOError{msg: "Invalid data", code: kerr.ErrProcessBlock}
			}

			decoded += r.decoded

			if r.err != nil {
				return decoded, r.err
			}

			if r.skipped {
				skipped++
			}
		}

		n := 0

		for _, r := range results {
			copy(this.buffers[n].Buf, r.data[0:r.decoded])
			n++

			if len(listeners) > 0 {
				evt := newChecksumEvent(kanzi.EVT_AFTER_TRANSFORM, r.blockID, int64(r.decoded), r.checksum, this.hasher)
				evt = withTime(evt, r.completionTime)
				notifyListeners(listeners, evt)
			}
		}

		// Unless all blocks were skipped, exit the loop (usual case)
		if skipped != nbTasks {
			break
		}
	}

	this.consumed = 0
	return decoded, nil
}

func withTime(evt *kanzi.Event, t time.Time) *kanzi.Event {
	return kanzi.NewEvent(evt.Type(), evt.ID(), evt.Size(), evt.Hash(), evt.HashType(), t)
}

// GetRead returns the number of bytes read so far
func (this *CompressedInputStream) GetRead() uint64 {
	return (this.ibs.Read() + 7) >> 3
}

// Decode mode + transformed entropy coded data
// mode | 0b10000000 => copy block
// mode | 0b0yy00000 => size(size(block))-1
// mode | 0b000y0000 => 1 if EXTENDED_SKIP (more than 4 transform slots active)
//
// case 4 transforms or less
// mode	| 0b0000yyyy => transform sequence skip flags (1 means skip)
//
// case more than 4 transforms
// mode | 0b00000000
//
// then 0byyyyyyyy => transform sequence skip flags (1 means skip)
func (this *decodingTask) decode(res *decodingTaskResult) {
	data := this.iBuffer.Buf
	buffer := this.oBuffer.Buf
	decoded := 0
	var checksum1 uint64
	skipped := false

	defer func() {
		res.data = this.iBuffer.Buf
		res.decoded = decoded
		res.blockID = int(this.currentBlockID)
		res.completionTime = time.Now()
		res.checksum = checksum1
		res.skipped = skipped

		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				res.err = &IOError{msg: e.Error(), code: kerr.ErrProcessBlock}
			} else {
				res.err = &IOError{msg: fmt.Sprintf("%v", r), code: kerr.ErrProcessBlock}
			}
		}

		// Unblock other tasks
		if res.err != nil || (res.decoded == 0 && !res.skipped) {
			atomic.StoreInt32(this.processedBlockID, _CANCEL_TASKS_ID)
		} else if atomic.LoadInt32(this.processedBlockID) == this.currentBlockID-1 {
			atomic.StoreInt32(this.processedBlockID, this.currentBlockID)
		}

		this.wg.Done()
	}()

	// Lock free synchronization
	for {
		taskID := atomic.LoadInt32(this.processedBlockID)

		if taskID == _CANCEL_TASKS_ID {
			return
		}

		if taskID == this.currentBlockID-1 {
			break
		}

		runtime.Gosched()
	}

	// Read shared bitstream sequentially
	lr := uint(this.ibs.ReadBits(5)) + 3
	read := this.ibs.ReadBits(lr)

	if read == 0 {
		return
	}

	if read > _MAX_BLOCK_BIT_LENGTH {
		res.err = &IOError{msg: "Invalid block size", code: kerr.ErrBlockSize}
		return
	}

	r := int((read + 7) >> 3)
	maxL := r

	if int(this.blockLength) > r {
		maxL = int(this.blockLength)
	}

	if len(data) < maxL {
		extraBuf := make([]byte, maxL-len(data))
		data = append(data, extraBuf...)
		this.iBuffer.Buf = data
	}

	// Read data from shared bitstream
	for n := uint(0); read > 0; {
		chkSize := uint(1 << 30)

		if read < 1<<30 {
			chkSize = uint(read)
		}

		this.ibs.ReadArray(data[n:], chkSize)
		n += (chkSize + 7) >> 3
		read -= uint64(chkSize)
	}

	// After completion of the bitstream reading, increment the block id.
	// It unblocks the task processing the next block (if any)
	atomic.StoreInt32(this.processedBlockID, this.currentBlockID)

	// Check if the block must be skipped
	if v, hasKey := this.ctx["from"]; hasKey {
		if int(this.currentBlockID) < v.(int) {
			skipped = true
			return
		}
	}

	if v, hasKey := this.ctx["to"]; hasKey {
		if int(this.currentBlockID) >= v.(int) {
			skipped = true
			return
		}
	}

	// All the code below is concurrent
	// Create a bitstream local to the task
	bufStream := internal.NewBufferStream(data[0:r])
	ibs, _ := bitstream.NewDefaultInputBitStream(bufStream, 16384)

	mode := byte(ibs.ReadBits(8))
	skipFlags := byte(0)

	if mode&_COPY_BLOCK_MASK != 0 {
		this.blockTransformType = transform.NONE_TYPE
	} else if mode&_TRANSFORMS_MASK != 0 {
		skipFlags = byte(ibs.ReadBits(8))
	} else {
		skipFlags = (mode << 4) | 0x0F
	}

	dataSize := 1 + uint((mode>>5)&0x03)
	length := dataSize << 3
	mask := uint64(1)<<length - 1
	preTransformLength := uint(ibs.ReadBits(length) & mask)

	if preTransformLength == 0 {
		// Terminal marker reached mid-stream: nothing more to decode.
		return
	}

	if preTransformLength > _MAX_BITSTREAM_BLOCK_SIZE {
		errMsg := fmt.Sprintf("Invalid compressed block length: %d", preTransformLength)
		res.err = &IOError{msg: errMsg, code: kerr.ErrBlockSize}
		return
	}

	// Extract checksum from bit stream (if any)
	if this.hasher != nil {
		checksum1 = ibs.ReadBits(this.hasher.Bits())
	}

	if len(this.listeners) > 0 {
		evt := newChecksumEvent(kanzi.EVT_BEFORE_ENTROPY, int(this.currentBlockID), int64(-1), checksum1, this.hasher)
		notifyListeners(this.listeners, evt)
	}

	bufferSize := this.blockLength

	if bufferSize < preTransformLength+_EXTRA_BUFFER_SIZE {
		bufferSize = preTransformLength + _EXTRA_BUFFER_SIZE
	}

	if len(buffer) < int(bufferSize) {
		extraBuf := make([]byte, int(bufferSize)-len(buffer))
		buffer = append(buffer, extraBuf...)
		this.oBuffer.Buf = buffer
	}

	this.ctx["size"] = preTransformLength

	// Each block is decoded separately
	// Rebuild the entropy decoder to reset block statistics
	ed, err := entropy.NewEntropyDecoder(ibs, this.ctx, this.blockEntropyType)

	if err != nil {
		res.err = &IOError{msg: err.Error(), code: kerr.ErrInvalidCodec}
		return
	}

	defer ed.Dispose()

	// Block entropy decode
	if _, err = ed.Read(buffer[0:preTransformLength]); err != nil {
		res.err = &IOError{msg: err.Error(), code: kerr.ErrProcessBlock}
		return
	}

	ibs.Close()

	if len(this.listeners) > 0 {
		evt := newChecksumEvent(kanzi.EVT_AFTER_ENTROPY, int(this.currentBlockID), int64(ibs.Read())/8, checksum1, this.hasher)
		notifyListeners(this.listeners, evt)
		evt = newChecksumEvent(kanzi.EVT_BEFORE_TRANSFORM, int(this.currentBlockID), int64(preTransformLength), checksum1, this.hasher)
		notifyListeners(this.listeners, evt)
	}

	this.ctx["size"] = preTransformLength
	xform, err := transform.New(&this.ctx, this.blockTransformType)

	if err != nil {
		res.err = &IOError{msg: err.Error(), code: kerr.ErrInvalidCodec}
		return
	}

	xform.SetSkipFlags(skipFlags)
	var oIdx uint

	// Inverse transform
	if _, oIdx, err = xform.Inverse(buffer[0:preTransformLength], data); err != nil {
		res.err = &IOError{msg: err.Error(), code: kerr.ErrProcessBlock}
		return
	}

	decoded = int(oIdx)

	// Verify checksum
	if this.hasher != nil {
		checksum2 := this.hasher.Hash(data[0:decoded])

		if checksum2 != checksum1 {
			errMsg := fmt.Sprintf("Corrupted bitstream: expected checksum %x, found %x", checksum1, checksum2)
			res.err = &IOError{msg: errMsg, code: kerr.ErrCRCCheck}
			return
		}
	}
}
