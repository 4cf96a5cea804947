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

package main

// Process exit codes returned by the compress/decompress subcommands.
// These are a CLI-level concern distinct from kerr.Code, which labels
// errors carried inside the bitstream API itself.
const (
	_ERR_MISSING_PARAM       = 1
	_ERR_BLOCK_SIZE          = 2
	_ERR_INVALID_CODEC       = 3
	_ERR_CREATE_COMPRESSOR   = 4
	_ERR_CREATE_DECOMPRESSOR = 5
	_ERR_OUTPUT_IS_DIR       = 6
	_ERR_OVERWRITE_FILE      = 7
	_ERR_CREATE_FILE         = 8
	_ERR_CREATE_BITSTREAM    = 9
	_ERR_OPEN_FILE           = 10
	_ERR_READ_FILE           = 11
	_ERR_WRITE_FILE          = 12
	_ERR_PROCESS_BLOCK       = 13
	_ERR_CREATE_CODEC        = 14
	_ERR_INVALID_FILE        = 15
	_ERR_STREAM_VERSION      = 16
	_ERR_CREATE_STREAM       = 17
	_ERR_INVALID_PARAM       = 18
	_ERR_CRC_CHECK           = 19
	_ERR_UNKNOWN             = 127
)
