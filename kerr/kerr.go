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

// Package kerr defines the stable, opaque error codes returned by the
// block pipeline and stream layers, plus the Error type that carries one.
package kerr

import "fmt"

// Code is a stable, opaque error code. Values never change meaning across
// versions; new codes are only ever appended.
type Code int

const (
	ErrOpenFile Code = iota + 1
	ErrCreateFile
	ErrOutputIsDir
	ErrOverwriteFile
	ErrInvalidFile
	ErrStreamVersion
	ErrCRCCheck
	ErrBlockSize
	ErrInvalidCodec
	ErrReadFile
	ErrWriteFile
	ErrProcessBlock
	ErrCreateBitstream
	ErrCreateStream
	ErrMissingParam
	ErrInvalidParam
	ErrUnknown Code = 127
)

// Error is a typed error carrying one of the codes above. Its Code is
// stable across releases; only its Msg is meant for humans. The compressed
// stream layer (package io) reports failures with its own IOError type,
// which carries a Code from this package.
type Error struct {
	Msg  string
	Code Code
}

// New creates an Error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Msg: msg, Code: code}
}

// Newf creates an Error with the given code and a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...), Code: code}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Msg, e.Code)
}

// ErrorCode returns the stable code associated with this error.
func (e *Error) ErrorCode() Code {
	return e.Code
}

// CodeOf extracts the Code from err if it is (or wraps) a *kerr.Error,
// otherwise returns ErrUnknown. It unwraps github.com/pkg/errors causes.
func CodeOf(err error) Code {
	type causer interface{ Cause() error }

	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}

		c, ok := err.(causer)

		if !ok {
			break
		}

		err = c.Cause()
	}

	return ErrUnknown
}
