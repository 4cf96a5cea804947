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

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Printer is a concurrency-safe front door onto logrus, used by
// BlockCompressor/BlockDecompressor to emit progress lines gated by
// the user-selected verbosity.
type Printer struct {
	lock sync.Mutex
}

// Println logs msg at info level when printFlag is true; a no-op otherwise.
func (this *Printer) Println(msg string, printFlag bool) {
	if printFlag == false {
		return
	}

	this.lock.Lock()
	logrus.Info(msg)
	this.lock.Unlock()
}

var log = &Printer{}
