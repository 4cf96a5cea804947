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
	"fmt"
	"strconv"
)

// parseSize parses a block size string with an optional K/M/G suffix
// (e.g. "4M", "64K") into a byte count.
func parseSize(s string) (uint, error) {
	scale := 1
	lastChar := byte(0)

	if len(s) > 0 {
		lastChar = s[len(s)-1]
	}

	switch lastChar {
	case 'K', 'k':
		s = s[:len(s)-1]
		scale = 1024
	case 'M', 'm':
		s = s[:len(s)-1]
		scale = 1024 * 1024
	case 'G', 'g':
		s = s[:len(s)-1]
		scale = 1024 * 1024 * 1024
	}

	n, err := strconv.Atoi(s)

	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid block size: %q", s)
	}

	return uint(n * scale), nil
}
