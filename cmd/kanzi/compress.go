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
	"os"
	"runtime"
	"runtime/pprof"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newCompressCmd() *cobra.Command {
	var (
		input, output  string
		blockSize      string
		transform      string
		entropy        string
		level          int
		jobs           uint
		checksum       uint
		skipBlocks     bool
		overwrite      bool
		remove         bool
		noLinks        bool
		noDotFiles     bool
		headerless     bool
		cpuProf        string
		fromBlk, toBlk int
	)

	cmd := &cobra.Command{
		Use:     "compress",
		Aliases: []string{"c"},
		Short:   "Compress a file or directory into the KANZ container format",
		RunE: func(cmd *cobra.Command, args []string) error {
			runtime.GOMAXPROCS(runtime.NumCPU())

			if checksum != 0 && checksum != 32 && checksum != 64 {
				return errors.Wrap(fmt.Errorf("invalid checksum width %d, must be 0, 32 or 64", checksum), "compress")
			}

			argsMap := make(map[string]any)
			argsMap["inputName"] = input
			argsMap["outputName"] = output
			argsMap["overwrite"] = overwrite
			argsMap["remove"] = remove
			argsMap["skipBlocks"] = skipBlocks
			argsMap["verbosity"] = verbosity
			argsMap["jobs"] = jobs
			argsMap["checksum"] = checksum
			argsMap["noLinks"] = noLinks
			argsMap["noDotFiles"] = noDotFiles
			argsMap["cpuProf"] = cpuProf

			if headerless {
				return errors.Wrap(fmt.Errorf("headerless mode is not yet supported by the compressed stream writer"), "compress")
			}

			if level >= 0 {
				argsMap["level"] = level
			} else {
				if len(entropy) != 0 {
					argsMap["entropy"] = strings.ToUpper(entropy)
				}

				if len(transform) != 0 {
					argsMap["transform"] = strings.ToUpper(transform)
				}
			}

			if len(blockSize) != 0 {
				sz, err := parseSize(blockSize)

				if err != nil {
					return errors.Wrap(err, "compress")
				}

				argsMap["blockSize"] = sz
			}

			bc, err := NewBlockCompressor(argsMap)

			if err != nil {
				fmt.Printf("Failed to create block compressor: %v\n", err)
				lastExitCode = _ERR_CREATE_COMPRESSOR
				return errors.Wrap(err, "compress")
			}

			if len(bc.CPUProf()) != 0 {
				if f, err := os.Create(bc.CPUProf()); err != nil {
					logrus.Warnf("cpu profile unavailable: %v", err)
				} else {
					if err := pprof.StartCPUProfile(f); err != nil {
						logrus.Warnf("cpu profile unavailable: %v", err)
					}

					defer func() {
						pprof.StopCPUProfile()
						f.Close()
					}()
				}
			}

			code, _ := bc.Compress()
			lastExitCode = code

			if code != 0 {
				return fmt.Errorf("compress: exit code %d", code)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "input file or directory (STDIN for standard input)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (STDOUT for standard output, NONE to discard)")
	cmd.Flags().StringVarP(&blockSize, "block", "b", "", "block size, e.g. 4M, 64K")
	cmd.Flags().StringVarP(&transform, "transform", "t", "", "explicit transform chain, e.g. BWT+MTFT+ZRLT")
	cmd.Flags().StringVarP(&entropy, "entropy", "e", "", "entropy codec: HUFFMAN|ANS0|ANS1|RANGE|FPAQ|CM|TPAQ|TPAQX|EXPGOLOMB|NONE")
	cmd.Flags().IntVarP(&level, "level", "l", -1, "compression level 0..9 (overrides --transform/--entropy)")
	cmd.Flags().UintVarP(&jobs, "jobs", "j", 0, "worker count (0 = auto)")
	cmd.Flags().UintVar(&checksum, "checksum", 0, "per-block checksum width: 0 (off), 32 or 64")
	cmd.Flags().BoolVarP(&skipBlocks, "skip", "s", false, "skip incompressible blocks")
	cmd.Flags().BoolVarP(&overwrite, "force", "f", false, "overwrite the output file if it exists")
	cmd.Flags().BoolVarP(&remove, "remove", "r", false, "remove the input file(s) after successful compression")
	cmd.Flags().BoolVar(&noLinks, "no-links", false, "skip symlinks during directory-mode traversal")
	cmd.Flags().BoolVar(&noDotFiles, "no-dot-files", false, "skip dot-files during directory-mode traversal")
	cmd.Flags().BoolVar(&headerless, "headerless", false, "omit the stream header (reserved, not yet implemented)")
	cmd.Flags().StringVarP(&cpuProf, "cpuProf", "p", "", "write CPU profile to the given file")
	cmd.Flags().IntVar(&fromBlk, "from", -1, "unused on compress, kept for flag-set symmetry with decompress")
	cmd.Flags().IntVar(&toBlk, "to", -1, "unused on compress, kept for flag-set symmetry with decompress")
	cmd.Flags().MarkHidden("from")
	cmd.Flags().MarkHidden("to")
	return cmd
}
