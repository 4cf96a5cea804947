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

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newDecompressCmd() *cobra.Command {
	var (
		input, output string
		jobs          uint
		overwrite     bool
		remove        bool
		noLinks       bool
		noDotFiles    bool
		headerless    bool
		cpuProf       string
		from, to      int
	)

	cmd := &cobra.Command{
		Use:     "decompress",
		Aliases: []string{"d"},
		Short:   "Decompress a KANZ container back into its original bytes",
		RunE: func(cmd *cobra.Command, args []string) error {
			runtime.GOMAXPROCS(runtime.NumCPU())
			argsMap := make(map[string]any)
			argsMap["inputName"] = input
			argsMap["outputName"] = output
			argsMap["overwrite"] = overwrite
			argsMap["remove"] = remove
			argsMap["verbosity"] = verbosity
			argsMap["jobs"] = jobs
			argsMap["noLinks"] = noLinks
			argsMap["noDotFiles"] = noDotFiles
			argsMap["cpuProf"] = cpuProf

			if headerless {
				return errors.Wrap(fmt.Errorf("headerless mode is not yet supported by the compressed stream reader"), "decompress")
			}

			if from > 0 {
				argsMap["from"] = from
			}

			if to > 0 {
				argsMap["to"] = to
			}

			bd, err := NewBlockDecompressor(argsMap)

			if err != nil {
				fmt.Printf("Failed to create block decompressor: %v\n", err)
				lastExitCode = _ERR_CREATE_DECOMPRESSOR
				return errors.Wrap(err, "decompress")
			}

			if len(bd.CPUProf()) != 0 {
				if f, err := os.Create(bd.CPUProf()); err != nil {
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

			code, _ := bd.Decompress()
			lastExitCode = code

			if code != 0 {
				return fmt.Errorf("decompress: exit code %d", code)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "input file (STDIN for standard input)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (STDOUT for standard output, NONE to discard)")
	cmd.Flags().UintVarP(&jobs, "jobs", "j", 0, "worker count (0 = auto)")
	cmd.Flags().BoolVarP(&overwrite, "force", "f", false, "overwrite the output file if it exists")
	cmd.Flags().BoolVarP(&remove, "remove", "r", false, "remove the input file after successful decompression")
	cmd.Flags().BoolVar(&noLinks, "no-links", false, "skip symlinks during directory-mode traversal")
	cmd.Flags().BoolVar(&noDotFiles, "no-dot-files", false, "skip dot-files during directory-mode traversal")
	cmd.Flags().BoolVar(&headerless, "headerless", false, "expect no stream header (reserved, not yet implemented)")
	cmd.Flags().StringVarP(&cpuProf, "cpuProf", "p", "", "write CPU profile to the given file")
	cmd.Flags().IntVar(&from, "from", -1, "decompress only blocks starting at this index")
	cmd.Flags().IntVar(&to, "to", -1, "decompress only blocks up to this index")
	return cmd
}
