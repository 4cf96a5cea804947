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

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const _KANZI_VERSION = "2.3"

// verbosity is shared by both subcommands; it drives both the legacy
// Printer gate (this.verbosity > N checks inherited from the block
// codecs) and the logrus level.
var verbosity uint

func verbosityToLevel(v uint) logrus.Level {
	switch {
	case v == 0:
		return logrus.ErrorLevel
	case v == 1:
		return logrus.WarnLevel
	case v == 2:
		return logrus.InfoLevel
	case v >= 5:
		return logrus.TraceLevel
	default:
		return logrus.DebugLevel
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "kanzi",
		Short:   "Kanzi " + _KANZI_VERSION + " - a modular, multithreaded, lossless block compressor",
		Version: _KANZI_VERSION,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logrus.SetLevel(verbosityToLevel(verbosity))
			logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: verbosity < 3, FullTimestamp: true})
		},
	}

	root.PersistentFlags().UintVarP(&verbosity, "verbose", "v", 1, "verbosity level, 0..5")
	root.AddCommand(newCompressCmd())
	root.AddCommand(newDecompressCmd())
	return root
}

// Execute runs the CLI and returns the process exit code. Subcommands
// return only an error, which Execute prints; the exit code the block
// codec produced travels in lastExitCode (kept identical to the legacy
// ERR_* vocabulary), and a failure that set no code exits with ERR_UNKNOWN.
func Execute() int {
	root := newRootCmd()
	root.SilenceUsage = true
	root.SilenceErrors = true

	if err := root.Execute(); err != nil {
		fmt.Println(err)

		if lastExitCode != 0 {
			return lastExitCode
		}

		return _ERR_UNKNOWN
	}

	return lastExitCode
}

// lastExitCode carries the ERR_* code produced by the most recent
// compress/decompress run across the cobra RunE boundary.
var lastExitCode int
