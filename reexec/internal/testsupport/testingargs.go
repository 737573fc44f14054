// Copyright 2024 The nsjoin Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package testsupport

import (
	"fmt"
)

// RunAction is set by the nsjoin/reexec package to its action runner; the
// indirection breaks the import cycle between nsjoin/reexec and
// nsjoin/reexec/testing, which both import this package instead.
var RunAction func() (action bool)

// TestingEnabled is set to true when we're under testing; gathering
// coverage profile data might be enabled.
var TestingEnabled = false

// CoverageOutputDir is the directory in which to create profile files and
// the like. When run from "go test", our binary always runs in the source
// directory for the package under test. The CLI argument "-test.outputdir"
// corresponding with this variable lets "go test" tell our binary to write
// the files in the directory where the "go test" command is run.
var CoverageOutputDir = ""

// CoverageProfile is the name of a coverage profile data file; if empty,
// then no coverage profile is to be saved. This variable corresponds with
// the "-test.coverprofile" CLI argument.
var CoverageProfile = ""

// CoverageProfiles is a list of coverage profile data filenames created by
// re-executed child processes when under test.
var CoverageProfiles = []string{}

// EnableTesting is a module-internal function used by the
// nsjoin/reexec/testing (sub)package; it tells this package when we're in
// testing mode, and also passes coverage profiling-related test parameters
// to us. We need these parameters when re-executing child processes in
// order to allocate coverage profile data files to these children.
func EnableTesting(outputdir, coverprofile string) {
	TestingEnabled = true
	CoverageOutputDir = outputdir
	CoverageProfile = coverprofile
}

// TestingArgs returns additional testing arguments while under test;
// otherwise it returns an empty slice of arguments. Each call with coverage
// profiling enabled allocates a new child coverage profile data filename,
// so every re-executed child gets its own file to write to.
func TestingArgs() []string {
	testargs := []string{}
	if TestingEnabled {
		if CoverageProfile != "" {
			name := CoverageProfile +
				fmt.Sprintf("_%d", len(CoverageProfiles))
			CoverageProfiles = append(CoverageProfiles, name)
			testargs = append(testargs,
				"-test.coverprofile="+name)
			if CoverageOutputDir != "" {
				testargs = append(testargs,
					"-test.outputdir="+CoverageOutputDir)
			}
		}
		// Let's suppose for a moment that no sane developer will ever use
		// the following name for one of her/his tests ... except for "THEM"
		// :p
		testargs = append(testargs,
			"-test.run=nadazilchnixdairgendwoimnirvanavonbielefeld",
		)
	}
	return testargs
}
