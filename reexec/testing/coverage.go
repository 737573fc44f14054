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

package testing

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Testing-related CLI arguments picked up from os.Args, which are of
// relevance to coverage profile data handling.
var (
	outputDir    string // "-test.outputdir"
	coverProfile string // "-test.coverprofile"
)

// parseCoverageArgs gathers the output directory and cover profile file
// from the CLI arguments, stopping at an "-args"/"--args" separator.
func parseCoverageArgs(args []string) {
	for idx := 0; idx < len(args); idx++ {
		arg := args[idx]
		if strings.HasPrefix(arg, "-test.outputdir=") {
			outputDir = strings.SplitN(arg, "=", 2)[1]
		} else if strings.HasPrefix(arg, "-test.coverprofile=") {
			coverProfile = strings.SplitN(arg, "=", 2)[1]
		} else if arg == "-args" || arg == "--args" {
			break
		}
	}
}

// toOutputDir is a Linux-only variant of testing's toOutputDir: it returns
// the specified filename relocated, if required, to outputDir.
func toOutputDir(path string) string {
	if outputDir == "" || os.IsPathSeparator(path[0]) {
		return path
	}
	// The output directory path might be relative or absolute, but we don't
	// care here.
	return fmt.Sprintf("%s%c%s", outputDir, os.PathSeparator, path)
}

// mergeAndReportCoverages merges the coverage profile data files written by
// re-executed child processes into the main coverage profile data file,
// rewriting the latter.
func mergeAndReportCoverages(maincov string, childcovs []string) {
	sum := newCovProfile()
	mergeCovFile(maincov, sum)
	mergeWithCoverProfileAndReport(sum, childcovs, maincov)
}

// mergeWithCoverProfileAndReport merges the specified coverage profile data
// files into an already loaded coverage profile, finally writing the result
// into the named coverage profile data file.
func mergeWithCoverProfileAndReport(sum *covProfile, merges []string, coverprofile string) {
	for _, mergecov := range merges {
		mergeCovFile(mergecov, sum)
	}
	reportCoverage(toOutputDir(coverprofile), sum)
}

// reportCoverage writes coverage profile data in its textual format,
// sorting the sources so the output is reproducible.
func reportCoverage(path string, sum *covProfile) {
	f, err := os.Create(path)
	if err != nil {
		panic(fmt.Sprintf(
			"cannot write merged coverage profile data to %q: %s",
			path, err.Error()))
	}
	defer f.Close()
	fmt.Fprintln(f, "mode: "+sum.mode)
	sources := make([]string, 0, len(sum.sources))
	for srcname := range sum.sources {
		sources = append(sources, srcname)
	}
	sort.Strings(sources)
	for _, srcname := range sources {
		for _, b := range sum.sources[srcname].blocks {
			fmt.Fprintf(f, "%s:%d.%d,%d.%d %d %d\n",
				srcname, b.startLine, b.startCol, b.endLine, b.endCol,
				b.stmts, b.count)
		}
	}
}
