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
	"os"
	"sync/atomic"
	gotesting "testing"
	_ "unsafe" // needed in order to use "go:linkname".

	"github.com/nsjoin/nsjoin/reexec/internal/testsupport"
)

// In order to get complete coverage of our M.Run() during our own tests, we
// have to resort to dirty tricks by accessing the package private
// testing.cover variable which contains the complete coverage profile data
// gathered.

//go:linkname cover testing.cover
var cover gotesting.Cover

// covProfileFromTestingCover returns the profile data from testing.cover,
// but in our own coverage profile format.
func covProfileFromTestingCover() *covProfile {
	cp := newCovProfile()
	cp.mode = cover.Mode
	var count uint32
	for sourcename, counts := range cover.Counters {
		source := &covSource{
			blocks: make([]covBlock, len(counts)),
		}
		cp.sources[sourcename] = source
		blocks := cover.Blocks[sourcename]
		for idx := range counts {
			count = atomic.LoadUint32(&counts[idx])
			source.blocks[idx] = covBlock{
				startLine: blocks[idx].Line0,
				startCol:  blocks[idx].Col0,
				endLine:   blocks[idx].Line1,
				endCol:    blocks[idx].Col1,
				stmts:     blocks[idx].Stmts,
				count:     count,
			}
		}
	}
	return cp
}

// TestMainWithCoverage is only for this module's own testing, in order to
// gather "more complete" coverage profile data including our M.Run()/M.run()
// methods.
//
// We achieve this with an unfortunate hack: we update the already written
// coverage data after the fact, that is, after mm.run() (or its public
// mm.Run() facade) has called gotesting.M.Run() which in turn writes the
// coverage profile data. This way, we can also get coverage of the parts of
// our M.run() which run after gotesting.M.Run().
func TestMainWithCoverage(m *gotesting.M) {
	mm := &M{M: m, skipCleanup: true}
	exitcode, reexeced := mm.run()
	if coverProfile != "" {
		// Take the final coverage profile data as our starting point,
		// ignoring whatever mm.run() wrote to the final coverage file. We
		// need to write a new version of it with the most recent coverage
		// profile data.
		cp := covProfileFromTestingCover()
		var merges []string
		if !reexeced {
			merges = testsupport.CoverageProfiles
		}
		mergeWithCoverProfileAndReport(cp, merges, coverProfile)
		for _, coverprof := range merges {
			_ = os.Remove(toOutputDir(coverprof))
		}
	}
	os.Exit(exitcode)
}
