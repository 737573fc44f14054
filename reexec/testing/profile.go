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
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
)

// covProfile represents the coverage profile data of one or several
// coverage profile data files merged together.
type covProfile struct {
	mode    string // mode of coverage profiling: "atomic", "count", or "set".
	sources map[string]*covSource
}

// newCovProfile returns a new and correctly initialized covProfile.
func newCovProfile() *covProfile {
	return &covProfile{sources: map[string]*covSource{}}
}

// covSource represents the coverage blocks of a single source file.
type covSource struct {
	blocks []covBlock
}

// covBlock represents a single block of coverage profiling data.
type covBlock struct {
	startLine uint32 // line number for block start.
	startCol  uint16 // column number for block start.
	endLine   uint32 // line number for block end.
	endCol    uint16 // column number for block end.
	stmts     uint16 // number of statements included in this block.
	count     uint32 // number of times this block was executed.
}

// modeRe specifies the format of the first "mode:" text line of a coverage
// profile data file.
var modeRe = regexp.MustCompile(`^mode: ([[:alpha:]]+)$`)

// blockRe specifies the format of the block text lines in coverage profile
// data files.
var blockRe = regexp.MustCompile(`^(.+):([0-9]+).([0-9]+),([0-9]+).([0-9]+) ([0-9]+) ([0-9]+)$`)

// mergeCovFile reads the coverage profile data file specified in path and
// merges it into the summary coverage profile sum. A missing or empty file
// is silently skipped, as a re-execution might not have written any
// coverage profile data; any other problem panics, as it renders the whole
// coverage report unusable.
func mergeCovFile(path string, sum *covProfile) {
	cp := loadCovFile(path)
	if cp == nil {
		return
	}
	if sum.mode == "" {
		sum.mode = cp.mode
	} else if cp.mode != sum.mode {
		panic(fmt.Sprintf("expected mode %q, got mode %q", sum.mode, cp.mode))
	}
	mergeCov(sum, cp)
}

// loadCovFile reads a single coverage profile data file, returning nil for
// missing or empty files.
func loadCovFile(path string) *covProfile {
	f, err := os.Open(toOutputDir(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		panic(fmt.Sprintf(
			"unable to read coverage profile data file %q: %s",
			toOutputDir(path), err.Error()))
	}
	defer f.Close()
	scan := bufio.NewScanner(f)
	if !scan.Scan() {
		if err := scan.Err(); err != nil {
			panic(fmt.Sprintf(
				"unable to read coverage profile data file %q: %s",
				toOutputDir(path), err.Error()))
		}
		return nil
	}
	cp := newCovProfile()
	// The first line of a coverage profile data file gives the mode how
	// coverage data was gathered; either "atomic", "count", or "set".
	line := scan.Text()
	m := modeRe.FindStringSubmatch(line)
	if m == nil {
		panic(fmt.Sprintf(
			"line %q doesn't match expected mode: line format", line))
	}
	cp.mode = m[1]
	// The remaining lines contain coverage profile block data. Go's
	// testing/coverage.go writes the coverage block data for the same
	// source file continuously (instead of scattering it around), so we
	// cache the most recently seen source. The blocks themselves are not
	// sorted, though.
	var srcname string
	var source *covSource
	for scan.Scan() {
		line = scan.Text()
		m := blockRe.FindStringSubmatch(line)
		if m == nil {
			panic(fmt.Sprintf(
				"line %q doesn't match expected block line format", line))
		}
		if m[1] != srcname {
			srcname = m[1]
			source = &covSource{}
			cp.sources[srcname] = source
		}
		source.blocks = append(source.blocks, covBlock{
			startLine: toUint32(m[2]),
			startCol:  toUint16(m[3]),
			endLine:   toUint32(m[4]),
			endCol:    toUint16(m[5]),
			stmts:     toUint16(m[6]),
			count:     toUint32(m[7]),
		})
	}
	return cp
}

// mergeCov merges the coverage profile cp into the summary coverage profile
// sum; both profiles must be of the same mode.
func mergeCov(sum, cp *covProfile) {
	setmode := sum.mode == "set"
	for srcname, source := range cp.sources {
		// The blocks within one source aren't necessarily sorted, so sort
		// them first to keep the merge and the final report deterministic.
		sort.Slice(source.blocks, func(i, j int) bool {
			bi, bj := source.blocks[i], source.blocks[j]
			return bi.startLine < bj.startLine ||
				(bi.startLine == bj.startLine && bi.startCol < bj.startCol)
		})
		sumsource, ok := sum.sources[srcname]
		if !ok {
			sumsource = &covSource{}
			sum.sources[srcname] = sumsource
		}
		sumblkidx := 0
	nextBlock:
		for _, block := range source.blocks {
			for sumblkidx < len(sumsource.blocks) {
				sumblock := &sumsource.blocks[sumblkidx]
				sumblkidx++ // no block appears twice, so always advance.
				if sumblock.startLine == block.startLine &&
					sumblock.startCol == block.startCol &&
					sumblock.endLine == block.endLine &&
					sumblock.endCol == block.endCol {
					if setmode {
						sumblock.count |= block.count
					} else {
						sumblock.count += block.count
					}
					continue nextBlock
				}
			}
			// No matching block found, append it. The coverage profile data
			// files of parent and children stem from runs on the same
			// snapshot of sources, so they contain the same blocks; with
			// the blocks sorted, appending keeps the sorting order.
			sumsource.blocks = append(sumsource.blocks, block)
		}
	}
}

// toUint32 converts a textual int value into its binary uint32
// representation, panicking on invalid input.
func toUint32(s string) uint32 {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		panic(err.Error())
	}
	return uint32(v)
}

// toUint16 converts a textual int value into its binary uint16
// representation, panicking on invalid input.
func toUint16(s string) uint16 {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		panic(err.Error())
	}
	return uint16(v)
}
