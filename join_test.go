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

//go:build linux

package nsjoin

import (
	"os"

	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// setnsCall records a single invocation of the (stubbed) setns syscall.
type setnsCall struct {
	fd   int
	flag int
}

var _ = Describe("joining namespaces", func() {

	var calls []setnsCall

	BeforeEach(func() {
		calls = nil
		setns = func(fd int, nstype int) error {
			calls = append(calls, setnsCall{fd: fd, flag: nstype})
			return nil
		}
	})

	AfterEach(func() {
		setns = unix.Setns
	})

	nulls := func(order string) []joinEntry {
		entries, err := parseOrder(order, nullenv)
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
		return entries
	}

	It("switches using the pre-opened reference and closes it exactly once", func() {
		entries := nulls("!net")
		ref := entries[0].ref
		fd := int(ref.Fd())
		Expect(join(entries)).To(Succeed())
		Expect(calls).To(ConsistOf(setnsCall{fd: fd, flag: unix.CLONE_NEWNET}))
		Expect(entries[0].ref).To(BeNil())
		Expect(ref.Close()).To(MatchError(os.ErrClosed))
	})

	It("opens unmarked references only right before their switch", func() {
		entries := nulls("ipc")
		Expect(entries[0].ref).To(BeNil())
		Expect(join(entries)).To(Succeed())
		Expect(calls).To(HaveLen(1))
		Expect(calls[0].flag).To(Equal(unix.CLONE_NEWIPC))
	})

	It("aborts on an unopenable late reference, closing the remaining pre-opened ones", func() {
		entries := nulls("net,ipc,uts,!pid")
		entries[2].path = "/nonexisting-namespace-reference"
		straggler := entries[3].ref
		err := join(entries)
		Expect(err).To(MatchError(MatchRegexp(
			`invalid nsjoin_uts reference "/nonexisting-namespace-reference"`)))
		Expect(calls).To(HaveLen(2))
		Expect(calls[0].flag).To(Equal(unix.CLONE_NEWNET))
		Expect(calls[1].flag).To(Equal(unix.CLONE_NEWIPC))
		Expect(straggler.Close()).To(MatchError(os.ErrClosed))
	})

	It("aborts on a failed switch without attempting the remaining ones", func() {
		setns = func(fd int, nstype int) error {
			calls = append(calls, setnsCall{fd: fd, flag: nstype})
			if nstype == unix.CLONE_NEWUTS {
				return unix.EPERM
			}
			return nil
		}
		entries := nulls("!net,!ipc,!uts,!pid")
		failed := entries[2].ref
		straggler := entries[3].ref
		err := join(entries)
		Expect(err).To(MatchError(MatchRegexp(
			`cannot join uts using reference "/dev/null"`)))
		Expect(err).To(MatchError(unix.EPERM))
		Expect(calls).To(HaveLen(3))
		Expect(failed.Close()).To(MatchError(os.ErrClosed))
		Expect(straggler.Close()).To(MatchError(os.ErrClosed))
	})

})
