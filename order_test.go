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

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// noenv simulates an environment without any nsjoin_* references set.
func noenv(string) string { return "" }

// nullenv references /dev/null for every namespace type, which can always be
// opened, even without any privileges.
func nullenv(string) string { return "/dev/null" }

var _ = Describe("parsing the join order", func() {

	It("skips namespace types without a reference", func() {
		entries, err := parseOrder("", noenv)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})

	It("rejects unknown namespace types", func() {
		entries, err := parseOrder("net,nsfoo", noenv)
		Expect(err).To(MatchError(
			MatchRegexp(`unknown namespace type "nsfoo" in nsjoin_order`)))
		Expect(entries).To(BeEmpty())
	})

	It("rejects duplicate namespace types, even unreferenced ones", func() {
		entries, err := parseOrder("net,net", noenv)
		Expect(err).To(MatchError(
			MatchRegexp(`duplicate namespace type "net" in nsjoin_order`)))
		Expect(entries).To(BeEmpty())

		entries, err = parseOrder("!ipc,net,ipc", nullenv)
		Expect(err).To(MatchError(
			MatchRegexp(`duplicate namespace type "ipc" in nsjoin_order`)))
		Expect(entries).To(BeEmpty())
	})

	It("schedules the default order with all references pre-opened", func() {
		entries, err := parseOrder("", nullenv)
		Expect(err).NotTo(HaveOccurred())
		names := []string{}
		for i := range entries {
			names = append(names, entries[i].ns.name)
			Expect(entries[i].ref).NotTo(BeNil(),
				"namespace type %s", entries[i].ns.name)
		}
		Expect(names).To(Equal(
			[]string{"user", "mnt", "cgroup", "ipc", "net", "pid", "uts"}))
		closeRefs(entries)
		for i := range entries {
			Expect(entries[i].ref).To(BeNil())
		}
	})

	It("pre-opens references only when marked", func() {
		entries, err := parseOrder("!net,ipc", nullenv)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].ns.name).To(Equal("net"))
		Expect(entries[0].ref).NotTo(BeNil())
		Expect(entries[1].ns.name).To(Equal("ipc"))
		Expect(entries[1].ref).To(BeNil())
		closeRefs(entries)
	})

	It("rejects unopenable pre-opened references", func() {
		entries, err := parseOrder("!net", func(envvar string) string {
			return "/nonexisting-namespace-reference"
		})
		Expect(err).To(MatchError(MatchRegexp(
			`invalid nsjoin_net reference "/nonexisting-namespace-reference"`)))
		Expect(err).To(MatchError(os.ErrNotExist))
		Expect(entries).To(BeEmpty())
	})

})
