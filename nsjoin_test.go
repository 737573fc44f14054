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

var _ = Describe("namespace switch status", func() {

	BeforeEach(func() {
		switchErr = nil
		DeferCleanup(func() {
			switchErr = nil
		})
	})

	It("signals no failure when nothing ever failed", func() {
		Expect(Status()).To(Succeed())
	})

	It("returns and records the first failure of a join attempt", func() {
		os.Setenv(orderEnvVar, "nsfoo")
		defer os.Unsetenv(orderEnvVar)
		err := JoinNamespaces()
		Expect(err).To(MatchError(MatchRegexp(
			`package nsjoin: unknown namespace type "nsfoo" in nsjoin_order`)))
		Expect(Status()).To(BeIdenticalTo(err))
		Expect(Status()).To(BeIdenticalTo(Status()))
	})

	It("keeps a previous failure in place after a later successful attempt", func() {
		os.Setenv(orderEnvVar, "nsfoo")
		defer os.Unsetenv(orderEnvVar)
		Expect(JoinNamespaces()).NotTo(Succeed())
		failure := Status()
		Expect(failure).To(HaveOccurred())
		os.Unsetenv(orderEnvVar)
		// Without any nsjoin_* references set this attempt succeeds, as
		// nothing gets scheduled for joining at all.
		Expect(JoinNamespaces()).To(Succeed())
		Expect(Status()).To(BeIdenticalTo(failure))
	})

})
