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

package nsjoin_test

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/nsjoin/nsjoin/reexec"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("switching namespaces", func() {

	It("aborts re-execution for an invalid namespace reference", func() {
		var nsids map[string]string
		Expect(reexec.RunReexecAction(
			"namespaces",
			reexec.Namespaces([]reexec.Namespace{{Type: "net", Path: "/foo"}}),
			reexec.Result(&nsids),
		)).To(MatchError(MatchRegexp(`invalid nsjoin_net reference "/foo"`)))
	})

	It("joins the namespaces of another process", func() {
		if os.Geteuid() != 0 {
			Skip("needs root")
		}
		// Start a second copy of ourselves, which only runs the sleeping
		// action, but inside its own fresh set of network, IPC, and UTS
		// namespaces.
		sleepy := exec.Command("/proc/self/exe")
		sleepy.Env = append(os.Environ(), "nsjoin_reexec_action=sleepingunbeauty")
		sleepy.SysProcAttr = &syscall.SysProcAttr{
			Cloneflags: syscall.CLONE_NEWNET | syscall.CLONE_NEWIPC | syscall.CLONE_NEWUTS,
		}
		Expect(sleepy.Start()).To(Succeed())
		defer func() {
			_ = sleepy.Process.Kill()
			_, _ = sleepy.Process.Wait()
		}()
		sleepypid := sleepy.Process.Pid
		ownids := map[string]string{}
		sleepyids := map[string]string{}
		for _, nstype := range []string{"net", "ipc", "uts"} {
			nsid, err := os.Readlink("/proc/self/ns/" + nstype)
			Expect(err).NotTo(HaveOccurred())
			ownids[nstype] = nsid
			nsid, err = os.Readlink(fmt.Sprintf("/proc/%d/ns/%s", sleepypid, nstype))
			Expect(err).NotTo(HaveOccurred())
			sleepyids[nstype] = nsid
			Expect(sleepyids[nstype]).NotTo(Equal(ownids[nstype]),
				"sleeping child should be in its own %s namespace", nstype)
		}
		// Now re-execute yet another copy of ourselves, this time joining it
		// to the sleeping child's namespaces and asking it which namespaces
		// its action thread then finds itself attached to. We stay away from
		// the mount and user namespaces here, as our multi-threaded children
		// can never join those.
		namespaces := []reexec.Namespace{}
		for _, nstype := range []string{"net", "ipc", "uts"} {
			namespaces = append(namespaces, reexec.Namespace{
				Type: nstype,
				Path: fmt.Sprintf("/proc/%d/ns/%s", sleepypid, nstype),
			})
		}
		var nsids map[string]string
		Expect(reexec.RunReexecAction(
			"namespaces",
			reexec.Namespaces(namespaces),
			reexec.Result(&nsids),
		)).To(Succeed())
		for _, nstype := range []string{"net", "ipc", "uts"} {
			Expect(nsids[nstype]).To(Equal(sleepyids[nstype]),
				"joined child should be in the sleeping child's %s namespace", nstype)
		}
	})

})
