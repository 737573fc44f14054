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
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// setns is the kernel namespace switch; it is a package variable so the
// joiner's sequencing and abort behavior can be tested without any
// privileges.
var setns = unix.Setns

// join switches into the scheduled namespaces, in exactly the given
// sequence. References not opened during parsing are opened only right
// before their switch. Each reference is closed immediately after its
// switch attempt: after a successful switch our own namespace membership
// keeps the namespace alive, and we don't want open fds lying around
// anyway. The first failure aborts the remaining sequence; there is no
// rollback, as several namespace switches are irreversible.
func join(entries []joinEntry) error {
	for i := range entries {
		entry := &entries[i]
		ref := entry.ref
		if ref == nil {
			var err error
			ref, err = os.Open(entry.path)
			if err != nil {
				closeRefs(entries[i+1:])
				return fmt.Errorf("invalid %s reference %q: %w",
					entry.ns.envvar(), entry.path, err)
			}
		}
		err := setns(int(ref.Fd()), entry.ns.flag)
		ref.Close()
		entry.ref = nil
		if err != nil {
			closeRefs(entries[i+1:])
			return fmt.Errorf("cannot join %s using reference %q: %w",
				entry.ns.name, entry.path, err)
		}
	}
	return nil
}
