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
	"strings"
)

// preopenMarker prefixes a namespace type name in the order specification
// when its path reference is to be opened already during parsing, before
// any namespace switch takes place.
const preopenMarker = "!"

// joinEntry schedules a single namespace switch: the type of namespace to
// switch into, the path referencing the namespace in the filesystem, and
// optionally the already opened path reference. A nil ref means: open the
// path only right before switching into this namespace, so the path gets
// resolved in the namespace context active at that moment.
type joinEntry struct {
	ns   *nstype
	path string
	ref  *os.File
}

// parseOrder validates an order specification and turns it into the
// sequence of namespace switches to carry out. An empty order specification
// selects the default order. The environment is consulted through getenv
// for the individual namespace references; namespace types without a
// reference simply aren't requested and get skipped. Entries marked for
// pre-opening already carry their opened reference on return. On any error,
// all references opened so far have been closed again and the returned
// sequence is empty.
func parseOrder(order string, getenv func(string) string) ([]joinEntry, error) {
	if order == "" {
		order = defaultOrder
	}
	entries := make([]joinEntry, 0, len(namespaces))
	var scheduled [len(namespaces)]bool
	for _, token := range strings.Split(order, ",") {
		name := strings.TrimPrefix(token, preopenMarker)
		idx := typeIndex(name)
		if idx < 0 {
			closeRefs(entries)
			return nil, fmt.Errorf("unknown namespace type %q in %s",
				token, orderEnvVar)
		}
		if scheduled[idx] {
			closeRefs(entries)
			return nil, fmt.Errorf("duplicate namespace type %q in %s",
				name, orderEnvVar)
		}
		scheduled[idx] = true
		ns := &namespaces[idx]
		path := getenv(ns.envvar())
		if path == "" {
			continue
		}
		entry := joinEntry{ns: ns, path: path}
		if strings.HasPrefix(token, preopenMarker) {
			ref, err := os.Open(path)
			if err != nil {
				closeRefs(entries)
				return nil, fmt.Errorf("invalid %s reference %q: %w",
					ns.envvar(), path, err)
			}
			entry.ref = ref
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// closeRefs releases all still pre-opened namespace references in the given
// sequence of scheduled switches.
func closeRefs(entries []joinEntry) {
	for i := range entries {
		if entries[i].ref != nil {
			entries[i].ref.Close()
			entries[i].ref = nil
		}
	}
}
