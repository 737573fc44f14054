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

import "golang.org/x/sys/unix"

// envPrefix is the common prefix of all environment variables understood by
// this package, such as "nsjoin_net". The prefix avoids name conflicts with
// common environment variable names such as "pid", et cetera.
const envPrefix = "nsjoin_"

// orderEnvVar names the environment variable optionally specifying the
// sequence in which to join the requested namespaces, as well as when to
// open their path references.
const orderEnvVar = envPrefix + "order"

// defaultOrder joins the user namespace first, because losing privileges
// too early might block opening the remaining namespace references, and the
// pid namespace last, because it anyway applies only to our children.
const defaultOrder = "!user,!mnt,!cgroup,!ipc,!net,!pid,!uts"

// nstype describes a specific type of Linux kernel namespace supported by
// nsjoin.
type nstype struct {
	name string // symbolic namespace type name, such as "mnt", "net", ...
	flag int    // CLONE_NEWxxx constant for this type of namespace.
}

// envvar returns the name of the environment variable referencing a
// namespace of this type in the filesystem.
func (t *nstype) envvar() string { return envPrefix + t.name }

// namespaces is the fixed catalog of namespace types which can be joined.
// Please note that joining a pid namespace never applies to our own
// process, but only to our children.
var namespaces = [...]nstype{
	{"cgroup", unix.CLONE_NEWCGROUP},
	{"ipc", unix.CLONE_NEWIPC},
	{"mnt", unix.CLONE_NEWNS},
	{"net", unix.CLONE_NEWNET},
	{"pid", unix.CLONE_NEWPID},
	{"user", unix.CLONE_NEWUSER},
	{"uts", unix.CLONE_NEWUTS},
}

// typeIndex returns the index of the named namespace type in the catalog,
// or -1 if the name doesn't denote a supported namespace type.
func typeIndex(name string) int {
	for idx := range namespaces {
		if namespaces[idx].name == name {
			return idx
		}
	}
	return -1
}
