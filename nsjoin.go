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

import "os"

// NamespaceSwitchError reports unsuccessful namespace switching during a
// join attempt.
type NamespaceSwitchError struct {
	details string
}

// Error returns a description of the failure causing the namespace
// switching to abort.
func (e *NamespaceSwitchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.details
}

// switchErr keeps the first failure of the most recent failed join attempt,
// for later inspection through Status().
var switchErr *NamespaceSwitchError

// JoinNamespaces joins this process to the already existing namespaces
// referenced by the nsjoin_* environment variables, in the sequence
// optionally specified in nsjoin_order. It returns nil if all requested
// namespaces were joined. The first failure aborts the remaining attempt,
// without rolling back any switches already done; the failure is returned
// as well as recorded for Status(). A successful attempt leaves any
// previously recorded failure in place, so consult Status() only after an
// attempt signalled failure.
//
// The calling process must still be single-threaded while switching the
// mount or user namespace, as the kernel refuses these switches for
// multi-threaded processes. JoinNamespaces cannot enforce this; the caller
// is responsible for invoking it before spinning up any concurrency.
func JoinNamespaces() error {
	entries, err := parseOrder(os.Getenv(orderEnvVar), os.Getenv)
	if err == nil {
		err = join(entries)
	}
	if err != nil {
		switchErr = &NamespaceSwitchError{details: "package nsjoin: " + err.Error()}
		return switchErr
	}
	return nil
}

// Status returns nil if no join attempt ever failed; otherwise, it returns
// a NamespaceSwitchError describing the most recent failure.
func Status() error {
	if switchErr == nil {
		return nil
	}
	return switchErr
}
