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

// nsrun demonstrates the nsjoin/reexec package: it re-executes itself into
// (some of) the namespaces of a target process and then reports the
// namespaces its re-executed child actually ended up attached to.
//
// Run it as root against some container process, such as:
//
//	sudo nsrun --pid $(pidof someprocess)
//
// Without a --pid, it targets its own namespaces, which still demonstrates
// the re-execution machinery, albeit in a rather unspectacular way.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/nsjoin/nsjoin/reexec"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

// nstypes lists all namespace type names nsrun knows how to report on.
var nstypes = []string{"cgroup", "ipc", "mnt", "net", "pid", "user", "uts"}

func init() {
	// The re-executed child ends up here after its namespace switches: it
	// reads the namespace links of its own action thread and reports them
	// back to the parent as JSON.
	reexec.Register("discover", func() {
		nsids := map[string]string{}
		for _, nstype := range nstypes {
			nsid, err := os.Readlink("/proc/thread-self/ns/" + nstype)
			if err != nil {
				panic(err)
			}
			nsids[nstype] = nsid
		}
		if err := json.NewEncoder(os.Stdout).Encode(nsids); err != nil {
			panic(err)
		}
	})
}

func main() {
	// When we're the re-executed child, this never returns but runs the
	// scheduled action instead.
	reexec.CheckAction()

	app := cli.NewApp()
	app.Name = "nsrun"
	app.Usage = "re-execute into the namespaces of another process"
	app.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "pid",
			Usage: "PID of the target process whose namespaces to join",
			Value: os.Getpid(),
		},
		cli.StringSliceFlag{
			Name:  "ns",
			Usage: "namespace type(s) to join; prefix with '!' to pre-open",
			Value: &cli.StringSlice{"net", "ipc", "uts"},
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug logging",
		},
	}
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func run(ctx *cli.Context) error {
	if ctx.Bool("debug") {
		logrus.SetLevel(logrus.DebugLevel)
	}
	pid := ctx.Int("pid")
	namespaces := []reexec.Namespace{}
	for _, nstype := range ctx.StringSlice("ns") {
		path := fmt.Sprintf("/proc/%d/ns/%s", pid, strings.TrimPrefix(nstype, "!"))
		logrus.Debugf("scheduling switch into %s namespace at %s", nstype, path)
		namespaces = append(namespaces, reexec.Namespace{
			Type: nstype,
			Path: path,
		})
	}
	var nsids map[string]string
	if err := reexec.RunReexecAction(
		"discover",
		reexec.Namespaces(namespaces),
		reexec.Result(&nsids),
	); err != nil {
		return fmt.Errorf("cannot discover namespaces of PID %d: %w", pid, err)
	}
	joined := make([]string, 0, len(nsids))
	for nstype := range nsids {
		joined = append(joined, nstype)
	}
	sort.Strings(joined)
	for _, nstype := range joined {
		fmt.Printf("%-6s %s\n", nstype, nsids[nstype])
	}
	return nil
}
