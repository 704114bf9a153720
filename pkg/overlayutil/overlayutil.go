//
// Copyright 2020 - 2024 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package overlayutil builds the mount(2) data string for an
// overlayfs mount from a set of lower directories plus an optional
// upper/work pair, deduplicating superblock options the way a
// hand-written comma-joined string would not.
package overlayutil

import (
	"strings"

	mapset "github.com/deckarep/golang-set"
)

// properMntOpts is the set of superblock options that belong on the
// generic mount(2) flags word rather than in overlayfs's own data
// string (mirrors the split the kernel's mount helper performs).
var properMntOpts = mapset.NewSetFromSlice([]interface{}{
	"ro", "rw", "nodev", "noexec", "nosuid", "noatime", "nodiratime", "relatime", "strictatime", "sync",
})

// Spec describes one overlayfs mount to build data for.
type Spec struct {
	Lower []string
	Upper string
	Work  string
	Opts  []string
}

// BuildData renders the overlayfs mount data string: lowerdir (colon
// joined; per the kernel's overlayfs rules the first entry is the top
// layer, so earlier entries shadow later ones), plus
// upperdir/workdir when Upper is set, plus any extra options that are
// not themselves generic superblock flags.
func BuildData(s Spec) string {
	var parts []string
	parts = append(parts, "lowerdir="+strings.Join(s.Lower, ":"))

	if s.Upper != "" {
		parts = append(parts, "upperdir="+s.Upper, "workdir="+s.Work)
	}

	extra := extraOpts(s.Opts)
	parts = append(parts, extra...)

	return strings.Join(parts, ",")
}

// extraOpts returns opts with anything that belongs on the generic
// mount flags word (ro, nodev, noatime, ...) removed, deduplicated via
// a set so a caller that accidentally passed the same option twice
// does not end up with "index=on,index=on" in the data string.
func extraOpts(opts []string) []string {
	set := mapset.NewSet()
	for _, o := range opts {
		if !properMntOpts.Contains(o) {
			set.Add(o)
		}
	}

	out := make([]string, 0, set.Cardinality())
	for v := range set.Iter() {
		out = append(out, v.(string))
	}
	return out
}

// IsReadOnly reports whether s describes a read-only overlay, which is
// the case exactly when it has no upper directory; Opts is not
// consulted, so an "ro" option alone does not make it read-only.
func IsReadOnly(s Spec) bool {
	return s.Upper == ""
}
