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

// Package mountutil provides lightweight mount-table inspection:
// a fast device-id based IsMountPoint check and a full
// /proc/self/mountinfo parse for callers that need the mount options
// or filesystem type of a particular path.
package mountutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Info describes one line of /proc/<pid>/mountinfo.
type Info struct {
	Mountpoint string
	Fstype     string
	Source     string
	Options    []string
	Major      int
	Minor      int
}

// IsMountPoint quickly checks if path is a mount point by comparing
// the device ID of path against that of its parent. Fast, because it
// avoids reading and parsing mountinfo -- but it cannot tell a bind
// mount from its target apart, since device IDs are equal in that
// case. Use GetMounts + FindMount for that.
func IsMountPoint(path string) (bool, error) {
	if path == "/" {
		return true, nil
	}

	fileInfo, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("failed to stat path: %w", err)
	}

	parentInfo, err := os.Stat(filepath.Join(path, ".."))
	if err != nil {
		return false, fmt.Errorf("failed to stat parent path: %w", err)
	}

	fileStat, ok1 := fileInfo.Sys().(*syscall.Stat_t)
	parentStat, ok2 := parentInfo.Sys().(*syscall.Stat_t)
	if !ok1 || !ok2 {
		return false, fmt.Errorf("failed to retrieve Stat_t from file info")
	}

	return fileStat.Dev != parentStat.Dev, nil
}

// GetMounts parses /proc/self/mountinfo into a slice of Info.
func GetMounts() ([]*Info, error) {
	return parseMountTable("/proc/self/mountinfo")
}

// GetMountsPid parses /proc/<pid>/mountinfo into a slice of Info.
func GetMountsPid(pid int) ([]*Info, error) {
	return parseMountTable(fmt.Sprintf("/proc/%d/mountinfo", pid))
}

// FindMount reports whether mountpoint appears in mounts.
func FindMount(mountpoint string, mounts []*Info) bool {
	for _, m := range mounts {
		if m.Mountpoint == mountpoint {
			return true
		}
	}
	return false
}

// MountedWithFs reports whether mountpoint is mounted with filesystem
// type fs, per mounts.
func MountedWithFs(mountpoint, fs string, mounts []*Info) bool {
	for _, m := range mounts {
		if m.Mountpoint == mountpoint && m.Fstype == fs {
			return true
		}
	}
	return false
}

// parseMountTable parses the mountinfo(5) format described at
// proc(5): a variable number of fields up to a "-" separator, then the
// filesystem type, mount source, and super options.
func parseMountTable(path string) ([]*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var mounts []*Info
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		info, err := parseMountInfoLine(scanner.Text())
		if err != nil {
			return nil, err
		}
		if info != nil {
			mounts = append(mounts, info)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return mounts, nil
}

func parseMountInfoLine(line string) (*Info, error) {
	fields := strings.Fields(line)

	sep := -1
	for i, f := range fields {
		if f == "-" {
			sep = i
			break
		}
	}
	if sep < 0 || sep+3 >= len(fields) {
		return nil, fmt.Errorf("malformed mountinfo line: %q", line)
	}

	// fields[0]=mount ID, [1]=parent ID, [2]=major:minor, [3]=root,
	// [4]=mountpoint, [5]=mount options, [6..sep)=optional tags.
	if sep < 5 {
		return nil, fmt.Errorf("malformed mountinfo line: %q", line)
	}

	majorMinor := strings.SplitN(fields[2], ":", 2)
	if len(majorMinor) != 2 {
		return nil, fmt.Errorf("malformed major:minor in mountinfo line: %q", line)
	}
	major, err := strconv.Atoi(majorMinor[0])
	if err != nil {
		return nil, fmt.Errorf("malformed major in mountinfo line: %q", line)
	}
	minor, err := strconv.Atoi(majorMinor[1])
	if err != nil {
		return nil, fmt.Errorf("malformed minor in mountinfo line: %q", line)
	}

	return &Info{
		Mountpoint: fields[4],
		Fstype:     fields[sep+1],
		Source:     fields[sep+2],
		Options:    strings.Split(fields[sep+3], ","),
		Major:      major,
		Minor:      minor,
	}, nil
}
