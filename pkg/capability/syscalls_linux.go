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

package capability

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// capHeader/capData mirror struct __user_cap_header_struct/__user_cap_data_struct
// from linux/capability.h (version 3, the only version the kernel has
// actually granted new capabilities under since 2.6.25).
type capHeader struct {
	version uint32
	pid     int32
}

type capData struct {
	effective   uint32
	permitted   uint32
	inheritable uint32
}

const linuxCapVersion3 = 0x20080522

var (
	lastCapOnce sync.Once
	lastCap     Cap = 63
)

// LastCap returns the highest capability number supported by the running
// kernel, read once from /proc/sys/kernel/cap_last_cap.
func LastCap() Cap {
	lastCapOnce.Do(func() {
		f, err := os.Open("/proc/sys/kernel/cap_last_cap")
		if err != nil {
			return
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		if scanner.Scan() {
			if n, err := strconv.Atoi(strings.TrimSpace(scanner.Text())); err == nil {
				lastCap = Cap(n)
			}
		}
	})
	return lastCap
}

func capget(hdr *capHeader, data *[2]capData) error {
	_, _, errno := unix.Syscall(unix.SYS_CAPGET, uintptr(unsafe.Pointer(hdr)), uintptr(unsafe.Pointer(&data[0])), 0)
	if errno != 0 {
		return errors.Wrap(errno, "capget")
	}
	return nil
}

func capset(hdr *capHeader, data *[2]capData) error {
	_, _, errno := unix.Syscall(unix.SYS_CAPSET, uintptr(unsafe.Pointer(hdr)), uintptr(unsafe.Pointer(&data[0])), 0)
	if errno != 0 {
		return errors.Wrap(errno, "capset")
	}
	return nil
}

// dropBounding removes a single capability from the calling thread's
// bounding set via prctl(PR_CAPBSET_DROP, cap). Requires CAP_SETPCAP.
func dropBounding(c Cap) error {
	return unix.Prctl(unix.PR_CAPBSET_DROP, uintptr(c), 0, 0, 0)
}

// readBounding checks whether a capability is still present in the
// calling thread's bounding set via prctl(PR_CAPBSET_READ, cap).
func readBounding(c Cap) (bool, error) {
	ret, err := unix.PrctlRetInt(unix.PR_CAPBSET_READ, uintptr(c), 0, 0, 0)
	if err != nil {
		return false, err
	}
	return ret == 1, nil
}
