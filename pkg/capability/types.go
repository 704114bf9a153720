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

// Package capability provides low-level access to POSIX capability sets
// (effective, permitted, inheritable, bounding, ambient) and a
// higher-level Manager used to configure them for a sandboxed launch.
package capability

// Type identifies one of the five Linux capability sets.
type Type uint

const (
	Effective Type = 1 << iota
	Permitted
	Inheritable
	Bounding
	Ambient
)

func (t Type) String() string {
	switch t {
	case Effective:
		return "effective"
	case Permitted:
		return "permitted"
	case Inheritable:
		return "inheritable"
	case Bounding:
		return "bounding"
	case Ambient:
		return "ambient"
	}
	return "unknown"
}

// Cap is a single Linux capability number, as defined by
// include/uapi/linux/capability.h.
type Cap int

// The subset of capabilities this launcher has any occasion to name.
// Other capability numbers are still manipulable through Manager (it
// iterates 0..lastCap), they just have no symbolic constant here.
const (
	CAP_CHOWN            = Cap(0)
	CAP_DAC_OVERRIDE     = Cap(1)
	CAP_DAC_READ_SEARCH  = Cap(2)
	CAP_FOWNER           = Cap(3)
	CAP_FSETID           = Cap(4)
	CAP_KILL             = Cap(5)
	CAP_SETGID           = Cap(6)
	CAP_SETUID           = Cap(7)
	CAP_SETPCAP          = Cap(8)
	CAP_NET_BIND_SERVICE = Cap(10)
	CAP_NET_BROADCAST    = Cap(11)
	CAP_NET_ADMIN        = Cap(12)
	CAP_NET_RAW          = Cap(13)
	CAP_IPC_LOCK         = Cap(14)
	CAP_IPC_OWNER        = Cap(15)
	CAP_SYS_MODULE       = Cap(16)
	CAP_SYS_RAWIO        = Cap(17)
	CAP_SYS_CHROOT       = Cap(18)
	CAP_SYS_PTRACE       = Cap(19)
	CAP_SYS_PACCT        = Cap(20)
	CAP_SYS_ADMIN        = Cap(21)
	CAP_SYS_BOOT         = Cap(22)
	CAP_SYS_NICE         = Cap(23)
	CAP_SYS_RESOURCE     = Cap(24)
	CAP_SYS_TIME         = Cap(25)
	CAP_SYS_TTY_CONFIG   = Cap(26)
	CAP_MKNOD            = Cap(27)
	CAP_AUDIT_WRITE      = Cap(29)
	CAP_AUDIT_CONTROL    = Cap(30)
	CAP_SETFCAP          = Cap(31)
)

func (c Cap) String() string {
	if name, ok := capNames[c]; ok {
		return name
	}
	return "unknown"
}

var capNames = map[Cap]string{
	CAP_CHOWN:            "chown",
	CAP_DAC_OVERRIDE:     "dac_override",
	CAP_DAC_READ_SEARCH:  "dac_read_search",
	CAP_FOWNER:           "fowner",
	CAP_FSETID:           "fsetid",
	CAP_KILL:             "kill",
	CAP_SETGID:           "setgid",
	CAP_SETUID:           "setuid",
	CAP_SETPCAP:          "setpcap",
	CAP_NET_BIND_SERVICE: "net_bind_service",
	CAP_NET_BROADCAST:    "net_broadcast",
	CAP_NET_ADMIN:        "net_admin",
	CAP_NET_RAW:          "net_raw",
	CAP_IPC_LOCK:         "ipc_lock",
	CAP_IPC_OWNER:        "ipc_owner",
	CAP_SYS_MODULE:       "sys_module",
	CAP_SYS_RAWIO:        "sys_rawio",
	CAP_SYS_CHROOT:       "sys_chroot",
	CAP_SYS_PTRACE:       "sys_ptrace",
	CAP_SYS_PACCT:        "sys_pacct",
	CAP_SYS_ADMIN:        "sys_admin",
	CAP_SYS_BOOT:         "sys_boot",
	CAP_SYS_NICE:         "sys_nice",
	CAP_SYS_RESOURCE:     "sys_resource",
	CAP_SYS_TIME:         "sys_time",
	CAP_SYS_TTY_CONFIG:   "sys_tty_config",
	CAP_MKNOD:            "mknod",
	CAP_AUDIT_WRITE:      "audit_write",
	CAP_AUDIT_CONTROL:    "audit_control",
	CAP_SETFCAP:          "setfcap",
}
