package mountplan

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"

	"github.com/nestybox/sysbox-libs/enclave/internal/hardener"
	"github.com/nestybox/sysbox-libs/enclave/pkg/overlayutil"
)

// Execute runs every command in plan against the real filesystem, in
// order, stopping at the first failure. It is used both by the jailed
// child (executing its own plan directly) and by the privsep
// supervisor (executing commands received, one at a time, from the
// unprivileged worker) -- both of which run in the window between
// clone(2) and exec(2), so Execute never goes through afero.NewOsFs():
// every directive it applies is translated straight to a
// golang.org/x/sys/unix call.
func Execute(plan Plan) error {
	for _, cmd := range plan {
		if err := executeOneRaw(cmd); err != nil {
			return errors.Wrapf(err, "executing %s", cmd)
		}
	}
	return nil
}

func executeOneRaw(cmd Command) error {
	switch cmd.Kind() {
	case KindMount:
		return executeMount(cmd.Mount)
	case KindFile:
		return executeFileRaw(cmd.File)
	default:
		return executeSystemRaw(cmd.Sys)
	}
}

// ExecuteFs is Execute parameterized over the afero.Fs directory/file
// metadata operations (CreateDir, Chmod) run against -- an in-memory
// afero.NewMemMapFs() lets tests exercise the directive-to-syscall
// translation without touching a real filesystem or requiring root.
// Operations that need raw syscalls the afero.Fs interface doesn't
// expose (mounts, bind-mounted files) always go through
// golang.org/x/sys/unix regardless of which Fs is passed; symlinks on
// this path are created with os.Symlink, also outside the Fs.
func ExecuteFs(fs afero.Fs, plan Plan) error {
	for _, cmd := range plan {
		if err := executeOne(fs, cmd); err != nil {
			return errors.Wrapf(err, "executing %s", cmd)
		}
	}
	return nil
}

func executeOne(fs afero.Fs, cmd Command) error {
	switch cmd.Kind() {
	case KindMount:
		return executeMount(cmd.Mount)
	case KindFile:
		return executeFile(fs, cmd.File)
	default:
		return executeSystem(fs, cmd.Sys)
	}
}

func executeMount(op MountOp) error {
	switch m := op.(type) {
	case Bind:
		flags := uintptr(unix.MS_BIND | unix.MS_REC)
		if err := unix.Mount(m.Src, m.Dst, "", flags, ""); err != nil {
			return errors.Wrapf(err, "bind mount %s -> %s", m.Src, m.Dst)
		}
		remountFlags := uintptr(unix.MS_BIND | unix.MS_REMOUNT)
		if m.ReadOnly {
			remountFlags |= unix.MS_RDONLY
		}
		if !m.MountDev {
			remountFlags |= unix.MS_NODEV
		}
		if err := unix.Mount("", m.Dst, "", remountFlags, ""); err != nil {
			return errors.Wrapf(err, "remounting bind %s", m.Dst)
		}
		return nil

	case Overlay:
		spec := overlayutil.Spec{Lower: m.Lower}
		flags := uintptr(0)
		if m.Mode == OverlayReadWrite && m.Upper != "" {
			spec.Upper = m.Upper
			spec.Work = m.Work
		} else {
			flags |= unix.MS_RDONLY
		}
		data := overlayutil.BuildData(spec)
		if err := unix.Mount("overlay", m.Target, "overlay", flags, data); err != nil {
			return errors.Wrapf(err, "overlay mount at %s", m.Target)
		}
		return nil

	case Special:
		return executeSpecial(m)

	default:
		return errors.Errorf("unknown mount op %T", op)
	}
}

func executeSpecial(s Special) error {
	switch s.Kind {
	case SpecialProc:
		return wrapMount(unix.Mount("proc", s.Target, "proc", unix.MS_NOSUID|unix.MS_NOEXEC|unix.MS_NODEV, ""), "mounting proc at %s", s.Target)

	case SpecialDev:
		return wrapMount(unix.Mount("tmpfs", s.Target, "tmpfs", unix.MS_NOSUID, "mode=755"), "mounting dev tmpfs at %s", s.Target)

	case SpecialTmpfs:
		data := ""
		if s.HasSizeKb {
			data = appendOpt(data, "size="+kbOpt(s.SizeKb)+"k")
		}
		if s.HasMode {
			data = appendOpt(data, "mode="+modeOpt(s.Mode))
		}
		return wrapMount(unix.Mount("tmpfs", s.Target, "tmpfs", unix.MS_NOSUID|unix.MS_NODEV, data), "mounting tmpfs at %s", s.Target)

	case SpecialMqueue:
		return wrapMount(unix.Mount("mqueue", s.Target, "mqueue", 0, ""), "mounting mqueue at %s", s.Target)

	case SpecialOverlaySource:
		return nil

	default:
		return errors.Errorf("unknown special mount kind %d", s.Kind)
	}
}

// executeFileRaw is executeFile's production counterpart: no afero.Fs,
// no os.Stat/os.Symlink -- only unix.Mkdir/unix.Lstat/unix.Symlink, safe
// to run in the clone-to-exec window.
func executeFileRaw(op FileOp) error {
	switch f := op.(type) {
	case CreateDir:
		if err := mkdirAllRaw(f.Path, f.Mode); err != nil {
			return errors.Wrapf(err, "creating directory %s", f.Path)
		}
		return nil

	case CreateFile:
		fd, err := unix.Open(f.Dst, unix.O_CREAT|unix.O_WRONLY|unix.O_CLOEXEC, 0o644)
		if err != nil {
			return errors.Wrapf(err, "creating file %s", f.Dst)
		}
		return unix.Close(fd)

	case CreateBindFile:
		if err := unix.Lstat(f.Dst, &unix.Stat_t{}); err != nil && err == unix.ENOENT {
			fd, ferr := unix.Open(f.Dst, unix.O_CREAT|unix.O_WRONLY|unix.O_CLOEXEC, 0o644)
			if ferr != nil {
				return errors.Wrapf(ferr, "creating bind target %s", f.Dst)
			}
			unix.Close(fd)
		}
		flags := uintptr(unix.MS_BIND)
		if err := unix.Mount(f.Src, f.Dst, "", flags, ""); err != nil {
			return errors.Wrapf(err, "bind file %s -> %s", f.Src, f.Dst)
		}
		if f.ReadOnly {
			return hardener.Remount(f.Dst, unix.MS_BIND|unix.MS_RDONLY)
		}
		return nil

	case CreateSymlink:
		if err := unix.Symlink(f.Target, f.Link); err != nil {
			return errors.Wrapf(err, "symlink %s -> %s", f.Link, f.Target)
		}
		return nil

	case RemountReadOnly:
		return hardener.Remount(f.Path, unix.MS_RDONLY)

	default:
		return errors.Errorf("unknown file op %T", op)
	}
}

// executeSystemRaw is executeSystem's production counterpart.
func executeSystemRaw(op SystemOp) error {
	switch s := op.(type) {
	case SetHostname:
		if err := unix.Sethostname([]byte(s.Hostname)); err != nil {
			return errors.Wrapf(err, "sethostname(%s)", s.Hostname)
		}
		return nil

	case Chmod:
		if err := unix.Chmod(s.Path, s.Mode); err != nil {
			return errors.Wrapf(err, "chmod(%s, %#o)", s.Path, s.Mode)
		}
		return nil

	default:
		return errors.Errorf("unknown system op %T", op)
	}
}

// mkdirAllRaw is unix.Mkdir applied one path component at a time,
// ignoring EEXIST on every intermediate component -- the raw-syscall
// equivalent of os.MkdirAll/afero.Fs.MkdirAll, for use in the
// clone-to-exec window where neither is safe to call.
func mkdirAllRaw(path string, mode uint32) error {
	if path == "" || path == "/" {
		return nil
	}

	var built strings.Builder
	if strings.HasPrefix(path, "/") {
		built.WriteByte('/')
	}

	components := strings.Split(strings.Trim(path, "/"), "/")
	for _, c := range components {
		if c == "" {
			continue
		}
		built.WriteString(c)
		p := built.String()
		if err := unix.Mkdir(p, mode); err != nil && err != unix.EEXIST {
			return err
		}
		built.WriteByte('/')
	}
	return nil
}

func executeFile(fs afero.Fs, op FileOp) error {
	switch f := op.(type) {
	case CreateDir:
		if err := fs.MkdirAll(f.Path, os.FileMode(f.Mode)); err != nil {
			return errors.Wrapf(err, "creating directory %s", f.Path)
		}
		return nil

	case CreateFile:
		fd, err := unix.Open(f.Dst, unix.O_CREAT|unix.O_WRONLY|unix.O_CLOEXEC, 0o644)
		if err != nil {
			return errors.Wrapf(err, "creating file %s", f.Dst)
		}
		return unix.Close(fd)

	case CreateBindFile:
		if _, err := os.Stat(f.Dst); os.IsNotExist(err) {
			fd, err := unix.Open(f.Dst, unix.O_CREAT|unix.O_WRONLY|unix.O_CLOEXEC, 0o644)
			if err != nil {
				return errors.Wrapf(err, "creating bind target %s", f.Dst)
			}
			unix.Close(fd)
		}
		flags := uintptr(unix.MS_BIND)
		if err := unix.Mount(f.Src, f.Dst, "", flags, ""); err != nil {
			return errors.Wrapf(err, "bind file %s -> %s", f.Src, f.Dst)
		}
		if f.ReadOnly {
			return hardener.Remount(f.Dst, unix.MS_BIND|unix.MS_RDONLY)
		}
		return nil

	case CreateSymlink:
		if err := os.Symlink(f.Target, f.Link); err != nil {
			return errors.Wrapf(err, "symlink %s -> %s", f.Link, f.Target)
		}
		return nil

	case RemountReadOnly:
		return hardener.Remount(f.Path, unix.MS_RDONLY)

	default:
		return errors.Errorf("unknown file op %T", op)
	}
}

func executeSystem(fs afero.Fs, op SystemOp) error {
	switch s := op.(type) {
	case SetHostname:
		if err := unix.Sethostname([]byte(s.Hostname)); err != nil {
			return errors.Wrapf(err, "sethostname(%s)", s.Hostname)
		}
		return nil

	case Chmod:
		if err := fs.Chmod(s.Path, os.FileMode(s.Mode)); err != nil {
			return errors.Wrapf(err, "chmod(%s, %#o)", s.Path, s.Mode)
		}
		return nil

	default:
		return errors.Errorf("unknown system op %T", op)
	}
}

func wrapMount(err error, format, arg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, arg)
}

func appendOpt(existing, opt string) string {
	if existing == "" {
		return opt
	}
	return existing + "," + opt
}

func kbOpt(kb int) string {
	return strconv.FormatInt(int64(kb), 10)
}

func modeOpt(mode uint32) string {
	return "0" + strconv.FormatUint(uint64(mode), 8)
}
