package mountplan

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Wire tags for each MountOp/FileOp/SystemOp variant. Stable across
// versions of this module: the privsep channel never crosses a host,
// but a supervisor and worker built from different binaries during a
// rolling upgrade still need to agree on the wire format.
const (
	tagBind uint8 = iota
	tagOverlay
	tagSpecial
	tagCreateDir
	tagCreateFile
	tagCreateBindFile
	tagCreateSymlink
	tagRemountReadOnly
	tagSetHostname
	tagChmod
)

// Encode renders a single Command as a self-describing binary message:
// a one-byte tag followed by its fields in declaration order, with
// length-prefixed (uint32) strings and byte strings. Integers use the
// host's byte order, since the channel never crosses a host boundary.
func Encode(cmd Command) ([]byte, error) {
	var buf []byte

	switch cmd.Kind() {
	case KindMount:
		switch m := cmd.Mount.(type) {
		case Bind:
			buf = appendTag(buf, tagBind)
			buf = appendString(buf, m.Src)
			buf = appendString(buf, m.Dst)
			buf = appendBool(buf, m.ReadOnly)
			buf = appendBool(buf, m.MountDev)

		case Overlay:
			buf = appendTag(buf, tagOverlay)
			buf = appendStringSlice(buf, m.Lower)
			buf = appendString(buf, m.Upper)
			buf = appendString(buf, m.Work)
			buf = appendString(buf, m.Target)
			buf = appendUint32(buf, uint32(m.Mode))

		case Special:
			buf = appendTag(buf, tagSpecial)
			buf = appendUint32(buf, uint32(m.Kind))
			buf = appendString(buf, m.Target)
			buf = appendBool(buf, m.HasSizeKb)
			buf = appendUint32(buf, uint32(m.SizeKb))
			buf = appendBool(buf, m.HasMode)
			buf = appendUint32(buf, m.Mode)
			buf = appendString(buf, m.Lower)
			buf = appendString(buf, m.Upper)
			buf = appendString(buf, m.Work)

		default:
			return nil, errors.Errorf("encode: unknown mount op %T", cmd.Mount)
		}

	case KindFile:
		switch f := cmd.File.(type) {
		case CreateDir:
			buf = appendTag(buf, tagCreateDir)
			buf = appendString(buf, f.Path)
			buf = appendUint32(buf, f.Mode)

		case CreateFile:
			buf = appendTag(buf, tagCreateFile)
			buf = appendString(buf, f.Dst)
			buf = appendUint32(buf, uint32(f.Fd))
			buf = appendUint32(buf, f.Mode)

		case CreateBindFile:
			buf = appendTag(buf, tagCreateBindFile)
			buf = appendString(buf, f.Src)
			buf = appendString(buf, f.Dst)
			buf = appendBool(buf, f.ReadOnly)

		case CreateSymlink:
			buf = appendTag(buf, tagCreateSymlink)
			buf = appendString(buf, f.Link)
			buf = appendString(buf, f.Target)

		case RemountReadOnly:
			buf = appendTag(buf, tagRemountReadOnly)
			buf = appendString(buf, f.Path)

		default:
			return nil, errors.Errorf("encode: unknown file op %T", cmd.File)
		}

	case KindSystem:
		switch s := cmd.Sys.(type) {
		case SetHostname:
			buf = appendTag(buf, tagSetHostname)
			buf = appendString(buf, s.Hostname)

		case Chmod:
			buf = appendTag(buf, tagChmod)
			buf = appendString(buf, s.Path)
			buf = appendUint32(buf, s.Mode)

		default:
			return nil, errors.Errorf("encode: unknown system op %T", cmd.Sys)
		}
	}

	return buf, nil
}

// Decode parses a single Command from a datagram produced by Encode.
// An unrecognized tag is a fatal supervisor error, never silently
// skipped.
func Decode(data []byte) (Command, error) {
	dec := &decoder{buf: data}

	tag, err := dec.tag()
	if err != nil {
		return Command{}, err
	}

	switch tag {
	case tagBind:
		src, err := dec.string()
		if err != nil {
			return Command{}, err
		}
		dst, err := dec.string()
		if err != nil {
			return Command{}, err
		}
		ro, err := dec.bool()
		if err != nil {
			return Command{}, err
		}
		mountDev, err := dec.bool()
		if err != nil {
			return Command{}, err
		}
		return mountCmd(Bind{Src: src, Dst: dst, ReadOnly: ro, MountDev: mountDev}), dec.done()

	case tagOverlay:
		lower, err := dec.stringSlice()
		if err != nil {
			return Command{}, err
		}
		upper, err := dec.string()
		if err != nil {
			return Command{}, err
		}
		work, err := dec.string()
		if err != nil {
			return Command{}, err
		}
		target, err := dec.string()
		if err != nil {
			return Command{}, err
		}
		mode, err := dec.uint32()
		if err != nil {
			return Command{}, err
		}
		return mountCmd(Overlay{Lower: lower, Upper: upper, Work: work, Target: target, Mode: OverlayMode(mode)}), dec.done()

	case tagSpecial:
		kind, err := dec.uint32()
		if err != nil {
			return Command{}, err
		}
		target, err := dec.string()
		if err != nil {
			return Command{}, err
		}
		hasSize, err := dec.bool()
		if err != nil {
			return Command{}, err
		}
		sizeKb, err := dec.uint32()
		if err != nil {
			return Command{}, err
		}
		hasMode, err := dec.bool()
		if err != nil {
			return Command{}, err
		}
		mode, err := dec.uint32()
		if err != nil {
			return Command{}, err
		}
		lower, err := dec.string()
		if err != nil {
			return Command{}, err
		}
		upper, err := dec.string()
		if err != nil {
			return Command{}, err
		}
		work, err := dec.string()
		if err != nil {
			return Command{}, err
		}
		return mountCmd(Special{
			Kind: SpecialKind(kind), Target: target,
			HasSizeKb: hasSize, SizeKb: int(sizeKb),
			HasMode: hasMode, Mode: mode,
			Lower: lower, Upper: upper, Work: work,
		}), dec.done()

	case tagCreateDir:
		path, err := dec.string()
		if err != nil {
			return Command{}, err
		}
		mode, err := dec.uint32()
		if err != nil {
			return Command{}, err
		}
		return fileCmd(CreateDir{Path: path, Mode: mode}), dec.done()

	case tagCreateFile:
		dst, err := dec.string()
		if err != nil {
			return Command{}, err
		}
		fd, err := dec.uint32()
		if err != nil {
			return Command{}, err
		}
		mode, err := dec.uint32()
		if err != nil {
			return Command{}, err
		}
		return fileCmd(CreateFile{Dst: dst, Fd: int(fd), Mode: mode}), dec.done()

	case tagCreateBindFile:
		src, err := dec.string()
		if err != nil {
			return Command{}, err
		}
		dst, err := dec.string()
		if err != nil {
			return Command{}, err
		}
		ro, err := dec.bool()
		if err != nil {
			return Command{}, err
		}
		return fileCmd(CreateBindFile{Src: src, Dst: dst, ReadOnly: ro}), dec.done()

	case tagCreateSymlink:
		link, err := dec.string()
		if err != nil {
			return Command{}, err
		}
		target, err := dec.string()
		if err != nil {
			return Command{}, err
		}
		return fileCmd(CreateSymlink{Link: link, Target: target}), dec.done()

	case tagRemountReadOnly:
		path, err := dec.string()
		if err != nil {
			return Command{}, err
		}
		return fileCmd(RemountReadOnly{Path: path}), dec.done()

	case tagSetHostname:
		hostname, err := dec.string()
		if err != nil {
			return Command{}, err
		}
		return sysCmd(SetHostname{Hostname: hostname}), dec.done()

	case tagChmod:
		path, err := dec.string()
		if err != nil {
			return Command{}, err
		}
		mode, err := dec.uint32()
		if err != nil {
			return Command{}, err
		}
		return sysCmd(Chmod{Path: path, Mode: mode}), dec.done()

	default:
		return Command{}, errors.Errorf("decode: unknown wire tag %d", tag)
	}
}

func appendTag(buf []byte, tag uint8) []byte {
	return append(buf, tag)
}

func appendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.NativeEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendStringSlice(buf []byte, ss []string) []byte {
	buf = appendUint32(buf, uint32(len(ss)))
	for _, s := range ss {
		buf = appendString(buf, s)
	}
	return buf
}

type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) done() error {
	if d.pos != len(d.buf) {
		return errors.Errorf("decode: %d trailing bytes after fully decoding message", len(d.buf)-d.pos)
	}
	return nil
}

func (d *decoder) tag() (uint8, error) {
	if d.pos >= len(d.buf) {
		return 0, errors.New("decode: empty message, expected a variant tag")
	}
	t := d.buf[d.pos]
	d.pos++
	return t, nil
}

func (d *decoder) bool() (bool, error) {
	if d.pos >= len(d.buf) {
		return false, errors.New("decode: truncated message reading bool")
	}
	v := d.buf[d.pos] != 0
	d.pos++
	return v, nil
}

func (d *decoder) uint32() (uint32, error) {
	if d.pos+4 > len(d.buf) {
		return 0, errors.New("decode: truncated message reading uint32")
	}
	v := binary.NativeEndian.Uint32(d.buf[d.pos : d.pos+4])
	d.pos += 4
	return v, nil
}

func (d *decoder) string() (string, error) {
	n, err := d.uint32()
	if err != nil {
		return "", err
	}
	if n > math.MaxInt32 || d.pos+int(n) > len(d.buf) {
		return "", errors.New("decode: truncated message reading string")
	}
	s := string(d.buf[d.pos : d.pos+int(n)])
	d.pos += int(n)
	return s, nil
}

func (d *decoder) stringSlice() ([]string, error) {
	n, err := d.uint32()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := d.string()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
